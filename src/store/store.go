package store

import (
	"github.com/cotinet/cotinode/src/common"
	"github.com/cotinet/cotinode/src/data"
)

// TransactionStore holds the transactions known to this node.
type TransactionStore interface {
	// GetTransaction returns a StoreErr with KeyNotFound if the transaction is
	// absent.
	GetTransaction(hash common.Hash) (*data.TransactionData, error)
	// SetTransaction inserts or replaces a transaction.
	SetTransaction(tx *data.TransactionData) error
	// DeleteTransaction removes a transaction. It is a no-op if absent.
	DeleteTransaction(hash common.Hash) error
}

// UnconfirmedStore is the durable set of transaction hashes awaiting
// confirmation.
type UnconfirmedStore interface {
	// PutUnconfirmed inserts or replaces the record for entry.TransactionHash.
	PutUnconfirmed(entry *data.UnconfirmedReceivedTransactionHashData) error
	// GetUnconfirmed returns a StoreErr with KeyNotFound if no record exists
	// for hash.
	GetUnconfirmed(hash common.Hash) (*data.UnconfirmedReceivedTransactionHashData, error)
	// DeleteUnconfirmed removes a record. It is a no-op if absent.
	DeleteUnconfirmed(hash common.Hash) error
	// ForEachUnconfirmed calls fn for every persisted record. The records are
	// read before fn is first called, so fn may modify the store.
	ForEachUnconfirmed(fn func(entry *data.UnconfirmedReceivedTransactionHashData)) error
}

// Store is the persistence collaborator of a node.
type Store interface {
	TransactionStore
	UnconfirmedStore
	// Close closes the underlying database.
	Close() error
	// StorePath returns the filepath of the underlying database.
	StorePath() string
}
