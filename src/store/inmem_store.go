package store

import (
	"sync"

	"github.com/cotinet/cotinode/src/common"
	"github.com/cotinet/cotinode/src/data"
)

// InmemStore implements Store with plain maps. Nothing survives a restart.
type InmemStore struct {
	sync.RWMutex
	transactions map[common.Hash]*data.TransactionData
	unconfirmed  map[common.Hash]data.UnconfirmedReceivedTransactionHashData
}

// NewInmemStore ...
func NewInmemStore() *InmemStore {
	return &InmemStore{
		transactions: make(map[common.Hash]*data.TransactionData),
		unconfirmed:  make(map[common.Hash]data.UnconfirmedReceivedTransactionHashData),
	}
}

// GetTransaction implements TransactionStore.
func (s *InmemStore) GetTransaction(hash common.Hash) (*data.TransactionData, error) {
	s.RLock()
	defer s.RUnlock()

	tx, ok := s.transactions[hash]
	if !ok {
		return nil, common.NewStoreErr("Transaction", common.KeyNotFound, hash.String())
	}
	res := *tx
	return &res, nil
}

// SetTransaction implements TransactionStore.
func (s *InmemStore) SetTransaction(tx *data.TransactionData) error {
	s.Lock()
	defer s.Unlock()

	cp := *tx
	s.transactions[tx.Hash] = &cp
	return nil
}

// DeleteTransaction implements TransactionStore.
func (s *InmemStore) DeleteTransaction(hash common.Hash) error {
	s.Lock()
	defer s.Unlock()

	delete(s.transactions, hash)
	return nil
}

// PutUnconfirmed implements UnconfirmedStore.
func (s *InmemStore) PutUnconfirmed(entry *data.UnconfirmedReceivedTransactionHashData) error {
	s.Lock()
	defer s.Unlock()

	s.unconfirmed[entry.TransactionHash] = *entry
	return nil
}

// GetUnconfirmed implements UnconfirmedStore.
func (s *InmemStore) GetUnconfirmed(hash common.Hash) (*data.UnconfirmedReceivedTransactionHashData, error) {
	s.RLock()
	defer s.RUnlock()

	e, ok := s.unconfirmed[hash]
	if !ok {
		return nil, common.NewStoreErr("Unconfirmed", common.KeyNotFound, hash.String())
	}
	return &e, nil
}

// DeleteUnconfirmed implements UnconfirmedStore.
func (s *InmemStore) DeleteUnconfirmed(hash common.Hash) error {
	s.Lock()
	defer s.Unlock()

	delete(s.unconfirmed, hash)
	return nil
}

// ForEachUnconfirmed implements UnconfirmedStore.
func (s *InmemStore) ForEachUnconfirmed(fn func(entry *data.UnconfirmedReceivedTransactionHashData)) error {
	s.RLock()
	entries := make([]data.UnconfirmedReceivedTransactionHashData, 0, len(s.unconfirmed))
	for _, e := range s.unconfirmed {
		entries = append(entries, e)
	}
	s.RUnlock()

	for i := range entries {
		fn(&entries[i])
	}
	return nil
}

// Close implements Store.
func (s *InmemStore) Close() error {
	return nil
}

// StorePath implements Store.
func (s *InmemStore) StorePath() string {
	return ""
}
