package data

import (
	"time"

	"github.com/cotinet/cotinode/src/common"
)

// UnconfirmedReceivedTransactionHashData tracks a transaction this node has
// propagated but not yet seen confirmed. Retries is decremented by each sweep
// that re-sends the transaction.
type UnconfirmedReceivedTransactionHashData struct {
	TransactionHash common.Hash
	CreatedTime     time.Time
	Retries         int
}

// NewUnconfirmedReceivedTransactionHashData ...
func NewUnconfirmedReceivedTransactionHashData(hash common.Hash, retries int, created time.Time) *UnconfirmedReceivedTransactionHashData {
	return &UnconfirmedReceivedTransactionHashData{
		TransactionHash: hash,
		CreatedTime:     created,
		Retries:         retries,
	}
}

// ConnectedNodeData is the observed role and recency of a peer that has
// contacted this node.
type ConnectedNodeData struct {
	NodeType           NodeType
	LastConnectionTime time.Time
}
