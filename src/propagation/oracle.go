package propagation

import (
	"github.com/cotinet/cotinode/src/common"
	"github.com/cotinet/cotinode/src/store"
)

// ConfirmationOracle answers whether a transaction has reached consensus.
type ConfirmationOracle interface {
	IsConfirmed(hash common.Hash) (bool, error)
}

// TransactionOracle considers a transaction confirmed once a positive
// DspConsensusResult is attached to it in the TransactionStore. Unknown
// transactions are unconfirmed.
type TransactionOracle struct {
	store store.TransactionStore
}

// NewTransactionOracle ...
func NewTransactionOracle(s store.TransactionStore) *TransactionOracle {
	return &TransactionOracle{store: s}
}

// IsConfirmed implements ConfirmationOracle.
func (o *TransactionOracle) IsConfirmed(hash common.Hash) (bool, error) {
	tx, err := o.store.GetTransaction(hash)
	if err != nil {
		if common.IsStore(err, common.KeyNotFound) {
			return false, nil
		}
		return false, err
	}
	return tx.IsDspConfirmed(), nil
}
