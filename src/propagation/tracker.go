package propagation

import (
	"time"

	"github.com/cotinet/cotinode/src/common"
	"github.com/cotinet/cotinode/src/data"
)

// PropagationTracker is the capability a node role uses to follow the
// transactions it propagates. Roles that do not track get a NoopTracker.
type PropagationTracker interface {
	AddUnconfirmed(hash common.Hash)
	RemoveOnConfirmation(hash common.Hash)
	RemoveOnBackPropagation(hash common.Hash)
	Sweep(period time.Duration)
	RecoverOnStartup() error
}

// Resender re-propagates a transaction on behalf of a sweep.
type Resender interface {
	Resend(tx *data.TransactionData) error
}

// ResenderFunc adapts an ordinary function to the Resender interface.
type ResenderFunc func(tx *data.TransactionData) error

// Resend implements Resender.
func (f ResenderFunc) Resend(tx *data.TransactionData) error {
	return f(tx)
}

// NoopTracker is the tracker of roles that never re-send transactions.
type NoopTracker struct{}

// AddUnconfirmed implements PropagationTracker.
func (NoopTracker) AddUnconfirmed(hash common.Hash) {}

// RemoveOnConfirmation implements PropagationTracker.
func (NoopTracker) RemoveOnConfirmation(hash common.Hash) {}

// RemoveOnBackPropagation implements PropagationTracker.
func (NoopTracker) RemoveOnBackPropagation(hash common.Hash) {}

// Sweep implements PropagationTracker.
func (NoopTracker) Sweep(period time.Duration) {}

// RecoverOnStartup implements PropagationTracker.
func (NoopTracker) RecoverOnStartup() error { return nil }
