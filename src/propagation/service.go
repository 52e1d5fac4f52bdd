package propagation

import (
	"time"

	"github.com/cotinet/cotinode/src/common"
	"github.com/cotinet/cotinode/src/data"
	"github.com/cotinet/cotinode/src/store"
	"github.com/sirupsen/logrus"
)

// Config parameterises a Service for a node role.
type Config struct {
	// Retries is the number of sweeps that re-send a transaction before it is
	// abandoned.
	Retries int
	// TrackBackPropagation enables RemoveOnBackPropagation.
	TrackBackPropagation bool
}

// Service tracks unconfirmed transactions and re-sends them on every Sweep
// until they are confirmed or run out of retries.
type Service struct {
	conf     Config
	locks    *LockRegistry
	set      *UnconfirmedSet
	txs      store.TransactionStore
	oracle   ConfirmationOracle
	resender Resender
	now      func() time.Time
	logger   *logrus.Entry
}

// NewService ...
func NewService(
	conf Config,
	s store.Store,
	oracle ConfirmationOracle,
	resender Resender,
	logger *logrus.Entry,
) *Service {
	if logger == nil {
		logger = logrus.NewEntry(logrus.New())
	}

	return &Service{
		conf:     conf,
		locks:    NewLockRegistry(0),
		set:      NewUnconfirmedSet(s),
		txs:      s,
		oracle:   oracle,
		resender: resender,
		now:      time.Now,
		logger:   logger.WithField("component", "propagation"),
	}
}

// SetClock replaces the time source. Only used by tests.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// AddUnconfirmed starts, or restarts, tracking hash with a full retry budget.
func (s *Service) AddUnconfirmed(hash common.Hash) {
	s.locks.WithLock(hash, func() {
		entry := data.NewUnconfirmedReceivedTransactionHashData(hash, s.conf.Retries, s.now())
		if err := s.set.Put(entry); err != nil {
			s.logger.WithError(err).WithField("hash", hash).Error("Persisting unconfirmed transaction")
		}
	})
}

// RemoveOnConfirmation stops tracking hash once consensus has confirmed it.
func (s *Service) RemoveOnConfirmation(hash common.Hash) {
	s.remove(hash, "confirmation")
}

// RemoveOnBackPropagation stops tracking hash when a peer echoes it back. It
// does nothing unless TrackBackPropagation is set.
func (s *Service) RemoveOnBackPropagation(hash common.Hash) {
	if !s.conf.TrackBackPropagation {
		return
	}
	s.remove(hash, "back-propagation")
}

func (s *Service) remove(hash common.Hash, reason string) {
	s.locks.WithLock(hash, func() {
		_, tracked := s.set.Get(hash)
		// the durable record may exist without the memory one while
		// recovery is loading it
		if err := s.set.Delete(hash); err != nil {
			s.logger.WithError(err).WithField("hash", hash).Error("Removing unconfirmed transaction")
			return
		}
		if tracked {
			s.logger.WithFields(logrus.Fields{
				"hash":   hash,
				"reason": reason,
			}).Debug("Unconfirmed transaction removed")
		}
	})
}

// Sweep re-sends every entry older than period and drops the entries whose
// retries are exhausted. A failure on one hash never stops the pass.
func (s *Service) Sweep(period time.Duration) {
	now := s.now()

	aged := []common.Hash{}
	for _, e := range s.set.Snapshot() {
		if e.CreatedTime.Add(period).Before(now) {
			aged = append(aged, e.TransactionHash)
		}
	}

	for _, h := range aged {
		s.locks.WithLock(h, func() {
			s.resend(h)
		})
	}

	exhausted := []common.Hash{}
	for _, e := range s.set.Snapshot() {
		if e.Retries <= 0 {
			exhausted = append(exhausted, e.TransactionHash)
		}
	}

	for _, h := range exhausted {
		s.locks.WithLock(h, func() {
			e, ok := s.set.Get(h)
			if !ok || e.Retries > 0 {
				return
			}
			if err := s.set.Delete(h); err != nil {
				s.logger.WithError(err).WithField("hash", h).Error("Removing exhausted transaction")
				return
			}
			s.logger.WithField("hash", h).Debug("Unconfirmed transaction abandoned")
		})
	}

	s.logger.WithFields(logrus.Fields{
		"resent":    len(aged),
		"abandoned": len(exhausted),
		"pending":   s.set.Len(),
	}).Debug("Sweep")
}

// resend must be called with the lock for hash held.
func (s *Service) resend(hash common.Hash) {
	entry, ok := s.set.Get(hash)
	if !ok || entry.Retries <= 0 {
		return
	}

	logger := s.logger.WithField("hash", hash)

	tx, err := s.txs.GetTransaction(hash)
	switch {
	case err != nil:
		if !common.IsStore(err, common.KeyNotFound) {
			logger.WithError(err).Error("Reading transaction")
		} else {
			logger.Warn("Unconfirmed transaction missing from store")
		}
		entry.Retries = 0
	case tx.IsDspConfirmed():
		entry.Retries = 0
	default:
		if err := s.resender.Resend(tx); err != nil {
			logger.WithError(err).Warn("Resending transaction")
		}
		entry.Retries--
	}

	if err := s.set.Put(entry); err != nil {
		logger.WithError(err).Error("Persisting retries")
		// the retry is spent whether or not it was persisted
		s.set.putMemory(entry)
	}
}

// RecoverOnStartup reloads the durable set into memory, dropping the entries
// that were confirmed while the node was down.
func (s *Service) RecoverOnStartup() error {
	confirmed := []common.Hash{}
	recovered := 0

	err := s.set.durable.ForEachUnconfirmed(func(e *data.UnconfirmedReceivedTransactionHashData) {
		h := e.TransactionHash
		s.locks.WithLock(h, func() {
			// the record may have changed since the scan read it
			current, err := s.set.durable.GetUnconfirmed(h)
			if err != nil {
				if !common.IsStore(err, common.KeyNotFound) {
					s.logger.WithError(err).WithField("hash", h).Error("Reading unconfirmed transaction")
				}
				return
			}

			ok, err := s.oracle.IsConfirmed(h)
			if err != nil {
				s.logger.WithError(err).WithField("hash", h).Error("Querying confirmation")
			}
			if ok {
				confirmed = append(confirmed, h)
				return
			}
			s.set.putMemory(current)
			recovered++
		})
	})
	if err != nil {
		return err
	}

	for _, h := range confirmed {
		s.locks.WithLock(h, func() {
			if err := s.set.Delete(h); err != nil {
				s.logger.WithError(err).WithField("hash", h).Error("Removing confirmed transaction")
			}
		})
	}

	s.logger.WithFields(logrus.Fields{
		"recovered": recovered,
		"confirmed": len(confirmed),
	}).Info("Recovered unconfirmed transactions")

	return nil
}

// Pending returns a snapshot of the tracked entries.
func (s *Service) Pending() []data.UnconfirmedReceivedTransactionHashData {
	return s.set.Snapshot()
}

// IsPending reports whether hash is currently tracked.
func (s *Service) IsPending(hash common.Hash) bool {
	_, ok := s.set.Get(hash)
	return ok
}
