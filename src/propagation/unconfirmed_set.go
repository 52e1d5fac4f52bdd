package propagation

import (
	"sync"

	"github.com/cotinet/cotinode/src/common"
	"github.com/cotinet/cotinode/src/data"
	"github.com/cotinet/cotinode/src/store"
)

// UnconfirmedSet is the in-memory map of unconfirmed entries mirrored into a
// durable UnconfirmedStore. Per-hash consistency between the two halves is
// the responsibility of callers, who must hold the hash lock from the
// LockRegistry around any read-modify-write.
type UnconfirmedSet struct {
	sync.RWMutex
	entries map[common.Hash]*data.UnconfirmedReceivedTransactionHashData
	durable store.UnconfirmedStore
}

// NewUnconfirmedSet ...
func NewUnconfirmedSet(durable store.UnconfirmedStore) *UnconfirmedSet {
	return &UnconfirmedSet{
		entries: make(map[common.Hash]*data.UnconfirmedReceivedTransactionHashData),
		durable: durable,
	}
}

// Put writes entry to the durable store and then to memory. Memory is left
// untouched if the durable write fails.
func (s *UnconfirmedSet) Put(entry *data.UnconfirmedReceivedTransactionHashData) error {
	if err := s.durable.PutUnconfirmed(entry); err != nil {
		return err
	}
	s.putMemory(entry)
	return nil
}

func (s *UnconfirmedSet) putMemory(entry *data.UnconfirmedReceivedTransactionHashData) {
	cp := *entry
	s.Lock()
	s.entries[entry.TransactionHash] = &cp
	s.Unlock()
}

// Get returns a copy of the in-memory entry for hash.
func (s *UnconfirmedSet) Get(hash common.Hash) (*data.UnconfirmedReceivedTransactionHashData, bool) {
	s.RLock()
	defer s.RUnlock()

	e, ok := s.entries[hash]
	if !ok {
		return nil, false
	}
	cp := *e
	return &cp, true
}

// Delete removes hash from the durable store and then from memory. It is a
// no-op for unknown hashes.
func (s *UnconfirmedSet) Delete(hash common.Hash) error {
	if err := s.durable.DeleteUnconfirmed(hash); err != nil {
		return err
	}

	s.Lock()
	delete(s.entries, hash)
	s.Unlock()
	return nil
}

// Snapshot returns copies of all in-memory entries.
func (s *UnconfirmedSet) Snapshot() []data.UnconfirmedReceivedTransactionHashData {
	s.RLock()
	defer s.RUnlock()

	res := make([]data.UnconfirmedReceivedTransactionHashData, 0, len(s.entries))
	for _, e := range s.entries {
		res = append(res, *e)
	}
	return res
}

// Len returns the number of in-memory entries.
func (s *UnconfirmedSet) Len() int {
	s.RLock()
	defer s.RUnlock()
	return len(s.entries)
}
