package propagation

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/cotinet/cotinode/src/common"
	"github.com/cotinet/cotinode/src/crypto/keys"
	"github.com/cotinet/cotinode/src/data"
	"github.com/cotinet/cotinode/src/store"
)

const testPeriod = 10 * time.Second

type countingResender struct {
	sync.Mutex
	sent map[common.Hash]int
	err  error
}

func newCountingResender() *countingResender {
	return &countingResender{sent: make(map[common.Hash]int)}
}

func (r *countingResender) Resend(tx *data.TransactionData) error {
	r.Lock()
	defer r.Unlock()
	r.sent[tx.Hash]++
	return r.err
}

func (r *countingResender) count(h common.Hash) int {
	r.Lock()
	defer r.Unlock()
	return r.sent[h]
}

type testClock struct {
	sync.Mutex
	t time.Time
}

func (c *testClock) now() time.Time {
	c.Lock()
	defer c.Unlock()
	return c.t
}

func (c *testClock) advance(d time.Duration) {
	c.Lock()
	c.t = c.t.Add(d)
	c.Unlock()
}

// racingStore runs beforeVisit for each record between the moment
// ForEachUnconfirmed reads it and the moment fn sees it.
type racingStore struct {
	*store.InmemStore
	beforeVisit func(h common.Hash)
}

func (s *racingStore) ForEachUnconfirmed(fn func(entry *data.UnconfirmedReceivedTransactionHashData)) error {
	return s.InmemStore.ForEachUnconfirmed(func(e *data.UnconfirmedReceivedTransactionHashData) {
		if s.beforeVisit != nil {
			s.beforeVisit(e.TransactionHash)
		}
		fn(e)
	})
}

type failingStore struct {
	*store.InmemStore
	failPut bool
}

func (s *failingStore) PutUnconfirmed(entry *data.UnconfirmedReceivedTransactionHashData) error {
	if s.failPut {
		return errors.New("disk full")
	}
	return s.InmemStore.PutUnconfirmed(entry)
}

type serviceFixture struct {
	store    store.Store
	resender *countingResender
	clock    *testClock
	service  *Service
}

func newServiceFixture(t *testing.T, retries int) *serviceFixture {
	return newServiceFixtureWithStore(t, retries, store.NewInmemStore())
}

func newServiceFixtureWithStore(t *testing.T, retries int, s store.Store) *serviceFixture {
	r := newCountingResender()
	clock := &testClock{t: time.Unix(1000000, 0)}

	service := NewService(
		Config{Retries: retries, TrackBackPropagation: true},
		s,
		NewTransactionOracle(s),
		r,
		common.NewTestEntry(t, common.TestLogLevel),
	)
	service.SetClock(clock.now)

	return &serviceFixture{
		store:    s,
		resender: r,
		clock:    clock,
		service:  service,
	}
}

func (f *serviceFixture) storeTransaction(t *testing.T) *data.TransactionData {
	key, _ := keys.GenerateECDSAKey()
	tx, err := data.NewTransaction(key, "10", f.clock.now())
	if err != nil {
		t.Fatal(err)
	}
	if err := f.store.SetTransaction(tx); err != nil {
		t.Fatal(err)
	}
	return tx
}

func (f *serviceFixture) durable(t *testing.T) map[common.Hash]data.UnconfirmedReceivedTransactionHashData {
	res := make(map[common.Hash]data.UnconfirmedReceivedTransactionHashData)
	err := f.store.ForEachUnconfirmed(func(e *data.UnconfirmedReceivedTransactionHashData) {
		res[e.TransactionHash] = *e
	})
	if err != nil {
		t.Fatal(err)
	}
	return res
}

func (f *serviceFixture) checkJointConsistency(t *testing.T) {
	durable := f.durable(t)
	memory := f.service.Pending()

	if len(durable) != len(memory) {
		t.Fatalf("memory has %d entries, durable set has %d", len(memory), len(durable))
	}
	for _, e := range memory {
		d, ok := durable[e.TransactionHash]
		if !ok {
			t.Fatalf("%v is in memory but not in the durable set", e.TransactionHash)
		}
		if d.Retries != e.Retries {
			t.Fatalf("%v retries: memory %d, durable %d", e.TransactionHash, e.Retries, d.Retries)
		}
	}
}

func (f *serviceFixture) retries(t *testing.T, h common.Hash) int {
	for _, e := range f.service.Pending() {
		if e.TransactionHash == h {
			return e.Retries
		}
	}
	t.Fatalf("%v should be pending", h)
	return 0
}

func TestSweepExhaustsRetries(t *testing.T) {
	f := newServiceFixture(t, 3)
	tx := f.storeTransaction(t)

	f.service.AddUnconfirmed(tx.Hash)

	for i := 1; i <= 3; i++ {
		f.clock.advance(testPeriod + time.Second)
		f.service.Sweep(testPeriod)

		if c := f.resender.count(tx.Hash); c != i {
			t.Fatalf("sweep %d: transaction should have been resent %d times, not %d", i, i, c)
		}
		if i < 3 {
			if r := f.retries(t, tx.Hash); r != 3-i {
				t.Fatalf("sweep %d: retries should be %d, not %d", i, 3-i, r)
			}
		}
		f.checkJointConsistency(t)
	}

	if f.service.IsPending(tx.Hash) {
		t.Fatal("transaction should be abandoned after 3 sweeps")
	}
}

func TestRemoveOnConfirmationBeforeSweep(t *testing.T) {
	f := newServiceFixture(t, 3)
	tx := f.storeTransaction(t)

	f.service.AddUnconfirmed(tx.Hash)
	f.service.RemoveOnConfirmation(tx.Hash)

	if f.service.IsPending(tx.Hash) {
		t.Fatal("confirmed transaction should not be pending")
	}
	f.checkJointConsistency(t)

	f.clock.advance(testPeriod + time.Second)
	f.service.Sweep(testPeriod)

	if c := f.resender.count(tx.Hash); c != 0 {
		t.Fatalf("confirmed transaction should not be resent, was resent %d times", c)
	}
}

func TestSweepAbandonsMissingTransaction(t *testing.T) {
	f := newServiceFixture(t, 2)
	tx := f.storeTransaction(t)

	f.service.AddUnconfirmed(tx.Hash)
	if err := f.store.DeleteTransaction(tx.Hash); err != nil {
		t.Fatal(err)
	}

	f.clock.advance(testPeriod + time.Second)
	f.service.Sweep(testPeriod)

	if f.service.IsPending(tx.Hash) {
		t.Fatal("missing transaction should be removed in the same sweep")
	}
	if c := f.resender.count(tx.Hash); c != 0 {
		t.Fatalf("missing transaction should not be resent, was resent %d times", c)
	}
	f.checkJointConsistency(t)
}

func TestRecoverOnStartupDropsConfirmed(t *testing.T) {
	f := newServiceFixture(t, 3)
	confirmed := f.storeTransaction(t)
	pending := f.storeTransaction(t)

	f.service.AddUnconfirmed(confirmed.Hash)
	f.service.AddUnconfirmed(pending.Hash)

	// confirmed while the node was down
	confirmed.DspConsensusResult = &data.DspConsensusResult{
		TransactionHash: confirmed.Hash,
		IsDspConfirmed:  true,
	}
	if err := f.store.SetTransaction(confirmed); err != nil {
		t.Fatal(err)
	}

	restarted := NewService(
		Config{Retries: 3},
		f.store,
		NewTransactionOracle(f.store),
		f.resender,
		common.NewTestEntry(t, common.TestLogLevel),
	)
	f.service = restarted

	if err := restarted.RecoverOnStartup(); err != nil {
		t.Fatal(err)
	}

	if restarted.IsPending(confirmed.Hash) {
		t.Fatal("confirmed transaction should not be recovered")
	}
	if _, ok := f.durable(t)[confirmed.Hash]; ok {
		t.Fatal("confirmed transaction should be removed from the durable set")
	}
	if !restarted.IsPending(pending.Hash) {
		t.Fatal("unconfirmed transaction should survive a restart")
	}
	f.checkJointConsistency(t)
}

func TestSweepSkipsFreshEntries(t *testing.T) {
	f := newServiceFixture(t, 3)
	tx := f.storeTransaction(t)

	f.service.AddUnconfirmed(tx.Hash)
	f.clock.advance(testPeriod)
	f.service.Sweep(testPeriod)

	if c := f.resender.count(tx.Hash); c != 0 {
		t.Fatalf("fresh transaction should not be resent, was resent %d times", c)
	}
	if r := f.retries(t, tx.Hash); r != 3 {
		t.Fatalf("retries should be untouched, got %d", r)
	}
}

func TestSweepCountsFailedResend(t *testing.T) {
	f := newServiceFixture(t, 1)
	f.resender.err = errors.New("peer unreachable")
	tx := f.storeTransaction(t)
	other := f.storeTransaction(t)

	f.service.AddUnconfirmed(tx.Hash)
	f.service.AddUnconfirmed(other.Hash)
	f.clock.advance(testPeriod + time.Second)
	f.service.Sweep(testPeriod)

	if c := f.resender.count(other.Hash); c != 1 {
		t.Fatalf("a failed send should not stop the pass, other was resent %d times", c)
	}
	if f.service.IsPending(tx.Hash) || f.service.IsPending(other.Hash) {
		t.Fatal("failed sends should consume the last retry")
	}
	f.checkJointConsistency(t)
}

func TestIdempotentOperations(t *testing.T) {
	f := newServiceFixture(t, 3)
	tx := f.storeTransaction(t)

	f.service.AddUnconfirmed(tx.Hash)
	f.service.AddUnconfirmed(tx.Hash)

	if l := len(f.service.Pending()); l != 1 {
		t.Fatalf("double add should leave 1 entry, not %d", l)
	}
	f.checkJointConsistency(t)

	f.service.RemoveOnConfirmation(tx.Hash)
	f.service.RemoveOnConfirmation(tx.Hash)

	if l := len(f.service.Pending()); l != 0 {
		t.Fatalf("double remove should leave 0 entries, not %d", l)
	}
	f.checkJointConsistency(t)
}

func TestBackPropagationDisabled(t *testing.T) {
	f := newServiceFixture(t, 3)
	f.service.conf.TrackBackPropagation = false
	tx := f.storeTransaction(t)

	f.service.AddUnconfirmed(tx.Hash)
	f.service.RemoveOnBackPropagation(tx.Hash)

	if !f.service.IsPending(tx.Hash) {
		t.Fatal("back-propagation should be ignored when disabled")
	}

	f.service.conf.TrackBackPropagation = true
	f.service.RemoveOnBackPropagation(tx.Hash)

	if f.service.IsPending(tx.Hash) {
		t.Fatal("back-propagation should remove the transaction")
	}
}

func TestConcurrentAddRemove(t *testing.T) {
	f := newServiceFixture(t, 3)
	txs := []*data.TransactionData{}
	for i := 0; i < 5; i++ {
		txs = append(txs, f.storeTransaction(t))
	}

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(3)
		go func() {
			defer wg.Done()
			for _, tx := range txs {
				f.service.AddUnconfirmed(tx.Hash)
			}
		}()
		go func() {
			defer wg.Done()
			for _, tx := range txs {
				f.service.RemoveOnConfirmation(tx.Hash)
			}
		}()
		go func() {
			defer wg.Done()
			f.clock.advance(time.Second)
			f.service.Sweep(testPeriod)
		}()
	}
	wg.Wait()

	f.checkJointConsistency(t)

	if l := f.service.locks.Len(); l != 0 {
		t.Fatalf("lock registry should be empty, has %d entries", l)
	}
}

func TestRecoverOnStartupSkipsRemovedRecord(t *testing.T) {
	rs := &racingStore{InmemStore: store.NewInmemStore()}
	f := newServiceFixtureWithStore(t, 3, rs)
	tx := f.storeTransaction(t)

	f.service.AddUnconfirmed(tx.Hash)

	rs.beforeVisit = func(h common.Hash) {
		f.service.RemoveOnConfirmation(h)
	}
	if err := f.service.RecoverOnStartup(); err != nil {
		t.Fatal(err)
	}
	rs.beforeVisit = nil

	if f.service.IsPending(tx.Hash) {
		t.Fatal("a transaction removed during recovery should not be reloaded")
	}
	f.checkJointConsistency(t)
}

func TestRecoverOnStartupReloadsCurrentRecord(t *testing.T) {
	rs := &racingStore{InmemStore: store.NewInmemStore()}
	f := newServiceFixtureWithStore(t, 3, rs)
	tx := f.storeTransaction(t)

	f.service.AddUnconfirmed(tx.Hash)
	f.clock.advance(testPeriod + time.Second)
	f.service.Sweep(testPeriod)

	if r := f.retries(t, tx.Hash); r != 2 {
		t.Fatalf("retries should be 2 after one sweep, not %d", r)
	}

	rs.beforeVisit = func(h common.Hash) {
		f.service.AddUnconfirmed(h)
	}
	if err := f.service.RecoverOnStartup(); err != nil {
		t.Fatal(err)
	}
	rs.beforeVisit = nil

	if r := f.retries(t, tx.Hash); r != 3 {
		t.Fatalf("recovery should load the re-added record with 3 retries, not %d", r)
	}
	f.checkJointConsistency(t)
}

func TestRecoverConcurrentWithAddRemove(t *testing.T) {
	f := newServiceFixture(t, 3)
	txs := []*data.TransactionData{}
	for i := 0; i < 5; i++ {
		tx := f.storeTransaction(t)
		f.service.AddUnconfirmed(tx.Hash)
		txs = append(txs, tx)
	}

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(3)
		go func() {
			defer wg.Done()
			if err := f.service.RecoverOnStartup(); err != nil {
				t.Error(err)
			}
		}()
		go func() {
			defer wg.Done()
			for _, tx := range txs {
				f.service.AddUnconfirmed(tx.Hash)
			}
		}()
		go func() {
			defer wg.Done()
			for _, tx := range txs {
				f.service.RemoveOnConfirmation(tx.Hash)
			}
		}()
	}
	wg.Wait()

	f.checkJointConsistency(t)

	if l := f.service.locks.Len(); l != 0 {
		t.Fatalf("lock registry should be empty, has %d entries", l)
	}
}

func TestSweepSpendsRetriesWhenPersistFails(t *testing.T) {
	fs := &failingStore{InmemStore: store.NewInmemStore()}
	f := newServiceFixtureWithStore(t, 3, fs)
	tx := f.storeTransaction(t)

	f.service.AddUnconfirmed(tx.Hash)
	fs.failPut = true

	f.clock.advance(testPeriod + time.Second)
	f.service.Sweep(testPeriod)

	if r := f.retries(t, tx.Hash); r != 2 {
		t.Fatalf("retries should be 2 after a failed persist, not %d", r)
	}

	for i := 1; i < 10; i++ {
		f.clock.advance(testPeriod + time.Second)
		f.service.Sweep(testPeriod)
	}

	if c := f.resender.count(tx.Hash); c != 3 {
		t.Fatalf("transaction should have been resent 3 times, not %d", c)
	}
	if f.service.IsPending(tx.Hash) {
		t.Fatal("transaction should be abandoned once its retries are spent")
	}
	if _, ok := f.durable(t)[tx.Hash]; ok {
		t.Fatal("abandoned transaction should be removed from the durable set")
	}
}
