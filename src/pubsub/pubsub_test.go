package pubsub

import (
	"testing"
	"time"

	"github.com/cotinet/cotinode/src/common"
	"github.com/cotinet/cotinode/src/crypto/keys"
	"github.com/cotinet/cotinode/src/data"
	"github.com/gammazero/nexus/v3/client"
)

const testRealm = "cotinode.test"

func newTestPublisher(t *testing.T, ownType data.NodeType) *Publisher {
	p := NewPublisher(testRealm, common.NewTestEntry(t, common.TestLogLevel))
	if err := p.Init("127.0.0.1:0", ownType); err != nil {
		t.Fatalf("err: %v", err)
	}
	return p
}

// localDialer connects straight to the publisher's router, bypassing the
// websocket server.
func localDialer(p *Publisher) ClientDialer {
	return func(addr string, cfg client.Config) (*client.Client, error) {
		return client.ConnectLocal(p.Router(), cfg)
	}
}

type collector struct {
	ch chan data.Propagatable
}

func newCollector() *collector {
	return &collector{ch: make(chan data.Propagatable, 10)}
}

func (c *collector) handle(msg data.Propagatable) error {
	c.ch <- msg
	return nil
}

func (c *collector) expect(t *testing.T, class data.MessageClass) data.Propagatable {
	select {
	case msg := <-c.ch:
		if msg.Class() != class {
			t.Fatalf("expected a %s, got a %s", class, msg.Class())
		}
		return msg
	case <-time.After(2 * time.Second):
		t.Fatalf("timeout waiting for %s", class)
	}
	return nil
}

func (c *collector) expectNothing(t *testing.T) {
	select {
	case msg := <-c.ch:
		t.Fatalf("unexpected %s", msg.Class())
	default:
	}
}

func newTestTransaction(t *testing.T) *data.TransactionData {
	key, _ := keys.GenerateECDSAKey()
	tx, err := data.NewTransaction(key, "5", time.Now())
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	return tx
}

func newTestSubscriber(t *testing.T, ownType data.NodeType, topo Topology, c *collector) *Subscriber {
	s := NewSubscriber(testRealm, map[data.MessageClass]Handler{
		data.TransactionDataClass: c.handle,
		data.AddressDataClass:     c.handle,
		data.NetworkDataClass:     c.handle,
	}, time.Second, common.NewTestEntry(t, common.TestLogLevel))
	s.SetOwnNodeType(ownType)
	s.SetTopologyMap(topo)
	return s
}

func TestPublishSubscribe(t *testing.T) {
	pub := newTestPublisher(t, data.DspNode)
	defer pub.Close()

	c := newCollector()
	sub := newTestSubscriber(t, data.FullNode, NewTopology(nil), c)
	sub.SetDialer(localDialer(pub))
	defer sub.Close()

	if err := sub.Subscribe(pub.Addr(), data.DspNode); err != nil {
		t.Fatalf("err: %v", err)
	}

	tx := newTestTransaction(t)
	if err := pub.Publish(tx, data.FullNode); err != nil {
		t.Fatalf("err: %v", err)
	}

	got := c.expect(t, data.TransactionDataClass).(*data.TransactionData)
	if got.Hash != tx.Hash {
		t.Fatalf("received hash should be %v, not %v", tx.Hash, got.Hash)
	}
	if err := data.VerifyTransaction(got); err != nil {
		t.Fatalf("received transaction should verify: %v", err)
	}
}

func TestSubscriberOnlyReceivesOwnType(t *testing.T) {
	pub := newTestPublisher(t, data.DspNode)
	defer pub.Close()

	c := newCollector()
	sub := newTestSubscriber(t, data.TrustScoreNode, NewTopology(nil), c)
	sub.SetDialer(localDialer(pub))
	defer sub.Close()

	if err := sub.Subscribe(pub.Addr(), data.DspNode); err != nil {
		t.Fatalf("err: %v", err)
	}

	if err := pub.Publish(newTestTransaction(t), data.FullNode); err != nil {
		t.Fatalf("err: %v", err)
	}
	marker := newTestTransaction(t)
	if err := pub.Publish(marker, data.TrustScoreNode); err != nil {
		t.Fatalf("err: %v", err)
	}

	got := c.expect(t, data.TransactionDataClass)
	if got.GetHash() != marker.Hash {
		t.Fatal("subscriber should only receive messages addressed to its type")
	}
}

func TestTopologyRejectsUnauthorizedClass(t *testing.T) {
	pub := newTestPublisher(t, data.DspNode)
	defer pub.Close()

	c := newCollector()
	topo := NewTopology(Topology{data.DspNode: {data.TransactionDataClass}})
	sub := newTestSubscriber(t, data.FullNode, topo, c)
	sub.SetDialer(localDialer(pub))
	defer sub.Close()

	if err := sub.Subscribe(pub.Addr(), data.DspNode); err != nil {
		t.Fatalf("err: %v", err)
	}

	addr := &data.AddressData{Hash: common.BytesToHash([]byte("addr")), CreateTime: time.Now()}
	if err := pub.Publish(addr, data.FullNode); err != nil {
		t.Fatalf("err: %v", err)
	}
	tx := newTestTransaction(t)
	if err := pub.Publish(tx, data.FullNode); err != nil {
		t.Fatalf("err: %v", err)
	}

	// events from one publisher arrive in order, so the address has been
	// processed by the time the transaction shows up
	got := c.expect(t, data.TransactionDataClass)
	if got.GetHash() != tx.Hash {
		t.Fatal("unexpected transaction")
	}
	c.expectNothing(t)
}

func TestTopologyRejectsWrongPublisherType(t *testing.T) {
	// a full node is not allowed to publish anything
	pub := newTestPublisher(t, data.FullNode)
	defer pub.Close()

	c := newCollector()
	sub := newTestSubscriber(t, data.DspNode, NewTopology(nil), c)
	sub.SetDialer(localDialer(pub))
	defer sub.Close()

	// subscribing as if it were a DSP node does not help
	if err := sub.Subscribe(pub.Addr(), data.DspNode); err != nil {
		t.Fatalf("err: %v", err)
	}
	if err := pub.Publish(newTestTransaction(t), data.DspNode); err != nil {
		t.Fatalf("err: %v", err)
	}

	time.Sleep(200 * time.Millisecond)
	c.expectNothing(t)
}

func TestUnsubscribe(t *testing.T) {
	pub := newTestPublisher(t, data.NodeManager)
	defer pub.Close()

	c := newCollector()
	sub := newTestSubscriber(t, data.FullNode, NewTopology(nil), c)
	sub.SetDialer(localDialer(pub))
	defer sub.Close()

	if err := sub.Subscribe(pub.Addr(), data.NodeManager); err != nil {
		t.Fatalf("err: %v", err)
	}
	// idempotent
	if err := sub.Subscribe(pub.Addr(), data.NodeManager); err != nil {
		t.Fatalf("err: %v", err)
	}
	if l := len(sub.Subscriptions()); l != 1 {
		t.Fatalf("there should be 1 subscription, not %d", l)
	}

	if err := pub.Publish(&data.NetworkData{}, data.FullNode); err != nil {
		t.Fatalf("err: %v", err)
	}
	c.expect(t, data.NetworkDataClass)

	if err := sub.Unsubscribe(pub.Addr(), data.NodeManager); err != nil {
		t.Fatalf("err: %v", err)
	}
	if l := len(sub.Subscriptions()); l != 0 {
		t.Fatalf("there should be no subscription, not %d", l)
	}

	if err := pub.Publish(&data.NetworkData{}, data.FullNode); err != nil {
		t.Fatalf("err: %v", err)
	}
	time.Sleep(200 * time.Millisecond)
	c.expectNothing(t)
}

func TestPublishSubscribeWebsocket(t *testing.T) {
	pub := newTestPublisher(t, data.NodeManager)
	defer pub.Close()

	c := newCollector()
	sub := newTestSubscriber(t, data.DspNode, NewTopology(nil), c)
	defer sub.Close()

	if err := sub.Subscribe(pub.Addr(), data.NodeManager); err != nil {
		t.Fatalf("err: %v", err)
	}

	if err := pub.Publish(&data.NetworkData{}, data.DspNode); err != nil {
		t.Fatalf("err: %v", err)
	}
	c.expect(t, data.NetworkDataClass)
}

func TestPublishBeforeInit(t *testing.T) {
	p := NewPublisher(testRealm, common.NewTestEntry(t, common.TestLogLevel))
	if err := p.Publish(newTestTransaction(t), data.FullNode); err != ErrNotInitialized {
		t.Fatalf("err should be ErrNotInitialized, not %v", err)
	}
}

func TestSubscriberUsableWhileDialing(t *testing.T) {
	pub := newTestPublisher(t, data.NodeManager)
	defer pub.Close()

	c := newCollector()
	sub := newTestSubscriber(t, data.FullNode, NewTopology(nil), c)
	defer sub.Close()

	dialing := make(chan struct{})
	release := make(chan struct{})
	local := localDialer(pub)
	sub.SetDialer(func(addr string, cfg client.Config) (*client.Client, error) {
		close(dialing)
		<-release
		return local(addr, cfg)
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- sub.Subscribe(pub.Addr(), data.NodeManager)
	}()

	select {
	case <-dialing:
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for dial")
	}

	done := make(chan int, 1)
	go func() {
		sub.Topology()
		done <- len(sub.Subscriptions())
	}()

	select {
	case l := <-done:
		if l != 0 {
			t.Fatalf("there should be no subscription before the dial ends, not %d", l)
		}
	case <-time.After(time.Second):
		t.Fatal("subscriber should not be locked while dialing")
	}

	close(release)
	if err := <-errCh; err != nil {
		t.Fatalf("err: %v", err)
	}
	if l := len(sub.Subscriptions()); l != 1 {
		t.Fatalf("there should be 1 subscription, not %d", l)
	}
}
