package node

import (
	"errors"
	"sort"
	"testing"

	"github.com/cotinet/cotinode/src/common"
	"github.com/cotinet/cotinode/src/data"
)

type fakeConnector struct {
	senders       map[endpoint]bool
	subscriptions map[endpoint]bool
	failSubscribe map[string]bool
}

func newFakeConnector() *fakeConnector {
	return &fakeConnector{
		senders:       make(map[endpoint]bool),
		subscriptions: make(map[endpoint]bool),
		failSubscribe: make(map[string]bool),
	}
}

func (c *fakeConnector) AddSender(addr string, nodeType data.NodeType) error {
	c.senders[endpoint{addr, nodeType}] = true
	return nil
}

func (c *fakeConnector) RemoveSender(addr string, nodeType data.NodeType) {
	delete(c.senders, endpoint{addr, nodeType})
}

func (c *fakeConnector) AddSubscription(addr string, publisherType data.NodeType) error {
	if c.failSubscribe[addr] {
		return errors.New("unreachable")
	}
	c.subscriptions[endpoint{addr, publisherType}] = true
	return nil
}

func (c *fakeConnector) RemoveSubscription(addr string, publisherType data.NodeType) error {
	delete(c.subscriptions, endpoint{addr, publisherType})
	return nil
}

func member(pubKey string, t data.NodeType, receiver, publisher string) data.NetworkNodeData {
	return data.NetworkNodeData{
		NodeType:           t,
		PubKey:             pubKey,
		ReceivingAddress:   receiver,
		PropagationAddress: publisher,
	}
}

func TestNetworkServiceDiff(t *testing.T) {
	conn := newFakeConnector()
	s := NewNetworkService(
		"self",
		[]data.NodeType{data.DspNode},
		[]data.NodeType{data.DspNode, data.ZeroSpendServer},
		conn,
		common.NewTestEntry(t, common.TestLogLevel),
	)

	s.HandleNetworkData(&data.NetworkData{Nodes: []data.NetworkNodeData{
		member("self", data.DspNode, "self:1", "self:2"),
		member("dsp1", data.DspNode, "dsp1:1", "dsp1:2"),
		member("dsp2", data.DspNode, "dsp2:1", "dsp2:2"),
		member("zs", data.ZeroSpendServer, "zs:1", "zs:2"),
		member("trust", data.TrustScoreNode, "", "trust:2"),
	}})

	if len(conn.senders) != 2 || !conn.senders[endpoint{"dsp1:1", data.DspNode}] || !conn.senders[endpoint{"dsp2:1", data.DspNode}] {
		t.Fatalf("senders should be the two other DSP receivers, got %v", conn.senders)
	}
	if len(conn.subscriptions) != 3 || !conn.subscriptions[endpoint{"zs:2", data.ZeroSpendServer}] {
		t.Fatalf("subscriptions should be two DSP and one zero-spend publisher, got %v", conn.subscriptions)
	}

	receivers := s.Receivers(data.DspNode)
	sort.Strings(receivers)
	if len(receivers) != 2 || receivers[0] != "dsp1:1" || receivers[1] != "dsp2:1" {
		t.Fatalf("bad receivers %v", receivers)
	}

	// dsp2 leaves
	s.HandleNetworkData(&data.NetworkData{Nodes: []data.NetworkNodeData{
		member("dsp1", data.DspNode, "dsp1:1", "dsp1:2"),
		member("zs", data.ZeroSpendServer, "zs:1", "zs:2"),
	}})

	if conn.senders[endpoint{"dsp2:1", data.DspNode}] {
		t.Fatal("sender to a departed node should be removed")
	}
	if conn.subscriptions[endpoint{"dsp2:2", data.DspNode}] {
		t.Fatal("subscription to a departed node should be removed")
	}
	if len(s.Network().Nodes) != 2 {
		t.Fatalf("network should have 2 members, not %d", len(s.Network().Nodes))
	}
}

func TestNetworkServiceRetriesFailedSubscription(t *testing.T) {
	conn := newFakeConnector()
	conn.failSubscribe["dsp1:2"] = true

	s := NewNetworkService(
		"self",
		nil,
		[]data.NodeType{data.DspNode},
		conn,
		common.NewTestEntry(t, common.TestLogLevel),
	)

	nd := &data.NetworkData{Nodes: []data.NetworkNodeData{
		member("dsp1", data.DspNode, "dsp1:1", "dsp1:2"),
	}}

	s.HandleNetworkData(nd)
	if len(conn.subscriptions) != 0 {
		t.Fatal("failed subscription should not be recorded")
	}

	conn.failSubscribe["dsp1:2"] = false
	s.HandleNetworkData(nd)
	if !conn.subscriptions[endpoint{"dsp1:2", data.DspNode}] {
		t.Fatal("subscription should be retried on the next snapshot")
	}
}
