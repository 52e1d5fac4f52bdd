package node

import (
	"sync"

	"github.com/cotinet/cotinode/src/data"
	"github.com/sirupsen/logrus"
)

// endpoint is one side of a connection maintained for a peer.
type endpoint struct {
	Addr     string
	NodeType data.NodeType
}

// connector is the part of the communication facade driven by membership
// changes.
type connector interface {
	AddSender(addr string, nodeType data.NodeType) error
	RemoveSender(addr string, nodeType data.NodeType)
	AddSubscription(addr string, publisherType data.NodeType) error
	RemoveSubscription(addr string, publisherType data.NodeType) error
}

// NetworkService keeps the connections of a node in line with the membership
// published by the node manager. Senders follow the receivers of the types in
// sendTo; subscriptions follow the publishers of the types in subscribeTo.
type NetworkService struct {
	sync.RWMutex

	self        string
	sendTo      []data.NodeType
	subscribeTo []data.NodeType
	comm        connector

	network       data.NetworkData
	senders       map[endpoint]bool
	subscriptions map[endpoint]bool

	logger *logrus.Entry
}

// NewNetworkService creates a NetworkService for the node identified by the
// public key self, which is never connected to.
func NewNetworkService(
	self string,
	sendTo []data.NodeType,
	subscribeTo []data.NodeType,
	comm connector,
	logger *logrus.Entry,
) *NetworkService {
	return &NetworkService{
		self:          self,
		sendTo:        sendTo,
		subscribeTo:   subscribeTo,
		comm:          comm,
		senders:       make(map[endpoint]bool),
		subscriptions: make(map[endpoint]bool),
		logger:        logger.WithField("component", "network"),
	}
}

func contains(types []data.NodeType, t data.NodeType) bool {
	for _, x := range types {
		if x == t {
			return true
		}
	}
	return false
}

// desired computes the endpoints nd calls for.
func (s *NetworkService) desired(nd *data.NetworkData) (senders, subscriptions map[endpoint]bool) {
	senders = make(map[endpoint]bool)
	subscriptions = make(map[endpoint]bool)

	for _, n := range nd.Nodes {
		if n.PubKey == s.self {
			continue
		}
		if contains(s.sendTo, n.NodeType) && n.ReceivingAddress != "" {
			senders[endpoint{n.ReceivingAddress, n.NodeType}] = true
		}
		if contains(s.subscribeTo, n.NodeType) && n.PropagationAddress != "" {
			subscriptions[endpoint{n.PropagationAddress, n.NodeType}] = true
		}
	}
	return senders, subscriptions
}

// HandleNetworkData applies a membership snapshot: connections to departed
// nodes are dropped and connections to new nodes are opened. Failed
// subscriptions are retried on the next snapshot.
func (s *NetworkService) HandleNetworkData(nd *data.NetworkData) error {
	s.Lock()
	defer s.Unlock()

	senders, subscriptions := s.desired(nd)

	for e := range s.senders {
		if !senders[e] {
			s.comm.RemoveSender(e.Addr, e.NodeType)
			delete(s.senders, e)
		}
	}
	for e := range senders {
		if s.senders[e] {
			continue
		}
		// the address stays registered with the Sender even if the dial
		// fails, so it is tracked here too
		if err := s.comm.AddSender(e.Addr, e.NodeType); err != nil {
			s.logger.WithError(err).WithField("addr", e.Addr).Warn("Adding sender")
		}
		s.senders[e] = true
	}

	for e := range s.subscriptions {
		if !subscriptions[e] {
			if err := s.comm.RemoveSubscription(e.Addr, e.NodeType); err != nil {
				s.logger.WithError(err).WithField("addr", e.Addr).Warn("Removing subscription")
			}
			delete(s.subscriptions, e)
		}
	}
	for e := range subscriptions {
		if s.subscriptions[e] {
			continue
		}
		if err := s.comm.AddSubscription(e.Addr, e.NodeType); err != nil {
			s.logger.WithError(err).WithField("addr", e.Addr).Warn("Adding subscription")
			continue
		}
		s.subscriptions[e] = true
	}

	s.network = data.NetworkData{Nodes: append([]data.NetworkNodeData(nil), nd.Nodes...)}

	s.logger.WithFields(logrus.Fields{
		"nodes":         len(nd.Nodes),
		"senders":       len(s.senders),
		"subscriptions": len(s.subscriptions),
	}).Debug("Network updated")

	return nil
}

// Receivers returns the addresses of the connected receivers of type t.
func (s *NetworkService) Receivers(t data.NodeType) []string {
	s.RLock()
	defer s.RUnlock()

	res := []string{}
	for e := range s.senders {
		if e.NodeType == t {
			res = append(res, e.Addr)
		}
	}
	return res
}

// Network returns the last applied snapshot.
func (s *NetworkService) Network() data.NetworkData {
	s.RLock()
	defer s.RUnlock()
	return data.NetworkData{Nodes: append([]data.NetworkNodeData(nil), s.network.Nodes...)}
}
