package pubsub

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cotinet/cotinode/src/data"
	"github.com/gammazero/nexus/v3/client"
	"github.com/gammazero/nexus/v3/wamp"
	"github.com/sirupsen/logrus"
)

// ErrTopologyViolation is logged for messages whose class is not allowed for
// the publisher type they claim.
var ErrTopologyViolation = errors.New("topology violation")

// Handler processes an accepted message. Errors are logged.
type Handler func(msg data.Propagatable) error

// ClientDialer opens a WAMP session with the router at addr.
type ClientDialer func(addr string, cfg client.Config) (*client.Client, error)

// DialWebsocket connects to a Publisher's websocket server.
func DialWebsocket(addr string, cfg client.Config) (*client.Client, error) {
	return client.ConnectNet(context.Background(), fmt.Sprintf("ws://%s/", addr), cfg)
}

// Subscription identifies one followed publisher.
type Subscription struct {
	Addr          string
	PublisherType data.NodeType
}

// Subscriber receives the messages of the publishers it follows, filters them
// through its Topology and dispatches the accepted ones to its handlers.
type Subscriber struct {
	sync.RWMutex

	realm    string
	ownType  data.NodeType
	topology Topology
	handlers map[data.MessageClass]Handler
	dial     ClientDialer
	timeout  time.Duration

	subscriptions map[Subscription]*client.Client

	logger *logrus.Entry
}

// NewSubscriber ...
func NewSubscriber(realm string, handlers map[data.MessageClass]Handler, timeout time.Duration, logger *logrus.Entry) *Subscriber {
	if logger == nil {
		logger = logrus.NewEntry(logrus.New())
	}

	hs := make(map[data.MessageClass]Handler, len(handlers))
	for c, h := range handlers {
		hs[c] = h
	}

	return &Subscriber{
		realm:         realm,
		topology:      Topology{},
		handlers:      hs,
		dial:          DialWebsocket,
		timeout:       timeout,
		subscriptions: make(map[Subscription]*client.Client),
		logger:        logger.WithField("component", "subscriber"),
	}
}

// SetOwnNodeType selects the topic prefix this node subscribes to.
func (s *Subscriber) SetOwnNodeType(t data.NodeType) {
	s.Lock()
	defer s.Unlock()
	s.ownType = t
}

// SetTopologyMap sets the classes accepted from each publisher type.
func (s *Subscriber) SetTopologyMap(t Topology) {
	s.Lock()
	defer s.Unlock()
	s.topology = t
}

// Topology returns the topology in use.
func (s *Subscriber) Topology() Topology {
	s.RLock()
	defer s.RUnlock()
	return s.topology
}

// SetDialer replaces the function used to reach publishers.
func (s *Subscriber) SetDialer(d ClientDialer) {
	s.Lock()
	defer s.Unlock()
	s.dial = d
}

// Subscribe follows the publisher of the given type at addr. Subscribing
// again to a publisher whose session is still up is a no-op; a lost session
// is replaced. The publisher is dialed without holding the Subscriber lock.
func (s *Subscriber) Subscribe(addr string, publisherType data.NodeType) error {
	key := Subscription{Addr: addr, PublisherType: publisherType}

	s.Lock()
	if cli, ok := s.subscriptions[key]; ok {
		if cli.Connected() {
			s.Unlock()
			return nil
		}
		delete(s.subscriptions, key)
		defer cli.Close()
	}
	realm, timeout, dial, ownType := s.realm, s.timeout, s.dial, s.ownType
	s.Unlock()

	logger := s.logger.WithFields(logrus.Fields{
		"addr":           addr,
		"publisher_type": publisherType,
	})

	cli, err := dial(addr, client.Config{
		Realm:           realm,
		ResponseTimeout: timeout,
		Logger:          logger.WithField("ns", "nexus-client"),
	})
	if err != nil {
		logger.WithError(err).Warn("Connecting to publisher")
		return err
	}

	handler := func(event *wamp.Event) {
		s.onEvent(key, event)
	}

	options := wamp.Dict{wamp.OptMatch: wamp.MatchPrefix}
	if err := cli.Subscribe(TopicPrefix(ownType), handler, options); err != nil {
		cli.Close()
		logger.WithError(err).Warn("Subscribing")
		return err
	}

	s.Lock()
	if other, ok := s.subscriptions[key]; ok && other.Connected() {
		// a concurrent Subscribe won
		s.Unlock()
		cli.Close()
		return nil
	}
	s.subscriptions[key] = cli
	s.Unlock()

	logger.Debug("Subscribed")
	return nil
}

// Unsubscribe stops following the publisher. It is a no-op for unknown
// subscriptions.
func (s *Subscriber) Unsubscribe(addr string, publisherType data.NodeType) error {
	key := Subscription{Addr: addr, PublisherType: publisherType}

	s.Lock()
	cli, ok := s.subscriptions[key]
	delete(s.subscriptions, key)
	s.Unlock()

	if !ok {
		return nil
	}

	s.logger.WithFields(logrus.Fields{
		"addr":           addr,
		"publisher_type": publisherType,
	}).Debug("Unsubscribed")

	return cli.Close()
}

// Subscriptions lists the publishers currently followed.
func (s *Subscriber) Subscriptions() []Subscription {
	s.RLock()
	defer s.RUnlock()

	res := make([]Subscription, 0, len(s.subscriptions))
	for k := range s.subscriptions {
		res = append(res, k)
	}
	return res
}

// Close drops every subscription.
func (s *Subscriber) Close() error {
	for _, sub := range s.Subscriptions() {
		s.Unsubscribe(sub.Addr, sub.PublisherType)
	}
	return nil
}

func (s *Subscriber) onEvent(sub Subscription, event *wamp.Event) {
	logger := s.logger.WithField("addr", sub.Addr)

	msg, publisherType, err := s.accept(sub, event.Arguments)
	if err != nil {
		logger.WithError(err).Warn("Rejected message")
		return
	}

	s.RLock()
	handler, ok := s.handlers[msg.Class()]
	s.RUnlock()

	if !ok {
		logger.WithField("class", msg.Class()).Warn("No handler for message class, dropping")
		return
	}

	if err := handler(msg); err != nil {
		logger.WithError(err).WithFields(logrus.Fields{
			"class":          msg.Class(),
			"publisher_type": publisherType,
			"hash":           msg.GetHash(),
		}).Warn("Handling message")
	}
}

// accept decodes the event arguments and enforces the topology.
func (s *Subscriber) accept(sub Subscription, args wamp.List) (data.Propagatable, data.NodeType, error) {
	if len(args) != 3 {
		return nil, data.UndefinedNode, fmt.Errorf("event should contain 3 arguments, not %d", len(args))
	}

	rawType, ok1 := wamp.AsString(args[0])
	rawClass, ok2 := wamp.AsString(args[1])
	payload, ok3 := wamp.AsString(args[2])
	if !ok1 || !ok2 || !ok3 {
		return nil, data.UndefinedNode, errors.New("malformed event arguments")
	}

	publisherType, err := data.ParseNodeType(rawType)
	if err != nil {
		return nil, data.UndefinedNode, err
	}
	class := data.MessageClass(rawClass)

	if publisherType != sub.PublisherType {
		return nil, publisherType, fmt.Errorf("%w: %s claims to be %s", ErrTopologyViolation, sub.PublisherType, publisherType)
	}

	if !s.Topology().Allows(publisherType, class) {
		return nil, publisherType, fmt.Errorf("%w: %s may not publish %s", ErrTopologyViolation, publisherType, class)
	}

	msg, err := data.Unmarshal(class, []byte(payload))
	if err != nil {
		return nil, publisherType, err
	}

	return msg, publisherType, nil
}
