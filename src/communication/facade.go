// Package communication composes the point-to-point and broadcast endpoints
// of a node behind a single surface used at startup and on membership
// changes.
package communication

import (
	"fmt"
	"time"

	"github.com/cotinet/cotinode/src/data"
	"github.com/cotinet/cotinode/src/net"
	"github.com/cotinet/cotinode/src/pubsub"
	"github.com/sirupsen/logrus"
)

// Config holds the parameters shared by the endpoints.
type Config struct {
	// Realm is the WAMP realm of publishers and subscribers.
	Realm string
	// AdvertiseAddr is how this node's Receiver identifies itself to peers,
	// and how Senders identify this node to receivers.
	AdvertiseAddr string
	// NodeType is the role of this node.
	NodeType data.NodeType
	// Timeout applies to point-to-point I/O and WAMP calls.
	Timeout time.Duration
	// MaxPool is the number of idle connections kept per Sender target.
	MaxPool int
}

// Facade owns the Sender, Receiver, Publisher and Subscriber of a node. The
// Receiver, Publisher and Subscriber only exist once initialized.
type Facade struct {
	conf Config

	sender     *net.Sender
	receiver   *net.Receiver
	publisher  *pubsub.Publisher
	subscriber *pubsub.Subscriber

	logger *logrus.Entry
}

// NewFacade creates a facade with a TCP Sender.
func NewFacade(conf Config, logger *logrus.Entry) *Facade {
	return NewFacadeWithDialer(conf, net.TCPDialer{}, logger)
}

// NewFacadeWithDialer creates a facade whose Sender uses dialer.
func NewFacadeWithDialer(conf Config, dialer net.Dialer, logger *logrus.Entry) *Facade {
	if logger == nil {
		logger = logrus.NewEntry(logrus.New())
	}

	return &Facade{
		conf:   conf,
		sender: net.NewSender(dialer, conf.AdvertiseAddr, conf.NodeType, conf.MaxPool, conf.Timeout, logger),
		logger: logger.WithField("component", "communication"),
	}
}

// InitReceiver binds the Receiver on bindAddr.
func (f *Facade) InitReceiver(bindAddr string, handlers map[data.MessageClass]net.Handler) error {
	f.receiver = net.NewReceiver(f.logger)
	if err := f.receiver.Bind(bindAddr, f.conf.AdvertiseAddr, handlers); err != nil {
		f.receiver = nil
		return fmt.Errorf("binding receiver on %s: %w", bindAddr, err)
	}
	if f.conf.AdvertiseAddr == "" {
		f.sender.SetFrom(f.receiver.AdvertiseAddr())
	}
	return nil
}

// InitPublisher starts the Publisher on bindAddr.
func (f *Facade) InitPublisher(bindAddr string) error {
	f.publisher = pubsub.NewPublisher(f.conf.Realm, f.logger)
	if err := f.publisher.Init(bindAddr, f.conf.NodeType); err != nil {
		f.publisher = nil
		return fmt.Errorf("starting publisher on %s: %w", bindAddr, err)
	}
	return nil
}

// InitSubscriber creates the Subscriber. Its topology is overrides completed
// with the network-wide defaults.
func (f *Facade) InitSubscriber(overrides pubsub.Topology, handlers map[data.MessageClass]pubsub.Handler) {
	f.subscriber = pubsub.NewSubscriber(f.conf.Realm, handlers, f.conf.Timeout, f.logger)
	f.subscriber.SetOwnNodeType(f.conf.NodeType)
	f.subscriber.SetTopologyMap(pubsub.NewTopology(overrides))
}

// AddSender connects the Sender to a receiver.
func (f *Facade) AddSender(addr string, nodeType data.NodeType) error {
	f.logger.WithFields(logrus.Fields{
		"addr":      addr,
		"node_type": nodeType,
	}).Info("Adding sender")
	return f.sender.Connect(addr)
}

// RemoveSender disconnects the Sender from a receiver.
func (f *Facade) RemoveSender(addr string, nodeType data.NodeType) {
	f.logger.WithFields(logrus.Fields{
		"addr":      addr,
		"node_type": nodeType,
	}).Info("Removing sender")
	f.sender.Disconnect(addr, nodeType)
}

// AddSubscription follows a publisher.
func (f *Facade) AddSubscription(addr string, publisherType data.NodeType) error {
	if f.subscriber == nil {
		return fmt.Errorf("subscriber not initialized")
	}
	f.logger.WithFields(logrus.Fields{
		"addr":           addr,
		"publisher_type": publisherType,
	}).Info("Adding subscription")
	return f.subscriber.Subscribe(addr, publisherType)
}

// RemoveSubscription stops following a publisher.
func (f *Facade) RemoveSubscription(addr string, publisherType data.NodeType) error {
	if f.subscriber == nil {
		return nil
	}
	f.logger.WithFields(logrus.Fields{
		"addr":           addr,
		"publisher_type": publisherType,
	}).Info("Removing subscription")
	return f.subscriber.Unsubscribe(addr, publisherType)
}

// Send delivers msg to the receiver at addr.
func (f *Facade) Send(addr string, msg data.Propagatable) error {
	return f.sender.Send(addr, msg)
}

// Publish broadcasts msg to the given recipient types.
func (f *Facade) Publish(msg data.Propagatable, recipients ...data.NodeType) error {
	if f.publisher == nil {
		return pubsub.ErrNotInitialized
	}
	return f.publisher.Publish(msg, recipients...)
}

// Sender returns the Sender.
func (f *Facade) Sender() *net.Sender { return f.sender }

// Receiver returns the Receiver, or nil.
func (f *Facade) Receiver() *net.Receiver { return f.receiver }

// Publisher returns the Publisher, or nil.
func (f *Facade) Publisher() *pubsub.Publisher { return f.publisher }

// Subscriber returns the Subscriber, or nil.
func (f *Facade) Subscriber() *pubsub.Subscriber { return f.subscriber }

// ReceiverAddr returns the advertised address of the Receiver, or "".
func (f *Facade) ReceiverAddr() string {
	if f.receiver == nil {
		return ""
	}
	return f.receiver.AdvertiseAddr()
}

// PublisherAddr returns the address of the Publisher, or "".
func (f *Facade) PublisherAddr() string {
	if f.publisher == nil {
		return ""
	}
	return f.publisher.Addr()
}

// Close shuts every endpoint down.
func (f *Facade) Close() {
	if f.subscriber != nil {
		f.subscriber.Close()
	}
	if f.publisher != nil {
		f.publisher.Close()
	}
	if f.receiver != nil {
		f.receiver.Close()
	}
	f.sender.Close()
}
