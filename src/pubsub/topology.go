package pubsub

import (
	"fmt"

	"github.com/cotinet/cotinode/src/data"
)

// Topology maps a publisher node type to the message classes a subscriber
// accepts from it. It is not modified after construction.
type Topology map[data.NodeType][]data.MessageClass

// DefaultTopology returns the network-wide defaults.
func DefaultTopology() Topology {
	return Topology{
		data.NodeManager: {data.NetworkDataClass},
		data.DspNode:     {data.TransactionDataClass, data.AddressDataClass},
	}
}

// NewTopology returns overrides completed with the defaults for every
// publisher type overrides does not mention.
func NewTopology(overrides Topology) Topology {
	res := make(Topology, len(overrides))
	for t, classes := range overrides {
		res[t] = append([]data.MessageClass(nil), classes...)
	}
	for t, classes := range DefaultTopology() {
		if _, ok := res[t]; !ok {
			res[t] = classes
		}
	}
	return res
}

// Allows reports whether class may be emitted by publisherType.
func (t Topology) Allows(publisherType data.NodeType, class data.MessageClass) bool {
	for _, c := range t[publisherType] {
		if c == class {
			return true
		}
	}
	return false
}

// PublisherTypes lists the publisher types with at least one allowed class.
func (t Topology) PublisherTypes() []data.NodeType {
	res := []data.NodeType{}
	for _, nt := range data.AllNodeTypes {
		if len(t[nt]) > 0 {
			res = append(res, nt)
		}
	}
	return res
}

const topicRoot = "propagation"

// Topic is the WAMP topic a message of class is published on, from publisher
// to recipient.
func Topic(recipient, publisher data.NodeType, class data.MessageClass) string {
	return fmt.Sprintf("%s.%s.%s.%s", topicRoot, recipient, publisher, class)
}

// TopicPrefix is the prefix covering every message addressed to recipient.
func TopicPrefix(recipient data.NodeType) string {
	return fmt.Sprintf("%s.%s.", topicRoot, recipient)
}
