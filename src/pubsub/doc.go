// Package pubsub implements the broadcast half of the communication fabric on
// top of WAMP.
//
// Every node that publishes hosts its own WAMP router. A Publisher emits each
// message once per recipient node type, on the topic
//
//	propagation.<recipient type>.<publisher type>.<message class>
//
// A Subscriber connects to the routers of the publishers it follows and
// subscribes to the prefix propagation.<own type>. Before a message reaches a
// handler, the Subscriber checks the publisher type claimed by the message
// against its Topology: messages of a class that the claimed type is not
// allowed to emit are dropped.
package pubsub
