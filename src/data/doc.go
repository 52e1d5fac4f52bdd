// Package data defines the messages exchanged between nodes and the small
// records the propagation engine keeps about them.
//
// Every message that can travel over the Sender/Receiver or the
// Publisher/Subscriber fabric implements Propagatable. Its MessageClass is the
// routing key used by receivers to pick a handler and by subscribers to
// enforce the topology map. Payloads are encoded with Marshal and decoded with
// Unmarshal, which knows how to build every registered class.
package data
