// Package net implements the point-to-point half of the communication fabric.
//
// A Sender keeps a set of target addresses, each registered with the node type
// expected at that address, and a pool of TCP connections per target. Send
// fails with ErrNotConnected for any address that was not added with Connect.
//
// A Receiver binds a TCP listener and dispatches each incoming Envelope to the
// Handler registered for its message class. Every envelope is acknowledged
// with an empty string on success, or with the error text otherwise, so that
// the Sender's caller learns whether the remote node accepted the message.
// The Receiver also remembers the advertised address and node type of every
// node that has sent it something.
//
// Envelopes are msgpack-encoded. The payload inside an envelope is the
// canonical JSON form of the message, as defined in the data package.
//
// TCP
//
// To use the TCP transport, set the following configuration options in the
// Config object (cf config package):
//
// - BindAddr: the IP:PORT of the TCP socket that the Receiver binds to.
//
// - AdvertiseAddr: (optional) The address that is advertised to other nodes. If
// BindAddr is a local address not reachable by other peers, it is usefull to
// set AdvertiseAddr to the reachable public address.
package net
