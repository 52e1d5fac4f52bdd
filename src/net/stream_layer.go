package net

import (
	"net"
)

// StreamLayer is used by the Receiver to provide the low level stream
// abstraction. It can also dial, so the same layer can serve a Sender.
type StreamLayer interface {
	net.Listener
	Dialer

	// AdvertiseAddr returns the publicly-reachable address of the stream
	AdvertiseAddr() string
}
