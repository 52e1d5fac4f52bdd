package net

import (
	"errors"
	"net"
	"time"

	"github.com/cotinet/cotinode/src/data"
)

var (
	// ErrTransportShutdown is returned when operations on a Sender or Receiver
	// are invoked after it's been closed.
	ErrTransportShutdown = errors.New("transport shutdown")

	// ErrNotConnected is returned by Sender.Send for an address that was never
	// connected, or that has been disconnected.
	ErrNotConnected = errors.New("peer not connected")

	// ErrUnknownClass is reported back to a sender whose message class has no
	// handler on the receiving side.
	ErrUnknownClass = errors.New("unknown message class")
)

// Handler processes an inbound message. A non-nil error is reported back to
// the sender.
type Handler func(msg data.Propagatable) error

// Dialer opens outgoing connections.
type Dialer interface {
	Dial(address string, timeout time.Duration) (net.Conn, error)
}
