package net

import (
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/cotinet/cotinode/src/data"
	"github.com/sirupsen/logrus"
)

// Receiver accepts connections from Senders and dispatches each inbound
// message to the Handler registered for its class. Every peer that delivers
// a well-formed message is recorded in the connected-nodes table.
type Receiver struct {
	logger *logrus.Entry

	stream   StreamLayer
	handlers map[data.MessageClass]Handler

	connected     map[string]data.ConnectedNodeData
	connectedLock sync.RWMutex

	now func() time.Time

	shutdown     bool
	shutdownCh   chan struct{}
	shutdownLock sync.Mutex
	wg           sync.WaitGroup
}

// NewReceiver ...
func NewReceiver(logger *logrus.Entry) *Receiver {
	if logger == nil {
		log := logrus.New()
		log.Level = logrus.DebugLevel
		logger = logrus.NewEntry(log)
	}

	return &Receiver{
		logger:     logger.WithField("component", "receiver"),
		connected:  make(map[string]data.ConnectedNodeData),
		now:        time.Now,
		shutdownCh: make(chan struct{}),
	}
}

// Bind opens a TCP listener on bindAddr and starts serving the handlers.
func (r *Receiver) Bind(bindAddr string, advertise string, handlers map[data.MessageClass]Handler) error {
	stream, err := NewTCPStreamLayer(bindAddr, advertise)
	if err != nil {
		return err
	}
	r.BindStream(stream, handlers)
	return nil
}

// BindStream starts serving the handlers on an existing StreamLayer. The
// Receiver takes ownership of the stream.
func (r *Receiver) BindStream(stream StreamLayer, handlers map[data.MessageClass]Handler) {
	r.stream = stream
	r.handlers = make(map[data.MessageClass]Handler, len(handlers))
	for class, h := range handlers {
		r.handlers[class] = h
	}

	r.wg.Add(1)
	go r.listen()

	r.logger.WithField("addr", stream.AdvertiseAddr()).Debug("Receiver bound")
}

// AdvertiseAddr returns the address Senders should connect to.
func (r *Receiver) AdvertiseAddr() string {
	if r.stream == nil {
		return ""
	}
	return r.stream.AdvertiseAddr()
}

// ConnectedNodes returns a snapshot of the peers seen so far, keyed by their
// declared address.
func (r *Receiver) ConnectedNodes() map[string]data.ConnectedNodeData {
	r.connectedLock.RLock()
	defer r.connectedLock.RUnlock()

	res := make(map[string]data.ConnectedNodeData, len(r.connected))
	for k, v := range r.connected {
		res[k] = v
	}
	return res
}

// Close stops accepting connections. Connections being served are closed.
func (r *Receiver) Close() error {
	r.shutdownLock.Lock()
	if r.shutdown {
		r.shutdownLock.Unlock()
		return nil
	}
	close(r.shutdownCh)
	r.shutdown = true
	r.shutdownLock.Unlock()

	var err error
	if r.stream != nil {
		err = r.stream.Close()
	}
	r.wg.Wait()
	return err
}

// IsShutdown is used to check if the Receiver is closed.
func (r *Receiver) IsShutdown() bool {
	select {
	case <-r.shutdownCh:
		return true
	default:
		return false
	}
}

func (r *Receiver) listen() {
	defer r.wg.Done()

	for {
		// Accept incoming connections
		conn, err := r.stream.Accept()
		if err != nil {
			if r.IsShutdown() {
				return
			}
			r.logger.WithError(err).Error("Failed to accept connection")
			continue
		}
		r.logger.WithFields(logrus.Fields{
			"node": conn.LocalAddr(),
			"from": conn.RemoteAddr(),
		}).Debug("Accepted connection")

		// Handle the connection in dedicated routine
		r.wg.Add(1)
		go r.handleConn(conn)
	}
}

// handleConn is used to handle an inbound connection for its lifespan.
func (r *Receiver) handleConn(conn net.Conn) {
	defer r.wg.Done()
	defer conn.Close()

	// unblock the decoder on shutdown
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-r.shutdownCh:
			conn.Close()
		case <-done:
		}
	}()

	nc := newNetConn(conn.RemoteAddr().String(), conn)

	for {
		env, err := nc.readEnvelope()
		if err != nil {
			if err != io.EOF && !r.IsShutdown() {
				r.logger.WithError(err).Error("Failed to decode incoming message")
			}
			return
		}

		if err := nc.writeResponse(r.dispatch(nc.target, env)); err != nil {
			r.logger.WithError(err).Error("Failed to write response")
			return
		}
	}
}

// dispatch decodes env and hands it to its handler. Peers that do not declare
// an address are recorded under their remote address.
func (r *Receiver) dispatch(remote string, env *Envelope) error {
	logger := r.logger.WithFields(logrus.Fields{
		"class": env.Class,
		"from":  env.From,
	})

	handler, ok := r.handlers[env.Class]
	if !ok || !data.IsKnownClass(env.Class) {
		logger.Warn("No handler for message class, dropping")
		return fmt.Errorf("%w: %s", ErrUnknownClass, env.Class)
	}

	msg, err := env.Message()
	if err != nil {
		logger.WithError(err).Warn("Malformed message")
		return err
	}

	from := env.From
	if from == "" {
		from = remote
	}

	r.connectedLock.Lock()
	r.connected[from] = data.ConnectedNodeData{
		NodeType:           env.NodeType,
		LastConnectionTime: r.now(),
	}
	r.connectedLock.Unlock()

	if err := handler(msg); err != nil {
		logger.WithError(err).Debug("Handler rejected message")
		return err
	}
	return nil
}
