package net

import (
	"errors"
	"sync"
	"time"

	"github.com/cotinet/cotinode/src/data"
	"github.com/sirupsen/logrus"
)

// Sender delivers messages point-to-point to the Receivers of connected
// peers. Each Send waits for the receiver's acknowledgement, so a nil error
// means the peer handled the message.
//
// Connections are pooled per address; maxPool controls how many idle
// connections are kept per target. The timeout is used to apply I/O deadlines.
type Sender struct {
	logger *logrus.Entry

	from     string
	nodeType data.NodeType

	dialer  Dialer
	timeout time.Duration

	peers     map[string]struct{}
	peersLock sync.RWMutex

	connPool     map[string][]*netConn
	connPoolLock sync.Mutex
	maxPool      int

	shutdown     bool
	shutdownCh   chan struct{}
	shutdownLock sync.Mutex
}

// NewSender creates a Sender that identifies itself to receivers as from,
// with the given node type.
func NewSender(
	dialer Dialer,
	from string,
	nodeType data.NodeType,
	maxPool int,
	timeout time.Duration,
	logger *logrus.Entry,
) *Sender {

	if logger == nil {
		log := logrus.New()
		log.Level = logrus.DebugLevel
		logger = logrus.NewEntry(log)
	}

	return &Sender{
		logger:     logger.WithField("component", "sender"),
		from:       from,
		nodeType:   nodeType,
		dialer:     dialer,
		timeout:    timeout,
		peers:      make(map[string]struct{}),
		connPool:   make(map[string][]*netConn),
		maxPool:    maxPool,
		shutdownCh: make(chan struct{}),
	}
}

// SetFrom changes the address this Sender declares to receivers. It must not
// be called concurrently with Send.
func (s *Sender) SetFrom(from string) {
	s.from = from
}

// Connect registers addr as a destination and dials it. The address stays
// registered even if the dial fails; later Sends redial it.
func (s *Sender) Connect(addr string) error {
	if s.IsShutdown() {
		return ErrTransportShutdown
	}

	s.peersLock.Lock()
	s.peers[addr] = struct{}{}
	s.peersLock.Unlock()

	conn, err := s.dial(addr)
	if err != nil {
		s.logger.WithError(err).WithField("addr", addr).Warn("Connecting")
		return err
	}
	s.returnConn(conn)

	s.logger.WithField("addr", addr).Debug("Connected")
	return nil
}

// Disconnect unregisters addr and closes its pooled connections.
func (s *Sender) Disconnect(addr string, nodeType data.NodeType) {
	s.peersLock.Lock()
	delete(s.peers, addr)
	s.peersLock.Unlock()

	s.connPoolLock.Lock()
	conns := s.connPool[addr]
	delete(s.connPool, addr)
	s.connPoolLock.Unlock()

	for _, c := range conns {
		c.Release()
	}

	s.logger.WithFields(logrus.Fields{
		"addr":      addr,
		"node_type": nodeType,
	}).Debug("Disconnected")
}

// IsConnected reports whether addr is registered.
func (s *Sender) IsConnected(addr string) bool {
	s.peersLock.RLock()
	defer s.peersLock.RUnlock()
	_, ok := s.peers[addr]
	return ok
}

// Peers returns the registered addresses.
func (s *Sender) Peers() []string {
	s.peersLock.RLock()
	defer s.peersLock.RUnlock()

	res := make([]string, 0, len(s.peers))
	for addr := range s.peers {
		res = append(res, addr)
	}
	return res
}

// Send delivers msg to the receiver at addr and waits for its answer.
func (s *Sender) Send(addr string, msg data.Propagatable) error {
	if s.IsShutdown() {
		return ErrTransportShutdown
	}
	if !s.IsConnected(addr) {
		return ErrNotConnected
	}

	env, err := NewEnvelope(s.from, s.nodeType, msg)
	if err != nil {
		return err
	}

	conn, pooled, err := s.getConn(addr)
	if err != nil {
		return err
	}

	resp, err := s.roundTrip(conn, env)
	if err != nil && pooled {
		// the peer may have dropped an idle connection
		if conn, err = s.dial(addr); err != nil {
			return err
		}
		resp, err = s.roundTrip(conn, env)
	}
	if err != nil {
		return err
	}

	if resp != "" {
		return errors.New(resp)
	}
	return nil
}

// roundTrip writes env and reads the answer. The connection is released on
// failure and returned to the pool otherwise.
func (s *Sender) roundTrip(conn *netConn, env *Envelope) (string, error) {
	if s.timeout > 0 {
		conn.conn.SetDeadline(time.Now().Add(s.timeout))
	}

	if err := conn.writeEnvelope(env); err != nil {
		conn.Release()
		return "", err
	}

	resp, err := conn.readResponse()
	if err != nil {
		conn.Release()
		return "", err
	}

	s.returnConn(conn)
	return resp, nil
}

// Close is used to stop the Sender.
func (s *Sender) Close() error {
	s.shutdownLock.Lock()
	defer s.shutdownLock.Unlock()

	if s.shutdown {
		return nil
	}
	close(s.shutdownCh)
	s.shutdown = true

	s.connPoolLock.Lock()
	for addr, conns := range s.connPool {
		for _, c := range conns {
			c.Release()
		}
		delete(s.connPool, addr)
	}
	s.connPoolLock.Unlock()

	return nil
}

// IsShutdown is used to check if the Sender is closed.
func (s *Sender) IsShutdown() bool {
	select {
	case <-s.shutdownCh:
		return true
	default:
		return false
	}
}

func (s *Sender) dial(target string) (*netConn, error) {
	conn, err := s.dialer.Dial(target, s.timeout)
	if err != nil {
		return nil, err
	}
	return newNetConn(target, conn), nil
}

// getPooledConn is used to grab a pooled connection.
func (s *Sender) getPooledConn(target string) *netConn {
	s.connPoolLock.Lock()
	defer s.connPoolLock.Unlock()

	conns, ok := s.connPool[target]
	if !ok || len(conns) == 0 {
		return nil
	}

	var conn *netConn
	num := len(conns)
	conn, conns[num-1] = conns[num-1], nil
	s.connPool[target] = conns[:num-1]
	return conn
}

// getConn is used to get a connection from the pool, dialing a new one if
// none is idle.
func (s *Sender) getConn(target string) (*netConn, bool, error) {
	if conn := s.getPooledConn(target); conn != nil {
		return conn, true, nil
	}
	conn, err := s.dial(target)
	return conn, false, err
}

// returnConn returns a connection back to the pool.
func (s *Sender) returnConn(conn *netConn) {
	s.connPoolLock.Lock()
	defer s.connPoolLock.Unlock()

	key := conn.target
	conns := s.connPool[key]

	if !s.IsShutdown() && s.IsConnected(key) && len(conns) < s.maxPool {
		s.connPool[key] = append(conns, conn)
	} else {
		conn.Release()
	}
}
