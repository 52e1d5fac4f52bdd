package net

import (
	"bufio"
	"math"
	"net"

	"github.com/cotinet/cotinode/src/data"
	"github.com/ugorji/go/codec"
)

const (
	bufSize = math.MaxUint16
)

// Envelope is the frame exchanged between a Sender and a Receiver. Payload is
// the data.Marshal encoding of a message of the given Class.
type Envelope struct {
	Class    data.MessageClass
	From     string
	NodeType data.NodeType
	Payload  []byte
}

// NewEnvelope ...
func NewEnvelope(from string, nodeType data.NodeType, msg data.Propagatable) (*Envelope, error) {
	payload, err := data.Marshal(msg)
	if err != nil {
		return nil, err
	}
	return &Envelope{
		Class:    msg.Class(),
		From:     from,
		NodeType: nodeType,
		Payload:  payload,
	}, nil
}

// Message decodes the payload.
func (e *Envelope) Message() (data.Propagatable, error) {
	return data.Unmarshal(e.Class, e.Payload)
}

var msgpackHandle = &codec.MsgpackHandle{}

// netConn wraps a connection with buffered msgpack streams. Every envelope is
// answered with an error string, empty on success.
type netConn struct {
	target string
	conn   net.Conn
	r      *bufio.Reader
	w      *bufio.Writer
	dec    *codec.Decoder
	enc    *codec.Encoder
}

func newNetConn(target string, conn net.Conn) *netConn {
	c := &netConn{
		target: target,
		conn:   conn,
		r:      bufio.NewReaderSize(conn, bufSize),
		w:      bufio.NewWriterSize(conn, bufSize),
	}
	c.dec = codec.NewDecoder(c.r, msgpackHandle)
	c.enc = codec.NewEncoder(c.w, msgpackHandle)
	return c
}

// Release closes the underlying connection
func (n *netConn) Release() error {
	return n.conn.Close()
}

func (n *netConn) writeEnvelope(env *Envelope) error {
	if err := n.enc.Encode(env); err != nil {
		return err
	}
	return n.w.Flush()
}

func (n *netConn) readEnvelope() (*Envelope, error) {
	var env Envelope
	if err := n.dec.Decode(&env); err != nil {
		return nil, err
	}
	return &env, nil
}

func (n *netConn) writeResponse(respErr error) error {
	msg := ""
	if respErr != nil {
		msg = respErr.Error()
	}
	if err := n.enc.Encode(msg); err != nil {
		return err
	}
	return n.w.Flush()
}

func (n *netConn) readResponse() (string, error) {
	var msg string
	if err := n.dec.Decode(&msg); err != nil {
		return "", err
	}
	return msg, nil
}
