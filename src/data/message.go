package data

import (
	"bytes"
	"fmt"

	"github.com/cotinet/cotinode/src/common"
	"github.com/ugorji/go/codec"
)

// MessageClass names the concrete type of a Propagatable.
type MessageClass string

// Known message classes.
const (
	TransactionDataClass    MessageClass = "TransactionData"
	AddressDataClass        MessageClass = "AddressData"
	NetworkDataClass        MessageClass = "NetworkData"
	NetworkNodeDataClass    MessageClass = "NetworkNodeData"
	DspVoteClass            MessageClass = "DspVote"
	DspConsensusResultClass MessageClass = "DspConsensusResult"
)

// Propagatable is implemented by every message that travels between nodes.
type Propagatable interface {
	Class() MessageClass
	GetHash() common.Hash
}

var factories = map[MessageClass]func() Propagatable{
	TransactionDataClass:    func() Propagatable { return new(TransactionData) },
	AddressDataClass:        func() Propagatable { return new(AddressData) },
	NetworkDataClass:        func() Propagatable { return new(NetworkData) },
	NetworkNodeDataClass:    func() Propagatable { return new(NetworkNodeData) },
	DspVoteClass:            func() Propagatable { return new(DspVote) },
	DspConsensusResultClass: func() Propagatable { return new(DspConsensusResult) },
}

// IsKnownClass reports whether Unmarshal can decode class.
func IsKnownClass(class MessageClass) bool {
	_, ok := factories[class]
	return ok
}

func jsonHandle() *codec.JsonHandle {
	jh := new(codec.JsonHandle)
	jh.Canonical = true
	return jh
}

// Marshal - canonical json encoding of a message
func Marshal(msg Propagatable) ([]byte, error) {
	b := new(bytes.Buffer)
	enc := codec.NewEncoder(b, jsonHandle())
	if err := enc.Encode(msg); err != nil {
		return nil, err
	}
	return b.Bytes(), nil
}

// Unmarshal decodes a payload produced by Marshal into a new message of the
// given class.
func Unmarshal(class MessageClass, payload []byte) (Propagatable, error) {
	factory, ok := factories[class]
	if !ok {
		return nil, fmt.Errorf("unknown message class %s", class)
	}
	msg := factory()
	dec := codec.NewDecoder(bytes.NewBuffer(payload), jsonHandle())
	if err := dec.Decode(msg); err != nil {
		return nil, err
	}
	return msg, nil
}
