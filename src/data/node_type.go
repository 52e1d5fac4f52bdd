package data

import "fmt"

// NodeType is the role a node plays in the network.
type NodeType uint8

const (
	// UndefinedNode is the zero value
	UndefinedNode NodeType = iota
	// FullNode serves wallets and forwards their transactions to DSP nodes
	FullNode
	// DspNode validates transactions and votes on them
	DspNode
	// TrustScoreNode computes trust scores
	TrustScoreNode
	// ZeroSpendServer creates genesis transactions and aggregates DSP votes
	ZeroSpendServer
	// NodeManager tracks network membership
	NodeManager
	// FinancialServer handles disputes and fund distribution
	FinancialServer
	// StorageNode archives transactions and addresses
	StorageNode
)

var nodeTypeNames = []string{
	"UndefinedNode",
	"FullNode",
	"DspNode",
	"TrustScoreNode",
	"ZeroSpendServer",
	"NodeManager",
	"FinancialServer",
	"StorageNode",
}

// AllNodeTypes lists every defined role, in declaration order.
var AllNodeTypes = []NodeType{
	FullNode,
	DspNode,
	TrustScoreNode,
	ZeroSpendServer,
	NodeManager,
	FinancialServer,
	StorageNode,
}

// String returns the string representation of NodeType
func (t NodeType) String() string {
	if int(t) < len(nodeTypeNames) {
		return nodeTypeNames[t]
	}
	return fmt.Sprintf("NodeType(%d)", uint8(t))
}

// ParseNodeType is the inverse of NodeType.String.
func ParseNodeType(s string) (NodeType, error) {
	for i, name := range nodeTypeNames {
		if i > 0 && name == s {
			return NodeType(i), nil
		}
	}
	return UndefinedNode, fmt.Errorf("unknown node type %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (t NodeType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *NodeType) UnmarshalText(text []byte) error {
	parsed, err := ParseNodeType(string(text))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}
