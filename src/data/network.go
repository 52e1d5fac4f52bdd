package data

import (
	"crypto/ecdsa"
	"sort"

	"github.com/cotinet/cotinode/src/common"
	"github.com/cotinet/cotinode/src/crypto"
	"github.com/cotinet/cotinode/src/crypto/keys"
)

// NetworkNodeData describes one node of the network as registered with the
// node manager.
type NetworkNodeData struct {
	NodeType           NodeType
	PubKey             string
	ReceivingAddress   string
	PropagationAddress string
	Signature          string
}

// NewNetworkNodeData creates and signs a node registration.
func NewNetworkNodeData(key *ecdsa.PrivateKey, nodeType NodeType, receivingAddr, propagationAddr string) (*NetworkNodeData, error) {
	n := &NetworkNodeData{
		NodeType:           nodeType,
		PubKey:             keys.PublicKeyHex(&key.PublicKey),
		ReceivingAddress:   receivingAddr,
		PropagationAddress: propagationAddr,
	}
	sig, err := keys.SignHash(key, n.signedHash())
	if err != nil {
		return nil, err
	}
	n.Signature = sig
	return n, nil
}

func (n *NetworkNodeData) signedHash() common.Hash {
	return crypto.HashOf(
		[]byte(n.NodeType.String()),
		[]byte(n.PubKey),
		[]byte(n.ReceivingAddress),
		[]byte(n.PropagationAddress),
	)
}

// Verify checks that the registration was signed by PubKey.
func (n *NetworkNodeData) Verify() bool {
	return keys.VerifyHash(n.PubKey, n.signedHash(), n.Signature)
}

// Class implements Propagatable.
func (n *NetworkNodeData) Class() MessageClass {
	return NetworkNodeDataClass
}

// GetHash identifies a node by its public key.
func (n *NetworkNodeData) GetHash() common.Hash {
	return crypto.HashOf([]byte(n.PubKey))
}

// NetworkData is the full membership snapshot propagated by the node manager.
type NetworkData struct {
	Nodes []NetworkNodeData
}

// Class implements Propagatable.
func (d *NetworkData) Class() MessageClass {
	return NetworkDataClass
}

// GetHash returns a digest of the sorted member hashes.
func (d *NetworkData) GetHash() common.Hash {
	hashes := make([]common.Hash, 0, len(d.Nodes))
	for i := range d.Nodes {
		hashes = append(hashes, d.Nodes[i].GetHash())
	}
	sort.Slice(hashes, func(i, j int) bool { return hashes[i].Less(hashes[j]) })

	parts := make([][]byte, 0, len(hashes))
	for _, h := range hashes {
		parts = append(parts, h.Bytes())
	}
	return crypto.HashOf(parts...)
}

// ByType returns the members of the given type.
func (d *NetworkData) ByType(t NodeType) []NetworkNodeData {
	res := []NetworkNodeData{}
	for _, n := range d.Nodes {
		if n.NodeType == t {
			res = append(res, n)
		}
	}
	return res
}

// Single returns the first member of the given type, if any.
func (d *NetworkData) Single(t NodeType) (NetworkNodeData, bool) {
	for _, n := range d.Nodes {
		if n.NodeType == t {
			return n, true
		}
	}
	return NetworkNodeData{}, false
}
