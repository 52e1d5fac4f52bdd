package node

import (
	"sort"
	"sync"

	"github.com/cotinet/cotinode/src/data"
)

// membership is the node manager's registry of active nodes, keyed by public
// key.
type membership struct {
	sync.RWMutex
	nodes map[string]data.NetworkNodeData
}

func newMembership() *membership {
	return &membership{
		nodes: make(map[string]data.NetworkNodeData),
	}
}

// register adds or updates a node and reports whether the membership changed.
func (m *membership) register(n data.NetworkNodeData) bool {
	m.Lock()
	defer m.Unlock()

	old, ok := m.nodes[n.PubKey]
	if ok && old.NodeType == n.NodeType &&
		old.ReceivingAddress == n.ReceivingAddress &&
		old.PropagationAddress == n.PropagationAddress {
		return false
	}
	m.nodes[n.PubKey] = n
	return true
}

// remove drops a node and reports whether it was registered.
func (m *membership) remove(pubKey string) bool {
	m.Lock()
	defer m.Unlock()

	if _, ok := m.nodes[pubKey]; !ok {
		return false
	}
	delete(m.nodes, pubKey)
	return true
}

// snapshot returns the members sorted by public key.
func (m *membership) snapshot() *data.NetworkData {
	m.RLock()
	defer m.RUnlock()

	nodes := make([]data.NetworkNodeData, 0, len(m.nodes))
	for _, n := range m.nodes {
		nodes = append(nodes, n)
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].PubKey < nodes[j].PubKey })

	return &data.NetworkData{Nodes: nodes}
}
