package node

import (
	"github.com/cotinet/cotinode/src/data"
	"github.com/cotinet/cotinode/src/pubsub"
)

// profile describes what a role binds, who it talks to, and whether it tracks
// the transactions it propagates.
type profile struct {
	// receives binds a Receiver
	receives bool
	// publishes starts a Publisher
	publishes bool
	// subscribes creates a Subscriber and follows the node manager
	subscribes bool
	// topology overrides the default subscriber topology
	topology pubsub.Topology
	// sendTo lists the receiver types this role connects Senders to
	sendTo []data.NodeType
	// tracks selects a propagation.Service rather than a NoopTracker
	tracks bool
	// trackBackPropagation lets echoed transactions clear the unconfirmed set
	trackBackPropagation bool
}

// recipients of the messages published by each role
var (
	transactionRecipients = []data.NodeType{
		data.FullNode,
		data.DspNode,
		data.TrustScoreNode,
		data.ZeroSpendServer,
		data.FinancialServer,
		data.StorageNode,
	}

	consensusRecipients = []data.NodeType{
		data.FullNode,
		data.DspNode,
		data.TrustScoreNode,
		data.FinancialServer,
		data.StorageNode,
	}

	networkRecipients = []data.NodeType{
		data.FullNode,
		data.DspNode,
		data.TrustScoreNode,
		data.ZeroSpendServer,
		data.FinancialServer,
		data.StorageNode,
	}
)

func zeroSpendTopology() pubsub.Topology {
	return pubsub.Topology{
		data.ZeroSpendServer: {data.TransactionDataClass, data.DspConsensusResultClass},
	}
}

var profiles = map[data.NodeType]profile{
	data.FullNode: {
		subscribes:           true,
		topology:             zeroSpendTopology(),
		sendTo:               []data.NodeType{data.DspNode},
		tracks:               true,
		trackBackPropagation: true,
	},
	data.DspNode: {
		receives:   true,
		publishes:  true,
		subscribes: true,
		topology:   zeroSpendTopology(),
		sendTo:     []data.NodeType{data.ZeroSpendServer},
		tracks:     true,
	},
	data.ZeroSpendServer: {
		receives:   true,
		publishes:  true,
		subscribes: true,
	},
	data.TrustScoreNode: {
		subscribes: true,
		topology: pubsub.Topology{
			data.ZeroSpendServer: {data.TransactionDataClass, data.DspConsensusResultClass},
			data.FinancialServer: {data.TransactionDataClass},
		},
	},
	data.FinancialServer: {
		subscribes: true,
		topology:   zeroSpendTopology(),
	},
	data.StorageNode: {
		subscribes: true,
		topology:   zeroSpendTopology(),
	},
	data.NodeManager: {
		receives:  true,
		publishes: true,
	},
}

// subscribeTo lists the publisher types followed through membership updates.
// The node manager is followed from configuration instead.
func (p profile) subscribeTo() []data.NodeType {
	if !p.subscribes {
		return nil
	}
	res := []data.NodeType{}
	for _, t := range pubsub.NewTopology(p.topology).PublisherTypes() {
		if t != data.NodeManager {
			res = append(res, t)
		}
	}
	return res
}
