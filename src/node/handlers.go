package node

import (
	"errors"
	"fmt"

	"github.com/cotinet/cotinode/src/common"
	"github.com/cotinet/cotinode/src/data"
	"github.com/cotinet/cotinode/src/net"
	"github.com/cotinet/cotinode/src/propagation"
	"github.com/cotinet/cotinode/src/pubsub"
	"github.com/sirupsen/logrus"
)

var errNoReceivers = errors.New("no receiver connected")

func (n *Node) receiverHandlers() map[data.MessageClass]net.Handler {
	switch n.nodeType {
	case data.DspNode:
		return map[data.MessageClass]net.Handler{
			data.TransactionDataClass: n.onSubmittedTransaction,
		}
	case data.ZeroSpendServer:
		return map[data.MessageClass]net.Handler{
			data.DspVoteClass: n.onDspVote,
		}
	case data.NodeManager:
		return map[data.MessageClass]net.Handler{
			data.NetworkNodeDataClass: n.onRegistration,
		}
	}
	return nil
}

func (n *Node) subscriberHandlers() map[data.MessageClass]pubsub.Handler {
	return map[data.MessageClass]pubsub.Handler{
		data.TransactionDataClass:    n.onPropagatedTransaction,
		data.DspConsensusResultClass: n.onConsensusResult,
		data.AddressDataClass:        n.onAddress,
		data.NetworkDataClass: func(msg data.Propagatable) error {
			return n.network.HandleNetworkData(msg.(*data.NetworkData))
		},
	}
}

// resender re-propagates a transaction the way the role first propagated it:
// full nodes send it to the DSP nodes again, DSP nodes publish it again.
func (n *Node) resender() propagation.Resender {
	if n.nodeType == data.DspNode {
		return propagation.ResenderFunc(func(tx *data.TransactionData) error {
			return n.comm.Publish(tx, transactionRecipients...)
		})
	}
	return propagation.ResenderFunc(n.sendToDsps)
}

// saveTransaction stores tx unless it is already known. A known transaction
// is only updated to attach a consensus result it was missing. A new
// transaction picks up the consensus result that arrived before it, if any.
func (n *Node) saveTransaction(tx *data.TransactionData) (bool, error) {
	n.txLocks.Acquire(tx.Hash)
	defer n.txLocks.Release(tx.Hash)

	existing, err := n.store.GetTransaction(tx.Hash)
	switch {
	case err == nil:
		if tx.DspConsensusResult != nil && existing.DspConsensusResult == nil {
			existing.DspConsensusResult = tx.DspConsensusResult
			return false, n.store.SetTransaction(existing)
		}
		return false, nil
	case common.IsStore(err, common.KeyNotFound):
		if result, ok := n.orphanResults.Get(tx.Hash); ok && tx.DspConsensusResult == nil {
			tx.DspConsensusResult = result
			n.orphanResults.Remove(tx.Hash)
		}
		return true, n.store.SetTransaction(tx)
	default:
		return false, err
	}
}

// SubmitTransaction is the entry point of a full node for transactions signed
// by wallets. The transaction is stored, tracked until confirmed and sent to
// the DSP nodes.
func (n *Node) SubmitTransaction(tx *data.TransactionData) error {
	if n.nodeType != data.FullNode {
		return fmt.Errorf("%s nodes do not accept transactions", n.nodeType)
	}
	if err := data.VerifyTransaction(tx); err != nil {
		return err
	}

	isNew, err := n.saveTransaction(tx)
	if err != nil {
		return err
	}
	if !isNew {
		return nil
	}

	n.tracker.AddUnconfirmed(tx.Hash)

	// a failed send is retried by the sweep
	if err := n.sendToDsps(tx); err != nil {
		n.logger.WithError(err).WithField("hash", tx.Hash).Warn("Sending transaction to DSP nodes")
	}
	return nil
}

// sendToDsps succeeds if at least one DSP node accepted tx.
func (n *Node) sendToDsps(tx *data.TransactionData) error {
	receivers := n.network.Receivers(data.DspNode)
	if len(receivers) == 0 {
		return errNoReceivers
	}

	var lastErr error
	sent := 0
	for _, addr := range receivers {
		if err := n.comm.Send(addr, tx); err != nil {
			lastErr = err
			n.logger.WithError(err).WithField("addr", addr).Debug("Sending transaction")
			continue
		}
		sent++
	}
	if sent == 0 {
		return lastErr
	}
	return nil
}

// onSubmittedTransaction handles a transaction sent by a full node to a DSP
// node. New transactions are tracked, published and voted on.
func (n *Node) onSubmittedTransaction(msg data.Propagatable) error {
	tx := msg.(*data.TransactionData)
	if err := data.VerifyTransaction(tx); err != nil {
		return err
	}

	isNew, err := n.saveTransaction(tx)
	if err != nil {
		return err
	}
	if !isNew {
		return nil
	}

	n.tracker.AddUnconfirmed(tx.Hash)

	if err := n.comm.Publish(tx, transactionRecipients...); err != nil {
		n.logger.WithError(err).WithField("hash", tx.Hash).Warn("Publishing transaction")
	}

	n.vote(tx)
	return nil
}

// onPropagatedTransaction handles a transaction received from a publisher. A
// transaction this node already knew is a back-propagation.
func (n *Node) onPropagatedTransaction(msg data.Propagatable) error {
	tx := msg.(*data.TransactionData)
	if err := data.VerifyTransaction(tx); err != nil {
		return err
	}

	isNew, err := n.saveTransaction(tx)
	if err != nil {
		return err
	}

	if tx.IsDspConfirmed() {
		n.tracker.RemoveOnConfirmation(tx.Hash)
		return nil
	}

	if !isNew {
		n.tracker.RemoveOnBackPropagation(tx.Hash)
		return nil
	}

	if n.nodeType == data.DspNode {
		n.vote(tx)
	}
	return nil
}

// onConsensusResult records a consensus result published by the zero-spend
// server.
func (n *Node) onConsensusResult(msg data.Propagatable) error {
	result := msg.(*data.DspConsensusResult)

	tx, err := n.attachResult(result)
	if err != nil {
		return err
	}
	if tx == nil {
		n.logger.WithField("hash", result.TransactionHash).Debug("Consensus result for unknown transaction")
		return nil
	}

	if tx.IsDspConfirmed() {
		n.tracker.RemoveOnConfirmation(tx.Hash)
	}
	return nil
}

// attachResult attaches result to the stored transaction unless it already
// has one. It returns nil if the transaction is unknown, in which case the
// result is kept for saveTransaction.
func (n *Node) attachResult(result *data.DspConsensusResult) (*data.TransactionData, error) {
	n.txLocks.Acquire(result.TransactionHash)
	defer n.txLocks.Release(result.TransactionHash)

	tx, err := n.store.GetTransaction(result.TransactionHash)
	if err != nil {
		if common.IsStore(err, common.KeyNotFound) {
			n.orphanResults.Add(result.TransactionHash, result)
			return nil, nil
		}
		return nil, err
	}

	if tx.DspConsensusResult == nil {
		tx.DspConsensusResult = result
		if err := n.store.SetTransaction(tx); err != nil {
			return nil, err
		}
	}
	return tx, nil
}

func (n *Node) onAddress(msg data.Propagatable) error {
	n.logger.WithField("hash", msg.GetHash()).Debug("New address")
	return nil
}

// vote sends this DSP node's verdict on tx to the zero-spend servers.
func (n *Node) vote(tx *data.TransactionData) {
	vote, err := data.NewDspVote(n.key, tx.Hash, data.VerifyTransaction(tx) == nil)
	if err != nil {
		n.logger.WithError(err).Error("Signing vote")
		return
	}

	receivers := n.network.Receivers(data.ZeroSpendServer)
	if len(receivers) == 0 {
		n.logger.WithField("hash", tx.Hash).Warn("No zero-spend server to vote to")
		return
	}

	for _, addr := range receivers {
		if err := n.comm.Send(addr, vote); err != nil {
			n.logger.WithError(err).WithField("addr", addr).Warn("Sending vote")
		}
	}
}

// onDspVote aggregates votes on the zero-spend server and publishes the
// consensus result once a transaction is decided.
func (n *Node) onDspVote(msg data.Propagatable) error {
	vote := msg.(*data.DspVote)
	if !vote.Verify() {
		return fmt.Errorf("invalid signature on vote for %v", vote.TransactionHash)
	}

	result, decided := n.votes.add(vote)
	if !decided {
		return nil
	}

	n.logger.WithFields(logrus.Fields{
		"hash":  result.TransactionHash,
		"index": result.Index,
	}).Info("Transaction confirmed")

	if _, err := n.attachResult(result); err != nil {
		n.logger.WithError(err).Warn("Attaching consensus result")
	}

	return n.comm.Publish(result, consensusRecipients...)
}

// onRegistration adds a node to the membership of the node manager.
func (n *Node) onRegistration(msg data.Propagatable) error {
	registration := msg.(*data.NetworkNodeData)
	if !registration.Verify() {
		return fmt.Errorf("invalid signature on registration of %s", registration.PubKey)
	}
	if registration.NodeType == data.UndefinedNode || registration.NodeType == data.NodeManager {
		return fmt.Errorf("cannot register a %s", registration.NodeType)
	}

	if n.members.register(*registration) {
		n.logger.WithFields(logrus.Fields{
			"node_type": registration.NodeType,
			"receiver":  registration.ReceivingAddress,
			"publisher": registration.PropagationAddress,
		}).Info("Node registered")
		n.publishNetwork()
	}
	return nil
}

// RemoveNode drops a node from the membership of the node manager.
func (n *Node) RemoveNode(pubKey string) error {
	if n.members == nil {
		return fmt.Errorf("%s nodes do not manage membership", n.nodeType)
	}
	if n.members.remove(pubKey) {
		n.logger.WithField("node", pubKey).Info("Node removed")
		n.publishNetwork()
	}
	return nil
}

func (n *Node) publishNetwork() {
	if err := n.comm.Publish(n.members.snapshot(), networkRecipients...); err != nil {
		n.logger.WithError(err).Warn("Publishing network")
	}
}
