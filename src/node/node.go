package node

import (
	"crypto/ecdsa"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/cotinet/cotinode/src/common"
	"github.com/cotinet/cotinode/src/communication"
	"github.com/cotinet/cotinode/src/config"
	"github.com/cotinet/cotinode/src/crypto/keys"
	"github.com/cotinet/cotinode/src/data"
	"github.com/cotinet/cotinode/src/propagation"
	"github.com/cotinet/cotinode/src/store"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sirupsen/logrus"
)

// Node is a network participant playing one role. It is composed at Init from
// the role's profile.
type Node struct {
	state

	conf     *config.Config
	logger   *logrus.Entry
	nodeType data.NodeType
	profile  profile

	key     *ecdsa.PrivateKey
	pubKey  string
	store   store.Store
	comm    *communication.Facade
	network *NetworkService

	tracker propagation.PropagationTracker
	// service is the tracker of roles that track, nil otherwise
	service *propagation.Service

	votes   *voteAggregator
	members *membership

	// serializes store updates per transaction
	txLocks *propagation.LockRegistry
	// consensus results received before their transaction
	orphanResults *lru.Cache[common.Hash, *data.DspConsensusResult]

	registered     bool
	registeredLock sync.Mutex

	controlTimer *ControlTimer
	shutdownCh   chan struct{}

	start time.Time
}

// NewNode is a factory method that returns a Node instance. Nothing is opened
// before Init.
func NewNode(conf *config.Config) *Node {
	return &Node{
		conf:         conf,
		logger:       conf.Logger(),
		txLocks:      propagation.NewLockRegistry(0),
		controlTimer: NewPeriodicControlTimer(),
		shutdownCh:   make(chan struct{}),
	}
}

// Init validates the configuration and opens the key, the store and the
// communication endpoints of the node's role. Unconfirmed transactions left by
// a previous run are recovered before any endpoint is opened.
func (n *Node) Init() error {
	if err := n.initLocal(); err != nil {
		return err
	}

	if err := n.initCommunication(); err != nil {
		return err
	}

	n.setState(Initializing)
	return nil
}

// initLocal prepares everything the message handlers use.
func (n *Node) initLocal() error {
	if err := n.conf.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	nodeType, _ := n.conf.NodeType()
	n.nodeType = nodeType
	n.profile = profiles[nodeType]
	n.logger = n.logger.WithField("node_type", nodeType)

	if err := n.initKey(); err != nil {
		return err
	}

	if err := n.initStore(); err != nil {
		return err
	}

	if err := n.initRole(); err != nil {
		return err
	}

	return n.initTracker()
}

func (n *Node) initKey() error {
	if n.conf.Key == nil {
		keyfile := keys.NewSimpleKeyfile(n.conf.Keyfile())

		privKey, err := keyfile.ReadKey()
		if err != nil {
			n.logger.WithError(err).Warn("Cannot read private key from file")

			privKey, err = keys.GenerateECDSAKey()
			if err != nil {
				n.logger.WithError(err).Error("Cannot generate a new private key")
				return err
			}

			if err := keyfile.WriteKey(privKey); err != nil {
				n.logger.WithError(err).Warn("Cannot write private key to file")
			}

			n.logger.WithField("pub_key", keys.PublicKeyHex(&privKey.PublicKey)).Info("Created a new key")
		}

		n.conf.Key = privKey
	}

	n.key = n.conf.Key
	n.pubKey = keys.PublicKeyHex(&n.key.PublicKey)
	n.logger = n.logger.WithField("pub_key", n.pubKey[:10])
	return nil
}

func (n *Node) initStore() error {
	if !n.conf.Store {
		n.store = store.NewInmemStore()
		n.logger.Debug("created new in-mem store")
		return nil
	}

	n.logger.WithField("path", n.conf.DatabaseDir).Debug("Attempting to load or create database")

	s, err := store.NewBadgerStore(n.conf.CacheSize, n.conf.DatabaseDir, n.logger)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	n.store = s
	return nil
}

func (n *Node) initRole() error {
	orphans, err := lru.New[common.Hash, *data.DspConsensusResult](n.conf.CacheSize)
	if err != nil {
		return err
	}
	n.orphanResults = orphans

	switch n.nodeType {
	case data.ZeroSpendServer:
		votes, err := newVoteAggregator(n.conf.VoteThreshold, n.conf.CacheSize)
		if err != nil {
			return err
		}
		n.votes = votes
	case data.NodeManager:
		n.members = newMembership()
	}
	return nil
}

// initCommunication opens the endpoints of the role. The Receiver dispatches
// to handlers as soon as it is bound, so it is opened last.
func (n *Node) initCommunication() error {
	n.comm = communication.NewFacade(communication.Config{
		Realm:         n.conf.Realm,
		AdvertiseAddr: n.conf.AdvertiseAddr,
		NodeType:      n.nodeType,
		Timeout:       n.conf.TCPTimeout,
		MaxPool:       n.conf.MaxPool,
	}, n.logger)

	n.network = NewNetworkService(
		n.pubKey,
		n.profile.sendTo,
		n.profile.subscribeTo(),
		n.comm,
		n.logger,
	)

	if n.profile.subscribes {
		n.comm.InitSubscriber(n.profile.topology, n.subscriberHandlers())
	}

	if n.profile.publishes {
		if err := n.comm.InitPublisher(n.conf.PropagationAddr); err != nil {
			n.comm.Close()
			return err
		}
	}

	if n.profile.receives {
		if err := n.comm.InitReceiver(n.conf.BindAddr, n.receiverHandlers()); err != nil {
			n.comm.Close()
			return err
		}
	}

	return nil
}

func (n *Node) initTracker() error {
	if !n.profile.tracks {
		n.tracker = propagation.NoopTracker{}
		return nil
	}

	n.service = propagation.NewService(
		propagation.Config{
			Retries:              n.conf.PropagationRetries,
			TrackBackPropagation: n.profile.trackBackPropagation,
		},
		n.store,
		propagation.NewTransactionOracle(n.store),
		n.resender(),
		n.logger,
	)
	n.tracker = n.service

	if err := n.tracker.RecoverOnStartup(); err != nil {
		return fmt.Errorf("recovering unconfirmed transactions: %w", err)
	}
	return nil
}

// RunAsync runs the node in a goroutine.
func (n *Node) RunAsync() {
	n.logger.Debug("runasync")
	go n.Run()
}

// Run joins the network and serves the control timer until Shutdown. Every
// tick sweeps the unconfirmed transactions, retries a failed registration and,
// on the node manager, re-publishes the membership.
func (n *Node) Run() {
	n.start = time.Now()
	n.setState(Running)

	period := n.conf.PropagationCheckPeriod
	go n.controlTimer.Run(period)

	if n.nodeType != data.NodeManager {
		n.join()
	}

	for {
		select {
		case <-n.controlTimer.tickCh:
			n.tracker.Sweep(period)

			if n.nodeType == data.NodeManager {
				n.publishNetwork()
			} else if !n.isRegistered() {
				n.join()
			}

			n.controlTimer.Reset(period)
		case <-n.shutdownCh:
			return
		}
	}
}

// join follows the node manager's membership updates and registers this node
// with it.
func (n *Node) join() {
	if n.profile.subscribes {
		if err := n.comm.AddSubscription(n.conf.NodeManagerPropagationAddr, data.NodeManager); err != nil {
			n.logger.WithError(err).Warn("Subscribing to node manager")
			return
		}
	}

	if !n.comm.Sender().IsConnected(n.conf.NodeManagerAddr) {
		if err := n.comm.AddSender(n.conf.NodeManagerAddr, data.NodeManager); err != nil {
			n.logger.WithError(err).Warn("Connecting to node manager")
		}
	}

	registration, err := data.NewNetworkNodeData(
		n.key,
		n.nodeType,
		n.comm.ReceiverAddr(),
		n.comm.PublisherAddr(),
	)
	if err != nil {
		n.logger.WithError(err).Error("Signing registration")
		return
	}

	if err := n.comm.Send(n.conf.NodeManagerAddr, registration); err != nil {
		n.logger.WithError(err).Warn("Registering with node manager")
		return
	}

	n.registeredLock.Lock()
	n.registered = true
	n.registeredLock.Unlock()

	n.logger.Info("Registered with node manager")
}

func (n *Node) isRegistered() bool {
	n.registeredLock.Lock()
	defer n.registeredLock.Unlock()
	return n.registered
}

// Shutdown stops the node. It is safe to call it more than once.
func (n *Node) Shutdown() {
	if n.getState() != Shutdown {
		n.logger.Debug("Shutdown")

		//Exit any non-shutdown state immediately
		n.setState(Shutdown)

		//Stop and wait for concurrent operations
		close(n.shutdownCh)

		n.waitRoutines()

		n.controlTimer.Shutdown()

		//endpoints and store should only be closed once all concurrent
		//operations are finished
		if n.comm != nil {
			n.comm.Close()
		}

		if n.store != nil {
			if err := n.store.Close(); err != nil {
				n.logger.WithError(err).Error("Closing store")
			}
		}
	}
}

// GetState returns the current state of the node.
func (n *Node) GetState() State {
	return n.getState()
}

// GetStats returns stats
func (n *Node) GetStats() map[string]string {
	pending := 0
	if n.service != nil {
		pending = len(n.service.Pending())
	}

	connected := 0
	if r := n.comm.Receiver(); r != nil {
		connected = len(r.ConnectedNodes())
	}

	subscriptions := 0
	if s := n.comm.Subscriber(); s != nil {
		subscriptions = len(s.Subscriptions())
	}

	return map[string]string{
		"state":               n.getState().String(),
		"node_type":           n.nodeType.String(),
		"time_elapsed":        strconv.FormatFloat(time.Since(n.start).Seconds(), 'f', 2, 64),
		"unconfirmed":         strconv.Itoa(pending),
		"connected_nodes":     strconv.Itoa(connected),
		"senders":             strconv.Itoa(len(n.comm.Sender().Peers())),
		"subscriptions":       strconv.Itoa(subscriptions),
		"network_members":     strconv.Itoa(len(n.network.Network().Nodes)),
		"receiver_address":    n.comm.ReceiverAddr(),
		"propagation_address": n.comm.PublisherAddr(),
		"registered":          strconv.FormatBool(n.isRegistered()),
	}
}

// PubKey returns the hex public key identifying the node.
func (n *Node) PubKey() string {
	return n.pubKey
}

// NodeType returns the role of the node.
func (n *Node) NodeType() data.NodeType {
	return n.nodeType
}

// ReceiverAddr returns the address of the node's Receiver, or "".
func (n *Node) ReceiverAddr() string {
	return n.comm.ReceiverAddr()
}

// PropagationAddr returns the address of the node's Publisher, or "".
func (n *Node) PropagationAddr() string {
	return n.comm.PublisherAddr()
}

// Store returns the store of the node.
func (n *Node) Store() store.Store {
	return n.store
}

// Network returns the last membership snapshot applied by the node.
func (n *Node) Network() data.NetworkData {
	return n.network.Network()
}

// IsPending reports whether hash is tracked as unconfirmed.
func (n *Node) IsPending(hash common.Hash) bool {
	if n.service == nil {
		return false
	}
	return n.service.IsPending(hash)
}
