// Package node assembles a network node out of the storage, communication and
// propagation packages.
//
// Roles
//
// A node runs as exactly one data.NodeType. The role decides which endpoints
// are opened (Receiver, Publisher, Subscriber), which topology the Subscriber
// enforces, where transactions are sent and whether unconfirmed transactions
// are tracked. The table lives in roles.go.
//
// Transaction flow
//
// A full node receives a signed transaction from a wallet (SubmitTransaction),
// stores it, tracks it and sends it to the DSP nodes. A DSP node stores and
// publishes the transaction to the other roles, and sends its vote to the
// zero-spend server. Once enough votes are in, the zero-spend server publishes
// a DspConsensusResult. Every node that tracks the transaction stops
// re-sending it when the result, or a copy of the transaction carrying it,
// comes back.
//
// Membership
//
// Every node but the node manager registers with the node manager by sending
// it a signed NetworkNodeData, and follows the NetworkData the node manager
// publishes. NetworkService turns each NetworkData snapshot into Sender targets
// and Subscriber subscriptions.
//
// Control timer
//
// The control timer ticks every PropagationCheckPeriod. Each tick sweeps the
// unconfirmed transactions. The node manager re-publishes the membership on
// every tick, and other nodes retry their registration until it succeeds.
package node
