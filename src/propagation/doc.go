// Package propagation keeps track of transactions this node has propagated
// but not yet seen confirmed, and re-sends them until they are confirmed or
// their retry budget runs out.
//
// All work on a given transaction hash happens under the hash's stripe of a
// LockRegistry. A holder never takes a second stripe, so stripes cannot
// deadlock. Work on different hashes contends only when the hashes share a
// stripe, and on the short critical sections of the UnconfirmedSet map.
//
// The durable half of the unconfirmed set lives in a store.UnconfirmedStore,
// so that RecoverOnStartup can rebuild the in-memory half after a restart.
package propagation
