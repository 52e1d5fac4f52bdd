// Package keys implements the public key cryptography used to sign and verify
// propagated data.
//
// Every node, and every wallet that submits transactions, owns a secp256k1
// key-pair. Transactions and node registrations carry the signer's public key
// in uncompressed hex form together with a signature over the message hash.
// Receivers only need the "verify signature" capability exposed by Verify and
// VerifyHash; signing is used by the originator and by tests.
package keys
