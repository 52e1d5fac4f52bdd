package data

import (
	"crypto/ecdsa"
	"time"

	"github.com/cotinet/cotinode/src/common"
	"github.com/cotinet/cotinode/src/crypto"
	"github.com/cotinet/cotinode/src/crypto/keys"
)

// DspVote is a DSP node's verdict on a transaction, sent point-to-point to the
// zero-spend server.
type DspVote struct {
	TransactionHash  common.Hash
	VoterPubKey      string
	ValidTransaction bool
	Signature        string
}

// NewDspVote creates and signs a vote.
func NewDspVote(key *ecdsa.PrivateKey, txHash common.Hash, valid bool) (*DspVote, error) {
	vote := &DspVote{
		TransactionHash:  txHash,
		VoterPubKey:      keys.PublicKeyHex(&key.PublicKey),
		ValidTransaction: valid,
	}
	sig, err := keys.SignHash(key, vote.signedHash())
	if err != nil {
		return nil, err
	}
	vote.Signature = sig
	return vote, nil
}

func (v *DspVote) signedHash() common.Hash {
	valid := []byte{0}
	if v.ValidTransaction {
		valid[0] = 1
	}
	return crypto.HashOf(v.TransactionHash[:], []byte(v.VoterPubKey), valid)
}

// Verify checks the voter's signature.
func (v *DspVote) Verify() bool {
	return keys.VerifyHash(v.VoterPubKey, v.signedHash(), v.Signature)
}

// Class implements Propagatable.
func (v *DspVote) Class() MessageClass {
	return DspVoteClass
}

// GetHash implements Propagatable.
func (v *DspVote) GetHash() common.Hash {
	return v.TransactionHash
}

// DspConsensusResult is published by the zero-spend server once enough DSP
// votes have been collected for a transaction.
type DspConsensusResult struct {
	TransactionHash common.Hash
	IsDspConfirmed  bool
	Index           int64
	Timestamp       time.Time
}

// Class implements Propagatable.
func (r *DspConsensusResult) Class() MessageClass {
	return DspConsensusResultClass
}

// GetHash implements Propagatable.
func (r *DspConsensusResult) GetHash() common.Hash {
	return r.TransactionHash
}
