package data

import (
	"crypto/ecdsa"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/cotinet/cotinode/src/common"
	"github.com/cotinet/cotinode/src/crypto"
	"github.com/cotinet/cotinode/src/crypto/keys"
)

// TransactionData is a signed transfer submitted by a wallet through a full
// node. DspConsensusResult stays nil until the zero-spend server publishes the
// consensus decision for it.
type TransactionData struct {
	Hash               common.Hash
	Amount             string
	SenderPubKey       string
	CreateTime         time.Time
	Signature          string
	DspConsensusResult *DspConsensusResult `json:",omitempty"`
}

// NewTransaction creates and signs a transaction.
func NewTransaction(key *ecdsa.PrivateKey, amount string, createTime time.Time) (*TransactionData, error) {
	tx := &TransactionData{
		Amount:       amount,
		SenderPubKey: keys.PublicKeyHex(&key.PublicKey),
		CreateTime:   createTime.UTC(),
	}
	tx.Hash = tx.ComputeHash()

	sig, err := keys.SignHash(key, tx.Hash)
	if err != nil {
		return nil, err
	}
	tx.Signature = sig

	return tx, nil
}

// Class implements Propagatable.
func (t *TransactionData) Class() MessageClass {
	return TransactionDataClass
}

// GetHash implements Propagatable.
func (t *TransactionData) GetHash() common.Hash {
	return t.Hash
}

// ComputeHash derives the transaction hash from its signed fields.
func (t *TransactionData) ComputeHash() common.Hash {
	ts := make([]byte, 8)
	binary.BigEndian.PutUint64(ts, uint64(t.CreateTime.UnixNano()))
	return crypto.HashOf([]byte(t.Amount), []byte(t.SenderPubKey), ts)
}

// IsDspConfirmed reports whether a positive consensus result is attached.
func (t *TransactionData) IsDspConfirmed() bool {
	return t.DspConsensusResult != nil && t.DspConsensusResult.IsDspConfirmed
}

// VerifyTransaction checks that the hash matches the content and that the
// signature was produced by SenderPubKey.
func VerifyTransaction(t *TransactionData) error {
	if t.Signature == "" {
		return errors.New("transaction is not signed")
	}
	if h := t.ComputeHash(); h != t.Hash {
		return fmt.Errorf("transaction hash %v does not match content %v", t.Hash, h)
	}
	if !keys.VerifyHash(t.SenderPubKey, t.Hash, t.Signature) {
		return fmt.Errorf("invalid signature on transaction %v", t.Hash)
	}
	return nil
}

// AddressData announces a new address seen by a DSP node.
type AddressData struct {
	Hash       common.Hash
	CreateTime time.Time
}

// Class implements Propagatable.
func (a *AddressData) Class() MessageClass {
	return AddressDataClass
}

// GetHash implements Propagatable.
func (a *AddressData) GetHash() common.Hash {
	return a.Hash
}
