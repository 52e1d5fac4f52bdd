package data

import (
	"testing"
	"time"

	"github.com/cotinet/cotinode/src/crypto/keys"
)

func TestTransactionCodecKeepsSignature(t *testing.T) {
	key, _ := keys.GenerateECDSAKey()

	tx, err := NewTransaction(key, "12.5", time.Now())
	if err != nil {
		t.Fatal(err)
	}
	tx.DspConsensusResult = &DspConsensusResult{
		TransactionHash: tx.Hash,
		IsDspConfirmed:  true,
		Index:           7,
	}

	raw, err := Marshal(tx)
	if err != nil {
		t.Fatal(err)
	}

	msg, err := Unmarshal(TransactionDataClass, raw)
	if err != nil {
		t.Fatal(err)
	}

	decoded, ok := msg.(*TransactionData)
	if !ok {
		t.Fatalf("decoded message should be *TransactionData, not %T", msg)
	}

	if decoded.Hash != tx.Hash {
		t.Fatalf("decoded hash should be %v, not %v", tx.Hash, decoded.Hash)
	}
	if err := VerifyTransaction(decoded); err != nil {
		t.Fatalf("decoded transaction should verify: %v", err)
	}
	if !decoded.IsDspConfirmed() {
		t.Fatal("decoded transaction should be confirmed")
	}
}

func TestVerifyTransactionRejectsTampering(t *testing.T) {
	key, _ := keys.GenerateECDSAKey()

	tx, err := NewTransaction(key, "1", time.Now())
	if err != nil {
		t.Fatal(err)
	}

	tx.Amount = "1000"
	if err := VerifyTransaction(tx); err == nil {
		t.Fatal("tampered amount should not verify")
	}

	tx.Amount = "1"
	tx.Signature = ""
	if err := VerifyTransaction(tx); err == nil {
		t.Fatal("unsigned transaction should not verify")
	}
}

func TestUnmarshalUnknownClass(t *testing.T) {
	if IsKnownClass("Dispute") {
		t.Fatal("Dispute should not be a known class")
	}
	if _, err := Unmarshal("Dispute", []byte("{}")); err == nil {
		t.Fatal("unknown class should fail")
	}
}

func TestParseNodeType(t *testing.T) {
	for _, nt := range AllNodeTypes {
		parsed, err := ParseNodeType(nt.String())
		if err != nil {
			t.Fatal(err)
		}
		if parsed != nt {
			t.Fatalf("parsed type should be %v, not %v", nt, parsed)
		}
	}

	if _, err := ParseNodeType("UndefinedNode"); err == nil {
		t.Fatal("UndefinedNode should not parse")
	}
}

func TestNetworkDataHashIgnoresOrder(t *testing.T) {
	k1, _ := keys.GenerateECDSAKey()
	k2, _ := keys.GenerateECDSAKey()

	n1, _ := NewNetworkNodeData(k1, DspNode, "127.0.0.1:1", "127.0.0.1:2")
	n2, _ := NewNetworkNodeData(k2, FullNode, "127.0.0.1:3", "127.0.0.1:4")

	a := &NetworkData{Nodes: []NetworkNodeData{*n1, *n2}}
	b := &NetworkData{Nodes: []NetworkNodeData{*n2, *n1}}

	if a.GetHash() != b.GetHash() {
		t.Fatal("network hash should not depend on member order")
	}

	if len(a.ByType(DspNode)) != 1 {
		t.Fatal("there should be one DSP node")
	}
	if _, ok := a.Single(ZeroSpendServer); ok {
		t.Fatal("there should be no zero-spend server")
	}
	if !n1.Verify() {
		t.Fatal("node registration should verify")
	}
}

func TestDspVoteSignature(t *testing.T) {
	key, _ := keys.GenerateECDSAKey()
	tx, _ := NewTransaction(key, "3", time.Now())

	vote, err := NewDspVote(key, tx.Hash, true)
	if err != nil {
		t.Fatal(err)
	}
	if !vote.Verify() {
		t.Fatal("vote should verify")
	}

	vote.ValidTransaction = false
	if vote.Verify() {
		t.Fatal("flipped vote should not verify")
	}
}
