package node

import (
	"sync"
	"time"

	"github.com/cotinet/cotinode/src/common"
	"github.com/cotinet/cotinode/src/data"
	lru "github.com/hashicorp/golang-lru/v2"
)

// voteAggregator collects DspVotes and produces a DspConsensusResult once a
// transaction has threshold positive votes from distinct voters. Each
// transaction is decided once; recent decisions are remembered so late votes
// are ignored.
type voteAggregator struct {
	sync.Mutex

	threshold int
	votes     map[common.Hash]map[string]bool
	decided   *lru.Cache[common.Hash, struct{}]
	index     int64
	now       func() time.Time
}

func newVoteAggregator(threshold int, cacheSize int) (*voteAggregator, error) {
	decided, err := lru.New[common.Hash, struct{}](cacheSize)
	if err != nil {
		return nil, err
	}
	return &voteAggregator{
		threshold: threshold,
		votes:     make(map[common.Hash]map[string]bool),
		decided:   decided,
		now:       time.Now,
	}, nil
}

// add records vote and returns the consensus result if this vote decided the
// transaction.
func (a *voteAggregator) add(vote *data.DspVote) (*data.DspConsensusResult, bool) {
	a.Lock()
	defer a.Unlock()

	if a.decided.Contains(vote.TransactionHash) {
		return nil, false
	}

	voters, ok := a.votes[vote.TransactionHash]
	if !ok {
		voters = make(map[string]bool)
		a.votes[vote.TransactionHash] = voters
	}
	voters[vote.VoterPubKey] = vote.ValidTransaction

	positive := 0
	for _, valid := range voters {
		if valid {
			positive++
		}
	}
	if positive < a.threshold {
		return nil, false
	}

	delete(a.votes, vote.TransactionHash)
	a.decided.Add(vote.TransactionHash, struct{}{})
	a.index++

	return &data.DspConsensusResult{
		TransactionHash: vote.TransactionHash,
		IsDspConfirmed:  true,
		Index:           a.index,
		Timestamp:       a.now().UTC(),
	}, true
}

// pending returns the number of undecided transactions.
func (a *voteAggregator) pending() int {
	a.Lock()
	defer a.Unlock()
	return len(a.votes)
}
