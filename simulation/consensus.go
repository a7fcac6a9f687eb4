package simulation

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// CycleRecord is what happened in one cycle.
type CycleRecord struct {
	Index              int      `json:"index"`
	DrawnBlockHash     int      `json:"drawn_block_hash"`
	PowWinners         []string `json:"pow_winners"`
	PosWinners         []string `json:"pos_winners"`
	OnlineTickets      int      `json:"online_tickets,omitempty"`
	DrawnTickets       []int    `json:"drawn_tickets,omitempty"`
	DistanceBefore     int      `json:"distance_before_this_cycle"`
	CatchUpProbability float64  `json:"probability_before_this_cycle"`
}

// Engine advances the adversaries of one simulation instance one cycle at a
// time. It is not safe for concurrent use; cycles are strictly sequential.
type Engine struct {
	advs   []*Adversary
	params Params
	pos    bool
	rand   Randomness
	log    *logrus.Entry
	probs  *ProbabilityCache

	votes   []int
	weights []float64
}

// NewEngine creates an engine over advs. pos enables ticket voting.
func NewEngine(advs []*Adversary, params Params, pos bool, rnd Randomness, log *logrus.Entry) *Engine {
	e := &Engine{
		advs:    advs,
		params:  params,
		pos:     pos,
		rand:    rnd,
		log:     log,
		votes:   make([]int, len(params.VoteDistribution)),
		weights: params.voteWeights(),
	}
	for i, v := range params.VoteDistribution {
		e.votes[i] = v.Votes
	}
	if e.log == nil {
		e.log = discardLogger()
	}
	return e
}

// Advance runs one cycle: the PoW draw, the PoS vote and the chain updates.
func (e *Engine) Advance(cycle int) (*CycleRecord, error) {
	rec := &CycleRecord{
		Index:      cycle,
		PowWinners: []string{},
		PosWinners: []string{},
	}
	rec.DistanceBefore, rec.CatchUpProbability = e.catchUp()

	drawn := e.rand.Integer(0, e.params.HashSpace-1)
	if drawn < 0 || drawn >= e.params.HashSpace {
		return nil, &ImpossibleDrawError{Cycle: cycle, Detail: fmt.Sprintf("block hash %d outside [0, %d)", drawn, e.params.HashSpace)}
	}
	rec.DrawnBlockHash = drawn

	var winners []*Adversary
	for _, a := range e.advs {
		if a.HashInPool(drawn) {
			winners = append(winners, a)
			a.mined++
			rec.PowWinners = append(rec.PowWinners, a.id)
		}
	}
	if len(winners) > len(e.advs) {
		return nil, &ImpossibleDrawError{Cycle: cycle, Detail: "more PoW winners than adversaries"}
	}
	if len(winners) == 0 {
		e.log.WithFields(logrus.Fields{"cycle": cycle, "hash": drawn}).Debug("No PoW winner")
		return rec, nil
	}

	if !e.pos {
		for _, a := range winners {
			a.chain.Append(&Block{BlockHash: drawn, FromCycle: cycle})
			a.validated++
			rec.PosWinners = append(rec.PosWinners, a.id)
		}
		e.log.WithFields(logrus.Fields{"cycle": cycle, "hash": drawn, "pow": rec.PowWinners}).Debug("Cycle mined")
		return rec, nil
	}

	bucket := e.rand.Categorical(e.weights)
	if bucket < 0 || bucket >= len(e.votes) {
		return nil, &ImpossibleDrawError{Cycle: cycle, Detail: fmt.Sprintf("vote bucket %d outside distribution", bucket)}
	}
	online := e.votes[bucket]
	drawnTickets := e.rand.Sample(0, e.params.TicketPoolSize-1, online)
	rec.OnlineTickets = online
	rec.DrawnTickets = drawnTickets

	owned := make([][]int, len(winners))
	votes := make([]int, len(winners))
	for i, a := range winners {
		owned[i] = a.ownedTickets(drawnTickets)
		votes[i] = len(owned[i])
	}
	if sum(votes) > online {
		return nil, &ImpossibleDrawError{Cycle: cycle, Detail: fmt.Sprintf("%d owned tickets out of %d online", sum(votes), online)}
	}

	accepted := e.quorum(votes, online)
	for i, a := range winners {
		if !accepted[i] {
			a.invalidated++
			e.log.WithFields(logrus.Fields{"cycle": cycle, "adversary": a.id, "votes": votes[i], "online": online}).Debug("Block invalidated")
			continue
		}
		a.chain.Append(&Block{
			BlockHash:     drawn,
			FromCycle:     cycle,
			OnlineTickets: online,
			OwnedTickets:  owned[i],
		})
		a.validated++
		rec.PosWinners = append(rec.PosWinners, a.id)
	}
	e.log.WithFields(logrus.Fields{
		"cycle":  cycle,
		"hash":   drawn,
		"online": online,
		"pow":    rec.PowWinners,
		"pos":    rec.PosWinners,
	}).Debug("Cycle mined")
	return rec, nil
}

// quorum decides, for PoW winners holding votes[i] of the online tickets,
// which blocks the vote accepts. Winners are in adversary index order.
func (e *Engine) quorum(votes []int, online int) []bool {
	accepted := make([]bool, len(votes))
	switch e.params.Quorum {
	case QuorumPlurality:
		best, count := 0, 0
		for _, v := range votes {
			if v > best {
				best, count = v, 1
			} else if v == best {
				count++
			}
		}
		if best == 0 {
			return accepted
		}
		for i, v := range votes {
			if v != best {
				continue
			}
			if count == 1 {
				accepted[i] = true
			} else if e.params.TieBreak == TieBreakEarliest {
				accepted[i] = true
				return accepted
			}
		}
	default:
		tied := false
		for i, v := range votes {
			switch {
			case 2*v > online:
				accepted[i] = true
			case 2*v == online && v > 0 && e.params.TieBreak == TieBreakEarliest && !tied:
				accepted[i] = true
				tied = true
			}
		}
	}
	return accepted
}

// catchUp returns the largest chain-length difference and the probability
// that the lagging adversary catches up from it. Among equally short chains
// the highest index is taken as the laggard.
func (e *Engine) catchUp() (int, float64) {
	if len(e.advs) == 0 {
		return 0, 0
	}
	lo, hi := e.advs[0].Len(), e.advs[0].Len()
	lagging := e.advs[0]
	for _, a := range e.advs[1:] {
		n := a.Len()
		if n <= lo {
			lo, lagging = n, a
		}
		if n > hi {
			hi = n
		}
	}
	q := EffectiveShare(lagging.hashpower, lagging.stake, e.pos)
	return hi - lo, e.probs.AttackerSuccessProbability(q, hi-lo)
}

func sum(xs []int) int {
	var s int
	for _, x := range xs {
		s += x
	}
	return s
}
