package simulation

import (
	"fmt"
	"math"
	"sort"
)

// Pool is the set of block hashes an adversary can mine.
type Pool interface {
	Contains(hash int) bool
	Size() int
}

// RangePool is the contiguous range [Low, High).
type RangePool struct {
	Low  int `json:"low"`
	High int `json:"high"`
}

func (p RangePool) Contains(hash int) bool {
	return hash >= p.Low && hash < p.High
}

func (p RangePool) Size() int {
	return p.High - p.Low
}

func (p RangePool) String() string {
	return fmt.Sprintf("[%d, %d)", p.Low, p.High)
}

// SampledPool is an arbitrary set of hashes.
type SampledPool struct {
	hashes map[int]struct{}
}

func newSampledPool(hashes []int) *SampledPool {
	p := &SampledPool{hashes: make(map[int]struct{}, len(hashes))}
	for _, h := range hashes {
		p.hashes[h] = struct{}{}
	}
	return p
}

func (p *SampledPool) Contains(hash int) bool {
	_, ok := p.hashes[hash]
	return ok
}

func (p *SampledPool) Size() int {
	return len(p.hashes)
}

// Hashes returns the pool members in ascending order.
func (p *SampledPool) Hashes() []int {
	out := make([]int, 0, len(p.hashes))
	for h := range p.hashes {
		out = append(out, h)
	}
	sort.Ints(out)
	return out
}

// Adversary is one participant of a single simulation instance.
type Adversary struct {
	id        string
	index     int
	hashpower float64
	stake     float64

	pool    Pool
	tickets RangePool
	chain   *Chain

	mined       int
	validated   int
	invalidated int
}

func adversaryID(index int) string {
	return fmt.Sprintf("A%d", index)
}

func (a *Adversary) ID() string            { return a.id }
func (a *Adversary) Index() int            { return a.index }
func (a *Adversary) Hashpower() float64    { return a.hashpower }
func (a *Adversary) Stake() float64        { return a.stake }
func (a *Adversary) Pool() Pool            { return a.pool }
func (a *Adversary) Tickets() RangePool    { return a.tickets }
func (a *Adversary) Chain() *Chain         { return a.chain }
func (a *Adversary) Len() int              { return a.chain.Len() }
func (a *Adversary) Mined() int            { return a.mined }
func (a *Adversary) Validated() int        { return a.validated }
func (a *Adversary) Invalidated() int      { return a.invalidated }
func (a *Adversary) HashInPool(h int) bool { return a.pool.Contains(h) }

// EffectiveHashpower is the share of the hash space the pool actually covers.
func (a *Adversary) EffectiveHashpower(space int) float64 {
	return float64(a.pool.Size()) * 100 / float64(space)
}

// EffectiveStake is the share of the ticket pool the adversary actually owns.
func (a *Adversary) EffectiveStake(poolSize int) float64 {
	return float64(a.tickets.Size()) * 100 / float64(poolSize)
}

// ownedTickets returns the drawn tickets that belong to a, in draw order.
func (a *Adversary) ownedTickets(drawn []int) []int {
	owned := make([]int, 0, len(drawn))
	for _, t := range drawn {
		if a.tickets.Contains(t) {
			owned = append(owned, t)
		}
	}
	return owned
}

// rewind pre-mines n synthetic blocks. They do not count as validated.
func (a *Adversary) rewind(n int) {
	for i := 0; i < n; i++ {
		a.chain.Append(newRewindBlock(a.chain.Len()))
	}
}

// cumulativeRanges splits [0, space) by the cumulative sum of shares (in
// percent). When the shares sum to 100 the last bound is pinned to space so
// the rounding remainder lands on the last adversary.
func cumulativeRanges(shares []float64, space int, exhaustive bool) ([]RangePool, error) {
	ranges := make([]RangePool, len(shares))
	var cum float64
	low := 0
	for i, s := range shares {
		cum += s
		high := int(math.Round(cum * float64(space) / 100))
		if high > space {
			high = space
		}
		if exhaustive && i == len(shares)-1 {
			high = space
		}
		if high < low {
			return nil, &ImpossibleDrawError{Cycle: -1, Detail: fmt.Sprintf("negative range for A%d: [%d, %d)", i, low, high)}
		}
		ranges[i] = RangePool{Low: low, High: high}
		low = high
	}
	return ranges, nil
}

// NewAdversaries builds the adversaries of one simulation instance from cfg.
// rnd is only consumed in PoolSampled mode.
func NewAdversaries(cfg Config, rnd Randomness) ([]*Adversary, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	p := cfg.Params
	advs := make([]*Adversary, len(cfg.Hashpower))
	for i, h := range cfg.Hashpower {
		advs[i] = &Adversary{
			id:        adversaryID(i),
			index:     i,
			hashpower: h,
			chain:     NewChain(),
		}
		if i < len(cfg.Stake) {
			advs[i].stake = cfg.Stake[i]
		}
	}

	switch p.PoolMode {
	case PoolPartition:
		ranges, err := cumulativeRanges(cfg.Hashpower, p.HashSpace, true)
		if err != nil {
			return nil, err
		}
		for i, r := range ranges {
			advs[i].pool = r
		}
	case PoolSampled:
		for _, a := range advs {
			k := int(math.Round(a.hashpower * float64(p.HashSpace) / 100))
			a.pool = newSampledPool(rnd.Sample(0, p.HashSpace-1, k))
		}
	default:
		return nil, configErrorf("unknown pool mode %v", p.PoolMode)
	}

	if cfg.PoS() {
		stakes := make([]float64, len(advs))
		var total float64
		for i, a := range advs {
			stakes[i] = a.stake
			total += a.stake
		}
		ranges, err := cumulativeRanges(stakes, p.TicketPoolSize, math.Abs(total-100) <= hashpowerTolerance)
		if err != nil {
			return nil, err
		}
		for i, r := range ranges {
			advs[i].tickets = r
		}
	}
	return advs, nil
}
