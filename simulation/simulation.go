package simulation

import (
	"fmt"
	"io"
	"time"

	"github.com/sirupsen/logrus"
	"lukechampine.com/blake3"
)

// Threshold marks the first time the chain-length difference reached a depth.
type Threshold struct {
	// Cycle is the number of cycles executed when the depth was first
	// reached; 0 means it held before the first cycle. -1 means never.
	Cycle  int    `json:"cycle"`
	Leader string `json:"winner"`
	Score  int    `json:"winner_score"`
}

func (t Threshold) Reached() bool {
	return t.Cycle >= 0
}

// AdversaryRecord is the final state of one adversary.
type AdversaryRecord struct {
	ID                 string     `json:"id"`
	Hashpower          float64    `json:"hashpower"`
	Stake              float64    `json:"stakesize"`
	EffectiveHashpower float64    `json:"pow_hashpower"`
	EffectiveStake     float64    `json:"pos_stakesize"`
	PoolRange          *RangePool `json:"prob_block_hashes,omitempty"`
	PoolHashes         []int      `json:"prob_block_hash_set,omitempty"`
	Tickets            *RangePool `json:"prob_tickets,omitempty"`
	Chain              []*Block   `json:"chain"`
	Blocks             int        `json:"sum_blocks"`
	Mined              int        `json:"mined_blocks"`
	Validated          int        `json:"validated_blocks"`
	Invalidated        int        `json:"invalidated_blocks"`
}

// SimulationRecord is the outcome of one simulation instance.
type SimulationRecord struct {
	Index       int               `json:"index"`
	Seed        int64             `json:"seed"`
	Adversaries []AdversaryRecord `json:"adversaries"`
	Cycles      []CycleRecord     `json:"cycles"`
	Near        Threshold         `json:"near"`
	Confirm     Threshold         `json:"confirm"`
	Winner      string            `json:"winner"`
	Duration    time.Duration     `json:"duration"`
}

// Fingerprint digests every deterministic field of the record. Two runs of
// the same configuration and seed have equal fingerprints.
func (r *SimulationRecord) Fingerprint() Hash {
	h := blake3.New(HashLength, nil)
	fmt.Fprintf(h, "sim %d %d\n", r.Index, r.Seed)
	for _, a := range r.Adversaries {
		var head Hash
		if n := len(a.Chain); n > 0 {
			head = a.Chain[n-1].ID()
		}
		fmt.Fprintf(h, "adv %s %d %d %d %d %x\n", a.ID, a.Blocks, a.Mined, a.Validated, a.Invalidated, head)
	}
	for _, c := range r.Cycles {
		fmt.Fprintf(h, "cycle %d %d %v %v %d %v\n", c.Index, c.DrawnBlockHash, c.PowWinners, c.PosWinners, c.OnlineTickets, c.DrawnTickets)
	}
	fmt.Fprintf(h, "near %+v\nconfirm %+v\n", r.Near, r.Confirm)

	var out Hash
	out.SetBytes(h.Sum(nil))
	return out
}

// Option configures a Runner.
type Option func(*Runner)

// WithLogger sets the logger cycles are reported to.
func WithLogger(log *logrus.Entry) Option {
	return func(r *Runner) { r.log = log }
}

// WithIndex labels the record with its position in a batch and its seed.
func WithIndex(index int, seed int64) Option {
	return func(r *Runner) {
		r.index = index
		r.seed = seed
	}
}

// WithProbabilityCache shares a catch-up probability cache with the engine.
func WithProbabilityCache(c *ProbabilityCache) Option {
	return func(r *Runner) { r.probs = c }
}

// Runner owns one simulation instance from setup to the terminal depth.
type Runner struct {
	cfg    Config
	index  int
	seed   int64
	log    *logrus.Entry
	probs  *ProbabilityCache
	advs   []*Adversary
	engine *Engine
}

// NewRunner validates cfg, builds fresh adversaries and applies the rewind.
func NewRunner(cfg Config, rnd Randomness, opts ...Option) (*Runner, error) {
	r := &Runner{cfg: cfg}
	for _, opt := range opts {
		opt(r)
	}
	if r.log == nil {
		r.log = discardLogger()
	}
	r.log = r.log.WithField("sim", r.index)

	advs, err := NewAdversaries(cfg, rnd)
	if err != nil {
		return nil, err
	}
	r.advs = advs
	if cfg.RewindBlocks > 0 {
		a := advs[cfg.RewindAdversary]
		a.rewind(cfg.RewindBlocks)
		r.log.WithFields(logrus.Fields{"adversary": a.id, "blocks": cfg.RewindBlocks}).Info("Set up rewind blocks")
	}
	r.engine = NewEngine(advs, cfg.Params, cfg.PoS(), rnd, r.log)
	r.engine.probs = r.probs

	for _, a := range advs {
		fields := logrus.Fields{"adversary": a.id, "hashpower": fmt.Sprintf("%.2f%%", a.EffectiveHashpower(cfg.Params.HashSpace))}
		if cfg.PoS() {
			fields["stake"] = fmt.Sprintf("%.4f%%", a.EffectiveStake(cfg.Params.TicketPoolSize))
		}
		r.log.WithFields(fields).Debug("Adversary ready")
	}
	return r, nil
}

// Adversaries returns the live adversaries of this instance.
func (r *Runner) Adversaries() []*Adversary {
	return r.advs
}

// Run advances cycles until the chain-length difference reaches the confirm
// depth and returns the finished record.
func (r *Runner) Run() (*SimulationRecord, error) {
	start := time.Now()
	p := r.cfg.Params
	rec := &SimulationRecord{
		Index:   r.index,
		Seed:    r.seed,
		Near:    Threshold{Cycle: -1},
		Confirm: Threshold{Cycle: -1},
	}

	for cycle := 0; ; cycle++ {
		diff, leader := r.distance()
		if diff >= p.NearDepth && !rec.Near.Reached() {
			rec.Near = Threshold{Cycle: cycle, Leader: leader.id, Score: leader.Len()}
			r.log.WithFields(logrus.Fields{"cycles": cycle, "leader": leader.id}).Infof("%d-block difference reached", p.NearDepth)
		}
		if diff >= p.ConfirmDepth {
			rec.Confirm = Threshold{Cycle: cycle, Leader: leader.id, Score: leader.Len()}
			r.log.WithFields(logrus.Fields{"cycles": cycle, "leader": leader.id}).Infof("%d-block difference reached, simulation over", p.ConfirmDepth)
			break
		}
		if p.MaxCycles > 0 && cycle >= p.MaxCycles {
			return nil, fmt.Errorf("%w: %d cycles, difference %d", ErrCycleLimit, cycle, diff)
		}

		cr, err := r.engine.Advance(cycle)
		if err != nil {
			return nil, err
		}
		rec.Cycles = append(rec.Cycles, *cr)
	}

	rec.Winner = rec.Confirm.Leader
	rec.Adversaries = r.snapshot()
	rec.Duration = time.Since(start)
	return rec, nil
}

// distance returns max-min chain length and the leading adversary, the
// lowest index among equally long chains.
func (r *Runner) distance() (int, *Adversary) {
	leader := r.advs[0]
	lo := leader.Len()
	for _, a := range r.advs[1:] {
		n := a.Len()
		if n > leader.Len() {
			leader = a
		}
		if n < lo {
			lo = n
		}
	}
	return leader.Len() - lo, leader
}

func (r *Runner) snapshot() []AdversaryRecord {
	p := r.cfg.Params
	out := make([]AdversaryRecord, len(r.advs))
	for i, a := range r.advs {
		ar := AdversaryRecord{
			ID:                 a.id,
			Hashpower:          a.hashpower,
			Stake:              a.stake,
			EffectiveHashpower: a.EffectiveHashpower(p.HashSpace),
			Chain:              a.chain.Blocks(),
			Blocks:             a.Len(),
			Mined:              a.mined,
			Validated:          a.validated,
			Invalidated:        a.invalidated,
		}
		switch pool := a.pool.(type) {
		case RangePool:
			pr := pool
			ar.PoolRange = &pr
		case *SampledPool:
			ar.PoolHashes = pool.Hashes()
		}
		if r.cfg.PoS() {
			t := a.tickets
			ar.Tickets = &t
			ar.EffectiveStake = a.EffectiveStake(p.TicketPoolSize)
		}
		out[i] = ar
	}
	return out
}

func discardLogger() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}
