package simulation

import (
	"context"
	"fmt"
	"time"

	"github.com/dominant-strategies/go-quai/event"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/stat"
)

// AdversarySummary aggregates one adversary over a batch.
type AdversarySummary struct {
	ID             string    `json:"id"`
	Hashpower      float64   `json:"pow_hashpower"`
	Stake          float64   `json:"pos_stakesize"`
	Wins           int       `json:"total_wins"`
	WinPercent     float64   `json:"perc_wins"`
	AvgBlocks      float64   `json:"sum_blocks_average"`
	AvgValidated   float64   `json:"validated_blocks_average"`
	AvgInvalidated float64   `json:"invalidated_blocks_average"`
	CatchUp        []float64 `json:"catch_up_probability"`
}

// BatchSummary aggregates every simulation of a batch.
type BatchSummary struct {
	Total           int                `json:"total"`
	PoS             bool               `json:"pos"`
	RewindBlocks    int                `json:"rewind_blocks"`
	RewindAdversary string             `json:"rewind_adv"`
	NearDepth       int                `json:"near_depth"`
	ConfirmDepth    int                `json:"confirm_depth"`
	NearAverage     float64            `json:"near_diff_average"`
	ConfirmAverage  float64            `json:"confirm_diff_average"`
	ConfirmStdDev   float64            `json:"confirm_diff_stddev"`
	Start           time.Time          `json:"batch_start"`
	End             time.Time          `json:"batch_end"`
	Duration        time.Duration      `json:"batch_duration"`
	MeanSimDuration time.Duration      `json:"sim_mean_time"`
	Adversaries     []AdversarySummary `json:"adversaries"`
}

// Adversary returns the summary of id, or nil.
func (s *BatchSummary) Adversary(id string) *AdversarySummary {
	for i := range s.Adversaries {
		if s.Adversaries[i].ID == id {
			return &s.Adversaries[i]
		}
	}
	return nil
}

// BatchResult holds the records of a batch, in simulation order, and their summary.
type BatchResult struct {
	Seed    int64               `json:"seed"`
	Records []*SimulationRecord `json:"sims"`
	Summary *BatchSummary       `json:"summary"`
}

// BatchOption configures a Batch.
type BatchOption func(*Batch)

// WithSeed fixes the master seed. Without it a random seed is drawn.
func WithSeed(seed int64) BatchOption {
	return func(b *Batch) {
		b.seed = seed
		b.seeded = true
	}
}

// WithWorkers runs up to n simulations in parallel.
func WithWorkers(n int) BatchOption {
	return func(b *Batch) { b.workers = n }
}

// WithBatchLogger sets the logger handed to every simulation.
func WithBatchLogger(log *logrus.Entry) BatchOption {
	return func(b *Batch) { b.log = log }
}

// WithRandomness overrides how each simulation's randomness is built.
func WithRandomness(fn func(seed int64) Randomness) BatchOption {
	return func(b *Batch) { b.newRand = fn }
}

// Batch runs N independent simulations of the same configuration.
type Batch struct {
	cfg     Config
	seed    int64
	seeded  bool
	workers int
	log     *logrus.Entry
	newRand func(seed int64) Randomness
	probs   *ProbabilityCache

	recordFeed event.Feed
}

// NewBatch validates cfg and prepares a batch of cfg.Simulations runs.
func NewBatch(cfg Config, opts ...BatchOption) (*Batch, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	b := &Batch{
		cfg:     cfg,
		workers: 1,
		newRand: func(seed int64) Randomness { return NewDrawer(seed) },
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.log == nil {
		b.log = discardLogger()
	}
	if b.workers < 1 {
		b.workers = 1
	}
	probs, err := NewProbabilityCache(DefaultProbabilityCacheSize)
	if err != nil {
		return nil, err
	}
	b.probs = probs
	if !b.seeded {
		seed, err := RandomSeed()
		if err != nil {
			return nil, fmt.Errorf("seeding batch: %w", err)
		}
		b.seed = seed
	}
	return b, nil
}

// Seed returns the master seed of the batch.
func (b *Batch) Seed() int64 {
	return b.seed
}

// SubscribeRecords delivers every finished SimulationRecord to ch, in
// simulation order. The feed blocks until ch accepts, so ch should be
// buffered or drained by its own goroutine.
func (b *Batch) SubscribeRecords(ch chan<- *SimulationRecord) event.Subscription {
	return b.recordFeed.Subscribe(ch)
}

// RunOne runs simulation i of the batch on its derived seed.
func (b *Batch) RunOne(i int) (*SimulationRecord, error) {
	seed := DeriveSeed(b.seed, i)
	r, err := NewRunner(b.cfg, b.newRand(seed), WithIndex(i, seed), WithLogger(b.log), WithProbabilityCache(b.probs))
	if err != nil {
		return nil, err
	}
	return r.Run()
}

// Run executes the batch. Cancellation is honored between simulations; a
// running simulation always finishes its current cycle loop.
func (b *Batch) Run(ctx context.Context) (*BatchResult, error) {
	start := time.Now()
	n := b.cfg.Simulations
	b.log.WithFields(logrus.Fields{"simulations": n, "workers": b.workers, "seed": b.seed}).Info("Starting simulation batch")

	records := make([]*SimulationRecord, n)
	done := make([]chan struct{}, n)
	for i := range done {
		done[i] = make(chan struct{})
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.workers)
	published := make(chan struct{})
	go func() {
		defer close(published)
		for i := 0; i < n; i++ {
			select {
			case <-done[i]:
			case <-gctx.Done():
				// gctx is also cancelled when Wait returns successfully.
				select {
				case <-done[i]:
				default:
					return
				}
			}
			b.recordFeed.Send(records[i])
		}
	}()

	for i := 0; i < n; i++ {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			rec, err := b.RunOne(i)
			if err != nil {
				return fmt.Errorf("simulation %d: %w", i, err)
			}
			records[i] = rec
			close(done[i])
			return nil
		})
	}
	err := g.Wait()
	<-published
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		return nil, err
	}

	end := time.Now()
	summary := Aggregate(b.cfg, records, start, end)
	b.log.WithFields(logrus.Fields{"simulations": n, "duration": summary.Duration}).Info("End of simulation batch")
	return &BatchResult{Seed: b.seed, Records: records, Summary: summary}, nil
}

// Aggregate reduces independent simulation records into a summary. It has
// no side effects and depends only on its arguments.
func Aggregate(cfg Config, records []*SimulationRecord, start, end time.Time) *BatchSummary {
	p := cfg.Params
	pos := cfg.PoS()
	s := &BatchSummary{
		Total:           len(records),
		PoS:             pos,
		RewindBlocks:    cfg.RewindBlocks,
		RewindAdversary: adversaryID(cfg.RewindAdversary),
		NearDepth:       p.NearDepth,
		ConfirmDepth:    p.ConfirmDepth,
		Start:           start,
		End:             end,
		Duration:        end.Sub(start),
	}
	if len(records) == 0 {
		return s
	}

	near := make([]float64, 0, len(records))
	confirm := make([]float64, 0, len(records))
	var totalDur time.Duration
	for _, r := range records {
		if r.Near.Reached() {
			near = append(near, float64(r.Near.Cycle))
		}
		if r.Confirm.Reached() {
			confirm = append(confirm, float64(r.Confirm.Cycle))
		}
		totalDur += r.Duration
	}
	s.MeanSimDuration = totalDur / time.Duration(len(records))
	if len(near) > 0 {
		s.NearAverage = stat.Mean(near, nil)
	}
	if len(confirm) > 0 {
		s.ConfirmAverage = stat.Mean(confirm, nil)
	}
	if len(confirm) > 1 {
		s.ConfirmStdDev = stat.StdDev(confirm, nil)
	}

	first := records[0].Adversaries
	s.Adversaries = make([]AdversarySummary, len(first))
	for i, a := range first {
		blocks := make([]float64, len(records))
		validated := make([]float64, len(records))
		invalidated := make([]float64, len(records))
		hash := make([]float64, len(records))
		stake := make([]float64, len(records))
		wins := 0
		for j, r := range records {
			ar := r.Adversaries[i]
			blocks[j] = float64(ar.Blocks)
			validated[j] = float64(ar.Validated)
			invalidated[j] = float64(ar.Invalidated)
			hash[j] = ar.EffectiveHashpower
			stake[j] = ar.EffectiveStake
			if r.Winner == ar.ID {
				wins++
			}
		}
		as := AdversarySummary{
			ID:             a.ID,
			Hashpower:      stat.Mean(hash, nil),
			Stake:          stat.Mean(stake, nil),
			Wins:           wins,
			WinPercent:     float64(wins) * 100 / float64(len(records)),
			AvgBlocks:      stat.Mean(blocks, nil),
			AvgValidated:   stat.Mean(validated, nil),
			AvgInvalidated: stat.Mean(invalidated, nil),
		}
		as.CatchUp = CatchUpTable(EffectiveShare(as.Hashpower, as.Stake, pos), p.ConfirmDepth)
		s.Adversaries[i] = as
	}
	return s
}
