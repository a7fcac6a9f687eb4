package simulation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func batchConfig(n int, hashpower, stake []float64) Config {
	cfg := testConfig(hashpower, stake)
	cfg.Simulations = n
	return cfg
}

func TestNewBatchRejects(t *testing.T) {
	_, err := NewBatch(batchConfig(0, []float64{50, 50}, nil))
	assert.True(t, errors.Is(err, ErrConfiguration))

	_, err = NewBatch(batchConfig(5, []float64{50, 40}, nil))
	assert.True(t, errors.Is(err, ErrConfiguration))
}

func TestBatchWorkersDoNotChangeResults(t *testing.T) {
	cfg := batchConfig(24, []float64{55, 45}, []float64{50, 50})
	run := func(workers int) *BatchResult {
		b, err := NewBatch(cfg, WithSeed(77), WithWorkers(workers))
		require.NoError(t, err)
		res, err := b.Run(context.Background())
		require.NoError(t, err)
		return res
	}

	serial, parallel := run(1), run(6)
	require.Len(t, serial.Records, 24)
	require.Len(t, parallel.Records, 24)
	for i := range serial.Records {
		assert.Equal(t, i, serial.Records[i].Index)
		assert.Equal(t, DeriveSeed(77, i), serial.Records[i].Seed)
		assert.Equal(t, serial.Records[i].Fingerprint(), parallel.Records[i].Fingerprint(), "simulation %d", i)
	}
	assert.Equal(t, serial.Summary.Adversaries[0].Wins, parallel.Summary.Adversaries[0].Wins)
	assert.Equal(t, int64(77), serial.Seed)
}

func TestBatchFeedOrder(t *testing.T) {
	const n = 30
	b, err := NewBatch(batchConfig(n, []float64{50, 50}, nil), WithSeed(3), WithWorkers(8))
	require.NoError(t, err)

	ch := make(chan *SimulationRecord, n)
	sub := b.SubscribeRecords(ch)
	defer sub.Unsubscribe()

	res, err := b.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, ch, n)
	for i := 0; i < n; i++ {
		rec := <-ch
		assert.Equal(t, i, rec.Index)
		assert.Same(t, res.Records[i], rec)
	}
}

func TestBatchCancelled(t *testing.T) {
	b, err := NewBatch(batchConfig(1000, []float64{50, 50}, nil), WithSeed(1), WithWorkers(2))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = b.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestBatchRandomSeed(t *testing.T) {
	a, err := NewBatch(batchConfig(1, []float64{50, 50}, nil))
	require.NoError(t, err)
	b, err := NewBatch(batchConfig(1, []float64{50, 50}, nil))
	require.NoError(t, err)
	assert.NotEqual(t, a.Seed(), b.Seed())
}

func TestBatchMajorityWins(t *testing.T) {
	tests := []struct {
		name      string
		hashpower []float64
		stake     []float64
	}{
		{"60/40", []float64{60, 40}, nil},
		{"67/33", []float64{67, 33}, nil},
		{"60/40 equal stake", []float64{60, 40}, []float64{50, 50}},
		{"60/40 stake 67/33", []float64{60, 40}, []float64{67, 33}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := NewBatch(batchConfig(400, tt.hashpower, tt.stake), WithSeed(2024), WithWorkers(4))
			require.NoError(t, err)
			res, err := b.Run(context.Background())
			require.NoError(t, err)

			s := res.Summary
			assert.Equal(t, 400, s.Total)
			a0 := s.Adversary("A0")
			require.NotNil(t, a0)
			assert.Greater(t, a0.WinPercent, 50.0)
			assert.InDelta(t, 100.0, a0.WinPercent+s.Adversary("A1").WinPercent, 1e-9)
			assert.GreaterOrEqual(t, s.ConfirmAverage, s.NearAverage)
			assert.GreaterOrEqual(t, s.ConfirmAverage, float64(DefaultConfirmDepth))
			assert.Positive(t, b.probs.Len(), "catch-up probabilities are cached per batch")
		})
	}
}

func TestBatchStakeMajorityInvalidates(t *testing.T) {
	b, err := NewBatch(batchConfig(1000, []float64{60, 40}, []float64{67, 33}), WithSeed(5), WithWorkers(4))
	require.NoError(t, err)
	res, err := b.Run(context.Background())
	require.NoError(t, err)

	s := res.Summary
	require.True(t, s.PoS)
	a0, a1 := s.Adversary("A0"), s.Adversary("A1")
	require.NotNil(t, a0)
	require.NotNil(t, a1)
	assert.Greater(t, a0.WinPercent, 50.0)
	assert.Greater(t, a1.AvgInvalidated, a0.AvgInvalidated)
	assert.Greater(t, a1.AvgInvalidated, 0.0)
}

func TestAggregate(t *testing.T) {
	cfg := batchConfig(2, []float64{60, 40}, nil)
	cfg.RewindAdversary = 1
	cfg.RewindBlocks = 1
	records := []*SimulationRecord{
		{
			Near:     Threshold{Cycle: 2, Leader: "A0"},
			Confirm:  Threshold{Cycle: 8, Leader: "A0"},
			Winner:   "A0",
			Duration: 2 * time.Millisecond,
			Adversaries: []AdversaryRecord{
				{ID: "A0", EffectiveHashpower: 60, Blocks: 7, Validated: 7, Mined: 7},
				{ID: "A1", EffectiveHashpower: 40, Blocks: 1, Validated: 1, Mined: 1},
			},
		},
		{
			Near:     Threshold{Cycle: 4, Leader: "A1"},
			Confirm:  Threshold{Cycle: 12, Leader: "A1"},
			Winner:   "A1",
			Duration: 4 * time.Millisecond,
			Adversaries: []AdversaryRecord{
				{ID: "A0", EffectiveHashpower: 60, Blocks: 3, Validated: 3, Mined: 3},
				{ID: "A1", EffectiveHashpower: 40, Blocks: 9, Validated: 9, Mined: 9},
			},
		},
	}
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s := Aggregate(cfg, records, start, start.Add(time.Second))

	assert.Equal(t, 2, s.Total)
	assert.False(t, s.PoS)
	assert.Equal(t, "A1", s.RewindAdversary)
	assert.Equal(t, 1, s.RewindBlocks)
	assert.Equal(t, time.Second, s.Duration)
	assert.Equal(t, 3*time.Millisecond, s.MeanSimDuration)
	assert.InDelta(t, 3.0, s.NearAverage, 1e-12)
	assert.InDelta(t, 10.0, s.ConfirmAverage, 1e-12)
	assert.InDelta(t, 2.8284271, s.ConfirmStdDev, 1e-6)

	require.Len(t, s.Adversaries, 2)
	a0 := s.Adversary("A0")
	assert.Equal(t, 1, a0.Wins)
	assert.InDelta(t, 50.0, a0.WinPercent, 1e-12)
	assert.InDelta(t, 5.0, a0.AvgBlocks, 1e-12)
	assert.InDelta(t, 60.0, a0.Hashpower, 1e-12)
	assert.Len(t, a0.CatchUp, DefaultConfirmDepth)
	assert.InDelta(t, AttackerSuccessProbability(0.4, 1), s.Adversary("A1").CatchUp[0], 1e-12)
	assert.Nil(t, s.Adversary("A7"))
}

func TestAggregateEmpty(t *testing.T) {
	s := Aggregate(batchConfig(1, []float64{50, 50}, nil), nil, time.Time{}, time.Time{})
	assert.Zero(t, s.Total)
	assert.Empty(t, s.Adversaries)
}
