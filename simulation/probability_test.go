package simulation

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAttackerSuccessProbabilityWhitepaper(t *testing.T) {
	// Bitcoin whitepaper, section 11.
	want := map[float64][]float64{
		0.1: {1.0000000, 0.2045873, 0.0509779, 0.0131722, 0.0034552, 0.0009137,
			0.0002428, 0.0000647, 0.0000173, 0.0000046, 0.0000012},
		0.3: {1.0000000, 0.1773523, 0.0416605},
	}
	zs := map[float64][]int{
		0.1: {0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10},
		0.3: {0, 5, 10},
	}
	for q, ps := range want {
		for i, p := range ps {
			z := zs[q][i]
			assert.InDelta(t, p, AttackerSuccessProbability(q, z), 1e-7, "q=%v z=%d", q, z)
		}
	}
}

func TestAttackerSuccessProbabilityEdges(t *testing.T) {
	assert.Equal(t, 1.0, AttackerSuccessProbability(0.5, 6))
	assert.Equal(t, 1.0, AttackerSuccessProbability(0.7, 6))
	assert.Equal(t, 0.0, AttackerSuccessProbability(0, 3))
	assert.Equal(t, 1.0, AttackerSuccessProbability(0, 0))
	assert.Equal(t, AttackerSuccessProbability(0.2, 0), AttackerSuccessProbability(0.2, -4))
}

func TestEffectiveShare(t *testing.T) {
	assert.InDelta(t, 0.4, EffectiveShare(40, 90, false), 1e-12)
	assert.InDelta(t, math.Pow(0.4*0.3, 0.7), EffectiveShare(40, 30, true), 1e-12)
	assert.InDelta(t, 0.5, EffectiveShare(50, 50, true), 1e-12)
	assert.Zero(t, EffectiveShare(40, 0, true))
}

func TestCatchUpTable(t *testing.T) {
	table := CatchUpTable(0.1, DefaultConfirmDepth)
	assert.Len(t, table, DefaultConfirmDepth)
	assert.InDelta(t, 0.2045873, table[0], 1e-7)
	for i := 1; i < len(table); i++ {
		assert.Less(t, table[i], table[i-1])
	}
}

func TestProbabilityCache(t *testing.T) {
	c, err := NewProbabilityCache(8)
	require.NoError(t, err)
	assert.Zero(t, c.Len())

	for z := 0; z <= 6; z++ {
		assert.Equal(t, AttackerSuccessProbability(0.3, z), c.AttackerSuccessProbability(0.3, z))
	}
	assert.Equal(t, 7, c.Len())
	assert.Equal(t, AttackerSuccessProbability(0.3, 4), c.AttackerSuccessProbability(0.3, 4))
	assert.Equal(t, 7, c.Len())

	var none *ProbabilityCache
	assert.Equal(t, AttackerSuccessProbability(0.2, 3), none.AttackerSuccessProbability(0.2, 3))
	assert.Zero(t, none.Len())

	_, err = NewProbabilityCache(0)
	assert.Error(t, err)
}
