package simulation

import (
	"fmt"
	"math"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultProbabilityCacheSize is the number of (q, z) pairs a batch keeps.
const DefaultProbabilityCacheSize = 4096

type probabilityKey struct {
	q float64
	z int
}

// ProbabilityCache memoizes AttackerSuccessProbability. It is safe for
// concurrent use, so one cache serves every simulation of a batch.
type ProbabilityCache struct {
	cache *lru.Cache[probabilityKey, float64]
}

func NewProbabilityCache(size int) (*ProbabilityCache, error) {
	cache, err := lru.New[probabilityKey, float64](size)
	if err != nil {
		return nil, fmt.Errorf("probability cache: %w", err)
	}
	return &ProbabilityCache{cache: cache}, nil
}

// AttackerSuccessProbability returns the memoized probability for (q, z).
// A nil cache computes every value.
func (c *ProbabilityCache) AttackerSuccessProbability(q float64, z int) float64 {
	if c == nil {
		return AttackerSuccessProbability(q, z)
	}
	key := probabilityKey{q: q, z: z}
	if v, ok := c.cache.Get(key); ok {
		return v
	}
	v := AttackerSuccessProbability(q, z)
	c.cache.Add(key, v)
	return v
}

// Len returns the number of cached pairs.
func (c *ProbabilityCache) Len() int {
	if c == nil {
		return 0
	}
	return c.cache.Len()
}

// AttackerSuccessProbability is the probability that an attacker holding a
// share q of the mining power ever catches up from z blocks behind
// (Nakamoto, "Bitcoin: A Peer-to-Peer Electronic Cash System", section 11).
func AttackerSuccessProbability(q float64, z int) float64 {
	if z < 0 {
		z = 0
	}
	if q >= 0.5 {
		return 1
	}
	if q <= 0 {
		if z == 0 {
			return 1
		}
		return 0
	}
	p := 1.0 - q
	lambda := float64(z) * (q / p)
	sum := 1.0
	for k := 0; k <= z; k++ {
		poisson := math.Exp(-lambda)
		for i := 1; i <= k; i++ {
			poisson *= lambda / float64(i)
		}
		sum -= poisson * (1 - math.Pow(q/p, float64(z-k)))
	}
	return sum
}

// EffectiveShare folds stake into the mining share: with PoS enabled a block
// needs both hashpower and votes, q = (h*s)^(1-s). Both inputs are percentages.
func EffectiveShare(hashpower, stake float64, pos bool) float64 {
	q := hashpower / 100
	if !pos {
		return q
	}
	s := stake / 100
	return math.Pow(q*s, 1-s)
}

// CatchUpTable returns the catch-up probability for z = 1..depth.
func CatchUpTable(q float64, depth int) []float64 {
	out := make([]float64, depth)
	for z := 1; z <= depth; z++ {
		out[z-1] = AttackerSuccessProbability(q, z)
	}
	return out
}
