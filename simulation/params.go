package simulation

import (
	"fmt"
	"math"
	"strings"
)

// Defaults taken from the Decred mainnet between 2016-02-08 and 2020-02-08.
const (
	DefaultHashSpace      = 10000 // two decimal places of hashpower
	DefaultTicketPoolSize = 40960
	DefaultNearDepth      = 2
	DefaultConfirmDepth   = 6

	// hashpowerTolerance is how far the hashpower sum may drift from 100.
	hashpowerTolerance = 0.005
)

// VoteWeight is one bucket of the empirical online-ticket distribution:
// Blocks blocks were observed with Votes votes.
type VoteWeight struct {
	Votes  int
	Blocks int
}

// DefaultVoteDistribution returns the observed number of blocks per vote count.
func DefaultVoteDistribution() []VoteWeight {
	return []VoteWeight{
		{Votes: 5, Blocks: 401716},
		{Votes: 4, Blocks: 22561},
		{Votes: 3, Blocks: 5617},
	}
}

// PoolMode selects how block-hash pools are carved out of the hash space.
type PoolMode int

const (
	// PoolPartition gives every adversary a contiguous disjoint range.
	PoolPartition PoolMode = iota
	// PoolSampled lets every adversary sample its hashes independently;
	// pools may overlap (simultaneous mining) and leave gaps (empty cycles).
	PoolSampled
)

func (m PoolMode) String() string {
	switch m {
	case PoolPartition:
		return "partition"
	case PoolSampled:
		return "sampled"
	default:
		return fmt.Sprintf("PoolMode(%d)", int(m))
	}
}

// ParsePoolMode parses "partition" or "sampled".
func ParsePoolMode(s string) (PoolMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "partition":
		return PoolPartition, nil
	case "sampled":
		return PoolSampled, nil
	}
	return 0, fmt.Errorf("unknown pool mode %q (valid: partition, sampled)", s)
}

// QuorumRule decides which PoW winners the drawn tickets validate.
type QuorumRule int

const (
	// QuorumMajority validates a PoW winner holding more than half the online tickets.
	QuorumMajority QuorumRule = iota
	// QuorumPlurality validates the PoW winner holding the most online tickets.
	QuorumPlurality
)

func (q QuorumRule) String() string {
	switch q {
	case QuorumMajority:
		return "majority"
	case QuorumPlurality:
		return "plurality"
	default:
		return fmt.Sprintf("QuorumRule(%d)", int(q))
	}
}

// ParseQuorumRule parses "majority" or "plurality".
func ParseQuorumRule(s string) (QuorumRule, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "majority":
		return QuorumMajority, nil
	case "plurality":
		return QuorumPlurality, nil
	}
	return 0, fmt.Errorf("unknown quorum rule %q (valid: majority, plurality)", s)
}

// TieBreak resolves exactly equal vote counts.
type TieBreak int

const (
	// TieBreakInvalidate rejects tied blocks.
	TieBreakInvalidate TieBreak = iota
	// TieBreakEarliest validates the tied PoW winner with the lowest index.
	TieBreakEarliest
)

func (t TieBreak) String() string {
	switch t {
	case TieBreakInvalidate:
		return "invalidate"
	case TieBreakEarliest:
		return "earliest"
	default:
		return fmt.Sprintf("TieBreak(%d)", int(t))
	}
}

// ParseTieBreak parses "invalidate" or "earliest".
func ParseTieBreak(s string) (TieBreak, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "invalidate":
		return TieBreakInvalidate, nil
	case "earliest":
		return TieBreakEarliest, nil
	}
	return 0, fmt.Errorf("unknown tie-break %q (valid: invalidate, earliest)", s)
}

// Params are the protocol parameters shared by every simulation in a batch.
type Params struct {
	HashSpace        int
	TicketPoolSize   int
	VoteDistribution []VoteWeight
	NearDepth        int
	ConfirmDepth     int
	PoolMode         PoolMode
	Quorum           QuorumRule
	TieBreak         TieBreak
	MaxCycles        int // 0 = unlimited
}

// DefaultParams returns the parameters of the reference network.
func DefaultParams() Params {
	return Params{
		HashSpace:        DefaultHashSpace,
		TicketPoolSize:   DefaultTicketPoolSize,
		VoteDistribution: DefaultVoteDistribution(),
		NearDepth:        DefaultNearDepth,
		ConfirmDepth:     DefaultConfirmDepth,
	}
}

func (p Params) voteWeights() []float64 {
	w := make([]float64, len(p.VoteDistribution))
	for i, v := range p.VoteDistribution {
		w[i] = float64(v.Blocks)
	}
	return w
}

// Config is the validated value object the engine runs from.
type Config struct {
	Hashpower       []float64
	Stake           []float64
	Simulations     int
	RewindAdversary int
	RewindBlocks    int
	Params          Params
}

// PoS reports whether the PoS validation layer takes part.
func (c Config) PoS() bool {
	for _, s := range c.Stake {
		if s > 0 {
			return true
		}
	}
	return false
}

// Validate rejects configurations that cannot be simulated.
func (c Config) Validate() error {
	if len(c.Hashpower) < 2 {
		return configErrorf("at least 2 PoW adversaries are required, got %d", len(c.Hashpower))
	}
	var total float64
	for i, h := range c.Hashpower {
		if math.IsNaN(h) || h <= 0 || h > 100 {
			return configErrorf("hashpower of A%d must be in (0, 100], got %v", i, h)
		}
		total += h
	}
	if math.Abs(total-100) > hashpowerTolerance {
		return configErrorf("total hashpower must sum 100, but summed %.4f", total)
	}
	if len(c.Stake) > 0 {
		if len(c.Stake) != len(c.Hashpower) {
			return configErrorf("the number of PoW (%d) and PoS (%d) adversaries don't match",
				len(c.Hashpower), len(c.Stake))
		}
		var staked float64
		for i, s := range c.Stake {
			if math.IsNaN(s) || s < 0 || s > 100 {
				return configErrorf("stake of A%d must be in [0, 100], got %v", i, s)
			}
			staked += s
		}
		if staked > 100+hashpowerTolerance {
			return configErrorf("total stake must not exceed 100, but summed %.4f", staked)
		}
	}
	if c.Simulations < 1 {
		return configErrorf("simulation count must be at least 1, got %d", c.Simulations)
	}
	if c.RewindBlocks < 0 {
		return configErrorf("rewind block count must not be negative, got %d", c.RewindBlocks)
	}
	if c.RewindAdversary < 0 || c.RewindAdversary >= len(c.Hashpower) {
		return configErrorf("rewind adversary A%d does not exist (%d adversaries)",
			c.RewindAdversary, len(c.Hashpower))
	}
	return c.Params.validate()
}

func (p Params) validate() error {
	if p.HashSpace < 100 {
		return configErrorf("hash space must be at least 100, got %d", p.HashSpace)
	}
	if p.TicketPoolSize < 1 {
		return configErrorf("ticket pool size must be positive, got %d", p.TicketPoolSize)
	}
	if len(p.VoteDistribution) == 0 {
		return configErrorf("vote distribution is empty")
	}
	var blocks int
	for _, v := range p.VoteDistribution {
		if v.Votes < 1 || v.Votes > p.TicketPoolSize {
			return configErrorf("vote count %d outside [1, %d]", v.Votes, p.TicketPoolSize)
		}
		if v.Blocks < 0 {
			return configErrorf("block count for %d votes is negative", v.Votes)
		}
		blocks += v.Blocks
	}
	if blocks == 0 {
		return configErrorf("vote distribution has no observed blocks")
	}
	if p.NearDepth < 1 || p.ConfirmDepth < p.NearDepth {
		return configErrorf("depths must satisfy 1 <= near (%d) <= confirm (%d)", p.NearDepth, p.ConfirmDepth)
	}
	if p.MaxCycles < 0 {
		return configErrorf("max cycles must not be negative, got %d", p.MaxCycles)
	}
	return nil
}
