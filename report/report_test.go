package report

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/shreekarashastry/invalidationgame/simulation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleResult(pos bool) *simulation.BatchResult {
	rec := &simulation.SimulationRecord{
		Index: 0,
		Adversaries: []simulation.AdversaryRecord{
			{ID: "A0", PoolRange: &simulation.RangePool{Low: 0, High: 6000}, Tickets: &simulation.RangePool{Low: 0, High: 100}, Blocks: 7},
			{ID: "A1", PoolRange: &simulation.RangePool{Low: 6000, High: 10000}, Blocks: 1},
		},
		Cycles: []simulation.CycleRecord{
			{Index: 0, DrawnBlockHash: 12, PowWinners: []string{"A0"}, PosWinners: []string{"A0"}, OnlineTickets: 5, DrawnTickets: []int{1, 2, 3, 4, 5}},
		},
		Near:    simulation.Threshold{Cycle: 2, Leader: "A0", Score: 2},
		Confirm: simulation.Threshold{Cycle: 7, Leader: "A0", Score: 7},
		Winner:  "A0",
	}
	summary := &simulation.BatchSummary{
		Total:          1,
		PoS:            pos,
		NearDepth:      2,
		ConfirmDepth:   6,
		NearAverage:    2,
		ConfirmAverage: 7,
		Duration:       1500 * time.Millisecond,
		Adversaries: []simulation.AdversarySummary{
			{ID: "A0", Hashpower: 60, Stake: 50, Wins: 1, WinPercent: 100, AvgBlocks: 7, AvgValidated: 7},
			{ID: "A1", Hashpower: 40, Stake: 50, Wins: 0, WinPercent: 0, AvgBlocks: 1, AvgValidated: 1,
				CatchUp: simulation.CatchUpTable(0.4, 6)},
		},
	}
	return &simulation.BatchResult{Seed: 9, Records: []*simulation.SimulationRecord{rec}, Summary: summary}
}

func TestNewDocumentTrims(t *testing.T) {
	res := sampleResult(true)
	doc := NewDocument(res, Options{})

	got := doc.Sims[0]
	assert.Nil(t, got.Adversaries[0].PoolRange)
	assert.Nil(t, got.Adversaries[0].Tickets)
	assert.Nil(t, got.Cycles[0].DrawnTickets)
	assert.Equal(t, 5, got.Cycles[0].OnlineTickets)

	// The source record is untouched.
	assert.NotNil(t, res.Records[0].Adversaries[0].PoolRange)
	assert.Len(t, res.Records[0].Cycles[0].DrawnTickets, 5)

	full := NewDocument(res, Options{KeepPools: true, KeepDraws: true})
	assert.Same(t, res.Records[0], full.Sims[0])
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteJSON(&buf, sampleResult(false), Options{KeepDraws: true}))

	var doc map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(buf.Bytes(), &doc))
	assert.Contains(t, doc, "sims")
	assert.Contains(t, doc, "summary")
	assert.Contains(t, doc, "seed")
	assert.NotContains(t, string(doc["sims"]), "prob_block_hashes")
	assert.Contains(t, string(doc["sims"]), "drawn_tickets")
}

func TestWriteSummaryPoW(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteSummary(&buf, sampleResult(false).Summary))
	out := buf.String()

	assert.Contains(t, out, "Pure PoW simulation")
	assert.Contains(t, out, "Number of simulations: 1")
	assert.Contains(t, out, "60.00%")
	assert.NotContains(t, out, "Stake")
	assert.Contains(t, out, "2-block advantage for 1 simulation reached in: 2 cycles")
	assert.Contains(t, out, "6-block advantage for 1 simulation reached in: 7 cycles")
	assert.Contains(t, out, "Attacker probability of catching up for A1")
	assert.NotContains(t, out, "catching up for A0")
	assert.Contains(t, out, "Assuming that A1 won't fork the blockchain, the attack cost 1 PoW block reward")
}

func TestWriteSummaryPoS(t *testing.T) {
	res := sampleResult(true)
	res.Summary.RewindBlocks = 2
	res.Summary.RewindAdversary = "A1"

	var buf bytes.Buffer
	require.NoError(t, WriteSummary(&buf, res.Summary))
	out := buf.String()

	assert.Contains(t, out, "PoW + PoS simulation")
	assert.Contains(t, out, "Simulating that adversary A1 is 2 blocks ahead")
	assert.Contains(t, out, "Avg Invalidated Blocks")
	assert.Contains(t, out, "due to PoS invalidation")
	assert.True(t, strings.Count(out, "\n") > 8)
}

func TestWriteSummaryTie(t *testing.T) {
	s := sampleResult(false).Summary
	s.Adversaries[0].Wins = 0
	s.Adversaries[1].AvgBlocks = 0

	var buf bytes.Buffer
	require.NoError(t, WriteSummary(&buf, s))
	assert.Contains(t, buf.String(), "Assuming that no adversary will fork the blockchain:")
	assert.Contains(t, buf.String(), "A0 lost the equivalent of 7 PoW block rewards")
	assert.NotContains(t, buf.String(), "A1 lost")
}
