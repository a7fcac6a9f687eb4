// Package report renders batch results for people (console table) and
// machines (JSON document). It never changes the records it is given.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/shreekarashastry/invalidationgame/simulation"
)

// Options selects what the JSON document keeps.
type Options struct {
	KeepPools bool // keep block-hash pools and ticket ranges
	KeepDraws bool // keep the tickets drawn every cycle
}

// Document is the JSON shape written to the output file.
type Document struct {
	Seed    int64                          `json:"seed"`
	Sims    []*simulation.SimulationRecord `json:"sims"`
	Summary *simulation.BatchSummary       `json:"summary"`
}

// NewDocument builds the output document, trimming detail per opts.
func NewDocument(res *simulation.BatchResult, opts Options) *Document {
	doc := &Document{Seed: res.Seed, Summary: res.Summary}
	doc.Sims = make([]*simulation.SimulationRecord, len(res.Records))
	for i, rec := range res.Records {
		doc.Sims[i] = trim(rec, opts)
	}
	return doc
}

func trim(rec *simulation.SimulationRecord, opts Options) *simulation.SimulationRecord {
	if opts.KeepPools && opts.KeepDraws {
		return rec
	}
	out := *rec
	if !opts.KeepPools {
		out.Adversaries = make([]simulation.AdversaryRecord, len(rec.Adversaries))
		for i, a := range rec.Adversaries {
			a.PoolRange = nil
			a.PoolHashes = nil
			a.Tickets = nil
			out.Adversaries[i] = a
		}
	}
	if !opts.KeepDraws {
		out.Cycles = make([]simulation.CycleRecord, len(rec.Cycles))
		for i, c := range rec.Cycles {
			c.DrawnTickets = nil
			out.Cycles[i] = c
		}
	}
	return &out
}

// WriteJSON writes the document as indented JSON.
func WriteJSON(w io.Writer, res *simulation.BatchResult, opts Options) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(NewDocument(res, opts)); err != nil {
		return fmt.Errorf("encoding report: %w", err)
	}
	return nil
}

// WriteSummary prints the human summary of a batch.
func WriteSummary(w io.Writer, s *simulation.BatchSummary) error {
	var b strings.Builder
	if s.PoS {
		b.WriteString("\nPoW + PoS simulation:\n_____________________\n")
	} else {
		b.WriteString("\nPure PoW simulation:\n--------------------\n")
	}
	fmt.Fprintf(&b, "Number of simulations: %s\n", humanize.Comma(int64(s.Total)))
	if s.RewindBlocks > 0 {
		fmt.Fprintf(&b, "Simulating that adversary %s is %d %s ahead\n",
			s.RewindAdversary, s.RewindBlocks, plural(s.RewindBlocks, "block", "blocks"))
	}

	tw := tabwriter.NewWriter(&b, 0, 0, 2, ' ', tabwriter.AlignRight)
	if s.PoS {
		fmt.Fprintln(tw, "Adversary\tHashpower\tStake\tSimulations won\tSimulations won\tAvg Invalidated Blocks\tAvg Validated Blocks\t")
		for _, a := range s.Adversaries {
			fmt.Fprintf(tw, "%s\t%.2f%%\t%.2f%%\t%d\t%s%%\t%s\t%s\t\n", a.ID, a.Hashpower, a.Stake, a.Wins,
				humanize.FtoaWithDigits(a.WinPercent, 4), humanize.FtoaWithDigits(a.AvgInvalidated, 6),
				humanize.FtoaWithDigits(a.AvgValidated, 6))
		}
	} else {
		fmt.Fprintln(tw, "Adversary\tHashpower\tSimulations won\tSimulations won\t")
		for _, a := range s.Adversaries {
			fmt.Fprintf(tw, "%s\t%.2f%%\t%d\t%s%%\t\n", a.ID, a.Hashpower, a.Wins, humanize.FtoaWithDigits(a.WinPercent, 4))
		}
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	fmt.Fprintf(&b, "Total time for the batch of simulations: %s\n", s.Duration)
	fmt.Fprintf(&b, "Average duration of simulations: %s\n", s.MeanSimDuration)
	avg := ""
	if s.Total > 1 {
		avg = "Average of "
	}
	fmt.Fprintf(&b, "%s%d-block advantage for %d %s reached in: %s cycles\n", avg, s.NearDepth, s.Total,
		plural(s.Total, "simulation", "simulations"), humanize.FtoaWithDigits(s.NearAverage, 6))
	fmt.Fprintf(&b, "%s%d-block advantage for %d %s reached in: %s cycles\n", avg, s.ConfirmDepth, s.Total,
		plural(s.Total, "simulation", "simulations"), humanize.FtoaWithDigits(s.ConfirmAverage, 6))

	writeCatchUp(&b, s)
	writeLosses(&b, s)

	_, err := io.WriteString(w, b.String())
	return err
}

// writeCatchUp prints the catch-up table of every adversary without a majority.
func writeCatchUp(b *strings.Builder, s *simulation.BatchSummary) {
	for _, a := range s.Adversaries {
		q := simulation.EffectiveShare(a.Hashpower, a.Stake, s.PoS)
		if q > 0.5 || (!s.PoS && q == 0.5) {
			continue
		}
		fmt.Fprintf(b, "Attacker probability of catching up for %s: (z=number of blocks behind)\n", a.ID)
		parts := make([]string, len(a.CatchUp))
		for i, p := range a.CatchUp {
			parts[i] = fmt.Sprintf("z=%d, p=%s", i+1, humanize.FtoaWithDigits(p, 6))
		}
		b.WriteString(strings.Join(parts, "; ") + "\n")
	}
}

// writeLosses prints what the losing side forgoes in block rewards by not
// forking the chain after losing the race.
func writeLosses(b *strings.Builder, s *simulation.BatchSummary) {
	if len(s.Adversaries) == 0 {
		return
	}
	most, least := s.Adversaries[0].Wins, s.Adversaries[0].Wins
	for _, a := range s.Adversaries[1:] {
		most = max(most, a.Wins)
		least = min(least, a.Wins)
	}

	if most == least {
		b.WriteString("Assuming that no adversary will fork the blockchain:\n")
		for _, a := range s.Adversaries {
			if a.AvgBlocks > 0 {
				fmt.Fprintf(b, "%s lost the equivalent of %s PoW block rewards, on average\n",
					a.ID, humanize.FtoaWithDigits(a.AvgBlocks, 6))
			}
		}
		return
	}

	for _, a := range s.Adversaries {
		switch {
		case a.AvgBlocks > 0 && a.Wins < most:
			suffix := "PoW block reward, on average."
			if s.PoS {
				suffix = "PoW block reward, on average, due to PoS invalidation of bad PoW mined blocks."
			}
			fmt.Fprintf(b, "Assuming that %s won't fork the blockchain, the attack cost %s %s\n",
				a.ID, humanize.FtoaWithDigits(a.AvgBlocks, 6), suffix)
		case a.AvgBlocks == 0:
			fmt.Fprintf(b, "Assuming that %s won't try to fork the blockchain, %s won't forgo any PoW reward because no block was successfully mined.\n",
				a.ID, a.ID)
		}
	}
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
