package main

import (
	"fmt"
	"io"

	"github.com/shreekarashastry/invalidationgame/simulation"
	"github.com/spf13/cobra"
)

func newProbabilityCmd() *cobra.Command {
	var (
		q    float64
		maxZ int
	)
	cmd := &cobra.Command{
		Use:   "probability",
		Short: "Print the attacker catch-up probability table",
		Long: `Prints the probability that an attacker with share q of the hashpower
ever catches up from z blocks behind, for z = 0..max, as computed in
section 11 of the Bitcoin whitepaper.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if q < 0 || q > 1 {
				return fmt.Errorf("q must be within [0, 1], got %v", q)
			}
			if maxZ < 0 {
				return fmt.Errorf("z must not be negative, got %d", maxZ)
			}
			printProbabilityTable(cmd.OutOrStdout(), q, maxZ)
			return nil
		},
	}
	cmd.Flags().Float64VarP(&q, "q", "q", 0.1, "Attacker share of the hashpower, within [0, 1]")
	cmd.Flags().IntVarP(&maxZ, "z", "z", 10, "Largest number of blocks behind")
	return cmd
}

func printProbabilityTable(w io.Writer, q float64, maxZ int) {
	fmt.Fprintf(w, "q = %v\n", q)
	for z := 0; z <= maxZ; z++ {
		fmt.Fprintf(w, "z = %d P = %.7f\n", z, simulation.AttackerSuccessProbability(q, z))
	}
}
