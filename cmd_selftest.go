package main

import (
	"github.com/spf13/cobra"
)

func newSelftestCmd(global *runOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "selftest",
		Short: "Check basic functionality and exit",
		Long: `Prints the catch-up table for q = 0.1, which must match page 8 of the
Bitcoin whitepaper, then runs one pure PoW simulation where A0 holds 90%
of the hashpower and A1 10%, printing it in full.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			printProbabilityTable(out, 0.1, 10)

			opts := *global
			opts.pow = []float64{90, 10}
			opts.pos = nil
			opts.simulations = 1
			opts.rewindBlocks = 0
			opts.rewindAdv = 0
			opts.seedSet = false
			opts.verbose = true
			opts.noOutputJSON = true
			opts.archiveDir = ""
			return runSimulations(cmd.Context(), &opts, out)
		},
	}
}
