package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var version = "0.2.0-dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := defaultRunOptions()
	rootCmd := &cobra.Command{
		Use:   "invalidationgame",
		Short: "Simulates PoW mining races with PoS invalidation",
		Long: `invalidationgame runs Monte Carlo simulations of a hybrid PoW/PoS chain
race between adversaries. Every cycle one block hash is drawn from a shared
hash space; the adversaries owning it mine a block, and when PoS is on the
online tickets vote on which of those blocks survive. A simulation ends when
one chain is 6 blocks ahead of another.

Examples:
  invalidationgame -w 60 -w 40 -i 1000
  invalidationgame -w 50 -w 50 -s 30 -s 70 -i 500 --workers 8
  invalidationgame -w 90 -w 10 --rewind-blocks 2 --rewind-adv 1`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.seedSet = cmd.Flags().Changed("seed")
			return runSimulations(cmd.Context(), opts, cmd.OutOrStdout())
		},
	}

	f := rootCmd.Flags()
	f.Float64SliceVarP(&opts.pow, "pow", "w", nil, "Adversary PoW hashpower in percent (repeat once per adversary)")
	f.Float64SliceVarP(&opts.pos, "pos", "s", nil, "Adversary PoS stake in percent (repeat once per adversary)")
	f.IntVarP(&opts.simulations, "simulations", "i", opts.simulations, "Number of simulations to run")
	f.IntVar(&opts.rewindBlocks, "rewind-blocks", 0, "Blocks pre-mined by the rewind adversary")
	f.IntVar(&opts.rewindAdv, "rewind-adv", 0, "Index of the adversary that starts ahead")
	f.Int64Var(&opts.seed, "seed", 0, "Master seed for a reproducible batch (default: random)")
	f.IntVar(&opts.workers, "workers", opts.workers, "Simulations run in parallel")
	f.StringVar(&opts.quorum, "quorum", "", "PoS quorum rule: majority or plurality (default: config file)")
	f.StringVar(&opts.tieBreak, "tie-break", "", "PoS tie-break: invalidate or earliest (default: config file)")
	f.StringVar(&opts.poolMode, "pool-mode", "", "Block-hash pools: partition or sampled (default: config file)")
	f.IntVar(&opts.maxCycles, "max-cycles", -1, "Abort a simulation after this many cycles, 0 = unlimited (default: config file)")
	f.StringVarP(&opts.output, "output", "o", opts.output, "JSON output file")
	f.StringVar(&opts.outputMode, "output-mode", opts.outputMode, "Overwrite (w) or append (a) to the output file")
	f.BoolVar(&opts.noOutputJSON, "no-output-json", false, "Don't write the JSON output file")
	f.BoolVar(&opts.keepPools, "no-erase-prob", false, "Keep block-hash pools and ticket ranges in the JSON output")
	f.BoolVar(&opts.keepDraws, "no-erase-drawn", false, "Keep the tickets drawn each cycle in the JSON output")
	f.StringVar(&opts.archiveDir, "archive", "", "Also store the batch in this badger directory")
	f.BoolVar(&opts.verbose, "verbose", false, "Print the simulations as JSON at the end")

	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&opts.configPath, "config", "c", opts.configPath, "Configuration file")
	pf.BoolVar(&opts.noCreateConfig, "no-create-config", false, "Don't create the configuration file from default values")
	pf.StringVar(&opts.logLevel, "log-level", "", "Log level: trace, debug, info, warn, error, critical (default: config file)")
	pf.StringVar(&opts.logFile, "log-file", "", "Log file (default: config file)")
	pf.StringVar(&opts.logMode, "log-mode", "", "Overwrite (w) or append (a) to the log file (default: config file)")
	pf.BoolVar(&opts.logJSON, "log-json", false, "Log to the console as JSON")

	rootCmd.AddCommand(
		newVersionCmd(),
		newProbabilityCmd(),
		newSelftestCmd(opts),
		newConfigCmd(opts),
		newArchiveCmd(),
	)
	return rootCmd
}
