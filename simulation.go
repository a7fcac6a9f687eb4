package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/shreekarashastry/invalidationgame/config"
	"github.com/shreekarashastry/invalidationgame/log"
	"github.com/shreekarashastry/invalidationgame/report"
	"github.com/shreekarashastry/invalidationgame/simulation"
	"github.com/shreekarashastry/invalidationgame/storage"
	"github.com/sirupsen/logrus"
)

// runOptions collects the command line of a batch run.
type runOptions struct {
	pow          []float64
	pos          []float64
	simulations  int
	rewindBlocks int
	rewindAdv    int
	seed         int64
	seedSet      bool
	workers      int

	quorum    string
	tieBreak  string
	poolMode  string
	maxCycles int

	output       string
	outputMode   string
	noOutputJSON bool
	keepPools    bool
	keepDraws    bool
	archiveDir   string
	verbose      bool

	configPath     string
	noCreateConfig bool
	logLevel       string
	logFile        string
	logMode        string
	logJSON        bool
}

func defaultRunOptions() *runOptions {
	return &runOptions{
		simulations: 1,
		workers:     1,
		maxCycles:   -1,
		output:      "invalidationgame.json",
		outputMode:  "w",
		configPath:  config.DefaultFile,
	}
}

// loadConfig reads the parameters file, creating it unless disabled.
func loadConfig(opts *runOptions) (*config.Config, error) {
	cfg, err := config.Load(opts.configPath, !opts.noCreateConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

// newLogger builds the run logger; flags win over the config file.
func newLogger(opts *runOptions, cfg *config.Config) (*logrus.Logger, io.Closer, error) {
	lc := log.Config{
		Level: cfg.Logging.Level,
		File:  cfg.Logging.File,
		Mode:  cfg.Logging.Mode,
		JSON:  opts.logJSON,
	}
	if opts.logLevel != "" {
		lc.Level = opts.logLevel
	}
	if opts.logFile != "" {
		lc.File = opts.logFile
	}
	if opts.logMode != "" {
		lc.Mode = opts.logMode
	}
	return log.New(lc)
}

// simulationConfig merges the parameters file and the flags.
func simulationConfig(opts *runOptions, cfg *config.Config) (simulation.Config, error) {
	params, err := cfg.Params()
	if err != nil {
		return simulation.Config{}, err
	}
	if opts.quorum != "" {
		if params.Quorum, err = simulation.ParseQuorumRule(opts.quorum); err != nil {
			return simulation.Config{}, err
		}
	}
	if opts.tieBreak != "" {
		if params.TieBreak, err = simulation.ParseTieBreak(opts.tieBreak); err != nil {
			return simulation.Config{}, err
		}
	}
	if opts.poolMode != "" {
		if params.PoolMode, err = simulation.ParsePoolMode(opts.poolMode); err != nil {
			return simulation.Config{}, err
		}
	}
	if opts.maxCycles >= 0 {
		params.MaxCycles = opts.maxCycles
	}

	stake := opts.pos
	if len(stake) == 0 {
		stake = make([]float64, len(opts.pow))
	}
	sc := simulation.Config{
		Hashpower:       opts.pow,
		Stake:           stake,
		Simulations:     opts.simulations,
		RewindAdversary: opts.rewindAdv,
		RewindBlocks:    opts.rewindBlocks,
		Params:          params,
	}
	return sc, sc.Validate()
}

func runSimulations(ctx context.Context, opts *runOptions, out io.Writer) error {
	if opts.outputMode != "w" && opts.outputMode != "a" {
		return fmt.Errorf("output mode must be 'w' or 'a', got %q", opts.outputMode)
	}
	if !opts.noOutputJSON {
		if err := checkOutputFile(opts.output); err != nil {
			return err
		}
	}
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}
	simCfg, err := simulationConfig(opts, cfg)
	if err != nil {
		return err
	}
	logger, closer, err := newLogger(opts, cfg)
	if err != nil {
		return err
	}
	defer closer.Close()

	batchOpts := []simulation.BatchOption{
		simulation.WithWorkers(opts.workers),
		simulation.WithBatchLogger(log.Component(logger, "simulation")),
	}
	if opts.seedSet {
		batchOpts = append(batchOpts, simulation.WithSeed(opts.seed))
	}
	batch, err := simulation.NewBatch(simCfg, batchOpts...)
	if err != nil {
		return err
	}

	res, err := runWithProgress(ctx, batch, log.Component(logger, "progress"))
	if err != nil {
		return err
	}

	if opts.archiveDir != "" {
		if err := archiveBatch(opts.archiveDir, res, log.Component(logger, "archive")); err != nil {
			return err
		}
	}
	ropts := report.Options{KeepPools: opts.keepPools, KeepDraws: opts.keepDraws}
	if !opts.noOutputJSON {
		if err := writeOutputFile(opts.output, opts.outputMode, res, ropts); err != nil {
			return err
		}
	}
	if opts.verbose {
		if err := report.WriteJSON(out, res, ropts); err != nil {
			return err
		}
	}
	return report.WriteSummary(out, res.Summary)
}

// runWithProgress runs the batch while logging each record as it is published.
func runWithProgress(ctx context.Context, batch *simulation.Batch, logger *logrus.Entry) (*simulation.BatchResult, error) {
	records := make(chan *simulation.SimulationRecord, 64)
	sub := batch.SubscribeRecords(records)
	logRecord := func(rec *simulation.SimulationRecord) {
		logger.WithFields(logrus.Fields{
			"sim":    rec.Index,
			"winner": rec.Winner,
			"cycles": rec.Confirm.Cycle,
		}).Info("Simulation finished")
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case rec := <-records:
				logRecord(rec)
			case <-sub.Err():
				return
			}
		}
	}()

	res, err := batch.Run(ctx)
	sub.Unsubscribe()
	<-done
	for {
		select {
		case rec := <-records:
			logRecord(rec)
		default:
			return res, err
		}
	}
}

func archiveBatch(dir string, res *simulation.BatchResult, logger *logrus.Entry) error {
	db, err := storage.NewBadger(dir)
	if err != nil {
		return fmt.Errorf("failed to open archive: %w", err)
	}
	defer db.Close()

	id, err := storage.NewArchive(db).SaveBatch(res)
	if err != nil {
		return fmt.Errorf("failed to archive batch: %w", err)
	}
	logger.WithFields(logrus.Fields{"id": id, "dir": dir}).Info("Batch archived")
	return nil
}

// checkOutputFile refuses to write results over anything but a plain,
// non-executable file. A missing file is fine.
func checkOutputFile(path string) error {
	fi, err := os.Lstat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to inspect output file: %w", err)
	}
	if !fi.Mode().IsRegular() {
		return fmt.Errorf("output file %s is not a regular file", path)
	}
	if fi.Mode().Perm()&0o111 != 0 {
		return fmt.Errorf("output file %s is executable", path)
	}
	return nil
}

func writeOutputFile(path, mode string, res *simulation.BatchResult, ropts report.Options) error {
	if err := checkOutputFile(path); err != nil {
		return err
	}
	flags := os.O_CREATE | os.O_WRONLY | os.O_TRUNC
	if mode == "a" {
		flags = os.O_CREATE | os.O_WRONLY | os.O_APPEND
	}
	f, err := os.OpenFile(path, flags, 0644)
	if err != nil {
		return fmt.Errorf("failed to open output file: %w", err)
	}
	if err := report.WriteJSON(f, res, ropts); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
