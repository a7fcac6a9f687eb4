package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/shreekarashastry/invalidationgame/report"
	"github.com/shreekarashastry/invalidationgame/simulation"
	"github.com/shreekarashastry/invalidationgame/storage"
	"github.com/spf13/cobra"
)

func newArchiveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "archive",
		Short: "Inspect batches stored with --archive",
		Long: `List and replay batches stored in a badger archive.

Examples:
  invalidationgame -w 60 -w 40 -i 100 --archive runs.db
  invalidationgame archive list --dir runs.db
  invalidationgame archive show --dir runs.db <id>`,
	}
	cmd.PersistentFlags().String("dir", "invalidationgame.db", "Archive directory")
	cmd.AddCommand(
		newArchiveListCmd(),
		newArchiveShowCmd(),
	)
	return cmd
}

func openArchive(cmd *cobra.Command) (*storage.Archive, func() error, error) {
	dir, _ := cmd.Flags().GetString("dir")
	db, err := storage.NewBadger(dir)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open archive: %w", err)
	}
	return storage.NewArchive(db), db.Close, nil
}

func newArchiveListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List archived batches, oldest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			archive, closeDB, err := openArchive(cmd)
			if err != nil {
				return err
			}
			defer closeDB()

			entries, err := archive.List()
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No archived batches.")
				return nil
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tCREATED\tSIMULATIONS\tPOS\tSEED")
			for _, e := range entries {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%v\t%d\n", e.ID, humanize.Time(e.Created),
					humanize.Comma(int64(e.Summary.Total)), e.Summary.PoS, e.Seed)
			}
			return tw.Flush()
		},
	}
}

func newArchiveShowCmd() *cobra.Command {
	var records bool
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Print the summary of an archived batch",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			archive, closeDB, err := openArchive(cmd)
			if err != nil {
				return err
			}
			defer closeDB()

			entry, err := archive.Batch(args[0])
			if err != nil {
				return err
			}
			res := &simulation.BatchResult{Seed: entry.Seed, Summary: entry.Summary}
			if records {
				// Records verifies every fingerprint before returning.
				if res.Records, err = archive.Records(entry.ID); err != nil {
					return err
				}
				full := report.Options{KeepPools: true, KeepDraws: true}
				if err := report.WriteJSON(cmd.OutOrStdout(), res, full); err != nil {
					return err
				}
			}
			return report.WriteSummary(cmd.OutOrStdout(), res.Summary)
		},
	}
	cmd.Flags().BoolVar(&records, "records", false, "Also print every simulation record as JSON")
	return cmd
}
