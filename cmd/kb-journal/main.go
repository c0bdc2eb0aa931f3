package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/cognicore/chainkb/pkg/chainkb/trace"
	"github.com/cognicore/chainkb/pkg/chainkb/trace/sqlite"
)

type report struct {
	TotalEvents int64            `json:"total_events"`
	ByOp        map[string]int64 `json:"by_op"`
	TopItems    []itemEntry      `json:"top_items"`
}

type itemEntry struct {
	Item  string `json:"item"`
	Count int64  `json:"count"`
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var dbPath string

	root := &cobra.Command{
		Use:          "kb-journal",
		Short:        "Inspect a chainkb operation journal",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&dbPath, "db", "", "Journal database path (required)")

	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Print per-operation counts and the most touched items as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withJournal(cmd.Context(), dbPath, func(ctx context.Context, j trace.Journal) error {
				return writeStats(ctx, j, cmd.OutOrStdout())
			})
		},
	}

	var filter trace.Filter
	var op string
	eventsCmd := &cobra.Command{
		Use:   "events",
		Short: "List journal events in order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if op != "" {
				if !validOp(trace.Op(op)) {
					return fmt.Errorf("unknown op %q (want one of %v)", op, trace.Ops)
				}
				filter.Op = trace.Op(op)
			}
			return withJournal(cmd.Context(), dbPath, func(ctx context.Context, j trace.Journal) error {
				return writeEvents(ctx, j, filter, cmd.OutOrStdout())
			})
		},
	}
	eventsCmd.Flags().StringVar(&op, "op", "", "Only events with this operation")
	eventsCmd.Flags().StringVar(&filter.Item, "item", "", "Only events for this item, e.g. \"isa(cube, block)\"")
	eventsCmd.Flags().IntVar(&filter.Limit, "limit", 0, "Maximum events to print (0 = all)")

	root.AddCommand(statsCmd, eventsCmd)
	return root
}

func withJournal(ctx context.Context, dbPath string, fn func(context.Context, trace.Journal) error) error {
	if dbPath == "" {
		return errors.New("--db required")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if _, err := os.Stat(dbPath); err != nil {
		return fmt.Errorf("open journal: %w", err)
	}

	j, err := sqlite.OpenJournal(ctx, dbPath)
	if err != nil {
		return err
	}
	defer j.Close()

	return fn(ctx, j)
}

func writeStats(ctx context.Context, j trace.Journal, out io.Writer) error {
	stats, err := j.Stats(ctx)
	if err != nil {
		return fmt.Errorf("stats: %w", err)
	}

	rep := report{
		TotalEvents: stats.Total,
		ByOp:        make(map[string]int64, len(stats.ByOp)),
		TopItems:    make([]itemEntry, 0, len(stats.TopItems)),
	}
	for op, n := range stats.ByOp {
		rep.ByOp[string(op)] = n
	}
	for _, ic := range stats.TopItems {
		rep.TopItems = append(rep.TopItems, itemEntry{Item: ic.Item, Count: ic.Count})
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(rep)
}

func writeEvents(ctx context.Context, j trace.Journal, f trace.Filter, out io.Writer) error {
	events, err := j.Events(ctx, f)
	if err != nil {
		return fmt.Errorf("events: %w", err)
	}
	for _, ev := range events {
		fmt.Fprintf(out, "%s  %-7s %-4s %s", ev.At.UTC().Format(time.RFC3339), ev.Op, ev.Kind, ev.Item)
		if ev.Detail != "" {
			fmt.Fprintf(out, "  (%s)", ev.Detail)
		}
		fmt.Fprintln(out)
	}
	return nil
}

func validOp(op trace.Op) bool {
	for _, known := range trace.Ops {
		if op == known {
			return true
		}
	}
	return false
}
