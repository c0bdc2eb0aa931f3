package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/cognicore/chainkb/pkg/chainkb"
	"github.com/cognicore/chainkb/pkg/chainkb/config"
)

// options holds the persistent flags shared by every subcommand
type options struct {
	configPath  string
	loadPaths   []string
	journalPath string
	verbosity   int
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:   "chainkb",
		Short: "Forward-chaining knowledge base with truth maintenance",
		Long: `chainkb stores facts and rules, derives every consequence as knowledge
is added, and cascades retractions through the support graph.

Run without a subcommand to start the interactive shell.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withReasoner(cmd.Context(), opts, func(r *chainkb.Reasoner) error {
				return runREPL(cmd.Context(), r, cmd.InOrStdin(), cmd.OutOrStdout())
			})
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", "", "Config file (YAML)")
	flags.StringArrayVar(&opts.loadPaths, "load", nil, "Knowledge file to load (repeatable)")
	flags.StringVar(&opts.journalPath, "journal", "", "SQLite journal path (optional)")
	flags.CountVarP(&opts.verbosity, "verbose", "v", "Verbosity: -v traces assert/retract, -vv every derivation")

	root.AddCommand(
		newAskCmd(opts),
		newWhyCmd(opts),
		newCheckCmd(opts),
	)
	return root
}

func newAskCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "ask [pattern]",
		Short: "Match a pattern such as \"isa(?x, block)\" and exit",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withReasoner(cmd.Context(), opts, func(r *chainkb.Reasoner) error {
				return cmdAsk(r, strings.Join(args, " "), cmd.OutOrStdout())
			})
		},
	}
}

func newWhyCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "why [fact|rule]",
		Short: "Print the justification tree of a stored item and exit",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withReasoner(cmd.Context(), opts, func(r *chainkb.Reasoner) error {
				return cmdWhy(r, strings.Join(args, " "), cmd.OutOrStdout())
			})
		},
	}
}

func newCheckCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Load knowledge and verify the store invariants",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withReasoner(cmd.Context(), opts, func(r *chainkb.Reasoner) error {
				return cmdCheck(r, cmd.OutOrStdout())
			})
		},
	}
}

// withReasoner builds a reasoner from the flags, runs fn and shuts it down
func withReasoner(ctx context.Context, opts *options, fn func(*chainkb.Reasoner) error) error {
	if ctx == nil {
		ctx = context.Background()
	}

	r, cleanup, err := buildReasoner(ctx, opts)
	if err != nil {
		return err
	}
	defer cleanup()

	return fn(r)
}

func buildReasoner(ctx context.Context, opts *options) (*chainkb.Reasoner, func(), error) {
	loader := config.Loader{
		ConfigPath:     opts.configPath,
		KnowledgePaths: opts.loadPaths,
		JournalPath:    opts.journalPath,
		Verbosity:      opts.verbosity,
	}

	components, err := loader.Load(ctx)
	if err != nil {
		return nil, nil, err
	}

	ropts := chainkb.Options{
		Logger:       components.Logger,
		AskCacheSize: components.Config.AskCacheSize,
	}
	if components.Journal != nil {
		ropts.Journal = components.Journal
	}
	r := chainkb.New(ropts)

	if err := r.TellItems(components.Items); err != nil {
		components.Close()
		return nil, nil, fmt.Errorf("assert knowledge: %w", err)
	}
	if err := r.Flush(ctx); err != nil {
		components.Logger.Warn("initial journal flush failed", zap.Error(err))
	}

	facts, rules := r.KB().Len()
	components.Logger.Info("knowledge base ready",
		zap.Int("items", len(components.Items)),
		zap.Int("facts", facts),
		zap.Int("rules", rules))

	cleanup := func() {
		if err := r.Close(); err != nil {
			components.Logger.Warn("close reasoner", zap.Error(err))
		}
		_ = components.Logger.Sync()
	}
	return r, cleanup, nil
}
