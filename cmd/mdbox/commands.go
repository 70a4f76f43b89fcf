package main

import (
	"fmt"
	"log/slog"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/TrevorS/mdevents"
	"github.com/TrevorS/mdevents/internal/config"
	"github.com/TrevorS/mdevents/internal/logging"
	"github.com/TrevorS/mdevents/store"
)

type rootOptions struct {
	configPath string
	storePath  string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "mdbox",
		Short:         "Build and inspect multi-dimensional event workspaces",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "YAML config file")
	root.PersistentFlags().StringVar(&opts.storePath, "store", "", "badger database directory (overrides store.path)")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "debug, info, warn or error (overrides log.level)")

	root.AddCommand(newIngestCmd(opts), newStatsCmd(opts), newRmCmd(opts))
	return root
}

// load reads the config, applies the persistent flags and sets up logging.
func (o *rootOptions) load() (config.Config, *slog.Logger, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return cfg, nil, err
	}
	if o.storePath != "" {
		cfg.Store.Path = o.storePath
	}
	if o.logLevel != "" {
		cfg.Log.Level = o.logLevel
	}
	logger := logging.Init(cfg.Log.JSON, logging.ParseLevel(cfg.Log.Level))
	return cfg, logger, nil
}

func openStore(cfg config.Config, logger *slog.Logger) (*badger.DB, error) {
	if cfg.Store.InMemory {
		sc := store.InMemoryConfig()
		sc.Logger = logger
		return store.Open(sc)
	}
	if cfg.Store.Path == "" {
		return nil, fmt.Errorf("no store configured: set store.path or pass --store")
	}
	sc := store.DefaultConfig(cfg.Store.Path)
	sc.Logger = logger.With("component", "badger")
	return store.Open(sc)
}

func newStatsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "stats [id...]",
		Short: "Print per-depth box statistics of saved workspaces",
		Long: `Print the totals and per-depth box statistics of saved workspaces.
With no ids, every workspace in the store is listed.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := opts.load()
			if err != nil {
				return err
			}
			db, err := openStore(cfg, logger)
			if err != nil {
				return err
			}
			defer db.Close()

			ids, err := parseIDs(args)
			if err != nil {
				return err
			}
			if len(ids) == 0 {
				if ids, err = store.List(db); err != nil {
					return err
				}
			}
			for _, id := range ids {
				var lines []string
				if cfg.Ingest.EventType == "full" {
					lines, err = describe[mdevents.FullEvent](db, id, store.FullCodec{}, cfg, logger)
				} else {
					lines, err = describe[mdevents.LeanEvent](db, id, store.LeanCodec{}, cfg, logger)
				}
				if err != nil {
					return err
				}
				for _, l := range lines {
					fmt.Fprintln(cmd.OutOrStdout(), l)
				}
			}
			return nil
		},
	}
}

func newRmCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "rm id...",
		Short: "Delete saved workspaces",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := opts.load()
			if err != nil {
				return err
			}
			ids, err := parseIDs(args)
			if err != nil {
				return err
			}
			db, err := openStore(cfg, logger)
			if err != nil {
				return err
			}
			defer db.Close()
			for _, id := range ids {
				if err := store.Delete(db, id); err != nil {
					return err
				}
				logger.Info("deleted workspace", "workspace", id.String())
			}
			return nil
		},
	}
}

func parseIDs(args []string) ([]uuid.UUID, error) {
	ids := make([]uuid.UUID, 0, len(args))
	for _, a := range args {
		id, err := uuid.Parse(a)
		if err != nil {
			return nil, fmt.Errorf("bad workspace id %q: %w", a, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
