package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/viant/vecdensity/density"
	"github.com/viant/vecdensity/engine"
	"github.com/viant/vecdensity/index"
	"github.com/viant/vecdensity/internal/config"
	"github.com/viant/vecdensity/internal/logging"
	"github.com/viant/vecdensity/vecadmin"
	"github.com/viant/vecdensity/vector"
	"github.com/viant/vecdensity/vecutil"
)

func main() {
	if err := newRootCmd(os.Stdout).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// session is the state shared by every subcommand once configuration loads.
type session struct {
	cfg        *config.Config
	logger     *slog.Logger
	db         *sql.DB
	store      *vector.SQLiteStore
	collection *vector.Collection
}

func (s *session) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *session) densityOptions() []density.Option {
	return []density.Option{
		density.WithNeighborhood(s.cfg.Density.Neighborhood),
		density.WithBins(s.cfg.Density.Bins),
		density.WithLogger(s.logger),
	}
}

func openSession(v *viper.Viper, configPath string) (*session, error) {
	cfg, err := config.Load(v, configPath)
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format, os.Stderr)
	if err != nil {
		return nil, err
	}
	metric, err := index.ParseMetric(cfg.Store.Metric)
	if err != nil {
		return nil, err
	}
	db, err := engine.Open(cfg.Store.DSN)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", cfg.Store.DSN, err)
	}
	store, err := vector.NewSQLiteStore(db,
		vector.WithMetric(metric),
		vector.WithIndexKind(cfg.Store.Index),
		vector.WithParallelism(cfg.Store.Parallelism),
		vector.WithIndexCacheSize(cfg.Store.IndexCacheSize),
		vector.WithCompressionThreshold(cfg.Store.CompressionThreshold),
		vector.WithLogger(logger),
	)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &session{
		cfg:        cfg,
		logger:     logger,
		db:         db,
		store:      store,
		collection: store.Collection(cfg.Store.Collection),
	}, nil
}

func newRootCmd(out io.Writer) *cobra.Command {
	var configPath string
	v := viper.New()

	rootCmd := &cobra.Command{
		Use:           "vecdensity",
		Short:         "Score query embeddings against the neighbour-distance density of a collection",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.SetOut(out)

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configPath, "config", "", "Config file path (yaml, json or toml)")
	flags.String("dsn", "", "SQLite database path")
	flags.String("collection", "", "Collection name")
	flags.String("log-level", "", "Log level: debug, info, warn, error")
	for key, flag := range map[string]string{
		"store.dsn":        "dsn",
		"store.collection": "collection",
		"log.level":        "log-level",
	} {
		_ = v.BindPFlag(key, flags.Lookup(flag))
	}

	// run opens a session for the duration of fn.
	run := func(cmd *cobra.Command, fn func(ctx context.Context, s *session) error) error {
		s, err := openSession(v, configPath)
		if err != nil {
			return err
		}
		defer s.Close()
		return fn(cmd.Context(), s)
	}

	var loadInput string
	loadCmd := &cobra.Command{
		Use:   "load",
		Short: "Upsert documents with embeddings from a JSON lines file",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, func(ctx context.Context, s *session) error {
				docs, err := readInput(loadInput, parseDocument)
				if err != nil {
					return err
				}
				ids, err := s.collection.AddDocuments(ctx, docs)
				if err != nil {
					return err
				}
				s.logger.Info("loaded documents", "collection", s.collection.Name(), "count", len(ids))
				return writeJSON(cmd.OutOrStdout(), map[string]any{"collection": s.collection.Name(), "loaded": len(ids)})
			})
		},
	}
	loadCmd.Flags().StringVar(&loadInput, "input", "", "Input JSON lines file, - for stdin")
	_ = loadCmd.MarkFlagRequired("input")

	reindexCmd := &cobra.Command{
		Use:   "reindex",
		Short: "Build and persist the nearest-neighbour index of the collection",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, func(ctx context.Context, s *session) error {
				n, err := s.store.Reindex(ctx, s.collection.Name())
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), map[string]any{"collection": s.collection.Name(), "indexed": n})
			})
		},
	}

	fitCmd := &cobra.Command{
		Use:   "fit",
		Short: "Fit a density estimator over the collection and persist it",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, func(ctx context.Context, s *session) error {
				est, err := vecutil.FitCollection(ctx, s.collection, s.densityOptions()...)
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), summarize(s.collection.Name(), est))
			})
		},
	}

	var (
		evalInput     string
		evalDistances bool
	)
	evaluateCmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Score embeddings or neighbour distance rows with the persisted estimator",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, func(ctx context.Context, s *session) error {
				est, err := vecutil.LoadEstimator(ctx, s.collection, density.WithLogger(s.logger))
				if err != nil {
					return fmt.Errorf("loading estimator, run fit first: %w", err)
				}
				var scores []float64
				if evalDistances {
					rows, err := readInput(evalInput, parseDistances)
					if err != nil {
						return err
					}
					scores, err = est.Evaluate(rows)
					if err != nil {
						return err
					}
				} else {
					queries, err := readInput(evalInput, parseEmbedding)
					if err != nil {
						return err
					}
					scores, err = vecutil.ScoreEmbeddings(ctx, s.collection, est, queries)
					if err != nil {
						return err
					}
				}
				for _, score := range scores {
					if err := writeJSON(cmd.OutOrStdout(), score); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}
	evaluateCmd.Flags().StringVar(&evalInput, "input", "", "Input JSON lines file, - for stdin")
	evaluateCmd.Flags().BoolVar(&evalDistances, "distances", false, "Each line is a row of neighbour distances rather than an embedding")
	_ = evaluateCmd.MarkFlagRequired("input")

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Print the persisted estimator histogram",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, func(ctx context.Context, s *session) error {
				est, err := vecutil.LoadEstimator(ctx, s.collection, density.WithLogger(s.logger))
				if err != nil {
					return err
				}
				summary := summarize(s.collection.Name(), est)
				summary.Edges = est.BinEdges()
				summary.Cumulative = est.Cumulative()
				return writeJSON(cmd.OutOrStdout(), summary)
			})
		},
	}

	adminCmd := &cobra.Command{
		Use:   "admin <op>:<collection>",
		Short: "Run a maintenance command (reindex, fit, count) as the density_admin table would",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, func(ctx context.Context, s *session) error {
				result, err := vecadmin.Run(ctx, s.store, args[0], s.densityOptions()...)
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), result)
			})
		},
	}

	rootCmd.AddCommand(loadCmd, reindexCmd, fitCmd, evaluateCmd, showCmd, adminCmd)
	return rootCmd
}

type estimatorSummary struct {
	Collection   string    `json:"collection"`
	Neighborhood int       `json:"neighborhood"`
	Bins         int       `json:"bins"`
	MinEdge      float64   `json:"min_edge"`
	MaxEdge      float64   `json:"max_edge"`
	MaxDensity   float64   `json:"max_cumulative"`
	Edges        []float64 `json:"edges,omitempty"`
	Cumulative   []float64 `json:"cumulative,omitempty"`
}

func summarize(collection string, est *density.Estimator) estimatorSummary {
	edges := est.BinEdges()
	cumulative := est.Cumulative()
	return estimatorSummary{
		Collection:   collection,
		Neighborhood: est.Neighborhood(),
		Bins:         est.Bins(),
		MinEdge:      edges[0],
		MaxEdge:      edges[len(edges)-1],
		MaxDensity:   cumulative[len(cumulative)-1],
	}
}

func writeJSON(w io.Writer, v any) error {
	return json.NewEncoder(w).Encode(v)
}
