// Package main provides the table-fill experiment driver binary.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/tablefill/table-fill/internal/bus"
	"github.com/tablefill/table-fill/internal/config"
	"github.com/tablefill/table-fill/internal/evaluation"
	"github.com/tablefill/table-fill/internal/index"
	"github.com/tablefill/table-fill/internal/pipeline"
	"github.com/tablefill/table-fill/internal/pkg/logger"
	"github.com/tablefill/table-fill/internal/rank"
	"github.com/tablefill/table-fill/internal/runner"
	"github.com/tablefill/table-fill/internal/strategy"
	"github.com/tablefill/table-fill/internal/table"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "table-fill",
		Short: "Table Fill - web-table augmentation experiments",
		Long: `Table Fill evaluates retrieval and fusion pipelines that complete
missing attribute values of query tables from a corpus of web tables.

Run 'table-fill run' to execute the configured experiment.
Run 'table-fill --help' for available commands.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringP("config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().String("format", "text", "output format (text, json)")

	rootCmd.AddCommand(
		runCmd(),
		validateCmd(),
		tablesCmd(),
		versionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the configured experiment",
		Long: `Build the pipeline cross product from the configuration, evaluate
every pipeline against every selected query table, and append results to
the experiment's result file.`,
		RunE: runExperiment,
	}

	cmd.Flags().String("output", "", "result file path (overrides results-dir)")
	cmd.Flags().Int("table-id", 0, "evaluate a single query table by id")

	return cmd
}

func runExperiment(cmd *cobra.Command, _ []string) error {
	cfg, log, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	output, _ := cmd.Flags().GetString("output")
	tableID, _ := cmd.Flags().GetInt("table-id")
	if tableID > 0 {
		cfg.QueryTables.QueryTableID = tableID
	}

	log.Info("Starting experiment run",
		"version", version,
		"experiment_type", cfg.General.ExperimentType,
		"schema_org_class", cfg.QueryTables.SchemaOrgClass,
	)

	specs, err := pipeline.Build(cfg.Pipelines, log)
	if err != nil {
		return err
	}

	deps, cleanup, err := buildDependencies(cfg, specs, log)
	if err != nil {
		return err
	}
	defer cleanup()

	pipelines := make([]*pipeline.Pipeline, 0, len(specs))
	for _, spec := range specs {
		p, err := pipeline.New(spec, deps, cfg.QueryTables.ContextAttributes, log)
		if err != nil {
			return err
		}
		pipelines = append(pipelines, p)
	}

	tables, err := loadTables(cfg, log)
	if err != nil {
		return err
	}
	log.Info("Loaded query tables", "count", len(tables))

	if output == "" {
		if err := os.MkdirAll(cfg.General.ResultsDir, 0755); err != nil {
			return err
		}
		output = filepath.Join(cfg.General.ResultsDir, fmt.Sprintf("results_%s_%s.json",
			cfg.QueryTables.SchemaOrgClass, time.Now().Format("20060102_150405")))
	}

	writer, err := evaluation.NewWriter(output, cfg.General.SaveResultsWithEvidences)
	if err != nil {
		return err
	}
	defer writer.Close()

	events, err := buildBus(cfg, log)
	if err != nil {
		return err
	}
	defer events.Close()

	r, err := runner.New(pipelines, writer, events, runner.Options{
		EvidenceCount: cfg.General.EvidenceCount,
		KIntervals:    cfg.General.KIntervals,
		Workers:       cfg.General.Workers,
	}, log)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	summary, err := r.Run(ctx, tables)
	if err != nil {
		return err
	}

	log.Info("Results written", "path", output)

	format, _ := cmd.Flags().GetString("format")
	return printSummary(cmd, summary, format)
}

// buildDependencies wires only the collaborators the built pipelines
// actually name.
func buildDependencies(cfg *config.Config, specs []pipeline.Spec, log *logger.Logger) (pipeline.Dependencies, func(), error) {
	needIndex := false
	needGenerator := false
	needHostRanks := false
	for _, spec := range specs {
		switch spec.Retrieval.Name {
		case strategy.NameQueryByEntity:
			needIndex = true
		case strategy.NameGenerateEntity:
			needGenerator = true
		}
		if spec.SourceReRanking != nil {
			needHostRanks = true
		}
	}

	deps := pipeline.Dependencies{
		Strategy: strategy.Dependencies{
			GroundTruthTables: cfg.QueryTables.GroundTruthTables,
			Logger:            log,
		},
	}
	cleanup := func() {}

	if needIndex {
		embedder, err := index.NewHTTPEmbedder(index.EmbedderConfig{
			URL:   cfg.Index.EmbedderURL,
			Model: cfg.Index.EmbedderModel,
		})
		if err != nil {
			return deps, cleanup, err
		}

		cached := index.NewCachedEmbedder(embedder,
			index.NewEmbeddingCache(cfg.Index.EmbedderCacheSize), cfg.Index.EmbedderModel)

		entityIndex, err := index.NewQdrantIndex(index.ClientConfig{
			Host:              cfg.Index.Host,
			Port:              cfg.Index.Port,
			APIKey:            cfg.Index.APIKey,
			UseTLS:            cfg.Index.UseTLS,
			Collection:        cfg.Index.Collection,
			RequestsPerSecond: cfg.Index.RequestsPerSecond,
		}, cached)
		if err != nil {
			return deps, cleanup, err
		}

		deps.Strategy.Index = entityIndex
	}

	if needGenerator {
		generator, err := strategy.NewHTTPValueGenerator(strategy.GeneratorConfig{
			URL:   cfg.Generator.URL,
			Model: cfg.Generator.Model,
		})
		if err != nil {
			return deps, cleanup, err
		}
		deps.Strategy.Generator = generator
	}

	if needHostRanks {
		switch cfg.PageRank.Source {
		case "redis":
			store, err := rank.NewRedisHostRanks(cfg.PageRank.RedisURL, cfg.QueryTables.SchemaOrgClass)
			if err != nil {
				return deps, cleanup, err
			}
			deps.HostRanks = store
			cleanup = func() { store.Close() }

		default:
			store, err := rank.NewFileHostRanks(cfg.PageRank.File)
			if err != nil {
				return deps, cleanup, err
			}
			deps.HostRanks = store
		}
	}

	return deps, cleanup, nil
}

func buildBus(cfg *config.Config, log *logger.Logger) (bus.Bus, error) {
	events, err := bus.New(bus.FactoryConfig{
		Type:    cfg.Bus.Type,
		Brokers: cfg.KafkaBrokerList(),
	})
	if err != nil {
		return nil, err
	}

	if cfg.Bus.JournalPath == "" {
		return events, nil
	}

	journal, err := bus.NewJournal(cfg.Bus.JournalPath, true)
	if err != nil {
		events.Close()
		return nil, err
	}

	return bus.NewJournaledBus(events, journal, log), nil
}

func loadTables(cfg *config.Config, log *logger.Logger) ([]*table.QueryTable, error) {
	storage, err := table.NewFileStorage(cfg.QueryTables.Path, true, log)
	if err != nil {
		return nil, err
	}

	if cfg.QueryTables.QueryTableID > 0 {
		qt, err := storage.Load(cfg.QueryTables.QueryTableID)
		if err != nil {
			return nil, err
		}
		return []*table.QueryTable{qt}, nil
	}

	return storage.LoadAll(table.Filter{
		SchemaOrgClass: cfg.QueryTables.SchemaOrgClass,
		Category:       cfg.QueryTables.Category,
		Type:           cfg.ExperimentType(),
	})
}

func printSummary(cmd *cobra.Command, summary *evaluation.Summary, format string) error {
	if format == "json" {
		data, err := json.MarshalIndent(summary, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return nil
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Results: %d\n", summary.ResultCount)

	ks := make([]int, 0, len(summary.MeanF1))
	for k := range summary.MeanF1 {
		ks = append(ks, k)
	}
	sort.Ints(ks)

	for _, k := range ks {
		fmt.Fprintf(out, "  k=%-3d precision=%.4f recall=%.4f f1=%.4f\n",
			k, summary.MeanPrecision[k], summary.MeanRecall[k], summary.MeanF1[k])
	}

	accuracyKs := make([]int, 0, len(summary.MeanAccuracy))
	for k := range summary.MeanAccuracy {
		accuracyKs = append(accuracyKs, k)
	}
	sort.Ints(accuracyKs)

	for _, k := range accuracyKs {
		fmt.Fprintf(out, "  k=%-3d fusion accuracy=%.4f\n", k, summary.MeanAccuracy[k])
	}

	return nil
}

func validateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate the experiment configuration",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			specs, err := pipeline.Build(cfg.Pipelines, log)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Configuration valid, %d pipelines:\n", len(specs))
			for _, spec := range specs {
				fmt.Fprintf(cmd.OutOrStdout(), "  %s (voting: %v)\n", spec.Name(), spec.VotingStrategies)
			}
			return nil
		},
	}
}

func tablesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tables",
		Short: "List the query tables an experiment would run on",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			tables, err := loadTables(cfg, log)
			if err != nil {
				return err
			}

			for _, qt := range tables {
				fmt.Fprintf(cmd.OutOrStdout(), "%6d  %-12s %-20s rows=%-4d verified=%d\n",
					qt.ID, qt.SchemaOrgClass, qt.Category, len(qt.Rows), len(qt.VerifiedEvidences))
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d query tables\n", len(tables))
			return nil
		},
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Printf("table-fill %s\n", version)
			fmt.Printf("  commit: %s\n", commit)
			fmt.Printf("  built:  %s\n", date)
		},
	}
}

func loadConfig(cmd *cobra.Command) (*config.Config, *logger.Logger, error) {
	configPath, _ := cmd.Flags().GetString("config")
	verbose, _ := cmd.Flags().GetBool("verbose")

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}

	level := cfg.Log.Level
	if verbose {
		level = "debug"
	}

	return cfg, logger.New(level, cfg.Log.Format), nil
}
