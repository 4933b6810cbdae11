// Command codeatlas analyzes a repository with staged model-backed reasoning
// rounds and writes a validated markdown knowledge base.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/codeatlas/internal/claude"
	"github.com/fyrsmithlabs/codeatlas/internal/config"
	"github.com/fyrsmithlabs/codeatlas/internal/logging"
	"github.com/fyrsmithlabs/codeatlas/internal/pipeline"
	"github.com/fyrsmithlabs/codeatlas/internal/render"
	"github.com/fyrsmithlabs/codeatlas/internal/tokens"
)

var version = "dev"

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "codeatlas",
		Short:         "Generate a validated knowledge base for a codebase",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(analyzeCmd())
	root.AddCommand(versionCmd())
	return root
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "codeatlas", version)
		},
	}
}

func analyzeCmd() *cobra.Command {
	var configPath string
	var outputDir string

	cmd := &cobra.Command{
		Use:   "analyze [path]",
		Short: "Analyze a repository and write knowledge base documents",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			repoPath := "."
			if len(args) == 1 {
				repoPath = args[0]
			}

			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if outputDir != "" {
				cfg.Output.Dir = outputDir
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return runAnalyze(ctx, cmd, repoPath, cfg)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to YAML config file")
	cmd.Flags().StringVarP(&outputDir, "output", "o", "", "output directory for documents")
	return cmd
}

func runAnalyze(ctx context.Context, cmd *cobra.Command, repoPath string, cfg *config.Config) error {
	log, err := logging.New(&logging.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format})
	if err != nil {
		return err
	}
	defer log.Sync() //nolint:errcheck

	runID := uuid.NewString()
	log = log.With(zap.String("run_id", runID))
	log.Info("analysis starting", zap.String("repo", repoPath), zap.String("model", cfg.Model.Name))

	client, err := claude.NewHTTPClient(cfg.Model.APIKey, cfg.Model.BaseURL, cfg.Model.Name)
	if err != nil {
		return err
	}

	estimator := tokens.NewEstimator()
	events := pipeline.LogEvents{Log: log}
	tracker := pipeline.NewTracker(cfg.Budget.WarnUtilization, events)
	metrics := pipeline.NewMetrics(prometheus.NewRegistry())
	renderer := render.New(cfg.Output.Dir, log)

	p := &pipeline.Pipeline{
		Analyze: func(ctx context.Context) (pipeline.Facts, error) {
			return buildFacts(repoPath, cfg, estimator, log)
		},
		NewEngine: func(ground pipeline.GroundTruth) *pipeline.Engine {
			return pipeline.NewEngine(pipeline.EngineDeps{
				Client:     client,
				Validator:  pipeline.NewValidator(ground),
				Gate:       pipeline.NewQualityGate(),
				Compressor: pipeline.NewCompressor(estimator, cfg.Budget.ContextTokens),
				Tracker:    tracker,
				Events:     events,
				Metrics:    metrics,
				Logger:     log,
			})
		},
		Render: func(ctx context.Context, results map[int]*pipeline.RoundResult, summary pipeline.Summary) error {
			return renderer.Write(results, summary)
		},
		Store:      pipeline.NewStore(),
		Estimator:  estimator,
		MaxModules: cfg.Analysis.MaxModules,
		BatchSize:  cfg.Analysis.BatchSize,
		Logger:     log,
	}

	summary, err := p.Run(ctx)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, summary.StatusLine())
	if report := pipeline.FailureReport(p.Store); report != "all rounds completed without degradation" {
		fmt.Fprintln(out, report)
	}
	fmt.Fprintln(out, "Documents written to", cfg.Output.Dir)

	totals := tracker.TotalUsage()
	log.Info("analysis finished",
		zap.Int("input_tokens", totals.InputTokens),
		zap.Int("output_tokens", totals.OutputTokens))
	return nil
}
