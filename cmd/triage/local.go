package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/davidahmann/licensetriage/internal/app"
	"github.com/davidahmann/licensetriage/internal/config"
	"github.com/davidahmann/licensetriage/internal/consistency"
	"github.com/davidahmann/licensetriage/internal/logging"
	"github.com/davidahmann/licensetriage/internal/orchestrator"
	"github.com/davidahmann/licensetriage/pkg/types"
)

type localOptions struct {
	configPath string
	policyPath string
	scriptPath string
	logLevel   string
}

func (o *localOptions) config() (config.Config, error) {
	path := o.configPath
	if path == "" {
		path = os.Getenv("TRIAGE_CONFIG_PATH")
	}
	cfg := config.Config{PolicyPath: config.DefaultPolicyPath}
	if path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return config.Config{}, err
		}
		cfg = loaded
	}
	if o.policyPath != "" {
		cfg.PolicyPath = o.policyPath
	}
	if o.scriptPath != "" {
		cfg.Generation.Provider = "scripted"
		cfg.Generation.ScriptPath = o.scriptPath
	}
	// The CLI never posts review notifications; the gateway worker does.
	cfg.Review.Enabled = false
	return cfg, cfg.Validate()
}

func (o *localOptions) build(ctx context.Context, stderr io.Writer) (*app.Services, error) {
	cfg, err := o.config()
	if err != nil {
		return nil, err
	}
	logger, err := logging.NewWriter(stderr, o.logLevel)
	if err != nil {
		return nil, err
	}
	return app.Build(ctx, cfg, app.Options{Logger: logger})
}

func newProcessCmd(opts *localOptions) *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "process <application.json>",
		Short: "Process one application and record the decision",
		Args:  exactArgs(1, "<application.json>"),
		RunE: func(cmd *cobra.Command, args []string) error {
			record, err := readApplication(args[0])
			if err != nil {
				return err
			}
			svc, err := opts.build(cmd.Context(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer svc.Close()

			rec, err := svc.Orchestrator.Process(cmd.Context(), record)
			if err != nil {
				return err
			}
			if jsonOut {
				return writeIndented(cmd.OutOrStdout(), rec)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "decision_id=%s application_id=%s disposition=%s action=%s confidence=%d completeness=%d risk=%d\n",
				rec.DecisionID, rec.ApplicationID, rec.Disposition, rec.RecommendedAction,
				rec.ConfidenceScore, rec.CompletenessScore, rec.RiskScore)
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "print the audit record as JSON")
	return cmd
}

func newBatchCmd(opts *localOptions) *cobra.Command {
	var concurrency int
	cmd := &cobra.Command{
		Use:   "batch <applications.json>",
		Short: "Process many applications concurrently",
		Long:  "Processes a JSON array of applications (or an object with an \"applications\" array). Exits 1 when any application fails.",
		Args:  exactArgs(1, "<applications.json>"),
		RunE: func(cmd *cobra.Command, args []string) error {
			records, err := readApplications(args[0])
			if err != nil {
				return err
			}
			svc, err := opts.build(cmd.Context(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer svc.Close()

			if concurrency == 0 {
				concurrency = svc.Config.Batch.Concurrency
			}
			results := svc.Orchestrator.ProcessBatch(cmd.Context(), records, orchestrator.BatchOptions{Concurrency: concurrency})

			failed := 0
			out := cmd.OutOrStdout()
			for _, res := range results {
				if res.Err != nil {
					failed++
					fmt.Fprintf(out, "application_id=%s error=%q\n", res.ApplicationID, res.Err.Error())
					continue
				}
				fmt.Fprintf(out, "application_id=%s decision_id=%s disposition=%s\n", res.ApplicationID, res.Record.DecisionID, res.Record.Disposition)
			}
			svc.Logger.Info("batch finished", zap.Int("applications", len(results)), zap.Int("failed", failed))
			if failed > 0 {
				return fmt.Errorf("%d of %d applications failed", failed, len(results))
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&concurrency, "concurrency", 0, "maximum applications in flight (default from config, then 50)")
	return cmd
}

func newConsistencyCmd(opts *localOptions) *cobra.Command {
	var iterations int
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "consistency <application.json>",
		Short: "Evaluate one application repeatedly and report score variance",
		Args:  exactArgs(1, "<application.json>"),
		RunE: func(cmd *cobra.Command, args []string) error {
			record, err := readApplication(args[0])
			if err != nil {
				return err
			}
			svc, err := opts.build(cmd.Context(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer svc.Close()

			report, err := consistency.Run(cmd.Context(), svc.Orchestrator, record, iterations)
			if err != nil {
				return err
			}
			if jsonOut {
				return writeIndented(cmd.OutOrStdout(), report)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "application_id=%s iterations=%d completeness_variance=%.2f risk_variance=%.2f confidence_variance=%.2f disposition_stable=%t rating=%s\n",
				report.ApplicationID, report.Iterations, report.CompletenessVariance, report.RiskVariance,
				report.ConfidenceVariance, report.DispositionStable, report.Rating)
			return nil
		},
	}
	cmd.Flags().IntVar(&iterations, "iterations", consistency.DefaultIterations, "number of evaluations")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "print the report as JSON")
	return cmd
}

func newPerformanceCmd(opts *localOptions) *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "performance <cases.json>",
		Short: "Run labelled cases and report timing and band accuracy",
		Long:  "Evaluates each case in a {\"cases\": [...]} file, timing it and comparing its completeness and risk bands with the expected labels. Exits 1 when any case fails to evaluate.",
		Args:  exactArgs(1, "<cases.json>"),
		RunE: func(cmd *cobra.Command, args []string) error {
			cases, err := consistency.LoadCases(args[0])
			if err != nil {
				return err
			}
			svc, err := opts.build(cmd.Context(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer svc.Close()

			report, err := consistency.RunSuite(cmd.Context(), svc.Orchestrator, cases, consistency.SuiteOptions{})
			if err != nil {
				return err
			}
			if jsonOut {
				if err := writeIndented(cmd.OutOrStdout(), report); err != nil {
					return err
				}
			} else {
				out := cmd.OutOrStdout()
				for _, res := range report.Results {
					if res.Error != "" {
						fmt.Fprintf(out, "case=%s application_id=%s error=%q\n", res.Name, res.ApplicationID, res.Error)
						continue
					}
					fmt.Fprintf(out, "case=%s application_id=%s disposition=%s completeness=%d(%s) risk=%d(%s) time_ms=%d\n",
						res.Name, res.ApplicationID, res.Disposition, res.CompletenessScore, res.CompletenessBand,
						res.RiskScore, res.RiskBand, res.ProcessingTimeMS)
				}
				fmt.Fprintf(out, "total=%d succeeded=%d failed=%d average_time_ms=%.1f accuracy=%.2f\n",
					report.TotalTests, report.Succeeded, report.Failed, report.AverageTimeMS, report.Accuracy)
			}
			svc.Logger.Info("performance run finished", zap.Int("cases", report.TotalTests), zap.Int("failed", report.Failed), zap.Float64("accuracy", report.Accuracy))
			if report.Failed > 0 {
				return fmt.Errorf("%d of %d cases failed", report.Failed, report.TotalTests)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "print the report as JSON")
	return cmd
}

func readApplication(path string) (types.ApplicationRecord, error) {
	// #nosec G304 -- path is operator-provided.
	data, err := os.ReadFile(path)
	if err != nil {
		return types.ApplicationRecord{}, err
	}
	var record types.ApplicationRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return types.ApplicationRecord{}, fmt.Errorf("parse %s: %w", path, err)
	}
	if record.ApplicationID == "" {
		return types.ApplicationRecord{}, fmt.Errorf("%s: missing application_id", path)
	}
	return record, nil
}

func readApplications(path string) ([]types.ApplicationRecord, error) {
	// #nosec G304 -- path is operator-provided.
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var records []types.ApplicationRecord
	if err := json.Unmarshal(data, &records); err != nil {
		var wrapped struct {
			Applications []types.ApplicationRecord `json:"applications"`
		}
		if werr := json.Unmarshal(data, &wrapped); werr != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
		records = wrapped.Applications
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%s: no applications", path)
	}
	for i, r := range records {
		if r.ApplicationID == "" {
			return nil, fmt.Errorf("%s: application %d missing application_id", path, i)
		}
	}
	return records, nil
}

func writeIndented(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}
