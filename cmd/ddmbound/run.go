package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"ddmbound/internal/app"
	brcfg "ddmbound/internal/config"
	"ddmbound/internal/logger"
	"ddmbound/internal/metrics"
	"ddmbound/internal/session"
	"ddmbound/internal/store/gormstore"
	"ddmbound/internal/visual"

	"github.com/spf13/cobra"
)

var (
	runName       string
	runMethod     string
	runIterations int
	runSeed       int64
	runSlope      float64
	runIntercept  float64
	runNoStore    bool
	runChart      bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one boundary optimisation session",
	Long: `Run the configured update policy for session.iterations steps,
store every step in the run database and print the final boundary.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		applyRunFlags(cmd, cfg)
		if err := cfg.Validate(); err != nil {
			return err
		}
		app.NewStartupSummary(cfg).Fprint(os.Stderr)

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		deps := app.RunnerDeps{Metrics: metrics.New()}
		if !runNoStore {
			st, err := gormstore.NewGormStore(cfg.App.DBPath)
			if err != nil {
				return err
			}
			defer st.Close()
			deps.Recorder = st
		}
		runner, err := app.BuildRunner(cfg, deps)
		if err != nil {
			return err
		}
		res, err := runner.Run(ctx, app.SessionParams(cfg, runName))
		printResult(cmd, res)
		if err != nil {
			return err
		}
		if runChart {
			path, err := writeChart(cfg, res)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "chart:     %s\n", path)
		}
		return nil
	},
}

func init() {
	f := runCmd.Flags()
	f.StringVar(&runName, "name", "", "session name")
	f.StringVar(&runMethod, "method", "", "override optimizer.update_method (gradient|greedy)")
	f.IntVarP(&runIterations, "iterations", "n", 0, "override session.iterations")
	f.Int64Var(&runSeed, "seed", 0, "override session.seed (0 = time based)")
	f.Float64Var(&runSlope, "slope", 0, "override initial slope (degrees)")
	f.Float64Var(&runIntercept, "intercept", 0, "override initial intercept")
	f.BoolVar(&runNoStore, "no-store", false, "do not persist the session")
	f.BoolVar(&runChart, "chart", false, "write an HTML chart to app.chart_dir")
}

func applyRunFlags(cmd *cobra.Command, cfg *brcfg.Config) {
	f := cmd.Flags()
	if f.Changed("method") {
		cfg.Optimizer.Method = strings.ToLower(strings.TrimSpace(runMethod))
	}
	if f.Changed("iterations") {
		cfg.Session.Iterations = runIterations
	}
	if f.Changed("seed") {
		cfg.Session.Seed = runSeed
	}
	if f.Changed("slope") || f.Changed("intercept") {
		b := []float64{cfg.Decision.InitSlope(), cfg.Decision.InitIntercept()}
		if f.Changed("slope") {
			b[0] = runSlope
		}
		if f.Changed("intercept") {
			b[1] = runIntercept
		}
		cfg.Decision.InitBoundary = b
	}
}

func printResult(cmd *cobra.Command, res session.Result) {
	if res.RunID == "" {
		return
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "run:       %s\n", res.RunID)
	fmt.Fprintf(out, "method:    %s (seed %d)\n", res.Method, res.Seed)
	fmt.Fprintf(out, "updates:   %d\n", res.Completed)
	fmt.Fprintf(out, "initial:   %s\n", res.Initial)
	fmt.Fprintf(out, "final:     %s\n", res.Final)
	fmt.Fprintf(out, "best rr:   %.4f\n", res.BestRewardRate)
	fmt.Fprintf(out, "last rr:   %.4f\n", res.LastRewardRate)
}

func writeChart(cfg *brcfg.Config, res session.Result) (string, error) {
	if err := os.MkdirAll(cfg.App.ChartDir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(cfg.App.ChartDir, res.RunID+".html")
	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	err = visual.RenderRun(f, visual.RunInput{
		Title:   fmt.Sprintf("%s (%s)", res.RunID, res.Method),
		Init:    res.Initial,
		Steps:   res.Steps,
		MaxStep: cfg.Decision.MaxStep,
		Smooth:  visual.DefaultSmooth,
	})
	if err != nil {
		return "", err
	}
	logger.Infof("chart written to %s", path)
	return path, nil
}
