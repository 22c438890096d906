package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"ddmbound/internal/logger"
	"ddmbound/internal/report"
	"ddmbound/internal/simulator"
	"ddmbound/internal/store"
	"ddmbound/internal/store/gormstore"
	"ddmbound/internal/visual"

	"github.com/spf13/cobra"
	"github.com/tidwall/gjson"
)

var (
	exportOut       string
	exportChart     string
	exportPNG       string
	exportPrecision int32
)

var exportCmd = &cobra.Command{
	Use:   "export <run-id>",
	Short: "Export a stored session as YAML, HTML chart or PNG",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		st, err := gormstore.NewGormStore(cfg.App.DBPath)
		if err != nil {
			return err
		}
		defer st.Close()

		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		run, err := st.GetRun(ctx, args[0])
		if err != nil {
			return fmt.Errorf("load run %s: %w", args[0], err)
		}
		steps, err := st.ListSteps(ctx, run.ID, 0)
		if err != nil {
			return err
		}

		if err := writeReport(cmd.OutOrStdout(), run, steps); err != nil {
			return err
		}
		if exportChart == "" && exportPNG == "" {
			return nil
		}
		in := visual.RunInput{
			Title:   fmt.Sprintf("%s (%s)", run.ID, run.Method),
			Init:    simulator.Boundary{Slope: run.InitSlope, Intercept: run.InitIntercept},
			Steps:   steps,
			MaxStep: int(gjson.GetBytes(run.Config, "decision.max_step").Int()),
			Smooth:  visual.DefaultSmooth,
		}
		if in.MaxStep <= 0 {
			in.MaxStep = cfg.Decision.MaxStep
		}
		if exportChart != "" {
			html, err := visual.RenderRunHTML(in)
			if err != nil {
				return err
			}
			if err := writeFile(exportChart, html); err != nil {
				return err
			}
			logger.Infof("chart written to %s", exportChart)
		}
		if exportPNG != "" {
			pctx, cancel := context.WithTimeout(ctx, 60*time.Second)
			defer cancel()
			if err := visual.EnsureHeadlessAvailable(pctx); err != nil {
				return fmt.Errorf("png export needs headless chrome: %w", err)
			}
			png, err := visual.RenderRunPNG(pctx, in)
			if err != nil {
				return err
			}
			if err := writeFile(exportPNG, png); err != nil {
				return err
			}
			logger.Infof("png written to %s", exportPNG)
		}
		return nil
	},
}

func init() {
	f := exportCmd.Flags()
	f.StringVarP(&exportOut, "out", "o", "-", "YAML output file (- for stdout)")
	f.StringVar(&exportChart, "chart", "", "also write an HTML chart to this file")
	f.StringVar(&exportPNG, "png", "", "also write a PNG screenshot to this file")
	f.Int32Var(&exportPrecision, "precision", report.DefaultPrecision, "decimal places in the YAML report")
}

func writeReport(stdout io.Writer, run store.Run, steps []store.Step) error {
	if exportOut == "" || exportOut == "-" {
		return report.WriteYAML(stdout, run, steps, exportPrecision)
	}
	if err := ensureParent(exportOut); err != nil {
		return err
	}
	f, err := os.Create(exportOut)
	if err != nil {
		return err
	}
	if err := report.WriteYAML(f, run, steps, exportPrecision); err != nil {
		_ = f.Close()
		return err
	}
	logger.Infof("report written to %s", exportOut)
	return f.Close()
}

func writeFile(path string, data []byte) error {
	if err := ensureParent(path); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func ensureParent(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
