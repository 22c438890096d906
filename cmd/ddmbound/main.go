package main

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"

	brcfg "ddmbound/internal/config"
	"ddmbound/internal/logger"

	"github.com/spf13/cobra"
)

var version = "0.1.0"

var (
	configPath string
	logLevel   string
	logFile    *os.File
)

var rootCmd = &cobra.Command{
	Use:   "ddmbound",
	Short: "Optimise drift-diffusion decision boundaries by simulation",
	Long: `ddmbound simulates a two-alternative forced-choice task with a noisy
evidence stream and searches a linear time-varying decision boundary
(slope, intercept) that maximises reward rate.

Commands:
  run       run one optimisation session and store its trajectory
  estimate  estimate the reward rate of a single boundary
  serve     expose stored sessions over HTTP and launch new ones
  export    export a stored session as YAML / HTML / PNG`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logFile != nil {
			_ = logFile.Close()
		}
	},
}

func init() {
	defaultPath := os.Getenv("DDMBOUND_CONFIG")
	if defaultPath == "" {
		defaultPath = "configs/config.yaml"
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", defaultPath, "config file (env DDMBOUND_CONFIG)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override app.log_level")

	rootCmd.AddCommand(runCmd, estimateCmd, serveCmd, exportCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig 读取配置并初始化日志；文件不存在时使用默认配置。
func loadConfig() (*brcfg.Config, error) {
	cfg, err := brcfg.LoadOrDefault(configPath)
	if err != nil {
		return nil, fmt.Errorf("读取配置失败: %w", err)
	}
	if err := setupLogging(cfg.App); err != nil {
		return nil, err
	}
	logger.Infof("✓ 配置加载成功（环境=%s，方法=%s）", cfg.App.Env, cfg.Optimizer.Method)
	return cfg, nil
}

func setupLogging(app brcfg.AppConfig) error {
	f, err := setupLogOutput(app.LogPath)
	if err != nil {
		return fmt.Errorf("初始化日志文件失败: %w", err)
	}
	logFile = f
	if f == nil {
		// stdout 留给导出内容
		logger.SetOutput(os.Stderr)
	}
	logger.SetFormat(app.LogFormat)
	level := app.LogLevel
	if strings.TrimSpace(logLevel) != "" {
		level = logLevel
	}
	logger.SetLevel(level)
	return nil
}

func setupLogOutput(path string) (*os.File, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return nil, nil
	}
	dir := filepath.Dir(trimmed)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	file, err := os.OpenFile(trimmed, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	mw := io.MultiWriter(os.Stderr, file)
	log.SetOutput(mw)
	logger.SetOutput(mw)
	return file, nil
}
