package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"ddmbound/internal/app"
	brcfg "ddmbound/internal/config"
	"ddmbound/internal/config/loader"
	"ddmbound/internal/logger"

	"github.com/spf13/cobra"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve stored sessions over HTTP and launch new ones",
	Long: `Start the HTTP API. The config file is watched; sessions launched
after an edit use the new values.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("addr") {
			cfg.App.HTTPAddr = serveAddr
		}

		var opts []app.AppBuilderOption
		if _, statErr := os.Stat(configPath); statErr == nil {
			w, err := loader.NewWatcher(configPath)
			if err != nil {
				return err
			}
			w.Subscribe(func(snap loader.Snapshot) {
				if lvl := snap.Config.App.LogLevel; logLevel == "" && lvl != "" {
					logger.SetLevel(lvl)
				}
				logger.Infof("配置已热更新 v%d，新会话将使用新配置", snap.Version)
			})
			opts = append(opts, app.WithConfigSource(func() *brcfg.Config {
				next := w.Current()
				next.App.HTTPAddr = cfg.App.HTTPAddr
				return next
			}))
		} else if !errors.Is(statErr, os.ErrNotExist) {
			return statErr
		} else {
			logger.Warnf("配置文件 %s 不存在，使用默认配置", configPath)
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := app.NewApp(ctx, cfg, opts...)
		if err != nil {
			return err
		}
		if logLevel != "" {
			logger.SetLevel(logLevel)
		}
		if err := a.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		logger.Infof("ddmbound serve stopped")
		return nil
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "override app.http_addr")
}
