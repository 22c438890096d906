package app

import (
	"context"
	"fmt"
	"net/http"

	brcfg "ddmbound/internal/config"
	"ddmbound/internal/logger"
	"ddmbound/internal/metrics"
	"ddmbound/internal/store"
	runshttp "ddmbound/internal/transport/http/runs"

	"golang.org/x/sync/errgroup"
)

// App 负责 serve 模式的编排：会话存储、指标、HTTP 接口与后台会话。
type App struct {
	cfg      *brcfg.Config
	store    store.RunStore
	metrics  *metrics.Metrics
	launcher *sessionLauncher
	server   *runshttp.Server
	Summary  *StartupSummary
}

// NewApp 根据配置构建应用对象（不启动）
func NewApp(ctx context.Context, cfg *brcfg.Config, opts ...AppBuilderOption) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	logger.SetLevel(cfg.App.LogLevel)
	return buildAppWithWire(ctx, cfg, opts)
}

// Run 启动 HTTP 服务，直到 ctx 取消；退出前等待后台会话写回终态。
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.cfg == nil {
		return fmt.Errorf("app not initialized")
	}
	if a.Summary != nil {
		a.Summary.Print()
	}
	if a.server == nil {
		return fmt.Errorf("http server not initialized")
	}
	group, ctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		if err := a.server.Start(ctx); err != nil {
			return fmt.Errorf("http server error: %w", err)
		}
		return nil
	})
	group.Go(func() error {
		<-ctx.Done()
		a.launcher.Shutdown()
		return nil
	})

	err := group.Wait()
	if cerr := a.store.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}

// Handler exposes the HTTP router (for tests and embedding).
func (a *App) Handler() http.Handler {
	return a.server.Handler()
}
