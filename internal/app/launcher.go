package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	brcfg "ddmbound/internal/config"
	"ddmbound/internal/logger"
	"ddmbound/internal/metrics"
	"ddmbound/internal/session"
	runshttp "ddmbound/internal/transport/http/runs"

	"github.com/google/uuid"
)

// sessionLauncher 在后台运行由 API 发起的会话，生命周期跟随 App 的 ctx。
type sessionLauncher struct {
	ctx      context.Context
	source   func() *brcfg.Config
	recorder session.Recorder
	metrics  *metrics.Metrics

	mu      sync.Mutex
	active  map[string]context.CancelFunc
	wg      sync.WaitGroup
	closing bool
}

var _ runshttp.Launcher = (*sessionLauncher)(nil)

func newSessionLauncher(ctx context.Context, source func() *brcfg.Config, recorder session.Recorder, m *metrics.Metrics) *sessionLauncher {
	return &sessionLauncher{
		ctx:      ctx,
		source:   source,
		recorder: recorder,
		metrics:  m,
		active:   make(map[string]context.CancelFunc),
	}
}

// Launch 以当前配置叠加请求覆盖项，异步启动会话。
func (l *sessionLauncher) Launch(req runshttp.LaunchRequest) (string, error) {
	cfg := l.source()
	if cfg == nil {
		return "", fmt.Errorf("config unavailable")
	}
	if err := applyLaunchOverrides(cfg, req); err != nil {
		return "", err
	}
	runner, err := BuildRunner(cfg, RunnerDeps{Recorder: l.recorder, Metrics: l.metrics})
	if err != nil {
		return "", err
	}
	params := SessionParams(cfg, req.Name)
	params.RunID = uuid.NewString()

	l.mu.Lock()
	if l.closing {
		l.mu.Unlock()
		return "", errors.New("launcher is shutting down")
	}
	ctx, cancel := context.WithCancel(l.ctx)
	l.active[params.RunID] = cancel
	l.wg.Add(1)
	l.mu.Unlock()

	go func() {
		defer l.wg.Done()
		defer l.forget(params.RunID)
		if _, err := runner.Run(ctx, params); err != nil {
			logger.Warnf("session %s ended with error: %v", params.RunID, err)
		}
	}()
	return params.RunID, nil
}

func applyLaunchOverrides(cfg *brcfg.Config, req runshttp.LaunchRequest) error {
	if m := strings.TrimSpace(req.Method); m != "" {
		cfg.Optimizer.Method = strings.ToLower(m)
	}
	if req.Iterations > 0 {
		cfg.Session.Iterations = req.Iterations
	}
	if req.Seed != 0 {
		cfg.Session.Seed = req.Seed
	}
	if len(req.InitBoundary) > 0 {
		cfg.Decision.InitBoundary = append([]float64(nil), req.InitBoundary...)
	}
	return cfg.Validate()
}

func (l *sessionLauncher) forget(id string) {
	l.mu.Lock()
	if cancel, ok := l.active[id]; ok {
		cancel()
		delete(l.active, id)
	}
	l.mu.Unlock()
}

// Active 返回仍在运行的会话数。
func (l *sessionLauncher) Active() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.active)
}

// Shutdown 取消所有会话并等待其写回终态。
func (l *sessionLauncher) Shutdown() {
	l.mu.Lock()
	l.closing = true
	for _, cancel := range l.active {
		cancel()
	}
	l.mu.Unlock()
	l.wg.Wait()
}
