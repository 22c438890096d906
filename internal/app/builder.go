package app

import (
	"context"
	"fmt"

	brcfg "ddmbound/internal/config"
	"ddmbound/internal/estimator"
	"ddmbound/internal/logger"
	"ddmbound/internal/metrics"
	"ddmbound/internal/optimizer"
	"ddmbound/internal/session"
	"ddmbound/internal/simulator"
	"ddmbound/internal/store"
	"ddmbound/internal/store/gormstore"
	runshttp "ddmbound/internal/transport/http/runs"
	"ddmbound/internal/trial"
)

type AppBuilder struct {
	cfg *brcfg.Config

	configSource func() *brcfg.Config
	storeFn      func(brcfg.AppConfig) (store.RunStore, error)
	httpFn       func(brcfg.AppConfig, store.RunStore, runshttp.Launcher, *metrics.Metrics) (*runshttp.Server, error)

	storeOverride store.RunStore
}

type AppBuilderOption func(*AppBuilder)

// WithConfigSource 让新启动的会话读取最新配置（例如热更新的 Watcher）。
func WithConfigSource(fn func() *brcfg.Config) AppBuilderOption {
	return func(b *AppBuilder) { b.configSource = fn }
}

// WithStore 使用外部传入的存储，不再按配置打开 SQLite。
func WithStore(st store.RunStore) AppBuilderOption {
	return func(b *AppBuilder) { b.storeOverride = st }
}

func NewAppBuilder(cfg *brcfg.Config, opts ...AppBuilderOption) *AppBuilder {
	b := &AppBuilder{
		cfg:     cfg,
		storeFn: openRunStore,
		httpFn:  buildHTTPServer,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	if b.configSource == nil {
		b.configSource = cfg.Clone
	}
	return b
}

func (b *AppBuilder) Build(ctx context.Context) (*App, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if b.cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	cfg := b.cfg
	logger.SetLevel(cfg.App.LogLevel)

	runStore := b.storeOverride
	if runStore == nil {
		st, err := b.storeFn(cfg.App)
		if err != nil {
			return nil, err
		}
		runStore = st
	}
	m := metrics.New()
	launcher := newSessionLauncher(ctx, b.configSource, runStore, m)

	server, err := b.httpFn(cfg.App, runStore, launcher, m)
	if err != nil {
		_ = runStore.Close()
		return nil, err
	}
	return &App{
		cfg:      cfg,
		store:    runStore,
		metrics:  m,
		launcher: launcher,
		server:   server,
		Summary:  NewStartupSummary(cfg),
	}, nil
}

func openRunStore(cfg brcfg.AppConfig) (store.RunStore, error) {
	st, err := gormstore.NewGormStore(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("初始化会话存储失败: %w", err)
	}
	logger.Infof("✓ 会话存储: %s", cfg.DBPath)
	return st, nil
}

func buildHTTPServer(cfg brcfg.AppConfig, runs store.RunStore, launcher runshttp.Launcher, m *metrics.Metrics) (*runshttp.Server, error) {
	server, err := runshttp.NewServer(runshttp.Config{
		Addr:     cfg.HTTPAddr,
		Runs:     runs,
		Launcher: launcher,
		Metrics:  m.Handler(),
	})
	if err != nil {
		return nil, fmt.Errorf("初始化 HTTP 失败: %w", err)
	}
	logger.Infof("✓ HTTP 接口监听 %s", server.Addr())
	return server, nil
}

// --------------------------- Domain wiring ------------------------------

// TrialConfig 将任务配置转换为生成器参数。
func TrialConfig(cfg *brcfg.Config) trial.Config {
	return trial.Config{
		Eps:          cfg.Task.Eps,
		Length:       cfg.Task.MaxTrialLength,
		ITICorrect:   cfg.Task.ITICorrect,
		ITIIncorrect: cfg.Task.ITIIncorrect,
	}
}

func SimulatorConfig(cfg *brcfg.Config) simulator.Config {
	return simulator.Config{
		MaxStep:        cfg.Decision.MaxStep,
		RewardValue:    cfg.Decision.RewardValue,
		PenaltyValue:   cfg.Decision.PenaltyValue,
		PRewardCorrect: cfg.Task.PRewardCorrect,
	}
}

func EstimatorConfig(cfg *brcfg.Config) (estimator.Config, error) {
	mode, err := estimator.ParseWindowMode(cfg.Window.Mode)
	if err != nil {
		return estimator.Config{}, err
	}
	return estimator.Config{Mode: mode, Length: cfg.Window.Length, Workers: cfg.Window.Workers}, nil
}

func OptimizerConfig(cfg *brcfg.Config) (optimizer.Config, error) {
	m, err := optimizer.ParseMethod(cfg.Optimizer.Method)
	if err != nil {
		return optimizer.Config{}, err
	}
	return optimizer.Config{
		Method:          m,
		LearningRate:    cfg.Optimizer.LearningRate,
		DeltaSlope:      cfg.Optimizer.DeltaSlope,
		DeltaIntercept:  cfg.Optimizer.DeltaIntercept,
		GreedyEpsilon:   cfg.Optimizer.GreedyEpsilon,
		SlopeBounds:     brcfg.Pair(cfg.Optimizer.SlopeBounds),
		InterceptBounds: brcfg.Pair(cfg.Optimizer.InterceptBounds),
	}, nil
}

// InitBoundary 返回配置中的初始边界。
func InitBoundary(cfg *brcfg.Config) simulator.Boundary {
	return simulator.Boundary{Slope: cfg.Decision.InitSlope(), Intercept: cfg.Decision.InitIntercept()}
}

// BuildEstimator 依次构建生成器、模拟器与估计器。
func BuildEstimator(cfg *brcfg.Config) (*estimator.Estimator, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	gen, err := trial.NewGenerator(TrialConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("build generator: %w", err)
	}
	sim, err := simulator.New(gen, SimulatorConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("build simulator: %w", err)
	}
	estCfg, err := EstimatorConfig(cfg)
	if err != nil {
		return nil, err
	}
	est, err := estimator.New(sim, estCfg)
	if err != nil {
		return nil, fmt.Errorf("build estimator: %w", err)
	}
	return est, nil
}

// BuildPolicy 构建更新策略。
func BuildPolicy(cfg *brcfg.Config) (optimizer.Policy, error) {
	est, err := BuildEstimator(cfg)
	if err != nil {
		return nil, err
	}
	optCfg, err := OptimizerConfig(cfg)
	if err != nil {
		return nil, err
	}
	return optimizer.New(optCfg, est)
}

// RunnerDeps 是会话的可选旁路依赖。
type RunnerDeps struct {
	Recorder session.Recorder
	Metrics  *metrics.Metrics
}

// BuildRunner 构建会话驱动器，并把配置快照随会话存档。
func BuildRunner(cfg *brcfg.Config, deps RunnerDeps) (*session.Runner, error) {
	policy, err := BuildPolicy(cfg)
	if err != nil {
		return nil, err
	}
	snapshot, err := cfg.SnapshotJSON()
	if err != nil {
		return nil, err
	}
	return session.NewRunner(policy, session.Options{
		Recorder:   deps.Recorder,
		Metrics:    deps.Metrics,
		TraceWalks: cfg.Session.TraceWalks,
		Config:     snapshot,
	})
}

// SessionParams 返回配置默认的会话参数。
func SessionParams(cfg *brcfg.Config, name string) session.Params {
	return session.Params{
		Name:       name,
		Iterations: cfg.Session.Iterations,
		Seed:       cfg.Session.Seed,
		Init:       InitBoundary(cfg),
	}
}
