package estimator

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"ddmbound/internal/simulator"
	"ddmbound/internal/trial"

	"golang.org/x/sync/errgroup"
)

var (
	ErrEmptyWindow       = errors.New("estimator: window length must be >= 1")
	ErrUndefinedRate     = errors.New("estimator: reward rate undefined for zero elapsed time")
	ErrUnknownWindowMode = errors.New("estimator: unknown window mode")
)

// WindowMode 决定估计奖励率所用的 trial 数量。
type WindowMode string

const (
	WindowFixed   WindowMode = "fixed"
	WindowDynamic WindowMode = "dynamic"
)

// ParseWindowMode 解析配置中的窗口模式。
func ParseWindowMode(s string) (WindowMode, error) {
	switch WindowMode(strings.ToLower(strings.TrimSpace(s))) {
	case WindowFixed:
		return WindowFixed, nil
	case WindowDynamic:
		return WindowDynamic, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownWindowMode, s)
	}
}

type Config struct {
	Mode    WindowMode
	Length  int
	Workers int // <= 1 runs trials sequentially on the caller's source
}

// Window 汇总一个窗口内所有 trial 的奖励与耗时。
type Window struct {
	Boundary      simulator.Boundary `json:"boundary"`
	RewardRate    float64            `json:"reward_rate"`
	CumReward     float64            `json:"cum_reward"`
	CumTime       float64            `json:"cum_time"`
	Walks         [][]int            `json:"walks"`
	Decisions     []int              `json:"decisions"`
	TrueStates    []int              `json:"true_states"`
	ReactionTimes []int              `json:"reaction_times"`
}

// Trials 返回窗口内的 trial 数。
func (w Window) Trials() int { return len(w.Decisions) }

// Accuracy 返回决策与真实状态一致的比例。
func (w Window) Accuracy() float64 {
	if len(w.Decisions) == 0 {
		return 0
	}
	hits := 0
	for i, d := range w.Decisions {
		if d == w.TrueStates[i] {
			hits++
		}
	}
	return float64(hits) / float64(len(w.Decisions))
}

func (w Window) MeanReactionTime() float64 {
	if len(w.ReactionTimes) == 0 {
		return 0
	}
	sum := 0
	for _, rt := range w.ReactionTimes {
		sum += rt
	}
	return float64(sum) / float64(len(w.ReactionTimes))
}

// Estimator 在固定边界下运行一批 trial 并计算奖励率。
type Estimator struct {
	cfg Config
	sim *simulator.Simulator
}

func New(sim *simulator.Simulator, cfg Config) (*Estimator, error) {
	if sim == nil {
		return nil, fmt.Errorf("estimator requires a simulator")
	}
	if _, err := ParseWindowMode(string(cfg.Mode)); err != nil {
		return nil, err
	}
	if cfg.Length < 1 {
		return nil, ErrEmptyWindow
	}
	return &Estimator{cfg: cfg, sim: sim}, nil
}

func (e *Estimator) Config() Config                  { return e.cfg }
func (e *Estimator) Simulator() *simulator.Simulator { return e.sim }

// WindowLength resolves the number of trials for b. The dynamic mode is an
// extension point and currently resolves to the fixed length.
func (e *Estimator) WindowLength(b simulator.Boundary) (int, error) {
	var n int
	switch e.cfg.Mode {
	case WindowFixed:
		n = e.cfg.Length
	case WindowDynamic:
		n = e.dynamicLength(b)
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownWindowMode, e.cfg.Mode)
	}
	if n < 1 {
		return 0, ErrEmptyWindow
	}
	return n, nil
}

func (e *Estimator) dynamicLength(simulator.Boundary) int {
	return e.cfg.Length
}

// Estimate runs one window under b. A trial counts as correct for ITI
// purposes when its reward equals the configured reward value.
func (e *Estimator) Estimate(ctx context.Context, rng trial.Source, b simulator.Boundary) (Window, error) {
	n, err := e.WindowLength(b)
	if err != nil {
		return Window{}, err
	}
	var trials []simulator.Trial
	if e.cfg.Workers > 1 {
		trials, err = e.runParallel(ctx, rng, b, n)
	} else {
		trials, err = e.runSequential(ctx, rng, b, n)
	}
	if err != nil {
		return Window{}, err
	}
	return e.aggregate(b, trials)
}

func (e *Estimator) runSequential(ctx context.Context, rng trial.Source, b simulator.Boundary, n int) ([]simulator.Trial, error) {
	out := make([]simulator.Trial, n)
	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out[i] = e.sim.Simulate(rng, b)
	}
	return out, nil
}

// runParallel draws one seed per trial from rng in trial order before any
// worker starts, so results depend only on rng and not on scheduling.
func (e *Estimator) runParallel(ctx context.Context, rng trial.Source, b simulator.Boundary, n int) ([]simulator.Trial, error) {
	seeds := make([]int64, n)
	for i := range seeds {
		seeds[i] = rng.Int63()
	}
	out := make([]simulator.Trial, n)
	group, gctx := errgroup.WithContext(ctx)
	group.SetLimit(e.cfg.Workers)
	for i := 0; i < n; i++ {
		i := i
		group.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			out[i] = e.sim.Simulate(trial.NewSource(seeds[i]), b)
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (e *Estimator) aggregate(b simulator.Boundary, trials []simulator.Trial) (Window, error) {
	cfg := e.sim.Config()
	gen := e.sim.Generator()
	w := Window{
		Boundary:      b,
		Walks:         make([][]int, 0, len(trials)),
		Decisions:     make([]int, 0, len(trials)),
		TrueStates:    make([]int, 0, len(trials)),
		ReactionTimes: make([]int, 0, len(trials)),
	}
	for _, tr := range trials {
		iti := gen.ITI(tr.Reward == cfg.RewardValue)
		w.CumReward += tr.Reward
		w.CumTime += float64(tr.ReactionTime + iti)
		w.Walks = append(w.Walks, tr.Walk)
		w.Decisions = append(w.Decisions, tr.Decision)
		w.TrueStates = append(w.TrueStates, tr.TrueState)
		w.ReactionTimes = append(w.ReactionTimes, tr.ReactionTime)
	}
	if w.CumTime == 0 {
		return Window{}, ErrUndefinedRate
	}
	w.RewardRate = w.CumReward / w.CumTime
	return w, nil
}
