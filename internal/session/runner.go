package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"ddmbound/internal/logger"
	"ddmbound/internal/metrics"
	"ddmbound/internal/optimizer"
	"ddmbound/internal/simulator"
	"ddmbound/internal/store"
	"ddmbound/internal/trial"

	"github.com/google/uuid"
)

// Recorder 是会话持久化所需的最小写接口，store.RunStore 即满足。
type Recorder interface {
	InsertRun(ctx context.Context, run store.Run) error
	AppendStep(ctx context.Context, step *store.Step) error
	FinishRun(ctx context.Context, id string, status store.RunStatus, summary store.RunSummary) error
}

// Options 为 Runner 的可选依赖。
type Options struct {
	Recorder   Recorder
	Metrics    *metrics.Metrics
	TraceWalks int             // sample walks kept per step
	Config     json.RawMessage // config snapshot stored with the run
}

// Params 描述一次优化会话。
type Params struct {
	RunID      string // optional; a uuid is generated when empty
	Name       string
	Iterations int
	Seed       int64 // 0 picks a time based seed
	Init       simulator.Boundary
}

// Result 汇总一次会话。
type Result struct {
	RunID          string
	Method         optimizer.Method
	Seed           int64
	Initial        simulator.Boundary
	Final          simulator.Boundary
	Completed      int
	BestRewardRate float64
	LastRewardRate float64
	Trajectory     []simulator.Boundary // initial boundary followed by one entry per update
	RewardRates    []float64
	Samples        optimizer.RunningSamples
	Steps          []store.Step
}

// Runner 重复调用更新策略并记录每一步。
type Runner struct {
	policy optimizer.Policy
	opts   Options
	now    func() time.Time
}

func NewRunner(policy optimizer.Policy, opts Options) (*Runner, error) {
	if policy == nil {
		return nil, fmt.Errorf("session runner requires a policy")
	}
	if opts.TraceWalks < 0 {
		opts.TraceWalks = 0
	}
	return &Runner{policy: policy, opts: opts, now: time.Now}, nil
}

func (r *Runner) Method() optimizer.Method { return r.policy.Method() }

// Run 执行 p.Iterations 次边界更新。
// ctx 取消或估计失败时会话标记为 failed，返回已完成部分与错误。
func (r *Runner) Run(ctx context.Context, p Params) (Result, error) {
	if p.Iterations < 1 {
		return Result{}, fmt.Errorf("session iterations must be >= 1, got %d", p.Iterations)
	}
	seed := p.Seed
	if seed == 0 {
		seed = r.now().UnixNano()
	}
	method := r.policy.Method()
	runID := p.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	res := Result{
		RunID:      runID,
		Method:     method,
		Seed:       seed,
		Initial:    p.Init,
		Final:      p.Init,
		Trajectory: []simulator.Boundary{p.Init},
	}
	log := logger.With("run", runID, "method", string(method))

	if r.opts.Recorder != nil {
		err := r.opts.Recorder.InsertRun(ctx, store.Run{
			ID:            runID,
			Name:          p.Name,
			Method:        string(method),
			Status:        store.RunStatusRunning,
			Seed:          seed,
			Iterations:    p.Iterations,
			InitSlope:     p.Init.Slope,
			InitIntercept: p.Init.Intercept,
			Config:        r.opts.Config,
			CreatedAt:     r.now(),
		})
		if err != nil {
			return res, fmt.Errorf("record run failed: %w", err)
		}
	}
	log.Info("session started", "name", p.Name, "seed", seed, "iterations", p.Iterations, "init", p.Init.String())

	rng := trial.NewSource(seed)
	current := p.Init
	var samples optimizer.RunningSamples
	for i := 0; i < p.Iterations; i++ {
		if err := ctx.Err(); err != nil {
			return res, r.fail(ctx, log, &res, err)
		}
		u, err := r.policy.Update(ctx, rng, current, samples)
		if err != nil {
			return res, r.fail(ctx, log, &res, fmt.Errorf("iteration %d: %w", i, err))
		}
		current = u.Boundary
		samples = u.Samples

		step := r.newStep(runID, i, u)
		if r.opts.Recorder != nil {
			if err := r.opts.Recorder.AppendStep(ctx, &step); err != nil {
				return res, r.fail(ctx, log, &res, fmt.Errorf("record step %d failed: %w", i, err))
			}
		}
		r.opts.Metrics.ObserveUpdate(runID, string(method), current.Slope, current.Intercept, u.RewardRate, windowsEvaluated(method, u)*u.Window.Trials(), u.Jumped)

		if res.Completed == 0 || u.RewardRate > res.BestRewardRate {
			res.BestRewardRate = u.RewardRate
		}
		res.Completed++
		res.LastRewardRate = u.RewardRate
		res.Final = current
		res.Samples = samples
		res.Trajectory = append(res.Trajectory, current)
		res.RewardRates = append(res.RewardRates, u.RewardRate)
		res.Steps = append(res.Steps, step)
		log.Debug("boundary updated", "iter", i, "boundary", current.String(), "rr", u.RewardRate, "explored", u.Explored, "jumped", u.Jumped)
	}

	if r.opts.Recorder != nil {
		if err := r.opts.Recorder.FinishRun(ctx, runID, store.RunStatusDone, summaryOf(res, "")); err != nil {
			return res, fmt.Errorf("finish run failed: %w", err)
		}
	}
	r.opts.Metrics.ObserveRunFinished(runID, string(store.RunStatusDone))
	log.Info("session finished", "final", res.Final.String(), "best_rr", res.BestRewardRate, "last_rr", res.LastRewardRate)
	return res, nil
}

func (r *Runner) fail(ctx context.Context, log *slog.Logger, res *Result, cause error) error {
	log.Error("session failed", "completed", res.Completed, "error", cause)
	r.opts.Metrics.ObserveRunFinished(res.RunID, string(store.RunStatusFailed))
	if r.opts.Recorder == nil {
		return cause
	}
	// 取消后仍需写回终态
	finishCtx := context.WithoutCancel(ctx)
	if err := r.opts.Recorder.FinishRun(finishCtx, res.RunID, store.RunStatusFailed, summaryOf(*res, cause.Error())); err != nil {
		return errors.Join(cause, fmt.Errorf("finish run failed: %w", err))
	}
	return cause
}

func (r *Runner) newStep(runID string, iter int, u optimizer.Update) store.Step {
	step := store.Step{
		RunID:           runID,
		Iteration:       iter,
		WindowSlope:     u.Window.Boundary.Slope,
		WindowIntercept: u.Window.Boundary.Intercept,
		Slope:           u.Boundary.Slope,
		Intercept:       u.Boundary.Intercept,
		RewardRate:      u.RewardRate,
		WindowRate:      u.Window.RewardRate,
		Accuracy:        u.Window.Accuracy(),
		MeanRT:          u.Window.MeanReactionTime(),
		Trials:          u.Window.Trials(),
		Explored:        u.Explored,
		Jumped:          u.Jumped,
		Samples:         len(u.Samples),
		CreatedAt:       r.now(),
	}
	if u.Gradient != nil {
		step.DSlope = u.Gradient.DSlope
		step.DIntercept = u.Gradient.DIntercept
	}
	n := min(r.opts.TraceWalks, len(u.Window.Walks))
	if n > 0 {
		step.Walks = make([][]int, n)
		for i := 0; i < n; i++ {
			step.Walks[i] = append([]int(nil), u.Window.Walks[i]...)
		}
	}
	return step
}

// windowsEvaluated 返回一次更新消耗的窗口数。
func windowsEvaluated(method optimizer.Method, u optimizer.Update) int {
	switch {
	case method == optimizer.MethodGradient:
		return 3
	case u.Explored:
		return 2
	default:
		return 1
	}
}

func summaryOf(res Result, message string) store.RunSummary {
	return store.RunSummary{
		Completed:      res.Completed,
		FinalSlope:     res.Final.Slope,
		FinalIntercept: res.Final.Intercept,
		BestRewardRate: res.BestRewardRate,
		LastRewardRate: res.LastRewardRate,
		Message:        message,
	}
}
