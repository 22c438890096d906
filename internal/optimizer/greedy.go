package optimizer

import (
	"context"
	"fmt"
	"math"

	"ddmbound/internal/estimator"
	"ddmbound/internal/simulator"
	"ddmbound/internal/trial"
)

type GreedyConfig struct {
	Epsilon         float64    // exploration probability
	SlopeBounds     [2]float64 // [min, max) degrees
	InterceptBounds [2]float64 // [min, max)
}

// GreedyPolicy 以 epsilon 概率随机探索新边界，奖励率更高时跳转。
type GreedyPolicy struct {
	cfg GreedyConfig
	est *estimator.Estimator
}

func NewGreedyPolicy(est *estimator.Estimator, cfg GreedyConfig) (*GreedyPolicy, error) {
	if est == nil {
		return nil, fmt.Errorf("greedy policy requires an estimator")
	}
	if cfg.Epsilon < 0 || cfg.Epsilon > 1 {
		return nil, fmt.Errorf("greedy epsilon must be in [0,1], got %v", cfg.Epsilon)
	}
	if cfg.SlopeBounds[1] < cfg.SlopeBounds[0] {
		return nil, fmt.Errorf("slope bounds max < min: %v", cfg.SlopeBounds)
	}
	if cfg.InterceptBounds[1] < cfg.InterceptBounds[0] {
		return nil, fmt.Errorf("intercept bounds max < min: %v", cfg.InterceptBounds)
	}
	return &GreedyPolicy{cfg: cfg, est: est}, nil
}

func (p *GreedyPolicy) Method() Method { return MethodGreedy }

// Update folds a fresh sample at current into the running mean, then with
// probability Epsilon samples a candidate and jumps if it strictly beats the
// mean. The returned Samples never alias the argument.
func (p *GreedyPolicy) Update(ctx context.Context, rng trial.Source, current simulator.Boundary, samples RunningSamples) (Update, error) {
	curr, err := p.est.Estimate(ctx, rng, current)
	if err != nil {
		return Update{}, fmt.Errorf("estimate current bound: %w", err)
	}
	withCurr := samples.With(curr.RewardRate)
	mean := withCurr.Mean()

	stay := Update{
		Boundary:   current,
		Window:     curr,
		RewardRate: mean,
		Samples:    samples,
	}
	if rng.Float64() > p.cfg.Epsilon {
		return stay, nil
	}

	candidate := simulator.Boundary{
		Slope:     drawInt(rng, p.cfg.SlopeBounds),
		Intercept: drawInt(rng, p.cfg.InterceptBounds),
	}
	cand, err := p.est.Estimate(ctx, rng, candidate)
	if err != nil {
		return Update{}, fmt.Errorf("estimate candidate bound %s: %w", candidate, err)
	}
	if cand.RewardRate > mean {
		return Update{
			Boundary:   candidate,
			Window:     cand,
			RewardRate: cand.RewardRate,
			Samples:    RunningSamples{cand.RewardRate},
			Explored:   true,
			Jumped:     true,
			Candidate:  &candidate,
		}, nil
	}
	stay.Samples = withCurr
	stay.Explored = true
	stay.Candidate = &candidate
	return stay, nil
}

// drawInt 在 [min, max) 上均匀抽取整数，区间为空时返回 min。
func drawInt(rng trial.Source, bounds [2]float64) float64 {
	lo := math.Ceil(bounds[0])
	span := int(math.Ceil(bounds[1]) - lo)
	if span <= 0 {
		return lo
	}
	return lo + float64(rng.Intn(span))
}
