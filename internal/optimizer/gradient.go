package optimizer

import (
	"context"
	"fmt"

	"ddmbound/internal/estimator"
	"ddmbound/internal/simulator"
	"ddmbound/internal/trial"
)

type GradientConfig struct {
	LearningRate   float64
	DeltaSlope     float64 // degrees
	DeltaIntercept float64
}

// GradientPolicy 以前向差分估计奖励率梯度并做一步上升。
type GradientPolicy struct {
	cfg GradientConfig
	est *estimator.Estimator
}

func NewGradientPolicy(est *estimator.Estimator, cfg GradientConfig) (*GradientPolicy, error) {
	if est == nil {
		return nil, fmt.Errorf("gradient policy requires an estimator")
	}
	if cfg.DeltaSlope == 0 || cfg.DeltaIntercept == 0 {
		return nil, ErrZeroDelta
	}
	return &GradientPolicy{cfg: cfg, est: est}, nil
}

func (p *GradientPolicy) Method() Method { return MethodGradient }

// Update estimates the reward rate at current and at the two perturbed
// bounds, each on its own window. Only the intercept is clamped.
func (p *GradientPolicy) Update(ctx context.Context, rng trial.Source, current simulator.Boundary, samples RunningSamples) (Update, error) {
	if p.cfg.DeltaSlope == 0 || p.cfg.DeltaIntercept == 0 {
		return Update{}, ErrZeroDelta
	}
	curr, err := p.est.Estimate(ctx, rng, current)
	if err != nil {
		return Update{}, fmt.Errorf("estimate current bound: %w", err)
	}
	slopeWin, err := p.est.Estimate(ctx, rng, simulator.Boundary{
		Slope:     current.Slope + p.cfg.DeltaSlope,
		Intercept: current.Intercept,
	})
	if err != nil {
		return Update{}, fmt.Errorf("estimate slope perturbation: %w", err)
	}
	interWin, err := p.est.Estimate(ctx, rng, simulator.Boundary{
		Slope:     current.Slope,
		Intercept: current.Intercept + p.cfg.DeltaIntercept,
	})
	if err != nil {
		return Update{}, fmt.Errorf("estimate intercept perturbation: %w", err)
	}

	grad := Gradient{
		DSlope:      (slopeWin.RewardRate - curr.RewardRate) / p.cfg.DeltaSlope,
		DIntercept:  (interWin.RewardRate - curr.RewardRate) / p.cfg.DeltaIntercept,
		RRSlope:     slopeWin.RewardRate,
		RRIntercept: interWin.RewardRate,
	}
	next := simulator.Boundary{
		Slope:     current.Slope + p.cfg.LearningRate*grad.DSlope,
		Intercept: current.Intercept + p.cfg.LearningRate*grad.DIntercept,
	}.ClampIntercept()

	return Update{
		Boundary:   next,
		Window:     curr,
		RewardRate: curr.RewardRate,
		Samples:    samples,
		Gradient:   &grad,
	}, nil
}
