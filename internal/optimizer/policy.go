package optimizer

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"ddmbound/internal/estimator"
	"ddmbound/internal/simulator"
	"ddmbound/internal/trial"
)

var (
	ErrUnknownMethod = errors.New("optimizer: unknown update method")
	ErrZeroDelta     = errors.New("optimizer: finite-difference delta must be non-zero")
)

// Method 标识边界更新策略。
type Method string

const (
	MethodGradient Method = "gradient"
	MethodGreedy   Method = "greedy"
)

// ParseMethod 解析配置中的更新方法，"grad" 视为 gradient 的别名。
func ParseMethod(s string) (Method, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "gradient", "grad":
		return MethodGradient, nil
	case "greedy":
		return MethodGreedy, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownMethod, s)
	}
}

// RunningSamples holds the reward rates observed at the current greedy
// location. Callers thread it from one Update to the next.
type RunningSamples []float64

// Mean 返回样本均值，空列表返回 0。
func (s RunningSamples) Mean() float64 {
	if len(s) == 0 {
		return 0
	}
	var sum float64
	for _, v := range s {
		sum += v
	}
	return sum / float64(len(s))
}

// With returns a copy of s with v appended. s itself is never modified.
func (s RunningSamples) With(v float64) RunningSamples {
	out := make(RunningSamples, len(s), len(s)+1)
	copy(out, s)
	return append(out, v)
}

// Gradient 记录一次数值梯度估计。
type Gradient struct {
	DSlope      float64 `json:"d_slope"`
	DIntercept  float64 `json:"d_intercept"`
	RRSlope     float64 `json:"rr_slope"`
	RRIntercept float64 `json:"rr_intercept"`
}

// Update 是一次边界更新的结果与诊断信息。
type Update struct {
	Boundary   simulator.Boundary
	Window     estimator.Window // window observed at the location that is now current
	RewardRate float64
	Samples    RunningSamples

	Explored  bool
	Jumped    bool
	Candidate *simulator.Boundary
	Gradient  *Gradient
}

// Policy proposes the next boundary from the current one.
type Policy interface {
	Method() Method
	Update(ctx context.Context, rng trial.Source, current simulator.Boundary, samples RunningSamples) (Update, error)
}

type Config struct {
	Method          Method
	LearningRate    float64
	DeltaSlope      float64
	DeltaIntercept  float64
	GreedyEpsilon   float64
	SlopeBounds     [2]float64
	InterceptBounds [2]float64
}

// New 根据配置选择更新策略。
func New(cfg Config, est *estimator.Estimator) (Policy, error) {
	if est == nil {
		return nil, fmt.Errorf("optimizer requires an estimator")
	}
	method, err := ParseMethod(string(cfg.Method))
	if err != nil {
		return nil, err
	}
	switch method {
	case MethodGradient:
		return NewGradientPolicy(est, GradientConfig{
			LearningRate:   cfg.LearningRate,
			DeltaSlope:     cfg.DeltaSlope,
			DeltaIntercept: cfg.DeltaIntercept,
		})
	case MethodGreedy:
		return NewGreedyPolicy(est, GreedyConfig{
			Epsilon:         cfg.GreedyEpsilon,
			SlopeBounds:     cfg.SlopeBounds,
			InterceptBounds: cfg.InterceptBounds,
		})
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownMethod, cfg.Method)
}
