package config

import (
	"fmt"
	"strings"
)

// validate 对配置进行基础校验。
func validate(c *Config) error {
	if err := c.App.validate(); err != nil {
		return err
	}
	if err := c.Task.validate(); err != nil {
		return err
	}
	if err := c.Decision.validate(c.Task); err != nil {
		return err
	}
	if err := c.Window.validate(); err != nil {
		return err
	}
	if err := c.Optimizer.validate(); err != nil {
		return err
	}
	if err := c.Session.validate(); err != nil {
		return err
	}
	return nil
}

// Validate 校验由代码构造或修改过的配置。
func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("nil config")
	}
	return validate(c)
}

func (a *AppConfig) validate() error {
	switch strings.ToLower(strings.TrimSpace(a.LogFormat)) {
	case "", "text", "json":
	default:
		return fmt.Errorf("app.log_format must be text or json, got %s", a.LogFormat)
	}
	return nil
}

func (t *TaskConfig) validate() error {
	if t.Eps < 0 || t.Eps > 0.5 {
		return fmt.Errorf("task.eps must be in [0,0.5]")
	}
	if t.PRewardCorrect < 0 || t.PRewardCorrect > 1 {
		return fmt.Errorf("task.p_reward_correct must be in [0,1]")
	}
	if t.MaxTrialLength < 1 {
		return fmt.Errorf("task.max_trial_length must be >= 1")
	}
	if t.ITICorrect < 0 || t.ITIIncorrect < 0 {
		return fmt.Errorf("task.iti_correct/iti_incorrect must be >= 0")
	}
	return nil
}

func (d *DecisionConfig) validate(task TaskConfig) error {
	if len(d.InitBoundary) != 2 {
		return fmt.Errorf("decision.init_boundary must be [slope, intercept]")
	}
	if d.InitBoundary[1] < 0 {
		return fmt.Errorf("decision.init_boundary intercept must be >= 0")
	}
	if d.MaxStep < 1 {
		return fmt.Errorf("decision.max_step must be >= 1")
	}
	if d.MaxStep > task.MaxTrialLength {
		return fmt.Errorf("decision.max_step (%d) cannot exceed task.max_trial_length (%d)", d.MaxStep, task.MaxTrialLength)
	}
	return nil
}

func (w *WindowConfig) validate() error {
	switch w.Mode {
	case "fixed", "dynamic":
	default:
		return fmt.Errorf("window.mode only supports 'fixed' or 'dynamic', got %s", w.Mode)
	}
	if w.Length < 1 {
		return fmt.Errorf("window.length must be >= 1")
	}
	if w.Workers < 0 {
		return fmt.Errorf("window.workers must be >= 0")
	}
	return nil
}

func (o *OptimizerConfig) validate() error {
	o.Method = strings.ToLower(strings.TrimSpace(o.Method))
	switch o.Method {
	case "gradient", "grad":
		if o.DeltaSlope == 0 || o.DeltaIntercept == 0 {
			return fmt.Errorf("optimizer.delta_slope and optimizer.delta_intercept must be non-zero")
		}
	case "greedy":
		if o.GreedyEpsilon < 0 || o.GreedyEpsilon > 1 {
			return fmt.Errorf("optimizer.greedy_epsilon must be in [0,1]")
		}
	default:
		return fmt.Errorf("optimizer.update_method only supports 'gradient' or 'greedy', got %s", o.Method)
	}
	if err := validateRange("optimizer.slope_bounds", o.SlopeBounds); err != nil {
		return err
	}
	if err := validateRange("optimizer.intercept_bounds", o.InterceptBounds); err != nil {
		return err
	}
	return nil
}

func (s *SessionConfig) validate() error {
	if s.Iterations < 1 {
		return fmt.Errorf("session.iterations must be >= 1")
	}
	if s.TraceWalks < 0 {
		return fmt.Errorf("session.trace_walks must be >= 0")
	}
	return nil
}

func validateRange(key string, v []float64) error {
	if len(v) != 2 {
		return fmt.Errorf("%s must be [min, max]", key)
	}
	if v[1] < v[0] {
		return fmt.Errorf("%s max must be >= min", key)
	}
	return nil
}
