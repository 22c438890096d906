package config

import "strings"

// 默认值常量
const (
	defaultAppEnv         = "dev"
	defaultAppLogLevel    = "info"
	defaultAppLogFormat   = "text"
	defaultAppHTTPAddr    = ":9992"
	defaultAppDBPath      = "data/runs.db"
	defaultAppChartDir    = "data/charts"
	defaultTaskEps        = 0.2
	defaultTaskPReward    = 1
	defaultTaskLength     = 50
	defaultTaskITICorrect = 15
	defaultTaskITIWrong   = 50
	defaultInitSlope      = 0
	defaultInitIntercept  = 10
	defaultMaxStep        = 50
	defaultRewardValue    = 100
	defaultWindowMode     = "fixed"
	defaultWindowLength   = 100
	defaultUpdateMethod   = "gradient"
	defaultLearningRate   = 2
	defaultDeltaSlope     = 0.5
	defaultDeltaIntercept = 1
	defaultGreedyEpsilon  = 0.3
	defaultIterations     = 100
	defaultTraceWalks     = 20
)

var (
	defaultSlopeBounds     = []float64{-60, 20}
	defaultInterceptBounds = []float64{0, 20}
)

// Default 返回仅包含默认值的配置。
func Default() *Config {
	var cfg Config
	cfg.applyDefaults(make(keySet))
	return &cfg
}

// applyDefaults 为所有子配置应用默认值。
func (c *Config) applyDefaults(keys keySet) {
	c.App.applyDefaults(keys)
	c.Task.applyDefaults(keys)
	c.Decision.applyDefaults(keys)
	c.Window.applyDefaults(keys)
	c.Optimizer.applyDefaults(keys)
	c.Session.applyDefaults(keys)
}

func (a *AppConfig) applyDefaults(keys keySet) {
	if a == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("app.env", &a.Env, defaultAppEnv),
		stringFieldDefault("app.log_level", &a.LogLevel, defaultAppLogLevel),
		stringFieldDefault("app.log_format", &a.LogFormat, defaultAppLogFormat),
		stringFieldDefault("app.http_addr", &a.HTTPAddr, defaultAppHTTPAddr),
		stringFieldDefault("app.db_path", &a.DBPath, defaultAppDBPath),
		stringFieldDefault("app.chart_dir", &a.ChartDir, defaultAppChartDir),
	)
}

func (t *TaskConfig) applyDefaults(keys keySet) {
	if t == nil {
		return
	}
	applyFieldDefaults(keys,
		floatFieldDefault("task.eps", &t.Eps, defaultTaskEps),
		floatFieldDefault("task.p_reward_correct", &t.PRewardCorrect, defaultTaskPReward),
		intFieldDefault("task.max_trial_length", &t.MaxTrialLength, defaultTaskLength),
		intFieldDefault("task.iti_correct", &t.ITICorrect, defaultTaskITICorrect),
		intFieldDefault("task.iti_incorrect", &t.ITIIncorrect, defaultTaskITIWrong),
	)
}

func (d *DecisionConfig) applyDefaults(keys keySet) {
	if d == nil {
		return
	}
	applyFieldDefaults(keys,
		sliceFieldDefault("decision.init_boundary", &d.InitBoundary, []float64{defaultInitSlope, defaultInitIntercept}),
		intFieldDefault("decision.max_step", &d.MaxStep, defaultMaxStep),
		floatFieldDefault("decision.reward_value", &d.RewardValue, defaultRewardValue),
	)
}

func (w *WindowConfig) applyDefaults(keys keySet) {
	if w == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("window.mode", &w.Mode, defaultWindowMode),
		intFieldDefault("window.length", &w.Length, defaultWindowLength),
	)
	w.Mode = strings.ToLower(strings.TrimSpace(w.Mode))
}

func (o *OptimizerConfig) applyDefaults(keys keySet) {
	if o == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("optimizer.update_method", &o.Method, defaultUpdateMethod),
		floatFieldDefault("optimizer.learning_rate", &o.LearningRate, defaultLearningRate),
		floatFieldDefault("optimizer.delta_slope", &o.DeltaSlope, defaultDeltaSlope),
		floatFieldDefault("optimizer.delta_intercept", &o.DeltaIntercept, defaultDeltaIntercept),
		floatFieldDefault("optimizer.greedy_epsilon", &o.GreedyEpsilon, defaultGreedyEpsilon),
		sliceFieldDefault("optimizer.slope_bounds", &o.SlopeBounds, defaultSlopeBounds),
		sliceFieldDefault("optimizer.intercept_bounds", &o.InterceptBounds, defaultInterceptBounds),
	)
	o.Method = strings.ToLower(strings.TrimSpace(o.Method))
}

func (s *SessionConfig) applyDefaults(keys keySet) {
	if s == nil {
		return
	}
	applyFieldDefaults(keys,
		fieldDefault{
			key:   "session.iterations",
			need:  func() bool { return s.Iterations <= 0 },
			apply: func() { s.Iterations = defaultIterations },
		},
		intFieldDefault("session.trace_walks", &s.TraceWalks, defaultTraceWalks),
	)
}

// Helper functions

func applyFieldDefaults(keys keySet, defs ...fieldDefault) {
	for _, def := range defs {
		if def.apply == nil {
			continue
		}
		if def.key != "" && keys.isSet(def.key) {
			continue
		}
		if def.need != nil && !def.need() {
			continue
		}
		def.apply()
	}
}

func stringFieldDefault(key string, target *string, def string) fieldDefault {
	return fieldDefault{
		key: key,
		need: func() bool {
			return target != nil && strings.TrimSpace(*target) == ""
		},
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}

// floatFieldDefault 仅在键未出现时生效，0 也是合法的显式取值。
func floatFieldDefault(key string, target *float64, def float64) fieldDefault {
	return fieldDefault{
		key:  key,
		need: func() bool { return target != nil },
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}

func intFieldDefault(key string, target *int, def int) fieldDefault {
	return fieldDefault{
		key:  key,
		need: func() bool { return target != nil },
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}

func sliceFieldDefault(key string, target *[]float64, def []float64) fieldDefault {
	return fieldDefault{
		key:  key,
		need: func() bool { return target != nil && len(*target) == 0 },
		apply: func() {
			if target != nil {
				*target = append([]float64(nil), def...)
			}
		},
	}
}
