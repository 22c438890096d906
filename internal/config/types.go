package config

import "strings"

// Config 是 ddmbound 的主配置载体。
type Config struct {
	App       AppConfig       `toml:"app"`
	Task      TaskConfig      `toml:"task"`
	Decision  DecisionConfig  `toml:"decision"`
	Window    WindowConfig    `toml:"window"`
	Optimizer OptimizerConfig `toml:"optimizer"`
	Session   SessionConfig   `toml:"session"`
}

type AppConfig struct {
	Env       string `toml:"env"`
	LogLevel  string `toml:"log_level"`
	LogFormat string `toml:"log_format"` // text | json
	LogPath   string `toml:"log_path"`
	HTTPAddr  string `toml:"http_addr"`
	DBPath    string `toml:"db_path"`
	ChartDir  string `toml:"chart_dir"`
}

// TaskConfig 描述证据质量与试次间隔代价。
type TaskConfig struct {
	Eps            float64 `toml:"eps"`              // [0,0.5]；0 为随机，0.5 为无噪声
	PRewardCorrect float64 `toml:"p_reward_correct"` // 正确决策获得奖励的概率
	MaxTrialLength int     `toml:"max_trial_length"` // 单个随机游走的最大长度
	ITICorrect     int     `toml:"iti_correct"`
	ITIIncorrect   int     `toml:"iti_incorrect"`
}

// DecisionConfig 描述初始边界与奖励模型。
type DecisionConfig struct {
	InitBoundary []float64 `toml:"init_boundary"` // [slope(度), intercept]
	MaxStep      int       `toml:"max_step"`
	RewardValue  float64   `toml:"reward_value"`
	PenaltyValue float64   `toml:"penalty_value"`
}

// WindowConfig 控制奖励率估计窗口。
type WindowConfig struct {
	Mode    string `toml:"mode"`    // fixed | dynamic
	Length  int    `toml:"length"`  // 每次估计使用的 trial 数
	Workers int    `toml:"workers"` // >1 时并行模拟
}

// OptimizerConfig 描述边界更新策略及其参数。
type OptimizerConfig struct {
	Method          string    `toml:"update_method"` // gradient | greedy
	LearningRate    float64   `toml:"learning_rate"`
	DeltaSlope      float64   `toml:"delta_slope"`
	DeltaIntercept  float64   `toml:"delta_intercept"`
	GreedyEpsilon   float64   `toml:"greedy_epsilon"`
	SlopeBounds     []float64 `toml:"slope_bounds"`
	InterceptBounds []float64 `toml:"intercept_bounds"`
}

// SessionConfig 控制驱动循环。
type SessionConfig struct {
	Iterations int   `toml:"iterations"`
	Seed       int64 `toml:"seed"`        // 0 表示按启动时间取种子
	TraceWalks int   `toml:"trace_walks"` // 每步持久化的样例游走条数
}

// InitSlope 返回初始斜率（度）。
func (d DecisionConfig) InitSlope() float64 {
	if len(d.InitBoundary) < 1 {
		return 0
	}
	return d.InitBoundary[0]
}

// InitIntercept 返回初始截距。
func (d DecisionConfig) InitIntercept() float64 {
	if len(d.InitBoundary) < 2 {
		return 0
	}
	return d.InitBoundary[1]
}

// Pair 将长度为 2 的切片转换为区间。
func Pair(v []float64) [2]float64 {
	var out [2]float64
	copy(out[:], v)
	return out
}

// keySet 用于追踪配置文件中显式设置的字段路径。
type keySet map[string]struct{}

func (k keySet) mark(path string) {
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return
	}
	k[path] = struct{}{}
}

func (k keySet) isSet(path string) bool {
	if len(k) == 0 {
		return false
	}
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return false
	}
	_, ok := k[path]
	return ok
}

type fieldDefault struct {
	key   string
	need  func() bool
	apply func()
}

// Clone 返回深拷贝，切片字段不与原配置共享。
func (c *Config) Clone() *Config {
	if c == nil {
		return nil
	}
	out := *c
	out.Decision.InitBoundary = append([]float64(nil), c.Decision.InitBoundary...)
	out.Optimizer.SlopeBounds = append([]float64(nil), c.Optimizer.SlopeBounds...)
	out.Optimizer.InterceptBounds = append([]float64(nil), c.Optimizer.InterceptBounds...)
	return &out
}
