package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// ErrNotFound is returned when a run does not exist.
var ErrNotFound = errors.New("store: record not found")

// RunStatus 是一次优化会话的生命周期状态。
type RunStatus string

const (
	RunStatusRunning RunStatus = "running"
	RunStatusDone    RunStatus = "done"
	RunStatusFailed  RunStatus = "failed"
)

// Run 表示一次边界优化会话。
type Run struct {
	ID             string          `json:"id" yaml:"id"`
	Name           string          `json:"name" yaml:"name"`
	Method         string          `json:"method" yaml:"method"`
	Status         RunStatus       `json:"status" yaml:"status"`
	Seed           int64           `json:"seed" yaml:"seed"`
	Iterations     int             `json:"iterations" yaml:"iterations"`
	Completed      int             `json:"completed" yaml:"completed"`
	InitSlope      float64         `json:"init_slope" yaml:"init_slope"`
	InitIntercept  float64         `json:"init_intercept" yaml:"init_intercept"`
	FinalSlope     float64         `json:"final_slope" yaml:"final_slope"`
	FinalIntercept float64         `json:"final_intercept" yaml:"final_intercept"`
	BestRewardRate float64         `json:"best_reward_rate" yaml:"best_reward_rate"`
	LastRewardRate float64         `json:"last_reward_rate" yaml:"last_reward_rate"`
	Config         json.RawMessage `json:"config,omitempty" yaml:"-"`
	Message        string          `json:"message,omitempty" yaml:"message,omitempty"`
	CreatedAt      time.Time       `json:"created_at" yaml:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at" yaml:"updated_at"`
	CompletedAt    time.Time       `json:"completed_at,omitempty" yaml:"completed_at,omitempty"`
}

// RunSummary 是会话结束时写回的汇总指标。
type RunSummary struct {
	Completed      int
	FinalSlope     float64
	FinalIntercept float64
	BestRewardRate float64
	LastRewardRate float64
	Message        string
}

// Step 记录一次边界更新。WindowSlope/WindowIntercept 是观测窗口所在的位置，
// Slope/Intercept 是更新后的边界。
type Step struct {
	ID              int64     `json:"id" yaml:"-"`
	RunID           string    `json:"run_id" yaml:"-"`
	Iteration       int       `json:"iteration" yaml:"iteration"`
	WindowSlope     float64   `json:"window_slope" yaml:"window_slope"`
	WindowIntercept float64   `json:"window_intercept" yaml:"window_intercept"`
	Slope           float64   `json:"slope" yaml:"slope"`
	Intercept       float64   `json:"intercept" yaml:"intercept"`
	RewardRate      float64   `json:"reward_rate" yaml:"reward_rate"`
	WindowRate      float64   `json:"window_rate" yaml:"window_rate"`
	Accuracy        float64   `json:"accuracy" yaml:"accuracy"`
	MeanRT          float64   `json:"mean_rt" yaml:"mean_rt"`
	Trials          int       `json:"trials" yaml:"trials"`
	Explored        bool      `json:"explored" yaml:"explored"`
	Jumped          bool      `json:"jumped" yaml:"jumped"`
	Samples         int       `json:"samples" yaml:"samples"`
	DSlope          float64   `json:"d_slope" yaml:"d_slope"`
	DIntercept      float64   `json:"d_intercept" yaml:"d_intercept"`
	Walks           [][]int   `json:"walks,omitempty" yaml:"-"`
	CreatedAt       time.Time `json:"created_at" yaml:"-"`
}

// RunStore 定义会话与步骤的持久化接口。
type RunStore interface {
	InsertRun(ctx context.Context, run Run) error
	AppendStep(ctx context.Context, step *Step) error
	FinishRun(ctx context.Context, id string, status RunStatus, summary RunSummary) error
	GetRun(ctx context.Context, id string) (Run, error)
	ListRuns(ctx context.Context, limit int) ([]Run, error)
	// ListSteps 按迭代顺序返回步骤；limit <= 0 表示全部。
	ListSteps(ctx context.Context, runID string, limit int) ([]Step, error)
	Close() error
}
