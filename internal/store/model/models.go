package model

import "gorm.io/datatypes"

// RunModel maps to 'optimization_runs' table.
type RunModel struct {
	ID             string         `gorm:"column:id;primaryKey"`
	Name           string         `gorm:"column:name"`
	Method         string         `gorm:"column:method;index"`
	Status         string         `gorm:"column:status;index"`
	Seed           int64          `gorm:"column:seed"`
	Iterations     int            `gorm:"column:iterations"`
	Completed      int            `gorm:"column:completed"`
	InitSlope      float64        `gorm:"column:init_slope"`
	InitIntercept  float64        `gorm:"column:init_intercept"`
	FinalSlope     float64        `gorm:"column:final_slope"`
	FinalIntercept float64        `gorm:"column:final_intercept"`
	BestRewardRate float64        `gorm:"column:best_reward_rate"`
	LastRewardRate float64        `gorm:"column:last_reward_rate"`
	ConfigJSON     datatypes.JSON `gorm:"column:config_json"`
	Message        string         `gorm:"column:message"`
	CreatedAt      int64          `gorm:"column:created_at;index"`
	UpdatedAt      int64          `gorm:"column:updated_at"`
	CompletedAt    *int64         `gorm:"column:completed_at"`
}

func (RunModel) TableName() string { return "optimization_runs" }

// StepModel maps to 'optimization_steps' table.
type StepModel struct {
	ID              int64          `gorm:"column:id;primaryKey;autoIncrement"`
	RunID           string         `gorm:"column:run_id;index:idx_steps_run,priority:1"`
	Iteration       int            `gorm:"column:iteration;index:idx_steps_run,priority:2"`
	WindowSlope     float64        `gorm:"column:window_slope"`
	WindowIntercept float64        `gorm:"column:window_intercept"`
	Slope           float64        `gorm:"column:slope"`
	Intercept       float64        `gorm:"column:intercept"`
	RewardRate      float64        `gorm:"column:reward_rate"`
	WindowRate      float64        `gorm:"column:window_rate"`
	Accuracy        float64        `gorm:"column:accuracy"`
	MeanRT          float64        `gorm:"column:mean_rt"`
	Trials          int            `gorm:"column:trials"`
	Explored        bool           `gorm:"column:explored"`
	Jumped          bool           `gorm:"column:jumped"`
	Samples         int            `gorm:"column:samples"`
	DSlope          float64        `gorm:"column:d_slope"`
	DIntercept      float64        `gorm:"column:d_intercept"`
	WalksJSON       datatypes.JSON `gorm:"column:walks_json"`
	CreatedAt       int64          `gorm:"column:created_at"`
}

func (StepModel) TableName() string { return "optimization_steps" }
