package app

import (
	"fmt"
	"io"
	"os"
	"strings"

	brcfg "ddmbound/internal/config"
)

type StartupSummary struct {
	Task      TaskSummary
	Decision  DecisionSummary
	Window    WindowSummary
	Optimizer OptimizerSummary
	HTTPAddr  string
	DBPath    string
}

type TaskSummary struct {
	Eps            float64
	PRewardCorrect float64
	TrialLength    int
	ITICorrect     int
	ITIIncorrect   int
}

type DecisionSummary struct {
	InitSlope     float64
	InitIntercept float64
	MaxStep       int
	RewardValue   float64
	PenaltyValue  float64
}

type WindowSummary struct {
	Mode    string
	Length  int
	Workers int
}

type OptimizerSummary struct {
	Method     string
	Details    []string
	Iterations int
	Seed       int64
}

func NewStartupSummary(cfg *brcfg.Config) *StartupSummary {
	if cfg == nil {
		return nil
	}
	opt := OptimizerSummary{
		Method:     cfg.Optimizer.Method,
		Iterations: cfg.Session.Iterations,
		Seed:       cfg.Session.Seed,
	}
	switch strings.ToLower(cfg.Optimizer.Method) {
	case "greedy":
		opt.Details = []string{
			fmt.Sprintf("epsilon=%.3f", cfg.Optimizer.GreedyEpsilon),
			fmt.Sprintf("slope_bounds=%v", cfg.Optimizer.SlopeBounds),
			fmt.Sprintf("intercept_bounds=%v", cfg.Optimizer.InterceptBounds),
		}
	default:
		opt.Details = []string{
			fmt.Sprintf("learning_rate=%.3f", cfg.Optimizer.LearningRate),
			fmt.Sprintf("delta=(%.3f, %.3f)", cfg.Optimizer.DeltaSlope, cfg.Optimizer.DeltaIntercept),
		}
	}
	return &StartupSummary{
		Task: TaskSummary{
			Eps:            cfg.Task.Eps,
			PRewardCorrect: cfg.Task.PRewardCorrect,
			TrialLength:    cfg.Task.MaxTrialLength,
			ITICorrect:     cfg.Task.ITICorrect,
			ITIIncorrect:   cfg.Task.ITIIncorrect,
		},
		Decision: DecisionSummary{
			InitSlope:     cfg.Decision.InitSlope(),
			InitIntercept: cfg.Decision.InitIntercept(),
			MaxStep:       cfg.Decision.MaxStep,
			RewardValue:   cfg.Decision.RewardValue,
			PenaltyValue:  cfg.Decision.PenaltyValue,
		},
		Window: WindowSummary{
			Mode:    cfg.Window.Mode,
			Length:  cfg.Window.Length,
			Workers: cfg.Window.Workers,
		},
		Optimizer: opt,
		HTTPAddr:  cfg.App.HTTPAddr,
		DBPath:    cfg.App.DBPath,
	}
}

func (s *StartupSummary) Print() {
	s.Fprint(os.Stdout)
}

// Fprint 将摘要写入 w。
func (s *StartupSummary) Fprint(w io.Writer) {
	if s == nil {
		return
	}
	const title = "启动配置摘要 (STARTUP SUMMARY)"
	fmt.Fprintln(w, strings.Repeat("=", 80))
	fmt.Fprintf(w, "%*s\n", 40+len(title)/2, title)
	fmt.Fprintln(w, strings.Repeat("=", 80))

	fmt.Fprintln(w, "[任务 (TASK)]")
	fmt.Fprintf(w, "  证据质量 eps: %.3f\n", s.Task.Eps)
	fmt.Fprintf(w, "  正确奖励概率: %.3f\n", s.Task.PRewardCorrect)
	fmt.Fprintf(w, "  游走长度: %d\n", s.Task.TrialLength)
	fmt.Fprintf(w, "  ITI 正确/错误: %d / %d\n", s.Task.ITICorrect, s.Task.ITIIncorrect)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "[决策 (DECISION)]")
	fmt.Fprintf(w, "  初始边界: slope=%.3f° intercept=%.3f\n", s.Decision.InitSlope, s.Decision.InitIntercept)
	fmt.Fprintf(w, "  最大步数: %d\n", s.Decision.MaxStep)
	fmt.Fprintf(w, "  奖励/惩罚: %.2f / %.2f\n", s.Decision.RewardValue, s.Decision.PenaltyValue)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "[窗口 (WINDOW)]")
	fmt.Fprintf(w, "  模式: %s, 长度: %d, 并行: %d\n", s.Window.Mode, s.Window.Length, s.Window.Workers)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "[优化器 (OPTIMIZER)]")
	fmt.Fprintf(w, "  方法: %s\n", s.Optimizer.Method)
	for _, d := range s.Optimizer.Details {
		fmt.Fprintf(w, "    - %s\n", d)
	}
	seed := "time"
	if s.Optimizer.Seed != 0 {
		seed = fmt.Sprintf("%d", s.Optimizer.Seed)
	}
	fmt.Fprintf(w, "  迭代次数: %d, 种子: %s\n", s.Optimizer.Iterations, seed)

	if s.HTTPAddr != "" || s.DBPath != "" {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "[服务 (SERVICE)]")
		fmt.Fprintf(w, "  HTTP: %s\n", formatValue(s.HTTPAddr))
		fmt.Fprintf(w, "  存储: %s\n", formatValue(s.DBPath))
	}
	fmt.Fprintln(w, strings.Repeat("=", 80))
}

func formatValue(v string) string {
	if strings.TrimSpace(v) == "" {
		return "-"
	}
	return v
}
