package report

import (
	"fmt"
	"io"
	"time"

	"ddmbound/internal/store"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// DefaultPrecision 是导出数值保留的小数位数。
const DefaultPrecision int32 = 4

// Document 是一次会话的导出格式。
type Document struct {
	Run     RunSection     `yaml:"run"`
	Summary SummarySection `yaml:"summary"`
	Steps   []StepRow      `yaml:"steps"`
}

type RunSection struct {
	ID          string         `yaml:"id"`
	Name        string         `yaml:"name,omitempty"`
	Method      string         `yaml:"method"`
	Status      string         `yaml:"status"`
	Seed        int64          `yaml:"seed"`
	Iterations  int            `yaml:"iterations"`
	Init        BoundaryRow    `yaml:"init"`
	Final       BoundaryRow    `yaml:"final"`
	CreatedAt   string         `yaml:"created_at"`
	CompletedAt string         `yaml:"completed_at,omitempty"`
	Message     string         `yaml:"message,omitempty"`
	Config      map[string]any `yaml:"config,omitempty"`
}

type BoundaryRow struct {
	Slope     float64 `yaml:"slope"`
	Intercept float64 `yaml:"intercept"`
}

type SummarySection struct {
	Completed      int     `yaml:"completed"`
	BestRewardRate float64 `yaml:"best_reward_rate"`
	LastRewardRate float64 `yaml:"last_reward_rate"`
	MeanRewardRate float64 `yaml:"mean_reward_rate"`
	Explorations   int     `yaml:"explorations"`
	Jumps          int     `yaml:"jumps"`
}

type StepRow struct {
	Iteration  int         `yaml:"iteration"`
	Window     BoundaryRow `yaml:"window"`
	Boundary   BoundaryRow `yaml:"boundary"`
	RewardRate float64     `yaml:"reward_rate"`
	WindowRate float64     `yaml:"window_rate"`
	Accuracy   float64     `yaml:"accuracy"`
	MeanRT     float64     `yaml:"mean_rt"`
	Trials     int         `yaml:"trials"`
	Explored   bool        `yaml:"explored,omitempty"`
	Jumped     bool        `yaml:"jumped,omitempty"`
}

// Build 汇总会话与步骤。precision<0 时使用 DefaultPrecision。
func Build(run store.Run, steps []store.Step, precision int32) (Document, error) {
	if precision < 0 {
		precision = DefaultPrecision
	}
	r := func(v float64) float64 { return decimal.NewFromFloat(v).Round(precision).InexactFloat64() }

	doc := Document{
		Run: RunSection{
			ID:         run.ID,
			Name:       run.Name,
			Method:     run.Method,
			Status:     string(run.Status),
			Seed:       run.Seed,
			Iterations: run.Iterations,
			Init:       BoundaryRow{Slope: r(run.InitSlope), Intercept: r(run.InitIntercept)},
			Final:      BoundaryRow{Slope: r(run.FinalSlope), Intercept: r(run.FinalIntercept)},
			CreatedAt:  formatTime(run.CreatedAt),
			Message:    run.Message,
		},
		Steps: make([]StepRow, 0, len(steps)),
	}
	if !run.CompletedAt.IsZero() {
		doc.Run.CompletedAt = formatTime(run.CompletedAt)
	}
	if len(run.Config) > 0 && string(run.Config) != "{}" {
		var cfg map[string]any
		if err := yaml.Unmarshal(run.Config, &cfg); err != nil {
			return Document{}, fmt.Errorf("decode run config failed: %w", err)
		}
		doc.Run.Config = cfg
	}

	sum := decimal.Zero
	for _, s := range steps {
		doc.Steps = append(doc.Steps, StepRow{
			Iteration:  s.Iteration,
			Window:     BoundaryRow{Slope: r(s.WindowSlope), Intercept: r(s.WindowIntercept)},
			Boundary:   BoundaryRow{Slope: r(s.Slope), Intercept: r(s.Intercept)},
			RewardRate: r(s.RewardRate),
			WindowRate: r(s.WindowRate),
			Accuracy:   r(s.Accuracy),
			MeanRT:     r(s.MeanRT),
			Trials:     s.Trials,
			Explored:   s.Explored,
			Jumped:     s.Jumped,
		})
		sum = sum.Add(decimal.NewFromFloat(s.RewardRate))
		if s.Explored {
			doc.Summary.Explorations++
		}
		if s.Jumped {
			doc.Summary.Jumps++
		}
	}
	doc.Summary.Completed = run.Completed
	doc.Summary.BestRewardRate = r(run.BestRewardRate)
	doc.Summary.LastRewardRate = r(run.LastRewardRate)
	if len(steps) > 0 {
		doc.Summary.MeanRewardRate = sum.Div(decimal.NewFromInt(int64(len(steps)))).Round(precision).InexactFloat64()
	}
	return doc, nil
}

// WriteYAML 将会话导出为 YAML。
func WriteYAML(w io.Writer, run store.Run, steps []store.Step, precision int32) error {
	doc, err := Build(run, steps, precision)
	if err != nil {
		return err
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encode report failed: %w", err)
	}
	return enc.Close()
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
