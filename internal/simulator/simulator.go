package simulator

import (
	"fmt"

	"ddmbound/internal/trial"
)

// Config 描述决策规则与奖励模型。
type Config struct {
	MaxStep        int
	RewardValue    float64
	PenaltyValue   float64
	PRewardCorrect float64 // probability that a correct decision is rewarded
}

// Trial 是一次模拟的结果，仅在单次调用内有效。
type Trial struct {
	TrueState    int     `json:"true_state"`
	Walk         []int   `json:"walk"`
	Decision     int     `json:"decision"`
	Reward       float64 `json:"reward"`
	ReactionTime int     `json:"reaction_time"`
	Censored     bool    `json:"censored,omitempty"`
}

// Correct 报告决策是否与真实状态一致。
func (t Trial) Correct() bool { return t.Decision == t.TrueState }

// Simulator 基于首次穿越规则将随机游走转换为决策与奖励。
type Simulator struct {
	cfg Config
	gen *trial.Generator
}

func New(gen *trial.Generator, cfg Config) (*Simulator, error) {
	if gen == nil {
		return nil, fmt.Errorf("simulator requires a trial generator")
	}
	if cfg.MaxStep < 1 {
		return nil, fmt.Errorf("max_step must be >= 1, got %d", cfg.MaxStep)
	}
	if cfg.MaxStep > gen.Length() {
		return nil, fmt.Errorf("max_step %d exceeds trial length %d", cfg.MaxStep, gen.Length())
	}
	if cfg.PRewardCorrect < 0 || cfg.PRewardCorrect > 1 {
		return nil, fmt.Errorf("p_reward_correct must be in [0,1], got %v", cfg.PRewardCorrect)
	}
	return &Simulator{cfg: cfg, gen: gen}, nil
}

func (s *Simulator) Config() Config              { return s.cfg }
func (s *Simulator) Generator() *trial.Generator { return s.gen }

// Simulate runs one trial under b. Passage times default to MaxStep when the
// walk never reaches a bound; equal passage times are broken by a coin flip.
func (s *Simulator) Simulate(rng trial.Source, b Boundary) Trial {
	trueState, walk := s.gen.Sample(rng)
	upper, lower := ThresholdCurve(b, s.cfg.MaxStep)

	maxStep := s.cfg.MaxStep
	rtTop := firstPassage(walk, upper, maxStep, func(w, th int) bool { return w >= th })
	rtBottom := firstPassage(walk, lower, maxStep, func(w, th int) bool { return w <= th })

	var decision, rt int
	switch {
	case rtTop < rtBottom:
		decision, rt = 1, rtTop
	case rtTop > rtBottom:
		decision, rt = -1, rtBottom
	default:
		decision, rt = 2*rng.Intn(2)-1, rtTop
	}

	end := rt + 1
	if end > len(walk) {
		end = len(walk)
	}
	out := Trial{
		TrueState:    trueState,
		Walk:         append([]int(nil), walk[:end]...),
		Decision:     decision,
		ReactionTime: rt,
		Censored:     rt >= maxStep,
		Reward:       s.cfg.PenaltyValue,
	}
	if out.Correct() && s.rewarded(rng) {
		out.Reward = s.cfg.RewardValue
	}
	return out
}

// rewarded 仅在 PRewardCorrect < 1 时才额外消耗一次随机数。
func (s *Simulator) rewarded(rng trial.Source) bool {
	if s.cfg.PRewardCorrect >= 1 {
		return true
	}
	return rng.Float64() < s.cfg.PRewardCorrect
}

func firstPassage(walk, thresh []int, maxStep int, crossed func(w, th int) bool) int {
	n := maxStep
	if len(walk) < n {
		n = len(walk)
	}
	if len(thresh) < n {
		n = len(thresh)
	}
	for t := 0; t < n; t++ {
		if crossed(walk[t], thresh[t]) {
			return t
		}
	}
	return maxStep
}
