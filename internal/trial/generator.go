package trial

import (
	"fmt"
	"math/rand"
)

// Source 是所有随机抽样共用的随机数来源，*rand.Rand 即满足该接口。
type Source interface {
	Float64() float64
	Intn(n int) int
	Int63() int64
}

// NewSource 返回以 seed 初始化的随机源。
func NewSource(seed int64) *rand.Rand {
	return rand.New(rand.NewSource(seed))
}

// Config 描述单个 trial 的证据质量与试次间隔代价。
type Config struct {
	Eps          float64 // [0,0.5]; 0 = uninformative, 0.5 = noiseless
	Length       int     // number of evidence samples per trial
	ITICorrect   int
	ITIIncorrect int
}

// Validate 检查生成器参数。
func (c Config) Validate() error {
	if c.Eps < 0 || c.Eps > 0.5 {
		return fmt.Errorf("trial eps must be in [0,0.5], got %v", c.Eps)
	}
	if c.Length < 1 {
		return fmt.Errorf("trial length must be >= 1, got %d", c.Length)
	}
	if c.ITICorrect < 0 || c.ITIIncorrect < 0 {
		return fmt.Errorf("inter-trial intervals must be >= 0")
	}
	return nil
}

// Generator 产生隐藏状态与对应的随机游走证据序列。
type Generator struct {
	cfg Config
}

func NewGenerator(cfg Config) (*Generator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Generator{cfg: cfg}, nil
}

func (g *Generator) Config() Config { return g.cfg }

// Length 返回单个 trial 的证据长度。
func (g *Generator) Length() int { return g.cfg.Length }

// Sample draws a true state in {-1,+1} with equal probability, then Length
// Bernoulli steps biased toward it, and returns their running sum.
func (g *Generator) Sample(rng Source) (int, []int) {
	trueState := 2*rng.Intn(2) - 1
	drift := 0.5 + g.cfg.Eps
	if trueState == -1 {
		drift = 0.5 - g.cfg.Eps
	}
	walk := make([]int, g.cfg.Length)
	pos := 0
	for i := range walk {
		if rng.Float64() < drift {
			pos++
		} else {
			pos--
		}
		walk[i] = pos
	}
	return trueState, walk
}

// ITI 返回该结果对应的试次间隔。
func (g *Generator) ITI(correct bool) int {
	if correct {
		return g.cfg.ITICorrect
	}
	return g.cfg.ITIIncorrect
}
