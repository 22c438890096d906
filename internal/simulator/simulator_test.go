package simulator

import (
	"testing"

	"ddmbound/internal/trial"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSim(t *testing.T, eps float64) *Simulator {
	t.Helper()
	gen, err := trial.NewGenerator(trial.Config{Eps: eps, Length: 50, ITICorrect: 15, ITIIncorrect: 50})
	require.NoError(t, err)
	sim, err := New(gen, Config{MaxStep: 50, RewardValue: 100, PenaltyValue: 0, PRewardCorrect: 1})
	require.NoError(t, err)
	return sim
}

func TestThresholdCurve_Monotone(t *testing.T) {
	for _, b := range []Boundary{{Slope: 10, Intercept: 3}, {Slope: 45, Intercept: 0}, {Slope: 0.5, Intercept: 7.5}} {
		upper, lower := ThresholdCurve(b, 50)
		require.Len(t, upper, 50)
		for i := range upper {
			assert.Equal(t, -upper[i], lower[i])
			if i > 0 {
				assert.GreaterOrEqual(t, upper[i], upper[i-1])
			}
		}
	}
	for _, b := range []Boundary{{Slope: -10, Intercept: 3}, {Slope: -60, Intercept: 20}} {
		upper, lower := ThresholdCurve(b, 50)
		for i := range upper {
			assert.Equal(t, -upper[i], lower[i])
			if i > 0 {
				assert.LessOrEqual(t, upper[i], upper[i-1])
			}
		}
	}
}

func TestThresholdCurve_Values(t *testing.T) {
	upper, _ := ThresholdCurve(Boundary{Slope: 0, Intercept: 10.7}, 3)
	assert.Equal(t, []int{10, 10, 10}, upper)
	// 45° → 0.785 per step
	upper, _ = ThresholdCurve(Boundary{Slope: 45, Intercept: 0}, 4)
	assert.Equal(t, []int{0, 0, 1, 2}, upper)
	upper, lower := ThresholdCurve(Boundary{}, 0)
	assert.Nil(t, upper)
	assert.Nil(t, lower)
}

func TestSimulate_WalkLengthMatchesReactionTime(t *testing.T) {
	sim := newSim(t, 0.2)
	rng := trial.NewSource(11)
	bounds := []Boundary{{0, 1}, {0, 10}, {-20, 15}, {5, 3}, {0, 60}}
	for _, b := range bounds {
		for i := 0; i < 200; i++ {
			tr := sim.Simulate(rng, b)
			assert.GreaterOrEqual(t, tr.ReactionTime, 0)
			assert.LessOrEqual(t, tr.ReactionTime, 50)
			if tr.Censored {
				assert.Equal(t, 50, tr.ReactionTime)
				assert.Len(t, tr.Walk, 50)
				continue
			}
			assert.GreaterOrEqual(t, len(tr.Walk), 1)
			assert.Equal(t, tr.ReactionTime+1, len(tr.Walk))
			assert.LessOrEqual(t, len(tr.Walk), 50)
		}
	}
}

func TestSimulate_ZeroBoundDecidesImmediately(t *testing.T) {
	sim := newSim(t, 0.2)
	rng := trial.NewSource(5)
	for i := 0; i < 200; i++ {
		tr := sim.Simulate(rng, Boundary{Slope: 0, Intercept: 0})
		require.Equal(t, 0, tr.ReactionTime)
		require.Len(t, tr.Walk, 1)
		assert.Equal(t, tr.Walk[0], tr.Decision)
	}
}

func TestSimulate_CensoredWhenBoundUnreachable(t *testing.T) {
	sim := newSim(t, 0.2)
	rng := trial.NewSource(9)
	for i := 0; i < 50; i++ {
		tr := sim.Simulate(rng, Boundary{Slope: 0, Intercept: 51})
		assert.True(t, tr.Censored)
		assert.Equal(t, 50, tr.ReactionTime)
		assert.Contains(t, []int{-1, 1}, tr.Decision)
	}
}

func TestSimulate_TieIsBrokenByCoin(t *testing.T) {
	// A negative bound sits below its mirror, so both passages happen at t=0.
	sim := newSim(t, 0.2)
	rng := trial.NewSource(1)
	seen := map[int]int{}
	for i := 0; i < 400; i++ {
		tr := sim.Simulate(rng, Boundary{Slope: 0, Intercept: -3})
		require.Equal(t, 0, tr.ReactionTime)
		seen[tr.Decision]++
	}
	assert.Greater(t, seen[1], 100)
	assert.Greater(t, seen[-1], 100)
}

func TestSimulate_RewardFollowsCorrectness(t *testing.T) {
	sim := newSim(t, 0.2)
	rng := trial.NewSource(21)
	for i := 0; i < 200; i++ {
		tr := sim.Simulate(rng, Boundary{Slope: 0, Intercept: 4})
		if tr.Correct() {
			assert.Equal(t, 100.0, tr.Reward)
		} else {
			assert.Equal(t, 0.0, tr.Reward)
		}
	}
}

func TestSimulate_NoiselessIsAccurate(t *testing.T) {
	sim := newSim(t, 0.5)
	rng := trial.NewSource(2)
	for i := 0; i < 300; i++ {
		tr := sim.Simulate(rng, Boundary{Slope: 0, Intercept: 1})
		assert.Equal(t, tr.TrueState, tr.Decision)
		assert.Equal(t, 0, tr.ReactionTime)
	}
}

func TestSimulate_UninformativeIsChance(t *testing.T) {
	sim := newSim(t, 0)
	rng := trial.NewSource(8)
	const n = 4000
	correct := 0
	for i := 0; i < n; i++ {
		if sim.Simulate(rng, Boundary{Slope: 0, Intercept: 5}).Correct() {
			correct++
		}
	}
	acc := float64(correct) / n
	assert.InDelta(t, 0.5, acc, 0.05)
}

func TestSimulate_PartialRewardProbability(t *testing.T) {
	gen, err := trial.NewGenerator(trial.Config{Eps: 0.5, Length: 50})
	require.NoError(t, err)
	sim, err := New(gen, Config{MaxStep: 50, RewardValue: 1, PRewardCorrect: 0})
	require.NoError(t, err)
	rng := trial.NewSource(4)
	for i := 0; i < 50; i++ {
		tr := sim.Simulate(rng, Boundary{Slope: 0, Intercept: 2})
		assert.True(t, tr.Correct())
		assert.Equal(t, 0.0, tr.Reward)
	}
}

func TestNew_Validation(t *testing.T) {
	gen, err := trial.NewGenerator(trial.Config{Eps: 0.2, Length: 10})
	require.NoError(t, err)
	_, err = New(nil, Config{MaxStep: 10})
	assert.Error(t, err)
	_, err = New(gen, Config{MaxStep: 0})
	assert.Error(t, err)
	_, err = New(gen, Config{MaxStep: 11})
	assert.Error(t, err)
	_, err = New(gen, Config{MaxStep: 10, PRewardCorrect: 1.5})
	assert.Error(t, err)
}
