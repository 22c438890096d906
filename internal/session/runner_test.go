package session

import (
	"context"
	"errors"
	"testing"

	"ddmbound/internal/estimator"
	"ddmbound/internal/metrics"
	"ddmbound/internal/optimizer"
	"ddmbound/internal/simulator"
	"ddmbound/internal/store"
	"ddmbound/internal/trial"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockRecorder struct {
	mock.Mock
}

func (m *MockRecorder) InsertRun(ctx context.Context, run store.Run) error {
	return m.Called(ctx, run).Error(0)
}

func (m *MockRecorder) AppendStep(ctx context.Context, step *store.Step) error {
	return m.Called(ctx, step).Error(0)
}

func (m *MockRecorder) FinishRun(ctx context.Context, id string, status store.RunStatus, summary store.RunSummary) error {
	return m.Called(ctx, id, status, summary).Error(0)
}

// stubPolicy 每次把斜率减 1，并在 samples 末尾追加迭代序号。
type stubPolicy struct {
	seen   []optimizer.RunningSamples
	failAt int
	onCall func(i int)
}

func (p *stubPolicy) Method() optimizer.Method { return optimizer.MethodGreedy }

func (p *stubPolicy) Update(ctx context.Context, rng trial.Source, current simulator.Boundary, samples optimizer.RunningSamples) (optimizer.Update, error) {
	i := len(p.seen)
	p.seen = append(p.seen, samples)
	if p.onCall != nil {
		p.onCall(i)
	}
	if p.failAt > 0 && i == p.failAt {
		return optimizer.Update{}, estimator.ErrUndefinedRate
	}
	next := simulator.Boundary{Slope: current.Slope - 1, Intercept: current.Intercept}
	rr := float64(10 - i)
	return optimizer.Update{
		Boundary:   next,
		Window:     estimator.Window{Boundary: current, RewardRate: rr, Walks: [][]int{{1}, {1, -1}, {-1}}, Decisions: []int{1, 1, -1}, TrueStates: []int{1, 1, 1}},
		RewardRate: rr,
		Samples:    samples.With(float64(i)),
	}, nil
}

func newGreedyPolicy(t *testing.T) optimizer.Policy {
	t.Helper()
	gen, err := trial.NewGenerator(trial.Config{Eps: 0.2, Length: 50, ITICorrect: 15, ITIIncorrect: 50})
	require.NoError(t, err)
	sim, err := simulator.New(gen, simulator.Config{MaxStep: 50, RewardValue: 100, PRewardCorrect: 1})
	require.NoError(t, err)
	est, err := estimator.New(sim, estimator.Config{Mode: estimator.WindowFixed, Length: 20})
	require.NoError(t, err)
	p, err := optimizer.New(optimizer.Config{
		Method:          optimizer.MethodGreedy,
		GreedyEpsilon:   0.5,
		SlopeBounds:     [2]float64{-60, 20},
		InterceptBounds: [2]float64{0, 20},
	}, est)
	require.NoError(t, err)
	return p
}

func TestRunner_ThreadsSamplesAndRecords(t *testing.T) {
	rec := new(MockRecorder)
	rec.On("InsertRun", mock.Anything, mock.MatchedBy(func(r store.Run) bool {
		return r.Status == store.RunStatusRunning && r.Seed == 42 && r.Iterations == 3 && r.InitIntercept == 10
	})).Return(nil).Once()
	rec.On("AppendStep", mock.Anything, mock.AnythingOfType("*store.Step")).Return(nil).Times(3)
	rec.On("FinishRun", mock.Anything, mock.Anything, store.RunStatusDone, store.RunSummary{
		Completed:      3,
		FinalSlope:     -3,
		FinalIntercept: 10,
		BestRewardRate: 10,
		LastRewardRate: 8,
	}).Return(nil).Once()

	m := metrics.New()
	policy := &stubPolicy{}
	r, err := NewRunner(policy, Options{Recorder: rec, Metrics: m, TraceWalks: 2})
	require.NoError(t, err)

	res, err := r.Run(context.Background(), Params{Name: "t", Iterations: 3, Seed: 42, Init: simulator.Boundary{Intercept: 10}})
	require.NoError(t, err)
	rec.AssertExpectations(t)

	require.Len(t, policy.seen, 3)
	assert.Empty(t, policy.seen[0])
	assert.Equal(t, optimizer.RunningSamples{0}, policy.seen[1])
	assert.Equal(t, optimizer.RunningSamples{0, 1}, policy.seen[2])

	assert.NotEmpty(t, res.RunID)
	assert.Equal(t, 3, res.Completed)
	assert.Len(t, res.Trajectory, 4)
	assert.Equal(t, simulator.Boundary{Slope: -3, Intercept: 10}, res.Final)
	assert.Equal(t, []float64{10, 9, 8}, res.RewardRates)
	require.Len(t, res.Steps, 3)
	assert.Len(t, res.Steps[0].Walks, 2)
	assert.Equal(t, -1.0, res.Steps[1].WindowSlope)
	assert.Equal(t, 2.0/3.0, res.Steps[0].Accuracy)

	count, err := testutil.GatherAndCount(m.Registry(), "ddm_updates_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	count, err = testutil.GatherAndCount(m.Registry(), "ddm_reward_rate", "ddm_boundary_slope")
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestRunner_FailureMarksRunFailed(t *testing.T) {
	rec := new(MockRecorder)
	rec.On("InsertRun", mock.Anything, mock.Anything).Return(nil)
	rec.On("AppendStep", mock.Anything, mock.Anything).Return(nil)
	rec.On("FinishRun", mock.Anything, mock.Anything, store.RunStatusFailed, mock.MatchedBy(func(s store.RunSummary) bool {
		return s.Completed == 2 && s.Message != ""
	})).Return(nil).Once()

	r, err := NewRunner(&stubPolicy{failAt: 2}, Options{Recorder: rec})
	require.NoError(t, err)
	res, err := r.Run(context.Background(), Params{Iterations: 5, Seed: 1})
	assert.ErrorIs(t, err, estimator.ErrUndefinedRate)
	assert.Equal(t, 2, res.Completed)
	rec.AssertExpectations(t)
}

func TestRunner_CancelStopsEarly(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rec := new(MockRecorder)
	rec.On("InsertRun", mock.Anything, mock.Anything).Return(nil)
	rec.On("AppendStep", mock.Anything, mock.Anything).Return(nil)
	rec.On("FinishRun", mock.Anything, mock.Anything, store.RunStatusFailed, mock.Anything).Return(nil).Once()

	policy := &stubPolicy{onCall: func(i int) {
		if i == 1 {
			cancel()
		}
	}}
	r, err := NewRunner(policy, Options{Recorder: rec})
	require.NoError(t, err)
	res, err := r.Run(ctx, Params{Iterations: 10, Seed: 1})
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, 2, res.Completed)
	rec.AssertExpectations(t)
}

func TestRunner_SameSeedSameTrajectory(t *testing.T) {
	run := func() Result {
		r, err := NewRunner(newGreedyPolicy(t), Options{})
		require.NoError(t, err)
		res, err := r.Run(context.Background(), Params{Iterations: 15, Seed: 2024, Init: simulator.Boundary{Intercept: 10}})
		require.NoError(t, err)
		return res
	}
	a, b := run(), run()
	assert.Equal(t, a.Trajectory, b.Trajectory)
	assert.Equal(t, a.RewardRates, b.RewardRates)
	assert.Equal(t, a.Samples, b.Samples)
	assert.NotEqual(t, a.RunID, b.RunID)
}

func TestRunner_RecordErrorIsFatal(t *testing.T) {
	rec := new(MockRecorder)
	rec.On("InsertRun", mock.Anything, mock.Anything).Return(errors.New("disk full"))
	r, err := NewRunner(&stubPolicy{}, Options{Recorder: rec})
	require.NoError(t, err)
	_, err = r.Run(context.Background(), Params{Iterations: 1, Seed: 1})
	assert.Error(t, err)
	rec.AssertNotCalled(t, "AppendStep", mock.Anything, mock.Anything)
}

func TestRunner_Validation(t *testing.T) {
	_, err := NewRunner(nil, Options{})
	assert.Error(t, err)

	r, err := NewRunner(&stubPolicy{}, Options{})
	require.NoError(t, err)
	_, err = r.Run(context.Background(), Params{Iterations: 0})
	assert.Error(t, err)

	res, err := r.Run(context.Background(), Params{Iterations: 1})
	require.NoError(t, err)
	assert.NotZero(t, res.Seed)
}
