package app

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	brcfg "ddmbound/internal/config"
	"ddmbound/internal/estimator"
	"ddmbound/internal/optimizer"
	"ddmbound/internal/simulator"
	"ddmbound/internal/store"
	"ddmbound/internal/store/gormstore"
	runshttp "ddmbound/internal/transport/http/runs"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func smallConfig(t *testing.T) *brcfg.Config {
	t.Helper()
	cfg := brcfg.Default()
	cfg.Window.Length = 10
	cfg.Session.Iterations = 3
	cfg.Session.Seed = 11
	cfg.Session.TraceWalks = 2
	cfg.App.DBPath = filepath.Join(t.TempDir(), "runs.db")
	require.NoError(t, cfg.Validate())
	return cfg
}

func TestConfigConversions(t *testing.T) {
	cfg := brcfg.Default()
	tc := TrialConfig(cfg)
	assert.Equal(t, 0.2, tc.Eps)
	assert.Equal(t, 50, tc.Length)

	sc := SimulatorConfig(cfg)
	assert.Equal(t, 50, sc.MaxStep)
	assert.Equal(t, 100.0, sc.RewardValue)
	assert.Equal(t, 1.0, sc.PRewardCorrect)

	ec, err := EstimatorConfig(cfg)
	require.NoError(t, err)
	assert.Equal(t, estimator.WindowFixed, ec.Mode)

	oc, err := OptimizerConfig(cfg)
	require.NoError(t, err)
	assert.Equal(t, optimizer.MethodGradient, oc.Method)
	assert.Equal(t, [2]float64{-60, 20}, oc.SlopeBounds)

	assert.Equal(t, simulator.Boundary{Slope: 0, Intercept: 10}, InitBoundary(cfg))

	cfg.Optimizer.Method = "annealing"
	_, err = BuildPolicy(cfg)
	assert.ErrorIs(t, err, optimizer.ErrUnknownMethod)
}

func TestBuildRunner_RecordsConfigSnapshot(t *testing.T) {
	cfg := smallConfig(t)
	st, err := gormstore.NewGormStore(cfg.App.DBPath)
	require.NoError(t, err)
	defer st.Close()

	runner, err := BuildRunner(cfg, RunnerDeps{Recorder: st})
	require.NoError(t, err)
	res, err := runner.Run(context.Background(), SessionParams(cfg, "unit"))
	require.NoError(t, err)
	assert.Equal(t, 3, res.Completed)

	run, err := st.GetRun(context.Background(), res.RunID)
	require.NoError(t, err)
	assert.Equal(t, store.RunStatusDone, run.Status)
	assert.Equal(t, int64(10), gjson.GetBytes(run.Config, "window.length").Int())
	steps, err := st.ListSteps(context.Background(), res.RunID, 0)
	require.NoError(t, err)
	require.Len(t, steps, 3)
	assert.Len(t, steps[0].Walks, 2)
}

func TestApplyLaunchOverrides(t *testing.T) {
	cfg := brcfg.Default()
	require.NoError(t, applyLaunchOverrides(cfg, runshttp.LaunchRequest{
		Method:       "GREEDY",
		Iterations:   7,
		Seed:         3,
		InitBoundary: []float64{-5, 4},
	}))
	assert.Equal(t, "greedy", cfg.Optimizer.Method)
	assert.Equal(t, 7, cfg.Session.Iterations)
	assert.Equal(t, int64(3), cfg.Session.Seed)
	assert.Equal(t, 4.0, cfg.Decision.InitIntercept())

	assert.Error(t, applyLaunchOverrides(brcfg.Default(), runshttp.LaunchRequest{Method: "annealing"}))
}

func TestApp_LaunchThroughAPI(t *testing.T) {
	cfg := smallConfig(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := NewApp(ctx, cfg)
	require.NoError(t, err)
	defer a.store.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/runs", strings.NewReader(`{"method":"greedy","name":"api"}`))
	rec := httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	id := gjson.Get(rec.Body.String(), "run_id").String()
	require.NotEmpty(t, id)

	require.Eventually(t, func() bool { return a.launcher.Active() == 0 }, 10*time.Second, 20*time.Millisecond)

	rec = httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/runs/"+id, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Equal(t, "done", gjson.Get(body, "run.status").String())
	assert.Equal(t, "greedy", gjson.Get(body, "run.method").String())
	assert.Equal(t, int64(3), gjson.Get(body, "run.completed").Int())
	assert.Equal(t, int64(11), gjson.Get(body, "run.seed").Int())
}

func TestLauncher_ShutdownRejectsNewRuns(t *testing.T) {
	cfg := smallConfig(t)
	l := newSessionLauncher(context.Background(), cfg.Clone, nil, nil)
	l.Shutdown()
	_, err := l.Launch(runshttp.LaunchRequest{})
	assert.Error(t, err)
}

func TestStartupSummary(t *testing.T) {
	var buf bytes.Buffer
	NewStartupSummary(brcfg.Default()).Fprint(&buf)
	out := buf.String()
	assert.Contains(t, out, "learning_rate=2.000")
	assert.Contains(t, out, "种子: time")

	cfg := brcfg.Default()
	cfg.Optimizer.Method = "greedy"
	buf.Reset()
	NewStartupSummary(cfg).Fprint(&buf)
	assert.Contains(t, buf.String(), "epsilon=0.300")

	assert.Nil(t, NewStartupSummary(nil))
}
