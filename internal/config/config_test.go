package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDefault_MatchesReferenceConstants(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 0.2, cfg.Task.Eps)
	assert.Equal(t, 1.0, cfg.Task.PRewardCorrect)
	assert.Equal(t, 50, cfg.Task.MaxTrialLength)
	assert.Equal(t, 15, cfg.Task.ITICorrect)
	assert.Equal(t, 50, cfg.Task.ITIIncorrect)
	assert.Equal(t, []float64{0, 10}, cfg.Decision.InitBoundary)
	assert.Equal(t, 50, cfg.Decision.MaxStep)
	assert.Equal(t, 100.0, cfg.Decision.RewardValue)
	assert.Equal(t, 0.0, cfg.Decision.PenaltyValue)
	assert.Equal(t, "fixed", cfg.Window.Mode)
	assert.Equal(t, 100, cfg.Window.Length)
	assert.Equal(t, "gradient", cfg.Optimizer.Method)
	assert.Equal(t, 2.0, cfg.Optimizer.LearningRate)
	assert.Equal(t, 0.5, cfg.Optimizer.DeltaSlope)
	assert.Equal(t, 1.0, cfg.Optimizer.DeltaIntercept)
	assert.Equal(t, 0.3, cfg.Optimizer.GreedyEpsilon)
	assert.Equal(t, []float64{-60, 20}, cfg.Optimizer.SlopeBounds)
	assert.Equal(t, []float64{0, 20}, cfg.Optimizer.InterceptBounds)
}

func TestLoad_ExplicitZeroIsKept(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "config.yaml", `
task:
  eps: 0
optimizer:
  update_method: Greedy
  greedy_epsilon: 0
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 0.0, cfg.Task.Eps)
	assert.Equal(t, 0.0, cfg.Optimizer.GreedyEpsilon)
	assert.Equal(t, "greedy", cfg.Optimizer.Method)
	assert.Equal(t, 100, cfg.Window.Length)
}

func TestLoad_Includes(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "base.yaml", `
window:
  length: 40
decision:
  init_boundary: [-5, 8]
`)
	path := writeFile(t, dir, "config.yaml", `
include:
  - base.yaml
window:
  length: 60
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 60, cfg.Window.Length)
	assert.Equal(t, -5.0, cfg.Decision.InitSlope())
	assert.Equal(t, 8.0, cfg.Decision.InitIntercept())
}

func TestLoad_IncludeCycle(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.yaml", "include: [b.yaml]\n")
	path := writeFile(t, dir, "b.yaml", "include: [a.yaml]\n")
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cycle")
}

func TestLoad_EnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "config.yaml", "window:\n  length: 40\n")
	t.Setenv("DDMBOUND_WINDOW_LENGTH", "7")
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Window.Length)
}

func TestLoad_InvalidConfiguration(t *testing.T) {
	cases := map[string]string{
		"method":      "optimizer:\n  update_method: annealing\n",
		"window_mode": "window:\n  mode: rolling\n",
		"zero_delta":  "optimizer:\n  delta_slope: 0\n",
		"empty_win":   "window:\n  length: 0\n",
		"eps":         "task:\n  eps: 0.7\n",
		"max_step":    "decision:\n  max_step: 80\n",
		"bounds":      "optimizer:\n  slope_bounds: [20, -60]\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			path := writeFile(t, t.TempDir(), "config.yaml", body)
			_, err := Load(path)
			assert.Error(t, err)
		})
	}
}

func TestValidate_NormalizesMethod(t *testing.T) {
	cfg := Default()
	cfg.Optimizer.Method = "  Greedy "
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "greedy", cfg.Optimizer.Method)

	cfg.Optimizer.Method = "GRAD"
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "grad", cfg.Optimizer.Method)
}

func TestLoadOrDefault(t *testing.T) {
	cfg, err := LoadOrDefault(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 100, cfg.Window.Length)

	_, err = Load("")
	assert.Error(t, err)
}

func TestSnapshotJSON_UsesFileKeys(t *testing.T) {
	raw, err := Default().SnapshotJSON()
	require.NoError(t, err)
	assert.Equal(t, int64(50), gjson.GetBytes(raw, "decision.max_step").Int())
	assert.Equal(t, "gradient", gjson.GetBytes(raw, "optimizer.update_method").String())
	assert.Equal(t, 10.0, gjson.GetBytes(raw, "decision.init_boundary.1").Float())

	var nilCfg *Config
	_, err = nilCfg.SnapshotJSON()
	assert.Error(t, err)
}
