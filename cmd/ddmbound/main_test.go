package main

import (
	"bytes"
	"path/filepath"
	"testing"

	brcfg "ddmbound/internal/config"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func resetFlags(t *testing.T, cmd *cobra.Command) {
	t.Helper()
	t.Cleanup(func() {
		cmd.Flags().VisitAll(func(f *pflag.Flag) {
			_ = f.Value.Set(f.DefValue)
			f.Changed = false
		})
	})
}

func TestApplyRunFlags(t *testing.T) {
	resetFlags(t, runCmd)
	require.NoError(t, runCmd.ParseFlags([]string{"--method", "Greedy", "-n", "7", "--slope", "-5"}))

	cfg := brcfg.Default()
	applyRunFlags(runCmd, cfg)
	assert.Equal(t, "greedy", cfg.Optimizer.Method)
	assert.Equal(t, 7, cfg.Session.Iterations)
	assert.Equal(t, int64(0), cfg.Session.Seed)
	assert.Equal(t, -5.0, cfg.Decision.InitSlope())
	assert.Equal(t, 10.0, cfg.Decision.InitIntercept())
	require.NoError(t, cfg.Validate())
}

func TestApplyRunFlags_Untouched(t *testing.T) {
	resetFlags(t, runCmd)
	require.NoError(t, runCmd.ParseFlags(nil))

	cfg := brcfg.Default()
	applyRunFlags(runCmd, cfg)
	assert.Equal(t, brcfg.Default().Optimizer.Method, cfg.Optimizer.Method)
	assert.Equal(t, []float64{0, 10}, cfg.Decision.InitBoundary)
}

func TestEstimateCommand_JSONIsReproducible(t *testing.T) {
	resetFlags(t, estimateCmd)
	missing := filepath.Join(t.TempDir(), "absent.yaml")
	args := []string{"estimate", "--config", missing, "--seed", "7", "--window", "20", "--slope", "-2", "--json"}

	execute := func() string {
		var out bytes.Buffer
		rootCmd.SetOut(&out)
		rootCmd.SetArgs(args)
		require.NoError(t, rootCmd.Execute())
		return out.String()
	}
	first := execute()
	second := execute()
	rootCmd.SetOut(nil)
	rootCmd.SetArgs(nil)

	require.True(t, gjson.Valid(first), first)
	assert.Equal(t, first, second)
	assert.Equal(t, int64(20), gjson.Get(first, "trials").Int())
	assert.Equal(t, int64(7), gjson.Get(first, "seed").Int())
	assert.Equal(t, -2.0, gjson.Get(first, "boundary.slope").Float())
	assert.Equal(t, 10.0, gjson.Get(first, "boundary.intercept").Float())
	rate := gjson.Get(first, "reward_rate").Float()
	assert.InDelta(t, gjson.Get(first, "cum_reward").Float()/gjson.Get(first, "cum_time").Float(), rate, 1e-9)
}
