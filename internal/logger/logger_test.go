package logger

import (
	"bytes"
	"encoding/json"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	t.Cleanup(func() {
		SetOutput(os.Stdout)
		SetLevel("info")
	})

	SetLevel("warn")
	Infof("hidden %d", 1)
	Warnf("shown %d", 2)
	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "shown 2")

	buf.Reset()
	SetLevel("bogus")
	Debugf("debug line")
	Infof("info line")
	assert.NotContains(t, buf.String(), "debug line")
	assert.Contains(t, buf.String(), "info line")
}

func TestJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	SetFormat("json")
	t.Cleanup(func() {
		SetFormat("text")
		SetOutput(os.Stdout)
	})

	With("run_id", "abc").Info("step", "iteration", 3)
	line := strings.TrimSpace(buf.String())
	var rec map[string]any
	require.NoError(t, json.Unmarshal([]byte(line), &rec))
	assert.Equal(t, "abc", rec["run_id"])
	assert.Equal(t, float64(3), rec["iteration"])
}

func TestInfoBlock(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	t.Cleanup(func() { SetOutput(os.Stdout) })

	InfoBlock("  \n")
	assert.Empty(t, buf.String())
	InfoBlock("a\nb")
	assert.Equal(t, 2, strings.Count(buf.String(), "\n"))
}
