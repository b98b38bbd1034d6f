package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/orthofit/internal/config"
	"github.com/sawpanic/orthofit/internal/sink"
	"github.com/sawpanic/orthofit/internal/volume"
)

func execRoot(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append(args, "--log-format", "json", "--log-level", "warn"))
	err := cmd.Execute()
	return out.String(), err
}

func TestSelfTestCommand(t *testing.T) {
	out, err := execRoot(t, "selftest", "--seed", "7")
	require.NoError(t, err)
	assert.Equal(t, 5, strings.Count(out, "PASSED"))
	assert.NotContains(t, out, "FAILED")

	out, err = execRoot(t, "selftest", "--seed", "7", "--dims", "3,4", "--tolerance", "-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "2 of 2")
	assert.Contains(t, out, "FAILED")
}

func TestSynthRunInspect(t *testing.T) {
	dir := t.TempDir()

	out, err := execRoot(t, "synth", "--out", dir, "--t", "40", "--rows", "12", "--cols", "5", "--fields", "3", "--seed", "2")
	require.NoError(t, err)
	assert.Contains(t, out, "orthofit.yaml")

	csvPath := filepath.Join(dir, "coefficients.csv")
	out, err = execRoot(t, "run", "-c", filepath.Join(dir, "orthofit.yaml"),
		"--batch-size", "5", "--workers", "3", "--csv", csvPath, "--run-id", "e2e")
	require.NoError(t, err)
	assert.Contains(t, out, "run e2e: 60 points, 0 skipped")

	data, err := os.ReadFile(filepath.Join(dir, "coefficients.json"))
	require.NoError(t, err)
	var doc map[string][]float64
	require.NoError(t, json.Unmarshal(data, &doc))
	require.Len(t, doc, 60)

	truth, err := volume.ReadCube(filepath.Join(dir, "truth.cube"))
	require.NoError(t, err)
	for r := 0; r < 12; r++ {
		for c := 0; c < 5; c++ {
			coefs := doc[sink.PointKey(r, c)]
			require.Len(t, coefs, 3)
			for k, v := range coefs {
				assert.InDelta(t, truth.At(k, r, c), v, 1e-6)
			}
		}
	}

	csvData, err := os.ReadFile(csvPath)
	require.NoError(t, err)
	assert.Equal(t, 12, strings.Count(string(csvData), "\n"))

	out, err = execRoot(t, "inspect", "result", filepath.Join(dir, "coefficients.json"))
	require.NoError(t, err)
	assert.Contains(t, out, "60 points, 3 coefficients")

	out, err = execRoot(t, "inspect", "cube", filepath.Join(dir, "truth.cube"))
	require.NoError(t, err)
	assert.Contains(t, out, "truth.cube")
}

func TestRunRejectsInvalidConfig(t *testing.T) {
	_, err := execRoot(t, "run", "--root", t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Invalid config")
}

func TestRunMissingData(t *testing.T) {
	dir := t.TempDir()
	_, err := execRoot(t, "run", "--root", dir, "--basis-fields", "b1,b2",
		"--zones", writeZones(t, dir), "--start-row", "0", "--output", filepath.Join(dir, "out.json"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), ".cube")
}

func TestSummarizeResult_ObjectLayout(t *testing.T) {
	path := filepath.Join(t.TempDir(), "r.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"[0,0]": {"coefficients": [1, 2], "error": 0.5, "degenerate": 1},
		"[0,1]": {"coefficients": [3, -2], "error": 0.25, "degenerate": 0}
	}`), 0644))

	s, err := summarizeResult(path)
	require.NoError(t, err)
	assert.Equal(t, 2, s.points)
	assert.Equal(t, 2, s.dims)
	assert.Equal(t, 0.5, s.maxError)
	assert.Equal(t, 1, s.degenerate)
	assert.Equal(t, 1.0, s.coefs[0].min)
	assert.Equal(t, 3.0, s.coefs[0].max)
	assert.Equal(t, -2.0, s.coefs[1].min)
}

func TestLogSettings(t *testing.T) {
	t.Setenv("ORTHOFIT_LOG_LEVEL", "debug")
	cfg, err := config.Load("")
	require.NoError(t, err)

	root := &rootOptions{}
	fs := pflag.NewFlagSet("run", pflag.ContinueOnError)
	fs.StringVar(&root.logLevel, "log-level", "info", "")
	fs.StringVar(&root.logFormat, "log-format", "auto", "")

	require.NoError(t, fs.Parse(nil))
	level, format := logSettings(fs, root, cfg)
	assert.Equal(t, "debug", level)
	assert.Equal(t, "auto", format)

	require.NoError(t, fs.Parse([]string{"--log-level", "error", "--log-format", "json"}))
	level, format = logSettings(fs, root, cfg)
	assert.Equal(t, "error", level)
	assert.Equal(t, "json", format)
}

func TestRunAppliesConfigLogLevel(t *testing.T) {
	prev := zerolog.GlobalLevel()
	t.Cleanup(func() { zerolog.SetGlobalLevel(prev) })
	t.Setenv("ORTHOFIT_LOG_LEVEL", "error")

	cmd := newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"run", "--root", t.TempDir(), "--log-format", "json"})
	require.Error(t, cmd.Execute())
	assert.Equal(t, zerolog.ErrorLevel, zerolog.GlobalLevel())
}

func TestBuildSinks_RunRows(t *testing.T) {
	cfg := config.Default()
	cfg.Output.JSON.RunRows = true

	out, err := buildSinks(context.Background(), cfg, nil, 75)
	require.NoError(t, err)
	require.Len(t, out.Sinks, 1)
	js, ok := out.Sinks[0].(*sink.JSONSink)
	require.True(t, ok)
	assert.Equal(t, 75, js.RowOrigin)

	cfg.Output.JSON.RunRows = false
	out, err = buildSinks(context.Background(), cfg, nil, 75)
	require.NoError(t, err)
	assert.Zero(t, out.Sinks[0].(*sink.JSONSink).RowOrigin)
}

func writeZones(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "zones.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"all": [4, 4]}`), 0644))
	return path
}
