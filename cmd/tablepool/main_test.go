package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"gopkg.in/yaml.v3"

	"github.com/ajitpratap0/tablepool/internal/bench"
	"github.com/ajitpratap0/tablepool/pkg/config"
	"github.com/ajitpratap0/tablepool/pkg/logger"
)

const memoryConfig = `
pool:
  name: cli
  max_active: 2
  max_idle: 2
  exhaustion_policy: block
  max_wait: 1s
  cell_schemas:
    "stats:visits": '"long"'
backend:
  type: memory
  table: users
  rows: 20
logging:
  level: error
  output_paths: ["stderr"]
`

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCommand()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tablepool.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestSignalContextTagsRequestID(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	base := zap.New(core)

	first, stop := signalContext(context.Background())
	defer stop()
	second, stop2 := signalContext(context.Background())
	defer stop2()

	logger.FromContext(first, base).Info("first")
	logger.FromContext(second, base).Info("second")

	entries := logs.AllUntimed()
	require.Len(t, entries, 2)
	a, _ := entries[0].ContextMap()[logger.FieldRequestID].(string)
	b, _ := entries[1].ContextMap()[logger.FieldRequestID].(string)
	assert.Len(t, a, 36)
	assert.NotEqual(t, a, b)
}

func TestVersionCommand(t *testing.T) {
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "tablepool v"+version)
}

func TestBackendsCommand(t *testing.T) {
	out, err := run(t, "backends")
	require.NoError(t, err)
	for _, name := range []string{"gcs", "memory", "mongodb", "mysql", "postgres", "s3"} {
		assert.Contains(t, out, name)
	}
}

func TestConfigValidate(t *testing.T) {
	out, err := run(t, "config", "validate", "-c", writeConfig(t, memoryConfig))
	require.NoError(t, err)
	assert.Contains(t, out, "configuration is valid")

	_, err = run(t, "config", "validate", "-c", writeConfig(t, "pool:\n  max_idle: -1\n"))
	assert.Error(t, err)
}

func TestConfigShowAppliesOverrides(t *testing.T) {
	path := writeConfig(t, memoryConfig)

	out, err := run(t, "config", "show", "-c", path, "--max-active", "5", "--policy", "fail")
	require.NoError(t, err)
	var cfg config.Config
	require.NoError(t, yaml.Unmarshal([]byte(out), &cfg))
	assert.Equal(t, 5, cfg.Pool.MaxActive)
	assert.Equal(t, "fail", cfg.Pool.ExhaustionPolicy)
	assert.Equal(t, "memory", cfg.Backend.Type)

	out, err = run(t, "config", "show", "-c", path, "-f", "json")
	require.NoError(t, err)
	assert.True(t, json.Valid([]byte(out)))

	out, err = run(t, "config", "show", "-c", path, "-f", "toml")
	require.NoError(t, err)
	assert.Contains(t, out, "[pool]")

	_, err = run(t, "config", "show", "-c", path, "-f", "xml")
	assert.Error(t, err)
}

func TestConfigEnvironmentOverride(t *testing.T) {
	t.Setenv("TABLEPOOL_BACKEND_TABLE", "events")
	out, err := run(t, "config", "show", "-c", writeConfig(t, memoryConfig), "-f", "json")
	require.NoError(t, err)

	var cfg config.Config
	require.NoError(t, json.Unmarshal([]byte(out), &cfg))
	assert.Equal(t, "events", cfg.Backend.Table)
}

func TestGetCommand(t *testing.T) {
	out, err := run(t, "get", "-c", writeConfig(t, memoryConfig), "user-000003", "missing")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	var row printedRow
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &row))
	assert.Equal(t, "user-000003", row.EntityID)
	require.Len(t, row.Cells, 3)
	assert.Equal(t, "stats:visits", row.Cells[2].Column)
	assert.Equal(t, float64(21), row.Cells[2].Value)

	require.NoError(t, json.Unmarshal([]byte(lines[1]), &row))
	assert.Empty(t, row.Cells)
}

func TestScanCommand(t *testing.T) {
	out, err := run(t, "scan", "-c", writeConfig(t, memoryConfig),
		"--columns", "info:name", "--start", "user-000005", "--limit", "3")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	var row printedRow
	require.NoError(t, json.Unmarshal([]byte(lines[2]), &row))
	assert.Equal(t, "user-000007", row.EntityID)
	assert.Equal(t, "user 7", row.Cells[0].Value)
}

func TestBenchCommand(t *testing.T) {
	out, err := run(t, "bench", "-c", writeConfig(t, memoryConfig),
		"--workers", "4", "--operations", "50", "--keys", "20", "-f", "json")
	require.NoError(t, err)

	var res bench.Result
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, uint64(50), res.Operations)
	assert.Zero(t, res.Errors)
	assert.Equal(t, "cli", res.Pool.Name)
	assert.LessOrEqual(t, res.Pool.Idle, 2)
}

func TestUnknownBackend(t *testing.T) {
	_, err := run(t, "scan", "-c", writeConfig(t, memoryConfig), "--backend", "cassandra")
	assert.Error(t, err)
}
