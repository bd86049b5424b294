package cmd

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inference-sim/inference-replay/replay"
)

// parseReplayFlags registers the replay flags on a fresh set and parses args.
func parseReplayFlags(t *testing.T, args ...string) (*pflag.FlagSet, RunConfig, string) {
	t.Helper()
	fs := pflag.NewFlagSet("replay", pflag.ContinueOnError)
	var (
		values     RunConfig
		configPath string
	)
	registerReplayFlags(fs, &values, &configPath)
	require.NoError(t, fs.Parse(args))
	return fs, values, configPath
}

func writeConfigFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "replay.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestResolveRunConfig_Defaults(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	fs, values, configPath := parseReplayFlags(t, "--workload-path", "w.jsonl", "--endpoint", "http://gw")

	cfg, err := resolveRunConfig(fs, values, configPath)
	require.NoError(t, err)

	assert.Equal(t, "output.jsonl", cfg.OutputFilePath)
	assert.Equal(t, "random", cfg.RoutingStrategy)
	assert.Equal(t, 1, cfg.ClientPoolSize)
	assert.Equal(t, 1.0, cfg.TimeScale)
	assert.Equal(t, 60*time.Second, cfg.ClientConfig().Timeout)
	assert.Equal(t, 0, cfg.MaxRetries)
}

func TestResolveRunConfig_Precedence_FlagOverEnvOverFile(t *testing.T) {
	// GIVEN a config file setting model, endpoint, pool size and streaming
	path := writeConfigFile(t, `
workload_path: trace.jsonl
endpoint: http://from-file
model: file-model
client_pool_size: 8
streaming: true
time_scale: 0.5
`)
	// AND the environment overriding the model and endpoint
	t.Setenv("REPLAY_MODEL", "env-model")
	t.Setenv("REPLAY_ENDPOINT", "http://from-env")
	t.Setenv("OPENAI_API_KEY", "env-key")

	// AND a flag overriding the endpoint again
	fs, values, configPath := parseReplayFlags(t, "--config", path, "--endpoint", "http://from-flag")

	// WHEN resolved
	cfg, err := resolveRunConfig(fs, values, configPath)
	require.NoError(t, err)

	// THEN each field comes from the highest-precedence source that set it
	assert.Equal(t, "http://from-flag", cfg.Endpoint)
	assert.Equal(t, "env-model", cfg.Model)
	assert.Equal(t, "env-key", cfg.APIKey)
	assert.Equal(t, 8, cfg.ClientPoolSize)
	assert.True(t, cfg.Streaming)
	assert.Equal(t, 0.5, cfg.TimeScale)
	assert.Equal(t, "trace.jsonl", cfg.WorkloadPath)

	// AND unset flags do not clobber file values with their defaults
	assert.Equal(t, "random", cfg.RoutingStrategy)
}

func TestResolveRunConfig_UnknownFileField_Error(t *testing.T) {
	path := writeConfigFile(t, "workload_path: a\nendpoint: b\nclient_pool: 3\n")
	fs, values, configPath := parseReplayFlags(t, "--config", path)

	_, err := resolveRunConfig(fs, values, configPath)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "client_pool")
}

func TestRunConfig_Validate(t *testing.T) {
	valid := func() RunConfig {
		c := defaultRunConfig()
		c.WorkloadPath = "w"
		c.Endpoint = "http://gw"
		return c
	}
	tests := []struct {
		name   string
		mutate func(*RunConfig)
	}{
		{"missing workload", func(c *RunConfig) { c.WorkloadPath = "" }},
		{"missing endpoint", func(c *RunConfig) { c.Endpoint = "" }},
		{"negative timeout", func(c *RunConfig) { c.TimeoutSeconds = -1 }},
		{"negative retries", func(c *RunConfig) { c.MaxRetries = -1 }},
		{"half a trace export", func(c *RunConfig) { c.TraceHeader = "h.yaml" }},
		{"zero pool", func(c *RunConfig) { c.ClientPoolSize = 0 }},
		{"zero scale", func(c *RunConfig) { c.TimeScale = 0 }},
	}
	require.NoError(t, valid().Validate())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(&c)
			assert.ErrorIs(t, c.Validate(), replay.ErrInvalidConfig)
		})
	}
}

func TestRunConfig_EngineConfig(t *testing.T) {
	c := defaultRunConfig()
	c.ClientPoolSize = 3
	c.TimeScale = 2
	c.OutputTokenLimit = 128
	c.Model = "m"

	assert.Equal(t, replay.Config{PoolSize: 3, ScaleFactor: 2, MaxOutputTokens: 128, Model: "m"}, c.EngineConfig())
}
