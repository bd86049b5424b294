package cmd

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/inference-sim/inference-replay/replay"
	"github.com/inference-sim/inference-replay/replay/client"
)

// RunConfig is the full configuration of one replay run. Values are resolved
// in order of precedence: explicit flag, environment, config file, flag default.
type RunConfig struct {
	WorkloadPath     string  `yaml:"workload_path"`
	Endpoint         string  `yaml:"endpoint" env:"REPLAY_ENDPOINT"`
	Model            string  `yaml:"model" env:"REPLAY_MODEL"`
	APIKey           string  `yaml:"api_key" env:"OPENAI_API_KEY"`
	OutputFilePath   string  `yaml:"output_file_path"`
	Streaming        bool    `yaml:"streaming"`
	RoutingStrategy  string  `yaml:"routing_strategy"`
	ClientPoolSize   int     `yaml:"client_pool_size"`
	OutputTokenLimit int64   `yaml:"output_token_limit"`
	TimeScale        float64 `yaml:"time_scale"`
	TimeoutSeconds   float64 `yaml:"timeout_second"`
	MaxRetries       int     `yaml:"max_retries"`
	QueueSize        int     `yaml:"queue_size"`

	OutputDB    string `yaml:"output_db"`
	NATSURL     string `yaml:"nats_url" env:"REPLAY_NATS_URL"`
	NATSSubject string `yaml:"nats_subject"`
	MetricsAddr string `yaml:"metrics_addr"`
	TraceHeader string `yaml:"trace_header"`
	TraceData   string `yaml:"trace_data"`
}

// defaultRunConfig returns the flag defaults.
func defaultRunConfig() RunConfig {
	return RunConfig{
		OutputFilePath:  "output.jsonl",
		RoutingStrategy: "random",
		ClientPoolSize:  1,
		TimeScale:       1.0,
		TimeoutSeconds:  60,
		NATSSubject:     "replay.results",
	}
}

// registerReplayFlags binds every RunConfig field to a flag on fs.
func registerReplayFlags(fs *pflag.FlagSet, v *RunConfig, configPath *string) {
	d := defaultRunConfig()
	fs.StringVar(configPath, "config", "", "Path to a YAML run config (flags and environment override it)")

	fs.StringVar(&v.WorkloadPath, "workload-path", d.WorkloadPath, "Path to the workload trace (JSON array or JSON Lines)")
	fs.StringVar(&v.Endpoint, "endpoint", d.Endpoint, "Target endpoint root; /v1 is appended")
	fs.StringVar(&v.Model, "model", d.Model, "Default model for requests that do not name one")
	fs.StringVar(&v.APIKey, "api-key", d.APIKey, "API key (default $OPENAI_API_KEY)")
	fs.StringVar(&v.OutputFilePath, "output-file-path", d.OutputFilePath, "Results file (JSON Lines)")
	fs.BoolVar(&v.Streaming, "streaming", d.Streaming, "Use streaming completions and record TTFT/TPOT")
	fs.StringVar(&v.RoutingStrategy, "routing-strategy", d.RoutingStrategy, "Value of the routing-strategy request header")
	fs.IntVar(&v.ClientPoolSize, "client-pool-size", d.ClientPoolSize, "Number of dispatch workers")
	fs.Int64Var(&v.OutputTokenLimit, "output-token-limit", d.OutputTokenLimit, "Max output tokens per request (0 = server default)")
	fs.Float64Var(&v.TimeScale, "time-scale", d.TimeScale, "Trace time multiplier (<1 compresses, >1 stretches)")
	fs.Float64Var(&v.TimeoutSeconds, "timeout-second", d.TimeoutSeconds, "Per-request timeout in seconds (0 = none)")
	fs.IntVar(&v.MaxRetries, "max-retries", d.MaxRetries, "Client retries per request")
	fs.IntVar(&v.QueueSize, "queue-size", d.QueueSize, "Dispatch queue capacity (0 = 2 x client-pool-size)")

	fs.StringVar(&v.OutputDB, "output-db", d.OutputDB, "Also store results in this SQLite database")
	fs.StringVar(&v.NATSURL, "nats-url", d.NATSURL, "Also publish results to this NATS server")
	fs.StringVar(&v.NATSSubject, "nats-subject", d.NATSSubject, "NATS subject for published results")
	fs.StringVar(&v.MetricsAddr, "metrics-addr", d.MetricsAddr, "Serve Prometheus metrics on this address during the run")
	fs.StringVar(&v.TraceHeader, "trace-header", d.TraceHeader, "Export a trace v2 header (YAML) to this path")
	fs.StringVar(&v.TraceData, "trace-data", d.TraceData, "Export trace v2 data (CSV) to this path")
}

// resolveRunConfig merges the config file, the environment and the flags
// explicitly set on fs (whose values are in flagValues).
func resolveRunConfig(fs *pflag.FlagSet, flagValues RunConfig, configPath string) (RunConfig, error) {
	cfg := defaultRunConfig()
	if configPath != "" {
		if err := loadRunConfigFile(configPath, &cfg); err != nil {
			return RunConfig{}, err
		}
	}
	if err := env.Parse(&cfg); err != nil {
		return RunConfig{}, fmt.Errorf("reading environment: %w", err)
	}
	overlayChangedFlags(fs, &cfg, flagValues)
	if err := cfg.Validate(); err != nil {
		return RunConfig{}, err
	}
	return cfg, nil
}

// loadRunConfigFile decodes path over cfg. Uses strict field checking so
// typos fail loudly.
func loadRunConfigFile(path string, cfg *RunConfig) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(cfg); err != nil {
		return fmt.Errorf("parsing config file %s: %w", path, err)
	}
	return nil
}

// overlayChangedFlags copies the fields whose flags were set on the command line.
func overlayChangedFlags(fs *pflag.FlagSet, cfg *RunConfig, v RunConfig) {
	fs.Visit(func(f *pflag.Flag) {
		switch f.Name {
		case "workload-path":
			cfg.WorkloadPath = v.WorkloadPath
		case "endpoint":
			cfg.Endpoint = v.Endpoint
		case "model":
			cfg.Model = v.Model
		case "api-key":
			cfg.APIKey = v.APIKey
		case "output-file-path":
			cfg.OutputFilePath = v.OutputFilePath
		case "streaming":
			cfg.Streaming = v.Streaming
		case "routing-strategy":
			cfg.RoutingStrategy = v.RoutingStrategy
		case "client-pool-size":
			cfg.ClientPoolSize = v.ClientPoolSize
		case "output-token-limit":
			cfg.OutputTokenLimit = v.OutputTokenLimit
		case "time-scale":
			cfg.TimeScale = v.TimeScale
		case "timeout-second":
			cfg.TimeoutSeconds = v.TimeoutSeconds
		case "max-retries":
			cfg.MaxRetries = v.MaxRetries
		case "queue-size":
			cfg.QueueSize = v.QueueSize
		case "output-db":
			cfg.OutputDB = v.OutputDB
		case "nats-url":
			cfg.NATSURL = v.NATSURL
		case "nats-subject":
			cfg.NATSSubject = v.NATSSubject
		case "metrics-addr":
			cfg.MetricsAddr = v.MetricsAddr
		case "trace-header":
			cfg.TraceHeader = v.TraceHeader
		case "trace-data":
			cfg.TraceData = v.TraceData
		}
	})
}

// Validate checks the settings the engine does not own.
func (c RunConfig) Validate() error {
	switch {
	case c.WorkloadPath == "":
		return fmt.Errorf("%w: workload path is required", replay.ErrInvalidConfig)
	case c.Endpoint == "":
		return fmt.Errorf("%w: endpoint is required", replay.ErrInvalidConfig)
	case c.OutputFilePath == "":
		return fmt.Errorf("%w: output file path is required", replay.ErrInvalidConfig)
	case c.TimeoutSeconds < 0:
		return fmt.Errorf("%w: timeout must be >= 0, got %v", replay.ErrInvalidConfig, c.TimeoutSeconds)
	case c.MaxRetries < 0:
		return fmt.Errorf("%w: max retries must be >= 0, got %d", replay.ErrInvalidConfig, c.MaxRetries)
	case (c.TraceHeader == "") != (c.TraceData == ""):
		return fmt.Errorf("%w: --trace-header and --trace-data must be set together", replay.ErrInvalidConfig)
	case c.NATSURL != "" && c.NATSSubject == "":
		return fmt.Errorf("%w: nats subject is required with a nats url", replay.ErrInvalidConfig)
	}
	return c.EngineConfig().Validate()
}

// EngineConfig returns the replay engine settings.
func (c RunConfig) EngineConfig() replay.Config {
	return replay.Config{
		PoolSize:        c.ClientPoolSize,
		ScaleFactor:     c.TimeScale,
		Streaming:       c.Streaming,
		MaxOutputTokens: c.OutputTokenLimit,
		Model:           c.Model,
		QueueSize:       c.QueueSize,
	}
}

// ClientConfig returns the request client settings.
func (c RunConfig) ClientConfig() client.Config {
	return client.Config{
		Endpoint:        c.Endpoint,
		APIKey:          c.APIKey,
		MaxRetries:      c.MaxRetries,
		Timeout:         time.Duration(c.TimeoutSeconds * float64(time.Second)),
		RoutingStrategy: c.RoutingStrategy,
	}
}
