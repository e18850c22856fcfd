package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Acteus/Base-ML-Platform/internal/domain/execution"
	"github.com/Acteus/Base-ML-Platform/internal/infra/kafka"
	"github.com/Acteus/Base-ML-Platform/internal/runtime/docker"
)

const (
	containerWorkdir         = "/tmp"
	sandboxUser              = "65534:65534"
	defaultKafkaTopic        = "script-runs"
	defaultKafkaResultsTopic = "script-reports"
	defaultKafkaGroupID      = "scriptlab-runner"
)

type appConfig struct {
	Kafka       kafkaConfig   `yaml:"kafka"`
	Sandbox     sandboxConfig `yaml:"sandbox"`
	Runner      runnerConfig  `yaml:"runner"`
	MetricsAddr string        `yaml:"metrics_addr"`
	LogLevel    string        `yaml:"log_level"`
}

// kafkaConfig leaves Brokers empty to run the built-in demo catalogue.
type kafkaConfig struct {
	Brokers      []string `yaml:"brokers"`
	Topic        string   `yaml:"topic"`
	ResultsTopic string   `yaml:"results_topic"`
	GroupID      string   `yaml:"group_id"`
	// MaxMessageBytes caps one published report. The broker's
	// message.max.bytes must allow at least this much.
	MaxMessageBytes int64 `yaml:"max_message_bytes"`
	MaxRequestBytes int   `yaml:"max_request_bytes"`
}

type sandboxConfig struct {
	Image        string   `yaml:"image"`
	Workdir      string   `yaml:"workdir"`
	User         string   `yaml:"user"`
	AllowNetwork bool     `yaml:"allow_network"`
	ExtraModules []string `yaml:"extra_modules"`
	SkipPull     bool     `yaml:"skip_pull"`
	// MaxOutputBytes caps each of stdout and stderr kept per run.
	MaxOutputBytes int64 `yaml:"max_output_bytes"`
}

type runnerConfig struct {
	TimeLimit        time.Duration `yaml:"time_limit"`
	MemoryLimitBytes int64         `yaml:"memory_limit_bytes"`
	MaxParallel      int           `yaml:"max_parallel"`
	// MaxRequests stops the service after that many runs; zero means unbounded.
	MaxRequests int `yaml:"max_requests"`
}

func defaultAppConfig() appConfig {
	return appConfig{
		Kafka: kafkaConfig{
			Topic:        defaultKafkaTopic,
			ResultsTopic: defaultKafkaResultsTopic,
			GroupID:         defaultKafkaGroupID,
			MaxMessageBytes: kafka.DefaultMaxMessageBytes,
			MaxRequestBytes: kafka.DefaultMaxRequestBytes,
		},
		Sandbox: sandboxConfig{
			Image:          docker.SandboxImage,
			Workdir:        containerWorkdir,
			User:           sandboxUser,
			MaxOutputBytes: docker.DefaultMaxOutputBytes,
		},
		Runner: runnerConfig{
			TimeLimit:   execution.DefaultTimeLimit,
			MaxParallel: 1,
		},
		LogLevel: "info",
	}
}

// loadAppConfig layers built-in defaults, an optional YAML file and
// environment variables, in that order.
func loadAppConfig(configPath string) (appConfig, error) {
	cfg := defaultAppConfig()

	if path := discoverConfigFile(configPath); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return appConfig{}, fmt.Errorf("read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return appConfig{}, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(&cfg)

	if err := cfg.validate(); err != nil {
		return appConfig{}, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

func discoverConfigFile(configPath string) string {
	if configPath != "" {
		return configPath
	}
	return os.Getenv("SCRIPTLAB_CONFIG")
}

func applyEnvOverrides(cfg *appConfig) {
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = parseList(v)
	}
	cfg.Kafka.Topic = envOrDefault("KAFKA_TOPIC", cfg.Kafka.Topic)
	cfg.Kafka.ResultsTopic = envOrDefault("KAFKA_RESULTS_TOPIC", cfg.Kafka.ResultsTopic)
	cfg.Kafka.GroupID = envOrDefault("KAFKA_GROUP_ID", cfg.Kafka.GroupID)
	if v := os.Getenv("KAFKA_MAX_MESSAGE_BYTES"); v != "" {
		cfg.Kafka.MaxMessageBytes = parseBytes(v)
	}
	if v := os.Getenv("KAFKA_MAX_REQUEST_BYTES"); v != "" {
		cfg.Kafka.MaxRequestBytes = int(parseBytes(v))
	}

	cfg.Sandbox.Image = envOrDefault("PYTHON_IMAGE", cfg.Sandbox.Image)
	cfg.Sandbox.Workdir = envOrDefault("PYTHON_WORKDIR", cfg.Sandbox.Workdir)
	cfg.Sandbox.User = envOrDefault("SANDBOX_USER", cfg.Sandbox.User)
	if v := os.Getenv("SANDBOX_MAX_OUTPUT_BYTES"); v != "" {
		cfg.Sandbox.MaxOutputBytes = parseBytes(v)
	}
	if v := os.Getenv("SANDBOX_ALLOW_NETWORK"); v != "" {
		if allow, err := strconv.ParseBool(v); err == nil {
			cfg.Sandbox.AllowNetwork = allow
		}
	}
	if v := os.Getenv("SANDBOX_EXTRA_MODULES"); v != "" {
		cfg.Sandbox.ExtraModules = parseList(v)
	}

	cfg.Runner.TimeLimit = parseDuration(os.Getenv("RUNNER_TIME_LIMIT"), cfg.Runner.TimeLimit)
	if v := os.Getenv("RUNNER_MEMORY_LIMIT"); v != "" {
		cfg.Runner.MemoryLimitBytes = parseBytes(v)
	}
	if v := os.Getenv("RUNNER_MAX_PARALLEL"); v != "" {
		cfg.Runner.MaxParallel = parseMaxParallel(v)
	}
	if v := os.Getenv("SCRIPT_EXPECTED"); v != "" {
		cfg.Runner.MaxRequests = parseMaxRequests(v)
	}

	cfg.MetricsAddr = envOrDefault("METRICS_ADDR", cfg.MetricsAddr)
	cfg.LogLevel = envOrDefault("LOG_LEVEL", cfg.LogLevel)
}

func (c appConfig) validate() error {
	var errs []error
	if c.Sandbox.Image == "" {
		errs = append(errs, errors.New("sandbox image must be set"))
	}
	if c.Runner.MaxParallel <= 0 {
		errs = append(errs, fmt.Errorf("max_parallel must be positive, got %d", c.Runner.MaxParallel))
	}
	if c.Runner.TimeLimit < 0 || c.Runner.MemoryLimitBytes < 0 {
		errs = append(errs, errors.New("runner limits must not be negative"))
	}
	if c.Kafka.MaxMessageBytes <= 0 || c.Kafka.MaxRequestBytes <= 0 {
		errs = append(errs, errors.New("kafka message size limits must be positive"))
	}
	if c.Sandbox.MaxOutputBytes <= 0 {
		errs = append(errs, errors.New("sandbox max_output_bytes must be positive"))
	}
	if len(c.Kafka.Brokers) > 0 && (c.Kafka.Topic == "" || c.Kafka.ResultsTopic == "") {
		errs = append(errs, errors.New("kafka topics must be set when brokers are configured"))
	}
	if _, err := c.logLevel(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (c appConfig) logLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo, fmt.Errorf("log level %q: %w", c.LogLevel, err)
	}
	return level, nil
}

func (c appConfig) useKafka() bool {
	return len(c.Kafka.Brokers) > 0
}

func (c appConfig) dockerConfig(logger *slog.Logger) docker.Config {
	return docker.Config{
		Image:   c.Sandbox.Image,
		Workdir: c.Sandbox.Workdir,
		User:    c.Sandbox.User,
		DefaultLimits: execution.RunLimits{
			TimeLimit:        c.Runner.TimeLimit,
			MemoryLimitBytes: c.Runner.MemoryLimitBytes,
		},
		Capabilities: execution.DefaultCapabilities().WithModules(c.Sandbox.ExtraModules...),
		AllowNetwork: c.Sandbox.AllowNetwork,
		SkipPull:       c.Sandbox.SkipPull,
		MaxOutputBytes: c.Sandbox.MaxOutputBytes,
		Logger:         logger,
	}
}

func (c appConfig) consumerConfig() kafka.Config {
	return kafka.Config{
		Brokers: c.Kafka.Brokers,
		Topic:   c.Kafka.Topic,
		GroupID:         c.Kafka.GroupID,
		MaxRequestBytes: c.Kafka.MaxRequestBytes,
	}
}

func (c appConfig) publisherConfig() kafka.PublisherConfig {
	return kafka.PublisherConfig{
		Brokers: c.Kafka.Brokers,
		Topic:           c.Kafka.ResultsTopic,
		MaxMessageBytes: c.Kafka.MaxMessageBytes,
	}
}

func envOrDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func parseList(raw string) []string {
	fields := strings.Split(raw, ",")
	items := make([]string, 0, len(fields))
	for _, field := range fields {
		if trimmed := strings.TrimSpace(field); trimmed != "" {
			items = append(items, trimmed)
		}
	}
	return items
}

func parseMaxRequests(raw string) int {
	if raw == "" {
		return 0
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0
	}
	if value < 0 {
		return 0
	}
	return value
}

func parseMaxParallel(raw string) int {
	if raw == "" {
		return 1
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value <= 0 {
		return 1
	}
	return value
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}
	return d
}

func parseBytes(raw string) int64 {
	if raw == "" {
		return 0
	}
	value, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || value < 0 {
		return 0
	}
	return value
}
