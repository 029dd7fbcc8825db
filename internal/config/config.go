package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the top level pinagentd configuration.
type Config struct {
	API      APIConfig      `yaml:"api"`
	Agent    AgentConfig    `yaml:"agent"`
	Poller   PollerConfig   `yaml:"poller"`
	State    StateConfig    `yaml:"state"`
	Dispatch DispatchConfig `yaml:"dispatch"`
	Onchain  OnchainConfig  `yaml:"onchain"`
	Log      LogConfig      `yaml:"log"`
}

// APIConfig controls how the daemon reaches the platform.
type APIConfig struct {
	Key            string `yaml:"key"`
	BaseURL        string `yaml:"base_url"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// AgentConfig is either an existing agent id or a profile to register.
type AgentConfig struct {
	ID          int64  `yaml:"id"`
	Name        string `yaml:"name"`
	Ticker      string `yaml:"ticker"`
	Description string `yaml:"description"`
	Cover       string `yaml:"cover"`
}

// PollerConfig tunes the message polling loop.
type PollerConfig struct {
	IntervalMS int `yaml:"interval_ms"`
}

// StateConfig selects where the watermark is persisted.
type StateConfig struct {
	Driver string           `yaml:"driver"`
	Redis  RedisStateConfig `yaml:"redis"`
	MySQL  MySQLStateConfig `yaml:"mysql"`
}

// RedisStateConfig mirrors state.RedisConfig.
type RedisStateConfig struct {
	Address   string `yaml:"address"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	KeyPrefix string `yaml:"key_prefix"`
}

// MySQLStateConfig mirrors state.MySQLConfig.
type MySQLStateConfig struct {
	DSN          string `yaml:"dsn"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	MaxIdleConns int    `yaml:"max_idle_conns"`
}

// DispatchConfig selects how polled messages reach the handler.
type DispatchConfig struct {
	Driver   string         `yaml:"driver"`
	Workers  int            `yaml:"workers"`
	Buffer   int            `yaml:"buffer"`
	RabbitMQ RabbitMQConfig `yaml:"rabbitmq"`
}

// RabbitMQConfig mirrors dispatch.RabbitMQConfig.
type RabbitMQConfig struct {
	URL      string `yaml:"url"`
	Queue    string `yaml:"queue"`
	Prefetch int    `yaml:"prefetch"`
	Durable  bool   `yaml:"durable"`
}

// OnchainConfig enables the contract-backed registration mirror.
type OnchainConfig struct {
	Enabled         bool   `yaml:"enabled"`
	RPCURL          string `yaml:"rpc_url"`
	PrivateKey      string `yaml:"private_key"`
	ContractAddress string `yaml:"contract_address"`
}

// LogConfig configures the shared logger.
type LogConfig struct {
	Level   string        `yaml:"level"`
	Format  string        `yaml:"format"`
	Outputs []string      `yaml:"outputs"`
	File    LogFileConfig `yaml:"file"`
}

// LogFileConfig mirrors logger.FileConfig and adds a size-rotated file output.
type LogFileConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Path       string `yaml:"path"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// Load parses the YAML file at path and applies defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(content, &cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.API.Key == "" {
		c.API.Key = os.Getenv("PINAI_API_KEY")
	}
	if c.API.TimeoutSeconds <= 0 {
		c.API.TimeoutSeconds = 30
	}
	if c.Poller.IntervalMS <= 0 {
		c.Poller.IntervalMS = 1000
	}
	if c.State.Driver == "" {
		c.State.Driver = "memory"
	}
	if c.Dispatch.Driver == "" {
		c.Dispatch.Driver = "inline"
	}
	if c.Dispatch.Workers <= 0 {
		c.Dispatch.Workers = 2
	}
	if c.Dispatch.Buffer <= 0 {
		c.Dispatch.Buffer = 256
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}

func (c *Config) validate() error {
	if c.API.Key == "" {
		return errors.New("api key is required (config api.key or PINAI_API_KEY)")
	}
	if c.Agent.ID == 0 && (c.Agent.Name == "" || c.Agent.Ticker == "") {
		return errors.New("either agent.id or agent.name and agent.ticker must be set")
	}
	switch c.State.Driver {
	case "memory", "redis", "mysql":
	default:
		return fmt.Errorf("unsupported state driver %q", c.State.Driver)
	}
	switch c.Dispatch.Driver {
	case "inline", "memory", "rabbitmq":
	default:
		return fmt.Errorf("unsupported dispatch driver %q", c.Dispatch.Driver)
	}
	if c.Onchain.Enabled && (c.Onchain.RPCURL == "" || c.Onchain.PrivateKey == "") {
		return errors.New("onchain requires rpc_url and private_key when enabled")
	}
	if c.Log.File.Enabled && c.Log.File.Path == "" {
		return errors.New("log.file.path is required when log.file is enabled")
	}
	return nil
}
