package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the curaflow.yaml service configuration. Zero values fall back
// to the defaults returned by the accessor methods.
type Config struct {
	Version int `yaml:"version"`
	Service struct {
		Name    string `yaml:"name"`
		Dataset string `yaml:"dataset"`
	} `yaml:"service"`
	Server struct {
		HTTPPort int    `yaml:"http_port"`
		TLSCert  string `yaml:"tls_cert"`
		TLSKey   string `yaml:"tls_key"`
	} `yaml:"server"`
	Engine struct {
		Parallelism int `yaml:"parallelism"`
	} `yaml:"engine"`
	Storage struct {
		Backend string `yaml:"backend"`
	} `yaml:"storage"`
	MQTT struct {
		Broker      string `yaml:"broker"`
		ClientID    string `yaml:"client_id"`
		TopicPrefix string `yaml:"topic_prefix"`
	} `yaml:"mqtt"`
	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"logging"`
}

const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
)

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{Version: 1}
}

func (c *Config) ServiceName() string {
	if c.Service.Name == "" {
		return "curaflow"
	}
	return c.Service.Name
}

// HTTPPort returns the configured API port, defaulting to 8080 if not set.
func (c *Config) HTTPPort() int {
	if c.Server.HTTPPort == 0 {
		return 8080
	}
	return c.Server.HTTPPort
}

func (c *Config) Parallelism() int {
	if c.Engine.Parallelism < 1 {
		return 1
	}
	return c.Engine.Parallelism
}

func (c *Config) StorageBackend() string {
	if c.Storage.Backend == "" {
		return BackendMemory
	}
	return c.Storage.Backend
}

// MQTTEnabled reports whether run events should be published to a broker.
func (c *Config) MQTTEnabled() bool { return c.MQTT.Broker != "" }

func (c *Config) MQTTClientID() string {
	if c.MQTT.ClientID == "" {
		return c.ServiceName()
	}
	return c.MQTT.ClientID
}

func (c *Config) TopicPrefix() string {
	if c.MQTT.TopicPrefix == "" {
		return "curaflow"
	}
	return c.MQTT.TopicPrefix
}

func (c *Config) LogLevel() string {
	if c.Logging.Level == "" {
		return "info"
	}
	return c.Logging.Level
}

func (c *Config) LogFormat() string {
	if c.Logging.Format == "" {
		return "json"
	}
	return c.Logging.Format
}

// Load reads and checks a curaflow.yaml file.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, err
	}

	if cfg.Version != 1 {
		return nil, fmt.Errorf("unsupported curaflow.yaml version: %d", cfg.Version)
	}
	switch cfg.StorageBackend() {
	case BackendMemory, BackendPostgres:
	default:
		return nil, fmt.Errorf("unknown storage backend: %q", cfg.Storage.Backend)
	}
	if (cfg.Server.TLSCert == "") != (cfg.Server.TLSKey == "") {
		return nil, fmt.Errorf("tls_cert and tls_key must be set together")
	}

	return &cfg, nil
}
