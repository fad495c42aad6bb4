// Copyright 2025 Edgeo SCADA
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config loads the edgeo-opcua application configuration.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. OPCUA_LOG_LEVEL.
const EnvPrefix = "OPCUA"

// Config holds the complete application configuration
type Config struct {
	Log       LogConfig       `mapstructure:"log"       yaml:"log"`
	Discovery DiscoveryConfig `mapstructure:"discovery" yaml:"discovery"`
	Server    ServerConfig    `mapstructure:"server"    yaml:"server"`
	Metrics   MetricsConfig   `mapstructure:"metrics"   yaml:"metrics"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string `mapstructure:"level"  yaml:"level"`
	Pretty bool   `mapstructure:"pretty" yaml:"pretty"`
}

// DiscoveryConfig holds data type discovery configuration
type DiscoveryConfig struct {
	// MaxConcurrentRequests caps browse and read requests in flight; zero
	// leaves discovery unbounded.
	MaxConcurrentRequests int64         `mapstructure:"max_concurrent_requests" yaml:"max_concurrent_requests"`
	Timeout               time.Duration `mapstructure:"timeout"                 yaml:"timeout"`
}

// ServerConfig holds the HTTP type browser configuration
type ServerConfig struct {
	ListenAddr           string        `mapstructure:"listen_addr"             yaml:"listen_addr"`
	Snapshot             string        `mapstructure:"snapshot"                yaml:"snapshot"`
	MaxReferencesPerNode uint32        `mapstructure:"max_references_per_node" yaml:"max_references_per_node"`
	ReadTimeout          time.Duration `mapstructure:"read_timeout"            yaml:"read_timeout"`
	WriteTimeout         time.Duration `mapstructure:"write_timeout"           yaml:"write_timeout"`
}

// MetricsConfig holds metrics configuration
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Path    string `mapstructure:"path"    yaml:"path"`
}

// Load loads configuration from the YAML file at configPath, if any, and
// from OPCUA_ prefixed environment variables. Environment values win over
// the file.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.pretty", d.Log.Pretty)

	v.SetDefault("discovery.max_concurrent_requests", d.Discovery.MaxConcurrentRequests)
	v.SetDefault("discovery.timeout", d.Discovery.Timeout)

	v.SetDefault("server.listen_addr", d.Server.ListenAddr)
	v.SetDefault("server.snapshot", d.Server.Snapshot)
	v.SetDefault("server.max_references_per_node", d.Server.MaxReferencesPerNode)
	v.SetDefault("server.read_timeout", d.Server.ReadTimeout)
	v.SetDefault("server.write_timeout", d.Server.WriteTimeout)

	v.SetDefault("metrics.enabled", d.Metrics.Enabled)
	v.SetDefault("metrics.path", d.Metrics.Path)
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if _, err := zerolog.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	if c.Discovery.MaxConcurrentRequests < 0 {
		return fmt.Errorf("discovery.max_concurrent_requests must not be negative, got %d", c.Discovery.MaxConcurrentRequests)
	}
	if c.Discovery.Timeout <= 0 {
		return fmt.Errorf("discovery.timeout must be positive")
	}
	if strings.TrimSpace(c.Server.ListenAddr) == "" {
		return fmt.Errorf("server.listen_addr is required")
	}
	if c.Server.ReadTimeout <= 0 {
		return fmt.Errorf("server.read_timeout must be positive")
	}
	if c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("server.write_timeout must be positive")
	}
	if c.Metrics.Enabled && !strings.HasPrefix(c.Metrics.Path, "/") {
		return fmt.Errorf("metrics.path must start with /, got %q", c.Metrics.Path)
	}
	return nil
}

// Default returns default configuration
func Default() *Config {
	return &Config{
		Log: LogConfig{
			Level: "info",
		},
		Discovery: DiscoveryConfig{
			MaxConcurrentRequests: 16,
			Timeout:               60 * time.Second,
		},
		Server: ServerConfig{
			ListenAddr:           ":8080",
			MaxReferencesPerNode: 1000,
			ReadTimeout:          15 * time.Second,
			WriteTimeout:         30 * time.Second,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
	}
}
