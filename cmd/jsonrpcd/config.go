// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package main

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/luxfi/jsonrpc"
)

// Config is the daemon configuration file.
type Config struct {
	// Version is the JSON-RPC version spoken on every listener, 1 or 2.
	Version int `yaml:"version"`

	LogLevel string `yaml:"log_level"`

	Listeners []ListenerConfig `yaml:"listeners"`

	// Metrics enables the OpenTelemetry event counter, printed to stderr
	// every MetricsInterval.
	Metrics         bool          `yaml:"metrics"`
	MetricsInterval time.Duration `yaml:"metrics_interval"`
}

type ListenerConfig struct {
	Address   string `yaml:"address"`
	Transport string `yaml:"transport"`
}

func defaultConfig() *Config {
	return &Config{
		Version:         2,
		LogLevel:        "info",
		MetricsInterval: time.Minute,
		Listeners: []ListenerConfig{
			{Address: ":7070", Transport: jsonrpc.TransportTCP},
		},
	}
}

func loadConfig(path string) (*Config, error) {
	cfg := defaultConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Version != 1 && c.Version != 2 {
		return fmt.Errorf("version must be 1 or 2, got %d", c.Version)
	}
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("log_level: %w", err)
	}
	if c.MetricsInterval <= 0 {
		return fmt.Errorf("metrics_interval must be positive, got %s", c.MetricsInterval)
	}
	if len(c.Listeners) == 0 {
		return fmt.Errorf("no listeners configured")
	}
	for i, l := range c.Listeners {
		if l.Address == "" {
			return fmt.Errorf("listeners[%d]: address is required", i)
		}
		if l.Transport == "" {
			c.Listeners[i].Transport = jsonrpc.DefaultTransport
			continue
		}
		if !jsonrpc.HasTransport(l.Transport) {
			return fmt.Errorf("listeners[%d]: %w: %s", i, jsonrpc.ErrUnknownTransport, l.Transport)
		}
	}
	return nil
}

func (c *Config) version() jsonrpc.Version {
	if c.Version == 1 {
		return jsonrpc.Version1
	}
	return jsonrpc.Version2
}
