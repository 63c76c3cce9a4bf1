// Copyright 2026 Syncronizee
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config is the daemon's YAML/env configuration.
type Config struct {
	Database DatabaseConfig `mapstructure:"database"`
	Remote   RemoteConfig   `mapstructure:"remote"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Sync     SyncConfig     `mapstructure:"sync"`
	Log      LogConfig      `mapstructure:"log"`
	Server   ServerConfig   `mapstructure:"server"`
}

type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

type RemoteConfig struct {
	URL    string `mapstructure:"url"`
	APIKey string `mapstructure:"api_key"`
}

type AuthConfig struct {
	CredentialsPath string `mapstructure:"credentials_path"`
}

type SyncConfig struct {
	Schedule  string `mapstructure:"schedule"`
	PushLimit int    `mapstructure:"push_limit"`
}

type LogConfig struct {
	File       string `mapstructure:"file"`
	Level      string `mapstructure:"level"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

// loadConfig reads the config file (when given) layered under
// PLANNERSYNC_-prefixed environment variables.
func loadConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetDefault("database.path", "planner.db")
	// Empty defaults keep env-only keys visible to Unmarshal.
	v.SetDefault("remote.url", "")
	v.SetDefault("remote.api_key", "")
	v.SetDefault("auth.credentials_path", "session.json")
	v.SetDefault("log.file", "")
	v.SetDefault("sync.schedule", "@every 5m")
	v.SetDefault("sync.push_limit", 200)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.max_size_mb", 20)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age_days", 30)
	v.SetDefault("server.addr", "127.0.0.1:8787")

	v.SetEnvPrefix("PLANNERSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if cfg.Remote.URL == "" {
		return nil, fmt.Errorf("remote.url is required")
	}
	return &cfg, nil
}
