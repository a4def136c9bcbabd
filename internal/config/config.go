/*
 * Copyright 2025 Google LLC
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *    https://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable read by Load.
const EnvPrefix = "QUERY_RECOVERY"

// Config holds all configuration for the application
type Config struct {
	Database     DatabaseConfig `mapstructure:"database"`
	Recovery     RecoveryConfig `mapstructure:"recovery"`
	GeminiAPIKey string         `mapstructure:"gemini_api_key"`
	GeminiModel  string         `mapstructure:"gemini_model"`
}

// DatabaseConfig holds database connection configuration
type DatabaseConfig struct {
	Dialect                        string `mapstructure:"dialect"`
	Host                           string `mapstructure:"host"`
	Port                           int    `mapstructure:"port"`
	User                           string `mapstructure:"user"`
	Password                       string `mapstructure:"password"`
	DBName                         string `mapstructure:"dbname"`
	SSLMode                        string `mapstructure:"sslmode"`
	CloudSQLInstanceConnectionName string `mapstructure:"cloudsql_instance_connection_name"`
	UsePrivateIP                   bool   `mapstructure:"use_private_ip"`
}

// RecoveryConfig tunes literal matching and the execute-and-recover loop.
type RecoveryConfig struct {
	Threshold   int           `mapstructure:"threshold"`    // Minimum candidate score, 0-100
	MaxMatches  int           `mapstructure:"max_matches"`  // Candidates kept per literal
	MaxAttempts int           `mapstructure:"max_attempts"` // Rewritten executions tried by `run`
	CacheTTL    time.Duration `mapstructure:"cache_ttl"`    // 0 keeps value universes for the process lifetime
	CasePolicy  string        `mapstructure:"case_policy"`  // "stored" or "literal"
	Columns     string        `mapstructure:"columns"`      // Extra columns, e.g. "film[description],actor[first_name]"
}

var globalConfig *Config

// GetConfig returns a default configuration. Configuration will be set by flags in root.go
func GetConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Dialect: "postgres",
			Host:    "localhost",
			Port:    5432,
			SSLMode: "disable",
		},
		Recovery: RecoveryConfig{
			Threshold:   50,
			MaxMatches:  5,
			MaxAttempts: 3,
			CasePolicy:  "stored",
		},
		GeminiModel: "gemini-1.5-flash-latest",
	}
}

// SetConfig sets the global configuration.
func SetConfig(cfg *Config) {
	globalConfig = cfg
}

// Current returns the configuration last passed to SetConfig, or the defaults.
func Current() *Config {
	if globalConfig == nil {
		return GetConfig()
	}
	return globalConfig
}

// Load layers an optional config file and QUERY_RECOVERY_* environment
// variables over the defaults. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := GetConfig()

	v := viper.New()
	setDefaults(v, cfg)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode configuration: %w", err)
	}
	if err := cfg.Recovery.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports recovery settings that cannot be used.
func (r RecoveryConfig) Validate() error {
	if r.Threshold < 0 || r.Threshold > 100 {
		return fmt.Errorf("recovery threshold must be between 0 and 100, got %d", r.Threshold)
	}
	if r.MaxMatches < 1 {
		return fmt.Errorf("recovery max_matches must be at least 1, got %d", r.MaxMatches)
	}
	if r.MaxAttempts < 1 {
		return fmt.Errorf("recovery max_attempts must be at least 1, got %d", r.MaxAttempts)
	}
	if r.CacheTTL < 0 {
		return fmt.Errorf("recovery cache_ttl cannot be negative, got %s", r.CacheTTL)
	}
	switch strings.ToLower(r.CasePolicy) {
	case "stored", "literal":
	default:
		return fmt.Errorf("unsupported case_policy: %s (only stored, literal are supported)", r.CasePolicy)
	}
	return nil
}

// setDefaults registers every key so AutomaticEnv can resolve it during Unmarshal.
func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("database.dialect", cfg.Database.Dialect)
	v.SetDefault("database.host", cfg.Database.Host)
	v.SetDefault("database.port", cfg.Database.Port)
	v.SetDefault("database.user", cfg.Database.User)
	v.SetDefault("database.password", cfg.Database.Password)
	v.SetDefault("database.dbname", cfg.Database.DBName)
	v.SetDefault("database.sslmode", cfg.Database.SSLMode)
	v.SetDefault("database.cloudsql_instance_connection_name", cfg.Database.CloudSQLInstanceConnectionName)
	v.SetDefault("database.use_private_ip", cfg.Database.UsePrivateIP)

	v.SetDefault("recovery.threshold", cfg.Recovery.Threshold)
	v.SetDefault("recovery.max_matches", cfg.Recovery.MaxMatches)
	v.SetDefault("recovery.max_attempts", cfg.Recovery.MaxAttempts)
	v.SetDefault("recovery.cache_ttl", cfg.Recovery.CacheTTL)
	v.SetDefault("recovery.case_policy", cfg.Recovery.CasePolicy)
	v.SetDefault("recovery.columns", cfg.Recovery.Columns)

	v.SetDefault("gemini_api_key", cfg.GeminiAPIKey)
	v.SetDefault("gemini_model", cfg.GeminiModel)
}
