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
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Database.Dialect)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, 50, cfg.Recovery.Threshold)
	assert.Equal(t, 5, cfg.Recovery.MaxMatches)
	assert.Equal(t, 3, cfg.Recovery.MaxAttempts)
	assert.Equal(t, time.Duration(0), cfg.Recovery.CacheTTL)
	assert.Equal(t, "stored", cfg.Recovery.CasePolicy)
}

func TestLoad_FileAndEnvironment(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "recovery.yaml")
	content := `
database:
  dialect: mysql
  host: db.internal
  port: 3306
  user: reader
  dbname: dvdrental
recovery:
  threshold: 70
  cache_ttl: 10m
  case_policy: literal
  columns: "film[description]"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	t.Setenv("QUERY_RECOVERY_DATABASE_PASSWORD", "from-env")
	t.Setenv("QUERY_RECOVERY_RECOVERY_MAX_ATTEMPTS", "2")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "mysql", cfg.Database.Dialect)
	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.Equal(t, 3306, cfg.Database.Port)
	assert.Equal(t, "reader", cfg.Database.User)
	assert.Equal(t, "from-env", cfg.Database.Password)
	assert.Equal(t, "dvdrental", cfg.Database.DBName)
	assert.Equal(t, 70, cfg.Recovery.Threshold)
	assert.Equal(t, 2, cfg.Recovery.MaxAttempts)
	assert.Equal(t, 10*time.Minute, cfg.Recovery.CacheTTL)
	assert.Equal(t, "literal", cfg.Recovery.CasePolicy)
	assert.Equal(t, "film[description]", cfg.Recovery.Columns)
	// Untouched keys keep their defaults.
	assert.Equal(t, 5, cfg.Recovery.MaxMatches)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestRecoveryConfig_Validate(t *testing.T) {
	valid := GetConfig().Recovery

	tests := []struct {
		name    string
		mutate  func(*RecoveryConfig)
		wantErr bool
	}{
		{"defaults", func(*RecoveryConfig) {}, false},
		{"threshold_too_high", func(r *RecoveryConfig) { r.Threshold = 101 }, true},
		{"threshold_negative", func(r *RecoveryConfig) { r.Threshold = -1 }, true},
		{"zero_max_matches", func(r *RecoveryConfig) { r.MaxMatches = 0 }, true},
		{"zero_max_attempts", func(r *RecoveryConfig) { r.MaxAttempts = 0 }, true},
		{"negative_ttl", func(r *RecoveryConfig) { r.CacheTTL = -time.Second }, true},
		{"unknown_case_policy", func(r *RecoveryConfig) { r.CasePolicy = "shout" }, true},
		{"literal_case_policy", func(r *RecoveryConfig) { r.CasePolicy = "LITERAL" }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rc := valid
			tt.mutate(&rc)
			err := rc.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestCurrent(t *testing.T) {
	t.Cleanup(func() { SetConfig(nil) })

	SetConfig(nil)
	assert.Equal(t, 50, Current().Recovery.Threshold)

	cfg := GetConfig()
	cfg.Recovery.Threshold = 80
	SetConfig(cfg)
	assert.Same(t, cfg, Current())
}
