/*
 * Copyright 2025 tomoncle.
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package database

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
connection_config:
  type: postgres
  host: db.internal
  port: 5432
  dbname: app
  max_open_conns: 20
dao_config:
  batch_size: 50
  create_tables_on_startup: true
`), 0o600))

	cfg, err := LoadConfigFile(path)
	require.NoError(t, err)
	assert.Equal(t, "postgres", cfg.ConnectionConfig.Type)
	assert.Equal(t, "db.internal", cfg.ConnectionConfig.Host)
	assert.Equal(t, 5432, cfg.ConnectionConfig.Port)
	assert.Equal(t, 20, cfg.ConnectionConfig.MaxOpenConns)
	assert.Equal(t, 10, cfg.ConnectionConfig.MaxIdleConns, "defaults survive")
	assert.Equal(t, 50, cfg.DaoConfig.BatchSize)
	assert.Equal(t, 4, cfg.DaoConfig.JoinParallelism)
	assert.True(t, cfg.DaoConfig.CreateTablesOnStartup)

	_, err = LoadConfigFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestViperConfigProvider(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env.test"), []byte(
		"DB_TYPE=mysql\nDB_NAME=shop\nDAO_BATCH_SIZE=25\n"), 0o600))
	t.Setenv("DB_HOST", "mysql.internal")
	t.Setenv("DB_SLOW_QUERY_TIME", "500ms")

	cfg := NewViperConfigProvider(viper.New(), "test", dir).ConfigLoader()
	assert.Equal(t, "mysql", cfg.ConnectionConfig.Type)
	assert.Equal(t, "shop", cfg.ConnectionConfig.DBName)
	assert.Equal(t, "mysql.internal", cfg.ConnectionConfig.Host)
	assert.Equal(t, 500*time.Millisecond, cfg.ConnectionConfig.SlowQueryTime)
	assert.Equal(t, 100, cfg.ConnectionConfig.MaxOpenConns)
	assert.Equal(t, 25, cfg.DaoConfig.BatchSize)
	assert.Equal(t, 4, cfg.DaoConfig.JoinParallelism)
}

func TestViperConfigProviderDefaults(t *testing.T) {
	cfg := NewViperConfigProvider(nil, "").ConfigLoader()
	assert.Equal(t, "sqlite", cfg.ConnectionConfig.Type)
	assert.Equal(t, "disable", cfg.ConnectionConfig.SSLMode)
	assert.Equal(t, time.Hour, cfg.ConnectionConfig.ConnMaxLifetime)
	assert.Equal(t, 200, cfg.DaoConfig.BatchSize)
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv("DB_TYPE", "postgres")
	t.Setenv("DB_PORT", "6543")
	t.Setenv("DB_MAX_OPEN_CONNS", "not-a-number")
	t.Setenv("DB_CONN_MAX_LIFETIME", "120")
	t.Setenv("DB_SLOW_QUERY_TIME", "250ms")
	t.Setenv("DB_ENABLE_QUERY_TRACE", "true")

	cfg := DefaultConnectionConfig()
	ApplyEnvOverrides(cfg)
	assert.Equal(t, "postgres", cfg.Type)
	assert.Equal(t, 6543, cfg.Port)
	assert.Equal(t, 100, cfg.MaxOpenConns)
	assert.Equal(t, 2*time.Minute, cfg.ConnMaxLifetime)
	assert.Equal(t, 250*time.Millisecond, cfg.SlowQueryTime)
	assert.True(t, cfg.EnableQueryTrace)
}
