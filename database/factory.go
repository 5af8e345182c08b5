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
	"context"
	"fmt"
	"maps"
	"os"
	"slices"
	"strconv"
	"time"

	"github.com/tomoncle/bundao/utils"
	"github.com/uptrace/bun"
)

// BaseDatabaseFactory owns the manager behind the global database.
type BaseDatabaseFactory struct {
	manager AbstractDatabaseManager
	logger  Logger
}

// NewDatabaseFactory returns a new database factory using the global logger.
func NewDatabaseFactory() *BaseDatabaseFactory {
	return &BaseDatabaseFactory{
		logger: GetLogger(),
	}
}

// CreateFromConfig applies the DB_* environment overrides to cfg and builds
// a manager for it. The connection is opened by InitializeDatabase.
func (f *BaseDatabaseFactory) CreateFromConfig(cfg *ConnectionConfig) (AbstractDatabaseManager, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database configuration cannot be empty")
	}

	ApplyEnvOverrides(cfg)

	if _, ok := dialectOpeners[cfg.Type]; !ok {
		return nil, fmt.Errorf("unsupported database type: %s, supported types: %v",
			cfg.Type, slices.Sorted(maps.Keys(dialectOpeners)))
	}

	manager := NewDatabaseManager(cfg)
	manager.SetLogger(f.logger)

	f.manager = manager
	return manager, nil
}

type envBinding struct {
	key   string
	apply func(cfg *ConnectionConfig, v string)
}

var connectionEnv = []envBinding{
	{"DB_TYPE", func(c *ConnectionConfig, v string) { c.Type = v }},
	{"DB_HOST", func(c *ConnectionConfig, v string) { c.Host = v }},
	{"DB_PORT", intEnv(func(c *ConnectionConfig, n int) { c.Port = n })},
	{"DB_USERNAME", func(c *ConnectionConfig, v string) { c.Username = v }},
	{"DB_PASSWORD", func(c *ConnectionConfig, v string) { c.Password = v }},
	{"DB_NAME", func(c *ConnectionConfig, v string) { c.DBName = v }},
	{"DB_SSLMODE", func(c *ConnectionConfig, v string) { c.SSLMode = v }},
	{"DB_DSN", func(c *ConnectionConfig, v string) { c.DSN = v }},
	{"DB_MAX_IDLE_CONNS", intEnv(func(c *ConnectionConfig, n int) { c.MaxIdleConns = n })},
	{"DB_MAX_OPEN_CONNS", intEnv(func(c *ConnectionConfig, n int) { c.MaxOpenConns = n })},
	{"DB_CONN_MAX_LIFETIME", durationEnv(func(c *ConnectionConfig, d time.Duration) { c.ConnMaxLifetime = d })},
	{"DB_CONN_MAX_IDLE_TIME", durationEnv(func(c *ConnectionConfig, d time.Duration) { c.ConnMaxIdleTime = d })},
	{"DB_SLOW_QUERY_TIME", durationEnv(func(c *ConnectionConfig, d time.Duration) { c.SlowQueryTime = d })},
	{"DB_ENABLE_RECONNECT", boolEnv(func(c *ConnectionConfig, b bool) { c.EnableReconnect = b })},
	{"DB_ENABLE_QUERY_LOG", boolEnv(func(c *ConnectionConfig, b bool) { c.EnableQueryLog = b })},
	{"DB_ENABLE_QUERY_TRACE", boolEnv(func(c *ConnectionConfig, b bool) { c.EnableQueryTrace = b })},
}

// ApplyEnvOverrides overwrites fields of cfg with the DB_* variables that are
// set. Malformed numbers and booleans are ignored.
func ApplyEnvOverrides(cfg *ConnectionConfig) {
	for _, b := range connectionEnv {
		if v, ok := os.LookupEnv(b.key); ok && v != "" {
			b.apply(cfg, v)
		}
	}
}

func intEnv(set func(*ConnectionConfig, int)) func(*ConnectionConfig, string) {
	return func(c *ConnectionConfig, v string) {
		if n, err := strconv.Atoi(v); err == nil {
			set(c, n)
		}
	}
}

func boolEnv(set func(*ConnectionConfig, bool)) func(*ConnectionConfig, string) {
	return func(c *ConnectionConfig, v string) {
		if b, err := strconv.ParseBool(v); err == nil {
			set(c, b)
		}
	}
}

// durationEnv accepts Go durations ("90s") or a plain number of seconds.
func durationEnv(set func(*ConnectionConfig, time.Duration)) func(*ConnectionConfig, string) {
	return func(c *ConnectionConfig, v string) {
		if n, err := strconv.Atoi(v); err == nil {
			set(c, time.Duration(n)*time.Second)
			return
		}
		if d, err := time.ParseDuration(v); err == nil {
			set(c, d)
		}
	}
}

// InitializeDatabase connects and, when createTables is set, creates the
// tables of every registered model.
func (f *BaseDatabaseFactory) InitializeDatabase(ctx context.Context, createTables bool) error {
	if f.manager == nil {
		return fmt.Errorf("database manager not created")
	}

	if err := f.manager.Connect(ctx); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	if createTables || utils.EnvDefaultBool("DAO_CREATE_TABLES_ON_STARTUP", false) {
		if err := f.manager.CreateTables(ctx); err != nil {
			return fmt.Errorf("failed to create registered tables: %w", err)
		}
	}
	f.logger.Info("Database initialization completed!")
	return nil
}

func (f *BaseDatabaseFactory) GetManager() AbstractDatabaseManager {
	return f.manager
}

// GetDB returns the Bun database instance, or nil if not initialized.
func (f *BaseDatabaseFactory) GetDB() *bun.DB {
	if f.manager == nil {
		return nil
	}
	return f.manager.GetDB()
}

func (f *BaseDatabaseFactory) SetLogger(logger Logger) {
	f.logger = logger
	if f.manager != nil {
		f.manager.SetLogger(logger)
	}
}

// Close disconnects the managed database.
func (f *BaseDatabaseFactory) Close() error {
	if f.manager == nil {
		return nil
	}
	return f.manager.Disconnect()
}

func (f *BaseDatabaseFactory) GetHealthStatus(ctx context.Context) *HealthStatus {
	if f.manager == nil {
		return &HealthStatus{
			LastError:     "database manager not initialized",
			LastCheckTime: time.Now(),
		}
	}
	return f.manager.HealthCheck(ctx)
}

func (f *BaseDatabaseFactory) GetStats() *DBStats {
	if f.manager == nil {
		return &DBStats{}
	}
	return f.manager.GetStats()
}
