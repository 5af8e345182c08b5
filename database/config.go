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
	"fmt"
	"os"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// LoadConfigFile reads a YAML configuration file on top of DefaultConfig.
func LoadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	return cfg, nil
}

// ViperConfigProvider builds a Config from DB_* keys held by a viper instance,
// typically fed by environment variables and an optional .env.<env> file.
type ViperConfigProvider struct {
	v *viper.Viper
}

var _ AbstractDatabaseConfigProvider = (*ViperConfigProvider)(nil)

// NewViperConfigProvider prepares v (or a fresh instance when nil) with the
// .env.<env> file found in paths, automatic env lookup and the defaults.
func NewViperConfigProvider(v *viper.Viper, env string, paths ...string) *ViperConfigProvider {
	if v == nil {
		v = viper.New()
	}
	if env == "" {
		env = "dev"
	}
	v.SetConfigName(fmt.Sprintf(".env.%s", env))
	v.SetConfigType("env")
	for _, p := range paths {
		v.AddConfigPath(p)
	}
	// config file is optional, environment variables take precedence
	if len(paths) > 0 {
		_ = v.ReadInConfig()
	}
	v.AutomaticEnv()

	conn := DefaultConnectionConfig()
	dao := DefaultDaoConfig()
	v.SetDefault("DB_TYPE", "sqlite")
	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_SSLMODE", "disable")
	v.SetDefault("DB_MAX_IDLE_CONNS", conn.MaxIdleConns)
	v.SetDefault("DB_MAX_OPEN_CONNS", conn.MaxOpenConns)
	v.SetDefault("DB_CONN_MAX_LIFETIME", conn.ConnMaxLifetime)
	v.SetDefault("DB_CONN_MAX_IDLE_TIME", conn.ConnMaxIdleTime)
	v.SetDefault("DB_CONNECT_TIMEOUT", conn.ConnectTimeout)
	v.SetDefault("DB_READ_TIMEOUT", conn.ReadTimeout)
	v.SetDefault("DB_WRITE_TIMEOUT", conn.WriteTimeout)
	v.SetDefault("DB_ENABLE_RECONNECT", conn.EnableReconnect)
	v.SetDefault("DB_RECONNECT_INTERVAL", conn.ReconnectInterval)
	v.SetDefault("DB_MAX_RECONNECT_TRIES", conn.MaxReconnectTries)
	v.SetDefault("DB_HEALTH_CHECK_INTERVAL", conn.HealthCheckInterval)
	v.SetDefault("DB_SLOW_QUERY_TIME", conn.SlowQueryTime)
	v.SetDefault("DAO_BATCH_SIZE", dao.BatchSize)
	v.SetDefault("DAO_JOIN_PARALLELISM", dao.JoinParallelism)
	v.SetDefault("DAO_ASYNC_POOL_SIZE", dao.AsyncPoolSize)

	return &ViperConfigProvider{v: v}
}

// ConfigLoader implements AbstractDatabaseConfigProvider.
func (p *ViperConfigProvider) ConfigLoader() *Config {
	v := p.v
	return &Config{
		ConnectionConfig: ConnectionConfig{
			Type:                v.GetString("DB_TYPE"),
			Host:                v.GetString("DB_HOST"),
			Port:                v.GetInt("DB_PORT"),
			Username:            v.GetString("DB_USERNAME"),
			Password:            v.GetString("DB_PASSWORD"),
			DBName:              v.GetString("DB_NAME"),
			SSLMode:             v.GetString("DB_SSLMODE"),
			DSN:                 v.GetString("DB_DSN"),
			MaxIdleConns:        v.GetInt("DB_MAX_IDLE_CONNS"),
			MaxOpenConns:        v.GetInt("DB_MAX_OPEN_CONNS"),
			ConnMaxLifetime:     v.GetDuration("DB_CONN_MAX_LIFETIME"),
			ConnMaxIdleTime:     v.GetDuration("DB_CONN_MAX_IDLE_TIME"),
			ConnectTimeout:      v.GetDuration("DB_CONNECT_TIMEOUT"),
			ReadTimeout:         v.GetDuration("DB_READ_TIMEOUT"),
			WriteTimeout:        v.GetDuration("DB_WRITE_TIMEOUT"),
			EnableReconnect:     v.GetBool("DB_ENABLE_RECONNECT"),
			ReconnectInterval:   v.GetDuration("DB_RECONNECT_INTERVAL"),
			MaxReconnectTries:   v.GetInt("DB_MAX_RECONNECT_TRIES"),
			HealthCheckInterval: v.GetDuration("DB_HEALTH_CHECK_INTERVAL"),
			EnableQueryLog:      v.GetBool("DB_ENABLE_QUERY_LOG"),
			EnableQueryTrace:    v.GetBool("DB_ENABLE_QUERY_TRACE"),
			SlowQueryTime:       v.GetDuration("DB_SLOW_QUERY_TIME"),
		},
		DaoConfig: DaoConfig{
			BatchSize:             v.GetInt("DAO_BATCH_SIZE"),
			JoinParallelism:       v.GetInt("DAO_JOIN_PARALLELISM"),
			AsyncPoolSize:         v.GetInt("DAO_ASYNC_POOL_SIZE"),
			CreateTablesOnStartup: v.GetBool("DAO_CREATE_TABLES_ON_STARTUP"),
		},
	}
}
