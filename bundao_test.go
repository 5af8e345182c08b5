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

package bundao

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tomoncle/bundao/cache"
	"github.com/tomoncle/bundao/cond"
	"github.com/tomoncle/bundao/dao"
	"github.com/tomoncle/bundao/database"
	"github.com/uptrace/bun"
)

type SystemConfig struct {
	bun.BaseModel `bun:"table:system_config,alias:sc"`

	ID          int64  `bun:"id,pk,autoincrement" json:"id"`
	ConfigKey   string `bun:"config_key,notnull,unique" json:"config_key"`
	ConfigValue string `bun:"config_value" json:"config_value"`
	ConfigType  string `bun:"config_type,notnull,default:'string'" json:"config_type"`
}

func TestNotInitialized(t *testing.T) {
	require.NoError(t, database.CloseDB())
	_, err := NewCrudDao[SystemConfig, int64]()
	assert.ErrorIs(t, err, ErrNotInitialized)
	_, err = NewDao[SystemConfig]()
	assert.ErrorIs(t, err, ErrNotInitialized)
	assert.Panics(t, func() { MustCrudDao[SystemConfig, int64]() })
	assert.ErrorIs(t, RunInTx(context.Background(), nil, nil), ErrNotInitialized)
}

func TestGlobalDatabase(t *testing.T) {
	database.RegisteredModel(database.NewModelAdapter((*SystemConfig)(nil), 0))

	cfg := database.DefaultConfig()
	cfg.ConnectionConfig.Type = "sqlite3"
	cfg.ConnectionConfig.DSN = "file:bundao_test?mode=memory&cache=shared"
	cfg.ConnectionConfig.MaxOpenConns = 1
	cfg.ConnectionConfig.HealthCheckInterval = 0
	cfg.DaoConfig.CreateTablesOnStartup = true
	cfg.DaoConfig.BatchSize = 2

	_, err := database.InitDB(cfg)
	require.NoError(t, err)
	defer func() { _ = database.CloseDB() }()

	ctx := context.Background()
	configs := MustCrudDao[SystemConfig, int64]()
	require.NoError(t, configs.BatchInsert(ctx, []*SystemConfig{
		{ConfigKey: "site.name", ConfigValue: "demo", ConfigType: "string"},
		{ConfigKey: "site.port", ConfigValue: "8080", ConfigType: "int"},
		{ConfigKey: "site.debug", ConfigValue: "false", ConfigType: "bool"},
	}))

	list, err := configs.List(ctx, cond.Where(cond.Like("config_key", "site.%")).OrderBy("config_key"))
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "site.debug", list[0].ConfigKey)

	cached, err := NewCachedCrudDao[SystemConfig, int64](cache.DefaultConfig())
	require.NoError(t, err)
	got, err := cached.Get(ctx, list[0].ID)
	require.NoError(t, err)
	assert.Equal(t, "false", got.ConfigValue)

	unchecked, err := NewUncheckedCrudDao[SystemConfig, int64]()
	require.NoError(t, err)
	err = unchecked.Insert(ctx, &SystemConfig{ConfigKey: "site.name", ConfigType: "string"})
	var dae *dao.DataAccessError
	require.ErrorAs(t, err, &dae)
	assert.Equal(t, database.DuplicateKeyErr, dae.Kind)

	rollback := errors.New("rollback")
	err = RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := configs.WithTx(tx).DeleteAll(ctx, nil); err != nil {
			return err
		}
		return rollback
	})
	assert.ErrorIs(t, err, rollback)

	n, err := configs.Count(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	health := database.GetHealthStatus(ctx)
	assert.True(t, health.Connected)
}
