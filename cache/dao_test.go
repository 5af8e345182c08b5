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

package cache

import (
	"context"
	"database/sql"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tomoncle/bundao/cond"
	"github.com/tomoncle/bundao/dao"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

type item struct {
	bun.BaseModel `bun:"table:items"`

	ID   int64  `bun:"id,pk,autoincrement"`
	Name string `bun:"name"`
}

type selectCounter struct {
	n atomic.Int64
}

func (h *selectCounter) BeforeQuery(ctx context.Context, _ *bun.QueryEvent) context.Context {
	return ctx
}

func (h *selectCounter) AfterQuery(_ context.Context, event *bun.QueryEvent) {
	if strings.HasPrefix(event.Query, "SELECT") {
		h.n.Add(1)
	}
}

func newCachedItems(t *testing.T) (dao.CrudDao[item, int64], *selectCounter) {
	t.Helper()
	sqldb, err := sql.Open(sqliteshim.ShimName, ":memory:")
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)
	db := bun.NewDB(sqldb, sqlitedialect.New())
	t.Cleanup(func() { _ = db.Close() })
	_, err = db.NewCreateTable().Model((*item)(nil)).Exec(context.Background())
	require.NoError(t, err)

	counter := &selectCounter{}
	db.AddQueryHook(counter)

	cfg := DefaultConfig()
	cfg.Capacity = 100
	cfg.NumShards = 2
	items, err := NewCachedDao(dao.New[item, int64](db), cfg)
	require.NoError(t, err)
	return items, counter
}

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())

	cfg := DefaultConfig()
	cfg.TTL = 0
	var ce *ConfigError
	require.ErrorAs(t, cfg.Validate(), &ce)
	assert.Equal(t, "TTL", ce.Field)

	cfg = DefaultConfig()
	cfg.EvictionPercentage = 101
	assert.Error(t, cfg.Validate())

	_, err := NewCachedDao[item, int64](nil, Config{})
	assert.Error(t, err)
}

func TestGetIsServedFromCache(t *testing.T) {
	ctx := context.Background()
	items, counter := newCachedItems(t)
	it := &item{Name: "a"}
	require.NoError(t, items.Insert(ctx, it))

	got, err := items.Get(ctx, it.ID)
	require.NoError(t, err)
	assert.Equal(t, "a", got.Name)
	before := counter.n.Load()

	got.Name = "mutated"
	again, err := items.Get(ctx, it.ID)
	require.NoError(t, err)
	assert.Equal(t, "a", again.Name, "callers get copies")
	assert.Equal(t, before, counter.n.Load())
}

func TestMissingRecords(t *testing.T) {
	ctx := context.Background()
	items, _ := newCachedItems(t)

	_, err := items.Get(ctx, 42)
	assert.ErrorIs(t, err, dao.ErrNotFound)
	e, err := items.FindByID(ctx, 42)
	require.NoError(t, err)
	assert.Nil(t, e)

	require.NoError(t, items.Insert(ctx, &item{ID: 42, Name: "late"}))
	e, err = items.FindByID(ctx, 42)
	require.NoError(t, err)
	require.NotNil(t, e)
	assert.Equal(t, "late", e.Name)
}

func TestWritesInvalidate(t *testing.T) {
	ctx := context.Background()
	items, _ := newCachedItems(t)
	it := &item{Name: "a"}
	require.NoError(t, items.Insert(ctx, it))
	_, err := items.Get(ctx, it.ID)
	require.NoError(t, err)

	it.Name = "b"
	require.NoError(t, items.Update(ctx, it))
	got, err := items.Get(ctx, it.ID)
	require.NoError(t, err)
	assert.Equal(t, "b", got.Name)

	_, err = items.UpdateAll(ctx, map[string]any{"name": "c"}, cond.Eq("id", it.ID))
	require.NoError(t, err)
	got, err = items.Get(ctx, it.ID)
	require.NoError(t, err)
	assert.Equal(t, "c", got.Name)

	_, err = items.DeleteByID(ctx, it.ID)
	require.NoError(t, err)
	_, err = items.Get(ctx, it.ID)
	assert.True(t, dao.IsNotFound(err))
}

func TestRunInTxInvalidatesAfterCommit(t *testing.T) {
	ctx := context.Background()
	items, _ := newCachedItems(t)
	it := &item{Name: "a"}
	require.NoError(t, items.Insert(ctx, it))
	_, err := items.Get(ctx, it.ID)
	require.NoError(t, err)

	err = items.RunInTx(ctx, nil, func(ctx context.Context, tx dao.CrudDao[item, int64]) error {
		_, err := tx.UpdateByID(ctx, map[string]any{"name": "in-tx"}, it.ID)
		if err != nil {
			return err
		}
		got, err := tx.Get(ctx, it.ID)
		if err != nil {
			return err
		}
		assert.Equal(t, "in-tx", got.Name)
		return nil
	})
	require.NoError(t, err)

	got, err := items.Get(ctx, it.ID)
	require.NoError(t, err)
	assert.Equal(t, "in-tx", got.Name)
}

func TestWithTxBypassesCacheUntilReleased(t *testing.T) {
	ctx := context.Background()
	sqldb, err := sql.Open(sqliteshim.ShimName, filepath.Join(t.TempDir(), "items.db"))
	require.NoError(t, err)
	db := bun.NewDB(sqldb, sqlitedialect.New())
	t.Cleanup(func() { _ = db.Close() })
	_, err = db.ExecContext(ctx, "PRAGMA journal_mode=WAL")
	require.NoError(t, err)
	_, err = db.NewCreateTable().Model((*item)(nil)).Exec(ctx)
	require.NoError(t, err)
	counter := &selectCounter{}
	db.AddQueryHook(counter)

	items, err := NewCachedDao(dao.New[item, int64](db), DefaultConfig())
	require.NoError(t, err)
	it := &item{Name: "a"}
	require.NoError(t, items.Insert(ctx, it))
	_, err = items.Get(ctx, it.ID)
	require.NoError(t, err)

	tx, err := db.BeginTx(ctx, nil)
	require.NoError(t, err)
	view := items.WithTx(tx)
	_, err = view.UpdateByID(ctx, map[string]any{"name": "in-tx"}, it.ID)
	require.NoError(t, err)

	// a reader outside the transaction sees the committed row and must not
	// cache it
	got, err := items.Get(ctx, it.ID)
	require.NoError(t, err)
	assert.Equal(t, "a", got.Name)

	require.NoError(t, tx.Commit())
	got, err = items.Get(ctx, it.ID)
	require.NoError(t, err)
	assert.Equal(t, "in-tx", got.Name)

	Release(view)
	Release(view)
	got, err = items.Get(ctx, it.ID)
	require.NoError(t, err)
	assert.Equal(t, "in-tx", got.Name)
	before := counter.n.Load()
	_, err = items.Get(ctx, it.ID)
	require.NoError(t, err)
	assert.Equal(t, before, counter.n.Load(), "cached again after release")
}

func TestWithTxConditionWriteBypassesAll(t *testing.T) {
	ctx := context.Background()
	items, counter := newCachedItems(t)
	a, b := &item{Name: "a"}, &item{Name: "b"}
	require.NoError(t, items.BatchInsert(ctx, []*item{a, b}))
	_, err := items.Get(ctx, b.ID)
	require.NoError(t, err)

	err = items.RunInTx(ctx, nil, func(ctx context.Context, tx dao.CrudDao[item, int64]) error {
		_, err := tx.UpdateAll(ctx, map[string]any{"name": "z"}, nil)
		return err
	})
	require.NoError(t, err)

	got, err := items.Get(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, "z", got.Name)
	before := counter.n.Load()
	_, err = items.Get(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, before, counter.n.Load())
}

func TestTTLExpiry(t *testing.T) {
	ctx := context.Background()
	sqldb, err := sql.Open(sqliteshim.ShimName, ":memory:")
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)
	db := bun.NewDB(sqldb, sqlitedialect.New())
	defer db.Close()
	_, err = db.NewCreateTable().Model((*item)(nil)).Exec(ctx)
	require.NoError(t, err)

	base := dao.New[item, int64](db)
	cfg := DefaultConfig()
	cfg.Capacity, cfg.NumShards, cfg.TTL = 10, 1, 50*time.Millisecond
	items, err := NewCachedDao(base, cfg)
	require.NoError(t, err)

	it := &item{Name: "a"}
	require.NoError(t, base.Insert(ctx, it))
	_, err = items.Get(ctx, it.ID)
	require.NoError(t, err)

	// bypass the cache so only expiry can reveal the change
	_, err = base.UpdateByID(ctx, map[string]any{"name": "b"}, it.ID)
	require.NoError(t, err)
	time.Sleep(120 * time.Millisecond)

	got, err := items.Get(ctx, it.ID)
	require.NoError(t, err)
	assert.Equal(t, "b", got.Name)
}
