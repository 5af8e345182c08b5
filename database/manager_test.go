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
	"bytes"
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
)

type registryParent struct {
	bun.BaseModel `bun:"table:registry_parents"`

	ID   int64  `bun:"id,pk,autoincrement"`
	Name string `bun:"name"`
}

type registryChild struct {
	bun.BaseModel `bun:"table:registry_children"`

	ID       int64 `bun:"id,pk,autoincrement"`
	ParentID int64 `bun:"parent_id"`
}

func TestModelRegistry(t *testing.T) {
	r := NewModelRegistry()
	r.Register(NewModelAdapter((*registryChild)(nil), 20))
	r.Register(NewModelAdapter((*registryParent)(nil), 10))
	r.Register(NewModelAdapter((*registryChild)(nil), 1))

	models := r.Models()
	require.Len(t, models, 2)
	assert.IsType(t, (*registryParent)(nil), models[0].Instance())
	assert.Equal(t, 20, models[1].Priority(), "first registration wins")
}

func TestSqliteDSN(t *testing.T) {
	assert.Equal(t, "file::memory:?cache=shared", sqliteDSN(""))
	assert.Equal(t, "file::memory:?cache=shared", sqliteDSN(":memory:"))
	assert.Equal(t, "file:app?mode=memory", sqliteDSN("file:app?mode=memory"))
	assert.Equal(t, "data.db", sqliteDSN("data.db"))
	assert.Equal(t, "data.db", sqliteDSN("data"))
}

func TestManagerLifecycle(t *testing.T) {
	cfg := DefaultConnectionConfig()
	cfg.Type = "sqlite"
	cfg.DSN = "file:manager_test?mode=memory&cache=shared"
	cfg.HealthCheckInterval = 0
	cfg.EnableQueryTrace = true

	factory := NewDatabaseFactory()
	manager, err := factory.CreateFromConfig(cfg)
	require.NoError(t, err)
	require.NoError(t, factory.InitializeDatabase(context.Background(), false))
	defer func() { assert.NoError(t, factory.Close()) }()

	ctx := context.Background()
	db := manager.GetDB()
	require.NoError(t, CreateTablesFor(ctx, db, GetLogger(),
		NewModelAdapter((*registryParent)(nil), 0),
		NewModelAdapter((*registryChild)(nil), 1),
	))
	// idempotent
	require.NoError(t, CreateTablesFor(ctx, db, nil, NewModelAdapter((*registryParent)(nil), 0)))

	_, err = db.NewInsert().Model(&registryParent{Name: "root"}).Exec(ctx)
	require.NoError(t, err)
	n, err := db.NewSelect().Model((*registryParent)(nil)).Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	status := manager.HealthCheck(ctx)
	assert.True(t, status.Healthy)
	assert.True(t, status.Connected)
	assert.Equal(t, cfg.MaxOpenConns, factory.GetStats().MaxOpenConns)
}

func TestFactoryRejectsUnknownType(t *testing.T) {
	_, err := NewDatabaseFactory().CreateFromConfig(&ConnectionConfig{Type: "oracle"})
	assert.ErrorContains(t, err, "unsupported database type")

	_, err = NewDatabaseFactory().CreateFromConfig(nil)
	assert.Error(t, err)
}

func TestGlobalNotInitialized(t *testing.T) {
	require.NoError(t, CloseDB())
	assert.Nil(t, GetDB())
	assert.False(t, GetHealthStatus(context.Background()).Connected)
	assert.Equal(t, &DBStats{}, GetDatabaseStats())

	_, err := InitDB(nil)
	assert.Error(t, err)
}

func TestQueryTraceHook(t *testing.T) {
	cfg := DefaultConnectionConfig()
	cfg.Type = "sqlite"
	cfg.DSN = "file:hook_test?mode=memory&cache=shared"
	cfg.HealthCheckInterval = 0
	cfg.SlowQueryTime = 0

	manager := NewDatabaseManager(cfg)
	require.NoError(t, manager.Connect(context.Background()))
	defer func() { _ = manager.Disconnect() }()

	var buf bytes.Buffer
	db := manager.GetDB()
	db.AddQueryHook(NewQueryTraceHook(&buf, ""))

	var one int
	require.NoError(t, db.NewSelect().ColumnExpr("1").Scan(context.Background(), &one))
	assert.Contains(t, buf.String(), "SELECT 1")
	assert.Contains(t, buf.String(), "[BUNDAO]")

	buf.Reset()
	SilenceQueryTrace(true)
	defer SilenceQueryTrace(false)
	require.NoError(t, db.NewSelect().ColumnExpr("2").Scan(context.Background(), &one))
	assert.Empty(t, buf.String())
}

type recordingLogger struct {
	lines []string
}

func (l *recordingLogger) record(level, msg string, kv []interface{}) {
	var b strings.Builder
	b.WriteString(level + " " + msg)
	for i := 0; i+1 < len(kv); i += 2 {
		fmt.Fprintf(&b, " %v=%v", kv[i], kv[i+1])
	}
	l.lines = append(l.lines, b.String())
}

func (l *recordingLogger) SetLevel(LogLevel) {}
func (l *recordingLogger) Debug(msg string, kv ...interface{}) { l.record("DEBUG", msg, kv) }
func (l *recordingLogger) Info(msg string, kv ...interface{}) { l.record("INFO", msg, kv) }
func (l *recordingLogger) Warn(msg string, kv ...interface{}) { l.record("WARN", msg, kv) }
func (l *recordingLogger) Error(msg string, kv ...interface{}) { l.record("ERROR", msg, kv) }

func TestCreateTablesForLogs(t *testing.T) {
	cfg := DefaultConnectionConfig()
	cfg.Type = "sqlite3"
	cfg.DSN = "file:logs_test?mode=memory&cache=shared"
	cfg.HealthCheckInterval = 0
	manager := NewDatabaseManager(cfg)
	require.NoError(t, manager.Connect(context.Background()))
	defer func() { _ = manager.Disconnect() }()

	log := &recordingLogger{}
	require.NoError(t, CreateTablesFor(context.Background(), manager.GetDB(), log, NewModelAdapter((*registryParent)(nil), 3)))
	require.Len(t, log.lines, 1)
	assert.Equal(t, "DEBUG Table ready model=*database.registryParent priority=3", log.lines[0])
}

func TestDefaultLogger(t *testing.T) {
	var buf bytes.Buffer
	lr := logrus.New()
	lr.SetOutput(&buf)
	lr.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true, DisableColors: true})

	log := NewLogrusLogger(lr)
	log.SetLevel(LogLevelWarn)
	log.Info("hidden")
	log.Warn("slow", "table", "users", "dangling")
	assert.Equal(t, "level=warning msg=slow table=users\n", buf.String())

	assert.Equal(t, "DEBUG", LogLevelDebug.String())
	assert.Equal(t, "ERROR", LogLevelError.String())
	assert.NotNil(t, GetLogger())
}

func TestSlowQueryHook(t *testing.T) {
	log := &recordingLogger{}
	hook := NewSlowQueryHook(time.Second, log)

	hook.AfterQuery(context.Background(), &bun.QueryEvent{Query: "SELECT 1", StartTime: time.Now()})
	assert.Empty(t, log.lines)

	hook.AfterQuery(context.Background(), &bun.QueryEvent{Query: "SELECT 2", StartTime: time.Now().Add(-2 * time.Second)})
	require.Len(t, log.lines, 1)
	assert.Contains(t, log.lines[0], "WARN Database slow query detected")
	assert.Contains(t, log.lines[0], "query=SELECT 2")
}
