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
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"reflect"
	"sync/atomic"
	"time"

	"github.com/fatih/color"
	"github.com/uptrace/bun"
)

var traceSilent atomic.Bool

// SilenceQueryTrace mutes every QueryTraceHook, e.g. while creating tables.
func SilenceQueryTrace(b bool) {
	traceSilent.Store(b)
}

var (
	selectColor = color.New(color.FgGreen)
	insertColor = color.New(color.FgBlue)
	updateColor = color.New(color.FgYellow)
	deleteColor = color.New(color.FgMagenta)
	otherColor  = color.New(color.FgRed)
	errorColor  = color.New(color.BgRed, color.FgWhite)
	prefixColor = color.New(color.FgCyan)
)

// QueryTraceHook prints each executed statement, colored by operation.
// The env variable overrides the enabled flag: "0" or "" disables, "2" also
// prints statements that failed with sql.ErrNoRows or sql.ErrTxDone.
type QueryTraceHook struct {
	envName string
	enabled bool
	writer  io.Writer
}

var _ bun.QueryHook = (*QueryTraceHook)(nil)

// NewQueryTraceHook returns an enabled hook writing to w (stdout when nil).
func NewQueryTraceHook(w io.Writer, envName string) *QueryTraceHook {
	if w == nil {
		w = os.Stdout
	}
	return &QueryTraceHook{envName: envName, enabled: true, writer: w}
}

func (h *QueryTraceHook) BeforeQuery(ctx context.Context, event *bun.QueryEvent) context.Context {
	return ctx
}

func (h *QueryTraceHook) AfterQuery(ctx context.Context, event *bun.QueryEvent) {
	if traceSilent.Load() {
		return
	}
	enabled := h.enabled
	verbose := false
	if h.envName != "" {
		if env, ok := os.LookupEnv(h.envName); ok {
			enabled = env != "" && env != "0"
			verbose = env == "2"
		}
	}
	if !enabled {
		return
	}
	if !verbose && (errors.Is(event.Err, sql.ErrNoRows) || errors.Is(event.Err, sql.ErrTxDone)) {
		return
	}

	now := time.Now()
	args := []interface{}{
		now.Format("2006-01-02 15:04:05.000"),
		prefixColor.Sprint("[BUNDAO]"),
		fmt.Sprintf("%12s", now.Sub(event.StartTime).Round(time.Microsecond)),
		operationColor(event.Operation()).Sprint(event.Query),
	}
	if event.Err != nil {
		typ := reflect.TypeOf(event.Err).String()
		args = append(args, "\t", errorColor.Sprintf(" %s: %s ", typ, event.Err.Error()))
	}
	_, _ = fmt.Fprintln(h.writer, args...)
}

func operationColor(operation string) *color.Color {
	switch operation {
	case "SELECT":
		return selectColor
	case "INSERT":
		return insertColor
	case "UPDATE":
		return updateColor
	case "DELETE":
		return deleteColor
	default:
		return otherColor
	}
}

// SlowQueryHook warns through logger about successful statements slower than
// the threshold.
type SlowQueryHook struct {
	threshold time.Duration
	logger    Logger
}

var _ bun.QueryHook = (*SlowQueryHook)(nil)

func NewSlowQueryHook(threshold time.Duration, logger Logger) *SlowQueryHook {
	return &SlowQueryHook{threshold: threshold, logger: logger}
}

func (h *SlowQueryHook) BeforeQuery(ctx context.Context, event *bun.QueryEvent) context.Context {
	return ctx
}

func (h *SlowQueryHook) AfterQuery(ctx context.Context, event *bun.QueryEvent) {
	if event.Err != nil || h.logger == nil {
		return
	}
	if elapsed := time.Since(event.StartTime); elapsed > h.threshold {
		h.logger.Warn("Database slow query detected",
			"duration", elapsed,
			"slow_threshold", h.threshold,
			"query", event.Query,
		)
	}
}
