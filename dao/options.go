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

package dao

import (
	"sync"

	"github.com/tomoncle/bundao/database"
)

const (
	DefaultBatchSize       = 200
	DefaultJoinParallelism = 4
)

type Options struct {
	// BatchSize bounds the rows per batched statement and the keys per IN list.
	BatchSize int
	// JoinParallelism bounds concurrent join property loads.
	JoinParallelism int
	Executor        Executor
	Logger          database.Logger
}

type Option func(*Options)

func WithBatchSize(n int) Option {
	return func(o *Options) { o.BatchSize = n }
}

func WithJoinParallelism(n int) Option {
	return func(o *Options) { o.JoinParallelism = n }
}

func WithExecutor(e Executor) Option {
	return func(o *Options) { o.Executor = e }
}

func WithLogger(l database.Logger) Option {
	return func(o *Options) { o.Logger = l }
}

var (
	poolMu sync.Mutex
	pools  = map[int]Executor{}
)

// sharedExecutor returns the process-wide executor of size n, so every DAO
// built from the same config draws from one pool.
func sharedExecutor(n int) Executor {
	poolMu.Lock()
	defer poolMu.Unlock()
	e, ok := pools[n]
	if !ok {
		e = NewBoundedExecutor(n)
		pools[n] = e
	}
	return e
}

// OptionsFromConfig maps the DAO section of the database config to options.
// DAOs configured with the same AsyncPoolSize share one bounded executor.
func OptionsFromConfig(cfg database.DaoConfig) []Option {
	opts := []Option{
		WithBatchSize(cfg.BatchSize),
		WithJoinParallelism(cfg.JoinParallelism),
	}
	if cfg.AsyncPoolSize > 0 {
		opts = append(opts, WithExecutor(sharedExecutor(cfg.AsyncPoolSize)))
	}
	return opts
}

func newOptions(opts ...Option) Options {
	o := Options{}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	if o.BatchSize <= 0 {
		o.BatchSize = DefaultBatchSize
	}
	if o.JoinParallelism <= 0 {
		o.JoinParallelism = DefaultJoinParallelism
	}
	if o.Executor == nil {
		o.Executor = DefaultExecutor()
	}
	if o.Logger == nil {
		o.Logger = database.GetLogger()
	}
	return o
}
