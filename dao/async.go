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
	"context"
	"fmt"

	"golang.org/x/sync/semaphore"
)

// Executor runs tasks asynchronously.
type Executor interface {
	Execute(task func())
}

type ExecutorFunc func(task func())

func (f ExecutorFunc) Execute(task func()) { f(task) }

// DefaultExecutor starts one goroutine per task.
func DefaultExecutor() Executor {
	return ExecutorFunc(func(task func()) { go task() })
}

type boundedExecutor struct {
	sem *semaphore.Weighted
}

// NewBoundedExecutor runs at most n tasks at a time. Execute does not block;
// waiting tasks queue on the semaphore.
func NewBoundedExecutor(n int) Executor {
	if n <= 0 {
		return DefaultExecutor()
	}
	return &boundedExecutor{sem: semaphore.NewWeighted(int64(n))}
}

func (e *boundedExecutor) Execute(task func()) {
	e.executeContext(context.Background(), func(error) { task() })
}

// executeContext hands task the error of a slot acquisition abandoned because
// ctx ended.
func (e *boundedExecutor) executeContext(ctx context.Context, task func(err error)) {
	go func() {
		if err := e.sem.Acquire(ctx, 1); err != nil {
			task(err)
			return
		}
		defer e.sem.Release(1)
		task(nil)
	}()
}

type contextExecutor interface {
	executeContext(ctx context.Context, task func(err error))
}

// Future is the pending result of an asynchronous call.
type Future[V any] struct {
	done  chan struct{}
	value V
	err   error
}

// Done is closed once the result is available.
func (f *Future[V]) Done() <-chan struct{} { return f.done }

// Get waits for the result or for ctx to end.
func (f *Future[V]) Get(ctx context.Context) (V, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		var zero V
		return zero, ctx.Err()
	}
}

// Submit runs fn on e. A panic in fn is returned as the future error.
func Submit[V any](ctx context.Context, e Executor, fn func(ctx context.Context) (V, error)) *Future[V] {
	f := &Future[V]{done: make(chan struct{})}
	run := func(err error) {
		defer close(f.done)
		defer func() {
			if r := recover(); r != nil {
				f.err = fmt.Errorf("dao: async task panicked: %v", r)
			}
		}()
		if err == nil {
			err = ctx.Err()
		}
		if err != nil {
			f.err = err
			return
		}
		f.value, f.err = fn(ctx)
	}
	if ce, ok := e.(contextExecutor); ok {
		ce.executeContext(ctx, run)
	} else {
		e.Execute(func() { run(nil) })
	}
	return f
}

// CallAsync runs fn against d on the DAO executor.
func CallAsync[T, V any](ctx context.Context, d Dao[T], fn func(ctx context.Context, d Dao[T]) (V, error)) *Future[V] {
	return Submit(ctx, d.Executor(), func(ctx context.Context) (V, error) {
		return fn(ctx, d)
	})
}

// RunAsync is CallAsync for calls without a result.
func RunAsync[T any](ctx context.Context, d Dao[T], fn func(ctx context.Context, d Dao[T]) error) *Future[struct{}] {
	return Submit(ctx, d.Executor(), func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx, d)
	})
}
