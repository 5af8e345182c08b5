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
	"iter"

	"github.com/tomoncle/bundao/cond"
)

func (d *daoImpl[T]) Stream(ctx context.Context, c cond.Condition, selectProps ...string) iter.Seq2[*T, error] {
	return func(yield func(*T, error) bool) {
		q, err := d.selectQuery((*T)(nil), c, selectProps)
		if err != nil {
			yield(nil, err)
			return
		}
		rows, err := q.Rows(ctx)
		if err != nil {
			yield(nil, err)
			return
		}
		defer rows.Close()

		for rows.Next() {
			entity := new(T)
			if err := d.root.ScanRow(ctx, rows, entity); err != nil {
				yield(nil, err)
				return
			}
			if !yield(entity, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(nil, err)
		}
	}
}

// Foreach calls fn for each matching row until fn returns an error.
func (d *daoImpl[T]) Foreach(ctx context.Context, c cond.Condition, fn func(*T) error) error {
	for entity, err := range d.Stream(ctx, c) {
		if err != nil {
			return err
		}
		if err := fn(entity); err != nil {
			return err
		}
	}
	return nil
}
