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
	"database/sql"
	"errors"
	"time"

	"github.com/tomoncle/bundao/cond"
	"github.com/uptrace/bun"
)

// valueQuery selects prop, a property name or a SQL expression such as
// "max(id)", from the rows matching c.
func valueQuery[T any](d Dao[T], prop string, c cond.Condition) *bun.SelectQuery {
	q := d.NewSelect()
	if col, err := resolveColumn(d.Table(), prop); err == nil {
		q = q.Column(col)
	} else {
		q = q.ColumnExpr(prop)
	}
	return applySelect(q, c)
}

// QueryForSingleResult returns the value of prop in the first matching row.
// The result is invalid when no row matches or the value is NULL.
func QueryForSingleResult[V, T any](ctx context.Context, d Dao[T], prop string, c cond.Condition) (sql.Null[V], error) {
	var v *V
	if err := valueQuery(d, prop, c).Limit(1).Scan(ctx, &v); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return sql.Null[V]{}, nil
		}
		return sql.Null[V]{}, err
	}
	if v == nil {
		return sql.Null[V]{}, nil
	}
	return sql.Null[V]{V: *v, Valid: true}, nil
}

// QueryForUniqueResult is QueryForSingleResult failing with a
// *DuplicatedResultError when more than one row matches.
func QueryForUniqueResult[V, T any](ctx context.Context, d Dao[T], prop string, c cond.Condition) (sql.Null[V], error) {
	var values []*V
	if err := valueQuery(d, prop, c).Limit(2).Scan(ctx, &values); err != nil {
		return sql.Null[V]{}, err
	}
	switch {
	case len(values) > 1:
		return sql.Null[V]{}, &DuplicatedResultError{Table: d.Table().Name}
	case len(values) == 0 || values[0] == nil:
		return sql.Null[V]{}, nil
	}
	return sql.Null[V]{V: *values[0], Valid: true}, nil
}

// ListValues returns prop for every matching row. NULL becomes the zero value.
func ListValues[V, T any](ctx context.Context, d Dao[T], prop string, c cond.Condition) ([]V, error) {
	values := make([]V, 0)
	if err := valueQuery(d, prop, c).Scan(ctx, &values); err != nil {
		return nil, err
	}
	return values, nil
}

func (d *daoImpl[T]) QueryForBool(ctx context.Context, prop string, c cond.Condition) (sql.Null[bool], error) {
	return QueryForSingleResult[bool, T](ctx, d, prop, c)
}

func (d *daoImpl[T]) QueryForInt(ctx context.Context, prop string, c cond.Condition) (sql.Null[int], error) {
	return QueryForSingleResult[int, T](ctx, d, prop, c)
}

func (d *daoImpl[T]) QueryForInt64(ctx context.Context, prop string, c cond.Condition) (sql.Null[int64], error) {
	return QueryForSingleResult[int64, T](ctx, d, prop, c)
}

func (d *daoImpl[T]) QueryForFloat64(ctx context.Context, prop string, c cond.Condition) (sql.Null[float64], error) {
	return QueryForSingleResult[float64, T](ctx, d, prop, c)
}

func (d *daoImpl[T]) QueryForString(ctx context.Context, prop string, c cond.Condition) (sql.Null[string], error) {
	return QueryForSingleResult[string, T](ctx, d, prop, c)
}

func (d *daoImpl[T]) QueryForTime(ctx context.Context, prop string, c cond.Condition) (sql.Null[time.Time], error) {
	return QueryForSingleResult[time.Time, T](ctx, d, prop, c)
}
