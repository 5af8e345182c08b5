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
	"iter"
	"time"

	"github.com/tomoncle/bundao/cond"
	"github.com/tomoncle/bundao/types"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/schema"
)

type uncheckedDao[T any, ID comparable] struct {
	d CrudDao[T, ID]
}

// NewUnchecked wraps d so that every returned error is a *DataAccessError.
// errors.Is and errors.As still reach the original cause.
func NewUnchecked[T any, ID comparable](d CrudDao[T, ID]) CrudDao[T, ID] {
	if u, ok := d.(*uncheckedDao[T, ID]); ok {
		return u
	}
	return &uncheckedDao[T, ID]{d: d}
}

func (u *uncheckedDao[T, ID]) Insert(ctx context.Context, entity *T) error {
	return TranslateError("insert", u.d.Insert(ctx, entity))
}

func (u *uncheckedDao[T, ID]) BatchInsert(ctx context.Context, entities []*T) error {
	return TranslateError("batch insert", u.d.BatchInsert(ctx, entities))
}

func (u *uncheckedDao[T, ID]) Upsert(ctx context.Context, entity *T, uniqueProps ...string) error {
	return TranslateError("upsert", u.d.Upsert(ctx, entity, uniqueProps...))
}

func (u *uncheckedDao[T, ID]) BatchUpsert(ctx context.Context, entities []*T, uniqueProps ...string) error {
	return TranslateError("batch upsert", u.d.BatchUpsert(ctx, entities, uniqueProps...))
}

func (u *uncheckedDao[T, ID]) UpdateAll(ctx context.Context, props map[string]any, c cond.Condition) (int64, error) {
	n, err := u.d.UpdateAll(ctx, props, c)
	return n, TranslateError("update all", err)
}

func (u *uncheckedDao[T, ID]) DeleteAll(ctx context.Context, c cond.Condition) (int64, error) {
	n, err := u.d.DeleteAll(ctx, c)
	return n, TranslateError("delete all", err)
}

func (u *uncheckedDao[T, ID]) Exists(ctx context.Context, c cond.Condition) (bool, error) {
	ok, err := u.d.Exists(ctx, c)
	return ok, TranslateError("exists", err)
}

func (u *uncheckedDao[T, ID]) NotExists(ctx context.Context, c cond.Condition) (bool, error) {
	ok, err := u.d.NotExists(ctx, c)
	return ok, TranslateError("not exists", err)
}

func (u *uncheckedDao[T, ID]) Count(ctx context.Context, c cond.Condition) (int, error) {
	n, err := u.d.Count(ctx, c)
	return n, TranslateError("count", err)
}

func (u *uncheckedDao[T, ID]) FindFirst(ctx context.Context, c cond.Condition, selectProps ...string) (*T, error) {
	e, err := u.d.FindFirst(ctx, c, selectProps...)
	return e, TranslateError("find first", err)
}

func (u *uncheckedDao[T, ID]) FindOnlyOne(ctx context.Context, c cond.Condition, selectProps ...string) (*T, error) {
	e, err := u.d.FindOnlyOne(ctx, c, selectProps...)
	return e, TranslateError("find only one", err)
}

func (u *uncheckedDao[T, ID]) List(ctx context.Context, c cond.Condition, selectProps ...string) ([]*T, error) {
	list, err := u.d.List(ctx, c, selectProps...)
	return list, TranslateError("list", err)
}

func (u *uncheckedDao[T, ID]) Stream(ctx context.Context, c cond.Condition, selectProps ...string) iter.Seq2[*T, error] {
	seq := u.d.Stream(ctx, c, selectProps...)
	return func(yield func(*T, error) bool) {
		for e, err := range seq {
			if !yield(e, TranslateError("stream", err)) {
				return
			}
		}
	}
}

func (u *uncheckedDao[T, ID]) Foreach(ctx context.Context, c cond.Condition, fn func(*T) error) error {
	return TranslateError("foreach", u.d.Foreach(ctx, c, fn))
}

func (u *uncheckedDao[T, ID]) Page(ctx context.Context, c cond.Condition, page *types.PageRequest) (*types.Pagination[T], error) {
	p, err := u.d.Page(ctx, c, page)
	return p, TranslateError("page", err)
}

func (u *uncheckedDao[T, ID]) QueryForBool(ctx context.Context, prop string, c cond.Condition) (sql.Null[bool], error) {
	v, err := u.d.QueryForBool(ctx, prop, c)
	return v, TranslateError("query for bool", err)
}

func (u *uncheckedDao[T, ID]) QueryForInt(ctx context.Context, prop string, c cond.Condition) (sql.Null[int], error) {
	v, err := u.d.QueryForInt(ctx, prop, c)
	return v, TranslateError("query for int", err)
}

func (u *uncheckedDao[T, ID]) QueryForInt64(ctx context.Context, prop string, c cond.Condition) (sql.Null[int64], error) {
	v, err := u.d.QueryForInt64(ctx, prop, c)
	return v, TranslateError("query for int64", err)
}

func (u *uncheckedDao[T, ID]) QueryForFloat64(ctx context.Context, prop string, c cond.Condition) (sql.Null[float64], error) {
	v, err := u.d.QueryForFloat64(ctx, prop, c)
	return v, TranslateError("query for float64", err)
}

func (u *uncheckedDao[T, ID]) QueryForString(ctx context.Context, prop string, c cond.Condition) (sql.Null[string], error) {
	v, err := u.d.QueryForString(ctx, prop, c)
	return v, TranslateError("query for string", err)
}

func (u *uncheckedDao[T, ID]) QueryForTime(ctx context.Context, prop string, c cond.Condition) (sql.Null[time.Time], error) {
	v, err := u.d.QueryForTime(ctx, prop, c)
	return v, TranslateError("query for time", err)
}

func (u *uncheckedDao[T, ID]) NewSelect() *bun.SelectQuery { return u.d.NewSelect() }
func (u *uncheckedDao[T, ID]) NewInsert() *bun.InsertQuery { return u.d.NewInsert() }
func (u *uncheckedDao[T, ID]) NewUpdate() *bun.UpdateQuery { return u.d.NewUpdate() }
func (u *uncheckedDao[T, ID]) NewDelete() *bun.DeleteQuery { return u.d.NewDelete() }
func (u *uncheckedDao[T, ID]) Dialect() schema.Dialect     { return u.d.Dialect() }
func (u *uncheckedDao[T, ID]) DB() bun.IDB                 { return u.d.DB() }
func (u *uncheckedDao[T, ID]) Table() *schema.Table        { return u.d.Table() }
func (u *uncheckedDao[T, ID]) Executor() Executor          { return u.d.Executor() }
func (u *uncheckedDao[T, ID]) JoinProps() []string         { return u.d.JoinProps() }

func (u *uncheckedDao[T, ID]) LoadJoinEntities(ctx context.Context, entity *T, prop string, selectProps ...string) error {
	return TranslateError("load join entities", u.d.LoadJoinEntities(ctx, entity, prop, selectProps...))
}

func (u *uncheckedDao[T, ID]) LoadJoinEntitiesForAll(ctx context.Context, entities []*T, prop string, selectProps ...string) error {
	return TranslateError("load join entities", u.d.LoadJoinEntitiesForAll(ctx, entities, prop, selectProps...))
}

func (u *uncheckedDao[T, ID]) LoadJoinEntitiesIfNull(ctx context.Context, entity *T, prop string) error {
	return TranslateError("load join entities", u.d.LoadJoinEntitiesIfNull(ctx, entity, prop))
}

func (u *uncheckedDao[T, ID]) LoadAllJoinEntities(ctx context.Context, entities []*T, parallel bool) error {
	return TranslateError("load all join entities", u.d.LoadAllJoinEntities(ctx, entities, parallel))
}

func (u *uncheckedDao[T, ID]) DeleteJoinEntities(ctx context.Context, entities []*T, prop string) (int64, error) {
	n, err := u.d.DeleteJoinEntities(ctx, entities, prop)
	return n, TranslateError("delete join entities", err)
}

func (u *uncheckedDao[T, ID]) DeleteAllJoinEntities(ctx context.Context, entities []*T) (int64, error) {
	n, err := u.d.DeleteAllJoinEntities(ctx, entities)
	return n, TranslateError("delete all join entities", err)
}

func (u *uncheckedDao[T, ID]) Get(ctx context.Context, id ID) (*T, error) {
	e, err := u.d.Get(ctx, id)
	return e, TranslateError("get", err)
}

func (u *uncheckedDao[T, ID]) FindByID(ctx context.Context, id ID) (*T, error) {
	e, err := u.d.FindByID(ctx, id)
	return e, TranslateError("find by id", err)
}

func (u *uncheckedDao[T, ID]) BatchGet(ctx context.Context, ids []ID) ([]*T, error) {
	list, err := u.d.BatchGet(ctx, ids)
	return list, TranslateError("batch get", err)
}

func (u *uncheckedDao[T, ID]) ExistsByID(ctx context.Context, id ID) (bool, error) {
	ok, err := u.d.ExistsByID(ctx, id)
	return ok, TranslateError("exists by id", err)
}

func (u *uncheckedDao[T, ID]) Update(ctx context.Context, entity *T) error {
	return TranslateError("update", u.d.Update(ctx, entity))
}

func (u *uncheckedDao[T, ID]) BatchUpdate(ctx context.Context, entities []*T) error {
	return TranslateError("batch update", u.d.BatchUpdate(ctx, entities))
}

func (u *uncheckedDao[T, ID]) UpdateByID(ctx context.Context, props map[string]any, id ID) (int64, error) {
	n, err := u.d.UpdateByID(ctx, props, id)
	return n, TranslateError("update by id", err)
}

func (u *uncheckedDao[T, ID]) Delete(ctx context.Context, entity *T) error {
	return TranslateError("delete", u.d.Delete(ctx, entity))
}

func (u *uncheckedDao[T, ID]) DeleteByID(ctx context.Context, id ID) (int64, error) {
	n, err := u.d.DeleteByID(ctx, id)
	return n, TranslateError("delete by id", err)
}

func (u *uncheckedDao[T, ID]) BatchDelete(ctx context.Context, entities []*T) (int64, error) {
	n, err := u.d.BatchDelete(ctx, entities)
	return n, TranslateError("batch delete", err)
}

func (u *uncheckedDao[T, ID]) BatchDeleteByIDs(ctx context.Context, ids []ID) (int64, error) {
	n, err := u.d.BatchDeleteByIDs(ctx, ids)
	return n, TranslateError("batch delete by ids", err)
}

func (u *uncheckedDao[T, ID]) EntityID(entity *T) (ID, error) {
	id, err := u.d.EntityID(entity)
	return id, TranslateError("entity id", err)
}

func (u *uncheckedDao[T, ID]) WithTx(tx bun.IDB) CrudDao[T, ID] {
	return &uncheckedDao[T, ID]{d: u.d.WithTx(tx)}
}

func (u *uncheckedDao[T, ID]) RunInTx(ctx context.Context, opts *sql.TxOptions, fn func(ctx context.Context, d CrudDao[T, ID]) error) error {
	err := u.d.RunInTx(ctx, opts, func(ctx context.Context, d CrudDao[T, ID]) error {
		return fn(ctx, NewUnchecked(d))
	})
	return TranslateError("run in tx", err)
}
