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
	"fmt"
	"math"
	"reflect"
	"slices"
	"sort"

	"github.com/tomoncle/bundao/cond"
	"github.com/tomoncle/bundao/types"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/schema"
)

type daoImpl[T any] struct {
	root  *bun.DB
	idb   bun.IDB
	table *schema.Table
	opts  Options
}

// NewDao returns a Dao for the model T.
func NewDao[T any](db *bun.DB, opts ...Option) Dao[T] {
	return newDaoImpl[T](db, opts...)
}

func newDaoImpl[T any](db *bun.DB, opts ...Option) *daoImpl[T] {
	return &daoImpl[T]{
		root:  db,
		idb:   db,
		table: db.Table(reflect.TypeFor[T]()),
		opts:  newOptions(opts...),
	}
}

func (d *daoImpl[T]) withIDB(idb bun.IDB) *daoImpl[T] {
	cp := *d
	cp.idb = idb
	return &cp
}

func (d *daoImpl[T]) Dialect() schema.Dialect { return d.idb.Dialect() }

func (d *daoImpl[T]) DB() bun.IDB { return d.idb }

func (d *daoImpl[T]) Table() *schema.Table { return d.table }

func (d *daoImpl[T]) Executor() Executor { return d.opts.Executor }

func (d *daoImpl[T]) NewSelect() *bun.SelectQuery { return d.idb.NewSelect().Model((*T)(nil)) }

func (d *daoImpl[T]) NewInsert() *bun.InsertQuery { return d.idb.NewInsert().Model((*T)(nil)) }

func (d *daoImpl[T]) NewUpdate() *bun.UpdateQuery { return d.idb.NewUpdate().Model((*T)(nil)) }

func (d *daoImpl[T]) NewDelete() *bun.DeleteQuery { return d.idb.NewDelete().Model((*T)(nil)) }

// inTx runs fn in a transaction unless the DAO is already bound to one.
func (d *daoImpl[T]) inTx(ctx context.Context, fn func(ctx context.Context, idb bun.IDB) error) error {
	if db, ok := d.idb.(*bun.DB); ok {
		return db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
			return fn(ctx, tx)
		})
	}
	return fn(ctx, d.idb)
}

func (d *daoImpl[T]) Insert(ctx context.Context, entity *T) error {
	if entity == nil {
		return errors.New("dao: insert nil entity")
	}
	_, err := d.idb.NewInsert().Model(entity).Exec(ctx)
	return err
}

func (d *daoImpl[T]) BatchInsert(ctx context.Context, entities []*T) error {
	entities = compact(entities)
	for chunk := range slices.Chunk(entities, d.opts.BatchSize) {
		if _, err := d.idb.NewInsert().Model(&chunk).Exec(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (d *daoImpl[T]) UpdateAll(ctx context.Context, props map[string]any, c cond.Condition) (int64, error) {
	if len(props) == 0 {
		return 0, nil
	}
	names := make([]string, 0, len(props))
	for name := range props {
		names = append(names, name)
	}
	sort.Strings(names)

	q := d.idb.NewUpdate().Model((*T)(nil))
	for _, name := range names {
		col, err := d.column(name)
		if err != nil {
			return 0, err
		}
		q = q.Set("? = ?", bun.Ident(col), props[name])
	}
	q, ok := applyWhere(q, c)
	if !ok {
		q = q.Where("1 = 1")
	}
	res, err := q.Exec(ctx)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (d *daoImpl[T]) DeleteAll(ctx context.Context, c cond.Condition) (int64, error) {
	q := d.idb.NewDelete().Model((*T)(nil))
	q, ok := applyWhere(q, c)
	if !ok {
		q = q.Where("1 = 1")
	}
	res, err := q.Exec(ctx)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (d *daoImpl[T]) Exists(ctx context.Context, c cond.Condition) (bool, error) {
	q, _ := applyWhere(d.NewSelect(), c)
	return q.Exists(ctx)
}

func (d *daoImpl[T]) NotExists(ctx context.Context, c cond.Condition) (bool, error) {
	ok, err := d.Exists(ctx, c)
	return !ok, err
}

func (d *daoImpl[T]) Count(ctx context.Context, c cond.Condition) (int, error) {
	q, _ := applyWhere(d.NewSelect(), c)
	return q.Count(ctx)
}

func (d *daoImpl[T]) FindFirst(ctx context.Context, c cond.Condition, selectProps ...string) (*T, error) {
	entity := new(T)
	q, err := d.selectQuery(entity, c, selectProps)
	if err != nil {
		return nil, err
	}
	if err := q.Limit(1).Scan(ctx); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return entity, nil
}

func (d *daoImpl[T]) FindOnlyOne(ctx context.Context, c cond.Condition, selectProps ...string) (*T, error) {
	entities := make([]*T, 0, 2)
	q, err := d.selectQuery(&entities, c, selectProps)
	if err != nil {
		return nil, err
	}
	if err := q.Limit(2).Scan(ctx); err != nil {
		return nil, err
	}
	switch len(entities) {
	case 0:
		return nil, nil
	case 1:
		return entities[0], nil
	default:
		return nil, &DuplicatedResultError{Table: d.table.Name}
	}
}

func (d *daoImpl[T]) List(ctx context.Context, c cond.Condition, selectProps ...string) ([]*T, error) {
	entities := make([]*T, 0)
	q, err := d.selectQuery(&entities, c, selectProps)
	if err != nil {
		return nil, err
	}
	if err := q.Scan(ctx); err != nil {
		return nil, err
	}
	return entities, nil
}

func (d *daoImpl[T]) Page(ctx context.Context, c cond.Condition, pageRequest *types.PageRequest) (*types.Pagination[T], error) {
	if pageRequest == nil {
		pageRequest = types.NewPageRequest(1, 10)
	}
	entities := make([]*T, 0)
	query, _ := applyWhere(d.idb.NewSelect().Model(&entities), c)
	pagination := types.NewDefaultPagination[T](pageRequest.GetPage(), pageRequest.GetPageSize())
	total, err := query.Count(ctx)
	if err != nil {
		return nil, err
	}
	if total == 0 {
		return pagination, nil
	}
	orders := append(criteriaOrders(c), pageRequest.GetOrders()...)
	err = query.
		Order(orders...).
		Offset(pageRequest.GetOffset()).
		Limit(pageRequest.GetPageSize()).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	pagination.Total = total
	pagination.Items = entities
	return pagination, nil
}

// selectQuery builds a select on dest restricted to selectProps and shaped by c.
func (d *daoImpl[T]) selectQuery(dest any, c cond.Condition, selectProps []string) (*bun.SelectQuery, error) {
	q := d.idb.NewSelect().Model(dest)
	if len(selectProps) > 0 {
		cols, err := d.columns(selectProps)
		if err != nil {
			return nil, err
		}
		q = q.Column(cols...)
	}
	return applySelect(q, c), nil
}

// column resolves a property, given as column or Go field name, to its column.
func (d *daoImpl[T]) column(prop string) (string, error) {
	return resolveColumn(d.table, prop)
}

func (d *daoImpl[T]) columns(props []string) ([]string, error) {
	cols := make([]string, 0, len(props))
	for _, p := range props {
		col, err := d.column(p)
		if err != nil {
			return nil, err
		}
		cols = append(cols, col)
	}
	return cols, nil
}

func resolveColumn(table *schema.Table, prop string) (string, error) {
	if f := lookupField(table, prop); f != nil {
		return f.Name, nil
	}
	return "", fmt.Errorf("dao: %s has no property %q", table.Name, prop)
}

func lookupField(table *schema.Table, prop string) *schema.Field {
	for _, f := range table.Fields {
		if f.Name == prop || f.GoName == prop {
			return f
		}
	}
	return nil
}

type whereQuery[Q any] interface {
	Where(query string, args ...any) Q
}

// applyWhere adds the predicate of c, reporting whether one was added.
func applyWhere[Q whereQuery[Q]](q Q, c cond.Condition) (Q, bool) {
	if c == nil {
		return q, false
	}
	query, args := c.AppendQuery()
	if query == "" {
		return q, false
	}
	return q.Where(query, args...), true
}

func applySelect(q *bun.SelectQuery, c cond.Condition) *bun.SelectQuery {
	q, _ = applyWhere(q, c)
	cr, ok := c.(*cond.Criteria)
	if !ok || cr == nil {
		return q
	}
	if orders := cr.Orders(); len(orders) > 0 {
		q = q.Order(orders...)
	}
	limit, offset := cr.GetLimit(), cr.GetOffset()
	if limit <= 0 && offset > 0 {
		// SQLite and MySQL reject OFFSET without LIMIT
		limit = math.MaxInt32
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	if offset > 0 {
		q = q.Offset(offset)
	}
	return q
}

func criteriaOrders(c cond.Condition) []string {
	if cr, ok := c.(*cond.Criteria); ok {
		return slices.Clone(cr.Orders())
	}
	return nil
}

func compact[T any](entities []*T) []*T {
	out := make([]*T, 0, len(entities))
	for _, e := range entities {
		if e != nil {
			out = append(out, e)
		}
	}
	return out
}
