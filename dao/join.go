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
	"reflect"
	"slices"

	"github.com/tomoncle/bundao/cond"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/schema"
	"golang.org/x/sync/errgroup"
)

func (d *daoImpl[T]) LoadJoinEntities(ctx context.Context, entity *T, prop string, selectProps ...string) error {
	if entity == nil {
		return nil
	}
	return d.LoadJoinEntitiesForAll(ctx, []*T{entity}, prop, selectProps...)
}

func (d *daoImpl[T]) LoadJoinEntitiesForAll(ctx context.Context, entities []*T, prop string, selectProps ...string) error {
	p, err := d.joinProp(prop)
	if err != nil {
		return err
	}
	entities = compact(entities)
	if len(entities) == 0 {
		return nil
	}
	return d.loadJoin(ctx, entities, p, selectProps)
}

func (d *daoImpl[T]) LoadJoinEntitiesIfNull(ctx context.Context, entity *T, prop string) error {
	if entity == nil {
		return nil
	}
	p, err := d.joinProp(prop)
	if err != nil {
		return err
	}
	if !reflect.ValueOf(entity).Elem().FieldByIndex(p.index).IsZero() {
		return nil
	}
	return d.loadJoin(ctx, []*T{entity}, p, nil)
}

func (d *daoImpl[T]) LoadAllJoinEntities(ctx context.Context, entities []*T, parallel bool) error {
	meta, err := d.joinMeta()
	if err != nil {
		return err
	}
	entities = compact(entities)
	if len(meta.props) == 0 || len(entities) == 0 {
		return nil
	}

	// a transaction owns a single connection
	_, onDB := d.idb.(*bun.DB)
	if !parallel || !onDB || len(meta.props) == 1 {
		for _, p := range meta.props {
			if err := d.loadJoin(ctx, entities, p, nil); err != nil {
				return err
			}
		}
		return nil
	}

	// not routed through the executor, the caller may hold its only slot
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.opts.JoinParallelism)
	for _, p := range meta.props {
		g.Go(func() error {
			return d.loadJoin(gctx, entities, p, nil)
		})
	}
	return g.Wait()
}

func (d *daoImpl[T]) loadJoin(ctx context.Context, entities []*T, p *joinProp, selectProps []string) error {
	entityKeys := make([]string, len(entities))
	keys := make([][]any, 0, len(entities))
	seen := make(map[string]struct{}, len(entities))
	for i, e := range entities {
		parts, key, ok := fieldKey(p.baseFields, reflect.ValueOf(e).Elem())
		if !ok {
			continue
		}
		entityKeys[i] = key
		if _, dup := seen[key]; !dup {
			seen[key] = struct{}{}
			keys = append(keys, parts)
		}
	}

	d.opts.Logger.Debug("load join entities",
		"model", d.table.TypeName, "prop", p.name, "keys", len(keys), "batch_size", d.opts.BatchSize)

	var (
		matched map[string][]reflect.Value
		err     error
	)
	if p.viaJunction() {
		matched, err = d.fetchViaJunction(ctx, p, keys, selectProps)
	} else {
		matched, err = d.fetchJoinRows(ctx, p, p.joinFields, keys, selectProps)
	}
	if err != nil {
		return err
	}

	for i, e := range entities {
		var rows []reflect.Value
		if entityKeys[i] != "" {
			rows = matched[entityKeys[i]]
		}
		assignJoin(reflect.ValueOf(e).Elem(), p, rows)
	}
	return nil
}

// fetchJoinRows loads the rows of the joined table whose fields match keys and
// groups them by key. Rows come back as *E values ordered by primary key.
func (d *daoImpl[T]) fetchJoinRows(ctx context.Context, p *joinProp, fields []*schema.Field, keys [][]any, selectProps []string) (map[string][]reflect.Value, error) {
	matched := make(map[string][]reflect.Value, len(keys))
	if len(keys) == 0 {
		return matched, nil
	}
	cols, err := joinColumns(p, fields, selectProps)
	if err != nil {
		return nil, err
	}

	for chunk := range slices.Chunk(keys, d.opts.BatchSize) {
		rows := reflect.New(reflect.SliceOf(reflect.PointerTo(p.elemType)))
		q := d.idb.NewSelect().Model(rows.Interface())
		if len(cols) > 0 {
			q = q.Column(cols...)
		}
		q, _ = applyWhere(q, keysCond(fieldNames(fields), chunk))
		if pks := fieldNames(p.table.PKs); len(pks) > 0 {
			q = q.Order(pks...)
		}
		if err := q.Scan(ctx); err != nil {
			return nil, err
		}

		slice := rows.Elem()
		for i := 0; i < slice.Len(); i++ {
			row := slice.Index(i)
			if row.IsNil() {
				continue
			}
			_, key, ok := fieldKey(fields, row.Elem())
			if ok {
				matched[key] = append(matched[key], row)
			}
		}
	}
	return matched, nil
}

func (d *daoImpl[T]) fetchViaJunction(ctx context.Context, p *joinProp, keys [][]any, selectProps []string) (map[string][]reflect.Value, error) {
	links := make(map[string][]string, len(keys))
	var targets [][]any
	targetSeen := map[string]struct{}{}

	for chunk := range slices.Chunk(keys, d.opts.BatchSize) {
		values := make([]any, 0, len(chunk))
		for _, k := range chunk {
			values = append(values, k[0])
		}
		var rows []map[string]interface{}
		err := d.idb.NewSelect().
			Table(p.junction).
			Column(p.junctionBaseCol, p.junctionJoinCol).
			Where("? IN (?)", bun.Ident(p.junctionBaseCol), bun.In(values)).
			Order(p.junctionBaseCol, p.junctionJoinCol).
			Scan(ctx, &rows)
		if err != nil {
			return nil, err
		}
		for _, r := range rows {
			baseKey, ok := compositeKey([]any{coerceKey(r[p.junctionBaseCol], p.baseFields[0].IndirectType)})
			if !ok {
				continue
			}
			target := coerceKey(r[p.junctionJoinCol], p.joinFields[0].IndirectType)
			targetKey, ok := compositeKey([]any{target})
			if !ok {
				continue
			}
			links[baseKey] = append(links[baseKey], targetKey)
			if _, dup := targetSeen[targetKey]; !dup {
				targetSeen[targetKey] = struct{}{}
				targets = append(targets, []any{target})
			}
		}
	}

	byTarget, err := d.fetchJoinRows(ctx, p, p.joinFields, targets, selectProps)
	if err != nil {
		return nil, err
	}
	matched := make(map[string][]reflect.Value, len(links))
	for baseKey, targetKeys := range links {
		for _, tk := range targetKeys {
			matched[baseKey] = append(matched[baseKey], byTarget[tk]...)
		}
	}
	return matched, nil
}

// assignJoin stores rows into the join field of strct. Every entity gets its
// own copy of each joined row.
func assignJoin(strct reflect.Value, p *joinProp, rows []reflect.Value) {
	field := strct.FieldByIndex(p.index)
	if p.many {
		s := reflect.MakeSlice(field.Type(), 0, len(rows))
		for _, row := range rows {
			s = reflect.Append(s, joinElem(p, row))
		}
		field.Set(s)
		return
	}
	if len(rows) == 0 {
		field.Set(reflect.Zero(field.Type()))
		return
	}
	field.Set(joinElem(p, rows[0]))
}

func joinElem(p *joinProp, row reflect.Value) reflect.Value {
	if !p.elemPtr {
		return row.Elem()
	}
	cp := reflect.New(p.elemType)
	cp.Elem().Set(row.Elem())
	return cp
}

func (d *daoImpl[T]) DeleteJoinEntities(ctx context.Context, entities []*T, prop string) (int64, error) {
	p, err := d.joinProp(prop)
	if err != nil {
		return 0, err
	}
	entities = compact(entities)
	var total int64
	err = d.inTx(ctx, func(ctx context.Context, idb bun.IDB) error {
		n, err := d.withIDB(idb).deleteJoin(ctx, entities, p)
		total = n
		return err
	})
	return total, err
}

func (d *daoImpl[T]) DeleteAllJoinEntities(ctx context.Context, entities []*T) (int64, error) {
	meta, err := d.joinMeta()
	if err != nil {
		return 0, err
	}
	entities = compact(entities)
	var total int64
	err = d.inTx(ctx, func(ctx context.Context, idb bun.IDB) error {
		tx := d.withIDB(idb)
		for _, p := range meta.props {
			n, err := tx.deleteJoin(ctx, entities, p)
			total += n
			if err != nil {
				return err
			}
		}
		return nil
	})
	return total, err
}

// deleteJoin removes the joined rows of entities. For a junction join only
// the junction rows are removed.
func (d *daoImpl[T]) deleteJoin(ctx context.Context, entities []*T, p *joinProp) (int64, error) {
	keys := make([][]any, 0, len(entities))
	seen := make(map[string]struct{}, len(entities))
	for _, e := range entities {
		parts, key, ok := fieldKey(p.baseFields, reflect.ValueOf(e).Elem())
		if !ok {
			continue
		}
		if _, dup := seen[key]; !dup {
			seen[key] = struct{}{}
			keys = append(keys, parts)
		}
	}

	var total int64
	for chunk := range slices.Chunk(keys, d.opts.BatchSize) {
		var q *bun.DeleteQuery
		if p.viaJunction() {
			q, _ = applyWhere(d.idb.NewDelete().Table(p.junction), keysCond([]string{p.junctionBaseCol}, chunk))
		} else {
			model := reflect.Zero(reflect.PointerTo(p.elemType)).Interface()
			q, _ = applyWhere(d.idb.NewDelete().Model(model), keysCond(fieldNames(p.joinFields), chunk))
		}
		res, err := q.Exec(ctx)
		if err != nil {
			return total, err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}

// keysCond matches cols against keys: an IN list for a single column and an
// OR of AND groups for composite keys.
func keysCond(cols []string, keys [][]any) cond.Condition {
	if len(cols) == 1 {
		values := make([]any, 0, len(keys))
		for _, k := range keys {
			values = append(values, k[0])
		}
		return cond.In(cols[0], values)
	}
	groups := make([]cond.Condition, 0, len(keys))
	for _, k := range keys {
		eqs := make([]cond.Condition, 0, len(cols))
		for i, col := range cols {
			eqs = append(eqs, cond.Eq(col, k[i]))
		}
		groups = append(groups, cond.And(eqs...))
	}
	return cond.Or(groups...)
}

func joinColumns(p *joinProp, fields []*schema.Field, selectProps []string) ([]string, error) {
	if len(selectProps) == 0 {
		return nil, nil
	}
	cols := make([]string, 0, len(selectProps)+len(fields))
	for _, prop := range selectProps {
		col, err := resolveColumn(p.table, prop)
		if err != nil {
			return nil, err
		}
		cols = append(cols, col)
	}
	for _, f := range slices.Concat(fields, p.table.PKs) {
		if !slices.Contains(cols, f.Name) {
			cols = append(cols, f.Name)
		}
	}
	return cols, nil
}

func fieldNames(fields []*schema.Field) []string {
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = f.Name
	}
	return names
}
