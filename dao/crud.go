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
	"reflect"
	"slices"

	"github.com/tomoncle/bundao/cond"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/schema"
)

type crudDaoImpl[T any, ID comparable] struct {
	*daoImpl[T]
}

// New returns a CrudDao for the model T whose single primary key maps to ID.
func New[T any, ID comparable](db *bun.DB, opts ...Option) CrudDao[T, ID] {
	return &crudDaoImpl[T, ID]{daoImpl: newDaoImpl[T](db, opts...)}
}

func (d *crudDaoImpl[T, ID]) pk() (*schema.Field, error) {
	if len(d.table.PKs) != 1 {
		return nil, fmt.Errorf("%w: %s has %d", ErrNoIDColumn, d.table.Name, len(d.table.PKs))
	}
	return d.table.PKs[0], nil
}

func (d *crudDaoImpl[T, ID]) idCond(id ID) (cond.Condition, error) {
	pk, err := d.pk()
	if err != nil {
		return nil, err
	}
	return cond.Eq(pk.Name, id), nil
}

func (d *crudDaoImpl[T, ID]) idsCond(ids []ID) (cond.Condition, error) {
	pk, err := d.pk()
	if err != nil {
		return nil, err
	}
	return cond.In(pk.Name, ids), nil
}

func (d *crudDaoImpl[T, ID]) EntityID(entity *T) (ID, error) {
	var zero ID
	if entity == nil {
		return zero, errors.New("dao: nil entity")
	}
	pk, err := d.pk()
	if err != nil {
		return zero, err
	}
	v := pk.Value(reflect.ValueOf(entity).Elem())
	if id, ok := v.Interface().(ID); ok {
		return id, nil
	}
	idType := reflect.TypeFor[ID]()
	if v.Type().ConvertibleTo(idType) {
		return v.Convert(idType).Interface().(ID), nil
	}
	return zero, fmt.Errorf("dao: %s primary key %s is %s, not %s", d.table.Name, pk.Name, v.Type(), idType)
}

func (d *crudDaoImpl[T, ID]) Get(ctx context.Context, id ID) (*T, error) {
	entity, err := d.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if entity == nil {
		return nil, &NotFoundError{Table: d.table.Name, ID: id}
	}
	return entity, nil
}

func (d *crudDaoImpl[T, ID]) FindByID(ctx context.Context, id ID) (*T, error) {
	c, err := d.idCond(id)
	if err != nil {
		return nil, err
	}
	entity := new(T)
	q, _ := applyWhere(d.idb.NewSelect().Model(entity), c)
	if err := q.Scan(ctx); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return entity, nil
}

func (d *crudDaoImpl[T, ID]) BatchGet(ctx context.Context, ids []ID) ([]*T, error) {
	ids = distinct(ids)
	if _, err := d.pk(); err != nil {
		return nil, err
	}

	byID := make(map[ID]*T, len(ids))
	for chunk := range slices.Chunk(ids, d.opts.BatchSize) {
		c, _ := d.idsCond(chunk)
		part, err := d.List(ctx, c)
		if err != nil {
			return nil, err
		}
		for _, e := range part {
			id, err := d.EntityID(e)
			if err != nil {
				return nil, err
			}
			byID[id] = e
		}
	}

	result := make([]*T, 0, len(byID))
	for _, id := range ids {
		if e, ok := byID[id]; ok {
			result = append(result, e)
		}
	}
	return result, nil
}

func (d *crudDaoImpl[T, ID]) ExistsByID(ctx context.Context, id ID) (bool, error) {
	c, err := d.idCond(id)
	if err != nil {
		return false, err
	}
	return d.Exists(ctx, c)
}

func (d *crudDaoImpl[T, ID]) Update(ctx context.Context, entity *T) error {
	if entity == nil {
		return errors.New("dao: update nil entity")
	}
	if _, err := d.pk(); err != nil {
		return err
	}
	_, err := d.idb.NewUpdate().Model(entity).WherePK().Exec(ctx)
	return err
}

// BatchUpdate updates every entity by primary key in one transaction.
func (d *crudDaoImpl[T, ID]) BatchUpdate(ctx context.Context, entities []*T) error {
	entities = compact(entities)
	if len(entities) == 0 {
		return nil
	}
	return d.inTx(ctx, func(ctx context.Context, idb bun.IDB) error {
		tx := &crudDaoImpl[T, ID]{daoImpl: d.withIDB(idb)}
		for _, e := range entities {
			if err := tx.Update(ctx, e); err != nil {
				return err
			}
		}
		return nil
	})
}

func (d *crudDaoImpl[T, ID]) UpdateByID(ctx context.Context, props map[string]any, id ID) (int64, error) {
	c, err := d.idCond(id)
	if err != nil {
		return 0, err
	}
	return d.UpdateAll(ctx, props, c)
}

func (d *crudDaoImpl[T, ID]) Delete(ctx context.Context, entity *T) error {
	if entity == nil {
		return errors.New("dao: delete nil entity")
	}
	if _, err := d.pk(); err != nil {
		return err
	}
	_, err := d.idb.NewDelete().Model(entity).WherePK().Exec(ctx)
	return err
}

func (d *crudDaoImpl[T, ID]) DeleteByID(ctx context.Context, id ID) (int64, error) {
	c, err := d.idCond(id)
	if err != nil {
		return 0, err
	}
	return d.DeleteAll(ctx, c)
}

func (d *crudDaoImpl[T, ID]) BatchDelete(ctx context.Context, entities []*T) (int64, error) {
	entities = compact(entities)
	ids := make([]ID, 0, len(entities))
	for _, e := range entities {
		id, err := d.EntityID(e)
		if err != nil {
			return 0, err
		}
		ids = append(ids, id)
	}
	return d.BatchDeleteByIDs(ctx, ids)
}

func (d *crudDaoImpl[T, ID]) BatchDeleteByIDs(ctx context.Context, ids []ID) (int64, error) {
	ids = distinct(ids)
	if _, err := d.pk(); err != nil {
		return 0, err
	}
	var total int64
	for chunk := range slices.Chunk(ids, d.opts.BatchSize) {
		c, _ := d.idsCond(chunk)
		n, err := d.DeleteAll(ctx, c)
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}

func (d *crudDaoImpl[T, ID]) WithTx(tx bun.IDB) CrudDao[T, ID] {
	if tx == nil {
		return d
	}
	return &crudDaoImpl[T, ID]{daoImpl: d.withIDB(tx)}
}

func (d *crudDaoImpl[T, ID]) RunInTx(ctx context.Context, opts *sql.TxOptions, fn func(ctx context.Context, d CrudDao[T, ID]) error) error {
	db, ok := d.idb.(*bun.DB)
	if !ok {
		return fn(ctx, d)
	}
	return db.RunInTx(ctx, opts, func(ctx context.Context, tx bun.Tx) error {
		return fn(ctx, d.WithTx(tx))
	})
}

func distinct[ID comparable](ids []ID) []ID {
	seen := make(map[ID]struct{}, len(ids))
	out := make([]ID, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
