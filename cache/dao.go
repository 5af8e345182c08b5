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

package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/tomoncle/bundao/cond"
	"github.com/tomoncle/bundao/dao"
	"github.com/uptrace/bun"
	"github.com/viccon/sturdyc"
)

type store[T any] struct {
	client *sturdyc.Client[*T]
	prefix string
}

func (s *store[T]) key(id any) string { return s.prefix + fmt.Sprint(id) }

func (s *store[T]) flush() {
	for _, k := range s.client.ScanKeys() {
		if strings.HasPrefix(k, s.prefix) {
			s.client.Delete(k)
		}
	}
}

// pending tracks ids written by open transaction views. Reads of those ids
// skip the cache until the view is released.
type pending[ID comparable] struct {
	mu  sync.Mutex
	ids map[ID]int
	all int
}

func (p *pending[ID]) add(id ID) {
	p.mu.Lock()
	p.ids[id]++
	p.mu.Unlock()
}

func (p *pending[ID]) addAll() {
	p.mu.Lock()
	p.all++
	p.mu.Unlock()
}

func (p *pending[ID]) covers(id ID) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.all > 0 || p.ids[id] > 0
}

func (p *pending[ID]) remove(ids map[ID]struct{}, all bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for id := range ids {
		if p.ids[id]--; p.ids[id] <= 0 {
			delete(p.ids, id)
		}
	}
	if all {
		p.all--
	}
}

// txState is shared by every view of one transaction.
type txState[ID comparable] struct {
	mu       sync.Mutex
	touched  map[ID]struct{}
	flushed  bool
	released bool
}

// cachedDao serves Get and FindByID from the cache and invalidates on
// writes. A transaction view reads from the database; ids it writes bypass
// the cache for every reader until the view is released, which drops them
// once more.
type cachedDao[T any, ID comparable] struct {
	dao.CrudDao[T, ID]
	store   *store[T]
	pending *pending[ID]
	tx      *txState[ID]
}

// NewCachedDao wraps base with a sturdyc backed entity cache keyed by
// "<table>:<id>".
func NewCachedDao[T any, ID comparable](base dao.CrudDao[T, ID], cfg Config) (dao.CrudDao[T, ID], error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	client := sturdyc.New[*T](cfg.Capacity, cfg.NumShards, cfg.TTL, cfg.EvictionPercentage, cfg.options()...)
	return &cachedDao[T, ID]{
		CrudDao: base,
		store:   &store[T]{client: client, prefix: base.Table().Name + ":"},
		pending: &pending[ID]{ids: map[ID]int{}},
	}, nil
}

func clone[T any](e *T) *T {
	if e == nil {
		return nil
	}
	cp := *e
	return &cp
}

func (c *cachedDao[T, ID]) fetch(ctx context.Context, id ID) (*T, error) {
	if c.tx != nil || c.pending.covers(id) {
		return c.CrudDao.FindByID(ctx, id)
	}
	e, err := c.store.client.GetOrFetch(ctx, c.store.key(id), func(ctx context.Context) (*T, error) {
		e, err := c.CrudDao.FindByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if e == nil {
			return nil, sturdyc.ErrNotFound
		}
		return e, nil
	})
	if errors.Is(err, sturdyc.ErrNotFound) || errors.Is(err, sturdyc.ErrMissingRecord) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return clone(e), nil
}

func (c *cachedDao[T, ID]) Get(ctx context.Context, id ID) (*T, error) {
	e, err := c.fetch(ctx, id)
	if err != nil {
		return nil, err
	}
	if e == nil {
		return nil, &dao.NotFoundError{Table: c.Table().Name, ID: id}
	}
	return e, nil
}

func (c *cachedDao[T, ID]) FindByID(ctx context.Context, id ID) (*T, error) {
	return c.fetch(ctx, id)
}

func (c *cachedDao[T, ID]) invalidate(ids ...ID) {
	if tx := c.tx; tx != nil {
		tx.mu.Lock()
		for _, id := range ids {
			if _, ok := tx.touched[id]; !ok && !tx.released {
				tx.touched[id] = struct{}{}
				c.pending.add(id)
			}
		}
		tx.mu.Unlock()
	}
	for _, id := range ids {
		c.store.client.Delete(c.store.key(id))
	}
}

func (c *cachedDao[T, ID]) invalidateAll() {
	if tx := c.tx; tx != nil {
		tx.mu.Lock()
		if !tx.flushed && !tx.released {
			tx.flushed = true
			c.pending.addAll()
		}
		tx.mu.Unlock()
	}
	c.store.flush()
}

func (c *cachedDao[T, ID]) invalidateEntities(entities ...*T) {
	ids := make([]ID, 0, len(entities))
	for _, e := range entities {
		if e == nil {
			continue
		}
		if id, err := c.EntityID(e); err == nil {
			ids = append(ids, id)
		}
	}
	c.invalidate(ids...)
}

func (c *cachedDao[T, ID]) Insert(ctx context.Context, entity *T) error {
	err := c.CrudDao.Insert(ctx, entity)
	c.invalidateEntities(entity)
	return err
}

func (c *cachedDao[T, ID]) BatchInsert(ctx context.Context, entities []*T) error {
	err := c.CrudDao.BatchInsert(ctx, entities)
	c.invalidateEntities(entities...)
	return err
}

func (c *cachedDao[T, ID]) Upsert(ctx context.Context, entity *T, uniqueProps ...string) error {
	err := c.CrudDao.Upsert(ctx, entity, uniqueProps...)
	if len(uniqueProps) > 0 {
		c.invalidateAll()
	} else {
		c.invalidateEntities(entity)
	}
	return err
}

func (c *cachedDao[T, ID]) BatchUpsert(ctx context.Context, entities []*T, uniqueProps ...string) error {
	err := c.CrudDao.BatchUpsert(ctx, entities, uniqueProps...)
	if len(uniqueProps) > 0 {
		c.invalidateAll()
	} else {
		c.invalidateEntities(entities...)
	}
	return err
}

func (c *cachedDao[T, ID]) UpdateAll(ctx context.Context, props map[string]any, cnd cond.Condition) (int64, error) {
	n, err := c.CrudDao.UpdateAll(ctx, props, cnd)
	c.invalidateAll()
	return n, err
}

func (c *cachedDao[T, ID]) DeleteAll(ctx context.Context, cnd cond.Condition) (int64, error) {
	n, err := c.CrudDao.DeleteAll(ctx, cnd)
	c.invalidateAll()
	return n, err
}

func (c *cachedDao[T, ID]) Update(ctx context.Context, entity *T) error {
	err := c.CrudDao.Update(ctx, entity)
	c.invalidateEntities(entity)
	return err
}

func (c *cachedDao[T, ID]) BatchUpdate(ctx context.Context, entities []*T) error {
	err := c.CrudDao.BatchUpdate(ctx, entities)
	c.invalidateEntities(entities...)
	return err
}

func (c *cachedDao[T, ID]) UpdateByID(ctx context.Context, props map[string]any, id ID) (int64, error) {
	n, err := c.CrudDao.UpdateByID(ctx, props, id)
	c.invalidate(id)
	return n, err
}

func (c *cachedDao[T, ID]) Delete(ctx context.Context, entity *T) error {
	err := c.CrudDao.Delete(ctx, entity)
	c.invalidateEntities(entity)
	return err
}

func (c *cachedDao[T, ID]) DeleteByID(ctx context.Context, id ID) (int64, error) {
	n, err := c.CrudDao.DeleteByID(ctx, id)
	c.invalidate(id)
	return n, err
}

func (c *cachedDao[T, ID]) BatchDelete(ctx context.Context, entities []*T) (int64, error) {
	n, err := c.CrudDao.BatchDelete(ctx, entities)
	c.invalidateEntities(entities...)
	return n, err
}

func (c *cachedDao[T, ID]) BatchDeleteByIDs(ctx context.Context, ids []ID) (int64, error) {
	n, err := c.CrudDao.BatchDeleteByIDs(ctx, ids)
	c.invalidate(ids...)
	return n, err
}

func (c *cachedDao[T, ID]) txView(d dao.CrudDao[T, ID]) *cachedDao[T, ID] {
	tx := c.tx
	if tx == nil {
		tx = &txState[ID]{touched: map[ID]struct{}{}}
	}
	return &cachedDao[T, ID]{CrudDao: d, store: c.store, pending: c.pending, tx: tx}
}

// release drops the ids written through the view and lets readers use the
// cache for them again.
func (c *cachedDao[T, ID]) release() {
	tx := c.tx
	if tx == nil {
		return
	}
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if tx.released {
		return
	}
	tx.released = true
	if tx.flushed {
		c.store.flush()
	} else {
		for id := range tx.touched {
			c.store.client.Delete(c.store.key(id))
		}
	}
	c.pending.remove(tx.touched, tx.flushed)
}

// WithTx returns a view bound to tx. Its reads bypass the cache, and the ids
// it writes bypass the cache for all readers until Release is called on the
// view after the transaction ends.
func (c *cachedDao[T, ID]) WithTx(tx bun.IDB) dao.CrudDao[T, ID] {
	if tx == nil {
		return c
	}
	return c.txView(c.CrudDao.WithTx(tx))
}

func (c *cachedDao[T, ID]) RunInTx(ctx context.Context, opts *sql.TxOptions, fn func(ctx context.Context, d dao.CrudDao[T, ID]) error) error {
	var view *cachedDao[T, ID]
	err := c.CrudDao.RunInTx(ctx, opts, func(ctx context.Context, d dao.CrudDao[T, ID]) error {
		view = c.txView(d)
		return fn(ctx, view)
	})
	// a nested view belongs to the enclosing transaction
	if view != nil && c.tx == nil {
		view.release()
	}
	return err
}

// Release ends a transaction view returned by WithTx on a cached DAO: the ids
// it wrote are dropped from the cache again and served from it afterwards.
// Call it once the transaction has committed or rolled back. Other DAOs are
// left untouched.
func Release[T any, ID comparable](d dao.CrudDao[T, ID]) {
	if c, ok := d.(*cachedDao[T, ID]); ok {
		c.release()
	}
}
