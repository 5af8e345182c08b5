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

// Dao is the condition based contract shared by every DAO.
type Dao[T any] interface {
	Insert(ctx context.Context, entity *T) error
	BatchInsert(ctx context.Context, entities []*T) error

	// Upsert inserts entity or, on a conflict of uniqueProps (the primary key
	// by default), updates its data columns.
	Upsert(ctx context.Context, entity *T, uniqueProps ...string) error
	BatchUpsert(ctx context.Context, entities []*T, uniqueProps ...string) error

	// UpdateAll sets props on every row matching c and returns the number of
	// affected rows.
	UpdateAll(ctx context.Context, props map[string]any, c cond.Condition) (int64, error)
	DeleteAll(ctx context.Context, c cond.Condition) (int64, error)

	Exists(ctx context.Context, c cond.Condition) (bool, error)
	NotExists(ctx context.Context, c cond.Condition) (bool, error)
	Count(ctx context.Context, c cond.Condition) (int, error)

	// FindFirst returns the first matching row, or nil when there is none.
	FindFirst(ctx context.Context, c cond.Condition, selectProps ...string) (*T, error)
	// FindOnlyOne returns the single matching row, nil when there is none and
	// a *DuplicatedResultError when there are several.
	FindOnlyOne(ctx context.Context, c cond.Condition, selectProps ...string) (*T, error)
	List(ctx context.Context, c cond.Condition, selectProps ...string) ([]*T, error)
	// Stream iterates over the matching rows lazily. The cursor is closed when
	// the loop ends or breaks.
	Stream(ctx context.Context, c cond.Condition, selectProps ...string) iter.Seq2[*T, error]
	Foreach(ctx context.Context, c cond.Condition, fn func(*T) error) error
	Page(ctx context.Context, c cond.Condition, page *types.PageRequest) (*types.Pagination[T], error)

	QueryForBool(ctx context.Context, prop string, c cond.Condition) (sql.Null[bool], error)
	QueryForInt(ctx context.Context, prop string, c cond.Condition) (sql.Null[int], error)
	QueryForInt64(ctx context.Context, prop string, c cond.Condition) (sql.Null[int64], error)
	QueryForFloat64(ctx context.Context, prop string, c cond.Condition) (sql.Null[float64], error)
	QueryForString(ctx context.Context, prop string, c cond.Condition) (sql.Null[string], error)
	QueryForTime(ctx context.Context, prop string, c cond.Condition) (sql.Null[time.Time], error)

	// NewSelect returns a select bound to the DAO connection with T as model.
	NewSelect() *bun.SelectQuery
	NewInsert() *bun.InsertQuery
	NewUpdate() *bun.UpdateQuery
	NewDelete() *bun.DeleteQuery
	Dialect() schema.Dialect
	// DB returns the connection in use, a bun.Tx inside a transaction.
	DB() bun.IDB
	Table() *schema.Table
	Executor() Executor
}

// JoinEntityHelper loads and deletes the entities referenced by fields
// tagged with `dao:"joinedBy:..."`.
type JoinEntityHelper[T any] interface {
	LoadJoinEntities(ctx context.Context, entity *T, prop string, selectProps ...string) error
	LoadJoinEntitiesForAll(ctx context.Context, entities []*T, prop string, selectProps ...string) error
	// LoadJoinEntitiesIfNull loads prop only when the field holds its zero value.
	LoadJoinEntitiesIfNull(ctx context.Context, entity *T, prop string) error
	// LoadAllJoinEntities loads every join property. When parallel is true the
	// properties are loaded concurrently.
	LoadAllJoinEntities(ctx context.Context, entities []*T, parallel bool) error
	DeleteJoinEntities(ctx context.Context, entities []*T, prop string) (int64, error)
	DeleteAllJoinEntities(ctx context.Context, entities []*T) (int64, error)
	JoinProps() []string
}

// CrudDao adds primary key based operations to Dao.
type CrudDao[T any, ID comparable] interface {
	Dao[T]
	JoinEntityHelper[T]

	// Get returns the entity with id or an error matching ErrNotFound.
	Get(ctx context.Context, id ID) (*T, error)
	// FindByID returns the entity with id or nil.
	FindByID(ctx context.Context, id ID) (*T, error)
	// BatchGet returns the entities in the order of ids. Missing ids are
	// skipped and repeated ids yield one entity.
	BatchGet(ctx context.Context, ids []ID) ([]*T, error)
	ExistsByID(ctx context.Context, id ID) (bool, error)

	Update(ctx context.Context, entity *T) error
	BatchUpdate(ctx context.Context, entities []*T) error
	UpdateByID(ctx context.Context, props map[string]any, id ID) (int64, error)

	Delete(ctx context.Context, entity *T) error
	DeleteByID(ctx context.Context, id ID) (int64, error)
	BatchDelete(ctx context.Context, entities []*T) (int64, error)
	BatchDeleteByIDs(ctx context.Context, ids []ID) (int64, error)

	EntityID(entity *T) (ID, error)

	// WithTx returns a copy of the DAO that runs every statement on tx.
	WithTx(tx bun.IDB) CrudDao[T, ID]
	// RunInTx runs fn in a transaction. Inside an existing transaction fn
	// joins it.
	RunInTx(ctx context.Context, opts *sql.TxOptions, fn func(ctx context.Context, d CrudDao[T, ID]) error) error
}

// CrudDaoL is a CrudDao keyed by int64.
type CrudDaoL[T any] = CrudDao[T, int64]

// CrudDaoS is a CrudDao keyed by string.
type CrudDaoS[T any] = CrudDao[T, string]
