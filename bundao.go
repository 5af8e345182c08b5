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

// Package bundao wires the dao package to the global database connection
// managed by the database package.
//
//	_, err := database.InitDB(cfg)
//	users, err := bundao.NewCrudDao[User, int64]()
package bundao

import (
	"context"
	"database/sql"
	"errors"

	"github.com/tomoncle/bundao/cache"
	"github.com/tomoncle/bundao/dao"
	"github.com/tomoncle/bundao/database"
	"github.com/uptrace/bun"
)

// ErrNotInitialized is returned when no global database has been initialized.
var ErrNotInitialized = errors.New("bundao: database not initialized, call database.InitDB first")

func globalDB() (*bun.DB, []dao.Option, error) {
	db := database.GetDB()
	if db == nil {
		return nil, nil, ErrNotInitialized
	}
	return db, dao.OptionsFromConfig(database.GetConfig().DaoConfig), nil
}

// NewCrudDao returns a CrudDao bound to the global database. opts are applied
// after the options derived from the global DaoConfig.
func NewCrudDao[T any, ID comparable](opts ...dao.Option) (dao.CrudDao[T, ID], error) {
	db, base, err := globalDB()
	if err != nil {
		return nil, err
	}
	return dao.New[T, ID](db, append(base, opts...)...), nil
}

// MustCrudDao is NewCrudDao panicking on error.
func MustCrudDao[T any, ID comparable](opts ...dao.Option) dao.CrudDao[T, ID] {
	return dao.Must(NewCrudDao[T, ID](opts...))
}

// NewUncheckedCrudDao is NewCrudDao returning a DAO that translates every error.
func NewUncheckedCrudDao[T any, ID comparable](opts ...dao.Option) (dao.CrudDao[T, ID], error) {
	d, err := NewCrudDao[T, ID](opts...)
	if err != nil {
		return nil, err
	}
	return dao.NewUnchecked(d), nil
}

func NewDao[T any](opts ...dao.Option) (dao.Dao[T], error) {
	db, base, err := globalDB()
	if err != nil {
		return nil, err
	}
	return dao.NewDao[T](db, append(base, opts...)...), nil
}

// NewCachedCrudDao is NewCrudDao with an entity cache in front.
func NewCachedCrudDao[T any, ID comparable](cfg cache.Config, opts ...dao.Option) (dao.CrudDao[T, ID], error) {
	d, err := NewCrudDao[T, ID](opts...)
	if err != nil {
		return nil, err
	}
	return cache.NewCachedDao(d, cfg)
}

// RunInTx runs fn in a transaction on the global database. DAOs join it
// through WithTx.
func RunInTx(ctx context.Context, opts *sql.TxOptions, fn func(ctx context.Context, tx bun.Tx) error) error {
	db := database.GetDB()
	if db == nil {
		return ErrNotInitialized
	}
	return db.RunInTx(ctx, opts, fn)
}
