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
	"errors"
	"fmt"

	"github.com/tomoncle/bundao/database"
)

var (
	ErrNotFound         = errors.New("dao: entity not found")
	ErrDuplicatedResult = errors.New("dao: more than one row in result")
	ErrNoIDColumn       = errors.New("dao: model must declare exactly one primary key")
)

// NotFoundError reports a missing entity. It matches ErrNotFound.
type NotFoundError struct {
	Table string
	ID    any
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("dao: %s with id %v not found", e.Table, e.ID)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// DuplicatedResultError reports a query expected to return at most one row.
type DuplicatedResultError struct {
	Table string
}

func (e *DuplicatedResultError) Error() string {
	return fmt.Sprintf("dao: expected at most one row from %s, got more", e.Table)
}

func (e *DuplicatedResultError) Is(target error) bool { return target == ErrDuplicatedResult }

type JoinPropertyError struct {
	Model  string
	Prop   string
	Reason string
}

func (e *JoinPropertyError) Error() string {
	return fmt.Sprintf("dao: join property %s.%s: %s", e.Model, e.Prop, e.Reason)
}

// DataAccessError is the error returned by unchecked DAOs.
type DataAccessError struct {
	Op   string
	Kind database.SQLError
	Err  error
}

func (e *DataAccessError) Error() string {
	if e.Kind == database.UnknownErr {
		return fmt.Sprintf("dao %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("dao %s [%s]: %v", e.Op, e.Kind, e.Err)
}

func (e *DataAccessError) Unwrap() error { return e.Err }

// TranslateError wraps err in a *DataAccessError for op. Nil stays nil and an
// existing *DataAccessError is returned unchanged.
func TranslateError(op string, err error) error {
	if err == nil {
		return nil
	}
	var dae *DataAccessError
	if errors.As(err, &dae) {
		return err
	}
	_, kind := database.IsSqlError(err)
	return &DataAccessError{Op: op, Kind: kind, Err: err}
}

func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

func IsDuplicatedResult(err error) bool { return errors.Is(err, ErrDuplicatedResult) }

// Must panics when err is not nil.
func Must[V any](v V, err error) V {
	if err != nil {
		panic(err)
	}
	return v
}
