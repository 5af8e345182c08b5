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

// Package cond builds WHERE predicates for the dao package.
//
// A Condition renders to a SQL fragment with "?" placeholders and the
// matching arguments. Column names are passed through bun.Ident so the
// active dialect quotes them.
package cond

import (
	"strings"

	"github.com/uptrace/bun"
)

// Condition is a WHERE fragment. A nil Condition matches every row.
type Condition interface {
	AppendQuery() (string, []any)
}

type expr struct {
	query string
	args  []any
}

func (e expr) AppendQuery() (string, []any) { return e.query, e.args }

// Expr wraps a raw fragment. Placeholders follow bun: "?" for values,
// "?" with bun.Ident for identifiers.
func Expr(query string, args ...any) Condition {
	return expr{query: query, args: args}
}

func compare(col, op string, v any) Condition {
	return expr{query: "? " + op + " ?", args: []any{bun.Ident(col), v}}
}

// Eq matches col = v.
func Eq(col string, v any) Condition { return compare(col, "=", v) }

// Ne matches col <> v.
func Ne(col string, v any) Condition { return compare(col, "<>", v) }

// Gt matches col > v.
func Gt(col string, v any) Condition { return compare(col, ">", v) }

// Ge matches col >= v.
func Ge(col string, v any) Condition { return compare(col, ">=", v) }

// Lt matches col < v.
func Lt(col string, v any) Condition { return compare(col, "<", v) }

// Le matches col <= v.
func Le(col string, v any) Condition { return compare(col, "<=", v) }

// Like matches col against a LIKE pattern.
func Like(col string, pattern string) Condition { return compare(col, "LIKE", pattern) }

// IsNull matches rows where col is NULL.
func IsNull(col string) Condition {
	return expr{query: "? IS NULL", args: []any{bun.Ident(col)}}
}

// IsNotNull matches rows where col is not NULL.
func IsNotNull(col string) Condition {
	return expr{query: "? IS NOT NULL", args: []any{bun.Ident(col)}}
}

// Between matches lo <= col <= hi.
func Between[V any](col string, lo, hi V) Condition {
	return expr{query: "? BETWEEN ? AND ?", args: []any{bun.Ident(col), lo, hi}}
}

// In matches col against values. An empty list matches nothing.
func In[V any](col string, values []V) Condition {
	if len(values) == 0 {
		return expr{query: "1 = 0"}
	}
	return expr{query: "? IN (?)", args: []any{bun.Ident(col), bun.In(values)}}
}

// NotIn excludes values. An empty list matches everything.
func NotIn[V any](col string, values []V) Condition {
	if len(values) == 0 {
		return expr{query: "1 = 1"}
	}
	return expr{query: "? NOT IN (?)", args: []any{bun.Ident(col), bun.In(values)}}
}

// And joins the non-nil conditions with AND. It returns nil when none remain.
func And(conds ...Condition) Condition { return join(" AND ", conds) }

// Or joins the non-nil conditions with OR. It returns nil when none remain.
func Or(conds ...Condition) Condition { return join(" OR ", conds) }

// Not negates c. A nil or empty condition matches every row, so its negation
// matches none.
func Not(c Condition) Condition {
	if c == nil {
		return expr{query: "1 = 0"}
	}
	q, args := c.AppendQuery()
	if q == "" {
		return expr{query: "1 = 0"}
	}
	return expr{query: "NOT (" + q + ")", args: args}
}

func join(sep string, conds []Condition) Condition {
	parts := make([]string, 0, len(conds))
	var args []any
	for _, c := range conds {
		if c == nil {
			continue
		}
		q, a := c.AppendQuery()
		if q == "" {
			continue
		}
		parts = append(parts, q)
		args = append(args, a...)
	}
	switch len(parts) {
	case 0:
		return nil
	case 1:
		return expr{query: parts[0], args: args}
	}
	return expr{query: "(" + strings.Join(parts, ")"+sep+"(") + ")", args: args}
}
