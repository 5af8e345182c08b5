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

package cond

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
)

func TestCompareBuilders(t *testing.T) {
	cases := []struct {
		c  Condition
		op string
	}{
		{Eq("name", "a"), "? = ?"},
		{Ne("name", "a"), "? <> ?"},
		{Gt("age", 1), "? > ?"},
		{Ge("age", 1), "? >= ?"},
		{Lt("age", 1), "? < ?"},
		{Le("age", 1), "? <= ?"},
		{Like("name", "a%"), "? LIKE ?"},
	}
	for _, tc := range cases {
		q, args := tc.c.AppendQuery()
		assert.Equal(t, tc.op, q)
		require.Len(t, args, 2)
		assert.IsType(t, bun.Ident(""), args[0])
	}
}

func TestNullChecks(t *testing.T) {
	q, args := IsNull("deleted_at").AppendQuery()
	assert.Equal(t, "? IS NULL", q)
	assert.Equal(t, []any{bun.Ident("deleted_at")}, args)

	q, _ = IsNotNull("deleted_at").AppendQuery()
	assert.Equal(t, "? IS NOT NULL", q)
}

func TestInEmpty(t *testing.T) {
	q, args := In[int64]("id", nil).AppendQuery()
	assert.Equal(t, "1 = 0", q)
	assert.Empty(t, args)

	q, _ = NotIn("id", []int64{}).AppendQuery()
	assert.Equal(t, "1 = 1", q)
}

func TestIn(t *testing.T) {
	q, args := In("id", []int64{1, 2}).AppendQuery()
	assert.Equal(t, "? IN (?)", q)
	require.Len(t, args, 2)
	assert.Equal(t, bun.Ident("id"), args[0])
}

func TestBetween(t *testing.T) {
	q, args := Between("age", 18, 30).AppendQuery()
	assert.Equal(t, "? BETWEEN ? AND ?", q)
	assert.Equal(t, []any{bun.Ident("age"), 18, 30}, args)
}

func TestAndOr(t *testing.T) {
	c := And(Eq("a", 1), nil, Or(Eq("b", 2), Eq("c", 3)))
	q, args := c.AppendQuery()
	assert.Equal(t, "(? = ?) AND ((? = ?) OR (? = ?))", q)
	assert.Equal(t, []any{bun.Ident("a"), 1, bun.Ident("b"), 2, bun.Ident("c"), 3}, args)

	assert.Nil(t, And())
	assert.Nil(t, Or(nil, nil))

	single := And(nil, Eq("a", 1))
	q, _ = single.AppendQuery()
	assert.Equal(t, "? = ?", q)
}

func TestNot(t *testing.T) {
	q, args := Not(Eq("a", 1)).AppendQuery()
	assert.Equal(t, "NOT (? = ?)", q)
	assert.Len(t, args, 2)

	q, _ = Not(nil).AppendQuery()
	assert.Equal(t, "1 = 0", q)

	q, args = Not(All()).AppendQuery()
	assert.Equal(t, "1 = 0", q)
	assert.Empty(t, args)

	q, _ = Not(Where(nil).OrderBy("id")).AppendQuery()
	assert.Equal(t, "1 = 0", q)
}

func TestExpr(t *testing.T) {
	q, args := Expr("lower(?) = ?", bun.Ident("name"), "x").AppendQuery()
	assert.Equal(t, "lower(?) = ?", q)
	assert.Equal(t, []any{bun.Ident("name"), "x"}, args)
}

func TestCriteria(t *testing.T) {
	c := Where(Eq("a", 1)).And(Gt("b", 2)).OrderBy("a DESC", "b").Limit(10).Offset(20)
	q, args := c.AppendQuery()
	assert.Equal(t, "(? = ?) AND (? > ?)", q)
	assert.Len(t, args, 4)
	assert.Equal(t, []string{"a DESC", "b"}, c.Orders())
	assert.Equal(t, 10, c.GetLimit())
	assert.Equal(t, 20, c.GetOffset())

	q, args = All().OrderBy("a").AppendQuery()
	assert.Empty(t, q)
	assert.Nil(t, args)
}

func TestCriteriaNilReceiver(t *testing.T) {
	var c *Criteria
	q, _ := c.AppendQuery()
	assert.Empty(t, q)
	assert.Nil(t, c.Orders())
	assert.Zero(t, c.GetLimit())
	assert.Nil(t, c.Predicate())

	c = c.Limit(5)
	require.NotNil(t, c)
	assert.Equal(t, 5, c.GetLimit())
}
