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

// Criteria carries a predicate plus ordering and paging. It is the only
// Condition that affects ORDER BY, LIMIT and OFFSET.
type Criteria struct {
	where  Condition
	orders []string
	limit  int
	offset int
}

// Where starts a Criteria from c.
func Where(c Condition) *Criteria {
	return &Criteria{where: c}
}

// All returns a Criteria without a predicate.
func All() *Criteria {
	return &Criteria{}
}

// And narrows the predicate.
func (c *Criteria) And(more ...Condition) *Criteria {
	if c == nil {
		c = &Criteria{}
	}
	c.where = And(append([]Condition{c.where}, more...)...)
	return c
}

// OrderBy appends order expressions such as "name" or "created_at DESC".
func (c *Criteria) OrderBy(orders ...string) *Criteria {
	if c == nil {
		c = &Criteria{}
	}
	c.orders = append(c.orders, orders...)
	return c
}

// Limit caps the number of rows; 0 means no cap.
func (c *Criteria) Limit(n int) *Criteria {
	if c == nil {
		c = &Criteria{}
	}
	c.limit = n
	return c
}

// Offset skips the first n rows.
func (c *Criteria) Offset(n int) *Criteria {
	if c == nil {
		c = &Criteria{}
	}
	c.offset = n
	return c
}

// AppendQuery renders the predicate only.
func (c *Criteria) AppendQuery() (string, []any) {
	if c == nil || c.where == nil {
		return "", nil
	}
	return c.where.AppendQuery()
}

// Orders returns the order expressions in the order they were added.
func (c *Criteria) Orders() []string {
	if c == nil {
		return nil
	}
	return c.orders
}

// GetLimit returns the row cap, 0 when unset.
func (c *Criteria) GetLimit() int {
	if c == nil {
		return 0
	}
	return c.limit
}

// GetOffset returns the number of skipped rows.
func (c *Criteria) GetOffset() int {
	if c == nil {
		return 0
	}
	return c.offset
}

// Predicate returns the bare predicate without ordering or paging.
func (c *Criteria) Predicate() Condition {
	if c == nil {
		return nil
	}
	return c.where
}
