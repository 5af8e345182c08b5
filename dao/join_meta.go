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
	"database/sql/driver"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
	"sync"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/schema"
)

const joinTagPrefix = "joinedBy:"

// joinProp describes a field tagged `dao:"joinedBy:..."`.
//
//	joinedBy:id=user_id                         one-to-one or one-to-many
//	joinedBy:a=x,b=y                            composite key
//	joinedBy:id=user_roles.user_id,user_roles.role_id=id   through a junction table
type joinProp struct {
	name     string
	index    []int
	many     bool
	elemPtr  bool
	elemType reflect.Type
	table    *schema.Table

	baseFields []*schema.Field
	joinFields []*schema.Field

	junction        string
	junctionBaseCol string
	junctionJoinCol string
}

func (p *joinProp) viaJunction() bool { return p.junction != "" }

type joinMeta struct {
	props  []*joinProp
	byName map[string]*joinProp
	err    error
}

var joinMetaCache sync.Map // reflect.Type -> *joinMeta

func (d *daoImpl[T]) joinMeta() (*joinMeta, error) {
	typ := reflect.TypeFor[T]()
	if m, ok := joinMetaCache.Load(typ); ok {
		meta := m.(*joinMeta)
		return meta, meta.err
	}
	meta := parseJoinMeta(d.root, typ, d.table)
	actual, _ := joinMetaCache.LoadOrStore(typ, meta)
	meta = actual.(*joinMeta)
	return meta, meta.err
}

func (d *daoImpl[T]) joinProp(prop string) (*joinProp, error) {
	meta, err := d.joinMeta()
	if err != nil {
		return nil, err
	}
	p, ok := meta.byName[prop]
	if !ok {
		return nil, &JoinPropertyError{Model: d.table.TypeName, Prop: prop, Reason: "not a join property"}
	}
	return p, nil
}

func (d *daoImpl[T]) JoinProps() []string {
	meta, err := d.joinMeta()
	if err != nil {
		return nil
	}
	names := make([]string, 0, len(meta.props))
	for _, p := range meta.props {
		names = append(names, p.name)
	}
	return names
}

func parseJoinMeta(db *bun.DB, typ reflect.Type, base *schema.Table) *joinMeta {
	meta := &joinMeta{byName: map[string]*joinProp{}}
	for i := 0; i < typ.NumField(); i++ {
		sf := typ.Field(i)
		tag, ok := sf.Tag.Lookup("dao")
		if !ok || !strings.HasPrefix(tag, joinTagPrefix) {
			continue
		}
		p, err := parseJoinProp(db, base, sf, strings.TrimPrefix(tag, joinTagPrefix))
		if err != nil {
			meta.err = err
			return meta
		}
		meta.props = append(meta.props, p)
		meta.byName[p.name] = p
	}
	return meta
}

func parseJoinProp(db *bun.DB, base *schema.Table, sf reflect.StructField, tag string) (*joinProp, error) {
	fail := func(format string, args ...any) error {
		return &JoinPropertyError{Model: base.TypeName, Prop: sf.Name, Reason: fmt.Sprintf(format, args...)}
	}

	p := &joinProp{name: sf.Name, index: sf.Index}
	t := sf.Type
	if t.Kind() == reflect.Slice {
		p.many = true
		t = t.Elem()
	}
	if t.Kind() == reflect.Pointer {
		p.elemPtr = true
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil, fail("unsupported field type %s", sf.Type)
	}
	p.elemType = t
	p.table = db.Table(t)

	pairs := strings.Split(tag, ",")
	for _, pair := range pairs {
		left, right, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if !ok {
			return nil, fail("malformed pair %q", pair)
		}
		left, right = strings.TrimSpace(left), strings.TrimSpace(right)
		switch {
		case strings.Contains(right, "."):
			jt, col, _ := strings.Cut(right, ".")
			if p.junction != "" && p.junction != jt {
				return nil, fail("more than one junction table")
			}
			f := lookupField(base, left)
			if f == nil {
				return nil, fail("%s has no column %s", base.Name, left)
			}
			p.junction, p.junctionBaseCol = jt, col
			p.baseFields = append(p.baseFields, f)
		case strings.Contains(left, "."):
			jt, col, _ := strings.Cut(left, ".")
			if p.junction != "" && p.junction != jt {
				return nil, fail("more than one junction table")
			}
			f := lookupField(p.table, right)
			if f == nil {
				return nil, fail("%s has no column %s", p.table.Name, right)
			}
			p.junction, p.junctionJoinCol = jt, col
			p.joinFields = append(p.joinFields, f)
		default:
			bf := lookupField(base, left)
			if bf == nil {
				return nil, fail("%s has no column %s", base.Name, left)
			}
			jf := lookupField(p.table, right)
			if jf == nil {
				return nil, fail("%s has no column %s", p.table.Name, right)
			}
			p.baseFields = append(p.baseFields, bf)
			p.joinFields = append(p.joinFields, jf)
		}
	}

	if p.viaJunction() {
		if len(p.baseFields) != 1 || len(p.joinFields) != 1 || p.junctionBaseCol == "" || p.junctionJoinCol == "" {
			return nil, fail("a junction join needs exactly one base=junction.col and one junction.col=join pair")
		}
	} else if len(p.baseFields) == 0 {
		return nil, fail("no join columns")
	}
	return p, nil
}

// keyPart normalizes a column value so that equal keys read from different
// Go types or drivers compare equal. It returns nil for NULL.
func keyPart(v any) any {
	switch x := v.(type) {
	case nil:
		return nil
	case []byte:
		return string(x)
	}
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return nil
		}
		if valuer, ok := rv.Interface().(driver.Valuer); ok {
			return valuerKey(valuer)
		}
		rv = rv.Elem()
	}
	if valuer, ok := rv.Interface().(driver.Valuer); ok {
		return valuerKey(valuer)
	}
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int()
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		if u := rv.Uint(); u <= math.MaxInt64 {
			return int64(u)
		}
		return rv.Uint()
	case reflect.Float32, reflect.Float64:
		f := rv.Float()
		if f == math.Trunc(f) && math.Abs(f) < 1<<53 {
			return int64(f)
		}
		return f
	case reflect.String:
		return rv.String()
	case reflect.Slice:
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			return string(rv.Bytes())
		}
	}
	return rv.Interface()
}

// valuerKey keys sql.NullInt64, sql.Null[V] and similar wrappers by the value
// they send to the driver. An invalid value is NULL.
func valuerKey(v driver.Valuer) any {
	dv, err := v.Value()
	if err != nil || dv == nil {
		return nil
	}
	if _, again := dv.(driver.Valuer); again {
		return nil
	}
	return keyPart(dv)
}

// coerceKey normalizes v and parses textual numbers, as returned by some
// drivers for untyped scans, into the kind of typ.
func coerceKey(v any, typ reflect.Type) any {
	v = keyPart(v)
	s, ok := v.(string)
	if !ok || typ == nil {
		return v
	}
	for typ.Kind() == reflect.Pointer {
		typ = typ.Elem()
	}
	switch typ.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return n
		}
	case reflect.Float32, reflect.Float64:
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return keyPart(f)
		}
	}
	return v
}

// compositeKey returns the map key for parts and false when any part is NULL.
func compositeKey(parts []any) (string, bool) {
	var b strings.Builder
	for i, part := range parts {
		if part == nil {
			return "", false
		}
		if i > 0 {
			b.WriteByte(0x1f)
		}
		fmt.Fprintf(&b, "%T:%v", part, part)
	}
	return b.String(), true
}

func fieldKey(fields []*schema.Field, strct reflect.Value) ([]any, string, bool) {
	parts := make([]any, len(fields))
	for i, f := range fields {
		parts[i] = keyPart(f.Value(strct).Interface())
	}
	key, ok := compositeKey(parts)
	return parts, key, ok
}
