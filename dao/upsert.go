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
	"fmt"
	"reflect"
	"slices"
	"strings"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/feature"
	"github.com/uptrace/bun/schema"
)

func (d *daoImpl[T]) Upsert(ctx context.Context, entity *T, uniqueProps ...string) error {
	if entity == nil {
		return fmt.Errorf("dao: upsert nil entity")
	}
	return d.BatchUpsert(ctx, []*T{entity}, uniqueProps...)
}

func (d *daoImpl[T]) BatchUpsert(ctx context.Context, entities []*T, uniqueProps ...string) error {
	entities = compact(entities)
	if len(entities) == 0 {
		return nil
	}
	keys, err := d.conflictKeys(uniqueProps)
	if err != nil {
		return err
	}
	fields := make([]string, 0, len(d.table.DataFields))
	for _, f := range d.table.DataFields {
		if !slices.Contains(keys, f) {
			fields = append(fields, f.Name)
		}
	}

	for chunk := range slices.Chunk(entities, d.opts.BatchSize) {
		if err := d.multipleUpsert(ctx, chunk, fields, keys); err != nil {
			return err
		}
	}
	return nil
}

func (d *daoImpl[T]) conflictKeys(uniqueProps []string) ([]*schema.Field, error) {
	if len(uniqueProps) == 0 {
		if len(d.table.PKs) == 0 {
			return nil, ErrNoIDColumn
		}
		return d.table.PKs, nil
	}
	keys := make([]*schema.Field, 0, len(uniqueProps))
	for _, p := range uniqueProps {
		f := lookupField(d.table, p)
		if f == nil {
			return nil, fmt.Errorf("dao: %s has no property %q", d.table.Name, p)
		}
		keys = append(keys, f)
	}
	return keys, nil
}

func (d *daoImpl[T]) multipleUpsert(ctx context.Context, entities []*T, fields []string, keys []*schema.Field) error {
	insertQuery := d.idb.NewInsert()
	switch {
	case d.root.HasFeature(feature.InsertOnConflict):
		return d.upsertOnConflict(ctx, insertQuery, entities, fields, keys)
	case d.root.HasFeature(feature.InsertOnDuplicateKey):
		return d.upsertOnDuplicateKey(ctx, insertQuery, entities, fields, keys)
	default:
		return d.upsertFallback(ctx, entities, fields, keys)
	}
}

func (d *daoImpl[T]) upsertOnDuplicateKey(ctx context.Context, insertQuery *bun.InsertQuery, entities []*T, fields []string, keys []*schema.Field) error {
	insertQuery = insertQuery.Model(&entities).On("DUPLICATE KEY UPDATE")
	if len(fields) == 0 {
		// a no-op assignment keeps the existing row
		insertQuery = insertQuery.Set("? = ?", bun.Ident(keys[0].Name), bun.Ident(keys[0].Name))
	}
	for _, field := range fields {
		insertQuery = insertQuery.Set("? = VALUES(?)", bun.Ident(field), bun.Ident(field))
	}
	_, err := insertQuery.Exec(ctx)
	return err
}

func (d *daoImpl[T]) upsertOnConflict(ctx context.Context, insertQuery *bun.InsertQuery, entities []*T, fields []string, keys []*schema.Field) error {
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(keys)), ", ")
	keyArgs := make([]any, 0, len(keys))
	for _, k := range keys {
		keyArgs = append(keyArgs, bun.Ident(k.Name))
	}
	insertQuery = insertQuery.Model(&entities)
	if len(fields) == 0 {
		insertQuery = insertQuery.On("CONFLICT ("+placeholders+") DO NOTHING", keyArgs...)
	} else {
		insertQuery = insertQuery.On("CONFLICT ("+placeholders+") DO UPDATE", keyArgs...)
		for _, field := range fields {
			insertQuery = insertQuery.Set("? = EXCLUDED.?", bun.Ident(field), bun.Ident(field))
		}
	}
	_, err := insertQuery.Exec(ctx)
	return err
}

// upsertFallback tries an insert first and updates by the conflict keys when it fails.
func (d *daoImpl[T]) upsertFallback(ctx context.Context, entities []*T, fields []string, keys []*schema.Field) error {
	for _, entity := range entities {
		_, err := d.idb.NewInsert().Model(entity).Exec(ctx)
		if err == nil {
			continue
		}
		d.opts.Logger.Debug("upsert insert failed, falling back to update", "table", d.table.Name, "error", err)

		if len(fields) == 0 {
			continue
		}
		updateQuery := d.idb.NewUpdate().Model(entity).Column(fields...)
		strct := reflect.ValueOf(entity).Elem()
		for _, k := range keys {
			updateQuery = updateQuery.Where("? = ?", bun.Ident(k.Name), k.Value(strct).Interface())
		}
		if _, updateErr := updateQuery.Exec(ctx); updateErr != nil {
			return fmt.Errorf("upsert failed for entity: insert error: %v, update error: %w", err, updateErr)
		}
	}
	return nil
}
