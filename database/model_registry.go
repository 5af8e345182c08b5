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

package database

import (
	"context"
	"fmt"
	"os"
	"reflect"
	"sort"
	"sync"

	"github.com/uptrace/bun"
)

var defaultRegistry = newModelRegistry()

// SQLModel represents a bun model whose table can be created on startup.
// Instance returns a struct pointer; Priority orders creation (lower first),
// so referenced tables can be created before the tables pointing at them.
type SQLModel interface {
	Instance() interface{}
	Priority() int
}

// ModelRegistry stores SQL models and exposes them in a deterministic order.
type ModelRegistry interface {
	Register(model SQLModel)
	Models() []SQLModel
}

type modelRegistry struct {
	models []SQLModel
	mutex  sync.RWMutex
}

func newModelRegistry() ModelRegistry {
	return &modelRegistry{
		models: make([]SQLModel, 0),
	}
}

// NewModelRegistry returns an empty registry, independent of the default one.
func NewModelRegistry() ModelRegistry {
	return newModelRegistry()
}

func (r *modelRegistry) Register(model SQLModel) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	for _, m := range r.models {
		if reflect.TypeOf(m.Instance()) == reflect.TypeOf(model.Instance()) {
			return
		}
	}
	r.models = append(r.models, model)
}

func (r *modelRegistry) Models() []SQLModel {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	result := make([]SQLModel, len(r.models))
	copy(result, r.models)
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].Priority() < result[j].Priority()
	})
	return result
}

type ModelAdapter struct {
	instance interface{}
	priority int
}

// NewModelAdapter wraps a struct instance and priority into an SQLModel.
func NewModelAdapter(instance interface{}, priority int) SQLModel {
	return &ModelAdapter{
		instance: instance,
		priority: priority,
	}
}

// Instance returns the underlying struct pointer.
func (a *ModelAdapter) Instance() interface{} {
	return a.instance
}

// Priority returns the model's ordering value; lower values run earlier.
func (a *ModelAdapter) Priority() int {
	return a.priority
}

// GetRegisteredModels returns all models registered in the default registry
// sorted by ascending priority.
func GetRegisteredModels() []SQLModel {
	return defaultRegistry.Models()
}

// RegisteredModel adds a model to the default registry.
func RegisteredModel(model SQLModel) {
	defaultRegistry.Register(model)
}

func RegisteredModelInstances() []interface{} {
	return modelInstances(GetRegisteredModels())
}

func modelInstances(models []SQLModel) []interface{} {
	instances := make([]interface{}, len(models))
	for i, model := range models {
		instances[i] = model.Instance()
	}
	return instances
}

// CreateTables creates the table of every model in the default registry.
func CreateTables(ctx context.Context, db bun.IDB, logger Logger) error {
	return CreateTablesFor(ctx, db, logger, GetRegisteredModels()...)
}

// CreateTablesFor creates the tables of the given models, skipping existing ones.
func CreateTablesFor(ctx context.Context, db bun.IDB, logger Logger, models ...SQLModel) error {
	if _, ok := os.LookupEnv("BUNDAO_TRACE_DDL"); !ok {
		SilenceQueryTrace(true)
		defer SilenceQueryTrace(false)
	}
	for _, model := range models {
		instance := model.Instance()
		if _, err := db.NewCreateTable().Model(instance).IfNotExists().Exec(ctx); err != nil {
			return fmt.Errorf("failed to create table for %T: %w", instance, err)
		}
		if logger != nil {
			logger.Debug("Table ready", "model", fmt.Sprintf("%T", instance), "priority", model.Priority())
		}
	}
	return nil
}
