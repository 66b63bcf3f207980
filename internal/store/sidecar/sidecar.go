// Copyright 2026 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package sidecar holds the never-invalidated cache of tables the Schema
// Store failed to persist (spec.md §5/§9): a session that writes a table
// the store could not durably save must still observe it on its next
// read. The cache is populated only by
// a failed store write/update and is consulted by every per-table read
// (ReadTable/ReadTables) before it reaches the backend; schema-level reads
// (Read, ReadVersion, List) do not consult it.
package sidecar

import (
	"sync"

	"github.com/docbridge/docbridge/internal/schema"
)

// key identifies one table row within one (schemaName, schemaVersion).
type key struct {
	schemaName    string
	schemaVersion int
	tableID       string
}

// Cache is a lock-free-reads map (backed by sync.Map, which is tuned for
// exactly this read-mostly, write-rare shape). It is never
// invalidated except on process exit — see spec.md §9 ("document
// explicitly that this cache is never invalidated").
type Cache struct {
	tables sync.Map // key -> *schema.TableSchema
}

// New constructs an empty cache. Each call returns an independent Cache;
// every Schema Store backend holds its own, so tables stashed by one Store
// are not visible through another.
func New() *Cache {
	return &Cache{}
}

// Put records a table that failed to persist. Called only by a Store
// implementation after a failed write/update for that table.
func (c *Cache) Put(schemaName string, schemaVersion int, table *schema.TableSchema) {
	c.tables.Store(key{schemaName, schemaVersion, table.ID}, table)
}

// Get returns a previously stashed table, if the sidecar holds one for
// this (schemaName, schemaVersion, tableID).
func (c *Cache) Get(schemaName string, schemaVersion int, tableID string) (*schema.TableSchema, bool) {
	v, ok := c.tables.Load(key{schemaName, schemaVersion, tableID})
	if !ok {
		return nil, false
	}
	return v.(*schema.TableSchema), true
}

// Len reports how many tables are currently stashed; exposed for tests and
// diagnostics only.
func (c *Cache) Len() int {
	n := 0
	c.tables.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}
