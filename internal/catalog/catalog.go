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

// Package catalog is the Catalog Adapter (spec.md §4.E): it is the only
// place the Planner Driver sees the inferred schema, and it must not leak
// document-model concepts (bson types, field paths, array nesting) across
// its boundary — everything crossing it is already relational.
package catalog

import (
	"context"
	"fmt"

	"github.com/docbridge/docbridge/internal/reltype"
	"github.com/docbridge/docbridge/internal/schema"
)

// ColumnInfo is one relational column as the planner sees it: a name, a
// nullable relational type, and whether it participates in the table's
// primary key.
type ColumnInfo struct {
	Name            string
	Type            reltype.Relational
	Nullable        bool
	PrimaryKeyIndex int // 0 when not part of the PK
}

// TableInfo is one relational table as the planner sees it.
type TableInfo struct {
	Name           string
	CollectionName string
	Columns        []ColumnInfo
	table          *schema.TableSchema // retained for the pipeline lowerer, never exposed past this package's own callers
}

// Column looks up a column by name.
func (t *TableInfo) Column(name string) (ColumnInfo, bool) {
	for _, c := range t.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return ColumnInfo{}, false
}

// Underlying exposes the backing TableSchema to same-module callers that
// need it (the pipeline lowerer resolving array-index metadata); it is
// intentionally not part of a narrower public interface so that ordinary
// planning code has no reason to reach for it.
func (t *TableInfo) Underlying() *schema.TableSchema { return t.table }

// Catalog is one schema version's worth of tables, addressable by name.
type Catalog struct {
	SchemaName    string
	SchemaVersion int
	tables        map[string]*TableInfo
	order         []string
}

// Load builds a Catalog from a database schema snapshot, pulling every
// referenced table through the snapshot's lazy loader exactly once.
func Load(ctx context.Context, meta *schema.DatabaseSchemaMetadata) (*Catalog, error) {
	tables, err := meta.Tables()
	if err != nil {
		return nil, fmt.Errorf("loading catalog for schema %s/%d: %w", meta.SchemaName, meta.SchemaVersion, err)
	}
	c := &Catalog{
		SchemaName:    meta.SchemaName,
		SchemaVersion: meta.SchemaVersion,
		tables:        make(map[string]*TableInfo, len(tables)),
	}
	for _, t := range tables {
		c.addTable(t)
	}
	return c, nil
}

func (c *Catalog) addTable(t *schema.TableSchema) {
	cols := make([]ColumnInfo, 0, len(t.Columns()))
	for _, col := range t.Columns() {
		cols = append(cols, ColumnInfo{
			Name:            col.SQLName,
			Type:            col.SQLType,
			Nullable:        !col.IsPrimaryKey,
			PrimaryKeyIndex: col.PrimaryKeyIndex,
		})
	}
	info := &TableInfo{Name: t.SQLName, CollectionName: t.CollectionName, Columns: cols, table: t}
	c.tables[t.SQLName] = info
	c.order = append(c.order, t.SQLName)
}

// Table looks up a table by its SQL name.
func (c *Catalog) Table(name string) (*TableInfo, bool) {
	t, ok := c.tables[name]
	return t, ok
}

// Tables returns every table, in stable insertion order.
func (c *Catalog) Tables() []*TableInfo {
	out := make([]*TableInfo, 0, len(c.order))
	for _, name := range c.order {
		out = append(out, c.tables[name])
	}
	return out
}

// SameBaseCollection reports whether a and b are virtual/base tables of
// the same source collection — the condition spec.md §4.F requires for a
// join to be push-down-able to a $lookup on the shared PK rather than left
// residual.
func SameBaseCollection(a, b *TableInfo) bool {
	return a.CollectionName != "" && a.CollectionName == b.CollectionName
}
