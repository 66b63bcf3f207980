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

// Package schema holds the in-memory representation of an inferred
// relational schema: databases, tables, columns, keys, and versions. It
// provides accessors and structural validation (no equality comparison),
// but never performs I/O itself — persistence lives in internal/store.
package schema

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/docbridge/docbridge/internal/reltype"
)

// Column is one relational column projected from a document field, an
// embedded-document field, or a generated array index.
type Column struct {
	FieldPath             string
	SQLName               string
	SQLType               reltype.Relational
	DBType                reltype.Doc
	IsIndex               bool
	IsPrimaryKey          bool
	PrimaryKeyIndex       int // 1-based; 0 = not a PK column
	ForeignKeyTableName   string
	ForeignKeyColumnName  string
	ForeignKeyIndex       int
	ArrayIndexLevel       *int // nil for non-index columns
	IsGenerated           bool
	VirtualTableName      string // non-empty while still a placeholder for a complex field
}

// Clone returns a deep copy of c.
func (c *Column) Clone() *Column {
	cp := *c
	if c.ArrayIndexLevel != nil {
		lvl := *c.ArrayIndexLevel
		cp.ArrayIndexLevel = &lvl
	}
	return &cp
}

// IsGeneratedIndexColumn reports whether c satisfies the index-column
// invariant: isPrimaryKey && isGenerated && isIndex.
func (c *Column) IsGeneratedIndexColumn() bool {
	return c.IsPrimaryKey && c.IsGenerated && c.IsIndex
}

// TableSchema is a base or virtual relational table. Column order is
// stable: it is the order in which columns were first emitted, and
// readers must never reorder it.
type TableSchema struct {
	ID             string
	SQLName        string
	CollectionName string
	UUID           string
	ModifyDate     time.Time

	columns  []*Column
	colIndex map[string]int // sqlName -> index into columns
}

// NewTableSchema creates an empty table with the given identity.
func NewTableSchema(id, sqlName, collectionName string) *TableSchema {
	return &TableSchema{
		ID:             id,
		SQLName:        sqlName,
		CollectionName: collectionName,
		colIndex:       make(map[string]int),
	}
}

// Columns returns the ordered column slice. Callers must not mutate it;
// use UpsertColumn/RemoveColumn instead.
func (t *TableSchema) Columns() []*Column {
	return t.columns
}

// Column returns the column named name, if present.
func (t *TableSchema) Column(name string) (*Column, bool) {
	if t.colIndex == nil {
		return nil, false
	}
	i, ok := t.colIndex[name]
	if !ok {
		return nil, false
	}
	return t.columns[i], true
}

// UpsertColumn inserts col if t has no column with col.SQLName, preserving
// insertion order; otherwise it overwrites the existing column in place,
// preserving its position. It returns an error carrying both columns if an
// attempt is made to insert a *new* column whose name collides with an
// existing column of a structurally different field path (duplicate-key
// rejection, per the flat-arena import invariant).
func (t *TableSchema) UpsertColumn(col *Column) error {
	if t.colIndex == nil {
		t.colIndex = make(map[string]int)
	}
	if i, ok := t.colIndex[col.SQLName]; ok {
		existing := t.columns[i]
		if existing.FieldPath != col.FieldPath {
			return &DuplicateColumnError{Table: t.SQLName, Existing: existing, New: col}
		}
		t.columns[i] = col
		return nil
	}
	t.colIndex[col.SQLName] = len(t.columns)
	t.columns = append(t.columns, col)
	return nil
}

// RemoveColumn deletes the column named name, if present, preserving the
// relative order of the remaining columns and re-indexing colIndex.
func (t *TableSchema) RemoveColumn(name string) {
	i, ok := t.colIndex[name]
	if !ok {
		return
	}
	t.columns = append(t.columns[:i], t.columns[i+1:]...)
	delete(t.colIndex, name)
	for j := i; j < len(t.columns); j++ {
		t.colIndex[t.columns[j].SQLName] = j
	}
}

// tableSchemaJSON mirrors TableSchema's exported surface plus its
// otherwise-unexported ordered column slice, for the CLI's
// --export/--import round trip and test fixtures. The persisted-schema
// store backends (docstore, filestore) have their own wire-shaped
// encodings and do not use this type.
type tableSchemaJSON struct {
	ID             string    `json:"id"`
	SQLName        string    `json:"sqlName"`
	CollectionName string    `json:"collectionName"`
	UUID           string    `json:"uuid"`
	ModifyDate     time.Time `json:"modifyDate"`
	Columns        []*Column `json:"columns"`
}

// MarshalJSON encodes t's exported identity fields plus its ordered
// column slice.
func (t *TableSchema) MarshalJSON() ([]byte, error) {
	return json.Marshal(tableSchemaJSON{
		ID:             t.ID,
		SQLName:        t.SQLName,
		CollectionName: t.CollectionName,
		UUID:           t.UUID,
		ModifyDate:     t.ModifyDate,
		Columns:        t.columns,
	})
}

// UnmarshalJSON rebuilds t's colIndex from the decoded column slice so
// Column/UpsertColumn/RemoveColumn stay consistent after a round trip.
func (t *TableSchema) UnmarshalJSON(data []byte) error {
	var aux tableSchemaJSON
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	t.ID = aux.ID
	t.SQLName = aux.SQLName
	t.CollectionName = aux.CollectionName
	t.UUID = aux.UUID
	t.ModifyDate = aux.ModifyDate
	t.columns = nil
	t.colIndex = make(map[string]int, len(aux.Columns))
	for _, c := range aux.Columns {
		if err := t.UpsertColumn(c); err != nil {
			return err
		}
	}
	return nil
}

// PrimaryKeyColumns returns the table's PK columns in column order; it
// does not sort them by primaryKeyIndex.
func (t *TableSchema) PrimaryKeyColumns() []*Column {
	var pks []*Column
	for _, c := range t.columns {
		if c.IsPrimaryKey {
			pks = append(pks, c)
		}
	}
	return pks
}

// DuplicateColumnError is returned when a table import attempts to insert
// two distinct columns under the same SQL name.
type DuplicateColumnError struct {
	Table    string
	Existing *Column
	New      *Column
}

func (e *DuplicateColumnError) Error() string {
	return fmt.Sprintf("table %q: duplicate column name %q for distinct field paths %q and %q",
		e.Table, e.Existing.SQLName, e.Existing.FieldPath, e.New.FieldPath)
}

// TableLoader is injected into a DatabaseSchemaMetadata so that it can
// lazily materialize tables from whatever backs the Schema Store, without
// the planner ever reaching into the store directly (§4.C, §9).
type TableLoader interface {
	Get(tableID string) (*TableSchema, error)
	GetAll(tableIDs []string) ([]*TableSchema, error)
}

// DatabaseSchemaMetadata is an immutable snapshot of one (schemaName,
// schemaVersion) pair: the set of table ids it owns, plus a lazily
// materialized, injected table loader.
type DatabaseSchemaMetadata struct {
	SchemaName      string
	SchemaVersion   int
	SQLName         string
	ModifyDate      time.Time
	TableReferences []string // table ids, order-preserving

	loader TableLoader
	cache  map[string]*TableSchema // memoized loads within this value's lifetime
}

// NewDatabaseSchemaMetadata constructs a schema snapshot bound to loader.
// loader may be nil for a schema that is being built in memory (e.g. by
// the inference engine before it has been persisted).
func NewDatabaseSchemaMetadata(name string, version int, sqlName string, modifyDate time.Time, tableRefs []string, loader TableLoader) *DatabaseSchemaMetadata {
	return &DatabaseSchemaMetadata{
		SchemaName:      name,
		SchemaVersion:   version,
		SQLName:         sqlName,
		ModifyDate:      modifyDate,
		TableReferences: tableRefs,
		loader:          loader,
		cache:           make(map[string]*TableSchema),
	}
}

// Table loads a single table by id, paying only for that table.
func (d *DatabaseSchemaMetadata) Table(tableID string) (*TableSchema, error) {
	if t, ok := d.cache[tableID]; ok {
		return t, nil
	}
	if d.loader == nil {
		return nil, fmt.Errorf("schema %s/%d: no table loader bound", d.SchemaName, d.SchemaVersion)
	}
	t, err := d.loader.Get(tableID)
	if err != nil {
		return nil, err
	}
	d.cache[tableID] = t
	return t, nil
}

// Tables loads every table referenced by this schema version.
func (d *DatabaseSchemaMetadata) Tables() ([]*TableSchema, error) {
	return d.TablesFor(d.TableReferences)
}

// TablesFor loads exactly the tables named by tableIDs, delegating to the
// loader's batch form so the planner never pays for the whole catalog to
// resolve a handful of tables.
func (d *DatabaseSchemaMetadata) TablesFor(tableIDs []string) ([]*TableSchema, error) {
	missing := make([]string, 0, len(tableIDs))
	for _, id := range tableIDs {
		if _, ok := d.cache[id]; !ok {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		if d.loader == nil {
			return nil, fmt.Errorf("schema %s/%d: no table loader bound", d.SchemaName, d.SchemaVersion)
		}
		loaded, err := d.loader.GetAll(missing)
		if err != nil {
			return nil, err
		}
		for _, t := range loaded {
			d.cache[t.ID] = t
		}
	}
	out := make([]*TableSchema, 0, len(tableIDs))
	for _, id := range tableIDs {
		t, ok := d.cache[id]
		if !ok {
			return nil, fmt.Errorf("schema %s/%d: table %q not found", d.SchemaName, d.SchemaVersion, id)
		}
		out = append(out, t)
	}
	return out, nil
}
