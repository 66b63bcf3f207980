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

// Package store defines the Schema Store contract (spec.md §4.D): a
// versioned repository of inferred schemas with atomic multi-document
// update semantics and a lazy per-table loader. Concrete backends live in
// internal/store/docstore (remote document store) and
// internal/store/filestore (local file); this package only holds the
// shared interface and DTOs common to both.
package store

import (
	"context"

	"github.com/docbridge/docbridge/internal/schema"
)

// Store is the Schema Store contract of spec.md §4.D.
type Store interface {
	// Read returns the latest version of name, if any.
	Read(ctx context.Context, name string) (*schema.DatabaseSchemaMetadata, bool, error)
	// ReadVersion returns a specific pinned version of name.
	ReadVersion(ctx context.Context, name string, version int) (*schema.DatabaseSchemaMetadata, bool, error)
	// List returns every schema, ordered by (name, version).
	List(ctx context.Context) ([]*schema.DatabaseSchemaMetadata, error)
	// ReadTable returns one table of one schema version.
	ReadTable(ctx context.Context, name string, version int, tableID string) (*schema.TableSchema, bool, error)
	// ReadTables returns the requested tables of one schema version, in
	// the order requested.
	ReadTables(ctx context.Context, name string, version int, tableIDs []string) ([]*schema.TableSchema, error)
	// Write inserts a brand-new (name, version) pair. It fails if the pair
	// already exists.
	Write(ctx context.Context, meta SchemaMeta, tables []*schema.TableSchema) (*schema.DatabaseSchemaMetadata, error)
	// Update diffs tables against the latest version's references and
	// inserts a new schema row at version = latest+1. Unchanged tables are
	// retained, superseded ones deleted, new ones inserted.
	Update(ctx context.Context, meta SchemaMeta, tables []*schema.TableSchema) (*schema.DatabaseSchemaMetadata, error)
	// Remove deletes every version of name and its orphaned table rows.
	Remove(ctx context.Context, name string) error
	// RemoveVersion deletes one version of name and any table rows it
	// alone referenced.
	RemoveVersion(ctx context.Context, name string, version int) error
}

// SchemaMeta is the caller-supplied half of a database schema: everything
// except the version number and table references, which the Store
// computes (version) or derives from the supplied tables (references).
type SchemaMeta struct {
	SchemaName string
	SQLName    string
}
