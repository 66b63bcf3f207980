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

// Package filestore is the local-file-backed Schema Store variant
// (spec.md §4.D "File-backed variant", §6.3, §9 "Schema-file charset
// pitfalls"): one JSON file per (database, schemaName) holding
// {schema, tableSchemas}.
package filestore

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/docbridge/docbridge/internal/reltype"
	"github.com/docbridge/docbridge/internal/schema"
	"github.com/docbridge/docbridge/internal/store"
	"github.com/docbridge/docbridge/internal/store/sidecar"
	"github.com/docbridge/docbridge/internal/util"
)

// columnDoc mirrors the spec.md §6.2/§6.3 Column shape, JSON rather than
// BSON tagged.
type columnDoc struct {
	FieldPath            string `json:"fieldPath"`
	SQLName              string `json:"sqlName"`
	SQLType              string `json:"sqlType"`
	DBType               string `json:"dbType"`
	IsIndex              bool   `json:"isIndex"`
	IsPrimaryKey         bool   `json:"isPrimaryKey"`
	PrimaryKeyIndex      int    `json:"primaryKeyIndex,omitempty"`
	ForeignKeyTableName  string `json:"foreignKeyTableName,omitempty"`
	ForeignKeyColumnName string `json:"foreignKeyColumnName,omitempty"`
	ForeignKeyIndex      int    `json:"foreignKeyIndex,omitempty"`
	ArrayIndexLevel      *int   `json:"arrayIndexLevel,omitempty"`
	IsGenerated          bool   `json:"isGenerated,omitempty"`
}

type tableDoc struct {
	ID             string      `json:"id"`
	SQLName        string      `json:"sqlName"`
	CollectionName string      `json:"collectionName"`
	ModifyDate     string      `json:"modifyDate"` // ISO-8601, colon-separated zone
	UUID           string      `json:"uuid"`
	Columns        []columnDoc `json:"columns"`
}

type schemaDoc struct {
	SchemaName      string   `json:"schemaName"`
	SchemaVersion   int      `json:"schemaVersion"`
	SQLName         string   `json:"sqlName"`
	ModifyDate      string   `json:"modifyDate"`
	TableReferences []string `json:"tableReferences"`
}

type fileDoc struct {
	Schema       schemaDoc  `json:"schema"`
	TableSchemas []tableDoc `json:"tableSchemas"`
}

const isoLayout = "2006-01-02T15:04:05-07:00"

// escapeFileChars rewrites `/ ? % * : | " < > \` to "_" (spec.md §4.D,
// §9): this is intentionally lossy. Two distinct (database, schemaName)
// pairs that collide after substitution will collide on disk.
func escapeFileChars(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '?', '%', '*', ':', '|', '"', '<', '>', '\\':
			return '_'
		}
		return r
	}, s)
}

// Store is the local-file-backed Schema Store. It ignores unknown fields
// on read and keeps only the latest version on disk per (database,
// schemaName) file — spec.md's file layout has no notion of multiple
// historical versions coexisting in one file, so Update overwrites in
// place after computing the next version number from the file already on
// disk.
type Store struct {
	dir     string
	dbName  string
	sidecar *sidecar.Cache
}

var _ store.Store = (*Store)(nil)

// New constructs a Store rooted at dir, one file per schemaName within
// dbName.
func New(dir, dbName string) *Store {
	return &Store{dir: dir, dbName: dbName, sidecar: sidecar.New()}
}

func (s *Store) path(schemaName string) string {
	name := escapeFileChars(s.dbName) + "." + escapeFileChars(schemaName) + ".json"
	return filepath.Join(s.dir, name)
}

func (s *Store) load(schemaName string) (*fileDoc, bool, error) {
	b, err := os.ReadFile(s.path(schemaName))
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, util.NewKindError(util.KindInternal, "reading schema file", err)
	}
	var doc fileDoc
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, false, util.NewKindError(util.KindInternal, "decoding schema file", err)
	}
	return &doc, true, nil
}

func (s *Store) save(schemaName string, doc *fileDoc) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return util.NewKindError(util.KindInternal, "creating schema store directory", err)
	}
	b, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return util.NewKindError(util.KindInternal, "encoding schema file", err)
	}
	return os.WriteFile(s.path(schemaName), b, 0o644)
}

func toTableDoc(t *schema.TableSchema) tableDoc {
	cols := t.Columns()
	out := make([]columnDoc, 0, len(cols))
	for _, c := range cols {
		var lvl *int
		if c.ArrayIndexLevel != nil {
			v := *c.ArrayIndexLevel
			lvl = &v
		}
		out = append(out, columnDoc{
			FieldPath:            c.FieldPath,
			SQLName:              c.SQLName,
			SQLType:              strings.ToLower(string(c.SQLType)),
			DBType:               strings.ToLower(string(c.DBType)),
			IsIndex:              c.IsIndex,
			IsPrimaryKey:         c.IsPrimaryKey,
			PrimaryKeyIndex:      c.PrimaryKeyIndex,
			ForeignKeyTableName:  c.ForeignKeyTableName,
			ForeignKeyColumnName: c.ForeignKeyColumnName,
			ForeignKeyIndex:      c.ForeignKeyIndex,
			ArrayIndexLevel:      lvl,
			IsGenerated:          c.IsGenerated,
		})
	}
	return tableDoc{
		ID:             t.ID,
		SQLName:        t.SQLName,
		CollectionName: t.CollectionName,
		ModifyDate:     t.ModifyDate.Format(isoLayout),
		UUID:           t.UUID,
		Columns:        out,
	}
}

func fromTableDoc(d tableDoc) *schema.TableSchema {
	t := schema.NewTableSchema(d.ID, d.SQLName, d.CollectionName)
	t.UUID = d.UUID
	if mt, err := time.Parse(isoLayout, d.ModifyDate); err == nil {
		t.ModifyDate = mt
	}
	for _, cd := range d.Columns {
		var lvl *int
		if cd.ArrayIndexLevel != nil {
			v := *cd.ArrayIndexLevel
			lvl = &v
		}
		_ = t.UpsertColumn(&schema.Column{
			FieldPath:            cd.FieldPath,
			SQLName:              cd.SQLName,
			SQLType:              reltype.Relational(strings.ToUpper(cd.SQLType)),
			DBType:               reltype.Doc(cd.DBType),
			IsIndex:              cd.IsIndex,
			IsPrimaryKey:         cd.IsPrimaryKey,
			PrimaryKeyIndex:      cd.PrimaryKeyIndex,
			ForeignKeyTableName:  cd.ForeignKeyTableName,
			ForeignKeyColumnName: cd.ForeignKeyColumnName,
			ForeignKeyIndex:      cd.ForeignKeyIndex,
			ArrayIndexLevel:      lvl,
			IsGenerated:          cd.IsGenerated,
		})
	}
	return t
}

func (s *Store) toMetadata(d schemaDoc) *schema.DatabaseSchemaMetadata {
	mt, _ := time.Parse(isoLayout, d.ModifyDate)
	return schema.NewDatabaseSchemaMetadata(d.SchemaName, d.SchemaVersion, d.SQLName, mt, d.TableReferences, &loader{store: s, schemaName: d.SchemaName})
}

func (s *Store) Read(ctx context.Context, name string) (*schema.DatabaseSchemaMetadata, bool, error) {
	doc, ok, err := s.load(name)
	if err != nil || !ok {
		return nil, ok, err
	}
	return s.toMetadata(doc.Schema), true, nil
}

func (s *Store) ReadVersion(ctx context.Context, name string, version int) (*schema.DatabaseSchemaMetadata, bool, error) {
	doc, ok, err := s.load(name)
	if err != nil || !ok || doc.Schema.SchemaVersion != version {
		return nil, false, err
	}
	return s.toMetadata(doc.Schema), true, nil
}

func (s *Store) List(ctx context.Context) ([]*schema.DatabaseSchemaMetadata, error) {
	entries, err := os.ReadDir(s.dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, util.NewKindError(util.KindInternal, "listing schema store directory", err)
	}
	var out []*schema.DatabaseSchemaMetadata
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		b, err := os.ReadFile(filepath.Join(s.dir, e.Name()))
		if err != nil {
			continue
		}
		var doc fileDoc
		if err := json.Unmarshal(b, &doc); err != nil {
			continue
		}
		out = append(out, s.toMetadata(doc.Schema))
	}
	return out, nil
}

func (s *Store) ReadTable(ctx context.Context, name string, version int, tableID string) (*schema.TableSchema, bool, error) {
	if t, ok := s.sidecar.Get(name, version, tableID); ok {
		return t, true, nil
	}
	doc, ok, err := s.load(name)
	if err != nil || !ok {
		return nil, false, err
	}
	for _, td := range doc.TableSchemas {
		if td.ID == tableID {
			return fromTableDoc(td), true, nil
		}
	}
	return nil, false, nil
}

func (s *Store) ReadTables(ctx context.Context, name string, version int, tableIDs []string) ([]*schema.TableSchema, error) {
	out := make([]*schema.TableSchema, 0, len(tableIDs))
	for _, id := range tableIDs {
		t, ok, err := s.ReadTable(ctx, name, version, id)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, util.NewKindError(util.KindSchemaNotFound, "table "+id+" not found", nil)
		}
		out = append(out, t)
	}
	return out, nil
}

func (s *Store) Write(ctx context.Context, meta store.SchemaMeta, tables []*schema.TableSchema) (*schema.DatabaseSchemaMetadata, error) {
	if _, ok, _ := s.load(meta.SchemaName); ok {
		return nil, util.NewKindError(util.KindSchemaWriteFailed, "schema "+meta.SchemaName+" already exists", nil)
	}
	return s.writeVersion(meta, tables, 1)
}

func (s *Store) Update(ctx context.Context, meta store.SchemaMeta, tables []*schema.TableSchema) (*schema.DatabaseSchemaMetadata, error) {
	version := 1
	if doc, ok, err := s.load(meta.SchemaName); err != nil {
		return nil, err
	} else if ok {
		version = doc.Schema.SchemaVersion + 1
	}
	return s.writeVersion(meta, tables, version)
}

func (s *Store) writeVersion(meta store.SchemaMeta, tables []*schema.TableSchema, version int) (*schema.DatabaseSchemaMetadata, error) {
	refs := make([]string, 0, len(tables))
	tableDocs := make([]tableDoc, 0, len(tables))
	for _, t := range tables {
		refs = append(refs, t.ID)
		tableDocs = append(tableDocs, toTableDoc(t))
	}
	now := time.Now().Format(isoLayout)
	doc := &fileDoc{
		Schema: schemaDoc{
			SchemaName:      meta.SchemaName,
			SchemaVersion:   version,
			SQLName:         meta.SQLName,
			ModifyDate:      now,
			TableReferences: refs,
		},
		TableSchemas: tableDocs,
	}
	if err := s.save(meta.SchemaName, doc); err != nil {
		for _, t := range tables {
			s.sidecar.Put(meta.SchemaName, version, t)
		}
		return nil, util.NewKindError(util.KindSchemaWriteFailed, "failed to persist schema file", err)
	}
	return s.toMetadata(doc.Schema), nil
}

func (s *Store) Remove(ctx context.Context, name string) error {
	err := os.Remove(s.path(name))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

func (s *Store) RemoveVersion(ctx context.Context, name string, version int) error {
	doc, ok, err := s.load(name)
	if err != nil || !ok || doc.Schema.SchemaVersion != version {
		return nil
	}
	return s.Remove(ctx, name)
}

type loader struct {
	store      *Store
	schemaName string
}

func (l *loader) Get(tableID string) (*schema.TableSchema, error) {
	t, ok, err := l.store.ReadTable(context.Background(), l.schemaName, 0, tableID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, util.NewKindError(util.KindSchemaNotFound, "table "+tableID+" not found", nil)
	}
	return t, nil
}

func (l *loader) GetAll(tableIDs []string) ([]*schema.TableSchema, error) {
	return l.store.ReadTables(context.Background(), l.schemaName, 0, tableIDs)
}
