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

// Package docstore is the remote-document-store-backed Schema Store
// (spec.md §4.D), keeping two collections — _sqlSchemas and
// _sqlTableSchemas — exactly as spec.md §6.2 lays out. It is constructed
// with New(ctx, db, tracer, opts...) and is not registered in the sources
// registry: the Schema
// Store is an internal collaborator, not a pluggable tool source.
package docstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/docbridge/docbridge/internal/reltype"
	"github.com/docbridge/docbridge/internal/schema"
	"github.com/docbridge/docbridge/internal/store"
	"github.com/docbridge/docbridge/internal/store/sidecar"
	"github.com/docbridge/docbridge/internal/util"
)

const (
	schemasCollection = "_sqlSchemas"
	tablesCollection  = "_sqlTableSchemas"
)

// schemaRow mirrors the spec.md §6.2 _sqlSchemas row.
type schemaRow struct {
	ID              bson.ObjectID `bson:"_id,omitempty"`
	SchemaName      string        `bson:"schemaName"`
	SchemaVersion   int           `bson:"schemaVersion"`
	SQLName         string        `bson:"sqlName"`
	ModifyDate      time.Time     `bson:"modifyDate"`
	TableReferences []string      `bson:"tableReferences"`
}

// columnRow mirrors the spec.md §6.2 Column shape.
type columnRow struct {
	FieldPath            string `bson:"fieldPath"`
	SQLName              string `bson:"sqlName"`
	SQLType              string `bson:"sqlType"`
	DBType               string `bson:"dbType"`
	IsIndex              bool   `bson:"isIndex"`
	IsPrimaryKey         bool   `bson:"isPrimaryKey"`
	PrimaryKeyIndex      int    `bson:"primaryKeyIndex,omitempty"`
	ForeignKeyTableName  string `bson:"foreignKeyTableName,omitempty"`
	ForeignKeyColumnName string `bson:"foreignKeyColumnName,omitempty"`
	ForeignKeyIndex      int    `bson:"foreignKeyIndex,omitempty"`
	ArrayIndexLevel      *int   `bson:"arrayIndexLevel,omitempty"`
	IsGenerated          bool   `bson:"isGenerated,omitempty"`
}

// tableRow mirrors the spec.md §6.2 _sqlTableSchemas row.
type tableRow struct {
	ID             string      `bson:"_id"`
	SQLName        string      `bson:"sqlName"`
	CollectionName string      `bson:"collectionName"`
	ModifyDate     time.Time   `bson:"modifyDate"`
	UUID           string      `bson:"uuid"`
	Columns        []columnRow `bson:"columns"`
}

func toColumnRow(c *schema.Column) columnRow {
	var lvl *int
	if c.ArrayIndexLevel != nil {
		v := *c.ArrayIndexLevel
		lvl = &v
	}
	return columnRow{
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
	}
}

func fromColumnRow(r columnRow) *schema.Column {
	var lvl *int
	if r.ArrayIndexLevel != nil {
		v := *r.ArrayIndexLevel
		lvl = &v
	}
	return &schema.Column{
		FieldPath:            r.FieldPath,
		SQLName:              r.SQLName,
		SQLType:              reltype.Relational(strings.ToUpper(r.SQLType)),
		DBType:               reltype.Doc(r.DBType),
		IsIndex:              r.IsIndex,
		IsPrimaryKey:         r.IsPrimaryKey,
		PrimaryKeyIndex:      r.PrimaryKeyIndex,
		ForeignKeyTableName:  r.ForeignKeyTableName,
		ForeignKeyColumnName: r.ForeignKeyColumnName,
		ForeignKeyIndex:      r.ForeignKeyIndex,
		ArrayIndexLevel:      lvl,
		IsGenerated:          r.IsGenerated,
	}
}

func toTableRow(t *schema.TableSchema) tableRow {
	cols := t.Columns()
	rows := make([]columnRow, 0, len(cols))
	for _, c := range cols {
		rows = append(rows, toColumnRow(c))
	}
	return tableRow{
		ID:             t.ID,
		SQLName:        t.SQLName,
		CollectionName: t.CollectionName,
		ModifyDate:     t.ModifyDate,
		UUID:           t.UUID,
		Columns:        rows,
	}
}

func fromTableRow(r tableRow) *schema.TableSchema {
	t := schema.NewTableSchema(r.ID, r.SQLName, r.CollectionName)
	t.UUID = r.UUID
	t.ModifyDate = r.ModifyDate
	for _, cr := range r.Columns {
		_ = t.UpsertColumn(fromColumnRow(cr))
	}
	return t
}

// Store is the remote-document-store-backed Schema Store.
type Store struct {
	db       *mongo.Database
	tracer   trace.Tracer
	sidecar  *sidecar.Cache
	txnCap   bool // capability probe result: multi-document transactions supported
	backoffs backoff.BackOff
}

var _ store.Store = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithSidecar overrides the sidecar cache (defaults to a fresh one); the
// CLI also passes a fresh Cache of its own.
func WithSidecar(c *sidecar.Cache) Option {
	return func(s *Store) { s.sidecar = c }
}

// New constructs a Store over db, probing for multi-document transaction
// support (spec.md §4.D: "server version ≥ 4 AND a replica-set identity is
// present").
func New(ctx context.Context, db *mongo.Database, tracer trace.Tracer, opts ...Option) (*Store, error) {
	s := &Store{db: db, tracer: tracer, sidecar: sidecar.New()}
	for _, opt := range opts {
		opt(s)
	}
	s.txnCap = probeTransactions(ctx, db)
	if err := ensureCollections(ctx, db); err != nil {
		return nil, err
	}
	return s, nil
}

func probeTransactions(ctx context.Context, db *mongo.Database) bool {
	var result bson.M
	if err := db.RunCommand(ctx, bson.D{{Key: "hello", Value: 1}}).Decode(&result); err != nil {
		return false
	}
	_, hasSetName := result["setName"]
	version, _ := result["maxWireVersion"].(int32)
	return hasSetName && version >= 7 // wire version 7 ≈ server 4.0
}

// ensureCollections creates both backing collections, tolerating
// concurrent creators (spec.md §4.D: "the already exists error is
// swallowed").
func ensureCollections(ctx context.Context, db *mongo.Database) error {
	for _, name := range []string{schemasCollection, tablesCollection} {
		if err := db.CreateCollection(ctx, name); err != nil {
			var cmdErr mongo.CommandError
			if errors.As(err, &cmdErr) && cmdErr.Name == "NamespaceExists" {
				continue
			}
			if strings.Contains(err.Error(), "already exists") {
				continue
			}
			return translateAuthErr(err)
		}
	}
	return nil
}

// translateAuthErr maps a storage error denoting authorization failure
// into the distinguished SchemaSecurity kind (spec.md §4.D "Authorization").
func translateAuthErr(err error) error {
	if err == nil {
		return nil
	}
	var cmdErr mongo.CommandError
	isAuth := strings.Contains(strings.ToLower(err.Error()), "not authorized") ||
		strings.Contains(strings.ToLower(err.Error()), "unauthorized") ||
		(errors.As(err, &cmdErr) && cmdErr.Code == 13)
	if isAuth {
		return util.NewKindError(util.KindSchemaSecurity, "schema store operation not authorized", err)
	}
	return err
}

func withRetry(ctx context.Context, op func() error) error {
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		err := op()
		if err == nil {
			return struct{}{}, nil
		}
		translated := translateRetryable(err)
		if !util.Retryable(translated) {
			return struct{}{}, backoff.Permanent(translated)
		}
		return struct{}{}, translated
	}, backoff.WithMaxTries(5))
	return err
}

func translateRetryable(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return util.NewKindError(util.KindTimeout, "schema store operation timed out", err)
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "connection") || strings.Contains(msg, "socket") || strings.Contains(msg, "eof") {
		return util.NewKindError(util.KindTransient, "schema store transient failure", err)
	}
	return err
}

func (s *Store) Read(ctx context.Context, name string) (*schema.DatabaseSchemaMetadata, bool, error) {
	return s.readLatest(ctx, name)
}

func (s *Store) readLatest(ctx context.Context, name string) (*schema.DatabaseSchemaMetadata, bool, error) {
	opts := options.FindOne().SetSort(bson.D{{Key: "schemaVersion", Value: -1}})
	var row schemaRow
	err := withRetry(ctx, func() error {
		return s.db.Collection(schemasCollection).FindOne(ctx, bson.D{{Key: "schemaName", Value: name}}, opts).Decode(&row)
	})
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, translateAuthErr(err)
	}
	return s.toMetadata(row), true, nil
}

func (s *Store) ReadVersion(ctx context.Context, name string, version int) (*schema.DatabaseSchemaMetadata, bool, error) {
	var row schemaRow
	err := withRetry(ctx, func() error {
		return s.db.Collection(schemasCollection).FindOne(ctx, bson.D{
			{Key: "schemaName", Value: name}, {Key: "schemaVersion", Value: version},
		}).Decode(&row)
	})
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, translateAuthErr(err)
	}
	return s.toMetadata(row), true, nil
}

func (s *Store) List(ctx context.Context) ([]*schema.DatabaseSchemaMetadata, error) {
	opts := options.Find().SetSort(bson.D{{Key: "schemaName", Value: 1}, {Key: "schemaVersion", Value: 1}})
	cur, err := s.db.Collection(schemasCollection).Find(ctx, bson.D{}, opts)
	if err != nil {
		return nil, translateAuthErr(err)
	}
	defer cur.Close(ctx)
	var out []*schema.DatabaseSchemaMetadata
	for cur.Next(ctx) {
		var row schemaRow
		if err := cur.Decode(&row); err != nil {
			return nil, err
		}
		out = append(out, s.toMetadata(row))
	}
	return out, cur.Err()
}

func (s *Store) ReadTable(ctx context.Context, name string, version int, tableID string) (*schema.TableSchema, bool, error) {
	if t, ok := s.sidecar.Get(name, version, tableID); ok {
		return t, true, nil
	}
	var row tableRow
	err := withRetry(ctx, func() error {
		return s.db.Collection(tablesCollection).FindOne(ctx, bson.D{{Key: "_id", Value: tableID}}).Decode(&row)
	})
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, translateAuthErr(err)
	}
	return fromTableRow(row), true, nil
}

// ReadTables fans out one lookup per table id concurrently via errgroup,
// so the planner's batch resolution of a handful of tables never pays for
// a full collection scan serialized one-by-one.
func (s *Store) ReadTables(ctx context.Context, name string, version int, tableIDs []string) ([]*schema.TableSchema, error) {
	out := make([]*schema.TableSchema, len(tableIDs))
	g, gctx := errgroup.WithContext(ctx)
	for i, id := range tableIDs {
		i, id := i, id
		g.Go(func() error {
			t, ok, err := s.ReadTable(gctx, name, version, id)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("table %q not found in schema %s/%d", id, name, version)
			}
			out[i] = t
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) Write(ctx context.Context, meta store.SchemaMeta, tables []*schema.TableSchema) (*schema.DatabaseSchemaMetadata, error) {
	if _, ok, _ := s.readLatest(ctx, meta.SchemaName); ok {
		return nil, util.NewKindError(util.KindSchemaWriteFailed, fmt.Sprintf("schema %q already exists", meta.SchemaName), nil)
	}
	return s.insertVersion(ctx, meta, tables, 1, nil)
}

func (s *Store) Update(ctx context.Context, meta store.SchemaMeta, tables []*schema.TableSchema) (*schema.DatabaseSchemaMetadata, error) {
	prev, ok, err := s.readLatest(ctx, meta.SchemaName)
	if err != nil {
		return nil, err
	}
	version := 1
	var previousRefs []string
	if ok {
		version = prev.SchemaVersion + 1
		previousRefs = prev.TableReferences
	}
	return s.insertVersion(ctx, meta, tables, version, previousRefs)
}

// insertVersion persists one schema version. previousRefs, when non-nil,
// is the table-id list the prior version referenced; any id no longer in
// the new version's reference list is deleted from tablesCollection
// (spec.md §4.D: update "deletes superseded" table rows) unless some
// other still-live schema version still references it.
func (s *Store) insertVersion(ctx context.Context, meta store.SchemaMeta, tables []*schema.TableSchema, version int, previousRefs []string) (*schema.DatabaseSchemaMetadata, error) {
	refs := make([]string, 0, len(tables))
	for _, t := range tables {
		refs = append(refs, t.ID)
	}
	row := schemaRow{
		SchemaName:      meta.SchemaName,
		SchemaVersion:   version,
		SQLName:         meta.SQLName,
		ModifyDate:      tablesModifyDate(tables),
		TableReferences: refs,
	}

	newSet := make(map[string]bool, len(refs))
	for _, id := range refs {
		newSet[id] = true
	}
	var superseded []string
	for _, id := range previousRefs {
		if !newSet[id] {
			superseded = append(superseded, id)
		}
	}

	persist := func(sc context.Context) (any, error) {
		for _, t := range tables {
			tr := toTableRow(t)
			_, err := s.db.Collection(tablesCollection).ReplaceOne(sc, bson.D{{Key: "_id", Value: tr.ID}}, tr, options.Replace().SetUpsert(true))
			if err != nil {
				s.sidecar.Put(meta.SchemaName, version, t)
				return nil, err
			}
		}
		if err := s.deleteOrphanedTables(sc, superseded); err != nil {
			return nil, err
		}
		_, err := s.db.Collection(schemasCollection).InsertOne(sc, row)
		return nil, err
	}

	var err error
	if s.txnCap {
		sess, serr := s.db.Client().StartSession()
		if serr != nil {
			return nil, serr
		}
		defer sess.EndSession(ctx)
		_, err = sess.WithTransaction(ctx, persist)
	} else {
		_, err = persist(ctx)
	}
	if err != nil {
		return nil, util.NewKindError(util.KindSchemaWriteFailed, "failed to persist schema version", translateAuthErr(err))
	}
	return s.toMetadata(row), nil
}

// deleteOrphanedTables deletes every tablesCollection row named in
// candidates that no remaining schemasCollection row still references.
// Called with the losing side of a version transition (superseded ids on
// update, or every id a removed schema row referenced), so a query
// against the current schemasCollection state — which already excludes
// whatever was just removed or not yet inserted — is enough to tell a
// true orphan from an id another live version still needs.
func (s *Store) deleteOrphanedTables(ctx context.Context, candidates []string) error {
	if len(candidates) == 0 {
		return nil
	}
	cur, err := s.db.Collection(schemasCollection).Find(ctx,
		bson.D{{Key: "tableReferences", Value: bson.D{{Key: "$in", Value: candidates}}}},
		options.Find().SetProjection(bson.D{{Key: "tableReferences", Value: 1}}),
	)
	if err != nil {
		return err
	}
	defer cur.Close(ctx)

	stillReferenced := make(map[string]bool, len(candidates))
	for cur.Next(ctx) {
		var row struct {
			TableReferences []string `bson:"tableReferences"`
		}
		if err := cur.Decode(&row); err != nil {
			return err
		}
		for _, id := range row.TableReferences {
			stillReferenced[id] = true
		}
	}
	if err := cur.Err(); err != nil {
		return err
	}

	var orphaned []string
	for _, id := range candidates {
		if !stillReferenced[id] {
			orphaned = append(orphaned, id)
		}
	}
	if len(orphaned) == 0 {
		return nil
	}
	_, err = s.db.Collection(tablesCollection).DeleteMany(ctx, bson.D{{Key: "_id", Value: bson.D{{Key: "$in", Value: orphaned}}}})
	return err
}

func tablesModifyDate(tables []*schema.TableSchema) time.Time {
	latest := time.Time{}
	for _, t := range tables {
		if t.ModifyDate.After(latest) {
			latest = t.ModifyDate
		}
	}
	if latest.IsZero() {
		return time.Now()
	}
	return latest
}

func (s *Store) Remove(ctx context.Context, name string) error {
	return s.removeRows(ctx, bson.D{{Key: "schemaName", Value: name}})
}

func (s *Store) RemoveVersion(ctx context.Context, name string, version int) error {
	return s.removeRows(ctx, bson.D{
		{Key: "schemaName", Value: name}, {Key: "schemaVersion", Value: version},
	})
}

// removeRows deletes every schemasCollection row matching filter, then
// deletes their now-orphaned tablesCollection rows (spec.md §4.D: remove
// "deletes schema rows and their orphaned table rows"). The candidate
// table ids are read before the schema rows are deleted so a row that
// still needs one of them is never missed.
func (s *Store) removeRows(ctx context.Context, filter bson.D) error {
	cur, err := s.db.Collection(schemasCollection).Find(ctx, filter,
		options.Find().SetProjection(bson.D{{Key: "tableReferences", Value: 1}}))
	if err != nil {
		return translateAuthErr(err)
	}
	var candidates []string
	for cur.Next(ctx) {
		var row struct {
			TableReferences []string `bson:"tableReferences"`
		}
		if err := cur.Decode(&row); err != nil {
			cur.Close(ctx)
			return err
		}
		candidates = append(candidates, row.TableReferences...)
	}
	cerr := cur.Err()
	cur.Close(ctx)
	if cerr != nil {
		return cerr
	}

	if _, err := s.db.Collection(schemasCollection).DeleteMany(ctx, filter); err != nil {
		return translateAuthErr(err)
	}
	return s.deleteOrphanedTables(ctx, candidates)
}

func (s *Store) toMetadata(row schemaRow) *schema.DatabaseSchemaMetadata {
	return schema.NewDatabaseSchemaMetadata(row.SchemaName, row.SchemaVersion, row.SQLName, row.ModifyDate, row.TableReferences, &loader{
		store:   s,
		name:    row.SchemaName,
		version: row.SchemaVersion,
	})
}

// loader adapts Store onto schema.TableLoader.
type loader struct {
	store   *Store
	name    string
	version int
}

func (l *loader) Get(tableID string) (*schema.TableSchema, error) {
	t, ok, err := l.store.ReadTable(context.Background(), l.name, l.version, tableID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, util.NewKindError(util.KindSchemaNotFound, fmt.Sprintf("table %q not found", tableID), nil)
	}
	return t, nil
}

func (l *loader) GetAll(tableIDs []string) ([]*schema.TableSchema, error) {
	return l.store.ReadTables(context.Background(), l.name, l.version, tableIDs)
}
