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

package inference

import (
	"context"
	"sort"
	"testing"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/docbridge/docbridge/internal/reltype"
	"github.com/docbridge/docbridge/internal/schema"
)

// fixedSource replays a fixed slice of documents, one per Next call.
type fixedSource struct {
	docs []bson.D
	i    int
}

func (s *fixedSource) Next(ctx context.Context) (bson.D, bool, error) {
	if s.i >= len(s.docs) {
		return nil, false, nil
	}
	d := s.docs[s.i]
	s.i++
	return d, true, nil
}

func tableNames(tables map[string]*schema.TableSchema) []string {
	out := make([]string, 0, len(tables))
	for name := range tables {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func colNames(t *schema.TableSchema) []string {
	out := make([]string, 0)
	for _, c := range t.Columns() {
		out = append(out, c.SQLName)
	}
	return out
}

func assertColumns(t *testing.T, table *schema.TableSchema, want map[string]reltype.Relational) {
	t.Helper()
	for name, wantType := range want {
		col, ok := table.Column(name)
		if !ok {
			t.Fatalf("table %q: missing column %q, have %v", table.SQLName, name, colNames(table))
		}
		if col.SQLType != wantType {
			t.Fatalf("table %q: column %q type = %s, want %s", table.SQLName, name, col.SQLType, wantType)
		}
	}
}

// TestS1SimpleDocument exercises spec.md §8 S1: a single flat document
// produces one table with a VARCHAR PK and a VARCHAR scalar column.
func TestS1SimpleDocument(t *testing.T) {
	e := NewEngine()
	src := &fixedSource{docs: []bson.D{
		{{Key: "_id", Value: "a"}, {Key: "name", Value: "x"}},
	}}
	if err := e.InferCollection(context.Background(), "products", src); err != nil {
		t.Fatalf("InferCollection: %v", err)
	}
	tables := e.Finalize()

	products, ok := tables["products"]
	if !ok {
		t.Fatalf("expected table %q, got %v", "products", tableNames(tables))
	}
	assertColumns(t, products, map[string]reltype.Relational{
		"products__id": reltype.Varchar,
		"name":         reltype.Varchar,
	})

	idCol, _ := products.Column("products__id")
	if !idCol.IsPrimaryKey || idCol.PrimaryKeyIndex != 1 {
		t.Fatalf("products__id should be PK index 1, got %+v", idCol)
	}
}

// TestS2ArrayOfScalarsCreatesVirtualTable exercises spec.md §8 S2: adding a
// document whose tags field is an array of strings creates a products_tags
// virtual table with an inherited FK, a generated index column, and a
// scalar value column.
func TestS2ArrayOfScalarsCreatesVirtualTable(t *testing.T) {
	e := NewEngine()
	src := &fixedSource{docs: []bson.D{
		{{Key: "_id", Value: "a"}, {Key: "name", Value: "x"}},
		{{Key: "_id", Value: "b"}, {Key: "tags", Value: bson.A{"x", "y"}}},
	}}
	if err := e.InferCollection(context.Background(), "products", src); err != nil {
		t.Fatalf("InferCollection: %v", err)
	}
	tables := e.Finalize()

	tagsTable, ok := tables["products_tags"]
	if !ok {
		t.Fatalf("expected virtual table %q, got %v", "products_tags", tableNames(tables))
	}
	assertColumns(t, tagsTable, map[string]reltype.Relational{
		"products__id":     reltype.Varchar,
		"tags_index_lvl_0": reltype.Bigint,
		"value":            reltype.Varchar,
	})

	fk, ok := tagsTable.Column("products__id")
	if !ok || fk.ForeignKeyTableName != "products" {
		t.Fatalf("expected products__id to carry an FK to products, got %+v", fk)
	}
	idx, ok := tagsTable.Column("tags_index_lvl_0")
	if !ok || !idx.IsGeneratedIndexColumn() {
		t.Fatalf("expected tags_index_lvl_0 to be a generated index column, got %+v", idx)
	}

	products := tables["products"]
	if _, ok := products.Column("tags"); ok {
		t.Fatalf("finalize should have dropped the interim ARRAY placeholder column on products.tags")
	}
}

// TestS3NestedArrayAddsDeeperLevel exercises spec.md §8 S3: once tags is
// observed as an array of arrays, a deeper tags_index_lvl_1 column appears
// alongside the existing level-0 index column, and the leaf scalar value
// folds to VARCHAR.
func TestS3NestedArrayAddsDeeperLevel(t *testing.T) {
	e := NewEngine()
	src := &fixedSource{docs: []bson.D{
		{{Key: "_id", Value: "a"}, {Key: "name", Value: "x"}},
		{{Key: "_id", Value: "b"}, {Key: "tags", Value: bson.A{"x", "y"}}},
		{{Key: "_id", Value: "c"}, {Key: "tags", Value: bson.A{bson.A{"x"}}}},
	}}
	if err := e.InferCollection(context.Background(), "products", src); err != nil {
		t.Fatalf("InferCollection: %v", err)
	}
	tables := e.Finalize()

	tagsTable, ok := tables["products_tags"]
	if !ok {
		t.Fatalf("expected virtual table %q, got %v", "products_tags", tableNames(tables))
	}
	valueCol, ok := tagsTable.Column("value")
	if !ok || valueCol.SQLType != reltype.Varchar {
		t.Fatalf("leaf value column should survive as VARCHAR, got %+v", valueCol)
	}
	if _, ok := tagsTable.Column("tags_index_lvl_1"); !ok {
		t.Fatalf("expected a deeper tags_index_lvl_1 column, got %v", colNames(tagsTable))
	}
	lvl0, ok := tagsTable.Column("tags_index_lvl_0")
	if !ok || !lvl0.IsGeneratedIndexColumn() {
		t.Fatalf("tags_index_lvl_0 should survive unchanged, got %+v", lvl0)
	}
}

// TestFinalizeRemovesInterimColumns is a property test: no column may
// survive Finalize with an ARRAY or JAVA_OBJECT sqlType, across a document
// mixing embedded documents and arrays.
func TestFinalizeRemovesInterimColumns(t *testing.T) {
	e := NewEngine()
	src := &fixedSource{docs: []bson.D{
		{
			{Key: "_id", Value: "a"},
			{Key: "address", Value: bson.D{{Key: "city", Value: "nyc"}}},
			{Key: "tags", Value: bson.A{"x"}},
		},
	}}
	if err := e.InferCollection(context.Background(), "accounts", src); err != nil {
		t.Fatalf("InferCollection: %v", err)
	}
	tables := e.Finalize()
	for _, table := range tables {
		for _, c := range table.Columns() {
			if reltype.IsInterim(c.SQLType) {
				t.Fatalf("table %q column %q survived finalize with interim type %s", table.SQLName, c.SQLName, c.SQLType)
			}
		}
	}
	if err := schema.Validate(valuesOf(tables)); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func valuesOf(tables map[string]*schema.TableSchema) []*schema.TableSchema {
	out := make([]*schema.TableSchema, 0, len(tables))
	for _, t := range tables {
		out = append(out, t)
	}
	return out
}
