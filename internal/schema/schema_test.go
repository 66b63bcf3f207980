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

package schema

import (
	"testing"
	"time"

	"github.com/docbridge/docbridge/internal/reltype"
)

func pkColumn(name string, idx int) *Column {
	return &Column{FieldPath: name, SQLName: name, SQLType: reltype.Varchar, IsPrimaryKey: true, PrimaryKeyIndex: idx}
}

func TestUpsertColumnPreservesOrder(t *testing.T) {
	tbl := NewTableSchema("t1", "products", "products")
	_ = tbl.UpsertColumn(pkColumn("products__id", 1))
	_ = tbl.UpsertColumn(&Column{FieldPath: "name", SQLName: "name", SQLType: reltype.Varchar})
	_ = tbl.UpsertColumn(&Column{FieldPath: "qty", SQLName: "qty", SQLType: reltype.Integer})

	got := tbl.Columns()
	want := []string{"products__id", "name", "qty"}
	if len(got) != len(want) {
		t.Fatalf("got %d columns, want %d", len(got), len(want))
	}
	for i, name := range want {
		if got[i].SQLName != name {
			t.Errorf("column %d = %q, want %q", i, got[i].SQLName, name)
		}
	}

	// overwrite in place, order must not change
	_ = tbl.UpsertColumn(&Column{FieldPath: "qty", SQLName: "qty", SQLType: reltype.Bigint})
	got = tbl.Columns()
	if got[2].SQLType != reltype.Bigint {
		t.Errorf("overwrite did not update type: got %v", got[2].SQLType)
	}
	if got[2].SQLName != "qty" || len(got) != 3 {
		t.Errorf("overwrite changed column order/count: %+v", got)
	}
}

func TestUpsertColumnRejectsDuplicateNameDistinctPath(t *testing.T) {
	tbl := NewTableSchema("t1", "products", "products")
	_ = tbl.UpsertColumn(&Column{FieldPath: "a.b", SQLName: "a_b", SQLType: reltype.Varchar})
	err := tbl.UpsertColumn(&Column{FieldPath: "a_b", SQLName: "a_b", SQLType: reltype.Varchar})
	if err == nil {
		t.Fatal("expected duplicate column error")
	}
	var dup *DuplicateColumnError
	if !asDuplicate(err, &dup) {
		t.Fatalf("expected *DuplicateColumnError, got %T", err)
	}
}

func asDuplicate(err error, target **DuplicateColumnError) bool {
	if d, ok := err.(*DuplicateColumnError); ok {
		*target = d
		return true
	}
	return false
}

func TestValidateContiguousPrimaryKeys(t *testing.T) {
	parent := NewTableSchema("p", "orders", "orders")
	_ = parent.UpsertColumn(pkColumn("orders__id", 1))

	child := NewTableSchema("c", "orders_items", "orders")
	fk := pkColumn("orders__id", 1)
	fk.ForeignKeyTableName = "orders"
	fk.ForeignKeyColumnName = "orders__id"
	_ = child.UpsertColumn(fk)
	idxLvl := 0
	_ = child.UpsertColumn(&Column{
		FieldPath: "items", SQLName: "items_index_lvl_0", SQLType: reltype.Bigint,
		IsPrimaryKey: true, PrimaryKeyIndex: 2, IsGenerated: true, IsIndex: true, ArrayIndexLevel: &idxLvl,
	})
	_ = child.UpsertColumn(&Column{FieldPath: "items.value", SQLName: "value", SQLType: reltype.Varchar})

	if err := Validate([]*TableSchema{parent, child}); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestValidateRejectsNonContiguousPK(t *testing.T) {
	tbl := NewTableSchema("t", "products", "products")
	_ = tbl.UpsertColumn(pkColumn("products__id", 1))
	_ = tbl.UpsertColumn(&Column{FieldPath: "name", SQLName: "name", SQLType: reltype.Varchar})
	_ = tbl.UpsertColumn(pkColumn("other_id", 2))

	if err := Validate([]*TableSchema{tbl}); err == nil {
		t.Fatal("expected non-contiguous PK error")
	}
}

func TestValidateRejectsDanglingForeignKey(t *testing.T) {
	tbl := NewTableSchema("t", "orders_items", "orders")
	fk := pkColumn("orders__id", 1)
	fk.ForeignKeyTableName = "orders"
	fk.ForeignKeyColumnName = "orders__id"
	_ = tbl.UpsertColumn(fk)

	if err := Validate([]*TableSchema{tbl}); err == nil {
		t.Fatal("expected dangling foreign key error")
	}
}

func TestDatabaseSchemaMetadataLazyLoad(t *testing.T) {
	loaded := 0
	loader := fakeLoader{
		get: func(id string) (*TableSchema, error) {
			loaded++
			return NewTableSchema(id, id, id), nil
		},
		getAll: func(ids []string) ([]*TableSchema, error) {
			var out []*TableSchema
			for _, id := range ids {
				loaded++
				out = append(out, NewTableSchema(id, id, id))
			}
			return out, nil
		},
	}
	meta := NewDatabaseSchemaMetadata("mydb", 1, "mydb", time.Time{}, []string{"t1", "t2"}, loader)

	if _, err := meta.Table("t1"); err != nil {
		t.Fatal(err)
	}
	if loaded != 1 {
		t.Fatalf("loaded = %d, want 1 (single-table load must not pay for the catalog)", loaded)
	}
	if _, err := meta.Table("t1"); err != nil {
		t.Fatal(err)
	}
	if loaded != 1 {
		t.Fatalf("loaded = %d after repeat Table call, want 1 (memoized)", loaded)
	}
	if _, err := meta.Tables(); err != nil {
		t.Fatal(err)
	}
	if loaded != 2 {
		t.Fatalf("loaded = %d after Tables, want 2 (t1 memoized, t2 fresh)", loaded)
	}
}

type fakeLoader struct {
	get    func(string) (*TableSchema, error)
	getAll func([]string) ([]*TableSchema, error)
}

func (f fakeLoader) Get(id string) (*TableSchema, error)         { return f.get(id) }
func (f fakeLoader) GetAll(ids []string) ([]*TableSchema, error) { return f.getAll(ids) }
