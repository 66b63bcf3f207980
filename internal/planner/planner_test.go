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
package planner

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/docbridge/docbridge/internal/catalog"
	"github.com/docbridge/docbridge/internal/reltype"
	"github.com/docbridge/docbridge/internal/schema"
	"github.com/docbridge/docbridge/internal/util"
)

// fakeLoader backs a catalog.Catalog with an in-memory set of tables, since
// catalog.Load requires a TableLoader and the planner has no reason to
// depend on a real Schema Store to be tested.
type fakeLoader struct {
	tables map[string]*schema.TableSchema
}

func (f *fakeLoader) Get(id string) (*schema.TableSchema, error) {
	return f.tables[id], nil
}

func (f *fakeLoader) GetAll(ids []string) ([]*schema.TableSchema, error) {
	out := make([]*schema.TableSchema, 0, len(ids))
	for _, id := range ids {
		out = append(out, f.tables[id])
	}
	return out, nil
}

func ordersTable() *schema.TableSchema {
	t := schema.NewTableSchema("orders", "orders", "orders")
	must(t.UpsertColumn(&schema.Column{FieldPath: "_id", SQLName: "id", SQLType: reltype.Varchar, IsPrimaryKey: true, PrimaryKeyIndex: 1}))
	must(t.UpsertColumn(&schema.Column{FieldPath: "status", SQLName: "status", SQLType: reltype.Varchar}))
	must(t.UpsertColumn(&schema.Column{FieldPath: "amount", SQLName: "amount", SQLType: reltype.Double}))
	return t
}

func itemsTable() *schema.TableSchema {
	lvl := 0
	t := schema.NewTableSchema("order_items", "order_items", "orders")
	must(t.UpsertColumn(&schema.Column{FieldPath: "_id", SQLName: "order_id", SQLType: reltype.Varchar, IsPrimaryKey: true, PrimaryKeyIndex: 1}))
	must(t.UpsertColumn(&schema.Column{FieldPath: "items", SQLName: "items_idx", SQLType: reltype.Integer, IsPrimaryKey: true, PrimaryKeyIndex: 2, IsGenerated: true, IsIndex: true, ArrayIndexLevel: &lvl}))
	must(t.UpsertColumn(&schema.Column{FieldPath: "items.sku", SQLName: "sku", SQLType: reltype.Varchar}))
	return t
}

func otherCollectionTable() *schema.TableSchema {
	t := schema.NewTableSchema("customers", "customers", "customers")
	must(t.UpsertColumn(&schema.Column{FieldPath: "_id", SQLName: "id", SQLType: reltype.Varchar, IsPrimaryKey: true, PrimaryKeyIndex: 1}))
	return t
}

func must(err error) {
	if err != nil {
		panic(err)
	}
}

func testCatalog(t *testing.T, tables ...*schema.TableSchema) *catalog.Catalog {
	t.Helper()
	loader := &fakeLoader{tables: make(map[string]*schema.TableSchema, len(tables))}
	var refs []string
	for _, tbl := range tables {
		loader.tables[tbl.ID] = tbl
		refs = append(refs, tbl.ID)
	}
	meta := schema.NewDatabaseSchemaMetadata("_default", 1, "_default", time.Time{}, refs, loader)
	cat, err := catalog.Load(context.Background(), meta)
	if err != nil {
		t.Fatalf("building test catalog: %v", err)
	}
	return cat
}

func TestCompileFilterProjectSortLimitPushDown(t *testing.T) {
	cat := testCatalog(t, ordersTable())
	d := New(cat)

	plan, err := d.Compile(`SELECT status, amount FROM orders WHERE status = 'open' ORDER BY amount DESC LIMIT 10 OFFSET 5`)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if plan.Table.Name != "orders" {
		t.Fatalf("table = %q, want orders", plan.Table.Name)
	}
	if len(plan.Columns) != 2 || plan.Columns[0] != "status" || plan.Columns[1] != "amount" {
		t.Fatalf("columns = %v, want [status amount]", plan.Columns)
	}
	if len(plan.Filters) != 1 || plan.Filters[0].Column != "status" || plan.Filters[0].Value != "open" {
		t.Fatalf("filters = %+v", plan.Filters)
	}
	if plan.OrderBy == nil || plan.OrderBy.Column != "amount" || !plan.OrderBy.Desc {
		t.Fatalf("orderBy = %+v", plan.OrderBy)
	}
	if plan.Limit == nil || plan.Limit.Limit != 10 || plan.Limit.Offset != 5 {
		t.Fatalf("limit = %+v", plan.Limit)
	}
	if len(plan.Residual) != 0 {
		t.Fatalf("residual = %v, want none", plan.Residual)
	}
}

func TestCompileSelectStarDefersColumnsToLowering(t *testing.T) {
	cat := testCatalog(t, ordersTable())
	d := New(cat)

	plan, err := d.Compile(`SELECT * FROM orders`)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if plan.Columns != nil {
		t.Fatalf("columns = %v, want nil (resolved explicitly at lowering time)", plan.Columns)
	}
}

func TestCompileSameBaseCollectionJoinPushesDownToDeeperTable(t *testing.T) {
	cat := testCatalog(t, ordersTable(), itemsTable())
	d := New(cat)

	plan, err := d.Compile(`SELECT sku FROM orders JOIN order_items ON orders.id = order_items.order_id`)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if plan.Table.Name != "order_items" {
		t.Fatalf("table = %q, want order_items (the deeper virtual table)", plan.Table.Name)
	}
	if len(plan.Residual) != 0 {
		t.Fatalf("residual = %v, want none for a same-base-collection join", plan.Residual)
	}
}

func TestCompileCrossCollectionJoinIsResidual(t *testing.T) {
	cat := testCatalog(t, ordersTable(), otherCollectionTable())
	d := New(cat)

	plan, err := d.Compile(`SELECT id FROM orders JOIN customers ON orders.id = customers.id`)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if plan.Table.Name != "orders" {
		t.Fatalf("table = %q, want the left-hand table scanned alone", plan.Table.Name)
	}
	if len(plan.Residual) != 1 {
		t.Fatalf("residual = %v, want exactly one entry describing the unsupported join", plan.Residual)
	}
}

func TestCompileUnknownTableIsSchemaNotFound(t *testing.T) {
	cat := testCatalog(t, ordersTable())
	d := New(cat)

	if _, err := d.Compile(`SELECT id FROM nope`); err == nil {
		t.Fatal("expected an error for an unknown table")
	}
}

func TestCompileNonSelectIsUnsupported(t *testing.T) {
	cat := testCatalog(t, ordersTable())
	d := New(cat)

	if _, err := d.Compile(`DELETE FROM orders WHERE status = 'open'`); err == nil {
		t.Fatal("expected an error for a non-SELECT statement")
	}
}

func TestCompileMultiTermOrderByIsUnsupported(t *testing.T) {
	cat := testCatalog(t, ordersTable())
	d := New(cat)

	_, err := d.Compile(`SELECT status, amount FROM orders ORDER BY status, amount DESC`)
	var ke *util.KindError
	if !errors.As(err, &ke) || ke.Kind != util.KindUnsupportedFeature {
		t.Fatalf("err = %v, want a KindUnsupportedFeature error for multi-term ORDER BY", err)
	}
}
