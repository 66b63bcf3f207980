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
package pipeline

import (
	"context"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/docbridge/docbridge/internal/catalog"
	"github.com/docbridge/docbridge/internal/planner"
	"github.com/docbridge/docbridge/internal/reltype"
	"github.com/docbridge/docbridge/internal/schema"
)

type fakeLoader struct {
	tables map[string]*schema.TableSchema
}

func (f *fakeLoader) Get(id string) (*schema.TableSchema, error) { return f.tables[id], nil }

func (f *fakeLoader) GetAll(ids []string) ([]*schema.TableSchema, error) {
	out := make([]*schema.TableSchema, 0, len(ids))
	for _, id := range ids {
		out = append(out, f.tables[id])
	}
	return out, nil
}

func must(err error) {
	if err != nil {
		panic(err)
	}
}

func testPlan(t *testing.T, tbl *schema.TableSchema, p *planner.Plan) *planner.Plan {
	t.Helper()
	loader := &fakeLoader{tables: map[string]*schema.TableSchema{tbl.ID: tbl}}
	meta := schema.NewDatabaseSchemaMetadata("_default", 1, "_default", time.Time{}, []string{tbl.ID}, loader)
	cat, err := catalog.Load(context.Background(), meta)
	if err != nil {
		t.Fatalf("building test catalog: %v", err)
	}
	info, ok := cat.Table(tbl.SQLName)
	if !ok {
		t.Fatalf("table %q missing from catalog", tbl.SQLName)
	}
	p.Table = info
	return p
}

func firstKey(d bson.D) string {
	if len(d) == 0 {
		return ""
	}
	return d[0].Key
}

func TestLowerBaseTableFilterProjectSortLimitOrder(t *testing.T) {
	tbl := schema.NewTableSchema("orders", "orders", "orders")
	must(tbl.UpsertColumn(&schema.Column{FieldPath: "_id", SQLName: "id", SQLType: reltype.Varchar, IsPrimaryKey: true, PrimaryKeyIndex: 1}))
	must(tbl.UpsertColumn(&schema.Column{FieldPath: "status", SQLName: "status", SQLType: reltype.Varchar}))

	plan := testPlan(t, tbl, &planner.Plan{
		Filters: []planner.Filter{{Column: "status", Value: "open"}},
		OrderBy: &planner.OrderBy{Column: "status", Desc: true},
		Limit:   &planner.LimitOffset{Limit: 10, Offset: 5},
	})

	qc, err := Lower(plan)
	if err != nil {
		t.Fatalf("Lower: %v", err)
	}

	var keys []string
	for _, s := range qc.Pipeline {
		keys = append(keys, firstKey(s))
	}
	want := []string{"$project", "$match", "$sort", "$skip", "$limit"}
	if len(keys) != len(want) {
		t.Fatalf("stage keys = %v, want %v", keys, want)
	}
	for i := range want {
		if keys[i] != want[i] {
			t.Fatalf("stage %d = %q, want %q (full: %v)", i, keys[i], want[i], keys)
		}
	}
}

func TestLowerVirtualTableUnwindsOutermostFirstThenExists(t *testing.T) {
	lvl0, lvl1 := 0, 1
	tbl := schema.NewTableSchema("order_items_sub", "order_item_parts", "orders")
	must(tbl.UpsertColumn(&schema.Column{FieldPath: "_id", SQLName: "order_id", SQLType: reltype.Varchar, IsPrimaryKey: true, PrimaryKeyIndex: 1}))
	must(tbl.UpsertColumn(&schema.Column{FieldPath: "items", SQLName: "items_idx", SQLType: reltype.Integer, IsPrimaryKey: true, PrimaryKeyIndex: 2, IsGenerated: true, IsIndex: true, ArrayIndexLevel: &lvl0}))
	must(tbl.UpsertColumn(&schema.Column{FieldPath: "items.parts", SQLName: "parts_idx", SQLType: reltype.Integer, IsPrimaryKey: true, PrimaryKeyIndex: 3, IsGenerated: true, IsIndex: true, ArrayIndexLevel: &lvl1}))
	must(tbl.UpsertColumn(&schema.Column{FieldPath: "items.parts.sku", SQLName: "sku", SQLType: reltype.Varchar}))

	plan := testPlan(t, tbl, &planner.Plan{})
	qc, err := Lower(plan)
	if err != nil {
		t.Fatalf("Lower: %v", err)
	}

	if len(qc.Pipeline) < 3 {
		t.Fatalf("pipeline too short: %v", qc.Pipeline)
	}
	if firstKey(qc.Pipeline[0]) != "$unwind" || firstKey(qc.Pipeline[1]) != "$unwind" {
		t.Fatalf("first two stages should be unwinds, got %v", qc.Pipeline[:2])
	}
	unwind0 := qc.Pipeline[0][0].Value.(bson.D)
	if got := unwind0[0].Value; got != "$items" {
		t.Fatalf("first unwind path = %v, want $items (outermost level first)", got)
	}
	if firstKey(qc.Pipeline[2]) != "$match" {
		t.Fatalf("third stage should be the virtual-table $exists match, got %v", qc.Pipeline[2])
	}
}

func TestLowerIdentifierColumnHexLiteralExpandsToOidDisjunction(t *testing.T) {
	tbl := schema.NewTableSchema("orders", "orders", "orders")
	must(tbl.UpsertColumn(&schema.Column{FieldPath: "_id", SQLName: "id", SQLType: reltype.Varchar, IsPrimaryKey: true, PrimaryKeyIndex: 1}))

	hex := "507f1f77bcf86cd799439011"
	plan := testPlan(t, tbl, &planner.Plan{
		Filters: []planner.Filter{{Column: "id", Value: hex}},
	})

	qc, err := Lower(plan)
	if err != nil {
		t.Fatalf("Lower: %v", err)
	}

	var matchStage bson.D
	for _, s := range qc.Pipeline {
		if firstKey(s) == "$match" {
			matchStage = s[0].Value.(bson.D)
			break
		}
	}
	if matchStage == nil {
		t.Fatal("no $match stage found")
	}
	or, ok := matchStage[0].Value.(bson.A)
	if !ok || matchStage[0].Key != "$or" || len(or) != 2 {
		t.Fatalf("match stage = %+v, want a two-armed $or over $oid and raw string", matchStage)
	}
}

func TestLowerNonHexStringFilterStaysPlainEquality(t *testing.T) {
	tbl := schema.NewTableSchema("orders", "orders", "orders")
	must(tbl.UpsertColumn(&schema.Column{FieldPath: "_id", SQLName: "id", SQLType: reltype.Varchar, IsPrimaryKey: true, PrimaryKeyIndex: 1}))

	plan := testPlan(t, tbl, &planner.Plan{
		Filters: []planner.Filter{{Column: "id", Value: "not-an-object-id"}},
	})

	qc, err := Lower(plan)
	if err != nil {
		t.Fatalf("Lower: %v", err)
	}
	for _, s := range qc.Pipeline {
		if firstKey(s) == "$match" {
			if inner, ok := s[0].Value.(bson.D); ok && firstKey(inner) == "$or" {
				t.Fatalf("non-hex literal should not expand to $or: %+v", s)
			}
		}
	}
}

func TestLowerProjectAlwaysZeroesNativeID(t *testing.T) {
	tbl := schema.NewTableSchema("orders", "orders", "orders")
	must(tbl.UpsertColumn(&schema.Column{FieldPath: "_id", SQLName: "id", SQLType: reltype.Varchar, IsPrimaryKey: true, PrimaryKeyIndex: 1}))
	must(tbl.UpsertColumn(&schema.Column{FieldPath: "status", SQLName: "status", SQLType: reltype.Varchar}))

	plan := testPlan(t, tbl, &planner.Plan{})
	qc, err := Lower(plan)
	if err != nil {
		t.Fatalf("Lower: %v", err)
	}
	var proj bson.D
	for _, s := range qc.Pipeline {
		if firstKey(s) == "$project" {
			proj = s[0].Value.(bson.D)
		}
	}
	if proj == nil {
		t.Fatal("no $project stage found")
	}
	if proj[0].Key != "_id" || proj[0].Value != 0 {
		t.Fatalf("project stage should zero _id first: %+v", proj)
	}
}
