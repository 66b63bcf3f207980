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
	"testing"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// TestSharedSuffixAcrossCollectionsBug exercises the Open Question recorded
// in walker.go/visitArray: the freshness check gating inherited PK/FK
// emission for a newly created virtual table is keyed on the unqualified
// field path, not the collection-qualified table name. Two unrelated
// collections whose embedded arrays happen to share a path ("tags") race
// on that single unqualified-path flag: whichever collection is inferred
// second finds the path already marked and never receives its inherited
// PK/FK columns, leaving its virtual table without a primary key.
func TestSharedSuffixAcrossCollectionsBug(t *testing.T) {
	e := NewEngine()

	productsSrc := &fixedSource{docs: []bson.D{
		{{Key: "_id", Value: "a"}, {Key: "tags", Value: bson.A{"x"}}},
	}}
	if err := e.InferCollection(context.Background(), "products", productsSrc); err != nil {
		t.Fatalf("InferCollection(products): %v", err)
	}

	ordersSrc := &fixedSource{docs: []bson.D{
		{{Key: "_id", Value: "o1"}, {Key: "tags", Value: bson.A{"y"}}},
	}}
	if err := e.InferCollection(context.Background(), "orders", ordersSrc); err != nil {
		t.Fatalf("InferCollection(orders): %v", err)
	}

	tables := e.Finalize()

	productsTags, ok := tables["products_tags"]
	if !ok {
		t.Fatalf("expected %q, got %v", "products_tags", tableNames(tables))
	}
	if _, ok := productsTags.Column("products__id"); !ok {
		t.Fatalf("products_tags (inferred first) should have inherited its products__id FK column")
	}

	ordersTags, ok := tables["orders_tags"]
	if !ok {
		t.Fatalf("expected %q, got %v", "orders_tags", tableNames(tables))
	}
	if _, ok := ordersTags.Column("orders__id"); ok {
		t.Fatalf("orders_tags (inferred second, sharing path %q) unexpectedly kept its inherited orders__id FK — "+
			"the unqualified-path discrepancy did not reproduce", "tags")
	}
	if len(ordersTags.PrimaryKeyColumns()) == 0 {
		t.Fatalf("orders_tags should still have its own generated index column as PK even without the inherited FK")
	}
}
