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

// Package inference implements the Schema Inference Engine (spec.md §4.B):
// it walks sampled documents and emits base+virtual tables with PK/FK
// wiring. It performs no I/O itself; documents are handed to it one at a
// time by a DocumentSource the caller supplies.
package inference

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/docbridge/docbridge/internal/reltype"
	"github.com/docbridge/docbridge/internal/schema"
)

// SampleMethod selects how the external document driver samples a
// collection (spec.md §6.1 scanMethod).
type SampleMethod string

const (
	SampleRandom    SampleMethod = "random"
	SampleIDForward SampleMethod = "idForward"
	SampleIDReverse SampleMethod = "idReverse"
	SampleAll       SampleMethod = "all"
)

// DocumentSource is a finite, lazy sequence of sampled documents. Next
// returns ok=false once the sequence is exhausted; any error it returns is
// propagated unchanged to the Engine's caller (§4.B "Failure semantics").
type DocumentSource interface {
	Next(ctx context.Context) (doc bson.D, ok bool, err error)
}

// Option configures an Engine.
type Option func(*Engine)

// WithMaxIdentifierLength overrides the identifier-length budget that
// triggers name elision (default 120; see names.go).
func WithMaxIdentifierLength(n int) Option {
	return func(e *Engine) { e.w.maxIdentLen = n }
}

// WithIDGenerator overrides how fresh table ids are minted. Defaults to a
// sequential counter scoped to this Engine; production wiring supplies
// uuid.NewString (see cmd/docbridgectl).
func WithIDGenerator(gen func() string) Option {
	return func(e *Engine) { e.w.newTableID = gen }
}

// Engine walks sampled documents into a tableName -> TableSchema map. A
// single Engine instance accumulates state across every collection passed
// to InferCollection within one schema-generation run, exactly as
// spec.md §4.B describes a single persistent walker state (tableMap,
// tableNameMap, current path/collectionName) — InferCollection changes
// "current collectionName" for each call but the tableMap is shared.
type Engine struct {
	w *walker
}

// NewEngine constructs a fresh inference run.
func NewEngine(opts ...Option) *Engine {
	seq := 0
	e := &Engine{
		w: &walker{
			tableMap:              make(map[string]*schema.TableSchema),
			tableNameMap:          make(map[string]string),
			unqualifiedArrayPaths: make(map[string]bool),
			maxIdentLen:           maxIdentifierLength,
			newTableID: func() string {
				seq++
				return fmt.Sprintf("tbl-%d", seq)
			},
		},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// InferCollection walks every document src yields, folding it into the
// engine's accumulated table map under collectionName.
func (e *Engine) InferCollection(ctx context.Context, collectionName string, src DocumentSource) error {
	for {
		doc, ok, err := src.Next(ctx)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		if err := e.w.visitDocument(collectionName, "", doc, nil, true); err != nil {
			return err
		}
	}
}

// Finalize runs §4.B step 3 (removes any column whose sqlType is still
// ARRAY or JAVA_OBJECT — bookkeeping placeholders for virtual-table edges)
// and returns the resulting table map. It is safe to call Finalize only
// once all collections for this run have been passed to InferCollection.
func (e *Engine) Finalize() map[string]*schema.TableSchema {
	out := make(map[string]*schema.TableSchema, len(e.w.tableMap))
	for name, t := range e.w.tableMap {
		for _, c := range append([]*schema.Column(nil), t.Columns()...) {
			if reltype.IsInterim(c.SQLType) {
				t.RemoveColumn(c.SQLName)
			}
		}
		out[name] = t
	}
	return out
}
