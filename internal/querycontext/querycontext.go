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

// Package querycontext holds the Query Context value record (spec.md
// §4.H): the sole output of the compiler, handed to an external execution
// collaborator. This package has no behavior of its own beyond
// construction and a string-rendering of its pipeline for debugging/tests.
package querycontext

import (
	"encoding/json"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/docbridge/docbridge/internal/reltype"
	"github.com/docbridge/docbridge/internal/schema"
)

// ColumnDescriptor describes one result column: its label, relational
// type, nullability, and precision/scale (meaningful only for DECIMAL).
type ColumnDescriptor struct {
	Label     string
	Type      reltype.Relational
	Nullable  bool
	Precision int
	Scale     int
}

// QueryContext is the compiler's sole output.
type QueryContext struct {
	CollectionName string
	Pipeline       []bson.D
	Columns        []ColumnDescriptor
	Table          *schema.TableSchema
}

// PipelineJSON renders the pipeline as indented Extended JSON for
// debugging output.
func (q *QueryContext) PipelineJSON() (string, error) {
	b, err := bson.MarshalExtJSON(q.Pipeline, false, true)
	if err != nil {
		return "", err
	}
	var pretty []any
	if err := json.Unmarshal(b, &pretty); err != nil {
		return string(b), nil
	}
	out, err := json.MarshalIndent(pretty, "", "  ")
	if err != nil {
		return string(b), nil
	}
	return string(out), nil
}
