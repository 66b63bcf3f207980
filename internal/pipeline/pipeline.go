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

// Package pipeline is the Pipeline Lowerer (spec.md §4.G): it translates a
// Planner Driver Plan into an ordered aggregation pipeline, plus the
// column descriptors the external tabular collaborator needs to decode
// the result set.
package pipeline

import (
	"fmt"
	"regexp"
	"sort"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/docbridge/docbridge/internal/planner"
	"github.com/docbridge/docbridge/internal/querycontext"
	"github.com/docbridge/docbridge/internal/schema"
)

// objectIDHex matches the 24-hex-digit form an ObjectId prints as, used to
// detect _id literals that must be expanded into a string/$oid
// disjunction (spec.md §4.G step 5, Testable Property 8).
var objectIDHex = regexp.MustCompile(`^[0-9a-fA-F]{24}$`)

// Lower compiles plan into a QueryContext. Stage order follows spec.md
// §4.G and Testable Property 7 exactly: unwind stages outermost-first,
// then (for a virtual table scan) an $exists match over every
// non-generated column path, then an always-explicit $project, then the
// pushable $match (keyed on the renamed SQL column names $project just
// produced), $sort, and finally $skip/$limit.
func Lower(plan *planner.Plan) (*querycontext.QueryContext, error) {
	table := plan.Table.Underlying()

	var stages []bson.D

	indexCols := arrayIndexColumnsByLevel(table)
	for _, c := range indexCols {
		stages = append(stages, unwindStage(c))
	}
	if len(indexCols) > 0 {
		if existsStage := virtualTableExistsStage(table); existsStage != nil {
			stages = append(stages, existsStage)
		}
	}

	cols, err := selectedColumns(table, plan.Columns)
	if err != nil {
		return nil, err
	}
	stages = append(stages, projectStage(cols))

	if len(plan.Filters) > 0 {
		matchStage, err := matchStage(table, plan.Filters)
		if err != nil {
			return nil, err
		}
		stages = append(stages, matchStage)
	}

	if plan.OrderBy != nil {
		dir := 1
		if plan.OrderBy.Desc {
			dir = -1
		}
		stages = append(stages, bson.D{{Key: "$sort", Value: bson.D{{Key: plan.OrderBy.Column, Value: dir}}}})
	}

	if plan.Limit != nil {
		if plan.Limit.Offset > 0 {
			stages = append(stages, bson.D{{Key: "$skip", Value: plan.Limit.Offset}})
		}
		if plan.Limit.Limit > 0 {
			stages = append(stages, bson.D{{Key: "$limit", Value: plan.Limit.Limit}})
		}
	}

	descriptors := make([]querycontext.ColumnDescriptor, 0, len(cols))
	for _, c := range cols {
		descriptors = append(descriptors, querycontext.ColumnDescriptor{
			Label:    c.SQLName,
			Type:     c.SQLType,
			Nullable: !c.IsPrimaryKey,
		})
	}

	return &querycontext.QueryContext{
		CollectionName: table.CollectionName,
		Pipeline:       stages,
		Columns:        descriptors,
		Table:          table,
	}, nil
}

// arrayIndexColumnsByLevel returns table's generated array-index columns
// ordered outermost (level 0) first.
func arrayIndexColumnsByLevel(table *schema.TableSchema) []*schema.Column {
	var cols []*schema.Column
	for _, c := range table.Columns() {
		if c.ArrayIndexLevel != nil {
			cols = append(cols, c)
		}
	}
	sort.Slice(cols, func(i, j int) bool { return *cols[i].ArrayIndexLevel < *cols[j].ArrayIndexLevel })
	return cols
}

// unwindStage emits the unwind for one array level. Every unwind
// preserves empty/missing arrays so that a shallower sibling row is never
// silently dropped by a deeper level's unwind (§4.G step 1).
func unwindStage(indexCol *schema.Column) bson.D {
	path := indexCol.FieldPath
	return bson.D{{Key: "$unwind", Value: bson.D{
		{Key: "path", Value: "$" + path},
		{Key: "includeArrayIndex", Value: indexCol.SQLName},
		{Key: "preserveNullAndEmptyArrays", Value: true},
	}}}
}

// virtualTableExistsStage builds the $exists match every virtual-table
// scan requires (Testable Property 7, stage k+1): every non-generated
// column's source path must be present, otherwise the row belongs to a
// sibling branch the unwind stages alone cannot exclude.
func virtualTableExistsStage(table *schema.TableSchema) bson.D {
	var clauses bson.A
	for _, c := range table.Columns() {
		if c.IsGenerated {
			continue
		}
		clauses = append(clauses, bson.D{{Key: c.FieldPath, Value: bson.D{{Key: "$exists", Value: true}}}})
	}
	if len(clauses) == 0 {
		return nil
	}
	return bson.D{{Key: "$match", Value: bson.D{{Key: "$and", Value: clauses}}}}
}

func matchStage(table *schema.TableSchema, filters []planner.Filter) (bson.D, error) {
	var clauses bson.A
	for _, f := range filters {
		col, ok := table.Column(f.Column)
		if !ok {
			return nil, fmt.Errorf("lowering filter: unknown column %q", f.Column)
		}
		clause, err := filterClause(col, f.Value)
		if err != nil {
			return nil, err
		}
		clauses = append(clauses, clause)
	}
	if len(clauses) == 1 {
		return bson.D{{Key: "$match", Value: clauses[0]}}, nil
	}
	return bson.D{{Key: "$match", Value: bson.D{{Key: "$and", Value: clauses}}}}, nil
}

// filterClause renders one equality predicate, applying the type-aware
// _id literal expansion (§4.G step 5) when the target column is a
// primary/foreign key and the literal looks like a 24-hex-digit ObjectId.
func filterClause(col *schema.Column, value any) (bson.D, error) {
	if isIdentifierColumn(col) {
		if s, ok := value.(string); ok && objectIDHex.MatchString(s) {
			return bson.D{{Key: "$or", Value: bson.A{
				bson.D{{Key: col.SQLName, Value: bson.D{{Key: "$eq", Value: bson.D{{Key: "$oid", Value: s}}}}}},
				bson.D{{Key: col.SQLName, Value: bson.D{{Key: "$eq", Value: s}}}},
			}}}, nil
		}
	}
	return bson.D{{Key: col.SQLName, Value: bson.D{{Key: "$eq", Value: value}}}}, nil
}

func isIdentifierColumn(col *schema.Column) bool {
	return col.IsPrimaryKey || col.ForeignKeyColumnName != ""
}

func selectedColumns(table *schema.TableSchema, names []string) ([]*schema.Column, error) {
	if len(names) == 0 {
		var all []*schema.Column
		for _, c := range table.Columns() {
			if c.IsGenerated && c.VirtualTableName != "" {
				continue
			}
			all = append(all, c)
		}
		return all, nil
	}
	out := make([]*schema.Column, 0, len(names))
	for _, n := range names {
		c, ok := table.Column(n)
		if !ok {
			return nil, fmt.Errorf("lowering projection: unknown column %q", n)
		}
		out = append(out, c)
	}
	return out, nil
}

// projectStage is always explicit, per §4.G step 3: even "SELECT *" never
// falls back to an implicit passthrough, and the document's native _id is
// always zeroed unless a column is itself named "_id".
func projectStage(cols []*schema.Column) bson.D {
	proj := bson.D{{Key: "_id", Value: 0}}
	for _, c := range cols {
		if c.SQLName == "_id" {
			proj = bson.D{}
			break
		}
	}
	for _, c := range cols {
		proj = append(proj, bson.E{Key: c.SQLName, Value: "$" + c.FieldPath})
	}
	return bson.D{{Key: "$project", Value: proj}}
}
