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
	"strings"

	"github.com/docbridge/docbridge/internal/reltype"
	"github.com/docbridge/docbridge/internal/schema"
)

// visitArray implements §4.B step 2 ("Array visit"). leafKey is the
// field's own (unqualified) key, used to name the generated index column;
// path is the field's dotted path, used for table identity, and is the
// same for every nesting level of one array (only level increases).
//
// Per-level index-column emission is keyed off the qualified table (the
// only sound way to know "has this nesting depth already been recorded").
// The freshness check that gates whether a *newly created* virtual table
// also receives its inherited PK/FK columns is, however, taken from the
// unqualified path — see spec.md §9 Open Questions: "faithfully
// reimplement both" checks. walker_array_test.go's
// TestSharedSuffixAcrossCollectionsBug exercises the resulting
// cross-collection discrepancy: a second collection whose embedded array
// happens to share a field-path suffix with one already seen loses its
// inherited PK/FK columns.
func (w *walker) visitArray(collectionName, path, leafKey string, elements []any, inherited []inheritedColumn, level int) error {
	tableName := w.resolveTableName(logicalTableKey(collectionName, path))
	table, hadQualifiedTable := w.tableMap[tableName]

	freshForInheritance := !w.unqualifiedArrayPaths[path]
	w.unqualifiedArrayPaths[path] = true

	if !hadQualifiedTable {
		table = schema.NewTableSchema(w.newTableID(), tableName, collectionName)
		if freshForInheritance {
			for i, inh := range inherited {
				_ = table.UpsertColumn(&schema.Column{
					FieldPath:            inh.sqlName,
					SQLName:              inh.sqlName,
					SQLType:              inh.sqlType,
					IsPrimaryKey:         true,
					PrimaryKeyIndex:      i + 1,
					ForeignKeyTableName:  inh.sourceTable,
					ForeignKeyColumnName: inh.sqlName,
					ForeignKeyIndex:      i + 1,
				})
			}
		}
		w.tableMap[tableName] = table
	}

	priorMaxLevel, priorHadValue, priorHadOtherCols := scanArrayTableShape(table)
	priorWasComplex := hadQualifiedTable && !priorHadValue && (priorHadOtherCols || priorMaxLevel >= 0)

	if _, ok := indexColumnAtLevel(table, level); !ok {
		lvl := level
		_ = table.UpsertColumn(&schema.Column{
			FieldPath:       path,
			SQLName:         indexColumnName(sanitizeIdent(leafKey), level),
			SQLType:         reltype.Bigint,
			IsPrimaryKey:    true,
			IsGenerated:     true,
			IsIndex:         true,
			ArrayIndexLevel: &lvl,
			PrimaryKeyIndex: len(table.PrimaryKeyColumns()) + 1,
		})
	}

	joined := reltype.Relational(reltype.Null)
	var lastDocType reltype.Doc
	for _, el := range elements {
		dt := detectDocType(el)
		lastDocType = dt
		joined = reltype.Promote(joined, dt)
	}

	switch joined {
	case reltype.JavaObject:
		if priorHadValue {
			table.RemoveColumn("value")
		}
		childInherited := pkColumnsAsInherited(table, tableName)
		for _, el := range elements {
			if d, ok := asDocument(el); ok {
				if err := w.visitDocument(collectionName, path, d, childInherited, false); err != nil {
					return err
				}
			}
		}
	case reltype.Array:
		if priorHadValue {
			table.RemoveColumn("value")
		}
		childInherited := pkColumnsAsInherited(table, tableName)
		for _, el := range elements {
			if arr, ok := asArray(el); ok {
				if err := w.visitArray(collectionName, path, leafKey, arr, childInherited, level+1); err != nil {
					return err
				}
			}
		}
	default:
		if priorWasComplex {
			// complex-to-scalar conflict: previously merged-in object
			// fields, or deeper levels' descendant virtual tables, are
			// now orphaned.
			removeNonKeyColumns(table)
			removeDescendantTables(w.tableMap, tableName)
		} else if priorMaxLevel > level {
			// array-level conflict: elements now seen at a shallower
			// nesting level than previously observed.
			removeIndexColumnsAboveLevel(table, level)
			joined = reltype.Varchar
		}
		prevValueType := reltype.Null
		if vc, ok := table.Column("value"); ok {
			prevValueType = vc.SQLType
		}
		finalType := reltype.JoinRelational(prevValueType, joined)
		_ = table.UpsertColumn(&schema.Column{
			FieldPath: path,
			SQLName:   "value",
			SQLType:   finalType,
			DBType:    lastDocType,
		})
	}
	return nil
}

func scanArrayTableShape(t *schema.TableSchema) (maxLevel int, hadValue bool, hadOtherCols bool) {
	maxLevel = -1
	for _, c := range t.Columns() {
		switch {
		case c.SQLName == "value":
			hadValue = true
		case c.ArrayIndexLevel != nil:
			if *c.ArrayIndexLevel > maxLevel {
				maxLevel = *c.ArrayIndexLevel
			}
		case !c.IsPrimaryKey:
			hadOtherCols = true
		}
	}
	return maxLevel, hadValue, hadOtherCols
}

func indexColumnAtLevel(t *schema.TableSchema, level int) (*schema.Column, bool) {
	for _, c := range t.Columns() {
		if c.ArrayIndexLevel != nil && *c.ArrayIndexLevel == level {
			return c, true
		}
	}
	return nil, false
}

func removeNonKeyColumns(t *schema.TableSchema) {
	for _, c := range append([]*schema.Column(nil), t.Columns()...) {
		if !c.IsPrimaryKey {
			t.RemoveColumn(c.SQLName)
		}
	}
}

func removeIndexColumnsAboveLevel(t *schema.TableSchema, level int) {
	for _, c := range append([]*schema.Column(nil), t.Columns()...) {
		if c.ArrayIndexLevel != nil && *c.ArrayIndexLevel > level {
			t.RemoveColumn(c.SQLName)
		}
	}
}

func removeDescendantTables(tableMap map[string]*schema.TableSchema, prefix string) {
	descendant := prefix + "_"
	for name := range tableMap {
		if name != prefix && strings.HasPrefix(name, descendant) {
			delete(tableMap, name)
		}
	}
}
