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
	"fmt"
	"hash/fnv"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/docbridge/docbridge/internal/reltype"
	"github.com/docbridge/docbridge/internal/schema"
)

func fnv32(s string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(s))
	return h.Sum32()
}

// inheritedColumn is a parent table's PK column, carried down to a child
// (virtual) table where it becomes both a PK and an FK column.
type inheritedColumn struct {
	sqlName     string
	sqlType     reltype.Relational
	sourceTable string
}

// walker is the persistent state of one inference run: the table map, the
// name-elision map, and (faithfully reproducing the source behaviour
// described in spec.md §9 Open Questions) a *second*, unqualified-path
// existence map consulted by the array visitor's freshness check.
type walker struct {
	tableMap              map[string]*schema.TableSchema
	tableNameMap          map[string]string // logical key -> elided alias
	unqualifiedArrayPaths map[string]bool   // path (not collection-qualified) -> seen
	maxIdentLen           int
	newTableID            func() string
}

func (w *walker) resolveTableName(logicalKey string) string {
	if alias, ok := w.tableNameMap[logicalKey]; ok {
		return alias
	}
	candidate := toName(logicalKey)
	if len(candidate) <= w.maxIdentLen {
		return candidate
	}
	alias := fmt.Sprintf("t_%x", fnv32(logicalKey))
	w.tableNameMap[logicalKey] = alias
	return alias
}

func logicalTableKey(collectionName, path string) string {
	if path == "" {
		return collectionName
	}
	return collectionName + "." + path
}

func fieldPathOf(path, key string) string {
	if path == "" {
		return key
	}
	return path + "." + key
}

func isComplexType(t reltype.Relational) bool {
	return t == reltype.Array || t == reltype.JavaObject
}

func getOrCreateTable(m map[string]*schema.TableSchema, name, sqlName, collectionName string, newID func() string, inherited []inheritedColumn) (*schema.TableSchema, bool) {
	if t, ok := m[name]; ok {
		return t, false
	}
	t := schema.NewTableSchema(newID(), sqlName, collectionName)
	for i, inh := range inherited {
		_ = t.UpsertColumn(&schema.Column{
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
	m[name] = t
	return t, true
}

// visitDocument implements §4.B step 1 ("Document visit").
func (w *walker) visitDocument(collectionName, path string, doc bson.D, inherited []inheritedColumn, isRoot bool) error {
	tableName := w.resolveTableName(logicalTableKey(collectionName, path))
	table, _ := getOrCreateTable(w.tableMap, tableName, tableName, collectionName, w.newTableID, inherited)

	for _, field := range doc {
		isRootID := isRoot && field.Key == "_id"

		colSQLName := sanitizeIdent(field.Key)
		if isRootID {
			colSQLName = pkColumnName(collectionName)
		}

		existing, hadCol := table.Column(colSQLName)
		prevType := reltype.Null
		if hadCol {
			prevType = existing.SQLType
		}

		docType := detectDocType(field.Value)
		nextType := reltype.Promote(prevType, docType)
		if isRootID && docType == reltype.DocDocument {
			// The _id is always serialized as a scalar.
			nextType = reltype.Varchar
		}

		childPath := fieldPathOf(path, field.Key)

		if isComplexType(nextType) && field.Value != nil {
			childInherited := pkColumnsAsInherited(table, tableName)
			switch nextType {
			case reltype.JavaObject:
				if childDoc, ok := asDocument(field.Value); ok {
					if err := w.visitDocument(collectionName, childPath, childDoc, childInherited, false); err != nil {
						return err
					}
				}
			case reltype.Array:
				if arr, ok := asArray(field.Value); ok {
					if err := w.visitArray(collectionName, childPath, field.Key, arr, childInherited, 0); err != nil {
						return err
					}
				}
			}
		}

		if hadCol && existing.VirtualTableName != "" && !isComplexType(nextType) {
			// The field demoted from complex to scalar: the virtual
			// table it used to anchor is now orphaned.
			delete(w.tableMap, existing.VirtualTableName)
		}

		col := &schema.Column{
			FieldPath:    childPath,
			SQLName:      colSQLName,
			SQLType:      nextType,
			DBType:       docType,
			IsPrimaryKey: isRootID,
		}
		if isRootID {
			col.PrimaryKeyIndex = 1
		}
		if isComplexType(nextType) && !col.IsPrimaryKey {
			col.VirtualTableName = w.resolveTableName(logicalTableKey(collectionName, childPath))
		}
		if err := table.UpsertColumn(col); err != nil {
			return err
		}
	}

	if isRoot {
		w.propagatePKType(table, tableName)
	}
	return nil
}

func pkColumnsAsInherited(t *schema.TableSchema, sourceTable string) []inheritedColumn {
	pks := t.PrimaryKeyColumns()
	out := make([]inheritedColumn, 0, len(pks))
	for _, c := range pks {
		out = append(out, inheritedColumn{sqlName: c.SQLName, sqlType: c.SQLType, sourceTable: sourceTable})
	}
	return out
}

// propagatePKType is the §4.B "PK consistency pass": once the root
// document's own _id column has its final sqlType for this observation,
// mirror that type into every virtual table's PK/FK mirror column of the
// same name.
func (w *walker) propagatePKType(rootTable *schema.TableSchema, rootTableName string) {
	idCol, ok := rootTable.Column(pkColumnName(rootTable.CollectionName))
	if !ok {
		return
	}
	for name, t := range w.tableMap {
		if name == rootTableName {
			continue
		}
		if c, ok := t.Column(idCol.SQLName); ok && c.IsPrimaryKey {
			c.SQLType = idCol.SQLType
		}
	}
}
