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

import "fmt"

// Validate checks the §3.3 key invariants across the full set of tables
// that make up one database schema version: every table has at least one
// PK column, PK columns are contiguous and numbered 1..k, and every FK
// column resolves to an existing (table, column) pair within the same set.
func Validate(tables []*TableSchema) error {
	bySQLName := make(map[string]*TableSchema, len(tables))
	for _, t := range tables {
		bySQLName[t.SQLName] = t
	}

	for _, t := range tables {
		pks := t.PrimaryKeyColumns()
		if len(pks) == 0 {
			return fmt.Errorf("table %q: no primary key column", t.SQLName)
		}
		seen := make(map[int]bool, len(pks))
		for _, c := range pks {
			if c.PrimaryKeyIndex < 1 || c.PrimaryKeyIndex > len(pks) {
				return fmt.Errorf("table %q: primary key column %q has out-of-range primaryKeyIndex %d (expected 1..%d)",
					t.SQLName, c.SQLName, c.PrimaryKeyIndex, len(pks))
			}
			if seen[c.PrimaryKeyIndex] {
				return fmt.Errorf("table %q: duplicate primaryKeyIndex %d", t.SQLName, c.PrimaryKeyIndex)
			}
			seen[c.PrimaryKeyIndex] = true
		}
		// contiguity: PK columns must physically precede all non-PK
		// columns; their relative order is not checked.
		for i, c := range t.columns {
			if i < len(pks) {
				if !c.IsPrimaryKey {
					return fmt.Errorf("table %q: primary key columns are not contiguous from position 1", t.SQLName)
				}
			} else if c.IsPrimaryKey {
				return fmt.Errorf("table %q: primary key columns are not contiguous from position 1", t.SQLName)
			}
		}

		for _, c := range t.columns {
			if c.IsIndex && !(c.IsPrimaryKey && c.IsGenerated) {
				return fmt.Errorf("table %q: index column %q must be isPrimaryKey && isGenerated && isIndex", t.SQLName, c.SQLName)
			}
			if c.ForeignKeyTableName == "" {
				continue
			}
			ft, ok := bySQLName[c.ForeignKeyTableName]
			if !ok {
				return fmt.Errorf("table %q: column %q references unknown foreign table %q",
					t.SQLName, c.SQLName, c.ForeignKeyTableName)
			}
			if _, ok := ft.Column(c.ForeignKeyColumnName); !ok {
				return fmt.Errorf("table %q: column %q references unknown foreign column %q.%q",
					t.SQLName, c.SQLName, c.ForeignKeyTableName, c.ForeignKeyColumnName)
			}
		}
	}
	return nil
}
