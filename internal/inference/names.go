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
	"strings"
)

// maxIdentifierLength is the conservative default identifier-length budget
// (spec.md §9 Open Questions: "pick a conservative default (e.g. 120
// characters) and record it"). toName(path) longer than this triggers name
// elision through tableNameMap.
const maxIdentifierLength = 120

// toName mirrors the source transformation literally: it only replaces
// "." with "_". It does not truncate; truncation/elision is a separate
// concern handled by (*walker).tableName.
func toName(path string) string {
	return strings.ReplaceAll(path, ".", "_")
}

// sanitizeIdent makes s safe as a bare SQL column identifier without
// attempting full SQL-identifier quoting: non [A-Za-z0-9_] bytes become
// "_".
func sanitizeIdent(s string) string {
	b := []byte(s)
	changed := false
	for i, c := range b {
		if !(c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')) {
			b[i] = '_'
			changed = true
		}
	}
	if !changed {
		return s
	}
	return string(b)
}

// pkColumnName is the §4.B "Primary-key naming" rule: the PK column for a
// collection is named <collectionName>__id, mirrored under the same name
// in every virtual table.
func pkColumnName(collectionName string) string {
	return collectionName + "__id"
}

func indexColumnName(fieldSQLName string, level int) string {
	return fmt.Sprintf("%s_index_lvl_%d", fieldSQLName, level)
}
