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
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/docbridge/docbridge/internal/reltype"
)

// detectDocType maps a decoded BSON value to the closed document-type
// enumeration of spec.md §3.2.
func detectDocType(v any) reltype.Doc {
	switch val := v.(type) {
	case nil:
		return reltype.DocNull
	case bool:
		return reltype.DocBoolean
	case int32:
		return reltype.DocInt32
	case int64:
		return reltype.DocInt64
	case int:
		return reltype.DocInt64
	case float64:
		return reltype.DocDouble
	case bson.Decimal128:
		return reltype.DocDecimal128
	case bson.DateTime:
		return reltype.DocDateTime
	case bson.Binary:
		return reltype.DocBinary
	case bson.ObjectID:
		return reltype.DocObjectID
	case string:
		return reltype.DocString
	case bson.MinKey:
		return reltype.DocMinKey
	case bson.MaxKey:
		return reltype.DocMaxKey
	case bson.D:
		return reltype.DocDocument
	case bson.A:
		return reltype.DocArray
	case bson.M:
		return reltype.DocDocument
	case []any:
		return reltype.DocArray
	default:
		// Unrecognized wire types participate in the lattice via the
		// universal fallback; inference never errors on shape alone
		// (§4.B "Failure semantics").
		return reltype.DocString
	}
}

// asDocument returns v as an ordered document if it is one.
func asDocument(v any) (bson.D, bool) {
	switch d := v.(type) {
	case bson.D:
		return d, true
	case bson.M:
		out := make(bson.D, 0, len(d))
		for k, val := range d {
			out = append(out, bson.E{Key: k, Value: val})
		}
		return out, true
	default:
		return nil, false
	}
}

// asArray returns v as an element slice if it is an array.
func asArray(v any) ([]any, bool) {
	switch a := v.(type) {
	case bson.A:
		return []any(a), true
	case []any:
		return a, true
	default:
		return nil, false
	}
}
