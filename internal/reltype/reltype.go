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

// Package reltype implements the deterministic type-promotion lattice that
// joins a prior relational type with a newly observed document type into a
// relational type. It has no I/O and no dependency on the rest of the
// module; the Schema Inference Engine is its only caller.
package reltype

// Relational is the closed enumeration of relational column types a
// TableSchema column may carry. Array and JavaObject are interim: the
// inference engine uses them as bookkeeping markers for embedded
// arrays/documents while it is still walking a collection, but finalization
// removes any column left with one of these two types.
type Relational string

const (
	Null      Relational = "NULL"
	Boolean   Relational = "BOOLEAN"
	Integer   Relational = "INTEGER"
	Bigint    Relational = "BIGINT"
	Double    Relational = "DOUBLE"
	Decimal   Relational = "DECIMAL"
	Timestamp Relational = "TIMESTAMP"
	Varbinary Relational = "VARBINARY"
	Varchar   Relational = "VARCHAR"
	Array     Relational = "ARRAY"      // interim only
	JavaObject Relational = "JAVA_OBJECT" // interim only
)

// Doc is the closed enumeration of document types, mapped from the source
// document model's BSON-shaped type system.
type Doc string

const (
	DocBoolean    Doc = "boolean"
	DocBinary     Doc = "binary"
	DocDateTime   Doc = "date_time"
	DocDecimal128 Doc = "decimal128"
	DocDouble     Doc = "double"
	DocInt32      Doc = "int32"
	DocInt64      Doc = "int64"
	DocMaxKey     Doc = "max_key"
	DocMinKey     Doc = "min_key"
	DocNull       Doc = "null"
	DocObjectID   Doc = "object_id"
	DocString     Doc = "string"
	DocArray      Doc = "array"
	DocDocument   Doc = "document"
)

// canonical is the promote(NULL, T) row of the lattice: the default
// relational type a fresh observation of a document type maps to.
var canonical = map[Doc]Relational{
	DocBoolean:    Boolean,
	DocBinary:     Varbinary,
	DocDateTime:   Timestamp,
	DocDecimal128: Decimal,
	DocDouble:     Double,
	DocInt32:      Integer,
	DocInt64:      Bigint,
	DocMaxKey:     Varchar,
	DocMinKey:     Varchar,
	DocNull:       Null,
	DocObjectID:   Varchar,
	DocString:     Varchar,
	DocArray:      Array,
	DocDocument:   JavaObject,
}

// Canonical returns promote(NULL, d): the relational type a document type
// maps to in isolation, with no prior observation.
func Canonical(d Doc) Relational {
	if t, ok := canonical[d]; ok {
		return t
	}
	return Varchar
}

var numeric = map[Relational]bool{
	Integer: true,
	Bigint:  true,
	Double:  true,
	Decimal: true,
}

func isNumeric(t Relational) bool { return numeric[t] }

func isComplex(t Relational) bool { return t == Array || t == JavaObject }

// numericWiden is the widening table for the four numeric relational
// types. Keys are unordered pairs; promote is commutative over this subset.
var numericWiden = map[[2]Relational]Relational{
	{Integer, Bigint}:  Bigint,
	{Integer, Double}:  Double,
	{Integer, Decimal}: Decimal,
	{Bigint, Double}:   Decimal,
	{Bigint, Decimal}:  Decimal,
	{Double, Decimal}:  Decimal,
}

func widenNumeric(a, b Relational) Relational {
	if a == b {
		return a
	}
	if t, ok := numericWiden[[2]Relational{a, b}]; ok {
		return t
	}
	if t, ok := numericWiden[[2]Relational{b, a}]; ok {
		return t
	}
	return Varchar
}

// Promote joins a prior relational type with a newly observed document
// type into the next relational type. It is total: every combination of
// (Relational, Doc) is defined, defaulting to Varchar.
//
// Promote is commutative under repeated observation order for the scalar
// subset once Varchar is reached (Varchar absorbs any further scalar
// observation), and Varbinary is absorbing for all subsequent
// observations once reached, including complex ones.
func Promote(prev Relational, d Doc) Relational {
	if d == DocNull {
		// A null observation never demotes a prior type.
		return prev
	}
	if prev == Null || prev == "" {
		return Canonical(d)
	}
	return join(prev, Canonical(d))
}

// JoinRelational applies the same lattice rule as Promote directly to two
// already-resolved relational types, for callers (the array visitor) that
// fold a joined element type against a table's previously recorded type
// rather than against a single fresh Doc observation. Null is the
// identity element.
func JoinRelational(a, b Relational) Relational {
	if a == Null || a == "" {
		return b
	}
	if b == Null || b == "" {
		return a
	}
	return join(a, b)
}

// join is the pair-promotion core shared by Promote and JoinRelational; it
// assumes neither side is Null.
func join(prev, next Relational) Relational {
	if prev == next {
		return prev
	}
	if prev == Varchar {
		return Varchar
	}
	if prev == Varbinary {
		return Varbinary
	}
	if isComplex(prev) || isComplex(next) {
		return Varchar
	}
	if next == Varbinary {
		// A non-binary, non-Varchar scalar observing binary: binary
		// dominates non-binary scalars.
		return Varbinary
	}
	if isNumeric(prev) && isNumeric(next) {
		return widenNumeric(prev, next)
	}
	return Varchar
}

// IsInterim reports whether t is one of the two bookkeeping types that must
// never survive finalization (§4.B step 3).
func IsInterim(t Relational) bool {
	return t == Array || t == JavaObject
}
