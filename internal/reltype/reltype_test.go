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

package reltype

import "testing"

var allDocTypes = []Doc{
	DocBoolean, DocBinary, DocDateTime, DocDecimal128, DocDouble, DocInt32,
	DocInt64, DocMaxKey, DocMinKey, DocNull, DocObjectID, DocString,
	DocArray, DocDocument,
}

var allRelationalTypes = []Relational{
	Null, Boolean, Integer, Bigint, Double, Decimal, Timestamp, Varbinary,
	Varchar, Array, JavaObject,
}

func TestPromoteIsTotal(t *testing.T) {
	for _, r := range allRelationalTypes {
		for _, d := range allDocTypes {
			got := Promote(r, d)
			if got == "" {
				t.Errorf("Promote(%v, %v) is undefined", r, d)
			}
		}
	}
}

func TestPromoteVarcharAbsorbsScalars(t *testing.T) {
	scalarDocTypes := []Doc{
		DocBoolean, DocBinary, DocDateTime, DocDecimal128, DocDouble,
		DocInt32, DocInt64, DocMaxKey, DocMinKey, DocObjectID, DocString,
	}
	for _, d := range scalarDocTypes {
		if got := Promote(Varchar, d); got != Varchar {
			t.Errorf("Promote(VARCHAR, %v) = %v, want VARCHAR", d, got)
		}
	}
}

func TestPromoteVarbinaryAbsorbsEverything(t *testing.T) {
	for _, d := range allDocTypes {
		if d == DocNull {
			continue
		}
		if got := Promote(Varbinary, d); got != Varbinary {
			t.Errorf("Promote(VARBINARY, %v) = %v, want VARBINARY", d, got)
		}
	}
}

func TestPromoteNullPreserves(t *testing.T) {
	for _, r := range allRelationalTypes {
		if got := Promote(r, DocNull); got != r {
			t.Errorf("Promote(%v, null) = %v, want %v", r, got, r)
		}
	}
}

func TestPromoteFromNull(t *testing.T) {
	cases := map[Doc]Relational{
		DocBoolean:    Boolean,
		DocInt32:      Integer,
		DocInt64:      Bigint,
		DocDecimal128: Decimal,
		DocDouble:     Double,
		DocDateTime:   Timestamp,
		DocBinary:     Varbinary,
		DocString:     Varchar,
		DocObjectID:   Varchar,
		DocMinKey:     Varchar,
		DocMaxKey:     Varchar,
		DocArray:      Array,
		DocDocument:   JavaObject,
		DocNull:       Null,
	}
	for d, want := range cases {
		if got := Promote(Null, d); got != want {
			t.Errorf("Promote(NULL, %v) = %v, want %v", d, got, want)
		}
	}
}

func TestNumericWidening(t *testing.T) {
	cases := []struct {
		prev Relational
		d    Doc
		want Relational
	}{
		{Integer, DocInt64, Bigint},
		{Integer, DocDouble, Double},
		{Integer, DocDecimal128, Decimal},
		{Bigint, DocDouble, Decimal},
		{Double, DocInt64, Decimal},
		{Decimal, DocInt32, Decimal},
		{Decimal, DocDouble, Decimal},
	}
	for _, c := range cases {
		if got := Promote(c.prev, c.d); got != c.want {
			t.Errorf("Promote(%v, %v) = %v, want %v", c.prev, c.d, got, c.want)
		}
	}
}

// S4: observing int32 then int64 in field qty -> BIGINT, then double -> DECIMAL.
func TestScenarioS4(t *testing.T) {
	qty := Canonical(DocInt32)
	qty = Promote(qty, DocInt64)
	if qty != Bigint {
		t.Fatalf("after int32,int64: got %v, want BIGINT", qty)
	}
	qty = Promote(qty, DocDouble)
	if qty != Decimal {
		t.Fatalf("after int32,int64,double: got %v, want DECIMAL", qty)
	}
}

func TestScalarIncompatibleFallsBackToVarchar(t *testing.T) {
	if got := Promote(Boolean, DocString); got != Varchar {
		t.Errorf("Promote(BOOLEAN, string) = %v, want VARCHAR", got)
	}
	if got := Promote(Timestamp, DocInt32); got != Varchar {
		t.Errorf("Promote(TIMESTAMP, int32) = %v, want VARCHAR", got)
	}
}

func TestComplexRules(t *testing.T) {
	if got := Promote(Array, DocArray); got != Array {
		t.Errorf("Promote(ARRAY, array) = %v, want ARRAY", got)
	}
	if got := Promote(JavaObject, DocDocument); got != JavaObject {
		t.Errorf("Promote(JAVA_OBJECT, document) = %v, want JAVA_OBJECT", got)
	}
	if got := Promote(Array, DocDocument); got != Varchar {
		t.Errorf("Promote(ARRAY, document) = %v, want VARCHAR", got)
	}
	if got := Promote(Boolean, DocArray); got != Varchar {
		t.Errorf("Promote(BOOLEAN, array) = %v, want VARCHAR", got)
	}
}

func TestBinaryDominatesNonBinaryScalar(t *testing.T) {
	if got := Promote(Integer, DocBinary); got != Varbinary {
		t.Errorf("Promote(INTEGER, binary) = %v, want VARBINARY", got)
	}
	if got := Promote(Boolean, DocBinary); got != Varbinary {
		t.Errorf("Promote(BOOLEAN, binary) = %v, want VARBINARY", got)
	}
}

func TestIsInterim(t *testing.T) {
	if !IsInterim(Array) || !IsInterim(JavaObject) {
		t.Fatal("ARRAY and JAVA_OBJECT must be interim")
	}
	if IsInterim(Varchar) || IsInterim(Decimal) {
		t.Fatal("finalized scalar types must not be interim")
	}
}
