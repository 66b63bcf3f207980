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

// Package planner is the Planner Driver (spec.md §4.F): it parses SQL
// against the Catalog Adapter, validates, rewrites with the required
// push-downs, and produces a physical Plan whose operators are each
// pushable (compiled into a pipeline stage by internal/pipeline) or
// residual (left for the external execution collaborator).
//
// SQL parsing itself is delegated to github.com/pingcap/tidb/pkg/parser —
// adopted from the retrieval pack's Pieczasz-smf repository, which uses
// the same parser for MySQL DDL — rather than hand-rolling a tokenizer:
// the read-only, single/same-collection-join SELECT subset this system
// accepts is squarely inside the grammar that parser already implements.
package planner

import (
	"fmt"

	"github.com/pingcap/tidb/pkg/parser"
	"github.com/pingcap/tidb/pkg/parser/ast"
	"github.com/pingcap/tidb/pkg/parser/opcode"
	_ "github.com/pingcap/tidb/pkg/parser/test_driver"

	"github.com/docbridge/docbridge/internal/catalog"
	"github.com/docbridge/docbridge/internal/util"
)

// Filter is a pushable equality predicate: sqlName = value.
type Filter struct {
	Column string
	Value  any
}

// OrderBy is a single pushable sort key.
type OrderBy struct {
	Column string
	Desc   bool
}

// LimitOffset is a pushable row-count cap and skip.
type LimitOffset struct {
	Limit  int64
	Offset int64
}

// Plan is the Planner Driver's output: one scanned table plus the
// push-downs the Pipeline Lowerer must compile. Anything not captured here
// (e.g. a join across two distinct base collections) is residual and is
// reported via Residual rather than silently dropped.
type Plan struct {
	Table    *catalog.TableInfo
	Columns  []string // nil/empty means every column of Table, in catalog order
	Filters  []Filter
	OrderBy  *OrderBy
	Limit    *LimitOffset
	Residual []string // human-readable names of operators the compiler left residual
}

// Driver compiles SQL text against one Catalog.
type Driver struct {
	p   *parser.Parser
	cat *catalog.Catalog
}

// New constructs a Driver bound to cat.
func New(cat *catalog.Catalog) *Driver {
	return &Driver{p: parser.New(), cat: cat}
}

// Compile parses sql and produces a Plan carrying the required push-downs:
// same-base-collection join, project, filter, sort, and limit. For
// SELECT * the Plan's Columns stay empty and the Pipeline Lowerer expands
// them into an explicit projection.
func (d *Driver) Compile(sql string) (*Plan, error) {
	stmtNodes, _, err := d.p.Parse(sql, "", "")
	if err != nil {
		return nil, util.NewKindError(util.KindQueryCompileError, "parsing SQL", err)
	}
	if len(stmtNodes) != 1 {
		return nil, util.NewKindError(util.KindQueryCompileError, "exactly one statement is required", nil)
	}
	sel, ok := stmtNodes[0].(*ast.SelectStmt)
	if !ok {
		return nil, util.NewKindError(util.KindUnsupportedFeature, "only SELECT is supported", nil)
	}
	return d.compileSelect(sel)
}

func (d *Driver) compileSelect(sel *ast.SelectStmt) (*Plan, error) {
	table, residualJoin, err := d.resolveFrom(sel.From)
	if err != nil {
		return nil, err
	}

	plan := &Plan{Table: table}
	if residualJoin != "" {
		plan.Residual = append(plan.Residual, residualJoin)
	}

	cols, err := d.resolveColumns(sel.Fields, table)
	if err != nil {
		return nil, err
	}
	plan.Columns = cols // project push-down: nil for SELECT *, made explicit at lowering time

	if sel.Where != nil {
		filters, residual, err := resolveWhere(sel.Where, table)
		if err != nil {
			return nil, err
		}
		plan.Filters = filters
		plan.Residual = append(plan.Residual, residual...)
	}

	if sel.OrderBy != nil {
		ob, err := resolveOrderBy(sel.OrderBy, table)
		if err != nil {
			return nil, err
		}
		plan.OrderBy = ob
	}

	if sel.Limit != nil {
		plan.Limit = resolveLimit(sel.Limit)
	}

	return plan, nil
}

// resolveFrom returns the table to scan. A join is push-down-able only
// when both sides share a base collection (spec.md §4.F); such a join
// collapses to scanning the child (deeper) table, since its own unwind
// stages already express the parent relationship. A join across distinct
// base collections is reported as residual and the left-hand table is
// scanned on its own — full $lookup lowering is out of scope for this
// pass.
func (d *Driver) resolveFrom(from *ast.TableRefsClause) (*catalog.TableInfo, string, error) {
	if from == nil || from.TableRefs == nil {
		return nil, "", util.NewKindError(util.KindQueryCompileError, "FROM clause is required", nil)
	}
	join := from.TableRefs
	leftName, err := tableNameOf(join.Left)
	if err != nil {
		return nil, "", err
	}
	left, ok := d.cat.Table(leftName)
	if !ok {
		return nil, "", util.NewKindError(util.KindSchemaNotFound, fmt.Sprintf("table %q not found", leftName), nil)
	}
	if join.Right == nil {
		return left, "", nil
	}
	rightName, err := tableNameOf(join.Right)
	if err != nil {
		return nil, "", err
	}
	right, ok := d.cat.Table(rightName)
	if !ok {
		return nil, "", util.NewKindError(util.KindSchemaNotFound, fmt.Sprintf("table %q not found", rightName), nil)
	}
	if !catalog.SameBaseCollection(left, right) {
		return left, fmt.Sprintf("join %s/%s across distinct collections", leftName, rightName), nil
	}
	// Same base collection: scan whichever side carries more array-index
	// columns (the deeper virtual table), its unwind prefix already
	// expresses the join.
	if len(arrayLevels(right)) > len(arrayLevels(left)) {
		return right, "", nil
	}
	return left, "", nil
}

func arrayLevels(t *catalog.TableInfo) []int {
	var levels []int
	for _, c := range t.Underlying().Columns() {
		if c.ArrayIndexLevel != nil {
			levels = append(levels, *c.ArrayIndexLevel)
		}
	}
	return levels
}

func tableNameOf(node ast.ResultSetNode) (string, error) {
	src, ok := node.(*ast.TableSource)
	if !ok {
		return "", util.NewKindError(util.KindUnsupportedFeature, "unsupported FROM clause shape", nil)
	}
	tn, ok := src.Source.(*ast.TableName)
	if !ok {
		return "", util.NewKindError(util.KindUnsupportedFeature, "only direct table references are supported in FROM", nil)
	}
	return tn.Name.O, nil
}

func (d *Driver) resolveColumns(fields *ast.FieldList, table *catalog.TableInfo) ([]string, error) {
	if fields == nil {
		return nil, nil
	}
	var cols []string
	for _, f := range fields.Fields {
		if f.WildCard != nil {
			return nil, nil // nil means "every column", still explicit at lowering time
		}
		colExpr, ok := f.Expr.(*ast.ColumnNameExpr)
		if !ok {
			return nil, util.NewKindError(util.KindUnsupportedFeature, "only plain column references are supported in SELECT", nil)
		}
		name := colExpr.Name.Name.O
		if _, ok := table.Column(name); !ok {
			return nil, util.NewKindError(util.KindQueryCompileError, fmt.Sprintf("unknown column %q", name), nil)
		}
		cols = append(cols, name)
	}
	return cols, nil
}

// resolveWhere splits a WHERE clause into pushable equality filters
// (conjunction of `column = literal`) and a residual description of
// anything else.
func resolveWhere(expr ast.ExprNode, table *catalog.TableInfo) ([]Filter, []string, error) {
	var filters []Filter
	var residual []string
	var walk func(e ast.ExprNode)
	walk = func(e ast.ExprNode) {
		if bin, ok := e.(*ast.BinaryOperationExpr); ok {
			if bin.Op == opcode.LogicAnd {
				walk(bin.L)
				walk(bin.R)
				return
			}
			if bin.Op == opcode.EQ {
				if f, ok := asEqualityFilter(bin, table); ok {
					filters = append(filters, f)
					return
				}
			}
		}
		residual = append(residual, "WHERE clause term not pushable")
	}
	walk(expr)
	return filters, residual, nil
}

func asEqualityFilter(bin *ast.BinaryOperationExpr, table *catalog.TableInfo) (Filter, bool) {
	col, ok := bin.L.(*ast.ColumnNameExpr)
	val := bin.R
	if !ok {
		col, ok = bin.R.(*ast.ColumnNameExpr)
		val = bin.L
	}
	if !ok {
		return Filter{}, false
	}
	name := col.Name.Name.O
	if _, ok := table.Column(name); !ok {
		return Filter{}, false
	}
	lit, ok := literalValue(val)
	if !ok {
		return Filter{}, false
	}
	return Filter{Column: name, Value: lit}, true
}

func literalValue(e ast.ExprNode) (any, bool) {
	v, ok := e.(ast.ValueExpr)
	if !ok {
		return nil, false
	}
	return v.GetValue(), true
}

func resolveOrderBy(ob *ast.OrderByClause, table *catalog.TableInfo) (*OrderBy, error) {
	if len(ob.Items) == 0 {
		return nil, nil
	}
	if len(ob.Items) > 1 {
		return nil, util.NewKindError(util.KindUnsupportedFeature, "only a single ORDER BY term is supported", nil)
	}
	item := ob.Items[0]
	col, ok := item.Expr.(*ast.ColumnNameExpr)
	if !ok {
		return nil, util.NewKindError(util.KindUnsupportedFeature, "only plain column references are supported in ORDER BY", nil)
	}
	name := col.Name.Name.O
	if _, ok := table.Column(name); !ok {
		return nil, util.NewKindError(util.KindQueryCompileError, fmt.Sprintf("unknown column %q in ORDER BY", name), nil)
	}
	return &OrderBy{Column: name, Desc: item.Desc}, nil
}

func resolveLimit(l *ast.Limit) *LimitOffset {
	out := &LimitOffset{}
	if l.Count != nil {
		if v, ok := literalValue(l.Count); ok {
			out.Limit = toInt64(v)
		}
	}
	if l.Offset != nil {
		if v, ok := literalValue(l.Offset); ok {
			out.Offset = toInt64(v)
		}
	}
	return out
}

func toInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case uint64:
		return int64(n)
	default:
		return 0
	}
}
