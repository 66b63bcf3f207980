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

// Package tabular is a minimal stand-in for the external tabular-client
// surface spec.md names but leaves out of scope (§1, §6): a
// statement/result-set/metadata API shaped closely enough after a
// database/sql-style driver to drive an end-to-end example and tests,
// without claiming to be a real database/sql driver implementation.
package tabular

import (
	"context"
	"fmt"
	"time"

	"github.com/docbridge/docbridge/internal/docsource"
	"github.com/docbridge/docbridge/internal/pipeline"
	"github.com/docbridge/docbridge/internal/planner"
	"github.com/docbridge/docbridge/internal/querycontext"
	"github.com/docbridge/docbridge/internal/session"
)

// ColumnMetadata describes one result column, projected from a
// querycontext.ColumnDescriptor into the shape a tabular client expects.
type ColumnMetadata struct {
	Name     string
	SQLType  string
	Nullable bool
}

// Rows is an executed statement's result set: ordered column metadata plus
// every row, each row a slice parallel to Columns.
type Rows struct {
	Columns []ColumnMetadata
	Values  [][]any
}

// Statement is a compiled, not-yet-executed query: the planner/pipeline
// output plus whatever the Planner Driver could not push down.
type Statement struct {
	SQL      string
	Context  *querycontext.QueryContext
	Residual []string
}

// Conn is the tabular surface bound to one compiled catalog and one live
// document source. Every Query runs under the Conn's single
// session.Session with a fresh correlation tag, so a concurrent Cancel can
// kill it by that tag (spec.md §5).
type Conn struct {
	driver  *planner.Driver
	source  *docsource.Source
	session *session.Session
	timeout time.Duration
}

// Option configures a Conn.
type Option func(*Conn)

// WithTimeout bounds every Query's execution (spec.md §5/§7: a deadline
// that fires is reported as util.KindTimeout). The default, zero, runs
// unbounded.
func WithTimeout(d time.Duration) Option {
	return func(c *Conn) { c.timeout = d }
}

// NewConn builds a Conn that compiles SQL against driver and executes
// through source.
func NewConn(driver *planner.Driver, source *docsource.Source, opts ...Option) *Conn {
	c := &Conn{driver: driver, source: source, session: session.New(source)}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Cancel cancels whatever query is currently in flight on this Conn, if
// any, and rejects further queries until the cancellation is observed by
// the caller (a subsequent Query call returns the QueryCancelled error
// Begin produces, and the Conn must be recovered with Reset).
func (c *Conn) Cancel(ctx context.Context) error {
	return c.session.Cancel(ctx)
}

// Reset clears a cancelled Conn so it accepts queries again.
func (c *Conn) Reset() {
	c.session.Reset()
}

// Prepare compiles sql into a Statement without executing it.
func (c *Conn) Prepare(sql string) (*Statement, error) {
	plan, err := c.driver.Compile(sql)
	if err != nil {
		return nil, err
	}
	qc, err := pipeline.Lower(plan)
	if err != nil {
		return nil, err
	}
	return &Statement{SQL: sql, Context: qc, Residual: plan.Residual}, nil
}

// Query executes stmt and decodes the result into Rows, projecting each
// document field named by stmt's column descriptors in order. Execution
// runs under a fresh correlation tag and, if WithTimeout was given, a
// bounded deadline; Cancel can interrupt it by that tag while it runs.
func (c *Conn) Query(ctx context.Context, stmt *Statement) (*Rows, error) {
	tag, err := c.session.Begin()
	if err != nil {
		return nil, err
	}
	defer c.session.End(tag)

	var docs []any
	err = c.session.WithDeadline(ctx, c.timeout, func(ctx context.Context) error {
		var execErr error
		docs, execErr = c.source.Execute(ctx, stmt.Context, tag)
		return execErr
	})
	if err != nil {
		return nil, err
	}

	cols := make([]ColumnMetadata, 0, len(stmt.Context.Columns))
	for _, cd := range stmt.Context.Columns {
		cols = append(cols, ColumnMetadata{Name: cd.Label, SQLType: string(cd.Type), Nullable: cd.Nullable})
	}

	rows := make([][]any, 0, len(docs))
	for _, d := range docs {
		m, ok := d.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("decoding result row: expected a document, got %T", d)
		}
		row := make([]any, len(cols))
		for i, c := range cols {
			row[i] = m[c.Name]
		}
		rows = append(rows, row)
	}

	return &Rows{Columns: cols, Values: rows}, nil
}

// QueryString is a convenience wrapper around Prepare+Query for callers
// that have no need to reuse a compiled Statement.
func (c *Conn) QueryString(ctx context.Context, sql string) (*Rows, error) {
	stmt, err := c.Prepare(sql)
	if err != nil {
		return nil, err
	}
	return c.Query(ctx, stmt)
}
