// Copyright 2023 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package morph

import (
	"database/sql"
	"fmt"

	"github.com/Velocidex/ordereddict"
)

// Cursor is a forward-only, row-at-a-time view over tabular results. The
// materializer borrows a cursor for the duration of one sequence and never
// advances it ahead of consumption. A live cursor must be driven by one
// consumer at a time.
type Cursor interface {
	// Columns returns the ordered column names of the result. The list is
	// fixed for the lifetime of the cursor.
	Columns() []string

	// Value returns the value of the current row at the given ordinal. A
	// database null is returned as nil.
	Value(ordinal int) (any, error)

	// IsNull reports whether the current row is null at the given ordinal.
	IsNull(ordinal int) (bool, error)

	// Next advances to the next row, returning false on exhaustion or
	// error.
	Next() bool

	// Err returns the error, if any, that stopped iteration.
	Err() error

	// Close releases the cursor.
	Close() error
}

// ordinalLookup is implemented by cursors that can resolve a column name
// to its ordinal without a scan of the column list.
type ordinalLookup interface {
	Ordinal(name string) (int, bool)
}

// rowsCursor adapts *sql.Rows to the Cursor interface. The schema is
// captured once at construction; each advance scans the full row into a
// value buffer so that ordinals can be read in any order.
type rowsCursor struct {
	rows    *sql.Rows
	columns []string
	schema  *ordereddict.Dict
	values  []any
	scan    []any
	err     error
}

// Rows returns a Cursor over the given sql.Rows. The caller keeps
// ownership of the rows; closing the cursor closes them.
func Rows(rows *sql.Rows) (Cursor, error) {
	if rows == nil {
		return nil, fmt.Errorf("cannot build cursor: %w", ErrNilArgument)
	}
	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	schema := ordereddict.NewDict()
	for i, column := range columns {
		// First occurrence wins for duplicated column names.
		if _, ok := schema.Get(column); !ok {
			schema.Set(column, i)
		}
	}
	c := &rowsCursor{
		rows:    rows,
		columns: columns,
		schema:  schema,
		values:  make([]any, len(columns)),
	}
	c.scan = make([]any, len(columns))
	for i := range c.values {
		c.scan[i] = &c.values[i]
	}
	return c, nil
}

func (c *rowsCursor) Columns() []string {
	return c.columns
}

func (c *rowsCursor) Ordinal(name string) (int, bool) {
	v, ok := c.schema.Get(name)
	if !ok {
		return 0, false
	}
	return v.(int), true
}

func (c *rowsCursor) Next() bool {
	if c.err != nil {
		return false
	}
	if !c.rows.Next() {
		return false
	}
	for i := range c.values {
		c.values[i] = nil
	}
	if err := c.rows.Scan(c.scan...); err != nil {
		c.err = err
		return false
	}
	return true
}

func (c *rowsCursor) Value(ordinal int) (any, error) {
	if ordinal < 0 || ordinal >= len(c.values) {
		return nil, fmt.Errorf("ordinal %d out of range [0, %d)", ordinal, len(c.values))
	}
	return c.values[ordinal], nil
}

func (c *rowsCursor) IsNull(ordinal int) (bool, error) {
	v, err := c.Value(ordinal)
	if err != nil {
		return false, err
	}
	return v == nil, nil
}

func (c *rowsCursor) Err() error {
	if c.err != nil {
		return c.err
	}
	return c.rows.Err()
}

func (c *rowsCursor) Close() error {
	return c.rows.Close()
}

// schemaCursor carries column information only and yields no rows. It
// backs the SchemaOnly command behavior.
type schemaCursor struct {
	columns []string
}

func (c *schemaCursor) Columns() []string { return c.columns }

func (c *schemaCursor) Value(ordinal int) (any, error) {
	return nil, fmt.Errorf("no current row")
}

func (c *schemaCursor) IsNull(ordinal int) (bool, error) {
	return false, fmt.Errorf("no current row")
}

func (c *schemaCursor) Next() bool   { return false }
func (c *schemaCursor) Err() error   { return nil }
func (c *schemaCursor) Close() error { return nil }

// ordinalOf resolves a column name against a cursor, preferring the
// cursor's own lookup when it has one.
func ordinalOf(cur Cursor, name string) (int, bool) {
	if l, ok := cur.(ordinalLookup); ok {
		return l.Ordinal(name)
	}
	for i, column := range cur.Columns() {
		if column == name {
			return i, true
		}
	}
	return 0, false
}
