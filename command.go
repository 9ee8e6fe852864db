// Copyright 2023 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package morph

import (
	"context"
	"database/sql"
	"fmt"
)

// Behavior flags modify how a command is executed. A command honors the
// flags that apply to it and ignores the rest.
type Behavior uint

const (
	// CloseConnection asks the command to release its connection when the
	// resulting cursor is closed.
	CloseConnection Behavior = 1 << iota

	// SingleResult declares that only the first result set is consumed.
	// database/sql exposes one result set per query, so SQLCommand
	// behaves this way with or without the flag.
	SingleResult

	// SchemaOnly asks for column information without row data.
	SchemaOnly
)

// Command produces a cursor on demand. It is the entry point used when
// materializing from a queryable command rather than from an existing
// cursor.
type Command interface {
	Query(ctx context.Context, behavior Behavior) (Cursor, error)
}

// ConnectedCommand is a Command bound to a connection-like resource whose
// lifetime the materializer can scope (see acquireConnection).
type ConnectedCommand interface {
	Command
	Connection() Connection
}

// Connection is a connection-like resource with explicit open/close state.
type Connection interface {
	IsOpen() bool
	Open(ctx context.Context) error
	Close() error
}

// scopedConnection tracks whether this component opened a connection, so
// that it is closed on every exit path if and only if we opened it. A
// connection that was already open at acquisition is left open.
type scopedConnection struct {
	conn     Connection
	opened   bool
	released bool
}

// acquireConnection opens conn if it is not already open. A nil conn is
// valid and yields a scope that releases nothing.
func acquireConnection(ctx context.Context, conn Connection) (*scopedConnection, error) {
	sc := &scopedConnection{conn: conn}
	if conn == nil || conn.IsOpen() {
		return sc, nil
	}
	if err := conn.Open(ctx); err != nil {
		return nil, err
	}
	sc.opened = true
	return sc, nil
}

// release closes the connection if this scope opened it. It is safe to
// call more than once and on a nil scope; only the first call closes.
func (sc *scopedConnection) release() error {
	if sc == nil || sc.released {
		return nil
	}
	sc.released = true
	if !sc.opened {
		return nil
	}
	return sc.conn.Close()
}

// SQLCommand runs a fixed query against a database handle and yields a
// cursor over the result. It implements Command and the TraceString entry
// point of the query provider contract.
type SQLCommand struct {
	DB   *sql.DB
	SQL  string
	Args []any
}

func (c *SQLCommand) Query(ctx context.Context, behavior Behavior) (Cursor, error) {
	if c.DB == nil {
		return nil, fmt.Errorf("cannot run command: %w", ErrNilArgument)
	}
	rows, err := c.DB.QueryContext(ctx, c.SQL, c.Args...)
	if err != nil {
		return nil, err
	}
	cur, err := Rows(rows)
	if err != nil {
		rows.Close()
		return nil, err
	}
	if behavior&SchemaOnly != 0 {
		columns := cur.Columns()
		if err := cur.Close(); err != nil {
			return nil, err
		}
		return &schemaCursor{columns: columns}, nil
	}
	return cur, nil
}

// TraceString returns the query text the command will execute.
func (c *SQLCommand) TraceString() (string, error) {
	return c.SQL, nil
}
