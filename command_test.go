package morph_test

import (
	"context"
	"errors"

	. "gopkg.in/check.v1"

	"github.com/canonical/morph"
)

type CommandSuite struct{}

var _ = Suite(&CommandSuite{})

// sliceCursor is an in-memory Cursor over fixed rows.
type sliceCursor struct {
	columns []string
	rows    [][]any
	idx     int
	closed  int
}

func (c *sliceCursor) Columns() []string { return c.columns }

func (c *sliceCursor) Value(ordinal int) (any, error) {
	return c.rows[c.idx-1][ordinal], nil
}

func (c *sliceCursor) IsNull(ordinal int) (bool, error) {
	return c.rows[c.idx-1][ordinal] == nil, nil
}

func (c *sliceCursor) Next() bool {
	if c.idx >= len(c.rows) {
		return false
	}
	c.idx++
	return true
}

func (c *sliceCursor) Err() error { return nil }

func (c *sliceCursor) Close() error {
	c.closed++
	return nil
}

type fakeConnection struct {
	open    bool
	opens   int
	closes  int
	openErr error
}

func (f *fakeConnection) IsOpen() bool { return f.open }

func (f *fakeConnection) Open(ctx context.Context) error {
	if f.openErr != nil {
		return f.openErr
	}
	f.opens++
	f.open = true
	return nil
}

func (f *fakeConnection) Close() error {
	f.closes++
	f.open = false
	return nil
}

type fakeCommand struct {
	conn     *fakeConnection
	cursor   *sliceCursor
	queryErr error
	behavior morph.Behavior
}

func (f *fakeCommand) Query(ctx context.Context, behavior morph.Behavior) (morph.Cursor, error) {
	f.behavior = behavior
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	return f.cursor, nil
}

func (f *fakeCommand) Connection() morph.Connection {
	if f.conn == nil {
		return nil
	}
	return f.conn
}

func personRows() *sliceCursor {
	return &sliceCursor{
		columns: []string{"id", "name", "town"},
		rows: [][]any{
			{int64(20), "Mark", "Norwich"},
			{int64(30), "Fred", "Ipswich"},
		},
	}
}

func (s *CommandSuite) TestOpensAndClosesConnection(c *C) {
	conn := &fakeConnection{}
	cmd := &fakeCommand{conn: conn, cursor: personRows()}

	people, err := morph.MaterializeCommand[Person](context.Background(), cmd).All()
	c.Assert(err, IsNil)
	c.Assert(people, HasLen, 2)

	c.Assert(conn.opens, Equals, 1)
	c.Assert(conn.closes, Equals, 1)
	c.Assert(conn.open, Equals, false)
	c.Assert(cmd.cursor.closed, Equals, 1)
	// The command was told its connection is scoped to the cursor.
	c.Assert(cmd.behavior&morph.CloseConnection, Not(Equals), morph.Behavior(0))
}

func (s *CommandSuite) TestAlreadyOpenConnectionLeftOpen(c *C) {
	conn := &fakeConnection{open: true}
	cmd := &fakeCommand{conn: conn, cursor: personRows()}

	_, err := morph.MaterializeCommand[Person](context.Background(), cmd).All()
	c.Assert(err, IsNil)

	c.Assert(conn.opens, Equals, 0)
	c.Assert(conn.closes, Equals, 0)
	c.Assert(conn.open, Equals, true)
	c.Assert(cmd.behavior&morph.CloseConnection, Equals, morph.Behavior(0))
}

func (s *CommandSuite) TestAbandonReleasesConnection(c *C) {
	conn := &fakeConnection{}
	cmd := &fakeCommand{conn: conn, cursor: personRows()}

	iter := morph.MaterializeCommand[Person](context.Background(), cmd)
	c.Assert(iter.Next(), Equals, true)
	_, err := iter.Get()
	c.Assert(err, IsNil)

	// Abandon after one row of two.
	c.Assert(iter.Close(), IsNil)
	c.Assert(conn.closes, Equals, 1)
	c.Assert(cmd.cursor.closed, Equals, 1)

	// Closing again releases nothing further.
	c.Assert(iter.Close(), IsNil)
	c.Assert(conn.closes, Equals, 1)
	c.Assert(cmd.cursor.closed, Equals, 1)
}

func (s *CommandSuite) TestExhaustionReleasesConnection(c *C) {
	conn := &fakeConnection{}
	cmd := &fakeCommand{conn: conn, cursor: personRows()}

	iter := morph.MaterializeCommand[Person](context.Background(), cmd)
	for iter.Next() {
	}
	// Released at exhaustion, before Close is called.
	c.Assert(conn.closes, Equals, 1)
	c.Assert(iter.Close(), IsNil)
	c.Assert(conn.closes, Equals, 1)
}

func (s *CommandSuite) TestOpenErrorPropagates(c *C) {
	boom := errors.New("no route to database")
	conn := &fakeConnection{openErr: boom}
	cmd := &fakeCommand{conn: conn, cursor: personRows()}

	iter := morph.MaterializeCommand[Person](context.Background(), cmd)
	c.Assert(iter.Next(), Equals, false)
	c.Assert(iter.Close(), Equals, boom)
	c.Assert(conn.closes, Equals, 0)
}

func (s *CommandSuite) TestQueryErrorReleasesConnection(c *C) {
	boom := errors.New("syntax error")
	conn := &fakeConnection{}
	cmd := &fakeCommand{conn: conn, queryErr: boom}

	iter := morph.MaterializeCommand[Person](context.Background(), cmd)
	c.Assert(iter.Close(), Equals, boom)
	c.Assert(conn.opens, Equals, 1)
	c.Assert(conn.closes, Equals, 1)
}

func (s *CommandSuite) TestSchemaOnly(c *C) {
	db := personDB(c)
	defer db.Close()

	cmd := &morph.SQLCommand{DB: db, SQL: "SELECT id, name FROM person"}
	cur, err := cmd.Query(context.Background(), morph.SchemaOnly)
	c.Assert(err, IsNil)
	defer cur.Close()

	c.Assert(cur.Columns(), DeepEquals, []string{"id", "name"})
	c.Assert(cur.Next(), Equals, false)
	c.Assert(cur.Err(), IsNil)
	_, err = cur.Value(0)
	c.Assert(err, ErrorMatches, "no current row")
}

func (s *CommandSuite) TestUnconnectedCommand(c *C) {
	cur := personRows()
	cmd := &fakeCommand{cursor: cur}

	// A command with no connection still materializes; nil context falls
	// back to the background context.
	people, err := morph.MaterializeCommand[Person](nil, cmd).All()
	c.Assert(err, IsNil)
	c.Assert(people, HasLen, 2)
	c.Assert(cur.closed, Equals, 1)
}
