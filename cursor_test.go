package morph_test

import (
	. "gopkg.in/check.v1"

	"github.com/canonical/morph"
)

type CursorSuite struct{}

var _ = Suite(&CursorSuite{})

func (s *CursorSuite) TestRowsNil(c *C) {
	_, err := morph.Rows(nil)
	c.Assert(err, ErrorMatches, "cannot build cursor: nil argument")
}

func (s *CursorSuite) TestRowsCursor(c *C) {
	db := personDB(c)
	defer db.Close()

	cur := queryCursor(c, db, "SELECT id, name, email FROM person WHERE id = 30")
	c.Assert(cur.Columns(), DeepEquals, []string{"id", "name", "email"})

	c.Assert(cur.Next(), Equals, true)
	v, err := cur.Value(0)
	c.Assert(err, IsNil)
	c.Assert(v, Equals, int64(30))
	v, err = cur.Value(1)
	c.Assert(err, IsNil)
	c.Assert(v, Equals, "Fred")

	null, err := cur.IsNull(2)
	c.Assert(err, IsNil)
	c.Assert(null, Equals, false)

	c.Assert(cur.Next(), Equals, false)
	c.Assert(cur.Err(), IsNil)
	c.Assert(cur.Close(), IsNil)
}

func (s *CursorSuite) TestOrdinalOutOfRange(c *C) {
	db := personDB(c)
	defer db.Close()

	cur := queryCursor(c, db, "SELECT id FROM person")
	defer cur.Close()
	c.Assert(cur.Next(), Equals, true)

	_, err := cur.Value(1)
	c.Assert(err, ErrorMatches, `ordinal 1 out of range \[0, 1\)`)
	_, err = cur.Value(-1)
	c.Assert(err, ErrorMatches, `ordinal -1 out of range \[0, 1\)`)
	_, err = cur.IsNull(1)
	c.Assert(err, NotNil)
}

func (s *CursorSuite) TestNullValue(c *C) {
	db := createExampleDB(c, "CREATE TABLE t (v text);", []string{"INSERT INTO t VALUES (NULL);"})
	defer db.Close()

	cur := queryCursor(c, db, "SELECT v FROM t")
	defer cur.Close()
	c.Assert(cur.Next(), Equals, true)

	v, err := cur.Value(0)
	c.Assert(err, IsNil)
	c.Assert(v, IsNil)
	null, err := cur.IsNull(0)
	c.Assert(err, IsNil)
	c.Assert(null, Equals, true)
}

func (s *CursorSuite) TestDuplicateColumnFirstWins(c *C) {
	db := personDB(c)
	defer db.Close()

	// Both result columns are called "id"; by-name binding resolves to
	// the first of them.
	people, err := morph.Materialize[Person](queryCursor(c, db, "SELECT id, town AS id, name FROM person WHERE id = 40")).All()
	c.Assert(err, IsNil)
	c.Assert(people, DeepEquals, []Person{{ID: 40, Fullname: "Mary"}})
}
