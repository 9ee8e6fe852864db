package morph_test

import (
	"reflect"

	. "gopkg.in/check.v1"

	"github.com/canonical/morph"
	"github.com/canonical/morph/expr"
)

type OptimizeSuite struct{}

var _ = Suite(&OptimizeSuite{})

var fiveColumns = []string{"id", "name", "town", "postcode", "email"}

func (s *OptimizeSuite) TestByNameRewrite(c *C) {
	row := expr.NewParam("row", nil)
	call := expr.FieldByName(row, reflect.TypeOf(""), "town")

	repl, ok := morph.ColumnOptimizer{}.OptimizeFieldAccess(fiveColumns, row, call)
	c.Assert(ok, Equals, true)
	c.Assert(expr.Equal(repl, &expr.Convert{
		X:    &expr.ColumnValue{Recv: row, Ordinal: 2},
		Type: reflect.TypeOf(""),
	}), Equals, true)
}

func (s *OptimizeSuite) TestByOrdinalRewrite(c *C) {
	row := expr.NewParam("row", nil)
	call := expr.Field(row, reflect.TypeOf(int64(0)), 3)

	repl, ok := morph.ColumnOptimizer{}.OptimizeFieldAccess(fiveColumns, row, call)
	c.Assert(ok, Equals, true)
	c.Assert(expr.Equal(repl, &expr.Convert{
		X:    &expr.ColumnValue{Recv: row, Ordinal: 3},
		Type: reflect.TypeOf(int64(0)),
	}), Equals, true)
}

func (s *OptimizeSuite) TestNullableTargetGetsNullTest(c *C) {
	row := expr.NewParam("row", nil)
	target := reflect.TypeOf((*string)(nil))
	call := expr.FieldByName(row, target, "email")

	repl, ok := morph.ColumnOptimizer{}.OptimizeFieldAccess(fiveColumns, row, call)
	c.Assert(ok, Equals, true)
	c.Assert(expr.Equal(repl, &expr.Cond{
		Test: &expr.ColumnNull{Recv: row, Ordinal: 4},
		Then: &expr.Constant{Value: (*string)(nil)},
		Else: &expr.Convert{
			X:    &expr.ColumnValue{Recv: row, Ordinal: 4},
			Type: target,
		},
	}), Equals, true)
}

func (s *OptimizeSuite) TestDeclines(c *C) {
	row := expr.NewParam("row", nil)
	other := expr.NewParam("row", nil)
	stringType := reflect.TypeOf("")
	opt := morph.ColumnOptimizer{}

	// Column absent from the result.
	_, ok := opt.OptimizeFieldAccess(fiveColumns, row, expr.FieldByName(row, stringType, "missing"))
	c.Assert(ok, Equals, false)

	// Name is not a literal.
	p := expr.NewParam("n", stringType)
	_, ok = opt.OptimizeFieldAccess(fiveColumns, row, &expr.Call{
		Recv: row, Method: expr.FieldByNameMethod, Type: stringType, Args: []expr.Expr{p},
	})
	c.Assert(ok, Equals, false)

	// Receiver is a different parameter, even with the same name.
	_, ok = opt.OptimizeFieldAccess(fiveColumns, row, expr.FieldByName(other, stringType, "town"))
	c.Assert(ok, Equals, false)

	// Ordinal out of bounds.
	_, ok = opt.OptimizeFieldAccess(fiveColumns, row, expr.Field(row, stringType, 5))
	c.Assert(ok, Equals, false)
	_, ok = opt.OptimizeFieldAccess(fiveColumns, row, expr.Field(row, stringType, -1))
	c.Assert(ok, Equals, false)

	// Call missing its target type.
	_, ok = opt.OptimizeFieldAccess(fiveColumns, row, &expr.Call{
		Recv: row, Method: expr.FieldByNameMethod, Args: []expr.Expr{&expr.Constant{Value: "town"}},
	})
	c.Assert(ok, Equals, false)

	// Unrecognized method.
	_, ok = opt.OptimizeFieldAccess(fiveColumns, row, &expr.Call{
		Recv: row, Method: "Lookup", Type: stringType, Args: []expr.Expr{&expr.Constant{Value: "town"}},
	})
	c.Assert(ok, Equals, false)
}

func (s *OptimizeSuite) TestDeterministic(c *C) {
	row := expr.NewParam("row", nil)
	target := reflect.TypeOf((*int64)(nil))
	opt := morph.ColumnOptimizer{}

	a, ok := opt.OptimizeFieldAccess(fiveColumns, row, expr.FieldByName(row, target, "id"))
	c.Assert(ok, Equals, true)
	b, ok := opt.OptimizeFieldAccess(fiveColumns, row, expr.FieldByName(row, target, "id"))
	c.Assert(ok, Equals, true)
	c.Assert(expr.Equal(a, b), Equals, true)
}

// TestNoOptimizer materializes with the optimizer disabled and checks the
// generic per-row read path yields the same records as the optimized one.
func (s *OptimizeSuite) TestNoOptimizer(c *C) {
	db := personDB(c)
	defer db.Close()

	m := morph.NewMaterializer[Person](morph.WithOptimizer(nil))
	people, err := m.Materialize(queryCursor(c, db, "SELECT id, name, town FROM person ORDER BY id")).All()
	c.Assert(err, IsNil)
	c.Assert(people, DeepEquals, []Person{
		{ID: 20, Fullname: "Mark", Town: "Norwich"},
		{ID: 30, Fullname: "Fred", Town: "Ipswich"},
		{ID: 40, Fullname: "Mary", Town: "Bury"},
	})
}
