package morph_test

import (
	"reflect"

	. "gopkg.in/check.v1"

	"github.com/canonical/morph"
	"github.com/canonical/morph/expr"
)

type ShapeSuite struct{}

var _ = Suite(&ShapeSuite{})

func (s *ShapeSuite) TestScalarShape(c *C) {
	shape, err := morph.DefaultShape(reflect.TypeOf(int64(0)), []string{"count(*)"})
	c.Assert(err, IsNil)
	c.Assert(shape.Params, HasLen, 1)

	// A scalar binds to ordinal 0 regardless of the column name.
	call, ok := shape.Body.(*expr.Call)
	c.Assert(ok, Equals, true)
	c.Assert(call.Method, Equals, expr.FieldMethod)
	c.Assert(expr.Equal(call.Args[0], &expr.Constant{Value: 0}), Equals, true)
}

func (s *ShapeSuite) TestStructShape(c *C) {
	shape, err := morph.DefaultShape(reflect.TypeOf(Person{}), []string{"town", "id", "email"})
	c.Assert(err, IsNil)

	init, ok := shape.Body.(*expr.StructInit)
	c.Assert(ok, Equals, true)
	// Members bind in declaration order; name has no column and email has
	// no member, and neither appears.
	c.Assert(init.Fields, HasLen, 2)
	c.Assert(init.Fields[0].Name, Equals, "ID")
	c.Assert(init.Fields[1].Name, Equals, "Town")
}

func (s *ShapeSuite) TestPointerTargetShape(c *C) {
	shape, err := morph.DefaultShape(reflect.TypeOf((*Person)(nil)), []string{"id"})
	c.Assert(err, IsNil)
	init, ok := shape.Body.(*expr.StructInit)
	c.Assert(ok, Equals, true)
	c.Assert(init.Type, Equals, reflect.TypeOf(Person{}))
}

func (s *ShapeSuite) TestMismatch(c *C) {
	_, err := morph.DefaultShape(reflect.TypeOf(Person{}), []string{"email", "postcode"})
	c.Assert(err, FitsTypeOf, &morph.ShapeMismatchError{})

	// A map is neither a scalar nor a struct.
	_, err = morph.DefaultShape(reflect.TypeOf(map[string]any{}), []string{"id"})
	c.Assert(err, FitsTypeOf, &morph.ShapeMismatchError{})
}
