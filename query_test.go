package morph_test

import (
	"reflect"

	. "gopkg.in/check.v1"

	"github.com/canonical/morph"
	"github.com/canonical/morph/expr"
)

type QuerySuite struct{}

var _ = Suite(&QuerySuite{})

// recordingQuery captures what the helpers hand to a query provider.
type recordingQuery struct {
	tree     expr.Expr
	policy   morph.MergePolicy
	includes []string
}

func (q *recordingQuery) Rebuild(tree expr.Expr) (morph.Query, error) {
	return &recordingQuery{tree: tree, policy: q.policy, includes: q.includes}, nil
}

func (q *recordingQuery) SetMergePolicy(policy morph.MergePolicy) error {
	q.policy = policy
	return nil
}

func (q *recordingQuery) TraceString() (string, error) {
	return "SELECT 1", nil
}

func (q *recordingQuery) Include(path string) error {
	q.includes = append(q.includes, path)
	return nil
}

func (s *QuerySuite) TestRebuildExpandsInvocations(c *C) {
	x := expr.NewParam("x", nil)
	tree := &expr.Invoke{
		Callee: &expr.Lambda{Params: []*expr.Param{x}, Body: x},
		Args:   []expr.Expr{&expr.Constant{Value: 7}},
	}

	rebuilt, err := morph.Rebuild(&recordingQuery{}, tree)
	c.Assert(err, IsNil)
	got := rebuilt.(*recordingQuery).tree
	c.Assert(expr.Equal(got, &expr.Constant{Value: 7}), Equals, true)
}

func (s *QuerySuite) TestRebuildNilArguments(c *C) {
	_, err := morph.Rebuild(nil, &expr.Constant{Value: 1})
	c.Assert(err, ErrorMatches, "cannot rebuild query: nil argument")
	_, err = morph.Rebuild(&recordingQuery{}, nil)
	c.Assert(err, ErrorMatches, "cannot rebuild query: nil argument")
}

func (s *QuerySuite) TestSetMergePolicy(c *C) {
	q := &recordingQuery{}
	c.Assert(morph.SetMergePolicy(q, morph.MergeNoTracking), IsNil)
	c.Assert(q.policy, Equals, morph.MergeNoTracking)
	c.Assert(morph.SetMergePolicy(nil, morph.MergeAppendOnly), ErrorMatches, "cannot set merge policy: nil argument")
}

func (s *QuerySuite) TestTraceString(c *C) {
	trace, err := morph.TraceString(&recordingQuery{})
	c.Assert(err, IsNil)
	c.Assert(trace, Equals, "SELECT 1")
	_, err = morph.TraceString(nil)
	c.Assert(err, ErrorMatches, "cannot trace query: nil argument")
}

func (s *QuerySuite) TestInclude(c *C) {
	row := expr.NewParam("row", nil)
	selector := &expr.Lambda{
		Params: []*expr.Param{row},
		Body: &expr.Member{
			Recv: &expr.Member{Recv: row, Name: "Customer"},
			Name: "Address",
		},
	}

	q := &recordingQuery{}
	c.Assert(morph.Include(q, selector), IsNil)
	c.Assert(q.includes, DeepEquals, []string{"Customer.Address"})
}

func (s *QuerySuite) TestPathOf(c *C) {
	row := expr.NewParam("row", nil)

	path, err := morph.PathOf(&expr.Lambda{
		Params: []*expr.Param{row},
		Body:   &expr.Member{Recv: row, Name: "Town"},
	})
	c.Assert(err, IsNil)
	c.Assert(path, Equals, "Town")

	// Conversions in the chain are skipped.
	path, err = morph.PathOf(&expr.Lambda{
		Params: []*expr.Param{row},
		Body: &expr.Member{
			Recv: &expr.Convert{
				X:    &expr.Member{Recv: row, Name: "Customer"},
				Type: reflect.TypeOf(Person{}),
			},
			Name: "Town",
		},
	})
	c.Assert(err, IsNil)
	c.Assert(path, Equals, "Customer.Town")
}

func (s *QuerySuite) TestPathOfRejects(c *C) {
	row := expr.NewParam("row", nil)
	other := expr.NewParam("other", nil)

	_, err := morph.PathOf(nil)
	c.Assert(err, ErrorMatches, "cannot extract path: nil argument")

	// Bare parameter names no member.
	_, err = morph.PathOf(&expr.Lambda{Params: []*expr.Param{row}, Body: row})
	c.Assert(err, FitsTypeOf, &morph.InvalidShapeExpressionError{})

	// Chain rooted at a foreign parameter.
	_, err = morph.PathOf(&expr.Lambda{
		Params: []*expr.Param{row},
		Body:   &expr.Member{Recv: other, Name: "Town"},
	})
	c.Assert(err, FitsTypeOf, &morph.InvalidShapeExpressionError{})

	// Not a member chain at all.
	_, err = morph.PathOf(&expr.Lambda{
		Params: []*expr.Param{row},
		Body:   &expr.Binary{Op: expr.OpAdd, Left: &expr.Constant{Value: 1}, Right: &expr.Constant{Value: 2}},
	})
	c.Assert(err, FitsTypeOf, &morph.InvalidShapeExpressionError{})

	// Two parameters.
	_, err = morph.PathOf(&expr.Lambda{
		Params: []*expr.Param{row, other},
		Body:   &expr.Member{Recv: row, Name: "Town"},
	})
	c.Assert(err, FitsTypeOf, &morph.InvalidShapeExpressionError{})
}
