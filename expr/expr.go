// Copyright 2023 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

// Package expr provides the expression trees used to describe how a typed
// record is built from a row. A tree is a tagged variant structure: each
// node kind is a distinct struct implementing Expr. Trees are immutable
// once built; rewriting passes allocate new nodes rather than mutating.
package expr

import (
	"fmt"
	"reflect"
	"strings"
)

// Expr is an expression tree node.
type Expr interface {
	// String renders the node for error messages and traces.
	String() string
}

// Constant is a literal value. A nil Value represents the null constant.
type Constant struct {
	Value any
}

func (c *Constant) String() string {
	if c.Value == nil {
		return "null"
	}
	if s, ok := c.Value.(string); ok {
		return fmt.Sprintf("%q", s)
	}
	return fmt.Sprintf("%v", c.Value)
}

// Param is a parameter reference. Parameters are compared by pointer
// identity, not by name: two distinct Param values with the same name are
// different parameters.
type Param struct {
	Name string
	Type reflect.Type
}

// NewParam returns a fresh parameter with the given name and static type.
func NewParam(name string, t reflect.Type) *Param {
	return &Param{Name: name, Type: t}
}

func (p *Param) String() string {
	return p.Name
}

// Lambda is a function-like expression of its parameters.
type Lambda struct {
	Params []*Param
	Body   Expr
}

func (l *Lambda) String() string {
	names := make([]string, len(l.Params))
	for i, p := range l.Params {
		names[i] = p.Name
	}
	return fmt.Sprintf("(%s) => %s", strings.Join(names, ", "), l.Body)
}

// Invoke applies a callee expression to argument expressions. When the
// callee is literally a *Lambda the node can be eliminated by
// ExpandInvocations; any other callee is left for downstream consumers.
type Invoke struct {
	Callee Expr
	Args   []Expr
}

func (iv *Invoke) String() string {
	return fmt.Sprintf("(%s)(%s)", iv.Callee, exprList(iv.Args))
}

// Method names of the recognized row field access calls.
const (
	FieldMethod       = "Field"
	FieldByNameMethod = "FieldByName"
)

// Call is a method call on a receiver expression. Type, when set, is the
// target element type of the call (the T of a generic field read).
type Call struct {
	Recv   Expr
	Method string
	Type   reflect.Type
	Args   []Expr
}

func (c *Call) String() string {
	if c.Type != nil {
		return fmt.Sprintf("%s.%s[%s](%s)", c.Recv, c.Method, c.Type, exprList(c.Args))
	}
	return fmt.Sprintf("%s.%s(%s)", c.Recv, c.Method, exprList(c.Args))
}

// Field builds the recognized read-by-ordinal field access call.
func Field(recv Expr, t reflect.Type, ordinal int) *Call {
	return &Call{Recv: recv, Method: FieldMethod, Type: t, Args: []Expr{&Constant{Value: ordinal}}}
}

// FieldByName builds the recognized read-by-name field access call.
func FieldByName(recv Expr, t reflect.Type, name string) *Call {
	return &Call{Recv: recv, Method: FieldByNameMethod, Type: t, Args: []Expr{&Constant{Value: name}}}
}

// Member accesses a named member of the receiver: a struct field or, for
// maps with string keys, a map entry.
type Member struct {
	Recv Expr
	Name string
}

func (m *Member) String() string {
	return fmt.Sprintf("%s.%s", m.Recv, m.Name)
}

// Op is a binary or unary operator.
type Op int

const (
	OpAdd Op = iota
	OpSub
	OpMul
	OpDiv
	OpEq
	OpNe
	OpLt
	OpLe
	OpGt
	OpGe
	OpAnd
	OpOr
	OpNot
	OpNeg
)

var opNames = map[Op]string{
	OpAdd: "+", OpSub: "-", OpMul: "*", OpDiv: "/",
	OpEq: "==", OpNe: "!=", OpLt: "<", OpLe: "<=", OpGt: ">", OpGe: ">=",
	OpAnd: "&&", OpOr: "||", OpNot: "!", OpNeg: "-",
}

func (o Op) String() string {
	if s, ok := opNames[o]; ok {
		return s
	}
	return fmt.Sprintf("op(%d)", int(o))
}

// Binary applies an operator to two operands.
type Binary struct {
	Op    Op
	Left  Expr
	Right Expr
}

func (b *Binary) String() string {
	return fmt.Sprintf("(%s %s %s)", b.Left, b.Op, b.Right)
}

// Unary applies an operator to a single operand.
type Unary struct {
	Op Op
	X  Expr
}

func (u *Unary) String() string {
	return fmt.Sprintf("%s%s", u.Op, u.X)
}

// Cond is a conditional expression.
type Cond struct {
	Test Expr
	Then Expr
	Else Expr
}

func (c *Cond) String() string {
	return fmt.Sprintf("(%s ? %s : %s)", c.Test, c.Then, c.Else)
}

// Convert converts the operand to the given type, applying the null rules
// of the materializer: a null operand becomes the type's zero value when
// the type can represent null, and a conversion failure otherwise.
type Convert struct {
	X    Expr
	Type reflect.Type
}

func (c *Convert) String() string {
	return fmt.Sprintf("%s(%s)", c.Type, c.X)
}

// FieldInit initializes one member of a StructInit.
type FieldInit struct {
	Name  string
	Value Expr
}

// StructInit builds a struct value of Type with the named members set.
// Members not listed keep their zero value.
type StructInit struct {
	Type   reflect.Type
	Fields []FieldInit
}

func (s *StructInit) String() string {
	parts := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		parts[i] = fmt.Sprintf("%s: %s", f.Name, f.Value)
	}
	return fmt.Sprintf("%s{%s}", s.Type, strings.Join(parts, ", "))
}

// ColumnValue is a direct value read at a known ordinal, produced by a
// field access optimizer. Recv must be the cursor parameter.
type ColumnValue struct {
	Recv    Expr
	Ordinal int
}

func (c *ColumnValue) String() string {
	return fmt.Sprintf("%s.value(%d)", c.Recv, c.Ordinal)
}

// ColumnNull is a direct null test at a known ordinal, produced by a field
// access optimizer.
type ColumnNull struct {
	Recv    Expr
	Ordinal int
}

func (c *ColumnNull) String() string {
	return fmt.Sprintf("%s.null(%d)", c.Recv, c.Ordinal)
}

func exprList(es []Expr) string {
	parts := make([]string, len(es))
	for i, e := range es {
		parts[i] = e.String()
	}
	return strings.Join(parts, ", ")
}

// Equal reports whether two trees are structurally equal. Parameters are
// compared by identity, every other node kind by shape and value.
func Equal(a, b Expr) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	switch an := a.(type) {
	case *Constant:
		bn, ok := b.(*Constant)
		if !ok {
			return false
		}
		if an.Value == nil || bn.Value == nil {
			return an.Value == nil && bn.Value == nil
		}
		return reflect.DeepEqual(an.Value, bn.Value)
	case *Param:
		return a == b
	case *Lambda:
		bn, ok := b.(*Lambda)
		if !ok || len(an.Params) != len(bn.Params) {
			return false
		}
		for i := range an.Params {
			if an.Params[i] != bn.Params[i] {
				return false
			}
		}
		return Equal(an.Body, bn.Body)
	case *Invoke:
		bn, ok := b.(*Invoke)
		return ok && Equal(an.Callee, bn.Callee) && equalList(an.Args, bn.Args)
	case *Call:
		bn, ok := b.(*Call)
		return ok && an.Method == bn.Method && an.Type == bn.Type &&
			Equal(an.Recv, bn.Recv) && equalList(an.Args, bn.Args)
	case *Member:
		bn, ok := b.(*Member)
		return ok && an.Name == bn.Name && Equal(an.Recv, bn.Recv)
	case *Binary:
		bn, ok := b.(*Binary)
		return ok && an.Op == bn.Op && Equal(an.Left, bn.Left) && Equal(an.Right, bn.Right)
	case *Unary:
		bn, ok := b.(*Unary)
		return ok && an.Op == bn.Op && Equal(an.X, bn.X)
	case *Cond:
		bn, ok := b.(*Cond)
		return ok && Equal(an.Test, bn.Test) && Equal(an.Then, bn.Then) && Equal(an.Else, bn.Else)
	case *Convert:
		bn, ok := b.(*Convert)
		return ok && an.Type == bn.Type && Equal(an.X, bn.X)
	case *StructInit:
		bn, ok := b.(*StructInit)
		if !ok || an.Type != bn.Type || len(an.Fields) != len(bn.Fields) {
			return false
		}
		for i := range an.Fields {
			if an.Fields[i].Name != bn.Fields[i].Name || !Equal(an.Fields[i].Value, bn.Fields[i].Value) {
				return false
			}
		}
		return true
	case *ColumnValue:
		bn, ok := b.(*ColumnValue)
		return ok && an.Ordinal == bn.Ordinal && Equal(an.Recv, bn.Recv)
	case *ColumnNull:
		bn, ok := b.(*ColumnNull)
		return ok && an.Ordinal == bn.Ordinal && Equal(an.Recv, bn.Recv)
	}
	return false
}

func equalList(a, b []Expr) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !Equal(a[i], b[i]) {
			return false
		}
	}
	return true
}
