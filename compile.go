// Copyright 2023 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package morph

import (
	"reflect"

	"github.com/pkg/errors"

	"github.com/canonical/morph/expr"
	"github.com/canonical/morph/internal/typeinfo"
)

// evalFunc extracts one value from the current row of a cursor. An invalid
// reflect.Value represents a database null flowing through the tree.
// Compiled functions close only over immutable compile-time data, so one
// function is safe for concurrent use by independent sequences.
type evalFunc func(env *rowEnv) (reflect.Value, error)

// rowEnv is the per-row evaluation environment.
type rowEnv struct {
	cur Cursor
}

// compiler compiles a shape expression against a fixed column list and
// cursor parameter.
type compiler struct {
	columns []string
	cursor  *expr.Param
	opt     FieldOptimizer
}

// compileShape compiles a shape lambda into an extraction function
// producing values of the target type. Invocations are expanded before
// compilation; the field optimizer is consulted for every call node.
func compileShape(shape *expr.Lambda, columns []string, opt FieldOptimizer, target reflect.Type) (evalFunc, error) {
	if shape == nil {
		return nil, errors.Wrap(ErrNilArgument, "cannot compile shape")
	}
	if len(shape.Params) != 1 {
		return nil, &InvalidShapeExpressionError{Node: shape.String(), Reason: "shape must take exactly one row parameter"}
	}
	expanded, ok := expr.ExpandInvocations(shape).(*expr.Lambda)
	if !ok {
		return nil, &InvalidShapeExpressionError{Node: shape.String(), Reason: "expansion did not preserve the shape lambda"}
	}

	c := &compiler{columns: columns, cursor: expanded.Params[0], opt: opt}
	body, err := c.compile(expanded.Body)
	if err != nil {
		return nil, err
	}

	return func(env *rowEnv) (reflect.Value, error) {
		v, err := body(env)
		if err != nil {
			return reflect.Value{}, err
		}
		if !v.IsValid() {
			if typeinfo.CanBeNull(target) {
				return reflect.Zero(target), nil
			}
			return reflect.Value{}, &NullConversionError{Ordinal: -1, Target: target}
		}
		if v.Type() == target {
			return v, nil
		}
		return convertValue(v, target)
	}, nil
}

func (c *compiler) compile(e expr.Expr) (evalFunc, error) {
	switch n := e.(type) {
	case *expr.Constant:
		if n.Value == nil {
			return func(*rowEnv) (reflect.Value, error) { return reflect.Value{}, nil }, nil
		}
		// A typed nil constant carries its type through unchanged; it is
		// already the null representation of that type.
		rv := reflect.ValueOf(n.Value)
		return func(*rowEnv) (reflect.Value, error) { return rv, nil }, nil

	case *expr.Param:
		if n != c.cursor {
			return nil, &InvalidShapeExpressionError{Node: n.String(), Reason: "unbound parameter"}
		}
		return func(env *rowEnv) (reflect.Value, error) {
			return reflect.ValueOf(env.cur), nil
		}, nil

	case *expr.ColumnValue:
		if err := c.requireCursor(n.Recv, n); err != nil {
			return nil, err
		}
		ordinal := n.Ordinal
		return func(env *rowEnv) (reflect.Value, error) {
			v, err := env.cur.Value(ordinal)
			if err != nil {
				return reflect.Value{}, errors.Wrapf(err, "reading ordinal %d", ordinal)
			}
			if v == nil {
				return reflect.Value{}, nil
			}
			return reflect.ValueOf(v), nil
		}, nil

	case *expr.ColumnNull:
		if err := c.requireCursor(n.Recv, n); err != nil {
			return nil, err
		}
		ordinal := n.Ordinal
		return func(env *rowEnv) (reflect.Value, error) {
			null, err := env.cur.IsNull(ordinal)
			if err != nil {
				return reflect.Value{}, errors.Wrapf(err, "null test at ordinal %d", ordinal)
			}
			return reflect.ValueOf(null), nil
		}, nil

	case *expr.Convert:
		return c.compileConvert(n)

	case *expr.Call:
		return c.compileCall(n)

	case *expr.Member:
		return c.compileMember(n)

	case *expr.Binary:
		return c.compileBinary(n)

	case *expr.Unary:
		return c.compileUnary(n)

	case *expr.Cond:
		return c.compileCond(n)

	case *expr.StructInit:
		return c.compileStructInit(n)

	case *expr.Lambda:
		return nil, &InvalidShapeExpressionError{Node: n.String(), Reason: "nested lambda is not a value"}

	case *expr.Invoke:
		return nil, &InvalidShapeExpressionError{Node: n.String(), Reason: "invocation of a non-lambda callee cannot be compiled"}
	}
	return nil, &InvalidShapeExpressionError{Node: e.String(), Reason: "unknown node kind"}
}

// requireCursor checks that a direct-read node references the cursor
// parameter bound at materialization setup.
func (c *compiler) requireCursor(recv expr.Expr, node expr.Expr) error {
	if p, ok := recv.(*expr.Param); ok && p == c.cursor {
		return nil
	}
	return &InvalidShapeExpressionError{Node: node.String(), Reason: "direct column read on something other than the row parameter"}
}

// compileConvert compiles a conversion, keeping the ordinal context when
// the operand is a direct column read so that null errors name the column.
func (c *compiler) compileConvert(n *expr.Convert) (evalFunc, error) {
	target := n.Type
	if target == nil {
		return nil, &InvalidShapeExpressionError{Node: n.String(), Reason: "conversion without a target type"}
	}
	if cv, ok := n.X.(*expr.ColumnValue); ok {
		if err := c.requireCursor(cv.Recv, cv); err != nil {
			return nil, err
		}
		ordinal := cv.Ordinal
		column := ""
		if ordinal >= 0 && ordinal < len(c.columns) {
			column = c.columns[ordinal]
		}
		nullable := typeinfo.CanBeNull(target)
		return func(env *rowEnv) (reflect.Value, error) {
			v, err := env.cur.Value(ordinal)
			if err != nil {
				return reflect.Value{}, errors.Wrapf(err, "reading ordinal %d", ordinal)
			}
			if v == nil {
				if nullable {
					return reflect.Zero(target), nil
				}
				return reflect.Value{}, &NullConversionError{Column: column, Ordinal: ordinal, Target: target}
			}
			out, err := convertValue(reflect.ValueOf(v), target)
			if err != nil {
				return reflect.Value{}, errors.Wrapf(err, "converting ordinal %d", ordinal)
			}
			return out, nil
		}, nil
	}

	xf, err := c.compile(n.X)
	if err != nil {
		return nil, err
	}
	nullable := typeinfo.CanBeNull(target)
	return func(env *rowEnv) (reflect.Value, error) {
		v, err := xf(env)
		if err != nil {
			return reflect.Value{}, err
		}
		if !v.IsValid() {
			if nullable {
				return reflect.Zero(target), nil
			}
			return reflect.Value{}, &NullConversionError{Ordinal: -1, Target: target}
		}
		return convertValue(v, target)
	}, nil
}

// compileCall compiles a method call. Recognized field access calls on the
// cursor parameter are offered to the field optimizer first; when the
// optimizer declines they fall back to a per-row read, resolving the
// ordinal at runtime for the by-name form. Any other call is dispatched by
// reflection on the receiver value.
func (c *compiler) compileCall(n *expr.Call) (evalFunc, error) {
	if c.opt != nil {
		if repl, ok := c.opt.OptimizeFieldAccess(c.columns, c.cursor, n); ok {
			return c.compile(repl)
		}
	}

	if p, ok := n.Recv.(*expr.Param); ok && p == c.cursor {
		switch n.Method {
		case expr.FieldMethod, expr.FieldByNameMethod:
			return c.compileFieldRead(n)
		}
	}

	return c.compileReflectCall(n)
}

// compileFieldRead is the generic, unoptimized path of the two recognized
// field access calls.
func (c *compiler) compileFieldRead(n *expr.Call) (evalFunc, error) {
	if n.Type == nil {
		return nil, &InvalidShapeExpressionError{Node: n.String(), Reason: "field access without a target type"}
	}
	if len(n.Args) != 1 {
		return nil, &InvalidShapeExpressionError{Node: n.String(), Reason: "field access takes exactly one argument"}
	}
	argf, err := c.compile(n.Args[0])
	if err != nil {
		return nil, err
	}
	target := n.Type
	nullable := typeinfo.CanBeNull(target)
	byName := n.Method == expr.FieldByNameMethod

	return func(env *rowEnv) (reflect.Value, error) {
		av, err := argf(env)
		if err != nil {
			return reflect.Value{}, err
		}
		var ordinal int
		var column string
		if byName {
			if !av.IsValid() || av.Kind() != reflect.String {
				return reflect.Value{}, errors.Errorf("field name must be a string, got %s", kindOf(av))
			}
			column = av.String()
			var ok bool
			ordinal, ok = ordinalOf(env.cur, column)
			if !ok {
				return reflect.Value{}, errors.Errorf("no column %q in result", column)
			}
		} else {
			if !av.IsValid() || !av.CanInt() {
				return reflect.Value{}, errors.Errorf("field ordinal must be an integer, got %s", kindOf(av))
			}
			ordinal = int(av.Int())
			if ordinal >= 0 && ordinal < len(c.columns) {
				column = c.columns[ordinal]
			}
		}
		v, err := env.cur.Value(ordinal)
		if err != nil {
			return reflect.Value{}, errors.Wrapf(err, "reading ordinal %d", ordinal)
		}
		if v == nil {
			if nullable {
				return reflect.Zero(target), nil
			}
			return reflect.Value{}, &NullConversionError{Column: column, Ordinal: ordinal, Target: target}
		}
		out, err := convertValue(reflect.ValueOf(v), target)
		if err != nil {
			return reflect.Value{}, errors.Wrapf(err, "converting ordinal %d", ordinal)
		}
		return out, nil
	}, nil
}

// compileReflectCall dispatches a call on an arbitrary receiver by
// reflection. The method must return a value, optionally with an error.
func (c *compiler) compileReflectCall(n *expr.Call) (evalFunc, error) {
	recvf, err := c.compile(n.Recv)
	if err != nil {
		return nil, err
	}
	argfs := make([]evalFunc, len(n.Args))
	for i, a := range n.Args {
		argfs[i], err = c.compile(a)
		if err != nil {
			return nil, err
		}
	}
	method := n.Method
	target := n.Type

	return func(env *rowEnv) (reflect.Value, error) {
		rv, err := recvf(env)
		if err != nil {
			return reflect.Value{}, err
		}
		if !rv.IsValid() {
			return reflect.Value{}, nil
		}
		m := rv.MethodByName(method)
		if !m.IsValid() && rv.CanAddr() {
			m = rv.Addr().MethodByName(method)
		}
		if !m.IsValid() {
			return reflect.Value{}, errors.Errorf("%s has no method %s", rv.Type(), method)
		}
		args := make([]reflect.Value, len(argfs))
		for i, af := range argfs {
			av, err := af(env)
			if err != nil {
				return reflect.Value{}, err
			}
			if !av.IsValid() {
				return reflect.Value{}, errors.Errorf("null argument in call to %s", method)
			}
			if i < m.Type().NumIn() && av.Type() != m.Type().In(i) {
				av, err = convertValue(av, m.Type().In(i))
				if err != nil {
					return reflect.Value{}, errors.Wrapf(err, "argument %d of %s", i, method)
				}
			}
			args[i] = av
		}
		outs := m.Call(args)
		switch len(outs) {
		case 1:
		case 2:
			if !outs[1].IsNil() {
				return reflect.Value{}, outs[1].Interface().(error)
			}
		default:
			return reflect.Value{}, errors.Errorf("method %s must return a value and an optional error", method)
		}
		out := outs[0]
		if target != nil && out.Type() != target {
			return convertValue(out, target)
		}
		return out, nil
	}, nil
}

// compileMember compiles access to a named member: a struct field or a
// string-keyed map entry. A missing map key is a null.
func (c *compiler) compileMember(n *expr.Member) (evalFunc, error) {
	recvf, err := c.compile(n.Recv)
	if err != nil {
		return nil, err
	}
	name := n.Name
	return func(env *rowEnv) (reflect.Value, error) {
		rv, err := recvf(env)
		if err != nil {
			return reflect.Value{}, err
		}
		if !rv.IsValid() {
			return reflect.Value{}, nil
		}
		rv = reflect.Indirect(rv)
		switch rv.Kind() {
		case reflect.Struct:
			f := rv.FieldByName(name)
			if !f.IsValid() {
				return reflect.Value{}, errors.Errorf("%s has no member %s", rv.Type(), name)
			}
			return f, nil
		case reflect.Map:
			if rv.Type().Key().Kind() != reflect.String {
				return reflect.Value{}, errors.Errorf("cannot access member %s of %s", name, rv.Type())
			}
			v := rv.MapIndex(reflect.ValueOf(name))
			if !v.IsValid() {
				return reflect.Value{}, nil
			}
			if v.Kind() == reflect.Interface {
				v = v.Elem()
			}
			return v, nil
		}
		return reflect.Value{}, errors.Errorf("cannot access member %s of %s", name, kindOf(rv))
	}, nil
}

func (c *compiler) compileBinary(n *expr.Binary) (evalFunc, error) {
	lf, err := c.compile(n.Left)
	if err != nil {
		return nil, err
	}
	rf, err := c.compile(n.Right)
	if err != nil {
		return nil, err
	}

	// Logical operators short-circuit; a null operand makes the result
	// null.
	if n.Op == expr.OpAnd || n.Op == expr.OpOr {
		and := n.Op == expr.OpAnd
		return func(env *rowEnv) (reflect.Value, error) {
			lv, err := lf(env)
			if err != nil {
				return reflect.Value{}, err
			}
			if !lv.IsValid() {
				return reflect.Value{}, nil
			}
			if lv.Kind() != reflect.Bool {
				return reflect.Value{}, errors.Errorf("operand of %s must be bool, got %s", n.Op, lv.Kind())
			}
			if and && !lv.Bool() {
				return reflect.ValueOf(false), nil
			}
			if !and && lv.Bool() {
				return reflect.ValueOf(true), nil
			}
			rv, err := rf(env)
			if err != nil {
				return reflect.Value{}, err
			}
			if !rv.IsValid() {
				return reflect.Value{}, nil
			}
			if rv.Kind() != reflect.Bool {
				return reflect.Value{}, errors.Errorf("operand of %s must be bool, got %s", n.Op, rv.Kind())
			}
			return reflect.ValueOf(rv.Bool()), nil
		}, nil
	}

	op := n.Op
	return func(env *rowEnv) (reflect.Value, error) {
		lv, err := lf(env)
		if err != nil {
			return reflect.Value{}, err
		}
		rv, err := rf(env)
		if err != nil {
			return reflect.Value{}, err
		}
		if !lv.IsValid() || !rv.IsValid() {
			return reflect.Value{}, nil
		}
		return applyBinary(op, lv, rv)
	}, nil
}

func (c *compiler) compileUnary(n *expr.Unary) (evalFunc, error) {
	xf, err := c.compile(n.X)
	if err != nil {
		return nil, err
	}
	op := n.Op
	return func(env *rowEnv) (reflect.Value, error) {
		v, err := xf(env)
		if err != nil {
			return reflect.Value{}, err
		}
		if !v.IsValid() {
			return reflect.Value{}, nil
		}
		switch op {
		case expr.OpNot:
			if v.Kind() != reflect.Bool {
				return reflect.Value{}, errors.Errorf("operand of ! must be bool, got %s", v.Kind())
			}
			return reflect.ValueOf(!v.Bool()), nil
		case expr.OpNeg:
			switch {
			case v.CanInt():
				return reflect.ValueOf(-v.Int()), nil
			case v.CanFloat():
				return reflect.ValueOf(-v.Float()), nil
			}
			return reflect.Value{}, errors.Errorf("operand of unary - must be numeric, got %s", v.Kind())
		}
		return reflect.Value{}, errors.Errorf("unsupported unary operator %s", op)
	}, nil
}

func (c *compiler) compileCond(n *expr.Cond) (evalFunc, error) {
	testf, err := c.compile(n.Test)
	if err != nil {
		return nil, err
	}
	thenf, err := c.compile(n.Then)
	if err != nil {
		return nil, err
	}
	elsef, err := c.compile(n.Else)
	if err != nil {
		return nil, err
	}
	return func(env *rowEnv) (reflect.Value, error) {
		t, err := testf(env)
		if err != nil {
			return reflect.Value{}, err
		}
		if !t.IsValid() || t.Kind() != reflect.Bool {
			return reflect.Value{}, errors.Errorf("condition must be bool, got %s", kindOf(t))
		}
		if t.Bool() {
			return thenf(env)
		}
		return elsef(env)
	}, nil
}

func (c *compiler) compileStructInit(n *expr.StructInit) (evalFunc, error) {
	if n.Type == nil || n.Type.Kind() != reflect.Struct {
		return nil, &InvalidShapeExpressionError{Node: n.String(), Reason: "struct initializer needs a struct type"}
	}
	info, err := typeinfo.GetTypeInfo(n.Type)
	if err != nil {
		return nil, &InvalidShapeExpressionError{Node: n.String(), Reason: err.Error()}
	}

	type fieldPlan struct {
		index    int
		name     string
		typ      reflect.Type
		nullable bool
		f        evalFunc
	}
	plans := make([]fieldPlan, 0, len(n.Fields))
	for _, init := range n.Fields {
		var found *typeinfo.Field
		for i := range info.Fields {
			if info.Fields[i].Name == init.Name {
				found = &info.Fields[i]
				break
			}
		}
		if found == nil {
			return nil, &InvalidShapeExpressionError{Node: n.String(), Reason: "no settable member " + init.Name}
		}
		f, err := c.compile(init.Value)
		if err != nil {
			return nil, err
		}
		plans = append(plans, fieldPlan{
			index:    found.Index,
			name:     found.Name,
			typ:      found.Type,
			nullable: typeinfo.CanBeNull(found.Type),
			f:        f,
		})
	}

	structType := n.Type
	return func(env *rowEnv) (reflect.Value, error) {
		out := reflect.New(structType).Elem()
		for _, p := range plans {
			v, err := p.f(env)
			if err != nil {
				return reflect.Value{}, err
			}
			if !v.IsValid() {
				if p.nullable {
					continue
				}
				return reflect.Value{}, &NullConversionError{Column: p.name, Ordinal: -1, Target: p.typ}
			}
			if v.Type() != p.typ {
				v, err = convertValue(v, p.typ)
				if err != nil {
					return reflect.Value{}, errors.Wrapf(err, "member %s", p.name)
				}
			}
			out.Field(p.index).Set(v)
		}
		return out, nil
	}, nil
}

func kindOf(v reflect.Value) string {
	if !v.IsValid() {
		return "null"
	}
	return v.Kind().String()
}
