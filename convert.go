// Copyright 2023 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package morph

import (
	"database/sql"
	"reflect"

	"github.com/pkg/errors"

	"github.com/canonical/morph/expr"
)

var scannerInterface = reflect.TypeOf((*sql.Scanner)(nil)).Elem()

// convertValue converts a driver value to the target type. Drivers deliver
// a narrow set of types (int64, float64, bool, string, []byte, time.Time),
// so the conversions here mirror what database/sql itself permits:
// assignment, numeric and string conversions, byte/string round trips, a
// sql.Scanner target, and pointer wrapping.
func convertValue(v reflect.Value, t reflect.Type) (reflect.Value, error) {
	if v.Type() == t {
		return v, nil
	}
	if v.Type().AssignableTo(t) {
		if t.Kind() == reflect.Interface {
			out := reflect.New(t).Elem()
			out.Set(v)
			return out, nil
		}
		// Assignable concrete types are convertible; the result must
		// carry the target's own dynamic type, not the operand's.
		return v.Convert(t), nil
	}

	// A Scanner target consumes the raw driver value.
	if reflect.PointerTo(t).Implements(scannerInterface) {
		out := reflect.New(t)
		if err := out.Interface().(sql.Scanner).Scan(v.Interface()); err != nil {
			return reflect.Value{}, errors.Wrapf(err, "scanning into %s", t)
		}
		return out.Elem(), nil
	}

	if t.Kind() == reflect.Pointer {
		ev, err := convertValue(v, t.Elem())
		if err != nil {
			return reflect.Value{}, err
		}
		out := reflect.New(t.Elem())
		out.Elem().Set(ev)
		return out, nil
	}

	vt := v.Type()
	switch {
	case vt.Kind() == reflect.Slice && vt.Elem().Kind() == reflect.Uint8 && t.Kind() == reflect.String:
		return reflect.ValueOf(string(v.Bytes())).Convert(t), nil
	case vt.Kind() == reflect.String && t.Kind() == reflect.Slice && t.Elem().Kind() == reflect.Uint8:
		return reflect.ValueOf([]byte(v.String())).Convert(t), nil
	case isNumericKind(vt.Kind()) && isNumericKind(t.Kind()):
		return v.Convert(t), nil
	case vt.Kind() == reflect.String && t.Kind() == reflect.String:
		return v.Convert(t), nil
	case vt.Kind() == reflect.Bool && t.Kind() == reflect.Bool:
		return v.Convert(t), nil
	}
	return reflect.Value{}, errors.Errorf("cannot convert %s to %s", vt, t)
}

func isNumericKind(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}

// applyBinary evaluates an arithmetic or comparison operator over two
// non-null operands. Mixed integer and float operands are widened to
// float; strings support concatenation and ordering.
func applyBinary(op expr.Op, l, r reflect.Value) (reflect.Value, error) {
	lk, rk := l.Kind(), r.Kind()

	if lk == reflect.String && rk == reflect.String {
		ls, rs := l.String(), r.String()
		switch op {
		case expr.OpAdd:
			return reflect.ValueOf(ls + rs), nil
		case expr.OpEq:
			return reflect.ValueOf(ls == rs), nil
		case expr.OpNe:
			return reflect.ValueOf(ls != rs), nil
		case expr.OpLt:
			return reflect.ValueOf(ls < rs), nil
		case expr.OpLe:
			return reflect.ValueOf(ls <= rs), nil
		case expr.OpGt:
			return reflect.ValueOf(ls > rs), nil
		case expr.OpGe:
			return reflect.ValueOf(ls >= rs), nil
		}
		return reflect.Value{}, errors.Errorf("operator %s not defined on strings", op)
	}

	if lk == reflect.Bool && rk == reflect.Bool {
		switch op {
		case expr.OpEq:
			return reflect.ValueOf(l.Bool() == r.Bool()), nil
		case expr.OpNe:
			return reflect.ValueOf(l.Bool() != r.Bool()), nil
		}
		return reflect.Value{}, errors.Errorf("operator %s not defined on bools", op)
	}

	if l.CanFloat() || r.CanFloat() {
		lf, ok := asFloat(l)
		if !ok {
			return reflect.Value{}, errors.Errorf("operand of %s must be numeric, got %s", op, lk)
		}
		rf, ok := asFloat(r)
		if !ok {
			return reflect.Value{}, errors.Errorf("operand of %s must be numeric, got %s", op, rk)
		}
		switch op {
		case expr.OpAdd:
			return reflect.ValueOf(lf + rf), nil
		case expr.OpSub:
			return reflect.ValueOf(lf - rf), nil
		case expr.OpMul:
			return reflect.ValueOf(lf * rf), nil
		case expr.OpDiv:
			if rf == 0 {
				return reflect.Value{}, errors.New("division by zero")
			}
			return reflect.ValueOf(lf / rf), nil
		case expr.OpEq:
			return reflect.ValueOf(lf == rf), nil
		case expr.OpNe:
			return reflect.ValueOf(lf != rf), nil
		case expr.OpLt:
			return reflect.ValueOf(lf < rf), nil
		case expr.OpLe:
			return reflect.ValueOf(lf <= rf), nil
		case expr.OpGt:
			return reflect.ValueOf(lf > rf), nil
		case expr.OpGe:
			return reflect.ValueOf(lf >= rf), nil
		}
		return reflect.Value{}, errors.Errorf("unsupported operator %s", op)
	}

	li, ok := asInt(l)
	if !ok {
		return reflect.Value{}, errors.Errorf("operand of %s must be numeric, got %s", op, lk)
	}
	ri, ok := asInt(r)
	if !ok {
		return reflect.Value{}, errors.Errorf("operand of %s must be numeric, got %s", op, rk)
	}
	switch op {
	case expr.OpAdd:
		return reflect.ValueOf(li + ri), nil
	case expr.OpSub:
		return reflect.ValueOf(li - ri), nil
	case expr.OpMul:
		return reflect.ValueOf(li * ri), nil
	case expr.OpDiv:
		if ri == 0 {
			return reflect.Value{}, errors.New("division by zero")
		}
		return reflect.ValueOf(li / ri), nil
	case expr.OpEq:
		return reflect.ValueOf(li == ri), nil
	case expr.OpNe:
		return reflect.ValueOf(li != ri), nil
	case expr.OpLt:
		return reflect.ValueOf(li < ri), nil
	case expr.OpLe:
		return reflect.ValueOf(li <= ri), nil
	case expr.OpGt:
		return reflect.ValueOf(li > ri), nil
	case expr.OpGe:
		return reflect.ValueOf(li >= ri), nil
	}
	return reflect.Value{}, errors.Errorf("unsupported operator %s", op)
}

func asFloat(v reflect.Value) (float64, bool) {
	switch {
	case v.CanFloat():
		return v.Float(), true
	case v.CanInt():
		return float64(v.Int()), true
	case v.CanUint():
		return float64(v.Uint()), true
	}
	return 0, false
}

func asInt(v reflect.Value) (int64, bool) {
	switch {
	case v.CanInt():
		return v.Int(), true
	case v.CanUint():
		return int64(v.Uint()), true
	}
	return 0, false
}
