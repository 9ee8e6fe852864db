// Copyright 2023 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package morph

import (
	"reflect"

	"github.com/canonical/morph/expr"
	"github.com/canonical/morph/internal/typeinfo"
)

// FieldOptimizer is consulted while a shape expression is compiled. Given
// the column list of the materialization, the cursor parameter it is bound
// to and a candidate call, an implementation either returns a replacement
// expression and true, or declines with false, in which case the call is
// compiled as an ordinary field access.
type FieldOptimizer interface {
	OptimizeFieldAccess(columns []string, cursor *expr.Param, call *expr.Call) (expr.Expr, bool)
}

// ColumnOptimizer is the default FieldOptimizer. It rewrites the
// recognized field access calls into direct ordinal reads with an explicit
// null test when the ordinal is statically known. The rewrite is pure and
// deterministic: identical inputs yield structurally identical output.
type ColumnOptimizer struct{}

func (ColumnOptimizer) OptimizeFieldAccess(columns []string, cursor *expr.Param, call *expr.Call) (expr.Expr, bool) {
	if cursor == nil || call == nil || call.Type == nil || len(call.Args) != 1 {
		return nil, false
	}

	// The receiver must be identically the cursor parameter of this
	// materialization. A row reached by any other expression is declined.
	if recv, ok := call.Recv.(*expr.Param); !ok || recv != cursor {
		return nil, false
	}

	lit, ok := call.Args[0].(*expr.Constant)
	if !ok {
		return nil, false
	}

	var ordinal int
	switch call.Method {
	case expr.FieldMethod:
		ordinal, ok = lit.Value.(int)
		if !ok || ordinal < 0 || ordinal >= len(columns) {
			return nil, false
		}
	case expr.FieldByNameMethod:
		name, sok := lit.Value.(string)
		if !sok {
			return nil, false
		}
		ordinal = -1
		for i, column := range columns {
			if column == name {
				ordinal = i
				break
			}
		}
		if ordinal < 0 {
			return nil, false
		}
	default:
		return nil, false
	}

	read := expr.Expr(&expr.Convert{
		X:    &expr.ColumnValue{Recv: cursor, Ordinal: ordinal},
		Type: call.Type,
	})
	if typeinfo.CanBeNull(call.Type) {
		return &expr.Cond{
			Test: &expr.ColumnNull{Recv: cursor, Ordinal: ordinal},
			Then: &expr.Constant{Value: zeroOf(call.Type)},
			Else: read,
		}, true
	}
	return read, true
}

// zeroOf returns the null representation of a nullable type as a constant
// value, keeping the static type for non-interface kinds.
func zeroOf(t reflect.Type) any {
	if t.Kind() == reflect.Interface {
		return nil
	}
	return reflect.Zero(t).Interface()
}
