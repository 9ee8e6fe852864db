// Copyright 2023 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package morph

import (
	"errors"
	"fmt"
	"reflect"
)

// ErrNilArgument is returned when a required input is absent. It is
// detected eagerly at the call boundary, before any row is processed.
var ErrNilArgument = errors.New("nil argument")

// ShapeMismatchError is returned when a record type has no viable
// member/column correspondence and is not a single-column scalar.
type ShapeMismatchError struct {
	Type    reflect.Type
	Columns []string
}

func (e *ShapeMismatchError) Error() string {
	return fmt.Sprintf("no member of %s matches any of the columns %v", e.Type, e.Columns)
}

// NullConversionError is returned when a database null must be assigned to
// a target type that cannot represent null. It is raised only when the
// offending row is consumed; rows already yielded are unaffected.
type NullConversionError struct {
	// Column is the column name when known, otherwise empty.
	Column string
	// Ordinal is the column ordinal when known, otherwise -1.
	Ordinal int
	Target  reflect.Type
}

func (e *NullConversionError) Error() string {
	switch {
	case e.Column != "":
		return fmt.Sprintf("cannot assign null in column %q to %s", e.Column, e.Target)
	case e.Ordinal >= 0:
		return fmt.Sprintf("cannot assign null at ordinal %d to %s", e.Ordinal, e.Target)
	}
	return fmt.Sprintf("cannot assign null to %s", e.Target)
}

// InvalidShapeExpressionError is returned at shape compile time when a
// supplied expression uses a construct the materializer cannot interpret.
type InvalidShapeExpressionError struct {
	Node   string
	Reason string
}

func (e *InvalidShapeExpressionError) Error() string {
	return fmt.Sprintf("unsupported shape expression %s: %s", e.Node, e.Reason)
}

// WrongEntityTypeError is returned when an attachment or lookup by key
// finds an existing tracked record of an incompatible type.
type WrongEntityTypeError struct {
	Key  any
	Have reflect.Type
	Want reflect.Type
}

func (e *WrongEntityTypeError) Error() string {
	return fmt.Sprintf("record tracked under key %v has type %s, not %s", e.Key, e.Have, e.Want)
}
