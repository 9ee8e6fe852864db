// Copyright 2023 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package morph

import (
	"reflect"

	"github.com/canonical/morph/expr"
	"github.com/canonical/morph/internal/typeinfo"
)

// defaultShape builds the implicit shape for a record type against a
// column list. Scalar targets bind directly to ordinal 0. Struct targets
// bind each member to its matching column; members with no matching column
// keep their zero value and columns with no matching member are ignored. A
// struct with no matching member at all is a shape mismatch.
//
// The default shape is expressed with the recognized by-name field access
// calls so that it goes through the same optimizer as explicit shapes and
// compiles down to direct ordinal reads.
func defaultShape(target reflect.Type, columns []string) (*expr.Lambda, error) {
	row := expr.NewParam("row", nil)

	if typeinfo.IsScalar(target) {
		return &expr.Lambda{
			Params: []*expr.Param{row},
			Body:   expr.Field(row, target, 0),
		}, nil
	}

	t := target
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil, &ShapeMismatchError{Type: target, Columns: columns}
	}
	info, err := typeinfo.GetTypeInfo(t)
	if err != nil {
		return nil, err
	}

	var fields []expr.FieldInit
	for _, f := range info.Fields {
		column, ok := typeinfo.ColumnForField(f, columns)
		if !ok {
			continue
		}
		fields = append(fields, expr.FieldInit{
			Name:  f.Name,
			Value: expr.FieldByName(row, f.Type, column),
		})
	}
	if len(fields) == 0 {
		return nil, &ShapeMismatchError{Type: target, Columns: columns}
	}

	return &expr.Lambda{
		Params: []*expr.Param{row},
		Body:   &expr.StructInit{Type: t, Fields: fields},
	}, nil
}
