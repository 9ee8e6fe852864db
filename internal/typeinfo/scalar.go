// Copyright 2023 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package typeinfo

import (
	"database/sql"
	"reflect"
	"time"
)

var scannerInterface = reflect.TypeOf((*sql.Scanner)(nil)).Elem()

var timeType = reflect.TypeOf(time.Time{})
var bytesType = reflect.TypeOf([]byte(nil))

// CanBeNull reports whether a type has a representation for a database
// null: pointers and other reference-like kinds become nil, and types
// whose pointer implements sql.Scanner (sql.NullString and friends)
// record the absence themselves.
func CanBeNull(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice:
		return true
	}
	return reflect.PointerTo(t).Implements(scannerInterface)
}

// IsScalar reports whether a type binds to a single column rather than to
// a set of members: primitives, byte slices, times, sql.Scanner
// implementors, and pointers to any of those.
func IsScalar(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64,
		reflect.String:
		return true
	case reflect.Pointer:
		return IsScalar(t.Elem())
	}
	if t == timeType || t == bytesType {
		return true
	}
	return reflect.PointerTo(t).Implements(scannerInterface)
}
