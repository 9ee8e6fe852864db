// Copyright 2023 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

// Package typeinfo analyses the record types that rows are materialized
// into. Reflection information is generated once per type and cached.
package typeinfo

import (
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"sync"
)

// Field describes one bindable member of a record struct.
type Field struct {
	// Name is the member name within the struct.
	Name string

	// Index for Type.Field.
	Index int

	// Type of the member.
	Type reflect.Type

	// Tag is the column name given in the field's "db" tag, or empty when
	// the field carries no tag and binds by its own name.
	Tag string

	// OmitEmpty is true when "omitempty" is a property of the field's
	// "db" tag.
	OmitEmpty bool
}

// Info represents reflected information about a record struct type.
type Info struct {
	Type reflect.Type

	// Fields lists the bindable members in declaration order.
	Fields []Field

	tagToField map[string]Field
}

// FieldForColumn returns the member bound to the given column. A "db" tag
// matches exactly; an untagged field matches its own name
// case-insensitively. Tagged fields never fall back to name matching.
func (info *Info) FieldForColumn(column string) (Field, bool) {
	if f, ok := info.tagToField[column]; ok {
		return f, true
	}
	for _, f := range info.Fields {
		if f.Tag == "" && strings.EqualFold(f.Name, column) {
			return f, true
		}
	}
	return Field{}, false
}

// ColumnForField returns the column, out of those given, that the member
// binds to, applying the same matching rules as FieldForColumn.
func ColumnForField(f Field, columns []string) (string, bool) {
	for _, column := range columns {
		if f.Tag != "" {
			if f.Tag == column {
				return column, true
			}
			continue
		}
		if strings.EqualFold(f.Name, column) {
			return column, true
		}
	}
	return "", false
}

var cacheMutex sync.RWMutex
var cache = make(map[reflect.Type]*Info)

// GetTypeInfo returns the Info of a given struct type, generating and
// caching as required.
func GetTypeInfo(t reflect.Type) (*Info, error) {
	if t == nil {
		return nil, fmt.Errorf("cannot reflect nil type")
	}

	cacheMutex.RLock()
	info, found := cache[t]
	cacheMutex.RUnlock()
	if found {
		return info, nil
	}

	info, err := generate(t)
	if err != nil {
		return nil, err
	}

	cacheMutex.Lock()
	cache[t] = info
	cacheMutex.Unlock()

	return info, nil
}

// generate produces reflection information for a record struct type.
func generate(t reflect.Type) (*Info, error) {
	if t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("can only reflect struct type, got %s", t.Kind())
	}

	info := Info{
		Type:       t,
		tagToField: make(map[string]Field),
	}

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}
		f := Field{
			Name:  field.Name,
			Index: i,
			Type:  field.Type,
		}
		if tag := field.Tag.Get("db"); tag != "" {
			name, omitEmpty, err := parseTag(tag)
			if err != nil {
				return nil, fmt.Errorf("cannot parse tag for field %s.%s: %s", t.Name(), field.Name, err)
			}
			f.Tag = name
			f.OmitEmpty = omitEmpty
			info.tagToField[name] = f
		}
		info.Fields = append(info.Fields, f)
	}

	return &info, nil
}

var validColNameRx = regexp.MustCompile(`^([a-zA-Z_])+([a-zA-Z_0-9])*$`)

// parseTag parses the input tag string and returns its name and whether it
// contains the "omitempty" option.
func parseTag(tag string) (string, bool, error) {
	options := strings.Split(tag, ",")

	var omitEmpty bool
	if len(options) > 1 {
		for _, flag := range options[1:] {
			if flag == "omitempty" {
				omitEmpty = true
			} else {
				return "", omitEmpty, fmt.Errorf("unsupported flag %q in tag %q", flag, tag)
			}
		}
	}

	name := options[0]
	if len(name) == 0 {
		return "", false, fmt.Errorf("empty db tag")
	}

	if !validColNameRx.MatchString(name) {
		return "", false, fmt.Errorf("invalid column name in 'db' tag: %q", name)
	}

	return name, omitEmpty, nil
}
