// Copyright 2023 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package morph

import (
	"fmt"
	"reflect"
	"sync"
)

// Registry tracks materialized records by key so that a record attached
// once can be found again. It enforces that a key always refers to records
// of a single type.
type Registry struct {
	mutex   sync.RWMutex
	records map[any]any
}

// NewRegistry returns an empty record registry.
func NewRegistry() *Registry {
	return &Registry{records: map[any]any{}}
}

// Attach tracks a record under the given key. Attaching the same record
// again is a no-op. A different record of the same type under the key is
// an error, and a record of a different type is a WrongEntityTypeError.
func (r *Registry) Attach(key any, record any) error {
	if key == nil || record == nil {
		return fmt.Errorf("cannot attach record: %w", ErrNilArgument)
	}
	r.mutex.Lock()
	defer r.mutex.Unlock()
	existing, ok := r.records[key]
	if !ok {
		r.records[key] = record
		return nil
	}
	haveType := reflect.TypeOf(existing)
	wantType := reflect.TypeOf(record)
	if haveType != wantType {
		return &WrongEntityTypeError{Key: key, Have: haveType, Want: wantType}
	}
	if wantType.Comparable() && existing == record {
		return nil
	}
	return fmt.Errorf("another record of type %s is already attached under key %v", wantType, key)
}

// Detach stops tracking the record under the given key.
func (r *Registry) Detach(key any) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	delete(r.records, key)
}

// Lookup finds the tracked record of type T under the given key. A tracked
// record of any other type is a WrongEntityTypeError.
func Lookup[T any](r *Registry, key any) (T, bool, error) {
	var zero T
	if r == nil || key == nil {
		return zero, false, fmt.Errorf("cannot look up record: %w", ErrNilArgument)
	}
	r.mutex.RLock()
	existing, ok := r.records[key]
	r.mutex.RUnlock()
	if !ok {
		return zero, false, nil
	}
	record, ok := existing.(T)
	if !ok {
		return zero, false, &WrongEntityTypeError{
			Key:  key,
			Have: reflect.TypeOf(existing),
			Want: reflect.TypeOf(zero),
		}
	}
	return record, true, nil
}
