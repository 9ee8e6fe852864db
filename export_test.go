// Copyright 2023 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package morph

import "reflect"

// PlanCached reports whether a compiled default shape for the given record
// type and column list is in the package plan cache.
func PlanCached(target reflect.Type, columns []string) bool {
	_, ok := planCacheInstance.lookup(newPlanKey(target, columns))
	return ok
}

var DefaultShape = defaultShape
