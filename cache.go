// Copyright 2023 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package morph

import (
	"reflect"
	"strings"
	"sync"
)

// planKey identifies one compiled default shape: the record type plus the
// exact ordered column list it was compiled against.
type planKey struct {
	target  reflect.Type
	columns string
}

// planCache caches extraction functions compiled from default shapes.
// Compiled functions are immutable and safe to share, so materializer
// instances for the same (type, column set) pair reuse one plan instead of
// rebuilding it. Explicit shapes and custom optimizers are compiled per
// materializer and never enter the cache.
//
// The mutex must be held when accessing plans.
type planCache struct {
	plans map[planKey]evalFunc
	mutex sync.RWMutex
}

var once sync.Once
var singlePlanCache *planCache

// newPlanCache returns the single instance of the plan cache.
func newPlanCache() *planCache {
	once.Do(func() {
		singlePlanCache = &planCache{plans: map[planKey]evalFunc{}}
	})
	return singlePlanCache
}

func newPlanKey(target reflect.Type, columns []string) planKey {
	return planKey{target: target, columns: strings.Join(columns, "\x1f")}
}

// lookup returns the cached plan for the key, if any.
func (pc *planCache) lookup(key planKey) (evalFunc, bool) {
	pc.mutex.RLock()
	fn, ok := pc.plans[key]
	pc.mutex.RUnlock()
	return fn, ok
}

// insert stores a compiled plan, keeping an existing entry if another
// materializer compiled the same plan since the caller's lookup.
func (pc *planCache) insert(key planKey, fn evalFunc) evalFunc {
	pc.mutex.Lock()
	defer pc.mutex.Unlock()
	if existing, ok := pc.plans[key]; ok {
		return existing
	}
	pc.plans[key] = fn
	return fn
}

// size reports the number of cached plans. Used by tests.
func (pc *planCache) size() int {
	pc.mutex.RLock()
	defer pc.mutex.RUnlock()
	return len(pc.plans)
}
