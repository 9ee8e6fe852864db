// Copyright 2023 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package morph

import (
	"fmt"
	"strings"

	"github.com/canonical/morph/expr"
)

// MergePolicy controls how records produced by a query provider are
// reconciled with records it already tracks.
type MergePolicy int

const (
	// MergeAppendOnly keeps tracked records and appends new ones.
	MergeAppendOnly MergePolicy = iota
	// MergeOverwriteChanges replaces tracked state with query results.
	MergeOverwriteChanges
	// MergePreserveChanges keeps local modifications, refreshing the rest.
	MergePreserveChanges
	// MergeNoTracking produces records without tracking them.
	MergeNoTracking
)

// Query is the narrow contract of an external query provider: a query that
// can be rebuilt around a rewritten expression tree, traced, and tuned.
// The provider owns translation of the tree; this package only prepares
// trees for it.
type Query interface {
	// Rebuild returns an equivalent query for the given expression tree.
	Rebuild(tree expr.Expr) (Query, error)

	// SetMergePolicy sets the provider's record reconciliation policy.
	SetMergePolicy(policy MergePolicy) error

	// TraceString returns a human-readable form of the query the provider
	// would execute.
	TraceString() (string, error)

	// Include asks the provider to load the named navigation path along
	// with the results.
	Include(path string) error
}

// Rebuild expands invocations in the tree and rebuilds the query around
// the flattened result, so the provider's translator never sees an
// invocation node.
func Rebuild(q Query, tree expr.Expr) (Query, error) {
	if q == nil || tree == nil {
		return nil, fmt.Errorf("cannot rebuild query: %w", ErrNilArgument)
	}
	return q.Rebuild(expr.ExpandInvocations(tree))
}

// SetMergePolicy sets the merge policy on a query provider.
func SetMergePolicy(q Query, policy MergePolicy) error {
	if q == nil {
		return fmt.Errorf("cannot set merge policy: %w", ErrNilArgument)
	}
	return q.SetMergePolicy(policy)
}

// TraceString returns the provider's rendering of the query text.
func TraceString(q Query) (string, error) {
	if q == nil {
		return "", fmt.Errorf("cannot trace query: %w", ErrNilArgument)
	}
	return q.TraceString()
}

// Include resolves a selector lambda to a navigation path and asks the
// provider to load it. The selector must be a chain of member accesses on
// the lambda parameter, such as row.Customer.Address.
func Include(q Query, selector *expr.Lambda) error {
	if q == nil {
		return fmt.Errorf("cannot include path: %w", ErrNilArgument)
	}
	path, err := PathOf(selector)
	if err != nil {
		return err
	}
	return q.Include(path)
}

// PathOf extracts the dotted member path named by a selector lambda.
// Conversions along the chain are ignored; any other construct makes the
// selector uninterpretable.
func PathOf(selector *expr.Lambda) (string, error) {
	if selector == nil {
		return "", fmt.Errorf("cannot extract path: %w", ErrNilArgument)
	}
	if len(selector.Params) != 1 {
		return "", &InvalidShapeExpressionError{Node: selector.String(), Reason: "selector must take exactly one parameter"}
	}

	var parts []string
	e := selector.Body
	for {
		switch n := e.(type) {
		case *expr.Member:
			parts = append(parts, n.Name)
			e = n.Recv
		case *expr.Convert:
			e = n.X
		case *expr.Param:
			if n != selector.Params[0] {
				return "", &InvalidShapeExpressionError{Node: selector.String(), Reason: "selector must start at its own parameter"}
			}
			if len(parts) == 0 {
				return "", &InvalidShapeExpressionError{Node: selector.String(), Reason: "selector names no member"}
			}
			// Reverse: the chain was walked from the leaf inwards.
			for i, j := 0, len(parts)-1; i < j; i, j = i+1, j-1 {
				parts[i], parts[j] = parts[j], parts[i]
			}
			return strings.Join(parts, "."), nil
		default:
			return "", &InvalidShapeExpressionError{Node: selector.String(), Reason: "selector must be a chain of member accesses"}
		}
	}
}
