// Copyright 2023 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package expr

// binding is one frame of the parameter binding stack built while
// descending into nested invocations. The stack is persistent: pushing
// allocates a new head and never mutates the tail, so every recursion
// level keeps its own view of the bindings in scope.
type binding struct {
	param *Param
	repl  Expr
	next  *binding
}

// lookup resolves a parameter innermost first. The first frame whose
// parameter is identical to p shadows any outer frame for the same
// parameter.
func (b *binding) lookup(p *Param) (Expr, bool) {
	for s := b; s != nil; s = s.next {
		if s.param == p {
			return s.repl, true
		}
	}
	return nil, false
}

// ExpandInvocations returns a tree equivalent to e in which every
// invocation of a literal lambda has been replaced by the lambda body with
// the declared parameters substituted by the supplied argument
// expressions. Invocations whose callee is not literally a *Lambda are
// left in place with their children rewritten. The input is not modified;
// running the pass over an already expanded tree returns an equal tree.
func ExpandInvocations(e Expr) Expr {
	return expand(e, nil)
}

func expand(e Expr, env *binding) Expr {
	switch n := e.(type) {
	case nil:
		return nil
	case *Constant:
		return n
	case *Param:
		if repl, ok := env.lookup(n); ok {
			// Rewrite the replacement under the same stack so that
			// substitution chains through intermediate parameters.
			return expand(repl, env)
		}
		return n
	case *Lambda:
		return &Lambda{Params: n.Params, Body: expand(n.Body, env)}
	case *Invoke:
		if l, ok := n.Callee.(*Lambda); ok {
			inner := env
			for i, p := range l.Params {
				inner = &binding{param: p, repl: n.Args[i], next: inner}
			}
			return expand(l.Body, inner)
		}
		return &Invoke{Callee: expand(n.Callee, env), Args: expandList(n.Args, env)}
	case *Call:
		return &Call{Recv: expand(n.Recv, env), Method: n.Method, Type: n.Type, Args: expandList(n.Args, env)}
	case *Member:
		return &Member{Recv: expand(n.Recv, env), Name: n.Name}
	case *Binary:
		return &Binary{Op: n.Op, Left: expand(n.Left, env), Right: expand(n.Right, env)}
	case *Unary:
		return &Unary{Op: n.Op, X: expand(n.X, env)}
	case *Cond:
		return &Cond{Test: expand(n.Test, env), Then: expand(n.Then, env), Else: expand(n.Else, env)}
	case *Convert:
		return &Convert{X: expand(n.X, env), Type: n.Type}
	case *StructInit:
		fields := make([]FieldInit, len(n.Fields))
		for i, f := range n.Fields {
			fields[i] = FieldInit{Name: f.Name, Value: expand(f.Value, env)}
		}
		return &StructInit{Type: n.Type, Fields: fields}
	case *ColumnValue:
		return &ColumnValue{Recv: expand(n.Recv, env), Ordinal: n.Ordinal}
	case *ColumnNull:
		return &ColumnNull{Recv: expand(n.Recv, env), Ordinal: n.Ordinal}
	}
	// Unknown node kinds pass through untouched for downstream consumers.
	return e
}

func expandList(es []Expr, env *binding) []Expr {
	out := make([]Expr, len(es))
	for i, e := range es {
		out[i] = expand(e, env)
	}
	return out
}
