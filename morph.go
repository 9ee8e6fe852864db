// Copyright 2023 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package morph

import (
	"context"
	"fmt"
	"reflect"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/canonical/morph/expr"
)

// planCacheInstance caches compiled default shapes across materializers.
var planCacheInstance = newPlanCache()

// Option configures a Materializer.
type Option func(*options)

type options struct {
	shape     *expr.Lambda
	optimizer FieldOptimizer
	logger    logrus.FieldLogger
}

// WithShape supplies an explicit shape expression: a lambda of one row
// parameter producing the record value. Without it the default
// member-by-name shape is used.
func WithShape(shape *expr.Lambda) Option {
	return func(o *options) { o.shape = shape }
}

// WithOptimizer replaces the field access optimizer consulted during shape
// compilation. Passing nil disables optimization; every field access then
// compiles to the generic per-row read.
func WithOptimizer(opt FieldOptimizer) Option {
	return func(o *options) { o.optimizer = opt }
}

// WithLogger sets a logger used to trace shape compilation and command
// execution. The materializer is silent without one.
func WithLogger(logger logrus.FieldLogger) Option {
	return func(o *options) { o.logger = logger }
}

// Materializer converts row cursors into lazy sequences of T. The shape is
// compiled once, on first use, against the column list of the first cursor
// seen; the compiled shape is immutable and may serve any number of
// sequences concurrently. A single sequence borrows its cursor and must be
// driven by one consumer at a time.
type Materializer[T any] struct {
	opts options

	compileOnce sync.Once
	fn          evalFunc
	columns     []string
	compileErr  error
}

// NewMaterializer returns a Materializer for the record type T.
func NewMaterializer[T any](opts ...Option) *Materializer[T] {
	m := &Materializer[T]{}
	m.opts.optimizer = ColumnOptimizer{}
	for _, opt := range opts {
		opt(&m.opts)
	}
	return m
}

func (m *Materializer[T]) targetType() reflect.Type {
	return reflect.TypeOf((*T)(nil)).Elem()
}

// compile compiles the shape exactly once. Concurrent first use is
// serialized by the sync.Once; later calls observe the stored result and
// never trigger recompilation.
func (m *Materializer[T]) compile(columns []string) error {
	m.compileOnce.Do(func() {
		target := m.targetType()
		m.columns = append([]string(nil), columns...)

		shape := m.opts.shape
		useCache := shape == nil && isDefaultOptimizer(m.opts.optimizer)
		var key planKey
		if useCache {
			key = newPlanKey(target, columns)
			if fn, ok := planCacheInstance.lookup(key); ok {
				m.fn = fn
				return
			}
		}

		var err error
		if shape == nil {
			shape, err = defaultShape(target, columns)
			if err != nil {
				m.compileErr = err
				return
			}
		}
		if m.opts.logger != nil {
			m.opts.logger.WithField("type", target.String()).Debugf("compiling shape %s", shape)
		}
		fn, err := compileShape(shape, columns, m.opts.optimizer, target)
		if err != nil {
			m.compileErr = err
			return
		}
		if useCache {
			fn = planCacheInstance.insert(key, fn)
		}
		m.fn = fn
	})
	return m.compileErr
}

func isDefaultOptimizer(opt FieldOptimizer) bool {
	_, ok := opt.(ColumnOptimizer)
	return ok
}

// checkColumns verifies that a cursor's columns are exactly the columns
// the shape was compiled against. Optimized reads address ordinals, so a
// cursor with reordered columns would silently transpose values.
func (m *Materializer[T]) checkColumns(columns []string) error {
	if len(columns) != len(m.columns) {
		return fmt.Errorf("cursor columns %v do not match the columns %v the shape was compiled against", columns, m.columns)
	}
	for i := range columns {
		if columns[i] != m.columns[i] {
			return fmt.Errorf("cursor columns %v do not match the columns %v the shape was compiled against", columns, m.columns)
		}
	}
	return nil
}

// Materialize returns a lazy sequence of records over the cursor, one per
// row, in row order. The cursor is borrowed: it is advanced only as the
// sequence is consumed, and closed when the sequence is closed or
// exhausted, including when setup fails. An instance serves only cursors
// with the column list its shape was compiled against.
func (m *Materializer[T]) Materialize(cur Cursor) *Iterator[T] {
	if cur == nil {
		return &Iterator[T]{err: fmt.Errorf("cannot materialize: %w", ErrNilArgument)}
	}
	columns := cur.Columns()
	if err := m.compile(columns); err != nil {
		cur.Close()
		return &Iterator[T]{err: err}
	}
	if err := m.checkColumns(columns); err != nil {
		cur.Close()
		return &Iterator[T]{err: err}
	}
	return &Iterator[T]{cur: cur, fn: m.fn}
}

// MaterializeCommand executes the command and returns a lazy sequence over
// its cursor. When the command is bound to a connection the connection is
// opened if needed and, if it was opened here, closed on every exit path:
// normal exhaustion, early abandonment via Close, or error.
func (m *Materializer[T]) MaterializeCommand(ctx context.Context, cmd Command) *Iterator[T] {
	if cmd == nil {
		return &Iterator[T]{err: fmt.Errorf("cannot materialize: %w", ErrNilArgument)}
	}
	if ctx == nil {
		ctx = context.Background()
	}

	var conn Connection
	if cc, ok := cmd.(ConnectedCommand); ok {
		conn = cc.Connection()
	}
	scope, err := acquireConnection(ctx, conn)
	if err != nil {
		return &Iterator[T]{err: err}
	}

	var behavior Behavior
	if scope.opened {
		behavior |= CloseConnection
	}
	if m.opts.logger != nil {
		if tracer, ok := cmd.(interface{ TraceString() (string, error) }); ok {
			if trace, terr := tracer.TraceString(); terr == nil {
				m.opts.logger.WithField("query", trace).Debug("materializing command")
			}
		}
	}

	cur, err := cmd.Query(ctx, behavior)
	if err != nil {
		scope.release()
		return &Iterator[T]{err: err}
	}
	columns := cur.Columns()
	if err := m.compile(columns); err != nil {
		cur.Close()
		scope.release()
		return &Iterator[T]{err: err}
	}
	if err := m.checkColumns(columns); err != nil {
		cur.Close()
		scope.release()
		return &Iterator[T]{err: err}
	}
	return &Iterator[T]{cur: cur, fn: m.fn, scope: scope}
}

// Materialize is a convenience that materializes a cursor into T using the
// default shape.
func Materialize[T any](cur Cursor) *Iterator[T] {
	return NewMaterializer[T]().Materialize(cur)
}

// MaterializeCommand is a convenience that runs a command and materializes
// its rows into T using the default shape.
func MaterializeCommand[T any](ctx context.Context, cmd Command) *Iterator[T] {
	return NewMaterializer[T]().MaterializeCommand(ctx, cmd)
}

// Iterator is a lazy, forward-only, single-pass sequence of records. It is
// not restartable: once exhausted or closed it stays finished. Iteration
// errors are returned by Close; per-row conversion errors are returned by
// Get for the offending row only.
type Iterator[T any] struct {
	cur     Cursor
	fn      evalFunc
	scope   *scopedConnection
	err     error
	started bool
	done    bool
}

// Next advances to the next row. It returns false on exhaustion or error,
// releasing the cursor and any connection this sequence opened.
func (iter *Iterator[T]) Next() bool {
	iter.started = true
	if iter.err != nil || iter.cur == nil || iter.done {
		return false
	}
	if iter.cur.Next() {
		return true
	}
	if err := iter.cur.Err(); err != nil {
		iter.err = err
	}
	iter.done = true
	iter.release()
	return false
}

// Get extracts the record from the current row. The error of one row does
// not invalidate rows already yielded, but callers should treat the
// sequence as terminal after a row error and re-acquire a cursor to retry.
func (iter *Iterator[T]) Get() (T, error) {
	var zero T
	if iter.err != nil {
		return zero, iter.err
	}
	if !iter.started {
		return zero, fmt.Errorf("cannot get record before Next")
	}
	if iter.cur == nil || iter.done {
		return zero, fmt.Errorf("iteration ended")
	}
	v, err := iter.fn(&rowEnv{cur: iter.cur})
	if err != nil {
		return zero, err
	}
	out, ok := v.Interface().(T)
	if !ok {
		return zero, fmt.Errorf("cannot convert %s to %T", v.Type(), zero)
	}
	return out, nil
}

// All consumes the rest of the sequence and returns the records. The
// sequence is closed afterwards regardless of outcome.
func (iter *Iterator[T]) All() ([]T, error) {
	defer iter.Close()
	records := []T{}
	for iter.Next() {
		r, err := iter.Get()
		if err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	if err := iter.Close(); err != nil {
		return nil, err
	}
	return records, nil
}

// Close finishes the sequence and returns any error encountered during
// iteration. Close can be called multiple times and the same error will be
// returned.
func (iter *Iterator[T]) Close() error {
	iter.started = true
	cerr := iter.release()
	if iter.err != nil {
		return iter.err
	}
	return cerr
}

// release closes the cursor and the scoped connection exactly once.
func (iter *Iterator[T]) release() error {
	var cerr error
	if iter.cur != nil {
		cerr = iter.cur.Close()
		iter.cur = nil
	}
	rerr := iter.scope.release()
	if cerr != nil {
		return cerr
	}
	return rerr
}
