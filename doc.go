// Copyright 2023 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

/*
Package morph turns row-oriented query results into lazily produced,
typed records, and prepares expression trees for query translation.

A Materializer pairs a record type with a shape: a description of how one
row becomes one value. The shape is either implicit, binding struct
members to columns by "db" tag or case-insensitive name, or explicit, a
lambda expression built with the expr package. Shapes compile once, on
first use, into an extraction function that is reused for every row and
every subsequent sequence.

	type Person struct {
		ID   int64  `db:"id"`
		Name string `db:"name"`
	}

	rows, err := db.Query("SELECT id, name FROM person")
	...
	cur, err := morph.Rows(rows)
	...
	iter := morph.Materialize[Person](cur)
	for iter.Next() {
		p, err := iter.Get()
		...
	}
	err = iter.Close()

Explicit shapes may embed invocations of other lambda expressions to
compose shapes from reusable pieces. Before compilation the tree is run
through expr.ExpandInvocations, which inlines every invocation of a
literal lambda so that neither the compiler nor a downstream query
translator needs to understand indirection.

While a shape compiles, recognized field access calls - reads of a row
field by ordinal or by name - are offered to a FieldOptimizer. The default
optimizer resolves literal names against the column list and rewrites the
call into a direct ordinal read guarded by an explicit null test, removing
the per-row name lookup. Optimizers are pluggable via WithOptimizer.

Sequences are pull-based: no row is read ahead of the consumer, and
abandoning a sequence early releases the cursor, along with any
connection the materializer itself opened for a command.
*/
package morph
