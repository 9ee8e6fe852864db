package example

import (
	"database/sql"
	"fmt"
	"reflect"

	"github.com/canonical/morph"
	"github.com/canonical/morph/expr"

	_ "github.com/mattn/go-sqlite3"
)

type Person struct {
	Name string `db:"name"`
	ID   int64  `db:"id"`
	Team string `db:"team"`
}

type Badge struct {
	Label string
}

func example() {
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		panic(err)
	}

	_, err = db.Exec(`
	CREATE TABLE person (
		name text,
		id integer,
		team text
	)`)
	if err != nil {
		panic(err)
	}

	var al = Person{"Alastair", 1, "engineering"}
	var ed = Person{"Ed", 2, "engineering"}
	var pedro = Person{"Pedro", 4, "management"}
	var sam = Person{"Sam", 8, "hr"}
	var people = []Person{al, ed, pedro, sam}
	for _, p := range people {
		_, err := db.Exec("INSERT INTO person (name, id, team) VALUES (?, ?, ?)", p.Name, p.ID, p.Team)
		if err != nil {
			panic(err)
		}
	}

	// Materialize whole records with the default shape.
	rows, err := db.Query("SELECT name, id, team FROM person WHERE team = 'engineering'")
	if err != nil {
		panic(err)
	}
	cur, err := morph.Rows(rows)
	if err != nil {
		panic(err)
	}
	engineers, err := morph.Materialize[Person](cur).All()
	if err != nil {
		panic(err)
	}
	fmt.Println("engineering:")
	for _, p := range engineers {
		fmt.Printf("  %s (%d)\n", p.Name, p.ID)
	}

	// An explicit shape computes a record that exists in no table.
	row := expr.NewParam("row", nil)
	shape := &expr.Lambda{
		Params: []*expr.Param{row},
		Body: &expr.StructInit{
			Type: reflect.TypeOf(Badge{}),
			Fields: []expr.FieldInit{
				{Name: "Label", Value: &expr.Binary{
					Op:    expr.OpAdd,
					Left:  expr.FieldByName(row, reflect.TypeOf(""), "name"),
					Right: &expr.Constant{Value: " @ the summit"},
				}},
			},
		},
	}

	rows, err = db.Query("SELECT name FROM person WHERE team = 'management'")
	if err != nil {
		panic(err)
	}
	cur, err = morph.Rows(rows)
	if err != nil {
		panic(err)
	}
	badges, err := morph.NewMaterializer[Badge](morph.WithShape(shape)).Materialize(cur).All()
	if err != nil {
		panic(err)
	}
	for _, b := range badges {
		fmt.Println(b.Label)
	}

	// Track the records we have seen by primary key.
	registry := morph.NewRegistry()
	for i := range engineers {
		if err := registry.Attach(engineers[i].ID, &engineers[i]); err != nil {
			panic(err)
		}
	}
	if tracked, ok, _ := morph.Lookup[*Person](registry, int64(2)); ok {
		fmt.Printf("tracked: %s\n", tracked.Name)
	}
}
