package demo

import (
	"context"
	"fmt"
	"os"

	"github.com/canonical/go-dqlite/app"
	"github.com/canonical/go-dqlite/client"
	"github.com/sirupsen/logrus"

	"github.com/canonical/morph"
)

type Guest struct {
	ID   int64   `db:"id"`
	Name string  `db:"name"`
	Room *string `db:"room"`
}

// logFunc routes dqlite's internal logging through logrus.
func logFunc(logger logrus.FieldLogger) client.LogFunc {
	return func(l client.LogLevel, format string, a ...interface{}) {
		switch l {
		case client.LogDebug:
			logger.Debugf(format, a...)
		case client.LogInfo:
			logger.Infof(format, a...)
		case client.LogWarn:
			logger.Warnf(format, a...)
		default:
			logger.Errorf(format, a...)
		}
	}
}

func example() error {
	logger := logrus.New()

	dir, err := os.MkdirTemp("", "morph-demo")
	if err != nil {
		return err
	}
	defer os.RemoveAll(dir)

	// A single-node cluster; further nodes would join with
	// app.WithCluster.
	node, err := app.New(dir,
		app.WithAddress("127.0.0.1:9001"),
		app.WithLogFunc(logFunc(logger)),
	)
	if err != nil {
		return err
	}
	defer node.Close()

	ctx := context.Background()
	if err := node.Ready(ctx); err != nil {
		return err
	}

	db, err := node.Open(ctx, "demo")
	if err != nil {
		return err
	}
	defer db.Close()

	_, err = db.Exec(`
		CREATE TABLE guest (
			id integer,
			name text,
			room text
		);`,
	)
	if err != nil {
		return err
	}
	inserts := []string{
		"INSERT INTO guest VALUES (1, 'Alice', '101');",
		"INSERT INTO guest VALUES (2, 'Bob', NULL);",
	}
	for _, insert := range inserts {
		if _, err := db.Exec(insert); err != nil {
			return err
		}
	}

	cmd := &morph.SQLCommand{DB: db, SQL: "SELECT id, name, room FROM guest ORDER BY id"}
	m := morph.NewMaterializer[Guest](morph.WithLogger(logger))
	guests, err := m.MaterializeCommand(ctx, cmd).All()
	if err != nil {
		return err
	}

	for _, g := range guests {
		room := "unassigned"
		if g.Room != nil {
			room = *g.Room
		}
		fmt.Printf("%s is in room %s\n", g.Name, room)
	}
	return nil
}
