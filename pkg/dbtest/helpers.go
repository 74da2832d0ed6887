// Package dbtest helps tests that need a real Postgres. Connection details are taken from
// the standard libpq environment variables (PGHOST, PGUSER, etc).
package dbtest

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/stdlib"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

// DB creates a schema and tables for each test, and drops them again before the next.
// Each test gets a fresh pool with a search_path matching the schema, so tests never
// touch the public namespace by accident.
type DB struct {
	db          *sql.DB
	schema      string
	connections []*pgx.Conn
	createFuncs []func(context.Context, *sql.DB) (sql.Result, error)
	cleanFuncs  []func(context.Context, *sql.DB) (sql.Result, error)
}

func Configure(opts ...func(*DB)) *DB {
	dbtest := &DB{}
	for _, opt := range opts {
		opt(dbtest)
	}

	return dbtest
}

// SkipUnlessConfigured skips the current test if no database has been configured
func SkipUnlessConfigured() {
	if os.Getenv("PGHOST") == "" && os.Getenv("PGDATABASE") == "" {
		Skip("no database configured, set PGHOST to run")
	}
}

func (d *DB) Setup(ctx context.Context, timeout time.Duration) (context.Context, func()) {
	ctx, cancel := context.WithTimeout(ctx, timeout)

	// Close any connections that we explicitly acquired
	for _, conn := range d.connections {
		Expect(conn.Close(ctx)).To(Succeed())
	}
	d.connections = nil

	if d.db != nil {
		Expect(d.db.Close()).To(Succeed(), "closing database should always succeed")
	}

	var err error
	d.db, err = sql.Open("pgx", fmt.Sprintf("search_path=%s,public", d.schema))
	Expect(err).NotTo(HaveOccurred(), "failed to open database connection")

	// In case previous tests exited abruptly, clean-up before we begin
	for _, clean := range d.cleanFuncs {
		_, err := clean(ctx, d.db)
		Expect(err).NotTo(HaveOccurred(), "failed to run cleanup before test start")
	}

	for _, create := range d.createFuncs {
		_, err := create(ctx, d.db)
		Expect(err).NotTo(HaveOccurred(), "failed to run creation before test start")
	}

	return ctx, cancel
}

func (d *DB) GetDB() *sql.DB {
	return d.db
}

// GetConnection checks out a connection from the pool, which will be closed when the
// next test is setup.
func (d *DB) GetConnection(ctx context.Context) *pgx.Conn {
	conn, err := stdlib.AcquireConn(d.db)
	Expect(err).NotTo(HaveOccurred(), "failed to checkout connection")

	d.connections = append(d.connections, conn)

	return conn
}

func WithLifecycle(createFunc, cleanFunc func(context.Context, *sql.DB) (sql.Result, error)) func(*DB) {
	return func(db *DB) {
		if createFunc != nil {
			db.createFuncs = append(db.createFuncs, createFunc)
		}
		if cleanFunc != nil {
			db.cleanFuncs = append(db.cleanFuncs, cleanFunc)
		}
	}
}

func WithSchema(name string) func(*DB) {
	return func(db *DB) {
		db.schema = name

		WithLifecycle(
			func(ctx context.Context, db *sql.DB) (sql.Result, error) {
				return db.ExecContext(ctx, fmt.Sprintf(`create schema %s;`, name))
			},
			func(ctx context.Context, db *sql.DB) (sql.Result, error) {
				return db.ExecContext(ctx, fmt.Sprintf(`drop schema if exists %s cascade;`, name))
			},
		)(db)
	}
}

func WithTable(name string, fieldDefinitions ...string) func(*DB) {
	return WithLifecycle(
		func(ctx context.Context, db *sql.DB) (sql.Result, error) {
			return db.ExecContext(ctx, fmt.Sprintf("create table %s (%s);", name, strings.Join(fieldDefinitions, ", ")))
		},
		func(ctx context.Context, db *sql.DB) (sql.Result, error) {
			return db.ExecContext(ctx, fmt.Sprintf(`drop table if exists %s cascade;`, name))
		},
	)
}
