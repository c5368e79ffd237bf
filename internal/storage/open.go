package storage

import (
	"database/sql"
	"database/sql/driver"
	"embed"
	"errors"
	"fmt"
	"strings"
	"sync"

	gomysql "github.com/go-sql-driver/mysql"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	migratemysql "github.com/golang-migrate/migrate/v4/database/mysql"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	"github.com/mattn/go-sqlite3"
)

//go:embed migrations
var migrations embed.FS

var (
	driverMu sync.Mutex
	drivers  = map[string]string{}
)

// sqliteDriver returns a driver name whose connections attach the
// authoritative database read-only as "aip".
func sqliteDriver(aipPath string) string {
	if aipPath == "" {
		return "sqlite3"
	}
	driverMu.Lock()
	defer driverMu.Unlock()
	if name, ok := drivers[aipPath]; ok {
		return name
	}
	name := fmt.Sprintf("sqlite3_ga_aip_%d", len(drivers))
	uri := "file:" + aipPath + "?mode=ro"
	sql.Register(name, &sqlite3.SQLiteDriver{
		ConnectHook: func(c *sqlite3.SQLiteConn) error {
			_, err := c.Exec("ATTACH DATABASE ? AS aip", []driver.Value{uri})
			return err
		},
	})
	sqlx.BindDriver(name, sqlx.QUESTION)
	drivers[aipPath] = name
	return name
}

// OpenSQLite opens (creating if needed) the enrichment database at path and
// migrates it. A non-empty aipPath is attached read-only for metadata.
func OpenSQLite(path, aipPath string) (*Repo, error) {
	dsn := "file:" + path + "?_busy_timeout=5000&_journal_mode=WAL"
	db, err := sqlx.Open(sqliteDriver(aipPath), dsn)
	if err != nil {
		return nil, err
	}
	// one writer; every pooled connection carries its own ATTACH
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	drv, err := migratesqlite.WithInstance(db.DB, &migratesqlite.Config{})
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := runMigrations("migrations/sqlite", "sqlite3", drv); err != nil {
		_ = db.Close()
		return nil, err
	}
	r := &Repo{db: db, dialect: sqliteDialect}
	if aipPath != "" {
		r.aip = "aip."
	}
	return r, nil
}

// OpenMySQL opens the enrichment schema named in dsn. aipSchema names the
// schema holding the authoritative airport tables on the same server.
func OpenMySQL(dsn, aipSchema string) (*Repo, error) {
	cfg, err := gomysql.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("mysql dsn: %w", err)
	}
	cfg.MultiStatements = true
	db, err := sqlx.Open("mysql", cfg.FormatDSN())
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping mysql: %w", err)
	}
	drv, err := migratemysql.WithInstance(db.DB, &migratemysql.Config{})
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := runMigrations("migrations/mysql", "mysql", drv); err != nil {
		_ = db.Close()
		return nil, err
	}
	r := &Repo{db: db, dialect: mysqlDialect, schema: aipSchema}
	if aipSchema != "" {
		r.aip = "`" + strings.ReplaceAll(aipSchema, "`", "") + "`."
	}
	return r, nil
}

// runMigrations applies the embedded migrations in dir. The migrate
// instance is not closed since that would close the shared *sql.DB.
func runMigrations(dir, dbName string, drv database.Driver) error {
	src, err := iofs.New(migrations, dir)
	if err != nil {
		return fmt.Errorf("migrations source: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, dbName, drv)
	if err != nil {
		return err
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate %s: %w", dbName, err)
	}
	return nil
}
