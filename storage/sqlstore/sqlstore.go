// Package sqlstore keeps accounts in a SQL table. SQLite (modernc.org/sqlite)
// and PostgreSQL (lib/pq) are supported.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"xdao.co/mcpreg/address"
	"xdao.co/mcpreg/storage"
)

// Dialect captures the SQL differences between supported databases.
type Dialect struct {
	Name string
	// Placeholder returns the bind marker for the n-th (1-based) argument.
	Placeholder func(n int) string
	// LockSuffix is appended to row reads inside a commit.
	LockSuffix string
	BlobType   string
}

var (
	SQLite = Dialect{
		Name:        "sqlite",
		Placeholder: func(int) string { return "?" },
		BlobType:    "BLOB",
	}
	Postgres = Dialect{
		Name:        "postgres",
		Placeholder: func(n int) string { return fmt.Sprintf("$%d", n) },
		LockSuffix:  " FOR UPDATE",
		BlobType:    "BYTEA",
	}
)

type Backend struct {
	db      *sql.DB
	dialect Dialect
	ownsDB  bool
}

// New wraps an open database. It does not create the schema; call Migrate.
func New(db *sql.DB, dialect Dialect) *Backend {
	return &Backend{db: db, dialect: dialect}
}

// OpenSQLite opens (creating if needed) a SQLite database file.
// Connections are limited to one so that commits serialize.
func OpenSQLite(ctx context.Context, path string) (*Backend, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	b := &Backend{db: db, dialect: SQLite, ownsDB: true}
	if err := b.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return b, nil
}

// OpenPostgres connects with a lib/pq DSN.
func OpenPostgres(ctx context.Context, dsn string) (*Backend, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	b := &Backend{db: db, dialect: Postgres, ownsDB: true}
	if err := b.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return b, nil
}

func (b *Backend) Migrate(ctx context.Context) error {
	query := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS accounts (
		address TEXT PRIMARY KEY,
		data %s NOT NULL
	)`, b.dialect.BlobType)
	if _, err := b.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("sqlstore: migrate: %w", err)
	}
	return nil
}

func (b *Backend) selectQuery(lock bool) string {
	q := "SELECT data FROM accounts WHERE address = " + b.dialect.Placeholder(1)
	if lock {
		q += b.dialect.LockSuffix
	}
	return q
}

func (b *Backend) Read(ctx context.Context, addr address.Address) ([]byte, bool, error) {
	var data []byte
	err := b.db.QueryRowContext(ctx, b.selectQuery(false), addr.String()).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("sqlstore: read %s: %w", addr, err)
	}
	return data, true, nil
}

func (b *Backend) Commit(ctx context.Context, reads, writes map[address.Address][]byte) (err error) {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	current := map[address.Address][]byte{}
	for _, addr := range storage.Addresses(reads, writes) {
		var data []byte
		qerr := tx.QueryRowContext(ctx, b.selectQuery(true), addr.String()).Scan(&data)
		switch {
		case errors.Is(qerr, sql.ErrNoRows):
		case qerr != nil:
			return fmt.Errorf("sqlstore: lock %s: %w", addr, qerr)
		default:
			current[addr] = data
		}
	}

	ok, err := storage.ReadsHold(reads, func(addr address.Address) ([]byte, bool, error) {
		v, ok := current[addr]
		return v, ok, nil
	})
	if err != nil {
		return err
	}
	if !ok {
		return storage.ErrConflict
	}

	p := b.dialect.Placeholder
	insert := fmt.Sprintf("INSERT INTO accounts (address, data) VALUES (%s, %s)", p(1), p(2))
	update := fmt.Sprintf("UPDATE accounts SET data = %s WHERE address = %s", p(1), p(2))
	for _, addr := range storage.Addresses(writes) {
		if _, exists := current[addr]; exists {
			_, err = tx.ExecContext(ctx, update, writes[addr], addr.String())
		} else {
			_, err = tx.ExecContext(ctx, insert, addr.String(), writes[addr])
		}
		if err != nil {
			if isUniqueViolation(err) {
				return storage.ErrConflict
			}
			return fmt.Errorf("sqlstore: write %s: %w", addr, err)
		}
	}
	if err = tx.Commit(); err != nil {
		if isUniqueViolation(err) || isSerializationFailure(err) {
			return storage.ErrConflict
		}
		return err
	}
	return nil
}

func (b *Backend) Close() error {
	if !b.ownsDB {
		return nil
	}
	return b.db.Close()
}

// isUniqueViolation reports a concurrent insert of the same address. Row locks
// cannot cover rows that do not exist yet, so two commits may both see an
// address as absent; the primary key rejects the loser.
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		switch liteErr.Code() {
		case sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	return false
}

func isSerializationFailure(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && (pqErr.Code == "40001" || pqErr.Code == "40P01")
}
