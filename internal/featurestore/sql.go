package featurestore

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

// Feature groups and views live in tables (or SQL views) named <name>_<version>,
// the layout of the online feature store.
var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// SQLSession reads feature data from a SQL database.
type SQLSession struct {
	db      *sql.DB
	dialect string

	mu     sync.RWMutex
	closed bool
}

// OpenSQL opens a sqlite or postgres feature store.
func OpenSQL(ctx context.Context, dialect, dsn string) (*SQLSession, error) {
	driver := "sqlite"
	if dialect == "postgres" {
		driver = "pgx"
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open feature store: %w", err)
	}

	if driver == "sqlite" {
		// A single connection keeps in-memory databases shared.
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	} else {
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(5)
	}
	db.SetConnMaxLifetime(time.Hour)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping feature store: %w", err)
	}

	log.Printf("INFO: connected to %s feature store", dialect)
	return &SQLSession{db: db, dialect: dialect}, nil
}

// DB exposes the connection, e.g. for seeding.
func (s *SQLSession) DB() *sql.DB {
	return s.db
}

// Close closes the database connection.
func (s *SQLSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

func (s *SQLSession) TrainingData(ctx context.Context, view FeatureViewRef) ([]Record, error) {
	return s.query(ctx, view.String(), nil)
}

func (s *SQLSession) ReadGroup(ctx context.Context, group GroupRef, filter *TimeRange) ([]Record, error) {
	return s.query(ctx, group.String(), filter)
}

func (s *SQLSession) query(ctx context.Context, table string, filter *TimeRange) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}
	if !identRe.MatchString(table) {
		return nil, fmt.Errorf("invalid feature table name %q", table)
	}

	exists, err := s.tableExists(ctx, table)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrGroupNotFound, table)
	}

	q := "SELECT * FROM " + table
	var args []interface{}
	if filter != nil {
		q += ` WHERE "timestamp" > ? AND "timestamp" <= ?`
		args = append(args, filter.After, filter.Until)
	}

	rows, err := s.db.QueryContext(ctx, s.rebind(q), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", table, err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var out []Record
	for rows.Next() {
		vals := make([]interface{}, len(cols))
		ptrs := make([]interface{}, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("failed to scan %s row: %w", table, err)
		}
		rec := make(Record, len(cols))
		for i, c := range cols {
			rec[strings.ToLower(c)] = vals[i]
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *SQLSession) tableExists(ctx context.Context, table string) (bool, error) {
	var q string
	switch s.dialect {
	case "postgres":
		q = "SELECT COUNT(*) FROM information_schema.tables WHERE table_name = ?"
	default:
		q = "SELECT COUNT(*) FROM sqlite_master WHERE type IN ('table', 'view') AND name = ?"
	}
	var n int
	if err := s.db.QueryRowContext(ctx, s.rebind(q), table).Scan(&n); err != nil {
		return false, fmt.Errorf("failed to look up %s: %w", table, err)
	}
	return n > 0, nil
}

// rebind rewrites ? placeholders to $n for postgres.
func (s *SQLSession) rebind(q string) string {
	if s.dialect != "postgres" {
		return q
	}
	var b strings.Builder
	n := 0
	for _, r := range q {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
