package docstore

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

//go:embed migrations
var migrationsFS embed.FS

// dialect holds the statements that differ between PostgreSQL (JSONB) and
// SQLite (JSON1).
type dialect struct {
	name        string
	driverName  string
	mergeUpsert string
	replace     string
	fieldEquals func(field string, n int) string
	bind        func(v any) (any, error)
	placeholder func(n int) string
}

var postgresDialect = dialect{
	name:       "postgres",
	driverName: "postgres",
	mergeUpsert: `INSERT INTO documents (collection, id, data, created_at, updated_at)
		VALUES ($1, $2, $3::jsonb, NOW(), NOW())
		ON CONFLICT (collection, id) DO UPDATE
		SET data = documents.data || EXCLUDED.data, updated_at = NOW()`,
	replace: `INSERT INTO documents (collection, id, data, created_at, updated_at)
		VALUES ($1, $2, $3::jsonb, NOW(), NOW())
		ON CONFLICT (collection, id) DO UPDATE
		SET data = EXCLUDED.data, updated_at = NOW()`,
	fieldEquals: func(field string, n int) string {
		return fmt.Sprintf("data -> '%s' = $%d::jsonb", field, n)
	},
	bind: func(v any) (any, error) {
		b, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		return string(b), nil
	},
	placeholder: func(n int) string { return fmt.Sprintf("$%d", n) },
}

var sqliteDialect = dialect{
	name:       "sqlite",
	driverName: "sqlite",
	mergeUpsert: `INSERT INTO documents (collection, id, data, created_at, updated_at)
		VALUES (?, ?, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
		ON CONFLICT (collection, id) DO UPDATE
		SET data = json_patch(documents.data, excluded.data), updated_at = CURRENT_TIMESTAMP`,
	replace: `INSERT INTO documents (collection, id, data, created_at, updated_at)
		VALUES (?, ?, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
		ON CONFLICT (collection, id) DO UPDATE
		SET data = excluded.data, updated_at = CURRENT_TIMESTAMP`,
	fieldEquals: func(field string, _ int) string {
		return fmt.Sprintf("json_extract(data, '$.%s') = ?", field)
	},
	bind: func(v any) (any, error) {
		switch t := v.(type) {
		case bool:
			if t {
				return 1, nil
			}
			return 0, nil
		case time.Time:
			return t.Format(time.RFC3339Nano), nil
		}
		return v, nil
	},
	placeholder: func(int) string { return "?" },
}

// SQLStore keeps every collection in one documents table with a JSON column.
type SQLStore struct {
	db      *sql.DB
	dialect dialect
}

func OpenPostgres(dsn string) (*SQLStore, error) {
	return openSQL(postgresDialect, dsn)
}

func OpenSQLite(path string) (*SQLStore, error) {
	return openSQL(sqliteDialect, path)
}

func openSQL(d dialect, dsn string) (*SQLStore, error) {
	db, err := sql.Open(d.driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if d.name == "sqlite" {
		// a single writer avoids SQLITE_BUSY under concurrent cart writes
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(50)
		db.SetMaxIdleConns(10)
	}
	return &SQLStore{db: db, dialect: d}, nil
}

// RunMigrations applies the embedded schema for the store's dialect.
func (s *SQLStore) RunMigrations() error {
	var (
		driver database.Driver
		err    error
	)
	switch s.dialect.name {
	case "postgres":
		driver, err = postgres.WithInstance(s.db, &postgres.Config{
			MigrationsTable: "docstore_schema_migrations",
		})
	default:
		driver, err = sqlite.WithInstance(s.db, &sqlite.Config{
			MigrationsTable: "docstore_schema_migrations",
		})
	}
	if err != nil {
		return fmt.Errorf("could not create migration driver: %w", err)
	}

	src, err := iofs.New(migrationsFS, "migrations/"+s.dialect.name)
	if err != nil {
		return fmt.Errorf("could not open embedded migrations: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, s.dialect.name, driver)
	if err != nil {
		return fmt.Errorf("could not create migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("could not run migrations: %w", err)
	}
	return nil
}

func (s *SQLStore) Get(ctx context.Context, collection, id string) (Document, error) {
	query := fmt.Sprintf("SELECT data FROM documents WHERE collection = %s AND id = %s",
		s.dialect.placeholder(1), s.dialect.placeholder(2))

	var raw []byte
	err := s.db.QueryRowContext(ctx, query, collection, id).Scan(&raw)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get %s/%s: %w", collection, id, err)
	}
	return decodeDocument(raw)
}

func (s *SQLStore) Set(ctx context.Context, collection, id string, data Document, opts SetOptions) error {
	payload, err := encodeDocument(data)
	if err != nil {
		return err
	}

	query := s.dialect.replace
	if opts.Merge {
		query = s.dialect.mergeUpsert
	}
	if _, err := s.db.ExecContext(ctx, query, collection, id, payload); err != nil {
		return fmt.Errorf("failed to set %s/%s: %w", collection, id, err)
	}
	return nil
}

func (s *SQLStore) Add(ctx context.Context, collection string, data Document) (string, error) {
	payload, err := encodeDocument(data)
	if err != nil {
		return "", err
	}

	id := uuid.NewString()
	if _, err := s.db.ExecContext(ctx, s.dialect.replace, collection, id, payload); err != nil {
		return "", fmt.Errorf("failed to add to %s: %w", collection, err)
	}
	return id, nil
}

func (s *SQLStore) Query(ctx context.Context, collection string, filters ...Filter) ([]Snapshot, error) {
	if err := validateFilters(filters); err != nil {
		return nil, err
	}

	var b strings.Builder
	b.WriteString("SELECT id, data FROM documents WHERE collection = ")
	b.WriteString(s.dialect.placeholder(1))
	args := []any{collection}
	for _, f := range filters {
		v, err := s.dialect.bind(f.Value)
		if err != nil {
			return nil, fmt.Errorf("failed to bind filter %s: %w", f.Field, err)
		}
		args = append(args, v)
		b.WriteString(" AND ")
		b.WriteString(s.dialect.fieldEquals(f.Field, len(args)))
	}
	b.WriteString(" ORDER BY id")

	rows, err := s.db.QueryContext(ctx, b.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", collection, err)
	}
	defer rows.Close()

	result := make([]Snapshot, 0)
	for rows.Next() {
		var (
			id  string
			raw []byte
		)
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		doc, err := decodeDocument(raw)
		if err != nil {
			return nil, err
		}
		result = append(result, Snapshot{ID: id, Data: doc})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return result, nil
}

func (s *SQLStore) Close(context.Context) error {
	return s.db.Close()
}

func encodeDocument(data Document) (string, error) {
	if data == nil {
		data = Document{}
	}
	b, err := json.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("failed to marshal document: %w", err)
	}
	return string(b), nil
}

func decodeDocument(raw []byte) (Document, error) {
	doc := Document{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal document: %w", err)
	}
	return doc, nil
}
