package services

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// OptionsResolver lists the allowed values of a sql_query custom field.
type OptionsResolver interface {
	Options(ctx context.Context, query string) ([]string, error)
}

type SQLOptionsResolver struct {
	db      *sql.DB
	timeout time.Duration
	limit   int
}

// OpenSQLOptionsResolver connects through the pgx database/sql driver.
func OpenSQLOptionsResolver(dsn string) (*SQLOptionsResolver, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open options db: %w", err)
	}
	db.SetMaxOpenConns(4)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return NewSQLOptionsResolver(db), nil
}

func NewSQLOptionsResolver(db *sql.DB) *SQLOptionsResolver {
	return &SQLOptionsResolver{db: db, timeout: 5 * time.Second, limit: 1000}
}

func (r *SQLOptionsResolver) Close() error { return r.db.Close() }

// Options runs a read-only query and returns the first column of each row.
func (r *SQLOptionsResolver) Options(ctx context.Context, query string) ([]string, error) {
	query = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(query), ";"))
	if err := checkReadOnlyQuery(query); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("options query: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := make([]string, 0)
	for rows.Next() {
		var v sql.NullString
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("options scan: %w", err)
		}
		if !v.Valid {
			continue
		}
		out = append(out, v.String)
		if len(out) >= r.limit {
			break
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("options rows: %w", err)
	}
	return out, nil
}

func checkReadOnlyQuery(query string) error {
	if query == "" {
		return fmt.Errorf("options query is empty")
	}
	if strings.Contains(query, ";") {
		return fmt.Errorf("options query must be a single statement")
	}
	lower := strings.ToLower(query)
	if !strings.HasPrefix(lower, "select") && !strings.HasPrefix(lower, "with") {
		return fmt.Errorf("options query must start with SELECT or WITH")
	}
	return nil
}
