package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bvisible/CloudPRNT/internal/logger"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" database/sql driver
)

// PoolConfig tunes the pgx connection pool. Zero values leave
// database/sql's defaults in place.
type PoolConfig struct {
	MaxOpenConns        int
	MaxIdleConns        int
	ConnMaxLifetimeSecs int
}

// PostgresStore implements Store on top of PostgreSQL via pgx's
// database/sql driver. It is the backend for multi-worker deployments,
// where the queue and discovery cache must be visible to every process
// behind a load balancer, not just the one that received a given request.
type PostgresStore struct {
	db      *sql.DB
	dialect Dialect
	log     *logger.Logger
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore opens a connection pool against dsn (a standard
// postgres:// or key=value connection string), tunes it per pool, pings
// to confirm connectivity before returning, and ensures the schema
// exists.
func NewPostgresStore(dsn string, pool PoolConfig, log *logger.Logger) (*PostgresStore, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("queue: open postgres: %w", err)
	}

	if pool.MaxOpenConns > 0 {
		db.SetMaxOpenConns(pool.MaxOpenConns)
	}
	if pool.MaxIdleConns > 0 {
		db.SetMaxIdleConns(pool.MaxIdleConns)
	}
	if pool.ConnMaxLifetimeSecs > 0 {
		db.SetConnMaxLifetime(time.Duration(pool.ConnMaxLifetimeSecs) * time.Second)
	}

	pingCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("queue: ping postgres: %w", err)
	}

	s := &PostgresStore{db: db, dialect: &PostgresDialect{}, log: log}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("queue: init schema: %w", err)
	}
	if log != nil {
		log.Info("opened postgres job store")
	}
	return s, nil
}

// DB returns the underlying connection pool, for packages (registry,
// discovery) that share this store's database rather than opening their
// own connection.
func (s *PostgresStore) DB() *sql.DB { return s.db }

// Dialect returns the SQL dialect this store was opened with.
func (s *PostgresStore) Dialect() Dialect { return s.dialect }

func (s *PostgresStore) initSchema() error {
	schema := fmt.Sprintf(`
	CREATE TABLE IF NOT EXISTS jobs (
		id          %s,
		token       TEXT NOT NULL UNIQUE,
		printer_mac TEXT NOT NULL,
		kind        INTEGER NOT NULL,
		payload     TEXT NOT NULL,
		media_types TEXT NOT NULL DEFAULT '',
		created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		fetched     BOOLEAN NOT NULL DEFAULT FALSE
	);

	CREATE INDEX IF NOT EXISTS idx_jobs_mac_created ON jobs(printer_mac, created_at);
	`, s.dialect.AutoIncrement(true))
	_, err := s.db.Exec(schema)
	return err
}

func (s *PostgresStore) Append(ctx context.Context, job JobRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO jobs (token, printer_mac, kind, payload, media_types) VALUES ($1, $2, $3, $4, $5)`,
		job.Token, job.PrinterMAC, int(job.Kind), job.Payload, strings.Join(job.MediaTypes, ","),
	)
	if err != nil {
		if isPgUniqueViolation(err) {
			return ErrDuplicateToken
		}
		return fmt.Errorf("queue: append: %w", err)
	}
	return nil
}

func (s *PostgresStore) Peek(ctx context.Context, mac string) (JobRecord, bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT token, printer_mac, kind, payload, media_types, created_at, fetched
		 FROM jobs WHERE printer_mac = $1 ORDER BY created_at ASC, token ASC LIMIT 1`,
		mac,
	)
	job, err := scanJob(row)
	if err == sql.ErrNoRows {
		return JobRecord{}, false, nil
	}
	if err != nil {
		return JobRecord{}, false, fmt.Errorf("queue: peek: %w", err)
	}
	return job, true, nil
}

func (s *PostgresStore) MarkFetched(ctx context.Context, token string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE jobs SET fetched = TRUE WHERE token = $1`, token)
	if err != nil {
		return fmt.Errorf("queue: mark fetched: %w", err)
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, token string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM jobs WHERE token = $1`, token)
	if err != nil {
		return fmt.Errorf("queue: delete: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("queue: delete: %w", err)
	}
	if n == 0 {
		return ErrJobNotFound
	}
	return nil
}

func (s *PostgresStore) Position(ctx context.Context, mac, token string) (int, error) {
	return positionFromList(ctx, s, mac, token)
}

func (s *PostgresStore) List(ctx context.Context, mac string) ([]JobRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT token, printer_mac, kind, payload, media_types, created_at, fetched
		 FROM jobs WHERE printer_mac = $1 ORDER BY created_at ASC, token ASC`,
		mac,
	)
	if err != nil {
		return nil, fmt.Errorf("queue: list: %w", err)
	}
	defer rows.Close()

	var out []JobRecord
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("queue: list: %w", err)
		}
		out = append(out, job)
	}
	return out, rows.Err()
}

func (s *PostgresStore) Clear(ctx context.Context, mac string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM jobs WHERE printer_mac = $1`, mac)
	if err != nil {
		return fmt.Errorf("queue: clear: %w", err)
	}
	return nil
}

func (s *PostgresStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM jobs`).Scan(&n); err != nil {
		return 0, fmt.Errorf("queue: count: %w", err)
	}
	return n, nil
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func isPgUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return strings.Contains(err.Error(), "duplicate key value")
}
