package queue

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bvisible/CloudPRNT/internal/logger"

	_ "modernc.org/sqlite" // pure-Go driver, no CGO required
)

const schemaVersion = 1

// SQLiteStore implements Store on top of modernc.org/sqlite. It is the
// default backend: a single file, safe for one process or a small fleet of
// printers, with no external database to stand up.
type SQLiteStore struct {
	db      *sql.DB
	dialect Dialect
	log     *logger.Logger
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore opens (and if necessary creates) a SQLite database at
// dbPath. dbPath may be ":memory:" for ephemeral use in tests.
func NewSQLiteStore(dbPath string, log *logger.Logger) (*SQLiteStore, error) {
	if dbPath != ":memory:" {
		if dir := filepath.Dir(dbPath); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("queue: create db directory: %w", err)
			}
		}
	}

	connStr := dbPath
	if dbPath != ":memory:" {
		connStr += "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000"
	}

	db, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("queue: open sqlite: %w", err)
	}

	s := &SQLiteStore{db: db, dialect: &SQLiteDialect{}, log: log}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("queue: init schema: %w", err)
	}
	if log != nil {
		log.Info("opened sqlite job store", "path", dbPath)
	}
	return s, nil
}

// DB returns the underlying connection pool, for packages (registry,
// discovery) that share this store's database rather than opening their
// own connection.
func (s *SQLiteStore) DB() *sql.DB { return s.db }

// Dialect returns the SQL dialect this store was opened with.
func (s *SQLiteStore) Dialect() Dialect { return s.dialect }

func (s *SQLiteStore) initSchema() error {
	schema := fmt.Sprintf(`
	CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL);

	CREATE TABLE IF NOT EXISTS jobs (
		id          %s,
		token       TEXT NOT NULL UNIQUE,
		printer_mac TEXT NOT NULL,
		kind        INTEGER NOT NULL,
		payload     TEXT NOT NULL,
		media_types TEXT NOT NULL DEFAULT '',
		created_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		fetched     INTEGER NOT NULL DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_jobs_mac_created ON jobs(printer_mac, created_at);
	`, s.dialect.AutoIncrement(false))
	if _, err := s.db.Exec(schema); err != nil {
		return err
	}

	var count int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM schema_version").Scan(&count); err != nil {
		return err
	}
	if count == 0 {
		_, err := s.db.Exec("INSERT INTO schema_version(version) VALUES (?)", schemaVersion)
		return err
	}
	return nil
}

func (s *SQLiteStore) Append(ctx context.Context, job JobRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO jobs (token, printer_mac, kind, payload, media_types) VALUES (?, ?, ?, ?, ?)`,
		job.Token, job.PrinterMAC, int(job.Kind), job.Payload, strings.Join(job.MediaTypes, ","),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateToken
		}
		return fmt.Errorf("queue: append: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Peek(ctx context.Context, mac string) (JobRecord, bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT token, printer_mac, kind, payload, media_types, created_at, fetched
		 FROM jobs WHERE printer_mac = ? ORDER BY created_at ASC, token ASC LIMIT 1`,
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

func (s *SQLiteStore) MarkFetched(ctx context.Context, token string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE jobs SET fetched = 1 WHERE token = ?`, token)
	if err != nil {
		return fmt.Errorf("queue: mark fetched: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Delete(ctx context.Context, token string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM jobs WHERE token = ?`, token)
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

func (s *SQLiteStore) Position(ctx context.Context, mac, token string) (int, error) {
	return positionFromList(ctx, s, mac, token)
}

func (s *SQLiteStore) List(ctx context.Context, mac string) ([]JobRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT token, printer_mac, kind, payload, media_types, created_at, fetched
		 FROM jobs WHERE printer_mac = ? ORDER BY created_at ASC, token ASC`,
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

func (s *SQLiteStore) Clear(ctx context.Context, mac string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM jobs WHERE printer_mac = ?`, mac)
	if err != nil {
		return fmt.Errorf("queue: clear: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM jobs`).Scan(&n); err != nil {
		return 0, fmt.Errorf("queue: count: %w", err)
	}
	return n, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func isUniqueViolation(err error) bool {
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(rs rowScanner) (JobRecord, error) {
	var (
		job        JobRecord
		kind       int
		mediaTypes string
		createdAt  time.Time
		fetched    int
	)
	if err := rs.Scan(&job.Token, &job.PrinterMAC, &kind, &job.Payload, &mediaTypes, &createdAt, &fetched); err != nil {
		return JobRecord{}, err
	}
	job.Kind = PayloadKind(kind)
	job.CreatedAt = createdAt
	job.Fetched = fetched != 0
	if mediaTypes != "" {
		job.MediaTypes = strings.Split(mediaTypes, ",")
	}
	return job, nil
}

// positionFromList computes a 1-based FIFO position by listing the
// printer's queue and finding token's index. Queue depths per printer are
// small enough that this is simpler and just as correct as an index-backed
// COUNT(*) query, and it is backend-agnostic.
func positionFromList(ctx context.Context, s Store, mac, token string) (int, error) {
	jobs, err := s.List(ctx, mac)
	if err != nil {
		return 0, err
	}
	for i, j := range jobs {
		if j.Token == token {
			return i + 1, nil
		}
	}
	return 0, ErrJobNotFound
}
