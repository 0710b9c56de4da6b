// Package discovery tracks printers that are polling the broker but are not
// yet present in the printer registry — "discovered but not adopted". The
// tracker is backed by a shared SQL table rather than an in-process map, so
// every worker process behind a load balancer sees the same discovery
// state, per the broker's shared-storage design (see SPEC_FULL.md §3.E /
// spec.md's module-level-globals design note).
package discovery

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/bvisible/CloudPRNT/internal/logger"
	"github.com/bvisible/CloudPRNT/internal/queue"
	"github.com/bvisible/CloudPRNT/internal/registry"
)

// Record is one polling-but-unadopted printer, matching spec.md §4.E's
// discovery record shape.
type Record struct {
	MAC           string
	LastIP        string
	ClientType    string
	ClientVersion string
	StatusCode    string
	PollCount     int
	FirstSeen     time.Time
	LastSeen      time.Time
}

// Tracker is the discovery cache. It is safe for concurrent use by multiple
// goroutines and multiple processes sharing the same database.
type Tracker struct {
	db      *sql.DB
	dialect queue.Dialect
	ttl     time.Duration
	log     *logger.Logger
	feed    *registry.Feed
}

// SetFeed attaches a live feed that Track notifies the first time a MAC
// polls. Operator settings UIs subscribe to the feed to see new printers
// show up without polling /api/discovery.
func (t *Tracker) SetFeed(f *registry.Feed) {
	t.feed = f
}

// New creates a Tracker over db, using dialect for the handful of SQL
// differences between SQLite and PostgreSQL, with entries aging out after
// ttl of silence. ttl <= 0 defaults to 5 minutes, matching spec.md's
// default discovery_ttl_s.
func New(db *sql.DB, dialect queue.Dialect, ttl time.Duration, log *logger.Logger) (*Tracker, error) {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	t := &Tracker{db: db, dialect: dialect, ttl: ttl, log: log}
	if err := t.initSchema(); err != nil {
		return nil, fmt.Errorf("discovery: init schema: %w", err)
	}
	return t, nil
}

func (t *Tracker) initSchema() error {
	schema := fmt.Sprintf(`
	CREATE TABLE IF NOT EXISTS discovery_records (
		mac            TEXT PRIMARY KEY,
		last_ip        TEXT NOT NULL DEFAULT '',
		client_type    TEXT NOT NULL DEFAULT '',
		client_version TEXT NOT NULL DEFAULT '',
		status_code    TEXT NOT NULL DEFAULT '',
		poll_count     INTEGER NOT NULL DEFAULT 0,
		first_seen     %s NOT NULL DEFAULT %s,
		last_seen      %s NOT NULL DEFAULT %s
	);`,
		t.dialect.TimestampType(), t.dialect.CurrentTimestamp(),
		t.dialect.TimestampType(), t.dialect.CurrentTimestamp(),
	)
	_, err := t.db.Exec(schema)
	return err
}

// Track records one poll from mac, incrementing its poll count and
// refreshing last_ip/status_code/last_seen. A first poll from a MAC
// creates the record with poll_count 1. Matches spec.md §4.E's
// track(mac, ip, client_type, status) signature, with client_version
// carried alongside client_type.
func (t *Tracker) Track(ctx context.Context, mac, ip, clientType, clientVersion, statusCode string) error {
	upsert := fmt.Sprintf(
		`INSERT INTO discovery_records (mac, last_ip, client_type, client_version, status_code, poll_count, first_seen, last_seen)
		 VALUES (%s, %s, %s, %s, %s, 1, %s, %s)
		 %s last_ip = %s, client_type = %s, client_version = %s, status_code = %s, poll_count = discovery_records.poll_count + 1, last_seen = %s`,
		t.dialect.Placeholder(1), t.dialect.Placeholder(2), t.dialect.Placeholder(3), t.dialect.Placeholder(4), t.dialect.Placeholder(5),
		t.dialect.CurrentTimestamp(), t.dialect.CurrentTimestamp(),
		t.dialect.UpsertConflict([]string{"mac"}),
		t.dialect.Placeholder(6), t.dialect.Placeholder(7), t.dialect.Placeholder(8), t.dialect.Placeholder(9), t.dialect.CurrentTimestamp(),
	)
	_, err := t.db.ExecContext(ctx, upsert,
		mac, ip, clientType, clientVersion, statusCode,
		ip, clientType, clientVersion, statusCode,
	)
	if err != nil {
		return fmt.Errorf("discovery: track %s: %w", mac, err)
	}

	if t.feed != nil {
		var pollCount int
		row := t.db.QueryRowContext(ctx,
			fmt.Sprintf(`SELECT poll_count FROM discovery_records WHERE mac = %s`, t.dialect.Placeholder(1)),
			mac,
		)
		if err := row.Scan(&pollCount); err == nil && pollCount == 1 {
			t.feed.Notify(registry.DiscoveryEvent{MAC: mac, ClientType: clientType})
		}
	}
	return nil
}

// ListUnadopted returns every printer that has polled within the
// tracker's TTL. Callers intersect this with the printer registry
// themselves (a MAC present in the registry is "adopted", not listed
// here, is a registry-level concern and not this package's business).
func (t *Tracker) ListUnadopted(ctx context.Context) ([]Record, error) {
	cutoff := time.Now().Add(-t.ttl)
	rows, err := t.db.QueryContext(ctx,
		fmt.Sprintf(`SELECT mac, last_ip, client_type, client_version, status_code, poll_count, first_seen, last_seen
		 FROM discovery_records WHERE last_seen >= %s ORDER BY first_seen ASC`, t.dialect.Placeholder(1)),
		cutoff,
	)
	if err != nil {
		return nil, fmt.Errorf("discovery: list: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var r Record
		if err := rows.Scan(&r.MAC, &r.LastIP, &r.ClientType, &r.ClientVersion, &r.StatusCode, &r.PollCount, &r.FirstSeen, &r.LastSeen); err != nil {
			return nil, fmt.Errorf("discovery: list: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Prune deletes entries that have aged out of the TTL window. Safe to call
// periodically; ListUnadopted already filters expired entries on its own,
// so Prune is purely for keeping the table from growing unbounded.
func (t *Tracker) Prune(ctx context.Context) error {
	cutoff := time.Now().Add(-t.ttl)
	_, err := t.db.ExecContext(ctx,
		fmt.Sprintf(`DELETE FROM discovery_records WHERE last_seen < %s`, t.dialect.Placeholder(1)),
		cutoff,
	)
	if err != nil {
		return fmt.Errorf("discovery: prune: %w", err)
	}
	return nil
}

// Clear removes every discovery record. Used by test harnesses.
func (t *Tracker) Clear(ctx context.Context) error {
	_, err := t.db.ExecContext(ctx, `DELETE FROM discovery_records`)
	if err != nil {
		return fmt.Errorf("discovery: clear: %w", err)
	}
	return nil
}
