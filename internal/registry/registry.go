// Package registry is the read model over adopted printers: the settings
// snapshot a job-ingestion caller uses to resolve a label to a MAC and to
// pick defaults, plus the mutations that move a printer from merely
// "discovered" (internal/discovery) to "adopted".
package registry

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/bvisible/CloudPRNT/internal/logger"
	"github.com/bvisible/CloudPRNT/internal/queue"
)

// ErrNotFound is returned when a label or MAC doesn't resolve to an
// adopted printer.
var ErrNotFound = errors.New("registry: printer not found")

// Printer is one adopted printer.
type Printer struct {
	Label              string    `json:"label"`
	MAC                string    `json:"mac"`
	UsePush            bool      `json:"use_push"`
	IsDefault          bool      `json:"is_default"`
	Status             string    `json:"status"`
	PrintingInProgress bool      `json:"printing_in_progress"`
	LastSeen           time.Time `json:"last_seen"`
}

// Settings is the read-only snapshot spec.md §4.H documents.
type Settings struct {
	HeaderLogoURL     string    `json:"header_logo_url"`
	FooterLogoURL     string    `json:"footer_logo_url"`
	DefaultPrinter    string    `json:"default_printer"`
	DefaultPaperWidth int       `json:"default_paper_width"`
	Printers          []Printer `json:"printers"`
}

// Registry is the SQL-backed printer registry.
type Registry struct {
	db      *sql.DB
	dialect queue.Dialect
	log     *logger.Logger

	headerLogoURL     string
	footerLogoURL     string
	defaultPaperWidth int
}

// Config seeds the registry's static settings (the ones this broker's
// config file owns rather than the database — spec.md §4.H groups them
// with the printer list for convenience but they aren't per-printer rows).
type Config struct {
	HeaderLogoURL     string
	FooterLogoURL     string
	DefaultPaperWidth int
}

// New creates a Registry over db using dialect for SQL differences.
func New(db *sql.DB, dialect queue.Dialect, cfg Config, log *logger.Logger) (*Registry, error) {
	if cfg.DefaultPaperWidth <= 0 {
		cfg.DefaultPaperWidth = 80
	}
	r := &Registry{
		db:                db,
		dialect:           dialect,
		log:               log,
		headerLogoURL:     cfg.HeaderLogoURL,
		footerLogoURL:     cfg.FooterLogoURL,
		defaultPaperWidth: cfg.DefaultPaperWidth,
	}
	if err := r.initSchema(); err != nil {
		return nil, fmt.Errorf("registry: init schema: %w", err)
	}
	return r, nil
}

func (r *Registry) initSchema() error {
	schema := fmt.Sprintf(`
	CREATE TABLE IF NOT EXISTS printers (
		mac                  TEXT PRIMARY KEY,
		label                TEXT NOT NULL,
		use_push             %s NOT NULL DEFAULT %s,
		is_default           %s NOT NULL DEFAULT %s,
		status               TEXT NOT NULL DEFAULT '',
		printing_in_progress %s NOT NULL DEFAULT %s,
		last_seen            %s NOT NULL DEFAULT %s
	);`,
		r.dialect.BoolType(), falseLiteral(r.dialect),
		r.dialect.BoolType(), falseLiteral(r.dialect),
		r.dialect.BoolType(), falseLiteral(r.dialect),
		r.dialect.TimestampType(), r.dialect.CurrentTimestamp(),
	)
	_, err := r.db.Exec(schema)
	return err
}

func falseLiteral(d queue.Dialect) string {
	if d.Name() == "postgres" {
		return "FALSE"
	}
	return "0"
}

// ListPrinters returns every adopted printer, label ascending.
func (r *Registry) ListPrinters(ctx context.Context) ([]Printer, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT mac, label, use_push, is_default, status, printing_in_progress, last_seen FROM printers ORDER BY label ASC`)
	if err != nil {
		return nil, fmt.Errorf("registry: list: %w", err)
	}
	defer rows.Close()

	var out []Printer
	for rows.Next() {
		var p Printer
		if err := rows.Scan(&p.MAC, &p.Label, &p.UsePush, &p.IsDefault, &p.Status, &p.PrintingInProgress, &p.LastSeen); err != nil {
			return nil, fmt.Errorf("registry: list: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// ResolveLabel returns the MAC registered under label.
func (r *Registry) ResolveLabel(ctx context.Context, label string) (string, error) {
	var mac string
	err := r.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT mac FROM printers WHERE label = %s`, r.dialect.Placeholder(1)), label).Scan(&mac)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("registry: resolve label: %w", err)
	}
	return mac, nil
}

// UsePush reports whether mac's registry entry has push notifications
// enabled. An unregistered MAC reports false with no error — push is an
// enhancement, not a requirement for enqueueing.
func (r *Registry) UsePush(ctx context.Context, mac string) (bool, error) {
	var usePush bool
	err := r.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT use_push FROM printers WHERE mac = %s`, r.dialect.Placeholder(1)), mac).Scan(&usePush)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("registry: use push: %w", err)
	}
	return usePush, nil
}

// IsAdopted reports whether mac is present in the registry.
func (r *Registry) IsAdopted(ctx context.Context, mac string) (bool, error) {
	var n int
	err := r.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM printers WHERE mac = %s`, r.dialect.Placeholder(1)), mac).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("registry: is adopted: %w", err)
	}
	return n > 0, nil
}

// DefaultPrinter returns the label of the registry's default printer, if
// one has been set.
func (r *Registry) DefaultPrinter(ctx context.Context) (string, bool, error) {
	var label string
	err := r.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT label FROM printers WHERE is_default = %s LIMIT 1`, trueLiteral(r.dialect))).Scan(&label)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("registry: default printer: %w", err)
	}
	return label, true, nil
}

func trueLiteral(d queue.Dialect) string {
	if d.Name() == "postgres" {
		return "TRUE"
	}
	return "1"
}

// AdoptPrinter moves mac from "merely polling" to "registered", grounded
// on printer_discovery.py's add_discovered_printer flow: a human assigns
// a label to a MAC that has been observed polling.
func (r *Registry) AdoptPrinter(ctx context.Context, mac, label string) error {
	upsert := fmt.Sprintf(
		`INSERT INTO printers (mac, label) VALUES (%s, %s)
		 %s label = %s`,
		r.dialect.Placeholder(1), r.dialect.Placeholder(2),
		r.dialect.UpsertConflict([]string{"mac"}), r.dialect.Placeholder(3),
	)
	_, err := r.db.ExecContext(ctx, upsert, mac, label, label)
	if err != nil {
		return fmt.Errorf("registry: adopt %s: %w", mac, err)
	}
	return nil
}

// SetUsePush toggles whether mac's registry entry should receive push
// notifications.
func (r *Registry) SetUsePush(ctx context.Context, mac string, usePush bool) error {
	_, err := r.db.ExecContext(ctx,
		fmt.Sprintf(`UPDATE printers SET use_push = %s WHERE mac = %s`, r.dialect.Placeholder(1), r.dialect.Placeholder(2)),
		usePush, mac,
	)
	if err != nil {
		return fmt.Errorf("registry: set use push: %w", err)
	}
	return nil
}

// SetDefault marks mac as the registry's default printer, clearing any
// prior default.
func (r *Registry) SetDefault(ctx context.Context, mac string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("registry: set default: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, fmt.Sprintf(`UPDATE printers SET is_default = %s`, falseLiteral(r.dialect))); err != nil {
		return fmt.Errorf("registry: set default: %w", err)
	}
	res, err := tx.ExecContext(ctx,
		fmt.Sprintf(`UPDATE printers SET is_default = %s WHERE mac = %s`, trueLiteral(r.dialect), r.dialect.Placeholder(1)),
		mac,
	)
	if err != nil {
		return fmt.Errorf("registry: set default: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return tx.Commit()
}

// UpdateStatus records a printer's latest observed status string
// (e.g. the poll's statusCode), whether it's mid-print, and refreshes
// last_seen. Grounded on the standalone server's registry touch on every
// poll.
func (r *Registry) UpdateStatus(ctx context.Context, mac, status string, printingInProgress bool) error {
	_, err := r.db.ExecContext(ctx,
		fmt.Sprintf(`UPDATE printers SET status = %s, printing_in_progress = %s, last_seen = %s WHERE mac = %s`,
			r.dialect.Placeholder(1), r.dialect.Placeholder(2), r.dialect.CurrentTimestamp(), r.dialect.Placeholder(3)),
		status, printingInProgress, mac,
	)
	if err != nil {
		return fmt.Errorf("registry: update status: %w", err)
	}
	return nil
}

// Settings returns the full read-only snapshot spec.md §4.H documents.
func (r *Registry) Settings(ctx context.Context) (Settings, error) {
	printers, err := r.ListPrinters(ctx)
	if err != nil {
		return Settings{}, err
	}
	defaultLabel, _, err := r.DefaultPrinter(ctx)
	if err != nil {
		return Settings{}, err
	}
	return Settings{
		HeaderLogoURL:     r.headerLogoURL,
		FooterLogoURL:     r.footerLogoURL,
		DefaultPrinter:    defaultLabel,
		DefaultPaperWidth: r.defaultPaperWidth,
		Printers:          printers,
	}, nil
}
