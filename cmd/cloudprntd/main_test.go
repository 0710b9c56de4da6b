package main

import (
	"testing"

	"github.com/bvisible/CloudPRNT/internal/config"
	"github.com/bvisible/CloudPRNT/internal/markup"
)

func TestOpenStoreDefaultsToSQLite(t *testing.T) {
	t.Parallel()
	cfg := config.DatabaseConfig{Driver: "sqlite", Path: ":memory:"}
	store, db, dialect, err := openStore(&cfg, nil)
	if err != nil {
		t.Fatalf("openStore: %v", err)
	}
	defer store.Close()

	if db == nil {
		t.Fatal("expected non-nil *sql.DB")
	}
	if dialect.Name() != "sqlite" {
		t.Fatalf("dialect = %q, want sqlite", dialect.Name())
	}
}

func TestParseCodePageDefaultsToCP1252(t *testing.T) {
	t.Parallel()
	cases := []string{"", "cp1252", "CP1252", "windows-1252", "bogus"}
	for _, c := range cases {
		if got := parseCodePage(c); got != markup.CodePageCP1252 {
			t.Errorf("parseCodePage(%q) = %v, want CodePageCP1252", c, got)
		}
	}
}

func TestFormatKeyValues(t *testing.T) {
	t.Parallel()
	got := formatKeyValues("mac", "00:11:22:33:44:55", "token", "T1")
	want := " mac=00:11:22:33:44:55 token=T1"
	if got != want {
		t.Errorf("formatKeyValues() = %q, want %q", got, want)
	}
}
