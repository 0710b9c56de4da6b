package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bvisible/CloudPRNT/internal/discovery"
	"github.com/bvisible/CloudPRNT/internal/queue"
	"github.com/bvisible/CloudPRNT/internal/registry"
)

func newSettingsTestAPI(t *testing.T) (Deps, *SettingsAPI) {
	t.Helper()
	store, err := queue.NewSQLiteStore(":memory:", nil)
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	reg, err := registry.New(store.DB(), store.Dialect(), registry.Config{}, nil)
	if err != nil {
		t.Fatalf("registry.New: %v", err)
	}

	track, err := discovery.New(store.DB(), store.Dialect(), time.Hour, nil)
	if err != nil {
		t.Fatalf("discovery.New: %v", err)
	}

	deps := Deps{Store: store, Registry: reg, Discovery: track}
	return deps, NewSettingsAPI(deps)
}

func TestHandleSettingsReturnsRegistrySnapshot(t *testing.T) {
	t.Parallel()
	deps, api := newSettingsTestAPI(t)
	ctx := context.Background()

	if err := deps.Registry.AdoptPrinter(ctx, "AA:BB:CC:DD:EE:FF", "counter"); err != nil {
		t.Fatalf("AdoptPrinter: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/settings", nil)
	w := httptest.NewRecorder()
	api.HandleSettings(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var got registry.Settings
	if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got.Printers) != 1 || got.Printers[0].Label != "counter" {
		t.Fatalf("unexpected settings: %+v", got)
	}
}

func TestHandleSettingsWithoutRegistryReturns503(t *testing.T) {
	t.Parallel()
	api := NewSettingsAPI(Deps{})

	req := httptest.NewRequest(http.MethodGet, "/api/settings", nil)
	w := httptest.NewRecorder()
	api.HandleSettings(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", w.Code)
	}
}

func TestHandleDiscoveryExcludesAdoptedPrinters(t *testing.T) {
	t.Parallel()
	deps, api := newSettingsTestAPI(t)
	ctx := context.Background()

	if err := deps.Discovery.Track(ctx, "AA:BB:CC:DD:EE:FF", "10.0.0.5", "TSP100", "1.0", "200"); err != nil {
		t.Fatalf("Track (adopted): %v", err)
	}
	if err := deps.Discovery.Track(ctx, "11:22:33:44:55:66", "10.0.0.6", "TSP100", "1.0", "200"); err != nil {
		t.Fatalf("Track (unadopted): %v", err)
	}
	if err := deps.Registry.AdoptPrinter(ctx, "AA:BB:CC:DD:EE:FF", "counter"); err != nil {
		t.Fatalf("AdoptPrinter: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/discovery", nil)
	w := httptest.NewRecorder()
	api.HandleDiscovery(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var entries []discoveryEntry
	if err := json.NewDecoder(w.Body).Decode(&entries); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(entries) != 1 || entries[0].MAC != "11:22:33:44:55:66" {
		t.Fatalf("expected only the unadopted MAC, got %+v", entries)
	}
}

func TestHandleDiscoveryWithoutTrackerReturnsEmptyList(t *testing.T) {
	t.Parallel()
	api := NewSettingsAPI(Deps{})

	req := httptest.NewRequest(http.MethodGet, "/api/discovery", nil)
	w := httptest.NewRecorder()
	api.HandleDiscovery(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var entries []discoveryEntry
	if err := json.NewDecoder(w.Body).Decode(&entries); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected empty list, got %+v", entries)
	}
}
