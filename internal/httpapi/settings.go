package httpapi

import (
	"net/http"
)

// SettingsAPI serves the read-only collaborator views spec.md §4.H and
// §4.E document: the printer registry snapshot and the discovery list, the
// latter diffed against the registry so only genuinely unadopted MACs show
// up (internal/discovery itself doesn't know about the registry — see its
// package doc).
type SettingsAPI struct {
	deps Deps
}

// NewSettingsAPI creates the settings/discovery handler group over deps.
func NewSettingsAPI(deps Deps) *SettingsAPI {
	return &SettingsAPI{deps: deps}
}

// RegisterRoutes registers every route this handler group serves.
func (api *SettingsAPI) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/settings", api.HandleSettings)
	mux.HandleFunc("/api/discovery", api.HandleDiscovery)
	if api.deps.DiscoveryFeed != nil {
		mux.Handle("/api/discovery/feed", api.deps.DiscoveryFeed)
	}
}

// HandleSettings handles GET /api/settings — spec.md §4.H's snapshot:
// `{header_logo_url, footer_logo_url, default_printer, default_paper_width,
// printers:[{label, mac, use_push}]}`.
func (api *SettingsAPI) HandleSettings(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if api.deps.Registry == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Message: "registry not configured"})
		return
	}

	settings, err := api.deps.Registry.Settings(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Message: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

type discoveryEntry struct {
	MAC           string `json:"mac"`
	LastIP        string `json:"last_ip"`
	ClientType    string `json:"client_type"`
	ClientVersion string `json:"client_version"`
	StatusCode    string `json:"status_code"`
	PollCount     int    `json:"poll_count"`
}

// HandleDiscovery handles GET /api/discovery — spec.md §4.E's
// `list_unadopted()`, filtered against the printer registry so an
// already-adopted MAC that is still polling doesn't show up twice.
func (api *SettingsAPI) HandleDiscovery(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if api.deps.Discovery == nil {
		writeJSON(w, http.StatusOK, []discoveryEntry{})
		return
	}

	records, err := api.deps.Discovery.ListUnadopted(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Message: err.Error()})
		return
	}

	out := make([]discoveryEntry, 0, len(records))
	for _, rec := range records {
		if api.deps.Registry != nil {
			adopted, err := api.deps.Registry.IsAdopted(r.Context(), rec.MAC)
			if err == nil && adopted {
				continue
			}
		}
		out = append(out, discoveryEntry{
			MAC:           rec.MAC,
			LastIP:        rec.LastIP,
			ClientType:    rec.ClientType,
			ClientVersion: rec.ClientVersion,
			StatusCode:    rec.StatusCode,
			PollCount:     rec.PollCount,
		})
	}
	writeJSON(w, http.StatusOK, out)
}
