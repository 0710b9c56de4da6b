package httpapi

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/bvisible/CloudPRNT/internal/broker"
	"github.com/bvisible/CloudPRNT/internal/macaddr"
	"github.com/bvisible/CloudPRNT/internal/queue"
)

// warnRateLimitWindow bounds how often the same side-effect warning (a
// discovery-track or registry-status-update failure) is logged, so a
// persistently failing database doesn't flood the log on every poll.
const warnRateLimitWindow = time.Minute

// ProtocolAPI implements spec.md §4.F: the CloudPRNT poll/fetch/confirm
// handshake. Both the root dispatcher (`/`) and the prefix-routed paths
// (`/poll`, `/job`) register here, since printers use either depending on
// firmware configuration.
type ProtocolAPI struct {
	deps Deps
}

// NewProtocolAPI creates the CloudPRNT protocol handler group over deps.
func NewProtocolAPI(deps Deps) *ProtocolAPI {
	return &ProtocolAPI{deps: deps}
}

// RegisterRoutes registers every route this handler group serves.
func (api *ProtocolAPI) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/", api.HandleRoot)
	mux.HandleFunc("/poll", api.HandlePoll)
	mux.HandleFunc("/job", api.HandleJob)
}

// HandleRoot dispatches on HTTP verb alone, per spec.md's unified-path
// requirement: POST → Poll, GET → Fetch, DELETE → Confirm.
func (api *ProtocolAPI) HandleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	switch r.Method {
	case http.MethodPost:
		api.HandlePoll(w, r)
	case http.MethodGet:
		api.HandleFetch(w, r)
	case http.MethodDelete:
		api.HandleConfirm(w, r)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// HandleJob is the prefix-routed fetch/confirm path: GET → Fetch,
// DELETE → Confirm.
func (api *ProtocolAPI) HandleJob(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		api.HandleFetch(w, r)
	case http.MethodDelete:
		api.HandleConfirm(w, r)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

type pollRequest struct {
	PrinterMAC         string `json:"printerMAC"`
	StatusCode         string `json:"statusCode"`
	ClientType         string `json:"clientType"`
	ClientVersion      string `json:"clientVersion"`
	PrintingInProgress bool   `json:"printingInProgress"`
}

type pollResponse struct {
	JobReady   bool     `json:"jobReady"`
	MediaTypes []string `json:"mediaTypes"`
	JobToken   string   `json:"jobToken,omitempty"`
}

// HandlePoll handles POST — spec.md §4.F "POST — Poll". A missing or
// malformed body is tolerated and treated as empty; this still returns
// 200 with jobReady:false since an unparsable printerMAC normalizes to
// nothing.
func (api *ProtocolAPI) HandlePoll(w http.ResponseWriter, r *http.Request) {
	var req pollRequest
	_ = json.NewDecoder(r.Body).Decode(&req) // malformed body tolerated, treated as empty

	mac, err := macaddr.Normalize(req.PrinterMAC)
	if err != nil {
		writeJSON(w, http.StatusOK, pollResponse{JobReady: false})
		return
	}

	api.trackDiscovery(r, mac, req.ClientType, req.ClientVersion, req.StatusCode)
	api.touchRegistry(r, mac, req.StatusCode, req.PrintingInProgress)

	result, err := api.deps.Broker.Poll(r.Context(), mac)
	if err != nil {
		if api.deps.Log != nil {
			api.deps.Log.Warn("poll: store unavailable", "mac", mac, "error", err)
		}
		writeJSON(w, http.StatusOK, pollResponse{JobReady: false})
		return
	}

	writeJSON(w, http.StatusOK, pollResponse{
		JobReady:   result.JobReady,
		MediaTypes: result.MediaTypes,
		JobToken:   result.JobToken,
	})
}

func (api *ProtocolAPI) trackDiscovery(r *http.Request, mac, clientType, clientVersion, statusCode string) {
	if api.deps.Discovery == nil {
		return
	}
	ip := clientIP(r)
	if err := api.deps.Discovery.Track(r.Context(), mac, ip, clientType, clientVersion, statusCode); err != nil && api.deps.Log != nil {
		api.deps.Log.WarnRateLimited("discovery-track-error", warnRateLimitWindow, "discovery track failed", "mac", mac, "error", err)
	}
}

func (api *ProtocolAPI) touchRegistry(r *http.Request, mac, statusCode string, printingInProgress bool) {
	if api.deps.Registry == nil {
		return
	}
	adopted, err := api.deps.Registry.IsAdopted(r.Context(), mac)
	if err != nil || !adopted {
		return
	}
	if err := api.deps.Registry.UpdateStatus(r.Context(), mac, statusCode, printingInProgress); err != nil && api.deps.Log != nil {
		api.deps.Log.WarnRateLimited("registry-update-status-error", warnRateLimitWindow, "registry status update failed", "mac", mac, "error", err)
	}
}

// clientIP strips the port from r.RemoteAddr, falling back to the raw
// value if it isn't in host:port form (e.g. a unix socket or test stub).
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// HandleFetch handles GET — spec.md §4.F "GET — Fetch".
func (api *ProtocolAPI) HandleFetch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	mac, err := macaddr.Normalize(q.Get("mac"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Message: "invalid mac"})
		return
	}

	result, err := api.deps.Broker.Fetch(r.Context(), mac, q.Get("type"))
	if err != nil {
		switch {
		case errors.Is(err, queue.ErrJobNotFound):
			w.WriteHeader(http.StatusNotFound)
		case errors.Is(err, broker.ErrUnsupportedMedia):
			w.WriteHeader(http.StatusUnsupportedMediaType)
		default:
			if api.deps.Log != nil {
				api.deps.Log.Error("fetch: render failed", "mac", mac, "error", err)
			}
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte(err.Error()))
		}
		return
	}

	w.Header().Set("Content-Type", result.ContentType)
	w.WriteHeader(http.StatusOK)
	w.Write(result.Body)
}

type errorResponse struct {
	Message string `json:"message"`
}

// HandleConfirm handles DELETE — spec.md §4.F "DELETE — Confirm".
func (api *ProtocolAPI) HandleConfirm(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	mac, err := macaddr.Normalize(q.Get("mac"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Message: "invalid mac"})
		return
	}

	err = api.deps.Broker.Confirm(r.Context(), mac, q.Get("token"))
	if err != nil {
		if errors.Is(err, queue.ErrJobNotFound) {
			writeJSON(w, http.StatusNotFound, errorResponse{Message: "No job to delete"})
			return
		}
		if api.deps.Log != nil {
			api.deps.Log.Error("confirm: delete failed", "mac", mac, "error", err)
		}
		writeJSON(w, http.StatusInternalServerError, errorResponse{Message: err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, okResponse)
}

var okResponse = errorResponse{Message: "ok"}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
