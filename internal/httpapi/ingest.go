package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/bvisible/CloudPRNT/internal/queue"
)

var errNoDefaultPrinter = errors.New("httpapi: no printer given and no default printer configured")

// IngestAPI is the producer-facing job ingestion surface: spec.md §4.G's
// generic enqueue plus the three named producer operations from §6.3
// (enqueue_invoice, enqueue_image, enqueue_test).
type IngestAPI struct {
	deps Deps
}

// NewIngestAPI creates the job ingestion handler group over deps.
func NewIngestAPI(deps Deps) *IngestAPI {
	return &IngestAPI{deps: deps}
}

// RegisterRoutes registers every route this handler group serves.
func (api *IngestAPI) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/jobs", api.HandleEnqueue)
	mux.HandleFunc("/api/jobs/invoice", api.HandleEnqueueInvoice)
	mux.HandleFunc("/api/jobs/image", api.HandleEnqueueImage)
	mux.HandleFunc("/api/jobs/test", api.HandleEnqueueTest)
}

type enqueueRequest struct {
	Token      string   `json:"token"`
	Printer    string   `json:"printer"` // a MAC literal or a registry label
	Kind       string   `json:"kind"`    // "markup" | "invoice_ref" | "hex"
	Payload    string   `json:"payload"`
	MediaTypes []string `json:"media_types"`
}

type enqueueResponse struct {
	OK       bool   `json:"ok"`
	Position int    `json:"position,omitempty"`
	Error    string `json:"error,omitempty"`
}

func parsePayloadKind(s string) (queue.PayloadKind, bool) {
	switch s {
	case "", "markup":
		return queue.PayloadMarkup, true
	case "invoice_ref":
		return queue.PayloadInvoiceRef, true
	case "hex":
		return queue.PayloadHex, true
	default:
		return 0, false
	}
}

// HandleEnqueue handles the generic producer API: spec.md §4.G's
// `enqueue(token, mac_or_label, payload, media_types?)`.
func (api *IngestAPI) HandleEnqueue(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req enqueueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, enqueueResponse{Error: "malformed request body"})
		return
	}

	kind, ok := parsePayloadKind(req.Kind)
	if !ok {
		writeJSON(w, http.StatusBadRequest, enqueueResponse{Error: "unknown payload kind: " + req.Kind})
		return
	}

	result, err := api.deps.Broker.Enqueue(r.Context(), req.Token, req.Printer, kind, req.Payload, req.MediaTypes)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, enqueueResponse{Error: err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, enqueueResponse{OK: result.OK, Position: result.Position})
}

type enqueueInvoiceRequest struct {
	InvoiceID string `json:"invoice_id"`
	Printer   string `json:"printer"`
}

// HandleEnqueueInvoice handles spec.md §6.3's
// `enqueue_invoice(invoice_id, printer?)` — adds an InvoiceRef job,
// resolved to markup lazily at fetch time (internal/resolver). If printer
// is empty, the registry's default printer is used.
func (api *IngestAPI) HandleEnqueueInvoice(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req enqueueInvoiceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, enqueueResponse{Error: "malformed request body"})
		return
	}

	printer, err := api.resolvePrinterOrDefault(r, req.Printer)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, enqueueResponse{Error: err.Error()})
		return
	}

	result, err := api.deps.Broker.Enqueue(r.Context(), "", printer, queue.PayloadInvoiceRef, req.InvoiceID, nil)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, enqueueResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, enqueueResponse{OK: result.OK, Position: result.Position})
}

type enqueueImageRequest struct {
	ImageHex   string `json:"image_hex"` // pre-rasterized bytes, hex-encoded
	PrinterMAC string `json:"printer_mac"`
}

// HandleEnqueueImage handles spec.md §6.3's
// `enqueue_image(image_path, printer_mac, opts)` — adds a Hex job. The
// image is expected pre-rasterized by the caller (e.g. via a prior call
// into internal/rasterize); this endpoint only stores and queues the
// resulting bytes.
func (api *IngestAPI) HandleEnqueueImage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req enqueueImageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, enqueueResponse{Error: "malformed request body"})
		return
	}

	result, err := api.deps.Broker.Enqueue(r.Context(), "", req.PrinterMAC, queue.PayloadHex, req.ImageHex,
		[]string{"application/vnd.star.starprnt"})
	if err != nil {
		writeJSON(w, http.StatusBadRequest, enqueueResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, enqueueResponse{OK: result.OK, Position: result.Position})
}

type enqueueTestRequest struct {
	Printer  string `json:"printer"`
	Text     string `json:"text"`
	ImageURL string `json:"image_url,omitempty"`
}

// HandleEnqueueTest handles spec.md §6.3's
// `enqueue_test(printer, text, image_url?)` — queues a markup job built
// from text, and (if image_url is given) a second job embedding an
// [image:] tag, for operator verification that a newly adopted printer is
// reachable and rendering correctly.
func (api *IngestAPI) HandleEnqueueTest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req enqueueTestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, enqueueResponse{Error: "malformed request body"})
		return
	}

	markup := req.Text + "[feed][cut]"
	result, err := api.deps.Broker.Enqueue(r.Context(), "", req.Printer, queue.PayloadMarkup, markup, nil)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, enqueueResponse{Error: err.Error()})
		return
	}

	if req.ImageURL != "" {
		imgMarkup := "[image: url " + req.ImageURL + "][feed][cut]"
		if _, err := api.deps.Broker.Enqueue(r.Context(), "", req.Printer, queue.PayloadMarkup, imgMarkup, nil); err != nil {
			if api.deps.Log != nil {
				api.deps.Log.Warn("enqueue_test: image job failed", "printer", req.Printer, "error", err)
			}
		}
	}

	writeJSON(w, http.StatusOK, enqueueResponse{OK: result.OK, Position: result.Position})
}

func (api *IngestAPI) resolvePrinterOrDefault(r *http.Request, printer string) (string, error) {
	if printer != "" {
		return printer, nil
	}
	if api.deps.Registry == nil {
		return "", errNoDefaultPrinter
	}
	label, ok, err := api.deps.Registry.DefaultPrinter(r.Context())
	if err != nil {
		return "", err
	}
	if !ok {
		return "", errNoDefaultPrinter
	}
	return label, nil
}
