// Package broker is the explicit handle spec.md §9 calls for in place of
// module-level mutable globals: it wires the queue store, the printer
// registry, the markup compiler, the image adapter, the invoice resolver,
// and the optional push bridge together behind job ingestion (spec.md
// §4.G) and fetch payload production (spec.md §4.F's Fetch dispatch).
// internal/httpapi holds one Broker per process; test harnesses construct
// and drop a fresh one per test.
package broker

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/bvisible/CloudPRNT/internal/logger"
	"github.com/bvisible/CloudPRNT/internal/macaddr"
	"github.com/bvisible/CloudPRNT/internal/markup"
	"github.com/bvisible/CloudPRNT/internal/pushbridge"
	"github.com/bvisible/CloudPRNT/internal/queue"
	"github.com/bvisible/CloudPRNT/internal/registry"
	"github.com/bvisible/CloudPRNT/internal/resolver"
)

// ErrUnsupportedMedia is returned by Fetch when the caller requested a
// media type the job's payload kind cannot produce.
var ErrUnsupportedMedia = errors.New("broker: unsupported media type")

const (
	mediaStarLine    = "application/vnd.star.line"
	mediaMarkupText  = "text/vnd.star.markup"
	mediaStarPRNT    = "application/vnd.star.starprnt"
)

// Config carries the broker's render/ingestion settings, sourced from
// internal/config (spec.md §6.5).
type Config struct {
	CodePage          markup.CodePage
	ColumnWidth       int
	PaperWidthMM      int
	DefaultMediaTypes []string
	PublicBaseURL     string // used to build the URL a push notification carries
}

// Broker is the explicit handle over every collaborator job ingestion and
// fetch need.
type Broker struct {
	Store    queue.Store
	Registry *registry.Registry
	Push     *pushbridge.Bridge // nil disables push notifications
	Resolver resolver.Resolver  // nil disables InvoiceRef jobs
	Images   markup.ImageRasterizer

	cfg Config
	log *logger.Logger
}

// New constructs a Broker. Push, Resolver, and Images may be nil; each
// degrades to "feature unavailable" rather than erroring.
func New(store queue.Store, reg *registry.Registry, push *pushbridge.Bridge, res resolver.Resolver, images markup.ImageRasterizer, cfg Config, log *logger.Logger) *Broker {
	if len(cfg.DefaultMediaTypes) == 0 {
		cfg.DefaultMediaTypes = []string{mediaStarLine, mediaMarkupText}
	}
	if cfg.PaperWidthMM <= 0 {
		cfg.PaperWidthMM = 80
	}
	return &Broker{Store: store, Registry: reg, Push: push, Resolver: res, Images: images, cfg: cfg, log: log}
}

// EnqueueResult mirrors spec.md §4.G's `{ok, position}` producer response.
type EnqueueResult struct {
	OK       bool
	Position int
}

// Enqueue resolves macOrLabel, normalizes it, defaults the token if the
// caller omitted one, and appends the job. On success it makes a
// best-effort push notification if the printer's registry entry wants one;
// push failures never surface here.
func (b *Broker) Enqueue(ctx context.Context, token, macOrLabel string, kind queue.PayloadKind, payload string, mediaTypes []string) (EnqueueResult, error) {
	mac, err := b.resolveTarget(ctx, macOrLabel)
	if err != nil {
		return EnqueueResult{}, err
	}

	if token == "" {
		token = uuid.NewString()
	}

	job := queue.JobRecord{
		Token:      token,
		PrinterMAC: mac,
		Kind:       kind,
		Payload:    payload,
		MediaTypes: mediaTypes,
	}
	if err := b.Store.Append(ctx, job); err != nil {
		return EnqueueResult{}, err
	}

	position, err := b.Store.Position(ctx, mac, token)
	if err != nil {
		return EnqueueResult{}, err
	}

	b.notifyPush(ctx, mac, token)

	return EnqueueResult{OK: true, Position: position}, nil
}

func (b *Broker) resolveTarget(ctx context.Context, macOrLabel string) (string, error) {
	if mac, err := macaddr.Normalize(macOrLabel); err == nil {
		return mac, nil
	}
	if b.Registry == nil {
		return "", fmt.Errorf("broker: %q is not a MAC and no registry is configured: %w", macOrLabel, macaddr.ErrInvalid)
	}
	mac, err := b.Registry.ResolveLabel(ctx, macOrLabel)
	if err != nil {
		return "", err
	}
	return macaddr.Normalize(mac)
}

func (b *Broker) notifyPush(ctx context.Context, mac, token string) {
	if b.Push == nil || b.Registry == nil {
		return
	}
	usePush, err := b.Registry.UsePush(ctx, mac)
	if err != nil || !usePush {
		return
	}
	jobURL := fmt.Sprintf("%s/job?mac=%s&token=%s", b.cfg.PublicBaseURL, macaddr.ToDotForm(mac), token)
	b.Push.Publish(ctx, mac, token, jobURL)
}

// PollResult mirrors spec.md §6.1's poll response.
type PollResult struct {
	JobReady   bool
	MediaTypes []string
	JobToken   string
}

// Poll reports whether mac has a queued job, without mutating anything.
func (b *Broker) Poll(ctx context.Context, mac string) (PollResult, error) {
	job, ok, err := b.Store.Peek(ctx, mac)
	if err != nil {
		return PollResult{}, err
	}
	if !ok {
		return PollResult{JobReady: false, MediaTypes: b.cfg.DefaultMediaTypes}, nil
	}
	mediaTypes := job.MediaTypes
	if len(mediaTypes) == 0 {
		mediaTypes = b.cfg.DefaultMediaTypes
	}
	return PollResult{JobReady: true, MediaTypes: mediaTypes, JobToken: job.Token}, nil
}

// FetchResult is the rendered job body and the content type it was
// rendered as.
type FetchResult struct {
	Body        []byte
	ContentType string
}

// Fetch renders mac's queued job for requestedMediaType (empty string
// means "the job's own preferred type"). It marks the job fetched but
// does not delete it — deletion is Confirm's job alone.
func (b *Broker) Fetch(ctx context.Context, mac, requestedMediaType string) (FetchResult, error) {
	job, ok, err := b.Store.Peek(ctx, mac)
	if err != nil {
		return FetchResult{}, err
	}
	if !ok {
		return FetchResult{}, queue.ErrJobNotFound
	}

	if err := b.Store.MarkFetched(ctx, job.Token); err != nil && b.log != nil {
		b.log.Warn("fetch: mark fetched failed (best effort)", "mac", mac, "token", job.Token, "error", err)
	}

	effectiveType := b.effectiveMediaType(job, requestedMediaType)

	if requestedMediaType == mediaMarkupText && job.Kind == queue.PayloadHex {
		return FetchResult{}, fmt.Errorf("broker: hex job cannot produce %s: %w", mediaMarkupText, ErrUnsupportedMedia)
	}
	// A job that holds markup always honours a request for the markup text
	// itself, whatever media types it declared.
	if requestedMediaType == mediaMarkupText {
		effectiveType = mediaMarkupText
	}

	switch job.Kind {
	case queue.PayloadHex:
		return b.fetchHex(job, effectiveType)
	case queue.PayloadMarkup:
		return b.fetchMarkup(ctx, job.Payload, effectiveType)
	case queue.PayloadInvoiceRef:
		return b.fetchInvoiceRef(ctx, job.Payload, effectiveType)
	default:
		return FetchResult{}, fmt.Errorf("broker: unknown payload kind %v", job.Kind)
	}
}

// effectiveMediaType picks the client's requested type if the job offers
// it, otherwise the job's first declared media type, per spec.md §4.F
// step 4. It returns "" — "no preference" — when the job declared no
// media types at all, leaving the per-kind producer to pick its own
// default rather than borrowing the broker's generic poll-time defaults.
func (b *Broker) effectiveMediaType(job queue.JobRecord, requested string) string {
	if len(job.MediaTypes) == 0 {
		return ""
	}
	if requested != "" {
		for _, mt := range job.MediaTypes {
			if mt == requested {
				return requested
			}
		}
	}
	return job.MediaTypes[0]
}

func (b *Broker) fetchHex(job queue.JobRecord, effectiveType string) (FetchResult, error) {
	data, err := hex.DecodeString(job.Payload)
	if err != nil {
		return FetchResult{}, fmt.Errorf("broker: decode hex payload: %w", err)
	}
	contentType := effectiveType
	if contentType == "" {
		contentType = mediaStarPRNT
	}
	return FetchResult{Body: data, ContentType: contentType}, nil
}

func (b *Broker) fetchMarkup(ctx context.Context, markupText, requestedMediaType string) (FetchResult, error) {
	if requestedMediaType == mediaMarkupText {
		return FetchResult{Body: []byte(markupText), ContentType: mediaMarkupText}, nil
	}
	compiled, err := markup.Compile(ctx, markupText, markup.Options{
		CodePage:     b.cfg.CodePage,
		ColumnWidth:  b.cfg.ColumnWidth,
		PaperWidthMM: b.cfg.PaperWidthMM,
		Images:       b.Images,
	})
	if err != nil {
		return FetchResult{}, fmt.Errorf("broker: compile markup: %w", err)
	}
	return FetchResult{Body: compiled, ContentType: mediaStarLine}, nil
}

func (b *Broker) fetchInvoiceRef(ctx context.Context, invoiceID, requestedMediaType string) (FetchResult, error) {
	if b.Resolver == nil {
		return FetchResult{}, fmt.Errorf("broker: no invoice resolver configured")
	}
	markupText, err := b.Resolver.Resolve(ctx, invoiceID)
	if err != nil {
		return FetchResult{}, fmt.Errorf("broker: resolve invoice %s: %w", invoiceID, err)
	}
	return b.fetchMarkup(ctx, markupText, requestedMediaType)
}

// Confirm deletes the job identified by token (if given) or, if token is
// empty, the printer's current head-of-queue job. Per spec.md's settled
// Open Question, resolution is always by token once one is known — the
// empty-token case only exists to let a caller confirm "whatever mac's
// current job is" without having first polled for its token.
func (b *Broker) Confirm(ctx context.Context, mac, token string) error {
	if token == "" {
		job, ok, err := b.Store.Peek(ctx, mac)
		if err != nil {
			return err
		}
		if !ok {
			return queue.ErrJobNotFound
		}
		token = job.Token
	}
	return b.Store.Delete(ctx, token)
}
