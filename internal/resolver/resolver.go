// Package resolver is the client side of the external invoice-resolver
// collaborator named in spec.md §6.4: given an invoice id, it returns the
// markup text to compile. The resolver itself (the POS backend's own
// invoice-to-receipt rendering) is out of scope for this repository; this
// package only defines and calls the contract.
package resolver

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// Timeout bounds a single resolve call, per spec.md §5's 30s invoice
// resolver timeout.
const Timeout = 30 * time.Second

// Resolver resolves an invoice id to markup text.
type Resolver interface {
	Resolve(ctx context.Context, invoiceID string) (string, error)
}

// HTTPResolver is a Resolver backed by a single GET against a configured
// base URL, the shape spec.md's "external resolver" collaborator takes in
// the original source (a POS backend HTTP endpoint).
type HTTPResolver struct {
	BaseURL string
	Client  *http.Client
}

// NewHTTPResolver returns an HTTPResolver with a client bounded by Timeout.
func NewHTTPResolver(baseURL string) *HTTPResolver {
	return &HTTPResolver{
		BaseURL: baseURL,
		Client:  &http.Client{Timeout: Timeout},
	}
}

// Resolve fetches "<BaseURL>/<invoiceID>" and returns its body as markup
// text.
func (r *HTTPResolver) Resolve(ctx context.Context, invoiceID string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, Timeout)
	defer cancel()

	u, err := url.JoinPath(r.BaseURL, invoiceID)
	if err != nil {
		return "", fmt.Errorf("resolver: build url: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return "", fmt.Errorf("resolver: build request: %w", err)
	}

	resp, err := r.Client.Do(req)
	if err != nil {
		return "", fmt.Errorf("resolver: resolve %s: %w", invoiceID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("resolver: resolve %s: unexpected status %d", invoiceID, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("resolver: read body for %s: %w", invoiceID, err)
	}
	return string(body), nil
}
