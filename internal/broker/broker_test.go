package broker

import (
	"context"
	"strings"
	"testing"

	"github.com/bvisible/CloudPRNT/internal/queue"
	"github.com/bvisible/CloudPRNT/internal/registry"
)

func newTestBroker(t *testing.T) (*Broker, *queue.SQLiteStore) {
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

	b := New(store, reg, nil, nil, nil, Config{}, nil)
	return b, store
}

func TestEnqueueWithMACLiteralThenPollThenFetchThenConfirm(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	b, _ := newTestBroker(t)

	res, err := b.Enqueue(ctx, "", "AA:BB:CC:DD:EE:FF", queue.PayloadMarkup, "[align: center]hello[feed]", nil)
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if !res.OK || res.Position != 1 {
		t.Fatalf("unexpected enqueue result: %+v", res)
	}

	poll, err := b.Poll(ctx, "AA:BB:CC:DD:EE:FF")
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if !poll.JobReady || poll.JobToken == "" {
		t.Fatalf("expected job ready with a token, got %+v", poll)
	}

	fetch, err := b.Fetch(ctx, "AA:BB:CC:DD:EE:FF", "")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if fetch.ContentType != mediaStarLine || len(fetch.Body) == 0 {
		t.Fatalf("unexpected fetch result: %+v", fetch)
	}

	if err := b.Confirm(ctx, "AA:BB:CC:DD:EE:FF", poll.JobToken); err != nil {
		t.Fatalf("Confirm: %v", err)
	}

	poll2, err := b.Poll(ctx, "AA:BB:CC:DD:EE:FF")
	if err != nil {
		t.Fatalf("second Poll: %v", err)
	}
	if poll2.JobReady {
		t.Fatalf("expected empty queue after confirm, got %+v", poll2)
	}
}

func TestEnqueueGeneratesTokenWhenOmitted(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	b, _ := newTestBroker(t)

	if _, err := b.Enqueue(ctx, "", "AA:BB:CC:DD:EE:FF", queue.PayloadMarkup, "hi", nil); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	poll, err := b.Poll(ctx, "AA:BB:CC:DD:EE:FF")
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if poll.JobToken == "" {
		t.Fatalf("expected a generated token, got empty string")
	}
}

func TestEnqueueResolvesLabelThroughRegistry(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	b, store := newTestBroker(t)

	reg, err := registry.New(store.DB(), store.Dialect(), registry.Config{}, nil)
	if err != nil {
		t.Fatalf("registry.New: %v", err)
	}
	if err := reg.AdoptPrinter(ctx, "AA:BB:CC:DD:EE:FF", "front-counter"); err != nil {
		t.Fatalf("AdoptPrinter: %v", err)
	}
	b.Registry = reg

	res, err := b.Enqueue(ctx, "", "front-counter", queue.PayloadMarkup, "hi", nil)
	if err != nil {
		t.Fatalf("Enqueue by label: %v", err)
	}
	if !res.OK {
		t.Fatalf("expected ok result, got %+v", res)
	}

	poll, err := b.Poll(ctx, "AA:BB:CC:DD:EE:FF")
	if err != nil || !poll.JobReady {
		t.Fatalf("expected job queued under resolved MAC: poll=%+v err=%v", poll, err)
	}
}

func TestEnqueueUnresolvableLabelFails(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	b, _ := newTestBroker(t)

	if _, err := b.Enqueue(ctx, "", "no-such-printer", queue.PayloadMarkup, "hi", nil); err == nil {
		t.Fatalf("expected error for unresolvable label")
	}
}

func TestFetchMarkupAsTextReturnsVerbatim(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	b, _ := newTestBroker(t)

	text := "[align: center]hello[feed]"
	if _, err := b.Enqueue(ctx, "T1", "AA:BB:CC:DD:EE:FF", queue.PayloadMarkup, text, nil); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	fetch, err := b.Fetch(ctx, "AA:BB:CC:DD:EE:FF", "text/vnd.star.markup")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if fetch.ContentType != "text/vnd.star.markup" || string(fetch.Body) != text {
		t.Fatalf("expected verbatim markup, got %+v", fetch)
	}
}

func TestFetchHexServesDecodedBytesVerbatim(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	b, _ := newTestBroker(t)

	if _, err := b.Enqueue(ctx, "T1", "AA:BB:CC:DD:EE:FF", queue.PayloadHex, "1b40", nil); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	fetch, err := b.Fetch(ctx, "AA:BB:CC:DD:EE:FF", "")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if fetch.ContentType != mediaStarPRNT {
		t.Fatalf("content type = %s, want %s", fetch.ContentType, mediaStarPRNT)
	}
	if len(fetch.Body) != 2 || fetch.Body[0] != 0x1b || fetch.Body[1] != 0x40 {
		t.Fatalf("unexpected decoded hex body: %x", fetch.Body)
	}
}

func TestFetchEmptyQueueReturnsJobNotFound(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	b, _ := newTestBroker(t)

	if _, err := b.Fetch(ctx, "AA:BB:CC:DD:EE:FF", ""); err == nil {
		t.Fatalf("expected error fetching from an empty queue")
	}
}

func TestRefetchWithoutConfirmReturnsSameJob(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	b, _ := newTestBroker(t)

	if _, err := b.Enqueue(ctx, "T1", "AA:BB:CC:DD:EE:FF", queue.PayloadMarkup, "hi[feed]", nil); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	first, err := b.Fetch(ctx, "AA:BB:CC:DD:EE:FF", "")
	if err != nil {
		t.Fatalf("first fetch: %v", err)
	}
	second, err := b.Fetch(ctx, "AA:BB:CC:DD:EE:FF", "")
	if err != nil {
		t.Fatalf("second fetch: %v", err)
	}
	if string(first.Body) != string(second.Body) {
		t.Fatalf("refetch produced different bytes")
	}
}

func TestConfirmWithEmptyTokenDeletesHeadOfQueue(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	b, _ := newTestBroker(t)

	if _, err := b.Enqueue(ctx, "T1", "AA:BB:CC:DD:EE:FF", queue.PayloadMarkup, "hi", nil); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	if err := b.Confirm(ctx, "AA:BB:CC:DD:EE:FF", ""); err != nil {
		t.Fatalf("Confirm with empty token: %v", err)
	}

	poll, err := b.Poll(ctx, "AA:BB:CC:DD:EE:FF")
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if poll.JobReady {
		t.Fatalf("expected queue empty after confirm, got %+v", poll)
	}
}

func TestPollEmptyQueueReturnsDefaultMediaTypes(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	b, _ := newTestBroker(t)

	poll, err := b.Poll(ctx, "AA:BB:CC:DD:EE:FF")
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if poll.JobReady {
		t.Fatalf("expected no job, got %+v", poll)
	}
	if len(poll.MediaTypes) == 0 {
		t.Fatalf("expected default media types on an empty queue")
	}
}

func TestFetchInvoiceRefWithoutResolverFails(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	b, _ := newTestBroker(t)

	if _, err := b.Enqueue(ctx, "T1", "AA:BB:CC:DD:EE:FF", queue.PayloadInvoiceRef, "INV-1", nil); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	_, err := b.Fetch(ctx, "AA:BB:CC:DD:EE:FF", "")
	if err == nil || !strings.Contains(err.Error(), "resolver") {
		t.Fatalf("expected a resolver-not-configured error, got %v", err)
	}
}
