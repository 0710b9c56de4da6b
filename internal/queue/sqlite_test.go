package queue

import (
	"context"
	"errors"
	"testing"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(":memory:", nil)
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestAppendDuplicateTokenFails(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newTestStore(t)

	job := JobRecord{Token: "T1", PrinterMAC: "AA:BB:CC:DD:EE:FF", Kind: PayloadMarkup, Payload: "hi"}
	if err := s.Append(ctx, job); err != nil {
		t.Fatalf("first append: %v", err)
	}
	if err := s.Append(ctx, job); !errors.Is(err, ErrDuplicateToken) {
		t.Fatalf("expected ErrDuplicateToken, got %v", err)
	}

	jobs, err := s.List(ctx, job.PrinterMAC)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(jobs) != 1 {
		t.Fatalf("duplicate append left partial state: %d jobs", len(jobs))
	}
}

func TestFIFOOrderAcrossThreeJobs(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newTestStore(t)
	mac := "AA:BB:CC:DD:EE:FF"

	for _, tok := range []string{"T1", "T2", "T3"} {
		if err := s.Append(ctx, JobRecord{Token: tok, PrinterMAC: mac, Kind: PayloadMarkup, Payload: "x"}); err != nil {
			t.Fatalf("append %s: %v", tok, err)
		}
	}

	for _, want := range []string{"T1", "T2", "T3"} {
		job, ok, err := s.Peek(ctx, mac)
		if err != nil || !ok {
			t.Fatalf("peek: ok=%v err=%v", ok, err)
		}
		if job.Token != want {
			t.Fatalf("peek returned %s, want %s", job.Token, want)
		}
		if err := s.MarkFetched(ctx, job.Token); err != nil {
			t.Fatalf("mark fetched: %v", err)
		}
		if err := s.Delete(ctx, job.Token); err != nil {
			t.Fatalf("delete %s: %v", job.Token, err)
		}
	}

	if _, ok, err := s.Peek(ctx, mac); err != nil || ok {
		t.Fatalf("expected empty queue, ok=%v err=%v", ok, err)
	}
}

func TestDeleteIsIdempotent(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newTestStore(t)
	mac := "AA:BB:CC:DD:EE:FF"

	if err := s.Append(ctx, JobRecord{Token: "T1", PrinterMAC: mac, Kind: PayloadMarkup, Payload: "x"}); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := s.Delete(ctx, "T1"); err != nil {
		t.Fatalf("first delete: %v", err)
	}
	if err := s.Delete(ctx, "T1"); !errors.Is(err, ErrJobNotFound) {
		t.Fatalf("second delete: expected ErrJobNotFound, got %v", err)
	}
}

func TestRefetchWithoutDeleteIsIdempotent(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newTestStore(t)
	mac := "AA:BB:CC:DD:EE:FF"

	if err := s.Append(ctx, JobRecord{Token: "T1", PrinterMAC: mac, Kind: PayloadMarkup, Payload: "x"}); err != nil {
		t.Fatalf("append: %v", err)
	}

	first, ok, err := s.Peek(ctx, mac)
	if err != nil || !ok {
		t.Fatalf("first peek: ok=%v err=%v", ok, err)
	}
	if err := s.MarkFetched(ctx, first.Token); err != nil {
		t.Fatalf("mark fetched: %v", err)
	}

	second, ok, err := s.Peek(ctx, mac)
	if err != nil || !ok {
		t.Fatalf("second peek: ok=%v err=%v", ok, err)
	}
	if second.Token != first.Token || second.Payload != first.Payload {
		t.Fatalf("refetch returned a different job: %+v vs %+v", first, second)
	}
}

func TestPositionAfterAppend(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newTestStore(t)
	mac := "AA:BB:CC:DD:EE:FF"

	for i, tok := range []string{"T1", "T2", "T3"} {
		if err := s.Append(ctx, JobRecord{Token: tok, PrinterMAC: mac, Kind: PayloadMarkup, Payload: "x"}); err != nil {
			t.Fatalf("append %s: %v", tok, err)
		}
		pos, err := s.Position(ctx, mac, tok)
		if err != nil {
			t.Fatalf("position %s: %v", tok, err)
		}
		if pos != i+1 {
			t.Fatalf("position(%s) = %d, want %d", tok, pos, i+1)
		}
	}
}

func TestCountAcrossAllPrinters(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newTestStore(t)

	if err := s.Append(ctx, JobRecord{Token: "T1", PrinterMAC: "AA:AA:AA:AA:AA:AA", Kind: PayloadMarkup, Payload: "x"}); err != nil {
		t.Fatalf("append mac1: %v", err)
	}
	if err := s.Append(ctx, JobRecord{Token: "T2", PrinterMAC: "BB:BB:BB:BB:BB:BB", Kind: PayloadMarkup, Payload: "y"}); err != nil {
		t.Fatalf("append mac2: %v", err)
	}

	n, err := s.Count(ctx)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 2 {
		t.Fatalf("count = %d, want 2", n)
	}
}

func TestQueuesAreIndependentPerMAC(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newTestStore(t)

	if err := s.Append(ctx, JobRecord{Token: "T1", PrinterMAC: "AA:AA:AA:AA:AA:AA", Kind: PayloadMarkup, Payload: "x"}); err != nil {
		t.Fatalf("append mac1: %v", err)
	}
	if err := s.Append(ctx, JobRecord{Token: "T2", PrinterMAC: "BB:BB:BB:BB:BB:BB", Kind: PayloadMarkup, Payload: "y"}); err != nil {
		t.Fatalf("append mac2: %v", err)
	}

	if _, ok, err := s.Peek(ctx, "AA:AA:AA:AA:AA:AA"); err != nil || !ok {
		t.Fatalf("peek mac1: ok=%v err=%v", ok, err)
	}
	jobs, err := s.List(ctx, "BB:BB:BB:BB:BB:BB")
	if err != nil || len(jobs) != 1 {
		t.Fatalf("mac2 queue should be untouched by mac1 activity: jobs=%v err=%v", jobs, err)
	}
}
