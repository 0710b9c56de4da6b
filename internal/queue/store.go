package queue

import (
	"context"
	"errors"
)

// ErrDuplicateToken is returned by Append when a job with the same token
// already exists, anywhere (not just for the same printer) — tokens are
// globally unique.
var ErrDuplicateToken = errors.New("queue: duplicate token")

// ErrJobNotFound is returned by Delete when the token does not resolve to
// a queued job, and by Peek-derived lookups that need a job to exist.
var ErrJobNotFound = errors.New("queue: job not found")

// Store is the durable, shared, per-printer FIFO job queue. All
// implementations must give every worker process the same view: ordering
// and deletion are observed through the store, never through an
// in-process cache.
type Store interface {
	// Append adds job to the back of its printer's queue. It fails with
	// ErrDuplicateToken, leaving no partial state, if job.Token already
	// exists.
	Append(ctx context.Context, job JobRecord) error

	// Peek returns the oldest job for mac that still exists (fetched or
	// not — a job isn't gone until Delete removes it). The ok return is
	// false when the printer has no queued job.
	Peek(ctx context.Context, mac string) (JobRecord, bool, error)

	// MarkFetched records that a job's bytes have been served at least
	// once. It does not remove the job; only Delete does that. Calling
	// MarkFetched again for the same token is a no-op.
	MarkFetched(ctx context.Context, token string) error

	// Delete removes the job identified by token. It returns
	// ErrJobNotFound, with no side effect, if token doesn't resolve to a
	// job — including a second Delete of an already-deleted token.
	Delete(ctx context.Context, token string) error

	// Position returns the 1-based FIFO position of token within its
	// printer's queue: 1 means it is next to be served.
	Position(ctx context.Context, mac, token string) (int, error)

	// List returns every queued job for mac, oldest first, for diagnostics
	// and for computing Position.
	List(ctx context.Context, mac string) ([]JobRecord, error)

	// Clear removes every queued job for mac. Used by test harnesses and
	// the operator "flush" path; not exercised by the wire protocol.
	Clear(ctx context.Context, mac string) error

	// Count returns the total number of queued jobs across every printer,
	// fetched or not. Used by the health endpoint's queued_jobs figure.
	Count(ctx context.Context) (int, error)

	// Close releases the underlying connection pool.
	Close() error
}
