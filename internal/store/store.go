// Package store defines the narrow persistent-store interface the
// engine consumes (spec.md §4.6) and a modernc.org/sqlite-backed
// implementation of it. The engine never depends on the concrete type,
// only on this interface, matching spec.md §1's framing of the store as
// an external collaborator reached through a narrow boundary.
package store

import (
	"context"
	"time"

	"github.com/laminarci/laminar/internal/model"
)

// BuildRecord is one immutable, persisted build, as recorded by
// RecordBuild and returned by History/GetLog.
type BuildRecord struct {
	Name        string
	Build       int
	Node        string
	QueuedAt    time.Time
	StartedAt   time.Time
	CompletedAt time.Time
	Result      model.RunState
	Reason      string
	Params      map[string]string
}

// Store is the persistence boundary the scheduler calls through.
// Implementations must make RecordBuild idempotent on (Name, Build) and
// NextBuildNumber gap-free and monotonic across restarts (spec §4.6,
// §8 property 3).
type Store interface {
	// NextBuildNumber returns 1 + the highest build number ever issued
	// for name, whether or not that build was recorded (1 for a name never
	// seen before). The number is considered consumed the moment
	// this call returns successfully, even if the caller never reaches
	// RecordBuild — spec §7's StorePersistenceError policy.
	NextBuildNumber(ctx context.Context, name string) (int, error)

	// RecordBuild persists a completed build. Calling it twice for the
	// same (Name, Build) must not change the stored record.
	RecordBuild(ctx context.Context, rec BuildRecord, log []byte) error

	// LastResult returns the result of the highest build# for name, or
	// model.Unknown if none exists.
	LastResult(ctx context.Context, name string) (model.RunState, error)

	// History returns up to limit most recent records for name, newest
	// first.
	History(ctx context.Context, name string, limit int) ([]BuildRecord, error)

	// GetLog returns the captured output of one build.
	GetLog(ctx context.Context, name string, build int) ([]byte, error)

	// ListJobs returns every distinct job name that has at least one
	// recorded build.
	ListJobs(ctx context.Context) ([]string, error)

	Close() error
}
