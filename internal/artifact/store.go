// Package artifact provides the run-scoped artifact store: write-only uploads
// keyed by name, retrievable by that name for the configured retention window.
package artifact

import (
	"context"
	"time"
)

// Record describes one stored artifact.
type Record struct {
	// Name is the upload key (the platform's asset name plus extension).
	Name string `json:"name"`

	// SHA256 is the hex content hash of the payload.
	SHA256 string `json:"sha256"`

	// Size is the payload size in bytes.
	Size int64 `json:"size"`

	// RunID is the pipeline run that produced the artifact.
	RunID string `json:"run_id,omitempty"`

	// CreatedAt is when the artifact was uploaded.
	CreatedAt time.Time `json:"created_at"`
}

// Store is the artifact store interface. Uploads are keyed by name; a later
// run re-uploading the same name replaces the stored payload (artifacts are
// created fresh each run and never reused across runs).
type Store interface {
	// Put stores a payload under name and returns its record.
	Put(ctx context.Context, name, runID string, payload []byte) (*Record, error)

	// Get retrieves an artifact by name.
	// Returns ErrNotFound if no artifact with that name exists.
	Get(ctx context.Context, name string) (*Record, []byte, error)

	// List returns records for all stored artifacts.
	List(ctx context.Context) ([]*Record, error)

	// Delete removes an artifact by name.
	// Returns ErrNotFound if no artifact with that name exists.
	Delete(ctx context.Context, name string) error

	// Sweep deletes artifacts created before the cutoff, returning how many
	// were removed. Implements the retention window.
	Sweep(ctx context.Context, cutoff time.Time) (int, error)

	// Close releases any resources held by the store.
	Close() error
}

// ErrNotFound is returned when an artifact doesn't exist.
type ErrNotFound struct {
	Name string
}

func (e ErrNotFound) Error() string {
	return "artifact not found: " + e.Name
}

// IsNotFound returns true if the error is ErrNotFound.
func IsNotFound(err error) bool {
	_, ok := err.(ErrNotFound)
	return ok
}
