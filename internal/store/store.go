package store

import "image"

// Store persists run checkpoints and the artifacts that go with them.
// Implementations must be safe for concurrent use.
//
// Load/Delete return an error matching ErrNotFound when the run has no
// checkpoint. Other failures are wrapped with context.
type Store interface {
	// SaveCheckpoint atomically writes the checkpoint of runID, replacing
	// any previous one.
	SaveCheckpoint(runID string, checkpoint *Checkpoint) error

	// LoadCheckpoint reads the checkpoint of runID.
	LoadCheckpoint(runID string) (*Checkpoint, error)

	// ListCheckpoints returns metadata for every readable checkpoint.
	ListCheckpoints() ([]CheckpointInfo, error)

	// DeleteCheckpoint removes the run directory with its checkpoint,
	// images and trace.
	DeleteCheckpoint(runID string) error

	// SaveImage atomically writes img as <name>.png next to the checkpoint.
	SaveImage(runID, name string, img image.Image) error
}

// ErrNotFound matches every *NotFoundError via errors.Is.
var ErrNotFound = &NotFoundError{}

// NotFoundError represents a missing checkpoint or trace.
type NotFoundError struct {
	RunID string
}

func (e *NotFoundError) Error() string {
	if e.RunID != "" {
		return "checkpoint not found: " + e.RunID
	}
	return "checkpoint not found"
}

func (e *NotFoundError) Is(target error) bool {
	_, ok := target.(*NotFoundError)
	return ok
}
