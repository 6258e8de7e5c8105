package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"image"
	"image/png"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
)

// FSStore keeps checkpoints on disk under <baseDir>/runs/<runID>/.
// Writes go to a temp file that is renamed into place, so no locks are needed.
type FSStore struct {
	baseDir string
}

// NewFSStore creates the base directory if needed and returns a store over it.
func NewFSStore(baseDir string) (*FSStore, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}
	return &FSStore{baseDir: baseDir}, nil
}

// BaseDir returns the root directory of the store.
func (fs *FSStore) BaseDir() string { return fs.baseDir }

// RunDir returns the directory holding the artifacts of runID.
func (fs *FSStore) RunDir(runID string) string {
	return filepath.Join(fs.baseDir, "runs", runID)
}

func (fs *FSStore) checkpointPath(runID string) string {
	return filepath.Join(fs.RunDir(runID), "checkpoint.json")
}

func (fs *FSStore) SaveCheckpoint(runID string, checkpoint *Checkpoint) error {
	if runID == "" {
		return fmt.Errorf("runID cannot be empty")
	}
	if checkpoint == nil {
		return fmt.Errorf("checkpoint cannot be nil")
	}

	data, err := json.MarshalIndent(checkpoint, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize checkpoint: %w", err)
	}
	if err := fs.writeAtomic(runID, fs.checkpointPath(runID), data); err != nil {
		return err
	}

	slog.Debug("Checkpoint saved", "run_id", runID, "evaluations", checkpoint.Evaluations)
	return nil
}

func (fs *FSStore) SaveImage(runID, name string, img image.Image) error {
	if runID == "" {
		return fmt.Errorf("runID cannot be empty")
	}
	if name == "" || filepath.Base(name) != name {
		return fmt.Errorf("invalid image name %q", name)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return fmt.Errorf("failed to encode image: %w", err)
	}
	path := filepath.Join(fs.RunDir(runID), name+".png")
	if err := fs.writeAtomic(runID, path, buf.Bytes()); err != nil {
		return err
	}

	slog.Debug("Image saved", "run_id", runID, "path", path)
	return nil
}

func (fs *FSStore) writeAtomic(runID, path string, data []byte) error {
	if err := os.MkdirAll(fs.RunDir(runID), 0755); err != nil {
		return fmt.Errorf("failed to create run directory: %w", err)
	}
	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to rename %s: %w", filepath.Base(path), err)
	}
	return nil
}

func (fs *FSStore) LoadCheckpoint(runID string) (*Checkpoint, error) {
	if runID == "" {
		return nil, fmt.Errorf("runID cannot be empty")
	}

	data, err := os.ReadFile(fs.checkpointPath(runID))
	if os.IsNotExist(err) {
		return nil, &NotFoundError{RunID: runID}
	} else if err != nil {
		return nil, fmt.Errorf("failed to read checkpoint file: %w", err)
	}

	var checkpoint Checkpoint
	if err := json.Unmarshal(data, &checkpoint); err != nil {
		return nil, fmt.Errorf("failed to deserialize checkpoint: %w", err)
	}
	return &checkpoint, nil
}

// ListCheckpoints returns checkpoint metadata sorted oldest first.
// Unreadable checkpoints are logged and skipped.
func (fs *FSStore) ListCheckpoints() ([]CheckpointInfo, error) {
	runsDir := filepath.Join(fs.baseDir, "runs")
	entries, err := os.ReadDir(runsDir)
	if os.IsNotExist(err) {
		return []CheckpointInfo{}, nil
	} else if err != nil {
		return nil, fmt.Errorf("failed to read runs directory: %w", err)
	}

	infos := []CheckpointInfo{}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		runID := entry.Name()
		if _, err := os.Stat(fs.checkpointPath(runID)); os.IsNotExist(err) {
			continue
		}
		checkpoint, err := fs.LoadCheckpoint(runID)
		if err != nil {
			slog.Warn("Failed to load checkpoint for listing", "run_id", runID, "error", err)
			continue
		}
		infos = append(infos, checkpoint.ToInfo())
	}

	sort.Slice(infos, func(i, j int) bool { return infos[i].Timestamp.Before(infos[j].Timestamp) })
	return infos, nil
}

func (fs *FSStore) DeleteCheckpoint(runID string) error {
	if runID == "" {
		return fmt.Errorf("runID cannot be empty")
	}

	runDir := fs.RunDir(runID)
	if _, err := os.Stat(runDir); os.IsNotExist(err) {
		return &NotFoundError{RunID: runID}
	} else if err != nil {
		return fmt.Errorf("failed to stat run directory: %w", err)
	}
	if err := os.RemoveAll(runDir); err != nil {
		return fmt.Errorf("failed to remove run directory: %w", err)
	}

	slog.Debug("Checkpoint deleted", "run_id", runID)
	return nil
}
