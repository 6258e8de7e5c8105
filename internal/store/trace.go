package store

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// TraceEntry is one line of a run's trace.jsonl: the best cost after a
// given number of evaluations.
type TraceEntry struct {
	Evaluation int       `json:"evaluation"`
	Cost       float64   `json:"cost"`
	Sigma      float64   `json:"sigma,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// TracePath returns the trace file location for runID under baseDir.
func TracePath(baseDir, runID string) string {
	return filepath.Join(baseDir, "runs", runID, "trace.jsonl")
}

// TraceWriter appends trace entries to a JSONL file through a buffer.
// It is safe for concurrent use.
type TraceWriter struct {
	mu     sync.Mutex
	file   *os.File
	writer *bufio.Writer
	path   string
}

// NewTraceWriter opens the trace of runID, truncating it unless appendMode
// is set (used when resuming).
func NewTraceWriter(baseDir, runID string, appendMode bool) (*TraceWriter, error) {
	path := TracePath(baseDir, runID)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create run directory: %w", err)
	}

	flags := os.O_CREATE | os.O_WRONLY | os.O_TRUNC
	if appendMode {
		flags = os.O_CREATE | os.O_WRONLY | os.O_APPEND
	}
	file, err := os.OpenFile(path, flags, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open trace file: %w", err)
	}

	return &TraceWriter{
		file:   file,
		writer: bufio.NewWriterSize(file, 64*1024),
		path:   path,
	}, nil
}

// Write buffers one entry.
func (tw *TraceWriter) Write(entry TraceEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal trace entry: %w", err)
	}

	tw.mu.Lock()
	defer tw.mu.Unlock()

	if _, err := tw.writer.Write(data); err != nil {
		return fmt.Errorf("failed to write trace entry: %w", err)
	}
	if err := tw.writer.WriteByte('\n'); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}
	return nil
}

// Flush writes buffered entries and syncs the file.
func (tw *TraceWriter) Flush() error {
	tw.mu.Lock()
	defer tw.mu.Unlock()

	if err := tw.writer.Flush(); err != nil {
		return fmt.Errorf("failed to flush trace writer: %w", err)
	}
	if err := tw.file.Sync(); err != nil {
		return fmt.Errorf("failed to sync trace file: %w", err)
	}
	return nil
}

// Close flushes and closes the file.
func (tw *TraceWriter) Close() error {
	tw.mu.Lock()
	defer tw.mu.Unlock()

	if err := tw.writer.Flush(); err != nil {
		tw.file.Close()
		return fmt.Errorf("failed to flush on close: %w", err)
	}
	if err := tw.file.Close(); err != nil {
		return fmt.Errorf("failed to close trace file: %w", err)
	}
	return nil
}

// Path returns the trace file location.
func (tw *TraceWriter) Path() string { return tw.path }

// ReadTrace loads every entry of the trace of runID.
func ReadTrace(baseDir, runID string) ([]TraceEntry, error) {
	file, err := os.Open(TracePath(baseDir, runID))
	if os.IsNotExist(err) {
		return nil, &NotFoundError{RunID: runID}
	} else if err != nil {
		return nil, fmt.Errorf("failed to open trace file: %w", err)
	}
	defer file.Close()

	var entries []TraceEntry
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		if len(scanner.Bytes()) == 0 {
			continue
		}
		var entry TraceEntry
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			return nil, fmt.Errorf("failed to unmarshal trace line %d: %w", line, err)
		}
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan trace: %w", err)
	}
	return entries, nil
}
