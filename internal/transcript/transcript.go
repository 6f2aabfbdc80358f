// Package transcript appends structured event records to transcript.jsonl,
// one JSON line per event, rotated at a size threshold across a fixed number
// of generations. Large payload strings are reduced to previews so the
// transcript never balloons with raw tool output.
package transcript

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const (
	FileName = "transcript.jsonl"

	previewMaxLen = 2048

	DefaultMaxSizeBytes    = 10 * 1024 * 1024
	DefaultKeepGenerations = 3
)

// Writer appends event lines and rotates the file when it crosses the size
// threshold. Not safe for concurrent use; each process owns one writer.
type Writer struct {
	baseDir   string
	sessionID string
	runID     string

	file    *os.File
	seq     uint64
	maxSize int64
	keep    int
}

// New opens (creating if needed) the transcript in baseDir.
func New(baseDir, sessionID, runID string) (*Writer, error) {
	return NewWithRotation(baseDir, sessionID, runID, DefaultMaxSizeBytes, DefaultKeepGenerations)
}

// NewWithRotation opens a writer with explicit rotation parameters.
func NewWithRotation(baseDir, sessionID, runID string, maxSize int64, keep int) (*Writer, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("create transcript dir: %w", err)
	}
	w := &Writer{
		baseDir:   baseDir,
		sessionID: sessionID,
		runID:     runID,
		maxSize:   maxSize,
		keep:      keep,
	}
	if err := w.open(); err != nil {
		return nil, err
	}
	return w, nil
}

func (w *Writer) path() string { return filepath.Join(w.baseDir, FileName) }

func (w *Writer) open() error {
	f, err := os.OpenFile(w.path(), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open transcript: %w", err)
	}
	w.file = f
	return nil
}

func (w *Writer) Close() error {
	if w.file == nil {
		return nil
	}
	err := w.file.Close()
	w.file = nil
	return err
}

type line struct {
	V         int             `json:"v"`
	TS        string          `json:"ts"`
	Seq       uint64          `json:"seq"`
	SessionID string          `json:"session_id"`
	RunID     string          `json:"run_id"`
	Kind      string          `json:"kind"`
	Payload   json.RawMessage `json:"payload"`
}

// sanitizePayload replaces every string longer than the preview limit with
// {"preview": <head>, "len": <full length>}, recursively.
func sanitizePayload(v any) any {
	switch t := v.(type) {
	case string:
		if len(t) <= previewMaxLen {
			return t
		}
		preview := []rune(t)
		if len(preview) > previewMaxLen {
			preview = preview[:previewMaxLen]
		}
		return map[string]any{"preview": string(preview), "len": len(t)}
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = sanitizePayload(e)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = sanitizePayload(e)
		}
		return out
	default:
		return v
	}
}

// Emit appends one event. payload may be any JSON-marshalable value.
func (w *Writer) Emit(kind string, payload any) error {
	if err := w.maybeRotate(); err != nil {
		return err
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal transcript payload: %w", err)
	}
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return fmt.Errorf("normalize transcript payload: %w", err)
	}
	sanitized, err := json.Marshal(sanitizePayload(generic))
	if err != nil {
		return fmt.Errorf("marshal sanitized payload: %w", err)
	}

	w.seq++
	data, err := json.Marshal(line{
		V:         1,
		TS:        time.Now().UTC().Format(time.RFC3339),
		Seq:       w.seq,
		SessionID: w.sessionID,
		RunID:     w.runID,
		Kind:      kind,
		Payload:   sanitized,
	})
	if err != nil {
		return fmt.Errorf("marshal transcript line: %w", err)
	}
	if _, err := w.file.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("append transcript: %w", err)
	}
	if kind == "run.completed" || kind == "run.failed" {
		if err := w.file.Sync(); err != nil {
			return fmt.Errorf("flush transcript: %w", err)
		}
	}
	return nil
}

// maybeRotate shifts generations when the current file has reached the
// threshold: the oldest generation is deleted, transcript.<i> moves to
// transcript.<i+1>, and the live file becomes transcript.1.
func (w *Writer) maybeRotate() error {
	st, err := os.Stat(w.path())
	if err != nil {
		return nil
	}
	if st.Size() < w.maxSize {
		return nil
	}
	if err := w.Close(); err != nil {
		return err
	}
	gen := func(i int) string {
		return filepath.Join(w.baseDir, fmt.Sprintf("transcript.%d.jsonl", i))
	}
	os.Remove(gen(w.keep))
	for i := w.keep - 1; i >= 1; i-- {
		if _, err := os.Stat(gen(i)); err == nil {
			if err := os.Rename(gen(i), gen(i+1)); err != nil {
				return fmt.Errorf("rotate transcript generation %d: %w", i, err)
			}
		}
	}
	if err := os.Rename(w.path(), gen(1)); err != nil {
		return fmt.Errorf("rotate transcript: %w", err)
	}
	return w.open()
}
