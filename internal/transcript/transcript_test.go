package transcript

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestEmitProducesParseableLines(t *testing.T) {
	dir := t.TempDir()
	w, err := New(dir, "s1", "r1")
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Emit("run.started", map[string]any{"note": "test"}); err != nil {
		t.Fatal(err)
	}
	if err := w.Emit("run.completed", map[string]any{}); err != nil {
		t.Fatal(err)
	}
	w.Close()

	data, err := os.ReadFile(filepath.Join(dir, FileName))
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines", len(lines))
	}
	for i, l := range lines {
		var parsed map[string]any
		if err := json.Unmarshal([]byte(l), &parsed); err != nil {
			t.Fatalf("line %d not JSON: %v", i, err)
		}
		if parsed["v"].(float64) != 1 || parsed["session_id"] != "s1" || parsed["run_id"] != "r1" {
			t.Errorf("line %d = %v", i, parsed)
		}
		if parsed["seq"].(float64) != float64(i+1) {
			t.Errorf("seq on line %d = %v", i, parsed["seq"])
		}
	}
}

func TestLargeStringsArePreviewed(t *testing.T) {
	dir := t.TempDir()
	w, err := New(dir, "s1", "r1")
	if err != nil {
		t.Fatal(err)
	}
	big := strings.Repeat("x", previewMaxLen+100)
	if err := w.Emit("tool.result", map[string]any{"stdout": big}); err != nil {
		t.Fatal(err)
	}
	w.Close()

	data, _ := os.ReadFile(filepath.Join(dir, FileName))
	var parsed struct {
		Payload struct {
			Stdout struct {
				Preview string `json:"preview"`
				Len     int    `json:"len"`
			} `json:"stdout"`
		} `json:"payload"`
	}
	if err := json.Unmarshal([]byte(strings.TrimSpace(string(data))), &parsed); err != nil {
		t.Fatal(err)
	}
	if parsed.Payload.Stdout.Len != previewMaxLen+100 {
		t.Errorf("len = %d", parsed.Payload.Stdout.Len)
	}
	if len(parsed.Payload.Stdout.Preview) != previewMaxLen {
		t.Errorf("preview length = %d", len(parsed.Payload.Stdout.Preview))
	}
}

func TestRotationShiftsGenerations(t *testing.T) {
	dir := t.TempDir()
	// Tiny threshold: every emit after the first crosses it.
	w, err := NewWithRotation(dir, "s1", "r1", 64, 3)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 10; i++ {
		if err := w.Emit("tick", map[string]any{"i": i}); err != nil {
			t.Fatal(err)
		}
	}
	w.Close()

	if _, err := os.Stat(filepath.Join(dir, FileName)); err != nil {
		t.Error("live transcript missing after rotation")
	}
	if _, err := os.Stat(filepath.Join(dir, "transcript.1.jsonl")); err != nil {
		t.Error("generation 1 missing")
	}
	// Never more than keep generations on disk.
	if _, err := os.Stat(filepath.Join(dir, "transcript.4.jsonl")); err == nil {
		t.Error("generation beyond keep limit exists")
	}
}
