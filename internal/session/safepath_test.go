package session

import (
	"os"
	"path/filepath"
	"testing"
)

func TestIsSafeReviewedBasename(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want bool
	}{
		{"user part", "reviewed_001_user.txt", true},
		{"assistant part", "reviewed_002_assistant.txt", true},
		{"traversal", "../../etc/passwd", false},
		{"embedded dots", "reviewed_../secret.txt", false},
		{"subdir", "subdir/reviewed_x.txt", false},
		{"empty", "", false},
		{"dot", ".", false},
		{"dotdot", "..", false},
		{"wrong prefix", "part_001.txt", false},
		{"missing suffix", "reviewed_001_user", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsSafeReviewedBasename(tt.in); got != tt.want {
				t.Errorf("IsSafeReviewedBasename(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestIsSafeReviewedPath(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"reviewed/reviewed_001_user.txt", true},
		{"reviewed/reviewed_002_assistant.txt", true},
		{"reviewed/../../etc/passwd", false},
		{"../reviewed/reviewed_001_user.txt", false},
		{"reviewed_001_user.txt", false},
		{`reviewed\reviewed_001_user.txt`, false},
		{"reviewed/sub/reviewed_001_user.txt", false},
	}
	for _, tt := range tests {
		if got := IsSafeReviewedPath(tt.in); got != tt.want {
			t.Errorf("IsSafeReviewedPath(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestIsSafeSummaryBasename(t *testing.T) {
	if !IsSafeSummaryBasename("compaction_001_002.txt") {
		t.Error("valid summary basename rejected")
	}
	if IsSafeSummaryBasename("../../compaction_1_2.txt") {
		t.Error("traversal summary basename accepted")
	}
	if IsSafeSummaryBasename("summary_001.txt") {
		t.Error("wrong prefix accepted")
	}
}

func TestResolveUnderSessionDir(t *testing.T) {
	dir := t.TempDir()
	sd, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	inside := filepath.Join(sd.Path(), ReviewedDir, "reviewed_001_user.txt")
	if err := os.MkdirAll(filepath.Dir(inside), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(inside, []byte("ok"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, ok := ResolveUnderSessionDir(sd, inside); !ok {
		t.Error("path inside session dir not resolved")
	}

	outside := filepath.Join(t.TempDir(), "outside.txt")
	if err := os.WriteFile(outside, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, ok := ResolveUnderSessionDir(sd, outside); ok {
		t.Error("path outside session dir resolved")
	}

	if _, ok := ResolveUnderSessionDir(sd, sd.Join("missing.txt")); ok {
		t.Error("non-existent path resolved")
	}
}
