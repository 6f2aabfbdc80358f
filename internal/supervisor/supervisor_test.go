package supervisor

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nextlevelbuilder/aish/internal/session"
)

func TestShellCommand(t *testing.T) {
	home := t.TempDir()
	configDir := filepath.Join(home, "config")
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		t.Fatal(err)
	}
	h, err := session.OpenHome(home)
	if err != nil {
		t.Fatal(err)
	}

	t.Run("bash without aishrc", func(t *testing.T) {
		got := shellCommand("/bin/bash", h)
		if len(got) != 1 || got[0] != "/bin/bash" {
			t.Errorf("got %v", got)
		}
	})

	t.Run("bash with aishrc", func(t *testing.T) {
		rc := filepath.Join(configDir, "aishrc")
		if err := os.WriteFile(rc, []byte("# test"), 0o644); err != nil {
			t.Fatal(err)
		}
		defer os.Remove(rc)
		got := shellCommand("/bin/bash", h)
		if len(got) != 3 || got[1] != "--rcfile" {
			t.Errorf("got %v", got)
		}
		if got[2] != rc && filepath.Base(got[2]) != "aishrc" {
			t.Errorf("rcfile path: %v", got[2])
		}
	})

	t.Run("non-bash ignores aishrc", func(t *testing.T) {
		rc := filepath.Join(configDir, "aishrc")
		if err := os.WriteFile(rc, []byte("# test"), 0o644); err != nil {
			t.Fatal(err)
		}
		defer os.Remove(rc)
		got := shellCommand("/bin/zsh", h)
		if len(got) != 1 {
			t.Errorf("got %v", got)
		}
	})
}

func TestSanitizeInjectLine(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "git status", "git status"},
		{"drops after newline", "git status\nrm -rf /", "git status"},
		{"drops after cr", "echo hi\rclobber", "echo hi"},
		{"drops after esc", "echo \x1b[31mred", "echo "},
		{"strips control chars", "a\x01b\x02c", "abc"},
		{"keeps tab", "a\tb", "a\tb"},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SanitizeInjectLine(tt.in); got != tt.want {
				t.Errorf("SanitizeInjectLine(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestSanitizeInjectLineTruncates(t *testing.T) {
	long := strings.Repeat("x", pendingMaxLen+100)
	got := SanitizeInjectLine(long)
	if !strings.HasSuffix(got, "…") {
		t.Error("no ellipsis marker on truncated line")
	}
	if len([]rune(got)) != pendingMaxLen+1 {
		t.Errorf("truncated length = %d runes, want %d", len([]rune(got)), pendingMaxLen+1)
	}
}

func TestBuildInjectText(t *testing.T) {
	tests := []struct {
		name    string
		pending session.PendingInput
		want    string
	}{
		{"allowed", session.PendingInput{Text: "git 'status'", Policy: session.Allowed()}, "git 'status'"},
		{"blocked is commented out", session.PendingInput{Text: "git 'status'", Policy: session.Blocked("x")}, "# git 'status'"},
		{"needs warning injects as-is", session.PendingInput{Text: "ls", Policy: session.NeedsWarning("x")}, "ls"},
		{"control-only text yields empty", session.PendingInput{Text: "\nonly control", Policy: session.Allowed()}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := buildInjectText(&tt.pending); got != tt.want {
				t.Errorf("buildInjectText = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRolloverWritesUserPart(t *testing.T) {
	sd, err := session.Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	s := New(Config{Session: sd, PromptMarker: "$ "})
	s.buf.Feed([]byte("some shell output\n$ "))
	s.rollover()

	entries, err := os.ReadDir(sd.Path())
	if err != nil {
		t.Fatal(err)
	}
	var part string
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), "part_") && strings.HasSuffix(e.Name(), "_user.txt") {
			part = e.Name()
		}
	}
	if part == "" {
		t.Fatal("no user part written after rollover")
	}
	data, err := os.ReadFile(sd.Join(part))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "some shell output") {
		t.Errorf("part content = %q", data)
	}
	if s.buf.Output() != "" {
		t.Error("emulator not cleared after rollover")
	}
	// Console log received the same flush.
	console, err := os.ReadFile(sd.Join(session.ConsoleFile))
	if err != nil {
		t.Fatalf("console log: %v", err)
	}
	if !strings.Contains(string(console), "some shell output") {
		t.Errorf("console content = %q", console)
	}
}

func TestRolloverMutedWritesNothing(t *testing.T) {
	sd, err := session.Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(sd.Join(session.MuteFlagFile), []byte("muted"), 0o644); err != nil {
		t.Fatal(err)
	}
	s := New(Config{Session: sd})
	s.buf.Feed([]byte("secret output"))
	s.rollover()

	entries, _ := os.ReadDir(sd.Path())
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), "part_") {
			t.Errorf("part written while muted: %s", e.Name())
		}
	}
	if _, err := os.Stat(sd.Join(session.ConsoleFile)); !os.IsNotExist(err) {
		t.Error("console log written while muted")
	}
}

func TestRolloverEmptyBufferWritesNothing(t *testing.T) {
	sd, err := session.Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	s := New(Config{Session: sd})
	s.rollover()
	entries, _ := os.ReadDir(sd.Path())
	if len(entries) != 0 {
		t.Errorf("files written for empty buffer: %v", entries)
	}
}
