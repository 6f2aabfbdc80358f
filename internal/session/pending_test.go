package session

import (
	"encoding/json"
	"os"
	"strings"
	"testing"
)

func TestPolicyStatusJSON(t *testing.T) {
	tests := []struct {
		name string
		in   PolicyStatus
		want string
	}{
		{"allowed", Allowed(), `"allowed"`},
		{"blocked", Blocked("not in allowlist"), `{"blocked":{"reason":"not in allowlist"}}`},
		{"needs warning", NeedsWarning("careful"), `{"needs_warning":{"reason":"careful"}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := json.Marshal(tt.in)
			if err != nil {
				t.Fatalf("marshal: %v", err)
			}
			if string(data) != tt.want {
				t.Errorf("marshal = %s, want %s", data, tt.want)
			}
			var back PolicyStatus
			if err := json.Unmarshal(data, &back); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if back != tt.in {
				t.Errorf("round trip = %+v, want %+v", back, tt.in)
			}
		})
	}
}

func TestPendingInputWriteLoadRemove(t *testing.T) {
	sd := testDir(t)

	p, err := LoadPendingInput(sd)
	if err != nil || p != nil {
		t.Fatalf("empty session: got (%v, %v), want (nil, nil)", p, err)
	}

	in := PendingInput{
		Text:            "git 'status'",
		Policy:          Blocked("not in command_rules allowlist"),
		CreatedAtUnixMS: 1700000000000,
		Source:          "tool:queue_shell_suggestion",
	}
	if err := WritePendingInput(sd, in); err != nil {
		t.Fatalf("WritePendingInput: %v", err)
	}

	// No temp residue after the atomic rename.
	entries, _ := os.ReadDir(sd.Path())
	for _, e := range entries {
		if strings.Contains(e.Name(), ".tmp.") {
			t.Errorf("temp file left behind: %s", e.Name())
		}
	}

	got, err := LoadPendingInput(sd)
	if err != nil {
		t.Fatalf("LoadPendingInput: %v", err)
	}
	if got == nil || *got != in {
		t.Errorf("got %+v, want %+v", got, in)
	}

	if err := RemovePendingInput(sd); err != nil {
		t.Fatalf("RemovePendingInput: %v", err)
	}
	if _, err := os.Stat(sd.Join(PendingInputFile)); !os.IsNotExist(err) {
		t.Error("pending_input.json still present after consume")
	}
	// Removing again is not an error.
	if err := RemovePendingInput(sd); err != nil {
		t.Errorf("second remove: %v", err)
	}
}

func TestPendingInputOverwrite(t *testing.T) {
	sd := testDir(t)
	WritePendingInput(sd, PendingInput{Text: "old", Policy: Allowed()})
	WritePendingInput(sd, PendingInput{Text: "new", Policy: Allowed()})
	got, err := LoadPendingInput(sd)
	if err != nil {
		t.Fatal(err)
	}
	if got.Text != "new" {
		t.Errorf("mailbox kept old value %q", got.Text)
	}
}
