package agent

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nextlevelbuilder/aish/internal/leakscan"
	"github.com/nextlevelbuilder/aish/internal/providers"
	"github.com/nextlevelbuilder/aish/internal/session"
	"github.com/nextlevelbuilder/aish/internal/tools"
)

// missReviewer builds a real reviewer whose scanner never hits: like the
// real scanner it exits 0 while scanning and reports a miss with empty
// stdout.
func missReviewer(t *testing.T) *leakscan.Reviewer {
	t.Helper()
	path := filepath.Join(t.TempDir(), "leakscan")
	script := "#!/bin/sh\ncat >/dev/null\nexit 0\n"
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatal(err)
	}
	return leakscan.NewReviewer(path, "/dev/null", true, nil)
}

func seedUserPart(t *testing.T, sd *session.Dir, content string) {
	t.Helper()
	id := session.NewPartID()
	path := sd.Join(session.PartFilename(id, session.RoleUser))
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

// Minimal turn, no tools: one user part in, echo provider, expect two
// manifest message records and the echo text back.
func TestRunTurnMinimal(t *testing.T) {
	sd, err := session.Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	seedUserPart(t, sd, "Hello")

	result, err := RunTurn(context.Background(), RunnerConfig{
		Session:  sd,
		Stream:   providers.NewEcho(),
		Registry: tools.NewRegistry(),
		Approver: NewNonInteractiveApproval(),
		Reviewer: missReviewer(t),
	}, "Hello")
	if err != nil {
		t.Fatal(err)
	}
	if result.AssistantText != "Hello" {
		t.Errorf("assistant text = %q", result.AssistantText)
	}
	if result.ReachedLimit {
		t.Error("unexpected limit")
	}

	records, err := session.LoadAll(sd)
	if err != nil {
		t.Fatal(err)
	}
	var roles []session.Role
	for _, r := range records {
		if r.Message != nil {
			roles = append(roles, r.Message.Role)
		}
	}
	if len(roles) != 2 || roles[0] != session.RoleUser || roles[1] != session.RoleAssistant {
		t.Errorf("manifest roles = %v", roles)
	}

	// Both parts were evacuated; reviewed files exist for both.
	entries, _ := os.ReadDir(sd.Path())
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), "part_") {
			t.Errorf("unevacuated part: %s", e.Name())
		}
	}
	reviewed, err := os.ReadDir(sd.Join(session.ReviewedDir))
	if err != nil || len(reviewed) != 2 {
		t.Errorf("reviewed files = %v, err %v", reviewed, err)
	}
	evacuated, err := os.ReadDir(sd.Join(session.EvacuatedDir))
	if err != nil || len(evacuated) != 2 {
		t.Errorf("evacuated files = %v, err %v", evacuated, err)
	}
}

func TestRunTurnSecondTurnSeesHistory(t *testing.T) {
	sd, err := session.Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	cfg := RunnerConfig{
		Session:  sd,
		Stream:   providers.NewEcho(),
		Registry: tools.NewRegistry(),
		Approver: NewNonInteractiveApproval(),
		Reviewer: missReviewer(t),
	}
	if _, err := RunTurn(context.Background(), cfg, "first message"); err != nil {
		t.Fatal(err)
	}
	// The first assistant reply is now reviewed history.
	history, err := session.BuildHistory(sd, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != 1 || history[0].Role != session.RoleAssistant {
		t.Fatalf("history after turn 1 = %+v", history)
	}
	if history[0].Content != "first message" {
		t.Errorf("echoed history content = %q", history[0].Content)
	}
	if _, err := RunTurn(context.Background(), cfg, "second message"); err != nil {
		t.Fatal(err)
	}
	records, _ := session.LoadAll(sd)
	count := 0
	for _, r := range records {
		if r.Message != nil {
			count++
		}
	}
	if count != 2 {
		t.Errorf("message records = %d, want 2", count)
	}
}

func TestRunTurnStateless(t *testing.T) {
	result, err := RunTurn(context.Background(), RunnerConfig{
		Stream:   providers.NewEcho(),
		Registry: tools.NewRegistry(),
		Approver: NewNonInteractiveApproval(),
	}, "no session here")
	if err != nil {
		t.Fatal(err)
	}
	if result.AssistantText != "no session here" {
		t.Errorf("text = %q", result.AssistantText)
	}
}

func TestStateRoundTrip(t *testing.T) {
	sd, err := session.Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if st := LoadState(sd); st != nil {
		t.Errorf("state on fresh session: %+v", st)
	}
	msgs := []Msg{User("q"), Assistant("a")}
	if err := SaveState(sd, msgs); err != nil {
		t.Fatal(err)
	}
	st := LoadState(sd)
	if st == nil || len(st.Messages) != 2 {
		t.Fatalf("loaded state = %+v", st)
	}
	if st.Messages[0].Kind != MsgUser || st.Messages[0].Content != "q" {
		t.Errorf("messages = %+v", st.Messages)
	}
	ClearState(sd)
	if LoadState(sd) != nil {
		t.Error("state survived ClearState")
	}
}
