package agent

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/nextlevelbuilder/aish/internal/session"
)

// State is the agent's optional resume file: the message list only. It is
// written after a ReachedLimit turn so the next invocation can continue the
// conversation, and cleared once a turn completes normally.
type State struct {
	Messages []Msg `json:"messages"`
}

// SaveState atomically replaces agent_state.json.
func SaveState(dir *session.Dir, msgs []Msg) error {
	data, err := json.Marshal(State{Messages: msgs})
	if err != nil {
		return fmt.Errorf("marshal agent state: %w", err)
	}
	return session.WriteFileAtomic(dir.Join(session.AgentStateFile), data)
}

// LoadState reads agent_state.json; a missing or malformed file yields nil
// (a malformed resume file is not worth failing a turn over).
func LoadState(dir *session.Dir) *State {
	data, err := os.ReadFile(dir.Join(session.AgentStateFile))
	if err != nil {
		return nil
	}
	var st State
	if err := json.Unmarshal(data, &st); err != nil {
		return nil
	}
	if len(st.Messages) == 0 {
		return nil
	}
	return &st
}

// ClearState removes the resume file; absence is fine.
func ClearState(dir *session.Dir) {
	_ = os.Remove(dir.Join(session.AgentStateFile))
}
