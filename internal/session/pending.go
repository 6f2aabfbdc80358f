package session

import (
	"encoding/json"
	"fmt"
	"os"
)

// Policy kinds for a pending input.
const (
	PolicyAllowed      = "allowed"
	PolicyNeedsWarning = "needs_warning"
	PolicyBlocked      = "blocked"
)

// PolicyStatus is the allowlist verdict attached to a queued command.
// On disk it is either the string "allowed" or a single-key object like
// {"blocked":{"reason":"..."}}.
type PolicyStatus struct {
	Kind   string
	Reason string
}

func Allowed() PolicyStatus { return PolicyStatus{Kind: PolicyAllowed} }

func Blocked(reason string) PolicyStatus {
	return PolicyStatus{Kind: PolicyBlocked, Reason: reason}
}

func NeedsWarning(reason string) PolicyStatus {
	return PolicyStatus{Kind: PolicyNeedsWarning, Reason: reason}
}

type policyReason struct {
	Reason string `json:"reason"`
}

func (p PolicyStatus) MarshalJSON() ([]byte, error) {
	switch p.Kind {
	case PolicyAllowed, "":
		return json.Marshal(PolicyAllowed)
	case PolicyNeedsWarning, PolicyBlocked:
		return json.Marshal(map[string]policyReason{p.Kind: {Reason: p.Reason}})
	default:
		return nil, fmt.Errorf("unknown policy kind %q", p.Kind)
	}
}

func (p *PolicyStatus) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		if s != PolicyAllowed {
			return fmt.Errorf("unknown policy %q", s)
		}
		p.Kind = PolicyAllowed
		p.Reason = ""
		return nil
	}
	var obj map[string]policyReason
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	for kind, r := range obj {
		if kind != PolicyNeedsWarning && kind != PolicyBlocked {
			return fmt.Errorf("unknown policy kind %q", kind)
		}
		p.Kind = kind
		p.Reason = r.Reason
		return nil
	}
	return fmt.Errorf("empty policy object")
}

// PendingInput is the single-slot mailbox from the agent to the supervisor:
// one sanitized line awaiting injection at the next shell prompt. Newer
// writes overwrite older ones; the supervisor deletes after consuming.
type PendingInput struct {
	Text            string       `json:"text"`
	Policy          PolicyStatus `json:"policy"`
	CreatedAtUnixMS int64        `json:"created_at_unix_ms"`
	Source          string       `json:"source"`
}

// WritePendingInput atomically replaces pending_input.json.
func WritePendingInput(dir *Dir, p PendingInput) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal pending input: %w", err)
	}
	return WriteFileAtomic(dir.Join(PendingInputFile), data)
}

// LoadPendingInput reads the mailbox. Missing file means no pending input;
// a malformed file is reported as an error so the caller can discard it.
func LoadPendingInput(dir *Dir) (*PendingInput, error) {
	data, err := os.ReadFile(dir.Join(PendingInputFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read pending input: %w", err)
	}
	var p PendingInput
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse pending input: %w", err)
	}
	return &p, nil
}

// RemovePendingInput deletes the mailbox; removing an absent file is fine.
func RemovePendingInput(dir *Dir) error {
	err := os.Remove(dir.Join(PendingInputFile))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove pending input: %w", err)
	}
	return nil
}
