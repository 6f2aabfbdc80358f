package agent

import (
	"errors"
	"sync/atomic"

	"github.com/charmbracelet/huh"

	"github.com/nextlevelbuilder/aish/internal/errs"
)

// InterruptChecker reports whether the user hit Ctrl+C. Prompt loops poll it
// on a 100 ms cadence so a waiting read never traps the process.
type InterruptChecker interface {
	Interrupted() bool
}

// InterruptFlag is the signal-handler side of InterruptChecker: the handler
// sets it, the main loop reads it.
type InterruptFlag struct {
	flag atomic.Bool
}

func (f *InterruptFlag) Set()              { f.flag.Store(true) }
func (f *InterruptFlag) Interrupted() bool { return f.flag.Load() }

// CliApproval asks the user interactively before running a non-allowlisted
// shell command. Enter (confirm) approves, anything else denies; Ctrl+C
// aborts the turn.
type CliApproval struct{}

func NewCliApproval() *CliApproval { return &CliApproval{} }

func (a *CliApproval) ApproveUnsafeShell(command string) (Approval, error) {
	approve := true
	form := huh.NewForm(huh.NewGroup(
		huh.NewConfirm().
			Title("Execute command?").
			Description(command).
			Affirmative("Execute").
			Negative("Deny").
			Value(&approve),
	))
	if err := form.Run(); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return Denied, errs.New(errs.KindSystem, "interrupted by user during approval prompt")
		}
		return Denied, errs.Wrap(errs.KindIo, "approval prompt", err)
	}
	if approve {
		return Approved, nil
	}
	return Denied, nil
}

// NonInteractiveApproval always denies: CI and scripted runs never prompt.
type NonInteractiveApproval struct{}

func NewNonInteractiveApproval() *NonInteractiveApproval { return &NonInteractiveApproval{} }

func (a *NonInteractiveApproval) ApproveUnsafeShell(string) (Approval, error) {
	return Denied, nil
}
