package agent

import (
	"context"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"syscall"

	"github.com/nextlevelbuilder/aish/internal/compactor"
	"github.com/nextlevelbuilder/aish/internal/providers"
	"github.com/nextlevelbuilder/aish/internal/session"
	"github.com/nextlevelbuilder/aish/internal/tools"
)

// Reviewer is the slice of the leakscan pipeline the runner drives.
type Reviewer interface {
	Prepare(dir *session.Dir) error
}

// RunnerConfig wires one agent invocation.
type RunnerConfig struct {
	Session  *session.Dir // nil = stateless turn
	Stream   providers.EventStream
	Registry *tools.Registry
	ToolCtx  tools.Context
	Approver ToolApproval
	Reviewer Reviewer // nil skips review (stateless turns)

	ExtraSinks   []EventSink // stdout, transcript, ...
	SystemPrompt string

	MaxTurns     int // default 16
	MaxToolCalls int // default 32
	HistoryLimit int // reviewed messages loaded into context, default 50
}

// RunResult reports one completed invocation.
type RunResult struct {
	AssistantText string
	ReachedLimit  bool
}

// RunTurn performs one full agent invocation against the session: review
// pending parts, load the reviewed history, drive the loop, persist the
// assistant part, review it, and compact if due. The console rollover signal
// is sent to the supervisor afterwards so the terminal context becomes the
// next turn's user part.
func RunTurn(ctx context.Context, cfg RunnerConfig, query string) (RunResult, error) {
	maxTurns := cfg.MaxTurns
	if maxTurns <= 0 {
		maxTurns = 16
	}
	maxToolCalls := cfg.MaxToolCalls
	if maxToolCalls <= 0 {
		maxToolCalls = 32
	}
	historyLimit := cfg.HistoryLimit
	if historyLimit <= 0 {
		historyLimit = 50
	}

	// Review anything the supervisor rolled over since the last turn.
	if cfg.Session != nil && cfg.Reviewer != nil {
		if err := cfg.Reviewer.Prepare(cfg.Session); err != nil {
			return RunResult{}, err
		}
	}

	var msgs []Msg
	if cfg.SystemPrompt != "" {
		msgs = append(msgs, System(cfg.SystemPrompt))
	}

	// A resumable conversation (saved after a ReachedLimit turn) continues
	// where it stopped; otherwise the reviewed history is projected in.
	resumed := false
	if cfg.Session != nil {
		if st := LoadState(cfg.Session); st != nil && query == "" {
			msgs = append(msgs, st.Messages...)
			resumed = true
		}
	}
	if !resumed {
		if cfg.Session != nil {
			history, err := session.BuildHistory(cfg.Session, historyLimit)
			if err != nil {
				return RunResult{}, err
			}
			for _, h := range history {
				switch h.Role {
				case session.RoleUser:
					msgs = append(msgs, User(h.Content))
				case session.RoleAssistant:
					msgs = append(msgs, Assistant(h.Content))
				}
			}
		}
		msgs = append(msgs, User(query))
	}

	var partSink *PartFileSink
	sinks := append([]EventSink(nil), cfg.ExtraSinks...)
	if cfg.Session != nil {
		partSink = NewPartFileSink(cfg.Session)
		sinks = append(sinks, partSink)
	}

	loop := NewLoop(cfg.Stream, cfg.Registry, cfg.ToolCtx, sinks, cfg.Approver, tools.ShellToolName)
	outcome, err := loop.RunUntilDone(ctx, msgs, maxTurns, maxToolCalls)
	if err != nil {
		return RunResult{}, err
	}

	if cfg.Session != nil {
		// The part sink flushed on Done; a limit-stopped conversation still
		// owes its partial assistant text to the session.
		if partSink.WrittenPath == "" {
			if err := partSink.OnEnd(); err != nil {
				return RunResult{}, err
			}
		}

		if outcome.ReachedLimit {
			if err := SaveState(cfg.Session, outcome.Msgs); err != nil {
				slog.Warn("failed to save agent state", "error", err)
			}
		} else {
			ClearState(cfg.Session)
		}

		if cfg.Reviewer != nil {
			if err := cfg.Reviewer.Prepare(cfg.Session); err != nil {
				return RunResult{}, err
			}
		}

		records, err := session.LoadAll(cfg.Session)
		if err == nil {
			if err := compactor.MaybeCompact(cfg.Session, records, compactor.FromEnv()); err != nil {
				slog.Warn("compaction failed", "error", err)
			}
		}

		if partSink.WrittenPath != "" {
			signalConsoleRollover(cfg.Session)
		}
	}

	return RunResult{
		AssistantText: outcome.AssistantText,
		ReachedLimit:  outcome.ReachedLimit,
	}, nil
}

// signalConsoleRollover sends SIGUSR2 to the live supervisor so the terminal
// screen (including this invocation) is flushed into a user part and the
// console buffer cleared before the next turn.
func signalConsoleRollover(dir *session.Dir) {
	data, err := os.ReadFile(dir.Join(session.PIDFile))
	if err != nil {
		return
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		slog.Warn("invalid AISH_PID file", "error", err)
		return
	}
	if err := syscall.Kill(pid, syscall.SIGUSR2); err != nil {
		slog.Debug("console rollover signal failed", "pid", pid, "error", err)
	}
}
