package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/nextlevelbuilder/aish/internal/agent"
	"github.com/nextlevelbuilder/aish/internal/config"
	"github.com/nextlevelbuilder/aish/internal/errs"
	"github.com/nextlevelbuilder/aish/internal/leakscan"
	"github.com/nextlevelbuilder/aish/internal/providers"
	"github.com/nextlevelbuilder/aish/internal/tools"
	"github.com/nextlevelbuilder/aish/internal/tracing"
	"github.com/nextlevelbuilder/aish/internal/transcript"
)

func aiCmd() *cobra.Command {
	var (
		providerFlag   string
		nonInteractive bool
		maxTurns       int
		maxToolCalls   int
	)

	cmd := &cobra.Command{
		Use:   "ai [message...]",
		Short: "Send a message to the LLM and run tools until it finishes",
		RunE: func(cmd *cobra.Command, args []string) error {
			setupLogging()
			query := strings.TrimSpace(strings.Join(args, " "))
			return runAgent(query, providerFlag, nonInteractive, maxTurns, maxToolCalls)
		},
	}
	cmd.Flags().StringVarP(&providerFlag, "provider", "p", "", "provider profile name (default from profiles.json, else gemini)")
	cmd.Flags().BoolVar(&nonInteractive, "non-interactive", false, "never prompt: deny approvals and sensitive hits")
	cmd.Flags().IntVar(&maxTurns, "max-turns", 16, "maximum LLM turns before stopping")
	cmd.Flags().IntVar(&maxToolCalls, "max-tool-calls", 32, "maximum cumulative tool calls before stopping")
	return cmd
}

func runAgent(query, providerName string, nonInteractive bool, maxTurns, maxToolCalls int) error {
	dirs, err := config.ResolveDirs()
	if err != nil {
		return err
	}
	dirs.LoadDotenv()

	sess, err := resolveSession(false)
	if err != nil {
		return err
	}

	if query == "" {
		resumable := sess != nil && agent.LoadState(sess) != nil
		if !resumable {
			return errs.New(errs.KindInvalidArgument, "no query provided; pass a message to send to the LLM")
		}
	}

	profiles, err := providers.LoadProfiles(dirs.ProfilesPath())
	if err != nil {
		return err
	}
	name, prof, err := providers.Resolve(providerName, profiles)
	if err != nil {
		return err
	}
	stream, err := providers.New(name, prof)
	if err != nil {
		return err
	}

	rules, err := config.LoadCommandRules(dirs)
	if err != nil {
		return err
	}
	toolCtx := tools.Context{
		SessionDir:       sess,
		AllowRules:       rules,
		MemoryGlobalDir:  dirs.MemoryDir(),
		MemoryProjectDir: config.ProjectMemoryDir(),
	}

	registry := tools.NewRegistry()
	registry.Register(tools.NewShellTool())
	registry.Register(tools.NewQueueSuggestionTool())
	registry.Register(tools.NewWriteFileTool())
	registry.Register(tools.NewReplaceFileTool())
	registry.Register(tools.NewGrepTool())
	registry.Register(tools.NewHistoryGetTool())
	registry.Register(tools.NewHistorySearchTool())
	registry.Register(tools.NewSaveMemoryTool())
	registry.Register(tools.NewSearchMemoryTool())

	interrupt := &agent.InterruptFlag{}
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)
	defer signal.Stop(sigCh)
	go func() {
		for range sigCh {
			interrupt.Set()
		}
	}()

	interactive := !nonInteractive && term.IsTerminal(int(os.Stdin.Fd()))
	var approver agent.ToolApproval
	if interactive {
		approver = agent.NewCliApproval()
	} else {
		approver = agent.NewNonInteractiveApproval()
	}

	var reviewer agent.Reviewer
	if sess != nil {
		reviewer = leakscan.NewReviewer("leakscan", dirs.LeakscanRulesPath(), !interactive, interrupt)
	}

	ctx := context.Background()
	shutdown, err := tracing.Init(ctx, os.Getenv("AISH_OTEL_ENDPOINT"))
	if err != nil {
		return err
	}
	defer shutdown(ctx)

	runID := uuid.NewString()
	transcriptDir := dirs.State
	sessionID := "global"
	if sess != nil {
		transcriptDir = sess.Path()
		sessionID = sess.Path()
	}
	tw, err := transcript.New(transcriptDir, sessionID, runID)
	if err != nil {
		return err
	}
	defer tw.Close()

	if err := tw.Emit("run.started", map[string]any{"query_len": len(query), "provider": name}); err != nil {
		return err
	}

	result, err := agent.RunTurn(ctx, agent.RunnerConfig{
		Session:      sess,
		Stream:       stream,
		Registry:     registry,
		ToolCtx:      toolCtx,
		Approver:     approver,
		Reviewer:     reviewer,
		ExtraSinks:   []agent.EventSink{agent.NewStdoutSink(), agent.NewTranscriptSink(tw)},
		MaxTurns:     maxTurns,
		MaxToolCalls: maxToolCalls,
	}, query)
	if err != nil {
		_ = tw.Emit("run.failed", map[string]any{"error": err.Error()})
		return err
	}
	_ = tw.Emit("run.completed", map[string]any{"reached_limit": result.ReachedLimit})

	if result.ReachedLimit {
		fmt.Fprintln(os.Stderr, "aish: stopped at the turn/tool-call limit; run 'aish ai' with no message to continue")
	}
	return nil
}
