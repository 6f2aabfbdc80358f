package agent

import (
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"github.com/nextlevelbuilder/aish/internal/providers"
	"github.com/nextlevelbuilder/aish/internal/session"
)

const maxArgsDisplay = 80
const maxErrDisplay = 40

var faint = lipgloss.NewStyle().Faint(true)

// StdoutSink streams assistant text to the terminal. Reasoning is rendered
// faint inside <<< … >>> delimiters so it never blends into content; tool
// activity is summarized one line per call on stderr.
type StdoutSink struct {
	out         *os.File
	inReasoning bool
}

func NewStdoutSink() *StdoutSink {
	return &StdoutSink{out: os.Stdout}
}

func (s *StdoutSink) closeReasoning() {
	if s.inReasoning {
		s.inReasoning = false
		fmt.Fprintln(s.out, faint.Render(" >>>"))
	}
}

func truncDisplay(str string, maxWidth int) string {
	return runewidth.Truncate(str, maxWidth, "...")
}

func (s *StdoutSink) OnEvent(ev *AgentEvent) error {
	switch {
	case ev.LLM != nil:
		switch ev.LLM.Type {
		case providers.EventTextDelta:
			s.closeReasoning()
			fmt.Fprint(s.out, ev.LLM.Text)
		case providers.EventReasoningDelta:
			if !s.inReasoning {
				s.inReasoning = true
				fmt.Fprint(s.out, faint.Render("<<< "))
			}
			fmt.Fprint(s.out, faint.Render(ev.LLM.Text))
		default:
			s.closeReasoning()
		}
	case ev.ToolResult != nil:
		s.closeReasoning()
		fmt.Fprintln(os.Stderr, faint.Render(fmt.Sprintf(
			"Tool %s args: %s", ev.ToolResult.Name, truncDisplay(string(ev.ToolResult.Args), maxArgsDisplay))))
	case ev.ToolError != nil:
		s.closeReasoning()
		fmt.Fprintln(os.Stderr, faint.Render(fmt.Sprintf(
			"Tool %s args: %s failed: %s",
			ev.ToolError.Name,
			truncDisplay(string(ev.ToolError.Args), maxArgsDisplay),
			truncDisplay(ev.ToolError.Message, maxErrDisplay))))
	}
	return nil
}

func (s *StdoutSink) OnEnd() error {
	s.closeReasoning()
	fmt.Fprintln(s.out)
	return nil
}

// PartFileSink buffers assistant text deltas and writes them as a
// part_<id>_assistant.txt when the conversation ends. Nothing is written for
// an empty buffer.
type PartFileSink struct {
	dir *session.Dir
	buf strings.Builder

	// WrittenPath is the part path after OnEnd, empty if nothing was written.
	WrittenPath string
}

func NewPartFileSink(dir *session.Dir) *PartFileSink {
	return &PartFileSink{dir: dir}
}

func (s *PartFileSink) OnEvent(ev *AgentEvent) error {
	if ev.LLM != nil && ev.LLM.Type == providers.EventTextDelta {
		s.buf.WriteString(ev.LLM.Text)
	}
	return nil
}

func (s *PartFileSink) OnEnd() error {
	if strings.TrimSpace(s.buf.String()) == "" {
		return nil
	}
	id := session.NewPartID()
	path := s.dir.Join(session.PartFilename(id, session.RoleAssistant))
	if err := session.WriteFileAtomic(path, []byte(s.buf.String())); err != nil {
		return err
	}
	s.WrittenPath = path
	return nil
}
