// Package supervisor runs the user's interactive shell inside a PTY, mirrors
// bytes between the real terminal and the PTY, emulates the screen into a
// plain-text buffer, and turns shell sessions into durable message parts on
// SIGUSR1/SIGUSR2. It is the sole writer of part_*_user.txt and the consumer
// of the pending-input mailbox.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/creack/pty"
	"github.com/fsnotify/fsnotify"
	"golang.org/x/sync/errgroup"
	"golang.org/x/term"

	"github.com/nextlevelbuilder/aish/internal/session"
	aterm "github.com/nextlevelbuilder/aish/internal/term"
)

const readChunk = 32 * 1024

// pendingMaxLen caps the injected line, matching the PendingInput contract.
const pendingMaxLen = 4096

// Config wires a Supervisor.
type Config struct {
	Session      *session.Dir
	Home         *session.Home
	PromptMarker string
	Shell        string // overrides $SHELL when set
}

// Supervisor owns the PTY and the main event loop.
type Supervisor struct {
	cfg Config

	buf      *aterm.Buffer
	detector *aterm.PromptDetector

	// pendingReady is set by the fsnotify watcher when pending_input.json
	// appears; checkAlways falls back to a stat per prompt when no watcher
	// could be established.
	pendingReady atomic.Bool
	checkAlways  bool
}

func New(cfg Config) *Supervisor {
	return &Supervisor{
		cfg:      cfg,
		buf:      aterm.NewBuffer(),
		detector: aterm.NewPromptDetector(cfg.PromptMarker),
	}
}

// shellCommand builds the shell invocation. bash gets --rcfile when
// <home>/config/aishrc exists.
func shellCommand(shell string, home *session.Home) []string {
	if shell == "" {
		shell = os.Getenv("SHELL")
	}
	if shell == "" {
		shell = "/bin/bash"
	}
	if home != nil && filepath.Base(shell) == "bash" {
		rc := home.Join(filepath.Join("config", "aishrc"))
		if st, err := os.Stat(rc); err == nil && st.Mode().IsRegular() {
			return []string{shell, "--rcfile", rc}
		}
	}
	return []string{shell}
}

// Run blocks until the shell exits and returns its exit code (128+N on
// signal death).
func (s *Supervisor) Run(ctx context.Context) (int, error) {
	sess := s.cfg.Session

	pidPath := sess.Join(session.PIDFile)
	if err := os.WriteFile(pidPath, []byte(fmt.Sprintf("%d", os.Getpid())), 0o644); err != nil {
		return 1, fmt.Errorf("write %s: %w", session.PIDFile, err)
	}
	defer os.Remove(pidPath)

	sigCh := make(chan os.Signal, 16)
	signal.Notify(sigCh, syscall.SIGWINCH, syscall.SIGUSR1, syscall.SIGUSR2)
	defer signal.Stop(sigCh)

	argv := shellCommand(s.cfg.Shell, s.cfg.Home)
	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Env = append(os.Environ(),
		"AISH_SESSION="+sess.Path(),
		"AISH_PID="+fmt.Sprintf("%d", os.Getpid()),
	)
	if s.cfg.Home != nil {
		cmd.Env = append(cmd.Env, "AISH_HOME="+s.cfg.Home.Path())
	}

	ptmx, err := pty.Start(cmd)
	if err != nil {
		return 1, fmt.Errorf("start shell in pty: %w", err)
	}
	defer ptmx.Close()

	stdinFd := int(os.Stdin.Fd())
	if term.IsTerminal(stdinFd) {
		_ = pty.InheritSize(os.Stdin, ptmx)
		state, err := term.MakeRaw(stdinFd)
		if err != nil {
			return 1, fmt.Errorf("set raw mode: %w", err)
		}
		defer term.Restore(stdinFd, state)
	}

	s.watchPendingInput(ctx, sess)

	// Reader pumps: each forwards chunks into a channel so the main loop is
	// the only goroutine touching the emulator and session files.
	masterCh := make(chan []byte, 8)
	stdinCh := make(chan []byte, 8)
	exitCh := make(chan int, 1)

	// The master pump and the child reaper both finish once the shell dies;
	// the group is drained on exit. The stdin pump stays outside it — stdin
	// only unblocks when the user's terminal closes.
	var pumps errgroup.Group
	pumps.Go(func() error { return pump(ptmx, masterCh) })
	pumps.Go(func() error {
		exitCh <- waitExitCode(cmd)
		return nil
	})
	// Stdin bytes are forwarded verbatim and never logged.
	go pump(os.Stdin, stdinCh)

	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	ctxDone := ctx.Done()
	stdinOpen := true
	for {
		// Signals are drained before any I/O is serviced.
		s.drainSignals(sigCh, ptmx)

		select {
		case data, ok := <-masterCh:
			if !ok {
				// Shell side closed; collect the exit status.
				code := s.awaitExit(exitCh)
				s.finalFlush()
				drainPumps(&pumps, ptmx)
				return code, nil
			}
			s.onMasterData(ptmx, data)
		case data, ok := <-stdinCh:
			if !ok {
				stdinOpen = false
				stdinCh = nil
				continue
			}
			if stdinOpen {
				if _, err := ptmx.Write(data); err != nil {
					slog.Debug("write to pty master failed", "error", err)
				}
			}
		case code := <-exitCh:
			s.finalFlush()
			drainPumps(&pumps, ptmx)
			return code, nil
		case <-ticker.C:
		case <-ctxDone:
			// The supervisor exits only when the child does; Ctrl+C flows to
			// the shell through the raw-mode PTY.
			ctxDone = nil
		}
	}
}

func pump(r io.Reader, ch chan<- []byte) error {
	defer close(ch)
	for {
		buf := make([]byte, readChunk)
		n, err := r.Read(buf)
		if n > 0 {
			ch <- buf[:n]
		}
		if err != nil {
			// EIO is the normal end-of-PTY condition on Linux.
			if errors.Is(err, io.EOF) || errors.Is(err, syscall.EIO) {
				return nil
			}
			return err
		}
	}
}

func waitExitCode(cmd *exec.Cmd) int {
	err := cmd.Wait()
	if err == nil {
		return 0
	}
	var ee *exec.ExitError
	if errors.As(err, &ee) {
		if ws, ok := ee.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
			return 128 + int(ws.Signal())
		}
		return ee.ExitCode()
	}
	return 1
}

// drainPumps closes the master so its pump unblocks, then waits briefly for
// the group. A pump stuck past the deadline is abandoned; the process is
// about to exit anyway.
func drainPumps(pumps *errgroup.Group, ptmx *os.File) {
	ptmx.Close()
	done := make(chan struct{})
	go func() {
		_ = pumps.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(500 * time.Millisecond):
	}
}

func (s *Supervisor) awaitExit(exitCh <-chan int) int {
	select {
	case code := <-exitCh:
		return code
	case <-time.After(2 * time.Second):
		return 0
	}
}

func (s *Supervisor) drainSignals(sigCh <-chan os.Signal, ptmx *os.File) {
	for {
		select {
		case sig := <-sigCh:
			switch sig {
			case syscall.SIGWINCH:
				if term.IsTerminal(int(os.Stdin.Fd())) {
					if err := pty.InheritSize(os.Stdin, ptmx); err != nil {
						slog.Debug("winsize propagation failed", "error", err)
					}
				}
			case syscall.SIGUSR1, syscall.SIGUSR2:
				s.rollover()
			}
		default:
			return
		}
	}
}

// onMasterData handles one chunk of shell output: mirror to the real
// terminal, feed the emulator, and inject a queued suggestion when the
// prompt marker appears.
func (s *Supervisor) onMasterData(ptmx *os.File, data []byte) {
	os.Stdout.Write(data)
	s.buf.Feed(data)
	if s.detector.Feed(data) && (s.checkAlways || s.pendingReady.Load()) {
		s.injectPending(ptmx)
	}
}

// rollover flushes the emulated screen into a new user message part and the
// console log, then clears the emulator. Suppressed while console.muted
// exists.
func (s *Supervisor) rollover() {
	output := s.buf.Output()
	s.buf.Clear()
	if strings.TrimSpace(output) == "" {
		return
	}
	if s.cfg.Session.Muted() {
		return
	}
	id := session.NewPartID()
	partPath := s.cfg.Session.Join(session.PartFilename(id, session.RoleUser))
	if err := session.WriteFileAtomic(partPath, []byte(output)); err != nil {
		slog.Warn("failed to write user part", "id", id, "error", err)
		return
	}
	s.appendConsole(output)
}

// finalFlush writes any residual screen content to the console log on exit.
func (s *Supervisor) finalFlush() {
	output := s.buf.Output()
	s.buf.Clear()
	if output == "" || s.cfg.Session.Muted() {
		return
	}
	s.appendConsole(output)
}

func (s *Supervisor) appendConsole(output string) {
	f, err := os.OpenFile(s.cfg.Session.Join(session.ConsoleFile), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		slog.Warn("failed to open console log", "error", err)
		return
	}
	defer f.Close()
	if _, err := f.WriteString(output + "\n"); err != nil {
		slog.Warn("failed to append console log", "error", err)
	}
}

// watchPendingInput arms the fsnotify watcher for the pending-input mailbox.
// When no watcher can be established the supervisor stats the file at every
// prompt instead.
func (s *Supervisor) watchPendingInput(ctx context.Context, sess *session.Dir) {
	if _, err := os.Stat(sess.Join(session.PendingInputFile)); err == nil {
		s.pendingReady.Store(true)
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		slog.Debug("fsnotify unavailable, falling back to stat per prompt", "error", err)
		s.checkAlways = true
		return
	}
	if err := watcher.Add(sess.Path()); err != nil {
		watcher.Close()
		slog.Debug("cannot watch session dir, falling back to stat per prompt", "error", err)
		s.checkAlways = true
		return
	}
	go func() {
		defer watcher.Close()
		for {
			select {
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Base(ev.Name) == session.PendingInputFile &&
					ev.Op&(fsnotify.Create|fsnotify.Rename|fsnotify.Write) != 0 {
					s.pendingReady.Store(true)
				}
			case _, ok := <-watcher.Errors:
				if !ok {
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()
}

// injectPending consumes the mailbox and pastes the queued line into the
// live prompt via bracketed paste. Blocked commands are injected commented
// out: visible, inert.
func (s *Supervisor) injectPending(ptmx *os.File) {
	s.pendingReady.Store(false)
	pending, err := session.LoadPendingInput(s.cfg.Session)
	if err != nil {
		slog.Warn("discarding malformed pending input", "error", err)
		_ = session.RemovePendingInput(s.cfg.Session)
		return
	}
	if pending == nil {
		return
	}

	text := buildInjectText(pending)
	if text != "" {
		const ctrlU = "\x15"
		const pasteStart = "\x1b[200~"
		const pasteEnd = "\x1b[201~"
		if _, err := ptmx.WriteString(ctrlU + pasteStart + text + pasteEnd); err != nil {
			slog.Warn("failed to inject pending input", "error", err)
		}
	}
	if err := session.RemovePendingInput(s.cfg.Session); err != nil {
		slog.Warn("failed to remove pending input", "error", err)
	}
}

// buildInjectText sanitizes the queued line for injection. A Blocked policy
// prepends "# " so the command lands in the prompt visible but inert.
func buildInjectText(pending *session.PendingInput) string {
	text := SanitizeInjectLine(pending.Text)
	if pending.Policy.Kind == session.PolicyBlocked {
		text = SanitizeInjectLine("# " + text)
	}
	return text
}

// SanitizeInjectLine reduces s to a single safe line: everything from the
// first newline/CR/ESC on is dropped, other control characters except tab
// are removed, and the result is truncated at 4096 characters with an
// ellipsis marker.
func SanitizeInjectLine(s string) string {
	var b strings.Builder
	count := 0
	for _, ch := range s {
		if ch == '\n' || ch == '\r' || ch == 0x1b {
			break
		}
		if ch < 0x20 && ch != '\t' {
			continue
		}
		b.WriteRune(ch)
		count++
		if count >= pendingMaxLen {
			b.WriteRune('…')
			break
		}
	}
	return b.String()
}
