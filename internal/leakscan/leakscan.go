// Package leakscan reviews raw message parts for secrets before they become
// LLM-visible content. Each part is piped through an external scanner; a
// miss is copied to reviewed/ unchanged, a hit asks the user to allow, mask,
// or deny. Originals are evacuated for forensics either way, and every
// decision is appended to the manifest.
package leakscan

import (
	"bufio"
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/nextlevelbuilder/aish/internal/errs"
	"github.com/nextlevelbuilder/aish/internal/session"
)

// InterruptChecker lets the decision prompt abort on Ctrl+C while a blocking
// stdin read is parked on its own goroutine.
type InterruptChecker interface {
	Interrupted() bool
}

// Reviewer runs the review pipeline over the pending parts of a session.
type Reviewer struct {
	Binary         string // scanner executable, default "leakscan"
	RulesPath      string
	NonInteractive bool
	Interrupt      InterruptChecker

	// prompt is swapped in tests; nil means the interactive stdin prompt.
	prompt func(verbose string) (session.Decision, error)
}

func NewReviewer(binary, rulesPath string, nonInteractive bool, interrupt InterruptChecker) *Reviewer {
	if binary == "" {
		binary = "leakscan"
	}
	return &Reviewer{
		Binary:         binary,
		RulesPath:      rulesPath,
		NonInteractive: nonInteractive,
		Interrupt:      interrupt,
	}
}

// Prepare reviews every part_* in the session directory in sorted order:
// scan, decide, write reviewed, evacuate, and append the manifest record.
func (r *Reviewer) Prepare(dir *session.Dir) error {
	entries, err := os.ReadDir(dir.Path())
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read session dir: %w", err)
	}

	var parts []string
	for _, e := range entries {
		if e.Type().IsRegular() && strings.HasPrefix(e.Name(), "part_") && strings.HasSuffix(e.Name(), ".txt") {
			parts = append(parts, e.Name())
		}
	}
	if len(parts) == 0 {
		return nil
	}
	sort.Strings(parts)

	for _, sub := range []string{session.ReviewedDir, session.EvacuatedDir} {
		if err := os.MkdirAll(dir.Join(sub), 0o755); err != nil {
			return fmt.Errorf("create %s: %w", sub, err)
		}
	}

	for _, name := range parts {
		if err := r.processPart(dir, name); err != nil {
			return err
		}
	}
	return nil
}

func (r *Reviewer) processPart(dir *session.Dir, name string) error {
	id, role, ok := session.ParsePartFilename(name)
	if !ok {
		slog.Warn("skipping unparsable part filename", "name", name)
		return nil
	}
	partPath := dir.Join(name)
	content, err := os.ReadFile(partPath)
	if err != nil {
		slog.Warn("failed to read part", "name", name, "error", err)
		return nil
	}

	hit, verbose, scanErr := r.scan(content)
	if scanErr != nil {
		// Scanner failure counts as a hit with empty output: ask the user,
		// or deny outright when non-interactive.
		slog.Warn("leakscan scanner failed", "error", scanErr)
		hit, verbose = true, ""
	}

	decision := session.DecisionAllow
	reviewed := content
	if hit {
		choice, err := r.decide(verbose)
		if err != nil {
			return err
		}
		decision = choice
		switch choice {
		case session.DecisionMask:
			masked, err := r.mask(content)
			if err != nil {
				return fmt.Errorf("leakscan --mask: %w", err)
			}
			reviewed = masked
		case session.DecisionDeny:
			reviewed = nil
		}
	}

	reviewedName := session.ReviewedFilename(id, role)
	reviewedRel := session.ReviewedDir + "/" + reviewedName
	if decision != session.DecisionDeny {
		if err := os.WriteFile(dir.Join(reviewedRel), reviewed, 0o644); err != nil {
			return fmt.Errorf("write reviewed file: %w", err)
		}
	}
	if err := os.Rename(partPath, filepath.Join(dir.Join(session.EvacuatedDir), name)); err != nil {
		return fmt.Errorf("evacuate part %s: %w", name, err)
	}

	recorded := reviewed
	if recorded == nil {
		recorded = []byte{}
	}
	return session.Append(dir, session.Record{Message: &session.MessageRecord{
		V:            1,
		TS:           session.NowISO8601(),
		ID:           id,
		Role:         role,
		PartPath:     name,
		ReviewedPath: reviewedRel,
		Decision:     decision,
		Bytes:        uint64(len(recorded)),
		Hash64:       session.Hash64(recorded),
	}})
}

// scan pipes content through the scanner with -v. Exit success plus
// non-empty stdout is a hit; the stdout is the verbose explanation. The
// scanner always exits 0 while actually scanning (hit or miss is conveyed
// by stdout alone), so any run error — spawn failure or nonzero exit — is
// a scanner failure for the caller to treat as a hit with empty output.
func (r *Reviewer) scan(content []byte) (bool, string, error) {
	cmd := exec.Command(r.Binary, "-v", r.RulesPath)
	cmd.Stdin = bytes.NewReader(content)
	var stdout bytes.Buffer
	cmd.Stdout = &stdout
	if err := cmd.Run(); err != nil {
		return false, "", err
	}
	out := stdout.String()
	return strings.TrimSpace(out) != "", out, nil
}

// mask re-runs the scanner with --mask and returns its stdout as the
// reviewed content.
func (r *Reviewer) mask(content []byte) ([]byte, error) {
	cmd := exec.Command(r.Binary, "--mask", r.RulesPath)
	cmd.Stdin = bytes.NewReader(content)
	var stdout bytes.Buffer
	cmd.Stdout = &stdout
	if err := cmd.Run(); err != nil {
		return nil, err
	}
	return stdout.Bytes(), nil
}

// decide resolves a hit: Deny when non-interactive, otherwise prompt the
// user with the scanner's verbose output.
func (r *Reviewer) decide(verbose string) (session.Decision, error) {
	if r.NonInteractive {
		return session.DecisionDeny, nil
	}
	if r.prompt != nil {
		return r.prompt(verbose)
	}
	return r.promptUser(verbose)
}

// promptUser reads one line from stdin on a helper goroutine while the main
// loop polls the interrupt flag every 100 ms. y/yes/empty allows, m/mask
// masks, anything else denies.
func (r *Reviewer) promptUser(verbose string) (session.Decision, error) {
	fmt.Fprintln(os.Stderr, "SECURITY: Sensitive content matched")
	fmt.Fprintln(os.Stderr, "----------------------------------------")
	fmt.Fprint(os.Stderr, verbose)
	fmt.Fprintln(os.Stderr, "----------------------------------------")
	fmt.Fprint(os.Stderr, "Send to LLM? [y]es / [n]o (deny) / [m]ask: ")

	ch := make(chan session.Decision, 1)
	go func() {
		reader := bufio.NewReader(os.Stdin)
		line, err := reader.ReadString('\n')
		if err != nil {
			ch <- session.DecisionDeny
			return
		}
		switch strings.ToLower(strings.TrimSpace(line)) {
		case "y", "yes", "":
			ch <- session.DecisionAllow
		case "m", "mask":
			ch <- session.DecisionMask
		default:
			ch <- session.DecisionDeny
		}
	}()

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case decision := <-ch:
			return decision, nil
		case <-ticker.C:
			if r.Interrupt != nil && r.Interrupt.Interrupted() {
				return session.DecisionDeny, errs.New(errs.KindSystem,
					"interrupted by user (Ctrl+C) during sensitive check prompt")
			}
		}
	}
}
