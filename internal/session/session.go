// Package session owns the per-session directory: the append-only manifest,
// part and reviewed files, the pending-input mailbox, and the path-safety
// rules that keep manifest-supplied paths inside the session directory.
//
// The manifest is the ordering truth; filesystem mtimes are never consulted.
package session

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/nextlevelbuilder/aish/internal/errs"
)

// Well-known names inside a session directory.
const (
	PIDFile          = "AISH_PID"
	ConsoleFile      = "console.txt"
	MuteFlagFile     = "console.muted"
	ManifestFile     = "manifest.jsonl"
	PendingInputFile = "pending_input.json"
	AgentStateFile   = "agent_state.json"
	SendFromFile     = ".history_send_from"
	ReviewedDir      = "reviewed"
	EvacuatedDir     = "leakscan_evacuated"
)

// Dir is a validated, canonicalized session directory. Created on open if
// absent; never deleted by the system.
type Dir struct {
	path string
}

// Open creates the session directory if needed and canonicalizes it.
func Open(path string) (*Dir, error) {
	if path == "" {
		return nil, errs.New(errs.KindInvalidArgument, "session directory not specified (use -s or AISH_SESSION)")
	}
	st, err := os.Stat(path)
	switch {
	case err == nil && !st.IsDir():
		return nil, errs.Newf(errs.KindIo, "session directory %q exists but is not a directory", path)
	case err != nil && os.IsNotExist(err):
		if err := os.MkdirAll(path, 0o755); err != nil {
			return nil, errs.Wrap(errs.KindIo, fmt.Sprintf("create session directory %q", path), err)
		}
	case err != nil:
		return nil, errs.Wrap(errs.KindIo, fmt.Sprintf("stat session directory %q", path), err)
	}
	resolved, err := filepath.EvalSymlinks(path)
	if err != nil {
		return nil, errs.Wrap(errs.KindIo, fmt.Sprintf("canonicalize session directory %q", path), err)
	}
	abs, err := filepath.Abs(resolved)
	if err != nil {
		return nil, errs.Wrap(errs.KindIo, fmt.Sprintf("absolutize session directory %q", path), err)
	}
	return &Dir{path: abs}, nil
}

func (d *Dir) Path() string { return d.path }

// Join resolves a name relative to the session directory. It does not
// validate the name; manifest-supplied names go through the safepath helpers.
func (d *Dir) Join(name string) string { return filepath.Join(d.path, name) }

// Muted reports whether console logging is suppressed.
func (d *Dir) Muted() bool {
	_, err := os.Stat(d.Join(MuteFlagFile))
	return err == nil
}

// Home is a validated AISH_HOME directory. Unlike the session directory it
// must already exist.
type Home struct {
	path string
}

// OpenHome validates and canonicalizes an existing home directory.
func OpenHome(path string) (*Home, error) {
	if path == "" {
		return nil, errs.New(errs.KindEnv, "home directory not specified")
	}
	st, err := os.Stat(path)
	if err != nil {
		return nil, errs.Wrap(errs.KindIo, fmt.Sprintf("home directory %q does not exist", path), err)
	}
	if !st.IsDir() {
		return nil, errs.Newf(errs.KindIo, "home directory %q exists but is not a directory", path)
	}
	resolved, err := filepath.EvalSymlinks(path)
	if err != nil {
		return nil, errs.Wrap(errs.KindIo, fmt.Sprintf("canonicalize home directory %q", path), err)
	}
	return &Home{path: resolved}, nil
}

func (h *Home) Path() string { return h.path }

func (h *Home) Join(name string) string { return filepath.Join(h.path, name) }
