package session

import (
	"path/filepath"
	"strings"
)

// Safe-path rules for manifest-supplied names. Every read of a
// manifest-referenced path must pass these checks and then
// ResolveUnderSessionDir; a name that fails is skipped, never read.

const (
	reviewedPrefix = "reviewed_"
	summaryPrefix  = "compaction_"
	txtSuffix      = ".txt"
)

func isSafeBasenameComponent(s string) bool {
	if s == "" || s == "." || s == ".." {
		return false
	}
	return !strings.ContainsAny(s, `/\`)
}

// IsSafeReviewedBasename accepts a single path component of the form
// reviewed_*.txt.
func IsSafeReviewedBasename(s string) bool {
	if !isSafeBasenameComponent(s) {
		return false
	}
	return len(s) >= len(reviewedPrefix)+len(txtSuffix) &&
		strings.HasPrefix(s, reviewedPrefix) && strings.HasSuffix(s, txtSuffix)
}

// IsSafeReviewedPath accepts exactly "reviewed/<basename>" with a valid
// reviewed basename. No "..", no backslash, exactly one separator.
func IsSafeReviewedPath(s string) bool {
	if s == "" || strings.Contains(s, "..") || strings.Contains(s, `\`) {
		return false
	}
	parts := strings.Split(s, "/")
	if len(parts) != 2 {
		return false
	}
	return parts[0] == ReviewedDir && IsSafeReviewedBasename(parts[1])
}

// IsSafeSummaryBasename accepts a single path component of the form
// compaction_*.txt.
func IsSafeSummaryBasename(s string) bool {
	if !isSafeBasenameComponent(s) {
		return false
	}
	return len(s) >= len(summaryPrefix)+len(txtSuffix) &&
		strings.HasPrefix(s, summaryPrefix) && strings.HasSuffix(s, txtSuffix)
}

// ResolveUnderSessionDir canonicalizes path and returns it only when it is a
// descendant of the canonical session directory. A path that does not exist
// yields ok=false, not an error — the manifest may reference an evacuated
// part.
func ResolveUnderSessionDir(dir *Dir, path string) (string, bool) {
	base, err := filepath.EvalSymlinks(dir.Path())
	if err != nil {
		return "", false
	}
	resolved, err := filepath.EvalSymlinks(path)
	if err != nil {
		return "", false
	}
	rel, err := filepath.Rel(base, resolved)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	return resolved, true
}
