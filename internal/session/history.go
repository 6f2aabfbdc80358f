package session

import (
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// HistoryMessage is one reviewed turn as handed to the LLM.
type HistoryMessage struct {
	Role    Role
	Content string
}

// BuildHistory loads the LLM-visible history view: at most loadMax reviewed
// messages from the manifest tail, with the most recent applicable compaction
// summary prepended as a synthetic assistant message. When no manifest exists
// it falls back to scanning reviewed/ directly (ids sort as time).
func BuildHistory(dir *Dir, loadMax int) ([]HistoryMessage, error) {
	if st, err := os.Stat(dir.Path()); err != nil || !st.IsDir() {
		return nil, nil
	}
	if _, err := os.Stat(dir.Join(ManifestFile)); err == nil {
		return buildManifestHistory(dir, loadMax)
	}
	return buildReviewedScanHistory(dir, loadMax)
}

func buildManifestHistory(dir *Dir, loadMax int) ([]HistoryMessage, error) {
	records, err := LoadAll(dir)
	if err != nil {
		return nil, err
	}
	from := LoadSendFromIndex(dir, len(records))
	tail := TailMessages(records[from:], loadMax)

	var history []HistoryMessage
	if len(tail) > 0 {
		oldestID := tail[0].Message.ID
		if comp := LatestCompactionBefore(records, oldestID); comp != nil {
			if IsSafeSummaryBasename(comp.SummaryPath) {
				if safe, ok := ResolveUnderSessionDir(dir, dir.Join(comp.SummaryPath)); ok {
					if data, err := os.ReadFile(safe); err == nil {
						history = append(history, HistoryMessage{Role: RoleAssistant, Content: string(data)})
					}
				}
			}
		}
	}

	for _, rec := range tail {
		msg := rec.Message
		if msg.Decision == DecisionDeny {
			continue
		}
		if !IsSafeReviewedPath(msg.ReviewedPath) {
			slog.Warn("skipping unsafe reviewed path in manifest", "id", msg.ID, "path", msg.ReviewedPath)
			continue
		}
		safe, ok := ResolveUnderSessionDir(dir, dir.Join(msg.ReviewedPath))
		if !ok {
			slog.Warn("reviewed file missing or outside session dir", "id", msg.ID, "path", msg.ReviewedPath)
			continue
		}
		data, err := os.ReadFile(safe)
		if err != nil {
			slog.Warn("failed to read reviewed file", "path", safe, "error", err)
			continue
		}
		history = append(history, HistoryMessage{Role: msg.Role, Content: string(data)})
	}
	return history, nil
}

// buildReviewedScanHistory is the fallback when no manifest exists yet:
// reviewed_* files in the reviewed/ subdirectory, sorted by name.
func buildReviewedScanHistory(dir *Dir, loadMax int) ([]HistoryMessage, error) {
	reviewedDir := dir.Join(ReviewedDir)
	entries, err := os.ReadDir(reviewedDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var names []string
	for _, e := range entries {
		name := e.Name()
		if e.Type().IsRegular() && strings.HasPrefix(name, "reviewed_") &&
			(strings.HasSuffix(name, "_user.txt") || strings.HasSuffix(name, "_assistant.txt")) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	if loadMax > 0 && len(names) > loadMax {
		names = names[len(names)-loadMax:]
	}

	var history []HistoryMessage
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(reviewedDir, name))
		if err != nil {
			slog.Warn("failed to read reviewed file", "name", name, "error", err)
			continue
		}
		role := RoleUser
		if strings.HasSuffix(name, "_assistant.txt") {
			role = RoleAssistant
		}
		history = append(history, HistoryMessage{Role: role, Content: string(data)})
	}
	return history, nil
}
