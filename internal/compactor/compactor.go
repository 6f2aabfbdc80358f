// Package compactor folds older reviewed messages into deterministic
// summaries: first line per message, truncated, one bullet each. The
// summary file plus a Compaction manifest record replace the full text in
// the history view.
package compactor

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/nextlevelbuilder/aish/internal/session"
)

const (
	defaultTriggerMessages = 200
	defaultChunkMessages   = 100
	maxBulletChars         = 320
)

// Options gate and tune compaction. FromEnv reads the AISH_COMPACTION_*
// variables.
type Options struct {
	Enabled bool
	Trigger int
	Chunk   int
}

func FromEnv() Options {
	opts := Options{
		Enabled: os.Getenv("AISH_COMPACTION_ENABLE") == "1",
		Trigger: defaultTriggerMessages,
		Chunk:   defaultChunkMessages,
	}
	if v, err := strconv.Atoi(os.Getenv("AISH_COMPACTION_TRIGGER_MESSAGES")); err == nil && v > 0 {
		opts.Trigger = v
	}
	if v, err := strconv.Atoi(os.Getenv("AISH_COMPACTION_CHUNK_MESSAGES")); err == nil && v > 0 {
		opts.Chunk = v
	}
	return opts
}

// MaybeCompact appends at most one Compaction record: when the number of
// messages after the last compaction's to_id exceeds the trigger, the next
// chunk of them is summarized. Running it again without new messages
// appends nothing.
func MaybeCompact(dir *session.Dir, records []session.Record, opts Options) error {
	if !opts.Enabled {
		return nil
	}

	var messages []*session.MessageRecord
	for _, r := range records {
		if r.Message != nil {
			messages = append(messages, r.Message)
		}
	}
	if len(messages) <= opts.Trigger {
		return nil
	}

	lastToID := ""
	for _, r := range records {
		if r.Compaction != nil {
			lastToID = r.Compaction.ToID
		}
	}

	var candidates []*session.MessageRecord
	for _, m := range messages {
		if lastToID == "" || m.ID > lastToID {
			candidates = append(candidates, m)
		}
	}
	if len(candidates) <= opts.Trigger {
		return nil
	}

	selected := candidates
	if len(selected) > opts.Chunk {
		selected = selected[:opts.Chunk]
	}
	fromID := selected[0].ID
	toID := selected[len(selected)-1].ID

	summaryName := fmt.Sprintf("compaction_%s_%s.txt", fromID, toID)
	summary := buildSummary(dir, selected)
	if err := os.WriteFile(dir.Join(summaryName), []byte(summary), 0o644); err != nil {
		return fmt.Errorf("write compaction summary: %w", err)
	}

	return session.Append(dir, session.Record{Compaction: &session.CompactionRecord{
		V:           1,
		TS:          session.NowISO8601(),
		FromID:      fromID,
		ToID:        toID,
		SummaryPath: summaryName,
		Method:      "deterministic",
		SourceCount: len(selected),
	}})
}

func buildSummary(dir *session.Dir, selected []*session.MessageRecord) string {
	lines := []string{"# Compaction summary (deterministic)"}
	for _, msg := range selected {
		body := "[unreadable reviewed content]"
		if session.IsSafeReviewedPath(msg.ReviewedPath) {
			if safe, ok := session.ResolveUnderSessionDir(dir, dir.Join(msg.ReviewedPath)); ok {
				if data, err := os.ReadFile(safe); err == nil {
					body = string(data)
				}
			}
		}
		firstLine := strings.TrimSpace(strings.SplitN(body, "\n", 2)[0])
		lines = append(lines, fmt.Sprintf("- [%s][%s] %s", msg.ID, msg.Role, truncateChars(firstLine, maxBulletChars)))
	}
	lines = append(lines, "", "(use history_get/search to retrieve full content)")
	return strings.Join(lines, "\n")
}

func truncateChars(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "..."
}
