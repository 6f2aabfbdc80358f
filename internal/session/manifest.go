package session

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
)

// Role of a message part within a session.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Decision recorded by the leakscan reviewer.
type Decision string

const (
	DecisionAllow Decision = "allow"
	DecisionMask  Decision = "mask"
	DecisionDeny  Decision = "deny"
)

// MessageRecord is one reviewed message in the manifest.
type MessageRecord struct {
	V            int      `json:"v"`
	TS           string   `json:"ts"`
	ID           string   `json:"id"`
	Role         Role     `json:"role"`
	PartPath     string   `json:"part_path"`
	ReviewedPath string   `json:"reviewed_path"`
	Decision     Decision `json:"decision"`
	Bytes        uint64   `json:"bytes"`
	Hash64       string   `json:"hash64"`
}

// CompactionRecord summarizes a contiguous range of older messages.
type CompactionRecord struct {
	V           int    `json:"v"`
	TS          string `json:"ts"`
	FromID      string `json:"from_id"`
	ToID        string `json:"to_id"`
	SummaryPath string `json:"summary_path"`
	Method      string `json:"method"`
	SourceCount int    `json:"source_count"`
}

// Record is one manifest line: either a message or a compaction.
type Record struct {
	Message    *MessageRecord
	Compaction *CompactionRecord
}

// messageLine and compactionLine are the on-disk shapes with the "kind"
// discriminator flattened in. Every field of the grammar is always emitted.
type messageLine struct {
	Kind         string   `json:"kind"`
	V            int      `json:"v"`
	TS           string   `json:"ts"`
	ID           string   `json:"id"`
	Role         Role     `json:"role"`
	PartPath     string   `json:"part_path"`
	ReviewedPath string   `json:"reviewed_path"`
	Decision     Decision `json:"decision"`
	Bytes        uint64   `json:"bytes"`
	Hash64       string   `json:"hash64"`
}

type compactionLine struct {
	Kind        string `json:"kind"`
	V           int    `json:"v"`
	TS          string `json:"ts"`
	FromID      string `json:"from_id"`
	ToID        string `json:"to_id"`
	SummaryPath string `json:"summary_path"`
	Method      string `json:"method"`
	SourceCount int    `json:"source_count"`
}

// manifestLine is the union shape used when parsing.
type manifestLine struct {
	Kind string `json:"kind"`
	V    int    `json:"v"`
	TS   string `json:"ts"`

	ID           string   `json:"id"`
	Role         Role     `json:"role"`
	PartPath     string   `json:"part_path"`
	ReviewedPath string   `json:"reviewed_path"`
	Decision     Decision `json:"decision"`
	Bytes        uint64   `json:"bytes"`
	Hash64       string   `json:"hash64"`

	FromID      string `json:"from_id"`
	ToID        string `json:"to_id"`
	SummaryPath string `json:"summary_path"`
	Method      string `json:"method"`
	SourceCount int    `json:"source_count"`
}

func (r Record) MarshalJSON() ([]byte, error) {
	switch {
	case r.Message != nil:
		m := r.Message
		return json.Marshal(messageLine{
			Kind: "message", V: m.V, TS: m.TS,
			ID: m.ID, Role: m.Role, PartPath: m.PartPath,
			ReviewedPath: m.ReviewedPath, Decision: m.Decision,
			Bytes: m.Bytes, Hash64: m.Hash64,
		})
	case r.Compaction != nil:
		c := r.Compaction
		return json.Marshal(compactionLine{
			Kind: "compaction", V: c.V, TS: c.TS,
			FromID: c.FromID, ToID: c.ToID, SummaryPath: c.SummaryPath,
			Method: c.Method, SourceCount: c.SourceCount,
		})
	default:
		return nil, fmt.Errorf("empty manifest record")
	}
}

func (r *Record) UnmarshalJSON(data []byte) error {
	var line manifestLine
	if err := json.Unmarshal(data, &line); err != nil {
		return err
	}
	switch line.Kind {
	case "message":
		if line.ID == "" || (line.Role != RoleUser && line.Role != RoleAssistant) {
			return fmt.Errorf("malformed message record")
		}
		r.Message = &MessageRecord{
			V: line.V, TS: line.TS, ID: line.ID, Role: line.Role,
			PartPath: line.PartPath, ReviewedPath: line.ReviewedPath,
			Decision: line.Decision, Bytes: line.Bytes, Hash64: line.Hash64,
		}
	case "compaction":
		if line.FromID == "" || line.ToID == "" {
			return fmt.Errorf("malformed compaction record")
		}
		r.Compaction = &CompactionRecord{
			V: line.V, TS: line.TS, FromID: line.FromID, ToID: line.ToID,
			SummaryPath: line.SummaryPath, Method: line.Method,
			SourceCount: line.SourceCount,
		}
	default:
		return fmt.Errorf("unknown manifest record kind %q", line.Kind)
	}
	return nil
}

// NowISO8601 is the timestamp format used in manifest and transcript lines.
func NowISO8601() string {
	return time.Now().UTC().Format(time.RFC3339)
}

// Hash64 returns the hex-encoded xxhash64 of content, as stored in the
// manifest's hash64 field.
func Hash64(content []byte) string {
	var buf [8]byte
	sum := xxhash.Sum64(content)
	for i := 7; i >= 0; i-- {
		buf[i] = byte(sum)
		sum >>= 8
	}
	return hex.EncodeToString(buf[:])
}

// Append serializes rec and appends it to manifest.jsonl as a single write
// (one full line including the trailing newline).
func Append(dir *Dir, rec Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal manifest record: %w", err)
	}
	f, err := os.OpenFile(dir.Join(ManifestFile), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open manifest: %w", err)
	}
	defer f.Close()
	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("append manifest record: %w", err)
	}
	return nil
}

// LoadAll reads the whole manifest, parsing line by line. Malformed lines are
// skipped with a warning; a trailing partial line (crash during append) is
// discarded the same way. A missing manifest is an empty history, not an error.
func LoadAll(dir *Dir) ([]Record, error) {
	data, err := os.ReadFile(dir.Join(ManifestFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	var records []Record
	for i, line := range strings.Split(string(data), "\n") {
		line = strings.TrimRight(line, "\r")
		if line == "" {
			continue
		}
		var rec Record
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			slog.Warn("skipping malformed manifest line", "line", i+1, "error", err)
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}

// TailMessages returns the last n Message records. Compaction records are not
// counted toward n but callers keep the full slice for context lookup.
func TailMessages(records []Record, n int) []Record {
	if n <= 0 {
		return nil
	}
	var msgs []Record
	for _, r := range records {
		if r.Message != nil {
			msgs = append(msgs, r)
		}
	}
	if len(msgs) > n {
		msgs = msgs[len(msgs)-n:]
	}
	return msgs
}

// LoadSendFromIndex reads .history_send_from as a non-negative integer
// record offset. Absent or unparsable means 0; the result is clamped to
// recordCount.
func LoadSendFromIndex(dir *Dir, recordCount int) int {
	data, err := os.ReadFile(dir.Join(SendFromFile))
	if err != nil {
		return 0
	}
	n, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || n < 0 {
		return 0
	}
	if n > recordCount {
		return recordCount
	}
	return n
}

// LatestCompactionBefore finds the most recent Compaction whose to_id sorts
// strictly before id. PartIds order lexicographically, so plain string
// comparison is the time comparison.
func LatestCompactionBefore(records []Record, id string) *CompactionRecord {
	var latest *CompactionRecord
	for _, r := range records {
		if r.Compaction != nil && r.Compaction.ToID < id {
			latest = r.Compaction
		}
	}
	return latest
}
