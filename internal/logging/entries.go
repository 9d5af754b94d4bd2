package logging

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// Entry is one parsed line of the diagnostic log.
type Entry struct {
	Time       time.Time      `json:"time"`
	Level      string         `json:"level"`
	Message    string         `json:"msg"`
	Transcript string         `json:"transcript,omitempty"`
	Stream     string         `json:"stream,omitempty"`
	Phase      string         `json:"phase,omitempty"`
	Attrs      map[string]any `json:"attrs,omitempty"`
}

// Filter selects entries. Zero-valued fields match everything and set
// fields are combined with AND.
type Filter struct {
	// MinLevel keeps entries at or above this level.
	MinLevel   string
	Since      time.Time
	Transcript string
	Stream     string
	Phase      string
	Contains   string
}

var levelRank = map[string]int{
	LevelDebug: 0,
	LevelInfo:  1,
	LevelWarn:  2,
	LevelError: 3,
}

// known lists the keys lifted out of Attrs into Entry fields.
var known = map[string]bool{
	"time": true, "level": true, "msg": true,
	KeyTranscript: true, KeyStream: true, KeyPhase: true,
}

// ReadEntries parses {stateDir}/debug.log, oldest first. Lines that are not
// valid JSON are skipped.
func ReadEntries(stateDir string) ([]Entry, error) {
	path := filepath.Join(stateDir, LogFileName)
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("no diagnostic log at %s: %w", path, err)
		}
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	defer func() { _ = f.Close() }()

	return ParseEntries(f)
}

// ParseEntries reads newline-delimited JSON log records from r.
func ParseEntries(r io.Reader) ([]Entry, error) {
	const maxLine = 1024 * 1024

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLine)

	var entries []Entry
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		entry, err := parseEntry(line)
		if err != nil {
			continue
		}
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading log file: %w", err)
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Time.Before(entries[j].Time)
	})
	return entries, nil
}

func parseEntry(line string) (Entry, error) {
	var raw map[string]any
	if err := json.Unmarshal([]byte(line), &raw); err != nil {
		return Entry{}, fmt.Errorf("invalid JSON: %w", err)
	}

	str := func(key string) string {
		s, _ := raw[key].(string)
		return s
	}

	e := Entry{
		Level:      str("level"),
		Message:    str("msg"),
		Transcript: str(KeyTranscript),
		Stream:     str(KeyStream),
		Phase:      str(KeyPhase),
	}
	if t, err := time.Parse(time.RFC3339Nano, str("time")); err == nil {
		e.Time = t
	}
	for k, v := range raw {
		if known[k] {
			continue
		}
		if e.Attrs == nil {
			e.Attrs = make(map[string]any)
		}
		e.Attrs[k] = v
	}
	return e, nil
}

// Match reports whether e satisfies every set field of f.
func (f Filter) Match(e Entry) bool {
	if f.MinLevel != "" {
		want, ok1 := levelRank[strings.ToUpper(f.MinLevel)]
		got, ok2 := levelRank[e.Level]
		if ok1 && ok2 && got < want {
			return false
		}
	}
	if !f.Since.IsZero() && e.Time.Before(f.Since) {
		return false
	}
	if f.Transcript != "" && e.Transcript != f.Transcript {
		return false
	}
	if f.Stream != "" && e.Stream != f.Stream {
		return false
	}
	if f.Phase != "" && e.Phase != f.Phase {
		return false
	}
	if f.Contains != "" && !strings.Contains(e.Message, f.Contains) {
		return false
	}
	return true
}

// Select returns the entries matching f, preserving order.
func Select(entries []Entry, f Filter) []Entry {
	if f == (Filter{}) {
		return entries
	}
	var out []Entry
	for _, e := range entries {
		if f.Match(e) {
			out = append(out, e)
		}
	}
	return out
}

// Formats accepted by WriteEntries.
const (
	FormatText = "text"
	FormatJSON = "json"
	FormatCSV  = "csv"
)

// WriteEntries renders entries to w as text, json, or csv.
func WriteEntries(w io.Writer, entries []Entry, format string) error {
	switch strings.ToLower(format) {
	case FormatText, "":
		return writeText(w, entries)
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(entries)
	case FormatCSV:
		return writeCSV(w, entries)
	default:
		return fmt.Errorf("unsupported format %q (supported: text, json, csv)", format)
	}
}

func writeText(w io.Writer, entries []Entry) error {
	for _, e := range entries {
		var b strings.Builder
		fmt.Fprintf(&b, "[%s] %-5s %s", e.Time.Format("2006-01-02 15:04:05.000"), e.Level, e.Message)

		var ctx []string
		if e.Stream != "" {
			ctx = append(ctx, "stream="+e.Stream)
		}
		if e.Phase != "" {
			ctx = append(ctx, "phase="+e.Phase)
		}
		if e.Transcript != "" {
			ctx = append(ctx, "transcript="+e.Transcript)
		}
		if len(ctx) > 0 {
			fmt.Fprintf(&b, " (%s)", strings.Join(ctx, ", "))
		}
		if len(e.Attrs) > 0 {
			attrs, _ := json.Marshal(e.Attrs)
			b.WriteByte(' ')
			b.Write(attrs)
		}
		b.WriteByte('\n')

		if _, err := io.WriteString(w, b.String()); err != nil {
			return fmt.Errorf("failed to write entry: %w", err)
		}
	}
	return nil
}

func writeCSV(w io.Writer, entries []Entry) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"time", "level", "msg", "transcript", "stream", "phase", "attrs"}); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}
	for _, e := range entries {
		var attrs string
		if len(e.Attrs) > 0 {
			if b, err := json.Marshal(e.Attrs); err == nil {
				attrs = string(b)
			}
		}
		record := []string{
			e.Time.Format(time.RFC3339Nano),
			e.Level,
			e.Message,
			e.Transcript,
			e.Stream,
			e.Phase,
			attrs,
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("failed to write CSV record: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}
