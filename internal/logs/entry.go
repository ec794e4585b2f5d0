package logs

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"magpie/internal/logging"
)

// Entry is one decoded line of the daemon's JSON log.
type Entry struct {
	Time      time.Time
	Level     string
	Message   string
	Component string
	PageID    string
	PromptID  string
	Fields    map[string]any
}

// ParseEntry decodes a JSON log line. Lines that are not JSON objects are
// returned as plain messages with ok false.
func ParseEntry(line string) (Entry, bool) {
	var raw map[string]any
	if err := json.Unmarshal([]byte(line), &raw); err != nil {
		return Entry{Message: line}, false
	}
	e := Entry{Fields: make(map[string]any)}
	for key, value := range raw {
		text, _ := value.(string)
		switch key {
		case "ts":
			e.Time, _ = time.Parse(time.RFC3339, text)
		case "level":
			e.Level = strings.ToLower(text)
		case "msg":
			e.Message = text
		case logging.FieldComponent:
			e.Component = text
		case logging.FieldPageID:
			e.PageID = text
		case logging.FieldPromptID:
			e.PromptID = text
		default:
			e.Fields[key] = value
		}
	}
	return e, true
}

// Filter selects entries. Empty fields match everything; Level is a minimum.
type Filter struct {
	Level     string
	Component string
	PageID    string
	PromptID  string
	Search    string
}

var levelRank = map[string]int{"debug": 0, "info": 1, "warn": 2, "error": 3}

// Match reports whether e passes the filter.
func (f Filter) Match(e Entry) bool {
	if floor, ok := levelRank[strings.ToLower(strings.TrimSpace(f.Level))]; ok {
		if rank, known := levelRank[e.Level]; known && rank < floor {
			return false
		}
	}
	if f.Component != "" && !strings.EqualFold(e.Component, f.Component) {
		return false
	}
	if f.PageID != "" && e.PageID != f.PageID {
		return false
	}
	if f.PromptID != "" && e.PromptID != f.PromptID {
		return false
	}
	if f.Search != "" && !strings.Contains(strings.ToLower(e.Message), strings.ToLower(f.Search)) {
		return false
	}
	return true
}

// Format renders e as a single console line with fields sorted by key.
func (e Entry) Format() string {
	var b strings.Builder
	if !e.Time.IsZero() {
		b.WriteString(e.Time.Local().Format("2006-01-02 15:04:05 "))
	}
	if e.Level != "" {
		fmt.Fprintf(&b, "%-5s ", strings.ToUpper(e.Level))
	}
	if e.Component != "" {
		fmt.Fprintf(&b, "[%s] ", e.Component)
	}
	b.WriteString(e.Message)
	if e.PageID != "" {
		fmt.Fprintf(&b, " %s=%s", logging.FieldPageID, e.PageID)
	}
	if e.PromptID != "" {
		fmt.Fprintf(&b, " %s=%s", logging.FieldPromptID, e.PromptID)
	}
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%v", k, e.Fields[k])
	}
	return b.String()
}
