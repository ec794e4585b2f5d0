package logging

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

// maxValueLen bounds string attributes; prompts and backend error bodies can
// be long, and image payloads arrive as data URLs.
const maxValueLen = 512

const redacted = "[redacted]"

// secretKeySuffixes match attribute keys whose values never reach a log.
var secretKeySuffixes = []string{"api_key", "apikey", "token", "password", "authorization", "secret"}

func isSecretKey(key string) bool {
	key = strings.ToLower(key)
	for _, suffix := range secretKeySuffixes {
		if strings.HasSuffix(key, suffix) {
			return true
		}
	}
	return false
}

// scrubValue masks secrets and shortens data URLs and oversized strings.
func scrubValue(key string, v slog.Value) slog.Value {
	v = v.Resolve()
	if isSecretKey(key) {
		if v.Kind() == slog.KindString && v.String() == "" {
			return v
		}
		return slog.StringValue(redacted)
	}
	if v.Kind() != slog.KindString {
		return v
	}
	s := v.String()
	if strings.HasPrefix(s, "data:") {
		if comma := strings.IndexByte(s, ','); comma > 0 {
			return slog.StringValue(fmt.Sprintf("%s,<%d bytes>", s[:comma], len(s)-comma-1))
		}
	}
	if len(s) > maxValueLen {
		cut := maxValueLen
		for cut > 0 && !utf8.RuneStart(s[cut]) {
			cut--
		}
		return slog.StringValue(s[:cut] + "…(" + strconv.Itoa(len(s)) + " bytes)")
	}
	return v
}

func attrString(v slog.Value) string {
	v = v.Resolve()
	switch v.Kind() {
	case slog.KindString:
		return v.String()
	case slog.KindAny:
		if err, ok := v.Any().(error); ok {
			return err.Error()
		}
		return fmt.Sprint(v.Any())
	default:
		return formatValue(v)
	}
}

func formatValue(v slog.Value) string {
	v = v.Resolve()
	switch v.Kind() {
	case slog.KindBool:
		return strconv.FormatBool(v.Bool())
	case slog.KindInt64:
		return strconv.FormatInt(v.Int64(), 10)
	case slog.KindUint64:
		return strconv.FormatUint(v.Uint64(), 10)
	case slog.KindFloat64:
		return strconv.FormatFloat(v.Float64(), 'f', -1, 64)
	case slog.KindDuration:
		return v.Duration().String()
	case slog.KindTime:
		return v.Time().UTC().Format(time.RFC3339)
	case slog.KindAny:
		if err, ok := v.Any().(error); ok {
			return quoteIfNeeded(err.Error())
		}
		return quoteIfNeeded(fmt.Sprint(v.Any()))
	default:
		return quoteIfNeeded(v.String())
	}
}

func quoteIfNeeded(s string) string {
	if s == "" {
		return `""`
	}
	for _, r := range s {
		if r <= ' ' || r == '=' || r == '"' {
			return strconv.Quote(s)
		}
	}
	return s
}
