package config

import (
	"fmt"
	"log/slog"
	"strings"
)

// LevelTrace sits below [slog.LevelDebug] and is reserved for wire-level
// forensics: full LLM prompts and completions, raw provider payloads.
// The numeric value -8 follows the convention used by Go projects that
// extend slog with a trace level.
//
// Trace output includes customer message content, so enable it only
// while diagnosing a specific conversation.
const LevelTrace = slog.Level(-8)

// ParseLogLevel converts the config file's log_level string to an
// [slog.Level]. Matching is case-insensitive and trims whitespace; an
// empty string means info. "warning" is accepted as an alias for
// "warn". Unrecognized values return an error.
func ParseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "info":
		return slog.LevelInfo, nil
	case "trace":
		return LevelTrace, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q (valid: trace, debug, info, warn, error)", s)
	}
}

// ReplaceLogLevelNames is an [slog.HandlerOptions.ReplaceAttr] function
// that renders [LevelTrace] as "TRACE"; slog does not know about custom
// levels and would print "DEBUG-4". Wired into the handler by
// cmd/caleb's newLogger.
func ReplaceLogLevelNames(groups []string, a slog.Attr) slog.Attr {
	if a.Key == slog.LevelKey {
		level, ok := a.Value.Any().(slog.Level)
		if ok && level == LevelTrace {
			a.Value = slog.StringValue("TRACE")
		}
	}
	return a
}
