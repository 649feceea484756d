package config

import (
	"fmt"
	"log/slog"
	"strings"
)

// LevelTrace sits one step below [slog.LevelDebug]. The model adapters
// log their full request and response JSON at this level, so setting
// log_level to "trace" is the one knob for wire forensics when a
// provider misbehaves.
const LevelTrace = slog.Level(-8)

// ParseLogLevel maps the config file's log_level string to a level.
// "trace" selects [LevelTrace]; the empty string means info. Unknown
// values are an error rather than a silent default, since a typo here
// would otherwise hide the logs someone asked for.
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

// ReplaceLogLevelNames goes in [slog.HandlerOptions.ReplaceAttr] so
// [LevelTrace] prints as "TRACE" instead of slog's "DEBUG-4" spelling
// for levels it does not know.
func ReplaceLogLevelNames(groups []string, a slog.Attr) slog.Attr {
	if a.Key == slog.LevelKey {
		level, ok := a.Value.Any().(slog.Level)
		if ok && level == LevelTrace {
			a.Value = slog.StringValue("TRACE")
		}
	}
	return a
}
