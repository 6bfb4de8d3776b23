package log

import (
	"log/slog"
	"strings"
)

// Level is a log severity. Its values are slog levels, so the zero Level
// is info.
type Level slog.Level

const (
	LevelDebug = Level(slog.LevelDebug)
	LevelInfo  = Level(slog.LevelInfo)
	LevelWarn  = Level(slog.LevelWarn)
	LevelError = Level(slog.LevelError)
)

func (l Level) String() string {
	return slog.Level(l).String()
}

// ToSlogLevel returns l as a slog.Level
func (l Level) ToSlogLevel() slog.Level {
	return slog.Level(l)
}

// ParseLevel parses a level name case-insensitively. "warning" is accepted
// for warn; anything unrecognized yields info.
func ParseLevel(s string) Level {
	if strings.EqualFold(s, "warning") {
		return LevelWarn
	}
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return LevelInfo
	}
	return Level(l)
}
