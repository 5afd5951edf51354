package logging

import (
	"fmt"
	"log/slog"
	"strings"
)

// Level is a slog level. Trace sits below debug and is used for raw VDM
// traffic.
type Level int

const (
	LevelTrace Level = Level(slog.LevelDebug) - 4
	LevelDebug Level = Level(slog.LevelDebug)
	LevelInfo  Level = Level(slog.LevelInfo)
	LevelWarn  Level = Level(slog.LevelWarn)
	LevelError Level = Level(slog.LevelError)
)

var levelNames = []struct {
	name  string
	level Level
}{
	{"trace", LevelTrace},
	{"debug", LevelDebug},
	{"info", LevelInfo},
	{"warn", LevelWarn},
	{"warning", LevelWarn},
	{"error", LevelError},
	{"err", LevelError},
}

// ParseLevel looks up a level name. Case and surrounding blanks are ignored.
func ParseLevel(s string) (Level, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for _, n := range levelNames {
		if n.name == name {
			return n.level, nil
		}
	}
	return LevelInfo, fmt.Errorf("unknown log level: %q", s)
}

func (l Level) ToSlog() slog.Level {
	return slog.Level(l)
}

func (l Level) String() string {
	for _, n := range levelNames {
		if n.level == l {
			return n.name
		}
	}
	return fmt.Sprintf("Level(%d)", int(l))
}
