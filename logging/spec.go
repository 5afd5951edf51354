package logging

import (
	"fmt"
	"sort"
	"strings"
)

// Spec holds the level of every component. It is written as
// "info,tbt=debug,hwmux=trace": an optional default level, then overrides.
type Spec struct {
	Default    Level
	Components map[string]Level
}

// ParseSpec reads a spec. Everything logs at info when s is empty.
func ParseSpec(s string) (Spec, error) {
	spec := Spec{Default: LevelInfo, Components: map[string]Level{}}

	fields := strings.Split(s, ",")
	if first := strings.TrimSpace(fields[0]); first != "" && !strings.Contains(first, "=") {
		level, err := ParseLevel(first)
		if err != nil {
			return spec, err
		}
		spec.Default = level
		fields = fields[1:]
	}

	for _, field := range fields {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}

		name, value, ok := strings.Cut(field, "=")
		if !ok {
			return spec, fmt.Errorf("default level %q must come first", field)
		}
		name = strings.TrimSpace(name)
		if name == "" {
			return spec, fmt.Errorf("missing component in %q", field)
		}

		level, err := ParseLevel(value)
		if err != nil {
			return spec, fmt.Errorf("component %s: %w", name, err)
		}
		spec.Components[name] = level
	}
	return spec, nil
}

// Level returns the level of component, or the default when it has none.
func (s Spec) Level(component string) Level {
	if l, ok := s.Components[component]; ok {
		return l
	}
	return s.Default
}

func (s Spec) String() string {
	names := make([]string, 0, len(s.Components))
	for name := range s.Components {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteString(s.Default.String())
	for _, name := range names {
		fmt.Fprintf(&b, ",%s=%s", name, s.Components[name])
	}
	return b.String()
}
