// Package logging sets up the slog logger of altmoded. Every engine
// package scopes its logger to a component (altmode, dp, tbt, pdtask,
// hostcmd, hwmux) and a spec such as "warn,tbt=debug" picks the level of
// each one.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// EnvVar names the environment variable holding a spec.
const EnvVar = "PDALTMODE_LOG"

type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

// ParseFormat reads the [logging] format key. Empty means text.
func ParseFormat(s string) (Format, error) {
	f := Format(strings.ToLower(strings.TrimSpace(s)))
	switch f {
	case "":
		return FormatText, nil
	case FormatText, FormatJSON:
		return f, nil
	}
	return FormatText, fmt.Errorf("unknown log format: %q", s)
}

type Options struct {
	// Specs from the --log flag, EnvVar and the config file. The flag
	// overrides the environment, which overrides the file.
	CLISpec    string
	EnvSpec    string
	ConfigSpec string

	Format Format
	Output io.Writer // os.Stderr when nil
}

func (o Options) spec() string {
	for _, s := range []string{o.CLISpec, o.EnvSpec} {
		if s != "" {
			return s
		}
	}
	return o.ConfigSpec
}

func New(opts Options) (*slog.Logger, error) {
	spec, err := ParseSpec(opts.spec())
	if err != nil {
		return nil, fmt.Errorf("invalid log spec: %w", err)
	}

	out := opts.Output
	if out == nil {
		out = os.Stderr
	}

	// Filtering happens in NewHandler; the inner handler passes everything.
	ho := &slog.HandlerOptions{Level: LevelTrace.ToSlog()}
	var h slog.Handler = slog.NewTextHandler(out, ho)
	if opts.Format == FormatJSON {
		h = slog.NewJSONHandler(out, ho)
	}
	return slog.New(NewHandler(h, spec)), nil
}

// Printf turns logger into the LogFunc of the hwmux backends. Lines are
// logged at debug and not formatted when that level is off.
func Printf(logger *slog.Logger) func(format string, params ...interface{}) {
	return func(format string, params ...interface{}) {
		if logger.Enabled(context.Background(), slog.LevelDebug) {
			logger.Debug(fmt.Sprintf(format, params...))
		}
	}
}
