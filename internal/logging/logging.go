// Package logging builds the process-wide *slog.Logger from
// config.Logging: a colorized terminal handler and/or a syslog handler,
// either of which can be independently enabled (spec.md §6 ambient
// concern, grounded on the teacher's config.Logging outlet model in
// config/config.go).
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"log/syslog"
	"os"

	"github.com/fatih/color"

	"github.com/andoriyu/gazpacho/internal/config"
)

// New builds a fan-out *slog.Logger from cfg. At least one outlet is
// always active: if both Terminal and Syslog are disabled, terminal
// logging at INFO is forced on so the daemon is never silently mute.
func New(cfg config.Logging) (*slog.Logger, error) {
	var handlers []slog.Handler

	if cfg.Terminal.Enabled {
		level, err := parseLevel(cfg.Terminal.Level)
		if err != nil {
			return nil, fmt.Errorf("terminal log level: %w", err)
		}
		handlers = append(handlers, newTerminalHandler(os.Stderr, level))
	}

	if cfg.Syslog.Enabled {
		level, err := parseLevel(cfg.Syslog.Level)
		if err != nil {
			return nil, fmt.Errorf("syslog log level: %w", err)
		}
		w, err := syslog.Dial("", cfg.Syslog.Socket, syslog.LOG_DAEMON|syslog.LOG_INFO, "gazpacho")
		if err != nil {
			return nil, fmt.Errorf("dial syslog at %q: %w", cfg.Syslog.Socket, err)
		}
		handlers = append(handlers, slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
	}

	if len(handlers) == 0 {
		handlers = append(handlers, newTerminalHandler(os.Stderr, slog.LevelInfo))
	}

	return slog.New(fanoutHandler{handlers: handlers}), nil
}

func parseLevel(s string) (slog.Level, error) {
	switch s {
	case "TRACE", "DEBUG":
		return slog.LevelDebug, nil
	case "INFO":
		return slog.LevelInfo, nil
	case "WARN":
		return slog.LevelWarn, nil
	case "ERROR":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unknown log level %q", s)
	}
}

// newTerminalHandler wraps slog.NewTextHandler, colorizing the level
// field the way the teacher's CLI output colorizes status text.
func newTerminalHandler(w io.Writer, level slog.Level) slog.Handler {
	return slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key != slog.LevelKey {
				return a
			}
			lvl, _ := a.Value.Any().(slog.Level)
			a.Value = slog.StringValue(colorizeLevel(lvl))
			return a
		},
	})
}

func colorizeLevel(lvl slog.Level) string {
	switch {
	case lvl >= slog.LevelError:
		return color.RedString("ERROR")
	case lvl >= slog.LevelWarn:
		return color.YellowString("WARN")
	case lvl >= slog.LevelInfo:
		return color.CyanString("INFO")
	default:
		return color.New(color.Faint).Sprint("DEBUG")
	}
}
