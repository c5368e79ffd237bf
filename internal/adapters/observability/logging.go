package observability

import (
	"io"
	"time"

	"github.com/rs/zerolog"
)

// NewLogger returns a zerolog Logger writing to w at the given level
// (default info). APP_ENV=dev (or development) uses a human-friendly
// console writer.
func NewLogger(w io.Writer, env, level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	l := zerolog.New(w)
	if env == "dev" || env == "development" {
		l = zerolog.New(zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339, NoColor: true})
	}
	return l.Level(lvl).With().Timestamp().Logger()
}
