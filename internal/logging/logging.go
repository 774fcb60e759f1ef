// Package logging configures the process-wide zerolog logger and bridges
// echo request logging into it.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Setup sets the global level from level (LOG_LEVEL) and switches to the
// console writer when env is "dev".  It returns the configured logger.
func Setup(level, env string) zerolog.Logger {
	return setup(level, env, os.Stderr)
}

func setup(level, env string, out io.Writer) zerolog.Logger {
	if lvl, err := zerolog.ParseLevel(strings.ToLower(level)); err == nil && level != "" {
		zerolog.SetGlobalLevel(lvl)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
	zerolog.TimeFieldFormat = time.RFC3339Nano

	if strings.EqualFold(env, "dev") {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}
	log.Logger = zerolog.New(out).With().Timestamp().Str("service", "auction").Logger()
	return log.Logger
}

// RequestLogger logs one line per HTTP request.  Server errors are logged
// at error level, client errors at warn and the rest at info.
func RequestLogger(logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}
			req, res := c.Request(), c.Response()

			var ev *zerolog.Event
			switch status := res.Status; {
			case status >= 500:
				ev = logger.Error()
			case status >= 400:
				ev = logger.Warn()
			default:
				ev = logger.Info()
			}
			if err != nil {
				ev = ev.Err(err)
			}
			if id, ok := c.Get("principal_id").(string); ok && id != "" {
				ev = ev.Str("principal", id)
			}
			ev.Str("method", req.Method).
				Str("path", c.Path()).
				Str("uri", req.RequestURI).
				Int("status", res.Status).
				Int64("bytes", res.Size).
				Str("remote_ip", c.RealIP()).
				Dur("latency", time.Since(start)).
				Msg("request")
			return nil
		}
	}
}
