package logx

import (
	"io"
	"os"

	"github.com/auto-support-pilot/server/internal/core"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var DefaultLoggerOpts = &LoggerOpts{
	Environment: core.Development,
}

type LoggerOpts struct {
	Environment core.Environment
	// Output overrides the destination. Defaults to stderr (console writer outside production).
	Output io.Writer
}

func safe(otps ...LoggerOpts) *LoggerOpts {
	if len(otps) == 0 {
		return DefaultLoggerOpts
	}
	return &otps[0]
}

func Init(otps ...LoggerOpts) {
	opts := safe(otps...)
	out := opts.Output
	if opts.Environment.IsProduction() {
		if out == nil {
			out = os.Stderr
		}
		log.Logger = zerolog.New(out).With().Timestamp().Str("service", "auto-support-pilot").Logger()
		log.Logger = log.Logger.Level(zerolog.InfoLevel)
		return
	}
	if out == nil {
		out = zerolog.NewConsoleWriter()
	}
	log.Logger = zerolog.New(out).With().Timestamp().Caller().Logger()
	log.Logger = log.Logger.Level(zerolog.DebugLevel)
}

// With returns a child logger carrying request correlation fields.
func With(requestID, threadID string) zerolog.Logger {
	return log.Logger.With().Str("request_id", requestID).Str("thread_id", threadID).Logger()
}

func Debug() *zerolog.Event {
	return log.Debug()
}

func Info() *zerolog.Event {
	return log.Info()
}

func Warn() *zerolog.Event {
	return log.Warn()
}

func Error() *zerolog.Event {
	return log.Error()
}

func Fatal() *zerolog.Event {
	return log.Fatal()
}
