package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	APP      = "APP"
	AUTH     = "AUTH"
	CLI      = "CLI"
	CLIENT   = "CLIENT"
	CONFIG   = "CONFIG"
	GUARD    = "GUARD"
	HANDLER  = "HANDLER"
	MOCKAPI  = "MOCKAPI"
	PIPELINE = "PIPELINE"
	REDIS    = "REDIS"
	STORE    = "STORE"
)

func getLogLevel() zerolog.Level {
	level := strings.ToUpper(os.Getenv("LOG_LEVEL"))
	switch level {
	case "TRACE":
		return zerolog.TraceLevel
	case "DEBUG":
		return zerolog.DebugLevel
	case "INFO":
		return zerolog.InfoLevel
	case "WARN":
		return zerolog.WarnLevel
	case "ERROR":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// Init configures the global logger from LOG_LEVEL and LOG_FORMAT.
// LOG_FORMAT=console switches to a human readable writer on stderr.
func Init() {
	InitWithWriter(os.Stderr)
}

// InitWithWriter is Init with an explicit destination.
func InitWithWriter(w io.Writer) {
	zerolog.SetGlobalLevel(getLogLevel())
	zerolog.TimeFieldFormat = time.RFC3339

	if strings.EqualFold(os.Getenv("LOG_FORMAT"), "console") {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen}
	}
	log.Logger = zerolog.New(w).With().Timestamp().Logger()
}

// For returns a child of the global logger tagged with the namespace.
func For(namespace string) zerolog.Logger {
	return log.Logger.With().Str("component", namespace).Logger()
}
