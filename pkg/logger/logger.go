// Package logger configures the global zerolog logger for console output.
package logger

import (
	"os"
	"time"

	"github.com/mattn/go-colorable"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Init sets up the console writer. Verbose enables debug level, noColor
// turns off ANSI colors (useful in CI logs).
func Init(verbose, noColor bool) {
	writer := zerolog.ConsoleWriter{
		Out:        colorable.NewColorableStderr(),
		TimeFormat: time.Kitchen,
		NoColor:    noColor,
	}
	log.Logger = zerolog.New(writer).With().Timestamp().Logger()

	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
	if os.Getenv("WC_ENV_TRACE") != "" {
		zerolog.SetGlobalLevel(zerolog.TraceLevel)
	}
}
