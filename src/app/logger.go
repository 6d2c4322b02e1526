package app

import (
	"io"
	"os"

	"github.com/rs/zerolog"
)

// InitLogger builds the root logger. Development gets colored console output, other
// environments get JSON lines.
func InitLogger(levelStr string, environment string) zerolog.Logger {
	// Set global log level
	level, err := zerolog.ParseLevel(levelStr)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	var output io.Writer = os.Stdout
	if environment == "dev" || environment == "development" {
		// Add color and formatting
		output = zerolog.ConsoleWriter{
			Out:        os.Stdout,
			NoColor:    false,
			TimeFormat: "2006-01-02 15:04:05",
		}
	}

	logger := zerolog.New(output).With().
		Timestamp().
		Logger()

	return logger
}
