package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/alpacanetworks/telemon/pkg/version"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	logDir      = "/var/log/telemon"
	logFileName = "telemon.log"
)

func InitLogger() *os.File {
	fileName := fmt.Sprintf("%s/%s", logDir, logFileName)
	if _, err := os.Stat(logDir); os.IsNotExist(err) {
		fileName = logFileName
	}

	logFile, err := os.OpenFile(fileName, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Failed to open log file: %v\n", err)
		os.Exit(1)
	}

	var output io.Writer
	// In development, log to console; in production, log to file
	if version.Version == "dev" {
		output = PrettyWriter(os.Stderr)
	} else {
		output = PrettyWriter(logFile)
	}

	log.Logger = zerolog.New(output).With().Timestamp().Caller().Logger()

	return logFile
}

func PrettyWriter(out io.Writer) zerolog.ConsoleWriter {
	return zerolog.ConsoleWriter{
		Out:          out,
		TimeFormat:   time.RFC3339,
		TimeLocation: time.Local,
		FormatLevel: func(i interface{}) string {
			return "[" + strings.ToUpper(fmt.Sprint(i)) + "]"
		},
		FormatMessage: func(i interface{}) string {
			return " " + fmt.Sprint(i)
		},
		FormatFieldName: func(i interface{}) string {
			return "(" + fmt.Sprint(i) + ")"
		},
		FormatFieldValue: func(i interface{}) string {
			return fmt.Sprint(i)
		},
	}
}
