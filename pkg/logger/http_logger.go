package logger

import (
	"fmt"

	"github.com/rs/zerolog"
)

// HTTPLogger adapts a zerolog.Logger to retryablehttp.LeveledLogger.
// Info is written at debug level.
type HTTPLogger struct {
	log zerolog.Logger
}

func NewHTTPLogger(log zerolog.Logger) *HTTPLogger {
	return &HTTPLogger{log: log.With().Str("component", "http").Logger()}
}

func (l *HTTPLogger) Error(msg string, keysAndValues ...interface{}) {
	withFields(l.log.Error(), keysAndValues).Msg(msg)
}

func (l *HTTPLogger) Info(msg string, keysAndValues ...interface{}) {
	withFields(l.log.Debug(), keysAndValues).Msg(msg)
}

func (l *HTTPLogger) Debug(msg string, keysAndValues ...interface{}) {
	withFields(l.log.Debug(), keysAndValues).Msg(msg)
}

func (l *HTTPLogger) Warn(msg string, keysAndValues ...interface{}) {
	withFields(l.log.Warn(), keysAndValues).Msg(msg)
}

func withFields(event *zerolog.Event, keysAndValues []interface{}) *zerolog.Event {
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		event = event.Interface(fmt.Sprint(keysAndValues[i]), keysAndValues[i+1])
	}
	return event
}
