package logger

import (
	"bytes"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestPrettyWriterFormat(t *testing.T) {
	var buf bytes.Buffer
	log := zerolog.New(PrettyWriter(&buf))

	log.Info().Str("ping_type", "core").Msg("Upload finished.")

	out := buf.String()
	assert.Contains(t, out, "[INFO]")
	assert.Contains(t, out, " Upload finished.")
	assert.Contains(t, out, "(ping_type)core")
}

func TestHTTPLoggerKeyValues(t *testing.T) {
	var buf bytes.Buffer
	log := NewHTTPLogger(zerolog.New(&buf))

	log.Warn("request failed", "url", "https://example.com/submit", "attempt", 1)

	out := buf.String()
	assert.Contains(t, out, `"level":"warn"`)
	assert.Contains(t, out, `"url":"https://example.com/submit"`)
	assert.Contains(t, out, `"attempt":1`)
	assert.Contains(t, out, `"component":"http"`)
}

func TestHTTPLoggerDropsDanglingKey(t *testing.T) {
	var buf bytes.Buffer
	log := NewHTTPLogger(zerolog.New(&buf))

	log.Error("odd fields", "only-key")

	assert.NotContains(t, buf.String(), "only-key")
}
