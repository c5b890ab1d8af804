package logger

import (
	"bytes"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestNewParsesLevels(t *testing.T) {
	cases := []struct {
		give string
		want zerolog.Level
	}{
		{"trace", zerolog.TraceLevel},
		{"debug", zerolog.DebugLevel},
		{"info", zerolog.InfoLevel},
		{"warn", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"", zerolog.InfoLevel},
		{"verbose", zerolog.InfoLevel},
	}
	for _, tc := range cases {
		log := New(Config{Level: tc.give})
		assert.Equal(t, tc.want, log.GetLevel(), "level %q", tc.give)
	}
}

func TestNewFiltersBelowLevel(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: "error"}).Output(&buf)

	log.Info().Msg("suppressed")
	assert.Empty(t, buf.String())

	log.Error().Msg("delivered")
	assert.Contains(t, buf.String(), "delivered")
}

func TestNewEmitsStructuredJSON(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: "info"}).Output(&buf)

	log.Info().Str("component", "guard").Msg("check passed")

	out := buf.String()
	assert.Contains(t, out, `"component":"guard"`)
	assert.Contains(t, out, `"message":"check passed"`)
	assert.Contains(t, out, `"time":"`)
}

func TestNewPrettyWriterStillLogs(t *testing.T) {
	log := New(Config{Level: "info", Pretty: true})
	var buf bytes.Buffer
	log = log.Output(&buf)

	log.Info().Msg("console output")
	assert.Contains(t, buf.String(), "console output")
}
