package logging

import (
	"bytes"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, log.DebugLevel, ParseLevel("DEBUG"))
	assert.Equal(t, log.WarnLevel, ParseLevel(" warn "))
	assert.Equal(t, log.InfoLevel, ParseLevel(""))
	assert.Equal(t, log.InfoLevel, ParseLevel("chatty"))
}

func TestNew_WritesWithPrefixAndLevel(t *testing.T) {
	var buf bytes.Buffer
	l := New(Options{Level: "warn", Writer: &buf})

	l.Info("hidden")
	assert.Empty(t, buf.String())

	l.Warn("grid ready", "width", 4)
	out := buf.String()
	assert.Contains(t, out, "depthify")
	assert.Contains(t, out, "grid ready")
	assert.Contains(t, out, "width=4")
}
