package logger

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoggerSourceLocation(t *testing.T) {
	tests := []struct {
		name    string
		logFunc func(Logger)
	}{
		{"Info", func(l Logger) { l.Info("test message") }},
		{"Debug", func(l Logger) { l.Debug("debug message") }},
		{"Error", func(l Logger) { l.Error("error message") }},
		{"Warn", func(l Logger) { l.Warn("warn message") }},
		{"Infof", func(l Logger) { l.Infof("formatted %s", "message") }},
		{"Debugf", func(l Logger) { l.Debugf("debug %d", 42) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			l := NewLogger(WithDebug(), WithFormat("text"), WithWriter(&buf))
			tt.logFunc(l)
			require.Contains(t, buf.String(), "logger_test.go:")
		})
	}
}

func TestLoggerQuietSuppressesOutput(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(WithWriter(&buf), WithQuiet())
	l.Info("nothing should appear")
	require.Empty(t, buf.String())
}

func TestLoggerJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(WithFormat("json"), WithWriter(&buf))
	l.Info("hello")
	require.True(t, strings.HasPrefix(strings.TrimSpace(buf.String()), "{"))
}

func TestLoggerWith(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(WithWriter(&buf)).With("job", "hello")
	l.Info("queued")
	require.Contains(t, buf.String(), "job=hello")
}
