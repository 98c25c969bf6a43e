package logger

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zapcore.Level
	}{
		{"debug", zapcore.DebugLevel},
		{"info", zapcore.InfoLevel},
		{"warn", zapcore.WarnLevel},
		{"error", zapcore.ErrorLevel},
		{"fatal", zapcore.FatalLevel},
		{"", zapcore.InfoLevel},
		{"verbose", zapcore.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLevel(tt.in))
		})
	}
}

func TestNew_CreatesLogDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "app.log")

	log := New(Options{Level: "debug", Path: path})
	log.Debug("hello")
	_ = log.Sync()

	assert.DirExists(t, filepath.Dir(path))
	assert.True(t, log.Core().Enabled(zapcore.DebugLevel))
}
