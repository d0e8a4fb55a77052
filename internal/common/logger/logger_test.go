package logger

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zapcore.Level
	}{
		{"debug", zapcore.DebugLevel},
		{"warn", zapcore.WarnLevel},
		{"error", zapcore.ErrorLevel},
		{"info", zapcore.InfoLevel},
		{"", zapcore.InfoLevel},
		{"bogus", zapcore.InfoLevel},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, parseLevel(tt.in))
		})
	}
}

func TestForComponent_AddsField(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	log := ForComponent(NewZapAdapter(zap.New(core)), "scanner")

	log.Info("sweep finished", map[string]interface{}{"scanned": 3})

	entries := logs.All()
	if assert.Len(t, entries, 1) {
		fields := entries[0].ContextMap()
		assert.Equal(t, "scanner", fields["component"])
		assert.EqualValues(t, 3, fields["scanned"])
	}
}

func TestMapToZapFields_Errors(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	log := NewZapAdapter(zap.New(core))

	log.Error("send failed", map[string]interface{}{"error": errors.New("relay down")})

	entries := logs.All()
	if assert.Len(t, entries, 1) {
		assert.Equal(t, "relay down", entries[0].ContextMap()["error"])
	}
}

func TestForComponent_NilLogger(t *testing.T) {
	assert.NotPanics(t, func() {
		ForComponent(nil, "x").Info("ok", nil)
	})
}
