package logger

import (
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zapcore.Level
	}{
		{"debug", zapcore.DebugLevel},
		{"INFO", zapcore.InfoLevel},
		{"warn", zapcore.WarnLevel},
		{"error", zapcore.ErrorLevel},
		{"verbose", zapcore.InfoLevel},
		{"", zapcore.InfoLevel},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := ParseLevel(tt.in); got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestLoggingBeforeAndAfterInit(t *testing.T) {
	defaultLogger = nil
	Info("dropped before init %d", 1)

	for _, format := range []string{"json", "text"} {
		Init("debug", format)
		if defaultLogger == nil {
			t.Fatalf("Init(%q) left logger nil", format)
		}
		Debug("debug %s", format)
		Warn("warn %s", format)
		Sync()
	}
}
