package logging

import (
	"testing"

	"go.uber.org/zap"
)

func TestNewLogger(t *testing.T) {
	tests := []struct {
		name      string
		env       string
		level     string
		wantLevel zap.AtomicLevel
		wantErr   bool
	}{
		{name: "local debug", env: "local", level: "debug", wantLevel: zap.NewAtomicLevelAt(zap.DebugLevel)},
		{name: "production info", env: "production", level: "info", wantLevel: zap.NewAtomicLevelAt(zap.InfoLevel)},
		{name: "empty env warn", env: "", level: "warn", wantLevel: zap.NewAtomicLevelAt(zap.WarnLevel)},
		{name: "bad level", env: "local", level: "loud", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := NewLogger(tt.env, tt.level)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error for invalid level")
				}
				return
			}
			if err != nil {
				t.Fatalf("NewLogger failed: %v", err)
			}

			if !logger.Core().Enabled(tt.wantLevel.Level()) {
				t.Errorf("expected %s to be enabled", tt.wantLevel.Level())
			}
			if tt.wantLevel.Level() > zap.DebugLevel && logger.Core().Enabled(zap.DebugLevel) {
				t.Error("expected debug to be disabled")
			}
		})
	}
}
