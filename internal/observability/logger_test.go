package observability

import (
	"context"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestNewLoggerLevels(t *testing.T) {
	t.Parallel()

	tests := []struct {
		level   string
		want    zapcore.Level
		wantErr bool
	}{
		{level: "debug", want: zapcore.DebugLevel},
		{level: "info", want: zapcore.InfoLevel},
		{level: "WARN", want: zapcore.WarnLevel},
		{level: " error ", want: zapcore.ErrorLevel},
		{level: "", want: zapcore.InfoLevel},
		{level: "verbose", wantErr: true},
	}

	for _, tc := range tests {
		logger, err := NewLogger(tc.level)
		if tc.wantErr {
			if err == nil {
				t.Errorf("NewLogger(%q) expected error", tc.level)
			}
			continue
		}
		if err != nil {
			t.Errorf("NewLogger(%q) error = %v", tc.level, err)
			continue
		}
		if !logger.Core().Enabled(tc.want) {
			t.Errorf("NewLogger(%q) does not enable %v", tc.level, tc.want)
		}
	}
}

func TestCorrelationIDRoundTrip(t *testing.T) {
	t.Parallel()

	ctx := WithCorrelationID(context.Background(), "sub-1234")

	got, ok := CorrelationIDFromContext(ctx)
	if !ok || got != "sub-1234" {
		t.Fatalf("CorrelationIDFromContext() = %q, %v; want sub-1234, true", got, ok)
	}

	if _, ok := CorrelationIDFromContext(context.Background()); ok {
		t.Fatal("expected no correlation id on empty context")
	}

	logger := WithContextLogger(zap.NewNop(), ctx)
	if logger == nil {
		t.Fatal("WithContextLogger returned nil")
	}
}
