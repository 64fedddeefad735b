package logging

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Leveler
	}{
		{"debug", slog.LevelDebug},
		{"WARN", slog.LevelWarn},
		{"error", slog.LevelError},
		{"info", slog.LevelInfo},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, parseLevel(tt.in))
		})
	}
}

func TestLoggersHonorLevel(t *testing.T) {
	ctx := context.Background()

	text := NewTextLogger("error")
	assert.False(t, text.Enabled(ctx, slog.LevelInfo))
	assert.True(t, text.Enabled(ctx, slog.LevelError))

	json := NewLogger("debug")
	assert.True(t, json.Enabled(ctx, slog.LevelDebug))
}
