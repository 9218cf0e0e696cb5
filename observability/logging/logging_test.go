package logging

import (
	"context"
	"log/slog"
	"testing"
)

func TestSetupLevelOverride(t *testing.T) {
	t.Setenv(levelEnv, "warn")
	logger := Setup("fundingd", "local")
	ctx := context.Background()
	if logger.Enabled(ctx, slog.LevelInfo) {
		t.Fatal("info enabled despite warn override")
	}
	if !logger.Enabled(ctx, slog.LevelWarn) {
		t.Fatal("warn not enabled")
	}
}

func TestSetupEnvironmentDefaults(t *testing.T) {
	t.Setenv(levelEnv, "")
	ctx := context.Background()
	if logger := Setup("fundingd", "production"); logger.Enabled(ctx, slog.LevelDebug) {
		t.Fatal("debug enabled in production")
	}
	if logger := Setup("fundingd", "local"); !logger.Enabled(ctx, slog.LevelDebug) {
		t.Fatal("debug not enabled locally")
	}
}
