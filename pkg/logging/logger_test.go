package logging

import (
	"testing"

	"drop_engine/internal/mock"
)

func TestGlobalLogger_DefaultIsUsable(t *testing.T) {
	if GetGlobalLogger() == nil {
		t.Fatal("Expected a default global logger, got nil")
	}
	// Must not panic before SetGlobalLogger has ever been called.
	GetGlobalLogger().Info("startup")
}

func TestGlobalLogger_SetThenGet(t *testing.T) {
	prev := GetGlobalLogger()
	defer SetGlobalLogger(prev)

	captured := mock.NewLogger()
	SetGlobalLogger(captured)

	GetGlobalLogger().Error("instrument init failed", "error", "boom")

	if !captured.Contains("instrument init failed") {
		t.Error("Expected message to reach the installed global logger")
	}
}

func TestNewZapLogger_UnknownLevelDefaultsToInfo(t *testing.T) {
	logger, err := NewZapLogger("VERBOSE")
	if err != nil {
		t.Fatalf("NewZapLogger failed: %v", err)
	}
	logger.Debug("should be filtered")
	logger.Info("level fallback works", "level", "VERBOSE")
}
