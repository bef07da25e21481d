package logging

import (
	"testing"

	"go.uber.org/zap"
)

func TestNewProduction(t *testing.T) {
	logger, err := New("")
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	if logger.Core().Enabled(zap.DebugLevel) {
		t.Error("production logger should not enable debug level")
	}
	if !logger.Core().Enabled(zap.InfoLevel) {
		t.Error("production logger should enable info level")
	}
}

func TestNewDebug(t *testing.T) {
	for _, level := range []string{"debug", "TRACE"} {
		logger, err := New(level)
		if err != nil {
			t.Fatalf("New(%q) returned error: %v", level, err)
		}
		if !logger.Core().Enabled(zap.DebugLevel) {
			t.Errorf("New(%q) should enable debug level", level)
		}
	}
}

func TestNewWarn(t *testing.T) {
	logger, err := New("warn")
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	if logger.Core().Enabled(zap.InfoLevel) {
		t.Error("warn logger should not enable info level")
	}
	Sync(logger)()
}

func TestNewInvalid(t *testing.T) {
	if _, err := New("loud"); err == nil {
		t.Error("expected an error for an unknown level")
	}
}
