package logging_test

import (
	"testing"

	"go.uber.org/zap"

	"github.com/aigualink/water-metering-worker/internal/logging"
)

func TestNewLogger(t *testing.T) {
	logger, err := logging.NewLogger("water-metering-worker-test")
	if err != nil {
		t.Fatalf("NewLogger failed: %v", err)
	}
	if logger == nil {
		t.Fatal("Expected a logger")
	}
	defer logger.Sync()
}

func TestNewLogger_EmptyNameFallsBackToDefault(t *testing.T) {
	logger, err := logging.NewLogger("")
	if err != nil {
		t.Fatalf("NewLogger failed with an empty service name: %v", err)
	}
	if logger == nil {
		t.Fatal("Expected a logger")
	}
	defer logger.Sync()
}

func TestWithRequestID(t *testing.T) {
	base := zap.NewNop()
	child := logging.WithRequestID(base, "req-123")
	if child == nil {
		t.Fatal("Expected a child logger")
	}
	if child == base {
		t.Error("Expected a distinct scoped logger")
	}
}
