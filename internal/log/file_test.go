// internal/log/file_test.go
package log

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestFileHandler_WritesToFile(t *testing.T) {
	dir := t.TempDir()
	cfg := &Config{
		Format:     "text",
		FilePath:   filepath.Join(dir, "test.log"),
		MaxSizeMB:  1,
		MaxAgeDays: 7,
		MaxBackups: 3,
	}

	h, err := NewFileHandler(cfg, slog.LevelInfo)
	if err != nil {
		t.Fatalf("NewFileHandler failed: %v", err)
	}
	defer h.Close()

	logger := slog.New(h)
	logger.Info("file test message", "key", "value")

	data, err := os.ReadFile(cfg.FilePath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(data), "file test message") {
		t.Errorf("log file missing message, got %q", string(data))
	}
}

func TestFileHandler_CreatesDirectory(t *testing.T) {
	dir := t.TempDir()
	cfg := &Config{
		Format:   "text",
		FilePath: filepath.Join(dir, "nested", "deeper", "test.log"),
	}

	h, err := NewFileHandler(cfg, slog.LevelInfo)
	if err != nil {
		t.Fatalf("NewFileHandler failed: %v", err)
	}
	defer h.Close()

	if _, err := os.Stat(filepath.Dir(cfg.FilePath)); err != nil {
		t.Errorf("expected log directory to exist: %v", err)
	}
}

func TestFileHandler_Rotation(t *testing.T) {
	dir := t.TempDir()
	cfg := &Config{
		Format:     "text",
		FilePath:   filepath.Join(dir, "rotate.log"),
		MaxSizeMB:  0, // clamped to the 1KB minimum
		MaxAgeDays: 7,
		MaxBackups: 3,
	}

	h, err := NewFileHandler(cfg, slog.LevelInfo)
	if err != nil {
		t.Fatalf("NewFileHandler failed: %v", err)
	}
	defer h.Close()

	logger := slog.New(h)
	long := strings.Repeat("x", 200)
	for i := 0; i < 20; i++ {
		logger.Info("filler", "data", long)
	}

	matches, err := filepath.Glob(cfg.FilePath + ".*")
	if err != nil {
		t.Fatalf("glob: %v", err)
	}
	if len(matches) == 0 {
		t.Error("expected at least one rotated backup file")
	}
}

func TestFileHandler_WithAttrs(t *testing.T) {
	dir := t.TempDir()
	cfg := &Config{
		Format:   "text",
		FilePath: filepath.Join(dir, "attrs.log"),
	}

	h, err := NewFileHandler(cfg, slog.LevelInfo)
	if err != nil {
		t.Fatalf("NewFileHandler failed: %v", err)
	}
	defer h.Close()

	logger := slog.New(h).With("component", "adapter")
	logger.Info("attributed message")

	data, err := os.ReadFile(cfg.FilePath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(data), "component=adapter") {
		t.Errorf("log file missing attribute, got %q", string(data))
	}
}
