package logging

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func readEntries(t *testing.T, path string) []LogEntry {
	t.Helper()
	file, err := os.Open(path)
	if err != nil {
		t.Fatalf("open log file: %v", err)
	}
	defer file.Close()

	var entries []LogEntry
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		var entry LogEntry
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			t.Fatalf("invalid log line %q: %v", scanner.Text(), err)
		}
		entries = append(entries, entry)
	}
	return entries
}

func TestFileLoggerWritesJSONLines(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "client.log")
	logger, err := NewFileLogger(FileLoggerConfig{FilePath: logPath, Level: INFO})
	if err != nil {
		t.Fatalf("NewFileLogger() error = %v", err)
	}

	logger.Info("sync started", F("root", "/Shared/docs"))
	logger.Error("upload failed", F("path", "/Shared/docs/a.txt"))
	logger.Close()

	entries := readEntries(t, logPath)
	if len(entries) != 2 {
		t.Fatalf("Expected 2 entries, got %d", len(entries))
	}
	if entries[0].Level != "INFO" || entries[0].Message != "sync started" {
		t.Errorf("Unexpected first entry: %+v", entries[0])
	}
	if entries[0].Fields["root"] != "/Shared/docs" {
		t.Errorf("Expected root field, got %v", entries[0].Fields)
	}
	if entries[1].Level != "ERROR" {
		t.Errorf("Expected ERROR, got %s", entries[1].Level)
	}
}

func TestFileLoggerFiltersBelowLevel(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "client.log")
	logger, err := NewFileLogger(FileLoggerConfig{FilePath: logPath, Level: WARN})
	if err != nil {
		t.Fatalf("NewFileLogger() error = %v", err)
	}

	logger.Debug("dropped")
	logger.Info("dropped")
	logger.Warn("kept")
	logger.Close()

	entries := readEntries(t, logPath)
	if len(entries) != 1 {
		t.Fatalf("Expected 1 entry, got %d", len(entries))
	}
	if entries[0].Message != "kept" {
		t.Errorf("Expected kept, got %q", entries[0].Message)
	}
}

func TestFileLoggerTraceID(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "client.log")
	logger, err := NewFileLogger(FileLoggerConfig{FilePath: logPath, Level: INFO})
	if err != nil {
		t.Fatalf("NewFileLogger() error = %v", err)
	}

	logger.WithTraceID("trace-1").Info("traced")
	logger.Info("untraced")
	logger.Close()

	entries := readEntries(t, logPath)
	if len(entries) != 2 {
		t.Fatalf("Expected 2 entries, got %d", len(entries))
	}
	if entries[0].TraceID != "trace-1" {
		t.Errorf("Expected trace-1, got %q", entries[0].TraceID)
	}
	if entries[1].TraceID != "" {
		t.Errorf("Expected empty trace ID, got %q", entries[1].TraceID)
	}
}

func TestFileLoggerRotation(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "client.log")
	logger, err := NewFileLogger(FileLoggerConfig{
		FilePath:      logPath,
		Level:         INFO,
		MaxFileSize:   64,
		RotateEnabled: true,
	})
	if err != nil {
		t.Fatalf("NewFileLogger() error = %v", err)
	}

	for i := 0; i < 10; i++ {
		logger.Info("a message long enough to push the file past the size cap")
	}
	logger.Close()

	matches, err := filepath.Glob(logPath + ".*")
	if err != nil {
		t.Fatalf("glob: %v", err)
	}
	if len(matches) == 0 {
		t.Error("Expected at least one rotated log file")
	}
	if _, err := os.Stat(logPath); err != nil {
		t.Errorf("Expected current log file to exist: %v", err)
	}
}

func TestFileLoggerAppendsAcrossOpens(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "client.log")

	first, err := NewFileLogger(FileLoggerConfig{FilePath: logPath, Level: INFO})
	if err != nil {
		t.Fatalf("NewFileLogger() error = %v", err)
	}
	first.Info("one")
	first.Close()

	second, err := NewFileLogger(FileLoggerConfig{FilePath: logPath, Level: INFO})
	if err != nil {
		t.Fatalf("NewFileLogger() error = %v", err)
	}
	second.Info("two")
	second.Close()

	entries := readEntries(t, logPath)
	if len(entries) != 2 {
		t.Fatalf("Expected 2 entries, got %d", len(entries))
	}
}
