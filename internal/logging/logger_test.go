package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func captureLogger(level Level) (*Logger, *bytes.Buffer) {
	buf := &bytes.Buffer{}
	return &Logger{level: level, sink: &sink{out: buf}}, buf
}

func TestLogLineShape(t *testing.T) {
	logger, buf := captureLogger(DebugLevel)
	logger.Info("attached", Int("pid", 42), String("path", "/games/osu"))

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log line is not JSON: %v", err)
	}
	if entry["level"] != "info" || entry["msg"] != "attached" {
		t.Fatalf("unexpected entry: %v", entry)
	}
	if entry["pid"] != float64(42) || entry["path"] != "/games/osu" {
		t.Fatalf("fields missing: %v", entry)
	}
	if _, ok := entry["ts"]; !ok {
		t.Fatal("entry should carry a timestamp")
	}
}

func TestLevelFiltering(t *testing.T) {
	logger, buf := captureLogger(WarnLevel)
	logger.Debug("hidden")
	logger.Info("hidden too")
	logger.Warn("shown")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 || !strings.Contains(lines[0], "shown") {
		t.Fatalf("expected only the warn line, got %q", buf.String())
	}
}

func TestWithDerivesContext(t *testing.T) {
	logger, buf := captureLogger(DebugLevel)
	derived := logger.With(String("component", "reader"))
	derived.Info("tick")

	if !strings.Contains(buf.String(), `"component":"reader"`) {
		t.Fatalf("derived field missing: %q", buf.String())
	}

	buf.Reset()
	logger.Info("plain")
	if strings.Contains(buf.String(), "component") {
		t.Fatalf("parent logger should not carry derived fields: %q", buf.String())
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]Level{
		"debug": DebugLevel, "info": InfoLevel, "": InfoLevel,
		"warning": WarnLevel, "ERROR": ErrorLevel, "fatal": FatalLevel,
	}
	for raw, want := range cases {
		got, err := ParseLevel(raw)
		if err != nil || got != want {
			t.Fatalf("ParseLevel(%q) = (%v, %v), want %v", raw, got, err, want)
		}
	}
	if _, err := ParseLevel("loud"); err == nil {
		t.Fatal("expected error for unknown level")
	}
}

func TestLogFileRotationShiftsBackups(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bridge.log")
	file, err := openLogFile(Options{Path: path, MaxSizeMB: 1, MaxBackups: 2})
	if err != nil {
		t.Fatalf("openLogFile: %v", err)
	}
	// Force tiny rotations without writing a megabyte.
	file.limit = 64

	line := []byte(strings.Repeat("x", 40) + "\n")
	for i := 0; i < 6; i++ {
		if err := file.write(line); err != nil {
			t.Fatalf("write %d: %v", i, err)
		}
	}
	if err := file.sync(); err != nil {
		t.Fatalf("sync: %v", err)
	}

	for _, name := range []string{path, path + ".1", path + ".2"} {
		if _, err := os.Stat(name); err != nil {
			t.Fatalf("expected %s to exist: %v", name, err)
		}
	}
	// The shift is bounded: no third backup appears.
	if _, err := os.Stat(path + ".3"); err == nil {
		t.Fatal("backup beyond the configured count should not exist")
	}
}

func TestLogFileRotationCompresses(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bridge.log")
	file, err := openLogFile(Options{Path: path, MaxSizeMB: 1, MaxBackups: 1, Compress: true})
	if err != nil {
		t.Fatalf("openLogFile: %v", err)
	}
	file.limit = 32

	line := []byte(strings.Repeat("y", 24) + "\n")
	for i := 0; i < 3; i++ {
		if err := file.write(line); err != nil {
			t.Fatalf("write %d: %v", i, err)
		}
	}

	if _, err := os.Stat(path + ".1.gz"); err != nil {
		t.Fatalf("expected compressed backup: %v", err)
	}
}

func TestOpenLogFileValidation(t *testing.T) {
	if _, err := openLogFile(Options{Path: "x.log", MaxSizeMB: 0}); err == nil {
		t.Fatal("expected error for zero size limit")
	}
	if _, err := openLogFile(Options{Path: "x.log", MaxSizeMB: 1, MaxBackups: -1}); err == nil {
		t.Fatal("expected error for negative backup count")
	}
}
