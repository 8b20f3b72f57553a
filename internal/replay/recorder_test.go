package replay

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang/snappy"
)

func fixedClock() time.Time {
	return time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
}

func TestRecorderRoundTrip(t *testing.T) {
	root := t.TempDir()
	rec, manifest, err := NewRecorder(root, "osu! session", fixedClock)
	if err != nil {
		t.Fatalf("NewRecorder returned error: %v", err)
	}

	if manifest.Version != 1 || manifest.FramesPath != "frames.bin.zst" {
		t.Fatalf("unexpected manifest: %+v", manifest)
	}

	payloads := []string{
		`{"state":5,"current_pp":0}`,
		`{"state":2,"current_pp":12.5}`,
		`{"state":2,"current_pp":31.8}`,
	}
	for i, payload := range payloads {
		if err := rec.RecordFrame(uint64(i+1), int32(i*300), []byte(payload)); err != nil {
			t.Fatalf("RecordFrame: %v", err)
		}
	}
	if rec.Frames() != 3 {
		t.Fatalf("frames = %d, want 3", rec.Frames())
	}
	if err := rec.RecordTransition(2, 0, "song select", "playing"); err != nil {
		t.Fatalf("RecordTransition: %v", err)
	}
	if err := rec.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	loader, err := Load(rec.Directory())
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	frames := loader.Frames()
	if len(frames) != 3 {
		t.Fatalf("loaded %d frames, want 3", len(frames))
	}
	for i, frame := range frames {
		if frame.Tick != uint64(i+1) {
			t.Fatalf("frame %d tick = %d", i, frame.Tick)
		}
		if frame.Playtime != int32(i*300) {
			t.Fatalf("frame %d playtime = %d", i, frame.Playtime)
		}
		if string(frame.Payload) != payloads[i] {
			t.Fatalf("frame %d payload = %s, want %s", i, frame.Payload, payloads[i])
		}
	}

	// Replay preserves order.
	var ticks []uint64
	if err := loader.Replay(func(f Frame) error {
		ticks = append(ticks, f.Tick)
		return nil
	}); err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if len(ticks) != 3 || ticks[0] != 1 || ticks[2] != 3 {
		t.Fatalf("replay order wrong: %v", ticks)
	}
}

func TestRecorderTransitionLog(t *testing.T) {
	root := t.TempDir()
	rec, _, err := NewRecorder(root, "session", fixedClock)
	if err != nil {
		t.Fatalf("NewRecorder returned error: %v", err)
	}
	if err := rec.RecordTransition(5, 1200, "playing", "result screen"); err != nil {
		t.Fatalf("RecordTransition: %v", err)
	}
	if err := rec.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	file, err := os.Open(filepath.Join(rec.Directory(), "events.jsonl.sz"))
	if err != nil {
		t.Fatalf("open events: %v", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(snappy.NewReader(file))
	if !scanner.Scan() {
		t.Fatal("event log is empty")
	}
	var record map[string]any
	if err := json.Unmarshal(scanner.Bytes(), &record); err != nil {
		t.Fatalf("event line is not JSON: %v", err)
	}
	if record["from"] != "playing" || record["to"] != "result screen" {
		t.Fatalf("unexpected transition record: %v", record)
	}
	if record["tick"] != float64(5) || record["playtime"] != float64(1200) {
		t.Fatalf("unexpected transition metadata: %v", record)
	}
}

func TestRecorderRejectsEmptyRoot(t *testing.T) {
	if _, _, err := NewRecorder("", "x", nil); err == nil {
		t.Fatal("expected error for empty record directory")
	}
}

func TestPruneKeepsNewestBundles(t *testing.T) {
	root := t.TempDir()

	// Five bundles, one per simulated day.
	var dirs []string
	for day := 1; day <= 5; day++ {
		clock := func() time.Time {
			return time.Date(2024, 3, day, 12, 0, 0, 0, time.UTC)
		}
		rec, _, err := NewRecorder(root, "session", clock)
		if err != nil {
			t.Fatalf("NewRecorder day %d: %v", day, err)
		}
		if err := rec.Close(); err != nil {
			t.Fatalf("Close day %d: %v", day, err)
		}
		dirs = append(dirs, rec.Directory())
	}
	// A stray non-bundle directory and file are left alone.
	if err := os.MkdirAll(filepath.Join(root, "not-a-bundle"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(root, "notes.txt"), []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	removed, err := Prune(root, 2)
	if err != nil {
		t.Fatalf("Prune returned error: %v", err)
	}
	if removed != 3 {
		t.Fatalf("removed = %d, want 3", removed)
	}
	for _, dir := range dirs[:3] {
		if _, err := os.Stat(dir); !os.IsNotExist(err) {
			t.Fatalf("old bundle %s should be gone", dir)
		}
	}
	for _, dir := range dirs[3:] {
		if _, err := os.Stat(dir); err != nil {
			t.Fatalf("new bundle %s should survive: %v", dir, err)
		}
	}
	if _, err := os.Stat(filepath.Join(root, "not-a-bundle")); err != nil {
		t.Fatal("non-bundle directory should be untouched")
	}
	if _, err := os.Stat(filepath.Join(root, "notes.txt")); err != nil {
		t.Fatal("stray file should be untouched")
	}
}

func TestPruneNoOpCases(t *testing.T) {
	root := t.TempDir()
	rec, _, err := NewRecorder(root, "session", fixedClock)
	if err != nil {
		t.Fatalf("NewRecorder: %v", err)
	}
	if err := rec.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// Under the limit: nothing happens.
	if removed, err := Prune(root, 2); err != nil || removed != 0 {
		t.Fatalf("Prune under limit = (%d, %v), want (0, nil)", removed, err)
	}
	// Zero keep disables pruning entirely.
	if removed, err := Prune(root, 0); err != nil || removed != 0 {
		t.Fatalf("Prune with keep=0 = (%d, %v), want (0, nil)", removed, err)
	}
	// A missing root is not an error.
	if removed, err := Prune(filepath.Join(root, "missing"), 2); err != nil || removed != 0 {
		t.Fatalf("Prune on missing root = (%d, %v), want (0, nil)", removed, err)
	}
}

func TestRecorderAfterClose(t *testing.T) {
	rec, _, err := NewRecorder(t.TempDir(), "session", fixedClock)
	if err != nil {
		t.Fatalf("NewRecorder returned error: %v", err)
	}
	if err := rec.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := rec.RecordFrame(1, 0, []byte("{}")); err == nil {
		t.Fatal("expected error writing after close")
	}
	if err := rec.Close(); err != nil {
		t.Fatalf("second Close should be a no-op, got %v", err)
	}
}
