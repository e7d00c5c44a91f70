package marker_extractor

import (
	"os"
	"path/filepath"
	"regexp"
	"testing"

	"propagation-benchmark/datastructures"
)

func defaultPatterns(t *testing.T) Patterns {
	t.Helper()
	seal, imp, err := datastructures.CompilePatterns(datastructures.DefaultSealPattern, datastructures.DefaultImportPattern)
	if err != nil {
		t.Fatal(err)
	}
	return Patterns{Seal: seal, Import: imp, TimeLayout: datastructures.DefaultTimeLayout}
}

func TestParseLineSealMarker(t *testing.T) {
	p := defaultPatterns(t)
	line, err := p.ParseLine("Pre-sealed block for proposal #42 at 10:00:00.000")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if line.Kind != datastructures.MarkerSealed || line.Height != 42 {
		t.Errorf("got kind=%v height=%d", line.Kind, line.Height)
	}
	if line.Timestamp.Format("15:04:05.000") != "10:00:00.000" {
		t.Errorf("timestamp = %v", line.Timestamp)
	}
}

func TestParseLineImportMarker(t *testing.T) {
	p := defaultPatterns(t)
	line, err := p.ParseLine("Imported #42 at 10:00:00.350")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if line.Kind != datastructures.MarkerImported || line.Height != 42 {
		t.Errorf("got kind=%v height=%d", line.Kind, line.Height)
	}
}

func TestParseLineWithLogPrefix(t *testing.T) {
	p := defaultPatterns(t)
	line, err := p.ParseLine("2026-08-29 10:00:00 INFO substrate: Imported #7 at 10:00:00.125")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if line.Kind != datastructures.MarkerImported || line.Height != 7 {
		t.Errorf("got kind=%v height=%d", line.Kind, line.Height)
	}
}

func TestParseLineUnrecognized(t *testing.T) {
	p := defaultPatterns(t)
	line, err := p.ParseLine("Idle (3 peers), best: #42")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if line.Kind != datastructures.MarkerUnknown {
		t.Errorf("kind = %v, want unknown", line.Kind)
	}
}

func TestParseLineBadTimestamp(t *testing.T) {
	p := Patterns{
		Seal:       regexp.MustCompile(`sealed #(?P<height>\d+) at (?P<ts>\S+)`),
		Import:     regexp.MustCompile(`imported #(?P<height>\d+) at (?P<ts>\S+)`),
		TimeLayout: datastructures.DefaultTimeLayout,
	}
	if _, err := p.ParseLine("sealed #42 at notatime"); err == nil {
		t.Fatal("want error for matched line with unparseable timestamp")
	}
}

func writeLogFile(t *testing.T, dir string, node string, lines string) string {
	t.Helper()
	path := filepath.Join(dir, node+".txt")
	if err := os.WriteFile(path, []byte(lines), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestExtractFile(t *testing.T) {
	dir := t.TempDir()
	path := writeLogFile(t, dir, "alice",
		"Pre-sealed block for proposal #42 at 10:00:00.000\n"+
			"some unrelated chatter\n"+
			"Imported #42 at 10:00:00.350\n")

	events, err := ExtractFile(path, "alice", defaultPatterns(t))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	if events[0].Kind != datastructures.MarkerSealed || events[1].Kind != datastructures.MarkerImported {
		t.Errorf("events = %+v", events)
	}
	if events[0].Node != "alice" || events[1].Height != 42 {
		t.Errorf("events = %+v", events)
	}
}

func TestExtractFileEarliestDuplicateWins(t *testing.T) {
	dir := t.TempDir()
	path := writeLogFile(t, dir, "bob",
		"Imported #42 at 10:00:01.000\n"+
			"Imported #42 at 10:00:00.350\n"+
			"Imported #42 at 10:00:02.000\n")

	events, err := ExtractFile(path, "bob", defaultPatterns(t))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	if got := events[0].Timestamp.Format("15:04:05.000"); got != "10:00:00.350" {
		t.Errorf("kept stamp %s, want the earliest 10:00:00.350", got)
	}
}

func TestExtractDirSkipsMissingNode(t *testing.T) {
	dir := t.TempDir()
	writeLogFile(t, dir, "alice", "Imported #1 at 10:00:00.000\n")

	all := ExtractDir(dir, []string{"alice", "ghost"}, defaultPatterns(t))
	if _, ok := all["ghost"]; ok {
		t.Error("node without log file must be skipped")
	}
	if len(all["alice"]) != 1 {
		t.Errorf("alice events = %v", all["alice"])
	}
}
