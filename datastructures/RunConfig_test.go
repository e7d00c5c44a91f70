package datastructures

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

func TestParseCredentialsYaml(t *testing.T) {
	data := []byte(`url: https://loki.testnet.example
headers:
  Authorization: Bearer abc123
time_layout: "15:04:05"
`)
	creds, err := ParseCredentialsYaml(data)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if creds.URL != "https://loki.testnet.example" {
		t.Errorf("url = %q", creds.URL)
	}
	if creds.Headers["Authorization"] != "Bearer abc123" {
		t.Errorf("headers = %v", creds.Headers)
	}
	if creds.TimeLayout != "15:04:05" {
		t.Errorf("time_layout = %q", creds.TimeLayout)
	}
}

func TestParseCredentialsYamlGarbage(t *testing.T) {
	if _, err := ParseCredentialsYaml([]byte("{{{")); err == nil {
		t.Fatal("want error for garbage yaml")
	}
}

func TestResolveNodesSkipDownloadInfersFromLogDir(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"alice.txt", "bob.txt", "block_propagation_report.txt", "analysis.txt"} {
		if err := os.WriteFile(filepath.Join(dir, name), nil, 0644); err != nil {
			t.Fatal(err)
		}
	}

	// --node flags must not matter with --skip-download
	nodes, err := ResolveNodes([]string{"charlie"}, "", true, dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(nodes, []string{"alice", "bob"}) {
		t.Errorf("nodes = %v, want [alice bob]", nodes)
	}
}

func TestResolveNodesSkipDownloadPrefersRunDetails(t *testing.T) {
	dir := t.TempDir()
	details := []byte(`{"nodes": ["nina", "oscar"]}`)
	if err := os.WriteFile(filepath.Join(dir, "log_run_details.json"), details, 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "alice.txt"), nil, 0644); err != nil {
		t.Fatal(err)
	}

	nodes, err := ResolveNodes(nil, "", true, dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(nodes, []string{"nina", "oscar"}) {
		t.Errorf("nodes = %v, want [nina oscar]", nodes)
	}
}

func TestResolveNodesSkipDownloadEmptyDir(t *testing.T) {
	if _, err := ResolveNodes(nil, "", true, t.TempDir()); err == nil {
		t.Fatal("want error for log dir without log files")
	}
}

func TestResolveNodesSkipDownloadMissingDir(t *testing.T) {
	if _, err := ResolveNodes(nil, "", true, "/does/not/exist"); err == nil {
		t.Fatal("want error for unreadable log dir")
	}
}

func TestResolveNodesFlagsBeatFile(t *testing.T) {
	nodes, err := ResolveNodes([]string{"alice", "bob"}, "ignored.txt", false, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(nodes, []string{"alice", "bob"}) {
		t.Errorf("nodes = %v", nodes)
	}
}

func TestResolveNodesDefaultList(t *testing.T) {
	nodes, err := ResolveNodes(nil, "", false, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(nodes) != 20 {
		t.Errorf("default node list has %d names, want 20", len(nodes))
	}
}

func TestReadNodesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nodes.txt")
	content := "# testnet validators\nalice\n\nbob\n  charlie  \n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	nodes, err := ReadNodesFile(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(nodes, []string{"alice", "bob", "charlie"}) {
		t.Errorf("nodes = %v", nodes)
	}
}

func TestParseHeaderFlags(t *testing.T) {
	headers, err := ParseHeaderFlags([]string{"Authorization: Bearer xyz", "X-Scope-OrgID:testnet"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if headers["Authorization"] != "Bearer xyz" || headers["X-Scope-OrgID"] != "testnet" {
		t.Errorf("headers = %v", headers)
	}
	if _, err := ParseHeaderFlags([]string{"missing-colon"}); err == nil {
		t.Error("want error for header without colon")
	}
}

func TestParseTimeFlag(t *testing.T) {
	for _, s := range []string{"2026-08-29T10:00:00Z", "2026-08-29T10:00:00", "2026-08-29 10:00:00"} {
		if _, err := ParseTimeFlag(s); err != nil {
			t.Errorf("ParseTimeFlag(%q): %v", s, err)
		}
	}
	if _, err := ParseTimeFlag("yesterday"); err == nil {
		t.Error("want error for unparseable time")
	}
}

func TestCompilePatterns(t *testing.T) {
	if _, _, err := CompilePatterns(DefaultSealPattern, DefaultImportPattern); err != nil {
		t.Fatalf("default patterns do not compile: %v", err)
	}
	if _, _, err := CompilePatterns(`no groups here`, DefaultImportPattern); err == nil {
		t.Error("want error for pattern without capture groups")
	}
	if _, _, err := CompilePatterns(`(`, DefaultImportPattern); err == nil {
		t.Error("want error for invalid regexp")
	}
}

func validConfig() *RunConfig {
	seal, imp, _ := CompilePatterns(DefaultSealPattern, DefaultImportPattern)
	return &RunConfig{
		From:          time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC),
		To:            time.Date(2026, 8, 29, 11, 0, 0, 0, time.UTC),
		URL:           "https://loki.testnet.example",
		Nodes:         []string{"alice"},
		OutputDir:     "logs",
		Timeout:       time.Second,
		SealPattern:   seal,
		ImportPattern: imp,
		TimeLayout:    DefaultTimeLayout,
	}
}

func TestValidate(t *testing.T) {
	if err := validConfig().Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}

	cfg := validConfig()
	cfg.URL = ""
	if err := cfg.Validate(); err == nil {
		t.Error("want error for missing endpoint")
	}

	cfg = validConfig()
	cfg.To = cfg.From
	if err := cfg.Validate(); err == nil {
		t.Error("want error for empty time window")
	}

	cfg = validConfig()
	cfg.Nodes = nil
	if err := cfg.Validate(); err == nil {
		t.Error("want error for empty node list")
	}

	cfg = validConfig()
	cfg.SkipDownload = true
	if err := cfg.Validate(); err == nil {
		t.Error("want error for --skip-download without --log-dir")
	}

	// redis source needs no URL
	cfg = validConfig()
	cfg.URL = ""
	cfg.RedisAddr = "127.0.0.1:6379"
	if err := cfg.Validate(); err != nil {
		t.Errorf("redis config rejected: %v", err)
	}
}
