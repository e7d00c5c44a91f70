package datastructures

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v2"
)

// Default marker patterns. Both patterns must expose a `height` and a
// `ts` named capture group; the upstream log format may change, so they
// stay overridable through the credentials file.
const (
	DefaultSealPattern   = `Pre-sealed block for proposal #(?P<height>\d+) at (?P<ts>\d{2}:\d{2}:\d{2}\.\d{3})`
	DefaultImportPattern = `Imported #(?P<height>\d+) at (?P<ts>\d{2}:\d{2}:\d{2}\.\d{3})`
	DefaultTimeLayout    = "15:04:05.000"
)

// DefaultNodes is the fixed node set of the standing test network, used
// when neither --node flags nor a nodes file are given.
var DefaultNodes = []string{
	"alice", "bob", "charlie", "dave", "eve",
	"ferdie", "george", "hannah", "ian", "julia",
	"kevin", "laura", "mike", "nina", "oscar",
	"paula", "quentin", "rachel", "steve", "tina",
}

// ConfigError aborts the run before any work is done. Everything else
// (per-node fetch failures, unparseable lines) is logged and absorbed.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string {
	return "config: " + e.Reason
}

func ConfigErrorf(format string, args ...interface{}) error {
	return &ConfigError{Reason: fmt.Sprintf(format, args...)}
}

// RunConfig holds everything one benchmark run needs. Built once at
// startup, validated, not mutated afterwards.
type RunConfig struct {
	From          time.Time
	To            time.Time
	URL           string
	Headers       map[string]string
	Nodes         []string
	OutputDir     string
	SkipDownload  bool
	LogDir        string
	RedisAddr     string
	Tail          bool
	CSV           bool
	Timeout       time.Duration
	SealPattern   *regexp.Regexp
	ImportPattern *regexp.Regexp
	TimeLayout    string
}

func (c *RunConfig) Validate() error {
	if c.SkipDownload {
		if c.LogDir == "" {
			return ConfigErrorf("--log-dir is required when using --skip-download")
		}
	} else if c.RedisAddr == "" && c.URL == "" {
		return ConfigErrorf("no usable endpoint, pass --url or --config")
	}
	if !c.SkipDownload {
		if c.From.IsZero() || c.To.IsZero() {
			return ConfigErrorf("--from-time and --to-time are required")
		}
	}
	if !c.From.IsZero() || !c.To.IsZero() {
		if !c.From.Before(c.To) {
			return ConfigErrorf("time window is empty: from %v, to %v", c.From, c.To)
		}
	}
	if len(c.Nodes) == 0 {
		return ConfigErrorf("node list is empty")
	}
	if c.SealPattern == nil || c.ImportPattern == nil {
		return ConfigErrorf("marker patterns are not set")
	}
	return nil
}

// Credentials is the decrypted config file content.
type Credentials struct {
	URL           string            `yaml:"url"`
	Headers       map[string]string `yaml:"headers"`
	SealPattern   string            `yaml:"seal_pattern"`
	ImportPattern string            `yaml:"import_pattern"`
	TimeLayout    string            `yaml:"time_layout"`
}

func ParseCredentialsYaml(data []byte) (Credentials, error) {
	var creds Credentials
	if err := yaml.Unmarshal(data, &creds); err != nil {
		return Credentials{}, ConfigErrorf("unparseable credentials file: %v", err)
	}
	return creds, nil
}

// CompilePatterns builds the marker regexps, checking that both carry
// the capture groups the extractor relies on.
func CompilePatterns(seal string, imp string) (*regexp.Regexp, *regexp.Regexp, error) {
	sealRe, err := regexp.Compile(seal)
	if err != nil {
		return nil, nil, ConfigErrorf("bad seal pattern: %v", err)
	}
	impRe, err := regexp.Compile(imp)
	if err != nil {
		return nil, nil, ConfigErrorf("bad import pattern: %v", err)
	}
	for _, re := range []*regexp.Regexp{sealRe, impRe} {
		if !hasGroup(re, "height") || !hasGroup(re, "ts") {
			return nil, nil, ConfigErrorf("pattern %q misses a height or ts capture group", re.String())
		}
	}
	return sealRe, impRe, nil
}

func hasGroup(re *regexp.Regexp, name string) bool {
	for _, n := range re.SubexpNames() {
		if n == name {
			return true
		}
	}
	return false
}

// ParseTimeFlag accepts RFC 3339 plus the space-separated layout the
// testbed dashboards display.
func ParseTimeFlag(s string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, ConfigErrorf("unparseable time %q, want ISO 8601", s)
}

// ParseHeaderFlags turns repeated "Key: Value" flags into a header map.
func ParseHeaderFlags(flags []string) (map[string]string, error) {
	headers := make(map[string]string)
	for _, h := range flags {
		parts := strings.SplitN(h, ":", 2)
		if len(parts) != 2 {
			return nil, ConfigErrorf("bad header %q, want 'Key: Value'", h)
		}
		headers[strings.TrimSpace(parts[0])] = strings.TrimSpace(parts[1])
	}
	return headers, nil
}

// ResolveNodes picks the node set for the run. With --skip-download the
// log directory is authoritative: the run details file if present,
// otherwise the log filenames, regardless of --node flags. Otherwise
// flags beat the nodes file, which beats the default list.
func ResolveNodes(flagNodes []string, nodesFile string, skipDownload bool, logDir string) ([]string, error) {
	if skipDownload {
		if nodes := NodesFromRunDetails(logDir); len(nodes) > 0 {
			return nodes, nil
		}
		nodes, err := NodesFromLogDir(logDir)
		if err != nil {
			return nil, ConfigErrorf("unreadable log directory %s: %v", logDir, err)
		}
		if len(nodes) == 0 {
			return nil, ConfigErrorf("no log files found in %s", logDir)
		}
		return nodes, nil
	}
	if len(flagNodes) > 0 {
		return flagNodes, nil
	}
	if nodesFile != "" {
		return ReadNodesFile(nodesFile)
	}
	nodes := make([]string, len(DefaultNodes))
	copy(nodes, DefaultNodes)
	return nodes, nil
}

// ReadNodesFile reads one node name per line, skipping blanks and
// '#' comments.
func ReadNodesFile(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, ConfigErrorf("unreadable nodes file %s: %v", path, err)
	}
	var nodes []string
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		nodes = append(nodes, line)
	}
	if len(nodes) == 0 {
		return nil, ConfigErrorf("nodes file %s holds no nodes", path)
	}
	return nodes, nil
}

// NodesFromLogDir infers node names from the <node>.txt files of an
// earlier run, ignoring the report artifacts written next to them.
func NodesFromLogDir(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var nodes []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || filepath.Ext(name) != ".txt" {
			continue
		}
		if name == "block_propagation_report.txt" || name == "analysis.txt" {
			continue
		}
		nodes = append(nodes, strings.TrimSuffix(name, ".txt"))
	}
	sort.Strings(nodes)
	return nodes, nil
}

// NodesFromRunDetails reads the node list out of log_run_details.json
// if the directory has one.
func NodesFromRunDetails(dir string) []string {
	data, err := os.ReadFile(filepath.Join(dir, "log_run_details.json"))
	if err != nil {
		return nil
	}
	var details struct {
		Nodes []string `json:"nodes"`
	}
	if err := json.Unmarshal(data, &details); err != nil {
		return nil
	}
	return details.Nodes
}
