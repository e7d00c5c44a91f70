package marker_extractor

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"propagation-benchmark/datastructures"
)

// Patterns holds the compiled marker regexps and the timestamp layout
// their ts group is parsed with.
type Patterns struct {
	Seal       *regexp.Regexp
	Import     *regexp.Regexp
	TimeLayout string
}

func PatternsFromConfig(cfg *datastructures.RunConfig) Patterns {
	return Patterns{
		Seal:       cfg.SealPattern,
		Import:     cfg.ImportPattern,
		TimeLayout: cfg.TimeLayout,
	}
}

// ParseLine classifies one raw log line. Lines matching neither marker
// come back with MarkerUnknown and no error; lines that match a marker
// but carry an unparseable height or timestamp return an error.
func (p Patterns) ParseLine(raw string) (datastructures.LogLine, error) {
	if line, ok, err := p.matchMarker(p.Seal, datastructures.MarkerSealed, raw); ok || err != nil {
		return line, err
	}
	if line, ok, err := p.matchMarker(p.Import, datastructures.MarkerImported, raw); ok || err != nil {
		return line, err
	}
	return datastructures.LogLine{Raw: raw, Kind: datastructures.MarkerUnknown}, nil
}

func (p Patterns) matchMarker(re *regexp.Regexp, kind datastructures.MarkerKind, raw string) (datastructures.LogLine, bool, error) {
	m := re.FindStringSubmatch(raw)
	if m == nil {
		return datastructures.LogLine{}, false, nil
	}
	var heightStr, tsStr string
	for i, name := range re.SubexpNames() {
		switch name {
		case "height":
			heightStr = m[i]
		case "ts":
			tsStr = m[i]
		}
	}
	height, err := strconv.ParseUint(heightStr, 10, 64)
	if err != nil {
		return datastructures.LogLine{}, true, fmt.Errorf("bad height %q: %v", heightStr, err)
	}
	ts, err := time.Parse(p.TimeLayout, tsStr)
	if err != nil {
		return datastructures.LogLine{}, true, fmt.Errorf("bad timestamp %q: %v", tsStr, err)
	}
	return datastructures.LogLine{Raw: raw, Timestamp: ts, Height: height, Kind: kind}, true, nil
}

type markerKey struct {
	height uint64
	kind   datastructures.MarkerKind
}

// ExtractFile scans one node's log file and returns its marker events.
// Re-proposals log the same marker more than once per height; the
// earliest stamp wins, later duplicates are dropped. Unparseable
// matched lines are logged and skipped.
func ExtractFile(path string, node string, p Patterns) ([]datastructures.BlockEvent, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var events []datastructures.BlockEvent
	seen := make(map[markerKey]int)

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line, err := p.ParseLine(scanner.Text())
		if err != nil {
			log.Warn().Str("node", node).Int("line", lineNo).Err(err).Msg("skipping unparseable marker line")
			continue
		}
		if line.Kind == datastructures.MarkerUnknown {
			continue
		}
		k := markerKey{height: line.Height, kind: line.Kind}
		if idx, ok := seen[k]; ok {
			if line.Timestamp.Before(events[idx].Timestamp) {
				events[idx].Timestamp = line.Timestamp
			}
			continue
		}
		seen[k] = len(events)
		events = append(events, datastructures.BlockEvent{
			Node:      node,
			Height:    line.Height,
			Kind:      line.Kind,
			Timestamp: line.Timestamp,
		})
	}
	if err := scanner.Err(); err != nil {
		return events, err
	}
	return events, nil
}

// ExtractDir runs ExtractFile over every node of the run. A node whose
// file is missing or unreadable is reported and skipped.
func ExtractDir(dir string, nodes []string, p Patterns) map[string][]datastructures.BlockEvent {
	all := make(map[string][]datastructures.BlockEvent)
	for _, node := range nodes {
		events, err := ExtractFile(filepath.Join(dir, node+".txt"), node, p)
		if err != nil {
			log.Warn().Str("node", node).Err(err).Msg("skipping node, log file unreadable")
			continue
		}
		all[node] = events
	}
	return all
}
