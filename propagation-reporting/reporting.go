package propagation_reporting

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"

	"propagation-benchmark/datastructures"
)

const (
	ReportFile   = "block_propagation_report.txt"
	AnalysisFile = "analysis.txt"
	DetailsFile  = "log_run_details.json"

	stampLayout = "15:04:05.000"
)

// RunDir creates a fresh timestamped directory under base, so re-runs
// never overwrite earlier results. Same-second collisions get a numeric
// suffix.
func RunDir(base string) (string, error) {
	if err := os.MkdirAll(base, 0755); err != nil {
		return "", err
	}
	stamp := time.Now().Format("2006_01_02_15_04_05")
	dir := filepath.Join(base, stamp)
	for i := 2; ; i++ {
		err := os.Mkdir(dir, 0755)
		if err == nil {
			return dir, nil
		}
		if !os.IsExist(err) {
			return "", err
		}
		dir = filepath.Join(base, fmt.Sprintf("%s_%d", stamp, i))
	}
}

// RunDetails is the reproducibility record of one run.
type RunDetails struct {
	RunID         string   `json:"run_id"`
	GeneratedAt   string   `json:"generated_at"`
	URL           string   `json:"url,omitempty"`
	FromTime      string   `json:"from_time,omitempty"`
	ToTime        string   `json:"to_time,omitempty"`
	Nodes         []string `json:"nodes"`
	SkipDownload  bool     `json:"skip_download,omitempty"`
	Tail          bool     `json:"tail,omitempty"`
	RedisAddr     string   `json:"redis_addr,omitempty"`
	SealPattern   string   `json:"seal_pattern"`
	ImportPattern string   `json:"import_pattern"`
	TimeLayout    string   `json:"time_layout"`
}

// WriteRunDetails records the exact parameters of the run next to its
// outputs. A re-analysis of an existing log directory keeps the
// details the download run recorded; clobbering them would lose the
// url and window the logs were fetched with.
func WriteRunDetails(dir string, cfg *datastructures.RunConfig) (RunDetails, error) {
	path := filepath.Join(dir, DetailsFile)
	if cfg.SkipDownload {
		if data, err := os.ReadFile(path); err == nil {
			var existing RunDetails
			if err := json.Unmarshal(data, &existing); err == nil {
				return existing, nil
			}
		}
	}
	details := RunDetails{
		RunID:         uuid.NewString(),
		GeneratedAt:   time.Now().UTC().Format(time.RFC3339),
		URL:           cfg.URL,
		Nodes:         cfg.Nodes,
		SkipDownload:  cfg.SkipDownload,
		Tail:          cfg.Tail,
		RedisAddr:     cfg.RedisAddr,
		SealPattern:   cfg.SealPattern.String(),
		ImportPattern: cfg.ImportPattern.String(),
		TimeLayout:    cfg.TimeLayout,
	}
	if !cfg.From.IsZero() {
		details.FromTime = cfg.From.Format(time.RFC3339)
	}
	if !cfg.To.IsZero() {
		details.ToTime = cfg.To.Format(time.RFC3339)
	}
	data, err := json.MarshalIndent(details, "", "  ")
	if err != nil {
		return RunDetails{}, err
	}
	return details, os.WriteFile(path, append(data, '\n'), 0666)
}

// WriteReport writes the per-node/per-height propagation listing, plus
// notes on single-marker heights and skipped nodes.
func WriteReport(dir string, records []datastructures.PropagationRecord, incomplete []datastructures.BlockEvent, failed map[string]error) error {
	file, err := os.Create(filepath.Join(dir, ReportFile))
	if err != nil {
		return err
	}
	defer file.Close()
	w := bufio.NewWriter(file)

	fmt.Fprintln(w, "block propagation report")
	fmt.Fprintln(w, "========================")
	fmt.Fprintln(w)
	if len(records) == 0 {
		fmt.Fprintln(w, "no complete seal/import pairs found")
	}
	for _, r := range records {
		if r.Anomalous {
			fmt.Fprintf(w, "%s block %d: %dms (anomalous: import stamp %s precedes seal stamp %s)\n",
				r.Node, r.Height, r.Delta.Milliseconds(),
				r.Imported.Format(stampLayout), r.Sealed.Format(stampLayout))
			continue
		}
		fmt.Fprintf(w, "%s block %d: %dms\n", r.Node, r.Height, r.Delta.Milliseconds())
	}

	if len(incomplete) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "incomplete heights (single marker, no record):")
		for _, e := range incomplete {
			fmt.Fprintf(w, "  %s block %d: %s only at %s\n", e.Node, e.Height, e.Kind, e.Timestamp.Format(stampLayout))
		}
	}
	if len(failed) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "skipped nodes:")
		nodes := make([]string, 0, len(failed))
		for node := range failed {
			nodes = append(nodes, node)
		}
		sort.Strings(nodes)
		for _, node := range nodes {
			fmt.Fprintf(w, "  %s: %v\n", node, failed[node])
		}
	}
	return w.Flush()
}

// WriteAnalysis writes the per-node statistics summary. Nodes without
// any record are listed with "no data" rather than dropped.
func WriteAnalysis(dir string, stats []datastructures.NodeStats, nodes []string) error {
	file, err := os.Create(filepath.Join(dir, AnalysisFile))
	if err != nil {
		return err
	}
	defer file.Close()
	w := bufio.NewWriter(file)

	byNode := make(map[string]datastructures.NodeStats)
	for _, s := range stats {
		byNode[s.Node] = s
	}

	fmt.Fprintln(w, "block propagation statistics per node (ms)")
	fmt.Fprintln(w)
	for _, node := range nodes {
		s, ok := byNode[node]
		if !ok || s.Amount == 0 {
			fmt.Fprintf(w, "%s: no data\n", node)
			continue
		}
		fmt.Fprintf(w, "%s: count=%d mean=%d median=%d min=%d max=%d\n",
			node, s.Amount, s.Avg, s.Med, s.Min, s.Max)
	}
	return w.Flush()
}
