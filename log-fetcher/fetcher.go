package log_fetcher

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"

	"propagation-benchmark/datastructures"
)

// pageLimit is the per-request entry cap of the backend; responses
// shorter than this end the paging loop.
const pageLimit = 5000

type lokiStream struct {
	Stream map[string]string `json:"stream"`
	Values [][2]string       `json:"values"`
}

type lokiResponse struct {
	Status string `json:"status"`
	Data   struct {
		ResultType string       `json:"resultType"`
		Result     []lokiStream `json:"result"`
	} `json:"data"`
}

type logEntry struct {
	ts   int64
	line string
}

// DownloadAll fetches every node's logs in parallel and joins before
// returning, so extraction never races a download. A failing node is
// reported and skipped, the run goes on with the rest.
func DownloadAll(cfg *datastructures.RunConfig, runDir string) ([]string, map[string]error) {
	client := &http.Client{}
	failed := make(map[string]error)
	var ok []string
	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, node := range cfg.Nodes {
		wg.Add(1)
		go func(node string) {
			defer wg.Done()
			err := FetchNode(client, cfg, node, runDir)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				log.Warn().Str("node", node).Err(err).Msg("fetch failed, node skipped")
				failed[node] = err
				return
			}
			ok = append(ok, node)
		}(node)
	}
	wg.Wait()

	sort.Strings(ok)
	return ok, failed
}

// FetchNode pulls one node's log lines for the configured window and
// writes them to <node>.txt under the run directory. The file is only
// written once the whole download succeeded, so a failed node leaves
// nothing behind.
func FetchNode(client *http.Client, cfg *datastructures.RunConfig, node string, runDir string) error {
	var entries []logEntry
	start := cfg.From.UnixNano()
	end := cfg.To.UnixNano()

	for {
		u, err := queryURL(cfg.URL, node, start, end)
		if err != nil {
			return err
		}
		page, raw, err := fetchPage(client, cfg, u)
		if err != nil {
			return err
		}
		entries = append(entries, page...)
		// Paging is decided on the raw count: dropped bad stamps must
		// not end the loop while the backend still has entries. With
		// no usable stamp in the page there is nothing to resume from.
		if raw < pageLimit || len(page) == 0 {
			break
		}
		start = page[len(page)-1].ts + 1
	}

	file, err := os.Create(filepath.Join(runDir, node+".txt"))
	if err != nil {
		return err
	}
	defer file.Close()
	w := bufio.NewWriter(file)
	for _, e := range entries {
		if _, err := w.WriteString(e.line + "\n"); err != nil {
			return err
		}
	}
	return w.Flush()
}

func queryURL(base string, node string, start int64, end int64) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("bad endpoint %q: %v", base, err)
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/loki/api/v1/query_range"
	q := u.Query()
	q.Set("query", fmt.Sprintf("{node=%q}", node))
	q.Set("start", strconv.FormatInt(start, 10))
	q.Set("end", strconv.FormatInt(end, 10))
	q.Set("limit", strconv.Itoa(pageLimit))
	q.Set("direction", "forward")
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func fetchPage(client *http.Client, cfg *datastructures.RunConfig, u string) ([]logEntry, int, error) {
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, 0, err
	}
	for k, v := range cfg.Headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, 0, fmt.Errorf("backend returned %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}

	var decoded lokiResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, 0, fmt.Errorf("unparseable backend response: %v", err)
	}
	entries, raw := flattenStreams(decoded.Data.Result)
	return entries, raw, nil
}

// flattenStreams merges the per-stream value lists into one slice in
// timestamp order. The second return is the raw entry count before
// unparseable stamps were dropped.
func flattenStreams(streams []lokiStream) ([]logEntry, int) {
	var entries []logEntry
	raw := 0
	for _, s := range streams {
		raw += len(s.Values)
		for _, v := range s.Values {
			ts, err := strconv.ParseInt(v[0], 10, 64)
			if err != nil {
				log.Warn().Str("stamp", v[0]).Msg("dropping entry with unparseable stamp")
				continue
			}
			entries = append(entries, logEntry{ts: ts, line: v[1]})
		}
	}
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].ts < entries[j].ts })
	return entries, raw
}
