package log_fetcher

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"propagation-benchmark/datastructures"
)

type tailFrame struct {
	Streams []lokiStream `json:"streams"`
}

// TailAll streams every node's logs live over the backend's websocket
// tail endpoint until the window closes or interrupt fires. Same
// contract as DownloadAll: all tails are done before the caller parses.
func TailAll(cfg *datastructures.RunConfig, runDir string, interrupt chan bool) ([]string, map[string]error) {
	failed := make(map[string]error)
	var ok []string
	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, node := range cfg.Nodes {
		wg.Add(1)
		go func(node string) {
			defer wg.Done()
			err := tailNode(cfg, node, runDir, interrupt)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				log.Warn().Str("node", node).Err(err).Msg("tail failed, node skipped")
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

func tailNode(cfg *datastructures.RunConfig, node string, runDir string, interrupt chan bool) error {
	u, err := tailURL(cfg.URL, node, cfg.From.UnixNano())
	if err != nil {
		return err
	}
	header := http.Header{}
	for k, v := range cfg.Headers {
		header.Set(k, v)
	}

	log.Info().Str("node", node).Str("url", u).Msg("connecting to tail endpoint")
	c, _, err := websocket.DefaultDialer.Dial(u, header)
	if err != nil {
		return fmt.Errorf("dial: %v", err)
	}
	defer c.Close()

	file, err := os.Create(filepath.Join(runDir, node+".txt"))
	if err != nil {
		return err
	}
	defer file.Close()
	w := bufio.NewWriter(file)
	defer w.Flush()

	done := make(chan struct{})

	// Forward received frames into the log file
	go func() {
		defer close(done)
		for {
			_, message, err := c.ReadMessage()
			if err != nil {
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
					log.Warn().Str("node", node).Err(err).Msg("tail read stopped")
				}
				return
			}
			var frame tailFrame
			if err := json.Unmarshal(message, &frame); err != nil {
				log.Warn().Str("node", node).Err(err).Msg("dropping unparseable tail frame")
				continue
			}
			entries, _ := flattenStreams(frame.Streams)
			for _, e := range entries {
				w.WriteString(e.line + "\n")
			}
			w.Flush()
		}
	}()

	deadline := time.After(time.Until(cfg.To))
	for {
		select {
		case <-done:
			return nil
		case <-deadline:
			return closeTail(c, done)
		case <-interrupt:
			log.Info().Str("node", node).Msg("interrupt")
			return closeTail(c, done)
		}
	}
}

// closeTail sends a close message and waits (with timeout) for the
// server to close the connection, then tears the connection down and
// waits for the reader goroutine. The reader shares the file's
// buffered writer, so it must be gone before the caller flushes and
// closes the file.
func closeTail(c *websocket.Conn, done chan struct{}) error {
	err := c.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	if err == nil {
		select {
		case <-done:
		case <-time.After(time.Second):
		}
	}
	c.Close()
	<-done
	return nil
}

func tailURL(base string, node string, start int64) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("bad endpoint %q: %v", base, err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/loki/api/v1/tail"
	q := u.Query()
	q.Set("query", fmt.Sprintf("{node=%q}", node))
	q.Set("start", strconv.FormatInt(start, 10))
	u.RawQuery = q.Encode()
	return u.String(), nil
}
