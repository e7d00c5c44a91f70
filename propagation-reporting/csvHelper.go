package propagation_reporting

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"propagation-benchmark/datastructures"
)

const CsvFile = "block_propagation.csv"

// CsvLog is a buffered comma-separated writer that emits its header
// once, before the first data line.
type CsvLog struct {
	mu        sync.Mutex
	file      *os.File
	w         *bufio.Writer
	hasHeader bool
}

func NewCsvLog(path string) (*CsvLog, error) {
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0666)
	if err != nil {
		return nil, fmt.Errorf("failed creating file: %v", err)
	}
	os.Chmod(path, 0666)
	return &CsvLog{file: file, w: bufio.NewWriter(file)}, nil
}

func (c *CsvLog) WriteCsvLine(line string, header string) error {
	if !strings.HasSuffix(header, "\n") {
		header += "\n"
	}
	if !strings.HasSuffix(line, "\n") {
		line += "\n"
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.hasHeader {
		if _, err := c.w.WriteString(header); err != nil {
			return err
		}
		c.hasHeader = true
	}
	if _, err := c.w.WriteString(line); err != nil {
		return err
	}
	return c.w.Flush()
}

func (c *CsvLog) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.w.Flush(); err != nil {
		c.file.Close()
		return err
	}
	return c.file.Close()
}

// WriteRecordsCsv exports the propagation records for spreadsheet use.
func WriteRecordsCsv(dir string, records []datastructures.PropagationRecord) error {
	csvLog, err := NewCsvLog(filepath.Join(dir, CsvFile))
	if err != nil {
		return err
	}
	defer csvLog.Close()

	header := "node, height, sealed, imported, delta_ms, anomalous"
	for _, r := range records {
		line := fmt.Sprintf("%s, %d, %s, %s, %d, %t",
			r.Node, r.Height,
			r.Sealed.Format(stampLayout), r.Imported.Format(stampLayout),
			r.Delta.Milliseconds(), r.Anomalous)
		if err := csvLog.WriteCsvLine(line, header); err != nil {
			return err
		}
	}
	return nil
}
