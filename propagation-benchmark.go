package main

import (
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"propagation-benchmark/datastructures"
	fetcher "propagation-benchmark/log-fetcher"
	extractor "propagation-benchmark/marker-extractor"
	reporting "propagation-benchmark/propagation-reporting"
	redissource "propagation-benchmark/redis-source"
	"propagation-benchmark/utils"
)

var flags struct {
	config       string
	url          string
	headers      []string
	fromTime     string
	toTime       string
	nodes        []string
	nodesFile    string
	outputDir    string
	skipDownload bool
	logDir       string
	redisAddr    string
	tail         bool
	csv          bool
	timeout      time.Duration
}

var rootCmd = &cobra.Command{
	Use:   "propagation-benchmark",
	Short: "Measure block propagation latency from test network node logs",
	Long: `Fetches per-node logs from the Loki backend for a time window, locates
the pre-seal and import markers of each block, and reports per-node
propagation times with summary statistics.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          run,
}

func init() {
	rootCmd.Flags().StringVar(&flags.config, "config", "", "path to encrypted credentials file")
	rootCmd.Flags().StringVar(&flags.url, "url", "", "Loki API URL (overrides config file)")
	rootCmd.Flags().StringArrayVar(&flags.headers, "header", nil, "custom header 'Key: Value', repeatable")
	rootCmd.Flags().StringVar(&flags.fromTime, "from-time", "", "start time (ISO 8601)")
	rootCmd.Flags().StringVar(&flags.toTime, "to-time", "", "end time (ISO 8601)")
	rootCmd.Flags().StringArrayVar(&flags.nodes, "node", nil, "specific node name, repeatable")
	rootCmd.Flags().StringVar(&flags.nodesFile, "nodes-file", "", "file with one node name per line")
	rootCmd.Flags().StringVar(&flags.outputDir, "output-dir", "logs", "base output directory")
	rootCmd.Flags().BoolVar(&flags.skipDownload, "skip-download", false, "skip download, analyze logs in --log-dir")
	rootCmd.Flags().StringVar(&flags.logDir, "log-dir", "", "existing log directory (required with --skip-download)")
	rootCmd.Flags().StringVar(&flags.redisAddr, "redis", "", "read markers from redis at addr instead of downloading logs")
	rootCmd.Flags().BoolVar(&flags.tail, "tail", false, "stream logs live over websocket until the window ends")
	rootCmd.Flags().BoolVar(&flags.csv, "csv", false, "also export records as CSV")
	rootCmd.Flags().DurationVar(&flags.timeout, "timeout", 30*time.Second, "per-request HTTP timeout")
	rootCmd.MarkFlagsMutuallyExclusive("node", "nodes-file")
}

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("run aborted")
		os.Exit(1)
	}
}

func buildConfig() (*datastructures.RunConfig, error) {
	var creds datastructures.Credentials
	if flags.config != "" {
		data, err := utils.DecryptFile(flags.config)
		if err != nil {
			return nil, datastructures.ConfigErrorf("%v", err)
		}
		creds, err = datastructures.ParseCredentialsYaml(data)
		if err != nil {
			return nil, err
		}
	}

	endpoint := flags.url
	if endpoint == "" {
		endpoint = creds.URL
	}

	headers, err := datastructures.ParseHeaderFlags(flags.headers)
	if err != nil {
		return nil, err
	}
	for k, v := range creds.Headers {
		if _, ok := headers[k]; !ok {
			headers[k] = v
		}
	}

	sealPat := creds.SealPattern
	if sealPat == "" {
		sealPat = datastructures.DefaultSealPattern
	}
	importPat := creds.ImportPattern
	if importPat == "" {
		importPat = datastructures.DefaultImportPattern
	}
	layout := creds.TimeLayout
	if layout == "" {
		layout = datastructures.DefaultTimeLayout
	}
	seal, imp, err := datastructures.CompilePatterns(sealPat, importPat)
	if err != nil {
		return nil, err
	}

	cfg := &datastructures.RunConfig{
		URL:           endpoint,
		Headers:       headers,
		OutputDir:     flags.outputDir,
		SkipDownload:  flags.skipDownload,
		LogDir:        flags.logDir,
		RedisAddr:     flags.redisAddr,
		Tail:          flags.tail,
		CSV:           flags.csv,
		Timeout:       flags.timeout,
		SealPattern:   seal,
		ImportPattern: imp,
		TimeLayout:    layout,
	}
	if flags.fromTime != "" {
		if cfg.From, err = datastructures.ParseTimeFlag(flags.fromTime); err != nil {
			return nil, err
		}
	}
	if flags.toTime != "" {
		if cfg.To, err = datastructures.ParseTimeFlag(flags.toTime); err != nil {
			return nil, err
		}
	}
	if cfg.Nodes, err = datastructures.ResolveNodes(flags.nodes, flags.nodesFile, flags.skipDownload, flags.logDir); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func run(cmd *cobra.Command, args []string) error {
	cfg, err := buildConfig()
	if err != nil {
		return err
	}
	log.Info().Strs("nodes", cfg.Nodes).Msg("nodes to analyze")

	runDir := cfg.LogDir
	if !cfg.SkipDownload {
		if runDir, err = reporting.RunDir(cfg.OutputDir); err != nil {
			return err
		}
		log.Info().Str("dir", runDir).Msg("run directory created")
	}

	var events map[string][]datastructures.BlockEvent
	failed := make(map[string]error)
	switch {
	case cfg.RedisAddr != "" && !cfg.SkipDownload:
		if events, err = redissource.CollectEvents(cfg.RedisAddr, cfg.Nodes, cfg.From, cfg.To); err != nil {
			return err
		}
	default:
		if !cfg.SkipDownload {
			if cfg.Tail {
				interrupt := make(chan bool)
				go watchInterrupt(interrupt)
				_, failed = fetcher.TailAll(cfg, runDir, interrupt)
			} else {
				_, failed = fetcher.DownloadAll(cfg, runDir)
			}
		}
		events = extractor.ExtractDir(runDir, cfg.Nodes, extractor.PatternsFromConfig(cfg))
	}

	records, incomplete := reporting.BuildRecords(events)
	stats := reporting.ComputeStats(records)

	if err := reporting.WriteReport(runDir, records, incomplete, failed); err != nil {
		return err
	}
	if err := reporting.WriteAnalysis(runDir, stats, cfg.Nodes); err != nil {
		return err
	}
	if _, err := reporting.WriteRunDetails(runDir, cfg); err != nil {
		return err
	}
	if cfg.CSV {
		if err := reporting.WriteRecordsCsv(runDir, records); err != nil {
			return err
		}
	}

	log.Info().
		Str("log_dir", runDir).
		Str("report", filepath.Join(runDir, reporting.ReportFile)).
		Str("analysis", filepath.Join(runDir, reporting.AnalysisFile)).
		Int("records", len(records)).
		Int("skipped_nodes", len(failed)).
		Msg("benchmarking complete")
	return nil
}

func watchInterrupt(interrupt chan bool) {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt)
	<-sig
	close(interrupt)
}
