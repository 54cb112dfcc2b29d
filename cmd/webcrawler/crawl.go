package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/nao1215/webcrawler/internal/config"
	"github.com/nao1215/webcrawler/internal/crawler"
	"github.com/nao1215/webcrawler/internal/database"
	"github.com/nao1215/webcrawler/internal/extractor"
	"github.com/nao1215/webcrawler/internal/fetcher"
	"github.com/nao1215/webcrawler/internal/log"
	"github.com/nao1215/webcrawler/internal/model"
	"github.com/nao1215/webcrawler/internal/report"
	"github.com/nao1215/webcrawler/internal/tor"
)

// NewCrawlCmd creates the crawl command.
func NewCrawlCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crawl [url...]",
		Short: "Crawl one or more root URLs",
		Long: `Crawl downloads every page reachable from each root URL, breadth-first,
down to the depth limit. The root is depth 1.

Each URL is downloaded at most once per root. Failed downloads and pages
whose links could not be extracted are reported but do not stop the crawl.
Press Ctrl+C to stop early; the pages crawled so far are still reported.

Examples:
  # Crawl a site three levels deep
  webcrawler crawl https://example.com/

  # Crawl two sites, staying on each site's host
  webcrawler crawl --same-host https://example.com/ https://example.org/

  # Be gentle with a slow server
  webcrawler crawl --per-host 1 --depth 5 https://example.com/

  # Crawl through a SOCKS5 proxy
  webcrawler crawl --proxy 127.0.0.1:9050 https://example.com/

  # Crawl an onion service through an embedded Tor daemon
  webcrawler crawl --tor http://exampleonionaddress.onion/

  # Write a Markdown report to a file
  webcrawler crawl --markdown -o report.md https://example.com/

Configuration file (.webcrawler) example:
  hosts:
    example.com:
      perHost: 1
      cookie: "session_id=abc123"
      ignorePatterns:
        - "/logout*"`,
		Args: cobra.ArbitraryArgs,
		RunE: runCrawlCmd,
	}

	// Traversal flags
	cmd.Flags().IntP("depth", "d", config.DefaultDepth,
		"Maximum crawl depth (the root URL is depth 1)")
	cmd.Flags().BoolP("same-host", "s", false,
		"Only follow links to the host of the page they appear on")

	// Concurrency flags
	cmd.Flags().IntP("downloaders", "D", config.DefaultDownloaders,
		"Number of download workers")
	cmd.Flags().IntP("extractors", "E", config.DefaultExtractors,
		"Number of link extraction workers")
	cmd.Flags().IntP("per-host", "P", config.DefaultPerHost,
		"Maximum concurrent downloads per host")
	cmd.Flags().IntP("batch", "b", config.DefaultBatchSize,
		"Number of root URLs crawled at the same time")

	// Request flags
	cmd.Flags().DurationP("timeout", "t", config.DefaultTimeout,
		"Timeout for each request")
	cmd.Flags().Int64("max-body", config.DefaultMaxBodySize,
		"Maximum number of body bytes read per response")
	cmd.Flags().StringP("user-agent", "u", config.DefaultUserAgent,
		"User-Agent header")
	cmd.Flags().StringP("proxy", "x", "",
		"SOCKS5 proxy address (host:port)")
	cmd.Flags().Bool("tor", false,
		"Start an embedded Tor daemon and crawl through it (mutually exclusive with --proxy)")
	cmd.Flags().Duration("tor-timeout", config.DefaultTorStartupTimeout,
		"Maximum time to wait for the embedded Tor daemon to bootstrap")

	// Configuration file
	cmd.Flags().StringP("config", "c", "",
		"Configuration file path (default: .webcrawler in current or home directory)")

	// Report flags
	cmd.Flags().BoolP("json", "j", false,
		"Output JSON report (mutually exclusive with --markdown)")
	cmd.Flags().BoolP("markdown", "m", false,
		"Output Markdown report (mutually exclusive with --json)")
	cmd.Flags().StringP("output", "o", "",
		"Write report to specified file path (creates directories if needed)")
	cmd.Flags().Bool("no-save", false,
		"Do not archive the reports in the history database")

	return cmd
}

// runCrawlCmd executes the crawl command.
func runCrawlCmd(cmd *cobra.Command, args []string) error {
	cfg, err := buildConfig(cmd, args)
	if err != nil {
		return err
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	logger := newLogger(cmd, cfg.Verbose)
	slog.SetDefault(logger)

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-sigCh:
			logger.Warn("received shutdown signal, stopping crawl")
			cancel()
		case <-ctx.Done():
		}
	}()

	if cfg.UseTor {
		stop, err := startTor(ctx, cfg, logger, cmd.ErrOrStderr())
		if err != nil {
			return err
		}
		defer stop()
	}

	return runCrawl(ctx, cfg, logger, cmd.OutOrStdout(), cmd.ErrOrStderr())
}

// startTor starts the embedded Tor daemon and points cfg.ProxyAddress at its
// SOCKS5 listener. The returned function stops the daemon.
func startTor(ctx context.Context, cfg *config.Config, logger *slog.Logger, progress io.Writer) (func(), error) {
	fmt.Fprintln(progress, "Starting embedded Tor daemon...")
	fmt.Fprintf(progress, "This may take 1-3 minutes while Tor bootstraps and connects to the network.\n\n")

	daemon := tor.NewDaemon(
		tor.WithStartupTimeout(cfg.TorStartupTimeout),
		tor.WithLogger(logger),
	)
	if err := daemon.Start(ctx); err != nil {
		return nil, fmt.Errorf("failed to start embedded Tor: %w", err)
	}

	addr, err := daemon.SocksAddr()
	if err != nil {
		_ = daemon.Stop() //nolint:errcheck
		return nil, err
	}
	cfg.ProxyAddress = addr
	fmt.Fprintf(progress, "SOCKS proxy: %s\n\n", addr)

	return func() {
		if err := daemon.Stop(); err != nil {
			logger.Warn("failed to stop embedded Tor daemon", "error", err)
		}
	}, nil
}

// getVerboseFlag retrieves the verbose flag from the command or its parent.
func getVerboseFlag(cmd *cobra.Command) bool {
	return getGlobalBool(cmd, "verbose")
}

// getGlobalBool reads a boolean flag that may be defined on cmd or as a
// persistent flag of the root command. Missing flags read as false.
func getGlobalBool(cmd *cobra.Command, name string) bool {
	v, err := cmd.Flags().GetBool(name)
	if err != nil {
		v, err = cmd.Root().PersistentFlags().GetBool(name)
		if err != nil {
			return false
		}
	}
	return v
}

// newLogger returns the sanitizing logger on the command's stderr, in JSON
// when --log-json is set.
func newLogger(cmd *cobra.Command, verbose bool) *slog.Logger {
	if getGlobalBool(cmd, "log-json") {
		return log.NewSecureJSONLogger(cmd.ErrOrStderr(), verbose)
	}
	return log.NewSecureLogger(cmd.ErrOrStderr(), verbose)
}

// buildConfig creates a Config from cobra command flags and the optional
// configuration file.
func buildConfig(cmd *cobra.Command, args []string) (*config.Config, error) {
	cfg := config.NewConfig()
	flags := cmd.Flags()

	var err error
	if cfg.Depth, err = flags.GetInt("depth"); err != nil {
		return nil, err
	}
	if cfg.SameHost, err = flags.GetBool("same-host"); err != nil {
		return nil, err
	}
	if cfg.Downloaders, err = flags.GetInt("downloaders"); err != nil {
		return nil, err
	}
	if cfg.Extractors, err = flags.GetInt("extractors"); err != nil {
		return nil, err
	}
	if cfg.PerHost, err = flags.GetInt("per-host"); err != nil {
		return nil, err
	}
	if cfg.BatchSize, err = flags.GetInt("batch"); err != nil {
		return nil, err
	}
	if cfg.Timeout, err = flags.GetDuration("timeout"); err != nil {
		return nil, err
	}
	if cfg.MaxBodySize, err = flags.GetInt64("max-body"); err != nil {
		return nil, err
	}
	if cfg.UserAgent, err = flags.GetString("user-agent"); err != nil {
		return nil, err
	}
	if cfg.ProxyAddress, err = flags.GetString("proxy"); err != nil {
		return nil, err
	}
	if cfg.UseTor, err = flags.GetBool("tor"); err != nil {
		return nil, err
	}
	if cfg.TorStartupTimeout, err = flags.GetDuration("tor-timeout"); err != nil {
		return nil, err
	}
	if cfg.ConfigFilePath, err = flags.GetString("config"); err != nil {
		return nil, err
	}
	if cfg.JSONReport, err = flags.GetBool("json"); err != nil {
		return nil, err
	}
	if cfg.MarkdownReport, err = flags.GetBool("markdown"); err != nil {
		return nil, err
	}
	if cfg.ReportFile, err = flags.GetString("output"); err != nil {
		return nil, err
	}
	noSave, err := flags.GetBool("no-save")
	if err != nil {
		return nil, err
	}
	cfg.SaveToDB = !noSave
	cfg.Verbose = getVerboseFlag(cmd)

	// An explicit --config path must exist; the default locations are optional.
	configPath := config.FindConfigFile(cfg.ConfigFilePath)
	switch {
	case configPath != "":
		cfg.Hosts, err = config.LoadConfigFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	case cfg.ConfigFilePath != "":
		return nil, fmt.Errorf("%w: %s", config.ErrConfigNotFound, cfg.ConfigFilePath)
	default:
		cfg.Hosts = &config.File{Hosts: make(map[string]config.HostConfig)}
	}

	// File defaults apply where the flag was left alone.
	defaults := cfg.Hosts.Defaults
	if defaults.PerHost > 0 && !flags.Changed("per-host") {
		cfg.PerHost = defaults.PerHost
	}
	if defaults.UserAgent != "" && !flags.Changed("user-agent") {
		cfg.UserAgent = defaults.UserAgent
	}

	cfg.Targets = args

	return cfg, nil
}

// runCrawl crawls every target, writes the reports to out and archives them.
// Progress lines go to progress.
func runCrawl(ctx context.Context, cfg *config.Config, logger *slog.Logger, out, progress io.Writer) error {
	if len(cfg.Targets) == 0 {
		return errors.New("no targets provided (specify one or more URLs as arguments)")
	}

	logger.Info("starting crawl",
		"targets", len(cfg.Targets),
		"depth", cfg.Depth,
		"downloaders", cfg.Downloaders,
		"extractors", cfg.Extractors,
		"per_host", cfg.PerHost,
		"batch", cfg.BatchSize,
	)

	var db *database.ReportDB
	if cfg.SaveToDB {
		var err error
		db, err = database.Open(cfg.DBDir, database.DefaultOptions())
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer db.Close()
		logger.Debug("database opened", "path", db.Path())
	}

	c, err := newCrawler(cfg, logger)
	if err != nil {
		return err
	}
	defer c.Close()

	bp := crawler.NewBatchProcessor(c,
		crawler.WithConcurrency(cfg.BatchSize),
		crawler.WithBatchLogger(logger),
		crawler.WithDepthFunc(cfg.DepthFor),
	)

	started := time.Now()
	reports := make([]*model.CrawlReport, len(cfg.Targets))

	var mu sync.Mutex
	done := 0
	batchErr := bp.ProcessWithCallback(ctx, cfg.Targets, cfg.Depth, func(i int, r crawler.BatchResult) {
		rep := model.NewCrawlReport(r.RootURL, r.MaxDepth, r.StartedAt, r.Result, r.Err)

		mu.Lock()
		defer mu.Unlock()
		reports[i] = rep
		done++
		fmt.Fprintf(progress, "[%d/%d] %s: %d downloaded, %d failed (%s)\n",
			done, len(cfg.Targets), rep.RootURL, len(rep.Downloaded), len(rep.Failures), statusLabel(rep))
	})

	stats := c.Stats()
	logger.Info("crawl finished",
		"elapsed", time.Since(started),
		"fetches", stats.Fetches,
		"fetch_failures", stats.FetchFailures,
		"extractions", stats.Extractions,
		"duplicates", stats.Duplicates,
		"interrupted", stats.Interrupted,
		"hosts", stats.Hosts,
		"queued", stats.Queued,
	)

	if err := outputReports(cfg, reports, out); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}

	// Roots that never started have nothing worth archiving.
	if db != nil {
		for _, rep := range reports {
			if rep.Error != "" {
				continue
			}
			if err := saveReport(context.WithoutCancel(ctx), db, rep, logger); err != nil {
				logger.Error("failed to save crawl report", "url", rep.RootURL, "error", err)
			}
		}
	}

	if batchErr != nil {
		return fmt.Errorf("crawl interrupted: %w", batchErr)
	}
	return nil
}

// newCrawler wires the HTTP fetcher and HTML link extractor into a crawler.
func newCrawler(cfg *config.Config, logger *slog.Logger) (*crawler.Crawler, error) {
	f, err := newFetcher(cfg, logger)
	if err != nil {
		return nil, err
	}

	opts := []crawler.Option{
		crawler.WithDownloaders(cfg.Downloaders),
		crawler.WithExtractors(cfg.Extractors),
		crawler.WithPerHost(cfg.PerHost),
		crawler.WithLogger(logger),
	}
	if cfg.Hosts != nil {
		opts = append(opts, crawler.WithHostLimits(cfg.Hosts.PerHostLimits()))
	}

	return crawler.New(f, newExtractor(cfg, logger), opts...)
}

func newFetcher(cfg *config.Config, logger *slog.Logger) (*fetcher.HTTPFetcher, error) {
	client, err := fetcher.NewClient(cfg.Timeout, cfg.ProxyAddress)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP client: %w", err)
	}

	opts := []fetcher.Option{
		fetcher.WithClient(client),
		fetcher.WithUserAgent(cfg.UserAgent),
		fetcher.WithMaxBodySize(cfg.EffectiveMaxBodySize()),
		fetcher.WithLogger(logger),
	}
	if cfg.Hosts != nil {
		opts = append(opts,
			fetcher.WithHeaders(cfg.Hosts.DefaultHeaders()),
			fetcher.WithHostHeaders(cfg.Hosts.HostHeaders()),
			fetcher.WithHostUserAgents(cfg.Hosts.HostUserAgents()),
		)
	}
	return fetcher.New(opts...), nil
}

func newExtractor(cfg *config.Config, logger *slog.Logger) *extractor.HTMLExtractor {
	opts := []extractor.Option{
		extractor.WithSameHost(cfg.SameHost),
		extractor.WithLogger(logger),
	}
	if cfg.Hosts != nil {
		opts = append(opts,
			extractor.WithIgnorePatterns(cfg.Hosts.Defaults.IgnorePatterns),
			extractor.WithFollowPatterns(cfg.Hosts.Defaults.FollowPatterns),
			extractor.WithHostRules(hostRules(cfg.Hosts)),
		)
	}
	return extractor.New(opts...)
}

// hostRules returns the merged link patterns of every configured host that
// has any.
func hostRules(f *config.File) map[string]extractor.Rules {
	rules := make(map[string]extractor.Rules)
	for host := range f.Hosts {
		hc := f.HostConfig(host)
		if len(hc.IgnorePatterns) == 0 && len(hc.FollowPatterns) == 0 {
			continue
		}
		rules[host] = extractor.Rules{Ignore: hc.IgnorePatterns, Follow: hc.FollowPatterns}
	}
	return rules
}

func statusLabel(r *model.CrawlReport) string {
	switch {
	case r.Error != "":
		return "error: " + r.Error
	case r.Interrupted:
		return "interrupted"
	default:
		return "complete"
	}
}

// outputReports writes the reports in the requested format.
func outputReports(cfg *config.Config, reports []*model.CrawlReport, stdout io.Writer) error {
	output := stdout
	if cfg.ReportFile != "" {
		dir := filepath.Dir(cfg.ReportFile)
		if dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0750); err != nil {
				return fmt.Errorf("failed to create output directory: %w", err)
			}
		}

		// Reports may list URLs with private paths; keep them owner-only.
		f, err := os.OpenFile(cfg.ReportFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		output = f
	}

	var w report.Writer
	switch {
	case cfg.JSONReport:
		w = report.NewJSONWriter(output, report.WithPrettyPrint(), report.WithVersion(getVersion()))
	case cfg.MarkdownReport:
		w = report.NewMarkdownWriter(output)
	default:
		w = report.NewSimpleWriter(output, report.WithVerbose(cfg.Verbose))
	}

	var err error
	if len(reports) == 1 {
		_, err = w.Write(reports[0])
	} else {
		_, err = w.WriteBatch(reports)
	}
	return err
}

// saveReport archives a report. A nil db is a no-op.
func saveReport(ctx context.Context, db *database.ReportDB, rep *model.CrawlReport, logger *slog.Logger) error {
	if db == nil {
		return nil
	}

	previous, err := db.LatestReport(ctx, rep.RootURL)
	if err != nil {
		logger.Warn("failed to load previous crawl report", "url", rep.RootURL, "error", err)
	}

	id, err := db.SaveReport(ctx, rep)
	if err != nil {
		return err
	}
	logger.Debug("crawl report saved to database", "url", rep.RootURL, "id", id)

	if previous != nil {
		c := model.Compare(previous, rep)
		logger.Info("compared with previous crawl",
			"url", rep.RootURL,
			"previous", previous.StartedAt,
			"new_pages", len(c.NewPages),
			"missing_pages", len(c.MissingPages),
			"changed_pages", len(c.ChangedPages),
			"new_failures", len(c.NewFailures),
			"resolved_failures", len(c.ResolvedFailures),
			"trend", c.Trend,
		)
	}
	return nil
}
