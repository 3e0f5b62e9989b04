package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nao1215/scopecrawl/internal/config"
	"github.com/nao1215/scopecrawl/internal/crawler"
	"github.com/nao1215/scopecrawl/internal/database"
	"github.com/nao1215/scopecrawl/internal/fetch"
	"github.com/nao1215/scopecrawl/internal/log"
	"github.com/nao1215/scopecrawl/internal/model"
	"github.com/nao1215/scopecrawl/internal/report"
	"github.com/nao1215/scopecrawl/internal/robots"
	"github.com/nao1215/scopecrawl/internal/scope"
	"github.com/nao1215/scopecrawl/internal/tor"
)

// NewCrawlCmd creates the crawl command.
func NewCrawlCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crawl [seed-url...]",
		Short: "Discover every in-scope address reachable from the seeds",
		Long: `Crawl fetches the seed URLs and follows every link and every absolute URL
found in referenced scripts that matches the scope. Each newly discovered
address is printed once, as soon as it is found.

A URL is in scope when it starts with a match of an include pattern and with
a match of no exclude pattern. Seeds are fetched even when out of scope.

Ctrl-C stops the crawl after in-flight requests finish; the partial
inventory is still reported and saved.

Examples:
  # Crawl one application
  scopecrawl crawl -i 'https://app\.example\.com/' https://app.example.com/

  # Scope from a file, seeds from a list, robots.txt paths as extra seeds
  scopecrawl crawl -s scope.json -L seeds.txt -r

  # Render pages in headless Chrome and route through Tor
  scopecrawl crawl -s scope.yaml --renderer browser --tor https://app.example.com/

  # Save the inventory and write a Markdown report
  scopecrawl crawl -s scope.yaml --save -m -o report.md https://app.example.com/`,
		Args: cobra.ArbitraryArgs,
		RunE: runCrawlCmd,
	}

	f := cmd.Flags()

	// Seeds and scope
	f.StringP("url", "u", "", "Seed URL (same as a positional argument)")
	f.StringP("list", "L", "", "File with one seed URL per line")
	f.StringArrayP("include", "i", nil, "Include pattern (regular expression, repeatable)")
	f.StringArrayP("exclude", "x", nil, "Exclude pattern (regular expression, repeatable)")
	f.StringP("scope", "s", "", "YAML or JSON scope document with include and exclude lists")
	f.BoolP("robots", "r", false, "Add the paths listed in each seed host's robots.txt as seeds")

	// Crawl behavior
	f.IntP("workers", "w", config.DefaultWorkers, "Number of concurrent fetches")
	f.Int("retries", config.DefaultMaxRetries, "Consecutive failures before an address is dropped")
	f.Bool("scan-all-scripts", config.DefaultScanAllScripts,
		"Scan out-of-scope scripts for in-scope URLs too")
	f.String("renderer", string(config.DefaultRenderer), "Fetch backend: http or browser")
	f.Duration("settle", config.DefaultSettleDelay, "Browser renderer: wait after load for scripts")
	f.Bool("headful", false, "Browser renderer: show the browser window")

	// Requests
	f.DurationP("timeout", "t", config.DefaultTimeout, "Timeout for each request")
	f.Int64("max-body", config.DefaultMaxBodySize, "Maximum response bytes read per request")
	f.Float64("rate", 0, "Maximum requests per second per host (0 is unlimited)")
	f.StringP("user-agent", "A", config.DefaultUserAgent, "User-Agent header")
	f.StringArrayP("header", "H", nil, `Extra request header "Name: value" (repeatable)`)
	f.String("cookie", "", `Cookie header sent with every request ("a=1; b=2")`)
	f.BoolP("insecure", "k", false, "Skip TLS certificate verification")
	f.String("proxy", "", "Route traffic through a SOCKS5 proxy (host:port)")
	f.Bool("tor", false, "Start an embedded Tor daemon and route traffic through it")
	f.Duration("tor-timeout", config.DefaultTorStartupTimeout, "Timeout for the embedded Tor bootstrap")

	// Output
	f.StringP("config", "c", "", "Configuration file (default: .scopecrawl in current or home directory)")
	f.BoolP("json", "j", false, "Write the inventory as JSON (mutually exclusive with --markdown)")
	f.BoolP("markdown", "m", false, "Write the inventory as Markdown (mutually exclusive with --json)")
	f.StringP("output", "o", "", "Write the inventory to a file (creates directories if needed)")
	f.Bool("summary", false, "Print a text inventory after the crawl")
	f.BoolP("quiet", "q", false, "Do not print discoveries as they are found")
	f.Bool("save", false, "Save the inventory to the history database")
	f.String("db", config.XDGDataDir(), "Directory holding the history database")

	return cmd
}

func runCrawlCmd(cmd *cobra.Command, args []string) error {
	cfg, err := buildConfig(cmd, args)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	logger := newLogger(cmd, cfg.Verbosity)

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	return runCrawl(ctx, cmd, cfg, logger)
}

// buildConfig layers defaults, the config file and flags, in that order.
func buildConfig(cmd *cobra.Command, args []string) (*config.Config, error) {
	cfg := config.NewConfig()
	flags := cmd.Flags()

	var err error
	cfg.ConfigFilePath, err = flags.GetString("config")
	if err != nil {
		return nil, err
	}
	if path := config.FindConfigFile(cfg.ConfigFilePath); path != "" {
		file, err := config.LoadConfigFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
		cfg.ApplyFile(file)
	} else if cfg.ConfigFilePath != "" {
		return nil, fmt.Errorf("%w: %s", config.ErrConfigNotFound, cfg.ConfigFilePath)
	}

	if err := applySeedFlags(cmd, cfg, args); err != nil {
		return nil, err
	}
	if err := applyScopeFlags(cmd, cfg); err != nil {
		return nil, err
	}
	if err := applyCrawlFlags(cmd, cfg); err != nil {
		return nil, err
	}
	if err := applyRequestFlags(cmd, cfg); err != nil {
		return nil, err
	}
	if err := applyOutputFlags(cmd, cfg); err != nil {
		return nil, err
	}

	if v, ok, err := verbosityFlag(cmd); err != nil {
		return nil, err
	} else if ok {
		cfg.Verbosity = v
	}
	return cfg, nil
}

func applySeedFlags(cmd *cobra.Command, cfg *config.Config, args []string) error {
	seeds := append([]string{}, args...)

	u, err := cmd.Flags().GetString("url")
	if err != nil {
		return err
	}
	if u != "" {
		seeds = append(seeds, u)
	}

	list, err := cmd.Flags().GetString("list")
	if err != nil {
		return err
	}
	if list != "" {
		fromFile, err := config.ReadSeedFile(list)
		if err != nil {
			return err
		}
		seeds = append(seeds, fromFile...)
	}

	cfg.Seeds = seeds
	return nil
}

func applyScopeFlags(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()

	if flags.Changed("include") {
		include, err := flags.GetStringArray("include")
		if err != nil {
			return err
		}
		cfg.Scope.Include = include
	}
	if flags.Changed("exclude") {
		exclude, err := flags.GetStringArray("exclude")
		if err != nil {
			return err
		}
		cfg.Scope.Exclude = append(cfg.Scope.Exclude, exclude...)
	}
	if flags.Changed("scope") {
		path, err := flags.GetString("scope")
		if err != nil {
			return err
		}
		cfg.ScopeFile = path
	}
	if flags.Changed("robots") {
		robotsOn, err := flags.GetBool("robots")
		if err != nil {
			return err
		}
		cfg.Robots = robotsOn
	}
	return nil
}

func applyCrawlFlags(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()
	var err error

	if flags.Changed("workers") {
		if cfg.Workers, err = flags.GetInt("workers"); err != nil {
			return err
		}
	}
	if flags.Changed("retries") {
		if cfg.MaxRetries, err = flags.GetInt("retries"); err != nil {
			return err
		}
	}
	if flags.Changed("scan-all-scripts") {
		if cfg.ScanAllScripts, err = flags.GetBool("scan-all-scripts"); err != nil {
			return err
		}
	}
	if flags.Changed("renderer") {
		raw, err := flags.GetString("renderer")
		if err != nil {
			return err
		}
		cfg.Renderer = config.Renderer(strings.ToLower(raw))
	}
	if flags.Changed("settle") {
		if cfg.SettleDelay, err = flags.GetDuration("settle"); err != nil {
			return err
		}
	}
	if cfg.Headful, err = flags.GetBool("headful"); err != nil {
		return err
	}
	return nil
}

func applyRequestFlags(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()
	var err error

	if flags.Changed("timeout") {
		if cfg.Timeout, err = flags.GetDuration("timeout"); err != nil {
			return err
		}
	}
	if flags.Changed("max-body") {
		if cfg.MaxBodySize, err = flags.GetInt64("max-body"); err != nil {
			return err
		}
	}
	if flags.Changed("rate") {
		if cfg.RateLimit, err = flags.GetFloat64("rate"); err != nil {
			return err
		}
	}
	if flags.Changed("user-agent") {
		if cfg.UserAgent, err = flags.GetString("user-agent"); err != nil {
			return err
		}
	}
	if flags.Changed("header") {
		raw, err := flags.GetStringArray("header")
		if err != nil {
			return err
		}
		headers, err := parseHeaders(raw)
		if err != nil {
			return err
		}
		merged := make(map[string]string, len(cfg.Headers)+len(headers))
		for k, v := range cfg.Headers {
			merged[k] = v
		}
		for k, v := range headers {
			merged[k] = v
		}
		cfg.Headers = merged
	}
	if flags.Changed("cookie") {
		if cfg.Cookie, err = flags.GetString("cookie"); err != nil {
			return err
		}
	}
	if cfg.InsecureSkipVerify, err = flags.GetBool("insecure"); err != nil {
		return err
	}
	if flags.Changed("proxy") {
		if cfg.ProxyAddress, err = flags.GetString("proxy"); err != nil {
			return err
		}
	}
	if cfg.UseTor, err = flags.GetBool("tor"); err != nil {
		return err
	}
	if cfg.TorStartupTimeout, err = flags.GetDuration("tor-timeout"); err != nil {
		return err
	}
	return nil
}

func applyOutputFlags(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()
	var err error

	if cfg.JSONReport, err = flags.GetBool("json"); err != nil {
		return err
	}
	if cfg.MarkdownReport, err = flags.GetBool("markdown"); err != nil {
		return err
	}
	if cfg.ReportFile, err = flags.GetString("output"); err != nil {
		return err
	}
	if cfg.SaveToDB, err = flags.GetBool("save"); err != nil {
		return err
	}
	if flags.Changed("db") {
		if cfg.DBDir, err = flags.GetString("db"); err != nil {
			return err
		}
	}
	return nil
}

// parseHeaders turns "Name: value" strings into a map.
func parseHeaders(raw []string) (map[string]string, error) {
	headers := make(map[string]string, len(raw))
	for _, h := range raw {
		name, value, ok := strings.Cut(h, ":")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid header %q: expected \"Name: value\"", h)
		}
		headers[name] = strings.TrimSpace(value)
	}
	return headers, nil
}

// buildScope compiles the inline patterns together with those of the scope file.
func buildScope(cfg *config.Config) (*scope.Scope, error) {
	doc := scope.Document{
		Include: append([]string{}, cfg.Scope.Include...),
		Exclude: append([]string{}, cfg.Scope.Exclude...),
	}
	if cfg.ScopeFile != "" {
		fileDoc, err := scope.LoadDocument(cfg.ScopeFile)
		if err != nil {
			return nil, err
		}
		doc.Include = append(doc.Include, fileDoc.Include...)
		doc.Exclude = append(doc.Exclude, fileDoc.Exclude...)
	}
	if len(doc.Include) == 0 {
		return nil, config.ErrNoScope
	}
	return scope.New(doc)
}

// fetchers holds the page fetcher and the HTTP fetcher used for scripts and
// robots.txt. With the http renderer both are the same value.
type fetchers struct {
	page    fetch.Fetcher
	text    *fetch.HTTPFetcher
	cleanup func()
}

func buildFetchers(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*fetchers, error) {
	clientOpts := fetch.ClientOptions{
		Timeout:            cfg.Timeout,
		InsecureSkipVerify: cfg.InsecureSkipVerify,
	}

	var cleanups []func()
	cleanup := func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}

	proxyClient, stopTor, err := connectProxy(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	if stopTor != nil {
		cleanups = append(cleanups, stopTor)
	}
	if proxyClient != nil {
		clientOpts.Dial = proxyClient.DialContext
	}

	text := fetch.NewHTTPFetcher(fetch.NewHTTPClient(clientOpts),
		fetch.WithUserAgent(cfg.UserAgent),
		fetch.WithHeaders(cfg.Headers),
		fetch.WithCookie(cfg.Cookie),
		fetch.WithHostOverrides(hostOverrides(cfg.File)),
		fetch.WithMaxBodySize(cfg.MaxBodySize),
		fetch.WithLimiter(fetch.NewHostLimiter(cfg.RateLimit, 1)),
		fetch.WithLogger(logger),
	)
	result := &fetchers{page: text, text: text, cleanup: cleanup}

	if cfg.Renderer == config.RendererBrowser {
		opts := fetch.BrowserOptions{
			UserAgent:   cfg.UserAgent,
			Timeout:     cfg.Timeout,
			SettleDelay: cfg.SettleDelay,
			Tabs:        cfg.Workers,
			MaxBodySize: cfg.MaxBodySize,
			Headful:     cfg.Headful,
			Logger:      logger,
		}
		if proxyClient != nil {
			opts.ProxyServer = proxyClient.ProxyURL()
		}
		browser, err := fetch.NewBrowserFetcher(opts)
		if err != nil {
			cleanup()
			return nil, fmt.Errorf("failed to start browser: %w", err)
		}
		cleanups = append(cleanups, func() {
			if err := browser.Close(); err != nil {
				logger.Warn("failed to close browser", "error", err)
			}
		})
		result.page = browser
	}
	return result, nil
}

// hostOverrides converts the per-host request settings of the config file.
func hostOverrides(f *config.File) map[string]fetch.HostOverride {
	if f == nil || len(f.Hosts) == 0 {
		return nil
	}
	out := make(map[string]fetch.HostOverride, len(f.Hosts))
	for host, rc := range f.Hosts {
		out[host] = fetch.HostOverride{Cookie: rc.Cookie, Headers: rc.Headers}
	}
	return out
}

// connectProxy returns a verified SOCKS5 client, or nil when no proxy is
// configured. The returned stop function shuts down an embedded Tor daemon.
func connectProxy(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*tor.Client, func(), error) {
	switch {
	case cfg.ProxyAddress != "":
		client, err := tor.NewClient(cfg.ProxyAddress)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create proxy client: %w", err)
		}
		if status := client.CheckConnection(ctx); status != tor.ProxyStatusOK {
			return nil, nil, fmt.Errorf("proxy check failed for %s: %w", cfg.ProxyAddress, status.Error())
		}
		logger.Info("SOCKS5 proxy connection verified", "address", cfg.ProxyAddress)
		return client, nil, nil

	case cfg.UseTor:
		logger.Warn("starting embedded Tor daemon, this may take a few minutes")
		embedded := tor.NewEmbeddedTor(tor.WithStartupTimeout(cfg.TorStartupTimeout))
		if err := embedded.Start(ctx); err != nil {
			return nil, nil, fmt.Errorf("failed to start embedded Tor: %w", err)
		}
		stop := func() {
			if err := embedded.Stop(); err != nil {
				logger.Error("failed to stop embedded Tor", "error", err)
			}
		}
		client, err := embedded.NewClient()
		if err != nil {
			stop()
			return nil, nil, fmt.Errorf("failed to create Tor client: %w", err)
		}
		if status := client.CheckConnection(ctx); status != tor.ProxyStatusOK {
			stop()
			return nil, nil, fmt.Errorf("embedded Tor proxy check failed: %w", status.Error())
		}
		logger.Info("embedded Tor daemon started", "socks_addr", embedded.SocksAddr())
		return client, stop, nil
	}
	return nil, nil, nil
}

// robotsSeeds returns the in-scope addresses listed in the robots.txt of each
// seed's host, one lookup per host.
func robotsSeeds(ctx context.Context, d *robots.Discoverer, sc *scope.Scope, seeds []string) []model.Address {
	seen := make(map[string]struct{})
	var out []model.Address
	for _, s := range seeds {
		root, err := robots.Root(s)
		if err != nil {
			continue
		}
		if _, dup := seen[root]; dup {
			continue
		}
		seen[root] = struct{}{}

		for _, addr := range d.Seeds(ctx, s) {
			if sc.InScope(addr.URL()) {
				out = append(out, addr)
			}
		}
	}
	return out
}

func runCrawl(ctx context.Context, cmd *cobra.Command, cfg *config.Config, logger *slog.Logger) error {
	sc, err := buildScope(cfg)
	if err != nil {
		return fmt.Errorf("invalid scope: %w", err)
	}
	include, exclude := sc.Len()
	logger.Debug("scope compiled", "include", include, "exclude", exclude)

	seeds := make([]model.Address, 0, len(cfg.Seeds))
	for _, raw := range cfg.Seeds {
		u, err := url.Parse(raw)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("invalid seed URL %q: must be absolute", raw)
		}
		seeds = append(seeds, model.Parse(raw))
	}

	fs, err := buildFetchers(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer fs.cleanup()

	if cfg.Robots {
		extra := robotsSeeds(ctx, robots.NewDiscoverer(fs.text, logger), sc, cfg.Seeds)
		logger.Info("robots.txt seeds added", "count", len(extra))
		seeds = append(seeds, extra...)
	}

	engine := crawler.NewEngine(sc, fs.page,
		crawler.WithWorkers(cfg.Workers),
		crawler.WithMaxRetries(cfg.MaxRetries),
		crawler.WithScanAllScripts(cfg.ScanAllScripts),
		crawler.WithScriptFetcher(fs.text),
		crawler.WithLogger(logger),
	)

	stopOnSignal := watchSignals(engine, logger)
	defer stopOnSignal()

	out := cmd.OutOrStdout()
	observer := discoveryPrinter(out, cfg, cmd)

	inv, err := engine.Crawl(ctx, seeds, observer)
	if err != nil {
		return err
	}
	if inv.Stopped {
		log.Critical(logger, "crawl stopped before completion", "pending", inv.Count(model.StatusPending))
	}

	if cfg.SaveToDB {
		if err := saveInventory(ctx, cfg.DBDir, inv, logger); err != nil {
			logger.Error("failed to save inventory", "error", err)
		}
	}

	return outputReport(cmd, cfg, inv)
}

// watchSignals stops the engine on the first SIGINT or SIGTERM. The returned
// function unregisters the handler.
func watchSignals(engine *crawler.Engine, logger *slog.Logger) func() {
	sigCh := make(chan os.Signal, 1)
	done := make(chan struct{})
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	go func() {
		select {
		case <-sigCh:
			logger.Warn("received shutdown signal, finishing in-flight requests")
			engine.Stop()
		case <-done:
		}
	}()

	return func() {
		signal.Stop(sigCh)
		close(done)
	}
}

// discoveryPrinter prints each new address on its own line, unless --quiet
// is set or a machine-readable report goes to stdout.
func discoveryPrinter(out io.Writer, cfg *config.Config, cmd *cobra.Command) crawler.Observer {
	quiet, err := cmd.Flags().GetBool("quiet")
	if err != nil {
		quiet = false
	}
	if quiet || ((cfg.JSONReport || cfg.MarkdownReport) && cfg.ReportFile == "") {
		return nil
	}
	return func(a model.Address) {
		fmt.Fprintln(out, a.String())
	}
}

func saveInventory(ctx context.Context, dbDir string, inv *model.Inventory, logger *slog.Logger) error {
	db, err := database.Open(dbDir, database.DefaultOptions())
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	// The crawl context may already be cancelled; saving must still happen.
	id, err := db.SaveRun(context.WithoutCancel(ctx), inv)
	if err != nil {
		return err
	}
	logger.Info("inventory saved", "run", id, "db", db.Path())
	return nil
}

// outputReport writes the inventory in the requested format. Without a format
// flag, --output or --summary, nothing is written: discoveries were already
// printed as they were found.
func outputReport(cmd *cobra.Command, cfg *config.Config, inv *model.Inventory) error {
	summary, err := cmd.Flags().GetBool("summary")
	if err != nil {
		return err
	}
	if !cfg.JSONReport && !cfg.MarkdownReport && cfg.ReportFile == "" && !summary {
		return nil
	}

	output := cmd.OutOrStdout()
	if cfg.ReportFile != "" {
		if dir := filepath.Dir(cfg.ReportFile); dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0750); err != nil {
				return fmt.Errorf("failed to create output directory: %w", err)
			}
		}
		// Inventories can reveal private endpoints; keep them owner-only.
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
		w = report.NewSimpleWriter(output, report.WithVerbose(cfg.Verbosity == config.VerbosityDebug))
	}

	if cfg.ReportFile != "" && summary {
		w = report.NewMultiWriter(w, report.NewSimpleWriter(cmd.OutOrStdout()))
	}

	if _, err := w.Write(inv); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}
