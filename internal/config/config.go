package config

import (
	"path/filepath"
	"time"

	"github.com/adrg/xdg"

	"github.com/nao1215/scopecrawl/internal/scope"
)

// Default configuration values.
const (
	// AppName names the XDG directories.
	AppName = "scopecrawl"

	// DefaultWorkers is the number of pages fetched concurrently.
	DefaultWorkers = 5

	// DefaultScanAllScripts makes the crawler read every referenced script,
	// including third-party ones, for endpoints that fall in scope.
	DefaultScanAllScripts = true

	// DefaultMaxRetries is the number of consecutive failures that drop an address.
	DefaultMaxRetries = 3

	// DefaultVerbosity only reports errors.
	DefaultVerbosity = VerbosityError

	// DefaultTimeout bounds one request, including reading the body.
	DefaultTimeout = 30 * time.Second

	// DefaultMaxBodySize is the number of response bytes read per request.
	DefaultMaxBodySize = 10 * 1024 * 1024

	// DefaultUserAgent mimics a desktop browser.
	DefaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64; rv:128.0) Gecko/20100101 Firefox/128.0"

	// DefaultRenderer fetches pages with a plain HTTP client.
	DefaultRenderer = RendererHTTP

	// DefaultSettleDelay is how long the browser renderer waits after load
	// for scripts to add links.
	DefaultSettleDelay = time.Second

	// DefaultTorProxyAddress is the usual SOCKS port of a local Tor daemon.
	DefaultTorProxyAddress = "127.0.0.1:9050"

	// DefaultTorStartupTimeout bounds the embedded Tor bootstrap.
	DefaultTorStartupTimeout = 3 * time.Minute
)

// Renderer names a fetch backend.
type Renderer string

const (
	// RendererHTTP fetches raw HTML over HTTP.
	RendererHTTP Renderer = "http"
	// RendererBrowser loads pages in headless Chrome and reads the rendered DOM.
	RendererBrowser Renderer = "browser"
)

// Config holds every option of a crawl run. It is filled from defaults, then
// the config file, then CLI flags, and validated once before the crawl starts.
type Config struct {
	// Seeds are the URLs the crawl starts from. Seeds skip the scope check.
	Seeds []string

	// Scope decides which discovered URLs are crawled.
	Scope scope.Document

	// ScopeFile is a YAML or JSON scope document. Its patterns are added to
	// those of Scope.
	ScopeFile string

	// Workers is the maximum number of concurrent fetches.
	Workers int

	// ScanAllScripts scans out-of-scope scripts too. Only in-scope
	// endpoints found in them are crawled either way.
	ScanAllScripts bool

	// MaxRetries is the number of consecutive failures after which an
	// address is dropped.
	MaxRetries int

	// Verbosity is the minimum level logged.
	Verbosity Verbosity

	// Timeout bounds each request.
	Timeout time.Duration

	// MaxBodySize is the number of body bytes read per response.
	MaxBodySize int64

	// UserAgent is sent with every request.
	UserAgent string

	// RateLimit is the maximum requests per second per host. Zero is unlimited.
	RateLimit float64

	// Renderer selects the fetch backend.
	Renderer Renderer

	// SettleDelay is how long the browser renderer waits after load.
	SettleDelay time.Duration

	// Headful shows the browser window instead of running headless.
	Headful bool

	// Robots adds robots.txt paths of each seed's host as extra seeds.
	Robots bool

	// InsecureSkipVerify disables TLS certificate checks.
	InsecureSkipVerify bool

	// ProxyAddress routes all traffic through a SOCKS5 proxy ("host:port").
	ProxyAddress string

	// UseTor starts an embedded Tor daemon and routes traffic through it.
	UseTor bool

	// TorStartupTimeout bounds the embedded Tor bootstrap.
	TorStartupTimeout time.Duration

	// Headers and Cookie are sent with every request. Per-host values come
	// from File.
	Headers map[string]string
	Cookie  string

	// ConfigFilePath is an explicit config file. When empty, .scopecrawl is
	// looked up in the working directory, XDGConfigDir and then the home
	// directory.
	ConfigFilePath string

	// File is the loaded config file, nil when none was found.
	File *File

	// JSONReport and MarkdownReport select the report format; at most one.
	JSONReport     bool
	MarkdownReport bool

	// ReportFile writes the report to a file instead of stdout.
	ReportFile string

	// SaveToDB stores the inventory in the SQLite history database in DBDir.
	SaveToDB bool
	DBDir    string
}

// NewConfig returns a Config holding the defaults.
func NewConfig() *Config {
	return &Config{
		Workers:           DefaultWorkers,
		ScanAllScripts:    DefaultScanAllScripts,
		MaxRetries:        DefaultMaxRetries,
		Verbosity:         DefaultVerbosity,
		Timeout:           DefaultTimeout,
		MaxBodySize:       DefaultMaxBodySize,
		UserAgent:         DefaultUserAgent,
		Renderer:          DefaultRenderer,
		SettleDelay:       DefaultSettleDelay,
		TorStartupTimeout: DefaultTorStartupTimeout,
		DBDir:             XDGDataDir(),
	}
}

// XDGDataDir returns the data directory holding the history database.
// On Linux: ~/.local/share/scopecrawl
func XDGDataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// XDGConfigDir returns the configuration directory.
// On Linux: ~/.config/scopecrawl
func XDGConfigDir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// Validate returns the first problem found, as one of the sentinel errors.
func (c *Config) Validate() error {
	if len(c.Seeds) == 0 {
		return ErrNoSeed
	}
	if len(c.Scope.Include) == 0 && c.ScopeFile == "" {
		return ErrNoScope
	}
	if c.Workers <= 0 {
		return ErrInvalidWorkers
	}
	if c.MaxRetries <= 0 {
		return ErrInvalidMaxRetries
	}
	if !c.Verbosity.IsValid() {
		return ErrInvalidVerbosity
	}
	if c.Timeout <= 0 {
		return ErrInvalidTimeout
	}
	if c.MaxBodySize <= 0 {
		return ErrInvalidMaxBodySize
	}
	if c.RateLimit < 0 {
		return ErrInvalidRateLimit
	}
	if c.Renderer != RendererHTTP && c.Renderer != RendererBrowser {
		return ErrInvalidRenderer
	}
	if c.JSONReport && c.MarkdownReport {
		return ErrConflictingReportFormats
	}
	if c.UseTor && c.ProxyAddress != "" {
		return ErrConflictingProxy
	}
	return nil
}

// ApplyFile copies the values set in f over c. Fields f leaves empty keep
// their current value. CLI flags are applied after this and win.
func (c *Config) ApplyFile(f *File) {
	if f == nil {
		return
	}
	c.File = f

	if len(f.Scope.Include) > 0 || len(f.Scope.Exclude) > 0 {
		c.Scope = f.Scope
	}
	if f.ScopeFile != "" {
		c.ScopeFile = f.ScopeFile
	}
	if f.Workers != 0 {
		c.Workers = f.Workers
	}
	if f.ScanAllScripts != nil {
		c.ScanAllScripts = *f.ScanAllScripts
	}
	if f.MaxRetries != 0 {
		c.MaxRetries = f.MaxRetries
	}
	if f.Verbosity != "" {
		c.Verbosity = f.Verbosity
	}
	if f.Timeout != 0 {
		c.Timeout = f.Timeout
	}
	if f.MaxBodySize != 0 {
		c.MaxBodySize = f.MaxBodySize
	}
	if f.UserAgent != "" {
		c.UserAgent = f.UserAgent
	}
	if f.RateLimit != 0 {
		c.RateLimit = f.RateLimit
	}
	if f.Renderer != "" {
		c.Renderer = f.Renderer
	}
	if f.Robots != nil {
		c.Robots = *f.Robots
	}
	if f.Proxy != "" {
		c.ProxyAddress = f.Proxy
	}
	if len(f.Defaults.Headers) > 0 {
		c.Headers = f.Defaults.Headers
	}
	if f.Defaults.Cookie != "" {
		c.Cookie = f.Defaults.Cookie
	}
}
