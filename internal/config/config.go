package config

import (
	"net"
	"net/url"
	"path/filepath"
	"strconv"
	"time"

	"github.com/adrg/xdg"
)

// Default configuration values.
const (
	// AppName is used for XDG directory paths and the config file name.
	AppName = "webcrawler"

	// DefaultDepth crawls the root, its links and their links.
	DefaultDepth = 3

	// DefaultDownloaders is the size of the download worker pool.
	DefaultDownloaders = 8

	// DefaultExtractors is the size of the link extraction worker pool.
	// Extraction is CPU bound and cheaper than downloading.
	DefaultExtractors = 4

	// DefaultPerHost is the number of concurrent downloads allowed against
	// one host.
	DefaultPerHost = 2

	// DefaultBatchSize is the number of roots crawled at the same time.
	DefaultBatchSize = 4

	// DefaultTimeout bounds a single HTTP request, redirects included.
	DefaultTimeout = 30 * time.Second

	// DefaultUserAgent identifies the crawler in server logs.
	DefaultUserAgent = "webcrawler/1.0 (+https://github.com/nao1215/webcrawler)"

	// DefaultMaxBodySize is the number of body bytes kept per page.
	DefaultMaxBodySize = 10 * 1024 * 1024

	// DefaultTorStartupTimeout bounds the bootstrap of the embedded Tor
	// daemon.
	DefaultTorStartupTimeout = 3 * time.Minute
)

// Config holds every option of a crawl. It is populated from CLI flags and
// the optional config file and passed down explicitly.
type Config struct {
	// Targets are the root URLs to crawl.
	Targets []string

	// Depth is the maximum crawl depth. The root is depth 1.
	Depth int

	// Downloaders is the number of download workers.
	Downloaders int

	// Extractors is the number of link extraction workers.
	Extractors int

	// PerHost caps concurrent downloads per host. Hosts in the config file
	// may override it.
	PerHost int

	// BatchSize is the number of roots crawled concurrently.
	BatchSize int

	// Timeout bounds each HTTP request.
	Timeout time.Duration

	// ProxyAddress is an optional SOCKS5 proxy in "host:port" form.
	ProxyAddress string

	// UseTor starts an embedded Tor daemon and crawls through its SOCKS5
	// proxy. Mutually exclusive with ProxyAddress.
	UseTor bool

	// TorStartupTimeout bounds the embedded daemon's bootstrap.
	TorStartupTimeout time.Duration

	// SameHost keeps the crawl on the host of the page a link was found on.
	SameHost bool

	// UserAgent is the default User-Agent header.
	UserAgent string

	// MaxBodySize is the number of body bytes kept per page. Zero selects
	// DefaultMaxBodySize.
	MaxBodySize int64

	// Verbose enables debug logging.
	Verbose bool

	// JSONReport selects JSON output. Mutually exclusive with
	// MarkdownReport.
	JSONReport bool

	// MarkdownReport selects Markdown output.
	MarkdownReport bool

	// ReportFile, when set, receives the report instead of stdout.
	ReportFile string

	// ConfigFilePath is an explicit config file. Empty means search the
	// current and home directories for .webcrawler.
	ConfigFilePath string

	// Hosts holds the loaded config file, if any.
	Hosts *File

	// DBDir is the directory of the report archive.
	DBDir string

	// SaveToDB archives finished reports in DBDir.
	SaveToDB bool
}

// NewConfig returns a Config populated with the defaults above.
func NewConfig() *Config {
	return &Config{
		Depth:             DefaultDepth,
		Downloaders:       DefaultDownloaders,
		Extractors:        DefaultExtractors,
		PerHost:           DefaultPerHost,
		BatchSize:         DefaultBatchSize,
		Timeout:           DefaultTimeout,
		TorStartupTimeout: DefaultTorStartupTimeout,
		UserAgent:         DefaultUserAgent,
		MaxBodySize:       DefaultMaxBodySize,
		DBDir:             XDGDataDir(),
		SaveToDB:          true,
	}
}

// XDGDataDir returns the data directory, ~/.local/share/webcrawler on Linux.
func XDGDataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// XDGConfigDir returns the config directory, ~/.config/webcrawler on Linux.
func XDGConfigDir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// XDGCacheDir returns the cache directory, ~/.cache/webcrawler on Linux.
func XDGCacheDir() string {
	return filepath.Join(xdg.CacheHome, AppName)
}

// Validate reports the first invalid setting it finds.
func (c *Config) Validate() error {
	if len(c.Targets) == 0 {
		return ErrNoTarget
	}
	for _, target := range c.Targets {
		if !isCrawlableURL(target) {
			return ErrInvalidTarget
		}
	}
	if c.Depth < 1 {
		return ErrInvalidDepth
	}
	if c.Downloaders <= 0 {
		return ErrInvalidDownloaders
	}
	if c.Extractors <= 0 {
		return ErrInvalidExtractors
	}
	if c.PerHost <= 0 {
		return ErrInvalidPerHost
	}
	if c.BatchSize <= 0 {
		return ErrInvalidBatchSize
	}
	if c.Timeout <= 0 {
		return ErrInvalidTimeout
	}
	if c.JSONReport && c.MarkdownReport {
		return ErrConflictingReportFormats
	}
	if c.MaxBodySize < 0 {
		return ErrInvalidMaxBodySize
	}
	if c.ProxyAddress != "" && !isHostPort(c.ProxyAddress) {
		return ErrInvalidProxyAddress
	}
	if c.UseTor && c.ProxyAddress != "" {
		return ErrConflictingProxies
	}
	if c.UseTor && c.TorStartupTimeout <= 0 {
		return ErrInvalidTorStartupTimeout
	}
	return nil
}

// EffectiveMaxBodySize returns MaxBodySize, or the default when it is zero.
func (c *Config) EffectiveMaxBodySize() int64 {
	if c.MaxBodySize == 0 {
		return DefaultMaxBodySize
	}
	return c.MaxBodySize
}

// DepthFor returns the crawl depth for a root URL: the depth configured for
// its host in the config file, or Depth.
func (c *Config) DepthFor(rootURL string) int {
	if c.Hosts == nil {
		return c.Depth
	}
	u, err := url.Parse(rootURL)
	if err != nil {
		return c.Depth
	}
	if d := c.Hosts.HostConfig(u.Hostname()).Depth; d > 0 {
		return d
	}
	return c.Depth
}

func isCrawlableURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

func isHostPort(address string) bool {
	host, port, err := net.SplitHostPort(address)
	if err != nil || host == "" {
		return false
	}
	n, err := strconv.Atoi(port)
	return err == nil && n >= 1 && n <= 65535
}
