package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/nao1215/scopecrawl/internal/scope"
)

// DefaultConfigFile is the configuration file name looked up by FindConfigFile.
const DefaultConfigFile = ".scopecrawl"

// RequestConfig holds request decorations for a host.
type RequestConfig struct {
	// Cookie is sent as the raw Cookie header ("a=1; b=2").
	Cookie string `yaml:"cookie,omitempty"`

	// Headers are added to every request.
	Headers map[string]string `yaml:"headers,omitempty"`
}

// File is the structure of the .scopecrawl configuration file. Every field
// is optional; zero values leave the corresponding default untouched.
type File struct {
	Scope     scope.Document `yaml:"scope,omitempty"`
	ScopeFile string         `yaml:"scopeFile,omitempty"`

	Workers        int           `yaml:"workers,omitempty"`
	ScanAllScripts *bool         `yaml:"scanAllScripts,omitempty"`
	MaxRetries     int           `yaml:"maxRetries,omitempty"`
	Verbosity      Verbosity     `yaml:"verbosity,omitempty"`
	Timeout        time.Duration `yaml:"timeout,omitempty"`
	MaxBodySize    int64         `yaml:"maxBodySize,omitempty"`
	UserAgent      string        `yaml:"userAgent,omitempty"`
	RateLimit      float64       `yaml:"rateLimit,omitempty"`
	Renderer       Renderer      `yaml:"renderer,omitempty"`
	Robots         *bool         `yaml:"robots,omitempty"`
	Proxy          string        `yaml:"proxy,omitempty"`

	// Defaults applies to every host.
	Defaults RequestConfig `yaml:"defaults,omitempty"`

	// Hosts overrides Defaults for a host ("app.example.com" or "host:port").
	Hosts map[string]RequestConfig `yaml:"hosts,omitempty"`
}

// HostConfig returns the request settings for host: the defaults with the
// host's cookie replacing the default one and its headers added on top.
func (f *File) HostConfig(host string) RequestConfig {
	result := RequestConfig{Cookie: f.Defaults.Cookie}
	if len(f.Defaults.Headers) > 0 {
		result.Headers = make(map[string]string, len(f.Defaults.Headers))
		for k, v := range f.Defaults.Headers {
			result.Headers[k] = v
		}
	}

	hc, ok := f.Hosts[strings.ToLower(host)]
	if !ok {
		return result
	}
	if hc.Cookie != "" {
		result.Cookie = hc.Cookie
	}
	if len(hc.Headers) > 0 {
		if result.Headers == nil {
			result.Headers = make(map[string]string, len(hc.Headers))
		}
		for k, v := range hc.Headers {
			result.Headers[k] = v
		}
	}
	return result
}

// LoadConfigFile reads and decodes a config file. A missing file is
// ErrConfigNotFound; callers decide whether that matters.
func LoadConfigFile(path string) (*File, error) {
	data, err := os.ReadFile(path) //nolint:gosec // user-provided config path is intentional
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrConfigNotFound
		}
		return nil, err
	}

	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, err
	}

	if len(f.Hosts) > 0 {
		hosts := make(map[string]RequestConfig, len(f.Hosts))
		for h, rc := range f.Hosts {
			hosts[strings.ToLower(h)] = rc
		}
		f.Hosts = hosts
	}
	if f.ScopeFile != "" && !filepath.IsAbs(f.ScopeFile) {
		f.ScopeFile = filepath.Join(filepath.Dir(path), f.ScopeFile)
	}
	return &f, nil
}

// FindConfigFile returns configPath if it exists, otherwise the first
// .scopecrawl found in the working directory, XDGConfigDir or the home
// directory, or "" when there is none. An explicit path that does not exist yields "".
func FindConfigFile(configPath string) string {
	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}
		return ""
	}

	if cwd, err := os.Getwd(); err == nil {
		p := filepath.Join(cwd, DefaultConfigFile)
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	if p := filepath.Join(XDGConfigDir(), DefaultConfigFile); fileExists(p) {
		return p
	}
	if home, err := os.UserHomeDir(); err == nil {
		p := filepath.Join(home, DefaultConfigFile)
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
