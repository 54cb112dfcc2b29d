package config

import (
	"maps"
	"strings"
)

// HostConfig holds overrides for one host.
type HostConfig struct {
	// PerHost replaces the global per-host download limit for this host.
	PerHost int `yaml:"perHost,omitempty"`

	// Depth replaces the crawl depth when a root URL is on this host.
	Depth int `yaml:"depth,omitempty"`

	// UserAgent replaces the User-Agent header for this host.
	UserAgent string `yaml:"userAgent,omitempty"`

	// Cookie is sent as the Cookie header, "name=value; other=value".
	Cookie string `yaml:"cookie,omitempty"`

	// Headers are extra request headers.
	Headers map[string]string `yaml:"headers,omitempty"`

	// IgnorePatterns are glob patterns of link paths not to follow.
	IgnorePatterns []string `yaml:"ignorePatterns,omitempty"`

	// FollowPatterns, when set, are the only link paths followed.
	FollowPatterns []string `yaml:"followPatterns,omitempty"`
}

// File is the structure of the .webcrawler configuration file.
type File struct {
	// Defaults apply to every host unless a host entry overrides them.
	Defaults HostConfig `yaml:"defaults,omitempty"`

	// Hosts maps a host name (no scheme or port) to its overrides.
	Hosts map[string]HostConfig `yaml:"hosts,omitempty"`
}

// HostConfig returns the defaults merged with the entry for host.
// Host names are matched case-insensitively.
func (f *File) HostConfig(host string) HostConfig {
	result := f.Defaults
	result.Headers = maps.Clone(f.Defaults.Headers)

	hc, ok := f.lookup(host)
	if !ok {
		return result
	}
	if hc.PerHost != 0 {
		result.PerHost = hc.PerHost
	}
	if hc.Depth != 0 {
		result.Depth = hc.Depth
	}
	if hc.UserAgent != "" {
		result.UserAgent = hc.UserAgent
	}
	if hc.Cookie != "" {
		result.Cookie = hc.Cookie
	}
	if len(hc.Headers) > 0 {
		if result.Headers == nil {
			result.Headers = make(map[string]string, len(hc.Headers))
		}
		maps.Copy(result.Headers, hc.Headers)
	}
	if len(hc.IgnorePatterns) > 0 {
		result.IgnorePatterns = hc.IgnorePatterns
	}
	if len(hc.FollowPatterns) > 0 {
		result.FollowPatterns = hc.FollowPatterns
	}
	return result
}

// PerHostLimits returns the per-host download limits set for individual
// hosts.
func (f *File) PerHostLimits() map[string]int {
	limits := make(map[string]int)
	for host, hc := range f.Hosts {
		if hc.PerHost > 0 {
			limits[strings.ToLower(host)] = hc.PerHost
		}
	}
	return limits
}

// DefaultHeaders returns the headers sent to every host, the default
// cookie included.
func (f *File) DefaultHeaders() map[string]string {
	return requestHeaders(f.Defaults)
}

// HostHeaders returns, per host, the headers that host adds to or
// overrides in DefaultHeaders.
func (f *File) HostHeaders() map[string]map[string]string {
	headers := make(map[string]map[string]string)
	for host := range f.Hosts {
		if h := requestHeaders(f.HostConfig(host)); len(h) > 0 {
			headers[strings.ToLower(host)] = h
		}
	}
	return headers
}

// HostUserAgents returns the User-Agent overrides per host.
func (f *File) HostUserAgents() map[string]string {
	uas := make(map[string]string)
	for host, hc := range f.Hosts {
		if hc.UserAgent != "" {
			uas[strings.ToLower(host)] = hc.UserAgent
		}
	}
	return uas
}

func (f *File) lookup(host string) (HostConfig, bool) {
	if hc, ok := f.Hosts[host]; ok {
		return hc, true
	}
	for name, hc := range f.Hosts {
		if strings.EqualFold(name, host) {
			return hc, true
		}
	}
	return HostConfig{}, false
}

func requestHeaders(hc HostConfig) map[string]string {
	h := maps.Clone(hc.Headers)
	if hc.Cookie != "" {
		if h == nil {
			h = make(map[string]string, 1)
		}
		h["Cookie"] = hc.Cookie
	}
	return h
}
