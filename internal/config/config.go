// Package config holds the runtime environment of the client: REST backend
// location, analytics, caching and transport settings.
package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment is the complete configuration.
type Environment struct {
	Production bool `yaml:"production" json:"production"`

	UI        ServerConfig    `yaml:"ui" json:"ui"`
	Rest      RestConfig      `yaml:"rest" json:"rest"`
	Universal UniversalConfig `yaml:"universal" json:"universal"`
	Matomo    MatomoConfig    `yaml:"matomo" json:"matomo"`
	Cache     CacheConfig     `yaml:"cache" json:"cache"`
	WebClient WebClientConfig `yaml:"webclient" json:"webclient"`
	Logging   LoggingConfig   `yaml:"logging" json:"logging"`

	DefaultLanguage string `yaml:"defaultLanguage" json:"defaultLanguage"`
}

// ServerConfig locates the UI server.
type ServerConfig struct {
	SSL       bool   `yaml:"ssl" json:"ssl"`
	Host      string `yaml:"host" json:"host"`
	Port      int    `yaml:"port" json:"port"`
	NameSpace string `yaml:"nameSpace" json:"nameSpace"`
}

// Addr is the listen address.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// BaseURL is {scheme}://{host}:{port}{nameSpace} without trailing slash.
func (c ServerConfig) BaseURL() string {
	scheme := "http"
	if c.SSL {
		scheme = "https"
	}
	ns := strings.TrimRight(c.NameSpace, "/")
	if ns != "" && !strings.HasPrefix(ns, "/") {
		ns = "/" + ns
	}
	return fmt.Sprintf("%s://%s:%d%s", scheme, c.Host, c.Port, ns)
}

// RestConfig locates the REST backend.
type RestConfig struct {
	ServerConfig `yaml:",inline" json:",inline"`
}

// ParseRestURL splits a REST base URL into its parts.
func ParseRestURL(raw string) (RestConfig, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return RestConfig{}, fmt.Errorf("parse rest url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return RestConfig{}, fmt.Errorf("rest url %q: scheme must be http or https", raw)
	}
	rc := RestConfig{ServerConfig{SSL: u.Scheme == "https", Host: u.Hostname(), NameSpace: u.Path}}
	switch p := u.Port(); {
	case p != "":
		rc.Port, err = strconv.Atoi(p)
		if err != nil {
			return RestConfig{}, fmt.Errorf("rest url port: %w", err)
		}
	case rc.SSL:
		rc.Port = 443
	default:
		rc.Port = 80
	}
	return rc, nil
}

// UniversalConfig mirrors the server side rendering switches.
type UniversalConfig struct {
	Preboot           bool `yaml:"preboot" json:"preboot"`
	Async             bool `yaml:"async" json:"async"`
	Time              bool `yaml:"time" json:"time"`
	InlineCriticalCSS bool `yaml:"inlineCriticalCss" json:"inlineCriticalCss"`
}

// MatomoConfig configures Matomo statistics. An empty HostURL disables
// tracking.
type MatomoConfig struct {
	HostURL string `yaml:"hostUrl" json:"hostUrl"`
	SiteID  string `yaml:"siteId" json:"siteId"`
}

// UnmarshalJSON accepts siteId as a string or a number. Keys missing from b
// keep their current value.
func (c *MatomoConfig) UnmarshalJSON(b []byte) error {
	var raw struct {
		HostURL *string         `json:"hostUrl"`
		SiteID  json.RawMessage `json:"siteId"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	if raw.HostURL != nil {
		c.HostURL = *raw.HostURL
	}
	id := bytes.TrimSpace(raw.SiteID)
	switch {
	case len(id) == 0 || bytes.Equal(id, []byte("null")):
	case id[0] == '"':
		if err := json.Unmarshal(id, &c.SiteID); err != nil {
			return fmt.Errorf("matomo.siteId: %w", err)
		}
	default:
		var n json.Number
		if err := json.Unmarshal(id, &n); err != nil {
			return fmt.Errorf("matomo.siteId: %w", err)
		}
		c.SiteID = n.String()
	}
	return nil
}

// Enabled reports whether tracking is configured.
func (c MatomoConfig) Enabled() bool {
	return strings.TrimSpace(c.HostURL) != ""
}

// CacheConfig configures response caching.
type CacheConfig struct {
	// MsToLive is how long a response stays fresh.
	MsToLive int64 `yaml:"msToLive" json:"msToLive"`

	// Path of the SQLite object cache. Empty disables persistence.
	Path string `yaml:"path" json:"path"`

	// JanitorInterval is how often expired entries are pruned, e.g. "1m".
	JanitorInterval string `yaml:"janitorInterval" json:"janitorInterval"`
}

// WebClientConfig selects the outgoing transport.
type WebClientConfig struct {
	Backend   string `yaml:"backend" json:"backend"`
	Timeout   string `yaml:"timeout" json:"timeout"`
	HTTP2     bool   `yaml:"http2" json:"http2"`
	UserAgent string `yaml:"userAgent" json:"userAgent"`
}

// LoggingConfig configures the logger.
type LoggingConfig struct {
	Level string `yaml:"level" json:"level"`
}

// Production returns the production profile.
func Production() Environment {
	return Environment{
		Production: true,
		UI:         ServerConfig{Host: "localhost", Port: 4000, NameSpace: "/"},
		Rest:       RestConfig{ServerConfig{SSL: false, Host: "localhost", Port: 8080, NameSpace: "/server/api"}},
		Universal: UniversalConfig{
			Preboot:           true,
			Async:             true,
			Time:              false,
			InlineCriticalCSS: false,
		},
		Matomo: MatomoConfig{
			HostURL: "http://localhost:8135/",
			SiteID:  "1",
		},
		Cache: CacheConfig{
			MsToLive:        15 * 60 * 1000,
			JanitorInterval: "1m",
		},
		WebClient: WebClientConfig{
			Backend: "nethttp",
			Timeout: "30s",
		},
		Logging:         LoggingConfig{Level: "info"},
		DefaultLanguage: "en",
	}
}

// LoadFile loads the environment from a YAML file on top of the production
// profile and applies environment variable overrides. A missing file yields
// the defaults.
func LoadFile(path string) (*Environment, error) {
	env := Production()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
		case err != nil:
			return nil, fmt.Errorf("failed to read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, &env); err != nil {
				return nil, fmt.Errorf("failed to parse config: %w", err)
			}
		}
	}
	if err := env.applyEnvOverrides(); err != nil {
		return nil, err
	}
	if err := env.Validate(); err != nil {
		return nil, err
	}
	return &env, nil
}

// Save writes the environment as YAML.
func (e *Environment) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

func (e *Environment) applyEnvOverrides() error {
	if raw := os.Getenv("DSFRONT_REST_URL"); raw != "" {
		rc, err := ParseRestURL(raw)
		if err != nil {
			return fmt.Errorf("DSFRONT_REST_URL: %w", err)
		}
		e.Rest = rc
	}
	if host := os.Getenv("DSFRONT_MATOMO_HOST"); host != "" {
		e.Matomo.HostURL = host
	}
	if site := os.Getenv("DSFRONT_MATOMO_SITE_ID"); site != "" {
		e.Matomo.SiteID = site
	}
	if level := os.Getenv("DSFRONT_LOG_LEVEL"); level != "" {
		e.Logging.Level = level
	}
	if path := os.Getenv("DSFRONT_CACHE_PATH"); path != "" {
		e.Cache.Path = path
	}
	if port := os.Getenv("DSFRONT_UI_PORT"); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return fmt.Errorf("DSFRONT_UI_PORT: %w", err)
		}
		e.UI.Port = p
	}
	return nil
}

// Validate checks the fields the client cannot run without.
func (e *Environment) Validate() error {
	if e.Rest.Host == "" {
		return fmt.Errorf("rest.host is required")
	}
	if e.Rest.Port <= 0 || e.Rest.Port > 65535 {
		return fmt.Errorf("rest.port %d out of range", e.Rest.Port)
	}
	if _, err := e.WebClientTimeout(); err != nil {
		return err
	}
	if _, err := e.JanitorInterval(); err != nil {
		return err
	}
	return nil
}

// RootHref is the REST API root.
func (e *Environment) RootHref() string {
	return e.Rest.BaseURL()
}

// WebClientTimeout parses webclient.timeout.
func (e *Environment) WebClientTimeout() (time.Duration, error) {
	return parseDuration("webclient.timeout", e.WebClient.Timeout, 30*time.Second)
}

// JanitorInterval parses cache.janitorInterval.
func (e *Environment) JanitorInterval() (time.Duration, error) {
	return parseDuration("cache.janitorInterval", e.Cache.JanitorInterval, time.Minute)
}

func parseDuration(name, raw string, def time.Duration) (time.Duration, error) {
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", name, err)
	}
	return d, nil
}
