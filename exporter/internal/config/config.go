package config

import (
	"fmt"
	"log/slog"
	"os"
	"slices"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/piholestack/pihole-exporter/exporter/internal/normalize"
	"github.com/piholestack/pihole-exporter/exporter/internal/schema"
)

// Default values applied when fields are absent from the config file.
const (
	DefaultListenAddress = "0.0.0.0"
	DefaultPort          = 9311
	DefaultMetricsPath   = "/metrics"
	DefaultLogLevel      = "info"
	DefaultAddress       = "pi.hole"
	DefaultScheme        = "http"
	DefaultAPIPath       = "/admin/api.php"
	DefaultTimeout       = 10 * time.Second
	DefaultTopItems      = 100
	DefaultTokenFile     = "/etc/pihole/setupVars.conf"
	DefaultTokenKey      = "WEBPASSWORD"
)

// Config is the top-level exporter configuration.
type Config struct {
	Exporter ExporterConfig `yaml:"exporter"`
	PiHole   PiHoleConfig   `yaml:"pihole"`
}

// ExporterConfig holds the serving side settings.
type ExporterConfig struct {
	// ListenAddress is the interface the HTTP server binds to.
	ListenAddress string `yaml:"listen_address"`

	// Port is the TCP port the HTTP server listens on.
	Port int `yaml:"port"`

	// MetricsPath is where the exposition is served. "/" always serves it too.
	MetricsPath string `yaml:"metrics_path"`

	// LogLevel is one of: debug | info | warn | error.
	LogLevel string `yaml:"log_level"`

	// StrictArity makes a label arity conflict fail the whole scrape.
	// When false the conflicting metric keeps its last state and the
	// conflict is only logged.
	StrictArity bool `yaml:"strict_arity"`
}

// PiHoleConfig describes the upstream Pi-hole API.
type PiHoleConfig struct {
	// Address is the host (and optional port) of the Pi-hole web interface.
	Address string `yaml:"address"`

	// Scheme is http or https.
	Scheme string `yaml:"scheme"`

	// APIPath is the path of api.php on the host.
	APIPath string `yaml:"api_path"`

	// Timeout bounds each upstream request.
	Timeout time.Duration `yaml:"timeout"`

	// TopItems is the list length requested from topItems and getQuerySources.
	TopItems int `yaml:"top_items"`

	// ExtendedMetrics enables the all_queries endpoint and the per-client
	// query metrics derived from it.
	ExtendedMetrics bool `yaml:"extended_metrics"`

	// ClientQueries configures the all_queries aggregation.
	ClientQueries ClientQueriesConfig `yaml:"client_queries"`

	// Auth configures the shared API token.
	Auth AuthConfig `yaml:"auth"`

	// TLS holds optional TLS dial options.
	TLS TLSConfig `yaml:"tls"`
}

// ClientQueriesConfig selects how all_queries records are aggregated.
type ClientQueriesConfig struct {
	// Mode is labeled | split.
	Mode string `yaml:"mode"`

	// BlockedStatuses lists the FTL status codes counted as blocked in
	// split mode.
	BlockedStatuses []string `yaml:"blocked_statuses"`
}

// AuthConfig specifies where the API token comes from. The first non-empty
// source wins: Token, then TokenEnv, then TokenFile.
type AuthConfig struct {
	// Token is a literal token. Prefer TokenEnv or TokenFile.
	Token string `yaml:"token"`

	// TokenEnv is the name of the environment variable that holds the token.
	TokenEnv string `yaml:"token_env"`

	// TokenFile is a key=value file holding the token, such as
	// /etc/pihole/setupVars.conf.
	TokenFile string `yaml:"token_file"`

	// TokenKey is the key looked up in TokenFile.
	TokenKey string `yaml:"token_key"`
}

// Resolve returns the token from the first configured source. An empty token
// means unauthenticated requests. A token file that cannot be read still
// yields "" along with the error, so callers decide how loudly to report it.
func (a AuthConfig) Resolve() (string, error) {
	if a.Token != "" {
		return a.Token, nil
	}
	if a.TokenEnv != "" {
		if v := os.Getenv(a.TokenEnv); v != "" {
			return v, nil
		}
	}
	if a.TokenFile == "" {
		return "", nil
	}
	token, err := LoadToken(a.TokenFile, a.TokenKey)
	if err != nil {
		return "", err
	}
	return token, nil
}

// TLSConfig holds upstream TLS dial options.
type TLSConfig struct {
	// InsecureSkipVerify disables TLS certificate verification.
	// Pi-hole installs commonly use a self-signed certificate.
	InsecureSkipVerify bool `yaml:"insecure_skip_verify"`
}

// BaseURL returns the api.php URL without a query string.
func (p PiHoleConfig) BaseURL() string {
	return p.Scheme + "://" + strings.TrimRight(p.Address, "/") + p.APIPath
}

// SlogLevel parses LogLevel.
func (e ExporterConfig) SlogLevel() slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(e.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return l
}

// Load reads and parses the YAML config file at path. An empty path yields
// the defaults. Missing optional fields are filled with defaults.
func Load(path string) (*Config, error) {
	cfg := Defaults()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// Defaults returns a Config pre-populated with default values.
func Defaults() *Config {
	return &Config{
		Exporter: ExporterConfig{
			ListenAddress: DefaultListenAddress,
			Port:          DefaultPort,
			MetricsPath:   DefaultMetricsPath,
			LogLevel:      DefaultLogLevel,
			StrictArity:   true,
		},
		PiHole: PiHoleConfig{
			Address:  DefaultAddress,
			Scheme:   DefaultScheme,
			APIPath:  DefaultAPIPath,
			Timeout:  DefaultTimeout,
			TopItems: DefaultTopItems,
			ClientQueries: ClientQueriesConfig{
				Mode:            schema.ModeLabeled,
				BlockedStatuses: slices.Clone(normalize.DefaultBlockedStatuses),
			},
			Auth: AuthConfig{
				TokenFile: DefaultTokenFile,
				TokenKey:  DefaultTokenKey,
			},
		},
	}
}

// Validate checks required fields and enums. It is also called after CLI
// flags have been applied.
func (cfg *Config) Validate() error {
	if cfg.Exporter.Port <= 0 || cfg.Exporter.Port > 65535 {
		return fmt.Errorf("exporter.port %d out of range", cfg.Exporter.Port)
	}
	if !strings.HasPrefix(cfg.Exporter.MetricsPath, "/") {
		return fmt.Errorf("exporter.metrics_path must start with /")
	}
	if cfg.Exporter.MetricsPath == "/healthz" {
		return fmt.Errorf("exporter.metrics_path /healthz is reserved")
	}
	switch strings.ToLower(cfg.Exporter.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("exporter.log_level: unknown level %q", cfg.Exporter.LogLevel)
	}
	if cfg.PiHole.Address == "" {
		return fmt.Errorf("pihole.address is required")
	}
	switch cfg.PiHole.Scheme {
	case "http", "https":
	default:
		return fmt.Errorf("pihole.scheme: unknown scheme %q", cfg.PiHole.Scheme)
	}
	if !strings.HasPrefix(cfg.PiHole.APIPath, "/") {
		return fmt.Errorf("pihole.api_path must start with /")
	}
	if cfg.PiHole.Timeout <= 0 {
		return fmt.Errorf("pihole.timeout must be positive")
	}
	if cfg.PiHole.TopItems <= 0 {
		return fmt.Errorf("pihole.top_items must be positive")
	}
	switch cfg.PiHole.ClientQueries.Mode {
	case schema.ModeLabeled, schema.ModeSplit:
	default:
		return fmt.Errorf("pihole.client_queries.mode: unknown mode %q", cfg.PiHole.ClientQueries.Mode)
	}
	if cfg.PiHole.Auth.TokenFile != "" && cfg.PiHole.Auth.TokenKey == "" {
		return fmt.Errorf("pihole.auth.token_key is required with token_file")
	}
	return nil
}
