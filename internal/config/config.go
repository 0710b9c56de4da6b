// Package config loads and locates the broker's TOML configuration,
// adapted from PrintMaster's shared config helpers down to a single
// component (there's no agent/server split here, just the one daemon).
package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
)

// FindConfigFile searches for filename in every platform-appropriate
// location and returns the first one found.
func FindConfigFile(filename string) (string, []byte, error) {
	for _, path := range GetConfigSearchPaths(filename) {
		if data, err := os.ReadFile(path); err == nil {
			return path, data, nil
		}
	}
	return "", nil, fmt.Errorf("%s not found in any search path", filename)
}

// GetConfigSearchPaths returns an ordered list of paths to search for
// filename, highest priority first.
func GetConfigSearchPaths(filename string) []string {
	var searchPaths []string

	switch runtime.GOOS {
	case "windows":
		searchPaths = append(searchPaths, filepath.Join(os.Getenv("ProgramData"), "cloudprntd", filename))
	case "darwin":
		searchPaths = append(searchPaths, filepath.Join("/Library/Application Support/cloudprntd", filename))
	default:
		searchPaths = append(searchPaths, filepath.Join("/etc/cloudprntd", filename))
	}

	if homeDir, err := os.UserHomeDir(); err == nil {
		switch runtime.GOOS {
		case "windows":
			searchPaths = append(searchPaths, filepath.Join(homeDir, "AppData", "Local", "cloudprntd", filename))
		case "darwin":
			searchPaths = append(searchPaths, filepath.Join(homeDir, "Library/Application Support/cloudprntd", filename))
		default:
			searchPaths = append(searchPaths, filepath.Join(homeDir, ".config", "cloudprntd", filename))
		}
	}

	if exePath, err := os.Executable(); err == nil {
		searchPaths = append(searchPaths, filepath.Join(filepath.Dir(exePath), filename))
	}

	searchPaths = append(searchPaths, filepath.Join(".", filename))

	return searchPaths
}

// GetDataDirectory returns the directory the broker stores its queue
// database and registry under. Docker deployments (DOCKER env var set)
// always get the mounted volume path regardless of isService.
func GetDataDirectory(isService bool) (string, error) {
	var dataDir string

	if os.Getenv("DOCKER") != "" {
		dataDir = "/var/lib/cloudprntd"
	} else if isService {
		switch runtime.GOOS {
		case "windows":
			dataDir = filepath.Join(os.Getenv("ProgramData"), "cloudprntd")
		default:
			dataDir = "/var/lib/cloudprntd"
		}
	} else {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("could not get user home directory: %w", err)
		}
		switch runtime.GOOS {
		case "windows":
			dataDir = filepath.Join(homeDir, "AppData", "Local", "cloudprntd")
		case "darwin":
			dataDir = filepath.Join(homeDir, "Library/Application Support/cloudprntd")
		default:
			dataDir = filepath.Join(homeDir, ".local/share/cloudprntd")
		}
	}

	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create data directory: %w", err)
	}
	return dataDir, nil
}

// GetLogDirectory returns the directory log files are rotated into.
func GetLogDirectory(isService bool) (string, error) {
	var logDir string

	if os.Getenv("DOCKER") != "" {
		logDir = "/var/log/cloudprntd"
	} else if isService {
		switch runtime.GOOS {
		case "windows":
			logDir = filepath.Join(os.Getenv("ProgramData"), "cloudprntd", "logs")
		default:
			logDir = "/var/log/cloudprntd"
		}
	} else {
		logDir = "logs"
	}

	if err := os.MkdirAll(logDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create log directory: %w", err)
	}
	return logDir, nil
}

// WriteDefaultTOML writes cfg to configPath unless a file already exists
// there, so a first-run daemon seeds a config without clobbering an
// operator's edits on restart.
func WriteDefaultTOML(configPath string, cfg interface{}) error {
	if _, err := os.Stat(configPath); err == nil {
		return fmt.Errorf("config file already exists at %s (will not overwrite)", configPath)
	}

	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	file, err := os.Create(configPath)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer file.Close()

	if err := toml.NewEncoder(file).Encode(cfg); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// WriteTOML writes cfg to configPath, overwriting any existing file.
// The write is atomic: it lands in a temp file first, then renames over
// the target, so a crash mid-write never leaves a truncated config.
func WriteTOML(configPath string, cfg interface{}) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config to TOML: %w", err)
	}

	tmp := configPath + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("failed to write temp config file: %w", err)
	}
	if err := os.Rename(tmp, configPath); err != nil {
		return fmt.Errorf("failed to rename temp config file: %w", err)
	}
	return nil
}

// LoadTOML decodes configPath into cfg.
func LoadTOML(configPath string, cfg interface{}) error {
	if _, err := os.Stat(configPath); err != nil {
		return fmt.Errorf("config file not found: %w", err)
	}

	if _, err := toml.DecodeFile(configPath, cfg); err != nil {
		// Windows paths in double-quoted TOML strings (path = "C:\foo\bar")
		// trip the decoder over the backslash escapes. Retry once with
		// path assignments rewritten to single-quoted (literal) strings.
		if strings.Contains(err.Error(), "invalid escape") {
			data, rerr := os.ReadFile(configPath)
			if rerr != nil {
				return fmt.Errorf("failed to parse config file: %w", err)
			}
			re := regexp.MustCompile(`(?m)^\s*path\s*=\s*"([^"\\]*\\[^"]*)"`)
			transformed := re.ReplaceAllString(string(data), "path = '$1'")
			if _, derr := toml.Decode(transformed, cfg); derr == nil {
				return nil
			}
		}
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	return nil
}

// BrokerConfig is the top-level configuration document: spec.md §6.5's
// keys plus the sub-configs for the database, push bridge, registry and
// logger.
type BrokerConfig struct {
	ListenAddr                string   `toml:"listen_addr"`
	DefaultPaperWidthMM       int      `toml:"default_paper_width_mm"`
	CodePage                  string   `toml:"code_page"`
	ImageFetchTimeoutMS       int      `toml:"image_fetch_timeout_ms"`
	InvoiceResolverTimeoutMS  int      `toml:"invoice_resolver_timeout_ms"`
	DiscoveryTTLSecs          int      `toml:"discovery_ttl_s"`
	DefaultMediaTypes         []string `toml:"default_media_types"`
	PublicBaseURL             string   `toml:"public_base_url"`

	Database   DatabaseConfig   `toml:"database"`
	PushBridge PushBridgeConfig `toml:"push_bridge"`
	Registry   RegistryConfig   `toml:"registry"`
	Logging    LoggingConfig    `toml:"logging"`
}

// DefaultBrokerConfig returns the spec.md §6.5 defaults.
func DefaultBrokerConfig() BrokerConfig {
	return BrokerConfig{
		ListenAddr:               ":8001",
		DefaultPaperWidthMM:      80,
		CodePage:                 "cp1252",
		ImageFetchTimeoutMS:      10000,
		InvoiceResolverTimeoutMS: 30000,
		DiscoveryTTLSecs:         300,
		DefaultMediaTypes:        []string{"application/vnd.star.line", "text/vnd.star.markup"},
		Database:                 DatabaseConfig{Driver: "sqlite", Path: "cloudprntd.db"},
		Logging:                  LoggingConfig{Level: "INFO"},
	}
}

// ApplyBrokerEnvOverrides applies CLOUDPRNTD_*-prefixed environment
// variable overrides on top of a loaded config.
func ApplyBrokerEnvOverrides(cfg *BrokerConfig) {
	if val := os.Getenv("CLOUDPRNTD_LISTEN_ADDR"); val != "" {
		cfg.ListenAddr = val
	}
	if val := os.Getenv("CLOUDPRNTD_CODE_PAGE"); val != "" {
		cfg.CodePage = val
	}
	if val := os.Getenv("CLOUDPRNTD_PUBLIC_BASE_URL"); val != "" {
		cfg.PublicBaseURL = val
	}
	if val := os.Getenv("CLOUDPRNTD_PAPER_WIDTH_MM"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			cfg.DefaultPaperWidthMM = n
		}
	}
	ApplyDatabaseEnvOverrides(&cfg.Database, "CLOUDPRNTD")
	ApplyLoggingEnvOverrides(&cfg.Logging)
}

// DatabaseConfig holds the queue store's database settings.
// For SQLite: only Path is required.
// For PostgreSQL: use Host, Port, User, Password, Name, and optionally SSLMode.
type DatabaseConfig struct {
	// Driver selects the backend: "sqlite" (default) or "postgres".
	Driver string `toml:"driver"`
	// Path is the SQLite database file path (sqlite driver only).
	Path string `toml:"path"`
	// DSN, if set, overrides the individual connection fields below.
	DSN                 string `toml:"dsn"`
	Host                string `toml:"host"`
	Port                int    `toml:"port"`
	User                string `toml:"user"`
	Password            string `toml:"password"`
	Name                string `toml:"name"`
	SSLMode             string `toml:"ssl_mode"`
	MaxOpenConns        int    `toml:"max_open_conns"`
	MaxIdleConns        int    `toml:"max_idle_conns"`
	ConnMaxLifetimeSecs int    `toml:"conn_max_lifetime_secs"`
}

// EffectiveDriver returns the configured driver, defaulting to "sqlite".
func (c *DatabaseConfig) EffectiveDriver() string {
	if c.Driver == "" {
		return "sqlite"
	}
	return c.Driver
}

// BuildDSN constructs a connection string for the configured driver, or
// returns DSN directly if one was set explicitly.
func (c *DatabaseConfig) BuildDSN() string {
	if c.DSN != "" {
		return c.DSN
	}

	switch c.EffectiveDriver() {
	case "postgres", "postgresql":
		port := c.Port
		if port == 0 {
			port = 5432
		}
		sslMode := c.SSLMode
		if sslMode == "" {
			sslMode = "prefer"
		}
		dbName := c.Name
		if dbName == "" {
			dbName = "cloudprntd"
		}
		host := c.Host
		if host == "" {
			host = "localhost"
		}
		user := c.User
		if user == "" {
			user = "cloudprntd"
		}
		return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
			user, c.Password, host, port, dbName, sslMode)

	default:
		if c.Path != "" {
			return c.Path
		}
		return "cloudprntd.db"
	}
}

// PushBridgeConfig configures the MQTT connection used to notify printers
// that support push instead of relying purely on poll.
type PushBridgeConfig struct {
	Enabled     bool   `toml:"enabled"`
	BrokerURL   string `toml:"broker_url"`
	TopicPrefix string `toml:"topic_prefix"`
	QoS         byte   `toml:"qos"`
	ClientID    string `toml:"client_id"`
}

// RegistryConfig configures the printer registry's static settings —
// spec.md §4.H's fields that live in config rather than the database.
type RegistryConfig struct {
	HeaderLogoURL string `toml:"header_logo_url"`
	FooterLogoURL string `toml:"footer_logo_url"`
}

// LoggingConfig holds logger settings.
type LoggingConfig struct {
	Level          string `toml:"level"`
	FilePrefix     string `toml:"file_prefix"`
	MaxBufferSize  int    `toml:"max_buffer_size"`
	MaxSizeMB      int    `toml:"max_size_mb"`
	MaxAgeDays     int    `toml:"max_age_days"`
	MaxFiles       int    `toml:"max_files"`
}

// ApplyDatabaseEnvOverrides applies <PREFIX>_DB_*-prefixed environment
// overrides to cfg, falling back to the unprefixed DB_* form.
func ApplyDatabaseEnvOverrides(cfg *DatabaseConfig, prefix string) {
	getEnv := func(key string) string {
		if prefix != "" {
			if val := os.Getenv(strings.ToUpper(prefix) + "_DB_" + key); val != "" {
				return val
			}
		}
		return os.Getenv("DB_" + key)
	}

	if val := getEnv("DRIVER"); val != "" {
		cfg.Driver = val
	}
	if val := getEnv("PATH"); val != "" {
		cfg.Path = val
	}
	if val := getEnv("DSN"); val != "" {
		cfg.DSN = val
	}
	if val := getEnv("HOST"); val != "" {
		cfg.Host = val
	}
	if val := getEnv("PORT"); val != "" {
		if port, err := strconv.Atoi(val); err == nil {
			cfg.Port = port
		}
	}
	if val := getEnv("USER"); val != "" {
		cfg.User = val
	}
	if val := getEnv("PASSWORD"); val != "" {
		cfg.Password = val
	} else if val := getEnv("PASS"); val != "" {
		cfg.Password = val
	}
	if val := getEnv("NAME"); val != "" {
		cfg.Name = val
	}
	if val := getEnv("SSL_MODE"); val != "" {
		cfg.SSLMode = val
	}
	if val := getEnv("MAX_OPEN_CONNS"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			cfg.MaxOpenConns = n
		}
	}
	if val := getEnv("MAX_IDLE_CONNS"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			cfg.MaxIdleConns = n
		}
	}
	if val := getEnv("CONN_MAX_LIFETIME_SECS"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			cfg.ConnMaxLifetimeSecs = n
		}
	}
}

// ResolveConfigPath resolves a config file path from <PREFIX>_CONFIG,
// <PREFIX>_CONFIG_PATH, CONFIG, CONFIG_PATH, then flagValue, in that
// order of precedence. Returns "" if none are set.
func ResolveConfigPath(prefix string, flagValue string) string {
	if prefix != "" {
		if val := os.Getenv(strings.ToUpper(prefix) + "_CONFIG"); val != "" {
			return val
		}
		if val := os.Getenv(strings.ToUpper(prefix) + "_CONFIG_PATH"); val != "" {
			return val
		}
	}
	if val := os.Getenv("CONFIG"); val != "" {
		return val
	}
	if val := os.Getenv("CONFIG_PATH"); val != "" {
		return val
	}
	if flagValue != "" {
		return flagValue
	}
	return ""
}

// GetEnvPrefixed returns the value of <PREFIX>_<KEY>, falling back to the
// unprefixed KEY.
func GetEnvPrefixed(prefix, key string) string {
	if prefix != "" {
		if val := os.Getenv(strings.ToUpper(prefix) + "_" + strings.ToUpper(key)); val != "" {
			return val
		}
	}
	return os.Getenv(strings.ToUpper(key))
}

// ApplyLoggingEnvOverrides applies the LOG_LEVEL environment override.
func ApplyLoggingEnvOverrides(cfg *LoggingConfig) {
	if val := os.Getenv("LOG_LEVEL"); val != "" {
		cfg.Level = val
	}
}
