package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

// EnvPrefix is the namespace for all environment variables.
const EnvPrefix = "AXIS"

// MaxRegistryTimeout bounds every registry channel operation.
const MaxRegistryTimeout = 15 * time.Second

// Registry channel kinds
const (
	ChannelFile   = "file"
	ChannelHTTP   = "http"
	ChannelGitHub = "github"
	ChannelSheets = "sheets"
)

// Config represents the complete application configuration
type Config struct {
	Server   ServerConfig   `yaml:"server" envconfig:"SERVER"`
	Logging  LoggingConfig  `yaml:"logging" envconfig:"LOGGING"`
	Paths    PathsConfig    `yaml:"paths" envconfig:"PATHS"`
	License  LicenseConfig  `yaml:"license" envconfig:"LICENSE"`
	Registry RegistryConfig `yaml:"registry" envconfig:"REGISTRY"`
	Admin    AdminConfig    `yaml:"admin" envconfig:"ADMIN"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Host            string        `yaml:"host" envconfig:"HOST"`
	Port            int           `yaml:"port" envconfig:"PORT"`
	ReadTimeout     time.Duration `yaml:"read_timeout" envconfig:"READ_TIMEOUT"`
	WriteTimeout    time.Duration `yaml:"write_timeout" envconfig:"WRITE_TIMEOUT"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" envconfig:"IDLE_TIMEOUT"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" envconfig:"SHUTDOWN_TIMEOUT"`
}

// Addr returns the listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level       string `yaml:"level" envconfig:"LEVEL"`
	Format      string `yaml:"format" envconfig:"FORMAT"`
	Output      string `yaml:"output" envconfig:"OUTPUT"`
	FilePath    string `yaml:"file_path" envconfig:"FILE_PATH"`
	Development bool   `yaml:"development" envconfig:"DEVELOPMENT"`
}

// PathsConfig contains file system paths configuration.
// Relative entries are resolved against BaseDir, which defaults to the
// executable directory.
type PathsConfig struct {
	BaseDir       string `yaml:"base_dir" envconfig:"BASE_DIR"`
	KeysDir       string `yaml:"keys_dir" envconfig:"KEYS_DIR"`
	RegistryFile  string `yaml:"registry_file" envconfig:"REGISTRY_FILE"`
	RegistryCache string `yaml:"registry_cache" envconfig:"REGISTRY_CACHE"`
	LicenseFile   string `yaml:"license_file" envconfig:"LICENSE_FILE"`
	LogsDir       string `yaml:"logs_dir" envconfig:"LOGS_DIR"`
	ExportsDir    string `yaml:"exports_dir" envconfig:"EXPORTS_DIR"`
}

// LicenseConfig contains client-side validation settings
type LicenseConfig struct {
	RevalidateInterval time.Duration `yaml:"revalidate_interval" envconfig:"REVALIDATE_INTERVAL"`
	ActivationRPS      float64       `yaml:"activation_rps" envconfig:"ACTIVATION_RPS"`
	ActivationBurst    int           `yaml:"activation_burst" envconfig:"ACTIVATION_BURST"`
}

// RegistryConfig selects and configures the registry replication channel
type RegistryConfig struct {
	Channel         string        `yaml:"channel" envconfig:"CHANNEL"`
	URL             string        `yaml:"url" envconfig:"URL"`
	BindURL         string        `yaml:"bind_url" envconfig:"BIND_URL"`
	FilePath        string        `yaml:"file_path" envconfig:"FILE_PATH"`
	Timeout         time.Duration `yaml:"timeout" envconfig:"TIMEOUT"`
	RetryMax        int           `yaml:"retry_max" envconfig:"RETRY_MAX"`
	PublishSchedule string        `yaml:"publish_schedule" envconfig:"PUBLISH_SCHEDULE"`
	GitHub          GitHubConfig  `yaml:"github" envconfig:"GITHUB"`
	Sheets          SheetsConfig  `yaml:"sheets" envconfig:"SHEETS"`
}

// GitHubConfig configures publishing the registry into a GitHub repository
type GitHubConfig struct {
	Owner       string `yaml:"owner" envconfig:"OWNER"`
	Repo        string `yaml:"repo" envconfig:"REPO"`
	Branch      string `yaml:"branch" envconfig:"BRANCH"`
	Path        string `yaml:"path" envconfig:"CONTENT_PATH"`
	Token       string `yaml:"token" envconfig:"TOKEN"`
	AuthorName  string `yaml:"author_name" envconfig:"AUTHOR_NAME"`
	AuthorEmail string `yaml:"author_email" envconfig:"AUTHOR_EMAIL"`
}

// SheetsConfig configures the Google Sheets registry channel
type SheetsConfig struct {
	SpreadsheetID   string `yaml:"spreadsheet_id" envconfig:"SPREADSHEET_ID"`
	Range           string `yaml:"range" envconfig:"RANGE"`
	CredentialsFile string `yaml:"credentials_file" envconfig:"CREDENTIALS_FILE"`
}

// AdminConfig guards the key server management API
type AdminConfig struct {
	Token string `yaml:"token" envconfig:"TOKEN"`
}

// Load loads configuration from defaults, an optional config file and
// environment variables, in increasing order of precedence.
func Load() (*Config, error) {
	cfg := Default()

	if configFile := getConfigFilePath(); configFile != "" {
		if err := loadFromFile(configFile, cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// LoadFile loads configuration from a specific YAML file on top of defaults
// and applies environment overrides.
func LoadFile(path string) (*Config, error) {
	cfg := Default()
	if err := loadFromFile(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from file: %w", err)
	}
	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// loadFromFile overlays the YAML file onto cfg
func loadFromFile(filePath string, cfg *Config) error {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

// ResolvePaths resolves the configured file locations.
func (c *Config) ResolvePaths() (*Paths, error) {
	base := c.Paths.BaseDir
	if base == "" {
		p, err := GetPaths()
		if err != nil {
			return nil, err
		}
		base = p.ExecutableDir
	}

	paths := NewPaths(base)
	resolve := func(target *string, configured string) {
		if configured == "" {
			return
		}
		if filepath.IsAbs(configured) {
			*target = configured
			return
		}
		*target = filepath.Join(base, configured)
	}
	resolve(&paths.KeysDir, c.Paths.KeysDir)
	resolve(&paths.RegistryFile, c.Paths.RegistryFile)
	resolve(&paths.RegistryCache, c.Paths.RegistryCache)
	resolve(&paths.LicenseFile, c.Paths.LicenseFile)
	resolve(&paths.LogsDir, c.Paths.LogsDir)
	resolve(&paths.ExportsDir, c.Paths.ExportsDir)

	return paths, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Server.ReadTimeout <= 0 {
		return fmt.Errorf("server read timeout must be positive")
	}

	if c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("server write timeout must be positive")
	}

	if c.License.RevalidateInterval <= 0 {
		return fmt.Errorf("license revalidate interval must be positive")
	}

	if c.Registry.Timeout <= 0 || c.Registry.Timeout > MaxRegistryTimeout {
		return fmt.Errorf("registry timeout must be in (0, %s], got %s", MaxRegistryTimeout, c.Registry.Timeout)
	}

	if c.Registry.RetryMax < 0 {
		return fmt.Errorf("registry retry_max must not be negative")
	}

	switch strings.ToLower(c.Registry.Channel) {
	case ChannelFile, ChannelHTTP, ChannelGitHub, ChannelSheets:
		c.Registry.Channel = strings.ToLower(c.Registry.Channel)
	default:
		return fmt.Errorf("unknown registry channel %q", c.Registry.Channel)
	}

	// Always JSON
	c.Logging.Format = "json"

	switch c.Logging.Output {
	case "console", "file", "both":
	default:
		c.Logging.Output = "console"
	}

	if c.Logging.FilePath == "" {
		c.Logging.FilePath = "logs/app.log"
	}

	return nil
}

// getConfigFilePath returns the path to the config file
func getConfigFilePath() string {
	if p := os.Getenv(EnvPrefix + "_CONFIG"); p != "" {
		return p
	}

	locations := []string{
		"config.yaml",
		"configs/config.yaml",
		"../configs/config.yaml",
	}

	for _, location := range locations {
		if _, err := os.Stat(location); err == nil {
			return location
		}
	}

	return ""
}

// Default returns default configuration
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "127.0.0.1",
			Port:            8090,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Logging: LoggingConfig{
			Level:    "info",
			Format:   "json",
			Output:   "console",
			FilePath: "logs/app.log",
		},
		License: LicenseConfig{
			RevalidateInterval: 5 * time.Minute,
			ActivationRPS:      0.2,
			ActivationBurst:    5,
		},
		Registry: RegistryConfig{
			Channel:         ChannelHTTP,
			Timeout:         10 * time.Second,
			RetryMax:        2,
			PublishSchedule: "@every 1h",
			GitHub: GitHubConfig{
				Branch:      "main",
				Path:        "keys.json",
				AuthorName:  "axis-keyadmin",
				AuthorEmail: "keyadmin@users.noreply.github.com",
			},
			Sheets: SheetsConfig{
				Range: "Registry!A1",
			},
		},
	}
}
