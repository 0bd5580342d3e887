package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/grabgate/grabgate/internal/downloader"
)

// Version is the application version reported by the health endpoint.
const Version = "1.0.0"

// Config holds all application configuration.
type Config struct {
	Server         ServerConfig         `mapstructure:"server"`
	Sonarr         SonarrConfig         `mapstructure:"sonarr"`
	DownloadClient DownloadClientConfig `mapstructure:"download_client"`
	Filtering      FilteringConfig      `mapstructure:"filtering"`
	Database       DatabaseConfig       `mapstructure:"database"`
	Logging        LoggingConfig        `mapstructure:"logging"`
	Scheduler      SchedulerConfig      `mapstructure:"scheduler"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// SonarrConfig holds the Sonarr API connection settings.
type SonarrConfig struct {
	URL    string `mapstructure:"url"`
	APIKey string `mapstructure:"api_key"`
}

// DownloadClientConfig holds the download client connection settings.
type DownloadClientConfig struct {
	Type     string `mapstructure:"type"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	UseSSL   bool   `mapstructure:"use_ssl"`
	URLBase  string `mapstructure:"url_base"`
}

// FilteringConfig holds the extension policy settings.
type FilteringConfig struct {
	BlockedExtensions []string `mapstructure:"blocked_extensions"`
	AllowedExtensions []string `mapstructure:"allowed_extensions"`
}

// DatabaseConfig holds database configuration.
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Path   string `mapstructure:"path"`
}

// SchedulerConfig holds background task configuration.
type SchedulerConfig struct {
	HealthCheckMinutes int `mapstructure:"health_check_minutes"`
	CleanupMinutes     int `mapstructure:"cleanup_minutes"`
}

// Load reads configuration from file and environment variables.
// Priority: environment variables > config file > defaults
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("$HOME/.grabgate")
	}

	v.SetEnvPrefix("GRABGATE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found, using defaults + env vars
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that required settings are present and well formed.
func (c *Config) Validate() error {
	if c.Sonarr.URL == "" {
		return fmt.Errorf("sonarr.url is required")
	}
	if c.Sonarr.APIKey == "" {
		return fmt.Errorf("sonarr.api_key is required")
	}
	if _, err := downloader.ParseClientType(c.DownloadClient.Type); err != nil {
		return fmt.Errorf("download_client.type: %w", err)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535")
	}
	return nil
}

// setDefaults sets default values in viper
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8090)

	// Sonarr defaults
	v.SetDefault("sonarr.url", "")
	v.SetDefault("sonarr.api_key", "")

	// Download client defaults
	v.SetDefault("download_client.type", "qbittorrent")
	v.SetDefault("download_client.host", "localhost")
	v.SetDefault("download_client.port", 8080)
	v.SetDefault("download_client.username", "")
	v.SetDefault("download_client.password", "")
	v.SetDefault("download_client.use_ssl", false)
	v.SetDefault("download_client.url_base", "")

	// Filtering defaults
	v.SetDefault("filtering.blocked_extensions", []string{".lnk", ".zipx", ".arj", ".exe", ".scr", ".bat", ".cmd", ".vbs", ".js"})
	v.SetDefault("filtering.allowed_extensions", []string{})

	// Database defaults
	v.SetDefault("database.path", "./data/grabgate.db")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("logging.path", "")

	// Scheduler defaults
	v.SetDefault("scheduler.health_check_minutes", 15)
	v.SetDefault("scheduler.cleanup_minutes", 60)
}

// Address returns the server address string.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// ClientConfig converts the download client settings into the form the
// client factory consumes.
func (c *DownloadClientConfig) ClientConfig() downloader.ClientConfig {
	return downloader.ClientConfig{
		Host:     c.Host,
		Port:     c.Port,
		Username: c.Username,
		Password: c.Password,
		UseSSL:   c.UseSSL,
		URLBase:  c.URLBase,
	}
}
