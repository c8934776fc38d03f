package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// TrustedProxies holds the proxy allow-lists per binary for release builds
type TrustedProxies struct {
	QueueServer []string `json:"queue_server"`
}

// Config holds the configuration shared by the CloudVid Bridge binaries
type Config struct {
	WebAddr      string `json:"web_addr"`
	WebPort      int    `json:"web_port"`
	DatabasePath string `json:"database_path"`
	LogPath      string `json:"log_path"`
	LogLevel     string `json:"log_level"`

	// Bootstrap credentials for the first user account. Only used when the
	// user table is empty.
	AdminUsername string `json:"admin_username"`
	AdminPassword string `json:"admin_password"`

	// Login throttling: failures within the window before the account is
	// locked out. A threshold of 0 disables the lockout.
	LoginFailureThreshold     int `json:"login_failure_threshold"`
	LoginFailureWindowSeconds int `json:"login_failure_window_seconds"`

	// Heroku formation settings for the worker scaling task
	HerokuAPIKey   string `json:"heroku_api_key"`
	HerokuAppName  string `json:"heroku_app_name"`
	WorkerDynoType string `json:"worker_dyno_type"`

	// Daily YouTube API quota allowance and per-operation unit costs
	QuotaDailyLimit int            `json:"quota_daily_limit"`
	QuotaCosts      map[string]int `json:"quota_costs"`

	// Remote platform endpoints and tokens. The base URLs are overridable
	// mainly for tests.
	DriveBaseURL         string `json:"drive_base_url"`
	DriveAccessToken     string `json:"drive_access_token"`
	YouTubeBaseURL       string `json:"youtube_base_url"`
	YouTubeUploadBaseURL string `json:"youtube_upload_base_url"`
	YouTubeAccessToken   string `json:"youtube_access_token"`

	// Upload worker settings
	WorkerPollSeconds int    `json:"worker_poll_seconds"`
	WorkerTempDir     string `json:"worker_temp_dir"`

	// Email notification settings. An empty SMTP host disables notifications.
	SMTPHost                 string  `json:"smtp_host"`
	SMTPPort                 int     `json:"smtp_port"`
	SMTPUsername             string  `json:"smtp_username"`
	SMTPPassword             string  `json:"smtp_password"`
	SMTPFrom                 string  `json:"smtp_from"`
	NotifyRecipient          string  `json:"notify_recipient"`
	NotifyMinIntervalMinutes int     `json:"notify_min_interval_minutes"`
	QuotaWarningThreshold    float64 `json:"quota_warning_threshold"`

	TrustedProxies *TrustedProxies `json:"trusted_proxies,omitempty"`
}

// NotificationsEnabled reports whether email notifications are configured.
func (c *Config) NotificationsEnabled() bool {
	return c.SMTPHost != "" && c.NotifyRecipient != ""
}

// DefaultConfig returns a new Config with default values
func DefaultConfig() *Config {

	dataDir := "."

	homeDir, err := os.UserHomeDir()
	if err == nil && homeDir != "" {
		dataDir = filepath.Join(homeDir, "cloudvid")

		// Ensure the directory exists
		if err := os.MkdirAll(dataDir, 0755); err != nil {
			dataDir = "."
		}
	}

	return &Config{
		WebAddr:                   "127.0.0.1",
		WebPort:                   8080,
		DatabasePath:              filepath.Join(dataDir, "cloudvid.db"),
		LogPath:                   "logs",
		LogLevel:                  "info",
		LoginFailureThreshold:     5,
		LoginFailureWindowSeconds: 300,
		WorkerDynoType:            "worker",
		QuotaDailyLimit:           10000,
		QuotaCosts: map[string]int{
			"videos.insert":      1600,
			"videos.list":        1,
			"channels.list":      1,
			"playlistItems.list": 1,
		},
		DriveBaseURL:             "https://www.googleapis.com/drive/v3",
		YouTubeBaseURL:           "https://www.googleapis.com/youtube/v3",
		YouTubeUploadBaseURL:     "https://www.googleapis.com/upload/youtube/v3",
		WorkerPollSeconds:        5,
		SMTPPort:                 587,
		NotifyMinIntervalMinutes: 60,
		QuotaWarningThreshold:    0.9,
	}
}

// defaultConfigPath returns the path of the config file in the user's home directory
func defaultConfigPath() string {
	homeDir, err := os.UserHomeDir()
	if err != nil || homeDir == "" {
		return "config.json"
	}
	return filepath.Join(homeDir, "cloudvid", "config.json")
}

// LoadConfig loads the configuration from a JSON file. An empty path loads
// from the default location in the user's home directory. Deploy-provided
// environment variables override the corresponding file values.
func LoadConfig(path string) (*Config, error) {
	config := DefaultConfig()

	if path == "" {
		path = defaultConfigPath()
	}

	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			// If the file doesn't exist, we can proceed with the default config
			config.applyEnvOverrides()
			return config, nil
		}
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	decoder := json.NewDecoder(file)
	if err := decoder.Decode(config); err != nil {
		return nil, fmt.Errorf("failed to decode config file: %w", err)
	}

	config.applyEnvOverrides()
	return config, nil
}

// applyEnvOverrides lets the deploy platform inject secrets without a config file
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("HEROKU_API_KEY"); v != "" {
		c.HerokuAPIKey = v
	}
	if v := os.Getenv("HEROKU_APP_NAME"); v != "" {
		c.HerokuAppName = v
	}
	if v := os.Getenv("DRIVE_ACCESS_TOKEN"); v != "" {
		c.DriveAccessToken = v
	}
	if v := os.Getenv("YOUTUBE_ACCESS_TOKEN"); v != "" {
		c.YouTubeAccessToken = v
	}
	if v := os.Getenv("SMTP_PASSWORD"); v != "" {
		c.SMTPPassword = v
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.WebPort <= 0 || c.WebPort > 65535 {
		return fmt.Errorf("invalid web port: %d", c.WebPort)
	}
	if c.QuotaDailyLimit <= 0 {
		return fmt.Errorf("invalid quota daily limit: %d", c.QuotaDailyLimit)
	}
	for op, cost := range c.QuotaCosts {
		if cost <= 0 {
			return fmt.Errorf("invalid quota cost for %s: %d", op, cost)
		}
	}
	if c.WorkerPollSeconds <= 0 {
		return fmt.Errorf("invalid worker poll interval: %d", c.WorkerPollSeconds)
	}
	if c.QuotaWarningThreshold < 0 || c.QuotaWarningThreshold > 1 {
		return fmt.Errorf("invalid quota warning threshold: %f", c.QuotaWarningThreshold)
	}
	return nil
}

// SaveConfig saves the configuration to a JSON file. An empty path saves to
// the default location.
func (c *Config) SaveConfig(path string) error {
	if path == "" {
		path = defaultConfigPath()
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(c); err != nil {
		return fmt.Errorf("failed to encode config file: %w", err)
	}

	return nil
}
