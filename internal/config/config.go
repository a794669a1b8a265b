package config

import (
	yamlenv "github.com/ifuryst/go-yaml-env"

	"github.com/plateful/plateful/pkg/logger"
)

type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Logger     logger.Config    `yaml:"logger"`
	Auth       AuthConfig       `yaml:"auth"`
	Schedule   ScheduleConfig   `yaml:"schedule"`
	Scan       ScanConfig       `yaml:"scan"`
	Publisher  PublisherConfig  `yaml:"publisher"`
	Reconciler ReconcilerConfig `yaml:"reconciler"`
}

type ServerConfig struct {
	Port     int    `yaml:"port"`
	Host     string `yaml:"host"`
	Mode     string `yaml:"mode"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	SSLMode  string `yaml:"ssl_mode"`
	TimeZone string `yaml:"timezone"`
}

type AuthConfig struct {
	CronSecret string `yaml:"cron_secret"`
	TOTPSecret string `yaml:"totp_secret"`
}

// ScheduleConfig drives the slot grid and the posting executor. SlotHours
// are the canonical meal hours, one slot per hour listed.
type ScheduleConfig struct {
	SlotHours    []int `yaml:"slot_hours"`
	PostsPerDay  int   `yaml:"posts_per_day"`
	DaysAhead    int   `yaml:"days_ahead"`
	GraceMinutes int   `yaml:"grace_minutes"`
}

// ScanConfig holds the buffer thresholds the scan decision engine evaluates.
type ScanConfig struct {
	CriticalBuffer     int      `yaml:"critical_buffer"`
	LowBuffer          int      `yaml:"low_buffer"`
	HealthyBuffer      int      `yaml:"healthy_buffer"`
	MinVisualRatio     float64  `yaml:"min_visual_ratio"`
	PlatformMinBuffer  int      `yaml:"platform_min_buffer"`
	PlatformStaleHours int      `yaml:"platform_stale_hours"`
	MaintenanceHours   int      `yaml:"maintenance_hours"`
	EssentialPlatforms []string `yaml:"essential_platforms"`
	FallbackPlatforms  []string `yaml:"fallback_platforms"`
	DefaultMaxPosts    int      `yaml:"default_max_posts"`
}

type PublisherConfig struct {
	WebhookURL     string `yaml:"webhook_url"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	MaxRetries     int    `yaml:"max_retries"`
}

type ReconcilerConfig struct {
	Enabled           bool   `yaml:"enabled"`
	Interval          string `yaml:"interval"`
	StuckCutoffMinutes int   `yaml:"stuck_cutoff_minutes"`
	ErrorRetentionDays int   `yaml:"error_retention_days"`
}

func LoadConfig(configPath string) (*Config, error) {
	cfg, err := yamlenv.LoadConfig[Config](configPath)
	if err != nil {
		return nil, err
	}

	ApplyDefaults(cfg)
	return cfg, nil
}

// ApplyDefaults fills zero values with production defaults.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 5618
	}
	if cfg.Server.Mode == "" {
		cfg.Server.Mode = "debug"
	}
	if cfg.Database.Host == "" {
		cfg.Database.Host = "localhost"
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Database.TimeZone == "" {
		cfg.Database.TimeZone = "UTC"
	}
	if len(cfg.Schedule.SlotHours) == 0 {
		cfg.Schedule.SlotHours = []int{7, 10, 12, 15, 18, 21}
	}
	if cfg.Schedule.PostsPerDay == 0 {
		cfg.Schedule.PostsPerDay = 6
	}
	if cfg.Schedule.DaysAhead == 0 {
		cfg.Schedule.DaysAhead = 3
	}
	if cfg.Schedule.GraceMinutes == 0 {
		cfg.Schedule.GraceMinutes = 60
	}
	if cfg.Scan.CriticalBuffer == 0 {
		cfg.Scan.CriticalBuffer = 6
	}
	if cfg.Scan.LowBuffer == 0 {
		cfg.Scan.LowBuffer = 12
	}
	if cfg.Scan.HealthyBuffer == 0 {
		cfg.Scan.HealthyBuffer = 30
	}
	if cfg.Scan.MinVisualRatio == 0 {
		cfg.Scan.MinVisualRatio = 0.4
	}
	if cfg.Scan.PlatformMinBuffer == 0 {
		cfg.Scan.PlatformMinBuffer = 2
	}
	if cfg.Scan.PlatformStaleHours == 0 {
		cfg.Scan.PlatformStaleHours = 12
	}
	if cfg.Scan.MaintenanceHours == 0 {
		cfg.Scan.MaintenanceHours = 8
	}
	if len(cfg.Scan.EssentialPlatforms) == 0 {
		cfg.Scan.EssentialPlatforms = []string{"reddit", "giphy"}
	}
	if len(cfg.Scan.FallbackPlatforms) == 0 {
		cfg.Scan.FallbackPlatforms = []string{"reddit", "giphy", "youtube"}
	}
	if cfg.Scan.DefaultMaxPosts == 0 {
		cfg.Scan.DefaultMaxPosts = 25
	}
	if cfg.Publisher.TimeoutSeconds == 0 {
		cfg.Publisher.TimeoutSeconds = 30
	}
	if cfg.Publisher.MaxRetries == 0 {
		cfg.Publisher.MaxRetries = 2
	}
	if cfg.Reconciler.Interval == "" {
		cfg.Reconciler.Interval = "30m"
	}
	if cfg.Reconciler.StuckCutoffMinutes == 0 {
		cfg.Reconciler.StuckCutoffMinutes = 120
	}
	if cfg.Reconciler.ErrorRetentionDays == 0 {
		cfg.Reconciler.ErrorRetentionDays = 90
	}
}
