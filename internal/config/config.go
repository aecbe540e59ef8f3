package config

import (
	"fmt"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config is the full agent configuration, loaded from YAML with
// environment-variable overrides
type Config struct {
	Env         string `yaml:"env" env:"APP_ENV" env-default:"production"`
	StoragePath string `yaml:"storage_path" env:"STORAGE_PATH" env-default:"worktime.db"`

	Log struct {
		Level     string `yaml:"level" env:"LOG_LEVEL" env-default:"info"`
		Format    string `yaml:"format" env:"LOG_FORMAT" env-default:"console"`
		File      string `yaml:"file" env:"LOG_FILE" env-default:""`
		MaxSizeMB int    `yaml:"max_size_mb" env:"LOG_MAX_SIZE_MB" env-default:"50"`
	} `yaml:"log"`

	Server struct {
		Enabled bool `yaml:"enabled" env:"SERVER_ENABLED" env-default:"true"`
		Port    int  `yaml:"port" env:"SERVER_PORT" env-default:"8421"`
	} `yaml:"server"`

	Ingest struct {
		MaxFutureSkew time.Duration `yaml:"max_future_skew" env:"INGEST_MAX_FUTURE_SKEW" env-default:"5m"`
		PollInterval  time.Duration `yaml:"poll_interval" env:"INGEST_POLL_INTERVAL" env-default:"2s"`
		MaxRetries    int           `yaml:"max_retries" env:"INGEST_MAX_RETRIES" env-default:"10"`
	} `yaml:"ingest"`

	Work struct {
		Timezone                 string `yaml:"timezone" env:"WORK_TIMEZONE" env-default:""`
		OvertimeThresholdMinutes int    `yaml:"overtime_threshold_minutes" env:"WORK_OVERTIME_THRESHOLD_MINUTES" env-default:"480"`
		MaxSessionHours          int    `yaml:"max_session_hours" env:"WORK_MAX_SESSION_HOURS" env-default:"16"`
		BreakThresholdMinutes    int    `yaml:"break_threshold_minutes" env:"WORK_BREAK_THRESHOLD_MINUTES" env-default:"120"`
	} `yaml:"work"`

	Sweep struct {
		Interval time.Duration `yaml:"interval" env:"SWEEP_INTERVAL" env-default:"30m"`
	} `yaml:"sweep"`

	Cache struct {
		DailyTTL   time.Duration `yaml:"daily_ttl" env:"CACHE_DAILY_TTL" env-default:"1h"`
		WeeklyTTL  time.Duration `yaml:"weekly_ttl" env:"CACHE_WEEKLY_TTL" env-default:"6h"`
		MonthlyTTL time.Duration `yaml:"monthly_ttl" env:"CACHE_MONTHLY_TTL" env-default:"24h"`
		YearlyTTL  time.Duration `yaml:"yearly_ttl" env:"CACHE_YEARLY_TTL" env-default:"24h"`
	} `yaml:"cache"`
}

// LoadConfig reads configuration from the given YAML file, falling back to
// environment variables and defaults when the file does not exist
func LoadConfig(path string) (*Config, error) {
	var cfg Config

	if _, err := os.Stat(path); err == nil {
		if err := cleanenv.ReadConfig(path, &cfg); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	} else {
		if err := cleanenv.ReadEnv(&cfg); err != nil {
			return nil, fmt.Errorf("failed to read config from environment: %w", err)
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Work.MaxSessionHours <= 0 {
		return fmt.Errorf("work.max_session_hours must be positive, got %d", c.Work.MaxSessionHours)
	}
	if c.Work.OvertimeThresholdMinutes < 0 {
		return fmt.Errorf("work.overtime_threshold_minutes must not be negative, got %d", c.Work.OvertimeThresholdMinutes)
	}
	if c.Work.BreakThresholdMinutes <= 0 {
		return fmt.Errorf("work.break_threshold_minutes must be positive, got %d", c.Work.BreakThresholdMinutes)
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}

// Location resolves the configured work timezone, defaulting to the
// process-local zone
func (c *Config) Location() (*time.Location, error) {
	if c.Work.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Work.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid work.timezone %q: %w", c.Work.Timezone, err)
	}
	return loc, nil
}
