package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

type Config struct {
	DiscordToken  string        `yaml:"discord_token"`
	DatabasePath  string        `yaml:"database_path"`
	LogLevel      string        `yaml:"log_level"`
	BackupDir     string        `yaml:"backup_dir"`
	RetentionDays int           `yaml:"retention_days"`
	Health        HealthConfig  `yaml:"health"`
	XP            XPConfig      `yaml:"xp"`
	Rewards       RewardsConfig `yaml:"rewards"`
	Status        StatusConfig  `yaml:"status"`
	Notifications NotifyConfig  `yaml:"notifications"`
}

type HealthConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Addr          string `yaml:"addr"`
	CheckMinutes  int    `yaml:"check_minutes"`
	NotifyRecover bool   `yaml:"notify_recovery"`
}

type XPConfig struct {
	CooldownMinutes     int `yaml:"cooldown_minutes"`
	StoreTimeoutSeconds int `yaml:"store_timeout_seconds"`
	RetryAttempts       int `yaml:"retry_attempts"`
}

type RewardsConfig struct {
	CallTimeoutSeconds int     `yaml:"call_timeout_seconds"`
	RetryAttempts      int     `yaml:"retry_attempts"`
	BulkPerSecond      float64 `yaml:"bulk_per_second"`
	BulkBurst          int     `yaml:"bulk_burst"`
}

type StatusConfig struct {
	Enabled         bool   `yaml:"enabled"`
	IntervalSeconds int    `yaml:"interval_seconds"`
	Presence        string `yaml:"presence"`
}

type NotifyConfig struct {
	EmbedColors EmbedColors `yaml:"embed_colors"`
}

type EmbedColors struct {
	Info    int `yaml:"info"`
	Success int `yaml:"success"`
	Warning int `yaml:"warning"`
	Error   int `yaml:"error"`
}

func (c XPConfig) Cooldown() time.Duration {
	return time.Duration(c.CooldownMinutes) * time.Minute
}

func (c XPConfig) StoreTimeout() time.Duration {
	return time.Duration(c.StoreTimeoutSeconds) * time.Second
}

func (c RewardsConfig) CallTimeout() time.Duration {
	return time.Duration(c.CallTimeoutSeconds) * time.Second
}

func DefaultConfig() Config {
	return Config{
		DatabasePath:  "/data/activity_xp.db",
		LogLevel:      "info",
		BackupDir:     "/data/backups",
		RetentionDays: 30,
		Health:        HealthConfig{Enabled: false, Addr: ":8080", CheckMinutes: 30, NotifyRecover: true},
		XP:            XPConfig{CooldownMinutes: 60, StoreTimeoutSeconds: 5, RetryAttempts: 3},
		Rewards:       RewardsConfig{CallTimeoutSeconds: 10, RetryAttempts: 3, BulkPerSecond: 5, BulkBurst: 5},
		Status:        StatusConfig{Enabled: true, IntervalSeconds: 60, Presence: "dnd"},
		Notifications: NotifyConfig{
			EmbedColors: EmbedColors{
				Info:    0x5865F2,
				Success: 0x57F287,
				Warning: 0xFEE75C,
				Error:   0xED4245,
			},
		},
	}
}

// Read builds the configuration from defaults, the yaml file and the
// environment without requiring a Discord token.
func Read() (Config, error) {
	_ = godotenv.Load()

	cfg := DefaultConfig()

	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = "config.yaml"
	}
	if data, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, err
		}
	}

	applyEnv(&cfg)
	normalize(&cfg)
	return cfg, nil
}

func Load() (Config, error) {
	cfg, err := Read()
	if err != nil {
		return Config{}, err
	}
	if cfg.DiscordToken == "" {
		return Config{}, errors.New("DISCORD_TOKEN is required")
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.DiscordToken = envString("DISCORD_TOKEN", cfg.DiscordToken)
	cfg.DatabasePath = envString("DATABASE_PATH", cfg.DatabasePath)
	cfg.LogLevel = envString("LOG_LEVEL", cfg.LogLevel)
	cfg.BackupDir = envString("BACKUP_DIR", cfg.BackupDir)
	cfg.RetentionDays = envInt("RETENTION_DAYS", cfg.RetentionDays)
	cfg.Health.Enabled = envBool("HEALTH_ENABLED", cfg.Health.Enabled)
	cfg.Health.Addr = envString("HEALTH_ADDR", cfg.Health.Addr)
	if port := os.Getenv("PORT"); port != "" && os.Getenv("HEALTH_ADDR") == "" {
		cfg.Health.Addr = ":" + port
	}
	cfg.Health.CheckMinutes = envInt("HEALTH_CHECK_MINUTES", cfg.Health.CheckMinutes)
	cfg.Health.NotifyRecover = envBool("NOTIFY_RECOVERY", cfg.Health.NotifyRecover)
	cfg.XP.CooldownMinutes = envInt("XP_COOLDOWN_MINUTES", cfg.XP.CooldownMinutes)
	cfg.XP.StoreTimeoutSeconds = envInt("XP_STORE_TIMEOUT_SECONDS", cfg.XP.StoreTimeoutSeconds)
	cfg.XP.RetryAttempts = envInt("XP_RETRY_ATTEMPTS", cfg.XP.RetryAttempts)
	cfg.Rewards.CallTimeoutSeconds = envInt("ROLE_CALL_TIMEOUT_SECONDS", cfg.Rewards.CallTimeoutSeconds)
	cfg.Rewards.RetryAttempts = envInt("ROLE_RETRY_ATTEMPTS", cfg.Rewards.RetryAttempts)
	cfg.Rewards.BulkPerSecond = envFloat("ROLE_BULK_PER_SECOND", cfg.Rewards.BulkPerSecond)
	cfg.Rewards.BulkBurst = envInt("ROLE_BULK_BURST", cfg.Rewards.BulkBurst)
	cfg.Status.Enabled = envBool("STATUS_ROTATION", cfg.Status.Enabled)
	cfg.Status.IntervalSeconds = envInt("STATUS_INTERVAL_SECONDS", cfg.Status.IntervalSeconds)
	cfg.Status.Presence = envString("STATUS_PRESENCE", cfg.Status.Presence)
	cfg.Notifications.EmbedColors.Info = envInt("EMBED_COLOR_INFO", cfg.Notifications.EmbedColors.Info)
	cfg.Notifications.EmbedColors.Success = envInt("EMBED_COLOR_SUCCESS", cfg.Notifications.EmbedColors.Success)
	cfg.Notifications.EmbedColors.Warning = envInt("EMBED_COLOR_WARNING", cfg.Notifications.EmbedColors.Warning)
	cfg.Notifications.EmbedColors.Error = envInt("EMBED_COLOR_ERROR", cfg.Notifications.EmbedColors.Error)
}

func normalize(cfg *Config) {
	defaults := DefaultConfig()
	if cfg.XP.CooldownMinutes <= 0 {
		cfg.XP.CooldownMinutes = defaults.XP.CooldownMinutes
	}
	if cfg.XP.StoreTimeoutSeconds <= 0 {
		cfg.XP.StoreTimeoutSeconds = defaults.XP.StoreTimeoutSeconds
	}
	if cfg.XP.RetryAttempts <= 0 {
		cfg.XP.RetryAttempts = 1
	}
	if cfg.Rewards.CallTimeoutSeconds <= 0 {
		cfg.Rewards.CallTimeoutSeconds = defaults.Rewards.CallTimeoutSeconds
	}
	if cfg.Rewards.RetryAttempts <= 0 {
		cfg.Rewards.RetryAttempts = 1
	}
	if cfg.Rewards.BulkPerSecond <= 0 {
		cfg.Rewards.BulkPerSecond = defaults.Rewards.BulkPerSecond
	}
	if cfg.Rewards.BulkBurst <= 0 {
		cfg.Rewards.BulkBurst = 1
	}
	if cfg.Status.IntervalSeconds <= 0 {
		cfg.Status.IntervalSeconds = defaults.Status.IntervalSeconds
	}
	switch strings.ToLower(cfg.Status.Presence) {
	case "online", "idle", "dnd", "invisible":
		cfg.Status.Presence = strings.ToLower(cfg.Status.Presence)
	default:
		cfg.Status.Presence = defaults.Status.Presence
	}
	if cfg.Health.CheckMinutes <= 0 {
		cfg.Health.CheckMinutes = defaults.Health.CheckMinutes
	}
	if cfg.RetentionDays <= 0 {
		cfg.RetentionDays = defaults.RetentionDays
	}
}

func BuildLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Encoding = "json"
	cfg.EncoderConfig.TimeKey = "time"
	cfg.EncoderConfig.MessageKey = "message"
	cfg.EncoderConfig.LevelKey = "level"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.Level = zap.NewAtomicLevelAt(parseLevel(strings.ToLower(level)))
	return cfg.Build()
}

func parseLevel(level string) zapcore.Level {
	switch level {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

func envString(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseInt(value, 0, 64); err == nil {
			return int(parsed)
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		lower := strings.ToLower(value)
		return lower == "1" || lower == "true" || lower == "yes"
	}
	return fallback
}
