package config

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"waitlist-engine/core/constants"

	"github.com/spf13/viper"
)

type ServerConfig struct {
	Host          string `mapstructure:"host"`
	Port          int    `mapstructure:"port"`
	PublicBaseURL string `mapstructure:"public_base_url"`
	LogLevel      string `mapstructure:"log_level"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type GoogleAPIConfig struct {
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
	RedirectURL  string `mapstructure:"redirect_url"`
}

type JWTConfig struct {
	Secret string `mapstructure:"secret"`
}

type EngineConfig struct {
	TickSeconds          int  `mapstructure:"tick_seconds"`
	Workers              int  `mapstructure:"workers"`
	BatchSize            int  `mapstructure:"batch_size"`
	OfferWindowMinutes   int  `mapstructure:"offer_window_minutes"`
	RefreshMarginMinutes int  `mapstructure:"refresh_margin_minutes"`
	TransientRetryMax    int  `mapstructure:"transient_retry_max"`
	BackoffBaseSeconds   int  `mapstructure:"backoff_base_seconds"`
	CloseUnclaimedSlots  bool `mapstructure:"close_unclaimed_slots"`
}

type SMTPConfig struct {
	Host string `mapstructure:"host"`
	Port string `mapstructure:"port"`
	From string `mapstructure:"from"`
}

type SMSConfig struct {
	WebhookURL string `mapstructure:"webhook_url"`
	Token      string `mapstructure:"token"`
}

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	GoogleAPI GoogleAPIConfig `mapstructure:"google_api"`
	JWT       JWTConfig       `mapstructure:"jwt"`
	Engine    EngineConfig    `mapstructure:"engine"`
	SMTP      SMTPConfig      `mapstructure:"smtp"`
	SMS       SMSConfig       `mapstructure:"sms"`
}

var (
	instance *Config
	mu       sync.RWMutex
)

// Load reads config.yaml (optional) plus environment overrides and stores the
// result as the process-wide configuration.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetEnvPrefix("WLE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	mu.Lock()
	instance = &cfg
	mu.Unlock()
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 7070)
	v.SetDefault("server.public_base_url", "http://localhost:7070")
	v.SetDefault("server.log_level", "info")

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.dbname", "waitlist")

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)

	v.SetDefault("engine.tick_seconds", constants.DefaultSchedulerTickSeconds)
	v.SetDefault("engine.workers", constants.DefaultSchedulerWorkers)
	v.SetDefault("engine.batch_size", constants.DefaultBatchSize)
	v.SetDefault("engine.offer_window_minutes", constants.DefaultOfferWindowMinutes)
	v.SetDefault("engine.refresh_margin_minutes", constants.DefaultRefreshMarginMinutes)
	v.SetDefault("engine.transient_retry_max", constants.DefaultTransientRetryMax)
	v.SetDefault("engine.backoff_base_seconds", constants.DefaultBackoffBaseSeconds)
	v.SetDefault("engine.close_unclaimed_slots", false)

	v.SetDefault("smtp.host", "localhost")
	v.SetDefault("smtp.port", "1025")
	v.SetDefault("smtp.from", "no-reply@waitlist.local")
}

func Get() *Config {
	mu.RLock()
	defer mu.RUnlock()
	return instance
}

// GetSafe returns the configuration and whether Load has run.
func GetSafe() (*Config, bool) {
	mu.RLock()
	defer mu.RUnlock()
	return instance, instance != nil
}

func (e EngineConfig) Tick() time.Duration {
	return time.Duration(e.TickSeconds) * time.Second
}

func (e EngineConfig) OfferWindow() time.Duration {
	return time.Duration(e.OfferWindowMinutes) * time.Minute
}

func (e EngineConfig) RefreshMargin() time.Duration {
	return time.Duration(e.RefreshMarginMinutes) * time.Minute
}

func (e EngineConfig) BackoffBase() time.Duration {
	return time.Duration(e.BackoffBaseSeconds) * time.Second
}
