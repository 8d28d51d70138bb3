package config

import (
	"fmt"
	"net"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"louyass/media"
	"louyass/notify"

	"github.com/spf13/viper"
	"golang.org/x/crypto/bcrypt"
)

// DataPaths holds all data directory and file path configuration
// These paths can be overridden via environment variables
type DataPaths struct {
	// DataDir is the base data directory (LOUYASS_DATA_DIR, default: ./data)
	DataDir string `mapstructure:"data_dir" yaml:"data_dir"`
	// SQLitePath is the SQLite database file path (LOUYASS_SQLITE_PATH, default: ${DataDir}/louyass.db)
	SQLitePath string `mapstructure:"sqlite_path" yaml:"sqlite_path"`
}

// RateLimitConfig is the per-client token bucket
type RateLimitConfig struct {
	RequestsPerSecond float64 `mapstructure:"requests_per_second" yaml:"requests_per_second"`
	Burst             int     `mapstructure:"burst" yaml:"burst"`
	// LoginPerMinute limits register and login calls per client IP
	LoginPerMinute int `mapstructure:"login_per_minute" yaml:"login_per_minute"`
}

// APIConfig configures the HTTP listener
type APIConfig struct {
	Port           int             `mapstructure:"port" yaml:"port"`
	TLS            bool            `mapstructure:"tls" yaml:"tls"`
	CertFile       string          `mapstructure:"cert_file" yaml:"cert_file"`
	KeyFile        string          `mapstructure:"key_file" yaml:"key_file"`
	AllowedOrigins []string        `mapstructure:"allowed_origins" yaml:"allowed_origins"`
	RateLimit      RateLimitConfig `mapstructure:"rate_limit" yaml:"rate_limit"`
	// TrustedProxies lists the CIDRs whose X-Forwarded-For header is believed
	TrustedProxies []string `mapstructure:"trusted_proxies" yaml:"trusted_proxies"`
	// BodyLimit caps JSON request bodies in bytes; uploads use Media.MaxSize
	BodyLimit       int64         `mapstructure:"body_limit" yaml:"body_limit"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// AuthConfig configures token issuance and login protection
type AuthConfig struct {
	JWTSecret        string        `mapstructure:"jwt_secret" yaml:"jwt_secret"`
	JWTExpiry        time.Duration `mapstructure:"jwt_expiry" yaml:"jwt_expiry"`
	BcryptCost       int           `mapstructure:"bcrypt_cost" yaml:"bcrypt_cost"`
	LockoutThreshold int           `mapstructure:"lockout_threshold" yaml:"lockout_threshold"`
	LockoutDuration  time.Duration `mapstructure:"lockout_duration" yaml:"lockout_duration"`
	MFAIssuer        string        `mapstructure:"mfa_issuer" yaml:"mfa_issuer"`
	// UserCacheSize bounds the authenticated-user LRU; 0 disables it
	UserCacheSize int           `mapstructure:"user_cache_size" yaml:"user_cache_size"`
	UserCacheTTL  time.Duration `mapstructure:"user_cache_ttl" yaml:"user_cache_ttl"`
}

// SMTPConfig configures the outgoing mail relay
type SMTPConfig struct {
	Host       string        `mapstructure:"host" yaml:"host"`
	Port       int           `mapstructure:"port" yaml:"port"`
	Username   string        `mapstructure:"username" yaml:"username"`
	Password   string        `mapstructure:"password" yaml:"password"`
	From       string        `mapstructure:"from" yaml:"from"`
	RequireTLS bool          `mapstructure:"require_tls" yaml:"require_tls"`
	Timeout    time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// NotificationsConfig sizes the e-mail dispatcher
type NotificationsConfig struct {
	Workers   int `mapstructure:"workers" yaml:"workers"`
	QueueSize int `mapstructure:"queue_size" yaml:"queue_size"`
}

// RedisConfig configures the optional Redis backend for revoked tokens
type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled" yaml:"enabled"`
	Addr     string `mapstructure:"addr" yaml:"addr"`
	Password string `mapstructure:"password" yaml:"password"`
	DB       int    `mapstructure:"db" yaml:"db"`
	PoolSize int    `mapstructure:"pool_size" yaml:"pool_size"`
}

// S3Config is the bucket used when Media.Backend is "s3"
type S3Config struct {
	Bucket    string `mapstructure:"bucket" yaml:"bucket"`
	Region    string `mapstructure:"region" yaml:"region"`
	Prefix    string `mapstructure:"prefix" yaml:"prefix"`
	PublicURL string `mapstructure:"public_url" yaml:"public_url"`
	Endpoint  string `mapstructure:"endpoint" yaml:"endpoint"`
	AccessKey string `mapstructure:"access_key" yaml:"access_key"`
	SecretKey string `mapstructure:"secret_key" yaml:"secret_key"`
}

// MediaConfig selects where uploaded photos and videos go
type MediaConfig struct {
	Backend string   `mapstructure:"backend" yaml:"backend"` // local, s3
	Dir     string   `mapstructure:"dir" yaml:"dir"`
	BaseURL string   `mapstructure:"base_url" yaml:"base_url"`
	MaxSize int64    `mapstructure:"max_size" yaml:"max_size"`
	S3      S3Config `mapstructure:"s3" yaml:"s3"`
}

// SecretsConfig selects the provider that overrides jwt_secret and smtp password
type SecretsConfig struct {
	Provider string `mapstructure:"provider" yaml:"provider"` // env, vault, aws
	Vault    struct {
		Address string `mapstructure:"address" yaml:"address"`
		Token   string `mapstructure:"token" yaml:"token"`
		Mount   string `mapstructure:"mount" yaml:"mount"`
		Path    string `mapstructure:"path" yaml:"path"`
	} `mapstructure:"vault" yaml:"vault"`
	AWS struct {
		Region    string `mapstructure:"region" yaml:"region"`
		SecretID  string `mapstructure:"secret_id" yaml:"secret_id"`
		AccessKey string `mapstructure:"access_key" yaml:"access_key"`
		SecretKey string `mapstructure:"secret_key" yaml:"secret_key"`
	} `mapstructure:"aws" yaml:"aws"`
}

// Config holds all configuration for the Louyass API
type Config struct {
	DataPaths     DataPaths           `mapstructure:"data_paths" yaml:"data_paths"`
	API           APIConfig           `mapstructure:"api" yaml:"api"`
	Auth          AuthConfig          `mapstructure:"auth" yaml:"auth"`
	SMTP          SMTPConfig          `mapstructure:"smtp" yaml:"smtp"`
	Notifications NotificationsConfig `mapstructure:"notifications" yaml:"notifications"`
	Redis         RedisConfig         `mapstructure:"redis" yaml:"redis"`
	Media         MediaConfig         `mapstructure:"media" yaml:"media"`
	Secrets       SecretsConfig       `mapstructure:"secrets" yaml:"secrets"`
}

// setDefaults sets default configuration values
func setDefaults() {
	viper.SetDefault("data_paths.data_dir", "./data")
	viper.SetDefault("data_paths.sqlite_path", "") // Empty = derive from data_dir

	viper.SetDefault("api.port", 8000)
	viper.SetDefault("api.tls", false)
	viper.SetDefault("api.cert_file", "server.crt")
	viper.SetDefault("api.key_file", "server.key")
	viper.SetDefault("api.allowed_origins", []string{"http://localhost:3000", "http://localhost:5173"})
	viper.SetDefault("api.rate_limit.requests_per_second", 20)
	viper.SetDefault("api.rate_limit.burst", 40)
	viper.SetDefault("api.rate_limit.login_per_minute", 10)
	viper.SetDefault("api.trusted_proxies", []string{})
	viper.SetDefault("api.body_limit", 1<<20) // 1MB
	viper.SetDefault("api.shutdown_timeout", 15*time.Second)

	viper.SetDefault("auth.jwt_expiry", 30*time.Minute)
	viper.SetDefault("auth.bcrypt_cost", bcrypt.DefaultCost)
	viper.SetDefault("auth.lockout_threshold", 5)
	viper.SetDefault("auth.lockout_duration", 15*time.Minute)
	viper.SetDefault("auth.mfa_issuer", "Louyass")
	viper.SetDefault("auth.user_cache_size", 1024)
	viper.SetDefault("auth.user_cache_ttl", time.Minute)

	// Empty defaults register the keys so AutomaticEnv can fill them
	viper.SetDefault("auth.jwt_secret", "")
	viper.SetDefault("smtp.host", "")
	viper.SetDefault("smtp.username", "")
	viper.SetDefault("smtp.password", "")
	viper.SetDefault("smtp.from", "")
	viper.SetDefault("smtp.port", 587)
	viper.SetDefault("smtp.require_tls", true)
	viper.SetDefault("smtp.timeout", 10*time.Second)

	viper.SetDefault("notifications.workers", 2)
	viper.SetDefault("notifications.queue_size", 256)

	viper.SetDefault("redis.enabled", false)
	viper.SetDefault("redis.addr", "localhost:6379")
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("redis.pool_size", 10)

	viper.SetDefault("media.backend", "local")
	viper.SetDefault("media.dir", "") // Empty = derive from data_dir
	viper.SetDefault("media.base_url", "/media")
	viper.SetDefault("media.max_size", 10<<20) // 10MiB
	for _, key := range []string{"bucket", "region", "prefix", "public_url", "endpoint", "access_key", "secret_key"} {
		viper.SetDefault("media.s3."+key, "")
	}

	viper.SetDefault("secrets.provider", "env")
	viper.SetDefault("secrets.vault.address", "")
	viper.SetDefault("secrets.vault.token", "")
	viper.SetDefault("secrets.vault.mount", "secret")
	viper.SetDefault("secrets.vault.path", "louyass")
	viper.SetDefault("secrets.aws.region", "")
	viper.SetDefault("secrets.aws.secret_id", "louyass/secrets")
}

// loadFromEnv sets up environment variable loading
func loadFromEnv() {
	viper.SetEnvPrefix("LOUYASS")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// Shorter names for the settings operators touch most
	_ = viper.BindEnv("data_paths.data_dir", "LOUYASS_DATA_DIR")
	_ = viper.BindEnv("data_paths.sqlite_path", "LOUYASS_SQLITE_PATH")
	_ = viper.BindEnv("auth.jwt_secret", "LOUYASS_JWT_SECRET", "SECRET_KEY")
	_ = viper.BindEnv("smtp.password", "LOUYASS_SMTP_PASSWORD")
}

// LoadConfig loads configuration from file and environment variables
func LoadConfig() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	setDefaults()
	loadFromEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found, will use defaults and env vars
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if err := LoadSecrets(&config); err != nil {
		return nil, err
	}

	config.ResolveDataPaths()

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// ResolveDataPaths resolves all data paths, deriving from DataDir if not explicitly set
func (c *Config) ResolveDataPaths() {
	dataDir := c.DataPaths.DataDir
	if dataDir == "" {
		dataDir = "./data"
	}

	if c.DataPaths.SQLitePath == "" {
		c.DataPaths.SQLitePath = filepath.Join(dataDir, "louyass.db")
	} else if !filepath.IsAbs(c.DataPaths.SQLitePath) {
		c.DataPaths.SQLitePath = filepath.Clean(c.DataPaths.SQLitePath)
	}

	if c.Media.Dir == "" {
		c.Media.Dir = filepath.Join(dataDir, "media")
	}

	c.DataPaths.DataDir = dataDir
}

// SMTPSettings converts the smtp section for notify.NewSMTPMailer
func (c *Config) SMTPSettings() notify.SMTPConfig {
	return notify.SMTPConfig{
		Host:       c.SMTP.Host,
		Port:       c.SMTP.Port,
		Username:   c.SMTP.Username,
		Password:   c.SMTP.Password,
		From:       c.SMTP.From,
		RequireTLS: c.SMTP.RequireTLS,
		Timeout:    c.SMTP.Timeout,
	}
}

// S3Settings converts the media.s3 section for media.NewS3Store
func (c *Config) S3Settings() media.S3Config {
	s := c.Media.S3
	return media.S3Config{
		Bucket:    s.Bucket,
		Region:    s.Region,
		Prefix:    s.Prefix,
		PublicURL: s.PublicURL,
		Endpoint:  s.Endpoint,
		AccessKey: s.AccessKey,
		SecretKey: s.SecretKey,
	}
}

var weakSecrets = []string{
	"secret", "password", "changeme", "default", "admin",
	"jwt_secret", "supersecret", "mysecret", "test", "example", "louyass",
}

// validateJWTSecret rejects short or guessable signing keys
func validateJWTSecret(secret string) error {
	if secret == "" {
		return fmt.Errorf("auth.jwt_secret is required (set LOUYASS_JWT_SECRET)")
	}
	if len(secret) < 32 {
		return fmt.Errorf("JWT secret must be at least 32 characters (256 bits) for security")
	}
	lowerSecret := strings.ToLower(secret)
	for _, weak := range weakSecrets {
		if strings.Contains(lowerSecret, weak) {
			return fmt.Errorf("JWT secret appears to contain weak/default value: please use a cryptographically secure random string")
		}
	}
	return nil
}

// validateConfig validates the configuration for security and correctness
func validateConfig(config *Config) error {
	if err := validateJWTSecret(config.Auth.JWTSecret); err != nil {
		return err
	}
	if config.Auth.JWTExpiry <= 0 {
		return fmt.Errorf("auth.jwt_expiry must be positive")
	}
	if config.Auth.BcryptCost < bcrypt.MinCost || config.Auth.BcryptCost > bcrypt.MaxCost {
		return fmt.Errorf("auth.bcrypt_cost must be between %d and %d", bcrypt.MinCost, bcrypt.MaxCost)
	}
	if config.Auth.LockoutThreshold < 0 {
		return fmt.Errorf("auth.lockout_threshold cannot be negative")
	}
	if config.Auth.LockoutThreshold > 0 && config.Auth.LockoutDuration <= 0 {
		return fmt.Errorf("auth.lockout_duration must be positive when lockout is enabled")
	}

	if config.API.Port < 1 || config.API.Port > 65535 {
		return fmt.Errorf("invalid API port: %d", config.API.Port)
	}
	if config.API.TLS && (config.API.CertFile == "" || config.API.KeyFile == "") {
		return fmt.Errorf("api.cert_file and api.key_file are required when TLS is enabled")
	}
	for _, origin := range config.API.AllowedOrigins {
		if origin == "*" {
			return fmt.Errorf("wildcard CORS origin is not allowed with credentials")
		}
		parsed, err := url.Parse(origin)
		if err != nil || parsed.Scheme == "" || parsed.Host == "" {
			return fmt.Errorf("invalid allowed origin: %q", origin)
		}
	}
	for _, cidr := range config.API.TrustedProxies {
		if _, _, err := net.ParseCIDR(cidr); err != nil {
			return fmt.Errorf("invalid trusted proxy network %q: %w", cidr, err)
		}
	}
	if config.API.RateLimit.RequestsPerSecond <= 0 || config.API.RateLimit.Burst <= 0 {
		return fmt.Errorf("api.rate_limit requests_per_second and burst must be positive")
	}
	if config.API.BodyLimit <= 0 {
		return fmt.Errorf("api.body_limit must be positive")
	}

	if config.Notifications.Workers < 1 {
		return fmt.Errorf("notifications.workers must be at least 1")
	}
	if config.Notifications.QueueSize < 1 {
		return fmt.Errorf("notifications.queue_size must be at least 1")
	}

	if config.Redis.Enabled {
		if config.Redis.Addr == "" {
			return fmt.Errorf("redis.addr is required when redis is enabled")
		}
		if config.Redis.PoolSize < 1 {
			return fmt.Errorf("redis.pool_size must be at least 1")
		}
	}

	if config.Media.MaxSize <= 0 {
		return fmt.Errorf("media.max_size must be positive")
	}
	switch config.Media.Backend {
	case "local":
		if config.Media.Dir == "" {
			return fmt.Errorf("media.dir is required for the local backend")
		}
	case "s3":
		if config.Media.S3.Bucket == "" || config.Media.S3.Region == "" {
			return fmt.Errorf("media.s3.bucket and media.s3.region are required for the s3 backend")
		}
	default:
		return fmt.Errorf("unsupported media backend: %s", config.Media.Backend)
	}

	return nil
}
