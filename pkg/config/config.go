package config

import (
	"errors"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

var defaultProfilePhotos = []string{
	"https://i.imghippo.com/files/RlV6585mKA.png",
	"https://i.imghippo.com/files/fxla8778FLI.png",
	"https://i.imghippo.com/files/mFFj4453sw.png",
}

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database  DatabaseConfig
	Redis     RedisConfig
	JWT       JWTConfig
	Auth      AuthConfig
	Cookie    CookieConfig
	CORS      CORSConfig
	Log       LogConfig
	RateLimit RateLimitConfig
	Mail      MailConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

// JWTConfig holds signing material and token lifetimes.
type JWTConfig struct {
	Secret         string
	Algorithm      string
	PrivateKeyPath string
	PublicKeyPath  string
	Issuer         string
	AccessTTL      time.Duration
	RefreshTTL     time.Duration
}

// AuthConfig holds account and session policy.
type AuthConfig struct {
	MaxSessions       int
	PasswordMinLength int
	OTPTTL            time.Duration
	BcryptCost        int
	ProfilePhotos     []string
}

// CookieConfig controls the refresh token cookie.
type CookieConfig struct {
	Secure bool
	Domain string
	Path   string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// RateLimitConfig sets per-client request budgets for the auth endpoints.
type RateLimitConfig struct {
	Enabled        bool
	Window         time.Duration
	LoginLimit     int
	RefreshLimit   int
	ProfileLimit   int
	RedisKeyPrefix string
}

// MailConfig configures the background OTP dispatch queue.
type MailConfig struct {
	From       string
	Workers    int
	MaxRetries int
	RetryDelay time.Duration
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	return fromViper(v), nil
}

func fromViper(v *viper.Viper) *Config {
	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
	}

	cfg.Redis = RedisConfig{
		Enabled:  v.GetBool("REDIS_ENABLED"),
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{
		Secret:         v.GetString("JWT_SECRET"),
		Algorithm:      strings.ToUpper(v.GetString("JWT_ALGORITHM")),
		PrivateKeyPath: v.GetString("JWT_PRIVATE_KEY_PATH"),
		PublicKeyPath:  v.GetString("JWT_PUBLIC_KEY_PATH"),
		Issuer:         v.GetString("JWT_ISSUER"),
		AccessTTL:      parseDuration(v.GetString("JWT_ACCESS_TTL"), 15*time.Minute),
		RefreshTTL:     parseDuration(v.GetString("JWT_REFRESH_TTL"), 7*24*time.Hour),
	}

	cfg.Auth = AuthConfig{
		MaxSessions:       positiveOr(v.GetInt("AUTH_MAX_SESSIONS"), 5),
		PasswordMinLength: positiveOr(v.GetInt("AUTH_PASSWORD_MIN_LENGTH"), 6),
		OTPTTL:            parseDuration(v.GetString("AUTH_OTP_TTL"), 15*time.Minute),
		BcryptCost:        v.GetInt("AUTH_BCRYPT_COST"),
		ProfilePhotos:     splitAndTrim(v.GetString("AUTH_PROFILE_PHOTOS")),
	}

	cfg.Cookie = CookieConfig{
		Secure: v.GetBool("COOKIE_SECURE"),
		Domain: v.GetString("COOKIE_DOMAIN"),
		Path:   v.GetString("COOKIE_PATH"),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.RateLimit = RateLimitConfig{
		Enabled:        v.GetBool("RATE_LIMIT_ENABLED"),
		Window:         parseDuration(v.GetString("RATE_LIMIT_WINDOW"), time.Minute),
		LoginLimit:     positiveOr(v.GetInt("RATE_LIMIT_LOGIN"), 5),
		RefreshLimit:   positiveOr(v.GetInt("RATE_LIMIT_REFRESH"), 10),
		ProfileLimit:   positiveOr(v.GetInt("RATE_LIMIT_PROFILE"), 8),
		RedisKeyPrefix: v.GetString("RATE_LIMIT_REDIS_PREFIX"),
	}

	cfg.Mail = MailConfig{
		From:       v.GetString("MAIL_FROM"),
		Workers:    positiveOr(v.GetInt("MAIL_WORKERS"), 1),
		MaxRetries: positiveOr(v.GetInt("MAIL_RETRIES"), 3),
		RetryDelay: parseDuration(v.GetString("MAIL_RETRY_DELAY"), 2*time.Second),
	}

	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "feellog")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_ENABLED", false)
	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_ALGORITHM", "HS256")
	v.SetDefault("JWT_PRIVATE_KEY_PATH", "")
	v.SetDefault("JWT_PUBLIC_KEY_PATH", "")
	v.SetDefault("JWT_ISSUER", "feellog")
	v.SetDefault("JWT_ACCESS_TTL", "15m")
	v.SetDefault("JWT_REFRESH_TTL", "168h")

	v.SetDefault("AUTH_MAX_SESSIONS", 5)
	v.SetDefault("AUTH_PASSWORD_MIN_LENGTH", 6)
	v.SetDefault("AUTH_OTP_TTL", "15m")
	v.SetDefault("AUTH_BCRYPT_COST", 0)
	v.SetDefault("AUTH_PROFILE_PHOTOS", strings.Join(defaultProfilePhotos, ","))

	v.SetDefault("COOKIE_SECURE", true)
	v.SetDefault("COOKIE_DOMAIN", "")
	v.SetDefault("COOKIE_PATH", "/api/auth")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("RATE_LIMIT_ENABLED", true)
	v.SetDefault("RATE_LIMIT_WINDOW", "1m")
	v.SetDefault("RATE_LIMIT_LOGIN", 5)
	v.SetDefault("RATE_LIMIT_REFRESH", 10)
	v.SetDefault("RATE_LIMIT_PROFILE", 8)
	v.SetDefault("RATE_LIMIT_REDIS_PREFIX", "feellog:rl:")

	v.SetDefault("MAIL_FROM", "FeelLog <no-reply@feellog.app>")
	v.SetDefault("MAIL_WORKERS", 1)
	v.SetDefault("MAIL_RETRIES", 3)
	v.SetDefault("MAIL_RETRY_DELAY", "2s")
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func positiveOr(value, fallback int) int {
	if value <= 0 {
		return fallback
	}
	return value
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
