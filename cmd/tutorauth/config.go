package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config is read from the environment, optionally seeded from a .env file
type Config struct {
	Port      int    `env:"PORT" envDefault:"5000"`
	AppEnv    string `env:"APP_ENV" envDefault:"development"`
	ClientURL string `env:"CLIENT_URL" envDefault:"http://localhost:3000"`
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`

	JWTSecret        string   `env:"JWT_SECRET"`
	JWTRefreshSecret string   `env:"JWT_REFRESH_SECRET"`
	JWTExpire        Lifetime `env:"JWT_EXPIRE" envDefault:"15m"`
	JWTRefreshExpire Lifetime `env:"JWT_REFRESH_EXPIRE" envDefault:"7d"`

	// DatabaseDSN selects the postgres store; empty falls back to files under DataDir
	DatabaseDSN string `env:"DATABASE_DSN"`
	DataDir     string `env:"DATA_DIR" envDefault:"./data"`

	// RedisURL enables shared rate limit counters
	RedisURL string `env:"REDIS_URL"`

	// TrustProxy keys rate limits on forwarding headers instead of the socket address
	TrustProxy bool `env:"TRUST_PROXY"`

	Email  EmailConfig  `envPrefix:"EMAIL_"`
	Google GoogleConfig `envPrefix:"GOOGLE_"`

	DevMode bool `env:"DEV_MODE"`
}

type EmailConfig struct {
	Host               string `env:"HOST"`
	Port               int    `env:"PORT" envDefault:"587"`
	User               string `env:"USER"`
	Pass               string `env:"PASS"`
	From               string `env:"FROM"`
	TLSMode            string `env:"TLS_MODE" envDefault:"auto"`
	InsecureSkipVerify bool   `env:"INSECURE_SKIP_VERIFY"`
}

type GoogleConfig struct {
	ClientID     string `env:"CLIENT_ID"`
	ClientSecret string `env:"CLIENT_SECRET"`
	RedirectURI  string `env:"REDIRECT_URI"`
}

// Production reports whether APP_ENV is production
func (c *Config) Production() bool {
	return strings.EqualFold(c.AppEnv, "production")
}

// GoogleEnabled reports whether Google sign-in is configured
func (c *Config) GoogleEnabled() bool {
	return c.Google.ClientID != "" && c.Google.ClientSecret != ""
}

// Validate rejects configurations the server must not start with
func (c *Config) Validate() error {
	var errs []error
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if c.JWTRefreshSecret == "" {
		errs = append(errs, errors.New("JWT_REFRESH_SECRET is required"))
	}
	if c.JWTSecret != "" && c.JWTSecret == c.JWTRefreshSecret {
		errs = append(errs, errors.New("JWT_SECRET and JWT_REFRESH_SECRET must differ"))
	}
	if c.Production() && c.DevMode {
		errs = append(errs, errors.New("DEV_MODE cannot be enabled when APP_ENV=production"))
	}
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("PORT %d is out of range", c.Port))
	}
	return errors.Join(errs...)
}

// loadConfig reads envFile when present, then parses the environment.
// Variables already set in the environment win over the file.
func loadConfig(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", envFile, err)
		}
	}
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	return &cfg, nil
}

// Lifetime is a duration that also accepts a day suffix ("7d")
type Lifetime time.Duration

func (l *Lifetime) UnmarshalText(text []byte) error {
	s := strings.TrimSpace(string(text))
	if days, ok := strings.CutSuffix(s, "d"); ok {
		n, err := strconv.Atoi(days)
		if err != nil || n <= 0 {
			return fmt.Errorf("invalid lifetime %q", s)
		}
		*l = Lifetime(time.Duration(n) * 24 * time.Hour)
		return nil
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fmt.Errorf("invalid lifetime %q", s)
	}
	*l = Lifetime(d)
	return nil
}

func (l Lifetime) Duration() time.Duration { return time.Duration(l) }
