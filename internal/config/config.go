package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration required by the API process.
// All values must come from env (or env-file loaded by the process runner).
// No business logic should depend on raw environment variables.
type Config struct {
	App      AppConfig
	DB       DBConfig
	Redis    RedisConfig
	Dialer   DialerConfig
	Campaign CampaignConfig
}

type AppConfig struct {
	Env  string
	Port int
}

type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string

	// SSLMode is kept explicit for managed-Postgres posture.
	// Accepts: disable, require, verify-ca, verify-full
	SSLMode string
}

type RedisConfig struct {
	Host string
	Port int
}

// DialerConfig carries credentials for the external call-placing provider.
type DialerConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// CampaignConfig controls scheduling and dispatch behavior.
//
// Timezone applies to both schedule-time validation and the daily cutoff
// check; the two must never disagree.
type CampaignConfig struct {
	Timezone      string
	CutoffHour    int
	CutoffMinute  int
	DispatchDelay time.Duration

	// RecoverOnStart re-enters queued jobs into the executor at boot.
	RecoverOnStart bool
}

func Load() (Config, error) {
	c := Config{}
	var parseErrs []error

	c.App.Env = strings.TrimSpace(os.Getenv("APP_ENV"))
	{
		n, err := mustInt("APP_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.App.Port = n
	}

	c.DB.Host = strings.TrimSpace(os.Getenv("DB_HOST"))
	{
		n, err := mustInt("DB_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.DB.Port = n
	}
	c.DB.User = strings.TrimSpace(os.Getenv("DB_USER"))
	c.DB.Password = os.Getenv("DB_PASSWORD")
	c.DB.Name = strings.TrimSpace(os.Getenv("DB_NAME"))
	c.DB.SSLMode = strings.TrimSpace(os.Getenv("DB_SSLMODE"))

	c.Redis.Host = strings.TrimSpace(os.Getenv("REDIS_HOST"))
	{
		n, err := mustInt("REDIS_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.Redis.Port = n
	}

	c.Dialer.BaseURL = strings.TrimSpace(os.Getenv("DIALER_BASE_URL"))
	c.Dialer.APIKey = os.Getenv("DIALER_API_KEY")
	c.Dialer.Timeout = mustDuration("DIALER_TIMEOUT")

	c.Campaign.Timezone = strings.TrimSpace(os.Getenv("CAMPAIGN_TZ"))
	c.Campaign.CutoffHour = optInt("CAMPAIGN_CUTOFF_HOUR", -1)
	c.Campaign.CutoffMinute = optInt("CAMPAIGN_CUTOFF_MINUTE", -1)
	c.Campaign.DispatchDelay = mustDuration("CAMPAIGN_DISPATCH_DELAY")
	c.Campaign.RecoverOnStart = optBool("CAMPAIGN_RECOVER_ON_START", true)

	if err := joinErrors(parseErrs); err != nil {
		return Config{}, err
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func (c *Config) Validate() error {
	var errs []error

	if c.App.Env == "" {
		errs = append(errs, errors.New("APP_ENV is required"))
	} else if !isValidEnv(c.App.Env) {
		errs = append(errs, fmt.Errorf("APP_ENV must be one of local, dev, staging, production, got %q", c.App.Env))
	}
	if c.App.Port <= 0 || c.App.Port > 65535 {
		errs = append(errs, fmt.Errorf("APP_PORT must be a valid port, got %d", c.App.Port))
	}

	if c.DB.Host == "" {
		errs = append(errs, errors.New("DB_HOST is required"))
	}
	if c.DB.Port <= 0 || c.DB.Port > 65535 {
		errs = append(errs, fmt.Errorf("DB_PORT must be a valid port, got %d", c.DB.Port))
	}
	if c.DB.User == "" {
		errs = append(errs, errors.New("DB_USER is required"))
	}
	if c.DB.Name == "" {
		errs = append(errs, errors.New("DB_NAME is required"))
	}
	if strings.TrimSpace(c.DB.SSLMode) == "" {
		if c.IsProduction() {
			errs = append(errs, errors.New("DB_SSLMODE is required in production"))
		} else {
			// Local-friendly default; production must be explicit.
			c.DB.SSLMode = "disable"
		}
	}
	if c.DB.SSLMode != "" && !isValidSSLMode(c.DB.SSLMode) {
		errs = append(errs, fmt.Errorf("DB_SSLMODE must be one of disable, require, verify-ca, verify-full, got %q", c.DB.SSLMode))
	}

	if c.Redis.Host == "" {
		errs = append(errs, errors.New("REDIS_HOST is required"))
	}
	if c.Redis.Port <= 0 || c.Redis.Port > 65535 {
		errs = append(errs, fmt.Errorf("REDIS_PORT must be a valid port, got %d", c.Redis.Port))
	}

	if c.Dialer.BaseURL == "" {
		errs = append(errs, errors.New("DIALER_BASE_URL is required"))
	}
	if c.Dialer.APIKey == "" {
		errs = append(errs, errors.New("DIALER_API_KEY is required"))
	}
	if c.Dialer.Timeout <= 0 {
		c.Dialer.Timeout = 30 * time.Second
	}

	if c.Campaign.Timezone == "" {
		// Campaign ops run on US Pacific wall-clock time.
		c.Campaign.Timezone = "America/Los_Angeles"
	}
	if _, err := time.LoadLocation(c.Campaign.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("CAMPAIGN_TZ is not a valid IANA timezone, got %q", c.Campaign.Timezone))
	}
	if c.Campaign.CutoffHour < 0 {
		c.Campaign.CutoffHour = 15
	}
	if c.Campaign.CutoffMinute < 0 {
		c.Campaign.CutoffMinute = 30
	}
	if c.Campaign.CutoffHour > 23 {
		errs = append(errs, fmt.Errorf("CAMPAIGN_CUTOFF_HOUR must be 0-23, got %d", c.Campaign.CutoffHour))
	}
	if c.Campaign.CutoffMinute > 59 {
		errs = append(errs, fmt.Errorf("CAMPAIGN_CUTOFF_MINUTE must be 0-59, got %d", c.Campaign.CutoffMinute))
	}
	if c.Campaign.DispatchDelay <= 0 {
		// Respect the external dialer's throughput ceiling.
		c.Campaign.DispatchDelay = 3 * time.Second
	}

	return joinErrors(errs)
}

func (c Config) IsProduction() bool {
	return c.App.Env == "production"
}

func (c Config) HTTPAddr() string {
	return fmt.Sprintf(":%d", c.App.Port)
}

func (c Config) PostgresDSN() string {
	// Avoid logging this string; it contains secrets.
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.DB.Host,
		c.DB.Port,
		c.DB.User,
		c.DB.Password,
		c.DB.Name,
		c.DB.SSLMode,
	)
}

func (c Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

// CampaignLocation resolves the campaign timezone. Validate() guarantees the
// name parses, so errors here only happen on an unvalidated Config.
func (c Config) CampaignLocation() (*time.Location, error) {
	return time.LoadLocation(c.Campaign.Timezone)
}

func mustInt(key string) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0, fmt.Errorf("%s is required", key)
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer, got %q", key, v)
	}
	return n, nil
}

func optInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func optBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func mustDuration(key string) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0
	}
	return d
}

func appendParseErr(errs []error, n int, err error) (int, []error) {
	if err != nil {
		errs = append(errs, err)
	}
	return n, errs
}

func isValidEnv(v string) bool {
	switch v {
	case "local", "dev", "staging", "production":
		return true
	default:
		return false
	}
}

func isValidSSLMode(v string) bool {
	switch v {
	case "disable", "require", "verify-ca", "verify-full":
		return true
	default:
		return false
	}
}

func joinErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	if len(errs) == 1 {
		return errs[0]
	}
	var b strings.Builder
	b.WriteString("config errors:\n")
	for _, e := range errs {
		b.WriteString("- ")
		b.WriteString(e.Error())
		b.WriteString("\n")
	}
	return errors.New(strings.TrimSpace(b.String()))
}
