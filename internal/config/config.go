// Package config loads process configuration from the environment once at
// start-up. Components receive values from Config, never os.Getenv.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/ovaphlow/pitchfork/service-auth-go/internal/password"
	"github.com/ovaphlow/pitchfork/service-auth-go/pkg/database"
	"github.com/ovaphlow/pitchfork/service-auth-go/pkg/utilities"
)

// DeploymentProfile selects environment-dependent behaviour such as cookie flags.
type DeploymentProfile string

const (
	Production  DeploymentProfile = "production"
	Development DeploymentProfile = "development"
)

func (p DeploymentProfile) IsProduction() bool { return p == Production }

const (
	StorePostgres = "postgres"
	StoreRedis    = "redis"
	StoreMemory   = "memory"
)

type Config struct {
	Profile  DeploymentProfile
	HTTPAddr string
	AppName  string

	Database database.Config
	Log      utilities.Config

	CookieDays     int
	ChallengeTTL   time.Duration
	Origin         string
	SigningSecrets [][]byte

	HashAlgo    string
	HashCost    int
	HashWorkers int

	ChallengeStore string
	RedisURL       string
	PurgeInterval  time.Duration

	SMTPHost       string
	SMTPPort       int
	SMTPUsername   string
	SMTPPassword   string
	MailFrom       string
	MailTimeout    time.Duration
	MailMaxRetries int

	OperationTimeout    time.Duration
	ConcealUnknownEmail bool
	SessionEpochCheck   bool
}

// Load reads .env when present and then the process environment.
func Load() (Config, error) {
	_ = godotenv.Load()
	cfg, err := FromEnv()
	if err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

// FromEnv parses the environment. Malformed numbers are errors; missing
// values take defaults.
func FromEnv() (Config, error) {
	p := &parser{}
	cfg := Config{
		Profile:  profileFromEnv(os.Getenv("APP_ENV")),
		HTTPAddr: stringOr("HTTP_ADDR", "0.0.0.0:8431"),
		AppName:  stringOr("APP_NAME", "Pitchfork"),

		Database: database.ConfigFromEnv(),
		Log:      utilities.ConfigFromEnv(),

		CookieDays:   p.intVar("COOKIE_EXPIRATION_DAYS", 30),
		ChallengeTTL: time.Duration(p.intVar("OTP_EXPIRATION_TIME", 300000)) * time.Millisecond,
		Origin:       strings.TrimRight(stringOr("ORIGIN", "http://localhost:5173"), "/"),

		HashAlgo:    strings.ToLower(stringOr("PASSWORD_HASH_ALGO", password.AlgoBcrypt)),
		HashCost:    p.intVar("PASSWORD_HASH_COST", 0),
		HashWorkers: p.intVar("HASH_WORKERS", 0),

		ChallengeStore: strings.ToLower(stringOr("CHALLENGE_STORE", StorePostgres)),
		RedisURL:       stringOr("REDIS_URL", "redis://localhost:6379/0"),
		PurgeInterval:  p.durationVar("CHALLENGE_PURGE_INTERVAL", 10*time.Minute),

		SMTPHost:       os.Getenv("SMTP_HOST"),
		SMTPPort:       p.intVar("SMTP_PORT", 587),
		SMTPUsername:   os.Getenv("SMTP_USERNAME"),
		SMTPPassword:   os.Getenv("SMTP_PASSWORD"),
		MailFrom:       os.Getenv("MAIL_FROM"),
		MailTimeout:    p.durationVar("MAIL_TIMEOUT", 10*time.Second),
		MailMaxRetries: p.intVar("MAIL_MAX_RETRIES", 2),

		OperationTimeout:    p.durationVar("OPERATION_TIMEOUT", 30*time.Second),
		ConcealUnknownEmail: p.boolVar("AUTH_CONCEAL_UNKNOWN_EMAIL", false),
		SessionEpochCheck:   p.boolVar("SESSION_EPOCH_CHECK", true),
	}
	for _, s := range strings.Split(os.Getenv("SECRET_KEY"), ",") {
		if s = strings.TrimSpace(s); s != "" {
			cfg.SigningSecrets = append(cfg.SigningSecrets, []byte(s))
		}
	}
	if cfg.MailFrom == "" {
		cfg.MailFrom = cfg.SMTPUsername
	}
	return cfg, p.err
}

// Validate rejects configurations the service cannot run safely with.
func (c Config) Validate() error {
	var errs []error
	if len(c.SigningSecrets) == 0 {
		errs = append(errs, errors.New("SECRET_KEY is required"))
	}
	if c.CookieDays <= 0 {
		errs = append(errs, errors.New("COOKIE_EXPIRATION_DAYS must be positive"))
	}
	if c.ChallengeTTL <= 0 {
		errs = append(errs, errors.New("OTP_EXPIRATION_TIME must be positive"))
	}
	if c.OperationTimeout <= 0 {
		errs = append(errs, errors.New("OPERATION_TIMEOUT must be positive"))
	}
	if c.MailMaxRetries < 0 {
		errs = append(errs, errors.New("MAIL_MAX_RETRIES must not be negative"))
	}
	if _, err := password.New(c.HashAlgo, c.HashCost); err != nil {
		errs = append(errs, err)
	}
	switch c.ChallengeStore {
	case StorePostgres, StoreRedis:
	case StoreMemory:
		if c.Profile.IsProduction() {
			errs = append(errs, errors.New("CHALLENGE_STORE=memory is not allowed in production"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown CHALLENGE_STORE %q", c.ChallengeStore))
	}
	if c.Profile.IsProduction() && c.SMTPHost == "" {
		errs = append(errs, errors.New("SMTP_HOST is required in production"))
	}
	if c.SMTPHost != "" && c.MailFrom == "" {
		errs = append(errs, errors.New("MAIL_FROM or SMTP_USERNAME is required when SMTP_HOST is set"))
	}
	return errors.Join(errs...)
}

func profileFromEnv(v string) DeploymentProfile {
	if strings.EqualFold(strings.TrimSpace(v), string(Production)) {
		return Production
	}
	return Development
}

func stringOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

// parser keeps the first parse error so FromEnv can report it once.
type parser struct{ err error }

func (p *parser) fail(key, v string, err error) {
	if p.err == nil {
		p.err = fmt.Errorf("config: %s=%q: %w", key, v, err)
	}
}

func (p *parser) intVar(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		p.fail(key, v, err)
		return def
	}
	return n
}

func (p *parser) boolVar(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		p.fail(key, v, err)
		return def
	}
	return b
}

// durationVar accepts Go durations ("90s") or plain milliseconds.
func (p *parser) durationVar(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	if ms, err := strconv.Atoi(v); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		p.fail(key, v, err)
		return def
	}
	return d
}
