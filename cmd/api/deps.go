package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-auth-go/internal/auth"
	"github.com/ovaphlow/pitchfork/service-auth-go/internal/challenge"
	challengerepo "github.com/ovaphlow/pitchfork/service-auth-go/internal/challenge/repo"
	"github.com/ovaphlow/pitchfork/service-auth-go/internal/config"
	"github.com/ovaphlow/pitchfork/service-auth-go/internal/mail"
	"github.com/ovaphlow/pitchfork/service-auth-go/internal/metrics"
	"github.com/ovaphlow/pitchfork/service-auth-go/internal/password"
	"github.com/ovaphlow/pitchfork/service-auth-go/internal/session"
	"github.com/ovaphlow/pitchfork/service-auth-go/internal/user"
	userrepo "github.com/ovaphlow/pitchfork/service-auth-go/internal/user/repo"
	"github.com/ovaphlow/pitchfork/service-auth-go/pkg/database"
)

// app holds the process-wide components built from Config.
type app struct {
	cfg      config.Config
	logger   *zap.SugaredLogger
	sqlDB    *sql.DB
	redis    *redis.Client
	store    challengerepo.Store
	otp      *challenge.Manager
	auth     *auth.Service
	registry *prometheus.Registry
	metrics  *metrics.Metrics
}

func buildApp(ctx context.Context, cfg config.Config, logger *zap.SugaredLogger, migrate bool) (*app, error) {
	a := &app{cfg: cfg, logger: logger, registry: metrics.NewRegistry()}
	a.metrics = metrics.NewMetrics(a.registry)

	sqlDB, err := database.Connect(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("db connect: %w", err)
	}
	a.sqlDB = sqlDB
	if migrate {
		if err := database.Migrate(ctx, sqlDB); err != nil {
			a.Close()
			return nil, err
		}
	}
	// wrap with sqlx for convenience in repos/services
	db := sqlx.NewDb(sqlDB, "postgres")

	a.store, a.redis, err = newChallengeStore(ctx, cfg, db)
	if err != nil {
		a.Close()
		return nil, err
	}

	hasher, err := newHasher(cfg, a.metrics)
	if err != nil {
		a.Close()
		return nil, err
	}
	users := user.NewUserService(userrepo.NewUserRepo(db), hasher)
	a.otp = challenge.NewOTPManager(a.store, users, hasher, cfg.ChallengeTTL)
	reset := challenge.NewResetManager(a.store, users, hasher, cfg.ChallengeTTL)

	issuer, err := session.NewIssuer(cfg.SigningSecrets...)
	if err != nil {
		a.Close()
		return nil, err
	}
	mailer, err := newMailer(cfg, logger)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.auth, err = auth.NewService(users, a.otp, reset, issuer, hasher, mailer,
		mail.Templates{App: cfg.AppName}, a.metrics, logger, auth.Options{
			SessionTTL:          time.Duration(cfg.CookieDays) * 24 * time.Hour,
			Origin:              cfg.Origin,
			ConcealUnknownEmail: cfg.ConcealUnknownEmail,
			SessionEpochCheck:   cfg.SessionEpochCheck,
		})
	if err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

// ready pings every backing store.
func (a *app) ready(ctx context.Context) error {
	if err := a.sqlDB.PingContext(ctx); err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	if a.redis != nil {
		if err := a.redis.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
	}
	return nil
}

func (a *app) Close() {
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.sqlDB != nil {
		_ = a.sqlDB.Close()
	}
}

func newHasher(cfg config.Config, m *metrics.Metrics) (password.Hasher, error) {
	h, err := password.New(cfg.HashAlgo, cfg.HashCost)
	if err != nil {
		return nil, err
	}
	pool := password.NewPool(h, cfg.HashWorkers)
	pool.Observe = m.ObserveHash
	return pool, nil
}

func newChallengeStore(ctx context.Context, cfg config.Config, db *sqlx.DB) (challengerepo.Store, *redis.Client, error) {
	switch cfg.ChallengeStore {
	case config.StorePostgres:
		return challengerepo.NewPostgresStore(db), nil, nil
	case config.StoreRedis:
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, nil, fmt.Errorf("parse REDIS_URL: %w", err)
		}
		client := redis.NewClient(opts)
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("redis ping: %w", err)
		}
		return challengerepo.NewRedisStore(client), client, nil
	case config.StoreMemory:
		return challengerepo.NewMemoryStore(), nil, nil
	default:
		return nil, nil, errors.New("unknown challenge store " + cfg.ChallengeStore)
	}
}

func newMailer(cfg config.Config, logger *zap.SugaredLogger) (mail.Mailer, error) {
	if cfg.SMTPHost == "" {
		logger.Warn("SMTP_HOST not set; mail is logged instead of sent")
		return mail.NewLogMailer(logger, !cfg.Profile.IsProduction()), nil
	}
	return mail.NewSMTPMailer(mail.SMTPConfig{
		Host:       cfg.SMTPHost,
		Port:       cfg.SMTPPort,
		Username:   cfg.SMTPUsername,
		Password:   cfg.SMTPPassword,
		From:       cfg.MailFrom,
		Timeout:    cfg.MailTimeout,
		MaxRetries: uint64(cfg.MailMaxRetries),
	}, logger)
}
