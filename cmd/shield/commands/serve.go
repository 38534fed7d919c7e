package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/storyforge/shield/internal/auth"
	"github.com/storyforge/shield/internal/config"
	"github.com/storyforge/shield/internal/cryptosvc"
	"github.com/storyforge/shield/internal/httpserver"
	"github.com/storyforge/shield/internal/logging"
	"github.com/storyforge/shield/internal/monitor"
	"github.com/storyforge/shield/internal/secrets"
	"github.com/storyforge/shield/internal/secretstore"
	"github.com/storyforge/shield/internal/validation"
)

func NewServeCommand(opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP boundary",
		Long: `Start the HTTP server with security headers, input validation,
token verification, rate limiting and security monitoring in front of
the protected routes.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.LoadConfig()
			if err != nil {
				return err
			}
			if cfg.Auth.Issuer == "" || cfg.Auth.JWKSURL == "" {
				return fmt.Errorf("serve requires auth.issuer and auth.jwks_url")
			}
			if cfg.Crypto.KMSKeyID == "" {
				return fmt.Errorf("serve requires crypto.kms_key_id")
			}

			logger := opts.Logger
			if logger == nil {
				logger = logging.New("shield", cfg.Debug)
			}

			store, err := buildStore(cfg, logger)
			if err != nil {
				return err
			}

			manager := secrets.NewManager(store, logger.Named("secrets"),
				secrets.WithTTL(cfg.SecretStore.CacheTTL),
				secrets.WithSweepInterval(cfg.SecretStore.SweepInterval))
			manager.Start()
			defer manager.Stop()

			schemas, err := validation.CompileSchemas()
			if err != nil {
				return fmt.Errorf("failed to compile input schemas: %w", err)
			}

			counters, err := buildCounterStore(cfg)
			if err != nil {
				return err
			}

			verifier := auth.NewVerifier(cfg.Auth.Issuer, cfg.Auth.Audience,
				auth.NewJWKSClient(cfg.Auth.JWKSURL, logger.Named("jwks")),
				auth.NewKeyCache(cfg.Auth.KeyCacheSize, cfg.Auth.KeyCacheMaxAge),
				logger.Named("auth"))

			crypto, err := cryptosvc.NewService(cryptosvc.KMSSettings{
				KeyID:   cfg.Crypto.KMSKeyID,
				Region:  cfg.Crypto.Region,
				Profile: cfg.Crypto.Profile,
			}, cfg.BindingContext(), logger.Named("crypto"))
			if err != nil {
				return err
			}

			audit, auditFile, err := monitor.OpenAuditFile(cfg.Monitor.AuditLogPath)
			if err != nil {
				return fmt.Errorf("failed to open audit log: %w", err)
			}
			defer func() { _ = auditFile.Close() }()

			metricsSink, notifier, err := buildSinks(cfg)
			if err != nil {
				return err
			}

			monitor.InitMetrics()
			mon := monitor.New(monitor.Config{
				Audit:           audit,
				Metrics:         metricsSink,
				Notifier:        notifier,
				MetricNamespace: cfg.Monitor.MetricNamespace,
				AlertTopic:      cfg.Monitor.AlertTopicARN,
				Source:          cfg.Service,
			}, logger.Named("monitor"))

			srv := httpserver.New(cfg.Server, cfg.RateLimit, httpserver.Deps{
				Schemas:   schemas,
				Limiter:   validation.NewRateLimiter(counters),
				Moderator: validation.NewModerator(logger.Named("moderation")),
				Verifier:  verifier,
				Secrets:   manager,
				Crypto:    crypto,
				Monitor:   mon,
				Detector:  monitor.NewDetector(mon, logger.Named("anomaly")),
			}, logger.Named("http"))

			if err := srv.Start(); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			<-ctx.Done()

			logger.Info("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Stop(shutdownCtx)
		},
	}
}

func buildStore(cfg *config.Config, logger *logging.Logger) (secretstore.Store, error) {
	switch cfg.SecretStore.Type {
	case "memory":
		return secretstore.NewMemoryStore(), nil
	case "ssm":
		return secretstore.NewSSMStore(secretstore.SSMConfig{
			Region:          cfg.SecretStore.Region,
			Profile:         cfg.SecretStore.Profile,
			ParameterPrefix: cfg.SecretStore.ParameterPrefix,
		}, logger.Named("secretstore"))
	default:
		return nil, fmt.Errorf("unknown secret store type %q", cfg.SecretStore.Type)
	}
}

func buildCounterStore(cfg *config.Config) (validation.CounterStore, error) {
	switch cfg.RateLimit.Backend {
	case "memory":
		return validation.NewMemoryCounterStore(), nil
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RateLimit.RedisAddr,
			Password: cfg.RateLimit.RedisPassword,
			DB:       cfg.RateLimit.RedisDB,
		})
		return validation.NewRedisCounterStore(client), nil
	default:
		return nil, fmt.Errorf("unknown rate limit backend %q", cfg.RateLimit.Backend)
	}
}

// buildSinks selects the external metric and notification sinks when a
// region is configured, and in-memory sinks otherwise so local runs
// need no cloud credentials.
func buildSinks(cfg *config.Config) (monitor.MetricsSink, monitor.NotificationSink, error) {
	if cfg.Monitor.Region == "" {
		return monitor.NewMemoryMetricsSink(), monitor.NewMemoryNotificationSink(), nil
	}

	metrics, err := monitor.NewCloudWatchSink(nil, cfg.Monitor.Region)
	if err != nil {
		return nil, nil, err
	}
	notifier, err := monitor.NewSNSSink(nil, cfg.Monitor.Region)
	if err != nil {
		return nil, nil, err
	}
	return metrics, notifier, nil
}
