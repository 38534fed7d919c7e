package commands

import (
	"context"
	stderrors "errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/storyforge/shield/internal/auth"
	shielderrors "github.com/storyforge/shield/internal/errors"
	"github.com/storyforge/shield/internal/validation"
)

// CheckResult is the outcome of one doctor probe.
type CheckResult struct {
	Name   string
	Status string
	Detail string
}

func NewDoctorCommand(opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check configuration and backend connectivity",
		Long: `Verify that the service configuration is valid and its backends
are reachable.

This command checks:
- Configuration file validity
- Input schema compilation
- Secret store connectivity
- Identity provider JWKS endpoint
- Rate limit counter store`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 15*time.Second)
			defer cancel()

			results := make([]CheckResult, 0, 5)
			failed := false

			cfg, err := opts.LoadConfig()
			if err != nil {
				printResults([]CheckResult{{Name: "config", Status: "error", Detail: err.Error()}})
				return fmt.Errorf("configuration invalid")
			}
			results = append(results, CheckResult{Name: "config", Status: "ok", Detail: opts.ConfigFile})

			if _, err := validation.CompileSchemas(); err != nil {
				results = append(results, CheckResult{Name: "schemas", Status: "error", Detail: err.Error()})
				failed = true
			} else {
				results = append(results, CheckResult{Name: "schemas", Status: "ok"})
			}

			store, err := buildStore(cfg, opts.Logger)
			if err != nil {
				results = append(results, CheckResult{Name: "secret store", Status: "error", Detail: err.Error()})
				failed = true
			} else {
				// A missing probe parameter still proves connectivity.
				_, err := store.Get(ctx, "shield/doctor-probe", false)
				var notFound shielderrors.SecretNotFoundError
				switch {
				case err == nil, stderrors.As(err, &notFound):
					results = append(results, CheckResult{Name: "secret store", Status: "ok", Detail: cfg.SecretStore.Type})
				default:
					results = append(results, CheckResult{Name: "secret store", Status: "error", Detail: err.Error()})
					failed = true
				}
			}

			if cfg.Auth.JWKSURL == "" {
				results = append(results, CheckResult{Name: "jwks", Status: "skipped", Detail: "auth.jwks_url not set"})
			} else {
				jwks := auth.NewJWKSClient(cfg.Auth.JWKSURL, opts.Logger.Named("jwks"))
				keys, err := jwks.FetchKeys(ctx)
				if err != nil {
					results = append(results, CheckResult{Name: "jwks", Status: "error", Detail: err.Error()})
					failed = true
				} else {
					results = append(results, CheckResult{Name: "jwks", Status: "ok", Detail: fmt.Sprintf("%d keys", len(keys))})
				}
			}

			if cfg.RateLimit.Backend == "redis" {
				client := redis.NewClient(&redis.Options{
					Addr:     cfg.RateLimit.RedisAddr,
					Password: cfg.RateLimit.RedisPassword,
					DB:       cfg.RateLimit.RedisDB,
				})
				if err := client.Ping(ctx).Err(); err != nil {
					results = append(results, CheckResult{Name: "rate limit", Status: "error", Detail: err.Error()})
					failed = true
				} else {
					results = append(results, CheckResult{Name: "rate limit", Status: "ok", Detail: "redis"})
				}
				_ = client.Close()
			} else {
				results = append(results, CheckResult{Name: "rate limit", Status: "ok", Detail: "memory"})
			}

			printResults(results)
			if failed {
				return fmt.Errorf("one or more checks failed")
			}
			return nil
		},
	}
}

func printResults(results []CheckResult) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "CHECK\tSTATUS\tDETAIL")
	for _, r := range results {
		fmt.Fprintf(w, "%s\t%s\t%s\n", r.Name, r.Status, r.Detail)
	}
	_ = w.Flush()
}
