package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/OptimCE/crm-backend-sub001/domain"
	"github.com/OptimCE/crm-backend-sub001/internal/app"
	"github.com/OptimCE/crm-backend-sub001/internal/config"
	"github.com/OptimCE/crm-backend-sub001/internal/tenant"
	"github.com/OptimCE/crm-backend-sub001/pkg/logger"
)

var (
	token    string
	caller   string
	tenantID string
	role     string
	verbose  bool
)

var rootCmd = &cobra.Command{
	Use:   "engctl",
	Short: "Operate the lifecycle engine from the command line",
	Long: `engctl runs lifecycle operations (meter configurations, allocation keys,
consumption imports) and schema migrations against the engine database.

Every operation runs as an identity: pass a signed --token, or name the
--caller, --tenant and --role explicitly.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&token, "token", os.Getenv("ENGCTL_TOKEN"), "signed identity token (HS256)")
	rootCmd.PersistentFlags().StringVar(&caller, "caller", "", "external id of the acting user")
	rootCmd.PersistentFlags().StringVar(&tenantID, "tenant", "", "external id of the community")
	rootCmd.PersistentFlags().StringVar(&role, "role", "", "role claim, e.g. MANAGER or <community>:ADMIN")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log engine activity to stderr")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	if !verbose {
		return zap.NewNop(), nil
	}
	return logger.New(logger.Config{Level: cfg.Logger.Level, Encoding: "console"})
}

// openEngine connects the use cases; callers must Close the result.
func openEngine(ctx context.Context) (*app.App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	log, err := newLogger(cfg)
	if err != nil {
		return nil, err
	}
	return app.New(ctx, cfg, log, nil)
}

// identity builds the acting identity from --token or the explicit flags.
func identity(ctx context.Context, cfg *config.Config) (context.Context, error) {
	if token != "" {
		id, err := tenant.ParseToken(token, cfg.Identity.Secret, cfg.Identity.Issuer)
		if err != nil {
			return ctx, err
		}
		return tenant.WithIdentity(ctx, id), nil
	}
	if caller == "" || tenantID == "" {
		return ctx, fmt.Errorf("either --token or both --caller and --tenant are required")
	}
	var claims []string
	if role != "" {
		claims = []string{role}
	}
	return tenant.WithIdentity(ctx, tenant.Resolve(caller, tenantID, claims)), nil
}

// withEngine opens the engine, binds the identity and runs fn.
func withEngine(cmd *cobra.Command, fn func(ctx context.Context, engine *app.App) error) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Minute)
	defer cancel()

	engine, err := openEngine(ctx)
	if err != nil {
		return err
	}
	defer engine.Close()

	ctx, err = identity(ctx, engine.Config)
	if err != nil {
		return err
	}
	return explain(fn(ctx, engine))
}

func explain(err error) error {
	if err == nil {
		return nil
	}
	if code := domain.CodeOf(err); code != domain.ErrCodeInternal {
		return fmt.Errorf("%s: %w", code, err)
	}
	return err
}

func parseDay(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	return domain.ParseDay(value)
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
