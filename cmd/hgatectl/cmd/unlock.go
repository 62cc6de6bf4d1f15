package cmd

import (
	"context"
	"errors"
	"time"

	"github.com/pilab-dev/hospital-gate/config"
	"github.com/pilab-dev/hospital-gate/internal/app"
	"github.com/pilab-dev/hospital-gate/internal/audit"
	"github.com/pilab-dev/hospital-gate/ratelimit"
	"github.com/spf13/cobra"
)

var errLocalRateLimits = errors.New("rate limits are process-local with RATE_LIMIT_BACKEND=memory, restart the server instead")

func newUnlockCmd() *cobra.Command {
	var userID, ip string

	cmd := &cobra.Command{
		Use:   "unlock",
		Short: "Clear the lockout of a user or the login and API budgets of an IP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if (userID == "") == (ip == "") {
				return errors.New("exactly one of --user or --ip is required")
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			cfg, sec, backends, closeFn, err := openBackends(ctx)
			if err != nil {
				return err
			}
			defer closeFn()

			if cfg.RateLimitStore != config.RateLimitRedis {
				return errLocalRateLimits
			}

			limiter := ratelimit.New(backends.RateLimit, app.LimiterConfig(sec))
			return unlock(ctx, cmd, limiter, userID, ip)
		},
	}

	cmd.Flags().StringVar(&userID, "user", "", "user id to unlock")
	cmd.Flags().StringVar(&ip, "ip", "", "client IP whose budgets to reset")
	return cmd
}

func unlock(ctx context.Context, cmd *cobra.Command, limiter *ratelimit.Limiter, userID, ip string) error {
	var (
		key string
		err error
	)
	if userID != "" {
		key = ratelimit.UserKey(userID)
		err = limiter.ClearFailedLogins(ctx, userID)
	} else {
		id := ratelimit.ClientIdentity{IP: ip}
		key = id.Key()
		err = errors.Join(
			limiter.ClearRateLimit(ctx, key),
			limiter.ClearRateLimit(ctx, id.APIKey()),
		)
	}

	audit.Log(audit.ActionAccountUnlock, userID, key, "operator", err == nil, err)
	if err != nil {
		return err
	}
	return printOut(cmd.OutOrStdout(), map[string]any{"key": key, "cleared": true})
}
