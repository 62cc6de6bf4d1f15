package cmd

import (
	"github.com/spf13/cobra"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the effective configuration",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "check",
		Short: "Validate the configuration the server would start with",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, sec, err := loadSettings()
			if err != nil {
				return err
			}

			return printOut(cmd.OutOrStdout(), map[string]any{
				"appEnv":           cfg.AppEnv,
				"production":       sec.Production,
				"storageBackend":   cfg.StorageBackend,
				"rateLimitBackend": cfg.RateLimitStore,
				"session": map[string]string{
					"idleTimeout":    sec.Session.IdleTimeout.String(),
					"absoluteMaxAge": sec.Session.AbsoluteMaxAge.String(),
					"cookieName":     sec.Session.CookieName,
				},
				"login":          map[string]any{"max": sec.Login.MaxAttempts, "window": sec.Login.Window.String()},
				"api":            map[string]any{"max": sec.API.MaxAttempts, "window": sec.API.Window.String()},
				"lockout":        map[string]any{"maxFailed": sec.Lockout.MaxFailedAttempts, "duration": sec.Lockout.Duration.String()},
				"corsOrigins":    sec.CORS.AllowedOrigins,
				"connectOrigins": sec.Headers.ConnectOrigins,
				"jwtIssuer":      sec.JWT.Issuer,
			})
		},
	})
	return cmd
}
