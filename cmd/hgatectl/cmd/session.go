package cmd

import (
	"context"
	"errors"
	"time"

	"github.com/pilab-dev/hospital-gate/domain"
	"github.com/pilab-dev/hospital-gate/internal/audit"
	"github.com/pilab-dev/hospital-gate/session"
	"github.com/spf13/cobra"
)

type sessionView struct {
	ID                string     `json:"sessionId" yaml:"sessionId"`
	UserID            string     `json:"userId" yaml:"userId"`
	TenantID          string     `json:"tenantId,omitempty" yaml:"tenantId,omitempty"`
	Shape             string     `json:"shape" yaml:"shape"`
	CreatedAt         time.Time  `json:"createdAt" yaml:"createdAt"`
	LastSeenAt        time.Time  `json:"lastSeenAt" yaml:"lastSeenAt"`
	ExpiresAt         time.Time  `json:"expiresAt" yaml:"expiresAt"`
	IdleExpiresAt     *time.Time `json:"idleExpiresAt,omitempty" yaml:"idleExpiresAt,omitempty"`
	AbsoluteExpiresAt *time.Time `json:"absoluteExpiresAt,omitempty" yaml:"absoluteExpiresAt,omitempty"`
	IP                string     `json:"ip,omitempty" yaml:"ip,omitempty"`
	UserAgent         string     `json:"userAgent,omitempty" yaml:"userAgent,omitempty"`
}

func newSessionView(s *domain.Session) sessionView {
	v := sessionView{
		ID:         s.ID,
		UserID:     s.UserID,
		TenantID:   s.TenantID,
		Shape:      s.Shape.String(),
		CreatedAt:  s.CreatedAt,
		LastSeenAt: s.LastSeenAt,
		ExpiresAt:  s.ExpiresAt,
		IP:         s.IP,
		UserAgent:  s.UserAgent,
	}
	if s.Shape == domain.ShapeTimed {
		idle, abs := s.IdleExpiresAt, s.AbsoluteExpiresAt
		v.IdleExpiresAt, v.AbsoluteExpiresAt = &idle, &abs
	}
	return v
}

func newSessionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "session",
		Short:   "Inspect and revoke sessions",
		Aliases: []string{"sessions"},
	}
	cmd.AddCommand(newSessionShowCmd(), newSessionRevokeCmd())
	return cmd
}

func newSessionShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show SESSION_ID",
		Short: "Show a stored session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			_, sec, backends, closeFn, err := openBackends(ctx)
			if err != nil {
				return err
			}
			defer closeFn()

			mgr := session.NewManager(backends.Sessions, backends.Users, session.Config{
				IdleTimeout:    sec.Session.IdleTimeout,
				AbsoluteMaxAge: sec.Session.AbsoluteMaxAge,
			})
			s, err := mgr.Get(ctx, args[0])
			if err != nil {
				return err
			}
			return printOut(cmd.OutOrStdout(), newSessionView(s))
		},
	}
}

func newSessionRevokeCmd() *cobra.Command {
	var userID string

	cmd := &cobra.Command{
		Use:   "revoke",
		Short: "Delete every session of a user, forcing a new login",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if userID == "" {
				return errors.New("--user is required")
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			_, sec, backends, closeFn, err := openBackends(ctx)
			if err != nil {
				return err
			}
			defer closeFn()

			mgr := session.NewManager(backends.Sessions, backends.Users, session.Config{
				IdleTimeout:    sec.Session.IdleTimeout,
				AbsoluteMaxAge: sec.Session.AbsoluteMaxAge,
			})
			err = mgr.DeleteUserSessions(ctx, userID)
			audit.Log(audit.ActionSessionRevoke, userID, "", "operator", err == nil, err)
			if err != nil {
				return err
			}

			return printOut(cmd.OutOrStdout(), map[string]any{"userId": userID, "revoked": true})
		},
	}

	cmd.Flags().StringVar(&userID, "user", "", "user id")
	return cmd
}
