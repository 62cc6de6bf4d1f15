package cmd

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pilab-dev/hospital-gate/authz"
	"github.com/pilab-dev/hospital-gate/domain"
	"github.com/pilab-dev/hospital-gate/internal/audit"
	passwords "github.com/pilab-dev/hospital-gate/internal/auth"
	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"
)

// userCreator is implemented by stores that accept new users.
type userCreator interface {
	CreateUser(ctx context.Context, u *domain.User) error
}

type userView struct {
	ID          string      `json:"id" yaml:"id"`
	Email       string      `json:"email" yaml:"email"`
	FirstName   string      `json:"firstName,omitempty" yaml:"firstName,omitempty"`
	LastName    string      `json:"lastName,omitempty" yaml:"lastName,omitempty"`
	Role        domain.Role `json:"role" yaml:"role"`
	Permissions []string    `json:"permissions" yaml:"permissions"`
	GroupID     string      `json:"groupId,omitempty" yaml:"groupId,omitempty"`
	HospitalID  string      `json:"hospitalId,omitempty" yaml:"hospitalId,omitempty"`
	TenantID    string      `json:"tenantId,omitempty" yaml:"tenantId,omitempty"`
	IsActive    bool        `json:"isActive" yaml:"isActive"`
	HasSession  bool        `json:"hasActiveSession" yaml:"hasActiveSession"`
}

func newUserView(u *domain.User) userView {
	return userView{
		ID:          u.ID,
		Email:       u.Email,
		FirstName:   u.FirstName,
		LastName:    u.LastName,
		Role:        u.Role,
		Permissions: u.Permissions,
		GroupID:     u.GroupID,
		HospitalID:  u.HospitalID,
		TenantID:    u.TenantID,
		IsActive:    u.IsActive,
		HasSession:  u.ActiveSessionID != "",
	}
}

// userSpec collects the create flags.
type userSpec struct {
	id, email, firstName, lastName string
	role                           string
	groupID, hospitalID, tenantID  string
	permissions                    []string
	roleDefaults                   bool
	inactive                       bool
}

// build validates the flags and returns the user without a password hash.
func (s userSpec) build() (*domain.User, error) {
	var errs []error

	email := strings.TrimSpace(s.email)
	if email == "" || !strings.Contains(email, "@") {
		errs = append(errs, fmt.Errorf("invalid --email %q", s.email))
	}

	role := domain.Role(s.role)
	if !role.Valid() {
		errs = append(errs, fmt.Errorf("unknown --role %q", s.role))
	}

	perms := slices.Clone(s.permissions)
	if s.roleDefaults {
		perms = append(perms, authz.DefaultPermissionsForRole(role)...)
	}
	slices.Sort(perms)
	perms = slices.Compact(perms)
	for _, p := range perms {
		if !authz.IsKnownPermission(p) {
			errs = append(errs, fmt.Errorf("unknown permission %q", p))
		}
	}

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	id := s.id
	if id == "" {
		id = uuid.NewString()
	}

	return &domain.User{
		ID:          id,
		Email:       email,
		FirstName:   s.firstName,
		LastName:    s.lastName,
		Role:        role,
		Permissions: perms,
		GroupID:     s.groupID,
		HospitalID:  s.hospitalID,
		TenantID:    s.tenantID,
		IsActive:    !s.inactive,
	}, nil
}

func newUserCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "user",
		Short:   "Manage users",
		Aliases: []string{"users"},
	}
	cmd.AddCommand(newUserCreateCmd(), newUserGetCmd())
	return cmd
}

func newUserCreateCmd() *cobra.Command {
	var (
		spec      userSpec
		fromStdin bool
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a user with a bcrypt-hashed password",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			user, err := spec.build()
			if err != nil {
				return err
			}

			pw, err := readPassword(cmd, fromStdin)
			if err != nil {
				return err
			}
			user.PasswordHash, err = passwords.NewBcryptPasswordHasher(bcrypt.DefaultCost).Hash(pw)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			_, _, backends, closeFn, err := openBackends(ctx)
			if err != nil {
				return err
			}
			defer closeFn()

			creator, ok := backends.Users.(userCreator)
			if !ok || backends.Mongo == nil {
				return errors.New("user create requires STORAGE_BACKEND=mongodb")
			}
			if err := creator.CreateUser(ctx, user); err != nil {
				audit.Log(audit.ActionUserCreate, user.ID, user.Email, "", false, err)
				return err
			}
			audit.Log(audit.ActionUserCreate, user.ID, user.Email, string(user.Role), true, nil)

			return printOut(cmd.OutOrStdout(), newUserView(user))
		},
	}

	f := cmd.Flags()
	f.StringVar(&spec.id, "id", "", "user id (default: random UUID)")
	f.StringVar(&spec.email, "email", "", "login email")
	f.StringVar(&spec.firstName, "first-name", "", "first name")
	f.StringVar(&spec.lastName, "last-name", "", "last name")
	f.StringVar(&spec.role, "role", string(domain.RoleStaff), "role")
	f.StringVar(&spec.groupID, "group", "", "group id")
	f.StringVar(&spec.hospitalID, "hospital", "", "hospital id")
	f.StringVar(&spec.tenantID, "tenant", "", "tenant id")
	f.StringSliceVar(&spec.permissions, "permission", nil, "permission key, repeatable")
	f.BoolVar(&spec.roleDefaults, "role-defaults", false, "add the default permissions of the role")
	f.BoolVar(&spec.inactive, "inactive", false, "create the user disabled")
	f.BoolVar(&fromStdin, "password-stdin", false, "read the password from stdin without prompting")
	_ = cmd.MarkFlagRequired("email")

	return cmd
}

func newUserGetCmd() *cobra.Command {
	var email, id string

	cmd := &cobra.Command{
		Use:   "get",
		Short: "Show a user by --email or --id",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if (email == "") == (id == "") {
				return errors.New("exactly one of --email or --id is required")
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			_, _, backends, closeFn, err := openBackends(ctx)
			if err != nil {
				return err
			}
			defer closeFn()

			var u *domain.User
			if email != "" {
				u, err = backends.Users.GetUserByEmail(ctx, email)
			} else {
				u, err = backends.Users.GetUserByID(ctx, id)
			}
			if err != nil {
				return err
			}
			return printOut(cmd.OutOrStdout(), newUserView(u))
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "login email")
	cmd.Flags().StringVar(&id, "id", "", "user id")
	return cmd
}
