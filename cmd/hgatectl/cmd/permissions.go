package cmd

import (
	"fmt"
	"slices"

	"github.com/pilab-dev/hospital-gate/authz"
	"github.com/pilab-dev/hospital-gate/domain"
	"github.com/spf13/cobra"
)

type permissionView struct {
	Key   string `json:"key" yaml:"key"`
	Label string `json:"label" yaml:"label"`
}

func newPermissionsCmd() *cobra.Command {
	var role, category string

	cmd := &cobra.Command{
		Use:     "permissions",
		Short:   "List the permission catalog, or the defaults of a role",
		Aliases: []string{"perms"},
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if role != "" {
				r := domain.Role(role)
				if !r.Valid() {
					return fmt.Errorf("unknown role %q", role)
				}
				return printOut(cmd.OutOrStdout(), map[string]any{
					"role":        r,
					"permissions": authz.DefaultPermissionsForRole(r),
				})
			}

			grouped := make(map[string][]permissionView)
			for cat, perms := range authz.PermissionsByCategory() {
				if category != "" && cat != category {
					continue
				}
				for _, p := range perms {
					grouped[cat] = append(grouped[cat], permissionView{Key: p.Key, Label: p.Label})
				}
			}
			if category != "" && len(grouped) == 0 {
				return fmt.Errorf("unknown category %q", category)
			}
			return printOut(cmd.OutOrStdout(), grouped)
		},
	}

	cmd.Flags().StringVar(&role, "role", "", "print the default permissions of this role")
	cmd.Flags().StringVar(&category, "category", "", "only this category, e.g. OPD")
	cmd.AddCommand(newRoutesCmd())
	return cmd
}

func newRoutesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "routes [ROUTE]",
		Short: "Print the route to permission table, or the requirement of one route",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				switch req := authz.LookupRoute(args[0]).(type) {
				case authz.Mapped:
					return printOut(cmd.OutOrStdout(), map[string]string{"route": args[0], "permission": req.Permission})
				case authz.Unmapped:
					return fmt.Errorf("route %s is not configured in the permission system", req.Route)
				}
			}

			routes := authz.Routes()
			keys := make([]string, 0, len(routes))
			for k := range routes {
				keys = append(keys, k)
			}
			slices.Sort(keys)

			out := make([]map[string]string, 0, len(keys))
			for _, k := range keys {
				out = append(out, map[string]string{"route": k, "permission": routes[k]})
			}
			return printOut(cmd.OutOrStdout(), out)
		},
	}
}
