// cmd/roles.go
package cmd

import (
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/xkilldash9x/wardrunner/api/schemas"
	"github.com/xkilldash9x/wardrunner/internal/login"
)

func newRolesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "roles",
		Short: "List known roles and whether credentials resolve for the active environment",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := configFrom(cmd)
			if err != nil {
				return err
			}
			creds := login.SourcesFromConfig(*cfg, EnvPrefix)

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintf(w, "ROLE\tCREDENTIALS (%s)\n", cfg.Environment)
			for _, role := range schemas.AllRoles() {
				status := "ok"
				if _, err := creds.Lookup(cmd.Context(), cfg.Environment, role); err != nil {
					status = "missing"
					if !errors.Is(err, login.ErrCredentials) {
						status = "error: " + err.Error()
					}
				}
				fmt.Fprintf(w, "%s\t%s\n", role, status)
			}
			return w.Flush()
		},
	}
}
