// cmd/smoke.go
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/wardrunner/api/schemas"
	"github.com/xkilldash9x/wardrunner/internal/observability"
)

// newSmokeCmd creates the `smoke` command: open a session for one role, log
// in, wait for the landing page to settle and tear everything down.
func newSmokeCmd() *cobra.Command {
	var (
		roleName    string
		tags        []string
		retries     int
		metricsFile string
	)

	smokeCmd := &cobra.Command{
		Use:   "smoke",
		Short: "Log a role in against the active environment and report the outcome",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg, err := configFrom(cmd)
			if err != nil {
				return err
			}
			role, err := resolveRole(roleName, tags)
			if err != nil {
				return err
			}
			if retries <= 0 {
				retries = cfg.Login.MaxRetries
			}

			logger := observability.GetLogger().Named("smoke").With(zap.Stringer("role", role))
			a, err := newApp(*cfg, observability.GetLogger())
			if err != nil {
				return err
			}
			defer a.close(ctx)

			ok, err := a.login.LoginAsRole(ctx, role, retries)
			if err != nil {
				return err
			}
			if ok {
				if s, found := a.sessions.Get(role); found {
					if _, err := s.Actions().WaitForLoader(ctx, 0, false); err != nil {
						logger.Warn("Landing page did not settle.", zap.Error(err))
					}
				}
			}
			if err := a.writeMetrics(metricsFile); err != nil {
				logger.Warn("Metrics not written.", zap.Error(err))
			}

			out := cmd.OutOrStdout()
			if !ok {
				fmt.Fprintf(out, "login as %s on %s: FAILED after %d attempt(s)\n", role, cfg.Environment, retries)
				return &exitError{msg: "login failed"}
			}
			fmt.Fprintf(out, "login as %s on %s: ok\n", role, cfg.Environment)
			return nil
		},
	}

	smokeCmd.Flags().StringVarP(&roleName, "role", "r", "", "role to log in as (see `wardrunner roles`)")
	smokeCmd.Flags().StringSliceVar(&tags, "tags", nil, "feature tags to derive the role from, e.g. @role:nurse")
	smokeCmd.Flags().IntVar(&retries, "retries", 0, "login attempts (default login.max_retries)")
	smokeCmd.Flags().StringVar(&metricsFile, "metrics-textfile", "", "write run metrics to this file in Prometheus text format")
	return smokeCmd
}

// resolveRole prefers an explicit --role over --tags.
func resolveRole(name string, tags []string) (schemas.RoleID, error) {
	switch {
	case name != "":
		return schemas.ParseRole(name)
	case len(tags) > 0:
		return schemas.RoleFromTags(tags)
	default:
		return "", fmt.Errorf("one of --role or --tags is required")
	}
}
