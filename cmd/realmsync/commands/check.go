package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/realmsync/realmsync/pkg/config"
	"github.com/realmsync/realmsync/pkg/identity/models"
	"github.com/realmsync/realmsync/pkg/status"
)

var checkCmd = &cobra.Command{
	Use:   "check [slug...]",
	Short: "Check realm connectivity",
	Long: `Probe directory connectivity for realm sources.

For each source, the check authenticates with the configured sync
credentials and verifies the sync principal exists in the realm. Without
arguments, every source is checked.

Examples:
  # Check all sources
  realmsync check

  # Check one source
  realmsync check corp-realm`,
	RunE: runCheck,
}

func runCheck(cmd *cobra.Command, args []string) error {
	cfg, err := config.MustLoad(GetConfigFile())
	if err != nil {
		return err
	}
	if err := InitLogger(cfg); err != nil {
		return err
	}

	rc, err := buildRuntime(cfg)
	if err != nil {
		return err
	}
	defer rc.Close()

	ctx := cmd.Context()

	var sources []*models.RealmSource
	if len(args) == 0 {
		sources, err = rc.Store.ListSources(ctx)
		if err != nil {
			return fmt.Errorf("failed to list sources: %w", err)
		}
		if len(sources) == 0 {
			fmt.Println("No sources configured.")
			return nil
		}
	} else {
		for _, slug := range args {
			source, err := rc.Store.GetSource(ctx, slug)
			if err != nil {
				return fmt.Errorf("source %q: %w", slug, err)
			}
			sources = append(sources, source)
		}
	}

	checker := status.NewChecker(rc.Registry, rc.Statuses)

	var unhealthy bool
	for _, source := range sources {
		result := checker.Check(ctx, source)
		if result.Status == status.StatusOK {
			fmt.Printf("%s (%s): ok (sync principal exists: %t)\n",
				source.Slug, source.Realm, result.PrincipalExists)
			continue
		}
		unhealthy = true
		fmt.Printf("%s (%s): %s\n", source.Slug, source.Realm, result.Status)
	}
	if unhealthy {
		return fmt.Errorf("one or more sources are unreachable")
	}
	return nil
}
