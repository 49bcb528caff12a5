package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/realmsync/realmsync/pkg/config"
	"github.com/realmsync/realmsync/pkg/identity/models"
	"github.com/realmsync/realmsync/pkg/status"
	"github.com/realmsync/realmsync/pkg/sync"
)

var syncCmd = &cobra.Command{
	Use:   "sync [slug...]",
	Short: "Run one sync cycle",
	Long: `Run a single synchronization cycle and exit.

Without arguments, every enabled source is synced. Pass one or more source
slugs to sync specific sources only. A source whose lease is held by
another worker is skipped; re-run once that worker finishes.

Examples:
  # Sync all enabled sources once
  realmsync sync

  # Sync one source
  realmsync sync corp-realm`,
	RunE: runSync,
}

func runSync(cmd *cobra.Command, args []string) error {
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
		sources, err = rc.Store.ListSyncableSources(ctx)
		if err != nil {
			return fmt.Errorf("failed to list sources: %w", err)
		}
		if len(sources) == 0 {
			fmt.Println("No syncable sources configured.")
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

	var failed bool
	for _, source := range sources {
		report, err := rc.Engine.Sync(ctx, source)
		if err != nil {
			return fmt.Errorf("sync %q: %w", source.Slug, err)
		}
		printReport(report)
		if len(report.Failed()) > 0 {
			failed = true
		}
	}
	if failed {
		return fmt.Errorf("some principals failed to sync")
	}
	return nil
}

func printReport(report *sync.Report) {
	fmt.Printf("%s (%s): %s in %s\n", report.Source, report.Realm, report.Outcome, report.Duration.Round(time.Millisecond))
	if report.Outcome == sync.RunDisabled || report.Outcome == sync.RunSkippedBusy {
		return
	}
	fmt.Printf("  principals: %d  created: %d  updated: %d  rejected: %d  failed: %d\n",
		report.Seen(),
		report.Count(sync.OutcomeCreated),
		report.Count(sync.OutcomeUpdated),
		report.Count(sync.OutcomeRejected),
		report.Count(sync.OutcomeFailed))
	for _, result := range report.Failed() {
		fmt.Printf("  failed: %s: %s\n", result.Principal, result.Reason)
	}
	if report.Status != "" && report.Status != status.StatusOK {
		fmt.Printf("  status: %s\n", report.Status)
	}
}
