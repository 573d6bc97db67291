package cli

import (
	"fmt"

	"clipvault/internal/logging"
	"clipvault/internal/repository"

	"github.com/spf13/cobra"
)

// checkCmd runs the full startup sequence without serving anything: open
// both stores, ensure their schemas, seed the taxonomy, then report. A
// non-zero exit means the store must not be served.
var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Validate the stores and bring the schema up to date",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCheck()
	},
}

func init() {
	RootCmd.AddCommand(checkCmd)
}

func runCheck() error {
	repo, err := repository.NewRepository(cfg)
	if err != nil {
		return fmt.Errorf("failed to open catalog store: %w", err)
	}
	defer repo.Close()

	if err := repo.EnsureSchema(); err != nil {
		logging.Log.Errorf("CRITICAL CATALOG ERROR: %v", err)
		return err
	}
	if err := repo.EnsureTaxonomy(cfg.Catalog.Categories); err != nil {
		return fmt.Errorf("failed to seed taxonomy: %w", err)
	}

	accessRepo, err := repository.NewAccessRepository(cfg)
	if err != nil {
		return fmt.Errorf("failed to open access store: %w", err)
	}
	defer accessRepo.Close()

	if err := accessRepo.EnsureSchema(); err != nil {
		logging.Log.Errorf("CRITICAL ACCESS STORE ERROR: %v", err)
		return err
	}

	videos, pages, err := repo.ListVideos(0)
	if err != nil {
		return err
	}
	active, activePages, err := accessRepo.Active(0)
	if err != nil {
		return err
	}

	logging.Log.Infof("Catalog OK: %d videos on first of %d pages", len(videos), pages)
	logging.Log.Infof("Access store OK: %d active principals on first of %d pages", len(active), activePages)
	logging.Log.Infof("Admin IDs configured: %d", len(cfg.AdminIDSet()))
	return nil
}
