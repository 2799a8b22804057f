package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/AppLock-Forge/applockforge/internal/adapter/outbound/sqlite"
	"github.com/AppLock-Forge/applockforge/internal/config"
	"github.com/AppLock-Forge/applockforge/internal/domain/audit"
	"github.com/AppLock-Forge/applockforge/internal/domain/rule"
	"github.com/AppLock-Forge/applockforge/internal/service"
)

var (
	exportOutput     string
	exportCollection string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export stored rules as AppLocker policy XML",
	Long: `Export the stored rules as an AppLocker policy XML document.

Requires the sqlite storage backend; the in-memory backend has nothing
to export between runs.

Examples:
  # Write the full policy to stdout
  applock-forge export

  # Write one collection as a bare RuleCollection fragment
  applock-forge export --collection Script -o script-rules.xml`,
	RunE: runExport,
}

func init() {
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "write XML to file instead of stdout")
	exportCmd.Flags().StringVar(&exportCollection, "collection", "", "export a single collection (Exe, Script, Dll, Msi, Appx)")
	rootCmd.AddCommand(exportCmd)
}

func runExport(cmd *cobra.Command, args []string) error {
	svc, cfg, cleanup, err := openOfflineServices()
	if err != nil {
		return err
	}
	defer cleanup()

	defaultMode := rule.EnforcementMode(cfg.Export.DefaultEnforcementMode)

	var doc string
	if exportCollection != "" {
		col, ok := rule.ParseCollection(exportCollection)
		if !ok {
			return fmt.Errorf("unknown collection type: %s", exportCollection)
		}
		doc, err = svc.ExportCollection(cmd.Context(), col, defaultMode)
	} else {
		doc, err = svc.Export(cmd.Context(), defaultMode)
	}
	if err != nil {
		return fmt.Errorf("export failed: %w", err)
	}

	if exportOutput == "" {
		fmt.Println(doc)
		return nil
	}
	if err := os.WriteFile(exportOutput, []byte(doc), 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", exportOutput, err)
	}
	fmt.Fprintf(os.Stderr, "wrote %s\n", exportOutput)
	return nil
}

// openOfflineServices loads the config and opens the policy I/O service
// against the persistent store for one-shot commands.
func openOfflineServices() (*service.PolicyIOService, *config.Config, func(), error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	db, cleanup, err := openOfflineStore(cfg)
	if err != nil {
		return nil, nil, nil, err
	}
	svc := service.NewPolicyIOService(db, db, audit.NopJournal{}, discardLogger())
	return svc, cfg, cleanup, nil
}

// openOfflineStore opens the sqlite store for one-shot commands. The memory
// backend is rejected since it cannot hold rules between runs.
func openOfflineStore(cfg *config.Config) (*sqlite.Store, func(), error) {
	if cfg.Storage.Backend != "sqlite" {
		return nil, nil, fmt.Errorf("offline commands require storage.backend: sqlite (got %q)", cfg.Storage.Backend)
	}
	db, err := sqlite.Open(cfg.Storage.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open sqlite store: %w", err)
	}
	return db, func() { _ = db.Close() }, nil
}
