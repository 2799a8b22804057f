package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/AppLock-Forge/applockforge/internal/service"
)

var importDefaults bool

var importCmd = &cobra.Command{
	Use:   "import [policy.xml]",
	Short: "Import rules from an AppLocker policy XML file",
	Long: `Import rules from an AppLocker policy XML file into the rule store.

Rules equivalent to ones already stored are skipped; structurally invalid
rules are reported and skipped without aborting the import.

Requires the sqlite storage backend.

Examples:
  # Import an exported GPO policy
  applock-forge import corp-policy.xml

  # Import the built-in default rule set
  applock-forge import --defaults`,
	Args: cobra.MaximumNArgs(1),
	RunE: runImport,
}

func init() {
	importCmd.Flags().BoolVar(&importDefaults, "defaults", false, "import the built-in default rule set")
	rootCmd.AddCommand(importCmd)
}

func runImport(cmd *cobra.Command, args []string) error {
	if importDefaults == (len(args) == 1) {
		return fmt.Errorf("provide either a policy file or --defaults")
	}

	svc, _, cleanup, err := openOfflineServices()
	if err != nil {
		return err
	}
	defer cleanup()

	const actor = "cli"
	var result *service.ImportResult
	if importDefaults {
		result, err = svc.ImportDefaultRules(cmd.Context(), "", actor)
	} else {
		var data []byte
		data, err = os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", args[0], err)
		}
		result, err = svc.Import(cmd.Context(), string(data), actor)
	}
	if err != nil {
		return fmt.Errorf("import failed: %w", err)
	}

	fmt.Printf("imported: %d\n", result.ImportedCount)
	fmt.Printf("skipped duplicates: %d\n", result.SkippedDuplicateCount)
	for _, f := range result.FailedRules {
		fmt.Printf("failed: %s (%s)\n", f.Name, f.Reason)
	}
	return nil
}
