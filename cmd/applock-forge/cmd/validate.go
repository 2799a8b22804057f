package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/AppLock-Forge/applockforge/internal/config"
	"github.com/AppLock-Forge/applockforge/internal/domain/validation"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate stored rules and report conflicts",
	Long: `Validate every stored rule and report structural problems, advisory
warnings, and allow/deny conflicts between rules with overlapping
conditions.

Exits non-zero when any rule is invalid or any conflict exists, so the
command can gate CI pipelines.

Requires the sqlite storage backend.`,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	db, closeStore, err := openOfflineStore(cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	rules, err := db.List(cmd.Context(), "")
	if err != nil {
		return fmt.Errorf("failed to list rules: %w", err)
	}

	report := validation.ValidateAll(rules)
	printReport(report)

	if !report.Valid {
		os.Exit(1)
	}
	return nil
}

func printReport(report validation.Report) {
	invalid := 0
	for _, rr := range report.Rules {
		for _, e := range rr.Errors {
			fmt.Printf("error: %s: %s: %s\n", rr.RuleName, e.Field, e.Message)
		}
		for _, w := range rr.Warnings {
			fmt.Printf("warning: %s: %s\n", rr.RuleName, w.Message)
		}
		if !rr.Valid() {
			invalid++
		}
	}
	for _, c := range report.Conflicts {
		fmt.Printf("conflict: %q (%s) vs %q (%s): %s\n",
			c.RuleAName, c.RuleAAction, c.RuleBName, c.RuleBAction, c.Detail)
	}

	if report.Valid {
		fmt.Println("ok: no errors or conflicts")
		return
	}
	fmt.Printf("invalid: %d rule(s) with errors, %d conflict(s)\n", invalid, len(report.Conflicts))
}
