package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/AppLock-Forge/applockforge/internal/config"
	"github.com/AppLock-Forge/applockforge/internal/domain/rule"
	"github.com/AppLock-Forge/applockforge/internal/domain/simulate"
)

var simulateCmd = &cobra.Command{
	Use:   "simulate <cases.yaml>",
	Short: "Evaluate test cases against stored rules",
	Long: `Evaluate a batch of candidate file accesses against the stored rules.

The case file is YAML:

  cases:
    - path: C:\Windows\System32\notepad.exe
      collection: Exe
    - path: C:\Users\alice\Downloads\tool.exe
      user_sid: S-1-5-21-1234-5678-9012-1001
      publisher: O=CONTOSO LTD, L=REDMOND, S=WASHINGTON, C=US
      hash: 0xA1B2C3

Evaluation follows AppLocker semantics: an explicit Deny always wins, an
Allow needs no Deny to match, and anything unmatched is denied by default.

Requires the sqlite storage backend.`,
	Args: cobra.ExactArgs(1),
	RunE: runSimulate,
}

func init() {
	rootCmd.AddCommand(simulateCmd)
}

// caseFile is the YAML shape of a simulation case file.
type caseFile struct {
	Cases []caseEntry `yaml:"cases"`
}

type caseEntry struct {
	Path       string `yaml:"path"`
	Collection string `yaml:"collection"`
	UserSID    string `yaml:"user_sid"`
	Publisher  string `yaml:"publisher"`
	Hash       string `yaml:"hash"`
}

func runSimulate(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", args[0], err)
	}

	var cf caseFile
	if err := yaml.Unmarshal(data, &cf); err != nil {
		return fmt.Errorf("failed to parse %s: %w", args[0], err)
	}
	if len(cf.Cases) == 0 {
		return fmt.Errorf("%s contains no cases", args[0])
	}

	cases := make([]rule.TestInput, 0, len(cf.Cases))
	for i, c := range cf.Cases {
		if c.Path == "" {
			return fmt.Errorf("case %d has no path", i+1)
		}
		col := rule.Collection("")
		if c.Collection != "" {
			parsed, ok := rule.ParseCollection(c.Collection)
			if !ok {
				return fmt.Errorf("case %d has unknown collection %q", i+1, c.Collection)
			}
			col = parsed
		}
		cases = append(cases, rule.TestInput{
			Path:       c.Path,
			Collection: col,
			UserSID:    c.UserSID,
			Publisher:  c.Publisher,
			Hash:       c.Hash,
		})
	}

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

	denied := 0
	for _, res := range simulate.Simulate(rules, cases) {
		fmt.Printf("%-14s %s\n", res.Outcome, res.Input.Path)
		fmt.Printf("               %s\n", res.Reason)
		if !res.Allowed {
			denied++
		}
	}

	if denied > 0 {
		fmt.Printf("%d of %d case(s) denied\n", denied, len(cases))
		os.Exit(1)
	}
	fmt.Printf("all %d case(s) allowed\n", len(cases))
	return nil
}
