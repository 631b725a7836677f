package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"mercator-hq/pricegate/pkg/cli"
	"mercator-hq/pricegate/pkg/pricing"
	"mercator-hq/pricegate/pkg/rules"
)

var rulesFlags struct {
	file string
}

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Inspect and validate pricing rules",
}

var rulesLintCmd = &cobra.Command{
	Use:   "lint",
	Short: "Validate a rules file",
	Long: `Parse and validate a rules file without starting the engine.

Every rule is checked for a unique ID, an ordered confidence band,
non-negative limits, valid active hours, a known action and a well-formed
JSONLogic condition.

Examples:
  pricegate rules lint --file rules.yaml`,
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := rulesPath()
		if err != nil {
			return err
		}
		loaded, err := rules.LoadFile(path)
		if err != nil {
			return cli.NewCommandError("rules lint", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s %s: %d rules valid\n", styled(cli.SuccessStyle, "✓"), path, len(loaded))
		return nil
	},
}

var rulesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List rules in evaluation order",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := rulesPath()
		if err != nil {
			return err
		}
		loaded, err := rules.LoadFile(path)
		if err != nil {
			return cli.NewCommandError("rules list", err)
		}
		return formatter().FormatTo(cmd.OutOrStdout(), rulesTable(loaded))
	},
}

func init() {
	rootCmd.AddCommand(rulesCmd)
	rulesCmd.AddCommand(rulesLintCmd, rulesListCmd)

	rulesCmd.PersistentFlags().StringVarP(&rulesFlags.file, "file", "f", "", "rules file (default rules.path from config)")
}

func rulesPath() (string, error) {
	if rulesFlags.file != "" {
		return rulesFlags.file, nil
	}
	cfg, err := loadConfig()
	if err != nil {
		return "", err
	}
	return cfg.Rules.Path, nil
}

func rulesTable(set []pricing.Rule) *cli.Table {
	table := &cli.Table{Headers: []string{"Priority", "ID", "Action", "Confidence", "Max Up", "Max Down", "Per Day", "Cooldown", "Categories", "Enabled"}}
	for _, r := range set {
		categories := strings.Join(r.Categories, ",")
		if categories == "" {
			categories = "*"
		}
		table.Append(
			fmt.Sprint(r.Priority),
			r.ID,
			string(r.Action),
			fmt.Sprintf("%.2f-%.2f", r.MinConfidence, r.MaxConfidence),
			percent(r.MaxPriceIncreasePct),
			percent(r.MaxPriceDecreasePct),
			fmt.Sprint(r.MaxChangesPerDay),
			fmt.Sprintf("%gh", r.CooldownHours),
			categories,
			fmt.Sprint(r.Enabled),
		)
	}
	return table
}
