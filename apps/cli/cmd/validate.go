package cmd

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/mohammed-a-khan/ptf/packages/core/registry"
	"github.com/mohammed-a-khan/ptf/packages/gherkin"
	"github.com/mohammed-a-khan/ptf/packages/steps"
)

var validateFeatures string

// validateCmd builds every registered unit without executing anything, so
// registration mistakes and broken data sources surface before a run.
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check suite registration, feature files, and data sources",
	Run: func(cmd *cobra.Command, args []string) {
		problems := 0

		if validateFeatures != "" {
			features, err := gherkin.Discover(validateFeatures)
			if err != nil {
				logrus.WithError(err).Error("parsing feature files")
				problems++
			}
			for _, f := range features {
				gherkin.RegisterFeature(f, steps.Default())
			}
		}

		for _, unit := range registry.Units() {
			root, err := registry.Build(unit)
			if err != nil {
				fmt.Fprintf(os.Stderr, "%s %s: %v\n", color.RedString("✗"), unit, err)
				problems++
				continue
			}
			root.Walk(func(t *registry.Test) {
				desc := t.DataSource()
				if desc == nil {
					return
				}
				if err := desc.Validate(); err != nil {
					fmt.Fprintf(os.Stderr, "%s %s: %v\n", color.RedString("✗"), t.ID(), err)
					problems++
				}
			})
			fmt.Printf("%s %s\n", color.GreenString("✓"), unit)
		}

		if problems > 0 {
			fmt.Fprintf(os.Stderr, "\n%d problem(s) found\n", problems)
			os.Exit(ExitConfigError)
		}
	},
}

func init() {
	validateCmd.Flags().StringVar(&validateFeatures, "features", getEnvString("PTF_FEATURES", ""), "Directory of .feature files to validate and register")
}
