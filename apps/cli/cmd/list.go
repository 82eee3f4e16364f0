package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/mohammed-a-khan/ptf/packages/core/registry"
	"github.com/mohammed-a-khan/ptf/packages/steps"
)

var (
	listFeatures string
	listSteps    bool
	listTagsOnly bool
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered suites, tests, and step definitions",
	Run: func(cmd *cobra.Command, args []string) {
		if err := loadFeatures(listFeatures); err != nil {
			logrus.WithError(err).Error("loading feature files")
			os.Exit(ExitConfigError)
		}

		if listSteps {
			for _, p := range steps.Default().Patterns() {
				fmt.Println(p)
			}
			return
		}

		bold := color.New(color.Bold)
		dim := color.New(color.Faint)
		seen := map[string]struct{}{}

		for _, unit := range registry.Units() {
			root, err := registry.Build(unit)
			if err != nil {
				logrus.WithError(err).WithField("unit", unit).Error("building suite")
				os.Exit(ExitConfigError)
			}
			if listTagsOnly {
				root.Walk(func(t *registry.Test) {
					for _, tag := range t.AllTags() {
						seen[tag] = struct{}{}
					}
				})
				continue
			}
			bold.Println(unit)
			root.Walk(func(t *registry.Test) {
				line := "  " + t.ID()
				if tags := t.AllTags(); len(tags) > 0 {
					line += " " + dim.Sprint("["+strings.Join(tags, ", ")+"]")
				}
				if t.Disabled() {
					line += " " + dim.Sprint("(skipped)")
				}
				if t.ShouldIterate() {
					line += " " + dim.Sprint("(data-driven)")
				}
				fmt.Println(line)
			})
		}

		if listTagsOnly {
			for tag := range seen {
				fmt.Println(tag)
			}
		}
	},
}

func init() {
	listCmd.Flags().StringVar(&listFeatures, "features", getEnvString("PTF_FEATURES", ""), "Directory of .feature files to register")
	listCmd.Flags().BoolVar(&listSteps, "steps", false, "List step definition patterns instead of tests")
	listCmd.Flags().BoolVar(&listTagsOnly, "tags", false, "List the distinct tags in use")
}
