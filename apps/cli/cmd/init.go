package cmd

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/mohammed-a-khan/ptf/packages/core/config"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a starter ptf.yaml in the current directory",
	Run: func(cmd *cobra.Command, args []string) {
		path := "ptf.yaml"
		if _, err := os.Stat(path); err == nil && !initForce {
			logrus.Errorf("%s already exists (use --force to overwrite)", path)
			os.Exit(ExitUsageError)
		}

		cfg := config.Default()
		cfg.Environment = "local"
		if err := cfg.Save(path); err != nil {
			logrus.WithError(err).Error("writing config")
			os.Exit(ExitConfigError)
		}
		fmt.Printf("Wrote %s\n", path)
	},
}

func init() {
	initCmd.Flags().BoolVarP(&initForce, "force", "f", false, "Overwrite an existing config file")
}
