package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/mohammed-a-khan/ptf/packages/core/config"
	"github.com/mohammed-a-khan/ptf/packages/worker"
)

var (
	workerID       int
	workerUnits    []string
	workerFeatures string
)

// workerCmd is the subprocess side of a parallel run. The orchestrator
// spawns the same binary with this subcommand; it is not for direct use.
var workerCmd = &cobra.Command{
	Use:    "worker",
	Short:  "Run as a test worker subprocess",
	Hidden: true,
	Run: func(cmd *cobra.Command, args []string) {
		// The protocol owns stdout. Anything else goes to stderr.
		logrus.SetOutput(os.Stderr)

		cfg := config.Default()
		cfg.ApplyEnv()

		if err := loadFeatures(workerFeatures); err != nil {
			logrus.WithError(err).Error("loading feature files")
			os.Exit(ExitConfigError)
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		w := worker.New(worker.Options{
			ID:     workerID,
			Config: cfg,
			Units:  workerUnits,
		})
		if err := w.Run(ctx); err != nil {
			logrus.WithError(err).Error("worker exited with error")
			os.Exit(ExitConfigError)
		}
	},
}

func init() {
	workerCmd.Flags().IntVar(&workerID, "worker-id", getEnvInt("PTF_WORKER_ID", 0), "Worker identifier assigned by the orchestrator")
	workerCmd.Flags().StringSliceVar(&workerUnits, "unit", nil, "Suite units this worker may execute")
	workerCmd.Flags().StringVar(&workerFeatures, "features", getEnvString("PTF_FEATURES", ""), "Directory of .feature files to register")
}
