package cmd

import (
	"os"
	"path/filepath"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/mohammed-a-khan/ptf/packages/core/config"
	"github.com/mohammed-a-khan/ptf/packages/history"
)

var (
	historyLimit int
	historyPath  string
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent archived runs",
	Run: func(cmd *cobra.Command, args []string) {
		path := historyPath
		if path == "" {
			cfg, err := config.Load("")
			if err == nil && cfg.HistoryDB != "" {
				path = cfg.HistoryDB
			} else if err == nil {
				path = filepath.Join(cfg.GetResultsDir(), "history.db")
			}
		}
		if _, err := os.Stat(path); err != nil {
			logrus.Errorf("no history database at %s", path)
			os.Exit(ExitConfigError)
		}

		store, err := history.Open(path)
		if err != nil {
			logrus.WithError(err).Error("opening history database")
			os.Exit(ExitConfigError)
		}
		defer store.Close()

		entries, err := store.Recent(historyLimit)
		if err != nil {
			logrus.WithError(err).Error("querying history")
			os.Exit(ExitConfigError)
		}

		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.SetStyle(table.StyleLight)
		t.AppendHeader(table.Row{"Started", "Env", "Total", "Passed", "Failed", "Skipped", "Duration", "Workers"})
		for _, e := range entries {
			t.AppendRow(table.Row{
				e.StartedAt.Format("2006-01-02 15:04:05"),
				e.Environment,
				e.Summary.Total,
				e.Summary.Passed,
				e.Summary.Failures(),
				e.Summary.Skipped + e.Summary.Fixme,
				e.Duration.Round(time.Millisecond),
				e.Workers,
			})
		}
		t.Render()
	},
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Number of runs to show")
	historyCmd.Flags().StringVar(&historyPath, "db", getEnvString("PTF_HISTORY_DB", ""), "History database path")
}
