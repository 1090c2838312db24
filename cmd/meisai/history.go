package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/yurifrl/meisai/pkg/config"
	"github.com/yurifrl/meisai/pkg/history"
	"github.com/yurifrl/meisai/pkg/report"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recent runs",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.Build(cfgFile, cmd.Flags())
		if err != nil {
			return err
		}
		if cfg.History.Path == "" {
			return &config.ConfigurationError{Field: "history.path", Reason: "run history is disabled"}
		}

		ledger, err := history.Open(cfg.History.Path)
		if err != nil {
			return err
		}
		defer ledger.Close()

		runs, err := ledger.Recent(cmd.Context(), historyLimit)
		if err != nil {
			return err
		}

		okStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
		failStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
		mutedStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("8"))

		for _, r := range runs {
			head := fmt.Sprintf("#%d %s (%s) %d statement(s)",
				r.ID, r.StartedAt.Local().Format("2006-01-02 15:04"), r.FinishedAt.Sub(r.StartedAt).Round(time.Second), len(r.Statements))
			switch {
			case r.LoginError != "":
				fmt.Println(failStyle.Render("x " + head + ": " + r.LoginError))
			case r.NotifyError != "":
				fmt.Println(failStyle.Render("! " + head + ": " + r.NotifyError))
			default:
				fmt.Println(okStyle.Render("✓ " + head))
			}
			text := strings.TrimRight(report.Text(report.Build(r.Statements)), "\n")
			for _, line := range strings.Split(text, "\n") {
				if line != "" {
					fmt.Println(mutedStyle.Render("    " + line))
				}
			}
		}
		if len(runs) == 0 {
			fmt.Println("No runs recorded")
		}
		return nil
	},
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 10, "Number of runs to show")
}
