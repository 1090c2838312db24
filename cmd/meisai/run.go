package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/yurifrl/meisai/pkg/browser"
	"github.com/yurifrl/meisai/pkg/config"
	"github.com/yurifrl/meisai/pkg/enavi"
	"github.com/yurifrl/meisai/pkg/history"
	"github.com/yurifrl/meisai/pkg/models"
	"github.com/yurifrl/meisai/pkg/notify"
	"github.com/yurifrl/meisai/pkg/parser"
	"github.com/yurifrl/meisai/pkg/service"
	"github.com/yurifrl/meisai/pkg/storage"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Log in, export every card statement and send the digest",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		logger := newLogger()

		cfg, err := config.Build(cfgFile, cmd.Flags())
		if err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return err
		}

		psr, err := newParser(cfg, logger, models.DueColumn)
		if err != nil {
			return err
		}
		store, err := storage.NewDir(cfg.Storage.Dir)
		if err != nil {
			return err
		}

		opts := service.Options{
			Portal: cfg.Enavi(),
			Credentials: enavi.Credentials{
				ID:       cfg.Credentials.ID,
				Password: cfg.Credentials.Password,
			},
			Periods: cfg.Periods,
			Open: func(ctx context.Context) (service.Session, error) {
				return browser.New(ctx, browser.Options{
					Headless:  cfg.Portal.Headless,
					UserAgent: cfg.Portal.UserAgent,
					ExecPath:  cfg.Portal.ChromePath,
				}, logger.WithPrefix("browser"))
			},
			Notifier: func() (notify.Notifier, error) {
				return notify.New(cfg.Notify, logger.WithPrefix("notify"))
			},
			Store:  store,
			Parser: psr,
		}
		if cfg.History.Path != "" {
			ledger, err := history.Open(cfg.History.Path)
			if err != nil {
				return err
			}
			defer ledger.Close()
			opts.History = ledger
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		result, err := service.NewProcessor(opts, logger).Run(ctx)
		printResult(result)
		return err
	},
}

func init() {
	runCmd.Flags().String("notify", "", "Digest channel: line, mailgun or stdout")
	runCmd.Flags().Bool("headless", true, "Run Chrome without a window")
}

func newParser(cfg *config.Config, logger *log.Logger, column models.Column) (*parser.Parser, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	enc, err := parser.LookupEncoding(cfg.Storage.Encoding)
	if err != nil {
		return nil, &config.ConfigurationError{Field: "storage.encoding", Reason: err.Error()}
	}
	return parser.New(logger.WithPrefix("parser"), parser.Options{Location: loc, Encoding: enc, Column: column}), nil
}

func printResult(result *service.RunResult) {
	if result == nil {
		return
	}
	okStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	failStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	mutedStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("8"))

	for _, p := range result.Periods {
		line := fmt.Sprintf("%-8s %d export(s), %d statement(s)", p.Period.Name, len(p.Exports), len(p.Statements))
		if p.Err != nil {
			fmt.Fprintln(os.Stderr, failStyle.Render("x "+line+": "+p.Err.Error()))
			continue
		}
		fmt.Fprintln(os.Stderr, okStyle.Render("✓ "+line))
	}
	for _, c := range result.Cards {
		fmt.Fprintln(os.Stderr, failStyle.Render("x download "+c.Error()))
	}
	for _, f := range result.Files {
		fmt.Fprintln(os.Stderr, failStyle.Render("x parse "+f.Error()))
	}
	if result.NotifyErr != nil {
		fmt.Fprintln(os.Stderr, failStyle.Render("x notify: "+result.NotifyErr.Error()))
	} else if result.Notified {
		fmt.Fprintln(os.Stderr, mutedStyle.Render("digest delivered"))
	}
}
