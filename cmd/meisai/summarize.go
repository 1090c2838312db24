package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
	"github.com/k0kubun/pp/v3"
	"github.com/spf13/cobra"

	"github.com/yurifrl/meisai/pkg/config"
	"github.com/yurifrl/meisai/pkg/models"
	"github.com/yurifrl/meisai/pkg/parser"
	"github.com/yurifrl/meisai/pkg/report"
	"github.com/yurifrl/meisai/pkg/service"
	"github.com/yurifrl/meisai/pkg/storage"
)

type filters struct {
	card   string
	month  int
	column string
	format string
	dump   bool
}

var summarizeFilters filters

// apply keeps the groups matching the card filter and, when a month is set,
// only that month's column.
func (f *filters) apply(groups []report.Group) ([]report.Group, error) {
	groups = report.Filter(groups, f.card)
	if f.month == 0 {
		return groups, nil
	}
	m := models.Month(f.month)
	if !m.Valid() {
		return nil, fmt.Errorf("invalid month %d", f.month)
	}
	column, err := models.ParseColumn(f.column)
	if err != nil {
		return nil, err
	}
	key := m.Key(column)
	var out []report.Group
	for _, g := range groups {
		v, ok := g.Total.Get(key)
		if !ok {
			continue
		}
		t := models.NewPaymentTotal()
		t.Add(key, v)
		out = append(out, report.Group{CardName: g.CardName, Total: t, Sources: g.Sources})
	}
	return out, nil
}

var summarizeCmd = &cobra.Command{
	Use:   "summarize [dir]",
	Short: "Total the exports already in the storage directory",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := newLogger()

		cfg, err := config.Build(cfgFile, cmd.Flags())
		if err != nil {
			return err
		}
		column, err := models.ParseColumn(summarizeFilters.column)
		if err != nil {
			return err
		}
		psr, err := newParser(cfg, logger, column)
		if err != nil {
			return err
		}

		dir := cfg.Storage.Dir
		if len(args) == 1 {
			dir = args[0]
		}

		if summarizeFilters.dump {
			if err := dumpRecords(psr, dir, logger); err != nil {
				return err
			}
		}

		statements, err := service.ProcessDirectory(psr, dir)
		if err != nil {
			return err
		}
		groups, err := summarizeFilters.apply(report.Build(statements))
		if err != nil {
			return err
		}

		switch summarizeFilters.format {
		case "", "text":
			fmt.Print(report.Text(groups))
		case "yaml":
			out, err := report.YAML(groups)
			if err != nil {
				return err
			}
			os.Stdout.Write(out)
		case "csv":
			os.Stdout.Write(report.CSV(groups))
		default:
			return fmt.Errorf("unknown format %q", summarizeFilters.format)
		}

		mutedStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
		fmt.Fprintln(os.Stderr, mutedStyle.Render(fmt.Sprintf("%d file(s) in %s, %d shown", len(statements), dir, len(groups))))
		return nil
	},
}

func dumpRecords(psr *parser.Parser, dir string, logger *log.Logger) error {
	store, err := storage.NewDir(dir)
	if err != nil {
		return err
	}
	files, err := store.List(".csv")
	if err != nil {
		return err
	}
	for _, path := range files {
		data, err := os.ReadFile(path)
		if err != nil {
			logger.Warn("failed to read file", "file", path, "error", err)
			continue
		}
		records, err := psr.Records(data)
		if err != nil {
			logger.Warn("failed to parse file", "file", path, "error", err)
			continue
		}
		fmt.Fprintln(os.Stderr, filepath.Base(path))
		pp.Fprintln(os.Stderr, records)
	}
	return nil
}

func init() {
	summarizeCmd.Flags().StringVar(&summarizeFilters.card, "card", "", "Filter by card name (case insensitive)")
	summarizeCmd.Flags().IntVar(&summarizeFilters.month, "month", 0, "Only show this month (1-12)")
	summarizeCmd.Flags().StringVar(&summarizeFilters.column, "column", "due", "Column family to total: due, carryover or remaining")
	summarizeCmd.Flags().StringVar(&summarizeFilters.format, "format", "text", "Output format: text, yaml or csv")
	summarizeCmd.Flags().BoolVar(&summarizeFilters.dump, "dump", false, "Print the parsed rows of every export")
}
