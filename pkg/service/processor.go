// Package service runs the statement workflow: log in, export every card of
// every configured period, summarize the exports and deliver the digest.
package service

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/yurifrl/meisai/pkg/config"
	"github.com/yurifrl/meisai/pkg/enavi"
	"github.com/yurifrl/meisai/pkg/history"
	"github.com/yurifrl/meisai/pkg/models"
	"github.com/yurifrl/meisai/pkg/notify"
	"github.com/yurifrl/meisai/pkg/parser"
	"github.com/yurifrl/meisai/pkg/report"
)

// Session is a browser page owned by one run.
type Session interface {
	enavi.Page
	Close() error
}

// Recorder stores finished runs.
type Recorder interface {
	Record(ctx context.Context, run history.Run) (int64, error)
}

type Options struct {
	Portal      enavi.Config
	Credentials enavi.Credentials
	Periods     []models.Period

	// Open starts the browser session.
	Open func(ctx context.Context) (Session, error)
	// Notifier is built when the digest is ready, so a missing token only
	// fails the notification step.
	Notifier func() (notify.Notifier, error)

	Store  enavi.Store
	Parser *parser.Parser
	// History is optional.
	History Recorder
}

type Processor struct {
	opts   Options
	logger *log.Logger
	now    func() time.Time
}

func NewProcessor(opts Options, logger *log.Logger) *Processor {
	if len(opts.Periods) == 0 {
		opts.Periods = []models.Period{models.CurrentMonth, models.NextMonth}
	}
	return &Processor{opts: opts, logger: logger, now: time.Now}
}

// Run performs one full run. The returned error is set only for failures
// that end the run: configuration, browser start, login, or a notifier that
// cannot be built. Period, card, file and delivery failures are recorded in
// the result.
func (p *Processor) Run(ctx context.Context) (*RunResult, error) {
	result := &RunResult{StartedAt: p.now()}

	if p.opts.Credentials.ID == "" {
		return result, &config.ConfigurationError{Field: "ID"}
	}
	if p.opts.Credentials.Password == "" {
		return result, &config.ConfigurationError{Field: "PASS"}
	}

	if err := p.collect(ctx, result); err != nil {
		result.FinishedAt = p.now()
		p.record(ctx, result)
		return result, err
	}

	result.Report = report.Compose(result.Statements())
	err := p.notify(ctx, result)
	result.FinishedAt = p.now()
	p.record(ctx, result)
	return result, err
}

// collect owns the browser session; it is closed exactly once on return.
func (p *Processor) collect(ctx context.Context, result *RunResult) error {
	session, err := p.opts.Open(ctx)
	if err != nil {
		return fmt.Errorf("start browser: %w", err)
	}
	defer func() {
		if err := session.Close(); err != nil {
			p.logger.Warn("failed to close browser", "error", err)
		}
	}()

	nav := enavi.NewNavigator(session, p.opts.Portal, p.logger)
	if err := nav.Login(ctx, p.opts.Credentials); err != nil {
		result.Login = err
		return err
	}

	enum := enavi.NewEnumerator(session, p.logger)
	dl := enavi.NewDownloader(session, p.opts.Store, p.opts.Portal, p.logger)
	for _, period := range p.opts.Periods {
		pr := p.period(ctx, nav, enum, dl, period, result)
		if pr.Err != nil {
			p.logger.Error("statement period failed", "period", period.Name, "error", pr.Err)
		}
		result.Periods = append(result.Periods, pr)
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return nil
}

// period exports the selected card first, then the remaining cards in the
// order the selector lists them. A navigation failure ends the period.
func (p *Processor) period(ctx context.Context, nav *enavi.Navigator, enum *enavi.Enumerator, dl *enavi.Downloader, period models.Period, result *RunResult) PeriodResult {
	pr := PeriodResult{Period: period}

	view, err := nav.GotoPeriod(ctx, period)
	if err != nil {
		pr.Err = err
		return pr
	}
	selected, err := enum.Selected(ctx, view)
	if err != nil {
		pr.Err = err
		return pr
	}
	remaining, err := enum.ListRemaining(ctx, view)
	if err != nil {
		pr.Err = err
		return pr
	}
	p.logger.Info("cards listed", "period", period.Name, "selected", selected.Name, "remaining", len(remaining))

	p.capture(ctx, dl, view, selected.Name, &pr, result)
	if err := nav.Reset(ctx, view); err != nil {
		pr.Err = err
		return pr
	}

	for _, card := range remaining {
		if err := nav.SelectCard(ctx, view, card); err != nil {
			pr.Err = err
			return pr
		}
		p.capture(ctx, dl, view, card.Name, &pr, result)
		if err := nav.Reset(ctx, view); err != nil {
			pr.Err = err
			return pr
		}
	}
	return pr
}

// capture downloads and summarizes one card. Its failures stay with the card.
func (p *Processor) capture(ctx context.Context, dl *enavi.Downloader, view *enavi.View, card string, pr *PeriodResult, result *RunResult) {
	export, err := dl.Download(ctx, view, card)
	if err != nil {
		p.logger.Warn("download failed", "period", view.Period.Name, "card", card, "error", err)
		result.Cards = append(result.Cards, CardError{Period: view.Period.Name, Card: card, Err: err})
		return
	}
	if export == nil {
		return
	}
	pr.Exports = append(pr.Exports, *export)

	total, err := p.opts.Parser.SummarizeFile(export.Path)
	if err != nil {
		p.logger.Warn("failed to summarize statement", "card", card, "file", export.Path, "error", err)
		result.Files = append(result.Files, FileError{Period: view.Period.Name, Card: card, Path: export.Path, Err: err})
		return
	}
	pr.Statements = append(pr.Statements, models.CardStatement{
		CardName: card,
		Period:   view.Period.Name,
		Total:    total,
	})
}

func (p *Processor) notify(ctx context.Context, result *RunResult) error {
	message := result.Report
	if message == "" {
		message = report.EmptyMessage
	}

	n, err := p.opts.Notifier()
	if err != nil {
		result.NotifyErr = err
		return err
	}
	if err := n.Notify(ctx, message); err != nil {
		result.NotifyErr = err
		p.logger.Error("failed to deliver digest", "error", err)
		return nil
	}
	result.Notified = true
	p.logger.Info("digest delivered", "statements", len(result.Statements()))
	return nil
}

func (p *Processor) record(ctx context.Context, result *RunResult) {
	if p.opts.History == nil {
		return
	}
	run := history.Run{
		StartedAt:  result.StartedAt,
		FinishedAt: result.FinishedAt,
		Report:     result.Report,
		Statements: result.Statements(),
	}
	if result.Login != nil {
		run.LoginError = result.Login.Error()
	}
	if result.NotifyErr != nil {
		run.NotifyError = result.NotifyErr.Error()
	}
	id, err := p.opts.History.Record(context.WithoutCancel(ctx), run)
	if err != nil {
		p.logger.Warn("failed to record run", "error", err)
		return
	}
	p.logger.Debug("run recorded", "id", id)
}

// ProcessDirectory summarizes every export already in dir. Each file becomes
// one statement named after the file.
func ProcessDirectory(psr *parser.Parser, dir string) ([]models.CardStatement, error) {
	totals, err := psr.SummarizeDir(dir)
	if err != nil {
		return nil, err
	}
	out := make([]models.CardStatement, 0, len(totals))
	for _, ft := range totals {
		name := filepath.Base(ft.Path)
		out = append(out, models.CardStatement{
			CardName: strings.TrimSuffix(name, filepath.Ext(name)),
			Total:    ft.Total,
		})
	}
	return out, nil
}

