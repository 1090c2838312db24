package enavi

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/charmbracelet/log"

	"github.com/yurifrl/meisai/pkg/browser"
	"github.com/yurifrl/meisai/pkg/models"
)

// DownloadState is the progress of one card's export.
type DownloadState int

const (
	Idle DownloadState = iota
	TriggerIssued
	Captured
	TimedOut
)

func (s DownloadState) String() string {
	switch s {
	case Idle:
		return "idle"
	case TriggerIssued:
		return "trigger-issued"
	case Captured:
		return "captured"
	case TimedOut:
		return "timed-out"
	default:
		return fmt.Sprintf("DownloadState(%d)", int(s))
	}
}

const maxNameAttempts = 5

// Downloader captures the CSV export of the card a view currently shows.
type Downloader struct {
	page   Page
	store  Store
	cfg    Config
	logger *log.Logger
	now    func() time.Time
	last   int64
}

func NewDownloader(page Page, store Store, cfg Config, logger *log.Logger) *Downloader {
	return &Downloader{page: page, store: store, cfg: cfg, logger: logger, now: time.Now}
}

// Download exports the statement of card. A nil export with a nil error
// means the card has no statement for the period: either there is no export
// button or no download started within the configured timeout.
func (d *Downloader) Download(ctx context.Context, view *View, card string) (*models.StatementExport, error) {
	logger := d.logger.With("period", view.Period.Name, "card", card)

	buttons, err := d.page.Count(ctx, CSVButton)
	if err != nil {
		return nil, fmt.Errorf("look up export button: %w", err)
	}
	if buttons == 0 {
		logger.Info("no export button, skipping card")
		return nil, nil
	}

	state := Idle
	data, err := d.page.Download(ctx, d.cfg.DownloadTimeout, func(ctx context.Context) error {
		if err := d.page.Click(ctx, CSVButton); err != nil {
			return err
		}
		state = TriggerIssued
		return nil
	})
	if errors.Is(err, browser.ErrDownloadTimeout) {
		state = TimedOut
		logger.Info("no statement downloaded", "state", state, "timeout", d.cfg.DownloadTimeout)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("download statement (%s): %w", state, err)
	}

	export, err := d.persist(data)
	if err != nil {
		return nil, err
	}
	state = Captured
	logger.Info("statement captured", "state", state, "path", export.Path, "bytes", len(data))
	return export, nil
}

// persist writes data under "<epoch><suffix>.csv". Capture seconds never
// repeat within a run, and the store refuses to overwrite older files.
func (d *Downloader) persist(data []byte) (*models.StatementExport, error) {
	capturedAt := d.now()
	for range maxNameAttempts {
		sec := d.nextSecond(capturedAt)
		name := fmt.Sprintf("%d%s.csv", sec, d.cfg.FileSuffix)
		path, err := d.store.Save(name, data)
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("save statement: %w", err)
		}
		return &models.StatementExport{Path: path, CapturedAt: capturedAt}, nil
	}
	return nil, fmt.Errorf("save statement: no free file name after %d attempts", maxNameAttempts)
}

func (d *Downloader) nextSecond(t time.Time) int64 {
	sec := t.Unix()
	if sec <= d.last {
		sec = d.last + 1
	}
	d.last = sec
	return sec
}
