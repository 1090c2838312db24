// Package enavi automates the card portal's statement pages: login, statement
// period tabs, the card selector and the CSV export button.
package enavi

import (
	"context"
	"fmt"
	"time"

	"github.com/yurifrl/meisai/pkg/browser"
	"github.com/yurifrl/meisai/pkg/models"
)

// Selectors of the portal's markup.
const (
	CardSelect  = ".stmt-head-regist-card__select__box"
	CSVButton   = ".stmt-c-btn-dl.stmt-csv-btn"
	UserField   = `input[name="u"]`
	PassField   = `input[name="p"]`
	LoginButton = `input[id="loginButton"]`
)

// Page is the browser surface the portal is driven through.
// *browser.Chrome implements it.
type Page interface {
	Navigate(ctx context.Context, url string) error
	Reload(ctx context.Context) error
	WaitDocumentReady(ctx context.Context) error
	WaitNetworkIdle(ctx context.Context) error
	WaitPresent(ctx context.Context, selector string) error
	Fill(ctx context.Context, selector, value string) error
	Click(ctx context.Context, selector string) error
	Count(ctx context.Context, selector string) (int, error)
	Options(ctx context.Context, selector string) ([]browser.Option, error)
	SelectOption(ctx context.Context, selector, label string) error
	Download(ctx context.Context, timeout time.Duration, trigger func(context.Context) error) ([]byte, error)
}

// Store persists captured exports under a file name and returns the path.
type Store interface {
	Save(name string, data []byte) (string, error)
}

// Config holds the portal endpoints and timing.
type Config struct {
	LoginURL     string
	StatementURL string

	// NavigationTimeout bounds every readiness wait.
	NavigationTimeout time.Duration
	// DownloadTimeout bounds the wait for an export to start.
	DownloadTimeout time.Duration

	// The portal keeps rendering after the network settles.
	LoginSettle     time.Duration
	PostLoginSettle time.Duration
	PageSettle      time.Duration

	FileSuffix string
}

func DefaultConfig() Config {
	return Config{
		LoginURL:          "https://www.rakuten-card.co.jp/e-navi/index.xhtml",
		StatementURL:      "https://www.rakuten-card.co.jp/e-navi/members/statement/index.xhtml",
		NavigationTimeout: 30 * time.Second,
		DownloadTimeout:   10 * time.Second,
		LoginSettle:       3 * time.Second,
		PostLoginSettle:   5 * time.Second,
		PageSettle:        3 * time.Second,
		FileSuffix:        "rakuten-card",
	}
}

// PeriodURL returns the statement page of a period tab. Tab 0 is next
// month, tab 1 the current month, higher tabs are past statements.
func (c Config) PeriodURL(p models.Period) string {
	if p.Tab == models.CurrentMonth.Tab {
		return c.StatementURL + "?l-id=enavi_all_glonavi_statement&tabNo=1"
	}
	return fmt.Sprintf("%s?tabNo=%d", c.StatementURL, p.Tab)
}

// Credentials for the portal login form.
type Credentials struct {
	ID       string
	Password string
}

// AuthError means the portal did not accept the credentials.
type AuthError struct {
	Reason string
}

func (e *AuthError) Error() string {
	return "login rejected: " + e.Reason
}

// NavigationError means a statement view never became ready.
type NavigationError struct {
	Period string
	Step   string
	Err    error
}

func (e *NavigationError) Error() string {
	return fmt.Sprintf("navigation to %s failed at %s: %v", e.Period, e.Step, e.Err)
}

func (e *NavigationError) Unwrap() error { return e.Err }

// View is a statement period page that passed the readiness check.
type View struct {
	Period models.Period
	URL    string
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
