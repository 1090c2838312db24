package enavi

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"

	"github.com/yurifrl/meisai/pkg/models"
)

// Navigator owns the session: it logs in and moves between statement views.
type Navigator struct {
	page   Page
	cfg    Config
	logger *log.Logger
}

func NewNavigator(page Page, cfg Config, logger *log.Logger) *Navigator {
	return &Navigator{page: page, cfg: cfg, logger: logger}
}

// Login submits the login form. It fails with *AuthError when the portal
// shows the form again after submitting.
func (n *Navigator) Login(ctx context.Context, creds Credentials) error {
	n.logger.Info("logging in", "url", n.cfg.LoginURL)

	navCtx, cancel := context.WithTimeout(ctx, n.cfg.NavigationTimeout)
	defer cancel()

	if err := n.page.Navigate(navCtx, n.cfg.LoginURL); err != nil {
		return fmt.Errorf("open login page: %w", err)
	}
	if err := n.page.WaitDocumentReady(navCtx); err != nil {
		return fmt.Errorf("login page not ready: %w", err)
	}
	if err := sleep(ctx, n.cfg.LoginSettle); err != nil {
		return err
	}
	if err := n.page.Fill(navCtx, UserField, creds.ID); err != nil {
		return fmt.Errorf("fill user: %w", err)
	}
	if err := n.page.Fill(navCtx, PassField, creds.Password); err != nil {
		return fmt.Errorf("fill password: %w", err)
	}
	if err := n.page.Click(navCtx, LoginButton); err != nil {
		return fmt.Errorf("submit login: %w", err)
	}

	submitCtx, cancelSubmit := context.WithTimeout(ctx, n.cfg.NavigationTimeout)
	defer cancelSubmit()
	if err := n.page.WaitNetworkIdle(submitCtx); err != nil {
		return fmt.Errorf("login did not settle: %w", err)
	}
	if err := sleep(ctx, n.cfg.PostLoginSettle); err != nil {
		return err
	}

	forms, err := n.page.Count(submitCtx, PassField)
	if err != nil {
		return fmt.Errorf("check login result: %w", err)
	}
	if forms > 0 {
		return &AuthError{Reason: "login form still shown after submit"}
	}
	n.logger.Info("logged in")
	return nil
}

// ready is the precondition of every statement action: network settled for
// the document the last action loaded, DOM parsed, card selector present,
// then the settle interval.
func (n *Navigator) ready(ctx context.Context) (string, error) {
	waitCtx, cancel := context.WithTimeout(ctx, n.cfg.NavigationTimeout)
	defer cancel()

	if err := n.page.WaitNetworkIdle(waitCtx); err != nil {
		return "network idle", err
	}
	if err := n.page.WaitDocumentReady(waitCtx); err != nil {
		return "document ready", err
	}
	if err := n.page.WaitPresent(waitCtx, CardSelect); err != nil {
		return "card selector", err
	}
	if err := sleep(ctx, n.cfg.PageSettle); err != nil {
		return "settle", err
	}
	return "", nil
}

// GotoPeriod opens the statement tab of period and waits until it is ready.
func (n *Navigator) GotoPeriod(ctx context.Context, period models.Period) (*View, error) {
	url := n.cfg.PeriodURL(period)
	n.logger.Info("opening statement", "period", period.Name, "url", url)

	navCtx, cancel := context.WithTimeout(ctx, n.cfg.NavigationTimeout)
	defer cancel()
	if err := n.page.Navigate(navCtx, url); err != nil {
		return nil, &NavigationError{Period: period.Name, Step: "navigate", Err: err}
	}
	if step, err := n.ready(ctx); err != nil {
		return nil, &NavigationError{Period: period.Name, Step: step, Err: err}
	}
	return &View{Period: period, URL: url}, nil
}

// SelectCard switches the view to another card. Options are matched by
// value, so cards sharing a display name stay distinct.
func (n *Navigator) SelectCard(ctx context.Context, view *View, card models.CardAccount) error {
	n.logger.Debug("selecting card", "period", view.Period.Name, "card", card.Name, "value", card.Value)

	key := card.Value
	if key == "" {
		key = card.Name
	}
	selCtx, cancel := context.WithTimeout(ctx, n.cfg.NavigationTimeout)
	defer cancel()
	if err := n.page.SelectOption(selCtx, CardSelect, key); err != nil {
		return &NavigationError{Period: view.Period.Name, Step: "select card", Err: err}
	}
	if step, err := n.ready(ctx); err != nil {
		return &NavigationError{Period: view.Period.Name, Step: step, Err: err}
	}
	return nil
}

// Reset reloads the view. Exporting or switching cards leaves query state in
// the URL that breaks later navigation, so every capture is followed by one.
func (n *Navigator) Reset(ctx context.Context, view *View) error {
	n.logger.Debug("reloading statement", "period", view.Period.Name)

	reloadCtx, cancel := context.WithTimeout(ctx, n.cfg.NavigationTimeout)
	defer cancel()
	if err := n.page.Reload(reloadCtx); err != nil {
		return &NavigationError{Period: view.Period.Name, Step: "reload", Err: err}
	}
	if step, err := n.ready(ctx); err != nil {
		return &NavigationError{Period: view.Period.Name, Step: step, Err: err}
	}
	return nil
}
