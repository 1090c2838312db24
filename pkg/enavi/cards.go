package enavi

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/yurifrl/meisai/pkg/browser"
	"github.com/yurifrl/meisai/pkg/models"
)

// unavailableMarker is appended by the portal to cards without statements.
const unavailableMarker = "利用不可"

// Enumerator reads the card selector of a statement view.
type Enumerator struct {
	page   Page
	logger *log.Logger
}

func NewEnumerator(page Page, logger *log.Logger) *Enumerator {
	return &Enumerator{page: page, logger: logger}
}

// Accounts converts selector options into card accounts, in view order.
func Accounts(opts []browser.Option) []models.CardAccount {
	out := make([]models.CardAccount, 0, len(opts))
	for _, o := range opts {
		out = append(out, models.CardAccount{
			Name:                o.Text,
			Value:               o.Value,
			IsCurrentlySelected: o.Selected,
			IsAvailable:         !o.Disabled && !strings.Contains(o.Text, unavailableMarker),
		})
	}
	return out
}

// Remaining drops the selected card, which the caller exports first, and
// cards flagged unavailable. Order is preserved.
func Remaining(accounts []models.CardAccount) []models.CardAccount {
	out := make([]models.CardAccount, 0, len(accounts))
	for _, a := range accounts {
		if a.IsCurrentlySelected || !a.IsAvailable {
			continue
		}
		out = append(out, a)
	}
	return out
}

// Cards lists every option of the view's card selector.
func (e *Enumerator) Cards(ctx context.Context, view *View) ([]models.CardAccount, error) {
	opts, err := e.page.Options(ctx, CardSelect)
	if err != nil {
		return nil, &NavigationError{Period: view.Period.Name, Step: "card selector", Err: err}
	}
	cards := Accounts(opts)
	if len(cards) > 0 && !anySelected(cards) {
		// A select without a selected attribute shows its first option.
		cards[0].IsCurrentlySelected = true
	}
	return cards, nil
}

func anySelected(cards []models.CardAccount) bool {
	for _, c := range cards {
		if c.IsCurrentlySelected {
			return true
		}
	}
	return false
}

// Selected returns the card the view currently shows.
func (e *Enumerator) Selected(ctx context.Context, view *View) (models.CardAccount, error) {
	cards, err := e.Cards(ctx, view)
	if err != nil {
		return models.CardAccount{}, err
	}
	for _, c := range cards {
		if c.IsCurrentlySelected {
			return c, nil
		}
	}
	return models.CardAccount{}, &NavigationError{Period: view.Period.Name, Step: "card selector", Err: fmt.Errorf("no cards listed")}
}

// ListRemaining returns the cards still to export after the selected one.
func (e *Enumerator) ListRemaining(ctx context.Context, view *View) ([]models.CardAccount, error) {
	cards, err := e.Cards(ctx, view)
	if err != nil {
		return nil, err
	}
	remaining := Remaining(cards)
	e.logger.Debug("cards listed", "period", view.Period.Name, "total", len(cards), "remaining", len(remaining))
	return remaining, nil
}
