// Package enavitest provides an in-memory portal page for tests.
package enavitest

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/yurifrl/meisai/pkg/browser"
	"github.com/yurifrl/meisai/pkg/enavi"
)

// Card is one option of the fake card selector.
type Card struct {
	Name     string
	Value    string // option value, Name when empty
	Disabled bool
	// Export is returned by the CSV button; nil means no download starts.
	Export []byte
	// NoButton hides the CSV button while this card is shown.
	NoButton bool
}

// Page is a scripted enavi.Page. Every period tab shows the same cards
// unless Periods overrides them by tab number.
type Page struct {
	mu sync.Mutex

	Cards   []Card
	Periods map[int][]Card

	// RejectLogin keeps the password field present after submit.
	RejectLogin bool
	// BrokenTabs never show the card selector.
	BrokenTabs map[int]bool

	url      string
	tab      int
	selected map[int]string
	loggedIn bool
	calls    []string
}

func (p *Page) record(format string, args ...any) {
	p.calls = append(p.calls, fmt.Sprintf(format, args...))
}

// Calls returns the page actions in order, e.g. "navigate <url>", "download <card>".
func (p *Page) Calls() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.calls...)
}

func (c Card) value() string {
	if c.Value != "" {
		return c.Value
	}
	return c.Name
}

func (p *Page) cards() []Card {
	if c, ok := p.Periods[p.tab]; ok {
		return c
	}
	return p.Cards
}

func (p *Page) current() (Card, bool) {
	cards := p.cards()
	value := p.selected[p.tab]
	for _, c := range cards {
		if c.value() == value {
			return c, true
		}
	}
	if len(cards) > 0 {
		return cards[0], true
	}
	return Card{}, false
}

func (p *Page) Navigate(_ context.Context, url string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record("navigate %s", url)
	p.url = url
	if i := strings.Index(url, "tabNo="); i >= 0 {
		fmt.Sscanf(url[i+len("tabNo="):], "%d", &p.tab)
	}
	return nil
}

func (p *Page) Reload(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record("reload")
	return nil
}

func (p *Page) WaitDocumentReady(context.Context) error { return nil }
func (p *Page) WaitNetworkIdle(context.Context) error { return nil }

func (p *Page) WaitPresent(ctx context.Context, selector string) error {
	p.mu.Lock()
	broken := selector == enavi.CardSelect && p.BrokenTabs[p.tab]
	p.mu.Unlock()
	if broken {
		<-ctx.Done()
		return ctx.Err()
	}
	return nil
}

func (p *Page) Fill(_ context.Context, selector, _ string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record("fill %s", selector)
	return nil
}

func (p *Page) Click(_ context.Context, selector string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record("click %s", selector)
	if selector == enavi.LoginButton && !p.RejectLogin {
		p.loggedIn = true
	}
	return nil
}

func (p *Page) Count(_ context.Context, selector string) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch selector {
	case enavi.PassField:
		if p.loggedIn {
			return 0, nil
		}
		return 1, nil
	case enavi.CSVButton:
		c, ok := p.current()
		if !ok || c.NoButton {
			return 0, nil
		}
		return 1, nil
	}
	return 0, nil
}

func (p *Page) Options(_ context.Context, selector string) ([]browser.Option, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if selector != enavi.CardSelect {
		return nil, fmt.Errorf("unknown select %s", selector)
	}
	cur, _ := p.current()
	var out []browser.Option
	for _, c := range p.cards() {
		out = append(out, browser.Option{
			Text:     c.Name,
			Value:    c.value(),
			Selected: c.value() == cur.value(),
			Disabled: c.Disabled,
		})
	}
	return out, nil
}

func (p *Page) SelectOption(_ context.Context, _ string, label string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record("select %s", label)
	for _, c := range p.cards() {
		if c.value() == label {
			if p.selected == nil {
				p.selected = make(map[int]string)
			}
			p.selected[p.tab] = label
			return nil
		}
	}
	return fmt.Errorf("option %q not found", label)
}

func (p *Page) Download(ctx context.Context, _ time.Duration, trigger func(context.Context) error) ([]byte, error) {
	if err := trigger(ctx); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	c, _ := p.current()
	p.record("download %s", c.value())
	if c.Export == nil {
		return nil, browser.ErrDownloadTimeout
	}
	return c.Export, nil
}
