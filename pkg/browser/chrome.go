// Package browser drives a single Chrome tab over the DevTools protocol.
package browser

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	cdpbrowser "github.com/chromedp/cdproto/browser"
	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
)

// ErrDownloadTimeout is returned when no download starts within the wait.
var ErrDownloadTimeout = errors.New("no download started before timeout")

// DefaultNavigationGrace is how long WaitNetworkIdle waits for the last
// action to start loading a new document before it trusts the current one.
const DefaultNavigationGrace = time.Second

// Option is one <option> of a <select> element.
type Option struct {
	Text     string `json:"text"`
	Value    string `json:"value"`
	Selected bool   `json:"selected"`
	Disabled bool   `json:"disabled"`
}

// Options configures the browser process.
type Options struct {
	Headless  bool
	UserAgent string
	ExecPath  string
}

// Chrome is one browser with one tab. It is not safe for concurrent use:
// the tab is a single mutable surface.
type Chrome struct {
	logger      *log.Logger
	ctx         context.Context
	cancel      context.CancelFunc
	allocCancel context.CancelFunc
	downloadDir string
	closeOnce   sync.Once
	closeErr    error

	// grace bounds the wait for an action to start a navigation.
	grace time.Duration

	mu        sync.Mutex
	mainFrame cdp.FrameID
	idle      bool
	idleCh    chan struct{}
	loads     uint64
	loadCh    chan struct{}
	mark      uint64
	pending   bool
	begun     chan string
	seen      map[string]bool
	done      map[string]chan bool
}

func newChrome(logger *log.Logger, downloadDir string) *Chrome {
	return &Chrome{
		logger:      logger,
		downloadDir: downloadDir,
		grace:       DefaultNavigationGrace,
		idleCh:      make(chan struct{}),
		loadCh:      make(chan struct{}),
		seen:        make(map[string]bool),
		done:        make(map[string]chan bool),
	}
}

// New launches Chrome and opens the tab every later call acts on.
func New(ctx context.Context, opts Options, logger *log.Logger) (*Chrome, error) {
	dir, err := os.MkdirTemp("", "meisai-downloads-")
	if err != nil {
		return nil, fmt.Errorf("create download dir: %w", err)
	}

	allocOpts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	allocOpts = append(allocOpts, chromedp.Flag("incognito", true))
	if !opts.Headless {
		allocOpts = append(allocOpts, chromedp.Flag("headless", false))
	}
	if opts.UserAgent != "" {
		allocOpts = append(allocOpts, chromedp.UserAgent(opts.UserAgent))
	}
	if opts.ExecPath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(opts.ExecPath))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, allocOpts...)
	tabCtx, cancel := chromedp.NewContext(allocCtx, chromedp.WithLogf(logger.Debugf))

	c := newChrome(logger, dir)
	c.ctx, c.cancel, c.allocCancel = tabCtx, cancel, allocCancel

	chromedp.ListenTarget(tabCtx, c.handleEvent)
	chromedp.ListenBrowser(tabCtx, c.handleEvent)

	err = chromedp.Run(tabCtx,
		page.SetLifecycleEventsEnabled(true),
		cdpbrowser.SetDownloadBehavior(cdpbrowser.SetDownloadBehaviorBehaviorAllowAndName).
			WithDownloadPath(dir).
			WithEventsEnabled(true),
	)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("start browser: %w", err)
	}
	return c, nil
}

// Close shuts the browser down. Later calls return the first result.
func (c *Chrome) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = chromedp.Cancel(c.ctx)
		c.cancel()
		c.allocCancel()
		if err := os.RemoveAll(c.downloadDir); err != nil && c.closeErr == nil {
			c.closeErr = err
		}
	})
	return c.closeErr
}

func (c *Chrome) handleEvent(ev interface{}) {
	switch ev := ev.(type) {
	case *page.EventFrameNavigated:
		if ev.Frame.ParentID == "" {
			c.mu.Lock()
			c.mainFrame = ev.Frame.ID
			c.mu.Unlock()
		}
	case *page.EventFrameStartedLoading:
		c.lifecycle(ev.FrameID, "startedLoading")
	case *page.EventLifecycleEvent:
		c.lifecycle(ev.FrameID, ev.Name)
	case *cdpbrowser.EventDownloadWillBegin:
		c.downloadBegan(ev.GUID)
	case *cdpbrowser.EventDownloadProgress:
		switch ev.State {
		case cdpbrowser.DownloadProgressStateCompleted:
			c.downloadFinished(ev.GUID, true)
		case cdpbrowser.DownloadProgressStateCanceled:
			c.downloadFinished(ev.GUID, false)
		}
	}
}

func (c *Chrome) lifecycle(frame cdp.FrameID, name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.mainFrame != "" && frame != c.mainFrame {
		return
	}
	switch name {
	case "startedLoading", "init":
		c.loads++
		close(c.loadCh)
		c.loadCh = make(chan struct{})
		if c.idle {
			c.idle = false
			c.idleCh = make(chan struct{})
		}
	case "networkIdle":
		if !c.idle {
			c.idle = true
			close(c.idleCh)
		}
	}
}

func (c *Chrome) downloadBegan(guid string) {
	c.mu.Lock()
	if c.seen[guid] {
		c.mu.Unlock()
		return
	}
	c.seen[guid] = true
	c.done[guid] = make(chan bool, 1)
	begun := c.begun
	c.mu.Unlock()

	if begun != nil {
		select {
		case begun <- guid:
		default:
		}
	}
}

// downloadFinished reports the outcome once; Download drops the entry after
// reading it, so an early completion is still seen.
func (c *Chrome) downloadFinished(guid string, ok bool) {
	c.mu.Lock()
	done, found := c.done[guid]
	c.mu.Unlock()
	if !found {
		return
	}
	select {
	case done <- ok:
	default:
	}
}

// expectNavigation marks the start of an action that may load a new
// document.
func (c *Chrome) expectNavigation() {
	c.mu.Lock()
	c.mark = c.loads
	c.pending = true
	c.mu.Unlock()
}

// awaitNavigation waits up to the grace period for a document load started
// after the last expectNavigation.
func (c *Chrome) awaitNavigation(ctx context.Context) error {
	c.mu.Lock()
	if !c.pending {
		c.mu.Unlock()
		return nil
	}
	c.pending = false
	mark := c.mark
	c.mu.Unlock()

	timer := time.NewTimer(c.grace)
	defer timer.Stop()
	for {
		c.mu.Lock()
		loads, ch := c.loads, c.loadCh
		c.mu.Unlock()
		if loads > mark {
			return nil
		}
		select {
		case <-ch:
		case <-timer.C:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// run executes actions on the tab, bounded by ctx's deadline and cancellation.
func (c *Chrome) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(c.ctx)
	defer cancel()
	if deadline, ok := ctx.Deadline(); ok {
		var cancelDeadline context.CancelFunc
		runCtx, cancelDeadline = context.WithDeadline(runCtx, deadline)
		defer cancelDeadline()
	}
	stop := context.AfterFunc(ctx, cancel)
	defer stop()
	return chromedp.Run(runCtx, actions...)
}

func (c *Chrome) Navigate(ctx context.Context, url string) error {
	c.expectNavigation()
	return c.run(ctx, chromedp.Navigate(url))
}

func (c *Chrome) Reload(ctx context.Context) error {
	c.expectNavigation()
	return c.run(ctx, chromedp.Reload())
}

// WaitDocumentReady waits until the DOM content has been parsed.
func (c *Chrome) WaitDocumentReady(ctx context.Context) error {
	var ready bool
	return c.run(ctx, chromedp.Poll(`document.readyState !== "loading"`, &ready, chromedp.WithPollingInterval(100*time.Millisecond)))
}

// WaitNetworkIdle waits for the main frame's networkIdle lifecycle event.
// After Navigate, Reload, Click or SelectOption it first waits for the
// document that action loads, so the idle state of the previous one never
// counts.
func (c *Chrome) WaitNetworkIdle(ctx context.Context) error {
	if err := c.awaitNavigation(ctx); err != nil {
		return err
	}
	c.mu.Lock()
	idle, ch := c.idle, c.idleCh
	c.mu.Unlock()
	if idle {
		return nil
	}
	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// WaitPresent waits until selector matches a node in the DOM.
func (c *Chrome) WaitPresent(ctx context.Context, selector string) error {
	return c.run(ctx, chromedp.WaitReady(selector, chromedp.ByQuery))
}

func (c *Chrome) Fill(ctx context.Context, selector, value string) error {
	return c.run(ctx, chromedp.SetValue(selector, value, chromedp.ByQuery))
}

func (c *Chrome) Click(ctx context.Context, selector string) error {
	c.expectNavigation()
	return c.run(ctx, chromedp.Click(selector, chromedp.ByQuery, chromedp.NodeVisible))
}

// Count returns how many nodes match selector right now.
func (c *Chrome) Count(ctx context.Context, selector string) (int, error) {
	var nodes []*cdp.Node
	if err := c.run(ctx, chromedp.Nodes(selector, &nodes, chromedp.ByQueryAll, chromedp.AtLeast(0))); err != nil {
		return 0, err
	}
	return len(nodes), nil
}

// Options lists the <option> elements of the <select> matched by selector.
func (c *Chrome) Options(ctx context.Context, selector string) ([]Option, error) {
	var opts []Option
	if err := c.run(ctx, chromedp.Evaluate(optionsScript(selector), &opts)); err != nil {
		return nil, fmt.Errorf("read options of %s: %w", selector, err)
	}
	return opts, nil
}

// SelectOption selects the option whose value equals label, or failing
// that the first whose text does, and fires a change event.
func (c *Chrome) SelectOption(ctx context.Context, selector, label string) error {
	c.expectNavigation()
	var found bool
	if err := c.run(ctx, chromedp.Evaluate(selectScript(selector, label), &found)); err != nil {
		return fmt.Errorf("select %q in %s: %w", label, selector, err)
	}
	if !found {
		return fmt.Errorf("option %q not found in %s", label, selector)
	}
	return nil
}

// Download runs trigger and waits up to timeout, counted from before the
// trigger, for a download to begin. When the trigger or the wait runs out of
// time it returns ErrDownloadTimeout. Once begun, it waits for completion
// within ctx and returns the file contents.
func (c *Chrome) Download(ctx context.Context, timeout time.Duration, trigger func(context.Context) error) ([]byte, error) {
	begun := make(chan string, 1)
	c.mu.Lock()
	c.begun = begun
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.begun = nil
		c.mu.Unlock()
	}()

	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := trigger(waitCtx); err != nil {
		if ctx.Err() == nil && waitCtx.Err() != nil {
			return nil, ErrDownloadTimeout
		}
		return nil, err
	}

	var guid string
	select {
	case guid = <-begun:
	case <-waitCtx.Done():
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return nil, ErrDownloadTimeout
	}

	c.mu.Lock()
	done := c.done[guid]
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.done, guid)
		c.mu.Unlock()
	}()
	if done != nil {
		select {
		case ok := <-done:
			if !ok {
				return nil, fmt.Errorf("download %s was canceled", guid)
			}
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	path := filepath.Join(c.downloadDir, guid)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read download: %w", err)
	}
	if err := os.Remove(path); err != nil {
		c.logger.Debug("failed to remove temporary download", "path", path, "error", err)
	}
	return data, nil
}
