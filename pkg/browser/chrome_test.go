package browser

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	cdpbrowser "github.com/chromedp/cdproto/browser"
	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/page"
)

func testChrome(t *testing.T) *Chrome {
	t.Helper()
	return newChrome(log.Default(), t.TempDir())
}

type downloadResult struct {
	data []byte
	err  error
}

// download runs c.Download and fails the test if it does not return in time.
func download(t *testing.T, ctx context.Context, c *Chrome, timeout time.Duration, trigger func(context.Context) error) ([]byte, error) {
	t.Helper()
	out := make(chan downloadResult, 1)
	go func() {
		data, err := c.Download(ctx, timeout, trigger)
		out <- downloadResult{data, err}
	}()
	select {
	case r := <-out:
		return r.data, r.err
	case <-time.After(2 * time.Second):
		t.Fatal("Download did not return")
		return nil, nil
	}
}

func TestDownloadTimeoutCoversTrigger(t *testing.T) {
	c := testChrome(t)

	start := time.Now()
	_, err := download(t, context.Background(), c, 20*time.Millisecond, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	if !errors.Is(err, ErrDownloadTimeout) {
		t.Fatalf("expected ErrDownloadTimeout, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("blocked trigger held the download for %s", elapsed)
	}
}

func TestDownloadTimeoutWithoutBegin(t *testing.T) {
	c := testChrome(t)

	_, err := download(t, context.Background(), c, 20*time.Millisecond, func(context.Context) error { return nil })
	if !errors.Is(err, ErrDownloadTimeout) {
		t.Fatalf("expected ErrDownloadTimeout, got %v", err)
	}
}

func TestDownloadParentCancelIsNotTimeout(t *testing.T) {
	c := testChrome(t)
	ctx, cancel := context.WithCancel(context.Background())

	_, err := download(t, ctx, c, time.Second, func(ctx context.Context) error {
		cancel()
		<-ctx.Done()
		return ctx.Err()
	})
	if errors.Is(err, ErrDownloadTimeout) || !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestDownloadTriggerError(t *testing.T) {
	c := testChrome(t)
	boom := errors.New("click failed")

	_, err := download(t, context.Background(), c, time.Second, func(context.Context) error { return boom })
	if !errors.Is(err, boom) {
		t.Fatalf("expected trigger error, got %v", err)
	}
}

func TestDownloadCompletedBeforeWait(t *testing.T) {
	c := testChrome(t)
	path := filepath.Join(c.downloadDir, "g1")
	if err := os.WriteFile(path, []byte("csv"), 0o644); err != nil {
		t.Fatal(err)
	}

	data, err := download(t, context.Background(), c, time.Second, func(context.Context) error {
		c.handleEvent(&cdpbrowser.EventDownloadWillBegin{GUID: "g1"})
		c.handleEvent(&cdpbrowser.EventDownloadProgress{GUID: "g1", State: cdpbrowser.DownloadProgressStateCompleted})
		return nil
	})
	if err != nil {
		t.Fatalf("Download failed: %v", err)
	}
	if string(data) != "csv" {
		t.Errorf("unexpected data %q", data)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("temporary download not removed: %v", err)
	}
	if len(c.done) != 0 {
		t.Errorf("completion entries left behind: %v", c.done)
	}
}

func TestDownloadWaitsForCompletion(t *testing.T) {
	c := testChrome(t)
	if err := os.WriteFile(filepath.Join(c.downloadDir, "g2"), []byte("late"), 0o644); err != nil {
		t.Fatal(err)
	}

	data, err := download(t, context.Background(), c, time.Second, func(context.Context) error {
		c.handleEvent(&cdpbrowser.EventDownloadWillBegin{GUID: "g2"})
		go func() {
			time.Sleep(20 * time.Millisecond)
			c.handleEvent(&cdpbrowser.EventDownloadProgress{GUID: "g2", State: cdpbrowser.DownloadProgressStateInProgress})
			c.handleEvent(&cdpbrowser.EventDownloadProgress{GUID: "g2", State: cdpbrowser.DownloadProgressStateCompleted})
		}()
		return nil
	})
	if err != nil {
		t.Fatalf("Download failed: %v", err)
	}
	if string(data) != "late" {
		t.Errorf("unexpected data %q", data)
	}
}

func TestDownloadCanceled(t *testing.T) {
	c := testChrome(t)

	_, err := download(t, context.Background(), c, time.Second, func(context.Context) error {
		c.handleEvent(&cdpbrowser.EventDownloadWillBegin{GUID: "g3"})
		c.handleEvent(&cdpbrowser.EventDownloadProgress{GUID: "g3", State: cdpbrowser.DownloadProgressStateCanceled})
		return nil
	})
	if err == nil || !strings.Contains(err.Error(), "canceled") {
		t.Fatalf("expected canceled download error, got %v", err)
	}
}

func TestDownloadBeganIgnoresRepeats(t *testing.T) {
	c := testChrome(t)
	c.begun = make(chan string, 2)

	c.handleEvent(&cdpbrowser.EventDownloadWillBegin{GUID: "g4"})
	c.handleEvent(&cdpbrowser.EventDownloadWillBegin{GUID: "g4"})

	if n := len(c.begun); n != 1 {
		t.Errorf("expected one begin signal, got %d", n)
	}
}

func TestDownloadFinishedUnknownGUID(t *testing.T) {
	c := testChrome(t)
	c.handleEvent(&cdpbrowser.EventDownloadProgress{GUID: "nobody", State: cdpbrowser.DownloadProgressStateCompleted})
	if len(c.done) != 0 {
		t.Errorf("unexpected entries %v", c.done)
	}
}

func waitIdle(c *Chrome, timeout time.Duration) <-chan error {
	out := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		out <- c.WaitNetworkIdle(ctx)
	}()
	return out
}

func TestWaitNetworkIdleIgnoresPreviousDocument(t *testing.T) {
	c := testChrome(t)
	c.lifecycle("F1", "networkIdle")

	c.expectNavigation()
	done := waitIdle(c, 2*time.Second)

	select {
	case err := <-done:
		t.Fatalf("returned on the previous document's idle state: %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	c.handleEvent(&page.EventFrameStartedLoading{FrameID: "F1"})
	c.handleEvent(&page.EventLifecycleEvent{FrameID: "F1", Name: "init"})
	c.handleEvent(&page.EventLifecycleEvent{FrameID: "F1", Name: "networkIdle"})

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("WaitNetworkIdle failed: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("WaitNetworkIdle did not return after the new document settled")
	}
}

func TestWaitNetworkIdleLoadingDocumentTimesOut(t *testing.T) {
	c := testChrome(t)
	c.lifecycle("F1", "networkIdle")

	c.expectNavigation()
	c.handleEvent(&page.EventFrameStartedLoading{FrameID: "F1"})

	if err := <-waitIdle(c, 50*time.Millisecond); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline while the new document loads, got %v", err)
	}
}

func TestWaitNetworkIdleWithoutNavigation(t *testing.T) {
	c := testChrome(t)
	c.grace = 20 * time.Millisecond
	c.lifecycle("F1", "networkIdle")

	c.expectNavigation()
	start := time.Now()
	if err := <-waitIdle(c, time.Second); err != nil {
		t.Fatalf("WaitNetworkIdle failed: %v", err)
	}
	if elapsed := time.Since(start); elapsed < c.grace {
		t.Errorf("returned before the grace period: %s", elapsed)
	}
}

func TestLifecycleIgnoresChildFrames(t *testing.T) {
	c := testChrome(t)
	c.handleEvent(&page.EventFrameNavigated{Frame: &cdp.Frame{ID: "main"}})
	c.handleEvent(&page.EventFrameNavigated{Frame: &cdp.Frame{ID: "ad", ParentID: "main"}})
	c.handleEvent(&page.EventLifecycleEvent{FrameID: "main", Name: "networkIdle"})
	c.handleEvent(&page.EventLifecycleEvent{FrameID: "ad", Name: "init"})

	if c.mainFrame != "main" {
		t.Errorf("unexpected main frame %s", c.mainFrame)
	}
	if err := <-waitIdle(c, 50*time.Millisecond); err != nil {
		t.Errorf("child frame reset the idle state: %v", err)
	}
}
