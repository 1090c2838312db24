// Package notify delivers the statement digest.
package notify

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/log"

	"github.com/yurifrl/meisai/pkg/config"
)

// Notifier delivers one digest message.
type Notifier interface {
	Notify(ctx context.Context, message string) error
}

// NotifyError is a failed delivery. Status is the HTTP status when the
// channel answered, zero otherwise.
type NotifyError struct {
	Channel string
	Status  int
	Err     error
}

func (e *NotifyError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("notify %s: status %d: %v", e.Channel, e.Status, e.Err)
	}
	return fmt.Sprintf("notify %s: %v", e.Channel, e.Err)
}

func (e *NotifyError) Unwrap() error { return e.Err }

// New builds the notifier for cfg.Channel. A missing token or mailgun
// setting is reported as a *config.ConfigurationError.
func New(cfg config.Notify, logger *log.Logger) (Notifier, error) {
	switch cfg.Channel {
	case "", config.ChannelLine:
		return NewLine(cfg.Line.Token, cfg.Line.Endpoint)
	case config.ChannelMailgun:
		return NewMailgun(cfg.Mailgun, logger)
	case config.ChannelStdout:
		return NewStdout(os.Stdout), nil
	}
	return nil, &config.ConfigurationError{Field: "notify.channel", Reason: fmt.Sprintf("unknown channel %q", cfg.Channel)}
}

// Stdout prints the digest.
type Stdout struct {
	w io.Writer
}

func NewStdout(w io.Writer) *Stdout {
	return &Stdout{w: w}
}

func (s *Stdout) Notify(_ context.Context, message string) error {
	if _, err := io.WriteString(s.w, message); err != nil {
		return &NotifyError{Channel: config.ChannelStdout, Err: err}
	}
	return nil
}
