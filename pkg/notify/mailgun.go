package notify

import (
	"context"
	"time"

	"github.com/charmbracelet/log"
	"github.com/mailgun/mailgun-go/v4"

	"github.com/yurifrl/meisai/pkg/config"
)

// Subject is used for e-mailed digests.
const Subject = "楽天カード 利用明細"

// Mailgun e-mails the digest as plain text.
type Mailgun struct {
	mg     mailgun.Mailgun
	from   string
	to     []string
	logger *log.Logger
}

func NewMailgun(cfg config.Mailgun, logger *log.Logger) (*Mailgun, error) {
	required := []struct{ field, value string }{
		{"notify.mailgun.domain", cfg.Domain},
		{"notify.mailgun.api_key", cfg.APIKey},
		{"notify.mailgun.from", cfg.From},
	}
	for _, r := range required {
		if r.value == "" {
			return nil, &config.ConfigurationError{Field: r.field}
		}
	}
	if len(cfg.To) == 0 {
		return nil, &config.ConfigurationError{Field: "notify.mailgun.to"}
	}

	mg := mailgun.NewMailgun(cfg.Domain, cfg.APIKey)
	if cfg.APIBase != "" {
		mg.SetAPIBase(cfg.APIBase)
	}
	return &Mailgun{mg: mg, from: cfg.From, to: cfg.To, logger: logger}, nil
}

func (m *Mailgun) Notify(ctx context.Context, message string) error {
	ctx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	msg := m.mg.NewMessage(m.from, Subject, message, m.to...)
	resp, id, err := m.mg.Send(ctx, msg)
	if err != nil {
		return &NotifyError{Channel: config.ChannelMailgun, Err: err}
	}
	m.logger.Info("digest mailed", "to", m.to, "id", id, "response", resp)
	return nil
}
