package notify

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/yurifrl/meisai/pkg/config"
)

// DefaultLineEndpoint is the LINE Notify API.
const DefaultLineEndpoint = "https://notify-api.line.me/api/notify"

// Line posts the digest as a form "message" field with a bearer token.
type Line struct {
	token    string
	endpoint string
	client   *http.Client
}

func NewLine(token, endpoint string) (*Line, error) {
	if token == "" {
		return nil, &config.ConfigurationError{Field: "notify.line.token", Reason: "LINE_ACCESS_TOKEN is not set"}
	}
	if endpoint == "" {
		endpoint = DefaultLineEndpoint
	}
	return &Line{
		token:    token,
		endpoint: endpoint,
		client:   &http.Client{Timeout: 30 * time.Second},
	}, nil
}

// Notify sends one request. Any non-2xx answer is a *NotifyError; nothing
// is retried.
func (l *Line) Notify(ctx context.Context, message string) error {
	form := url.Values{"message": {message}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, l.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return &NotifyError{Channel: config.ChannelLine, Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+l.token)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := l.client.Do(req)
	if err != nil {
		return &NotifyError{Channel: config.ChannelLine, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// An empty or unreadable body falls back to the status text.
		msg := http.StatusText(resp.StatusCode)
		body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		if text := strings.TrimSpace(string(body)); err == nil && text != "" {
			msg = text
		}
		return &NotifyError{
			Channel: config.ChannelLine,
			Status:  resp.StatusCode,
			Err:     errors.New(msg),
		}
	}
	return nil
}
