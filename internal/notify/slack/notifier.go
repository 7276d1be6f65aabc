// Package slack posts cycle notifications to Slack using the Web API.
package slack

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/JakeFAU/dorank/internal/stats"
)

// DefaultAPIURL is Slack's Web API root.
const DefaultAPIURL = "https://slack.com/api"

// Config holds the bot credentials.
type Config struct {
	BotToken string
	APIURL   string
	Timeout  time.Duration
}

// Notifier implements stats.Notifier.
type Notifier struct {
	http *resty.Client
	// hooks posts to response URLs without the bot token.
	hooks  *resty.Client
	logger *zap.Logger
}

type postPayload struct {
	Channel      string  `json:"channel,omitempty"`
	User         string  `json:"user,omitempty"`
	ResponseType string  `json:"response_type,omitempty"`
	Text         string  `json:"text"`
	Blocks       []Block `json:"blocks"`
}

type apiResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
}

// New builds a Notifier.
func New(cfg Config, logger *zap.Logger) (*Notifier, error) {
	if strings.TrimSpace(cfg.BotToken) == "" {
		return nil, fmt.Errorf("slack bot token is required")
	}
	apiURL := cfg.APIURL
	if apiURL == "" {
		apiURL = DefaultAPIURL
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	client := resty.New().
		SetBaseURL(strings.TrimRight(apiURL, "/")).
		SetTimeout(timeout).
		SetAuthToken(cfg.BotToken).
		SetHeader("Content-Type", "application/json; charset=utf-8")
	hooks := resty.New().
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json; charset=utf-8")
	return &Notifier{http: client, hooks: hooks, logger: logger}, nil
}

// Notify renders msg and delivers it. Slash-command replies go to the
// response URL; private messages use chat.postEphemeral; everything else is
// posted to the channel.
func (n *Notifier) Notify(ctx context.Context, msg stats.Message) error {
	blocks, text := Render(msg)
	payload := postPayload{Text: text, Blocks: blocks}

	switch {
	case msg.ResponseURL != "":
		payload.ResponseType = "in_channel"
		if msg.Visibility == stats.VisibilityPrivate {
			payload.ResponseType = "ephemeral"
		}
		return n.respond(ctx, msg.ResponseURL, payload)
	case msg.Visibility == stats.VisibilityPrivate && msg.User != "":
		payload.Channel, payload.User = msg.Channel, msg.User
		return n.call(ctx, "/chat.postEphemeral", payload)
	default:
		if msg.Channel == "" {
			return fmt.Errorf("slack channel is required")
		}
		payload.Channel = msg.Channel
		return n.call(ctx, "/chat.postMessage", payload)
	}
}

func (n *Notifier) call(ctx context.Context, method string, payload postPayload) error {
	var out apiResponse
	resp, err := n.http.R().
		SetContext(ctx).
		SetBody(payload).
		SetResult(&out).
		ForceContentType("application/json").
		Post(method)
	if err != nil {
		return fmt.Errorf("slack %s: %w", method, err)
	}
	if resp.IsError() {
		return fmt.Errorf("slack %s: unexpected status %s", method, resp.Status())
	}
	if !out.OK {
		return fmt.Errorf("slack %s: %s", method, out.Error)
	}
	n.logger.Debug("slack message posted", zap.String("method", method), zap.String("channel", payload.Channel))
	return nil
}

// respond posts to a slash-command response URL, which answers with plain
// text rather than the Web API envelope.
func (n *Notifier) respond(ctx context.Context, responseURL string, payload postPayload) error {
	resp, err := n.hooks.R().
		SetContext(ctx).
		SetBody(payload).
		Post(responseURL)
	if err != nil {
		return fmt.Errorf("slack response url: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return fmt.Errorf("slack response url: unexpected status %s: %s", resp.Status(), strings.TrimSpace(resp.String()))
	}
	return nil
}
