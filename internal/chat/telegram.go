// Package chat receives messages from Telegram and feeds their text to the
// evaluation pipeline.
package chat

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/alanyoungcy/solbot/internal/domain"
	"github.com/alanyoungcy/solbot/internal/platform/rest"
)

// DefaultAPIBase is the Bot API root.
const DefaultAPIBase = "https://api.telegram.org"

// DefaultPollTimeout is the long-poll wait passed to getUpdates.
const DefaultPollTimeout = 30 * time.Second

// TextHandler consumes message text. *pipeline.Pipeline implements it.
type TextHandler interface {
	HandleText(ctx context.Context, text string) int
}

// Config configures a Poller.
type Config struct {
	APIBase      string
	Token        string
	AllowedChats []int64
	PollTimeout  time.Duration
}

type update struct {
	UpdateID int64    `json:"update_id"`
	Message  *message `json:"message"`
	Channel  *message `json:"channel_post"`
}

type message struct {
	MessageID int64  `json:"message_id"`
	Text      string `json:"text"`
	Caption   string `json:"caption"`
	Chat      struct {
		ID   int64  `json:"id"`
		Type string `json:"type"`
	} `json:"chat"`
}

type updatesResponse struct {
	OK          bool     `json:"ok"`
	Description string   `json:"description"`
	Result      []update `json:"result"`
}

// Poller long-polls getUpdates and forwards the text of every message from
// an allowed chat. An empty allow-list accepts every chat.
type Poller struct {
	apiBase string
	token   string
	allowed map[int64]bool
	wait    time.Duration
	handler TextHandler
	client  *http.Client
	logger  *slog.Logger

	offset int64
}

// NewPoller creates a Poller.
func NewPoller(cfg Config, handler TextHandler, logger *slog.Logger) *Poller {
	apiBase := cfg.APIBase
	if apiBase == "" {
		apiBase = DefaultAPIBase
	}
	wait := cfg.PollTimeout
	if wait <= 0 {
		wait = DefaultPollTimeout
	}
	allowed := make(map[int64]bool, len(cfg.AllowedChats))
	for _, id := range cfg.AllowedChats {
		allowed[id] = true
	}
	return &Poller{
		apiBase: strings.TrimRight(apiBase, "/"),
		token:   cfg.Token,
		allowed: allowed,
		wait:    wait,
		handler: handler,
		// The server holds the request for up to wait.
		client: rest.NewHTTPClient(wait + 10*time.Second),
		logger: logger.With(slog.String("component", "telegram_chat")),
	}
}

// Run polls until ctx is cancelled. Poll failures back off from one second
// up to thirty.
func (p *Poller) Run(ctx context.Context) error {
	p.logger.Info("telegram poller starting", slog.Int("allowed_chats", len(p.allowed)))

	backoff := time.Second
	const maxBackoff = 30 * time.Second
	for {
		if ctx.Err() != nil {
			return nil
		}
		if _, err := p.Poll(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			p.logger.Warn("getUpdates failed",
				slog.String("error", err.Error()),
				slog.Duration("retry_in", backoff),
			)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(backoff):
			}
			backoff = min(backoff*2, maxBackoff)
			continue
		}
		backoff = time.Second
	}
}

// Poll fetches one batch of updates, dispatches them and advances the
// offset. It returns the number of messages handed to the handler.
func (p *Poller) Poll(ctx context.Context) (int, error) {
	q := url.Values{}
	q.Set("timeout", strconv.Itoa(int(p.wait/time.Second)))
	q.Set("allowed_updates", `["message","channel_post"]`)
	if p.offset > 0 {
		q.Set("offset", strconv.FormatInt(p.offset, 10))
	}
	endpoint := fmt.Sprintf("%s/bot%s/getUpdates?%s", p.apiBase, p.token, q.Encode())

	var resp updatesResponse
	if err := rest.GetJSON(ctx, p.client, endpoint, nil, &resp); err != nil {
		return 0, fmt.Errorf("chat: get updates: %w", err)
	}
	if !resp.OK {
		return 0, fmt.Errorf("chat: get updates: %w: %s", domain.ErrUnexpectedResponse, resp.Description)
	}

	handled := 0
	for _, u := range resp.Result {
		if u.UpdateID >= p.offset {
			p.offset = u.UpdateID + 1
		}
		if p.dispatch(ctx, u) {
			handled++
		}
	}
	return handled, nil
}

func (p *Poller) dispatch(ctx context.Context, u update) bool {
	msg := u.Message
	if msg == nil {
		msg = u.Channel
	}
	if msg == nil {
		return false
	}

	text := msg.Text
	if text == "" {
		text = msg.Caption
	}
	if strings.TrimSpace(text) == "" {
		return false
	}

	if len(p.allowed) > 0 && !p.allowed[msg.Chat.ID] {
		p.logger.Debug("message from chat not in allow-list", slog.Int64("chat_id", msg.Chat.ID))
		return false
	}

	n := p.handler.HandleText(ctx, text)
	p.logger.Debug("message handled",
		slog.Int64("chat_id", msg.Chat.ID),
		slog.Int64("message_id", msg.MessageID),
		slog.Int("tasks", n),
	)
	return true
}
