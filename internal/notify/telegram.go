package notify

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// telegramMaxText is the Bot API limit for one message.
const telegramMaxText = 4096

// TelegramChannel sends messages to one chat through the Bot API.
type TelegramChannel struct {
	apiBase  string
	botToken string
	chatID   string
	client   *http.Client
}

// NewTelegramChannel creates a channel. An empty apiBase uses
// https://api.telegram.org.
func NewTelegramChannel(apiBase, botToken, chatID string, timeout time.Duration) *TelegramChannel {
	if apiBase == "" {
		apiBase = "https://api.telegram.org"
	}
	return &TelegramChannel{
		apiBase:  strings.TrimRight(apiBase, "/"),
		botToken: botToken,
		chatID:   chatID,
		client:   &http.Client{Timeout: clientTimeout(timeout)},
	}
}

func (t *TelegramChannel) Name() string { return "telegram" }

func (t *TelegramChannel) Send(ctx context.Context, text string) (int, error) {
	if t.botToken == "" || t.chatID == "" {
		return 0, fmt.Errorf("telegram channel misconfigured")
	}
	if r := []rune(text); len(r) > telegramMaxText {
		text = string(r[:telegramMaxText])
	}

	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", t.apiBase, t.botToken)
	form := url.Values{}
	form.Set("chat_id", t.chatID)
	form.Set("text", text)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return 0, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := t.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return resp.StatusCode, fmt.Errorf("telegram error: %s", resp.Status)
	}
	return resp.StatusCode, nil
}
