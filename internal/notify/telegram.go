package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/igorkanara777-eng/offline-pos-desktop/internal/domain"
)

const defaultBaseURL = "https://api.telegram.org"

// ConfigReader is the slice of the repository the notifier needs: bot token
// and chat id live in the config table so the operator can change them from
// the settings screen without a restart.
type ConfigReader interface {
	GetConfig(ctx context.Context, key string) (string, bool, error)
}

type Telegram struct {
	config  ConfigReader
	client  *http.Client
	baseURL string
}

func NewTelegram(config ConfigReader, timeout time.Duration) *Telegram {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Telegram{
		config:  config,
		client:  &http.Client{Timeout: timeout},
		baseURL: defaultBaseURL,
	}
}

// NewTelegramWithBaseURL exists for tests that point the notifier at a local
// HTTP server.
func NewTelegramWithBaseURL(config ConfigReader, timeout time.Duration, baseURL string) *Telegram {
	t := NewTelegram(config, timeout)
	t.baseURL = baseURL
	return t
}

type sendMessageRequest struct {
	ChatID    string `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode"`
}

func (t *Telegram) Send(ctx context.Context, text string) error {
	token, ok, err := t.config.GetConfig(ctx, domain.ConfigKeyTelegramToken)
	if err != nil {
		return fmt.Errorf("read telegram token: %w", err)
	}
	if !ok || token == "" {
		return ErrNotConfigured
	}
	chatID, ok, err := t.config.GetConfig(ctx, domain.ConfigKeyTelegramChatID)
	if err != nil {
		return fmt.Errorf("read telegram chat id: %w", err)
	}
	if !ok || chatID == "" {
		return ErrNotConfigured
	}

	payload, err := json.Marshal(sendMessageRequest{
		ChatID:    chatID,
		Text:      text,
		ParseMode: "HTML",
	})
	if err != nil {
		return err
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", t.baseURL, token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("telegram API returned status %d", resp.StatusCode)
	}
	return nil
}
