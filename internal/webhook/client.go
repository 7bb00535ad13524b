// Пакет webhook — HTTP-клиент доставки событий во внешние сервисы
// (уведомления, аналитика). Тело — JSON, успех — любой 2xx.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// Client — клиент одного webhook-адреса.
type Client struct {
	url        string
	httpClient *http.Client
	logger     *slog.Logger
}

// New создаёт клиента. Пустой url — клиент отключён, Post ничего не делает.
func New(url string, timeout time.Duration, logger *slog.Logger) *Client {
	return &Client{
		url: strings.TrimRight(url, "/"),
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: &http.Transport{MaxIdleConnsPerHost: 4},
		},
		logger: logger.With(slog.String("component", "webhook")),
	}
}

// Enabled сообщает, задан ли адрес.
func (c *Client) Enabled() bool {
	return c != nil && c.url != ""
}

// Post отправляет payload как JSON.
func (c *Client) Post(ctx context.Context, payload any) error {
	if !c.Enabled() {
		return nil
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("сериализация события: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("создание запроса webhook: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req) //nolint:gosec // URL из конфигурации
	if err != nil {
		return fmt.Errorf("запрос к webhook %s: %w", c.url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("webhook %s вернул статус %d: %s", c.url, resp.StatusCode, string(msg))
	}

	c.logger.Debug("Событие доставлено",
		slog.String("url", c.url),
		slog.Int("status", resp.StatusCode),
	)
	return nil
}
