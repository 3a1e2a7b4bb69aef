// Package provisioner реализует клиент внешнего API создания рабочих
// пространств. Вызовы best-effort: локальное состояние первично, внешняя
// система доводится до него позже. Неуспех вызова логируется и повторяется
// с задержкой, но никогда не откатывает локальный переход и не блокирует
// пользовательскую операцию.
package provisioner

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/magabrotheeeer/access-gatekeeper/internal/config"
	"github.com/magabrotheeeer/access-gatekeeper/internal/lib/sl"
	"github.com/magabrotheeeer/access-gatekeeper/internal/models"
)

// Client — HTTP-клиент внешнего API рабочих пространств.
type Client struct {
	apiURL     string
	apiUser    string
	apiKey     string
	maxRetries int
	retryDelay time.Duration
	httpClient *http.Client
	log        *slog.Logger
}

// NewClient создаёт клиент по настройкам из конфига.
func NewClient(cfg config.Provisioner, log *slog.Logger) *Client {
	return &Client{
		apiURL:     cfg.BaseURL,
		apiUser:    cfg.APIUser,
		apiKey:     cfg.APIKey,
		maxRetries: cfg.MaxRetries,
		retryDelay: cfg.RetryDelay,
		httpClient: &http.Client{Timeout: cfg.RequestTimeout},
		log:        log,
	}
}

type provisionRequest struct {
	AccountUID string `json:"account_uid"`
	Email      string `json:"email"`
}

// Activate создаёт или активирует внешний аккаунт рабочего пространства.
func (c *Client) Activate(ctx context.Context, accountUID, email string) error {
	return c.call(ctx, "POST", "/users", provisionRequest{AccountUID: accountUID, Email: email})
}

// Deactivate отключает внешний аккаунт.
func (c *Client) Deactivate(ctx context.Context, accountUID string) error {
	return c.call(ctx, "POST", "/users/"+accountUID+"/deactivate", nil)
}

// Delete удаляет внешний аккаунт.
func (c *Client) Delete(ctx context.Context, accountUID string) error {
	return c.call(ctx, "DELETE", "/users/"+accountUID, nil)
}

func (c *Client) newRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	url := c.apiURL + path
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return nil, err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return nil, err
	}
	auth := base64.StdEncoding.EncodeToString([]byte(c.apiUser + ":" + c.apiKey))
	req.Header.Set("Authorization", "Basic "+auth)
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

// call выполняет запрос с ограниченным числом повторов. Возвращает
// models.ErrProvisioningFailed после исчерпания попыток; вызывающий код
// логирует и продолжает.
func (c *Client) call(ctx context.Context, method, path string, body any) error {
	const op = "provisioner.call"

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return fmt.Errorf("%s: %w", op, ctx.Err())
			case <-time.After(c.retryDelay * time.Duration(attempt)):
			}
		}

		req, err := c.newRequest(ctx, method, path, body)
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			c.log.Warn("provisioner request failed",
				slog.String("path", path), slog.Int("attempt", attempt+1), sl.Err(err))
			continue
		}
		_ = resp.Body.Close()

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return nil
		}
		lastErr = fmt.Errorf("unexpected status: %s", resp.Status)
		c.log.Warn("provisioner returned non-2xx",
			slog.String("path", path), slog.String("status", resp.Status), slog.Int("attempt", attempt+1))
	}

	return fmt.Errorf("%s: %w: %w", op, models.ErrProvisioningFailed, lastErr)
}
