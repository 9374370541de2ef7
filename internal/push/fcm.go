package push

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"selefli/internal/config"
	"selefli/internal/models"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

var ErrNotConfigured = errors.New("push gateway is not configured")

// Gateway error codes that mean the token will never work again.
var invalidTokenErrors = map[string]bool{
	"InvalidRegistration": true,
	"NotRegistered":       true,
}

// FCMClient talks to the legacy FCM HTTP endpoint.
type FCMClient struct {
	endpoint   string
	serverKey  string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *zerolog.Logger
}

func NewFCMClient(cfg config.PushConfig, logger *zerolog.Logger) *FCMClient {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	c := &FCMClient{
		endpoint:   cfg.Endpoint,
		serverKey:  cfg.ServerKey,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger,
	}
	if cfg.RPS > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RPS), max(1, int(cfg.RPS)))
	}
	return c
}

func (c *FCMClient) Configured() bool {
	return c.serverKey != "" && c.endpoint != ""
}

type fcmNotification struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	Sound string `json:"sound"`
	Badge string `json:"badge"`
}

type fcmRequest struct {
	To           string            `json:"to"`
	Priority     string            `json:"priority"`
	Notification fcmNotification   `json:"notification"`
	Data         map[string]string `json:"data"`
}

type fcmResponse struct {
	Success int `json:"success"`
	Failure int `json:"failure"`
	Results []struct {
		MessageID string `json:"message_id"`
		Error     string `json:"error"`
	} `json:"results"`
}

// Send delivers msg to one device and classifies the outcome.
func (c *FCMClient) Send(ctx context.Context, msg models.PushMessage) models.PushResult {
	if !c.Configured() {
		return models.PushResult{Outcome: models.PushFailed, Err: ErrNotConfigured}
	}
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return models.PushResult{Outcome: models.PushFailed, Err: err}
		}
	}

	data := msg.Data
	if data == nil {
		data = map[string]string{}
	}
	body, err := json.Marshal(fcmRequest{
		To:           msg.Token,
		Priority:     "high",
		Notification: fcmNotification{Title: msg.Title, Body: msg.Body, Sound: "default", Badge: "1"},
		Data:         data,
	})
	if err != nil {
		return models.PushResult{Outcome: models.PushFailed, Err: fmt.Errorf("encode message: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return models.PushResult{Outcome: models.PushFailed, Err: err}
	}
	req.Header.Set("Authorization", "key="+c.serverKey)
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return models.PushResult{Outcome: models.PushFailed, Err: fmt.Errorf("fcm request: %w", err)}
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode != http.StatusOK {
		return models.PushResult{
			Outcome: models.PushFailed,
			Err:     fmt.Errorf("fcm status %d: %s", resp.StatusCode, bytes.TrimSpace(raw)),
		}
	}

	var out fcmResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return models.PushResult{Outcome: models.PushFailed, Err: fmt.Errorf("decode fcm response: %w", err)}
	}
	if out.Success == 1 {
		c.logger.Debug().Str("token", tokenPrefix(msg.Token)).Dur("duration", time.Since(start)).Msg("push delivered")
		return models.PushResult{Outcome: models.PushDelivered}
	}

	code := "Unknown"
	if len(out.Results) > 0 && out.Results[0].Error != "" {
		code = out.Results[0].Error
	}
	if invalidTokenErrors[code] {
		return models.PushResult{Outcome: models.PushInvalidToken, Err: fmt.Errorf("fcm: %s", code)}
	}
	return models.PushResult{Outcome: models.PushFailed, Err: fmt.Errorf("fcm: %s", code)}
}

func tokenPrefix(token string) string {
	if len(token) > 20 {
		return token[:20] + "..."
	}
	return token
}
