package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/example/ride-pooling/internal/models"
)

// Webhook POSTs a Notification to a push provider endpoint.
type Webhook struct {
	Endpoint string
	Token    string
	Client   *http.Client
}

func NewWebhook(endpoint, token string, timeout time.Duration) *Webhook {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &Webhook{Endpoint: endpoint, Token: token, Client: &http.Client{Timeout: timeout}}
}

func (w *Webhook) Notify(ctx context.Context, userID string, ev models.MatchEvent) error {
	b, err := json.Marshal(NewNotification(userID, ev))
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.Endpoint, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", ev.EventID+":"+userID)
	if w.Token != "" {
		req.Header.Set("Authorization", "Bearer "+w.Token)
	}
	resp, err := w.Client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook post: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("webhook status %d", resp.StatusCode)
	}
	return nil
}
