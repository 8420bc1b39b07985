package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"
)

// GotifyBackend delivers notifications to a Gotify server using an
// application token. https://gotify.net/docs/pushmsg
type GotifyBackend struct {
	client *http.Client
	url    string
	token  string
	logger *zap.Logger
}

func NewGotifyBackend(client *http.Client, url, token string, logger *zap.Logger) *GotifyBackend {
	return &GotifyBackend{
		client: client,
		url:    strings.TrimRight(url, "/"),
		token:  token,
		logger: logger,
	}
}

func (g *GotifyBackend) Name() string { return "gotify" }

type gotifyMessage struct {
	Title    string `json:"title"`
	Message  string `json:"message"`
	Priority int    `json:"priority"`
}

func (g *GotifyBackend) Send(ctx context.Context, msg *Message) error {
	url := fmt.Sprintf("%s/message?token=%s", g.url, g.token)

	g.logger.Debug("Sending gotify notification", zap.String("title", msg.Title))

	payload, err := json.Marshal(gotifyMessage{
		Title:    msg.Title,
		Message:  msg.Body,
		Priority: msg.Priority.GotifyPriority(),
	})
	if err != nil {
		return fmt.Errorf("encoding gotify payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("creating gotify request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("gotify request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("gotify returned %d: %s", resp.StatusCode, string(body))
	}

	return nil
}
