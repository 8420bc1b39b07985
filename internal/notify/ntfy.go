package notify

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// NtfyAuth configures authentication for an ntfy server. Token takes
// precedence over basic credentials when both are set.
type NtfyAuth struct {
	Token    string
	Username string
	Password string
}

// NtfyBackend publishes notifications to a topic on an ntfy server.
// https://docs.ntfy.sh/publish/
type NtfyBackend struct {
	client *http.Client
	url    string
	topic  string
	auth   *NtfyAuth
	logger *zap.Logger
}

func NewNtfyBackend(client *http.Client, url, topic string, auth *NtfyAuth, logger *zap.Logger) *NtfyBackend {
	return &NtfyBackend{
		client: client,
		url:    strings.TrimRight(url, "/"),
		topic:  topic,
		auth:   auth,
		logger: logger,
	}
}

func (n *NtfyBackend) Name() string { return "ntfy" }

func (n *NtfyBackend) Send(ctx context.Context, msg *Message) error {
	url := fmt.Sprintf("%s/%s", n.url, n.topic)

	n.logger.Debug("Sending ntfy notification",
		zap.String("url", url),
		zap.String("title", msg.Title))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader(msg.Body))
	if err != nil {
		return fmt.Errorf("creating ntfy request: %w", err)
	}

	req.Header.Set("Title", msg.Title)
	req.Header.Set("Priority", strconv.Itoa(msg.Priority.NtfyPriority()))
	if len(msg.Tags) > 0 {
		req.Header.Set("Tags", strings.Join(msg.Tags, ","))
	}

	if n.auth != nil {
		if n.auth.Token != "" {
			req.Header.Set("Authorization", "Bearer "+n.auth.Token)
		} else if n.auth.Username != "" {
			credentials := base64.StdEncoding.EncodeToString(
				[]byte(n.auth.Username + ":" + n.auth.Password))
			req.Header.Set("Authorization", "Basic "+credentials)
		}
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("ntfy request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, string(body))
	}

	return nil
}
