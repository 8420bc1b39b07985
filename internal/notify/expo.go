package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"go.uber.org/zap"
)

const expoPushURL = "https://exp.host/--/api/v2/push/send"

// Expo recommends batching at most 100 notifications per request.
const expoChunkSize = 100

// TokenSource resolves the push tokens subscribed to a city. An empty city
// resolves to every enabled token.
type TokenSource interface {
	TokensForCity(city string) []string
}

// ExpoBackend delivers token-addressed push notifications through the Expo
// push service.
type ExpoBackend struct {
	client *http.Client
	url    string
	tokens TokenSource
	logger *zap.Logger
}

func NewExpoBackend(client *http.Client, tokens TokenSource, logger *zap.Logger) *ExpoBackend {
	return &ExpoBackend{
		client: client,
		url:    expoPushURL,
		tokens: tokens,
		logger: logger,
	}
}

func (e *ExpoBackend) Name() string { return "expo" }

type expoPushMessage struct {
	To        string `json:"to"`
	Title     string `json:"title,omitempty"`
	Body      string `json:"body"`
	Priority  string `json:"priority,omitempty"`
	Sound     string `json:"sound,omitempty"`
	ChannelID string `json:"channelId,omitempty"`
	TTL       int    `json:"ttl,omitempty"`
}

type expoPushTicket struct {
	Status  string `json:"status"`
	ID      string `json:"id,omitempty"`
	Message string `json:"message,omitempty"`
}

type expoPushResponse struct {
	Data []expoPushTicket `json:"data"`
}

// Send resolves recipients for the message's city and pushes to all of them.
// It fails only when every recipient failed; zero subscribed recipients is
// not a failure.
func (e *ExpoBackend) Send(ctx context.Context, msg *Message) error {
	tokens := e.tokens.TokensForCity(msg.City)
	if len(tokens) == 0 {
		e.logger.Debug("No devices subscribed, skipping expo push",
			zap.String("city", msg.City))
		return nil
	}

	results := e.SendToTokens(ctx, tokens, msg)

	var firstErr error
	success := 0
	for _, err := range results {
		if err == nil {
			success++
		} else if firstErr == nil {
			firstErr = err
		}
	}

	e.logger.Info("Expo push complete",
		zap.String("city", msg.City),
		zap.Int("total", len(tokens)),
		zap.Int("success", success))

	if success == 0 {
		return fmt.Errorf("expo push failed for all %d recipients: %w", len(tokens), firstErr)
	}
	return nil
}

// SendToToken pushes to a single device token.
func (e *ExpoBackend) SendToToken(ctx context.Context, token string, msg *Message) error {
	results := e.SendToTokens(ctx, []string{token}, msg)
	return results[0]
}

// SendToTokens pushes to many tokens in chunks of 100, returning one outcome
// per recipient. A network-level failure for a chunk is reported for every
// recipient in that chunk.
func (e *ExpoBackend) SendToTokens(ctx context.Context, tokens []string, msg *Message) []error {
	results := make([]error, 0, len(tokens))

	for start := 0; start < len(tokens); start += expoChunkSize {
		end := start + expoChunkSize
		if end > len(tokens) {
			end = len(tokens)
		}
		chunk := tokens[start:end]

		tickets, err := e.sendChunk(ctx, chunk, msg)
		if err != nil {
			for range chunk {
				results = append(results, err)
			}
			continue
		}

		for i := range chunk {
			if i >= len(tickets) {
				results = append(results, fmt.Errorf("expo returned no ticket for recipient"))
				continue
			}
			if tickets[i].Status == "ok" {
				results = append(results, nil)
			} else {
				errMsg := tickets[i].Message
				if errMsg == "" {
					errMsg = "unknown error"
				}
				results = append(results, fmt.Errorf("expo ticket error: %s", errMsg))
			}
		}
	}

	return results
}

func (e *ExpoBackend) sendChunk(ctx context.Context, tokens []string, msg *Message) ([]expoPushTicket, error) {
	messages := make([]expoPushMessage, 0, len(tokens))
	for _, token := range tokens {
		messages = append(messages, expoPushMessage{
			To:        token,
			Title:     msg.Title,
			Body:      msg.Body,
			Priority:  msg.Priority.ExpoPriority(),
			Sound:     "default",
			ChannelID: "weather",
			TTL:       3600,
		})
	}

	payload, err := json.Marshal(messages)
	if err != nil {
		return nil, fmt.Errorf("encoding expo payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("creating expo request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("expo request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("expo API returned %d: %s", resp.StatusCode, string(body))
	}

	var pushResp expoPushResponse
	if err := json.NewDecoder(resp.Body).Decode(&pushResp); err != nil {
		return nil, fmt.Errorf("parsing expo response: %w", err)
	}

	return pushResp.Data, nil
}
