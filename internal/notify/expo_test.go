package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type staticTokens []string

func (s staticTokens) TokensForCity(string) []string { return s }

func newTestExpo(t *testing.T, tokens TokenSource) *ExpoBackend {
	t.Helper()
	httpmock.Activate()
	t.Cleanup(httpmock.DeactivateAndReset)
	return NewExpoBackend(&http.Client{}, tokens, zap.NewNop())
}

func okTickets(n int) string {
	tickets := make([]expoPushTicket, n)
	for i := range tickets {
		tickets[i] = expoPushTicket{Status: "ok", ID: fmt.Sprintf("ticket-%d", i)}
	}
	body, _ := json.Marshal(expoPushResponse{Data: tickets})
	return string(body)
}

func TestExpoSendChunksRecipients(t *testing.T) {
	tokens := make([]string, 250)
	for i := range tokens {
		tokens[i] = fmt.Sprintf("ExponentPushToken[%d]", i)
	}
	e := newTestExpo(t, staticTokens(tokens))

	var batchSizes []int
	httpmock.RegisterResponder(http.MethodPost, expoPushURL,
		func(req *http.Request) (*http.Response, error) {
			var messages []expoPushMessage
			if err := json.NewDecoder(req.Body).Decode(&messages); err != nil {
				return httpmock.NewStringResponse(400, "bad payload"), nil
			}
			batchSizes = append(batchSizes, len(messages))
			return httpmock.NewStringResponse(200, okTickets(len(messages))), nil
		})

	results := e.SendToTokens(context.Background(), tokens, testMessage())

	require.Len(t, results, 250)
	for _, err := range results {
		assert.NoError(t, err)
	}
	assert.Equal(t, []int{100, 100, 50}, batchSizes)
}

func TestExpoChunkFailureCountsPerRecipient(t *testing.T) {
	tokens := make([]string, 150)
	for i := range tokens {
		tokens[i] = fmt.Sprintf("ExponentPushToken[%d]", i)
	}
	e := newTestExpo(t, staticTokens(tokens))

	call := 0
	httpmock.RegisterResponder(http.MethodPost, expoPushURL,
		func(req *http.Request) (*http.Response, error) {
			call++
			if call == 1 {
				return httpmock.NewStringResponse(502, "bad gateway"), nil
			}
			var messages []expoPushMessage
			_ = json.NewDecoder(req.Body).Decode(&messages)
			return httpmock.NewStringResponse(200, okTickets(len(messages))), nil
		})

	results := e.SendToTokens(context.Background(), tokens, testMessage())

	require.Len(t, results, 150)
	failed := 0
	for _, err := range results {
		if err != nil {
			failed++
		}
	}
	// The whole first chunk fails; the second chunk still goes through.
	assert.Equal(t, 100, failed)
}

func TestExpoSendMixedTickets(t *testing.T) {
	e := newTestExpo(t, staticTokens{"good-token", "dead-token"})

	body, _ := json.Marshal(expoPushResponse{Data: []expoPushTicket{
		{Status: "ok", ID: "ticket-1"},
		{Status: "error", Message: "DeviceNotRegistered"},
	}})
	httpmock.RegisterResponder(http.MethodPost, expoPushURL,
		httpmock.NewStringResponder(200, string(body)))

	// One ticket succeeded, so the backend-level send succeeds.
	err := e.Send(context.Background(), testMessage())
	assert.NoError(t, err)
}

func TestExpoSendAllTicketsFail(t *testing.T) {
	e := newTestExpo(t, staticTokens{"dead-token"})

	body, _ := json.Marshal(expoPushResponse{Data: []expoPushTicket{
		{Status: "error", Message: "DeviceNotRegistered"},
	}})
	httpmock.RegisterResponder(http.MethodPost, expoPushURL,
		httpmock.NewStringResponder(200, string(body)))

	err := e.Send(context.Background(), testMessage())
	assert.Error(t, err)
}

func TestExpoSendNoRecipients(t *testing.T) {
	e := newTestExpo(t, staticTokens{})

	err := e.Send(context.Background(), testMessage())
	assert.NoError(t, err)
	assert.Equal(t, 0, httpmock.GetTotalCallCount())
}
