package external

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketingapi/internal/types"
)

func TestSendGridClient_Send(t *testing.T) {
	var got sendGridMailPayload
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v3/mail/send", r.URL.Path)
		assert.Equal(t, "Bearer SG.key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("X-Message-Id", "msg-1")
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	client := NewSendGridClient(&http.Client{Timeout: 5 * time.Second}, SendGridConfig{
		APIKey:      "SG.key",
		BaseURL:     server.URL,
		FromAddress: "hello@example.com",
		FromName:    "Carolina Growth",
	}, WithSleepFunc(noopSleep))

	id, err := client.Send(context.Background(), types.EmailMessage{
		To:       "ana@example.com",
		ReplyTo:  "ops@example.com",
		Subject:  "Payment received",
		TextBody: "Thanks",
		HTMLBody: "<p>Thanks</p>",
	})
	require.NoError(t, err)
	assert.Equal(t, "msg-1", id)

	assert.Equal(t, "ana@example.com", got.Personalizations[0].To[0].Email)
	assert.Equal(t, "hello@example.com", got.From.Email)
	assert.Equal(t, "Carolina Growth", got.From.Name)
	assert.Equal(t, "Payment received", got.Subject)
	require.NotNil(t, got.ReplyTo)
	assert.Equal(t, "ops@example.com", got.ReplyTo.Email)
	require.Len(t, got.Content, 2)
	assert.Equal(t, "text/plain", got.Content[0].Type)
	assert.Equal(t, "text/html", got.Content[1].Type)
}

func TestSendGridClient_TextOnly(t *testing.T) {
	var got sendGridMailPayload
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	client := NewSendGridClient(nil, SendGridConfig{APIKey: "k", BaseURL: server.URL}, WithSleepFunc(noopSleep))
	_, err := client.Send(context.Background(), types.EmailMessage{To: "a@example.com", Subject: "s", TextBody: "t"})
	require.NoError(t, err)
	assert.Len(t, got.Content, 1)
	assert.Nil(t, got.ReplyTo)
}

func TestSendGridClient_Rejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"errors":[{"message":"The from address does not match a verified Sender Identity"}]}`))
	}))
	defer server.Close()

	client := NewSendGridClient(nil, SendGridConfig{APIKey: "k", BaseURL: server.URL}, WithSleepFunc(noopSleep))
	_, err := client.Send(context.Background(), types.EmailMessage{To: "a@example.com"})

	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodeUpstreamEmail, appErr.Code)
	assert.Contains(t, appErr.Message, "verified Sender Identity")
}
