package secrets

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"optexity/internal/application/port/output"
	"optexity/internal/infrastructure/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_FetchEmailCode(t *testing.T) {
	start := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	var got fetchRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v1/fetch_email_two_fa", r.URL.Path)
		assert.Equal(t, "secret", r.Header.Get("x-api-key"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"message_id":"m1","message_text":"Your code is 424242","otp":"424242"}`))
	}))
	defer srv.Close()

	c := New(DefaultConfig(srv.URL, "secret"), logger.NewNop())
	code, err := c.FetchTwoFactorCode(context.Background(), output.TwoFactorRequest{
		Channel:       output.TwoFactorEmail,
		IntegrationID: "int-1",
		EmailAddress:  "me@example.com",
		Start:         start,
		End:           start.Add(5 * time.Minute),
	})

	require.NoError(t, err)
	assert.Equal(t, "424242", code.Code)
	assert.Equal(t, "m1", code.MessageID)
	assert.Equal(t, "int-1", got.IntegrationID)
	assert.Equal(t, "me@example.com", got.EmailAddress)
	assert.True(t, got.Start.Equal(start))
	assert.True(t, got.End.Equal(start.Add(5*time.Minute)))
}

func TestClient_SlackEndpointAndBasePath(t *testing.T) {
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		_, _ = w.Write([]byte(`{"message_id":"m","message_text":"t","otp":"1"}`))
	}))
	defer srv.Close()

	c := New(DefaultConfig(srv.URL+"/secrets", "k"), logger.NewNop())
	_, err := c.FetchTwoFactorCode(context.Background(), output.TwoFactorRequest{
		Channel: output.TwoFactorSlack, IntegrationID: "i", ChannelID: "C1",
	})

	require.NoError(t, err)
	assert.Equal(t, "/secrets/api/v1/fetch_slack_two_fa", path)
}

func TestClient_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "no message yet", http.StatusNotFound)
	}))
	defer srv.Close()

	c := New(DefaultConfig(srv.URL, "k"), logger.NewNop())
	_, err := c.FetchTwoFactorCode(context.Background(), output.TwoFactorRequest{Channel: output.TwoFactorEmail})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 404")
	assert.Contains(t, err.Error(), "no message yet")
}
