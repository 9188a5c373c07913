package telnyx

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, server *httptest.Server, retries int) *Client {
	t.Helper()
	client, err := New(Config{
		APIKey:     "test-key",
		BaseURL:    server.URL,
		MaxRetries: retries,
		Backoff:    time.Millisecond,
		HTTPClient: server.Client(),
	})
	require.NoError(t, err)
	return client
}

func TestSendMessage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/messages", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "+15552223333", body["to"])
		assert.Equal(t, "Reminder: tomorrow at 10", body["text"])

		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte(`{"data":{"id":"msg_123","parts":1}}`))
	}))
	defer server.Close()

	resp, err := newTestClient(t, server, 0).SendMessage(context.Background(), SendMessageRequest{
		From: "+15553334444",
		To:   "+15552223333",
		Body: "Reminder: tomorrow at 10",
	})
	require.NoError(t, err)
	assert.Equal(t, "msg_123", resp.ID)
}

func TestSendMessage_Validation(t *testing.T) {
	client, err := New(Config{APIKey: "k"})
	require.NoError(t, err)

	_, err = client.SendMessage(context.Background(), SendMessageRequest{To: "+1", Body: "x"})
	assert.Error(t, err)
	_, err = client.SendMessage(context.Background(), SendMessageRequest{From: "+1", To: "+2"})
	assert.Error(t, err)
}

func TestDial(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/calls", r.URL.Path)
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "conn-1", body["connection_id"])
		state, err := base64.StdEncoding.DecodeString(body["client_state"].(string))
		require.NoError(t, err)
		assert.Equal(t, "appointment_reminder:abc", string(state))

		_, _ = w.Write([]byte(`{"data":{"call_control_id":"v3:ctrl","call_leg_id":"leg","is_alive":true}}`))
	}))
	defer server.Close()

	resp, err := newTestClient(t, server, 0).Dial(context.Background(), DialRequest{
		ConnectionID: "conn-1",
		From:         "+15553334444",
		To:           "+15552223333",
		ClientState:  "appointment_reminder:abc",
	})
	require.NoError(t, err)
	assert.Equal(t, "v3:ctrl", resp.CallControlID)
	assert.True(t, resp.IsAlive)

	_, err = newTestClient(t, server, 0).Dial(context.Background(), DialRequest{From: "+1", To: "+2"})
	assert.Error(t, err)
}

func TestRetriesOnServerError(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"data":{"id":"msg_ok"}}`))
	}))
	defer server.Close()

	resp, err := newTestClient(t, server, 2).SendMessage(context.Background(), SendMessageRequest{
		From: "+1", To: "+2", Body: "hi",
	})
	require.NoError(t, err)
	assert.Equal(t, "msg_ok", resp.ID)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestClientErrorIsNotRetried(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"errors":[{"title":"Invalid destination","detail":"not a mobile number"}]}`))
	}))
	defer server.Close()

	_, err := newTestClient(t, server, 3).SendMessage(context.Background(), SendMessageRequest{
		From: "+1", To: "+2", Body: "hi",
	})
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnprocessableEntity, apiErr.StatusCode)
	assert.Equal(t, "Invalid destination", apiErr.Title)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestNewDefaults(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)

	client, err := New(Config{APIKey: "key", BaseURL: "https://example.com/v2/"})
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/v2", client.baseURL)
	assert.Equal(t, 10*time.Second, client.httpClient.Timeout)
	assert.Equal(t, 0, client.maxRetries)
}
