package push

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"selefli/internal/config"
	"selefli/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *FCMClient {
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewFCMClient(config.PushConfig{
		Enabled:   true,
		ServerKey: "server-key",
		Endpoint:  srv.URL,
		Timeout:   5 * time.Second,
	}, nil)
}

func TestSendDelivered(t *testing.T) {
	var got fcmRequest
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "key=server-key", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"success":1,"failure":0,"results":[{"message_id":"m-1"}]}`))
	})

	res := c.Send(context.Background(), models.PushMessage{
		Token: "tok-1", Title: "Booking Accepted!", Body: "Your request was accepted",
		Data: map[string]string{"booking_id": "b-1"},
	})
	assert.Equal(t, models.PushDelivered, res.Outcome)
	assert.NoError(t, res.Err)
	assert.Equal(t, "tok-1", got.To)
	assert.Equal(t, "high", got.Priority)
	assert.Equal(t, "Booking Accepted!", got.Notification.Title)
	assert.Equal(t, "b-1", got.Data["booking_id"])
}

func TestSendClassifiesFailures(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		outcome models.PushOutcome
	}{
		{name: "not registered", status: 200, body: `{"success":0,"failure":1,"results":[{"error":"NotRegistered"}]}`, outcome: models.PushInvalidToken},
		{name: "invalid registration", status: 200, body: `{"success":0,"failure":1,"results":[{"error":"InvalidRegistration"}]}`, outcome: models.PushInvalidToken},
		{name: "unavailable", status: 200, body: `{"success":0,"failure":1,"results":[{"error":"Unavailable"}]}`, outcome: models.PushFailed},
		{name: "server error", status: 503, body: `busy`, outcome: models.PushFailed},
		{name: "unauthorized", status: 401, body: ``, outcome: models.PushFailed},
		{name: "garbage", status: 200, body: `<html>`, outcome: models.PushFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})
			res := c.Send(context.Background(), models.PushMessage{Token: "tok"})
			assert.Equal(t, tt.outcome, res.Outcome)
			assert.Error(t, res.Err)
		})
	}
}

func TestSendNotConfigured(t *testing.T) {
	c := NewFCMClient(config.PushConfig{Endpoint: "http://localhost"}, nil)
	assert.False(t, c.Configured())
	res := c.Send(context.Background(), models.PushMessage{Token: "tok"})
	assert.Equal(t, models.PushFailed, res.Outcome)
	assert.ErrorIs(t, res.Err, ErrNotConfigured)
}

func TestTokenPrefix(t *testing.T) {
	assert.Equal(t, "short", tokenPrefix("short"))
	assert.Equal(t, "abcdefghijklmnopqrst...", tokenPrefix("abcdefghijklmnopqrstuvwxyz"))
}
