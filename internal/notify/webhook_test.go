package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rewired-gh/postureguard/internal/models"
)

func TestWebhookPostsAlert(t *testing.T) {
	var got models.AlertEvent
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	alert := models.AlertEvent{ID: "a-1", SessionID: "s-1", Pitch: -20, Duration: 3 * time.Second}
	w := NewWebhook(srv.URL, time.Second, 3, time.Millisecond)
	require.NoError(t, w.Notify(context.Background(), alert))
	assert.Equal(t, "a-1", got.ID)
	assert.Equal(t, -20.0, got.Pitch)
	assert.Equal(t, 3*time.Second, got.Duration)
}

func TestWebhookRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	w := NewWebhook(srv.URL, time.Second, 3, time.Millisecond)
	require.NoError(t, w.Notify(context.Background(), models.AlertEvent{ID: "a-1"}))
	assert.Equal(t, int32(3), calls.Load())
}

func TestWebhookGivesUp(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	w := NewWebhook(srv.URL, time.Second, 2, time.Millisecond)
	err := w.Notify(context.Background(), models.AlertEvent{ID: "a-1"})
	assert.ErrorContains(t, err, "status 500")
	assert.Equal(t, int32(2), calls.Load())
}

func TestWebhookDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	w := NewWebhook(srv.URL, time.Second, 3, time.Millisecond)
	err := w.Notify(context.Background(), models.AlertEvent{ID: "a-1"})
	assert.ErrorContains(t, err, "status 401")
	assert.Equal(t, int32(1), calls.Load())
}
