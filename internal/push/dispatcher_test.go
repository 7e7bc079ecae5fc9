package push

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/Abir7109/neon-trace-backend/internal/errors"
)

type staticTokenSource struct {
	token string
	err   error
	calls atomic.Int64
}

func (s *staticTokenSource) Token(ctx context.Context) (string, error) {
	s.calls.Add(1)
	return s.token, s.err
}

func recipientList(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("token-%d", i)
	}
	return out
}

func TestBroadcast_Unconfigured(t *testing.T) {
	d := NewDispatcher(nil, "", "")

	_, err := d.Broadcast(context.Background(), recipientList(3), Notification{Title: "hi"})
	require.Error(t, err)

	var structured *apperrors.Error
	require.ErrorAs(t, err, &structured)
	assert.Equal(t, apperrors.TypeConfiguration, structured.Type)
	assert.Contains(t, err.Error(), "missing delivery credentials")
}

func TestBroadcastV1_FanOutCounts(t *testing.T) {
	var requests atomic.Int64
	var inFlight, maxInFlight atomic.Int64
	var mu sync.Mutex
	seenTokens := map[string]bool{}

	mockServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)

		cur := inFlight.Add(1)
		for {
			prev := maxInFlight.Load()
			if cur <= prev || maxInFlight.CompareAndSwap(prev, cur) {
				break
			}
		}
		defer inFlight.Add(-1)

		assert.Equal(t, "Bearer test-bearer", r.Header.Get("Authorization"))

		var body struct {
			Message struct {
				Token        string `json:"token"`
				Notification struct {
					Title string `json:"title"`
					Body  string `json:"body"`
				} `json:"notification"`
			} `json:"message"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "hello", body.Message.Notification.Title)

		mu.Lock()
		seenTokens[body.Message.Token] = true
		mu.Unlock()

		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"name":"projects/p/messages/1"}`))
	}))
	defer mockServer.Close()

	creds := &staticTokenSource{token: "test-bearer"}
	d := NewDispatcher(creds, "test-project", "")
	d.v1BaseURL = mockServer.URL

	result, err := d.Broadcast(context.Background(), recipientList(25), Notification{Title: "hello", Body: "world"})
	require.NoError(t, err)

	assert.Equal(t, 25, result.Sent)
	assert.Equal(t, 0, result.Failed)
	assert.Equal(t, 25, result.Total)
	assert.Equal(t, int64(25), requests.Load())
	assert.Len(t, seenTokens, 25, "every recipient token must be sent exactly once")
	assert.LessOrEqual(t, maxInFlight.Load(), int64(10), "at most 10 requests in flight")
	assert.Equal(t, int64(1), creds.calls.Load(), "bearer token fetched once per broadcast")
}

func TestBroadcastV1_PartialFailure(t *testing.T) {
	var requests atomic.Int64
	mockServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := requests.Add(1)
		// Every third request fails; the broadcast must not abort.
		if n%3 == 0 {
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"error":{"status":"NOT_FOUND"}}`))
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer mockServer.Close()

	d := NewDispatcher(&staticTokenSource{token: "b"}, "p", "")
	d.v1BaseURL = mockServer.URL

	result, err := d.Broadcast(context.Background(), recipientList(12), Notification{Title: "t"})
	require.NoError(t, err)

	assert.Equal(t, 12, result.Total)
	assert.Equal(t, 12, result.Sent+result.Failed)
	assert.Equal(t, 4, result.Failed)
}

func TestBroadcastV1_TokenErrorPropagates(t *testing.T) {
	creds := &staticTokenSource{err: apperrors.ProviderError("token exchange rejected", 401, "")}
	d := NewDispatcher(creds, "p", "")

	_, err := d.Broadcast(context.Background(), recipientList(5), Notification{Title: "t"})
	require.Error(t, err)

	var structured *apperrors.Error
	require.ErrorAs(t, err, &structured)
	assert.Equal(t, apperrors.TypeProvider, structured.Type)
}

func TestBroadcastLegacy_Batching(t *testing.T) {
	var batches atomic.Int64
	var batchSizes []int
	var mu sync.Mutex

	mockServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		batches.Add(1)

		assert.Equal(t, "key=server-key", r.Header.Get("Authorization"))

		var body struct {
			RegistrationIDs []string `json:"registration_ids"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))

		mu.Lock()
		batchSizes = append(batchSizes, len(body.RegistrationIDs))
		mu.Unlock()

		// One token per batch reported as failed by the provider.
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]int{
			"success": len(body.RegistrationIDs) - 1,
			"failure": 1,
		})
	}))
	defer mockServer.Close()

	d := NewDispatcher(nil, "", "server-key")
	d.legacyURL = mockServer.URL

	result, err := d.Broadcast(context.Background(), recipientList(1850), Notification{Title: "t"})
	require.NoError(t, err)

	assert.Equal(t, int64(3), batches.Load(), "ceil(1850/900) batches")
	assert.Equal(t, []int{900, 900, 50}, batchSizes)
	assert.Equal(t, 1850, result.Total)
	assert.Equal(t, 1847, result.Sent)
	assert.Equal(t, 3, result.Failed)
}

func TestBroadcastLegacy_BatchTransportFailure(t *testing.T) {
	var batches atomic.Int64
	mockServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if batches.Add(1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		var body struct {
			RegistrationIDs []string `json:"registration_ids"`
		}
		json.NewDecoder(r.Body).Decode(&body)
		json.NewEncoder(w).Encode(map[string]int{"success": len(body.RegistrationIDs), "failure": 0})
	}))
	defer mockServer.Close()

	d := NewDispatcher(nil, "", "k")
	d.legacyURL = mockServer.URL

	result, err := d.Broadcast(context.Background(), recipientList(1000), Notification{Title: "t"})
	require.NoError(t, err)

	// First batch of 900 fails wholesale; the second batch of 100 succeeds.
	assert.Equal(t, 900, result.Failed)
	assert.Equal(t, 100, result.Sent)
	assert.Equal(t, 1000, result.Total)
}

func TestBroadcast_ModernPreferredOverLegacy(t *testing.T) {
	var v1Requests atomic.Int64
	mockServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		v1Requests.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer mockServer.Close()

	// Both protocols configured: the modern one wins.
	d := NewDispatcher(&staticTokenSource{token: "b"}, "p", "legacy-key")
	d.v1BaseURL = mockServer.URL

	result, err := d.Broadcast(context.Background(), recipientList(2), Notification{Title: "t"})
	require.NoError(t, err)
	assert.Equal(t, 2, result.Sent)
	assert.Equal(t, int64(2), v1Requests.Load())
}

func TestBroadcastV1_EmptyRecipients(t *testing.T) {
	d := NewDispatcher(&staticTokenSource{token: "b"}, "p", "")

	result, err := d.Broadcast(context.Background(), nil, Notification{Title: "t"})
	require.NoError(t, err)
	assert.Equal(t, Result{Sent: 0, Failed: 0, Total: 0}, result)
}
