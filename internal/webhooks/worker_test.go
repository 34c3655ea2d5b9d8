package webhooks

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fleetdetention/internal/model"
)

func fastWorker(url, secret string, attempts int) *Worker {
	return NewWorker(nil, WorkerConfig{
		URL:             url,
		Secret:          secret,
		MaxAttempts:     attempts,
		InitialInterval: time.Millisecond,
		MaxInterval:     2 * time.Millisecond,
	}, zerolog.Nop())
}

func TestWorkerProcessOnce_SuccessAndSignature(t *testing.T) {
	var gotSig, gotType string
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSig = r.Header.Get(SignatureHeader)
		gotType = r.Header.Get("X-Event-Type")
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	w := fastWorker(srv.URL, "secret", 3)
	w.HTTP = srv.Client()
	err := w.processOnce(context.Background(), Delivery{ID: "evt1", EventType: EventAlertCreated, Payload: []byte(`{"id":"evt1"}`)})
	require.NoError(t, err)

	assert.Equal(t, EventAlertCreated, gotType)
	assert.True(t, VerifyHMAC("secret", gotBody, gotSig), "signature %q", gotSig)
	assert.False(t, VerifyHMAC("other", gotBody, gotSig))
}

func TestWorkerProcessOnce_RetriesUntilMaxAttempts(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	w := fastWorker(srv.URL, "", 3)
	err := w.processOnce(context.Background(), Delivery{ID: "e", EventType: EventAlertCreated, Payload: []byte(`{}`)})
	require.Error(t, err)
	assert.Equal(t, int32(3), calls.Load())
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusBadGateway, se.StatusCode)
}

func TestWorkerProcessOnce_RecoversAfterTransientFailure(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	w := fastWorker(srv.URL, "", 5)
	require.NoError(t, w.processOnce(context.Background(), Delivery{ID: "e", Payload: []byte(`{}`)}))
	assert.Equal(t, int32(2), calls.Load())
}

func TestWorkerProcessOnce_ClientErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	w := fastWorker(srv.URL, "", 5)
	require.Error(t, w.processOnce(context.Background(), Delivery{ID: "e", Payload: []byte(`{}`)}))
	assert.Equal(t, int32(1), calls.Load())
}

func TestWorkerBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	w := fastWorker(srv.URL, "", 5)
	_ = w.processOnce(context.Background(), Delivery{ID: "a", Payload: []byte(`{}`)})
	require.Equal(t, int32(5), calls.Load())

	err := w.processOnce(context.Background(), Delivery{ID: "b", Payload: []byte(`{}`)})
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, int32(5), calls.Load())
}

func TestPublisherToWorkerEndToEnd(t *testing.T) {
	var mu sync.Mutex
	var got []map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		mu.Lock()
		got = append(got, body)
		mu.Unlock()
	}))
	defer srv.Close()

	pub := NewPublisher(4, zerolog.Nop())
	w := NewWorker(pub.Queue(), WorkerConfig{URL: srv.URL, MaxAttempts: 1}, zerolog.Nop())
	w.Start()
	defer w.Stop()

	pub.OnAlertCreated(model.Alert{ID: "a1", DriverID: "d1", Type: model.AlertCritical, Message: "Ana entered detention"})

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 1
	}, 2*time.Second, 10*time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, EventAlertCreated, got[0]["type"])
	data := got[0]["data"].(map[string]any)
	assert.Equal(t, "a1", data["id"])
}

func TestPublisherDropsWhenFull(t *testing.T) {
	pub := NewPublisher(1, zerolog.Nop())
	pub.OnAlertCreated(model.Alert{ID: "a"})
	pub.OnAlertCreated(model.Alert{ID: "b"})
	assert.Len(t, pub.Queue(), 1)
}

func TestVerifyHMACRejectsGarbage(t *testing.T) {
	assert.False(t, VerifyHMAC("s", []byte("x"), "sha256=zz"))
	assert.True(t, VerifyHMAC("s", []byte("x"), SignHMAC("s", []byte("x"))[len("sha256="):]))
}
