package dispatch

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zarathustra-ai/awsops-agent/core"
)

func fastDispatcher() *Dispatcher {
	return New(func(o *Options) {
		o.MaxAttempts = 3
		o.InitialDelay = time.Millisecond
		o.MaxDelay = 5 * time.Millisecond
	})
}

func TestDeliverSuccess(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	d := fastDispatcher()
	out := core.SuccessOutcome("msg-1", "bucket created")

	require.NoError(t, d.Deliver(context.Background(), out, srv.URL))

	assert.Equal(t, "msg-1", got["message_id"])
	assert.Equal(t, true, got["success"])
	assert.Equal(t, "bucket created", got["response"])
	_, hasErr := got["error"]
	assert.False(t, hasErr, "success payload must not carry an error field")
}

func TestDeliverFailurePayload(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &got))
	}))
	defer srv.Close()

	d := fastDispatcher()
	out := core.FailureOutcome("msg-2", core.KindIterationLimit, nil)

	require.NoError(t, d.Deliver(context.Background(), out, srv.URL))

	assert.Equal(t, false, got["success"])
	assert.Equal(t, string(core.KindIterationLimit), got["error"])
	_, hasResp := got["response"]
	assert.False(t, hasResp, "failure payload must not carry a response field")
}

func TestDeliverEmptyURLNoOp(t *testing.T) {
	d := fastDispatcher()
	assert.NoError(t, d.Deliver(context.Background(), core.SuccessOutcome("msg-3", "ok"), ""))
}

func TestDeliverRetriesThenSucceeds(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	d := fastDispatcher()
	require.NoError(t, d.Deliver(context.Background(), core.SuccessOutcome("msg-4", "ok"), srv.URL))
	assert.Equal(t, int32(3), hits.Load())
}

func TestDeliverExhaustsAttempts(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	d := fastDispatcher()
	err := d.Deliver(context.Background(), core.SuccessOutcome("msg-5", "ok"), srv.URL)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 3 attempts")
	assert.Equal(t, int32(3), hits.Load())
}

func TestDeliverDeduplicatesByMessageID(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer srv.Close()

	d := fastDispatcher()
	out := core.SuccessOutcome("msg-6", "ok")

	require.NoError(t, d.Deliver(context.Background(), out, srv.URL))
	require.NoError(t, d.Deliver(context.Background(), out, srv.URL))

	assert.Equal(t, int32(1), hits.Load(), "redelivery must not produce a second callback")
}

func TestDeliverDedupSetIsBounded(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer srv.Close()

	d := New(func(o *Options) {
		o.MaxAttempts = 1
		o.DedupLimit = 2
	})

	ctx := context.Background()
	require.NoError(t, d.Deliver(ctx, core.SuccessOutcome("b-1", "ok"), srv.URL))
	require.NoError(t, d.Deliver(ctx, core.SuccessOutcome("b-2", "ok"), srv.URL))

	// Within the window the duplicate is suppressed.
	require.NoError(t, d.Deliver(ctx, core.SuccessOutcome("b-1", "ok"), srv.URL))
	assert.Equal(t, int32(2), hits.Load())

	// A third distinct ID rolls the window; the set stays bounded and the
	// oldest entries fall out of the suppression window.
	require.NoError(t, d.Deliver(ctx, core.SuccessOutcome("b-3", "ok"), srv.URL))
	require.NoError(t, d.Deliver(ctx, core.SuccessOutcome("b-1", "ok"), srv.URL))
	assert.Equal(t, int32(4), hits.Load())
}

func TestDeliverFailedAttemptDoesNotMarkDelivered(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) <= 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	d := fastDispatcher()
	out := core.SuccessOutcome("msg-7", "ok")

	require.Error(t, d.Deliver(context.Background(), out, srv.URL))
	require.NoError(t, d.Deliver(context.Background(), out, srv.URL), "a later delivery may still succeed")
	assert.Equal(t, int32(4), hits.Load())
}

func TestDeliverCancelledContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	d := New(func(o *Options) {
		o.MaxAttempts = 10
		o.InitialDelay = time.Hour // cancellation must interrupt the wait
	})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	err := d.Deliver(ctx, core.SuccessOutcome("msg-8", "ok"), srv.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cancelled")
}
