// Package dispatch delivers terminal outcomes to caller-supplied callback
// URLs with bounded retries and per-message delivery deduplication.
package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/zarathustra-ai/awsops-agent/core"
	"github.com/zarathustra-ai/awsops-agent/logging"
)

// Options configure a Dispatcher.
type Options struct {
	// Timeout bounds each individual HTTP attempt.
	Timeout time.Duration

	// MaxAttempts is the total number of delivery attempts, including the
	// first one.
	MaxAttempts int

	// InitialDelay is the backoff after the first failed attempt.
	InitialDelay time.Duration

	// MaxDelay caps the exponential backoff.
	MaxDelay time.Duration

	// Factor multiplies the delay after every failed attempt.
	Factor float64

	// DedupLimit caps the delivered-ID set. When full the set resets, so
	// suppression is a bounded window over recent messages rather than a
	// durable guarantee; that matches how long queue redeliveries of an
	// already answered message plausibly arrive.
	DedupLimit int

	// HTTPClient overrides the transport, mainly for tests.
	HTTPClient *http.Client

	// Logger receives delivery progress. Defaults to NoOpLogger.
	Logger logging.Logger
}

// Dispatcher posts outcomes as JSON to callback URLs. It remembers which
// message IDs were already delivered so queue redeliveries of an already
// answered message never produce a second effective callback.
type Dispatcher struct {
	client *http.Client
	opts   Options

	mu        sync.Mutex
	delivered map[string]struct{}
}

// New creates a Dispatcher.
func New(optFns ...func(o *Options)) *Dispatcher {
	opts := Options{
		Timeout:      30 * time.Second,
		MaxAttempts:  5,
		InitialDelay: time.Second,
		MaxDelay:     30 * time.Second,
		Factor:       2.0,
		DedupLimit:   8192,
		Logger:       logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 1
	}
	if opts.Factor <= 0 {
		opts.Factor = 2.0
	}
	if opts.DedupLimit <= 0 {
		opts.DedupLimit = 8192
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}

	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: opts.Timeout}
	}

	return &Dispatcher{
		client:    client,
		opts:      opts,
		delivered: make(map[string]struct{}),
	}
}

// Deliver posts the outcome to callbackURL. An empty URL is a no-op: the
// caller did not ask to be told. A message ID that was already delivered is
// also a no-op. Exhausting all attempts returns an error; the outcome itself
// is considered final either way.
func (d *Dispatcher) Deliver(ctx context.Context, outcome core.Outcome, callbackURL string) error {
	log := d.opts.Logger

	if callbackURL == "" {
		return nil
	}

	d.mu.Lock()
	if _, ok := d.delivered[outcome.MessageID]; ok {
		d.mu.Unlock()
		log.Info("dispatch.duplicate_suppressed", "message_id", outcome.MessageID)
		return nil
	}
	d.mu.Unlock()

	body, err := json.Marshal(outcome)
	if err != nil {
		return fmt.Errorf("encode callback body: %w", err)
	}

	delay := d.opts.InitialDelay
	var lastErr error

	for attempt := 1; attempt <= d.opts.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("callback delivery cancelled: %w", err)
		}

		lastErr = d.post(ctx, callbackURL, body)
		if lastErr == nil {
			d.mu.Lock()
			if len(d.delivered) >= d.opts.DedupLimit {
				d.delivered = make(map[string]struct{}, d.opts.DedupLimit)
			}
			d.delivered[outcome.MessageID] = struct{}{}
			d.mu.Unlock()
			log.Info("dispatch.delivered",
				"message_id", outcome.MessageID,
				"success", outcome.Success,
				"attempts", attempt,
			)
			return nil
		}

		log.Warn("dispatch.attempt_failed",
			"message_id", outcome.MessageID,
			"attempt", attempt,
			"error", lastErr.Error(),
		)

		if attempt >= d.opts.MaxAttempts {
			break
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("callback delivery cancelled: %w", ctx.Err())
		case <-time.After(delay):
		}

		delay = time.Duration(float64(delay) * d.opts.Factor)
		if d.opts.MaxDelay > 0 && delay > d.opts.MaxDelay {
			delay = d.opts.MaxDelay
		}
	}

	return fmt.Errorf("callback delivery failed after %d attempts: %w", d.opts.MaxAttempts, lastErr)
}

// post performs one HTTP attempt. Any non-2xx status is a failed attempt.
func (d *Dispatcher) post(ctx context.Context, url string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build callback request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("post callback: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("callback returned status %d", resp.StatusCode)
	}
	return nil
}
