// Package listener consumes operation requests from an SQS queue and drives
// each message through parse, orchestration, callback delivery and
// acknowledgement, with a bounded worker pool and per-message visibility
// heartbeats.
package listener

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"github.com/zarathustra-ai/awsops-agent/core"
	"github.com/zarathustra-ai/awsops-agent/logging"
)

// SQSAPI is the subset of the SQS client the listener needs. It exists so
// tests can substitute a fake queue.
type SQSAPI interface {
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
	ChangeMessageVisibility(ctx context.Context, params *sqs.ChangeMessageVisibilityInput, optFns ...func(*sqs.Options)) (*sqs.ChangeMessageVisibilityOutput, error)
}

// Processor turns one parsed request into its terminal outcome.
type Processor interface {
	Process(ctx context.Context, req core.Request) core.Outcome
}

// Deliverer posts an outcome to a callback URL.
type Deliverer interface {
	Deliver(ctx context.Context, outcome core.Outcome, callbackURL string) error
}

// Options configure a Listener.
type Options struct {
	// MaxMessages is the receive batch size (SQS allows 1..10).
	MaxMessages int32

	// WaitTime is the long-poll duration in seconds.
	WaitTime int32

	// VisibilityTimeout is the per-message visibility window in seconds; the
	// heartbeat renews it while a worker is busy.
	VisibilityTimeout int32

	// MaxWorkers bounds concurrent in-flight messages. The poller blocks
	// when all workers are busy, so the queue itself holds the backlog.
	MaxWorkers int

	// PollInterval is the pause after an empty receive or a receive error.
	PollInterval time.Duration

	// Logger receives consumer progress. Defaults to NoOpLogger.
	Logger logging.Logger
}

// Listener is the SQS consumer loop.
type Listener struct {
	client    SQSAPI
	queueURL  string
	processor Processor
	deliverer Deliverer
	opts      Options
}

// New creates a Listener over the given queue.
func New(client SQSAPI, queueURL string, processor Processor, deliverer Deliverer, optFns ...func(o *Options)) *Listener {
	opts := Options{
		MaxMessages:       10,
		WaitTime:          20,
		VisibilityTimeout: 300,
		MaxWorkers:        5,
		PollInterval:      5 * time.Second,
		Logger:            logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.MaxMessages < 1 || opts.MaxMessages > 10 {
		opts.MaxMessages = 10
	}
	if opts.MaxWorkers < 1 {
		opts.MaxWorkers = 1
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	return &Listener{
		client:    client,
		queueURL:  queueURL,
		processor: processor,
		deliverer: deliverer,
		opts:      opts,
	}
}

// Run polls until ctx is cancelled, then waits for in-flight workers to
// finish. In-flight messages complete their full parse/process/deliver/ack
// path using a detached context so shutdown does not strand half-processed
// work; only new receives stop.
func (l *Listener) Run(ctx context.Context) error {
	log := l.opts.Logger
	sem := make(chan struct{}, l.opts.MaxWorkers)
	var wg sync.WaitGroup

	log.Info("listener.start",
		"queue_url", l.queueURL,
		"max_workers", l.opts.MaxWorkers,
		"max_messages", l.opts.MaxMessages,
	)

	for {
		if err := ctx.Err(); err != nil {
			break
		}

		out, err := l.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
			QueueUrl:              aws.String(l.queueURL),
			MaxNumberOfMessages:   l.opts.MaxMessages,
			WaitTimeSeconds:       l.opts.WaitTime,
			VisibilityTimeout:     l.opts.VisibilityTimeout,
			MessageAttributeNames: []string{"All"},
		})
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			log.Error("listener.receive_failed", "error", err.Error())
			l.pause(ctx)
			continue
		}

		if len(out.Messages) == 0 {
			l.pause(ctx)
			continue
		}

		for _, msg := range out.Messages {
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
			}
			if ctx.Err() != nil {
				// Unclaimed messages return to the queue once their
				// visibility expires.
				break
			}

			wg.Add(1)
			go func(m types.Message) {
				defer wg.Done()
				defer func() { <-sem }()
				l.handle(ctx, m)
			}(msg)
		}
	}

	log.Info("listener.draining")
	wg.Wait()
	log.Info("listener.stopped")
	return ctx.Err()
}

// pause sleeps for PollInterval or until ctx is cancelled.
func (l *Listener) pause(ctx context.Context) {
	if l.opts.PollInterval <= 0 {
		return
	}
	select {
	case <-ctx.Done():
	case <-time.After(l.opts.PollInterval):
	}
}

// handle processes one message end to end. Processing observes the polling
// context so shutdown cancels running requests; delivery and acknowledgement
// run on a detached context so a result that was already computed is not
// stranded mid-handoff.
func (l *Listener) handle(ctx context.Context, msg types.Message) {
	log := l.opts.Logger
	messageID := aws.ToString(msg.MessageId)
	receipt := aws.ToString(msg.ReceiptHandle)

	finishCtx := context.WithoutCancel(ctx)

	hbCtx, stopHeartbeat := context.WithCancel(finishCtx)
	defer stopHeartbeat()
	go l.heartbeat(hbCtx, messageID, receipt)

	log.Info("listener.message_received", "message_id", messageID)

	req, err := core.ParseRequest([]byte(aws.ToString(msg.Body)), messageID)
	if err != nil {
		// Malformed bodies never reach the orchestrator or a callback; a
		// redelivery could not parse any better, so the message is removed.
		log.Warn("listener.malformed_message", "message_id", messageID, "error", err.Error())
		stopHeartbeat()
		if err := l.ack(finishCtx, receipt); err != nil {
			log.Error("listener.ack_failed", "message_id", messageID, "error", err.Error())
		}
		return
	}

	outcome := l.processor.Process(ctx, req)

	// Heartbeat stops before the ack decision so a renewed visibility window
	// cannot outlive the worker.
	stopHeartbeat()

	if err := l.deliverer.Deliver(finishCtx, outcome, req.CallbackURL); err != nil {
		log.Error("listener.callback_failed",
			"message_id", messageID,
			"kind", string(core.KindDeliveryFailure),
			"error", err.Error(),
		)
	}

	if outcome.Retryable() {
		log.Warn("listener.message_left_for_redelivery",
			"message_id", messageID,
			"kind", string(outcome.Kind),
		)
		return
	}

	if err := l.ack(finishCtx, receipt); err != nil {
		log.Error("listener.ack_failed", "message_id", messageID, "error", err.Error())
		return
	}
	log.Info("listener.message_acked", "message_id", messageID, "success", outcome.Success)
}

// ack deletes the message from the queue.
func (l *Listener) ack(ctx context.Context, receipt string) error {
	if receipt == "" {
		return errors.New("empty receipt handle")
	}
	_, err := l.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(l.queueURL),
		ReceiptHandle: aws.String(receipt),
	})
	return err
}

// heartbeat renews the message's visibility window at half its length while
// the owning worker is still busy, so long-running requests are not
// redelivered mid-flight. It exits as soon as the worker completes.
func (l *Listener) heartbeat(ctx context.Context, messageID, receipt string) {
	interval := time.Duration(l.opts.VisibilityTimeout) * time.Second / 2
	if interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		_, err := l.client.ChangeMessageVisibility(ctx, &sqs.ChangeMessageVisibilityInput{
			QueueUrl:          aws.String(l.queueURL),
			ReceiptHandle:     aws.String(receipt),
			VisibilityTimeout: l.opts.VisibilityTimeout,
		})
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			l.opts.Logger.Warn("listener.heartbeat_failed", "message_id", messageID, "error", err.Error())
		}
	}
}
