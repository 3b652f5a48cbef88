package channel

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/aviary-sim/jobgraph/pkg/blob"
	"github.com/aviary-sim/jobgraph/pkg/core"
	"github.com/aviary-sim/jobgraph/pkg/security"
)

// Channel pairs the dispatch and completion queues behind the typed wire
// contract. Sends retry transient failures with backoff; a send that
// exhausts its retries surfaces as a core.TransportError, which is fatal to
// the caller's loop.
type Channel struct {
	dispatch   core.Queue
	completion core.Queue
	blobs      blob.Store
	retry      RetryConfig
	logger     *slog.Logger
}

// Option configures a Channel.
type Option func(*Channel)

// WithBlobStore enables payload offload for oversized dispatch payloads.
func WithBlobStore(s blob.Store) Option {
	return func(c *Channel) { c.blobs = s }
}

// WithRetryConfig overrides the transport retry policy.
func WithRetryConfig(cfg RetryConfig) Option {
	return func(c *Channel) { c.retry = cfg }
}

// WithLogger sets the channel logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Channel) { c.logger = l }
}

// New creates a Channel over the two queues.
func New(dispatch, completion core.Queue, opts ...Option) *Channel {
	c := &Channel{
		dispatch:   dispatch,
		completion: completion,
		retry:      DefaultRetryConfig(),
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SendDispatch serializes and sends a dispatch message. Payloads above the
// inline limit are moved to the blob store and replaced with a reference the
// worker resolves independently.
func (c *Channel) SendDispatch(ctx context.Context, msg *core.DispatchMessage) error {
	if len(msg.Payload) > security.MaxInlinePayloadSize {
		if c.blobs == nil {
			return core.ErrPayloadTooLarge
		}
		key := blob.PayloadKey(msg.RunID, msg.JobID)
		if err := c.blobs.Put(ctx, key, msg.Payload); err != nil {
			return fmt.Errorf("offload payload for %s/%s: %w", msg.RunID, msg.JobID, err)
		}
		c.logger.Debug("offloaded oversized payload",
			"run_id", msg.RunID, "job_id", msg.JobID, "size", len(msg.Payload), "key", key)
		msg = shallowCopyDispatch(msg)
		msg.Payload = nil
		msg.PayloadRef = key
	}

	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal dispatch for %s/%s: %w", msg.RunID, msg.JobID, err)
	}
	return c.send(ctx, c.dispatch, "send dispatch", body)
}

// SendCompletion serializes and sends a completion message.
func (c *Channel) SendCompletion(ctx context.Context, msg *core.CompletionMessage) error {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal completion for %s/%s: %w", msg.RunID, msg.JobID, err)
	}
	return c.send(ctx, c.completion, "send completion", body)
}

func (c *Channel) send(ctx context.Context, q core.Queue, op string, body []byte) error {
	err := retryWithBackoff(ctx, c.retry, func() error {
		return q.Send(ctx, body)
	})
	if err != nil {
		return core.Transport(op, err)
	}
	return nil
}

// ReceiveCompletions long-polls the completion queue. Raw deliveries are
// returned so the consumer can apply its poison-message policy before
// acknowledging.
func (c *Channel) ReceiveCompletions(ctx context.Context, max int, wait time.Duration) ([]core.Delivery, error) {
	deliveries, err := c.completion.Receive(ctx, max, wait)
	if err != nil {
		return nil, core.Transport("receive completions", err)
	}
	return deliveries, nil
}

// DeleteCompletion acknowledges a completion delivery.
func (c *Channel) DeleteCompletion(ctx context.Context, handle string) error {
	if err := c.completion.Delete(ctx, handle); err != nil {
		return core.Transport("delete completion", err)
	}
	return nil
}

// ReceiveDispatches long-polls the dispatch queue (worker side).
func (c *Channel) ReceiveDispatches(ctx context.Context, max int, wait time.Duration) ([]core.Delivery, error) {
	deliveries, err := c.dispatch.Receive(ctx, max, wait)
	if err != nil {
		return nil, core.Transport("receive dispatches", err)
	}
	return deliveries, nil
}

// DeleteDispatch acknowledges a dispatch delivery.
func (c *Channel) DeleteDispatch(ctx context.Context, handle string) error {
	if err := c.dispatch.Delete(ctx, handle); err != nil {
		return core.Transport("delete dispatch", err)
	}
	return nil
}

// ResolvePayload returns the message's inline payload, or fetches the
// offloaded object when the payload travelled by reference.
func (c *Channel) ResolvePayload(ctx context.Context, msg *core.DispatchMessage) (json.RawMessage, error) {
	if msg.PayloadRef == "" {
		return msg.Payload, nil
	}
	if c.blobs == nil {
		return nil, fmt.Errorf("payload ref %q but no blob store configured", msg.PayloadRef)
	}
	data, err := c.blobs.Get(ctx, msg.PayloadRef)
	if err != nil {
		return nil, fmt.Errorf("resolve payload %q: %w", msg.PayloadRef, err)
	}
	return data, nil
}

func shallowCopyDispatch(msg *core.DispatchMessage) *core.DispatchMessage {
	cp := *msg
	return &cp
}
