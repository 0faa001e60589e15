package bridge

import (
	"context"
	"fmt"
	"sync"

	"github.com/ThreeDotsLabs/watermill/message"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/openrelay/domainbridge/fabric"
	errspkg "github.com/openrelay/domainbridge/internal/bridge/errors"
	"github.com/openrelay/domainbridge/internal/bridge/logging"
	metricspkg "github.com/openrelay/domainbridge/internal/bridge/metrics"
	"github.com/openrelay/domainbridge/internal/bridge/qos"
	"github.com/openrelay/domainbridge/internal/bridge/typesupport"
)

// Channel is the type-erased forwarding pipeline of one topic bridge: a
// subscription in the source domain feeding a publisher in the destination
// domain. Payloads pass through byte-identical and are never decoded.
//
// The publisher handle is guarded so a forward call never observes a
// half-swapped publisher: forwarding holds the read lock for the duration of
// one publish attempt, and SwapPublisher replaces the handle under the write
// lock after the replacement has been fully constructed.
type Channel struct {
	key       Key
	destTopic string
	ts        typesupport.TypeSupport
	source    fabric.Domain
	dest      fabric.Domain
	logger    logging.BridgeLogger
	metrics   *metricspkg.BridgeMetrics

	mu     sync.RWMutex
	pub    fabric.Publisher
	sub    fabric.Subscription
	closed bool
}

// newChannel constructs the publisher half first, then the subscription
// wired to the forward callback. Nothing is left behind on failure.
func newChannel(
	ctx context.Context,
	source, dest fabric.Domain,
	key Key,
	destTopic string,
	profile qos.Profile,
	ts typesupport.TypeSupport,
	logger logging.BridgeLogger,
	m *metricspkg.BridgeMetrics,
) (*Channel, error) {
	pub, err := dest.CreatePublisher(ctx, destTopic, key.TypeName, profile)
	if err != nil {
		return nil, fmt.Errorf("%w: create publisher in domain %d: %w",
			errspkg.ErrChannelConstruction, key.ToDomain, err)
	}

	c := &Channel{
		key:       key,
		destTopic: destTopic,
		ts:        ts,
		source:    source,
		dest:      dest,
		logger:    logger,
		metrics:   m,
		pub:       pub,
	}

	sub, err := source.CreateSubscription(ctx, key.Topic, key.TypeName, profile, c.forward)
	if err != nil {
		_ = pub.Close()
		return nil, fmt.Errorf("%w: create subscription in domain %d: %w",
			errspkg.ErrChannelConstruction, key.FromDomain, err)
	}
	c.sub = sub

	return c, nil
}

// forward relays one received message: at most one publish attempt per
// arrival, synchronous relative to delivery, no buffering of its own.
func (c *Channel) forward(msg *message.Message) error {
	tracer := otel.Tracer("domainbridge")
	_, span := tracer.Start(msg.Context(), "ForwardMessage", trace.WithSpanKind(trace.SpanKindProducer))
	defer span.End()
	span.SetAttributes(
		attribute.String("bridge.topic", c.key.Topic),
		attribute.Int("bridge.from_domain", c.key.FromDomain),
		attribute.Int("bridge.to_domain", c.key.ToDomain),
	)

	if c.ts.MaxSerializedSize > 0 && int64(len(msg.Payload)) > c.ts.MaxSerializedSize {
		c.metrics.ForwardErrors.WithLabelValues(c.key.Topic).Inc()
		return fmt.Errorf("payload exceeds declared maximum size %d for %q", c.ts.MaxSerializedSize, c.key.TypeName)
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed || c.pub == nil {
		return nil
	}

	if err := c.pub.Publish(msg.Payload, msg.Metadata); err != nil {
		c.metrics.ForwardErrors.WithLabelValues(c.key.Topic).Inc()
		return fmt.Errorf("forward %s: %w", c.key, err)
	}
	c.metrics.MessagesForwarded.WithLabelValues(c.key.Topic).Inc()
	return nil
}

// SwapPublisher replaces the outbound publisher with one carrying the new
// profile. Two-phase: the replacement is constructed first, then swapped in
// under the write lock, then the old publisher is destroyed. On construction
// failure the previous publisher stays installed.
func (c *Channel) SwapPublisher(ctx context.Context, profile qos.Profile) error {
	next, err := c.dest.CreatePublisher(ctx, c.destTopic, c.key.TypeName, profile)
	if err != nil {
		return fmt.Errorf("%w: recreate publisher in domain %d: %w",
			errspkg.ErrChannelConstruction, c.key.ToDomain, err)
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		_ = next.Close()
		return fmt.Errorf("swap publisher %s: channel is closed", c.key)
	}
	prev := c.pub
	c.pub = next
	c.mu.Unlock()

	if prev != nil {
		_ = prev.Close()
	}
	c.metrics.QosRecreations.WithLabelValues(c.key.Topic).Inc()
	return nil
}

// Profile returns the profile of the currently installed publisher.
func (c *Channel) Profile() (qos.Profile, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.pub == nil {
		return qos.Profile{}, false
	}
	return c.pub.Profile(), true
}

// Close destroys the subscription and publisher halves.
func (c *Channel) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	pub, sub := c.pub, c.sub
	c.pub, c.sub = nil, nil
	c.mu.Unlock()

	var firstErr error
	if sub != nil {
		if err := sub.Close(); err != nil {
			firstErr = err
		}
	}
	if pub != nil {
		if err := pub.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
