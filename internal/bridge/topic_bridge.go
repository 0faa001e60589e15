package bridge

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/openrelay/domainbridge/fabric"
	errspkg "github.com/openrelay/domainbridge/internal/bridge/errors"
	"github.com/openrelay/domainbridge/internal/bridge/logging"
	metricspkg "github.com/openrelay/domainbridge/internal/bridge/metrics"
	"github.com/openrelay/domainbridge/internal/bridge/qos"
	"github.com/openrelay/domainbridge/internal/bridge/typesupport"
)

// State is the lifecycle state of a topic bridge.
type State int8

const (
	// StateUnbridged means the bridge is registered but its channel has not
	// been constructed yet (creation deferred until a publisher appears).
	StateUnbridged State = iota

	// StateActive means the channel is forwarding.
	StateActive

	// StateQosRecreating means the outbound publisher is being replaced
	// after a QoS re-resolution.
	StateQosRecreating

	// StateTornDown means the bridge has been released.
	StateTornDown
)

func (s State) String() string {
	switch s {
	case StateUnbridged:
		return "unbridged"
	case StateActive:
		return "active"
	case StateQosRecreating:
		return "qos_recreating"
	case StateTornDown:
		return "torn_down"
	}
	return "unknown"
}

// TopicBridge owns one bridged topic: its key, the resolved output profile,
// the live channel, and the set of remote publisher endpoints that fed the
// resolution. Discovery events are consumed by a single goroutine per
// bridge, so overlapping QoS-change events are serialized, never
// interleaved.
type TopicBridge struct {
	key       Key
	destTopic string
	opts      TopicOptions
	ts        typesupport.TypeSupport
	source    fabric.Domain
	dest      fabric.Domain
	logger    logging.BridgeLogger
	metrics   *metricspkg.BridgeMetrics
	health    func(HealthEvent)

	events      <-chan fabric.GraphEvent
	cancelWatch func()
	done        chan struct{}
	loopDone    chan struct{}

	mu       sync.Mutex
	state    State
	profile  qos.Profile
	channel  *Channel
	observed map[string]fabric.EndpointInfo
}

// newTopicBridge registers the discovery watch, seeds the observed set from
// a graph query, resolves the initial profile, and constructs the channel
// (or defers it when no publisher is observed and policy says so).
func newTopicBridge(
	ctx context.Context,
	source, dest fabric.Domain,
	opts TopicOptions,
	ts typesupport.TypeSupport,
	policy EmptyObservationPolicy,
	defaultProfile qos.Profile,
	logger logging.BridgeLogger,
	m *metricspkg.BridgeMetrics,
	health func(HealthEvent),
) (*TopicBridge, error) {
	key := opts.key()

	// Watch before querying so endpoints joining in between are not missed;
	// the observed set is keyed by endpoint id, so duplicates collapse.
	events, cancelWatch, err := source.WatchTopic(opts.Topic)
	if err != nil {
		return nil, err
	}

	b := &TopicBridge{
		key:         key,
		destTopic:   opts.destinationTopic(),
		opts:        opts,
		ts:          ts,
		source:      source,
		dest:        dest,
		logger:      logger.With(logging.LogFields{"bridge": key.String()}),
		metrics:     m,
		health:      health,
		events:      events,
		cancelWatch: cancelWatch,
		done:        make(chan struct{}),
		loopDone:    make(chan struct{}),
		observed:    make(map[string]fabric.EndpointInfo),
	}

	endpoints, err := source.Publishers(opts.Topic)
	if err != nil {
		cancelWatch()
		return nil, err
	}
	for _, ep := range endpoints {
		if ep.TypeName == key.TypeName {
			b.observed[ep.ID] = ep
		}
	}

	if len(b.observed) > 0 || opts.Mode == qos.ModeOverride {
		profile, err := qos.Resolve(b.observedProfiles(), b.resolveOptions())
		if err != nil {
			cancelWatch()
			return nil, err
		}
		if err := b.activate(ctx, profile); err != nil {
			cancelWatch()
			return nil, err
		}
	} else {
		switch policy {
		case UseDefaultOnEmpty:
			if err := b.activate(ctx, defaultProfile); err != nil {
				cancelWatch()
				return nil, err
			}
		default:
			// DeferOnEmpty: stay unbridged until the first publisher joins.
			b.logger.Info("no publisher observed, deferring channel creation", nil)
		}
	}

	go b.run(ctx)
	return b, nil
}

func (b *TopicBridge) activate(ctx context.Context, profile qos.Profile) error {
	ch, err := newChannel(ctx, b.source, b.dest, b.key, b.destTopic, profile, b.ts, b.logger, b.metrics)
	if err != nil {
		return err
	}
	b.mu.Lock()
	if b.state == StateTornDown {
		// Teardown raced the channel construction; torn down is terminal.
		b.mu.Unlock()
		_ = ch.Close()
		return errspkg.ErrBridgeClosed
	}
	b.channel = ch
	b.profile = profile
	b.state = StateActive
	b.mu.Unlock()
	b.logger.Info("bridge active", logging.LogFields{"profile": profile.String()})
	return nil
}

// Key returns the bridge key.
func (b *TopicBridge) Key() Key { return b.key }

// State returns the current lifecycle state.
func (b *TopicBridge) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Profile returns the current resolved output profile. The second return is
// false while the bridge is unbridged (deferred) or torn down.
func (b *TopicBridge) Profile() (qos.Profile, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state != StateActive && b.state != StateQosRecreating {
		return qos.Profile{}, false
	}
	return b.profile, true
}

// Observed returns a snapshot of the remote publisher endpoints currently
// feeding the resolution.
func (b *TopicBridge) Observed() []fabric.EndpointInfo {
	b.mu.Lock()
	defer b.mu.Unlock()
	infos := make([]fabric.EndpointInfo, 0, len(b.observed))
	for _, ep := range b.observed {
		infos = append(infos, ep)
	}
	return infos
}

// run consumes discovery events until teardown. It is the only goroutine
// that mutates the profile and swaps the channel's publisher.
func (b *TopicBridge) run(ctx context.Context) {
	defer close(b.loopDone)
	for {
		select {
		case ev, ok := <-b.events:
			if !ok {
				return
			}
			b.handleGraphEvent(ctx, ev)
		case <-b.done:
			return
		}
	}
}

func (b *TopicBridge) handleGraphEvent(ctx context.Context, ev fabric.GraphEvent) {
	if ev.Endpoint.Topic != b.key.Topic || ev.Endpoint.TypeName != b.key.TypeName {
		return
	}

	b.mu.Lock()
	if b.state == StateTornDown {
		b.mu.Unlock()
		return
	}
	switch ev.Kind {
	case fabric.PublisherJoined:
		b.observed[ev.Endpoint.ID] = ev.Endpoint
	case fabric.PublisherLeft:
		delete(b.observed, ev.Endpoint.ID)
	}
	empty := len(b.observed) == 0
	b.mu.Unlock()

	if empty && b.opts.Mode != qos.ModeOverride {
		// Nothing to resolve against; keep the last-known-good profile.
		return
	}
	b.reresolve(ctx)
}

// reresolve recomputes the output profile from the current observed set and
// recreates the outbound publisher when the result differs. Failures keep
// the previous profile and are reported as health events, never raised on a
// caller's stack.
func (b *TopicBridge) reresolve(ctx context.Context) {
	resolved, err := qos.Resolve(b.observedProfiles(), b.resolveOptions())
	if err != nil {
		b.emit(HealthEvent{Kind: HealthQosResolutionFailed, Key: b.key, Err: err})
		return
	}

	b.mu.Lock()
	state := b.state
	current := b.profile
	b.mu.Unlock()

	switch {
	case state == StateTornDown:
		return

	case state == StateUnbridged:
		if err := b.activate(ctx, resolved); err != nil {
			if errors.Is(err, errspkg.ErrBridgeClosed) {
				return
			}
			b.emit(HealthEvent{Kind: HealthRecreateFailed, Key: b.key, Err: err})
			return
		}
		b.emit(HealthEvent{Kind: HealthDeferredActivation, Key: b.key, Profile: resolved})

	case !resolved.Equal(current):
		b.mu.Lock()
		b.state = StateQosRecreating
		ch := b.channel
		b.mu.Unlock()

		err := ch.SwapPublisher(ctx, resolved)

		b.mu.Lock()
		tornDown := b.state == StateTornDown
		if b.state == StateQosRecreating {
			b.state = StateActive
			if err == nil {
				b.profile = resolved
			}
		}
		b.mu.Unlock()

		if tornDown {
			// Close raced the swap; it releases the channel, and with it the
			// swapped-in publisher, once this loop exits.
			return
		}
		if err != nil {
			b.emit(HealthEvent{Kind: HealthRecreateFailed, Key: b.key, Profile: current, Err: err})
			return
		}
		b.emit(HealthEvent{Kind: HealthQosUpdated, Key: b.key, Profile: resolved})
	}
}

func (b *TopicBridge) observedProfiles() []qos.Profile {
	b.mu.Lock()
	defer b.mu.Unlock()

	ids := make([]string, 0, len(b.observed))
	for id := range b.observed {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	profiles := make([]qos.Profile, 0, len(ids))
	for _, id := range ids {
		profiles = append(profiles, b.observed[id].Profile)
	}
	return profiles
}

func (b *TopicBridge) resolveOptions() qos.Options {
	return qos.Options{
		Mode:     b.opts.Mode,
		Override: b.opts.Override,
		Blend:    b.opts.Blend,
	}
}

func (b *TopicBridge) emit(ev HealthEvent) {
	ev.Time = time.Now()
	if ev.Err != nil {
		b.logger.Error("bridge health event", ev.Err, logging.LogFields{"kind": ev.Kind.String()})
	} else {
		b.logger.Info("bridge health event", logging.LogFields{
			"kind":    ev.Kind.String(),
			"profile": ev.Profile.String(),
		})
	}
	b.metrics.HealthEvents.WithLabelValues(ev.Kind.String()).Inc()
	if b.health != nil {
		b.health(ev)
	}
}

// Close releases the channel and stops the event loop. Safe to call while a
// recreate is in flight and safe to call more than once.
func (b *TopicBridge) Close() error {
	b.mu.Lock()
	if b.state == StateTornDown {
		b.mu.Unlock()
		return nil
	}
	b.state = StateTornDown
	b.mu.Unlock()

	b.cancelWatch()
	close(b.done)
	<-b.loopDone

	b.mu.Lock()
	ch := b.channel
	b.channel = nil
	b.mu.Unlock()

	if ch != nil {
		return ch.Close()
	}
	return nil
}

// EmptyObservationPolicy decides what BridgeTopic does when no remote
// publisher is observed at creation time.
type EmptyObservationPolicy int8

const (
	// DeferOnEmpty registers the bridge but waits for the first publisher
	// before constructing the channel.
	DeferOnEmpty EmptyObservationPolicy = iota

	// UseDefaultOnEmpty constructs the channel immediately with the
	// configured default profile.
	UseDefaultOnEmpty
)
