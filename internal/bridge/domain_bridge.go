package bridge

import (
	"context"
	"sync"

	"github.com/openrelay/domainbridge/fabric"
	errspkg "github.com/openrelay/domainbridge/internal/bridge/errors"
	"github.com/openrelay/domainbridge/internal/bridge/ids"
	"github.com/openrelay/domainbridge/internal/bridge/logging"
	metricspkg "github.com/openrelay/domainbridge/internal/bridge/metrics"
	"github.com/openrelay/domainbridge/internal/bridge/qos"
	"github.com/openrelay/domainbridge/internal/bridge/typesupport"
)

// Options holds the optional collaborators of a DomainBridge. Zero values
// select the defaults.
type Options struct {
	Logger logging.BridgeLogger

	// Metrics defaults to a fresh, unregistered collector set. Call
	// BridgeMetrics.Register yourself to expose it.
	Metrics *metricspkg.BridgeMetrics

	// Types defaults to the process-wide type support registry.
	Types *typesupport.Registry

	// OnEmptyObservation decides what BridgeTopic does when no remote
	// publisher is observed yet. Defaults to DeferOnEmpty.
	OnEmptyObservation EmptyObservationPolicy

	// DefaultProfile is the output profile used with UseDefaultOnEmpty.
	// Nil selects qos.DefaultProfile().
	DefaultProfile *qos.Profile

	// HealthBuffer sizes the health event channel. Defaults to 64.
	HealthBuffer int
}

// DomainBridge owns the mapping from bridge keys to topic bridges. It is the
// public entry point of the library: one instance per bridging process, and
// no two instances should bridge the same key.
type DomainBridge struct {
	fab     fabric.Fabric
	opts    Options
	logger  logging.BridgeLogger
	metrics *metricspkg.BridgeMetrics
	types   *typesupport.Registry
	health  chan HealthEvent

	mu      sync.Mutex
	bridges map[Key]*TopicBridge
	handles map[Key]*Handle
	domains map[int]fabric.Domain
	closed  bool
}

// Handle refers to one registered topic bridge. Handles stay valid across
// QoS recreations; they are invalidated only by UnbridgeTopic or Close.
type Handle struct {
	id string
	db *DomainBridge
	tb *TopicBridge
}

// ID is the unique identity of this handle.
func (h *Handle) ID() string { return h.id }

// Key returns the bridge key the handle refers to.
func (h *Handle) Key() Key { return h.tb.Key() }

// State returns the lifecycle state of the underlying topic bridge.
func (h *Handle) State() State { return h.tb.State() }

// Profile returns the current resolved output profile, if any.
func (h *Handle) Profile() (qos.Profile, bool) { return h.tb.Profile() }

// Observed returns the remote publisher endpoints feeding the resolution.
func (h *Handle) Observed() []fabric.EndpointInfo { return h.tb.Observed() }

// New creates a DomainBridge on top of the given fabric. The fabric stays
// owned by the caller; Close tears down the bridges but not the fabric.
func New(fab fabric.Fabric, opts Options) (*DomainBridge, error) {
	if fab == nil {
		return nil, errspkg.ErrFabricRequired
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.Nop()
	}
	m := opts.Metrics
	if m == nil {
		m = metricspkg.New()
	}
	types := opts.Types
	if types == nil {
		types = typesupport.DefaultRegistry
	}
	buffer := opts.HealthBuffer
	if buffer <= 0 {
		buffer = 64
	}

	return &DomainBridge{
		fab:     fab,
		opts:    opts,
		logger:  logger,
		metrics: m,
		types:   types,
		health:  make(chan HealthEvent, buffer),
		bridges: make(map[Key]*TopicBridge),
		handles: make(map[Key]*Handle),
		domains: make(map[int]fabric.Domain),
	}, nil
}

// BridgeTopic bridges one topic from the source to the destination domain.
// Idempotent per bridge key: a second call with the same key returns the
// existing handle without creating a second channel.
//
// Construction-time failures (unknown type, no QoS consensus, channel
// construction) are returned synchronously; everything after successful
// registration is reported through Events.
func (db *DomainBridge) BridgeTopic(ctx context.Context, opts TopicOptions) (*Handle, error) {
	if opts.Topic == "" {
		return nil, errspkg.ErrTopicRequired
	}
	if opts.TypeName == "" {
		return nil, errspkg.ErrTypeNameRequired
	}
	if opts.FromDomain == opts.ToDomain {
		return nil, errspkg.ErrSameDomain
	}

	key := opts.key()

	db.mu.Lock()
	defer db.mu.Unlock()
	if db.closed {
		return nil, errspkg.ErrBridgeClosed
	}
	if handle, ok := db.handles[key]; ok {
		return handle, nil
	}

	ts, err := db.types.Lookup(opts.TypeName)
	if err != nil {
		return nil, err
	}

	source, err := db.openDomainLocked(ctx, opts.FromDomain)
	if err != nil {
		return nil, err
	}
	dest, err := db.openDomainLocked(ctx, opts.ToDomain)
	if err != nil {
		return nil, err
	}

	defaultProfile := qos.DefaultProfile()
	if db.opts.DefaultProfile != nil {
		defaultProfile = *db.opts.DefaultProfile
	}

	tb, err := newTopicBridge(ctx, source, dest, opts, ts,
		db.opts.OnEmptyObservation, defaultProfile,
		db.logger, db.metrics, db.emitHealth)
	if err != nil {
		return nil, err
	}

	handle := &Handle{id: ids.CreateULID(), db: db, tb: tb}
	db.bridges[key] = tb
	db.handles[key] = handle
	db.metrics.ActiveBridges.Inc()
	db.logger.Info("topic bridged", logging.LogFields{"bridge": key.String()})
	return handle, nil
}

// UnbridgeTopic tears down every bridge of the topic between the two
// domains, regardless of type name. Absent keys are a no-op, not an error.
func (db *DomainBridge) UnbridgeTopic(topic string, fromDomain, toDomain int) error {
	db.mu.Lock()
	var victims []*TopicBridge
	for key, tb := range db.bridges {
		if key.Topic == topic && key.FromDomain == fromDomain && key.ToDomain == toDomain {
			victims = append(victims, tb)
			delete(db.bridges, key)
			delete(db.handles, key)
		}
	}
	db.mu.Unlock()

	var firstErr error
	for _, tb := range victims {
		db.metrics.ActiveBridges.Dec()
		db.logger.Info("topic unbridged", logging.LogFields{"bridge": tb.Key().String()})
		if err := tb.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Events delivers asynchronous bridge health events. The channel is buffered
// and never blocks the bridges; events are dropped (and counted) when the
// consumer falls behind.
func (db *DomainBridge) Events() <-chan HealthEvent {
	return db.health
}

// Close tears down all owned topic bridges. Safe to call while bridges are
// mid-recreation, and safe to call more than once.
func (db *DomainBridge) Close() error {
	db.mu.Lock()
	if db.closed {
		db.mu.Unlock()
		return nil
	}
	db.closed = true
	victims := make([]*TopicBridge, 0, len(db.bridges))
	for _, tb := range db.bridges {
		victims = append(victims, tb)
	}
	db.bridges = make(map[Key]*TopicBridge)
	db.handles = make(map[Key]*Handle)
	db.mu.Unlock()

	var firstErr error
	for _, tb := range victims {
		db.metrics.ActiveBridges.Dec()
		if err := tb.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	close(db.health)
	return firstErr
}

func (db *DomainBridge) openDomainLocked(ctx context.Context, id int) (fabric.Domain, error) {
	if d, ok := db.domains[id]; ok {
		return d, nil
	}
	d, err := db.fab.OpenDomain(ctx, id)
	if err != nil {
		return nil, err
	}
	db.domains[id] = d
	return d, nil
}

// emitHealth forwards a bridge health event to the consumer channel. The send
// happens under the bridge mutex so it can never race Close closing the
// channel; a bridge loop still unwinding after Close has its events dropped.
func (db *DomainBridge) emitHealth(ev HealthEvent) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.closed {
		return
	}
	select {
	case db.health <- ev:
	default:
		db.logger.Info("dropping health event, consumer is behind", logging.LogFields{
			"kind":   ev.Kind.String(),
			"bridge": ev.Key.String(),
		})
	}
}
