package bridge

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openrelay/domainbridge/fabric"
	"github.com/openrelay/domainbridge/fabric/memory"
	errspkg "github.com/openrelay/domainbridge/internal/bridge/errors"
	"github.com/openrelay/domainbridge/internal/bridge/logging"
	"github.com/openrelay/domainbridge/internal/bridge/qos"
	"github.com/openrelay/domainbridge/internal/bridge/typesupport"
)

const testType = "example.msg.String"

type fixture struct {
	fab    *memory.Fabric
	bridge *DomainBridge
	source fabric.Domain
	dest   fabric.Domain
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()

	fab := memory.NewFabric("test-node", watermill.NopLogger{})
	t.Cleanup(func() { _ = fab.Close() })

	if opts.Types == nil {
		types := typesupport.NewRegistry()
		require.NoError(t, types.Register(typesupport.TypeSupport{Name: testType}))
		opts.Types = types
	}

	db, err := New(fab, opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	ctx := context.Background()
	source, err := fab.OpenDomain(ctx, 1)
	require.NoError(t, err)
	dest, err := fab.OpenDomain(ctx, 2)
	require.NoError(t, err)

	return &fixture{fab: fab, bridge: db, source: source, dest: dest}
}

func defaultTopicOptions(topic string) TopicOptions {
	return TopicOptions{
		Topic:      topic,
		TypeName:   testType,
		FromDomain: 1,
		ToDomain:   2,
	}
}

func TestNewRequiresFabric(t *testing.T) {
	_, err := New(nil, Options{})
	assert.ErrorIs(t, err, errspkg.ErrFabricRequired)
}

func TestBridgeTopicValidation(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	t.Run("topic required", func(t *testing.T) {
		opts := defaultTopicOptions("")
		_, err := f.bridge.BridgeTopic(ctx, opts)
		assert.ErrorIs(t, err, errspkg.ErrTopicRequired)
	})

	t.Run("type name required", func(t *testing.T) {
		opts := defaultTopicOptions("chatter")
		opts.TypeName = ""
		_, err := f.bridge.BridgeTopic(ctx, opts)
		assert.ErrorIs(t, err, errspkg.ErrTypeNameRequired)
	})

	t.Run("same domain rejected", func(t *testing.T) {
		opts := defaultTopicOptions("chatter")
		opts.ToDomain = opts.FromDomain
		_, err := f.bridge.BridgeTopic(ctx, opts)
		assert.ErrorIs(t, err, errspkg.ErrSameDomain)
	})

	t.Run("unknown type rejected", func(t *testing.T) {
		opts := defaultTopicOptions("chatter")
		opts.TypeName = "example.msg.DoesNotExist"
		_, err := f.bridge.BridgeTopic(ctx, opts)
		assert.ErrorIs(t, err, errspkg.ErrUnknownMessageType)
	})
}

func TestBridgeTopicMirrorsExistingPublisherQos(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	profile := qos.Profile{
		Reliability: qos.BestEffort,
		Durability:  qos.TransientLocal,
		Liveliness:  qos.Automatic,
		Deadline:    123456 * time.Millisecond,
		Lifespan:    554321 * time.Millisecond,
		History:     qos.KeepLast,
		Depth:       1,
	}
	_, err := f.source.CreatePublisher(ctx, "existing_topic", testType, profile)
	require.NoError(t, err)

	handle, err := f.bridge.BridgeTopic(ctx, defaultTopicOptions("existing_topic"))
	require.NoError(t, err)
	assert.Equal(t, StateActive, handle.State())

	resolved, ok := handle.Profile()
	require.True(t, ok)
	assert.True(t, resolved.Equal(profile))

	// The bridged publisher advertises the mirrored profile, field for
	// field, in the destination domain's discovery.
	infos, err := f.dest.Publishers("existing_topic")
	require.NoError(t, err)
	require.Len(t, infos, 1)
	bridged := infos[0].Profile
	assert.Equal(t, qos.BestEffort, bridged.Reliability)
	assert.Equal(t, qos.TransientLocal, bridged.Durability)
	assert.Equal(t, qos.Automatic, bridged.Liveliness)
	assert.Equal(t, 123456*time.Millisecond, bridged.Deadline)
	assert.Equal(t, 554321*time.Millisecond, bridged.Lifespan)
}

func TestBridgeTopicIsIdempotent(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	_, err := f.source.CreatePublisher(ctx, "chatter", testType, qos.DefaultProfile())
	require.NoError(t, err)

	first, err := f.bridge.BridgeTopic(ctx, defaultTopicOptions("chatter"))
	require.NoError(t, err)
	second, err := f.bridge.BridgeTopic(ctx, defaultTopicOptions("chatter"))
	require.NoError(t, err)

	assert.Same(t, first, second)

	infos, err := f.dest.Publishers("chatter")
	require.NoError(t, err)
	assert.Len(t, infos, 1)
}

func TestBridgeTopicConflictingQosFails(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	reliable := qos.DefaultProfile()
	bestEffort := qos.DefaultProfile()
	bestEffort.Reliability = qos.BestEffort

	_, err := f.source.CreatePublisher(ctx, "chatter", testType, reliable)
	require.NoError(t, err)
	_, err = f.source.CreatePublisher(ctx, "chatter", testType, bestEffort)
	require.NoError(t, err)

	_, err = f.bridge.BridgeTopic(ctx, defaultTopicOptions("chatter"))
	assert.ErrorIs(t, err, errspkg.ErrNoMatchingQos)

	infos, err := f.dest.Publishers("chatter")
	require.NoError(t, err)
	assert.Empty(t, infos)
}

func TestForwardingIsByteIdentical(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	pub, err := f.source.CreatePublisher(ctx, "chatter", testType, qos.DefaultProfile())
	require.NoError(t, err)

	_, err = f.bridge.BridgeTopic(ctx, defaultTopicOptions("chatter"))
	require.NoError(t, err)

	var mu sync.Mutex
	var received []*message.Message
	_, err = f.dest.CreateSubscription(ctx, "chatter", testType, qos.DefaultProfile(), func(msg *message.Message) error {
		mu.Lock()
		received = append(received, msg)
		mu.Unlock()
		return nil
	})
	require.NoError(t, err)

	payload := []byte{0x00, 0xff, 0x10, 0x7f, 0x00}
	require.NoError(t, pub.Publish(payload, message.Metadata{"origin": "talker"}))
	require.NoError(t, pub.Publish([]byte{}, nil))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(received) == 2
	}, time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, payload, []byte(received[0].Payload))
	assert.Equal(t, "talker", received[0].Metadata["origin"])
	assert.Empty(t, received[1].Payload)
}

func TestMaxDeclaredSizeIsEnforced(t *testing.T) {
	types := typesupport.NewRegistry()
	require.NoError(t, types.Register(typesupport.TypeSupport{Name: testType, MaxSerializedSize: 4}))
	f := newFixture(t, Options{Types: types})
	ctx := context.Background()

	pub, err := f.source.CreatePublisher(ctx, "chatter", testType, qos.DefaultProfile())
	require.NoError(t, err)

	_, err = f.bridge.BridgeTopic(ctx, defaultTopicOptions("chatter"))
	require.NoError(t, err)

	var mu sync.Mutex
	var received [][]byte
	_, err = f.dest.CreateSubscription(ctx, "chatter", testType, qos.DefaultProfile(), func(msg *message.Message) error {
		mu.Lock()
		received = append(received, msg.Payload)
		mu.Unlock()
		return nil
	})
	require.NoError(t, err)

	atLimit := []byte{1, 2, 3, 4}
	require.NoError(t, pub.Publish(atLimit, nil))
	require.NoError(t, pub.Publish([]byte{1, 2, 3, 4, 5}, nil))
	require.NoError(t, pub.Publish(atLimit, nil))

	// Both at-limit payloads arrive; the oversize one is dropped.
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(received) == 2
	}, time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	for _, payload := range received {
		assert.Equal(t, atLimit, payload)
	}
}

func TestDeferredActivationOnLateJoiningPublisher(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	handle, err := f.bridge.BridgeTopic(ctx, defaultTopicOptions("chatter"))
	require.NoError(t, err)
	assert.Equal(t, StateUnbridged, handle.State())

	_, ok := handle.Profile()
	assert.False(t, ok)

	infos, err := f.dest.Publishers("chatter")
	require.NoError(t, err)
	assert.Empty(t, infos)

	profile := qos.DefaultProfile()
	profile.Reliability = qos.BestEffort
	_, err = f.source.CreatePublisher(ctx, "chatter", testType, profile)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return handle.State() == StateActive
	}, time.Second, 5*time.Millisecond)

	resolved, ok := handle.Profile()
	require.True(t, ok)
	assert.True(t, resolved.Equal(profile))

	ev := waitHealthEvent(t, f.bridge, HealthDeferredActivation)
	assert.True(t, ev.Profile.Equal(profile))
}

func TestUseDefaultOnEmptyActivatesImmediately(t *testing.T) {
	custom := qos.DefaultProfile()
	custom.Depth = 3
	f := newFixture(t, Options{
		OnEmptyObservation: UseDefaultOnEmpty,
		DefaultProfile:     &custom,
	})

	handle, err := f.bridge.BridgeTopic(context.Background(), defaultTopicOptions("chatter"))
	require.NoError(t, err)
	assert.Equal(t, StateActive, handle.State())

	resolved, ok := handle.Profile()
	require.True(t, ok)
	assert.True(t, resolved.Equal(custom))
}

func TestOverrideModeIgnoresObservations(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	override := qos.DefaultProfile()
	override.Reliability = qos.BestEffort
	override.Depth = 7

	opts := defaultTopicOptions("chatter")
	opts.Mode = qos.ModeOverride
	opts.Override = &override

	handle, err := f.bridge.BridgeTopic(ctx, opts)
	require.NoError(t, err)
	assert.Equal(t, StateActive, handle.State())

	resolved, ok := handle.Profile()
	require.True(t, ok)
	assert.True(t, resolved.Equal(override))
}

func TestRemapPublishesUnderDifferentName(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	_, err := f.source.CreatePublisher(ctx, "chatter", testType, qos.DefaultProfile())
	require.NoError(t, err)

	opts := defaultTopicOptions("chatter")
	opts.Remap = "chatter_mirrored"
	_, err = f.bridge.BridgeTopic(ctx, opts)
	require.NoError(t, err)

	infos, err := f.dest.Publishers("chatter_mirrored")
	require.NoError(t, err)
	assert.Len(t, infos, 1)

	infos, err = f.dest.Publishers("chatter")
	require.NoError(t, err)
	assert.Empty(t, infos)
}

func TestQosReresolutionRecreatesPublisher(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	p1 := qos.DefaultProfile()
	pub1, err := f.source.CreatePublisher(ctx, "chatter", testType, p1)
	require.NoError(t, err)

	handle, err := f.bridge.BridgeTopic(ctx, defaultTopicOptions("chatter"))
	require.NoError(t, err)

	// A second publisher with a conflicting profile breaks consensus; the
	// bridge reports the failure and keeps its last-known-good profile.
	p2 := qos.DefaultProfile()
	p2.Reliability = qos.BestEffort
	_, err = f.source.CreatePublisher(ctx, "chatter", testType, p2)
	require.NoError(t, err)

	ev := waitHealthEvent(t, f.bridge, HealthQosResolutionFailed)
	assert.ErrorIs(t, ev.Err, errspkg.ErrNoMatchingQos)

	resolved, ok := handle.Profile()
	require.True(t, ok)
	assert.True(t, resolved.Equal(p1))

	// Once the original publisher leaves, consensus is restored around the
	// remaining profile and the outbound publisher is recreated with it.
	require.NoError(t, pub1.Close())

	ev = waitHealthEvent(t, f.bridge, HealthQosUpdated)
	assert.True(t, ev.Profile.Equal(p2))

	require.Eventually(t, func() bool {
		resolved, ok := handle.Profile()
		return ok && resolved.Equal(p2)
	}, time.Second, 5*time.Millisecond)

	infos, err := f.dest.Publishers("chatter")
	require.NoError(t, err)
	require.Len(t, infos, 1)
	assert.Equal(t, qos.BestEffort, infos[0].Profile.Reliability)
}

func TestLastPublisherLeavingKeepsProfile(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	profile := qos.DefaultProfile()
	profile.Depth = 5
	pub, err := f.source.CreatePublisher(ctx, "chatter", testType, profile)
	require.NoError(t, err)

	handle, err := f.bridge.BridgeTopic(ctx, defaultTopicOptions("chatter"))
	require.NoError(t, err)

	require.NoError(t, pub.Close())

	// No publisher left to resolve against: the bridge must not tear down
	// or forget its profile.
	assert.Never(t, func() bool {
		resolved, ok := handle.Profile()
		return !ok || !resolved.Equal(profile)
	}, 100*time.Millisecond, 10*time.Millisecond)
	assert.Equal(t, StateActive, handle.State())
}

func TestEventsOfOtherTopicsAndTypesAreIgnored(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	profile := qos.DefaultProfile()
	_, err := f.source.CreatePublisher(ctx, "chatter", testType, profile)
	require.NoError(t, err)

	handle, err := f.bridge.BridgeTopic(ctx, defaultTopicOptions("chatter"))
	require.NoError(t, err)

	// A publisher of a different type on the same topic must not disturb
	// the resolution even though its profile conflicts.
	other := qos.DefaultProfile()
	other.Reliability = qos.BestEffort
	_, err = f.source.CreatePublisher(ctx, "chatter", "example.msg.Other", other)
	require.NoError(t, err)

	assert.Never(t, func() bool {
		resolved, ok := handle.Profile()
		return !ok || !resolved.Equal(profile)
	}, 100*time.Millisecond, 10*time.Millisecond)
	assert.Len(t, handle.Observed(), 1)
}

func TestUnbridgeTopic(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	t.Run("absent key is a no-op", func(t *testing.T) {
		assert.NoError(t, f.bridge.UnbridgeTopic("never_bridged", 1, 2))
	})

	t.Run("removes the bridged publisher", func(t *testing.T) {
		_, err := f.source.CreatePublisher(ctx, "chatter", testType, qos.DefaultProfile())
		require.NoError(t, err)

		handle, err := f.bridge.BridgeTopic(ctx, defaultTopicOptions("chatter"))
		require.NoError(t, err)

		require.NoError(t, f.bridge.UnbridgeTopic("chatter", 1, 2))
		assert.Equal(t, StateTornDown, handle.State())

		infos, err := f.dest.Publishers("chatter")
		require.NoError(t, err)
		assert.Empty(t, infos)
	})

	t.Run("rebridge starts fresh", func(t *testing.T) {
		handle, err := f.bridge.BridgeTopic(ctx, defaultTopicOptions("chatter"))
		require.NoError(t, err)
		assert.Equal(t, StateActive, handle.State())

		infos, err := f.dest.Publishers("chatter")
		require.NoError(t, err)
		assert.Len(t, infos, 1)
	})
}

func TestCloseTearsDownEverything(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	_, err := f.source.CreatePublisher(ctx, "chatter", testType, qos.DefaultProfile())
	require.NoError(t, err)

	handle, err := f.bridge.BridgeTopic(ctx, defaultTopicOptions("chatter"))
	require.NoError(t, err)

	require.NoError(t, f.bridge.Close())
	require.NoError(t, f.bridge.Close())

	assert.Equal(t, StateTornDown, handle.State())

	_, err = f.bridge.BridgeTopic(ctx, defaultTopicOptions("chatter"))
	assert.ErrorIs(t, err, errspkg.ErrBridgeClosed)

	_, open := <-f.bridge.Events()
	assert.False(t, open)

	infos, err := f.dest.Publishers("chatter")
	require.NoError(t, err)
	assert.Empty(t, infos)
}

func TestHandleIdentity(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	_, err := f.source.CreatePublisher(ctx, "chatter", testType, qos.DefaultProfile())
	require.NoError(t, err)

	handle, err := f.bridge.BridgeTopic(ctx, defaultTopicOptions("chatter"))
	require.NoError(t, err)

	assert.NotEmpty(t, handle.ID())
	assert.Equal(t, Key{Topic: "chatter", TypeName: testType, FromDomain: 1, ToDomain: 2}, handle.Key())
	assert.Len(t, handle.Observed(), 1)
}

// gateLogger blocks inside the health-event log call so tests can hold a
// bridge loop mid-emission while teardown proceeds on other goroutines.
type gateLogger struct {
	entered chan struct{}
	gate    chan struct{}
}

func (l *gateLogger) With(logging.LogFields) logging.BridgeLogger { return l }
func (l *gateLogger) Debug(string, logging.LogFields)             {}
func (l *gateLogger) Info(string, logging.LogFields)              {}
func (l *gateLogger) Trace(string, logging.LogFields)             {}

func (l *gateLogger) Error(msg string, _ error, _ logging.LogFields) {
	if msg == "bridge health event" {
		l.entered <- struct{}{}
		<-l.gate
	}
}

func TestHealthEventAfterCloseIsDropped(t *testing.T) {
	gl := &gateLogger{entered: make(chan struct{}), gate: make(chan struct{})}
	f := newFixture(t, Options{Logger: gl})
	ctx := context.Background()

	_, err := f.source.CreatePublisher(ctx, "chatter", testType, qos.DefaultProfile())
	require.NoError(t, err)

	_, err = f.bridge.BridgeTopic(ctx, defaultTopicOptions("chatter"))
	require.NoError(t, err)

	// A conflicting join fails re-resolution; the loop is now parked inside
	// the health emission.
	conflicting := qos.DefaultProfile()
	conflicting.Reliability = qos.BestEffort
	_, err = f.source.CreatePublisher(ctx, "chatter", testType, conflicting)
	require.NoError(t, err)
	<-gl.entered

	// UnbridgeTopic drops the key before waiting for the loop, so the
	// following Close no longer sees this bridge and closes the health
	// channel while the emission is still in flight.
	unbridged := make(chan error, 1)
	go func() { unbridged <- f.bridge.UnbridgeTopic("chatter", 1, 2) }()
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, f.bridge.Close())

	close(gl.gate)
	require.NoError(t, <-unbridged)

	// The late event is dropped, not sent on the closed channel.
	for range f.bridge.Events() {
	}
}

// gatedFabric wraps the memory fabric and blocks publisher creation in one
// domain after a configured number of calls.
type gatedFabric struct {
	inner      *memory.Fabric
	gateDomain int
	gateAfter  int32
	gate       chan struct{}
	entered    chan struct{}
	calls      int32
}

func (f *gatedFabric) OpenDomain(ctx context.Context, id int) (fabric.Domain, error) {
	d, err := f.inner.OpenDomain(ctx, id)
	if err != nil {
		return nil, err
	}
	if id == f.gateDomain {
		return &gatedDomain{Domain: d, f: f}, nil
	}
	return d, nil
}

func (f *gatedFabric) Close() error { return f.inner.Close() }

type gatedDomain struct {
	fabric.Domain
	f *gatedFabric
}

func (d *gatedDomain) CreatePublisher(ctx context.Context, topic, typeName string, profile qos.Profile) (fabric.Publisher, error) {
	if atomic.AddInt32(&d.f.calls, 1) > d.f.gateAfter {
		d.f.entered <- struct{}{}
		<-d.f.gate
	}
	return d.Domain.CreatePublisher(ctx, topic, typeName, profile)
}

func newGatedFixture(t *testing.T, gateAfter int32) (*gatedFabric, *DomainBridge, fabric.Domain, fabric.Domain) {
	t.Helper()

	inner := memory.NewFabric("test-node", watermill.NopLogger{})
	t.Cleanup(func() { _ = inner.Close() })
	gf := &gatedFabric{
		inner:      inner,
		gateDomain: 2,
		gateAfter:  gateAfter,
		gate:       make(chan struct{}),
		entered:    make(chan struct{}, 1),
	}

	types := typesupport.NewRegistry()
	require.NoError(t, types.Register(typesupport.TypeSupport{Name: testType}))
	db, err := New(gf, Options{Types: types})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	ctx := context.Background()
	source, err := inner.OpenDomain(ctx, 1)
	require.NoError(t, err)
	dest, err := inner.OpenDomain(ctx, 2)
	require.NoError(t, err)

	return gf, db, source, dest
}

func TestTeardownDuringDeferredActivationStaysTornDown(t *testing.T) {
	gf, db, source, dest := newGatedFixture(t, 0)
	ctx := context.Background()

	handle, err := db.BridgeTopic(ctx, defaultTopicOptions("chatter"))
	require.NoError(t, err)
	require.Equal(t, StateUnbridged, handle.State())

	// The first join triggers deferred activation; the loop blocks creating
	// the outbound publisher.
	_, err = source.CreatePublisher(ctx, "chatter", testType, qos.DefaultProfile())
	require.NoError(t, err)
	<-gf.entered

	unbridged := make(chan error, 1)
	go func() { unbridged <- db.UnbridgeTopic("chatter", 1, 2) }()
	time.Sleep(50 * time.Millisecond)

	close(gf.gate)
	require.NoError(t, <-unbridged)

	// Torn down is terminal: the in-flight activation must not resurrect
	// the bridge or leak its publisher.
	assert.Equal(t, StateTornDown, handle.State())
	_, ok := handle.Profile()
	assert.False(t, ok)

	infos, err := dest.Publishers("chatter")
	require.NoError(t, err)
	assert.Empty(t, infos)
}

func TestTeardownDuringSwapSkipsQosUpdatedEvent(t *testing.T) {
	gf, db, source, dest := newGatedFixture(t, 1)
	ctx := context.Background()

	p1 := qos.DefaultProfile()
	pub1, err := source.CreatePublisher(ctx, "chatter", testType, p1)
	require.NoError(t, err)

	handle, err := db.BridgeTopic(ctx, defaultTopicOptions("chatter"))
	require.NoError(t, err)

	// p2 joins with a different profile, then p1 leaves; consensus moves to
	// p2 and the loop blocks inside the publisher swap.
	p2 := qos.DefaultProfile()
	p2.Reliability = qos.BestEffort
	_, err = source.CreatePublisher(ctx, "chatter", testType, p2)
	require.NoError(t, err)
	require.NoError(t, pub1.Close())
	<-gf.entered

	unbridged := make(chan error, 1)
	go func() { unbridged <- db.UnbridgeTopic("chatter", 1, 2) }()
	time.Sleep(50 * time.Millisecond)

	close(gf.gate)
	require.NoError(t, <-unbridged)
	assert.Equal(t, StateTornDown, handle.State())

	// No qos_updated event for a swap that teardown overtook, and no
	// publisher left behind in the destination domain.
	deadline := time.After(100 * time.Millisecond)
	for done := false; !done; {
		select {
		case ev := <-db.Events():
			assert.NotEqual(t, HealthQosUpdated, ev.Kind)
		case <-deadline:
			done = true
		}
	}

	infos, err := dest.Publishers("chatter")
	require.NoError(t, err)
	assert.Empty(t, infos)
}

// waitHealthEvent drains the bridge's health channel until an event of the
// wanted kind arrives.
func waitHealthEvent(t *testing.T, db *DomainBridge, kind HealthEventKind) HealthEvent {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev, ok := <-db.Events():
			require.True(t, ok, "health channel closed while waiting for %s", kind)
			if ev.Kind == kind {
				return ev
			}
		case <-deadline:
			t.Fatalf("no %s health event", kind)
			return HealthEvent{}
		}
	}
}
