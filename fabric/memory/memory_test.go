package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openrelay/domainbridge/fabric"
	"github.com/openrelay/domainbridge/internal/bridge/qos"
)

func newTestFabric(t *testing.T) *Fabric {
	t.Helper()
	f := NewFabric("test-node", watermill.NopLogger{})
	t.Cleanup(func() { _ = f.Close() })
	return f
}

func TestOpenDomainIsIdempotent(t *testing.T) {
	f := newTestFabric(t)
	ctx := context.Background()

	d1, err := f.OpenDomain(ctx, 1)
	require.NoError(t, err)
	d1again, err := f.OpenDomain(ctx, 1)
	require.NoError(t, err)
	assert.Same(t, d1, d1again)

	d2, err := f.OpenDomain(ctx, 2)
	require.NoError(t, err)
	assert.NotSame(t, d1, d2)
	assert.Equal(t, 1, d1.ID())
	assert.Equal(t, 2, d2.ID())
}

func TestOpenDomainRejectsNegativeID(t *testing.T) {
	f := newTestFabric(t)

	_, err := f.OpenDomain(context.Background(), -1)
	assert.Error(t, err)
}

func TestPublishSubscribeRoundTrip(t *testing.T) {
	f := newTestFabric(t)
	ctx := context.Background()

	d, err := f.OpenDomain(ctx, 1)
	require.NoError(t, err)

	var mu sync.Mutex
	var received [][]byte
	_, err = d.CreateSubscription(ctx, "chatter", "example.msg.String", qos.DefaultProfile(), func(msg *message.Message) error {
		mu.Lock()
		received = append(received, msg.Payload)
		mu.Unlock()
		return nil
	})
	require.NoError(t, err)

	pub, err := d.CreatePublisher(ctx, "chatter", "example.msg.String", qos.DefaultProfile())
	require.NoError(t, err)

	require.NoError(t, pub.Publish([]byte("hello"), nil))
	require.NoError(t, pub.Publish([]byte{}, nil))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(received) == 2
	}, time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []byte("hello"), received[0])
	assert.Empty(t, received[1])
}

func TestDomainsAreIsolated(t *testing.T) {
	f := newTestFabric(t)
	ctx := context.Background()

	d1, err := f.OpenDomain(ctx, 1)
	require.NoError(t, err)
	d2, err := f.OpenDomain(ctx, 2)
	require.NoError(t, err)

	delivered := make(chan struct{}, 1)
	_, err = d2.CreateSubscription(ctx, "chatter", "example.msg.String", qos.DefaultProfile(), func(*message.Message) error {
		delivered <- struct{}{}
		return nil
	})
	require.NoError(t, err)

	pub, err := d1.CreatePublisher(ctx, "chatter", "example.msg.String", qos.DefaultProfile())
	require.NoError(t, err)
	require.NoError(t, pub.Publish([]byte("stays home"), nil))

	select {
	case <-delivered:
		t.Fatal("message crossed domain boundary")
	case <-time.After(50 * time.Millisecond):
	}

	infos, err := d2.Publishers("chatter")
	require.NoError(t, err)
	assert.Empty(t, infos)
}

func TestPublishersListsAdvertisedProfiles(t *testing.T) {
	f := newTestFabric(t)
	ctx := context.Background()

	d, err := f.OpenDomain(ctx, 1)
	require.NoError(t, err)

	profile := qos.Profile{
		Reliability: qos.BestEffort,
		Durability:  qos.TransientLocal,
		Liveliness:  qos.Automatic,
		Deadline:    123456 * time.Millisecond,
		Lifespan:    554321 * time.Millisecond,
		History:     qos.KeepLast,
		Depth:       1,
	}
	pub, err := d.CreatePublisher(ctx, "chatter", "example.msg.String", profile)
	require.NoError(t, err)

	infos, err := d.Publishers("chatter")
	require.NoError(t, err)
	require.Len(t, infos, 1)
	assert.Equal(t, "test-node", infos[0].Node)
	assert.Equal(t, "chatter", infos[0].Topic)
	assert.Equal(t, "example.msg.String", infos[0].TypeName)
	assert.True(t, infos[0].Profile.Equal(profile))
	assert.Equal(t, pub.Endpoint().ID, infos[0].ID)

	require.NoError(t, pub.Close())
	infos, err = d.Publishers("chatter")
	require.NoError(t, err)
	assert.Empty(t, infos)
}

func TestWatchTopicDeliversJoinAndLeave(t *testing.T) {
	f := newTestFabric(t)
	ctx := context.Background()

	d, err := f.OpenDomain(ctx, 1)
	require.NoError(t, err)

	events, cancel, err := d.WatchTopic("chatter")
	require.NoError(t, err)
	defer cancel()

	pub, err := d.CreatePublisher(ctx, "chatter", "example.msg.String", qos.DefaultProfile())
	require.NoError(t, err)

	select {
	case ev := <-events:
		assert.Equal(t, fabric.PublisherJoined, ev.Kind)
		assert.Equal(t, pub.Endpoint().ID, ev.Endpoint.ID)
	case <-time.After(time.Second):
		t.Fatal("no join event")
	}

	require.NoError(t, pub.Close())

	select {
	case ev := <-events:
		assert.Equal(t, fabric.PublisherLeft, ev.Kind)
		assert.Equal(t, pub.Endpoint().ID, ev.Endpoint.ID)
	case <-time.After(time.Second):
		t.Fatal("no leave event")
	}
}

func TestWatchTopicIgnoresOtherTopics(t *testing.T) {
	f := newTestFabric(t)
	ctx := context.Background()

	d, err := f.OpenDomain(ctx, 1)
	require.NoError(t, err)

	events, cancel, err := d.WatchTopic("chatter")
	require.NoError(t, err)
	defer cancel()

	_, err = d.CreatePublisher(ctx, "other", "example.msg.String", qos.DefaultProfile())
	require.NoError(t, err)

	select {
	case ev := <-events:
		t.Fatalf("unexpected event for topic %q", ev.Endpoint.Topic)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestWatchCancelIsIdempotent(t *testing.T) {
	f := newTestFabric(t)

	d, err := f.OpenDomain(context.Background(), 1)
	require.NoError(t, err)

	events, cancel, err := d.WatchTopic("chatter")
	require.NoError(t, err)

	cancel()
	cancel()

	_, open := <-events
	assert.False(t, open)
}

func TestPublisherCloseIsIdempotent(t *testing.T) {
	f := newTestFabric(t)
	ctx := context.Background()

	d, err := f.OpenDomain(ctx, 1)
	require.NoError(t, err)

	events, cancel, err := d.WatchTopic("chatter")
	require.NoError(t, err)
	defer cancel()

	pub, err := d.CreatePublisher(ctx, "chatter", "example.msg.String", qos.DefaultProfile())
	require.NoError(t, err)
	<-events // join

	require.NoError(t, pub.Close())
	require.NoError(t, pub.Close())

	var leaves int
	deadline := time.After(100 * time.Millisecond)
	for done := false; !done; {
		select {
		case ev := <-events:
			if ev.Kind == fabric.PublisherLeft {
				leaves++
			}
		case <-deadline:
			done = true
		}
	}
	assert.Equal(t, 1, leaves)
}

func TestFabricCloseRejectsNewDomains(t *testing.T) {
	f := NewFabric("test-node", watermill.NopLogger{})

	d, err := f.OpenDomain(context.Background(), 1)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	_, err = f.OpenDomain(context.Background(), 2)
	assert.Error(t, err)

	_, err = d.CreatePublisher(context.Background(), "chatter", "example.msg.String", qos.DefaultProfile())
	assert.Error(t, err)
}
