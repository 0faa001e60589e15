// Package fabric defines the interfaces the bridge uses to talk to a
// pub/sub domain runtime: domain-scoped publisher and subscription
// construction, discovery queries, and discovery-change notifications.
// Each backend (memory, nats, ...) lives in its own sub-package and
// registers itself with the fabric registry.
package fabric

import (
	"context"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/openrelay/domainbridge/internal/bridge/qos"
)

// Fabric is a handle on the underlying pub/sub runtime. Domains opened from
// the same Fabric share its connections but are isolated discovery spaces.
type Fabric interface {
	// OpenDomain attaches to the isolated discovery space with the given id.
	// Opening the same id twice returns the same domain.
	OpenDomain(ctx context.Context, id int) (Domain, error)

	Close() error
}

// Domain is one isolated discovery space. Endpoints created in different
// domains never see each other.
type Domain interface {
	ID() int

	// CreatePublisher creates a discovery-visible publisher for the topic.
	// The QoS profile is immutable for the lifetime of the publisher.
	CreatePublisher(ctx context.Context, topic, typeName string, profile qos.Profile) (Publisher, error)

	// CreateSubscription creates a discovery-visible subscription that
	// invokes handler for every received message. The handler is called from
	// the fabric's delivery goroutine; each message is acked after the
	// handler returns.
	CreateSubscription(ctx context.Context, topic, typeName string, profile qos.Profile, handler MessageFunc) (Subscription, error)

	// Publishers lists the currently known publishers of the topic together
	// with their advertised QoS profiles.
	Publishers(topic string) ([]EndpointInfo, error)

	// WatchTopic delivers publisher join/leave events for the topic until
	// the returned cancel function is called.
	WatchTopic(topic string) (<-chan GraphEvent, func(), error)

	Close() error
}

// Publisher is an endpoint producing messages on one topic with a fixed QoS
// profile.
type Publisher interface {
	// Publish sends a raw serialized payload. The payload is forwarded
	// unchanged; the fabric never interprets it.
	Publish(payload []byte, metadata message.Metadata) error

	// Profile returns the QoS profile the publisher was created with.
	Profile() qos.Profile

	// Endpoint returns the discovery identity of this publisher.
	Endpoint() EndpointInfo

	Close() error
}

// Subscription is an endpoint consuming messages from one topic.
type Subscription interface {
	// Endpoint returns the discovery identity of this subscription.
	Endpoint() EndpointInfo

	Close() error
}

// MessageFunc handles one received message. Returning an error counts as a
// delivery failure for that single message; it does not stop the
// subscription.
type MessageFunc func(msg *message.Message) error

// EndpointInfo describes a discovery-visible endpoint.
type EndpointInfo struct {
	ID       string      `json:"id"`
	Node     string      `json:"node"`
	Topic    string      `json:"topic"`
	TypeName string      `json:"type_name"`
	Profile  qos.Profile `json:"profile"`
}

// GraphEventKind discriminates discovery-change notifications.
type GraphEventKind int8

const (
	PublisherJoined GraphEventKind = iota
	PublisherLeft
)

func (k GraphEventKind) String() string {
	switch k {
	case PublisherJoined:
		return "publisher_joined"
	case PublisherLeft:
		return "publisher_left"
	}
	return "unknown"
}

// GraphEvent is one discovery-change notification.
type GraphEvent struct {
	Kind     GraphEventKind
	Endpoint EndpointInfo
}

// Builder is the function signature for creating a fabric from config.
// Each fabric package should provide a Builder function that can be
// registered.
type Builder func(ctx context.Context, cfg Config, logger watermill.LoggerAdapter) (Fabric, error)

// Config provides the configuration values needed by fabric backends. The
// interface lets backends access only the keys they need without depending
// on the full config package.
type Config interface {
	// GetFabricSystem returns the fabric backend name.
	GetFabricSystem() string

	// GetNodeName returns the name this process advertises on its endpoints.
	GetNodeName() string

	// NATS
	GetNATSURL() string
	GetNATSSubjectPrefix() string
}
