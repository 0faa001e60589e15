// Package bridge implements the domain bridge core: the type-erased
// forwarding channel, the per-topic bridge lifecycle, and the orchestrator
// that owns the set of active bridges.
package bridge

import (
	"fmt"

	"github.com/openrelay/domainbridge/internal/bridge/qos"
)

// Key is the unique identity of one bridging relationship. At most one
// active topic bridge exists per key at any time.
type Key struct {
	Topic      string
	TypeName   string
	FromDomain int
	ToDomain   int
}

func (k Key) String() string {
	return fmt.Sprintf("%s[%s] %d->%d", k.Topic, k.TypeName, k.FromDomain, k.ToDomain)
}

// TopicOptions parameterizes one BridgeTopic call.
type TopicOptions struct {
	// Topic is the topic name in the source domain.
	Topic string

	// TypeName selects the type support for the topic. It is never used to
	// interpret payload bytes.
	TypeName string

	FromDomain int
	ToDomain   int

	// Remap, when non-empty, publishes under this name in the destination
	// domain instead of Topic.
	Remap string

	// Mode selects the QoS resolution mode. Zero value is exact-mirror.
	Mode qos.Mode

	// Override is the explicit output profile for qos.ModeOverride.
	Override *qos.Profile

	// Blend customizes best-available blending.
	Blend qos.BlendPolicy
}

func (o TopicOptions) key() Key {
	return Key{
		Topic:      o.Topic,
		TypeName:   o.TypeName,
		FromDomain: o.FromDomain,
		ToDomain:   o.ToDomain,
	}
}

func (o TopicOptions) destinationTopic() string {
	if o.Remap != "" {
		return o.Remap
	}
	return o.Topic
}
