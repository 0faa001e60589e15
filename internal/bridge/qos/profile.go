// Package qos models the quality-of-service envelope attached to publishers
// and subscriptions, and resolves the output profile a bridged publisher
// should expose given the profiles observed on the remote side.
package qos

import (
	"fmt"
	"math"
	"time"
)

// Reliability selects the delivery guarantee of an endpoint.
type Reliability int8

const (
	Reliable Reliability = iota
	BestEffort
)

func (r Reliability) String() string {
	switch r {
	case Reliable:
		return "reliable"
	case BestEffort:
		return "best_effort"
	}
	return fmt.Sprintf("reliability(%d)", int8(r))
}

// Durability selects whether late-joining subscribers receive earlier samples.
type Durability int8

const (
	Volatile Durability = iota
	TransientLocal
)

func (d Durability) String() string {
	switch d {
	case Volatile:
		return "volatile"
	case TransientLocal:
		return "transient_local"
	}
	return fmt.Sprintf("durability(%d)", int8(d))
}

// Liveliness selects how a publisher asserts it is alive.
type Liveliness int8

const (
	Automatic Liveliness = iota
	ManualByTopic
)

func (l Liveliness) String() string {
	switch l {
	case Automatic:
		return "automatic"
	case ManualByTopic:
		return "manual_by_topic"
	}
	return fmt.Sprintf("liveliness(%d)", int8(l))
}

// History selects how many samples an endpoint retains.
type History int8

const (
	KeepLast History = iota
	KeepAll
)

func (h History) String() string {
	switch h {
	case KeepLast:
		return "keep_last"
	case KeepAll:
		return "keep_all"
	}
	return fmt.Sprintf("history(%d)", int8(h))
}

// DurationUnspecified is the distinguished sentinel for an unset deadline or
// lifespan. It is a value in the duration domain, not absence: an unset field
// behaves as an infinite duration.
const DurationUnspecified time.Duration = math.MaxInt64

// Profile is the full QoS envelope of an endpoint. A profile is a total
// function over its fields; zero values are meaningful (Reliable, Volatile,
// Automatic, KeepLast) except Deadline and Lifespan, which use
// DurationUnspecified for "unset".
type Profile struct {
	Reliability Reliability
	Durability  Durability
	Liveliness  Liveliness

	// Deadline is the maximum expected period between samples.
	Deadline time.Duration
	// Lifespan is the maximum age after which a sample is dropped.
	Lifespan time.Duration

	History History
	// Depth is the retained sample count for KeepLast history. Ignored for
	// KeepAll.
	Depth int
}

// DefaultProfile returns the profile used when nothing else is specified:
// reliable, volatile, automatic liveliness, keep last 10.
func DefaultProfile() Profile {
	return Profile{
		Deadline: DurationUnspecified,
		Lifespan: DurationUnspecified,
		Depth:    10,
	}
}

// Equal reports field-for-field equality. Depth is only compared when both
// profiles keep a bounded history.
func (p Profile) Equal(o Profile) bool {
	if p.Reliability != o.Reliability ||
		p.Durability != o.Durability ||
		p.Liveliness != o.Liveliness ||
		p.Deadline != o.Deadline ||
		p.Lifespan != o.Lifespan ||
		p.History != o.History {
		return false
	}
	if p.History == KeepLast && p.Depth != o.Depth {
		return false
	}
	return true
}

func (p Profile) String() string {
	history := p.History.String()
	if p.History == KeepLast {
		history = fmt.Sprintf("%s(%d)", history, p.Depth)
	}
	return fmt.Sprintf("{%s %s %s deadline=%s lifespan=%s %s}",
		p.Reliability, p.Durability, p.Liveliness,
		formatDuration(p.Deadline), formatDuration(p.Lifespan), history)
}

func formatDuration(d time.Duration) string {
	if d == DurationUnspecified {
		return "unset"
	}
	return d.String()
}
