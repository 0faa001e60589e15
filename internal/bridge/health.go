package bridge

import (
	"time"

	"github.com/openrelay/domainbridge/internal/bridge/qos"
)

// HealthEventKind discriminates asynchronous bridge health events.
type HealthEventKind int8

const (
	// HealthQosUpdated reports a successful publisher recreation with a new
	// resolved profile.
	HealthQosUpdated HealthEventKind = iota

	// HealthQosResolutionFailed reports that re-resolution found no
	// consensus; the bridge keeps its last-known-good profile.
	HealthQosResolutionFailed

	// HealthRecreateFailed reports a failed publisher recreation; the bridge
	// keeps forwarding with its previous profile.
	HealthRecreateFailed

	// HealthDeferredActivation reports that a bridge deferred at creation
	// time became active after its first publisher appeared.
	HealthDeferredActivation
)

func (k HealthEventKind) String() string {
	switch k {
	case HealthQosUpdated:
		return "qos_updated"
	case HealthQosResolutionFailed:
		return "qos_resolution_failed"
	case HealthRecreateFailed:
		return "recreate_failed"
	case HealthDeferredActivation:
		return "deferred_activation"
	}
	return "unknown"
}

// HealthEvent is one asynchronous, non-fatal report from a topic bridge.
// Construction-time failures are returned synchronously from BridgeTopic and
// never show up here.
type HealthEvent struct {
	Kind    HealthEventKind
	Key     Key
	Profile qos.Profile
	Err     error
	Time    time.Time
}
