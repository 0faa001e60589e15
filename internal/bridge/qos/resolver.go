package qos

import (
	"fmt"
	"time"

	errspkg "github.com/openrelay/domainbridge/internal/bridge/errors"
)

// Mode selects how observed profiles are turned into the bridged publisher's
// output profile.
type Mode int8

const (
	// ModeExactMirror copies the observed profile when all observed
	// publishers agree, and fails with ErrNoMatchingQos otherwise.
	ModeExactMirror Mode = iota

	// ModeBestAvailable blends the observed profiles per field so the
	// bridged publisher can match every observed endpoint's expectations.
	ModeBestAvailable

	// ModeOverride ignores observations and uses the caller-supplied
	// profile outright.
	ModeOverride
)

func (m Mode) String() string {
	switch m {
	case ModeExactMirror:
		return "exact_mirror"
	case ModeBestAvailable:
		return "best_available"
	case ModeOverride:
		return "override"
	}
	return fmt.Sprintf("mode(%d)", int8(m))
}

// Options parameterizes a resolution.
type Options struct {
	Mode Mode

	// Override is required for ModeOverride and ignored otherwise.
	Override *Profile

	// Blend customizes per-field blending for ModeBestAvailable. Zero-value
	// hooks fall back to the default blend rules.
	Blend BlendPolicy
}

// BlendPolicy holds per-field blending hooks for best-available resolution.
// A nil hook uses the default rule for that field. The defaults pick the most
// permissive value that still lets the bridged publisher match every observed
// endpoint:
//   - reliability: Reliable only if all observed are Reliable
//   - durability: TransientLocal only if all observed are TransientLocal
//   - liveliness: Automatic if any observed is Automatic
//   - deadline, lifespan: the largest observed value (unset counts as infinite)
//   - history: KeepAll if any observed keeps all, else the largest depth
type BlendPolicy struct {
	Reliability func(observed []Profile) Reliability
	Durability  func(observed []Profile) Durability
	Liveliness  func(observed []Profile) Liveliness
	Deadline    func(observed []Profile) time.Duration
	Lifespan    func(observed []Profile) time.Duration
	History     func(observed []Profile) (History, int)
}

// Resolve computes the output profile for a bridged publisher from the
// profiles currently observed on remote publishers of the same topic.
//
// Observations must be non-empty except in ModeOverride. ExactMirror requires
// consensus across all observed profiles and returns ErrNoMatchingQos when
// they disagree on any field.
func Resolve(observed []Profile, opts Options) (Profile, error) {
	switch opts.Mode {
	case ModeOverride:
		if opts.Override == nil {
			return Profile{}, errspkg.ErrOverrideRequired
		}
		return *opts.Override, nil
	case ModeExactMirror:
		return resolveExactMirror(observed)
	case ModeBestAvailable:
		return resolveBestAvailable(observed, opts.Blend)
	}
	return Profile{}, fmt.Errorf("domainbridge: unknown resolution mode %d", opts.Mode)
}

func resolveExactMirror(observed []Profile) (Profile, error) {
	if len(observed) == 0 {
		return Profile{}, errspkg.ErrNoObservedProfile
	}
	first := observed[0]
	for _, p := range observed[1:] {
		if !p.Equal(first) {
			return Profile{}, fmt.Errorf("%w: %s vs %s", errspkg.ErrNoMatchingQos, first, p)
		}
	}
	return first, nil
}

func resolveBestAvailable(observed []Profile, blend BlendPolicy) (Profile, error) {
	if len(observed) == 0 {
		return Profile{}, errspkg.ErrNoObservedProfile
	}

	out := Profile{}

	if blend.Reliability != nil {
		out.Reliability = blend.Reliability(observed)
	} else {
		out.Reliability = Reliable
		for _, p := range observed {
			if p.Reliability == BestEffort {
				out.Reliability = BestEffort
				break
			}
		}
	}

	if blend.Durability != nil {
		out.Durability = blend.Durability(observed)
	} else {
		out.Durability = TransientLocal
		for _, p := range observed {
			if p.Durability == Volatile {
				out.Durability = Volatile
				break
			}
		}
	}

	if blend.Liveliness != nil {
		out.Liveliness = blend.Liveliness(observed)
	} else {
		out.Liveliness = ManualByTopic
		for _, p := range observed {
			if p.Liveliness == Automatic {
				out.Liveliness = Automatic
				break
			}
		}
	}

	if blend.Deadline != nil {
		out.Deadline = blend.Deadline(observed)
	} else {
		// DurationUnspecified is MaxInt64, so an unset field naturally wins
		// the "largest value" comparison.
		for _, p := range observed {
			if p.Deadline > out.Deadline {
				out.Deadline = p.Deadline
			}
		}
	}

	if blend.Lifespan != nil {
		out.Lifespan = blend.Lifespan(observed)
	} else {
		for _, p := range observed {
			if p.Lifespan > out.Lifespan {
				out.Lifespan = p.Lifespan
			}
		}
	}

	if blend.History != nil {
		out.History, out.Depth = blend.History(observed)
	} else {
		out.History = KeepLast
		for _, p := range observed {
			if p.History == KeepAll {
				out.History = KeepAll
			}
			if p.Depth > out.Depth {
				out.Depth = p.Depth
			}
		}
	}

	return out, nil
}
