package fabric

// Capabilities describes the QoS and discovery features a fabric backend can
// actually honor. Use this to introspect what a backend supports at runtime;
// profiles requesting unsupported policies are advertised as-is but degrade
// to the backend's behavior on the wire.
type Capabilities struct {
	// Name is the human-readable name of the fabric backend.
	Name string

	// SupportsReliable indicates the wire transport can guarantee delivery.
	// When false, Reliable profiles degrade to best-effort delivery.
	SupportsReliable bool

	// SupportsTransientLocal indicates late-joining subscribers can receive
	// earlier samples.
	SupportsTransientLocal bool

	// SupportsDeadline indicates the backend enforces deadline misses.
	SupportsDeadline bool

	// SupportsLifespan indicates the backend expires samples by age.
	SupportsLifespan bool

	// SupportsGraphQuery indicates Publishers() reflects remote endpoints,
	// not just local ones.
	SupportsGraphQuery bool

	// DiscoveryLatency is a rough upper bound, in milliseconds, on how long
	// a join/leave takes to become visible (0 = immediate/unknown).
	DiscoveryLatency int64

	// MaxMessageSize is the maximum payload size in bytes (0 = unlimited).
	MaxMessageSize int64
}

// Predefined capability sets for the built-in fabrics.
var (
	// MemoryCapabilities for the in-process fabric.
	MemoryCapabilities = Capabilities{
		Name:                   "memory",
		SupportsReliable:       true,
		SupportsTransientLocal: false,
		SupportsDeadline:       false,
		SupportsLifespan:       false,
		SupportsGraphQuery:     true,
	}

	// NATSCapabilities for the NATS-backed fabric.
	NATSCapabilities = Capabilities{
		Name:                   "nats",
		SupportsReliable:       false,
		SupportsTransientLocal: false,
		SupportsDeadline:       false,
		SupportsLifespan:       false,
		SupportsGraphQuery:     true,
		DiscoveryLatency:       500,
		MaxMessageSize:         1048576, // Default 1MB
	}
)

// GetCapabilities returns the capabilities for a fabric by name.
// Uses the registry to look up capabilities registered by each fabric
// package. Returns a zero Capabilities struct if the fabric is unknown.
func GetCapabilities(name string) Capabilities {
	return DefaultRegistry.GetCapabilities(name)
}
