// Package domainbridge relays pub/sub topics between otherwise isolated
// communication domains: distinct discovery namespaces of the same wire
// protocol whose participants cannot see each other directly. It forwards
// messages of arbitrary, only-runtime-known types without decoding them, and
// negotiates the QoS profile the bridged publisher exposes so it shadows the
// original publishers it mirrors.
//
// A DomainBridge owns the set of active topic bridges. BridgeTopic registers
// one bridging relationship per (topic, type, source domain, destination
// domain) key: it looks up generic type support for the type name, asks the
// source domain's discovery for currently known publishers, resolves their
// QoS profiles into one output profile, and wires a type-erased channel that
// republishes every received payload byte-identical in the destination
// domain. Discovery join/leave events trigger QoS re-resolution; when the
// result changes, the outbound publisher is destroyed and recreated with the
// new profile without invalidating the caller's handle.
//
// # QoS resolution
//
// Three modes are supported: exact-mirror (default) copies the observed
// profile and fails with ErrNoMatchingQos when observed publishers disagree;
// best-available blends profiles per field so the bridged publisher can
// serve heterogeneous endpoints; override uses a caller-supplied profile
// outright. Post-creation resolution failures never tear a bridge down: the
// last-known-good profile stays in place and the failure is reported on the
// Events channel.
//
// # Fabrics
//
// The underlying domain runtime is pluggable through the fabric package:
//   - memory: in-process domains backed by Watermill gochannel, for testing
//     and local development
//   - nats: domains as NATS subject namespaces, with a discovery plane built
//     on join/leave announcements and request/reply graph queries
//
// Import a fabric package for its side effect of registering itself, then
// build it by name from config:
//
//	import _ "github.com/openrelay/domainbridge/fabric/nats"
package domainbridge
