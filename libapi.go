package domainbridge

import (
	bridgepkg "github.com/openrelay/domainbridge/internal/bridge"
	configpkg "github.com/openrelay/domainbridge/internal/bridge/config"
	errspkg "github.com/openrelay/domainbridge/internal/bridge/errors"
	idspkg "github.com/openrelay/domainbridge/internal/bridge/ids"
	jsoncodec "github.com/openrelay/domainbridge/internal/bridge/jsoncodec"
	loggingpkg "github.com/openrelay/domainbridge/internal/bridge/logging"
	metricspkg "github.com/openrelay/domainbridge/internal/bridge/metrics"
	"github.com/openrelay/domainbridge/internal/bridge/qos"
	"github.com/openrelay/domainbridge/internal/bridge/typesupport"
)

type (
	DomainBridge = bridgepkg.DomainBridge
	Options      = bridgepkg.Options
	TopicOptions = bridgepkg.TopicOptions
	Key          = bridgepkg.Key
	Handle       = bridgepkg.Handle
	State        = bridgepkg.State
	HealthEvent  = bridgepkg.HealthEvent

	EmptyObservationPolicy = bridgepkg.EmptyObservationPolicy

	QosProfile     = qos.Profile
	QosReliability = qos.Reliability
	QosDurability  = qos.Durability
	QosLiveliness  = qos.Liveliness
	QosHistory     = qos.History
	QosMode        = qos.Mode
	QosOptions     = qos.Options
	QosBlendPolicy = qos.BlendPolicy

	TypeSupport         = typesupport.TypeSupport
	TypeSupportRegistry = typesupport.Registry

	Config     = configpkg.Config
	TopicEntry = configpkg.TopicEntry
	QoSEntry   = configpkg.QoSEntry

	LogFields    = loggingpkg.LogFields
	BridgeLogger = loggingpkg.BridgeLogger

	BridgeMetrics = metricspkg.BridgeMetrics
)

// Lifecycle states of a topic bridge.
const (
	StateUnbridged     = bridgepkg.StateUnbridged
	StateActive        = bridgepkg.StateActive
	StateQosRecreating = bridgepkg.StateQosRecreating
	StateTornDown      = bridgepkg.StateTornDown
)

// Health event kinds.
const (
	HealthQosUpdated          = bridgepkg.HealthQosUpdated
	HealthQosResolutionFailed = bridgepkg.HealthQosResolutionFailed
	HealthRecreateFailed      = bridgepkg.HealthRecreateFailed
	HealthDeferredActivation  = bridgepkg.HealthDeferredActivation
)

// Empty-observation policies.
const (
	DeferOnEmpty      = bridgepkg.DeferOnEmpty
	UseDefaultOnEmpty = bridgepkg.UseDefaultOnEmpty
)

// QoS field values.
const (
	Reliable   = qos.Reliable
	BestEffort = qos.BestEffort

	Volatile       = qos.Volatile
	TransientLocal = qos.TransientLocal

	Automatic     = qos.Automatic
	ManualByTopic = qos.ManualByTopic

	KeepLast = qos.KeepLast
	KeepAll  = qos.KeepAll

	ModeExactMirror   = qos.ModeExactMirror
	ModeBestAvailable = qos.ModeBestAvailable
	ModeOverride      = qos.ModeOverride

	DurationUnspecified = qos.DurationUnspecified
)

var (
	New = bridgepkg.New

	DefaultQosProfile = qos.DefaultProfile
	ResolveQos        = qos.Resolve

	RegisterType        = typesupport.Register
	LookupType          = typesupport.Lookup
	NewTypeRegistry     = typesupport.NewRegistry
	DefaultTypeRegistry = typesupport.DefaultRegistry

	LoadConfigFile = configpkg.LoadFile

	NewSlogBridgeLogger      = loggingpkg.NewSlogBridgeLogger
	NewWatermillBridgeLogger = loggingpkg.NewWatermillBridgeLogger
	NewWatermillAdapter      = loggingpkg.NewWatermillAdapter

	NewBridgeMetrics = metricspkg.New

	ErrUnknownMessageType  = errspkg.ErrUnknownMessageType
	ErrNoMatchingQos       = errspkg.ErrNoMatchingQos
	ErrChannelConstruction = errspkg.ErrChannelConstruction
	ErrFabricRequired      = errspkg.ErrFabricRequired
	ErrTopicRequired       = errspkg.ErrTopicRequired
	ErrTypeNameRequired    = errspkg.ErrTypeNameRequired
	ErrSameDomain          = errspkg.ErrSameDomain
	ErrConfigRequired      = errspkg.ErrConfigRequired
	ErrLoggerRequired      = errspkg.ErrLoggerRequired
	ErrOverrideRequired    = errspkg.ErrOverrideRequired
	ErrNoObservedProfile   = errspkg.ErrNoObservedProfile
	ErrBridgeClosed        = errspkg.ErrBridgeClosed

	Marshal       = jsoncodec.Marshal
	MarshalIndent = jsoncodec.MarshalIndent
	Unmarshal     = jsoncodec.Unmarshal

	CreateULID = idspkg.CreateULID
)
