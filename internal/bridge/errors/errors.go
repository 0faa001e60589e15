package errors

import sterrors "errors"

var (
	// ErrUnknownMessageType is returned when a topic's type name cannot be
	// resolved through the type support registry. The bridge is not created.
	ErrUnknownMessageType = sterrors.New("domainbridge: message type is not resolvable via type support")

	// ErrNoMatchingQos is returned when observed publisher profiles disagree
	// under exact-mirror resolution and no override was supplied.
	ErrNoMatchingQos = sterrors.New("domainbridge: observed publisher QoS profiles do not agree")

	// ErrChannelConstruction is returned when the underlying publisher or
	// subscription of a channel could not be created.
	ErrChannelConstruction = sterrors.New("domainbridge: channel construction failed")

	ErrFabricRequired    = sterrors.New("domainbridge: fabric is required")
	ErrTopicRequired     = sterrors.New("domainbridge: topic name is required")
	ErrTypeNameRequired  = sterrors.New("domainbridge: message type name is required")
	ErrSameDomain        = sterrors.New("domainbridge: source and destination domains must differ")
	ErrConfigRequired    = sterrors.New("domainbridge: config is required")
	ErrLoggerRequired    = sterrors.New("domainbridge: logger is required")
	ErrOverrideRequired  = sterrors.New("domainbridge: override mode requires an explicit profile")
	ErrNoObservedProfile = sterrors.New("domainbridge: at least one observed profile is required")
	ErrBridgeClosed      = sterrors.New("domainbridge: domain bridge is closed")
)
