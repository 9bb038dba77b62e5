package callosum

import (
	kernelpkg "github.com/dualtract/callosum/internal/kernel"
	configpkg "github.com/dualtract/callosum/internal/kernel/config"
	errspkg "github.com/dualtract/callosum/internal/kernel/errors"
	idspkg "github.com/dualtract/callosum/internal/kernel/ids"
	loggingpkg "github.com/dualtract/callosum/internal/kernel/logging"
	"github.com/dualtract/callosum/internal/kernel/statestore"
)

type (
	Config          = configpkg.Config
	AdmissionPolicy = configpkg.AdmissionPolicy

	Router             = kernelpkg.Router
	RouterDependencies = kernelpkg.RouterDependencies
	RouteOutcome       = kernelpkg.RouteOutcome
	DropCause          = kernelpkg.DropCause

	Envelope       = kernelpkg.Envelope
	EnvelopeOption = kernelpkg.EnvelopeOption
	Tract          = kernelpkg.Tract
	PriorityRange  = kernelpkg.PriorityRange

	Registration  = kernelpkg.Registration
	Filter        = kernelpkg.Filter
	State         = kernelpkg.State
	ProcessFunc   = kernelpkg.ProcessFunc
	ProcessResult = kernelpkg.ProcessResult

	BreakerState    = kernelpkg.BreakerState
	BreakerSnapshot = kernelpkg.BreakerSnapshot

	RouterStatsSnapshot     = kernelpkg.RouterStatsSnapshot
	ParticleMetricsSnapshot = kernelpkg.ParticleMetricsSnapshot
	ParticleSnapshot        = kernelpkg.ParticleSnapshot
	MetricsSnapshot         = kernelpkg.MetricsSnapshot

	DispatchContext = kernelpkg.DispatchContext
	DispatchHooks   = kernelpkg.DispatchHooks

	IngressBridge   = kernelpkg.IngressBridge
	ResultPublisher = kernelpkg.ResultPublisher

	StateStore = statestore.Store

	LogFields     = loggingpkg.LogFields
	ServiceLogger = loggingpkg.ServiceLogger

	InvalidEnvelopeError = errspkg.InvalidEnvelopeError
	HandlerError         = errspkg.HandlerError
	StatePersistError    = errspkg.StatePersistError
)

const (
	TractInternal = kernelpkg.TractInternal
	TractExternal = kernelpkg.TractExternal

	BreakerClosed   = kernelpkg.BreakerClosed
	BreakerOpen     = kernelpkg.BreakerOpen
	BreakerHalfOpen = kernelpkg.BreakerHalfOpen

	DropUnknownTarget  = kernelpkg.DropUnknownTarget
	DropCircuitOpen    = kernelpkg.DropCircuitOpen
	DropQueueFull      = kernelpkg.DropQueueFull
	DropEnqueueTimeout = kernelpkg.DropEnqueueTimeout
	DropExpired        = kernelpkg.DropExpired

	AdmissionReject = configpkg.AdmissionReject
	AdmissionBlock  = configpkg.AdmissionBlock
)

var (
	NewRouter         = kernelpkg.NewRouter
	NewEnvelope       = kernelpkg.NewEnvelope
	ParseTract        = kernelpkg.ParseTract
	LoggingHooks      = kernelpkg.LoggingHooks
	WithCorrelationID = kernelpkg.WithCorrelationID
	WithCreatedAt     = kernelpkg.WithCreatedAt
	WithID            = kernelpkg.WithID

	NewIngressBridge   = kernelpkg.NewIngressBridge
	NewResultPublisher = kernelpkg.NewResultPublisher

	DefaultConfig  = configpkg.Default
	LoadConfigFile = configpkg.LoadFile
	ValidateConfig = configpkg.ValidateConfig

	NewMemoryStore = statestore.NewMemoryStore
	OpenBoltStore  = statestore.OpenBolt

	NewSlogServiceLogger      = loggingpkg.NewSlogServiceLogger
	NewWatermillServiceLogger = loggingpkg.NewWatermillServiceLogger
	NewNopServiceLogger       = loggingpkg.NewNopServiceLogger

	NewEnvelopeID    = idspkg.NewEnvelopeID
	NewCorrelationID = idspkg.NewCorrelationID
)

// Typed routing and registry errors, re-exported for errors.Is checks.
var (
	ErrUnknownTarget     = errspkg.ErrUnknownTarget
	ErrQueueFull         = errspkg.ErrQueueFull
	ErrEnqueueTimeout    = errspkg.ErrEnqueueTimeout
	ErrCircuitOpen       = errspkg.ErrCircuitOpen
	ErrDuplicateParticle = errspkg.ErrDuplicateParticle
	ErrUnknownParticle   = errspkg.ErrUnknownParticle
	ErrHandlerTimeout    = errspkg.ErrHandlerTimeout
	ErrRouterClosed      = errspkg.ErrRouterClosed
)
