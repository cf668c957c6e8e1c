package runtimeclient

import (
	"context"

	"google.golang.org/protobuf/proto"

	runtimepkg "github.com/drblury/runtimeclient/internal/runtime"
	configpkg "github.com/drblury/runtimeclient/internal/runtime/config"
	errspkg "github.com/drblury/runtimeclient/internal/runtime/errors"
	"github.com/drblury/runtimeclient/internal/runtime/eventhandlers"
	"github.com/drblury/runtimeclient/internal/runtime/events"
	ecpkg "github.com/drblury/runtimeclient/internal/runtime/executioncontext"
	"github.com/drblury/runtimeclient/internal/runtime/filters"
	handlerpkg "github.com/drblury/runtimeclient/internal/runtime/handlers"
	idspkg "github.com/drblury/runtimeclient/internal/runtime/ids"
	jsoncodec "github.com/drblury/runtimeclient/internal/runtime/jsoncodec"
	loggingpkg "github.com/drblury/runtimeclient/internal/runtime/logging"
	"github.com/drblury/runtimeclient/internal/runtime/processing"
	"github.com/drblury/runtimeclient/internal/runtime/projections"
	"github.com/drblury/runtimeclient/internal/runtime/tenancy"
	transportpkg "github.com/drblury/runtimeclient/internal/runtime/transport"
	newtransport "github.com/drblury/runtimeclient/transport"
)

type (
	Config             = configpkg.Config
	Client             = runtimepkg.Client
	ClientDependencies = runtimepkg.ClientDependencies
	ProtoValidator     = handlerpkg.ProtoValidator
	ProtoValidatorFunc = handlerpkg.ProtoValidatorFunc
	Caller             = transportpkg.Caller
	TransportFactory   = transportpkg.Factory

	EventHandler      = eventhandlers.EventHandler
	HandleFunc        = eventhandlers.HandleFunc
	Filter            = filters.Filter
	FilterKind        = filters.FilterKind
	FilterResult      = filters.Result
	FilterPredicate   = filters.Predicate
	Projection        = projections.Projection
	ProjectionFunc    = projections.ProjectionFunc
	ProjectionResult  = projections.Result
	ProjectionContext = projections.Context
	EventSelector     = projections.EventSelector
	KeySelector       = projections.KeySelector
	KeySelectorType   = projections.KeySelectorType

	EventType        = events.EventType
	EventContext     = events.Context
	CommittedEvent   = events.CommittedEvent
	ExecutionContext = ecpkg.ExecutionContext
	Version          = ecpkg.Version
	Claim            = ecpkg.Claim

	ServiceProvider       = tenancy.ServiceProvider
	TenantScopedProviders = tenancy.TenantScopedProviders
	Services              = tenancy.Services

	ProcessorInfo      = runtimepkg.ProcessorInfo
	ProcessorStats     = runtimepkg.ProcessorStats
	ProcessorState     = processing.State
	StatusSnapshot     = processing.StatusSnapshot
	LatencyMetrics     = runtimepkg.LatencyMetrics
	ThroughputMetrics  = runtimepkg.ThroughputMetrics
	ErrorBreakdown     = runtimepkg.ErrorBreakdown
	ResourceUsage      = runtimepkg.ResourceUsage
	ConcurrencyMetrics = runtimepkg.ConcurrencyMetrics
	ErrorCategory      = runtimepkg.ErrorCategory
	ErrorClassifier    = runtimepkg.ErrorClassifier

	Middleware     = processing.Middleware
	Invocation     = processing.Invocation
	Next           = processing.Next
	RequestHooks   = processing.RequestHooks
	RequestContext = processing.RequestContext

	LogFields                 = loggingpkg.LogFields
	ServiceLogger             = loggingpkg.ServiceLogger
	EntryLogger               = loggingpkg.EntryLogger
	EntryLoggerAdapter[T any] = loggingpkg.EntryLoggerAdapter[T]
	ConfigValidationError     = errspkg.ConfigValidationError
	UnprocessableEventError   = handlerpkg.UnprocessableEventError
	PingTimedOutError         = errspkg.PingTimedOutError
	CouldNotConnectError      = errspkg.CouldNotConnectError
	ProcessingError           = errspkg.ProcessingError
	TransportCapabilities     = newtransport.Capabilities
	TransportRegistry         = newtransport.Registry
	TransportBuilder          = newtransport.Builder
)

var (
	NewClient            = runtimepkg.NewClient
	TryNewClient         = runtimepkg.TryNewClient
	RegisterEventHandler = runtimepkg.RegisterEventHandler
	RegisterFilter       = runtimepkg.RegisterFilter
	RegisterProjection   = runtimepkg.RegisterProjection

	LoadConfig     = configpkg.Load
	ParseConfig    = configpkg.Parse
	ValidateConfig = configpkg.ValidateConfig

	NewEventType        = events.NewEventType
	NewExecutionContext = ecpkg.New
	ParseVersion        = ecpkg.ParseVersion
	FilterByEventTypes  = filters.ByEventTypes
	ReplaceReadModel    = projections.ReplaceWith
	DeleteReadModel     = projections.DeleteReadModel

	NewTenantProviders = tenancy.NewProviders
	SharedServices     = tenancy.Shared

	DefaultMiddlewares  = processing.DefaultMiddlewares
	RecovererMiddleware = processing.RecovererMiddleware
	LoggingMiddleware   = processing.LoggingMiddleware
	TracingMiddleware   = processing.TracingMiddleware
	HooksMiddleware     = processing.HooksMiddleware
	LoggingHooks        = processing.LoggingHooks
	MetricsHooks        = processing.MetricsHooks
	AlertingHooks       = processing.AlertingHooks

	// Pub/sub transports used when RuntimeTransport names a broker.
	DefaultTransportRegistry = newtransport.DefaultRegistry
	RegisterTransport        = newtransport.Register
	GetCapabilities          = newtransport.GetCapabilities
	NewTransportFactory      = transportpkg.NewFactory

	Marshal       = jsoncodec.Marshal
	MarshalIndent = jsoncodec.MarshalIndent
	Unmarshal     = jsoncodec.Unmarshal

	ErrConfigRequired      = errspkg.ErrConfigRequired
	ErrLoggerRequired      = errspkg.ErrLoggerRequired
	ErrClientRequired      = errspkg.ErrClientRequired
	ErrClientStarted       = errspkg.ErrClientStarted
	ErrClientClosed        = errspkg.ErrClientClosed
	ErrDuplicateProcessor  = errspkg.ErrDuplicateProcessor
	ErrHandlerRequired     = errspkg.ErrHandlerRequired
	ErrProcessorIDRequired = errspkg.ErrProcessorIDRequired
	ErrUnknownTransport    = errspkg.ErrUnknownTransport
	ErrPingTimedOut        = errspkg.ErrPingTimedOut
	ErrCouldNotConnect     = errspkg.ErrCouldNotConnect
	ErrCoordinatorSealed   = errspkg.ErrCoordinatorSealed
	ErrDeleteReadModel     = projections.ErrDelete

	NewSlogServiceLogger = loggingpkg.NewSlogServiceLogger
	NewNopLogger         = loggingpkg.NewNopLogger

	CreateULID = idspkg.CreateULID
)

// Filter kinds.
const (
	PrivateFilter     = filters.Private
	PartitionedFilter = filters.Partitioned
	PublicFilter      = filters.Public
)

// Projection key selectors.
const (
	KeyFromEventSource = projections.KeyFromEventSource
	KeyFromPartition   = projections.KeyFromPartition
	KeyFromProperty    = projections.KeyFromProperty
)

// Processor states reported by Client.Processors.
const (
	StatePending      = processing.StatePending
	StateConnecting   = processing.StateConnecting
	StateRegistered   = processing.StateRegistered
	StateReconnecting = processing.StateReconnecting
	StateStopped      = processing.StateStopped
	StateFailed       = processing.StateFailed
)

// Error category constants for ErrorClassifier.
const (
	ErrorCategoryNone       = runtimepkg.ErrorCategoryNone
	ErrorCategoryValidation = runtimepkg.ErrorCategoryValidation
	ErrorCategoryTransport  = runtimepkg.ErrorCategoryTransport
	ErrorCategoryDownstream = runtimepkg.ErrorCategoryDownstream
	ErrorCategoryOther      = runtimepkg.ErrorCategoryOther
)

// On adapts a callback taking JSON decoded event content into a HandleFunc.
func On[T any](fn func(ctx context.Context, event T, ectx EventContext) error) HandleFunc {
	return eventhandlers.On(fn)
}

// OnProto adapts a callback taking protojson decoded event content. A nil
// validator skips validation.
func OnProto[T proto.Message](fn func(ctx context.Context, event T, ectx EventContext) error, validator ProtoValidator) HandleFunc {
	return eventhandlers.OnProto(fn, validator)
}

// OnJSON adapts a projection callback working on decoded state and event.
func OnJSON[S, E any](fn func(ctx context.Context, state S, event E, pctx ProjectionContext) (S, error)) ProjectionFunc {
	return projections.OnJSON(fn)
}

func DecodeJSON[T any](content []byte) (T, error) {
	return handlerpkg.DecodeJSON[T](content)
}

// Resolve looks up a named tenant scoped service and asserts its type.
func Resolve[T any](provider ServiceProvider, name string) (T, error) {
	return tenancy.Resolve[T](provider, name)
}

func NewEntryServiceLogger[T EntryLoggerAdapter[T]](entry T) ServiceLogger {
	return loggingpkg.NewEntryServiceLogger(entry)
}
