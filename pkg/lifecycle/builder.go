package lifecycle

import (
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	sserr "github.com/StricklySoft/storefront/pkg/errors"
)

// Builder assembles a [Service].
//
//	svc, err := lifecycle.NewBuilder("customers", version).
//	    WithLogger(logger).
//	    WithComponent(lifecycle.Component{Name: "postgres", Stop: closeDB, Check: db.Health}).
//	    WithComponent(lifecycle.Component{Name: "http", Start: startHTTP, Stop: stopHTTP}).
//	    WithShutdownTimeout(cfg.ShutdownTimeout).
//	    Build()
type Builder struct {
	name            string
	version         string
	logger          *slog.Logger
	tracer          trace.Tracer
	components      []Component
	stateHandlers   []StateChangeHandler
	shutdownTimeout time.Duration

	// built receives the service so server components can report a dead
	// accept loop to it.
	built *serviceRef
}

type serviceRef struct {
	svc *Service
}

// NewBuilder starts a builder for a service called name.
func NewBuilder(name, version string) *Builder {
	return &Builder{name: name, version: version, built: &serviceRef{}}
}

// WithLogger sets the logger. Defaults to slog.Default().
func (b *Builder) WithLogger(logger *slog.Logger) *Builder {
	b.logger = logger
	return b
}

// WithTracer sets the tracer. Defaults to the global provider's tracer.
func (b *Builder) WithTracer(tracer trace.Tracer) *Builder {
	b.tracer = tracer
	return b
}

// WithComponent appends a component.
func (b *Builder) WithComponent(c Component) *Builder {
	b.components = append(b.components, c)
	return b
}

// OnStateChange registers a transition observer.
func (b *Builder) OnStateChange(h StateChangeHandler) *Builder {
	if h != nil {
		b.stateHandlers = append(b.stateHandlers, h)
	}
	return b
}

// WithShutdownTimeout bounds the Stop performed by [Service.Run].
func (b *Builder) WithShutdownTimeout(d time.Duration) *Builder {
	b.shutdownTimeout = d
	return b
}

// Build validates the settings and returns the service in [StateUnknown].
// A Builder builds one service.
func (b *Builder) Build() (*Service, error) {
	if b.name == "" {
		return nil, sserr.New(sserr.CodeValidation, "lifecycle: service name must not be empty")
	}
	if b.built.svc != nil {
		return nil, sserr.New(sserr.CodeConflict, "lifecycle: builder already built a service")
	}
	seen := make(map[string]bool, len(b.components))
	for _, c := range b.components {
		if c.Name == "" {
			return nil, sserr.New(sserr.CodeValidation, "lifecycle: component name must not be empty")
		}
		if seen[c.Name] {
			return nil, sserr.Newf(sserr.CodeValidation, "lifecycle: duplicate component %q", c.Name)
		}
		seen[c.Name] = true
	}
	if b.shutdownTimeout < 0 {
		return nil, sserr.New(sserr.CodeValidation, "lifecycle: shutdown timeout must not be negative")
	}

	s := &Service{
		name:            b.name,
		version:         b.version,
		state:           StateUnknown,
		components:      append([]Component(nil), b.components...),
		stateHandlers:   append([]StateChangeHandler(nil), b.stateHandlers...),
		shutdownTimeout: b.shutdownTimeout,
		tracer:          b.tracer,
		logger:          b.logger,
	}
	if s.shutdownTimeout == 0 {
		s.shutdownTimeout = DefaultShutdownTimeout
	}
	if s.tracer == nil {
		s.tracer = otel.Tracer(tracerName)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	b.built.svc = s
	return s, nil
}
