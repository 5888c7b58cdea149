package lifecycle

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	sserr "github.com/StricklySoft/storefront/pkg/errors"
	"github.com/StricklySoft/storefront/pkg/httpx"
)

const tracerName = "github.com/StricklySoft/storefront/pkg/lifecycle"

// DefaultShutdownTimeout bounds [Service.Run]'s final Stop.
const DefaultShutdownTimeout = 10 * time.Second

// StateChangeHandler is called on every transition, under the service's
// state mutex. It must not call lifecycle methods on the same service.
// Panics are recovered and logged.
type StateChangeHandler func(old, new State)

// Hook is a component's start, stop or health function.
type Hook func(ctx context.Context) error

// Component is one part of a service process. Start hooks run in
// registration order and stop hooks in reverse, so a component may rely on
// everything registered before it. Start must not block: servers start
// their accept loop in a goroutine and report an unexpected exit with
// [Service.Fail].
type Component struct {
	Name  string
	Start Hook
	Stop  Hook
	// Check is run by [Service.Health] while the service is running.
	Check Hook
}

// Info is a point-in-time snapshot of a service, served by the health
// endpoint.
type Info struct {
	Name      string        `json:"name"`
	Version   string        `json:"version"`
	State     State         `json:"state"`
	StartedAt *time.Time    `json:"started_at,omitempty"`
	Uptime    time.Duration `json:"uptime,omitempty"`
}

// Service owns the lifecycle of one process. It is safe for concurrent
// use. Build one with [Builder].
type Service struct {
	name    string
	version string

	mu        sync.RWMutex
	state     State
	startedAt *time.Time
	started   int // components whose Start succeeded

	failOnce *sync.Once
	failed   chan error

	components      []Component
	stateHandlers   []StateChangeHandler
	shutdownTimeout time.Duration

	tracer trace.Tracer
	logger *slog.Logger
}

// Name returns the service name.
func (s *Service) Name() string {
	return s.name
}

// State returns the current state.
func (s *Service) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Info returns a snapshot of the service.
func (s *Service) Info() Info {
	s.mu.RLock()
	defer s.mu.RUnlock()

	info := Info{Name: s.name, Version: s.version, State: s.state}
	if s.startedAt != nil && s.state == StateRunning {
		t := *s.startedAt
		info.StartedAt = &t
		info.Uptime = time.Since(t)
	}
	return info
}

// Health returns nil when the service is running and every component
// check passes. Failures carry [sserr.CodeUnavailable].
func (s *Service) Health(ctx context.Context) error {
	if state := s.State(); state != StateRunning {
		return sserr.Newf(sserr.CodeUnavailable, "%s is not running, current state is %q", s.name, state)
	}
	for _, c := range s.components {
		if c.Check == nil {
			continue
		}
		if err := c.Check(ctx); err != nil {
			s.logger.WarnContext(ctx, "lifecycle: health check failed", "component", c.Name, "error", err)
			return sserr.Wrapf(err, sserr.CodeUnavailableDependency, "%s is unavailable", c.Name)
		}
	}
	return nil
}

// HealthHandler serves [Service.Health]: 200 with {"data": Info} when
// healthy, 503 otherwise.
func (s *Service) HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.Health(r.Context()); err != nil {
			httpx.WriteError(w, r, err)
			return
		}
		httpx.WriteData(w, http.StatusOK, s.Info())
	}
}

// SetState moves the service to next. Invalid transitions return a
// [sserr.CodeConflict] error.
func (s *Service) SetState(next State) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	old := s.state
	if !ValidTransition(old, next) {
		return sserr.Newf(sserr.CodeConflict, "lifecycle: invalid state transition from %q to %q", old, next)
	}
	s.state = next

	for _, h := range s.stateHandlers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					s.logger.Error("lifecycle: state change handler panicked",
						"panic", r,
						"service", s.name,
						"old_state", string(old),
						"new_state", string(next),
					)
				}
			}()
			h(old, next)
		}()
	}
	return nil
}

// Start runs every component's start hook in order. When one fails, the
// components already started are stopped in reverse order and the service
// moves to [StateFailed].
func (s *Service) Start(ctx context.Context) (err error) {
	ctx, span := s.startSpan(ctx, "lifecycle.Start")
	defer func() { finishSpan(span, err) }()

	if err := ctx.Err(); err != nil {
		return sserr.Wrap(err, sserr.CodeTimeout, "lifecycle: start canceled before execution")
	}
	if err := s.SetState(StateStarting); err != nil {
		return err
	}
	s.mu.Lock()
	s.started = 0
	s.failed = make(chan error, 1)
	s.failOnce = &sync.Once{}
	s.mu.Unlock()

	s.logger.InfoContext(ctx, "lifecycle: starting service", "service", s.name, "version", s.version)

	for i, c := range s.components {
		if c.Start != nil {
			if startErr := c.Start(ctx); startErr != nil {
				s.logger.ErrorContext(ctx, "lifecycle: component failed to start",
					"service", s.name, "component", c.Name, "error", startErr)
				s.stopComponents(ctx, i)
				_ = s.SetState(StateFailed)
				return sserr.Wrapf(startErr, sserr.CodeInternal, "lifecycle: %s failed to start", c.Name)
			}
		}
		s.mu.Lock()
		s.started = i + 1
		s.mu.Unlock()
	}

	if err := s.SetState(StateRunning); err != nil {
		return err
	}
	now := time.Now().UTC()
	s.mu.Lock()
	s.startedAt = &now
	s.mu.Unlock()

	s.logger.InfoContext(ctx, "lifecycle: service started", "service", s.name)
	return nil
}

// Stop runs the stop hooks of started components in reverse order. Every
// hook runs even if an earlier one fails; the failures are joined and the
// service moves to [StateFailed]. Stopping a service that is not running
// or starting is a no-op.
func (s *Service) Stop(ctx context.Context) (err error) {
	ctx, span := s.startSpan(ctx, "lifecycle.Stop")
	defer func() { finishSpan(span, err) }()

	switch s.State() {
	case StateRunning, StateStarting:
	default:
		return nil
	}
	if err := s.SetState(StateStopping); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "lifecycle: stopping service", "service", s.name)

	s.mu.RLock()
	started := s.started
	s.mu.RUnlock()

	if stopErr := s.stopComponents(ctx, started); stopErr != nil {
		_ = s.SetState(StateFailed)
		return sserr.Wrap(stopErr, sserr.CodeInternal, "lifecycle: stop failed")
	}

	if err := s.SetState(StateStopped); err != nil {
		return err
	}
	s.mu.Lock()
	s.startedAt = nil
	s.started = 0
	s.mu.Unlock()

	s.logger.InfoContext(ctx, "lifecycle: service stopped", "service", s.name)
	return nil
}

// stopComponents stops the first n components in reverse order.
func (s *Service) stopComponents(ctx context.Context, n int) error {
	var errs []error
	for i := n - 1; i >= 0; i-- {
		c := s.components[i]
		if c.Stop == nil {
			continue
		}
		if err := c.Stop(ctx); err != nil {
			s.logger.ErrorContext(ctx, "lifecycle: component failed to stop",
				"service", s.name, "component", c.Name, "error", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Fail reports that a running component died, for example an HTTP server
// whose accept loop returned. [Service.Run] returns err after stopping the
// service. Only the first report is kept.
func (s *Service) Fail(err error) {
	s.mu.RLock()
	failed, once := s.failed, s.failOnce
	s.mu.RUnlock()
	if failed == nil || err == nil {
		return
	}
	once.Do(func() { failed <- err })
}

// Run starts the service, waits until ctx is done or a component fails,
// and stops the service within the shutdown timeout. It returns the
// component failure, or the start or stop error.
func (s *Service) Run(ctx context.Context) error {
	if err := s.Start(ctx); err != nil {
		return err
	}

	s.mu.RLock()
	failed := s.failed
	s.mu.RUnlock()

	var runErr error
	select {
	case <-ctx.Done():
		s.logger.Info("lifecycle: shutdown requested", "service", s.name)
	case runErr = <-failed:
		s.logger.Error("lifecycle: component failed", "service", s.name, "error", runErr)
	}

	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.shutdownTimeout)
	defer cancel()
	stopErr := s.Stop(stopCtx)
	if runErr != nil {
		return errors.Join(runErr, stopErr)
	}
	return stopErr
}

func (s *Service) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, name,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("service.name", s.name),
			attribute.String("service.version", s.version),
		),
	)
}

func finishSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
