package lifecycle

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	sserr "github.com/StricklySoft/storefront/pkg/errors"
)

// recorder collects hook invocations in order.
type recorder struct {
	mu    sync.Mutex
	calls []string
}

func (r *recorder) hook(name string, err error) Hook {
	return func(context.Context) error {
		r.mu.Lock()
		r.calls = append(r.calls, name)
		r.mu.Unlock()
		return err
	}
}

func (r *recorder) get() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

func mustBuild(t *testing.T, b *Builder) *Service {
	t.Helper()
	s, err := b.Build()
	require.NoError(t, err)
	return s
}

// ===========================================================================
// Builder Tests
// ===========================================================================

func TestBuilder_Validation(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		b    *Builder
	}{
		{"empty name", NewBuilder("", "1")},
		{"unnamed component", NewBuilder("svc", "1").WithComponent(Component{})},
		{"duplicate component", NewBuilder("svc", "1").
			WithComponent(Component{Name: "db"}).
			WithComponent(Component{Name: "db"})},
		{"negative timeout", NewBuilder("svc", "1").WithShutdownTimeout(-time.Second)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := tt.b.Build()
			assert.True(t, sserr.IsValidation(err), "got %v", err)
		})
	}
}

func TestBuilder_Defaults(t *testing.T) {
	t.Parallel()
	s := mustBuild(t, NewBuilder("customers", "1.0.0"))
	assert.Equal(t, "customers", s.Name())
	assert.Equal(t, StateUnknown, s.State())
	assert.Equal(t, DefaultShutdownTimeout, s.shutdownTimeout)
}

// ===========================================================================
// Start / Stop Tests
// ===========================================================================

func TestService_StartStopOrder(t *testing.T) {
	t.Parallel()
	rec := &recorder{}
	s := mustBuild(t, NewBuilder("svc", "1").
		WithComponent(Component{Name: "db", Start: rec.hook("start db", nil), Stop: rec.hook("stop db", nil)}).
		WithComponent(Component{Name: "rpc", Start: rec.hook("start rpc", nil), Stop: rec.hook("stop rpc", nil)}).
		WithComponent(Component{Name: "http", Start: rec.hook("start http", nil), Stop: rec.hook("stop http", nil)}))

	require.NoError(t, s.Start(context.Background()))
	assert.Equal(t, StateRunning, s.State())
	require.NoError(t, s.Stop(context.Background()))
	assert.Equal(t, StateStopped, s.State())

	assert.Equal(t, []string{
		"start db", "start rpc", "start http",
		"stop http", "stop rpc", "stop db",
	}, rec.get())
}

func TestService_StartFailureRollsBack(t *testing.T) {
	t.Parallel()
	rec := &recorder{}
	s := mustBuild(t, NewBuilder("svc", "1").
		WithComponent(Component{Name: "db", Start: rec.hook("start db", nil), Stop: rec.hook("stop db", nil)}).
		WithComponent(Component{Name: "rpc", Start: rec.hook("start rpc", errors.New("bind: address in use")), Stop: rec.hook("stop rpc", nil)}).
		WithComponent(Component{Name: "http", Start: rec.hook("start http", nil), Stop: rec.hook("stop http", nil)}))

	err := s.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rpc failed to start")
	assert.Equal(t, StateFailed, s.State())
	assert.Equal(t, []string{"start db", "start rpc", "stop db"}, rec.get())

	// A failed service can be restarted.
	rec.calls = nil
	s.components[1].Start = rec.hook("start rpc", nil)
	require.NoError(t, s.Start(context.Background()))
	assert.Equal(t, StateRunning, s.State())
}

func TestService_StopJoinsErrors(t *testing.T) {
	t.Parallel()
	rec := &recorder{}
	s := mustBuild(t, NewBuilder("svc", "1").
		WithComponent(Component{Name: "db", Stop: rec.hook("stop db", nil)}).
		WithComponent(Component{Name: "http", Stop: rec.hook("stop http", errors.New("shutdown timed out"))}))

	require.NoError(t, s.Start(context.Background()))
	err := s.Stop(context.Background())
	require.Error(t, err)
	assert.Equal(t, StateFailed, s.State())
	assert.Equal(t, []string{"stop http", "stop db"}, rec.get(), "every hook runs")
}

func TestService_StopIsIdempotent(t *testing.T) {
	t.Parallel()
	s := mustBuild(t, NewBuilder("svc", "1"))
	assert.NoError(t, s.Stop(context.Background()), "never started")

	require.NoError(t, s.Start(context.Background()))
	require.NoError(t, s.Stop(context.Background()))
	assert.NoError(t, s.Stop(context.Background()))
	assert.Equal(t, StateStopped, s.State())
}

func TestService_StartTwiceConflicts(t *testing.T) {
	t.Parallel()
	s := mustBuild(t, NewBuilder("svc", "1"))
	require.NoError(t, s.Start(context.Background()))
	err := s.Start(context.Background())
	assert.True(t, sserr.HasCode(err, sserr.CodeConflict))
}

func TestService_StartCanceled(t *testing.T) {
	t.Parallel()
	s := mustBuild(t, NewBuilder("svc", "1"))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := s.Start(ctx)
	assert.True(t, sserr.IsTimeout(err))
	assert.Equal(t, StateUnknown, s.State())
}

func TestService_StateHandlers(t *testing.T) {
	t.Parallel()
	var transitions []string
	s := mustBuild(t, NewBuilder("svc", "1").
		OnStateChange(func(old, next State) { transitions = append(transitions, old.String()+">"+next.String()) }).
		OnStateChange(func(State, State) { panic("observer bug") }))

	require.NoError(t, s.Start(context.Background()))
	require.NoError(t, s.Stop(context.Background()))
	assert.Equal(t, []string{
		"unknown>starting", "starting>running", "running>stopping", "stopping>stopped",
	}, transitions)
}

func TestService_Spans(t *testing.T) {
	t.Parallel()
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	s := mustBuild(t, NewBuilder("svc", "1").WithTracer(tp.Tracer("test")))
	require.NoError(t, s.Start(context.Background()))
	require.NoError(t, s.Stop(context.Background()))

	spans := exporter.GetSpans()
	require.Len(t, spans, 2)
	assert.Equal(t, "lifecycle.Start", spans[0].Name)
	assert.Equal(t, "lifecycle.Stop", spans[1].Name)
}

// ===========================================================================
// Health Tests
// ===========================================================================

func TestService_Health(t *testing.T) {
	t.Parallel()
	var dbErr error
	s := mustBuild(t, NewBuilder("svc", "1").
		WithComponent(Component{Name: "postgres", Check: func(context.Context) error { return dbErr }}))

	err := s.Health(context.Background())
	assert.True(t, sserr.IsUnavailable(err), "not running")

	require.NoError(t, s.Start(context.Background()))
	assert.NoError(t, s.Health(context.Background()))

	dbErr = errors.New("connection refused")
	err = s.Health(context.Background())
	assert.True(t, sserr.HasCode(err, sserr.CodeUnavailableDependency))
	assert.Contains(t, err.Error(), "postgres is unavailable")
}

func TestService_HealthHandler(t *testing.T) {
	t.Parallel()
	s := mustBuild(t, NewBuilder("svc", "2.1.0"))
	h := s.HealthHandler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	require.NoError(t, s.Start(context.Background()))
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Data Info `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "svc", body.Data.Name)
	assert.Equal(t, "2.1.0", body.Data.Version)
	assert.Equal(t, StateRunning, body.Data.State)
	assert.NotNil(t, body.Data.StartedAt)
}

// ===========================================================================
// Run Tests
// ===========================================================================

func TestService_RunStopsOnCancel(t *testing.T) {
	t.Parallel()
	rec := &recorder{}
	s := mustBuild(t, NewBuilder("svc", "1").
		WithComponent(Component{Name: "http", Start: rec.hook("start", nil), Stop: rec.hook("stop", nil)}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.Eventually(t, func() bool { return s.State() == StateRunning }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.Equal(t, StateStopped, s.State())
	assert.Equal(t, []string{"start", "stop"}, rec.get())
}

func TestService_RunReturnsComponentFailure(t *testing.T) {
	t.Parallel()
	s := mustBuild(t, NewBuilder("svc", "1"))
	serveErr := errors.New("http: Server closed unexpectedly")

	done := make(chan error, 1)
	go func() { done <- s.Run(context.Background()) }()
	require.Eventually(t, func() bool { return s.State() == StateRunning }, time.Second, 5*time.Millisecond)

	s.Fail(serveErr)
	s.Fail(errors.New("second report is dropped"))

	select {
	case err := <-done:
		assert.ErrorIs(t, err, serveErr)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after Fail")
	}
	assert.Equal(t, StateStopped, s.State())
}

func TestService_FailBeforeStartIsIgnored(t *testing.T) {
	t.Parallel()
	s := mustBuild(t, NewBuilder("svc", "1"))
	assert.NotPanics(t, func() { s.Fail(errors.New("early")) })
}
