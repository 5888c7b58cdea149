package lifecycle

import (
	"context"
	"errors"
	"net"
	"net/http"

	sserr "github.com/StricklySoft/storefront/pkg/errors"
)

// ServeFunc runs an accept loop on ln until the server is shut down. It
// returns nil after a clean shutdown.
type ServeFunc func(ln net.Listener) error

// WithServer appends a component that listens on addr when started and
// runs serve in its own goroutine. An accept loop that returns an error
// fails the service, which makes [Service.Run] shut down. shutdown is the
// component's stop hook.
func (b *Builder) WithServer(name, addr string, serve ServeFunc, shutdown Hook) *Builder {
	ref := b.built
	return b.WithComponent(Component{
		Name: name,
		Start: func(ctx context.Context) error {
			ln, err := net.Listen("tcp", addr)
			if err != nil {
				return sserr.Wrapf(err, sserr.CodeUnavailable, "lifecycle: %s failed to listen on %s", name, addr)
			}
			ref.svc.logger.InfoContext(ctx, "lifecycle: server listening", "component", name, "address", ln.Addr().String())
			go func() {
				if err := serve(ln); err != nil {
					ref.svc.Fail(sserr.Wrapf(err, sserr.CodeInternal, "lifecycle: %s stopped serving", name))
				}
			}()
			return nil
		},
		Stop: shutdown,
	})
}

// WithHTTPServer is [Builder.WithServer] for srv listening on srv.Addr.
// Stopping waits for in-flight requests until the stop context expires.
func (b *Builder) WithHTTPServer(name string, srv *http.Server) *Builder {
	serve := func(ln net.Listener) error {
		if err := srv.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
	return b.WithServer(name, srv.Addr, serve, srv.Shutdown)
}
