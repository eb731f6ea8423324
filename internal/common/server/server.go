package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/AlibekovAA/teamspace-realtime/internal/common/constants"
	"github.com/AlibekovAA/teamspace-realtime/internal/common/logger"
)

type ShutdownHook func(ctx context.Context) error

func StartWithGracefulShutdown(
	server *http.Server,
	log *logger.Logger,
	serviceName string,
) {
	StartWithGracefulShutdownAndHooks(server, log, serviceName, nil)
}

// StartWithGracefulShutdownAndHooks serves until SIGINT or SIGTERM, then runs
// the hooks in order before shutting the server down. A nil server skips the
// listener and only waits for the signal.
func StartWithGracefulShutdownAndHooks(
	server *http.Server,
	log *logger.Logger,
	serviceName string,
	hooks []ShutdownHook,
) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := ServeUntilDone(ctx, server, log, serviceName, hooks); err != nil {
		log.Fatalf("failed to start %s service: %v", serviceName, err)
	}
}

// ServeUntilDone blocks until ctx is cancelled or the listener fails. Hooks run
// in both cases.
func ServeUntilDone(
	ctx context.Context,
	server *http.Server,
	log *logger.Logger,
	serviceName string,
	hooks []ShutdownHook,
) error {
	serveErr := make(chan error, 1)
	if server != nil {
		ln, err := net.Listen("tcp", server.Addr)
		if err != nil {
			return err
		}
		log.Infof("%s service listening on %s", serviceName, ln.Addr())
		go func() {
			if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				serveErr <- err
			}
		}()
	}

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-serveErr:
		log.Errorf("%s service listener failed: %v", serviceName, runErr)
	}

	log.Infof("shutting down %s service...", serviceName)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), constants.ShutdownTimeout)
	defer shutdownCancel()

	drainCtx, drainCancel := context.WithTimeout(shutdownCtx, constants.DrainTimeout)
	defer drainCancel()

	if server != nil {
		log.Infof("%s service: stopping accepting new connections (drain period: %v)", serviceName, constants.DrainTimeout)
		server.SetKeepAlivesEnabled(false)
	}

	if len(hooks) > 0 {
		log.Infof("%s service: executing shutdown hooks", serviceName)
		for i, hook := range hooks {
			if err := hook(drainCtx); err != nil {
				log.Errorf("%s service: shutdown hook %d failed: %v", serviceName, i, err)
			}
		}
	}

	if server == nil {
		log.Infof("%s service stopped gracefully", serviceName)
		return runErr
	}

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Errorf("%s service forced to shutdown: %v", serviceName, err)
	} else {
		log.Infof("%s service stopped gracefully", serviceName)
	}
	return runErr
}
