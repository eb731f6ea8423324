package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/AlibekovAA/teamspace-realtime/internal/common/logger"
)

func TestServeUntilDone_RunsHooksInOrder(t *testing.T) {
	srv := NewServer(DefaultServerConfig("127.0.0.1:0"), http.NotFoundHandler())

	var order []int
	hooks := []ShutdownHook{
		func(ctx context.Context) error { order = append(order, 1); return errors.New("hook failed") },
		func(ctx context.Context) error { order = append(order, 2); return nil },
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- ServeUntilDone(ctx, srv, logger.Discard(), "test", hooks) }()

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("expected clean shutdown, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}

	if len(order) != 2 || order[0] != 1 || order[1] != 2 {
		t.Errorf("expected hooks [1 2] despite failure, got %v", order)
	}
}

func TestServeUntilDone_NilServer(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := ServeUntilDone(ctx, nil, logger.Discard(), "test", []ShutdownHook{
		func(ctx context.Context) error { called = true; return nil },
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !called {
		t.Error("expected hook to run without a listener")
	}
}

func TestServeUntilDone_ListenFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen failed: %v", err)
	}
	defer ln.Close()

	srv := NewServer(DefaultServerConfig(ln.Addr().String()), http.NotFoundHandler())
	if err := ServeUntilDone(context.Background(), srv, logger.Discard(), "test", nil); err == nil {
		t.Fatal("expected address-in-use error")
	}
}
