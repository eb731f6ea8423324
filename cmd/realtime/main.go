package main

import (
	"context"
	"expvar"
	"fmt"
	"net/http"
	"os"
	"sync"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/pflag"

	"github.com/AlibekovAA/teamspace-realtime/internal/auth/credential"
	"github.com/AlibekovAA/teamspace-realtime/internal/chat/store"
	"github.com/AlibekovAA/teamspace-realtime/internal/common/clock"
	"github.com/AlibekovAA/teamspace-realtime/internal/common/config"
	commonhttp "github.com/AlibekovAA/teamspace-realtime/internal/common/http"
	"github.com/AlibekovAA/teamspace-realtime/internal/common/logger"
	srv "github.com/AlibekovAA/teamspace-realtime/internal/common/server"
	"github.com/AlibekovAA/teamspace-realtime/internal/realtime/dispatcher"
	"github.com/AlibekovAA/teamspace-realtime/internal/realtime/event"
	"github.com/AlibekovAA/teamspace-realtime/internal/realtime/session"
	"github.com/AlibekovAA/teamspace-realtime/internal/realtime/websocket"
)

type managerProbe struct {
	m *websocket.Manager
}

func (p managerProbe) State() string          { return p.m.State().String() }
func (p managerProbe) IsConnected() bool      { return p.m.IsConnected() }
func (p managerProbe) ReconnectAttempts() int { return p.m.ReconnectAttempts() }

func main() {
	chatID := pflag.Int64("chat", 0, "chat id to join")
	status := pflag.String("status", "", "presence status to announce on every connect (online, away, busy)")
	metricsAddr := pflag.String("metrics-addr", "", "override REALTIME_METRICS_ADDR; empty disables the ops listener when the env is empty too")
	pflag.Parse()

	cfg, err := config.LoadRealtimeConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *metricsAddr != "" {
		cfg.MetricsAddr = *metricsAddr
	}

	log, err := logger.New(cfg.LogDir, "realtime", cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	tokens := credential.NewJWTSource(credential.NewStaticSource(cfg.AccessToken), nil)
	if claims, err := tokens.Claims(); err == nil {
		log.WithFields(context.Background(), logger.Fields{
			"user_id": claims.UserID,
			"action":  "credential_loaded",
		}).Infof("using access token for %s", claims.Username)
	}

	d := dispatcher.New(log)
	dialer := websocket.NewGorillaDialer(websocket.DialerConfig{
		HandshakeTimeout: cfg.HandshakeTimeout,
		WriteWait:        cfg.WriteWait,
		MaxMessageSize:   cfg.MaxMessageSize,
	})
	manager := websocket.NewManager(log, dialer, tokens, d, clock.NewRealClock(), websocket.ManagerConfig{
		Endpoint:             cfg.Endpoint(),
		HeartbeatInterval:    cfg.HeartbeatInterval,
		ReconnectDelay:       cfg.ReconnectDelay,
		MaxReconnectAttempts: cfg.MaxReconnectAttempts,
	})

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		manager.Run(ctx)
	}()

	d.Subscribe(event.TypeWildcard, func(ev event.Event) error {
		log.WithFields(context.Background(), logger.Fields{
			"event_type": string(ev.Type),
			"action":     "event_received",
		}).Debugf("event: %s", ev.Bytes())
		return nil
	})

	if *status != "" {
		d.Subscribe(event.TypeConnected, func(ev event.Event) error {
			if !ev.Local() {
				return nil
			}
			manager.UpdateStatus(*status)
			return nil
		})
	}

	var adapter *session.ChatAdapter
	if *chatID != 0 {
		messages := store.NewMemoryStore()
		adapter = session.NewChatAdapter(log, manager, d, *chatID, messages)
		d.Subscribe(event.TypeNewMessage, func(ev event.Event) error {
			if id, ok := ev.ChatID(); !ok || id != *chatID {
				return nil
			}
			var p event.NewMessagePayload
			if err := ev.Decode(&p); err != nil {
				return err
			}
			log.WithFields(context.Background(), logger.Fields{
				"chat_id":   *chatID,
				"sender_id": p.Message.SenderID,
				"action":    "message_received",
			}).Infof("[%d] %s (%d stored)", p.Message.SenderID, p.Message.Content, messages.Count(*chatID))
			return nil
		})
		if err := adapter.Activate(); err != nil {
			log.Fatalf("failed to activate chat %d: %v", *chatID, err)
		}
	} else {
		manager.Connect()
	}

	var server *http.Server
	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.HandleFunc("/health", commonhttp.HealthHandler(log, managerProbe{m: manager}))
		mux.Handle("/metrics", promhttp.Handler())
		mux.Handle("/debug/vars", expvar.Handler())
		server = srv.NewServer(srv.DefaultServerConfig(cfg.MetricsAddr), commonhttp.BuildOpsHandler(log, mux))
	}

	hooks := []srv.ShutdownHook{
		func(ctx context.Context) error {
			if adapter != nil {
				adapter.Deactivate()
			}
			return nil
		},
		func(ctx context.Context) error {
			manager.Shutdown()
			return nil
		},
	}

	srv.StartWithGracefulShutdownAndHooks(server, log, "realtime", hooks)

	cancel()
	wg.Wait()
}
