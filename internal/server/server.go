package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Hz-Lin/transcendence/internal/auth"
	"github.com/Hz-Lin/transcendence/internal/gateway"
	"github.com/Hz-Lin/transcendence/internal/metrics"
	"github.com/Hz-Lin/transcendence/internal/server/middleware"
	"github.com/Hz-Lin/transcendence/internal/store"
	"github.com/Hz-Lin/transcendence/pkg/config"
	"github.com/Hz-Lin/transcendence/pkg/game"
	"github.com/Hz-Lin/transcendence/pkg/state"
	"github.com/Hz-Lin/transcendence/pkg/transport"
)

// App wires the state components, the dispatcher and the HTTP surface
// together and owns the process lifecycle.
type App struct {
	logger     *slog.Logger
	registry   *state.ConnectionRegistry
	dispatcher *gateway.Dispatcher
	wg         sync.WaitGroup
	http       *http.Server
	config     *config.Config

	ctx context.Context
}

func NewApp(logger *slog.Logger, rootCtx context.Context, cfg *config.Config, st store.Store) *App {
	registry := state.NewConnectionRegistry(logger)
	channels := state.NewChannelMembership(logger)
	presence := state.NewPresenceTracker(registry, st, logger)
	games := game.NewBroker(registry, logger)

	promRegistry := prometheus.NewRegistry()
	m := metrics.New(promRegistry)

	dispatcher := gateway.NewDispatcher(registry, channels, presence, games, st, m, logger)
	verifier := auth.NewJWTVerifier(cfg.Server.Auth.JWTSecret)

	app := &App{
		logger:     logger,
		registry:   registry,
		dispatcher: dispatcher,
		config:     cfg,
		ctx:        rootCtx,
	}

	connCycler := func(userID int64) {
		oldest, found := registry.OldestConnectionOf(userID)
		if found {
			logger.Info("Cycling connection: closing oldest",
				slog.Int64("userID", userID),
				slog.String("connID", oldest.ID.String()),
			)
			oldest.Transport.Close(errors.New("connection cycled by new connection"))
		}
	}

	mux := http.NewServeMux()
	mux.Handle("/ws",
		middleware.Chain(http.HandlerFunc(app.upgradeHandler),
			middleware.RequestMetadataMiddleware(),
			middleware.NewRequestLogger(logger),
			middleware.NewAuthMiddleware(logger, verifier),
			middleware.NewConnectionLimiter(
				logger,
				registry.ConnectionCount,
				connCycler,
				cfg.Server.ConnectionLimit,
			),
		),
	)
	mux.Handle("/metrics", promhttp.HandlerFor(promRegistry, promhttp.HandlerOpts{}))

	app.http = &http.Server{
		Addr:    cfg.Server.Address,
		Handler: mux,
		BaseContext: func(l net.Listener) context.Context {
			return app.ctx
		},
	}
	return app
}

func (a *App) Run() error {
	go func() {
		a.logger.Info("Server starting", slog.String("addr", a.http.Addr))
		if err := a.http.ListenAndServe(); err != http.ErrServerClosed {
			a.logger.Error("HTTP server failed", slog.Any("error", err))
		}
	}()

	<-a.ctx.Done()
	return a.Shutdown()
}

func (a *App) upgradeHandler(w http.ResponseWriter, r *http.Request) {
	reqMeta, ok := middleware.ReqMetadataFrom(r.Context())
	if !ok {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	connLogger := a.logger.With(slog.String("remoteAddr", reqMeta.IP))

	wsConn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		a.logger.Error("Failed to accept websocket connection", slog.Any("error", err))
		return
	}

	// A connection that failed authentication gets the unauthorized notice
	// over the socket and is terminated without ever being registered.
	if !reqMeta.Authenticated {
		frame := gateway.Encode(gateway.EventUnauthorized, nil)
		writeCtx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		_ = wsConn.Write(writeCtx, websocket.MessageText, frame)
		cancel()
		wsConn.Close(websocket.StatusPolicyViolation, "authentication failed")
		connLogger.Warn("Connection refused: not authenticated")
		return
	}

	conn := transport.NewConnection(
		r.Context(),
		&a.wg,
		wsConn,
		transport.ConnectionConfig(a.config.Transport),
		a.logger,
	)
	stateConn := &state.Conn{
		ID:        conn.ID(),
		Transport: conn,
		CreatedAt: time.Now(),
	}

	conn.SetMessageHandler(a.dispatcher.HandleMessage)
	conn.SetCloseHandler(func(id uuid.UUID, err error) {
		a.dispatcher.HandleDisconnect(context.Background(), id)
	})

	if err := a.dispatcher.Register(r.Context(), stateConn, reqMeta.Identity); err != nil {
		connLogger.Error("Failed to register connection", slog.Any("error", err))
		conn.Close(err)
		return
	}

	connLogger.Info("User connection fully established",
		slog.Int64("userID", reqMeta.Identity.ID),
	)
	conn.Run()
	<-conn.Done()
}

// Shutdown runs the graceful shutdown sequence.
func (a *App) Shutdown() error {
	a.logger.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.http.Shutdown(shutdownCtx); err != nil {
		return err
	}

	a.logger.Info("Closing all active connections...")
	for _, conn := range a.registry.All() {
		conn.Transport.Close(errors.New("graceful shutdown"))
	}

	a.wg.Wait()
	a.logger.Info("Server shut down gracefully.")
	return nil
}
