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

	"github.com/Gotyqqq/Rucord/internal/gateway"
	"github.com/Gotyqqq/Rucord/internal/server/middleware"
	"github.com/Gotyqqq/Rucord/pkg/config"
	"github.com/Gotyqqq/Rucord/pkg/state"
	"github.com/Gotyqqq/Rucord/pkg/transport"
)

type App struct {
	logger       *slog.Logger
	stateManager state.Manager
	gateway      *gateway.Gateway
	wg           sync.WaitGroup
	http         *http.Server
	config       *config.Config

	ctx context.Context
}

func NewApp(logger *slog.Logger, rootCtx context.Context, cfg *config.Config, stateManager state.Manager, gw *gateway.Gateway) *App {
	app := &App{
		logger:       logger,
		stateManager: stateManager,
		gateway:      gw,
		config:       cfg,
		ctx:          rootCtx,
	}

	mux := http.NewServeMux()
	upgradeHandler := http.HandlerFunc(app.upgradeHandler)
	connCounter := middleware.UserConnectionCounter(stateManager.UserSessionCount)
	// Cycler closes the oldest session so the new connection can register.
	connCycler := func(userID int64) {
		oldest, found := stateManager.OldestUserSession(userID)
		if found {
			logger.Info("Cycling connection: closing oldest",
				slog.Int64("userID", userID), slog.String("sessionID", oldest.ID.String()))
			oldest.Peer.Close(errors.New("connection cycled by new connection"))
		}
	}

	mux.Handle("/ws",
		middleware.Chain(upgradeHandler,
			middleware.RequestMetadataMiddleware(),
			middleware.NewRequestLogger(app.logger),
			middleware.NewAuthMiddleware(logger, app.config.Server.Auth.JWTSecret),
			middleware.NewConnectionLimiter(
				logger,
				connCounter,
				connCycler,
				app.config.Server.ConnectionLimit,
			),
		),
	)

	app.http = &http.Server{Addr: app.config.Server.Address, Handler: mux, BaseContext: func(l net.Listener) context.Context {
		return app.ctx
	}}

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
	reqMeta, _ := middleware.ReqMetadataFrom(r.Context())
	connLogger := a.logger.With(
		slog.String("remoteAddr", reqMeta.IP),
		slog.Int64("userID", reqMeta.UserID),
	)

	wsConn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		a.logger.Error("Failed to accept websocket connection", slog.Any("error", err))
		return
	}

	conn := transport.NewConnection(
		r.Context(),
		&a.wg,
		wsConn,
		transport.ConnectionConfig(a.config.Transport),
		a.gateway.HandleMessage,
		func(id uuid.UUID, closeErr error) {
			a.gateway.HandleDisconnect(id, closeErr)
		},
		a.logger,
	)

	if _, err := a.gateway.HandleConnect(r.Context(), conn, reqMeta.UserID, reqMeta.Username); err != nil {
		connLogger.Error("Failed to register session", slog.Any("error", err))
		conn.Close(err)
		return
	}

	connLogger.Info("User connection fully established", slog.String("username", reqMeta.Username))
	conn.Run()
	<-conn.Done()
}

// graceful shutdown sequence.
func (a *App) Shutdown() error {
	a.logger.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.http.Shutdown(shutdownCtx); err != nil {
		return err
	}

	// close all active WebSocket connections.
	a.logger.Info("Closing all active connections...")
	for _, sess := range a.stateManager.AllSessions() {
		sess.Peer.Close(errors.New("graceful shutdown"))
	}

	// wait for all connection goroutines to finish their cleanup.
	a.wg.Wait()
	a.logger.Info("Server shut down gracefully.")
	return nil
}
