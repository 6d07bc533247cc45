package server

import (
	"context"
	"path/filepath"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/teamdesk/messaging/internal/config"
	"github.com/teamdesk/messaging/internal/lock"
	"github.com/teamdesk/messaging/internal/logging"
	"github.com/teamdesk/messaging/internal/presence"
	"github.com/teamdesk/messaging/internal/store"
)

// Params holds the resolved configuration passed to the fx module.
type Params struct {
	Config *config.Config
}

// Module returns the fx module for chatd, composing all providers and
// lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("chatd",
		fx.Supply(p),
		fx.Provide(
			provideLogger,
			provideGuard,
			provideStore,
			provideRecorder,
			provideHandler,
			provideServer,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideLogger(p Params) (*zap.Logger, error) {
	return logging.New(p.Config.Server.LogPath, "chatd")
}

func provideGuard(p Params, logger *zap.Logger) (*lock.Guard, error) {
	dataDir := filepath.Dir(p.Config.Server.DBPath)
	logger.Info("locking data directory", zap.String("dir", dataDir))
	return lock.Hold(dataDir)
}

func provideStore(p Params, _ *lock.Guard, logger *zap.Logger) (*store.SQLite, error) {
	st, err := store.OpenSQLite(p.Config.Server.DBPath)
	if err != nil {
		return nil, err
	}
	logger.Info("store initialized", zap.String("path", p.Config.Server.DBPath))
	return st, nil
}

func provideRecorder() *presence.Recorder {
	return presence.NewRecorder()
}

func provideHandler(st *store.SQLite, rec *presence.Recorder, logger *zap.Logger) *Handler {
	return NewHandler(st, rec, logger)
}

func provideServer(p Params, h *Handler, logger *zap.Logger) (*Server, error) {
	return NewServer(p.Config.Server.Listen, h, logger)
}

func registerLifecycle(lc fx.Lifecycle, p Params, srv *Server, st *store.SQLite, g *lock.Guard, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			// Seed the directory from config before serving.
			for _, u := range p.Config.Users {
				if err := st.UpsertUser(ctx, u.ID, u.Name, u.Avatar); err != nil {
					return err
				}
			}

			go func() {
				if err := srv.Start(); err != nil {
					logger.Error("http server error", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			srv.Stop(ctx)
			if err := st.Close(); err != nil {
				logger.Warn("error closing store", zap.Error(err))
			}
			if err := g.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("chatd stopped")
			return nil
		},
	})
}
