package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/openmined/cloudsync/internal/db"
	"github.com/openmined/cloudsync/internal/server/files"
	"github.com/openmined/cloudsync/internal/server/handlers/ws"
)

const shutdownTimeout = 5 * time.Second

type Server struct {
	config *Config
	server *http.Server
	hub    *ws.WebsocketHub
	svc    *Services
	db     *sqlx.DB
}

func New(config *Config) (*Server, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	conn, err := db.NewSqliteDB(
		db.WithPath(config.DBPath),
		db.WithMaxOpenConns(1),
		db.WithSchema(files.Schema),
	)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	svc := NewServices(config, conn)
	hub := ws.NewHub()

	handler, err := SetupRoutes(config, svc, hub)
	if err != nil {
		conn.Close()
		return nil, err
	}

	return &Server{
		config: config,
		hub:    hub,
		svc:    svc,
		db:     conn,
		server: &http.Server{
			Addr:              config.HTTP.Addr,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}, nil
}

// Start serves until ctx is done or the listener fails.
func (s *Server) Start(ctx context.Context) error {
	slog.Info("cloudsync server start", "addr", s.config.HTTP.Addr, "auth", s.svc.Auth.IsEnabled())
	defer slog.Info("cloudsync server stop")

	ln, err := net.Listen("tcp", s.config.HTTP.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.config.HTTP.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve runs the server on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	go s.hub.Run(ctx)

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.runHttpServer(ln)
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server start error", "error", err)
			s.Stop(context.Background())
			return err
		}
		return nil
	case <-ctx.Done():
		slog.Info("cloudsync shutdown signal")
	}

	if err := s.Stop(context.Background()); err != nil {
		slog.Error("cloudsync shutdown error", "error", err)
		return err
	}
	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()

	s.hub.Shutdown(shutdownCtx)

	var errs []error
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("http shutdown: %w", err))
	}
	if err := s.db.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close database: %w", err))
	}
	return errors.Join(errs...)
}

func (s *Server) runHttpServer(ln net.Listener) error {
	if s.config.HTTP.TLSEnabled() {
		slog.Info("server start tls", "addr", ln.Addr(), "cert", s.config.HTTP.CertFile, "key", s.config.HTTP.KeyFile)
		return s.server.ServeTLS(ln, s.config.HTTP.CertFile, s.config.HTTP.KeyFile)
	}
	slog.Info("server start http", "addr", ln.Addr())
	return s.server.Serve(ln)
}
