package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/Leontarin/CareBell-sub000/internal/config"
	"github.com/Leontarin/CareBell-sub000/internal/logging"
	"github.com/Leontarin/CareBell-sub000/internal/server"
	"github.com/Leontarin/CareBell-sub000/internal/signaling"
	"github.com/Leontarin/CareBell-sub000/internal/store"
)

func main() {
	logging.Init()

	cfg, err := config.Load(config.Options{})
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Persistence is optional; the registry alone is authoritative for
	// live membership.
	var db *store.Store
	var roomStore signaling.RoomStore
	if cfg.MongoURI != "" {
		s, err := store.NewStore(ctx, cfg.MongoURI)
		if err != nil {
			slog.Error("store connect failed", "uri", cfg.MongoURI, "err", err)
			os.Exit(1)
		}
		defer s.Close(context.Background())
		db = s
		roomStore = s
		slog.Info("room persistence enabled")
	}

	registry := signaling.NewRegistry()
	router := signaling.NewRouter(registry, slog.Default())
	hub := signaling.NewHub(registry, router, roomStore, slog.Default())
	go hub.Run(ctx)

	srv := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: server.NewMux(hub, db),
	}

	go func() {
		<-ctx.Done()
		srv.Shutdown(context.Background())
	}()

	slog.Info("signaling server listening", "addr", cfg.ListenAddr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server exited", "err", err)
		os.Exit(1)
	}
}
