package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"clarity/internal/config"
	"clarity/internal/db"
	"clarity/internal/helper"
	"clarity/internal/syncservice"
)

func main() {
	configPath := flag.String("config", "./configs/config.yaml", "Path to the config file")
	addr := flag.String("addr", "", "Listen address, overrides sync.listen_addr")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Error loading config")
	}
	helper.SetupLogger(cfg.Log.Level, cfg.Log.Pretty)
	if *addr != "" {
		cfg.Sync.ListenAddr = *addr
	}
	if port := os.Getenv("PORT"); port != "" && *addr == "" {
		cfg.Sync.ListenAddr = ":" + port
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sqldb, err := db.ConnectDB(&cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("Error connecting to database")
	}
	bunDB := db.NewDB(sqldb, cfg.Database.Debug)
	defer bunDB.Close()

	store := syncservice.NewBunStore(bunDB)
	if err := store.InitSchema(ctx); err != nil {
		log.Fatal().Err(err).Msg("Error initializing sync schema")
	}

	srv := &http.Server{
		Addr:              cfg.Sync.ListenAddr,
		Handler:           syncservice.NewServer(store, syncservice.HeaderAuthenticator{Token: cfg.Sync.Token}).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Error shutting down sync server")
		}
	}()

	log.Info().Str("addr", srv.Addr).Msg("Sync service listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("Sync server error")
	}
}
