package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/galamseywatch/fieldkit/internal/config"
	"github.com/galamseywatch/fieldkit/internal/interceptor"
	"github.com/galamseywatch/fieldkit/internal/logging"
	"github.com/galamseywatch/fieldkit/internal/store"
)

func main() {
	configPath := flag.String("config", "", "config file path")
	listenAddr := flag.String("listen", "", "listen address override")
	upstream := flag.String("upstream", "", "remote service base URL override")
	generation := flag.String("generation", "", "cache generation identity (defaults to a fresh id)")
	activate := flag.Bool("activate", false, "take control immediately, sweeping prior generations")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fatal(err)
	}
	if *listenAddr != "" {
		cfg.ListenAddr = *listenAddr
	}
	if *upstream != "" {
		cfg.RemoteBaseURL = *upstream
	}
	gen := *generation
	if gen == "" {
		gen = uuid.NewString()
	}

	log := logging.New()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cache, err := store.OpenCache(ctx, cfg.CachePath)
	if err != nil {
		fatal(err)
	}
	defer cache.Close() //nolint:errcheck

	srv, err := interceptor.NewServer(gen, cfg.RemoteBaseURL, cache, log)
	if err != nil {
		fatal(err)
	}
	if err := srv.Start(cfg.ListenAddr); err != nil {
		fatal(err)
	}
	log.WithField("addr", srv.Addr()).WithField("generation", gen).Info("interceptor listening")

	srv.Install(ctx)
	if *activate {
		if err := srv.Activate(ctx); err != nil {
			fatal(err)
		}
	}

	go srv.WatchConnectivity(ctx, cfg.SyncInterval)

	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("interceptor shutdown")
	}
}

func fatal(err error) {
	_, _ = fmt.Fprintf(os.Stderr, "fieldkitd: %v\n", err)
	os.Exit(1)
}
