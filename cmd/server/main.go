package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/DoyleJ11/duel/internal/auth"
	"github.com/DoyleJ11/duel/internal/config"
	"github.com/DoyleJ11/duel/internal/httpapi"
	"github.com/DoyleJ11/duel/internal/hub"
	"github.com/DoyleJ11/duel/internal/lobby"
	"github.com/DoyleJ11/duel/internal/logging"
	"github.com/DoyleJ11/duel/internal/metrics"
	"github.com/DoyleJ11/duel/internal/storage"
)

func main() {
	issue := flag.String("issue", "", "print a bearer token for `player` and exit")
	flag.Parse()

	cfg, err := config.LoadServer()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	tokens, err := auth.NewTokens(cfg.JWTSecret, cfg.TokenTTL, nil)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if *issue != "" {
		tok, err := tokens.Issue(*issue)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		fmt.Println(tok)
		return
	}

	log, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	if err := run(cfg, tokens, log); err != nil {
		log.Fatal("server stopped", zap.Error(err))
	}
}

func run(cfg config.Server, tokens *auth.Tokens, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	archive, err := storage.Open(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer func() { _ = archive.Close() }()

	m := metrics.New()
	h := hub.NewHub(ctx, hub.Options{
		Lobby: lobby.Options{
			Turn:     cfg.TurnDuration,
			Recorder: archive,
			Metrics:  m,
			Log:      log,
		},
	})

	// Build the router *with* the hub injected
	srv := &http.Server{
		Addr: cfg.Addr,
		Handler: httpapi.SetupRoutes(httpapi.Deps{
			Hub:     h,
			Archive: archive,
			Tokens:  tokens,
			Metrics: m,
			Log:     log,
		}),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("listening", zap.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		select {
		case h.Inbox() <- hub.ShutdownHub{}:
		case <-h.Done():
		}
		<-h.Done()
		return err
	})
	return g.Wait()
}
