// ABOUTME: Fake SSE chat backend for local development and demos
// ABOUTME: Serves the streaming message endpoint and bot provider metadata

package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
)

func main() {
	addr := flag.String("addr", "localhost:8090", "Listen address")
	name := flag.String("name", "fake-bot", "Bot provider name reported by /metadata")
	delay := flag.Duration("delay", 40*time.Millisecond, "Delay between streamed deltas")
	failFirst := flag.Int("fail-first", 0, "Reject the first N streaming requests with 503")
	verbose := flag.Bool("v", false, "Log at debug level")
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	b := newBot(botConfig{Name: *name, Delay: *delay, FailFirst: *failFirst}, logger)
	srv := &http.Server{
		Addr:              *addr,
		Handler:           b.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("fake-bot listening", "addr", *addr, "endpoint", "http://"+*addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", "error", err)
			os.Exit(1)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown failed", "error", err)
	}
}
