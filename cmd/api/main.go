// cmd/api/main.go
package main

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	httpin "github.com/TheMuddySociety/bop-xrpl-nfts-landing-page/internal/adapters/in/http"
	"github.com/TheMuddySociety/bop-xrpl-nfts-landing-page/internal/platform/di"
)

func main() {
	ctx := context.Background()
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	// ─────────────────────────────────────────────────────────────
	// Lightweight healthz first so PORT is LISTENed quickly
	// ─────────────────────────────────────────────────────────────
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	// ─────────────────────────────────────────────────────────────
	// DI container; keep /healthz even on failure
	// ─────────────────────────────────────────────────────────────
	var cont *di.Container
	if c, err := di.NewContainer(ctx); err != nil {
		log.Printf("[boot] WARN: di init failed: %v (serving /healthz only)", err)
	} else {
		cont = c
		defer cont.Close()

		deps := cont.RouterDeps()
		log.Printf("[boot] store: %T", cont.Store)
		log.Printf("[boot] wallet auth: %T", cont.Sessions.Auth)
		if deps.ModeratorAuth == nil || deps.ModeratorAuth.Verifier == nil {
			log.Printf("[boot] moderation: disabled")
		}

		mux.Handle("/", httpin.NewRouter(deps))
	}

	// ─────────────────────────────────────────────────────────────
	// Port resolution: config → env:PORT → 8080
	// ─────────────────────────────────────────────────────────────
	port := ""
	if cont != nil && cont.Config.Port != "" {
		port = cont.Config.Port
	}
	if port == "" {
		if p := os.Getenv("PORT"); p != "" {
			port = p
		} else {
			port = "8080"
		}
	}

	// request ctx の親。shutdown 時に cancel して SSE ストリームを終わらせる
	baseCtx, cancelBase := context.WithCancel(ctx)
	defer cancelBase()

	srv := &http.Server{
		Addr:              ":" + port,
		BaseContext:       func(net.Listener) context.Context { return baseCtx },
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		// /registrations/stream は長時間の SSE なので WriteTimeout は設定しない
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}

	// ─────────────────────────────────────────────────────────────
	// Graceful shutdown for Cloud Run
	// ─────────────────────────────────────────────────────────────
	idleConnsClosed := make(chan struct{})
	go func() {
		c := make(chan os.Signal, 1)
		signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
		sig := <-c
		log.Printf("[boot] received signal: %v; shutting down...", sig)

		cancelBase()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 25*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("[boot] server shutdown error: %v", err)
		}
		close(idleConnsClosed)
	}()

	log.Printf("[boot] listening on :%s", port)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("[boot] server error: %v", err)
	}

	<-idleConnsClosed
	log.Printf("[boot] server stopped")
}
