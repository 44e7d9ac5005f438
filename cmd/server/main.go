// The coordination server: liveness map, websocket hub, evidence intake,
// push dispatcher, and the operator resource API.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/gidence/scm/internal/server/api"
	"github.com/gidence/scm/internal/server/auth"
	"github.com/gidence/scm/internal/server/config"
	"github.com/gidence/scm/internal/server/hub"
	"github.com/gidence/scm/internal/server/liveness"
	"github.com/gidence/scm/internal/server/push"
	"github.com/gidence/scm/internal/server/store"
)

func main() {
	logger := log.New(log.Writer(), "[SERVER] ", log.LstdFlags)
	cfg := config.Load()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	keys, err := auth.LoadKeys(cfg.KeyDir)
	if err != nil {
		logger.Fatalf("load keys: %v", err)
	}

	st, err := store.Connect(ctx, cfg)
	if err != nil {
		logger.Fatalf("connect store: %v", err)
	}
	if err := st.EnsureSuperAdmin(ctx); err != nil {
		logger.Fatalf("seed super admin: %v", err)
	}

	if err := os.MkdirAll(cfg.EvidenceDir, 0o755); err != nil {
		logger.Fatalf("evidence dir: %v", err)
	}

	tracker := liveness.NewTracker()
	h := hub.New(tracker)
	queue := &push.Queue{}

	go h.Run(ctx)
	go tracker.Run(ctx, h)

	provider, err := push.NewAPNS(filepath.Join(cfg.KeyDir, "apns.p8"), cfg.APNSKeyID, cfg.APNSTeamID)
	if err != nil {
		logger.Printf("push provider unavailable: %v", err)
	} else {
		dispatcher := push.NewDispatcher(queue, st, h, provider)
		go dispatcher.Run(ctx)
	}

	srv := api.New(cfg, st, keys, h, tracker, queue)
	server := srv.HTTPServer(cfg.Addr(), srv.Router(cfg.BasePath))

	go func() {
		<-ctx.Done()
		server.Close()
	}()

	logger.Printf("listening on %s", cfg.Addr())
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("serve: %v", err)
	}
}
