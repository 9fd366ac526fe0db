package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/manpreetbhatti/canvasroom/internal/api"
	"github.com/manpreetbhatti/canvasroom/internal/config"
	"github.com/manpreetbhatti/canvasroom/internal/db"
	"github.com/manpreetbhatti/canvasroom/internal/discovery"
	"github.com/manpreetbhatti/canvasroom/internal/journal"
	"github.com/manpreetbhatti/canvasroom/internal/retention"
	"github.com/manpreetbhatti/canvasroom/internal/ws"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	database, err := db.New(cfg.DBPath)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer database.Close()

	recorder := journal.New(database, 0)
	recorder.Start()

	pruner := retention.New(database, cfg.Retention())
	pruner.Start()

	hub := ws.NewHub(recorder, ws.Options{
		RatePolicy:     cfg.RatePolicy(),
		AllowedOrigins: cfg.AllowedOrigins,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	hubCtx, stopHub := context.WithCancel(context.Background())
	hubDone := make(chan struct{})
	go func() {
		hub.Run(hubCtx)
		close(hubDone)
	}()

	apiHandler := api.New(hub, database)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           apiHandler.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	if cfg.Advertise {
		port, err := strconv.Atoi(cfg.Port)
		if err != nil {
			log.Printf("mDNS disabled: invalid port %q", cfg.Port)
		} else if mdnsServer, err := discovery.Advertise(cfg.AdvertiseName, port); err != nil {
			log.Printf("mDNS disabled: %v", err)
		} else {
			defer mdnsServer.Shutdown()
			log.Printf("📡 Advertising %s on the local network", discovery.ServiceType)
		}
	}

	log.Printf("🎨 Canvasroom server starting on :%s", cfg.Port)
	log.Printf("📁 Database: %s", cfg.DBPath)
	log.Println("Endpoints:")
	log.Println("  - WebSocket: /ws")
	log.Println("  - Health:    GET /health")
	log.Println("  - Stats:     GET /api/stats")
	log.Println("  - Rooms:     GET /api/rooms")
	log.Println("  - Room:      GET /api/rooms/{id}")
	log.Println("  - Strokes:   GET /api/rooms/{id}/strokes")
	log.Println("  - Snapshot:  GET /api/rooms/{id}/snapshot.png|pdf")
	log.Println("  - Sessions:  GET /api/rooms/{id}/sessions")

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- srv.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			log.Printf("ListenAndServe: %v", err)
		}
	case <-ctx.Done():
		log.Println("Shutting down server...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP shutdown: %v", err)
	}

	// Closing the hub closes every client; the journal then drains
	stopHub()
	<-hubDone
	recorder.Stop()
	pruner.Stop()
}
