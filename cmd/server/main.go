package main

import (
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/huddleapp/huddle/backend/internal/api"
	"github.com/huddleapp/huddle/backend/internal/config"
	"github.com/huddleapp/huddle/backend/internal/registry"
	"github.com/huddleapp/huddle/backend/internal/session"
	"github.com/huddleapp/huddle/backend/internal/ws"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	store, err := session.Open(cfg.DBPath)
	if err != nil {
		log.Fatalf("Failed to initialize session store: %v", err)
	}
	defer store.Close()

	reg := registry.New()

	hub := ws.NewHub(reg, store)
	go hub.Run()

	apiHandler := api.New(reg, store)
	router := apiHandler.Routes()

	wsOpts := ws.Options{
		MaxMessageSize:       cfg.MaxMessageSize,
		MessageRate:          cfg.MessageRate,
		MessageBurst:         cfg.MessageBurst,
		ClockInterval:        cfg.ClockInterval,
		DefaultTimerDuration: cfg.DefaultTimerDuration,
	}
	router.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		ws.ServeWs(hub, wsOpts, w, r)
	})

	handler := corsMiddleware(router)

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Println("Shutting down server...")
		store.Close()
		os.Exit(0)
	}()

	log.Printf("Huddle server starting on :%s", cfg.Port)
	log.Printf("Session store: %s", cfg.DBPath)
	log.Println("Endpoints:")
	log.Println("  - WebSocket: /ws")
	log.Println("  - Health:    GET /health")
	log.Println("  - Stats:     GET /api/stats")
	log.Println("  - Sessions:  GET/POST /api/sessions")
	log.Println("  - Session:   GET/DELETE /api/sessions/{id}")

	if err := http.ListenAndServe(":"+cfg.Port, handler); err != nil {
		log.Fatal("ListenAndServe: ", err)
	}
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
