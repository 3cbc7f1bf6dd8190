package main

import (
	"log"
	"net/http"
	"os"

	"coopwave/internal/relay"
)

func main() {
	srv := relay.NewServer()

	stop := make(chan struct{})
	defer close(stop)
	go srv.Run(stop)

	mux := http.NewServeMux()
	mux.HandleFunc("/", srv.HandleHealth)
	mux.HandleFunc("/ws", srv.HandleWS)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	log.Printf("Relay starting on :%s", port)
	log.Printf("WebSocket endpoint: ws://localhost:%s/ws", port)
	log.Printf("Health check: http://localhost:%s/health", port)
	if err := http.ListenAndServe(":"+port, mux); err != nil {
		log.Fatal("Server error:", err)
	}
}
