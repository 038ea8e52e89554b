// Package main RAG Chat API Server
//
//	@title			RAG Chat API
//	@version		1.0
//	@description	Document ingestion, vector search and retrieval-augmented chat sessions
//	@termsOfService	http://swagger.io/terms/
//
//	@contact.name	API Support
//	@contact.url	http://www.swagger.io/support
//	@contact.email	support@swagger.io
//
//	@license.name	Apache 2.0
//	@license.url	http://www.apache.org/licenses/LICENSE-2.0.html
//
//	@host		localhost:8080
//	@BasePath	/
//
//	@externalDocs.description	OpenAPI
//	@externalDocs.url			https://swagger.io/resources/open-api/
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"rag-chat/internal/config"
	"rag-chat/internal/server"

	_ "rag-chat/docs" // This imports the docs package to initialize swagger
)

func main() {
	log.Println("Starting RAG Chat Server...")

	cfg := config.Load()
	srv, err := server.NewServer(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize server: %v", err)
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil {
			log.Printf("Server stopped: %v", err)
		}
	}()
	log.Printf("RAG Chat Server listening on %s", cfg.Addr())

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	log.Println("Shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("Graceful shutdown failed: %v", err)
	}
	log.Println("Server stopped.")
}
