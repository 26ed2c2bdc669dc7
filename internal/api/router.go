// Package api assembles the HTTP surface: router, handlers and
// middleware chain.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/ledgerkeep/ledgerkeep/internal/api/handlers"
	"github.com/ledgerkeep/ledgerkeep/internal/api/middleware"
	"github.com/ledgerkeep/ledgerkeep/internal/ingest"
	"github.com/ledgerkeep/ledgerkeep/internal/storage"
	"github.com/rs/zerolog"
)

// NewRouter wires all routes with the shared middleware chain.
func NewRouter(service *ingest.Service, store storage.Store, log zerolog.Logger) http.Handler {
	batchesHandler := handlers.NewBatchesHandler(service, log)
	classifyHandler := handlers.NewClassifyHandler(log)
	accountsHandler := handlers.NewAccountsHandler(store, log)

	r := chi.NewRouter()
	r.Use(middleware.Recovery(log))
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(log))
	r.Use(middleware.CORS)

	r.Get("/health", handlers.Health)

	r.Route("/api", func(r chi.Router) {
		r.Post("/batches", batchesHandler.IngestBatch)
		r.Post("/classify", classifyHandler.Classify)
		r.Get("/users/{userID}/accounts", accountsHandler.ListAccounts)
	})

	return r
}
