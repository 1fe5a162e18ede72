package api

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/gorilla/handlers"
	"github.com/npezzotti/go-docsync/internal/config"
	"github.com/npezzotti/go-docsync/internal/database"
	"github.com/npezzotti/go-docsync/internal/server"
)

type DocSyncApp struct {
	log            *log.Logger
	db             database.DocumentRepository
	mux            *http.Server
	ss             *server.SyncServer
	signingKey     []byte
	allowedOrigins []string
}

func NewDocSyncApp(mux *http.ServeMux, logger *log.Logger, ss *server.SyncServer, db database.DocumentRepository, cfg *config.Config) *DocSyncApp {
	s := &DocSyncApp{
		log:            logger,
		db:             db,
		ss:             ss,
		signingKey:     cfg.SigningKey,
		allowedOrigins: cfg.AllowedOrigins,
	}

	mux.HandleFunc("GET /healthz", s.healthz)
	mux.HandleFunc("GET /api/documents/{roomId}", s.getDocument)
	mux.HandleFunc("GET /api/documents/{roomId}/users", s.getDocumentUsers)
	mux.HandleFunc("GET /ws/{roomId}", s.identityMiddleware(s.serveWs))

	h := handlers.CORS(
		handlers.MaxAge(3600),
		handlers.AllowedOrigins(cfg.AllowedOrigins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Origin", "Content-Type", "Accept"}),
		handlers.AllowCredentials(),
	)(mux)

	h = s.errorHandler(h)

	s.mux = &http.Server{
		Addr:    cfg.ServerAddr,
		Handler: h,
	}

	return s
}

// Handler returns the routed handler with CORS and panic recovery applied.
func (s *DocSyncApp) Handler() http.Handler {
	return s.mux.Handler
}

func (s *DocSyncApp) Start() error {
	s.log.Printf("starting server on %s\n", s.mux.Addr)
	return s.mux.ListenAndServe()
}

func (s *DocSyncApp) Shutdown(ctx context.Context) error {
	s.log.Println("shutting down HTTP server...")
	if err := s.mux.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	return nil
}
