package api

import (
	"context"

	"github.com/gin-gonic/gin"

	"policylens/dedup"
	"policylens/logger"
	"policylens/store"
)

// RefreshFunc triggers one ingestion batch. It is supplied by the caller so
// the API package does not depend on the orchestrator wiring.
type RefreshFunc func(ctx context.Context) error

// Server carries the dependencies shared by the route handlers.
type Server struct {
	store   *store.Store
	index   dedup.Index
	refresh RefreshFunc
	log     *logger.Logger
}

// NewServer creates the handler set backed by the given store and dedup index.
func NewServer(s *store.Store, index dedup.Index, refresh RefreshFunc, log *logger.Logger) *Server {
	return &Server{
		store:   s,
		index:   index,
		refresh: refresh,
		log:     log,
	}
}

// NewRouter constructs a Gin engine with registered routes.
func NewRouter(s *Server) *gin.Engine {
	r := gin.New()
	// Minimal middleware: recovery; logger optional to reduce verbosity
	r.Use(gin.Recovery())

	// Register resource routers
	s.RegisterHealthRoutes(r)
	s.RegisterRecordRoutes(r)
	s.RegisterRunRoutes(r)
	return r
}
