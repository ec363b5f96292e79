package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
)

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	// Health check and discovery.
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /ping", s.handlePing)
	if s.opts.MetricsEnabled {
		mux.Handle("GET /metrics", promhttp.Handler())
	}

	// Plants collection.
	mux.HandleFunc("GET /plants", s.handleListPlants)
	mux.HandleFunc("POST /plants", s.handleCreatePlant)

	// Single plant.
	mux.HandleFunc("GET /plants/{id}", s.handleGetPlant)
	mux.HandleFunc("PUT /plants/{id}", s.handleRenamePlant)
	mux.HandleFunc("DELETE /plants/{id}", s.handleDeletePlant)
	mux.HandleFunc("PUT /plants/{id}/water", s.handleWaterPlant)

	// Images.
	mux.HandleFunc("PUT /images/{id}", s.handleReplaceImage)
	if images := s.service.Images(); images != nil {
		prefix := images.URLPrefix()
		mux.Handle("GET "+prefix, http.StripPrefix(prefix, staticFileServer(images.Root())))
	}

	return mux
}

// handler wraps routes with CORS, request logging and panic recovery.
func (s *Server) handler() http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins: s.opts.CORSAllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowedHeaders: []string{"*"},
	})
	return c.Handler(s.withRequestLogging(s.withRecovery(s.routes())))
}
