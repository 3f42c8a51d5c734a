package handler

import (
	"net/http"

	"pdf-text-overlay/internal/config"
	"pdf-text-overlay/internal/domain"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
)

// NewRouter creates a new HTTP router with all routes configured
func NewRouter(container *config.Container) http.Handler {
	sessionHandler := NewSessionHandler(
		container.GetSessionService(),
		container.Sources,
		container.GetConfig().GetMaxFileSize(),
		container.GetLogger(),
	)
	return NewRouterWith(sessionHandler, container.GetConfig().GetAllowedOrigins(), container.GetLogger())
}

// NewRouterWith builds the router around an explicit session handler.
func NewRouterWith(sessionHandler *SessionHandler, allowedOrigins []string, logger domain.Logger) http.Handler {
	router := mux.NewRouter()
	router.Use(Recoverer(logger), RequestLogger(logger))

	// API prefix
	api := router.PathPrefix("/api/v1").Subrouter()

	// Health check endpoint
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok","service":"pdf-text-overlay"}`))
	}).Methods("GET")

	api.HandleFunc("/options", sessionHandler.GetOptions).Methods("GET")

	// Session routes
	api.HandleFunc("/sessions", sessionHandler.CreateSession).Methods("POST")
	api.HandleFunc("/sessions/{id}", sessionHandler.GetSession).Methods("GET")
	api.HandleFunc("/sessions/{id}", sessionHandler.DeleteSession).Methods("DELETE")
	api.HandleFunc("/sessions/{id}/source", sessionHandler.SetSource).Methods("PUT")
	api.HandleFunc("/sessions/{id}/adding", sessionHandler.SetAdding).Methods("PUT")
	api.HandleFunc("/sessions/{id}/zoom", sessionHandler.SetZoom).Methods("PUT")
	api.HandleFunc("/sessions/{id}/pointer", sessionHandler.Pointer).Methods("POST")
	api.HandleFunc("/sessions/{id}/active", sessionHandler.UpdateActive).Methods("PATCH")
	api.HandleFunc("/sessions/{id}/active", sessionHandler.DeleteActive).Methods("DELETE")
	api.HandleFunc("/sessions/{id}/preview.png", sessionHandler.Preview).Methods("GET")
	api.HandleFunc("/sessions/{id}/export", sessionHandler.Export).Methods("POST")

	// Configure CORS
	c := cors.New(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{
			http.MethodGet,
			http.MethodPost,
			http.MethodPut,
			http.MethodPatch,
			http.MethodDelete,
			http.MethodOptions,
		},
		AllowedHeaders: []string{
			"Accept",
			"Content-Type",
			"X-CSRF-Token",
		},
		ExposedHeaders: []string{
			"Content-Disposition",
			"Location",
			"X-Annotation-Count",
		},
		MaxAge: 300, // Maximum value not ignored by any of major browsers
	})

	return c.Handler(router)
}
