package server

import "net/http"

// setupRoutes registers the API surface.
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	// Document intake
	mux.HandleFunc("/api/upload", s.handlers.Upload.Upload)

	// Job queue
	mux.HandleFunc("/api/jobs", s.handlers.Job.List)
	mux.HandleFunc("/api/jobs/", s.handlers.Job.Routes)

	// Attestations
	mux.HandleFunc("/api/attestations", s.handlers.Attestation.List)
	mux.HandleFunc("/api/attestations/", s.handlers.Attestation.Routes)

	// Tender analyses
	mux.HandleFunc("/api/analyses", s.handlers.Analysis.Collection)
	mux.HandleFunc("/api/analyses/", s.handlers.Analysis.Routes)

	// Live updates
	mux.HandleFunc("/ws", s.handlers.WebSocket.HandleWebSocket)

	mux.HandleFunc("/api/health", s.healthHandler)

	return mux
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}
