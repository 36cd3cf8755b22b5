package server

import (
	"net/http"
	"strings"
)

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	// WebSocket route
	mux.HandleFunc("/ws", s.app.WSHandler.HandleWebSocket)

	// API routes - Scans
	mux.HandleFunc("/api/scans", s.handleScansCollection)
	mux.HandleFunc("/api/scans/stats", s.app.ScanHandler.StatsHandler)
	mux.HandleFunc("/api/scans/queue/state", s.app.ScanHandler.QueueStateHandler)
	mux.HandleFunc("/api/scans/progress/live", s.app.ProgressHandler.StreamHandler)
	mux.HandleFunc("/api/scans/", s.handleScanRoutes) // Handles /api/scans/{id} and subpaths

	// API routes - System
	mux.HandleFunc("/api/version", s.app.APIHandler.VersionHandler)
	mux.HandleFunc("/api/health", s.app.APIHandler.HealthHandler)

	// 404 handler for unmatched API routes
	mux.HandleFunc("/api/", s.app.APIHandler.NotFoundHandler)

	return mux
}

// handleScansCollection routes the scans collection endpoint
func (s *Server) handleScansCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case "GET":
		s.app.ScanHandler.ListScansHandler(w, r)
	case "POST":
		s.app.ScanHandler.CreateScanHandler(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleScanRoutes routes /api/scans/{id} and its subpaths
func (s *Server) handleScanRoutes(w http.ResponseWriter, r *http.Request) {
	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/scans/"), "/")
	segments := strings.Split(rest, "/")

	switch {
	// /api/scans/{id}
	case len(segments) == 1 && segments[0] != "":
		jobID := segments[0]
		switch r.Method {
		case "GET":
			s.app.ScanHandler.GetScanHandler(w, r, jobID)
		case "DELETE":
			s.app.ScanHandler.DeleteScanHandler(w, r, jobID)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}

	// /api/scans/{id}/cancel
	case len(segments) == 2 && segments[1] == "cancel":
		if r.Method != "POST" {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		s.app.ScanHandler.CancelScanHandler(w, r, segments[0])

	// /api/scans/{id}/retry
	case len(segments) == 2 && segments[1] == "retry":
		if r.Method != "POST" {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		s.app.ScanHandler.RetryScanHandler(w, r, segments[0])

	// /api/scans/{id}/pages
	case len(segments) == 2 && segments[1] == "pages":
		if r.Method != "GET" {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		s.app.ScanHandler.ListPagesHandler(w, r, segments[0])

	// /api/scans/{id}/pages/{pageId}
	case len(segments) == 3 && segments[1] == "pages":
		if r.Method != "GET" {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		s.app.ScanHandler.GetPageHandler(w, r, segments[0], segments[2])

	default:
		s.app.APIHandler.NotFoundHandler(w, r)
	}
}
