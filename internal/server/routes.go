package server

import (
	"net/http"

	"github.com/bobmcallan/screener/internal/common"
)

// registerRoutes sets up all REST API routes on the mux.
func (s *Server) registerRoutes(mux *http.ServeMux) {
	// System
	mux.HandleFunc("/api/health", s.handleHealth)
	mux.HandleFunc("/api/version", s.handleVersion)
	mux.Handle("/metrics", s.metrics.Handler())

	// Performance
	mux.HandleFunc("/api/performance/analysis", s.handlePerformanceAnalysis)
	mux.HandleFunc("/api/performance/analysis/fast", s.handlePerformanceAnalysisFast)
	mux.HandleFunc("/api/stock/compare", s.handleStockCompare)

	// Fluctuation
	mux.HandleFunc("/api/fluctuation/analysis", s.handleFluctuationAnalysis)
	mux.HandleFunc("/api/fluctuation/analysis/fast", s.handleFluctuationAnalysisFast)

	// Cache administration
	mux.HandleFunc("/api/cache/stats", s.handleCacheStats)
	mux.HandleFunc("/api/cache/clear", s.handleCacheClear)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet, http.MethodHead) {
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet, http.MethodHead) {
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{
		"version": common.GetVersion(),
		"build":   common.GetBuild(),
		"commit":  common.GetGitCommit(),
	})
}
