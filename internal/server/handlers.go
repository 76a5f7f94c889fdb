package server

import (
	"net/http"

	"github.com/bobmcallan/screener/internal/models"
)

// handlePerformanceAnalysis handles POST /api/performance/analysis.
func (s *Server) handlePerformanceAnalysis(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}
	req := models.PerformanceRequest{TopN: models.DefaultTopN}
	if !DecodeJSON(w, r, &req) {
		return
	}

	result, err := s.performance.AnalyzePerformance(r.Context(), req)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, result)
}

// handlePerformanceAnalysisFast handles POST /api/performance/analysis/fast.
func (s *Server) handlePerformanceAnalysisFast(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}
	req := models.PerformanceRequest{TopN: models.DefaultTopN}
	if !DecodeJSON(w, r, &req) {
		return
	}

	result, err := s.performance.AnalyzePerformanceFast(r.Context(), req)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, result)
}

// handleStockCompare handles POST /api/stock/compare.
func (s *Server) handleStockCompare(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}
	var req models.CompareRequest
	if !DecodeJSON(w, r, &req) {
		return
	}

	result, err := s.performance.CompareStocks(r.Context(), req)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, result)
}

// handleFluctuationAnalysis handles POST /api/fluctuation/analysis.
func (s *Server) handleFluctuationAnalysis(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}
	req := models.DefaultFluctuationRequest()
	if !DecodeJSON(w, r, &req) {
		return
	}

	result, err := s.fluctuation.FindFluctuations(r.Context(), req)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, result)
}

// handleFluctuationAnalysisFast handles POST /api/fluctuation/analysis/fast.
func (s *Server) handleFluctuationAnalysisFast(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}
	req := models.DefaultFluctuationRequest()
	if !DecodeJSON(w, r, &req) {
		return
	}

	result, err := s.fluctuation.FindFluctuationsFast(r.Context(), req)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, result)
}

// handleCacheStats handles GET /api/cache/stats.
func (s *Server) handleCacheStats(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	WriteJSON(w, http.StatusOK, s.performance.CacheStats(r.Context()))
}

// handleCacheClear handles POST|DELETE /api/cache/clear?market=.
func (s *Server) handleCacheClear(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost, http.MethodDelete) {
		return
	}
	if !s.requireAdmin(w, r) {
		return
	}

	market := r.URL.Query().Get("market")
	resp := s.performance.ClearCache(r.Context(), market)

	s.logger.Info().
		Str("market", resp.Market).
		Int("removed", resp.Removed).
		Msg("Cache cleared via API")

	WriteJSON(w, http.StatusOK, resp)
}
