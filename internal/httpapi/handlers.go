package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// maxBodyBytes caps POST /v1/colors request bodies.
const maxBodyBytes = 1 << 20

type colorResponse struct {
	URL   string `json:"url"`
	Color string `json:"color"`
}

type colorsRequest struct {
	URLs []string `json:"urls"`
}

type colorsResponse struct {
	Colors map[string]string `json:"colors"`
}

func (s *Server) handleColor(w http.ResponseWriter, r *http.Request) {
	u := r.URL.Query().Get("url")
	if strings.TrimSpace(u) == "" {
		s.respondWithError(w, http.StatusBadRequest, "url query parameter is required")
		return
	}

	s.respondWithJSON(w, http.StatusOK, colorResponse{URL: u, Color: s.svc.GetColor(r.Context(), u)})
}

func (s *Server) handleColors(w http.ResponseWriter, r *http.Request) {
	var req colorsRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		s.respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.URLs == nil {
		s.respondWithError(w, http.StatusBadRequest, "urls is required")
		return
	}

	colors := s.svc.GetColors(r.Context(), req.URLs)
	if len(colors) < len(req.URLs) {
		s.logger.Debug("batch returned partial result",
			zap.Int("requested", len(req.URLs)),
			zap.Int("resolved", len(colors)),
			zap.Error(r.Context().Err()))
	}
	s.respondWithJSON(w, http.StatusOK, colorsResponse{Colors: colors})
}

func (s *Server) handleClearCache(w http.ResponseWriter, r *http.Request) {
	s.svc.ClearCache(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCacheStats(w http.ResponseWriter, r *http.Request) {
	s.respondWithJSON(w, http.StatusOK, s.svc.Stats(r.Context()))
}

func (s *Server) handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	if s.store != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := s.store.Ping(ctx); err != nil {
			s.logger.Error("health check failed for store", zap.Error(err))
			http.Error(w, "store unreachable", http.StatusServiceUnavailable)
			return
		}
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte("ok"))
}

// --- Helper Functions ---

func (s *Server) respondWithError(w http.ResponseWriter, code int, message string) {
	s.respondWithJSON(w, code, map[string]string{"error": message})
}

func (s *Server) respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		s.logger.Error("failed to encode response", zap.Error(err))
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}
