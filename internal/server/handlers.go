package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/hyperjump/embedapi/internal/dispatch"
	"github.com/hyperjump/embedapi/internal/models"
)

func (s *Server) handleEmbed(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	var req models.EmbedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Text == nil {
		s.respondError(w, http.StatusBadRequest, "text field is required")
		return
	}
	backend, err := models.ParseBackend(req.Model)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.logger.Debug("embed request",
		zap.String("backend", backend.String()),
		zap.Int("texts", len(req.Text)))
	results, err := s.dispatcher.Process(r.Context(), req.Text, backend)
	if err != nil {
		if errors.Is(err, dispatch.ErrInvalidRequest) {
			s.respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.logger.Error("dispatch failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, results)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := models.StatusResponse{
		Backends: s.dispatcher.Backends(),
		Cache:    s.dispatcher.CacheInfo(),
	}
	if s.archive != nil {
		count, err := s.archive.Count(r.Context())
		if err != nil {
			s.logger.Error("status: count archive failed", zap.Error(err))
			s.respondError(w, http.StatusInternalServerError, err.Error())
			return
		}
		info := &models.ArchiveInfo{Entries: count, DatabasePath: s.archive.Path()}
		if n, err := s.archive.DiskUsageBytes(); err == nil {
			info.DiskUsageBytes = &n
		}
		resp.Archive = info
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Warn("write response failed", zap.Error(err))
	}
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
