package web

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/On-Jun9/MetaPipe/internal/config"
	"github.com/On-Jun9/MetaPipe/internal/library"
	"github.com/On-Jun9/MetaPipe/internal/pipeline"
	"github.com/On-Jun9/MetaPipe/internal/state"
	"github.com/On-Jun9/MetaPipe/pkg/types"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ValidationError represents a field validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

type APIErrorResponse struct {
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeAPIError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, APIErrorResponse{Message: message})
}

func writeValidationError(w http.ResponseWriter, field, message string) {
	writeJSON(w, http.StatusBadRequest, ValidationError{
		Field:   field,
		Message: message,
	})
}

// writeServiceError maps lookup misses to 404 and everything else to 500.
func (s *Server) writeServiceError(w http.ResponseWriter, err error) {
	if errors.Is(err, library.ErrNotFound) || errors.Is(err, state.ErrNotFound) {
		writeAPIError(w, http.StatusNotFound, err.Error())
		return
	}
	s.logger.Error("request failed", zap.Error(err))
	writeAPIError(w, http.StatusInternalServerError, err.Error())
}

func (s *Server) broadcastJSON(v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	s.hub.Publish(data)
}

func (s *Server) broadcastProgress(update pipeline.ProgressUpdate) {
	s.broadcastJSON(update)
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"version": s.version})
}

func (s *Server) handleListActions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.svc.AvailableActions())
}

func (s *Server) handleListExtractors(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.svc.Extractors())
}

func (s *Server) handleGetMetadata(w http.ResponseWriter, r *http.Request) {
	rec, err := s.svc.FindMetadata(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleDeleteMetadata(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.DeleteMetadata(r.Context(), mux.Vars(r)["id"]); err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type ActionRequest struct {
	Action       types.Action       `json:"action"`
	ResourceType types.ResourceKind `json:"resource_type,omitempty"`
	IDs          []string           `json:"ids,omitempty"`
}

func decodeAction(w http.ResponseWriter, r *http.Request) (ActionRequest, bool) {
	var req ActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIError(w, http.StatusBadRequest, err.Error())
		return req, false
	}
	return req, true
}

func (s *Server) handleMediaAction(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeAction(w, r)
	if !ok {
		return
	}
	res, err := s.svc.PerformAction(r.Context(), mux.Vars(r)["id"], req.Action)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleItemAction(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeAction(w, r)
	if !ok {
		return
	}
	results, err := s.svc.PerformItemAction(r.Context(), mux.Vars(r)["id"], req.Action)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, results)
}

func (s *Server) handleBatchAction(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeAction(w, r)
	if !ok {
		return
	}
	if req.ResourceType == "" {
		req.ResourceType = types.ResourceMedia
	}
	if !req.ResourceType.Valid() {
		writeValidationError(w, "resource_type", "must be media or item")
		return
	}
	if len(req.IDs) == 0 {
		writeValidationError(w, "ids", "at least one id is required")
		return
	}

	results, err := s.svc.PerformBatch(r.Context(), req.ResourceType, req.IDs, req.Action)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, results)
}

// Crosswalk preset handlers

func (s *Server) presetManager(w http.ResponseWriter) (*config.PresetManager, bool) {
	if s.presets == nil {
		writeAPIError(w, http.StatusServiceUnavailable, "crosswalk presets are not configured")
		return nil, false
	}
	return s.presets, true
}

func (s *Server) handleListPresets(w http.ResponseWriter, r *http.Request) {
	pm, ok := s.presetManager(w)
	if !ok {
		return
	}
	presets, err := pm.ListPresets()
	if err != nil {
		writeAPIError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if presets == nil {
		presets = []config.CrosswalkPreset{}
	}
	writeJSON(w, http.StatusOK, presets)
}

func (s *Server) handleSavePreset(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name        string                `json:"name"`
		Description string                `json:"description"`
		Rules       []types.CrosswalkRule `json:"rules"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Name == "" {
		writeValidationError(w, "name", "preset name is required")
		return
	}

	pm, ok := s.presetManager(w)
	if !ok {
		return
	}
	preset := config.ConfigToPreset(&config.Config{Crosswalk: req.Rules}, req.Name, req.Description)
	if err := pm.SavePreset(preset); err != nil {
		var validationErr *config.ValidationError
		if errors.As(err, &validationErr) {
			writeValidationError(w, validationErr.Field, validationErr.Message)
			return
		}
		writeAPIError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleLoadPreset(w http.ResponseWriter, r *http.Request) {
	pm, ok := s.presetManager(w)
	if !ok {
		return
	}
	preset, err := pm.LoadPreset(mux.Vars(r)["name"])
	if err != nil {
		writeAPIError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, preset)
}

func (s *Server) handleDeletePreset(w http.ResponseWriter, r *http.Request) {
	pm, ok := s.presetManager(w)
	if !ok {
		return
	}
	if err := pm.DeletePreset(mux.Vars(r)["name"]); err != nil {
		writeAPIError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
