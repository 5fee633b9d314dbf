package api

import (
	"net/http"
	"strconv"

	"github.com/graaaaa/playpulse/internal/logging"
	"github.com/graaaaa/playpulse/internal/model"
)

// eventsResponse is the GET /api/events body.
type eventsResponse struct {
	Items []model.Event `json:"items"`
}

// handleListEvents handles GET /api/events?include_hidden=true.
func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	includeHidden := false
	if v := r.URL.Query().Get("include_hidden"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, r, model.Validationf("invalid include_hidden: %s", v))
			return
		}
		includeHidden = b
	}

	items, err := s.events.List(r.Context(), includeHidden)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, eventsResponse{Items: items})
}

// handleCreateEvent handles POST /api/events.
func (s *Server) handleCreateEvent(w http.ResponseWriter, r *http.Request) {
	var spec model.EventSpec
	if err := decodeJSON(w, r, &spec); err != nil {
		writeError(w, r, err)
		return
	}

	e, err := s.events.Create(r.Context(), spec)
	if err != nil {
		writeBodyError(w, r, err)
		return
	}
	logging.Ctx(r.Context()).Info().Int64("event_id", e.ID).Msg("event created via api")
	w.Header().Set("Location", "/api/events/"+strconv.FormatInt(e.ID, 10))
	writeJSON(w, http.StatusCreated, e)
}

// handleGetEvent handles GET /api/events/{id}.
func (s *Server) handleGetEvent(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	e, err := s.events.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

// handleUpdateEvent handles PUT /api/events/{id} with a partial body.
func (s *Server) handleUpdateEvent(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var patch model.EventPatch
	if err := decodeJSON(w, r, &patch); err != nil {
		writeError(w, r, err)
		return
	}

	e, err := s.events.Update(r.Context(), id, patch)
	if err != nil {
		writeBodyError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

// handleDeleteEvent handles DELETE /api/events/{id}.
func (s *Server) handleDeleteEvent(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.events.Delete(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleActivateEvent handles POST /api/events/{id}/activate.
func (s *Server) handleActivateEvent(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	e, err := s.events.Activate(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

// handleEventStats handles GET /api/events/{id}/stats.
func (s *Server) handleEventStats(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	stats, err := s.events.Stats(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
