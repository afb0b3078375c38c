package api

import (
	"net/http"

	"github.com/storeforge/storeforge/internal/model"
)

const (
	defaultActivityLimit = 20
	maxActivityLimit     = 100
)

type activityResponse struct {
	Events []model.Event `json:"events"`
}

// handleActivity returns the most recent lifecycle events across all
// stores, newest first.
func (s *Server) handleActivity(w http.ResponseWriter, r *http.Request) {
	limit := parseIntQuery(r, "limit", defaultActivityLimit)
	if limit <= 0 || limit > maxActivityLimit {
		limit = defaultActivityLimit
	}

	events, err := s.store.ListActivity(r.Context(), limit)
	if err != nil {
		s.logger.Error("list activity", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to list activity")
		return
	}
	if events == nil {
		events = []model.Event{}
	}

	s.writeJSON(w, http.StatusOK, activityResponse{Events: events})
}
