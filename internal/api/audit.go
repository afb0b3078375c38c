package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/storeforge/storeforge/internal/model"
	"github.com/storeforge/storeforge/internal/store"
)

const (
	defaultAuditLimit = 50
	maxAuditLimit     = 500
)

type listAuditResponse struct {
	Entries []model.AuditEntry `json:"entries"`
	Total   int                `json:"total"`
}

type quotaResponse struct {
	UserID    string `json:"user_id"`
	Used      int    `json:"used"`
	Limit     int    `json:"limit"`
	Remaining int    `json:"remaining"`
}

func (s *Server) handleListAudit(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	f := store.AuditFilter{
		UserID: q.Get("user_id"),
		Action: q.Get("action"),
		Limit:  parseIntQuery(r, "limit", defaultAuditLimit),
	}
	if f.Limit <= 0 || f.Limit > maxAuditLimit {
		f.Limit = defaultAuditLimit
	}

	if v := q.Get("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "invalid from timestamp, want RFC3339")
			return
		}
		f.From = t
	}
	if v := q.Get("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "invalid to timestamp, want RFC3339")
			return
		}
		f.To = t
	}

	entries, err := s.store.ListAudit(r.Context(), f)
	if err != nil {
		s.logger.Error("list audit entries", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to list audit entries")
		return
	}
	if entries == nil {
		entries = []model.AuditEntry{}
	}

	s.writeJSON(w, http.StatusOK, listAuditResponse{Entries: entries, Total: len(entries)})
}

func (s *Server) handleQuota(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	used, err := s.store.CountOwned(r.Context(), userID)
	if err != nil {
		s.logger.Error("count owned stores", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to get quota")
		return
	}

	remaining := s.opts.OwnerQuota - used
	if remaining < 0 {
		remaining = 0
	}

	s.writeJSON(w, http.StatusOK, quotaResponse{
		UserID:    userID,
		Used:      used,
		Limit:     s.opts.OwnerQuota,
		Remaining: remaining,
	})
}

// parseIntQuery parses an integer query parameter with a default value.
func parseIntQuery(r *http.Request, key string, defaultVal int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return n
}
