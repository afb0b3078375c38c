package api

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/samber/lo"

	"github.com/storeforge/storeforge/internal/model"
	"github.com/storeforge/storeforge/internal/store"
)

const (
	maxBodySize    = 1 << 20 // 1 MB
	minNameLength  = 2
	defaultUserID  = "default-user"
	initialMessage = "provisioning queued"
)

// createStoreRequest is the JSON body for POST /v1/stores.
type createStoreRequest struct {
	Name string `json:"name"`
}

// storeSummary is the trimmed shape returned by the list endpoint.
type storeSummary struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Status        string    `json:"status"`
	StatusMessage string    `json:"status_message,omitempty"`
	URL           string    `json:"url,omitempty"`
	OwnerID       string    `json:"owner_id"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

type listStoresResponse struct {
	Stores []storeSummary `json:"stores"`
	Total  int            `json:"total"`
}

// storeDetailResponse is the shape for GET /v1/stores/{id}: the full record
// plus its lifecycle event trail.
type storeDetailResponse struct {
	Store  *model.Store  `json:"store"`
	Events []model.Event `json:"events"`
}

func (s *Server) handleCreateStore(w http.ResponseWriter, r *http.Request) {
	var req createStoreRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	name := strings.TrimSpace(req.Name)
	if len(name) < minNameLength {
		s.writeError(w, http.StatusBadRequest, "store name must be at least 2 characters")
		return
	}

	userID := callerID(r)

	active, err := s.store.CountActive(r.Context())
	if err != nil {
		s.logger.Error("count active stores", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to create store")
		return
	}
	if active >= s.opts.MaxActiveStores {
		s.writeError(w, http.StatusTooManyRequests, "maximum number of active stores reached")
		return
	}

	owned, err := s.store.CountOwned(r.Context(), userID)
	if err != nil {
		s.logger.Error("count owned stores", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to create store")
		return
	}
	if owned >= s.opts.OwnerQuota {
		s.writeError(w, http.StatusTooManyRequests, "store quota exceeded for this user")
		return
	}

	now := time.Now().UTC()
	deadline := now.Add(s.opts.ProvisioningTimeout)
	st := &model.Store{
		ID:                    model.NewStoreID(),
		Name:                  name,
		Status:                model.StatusProvisioning,
		StatusMessage:         initialMessage,
		OwnerID:               userID,
		CreatedAt:             now,
		UpdatedAt:             now,
		ProvisioningStartedAt: &now,
		ProvisioningDeadline:  &deadline,
	}

	if err := s.store.CreateStore(r.Context(), st); err != nil {
		s.logger.Error("create store", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to create store")
		return
	}

	s.audit(r, model.ActionStoreCreated, st)

	s.engine.Provision(st.ID, st.Name)

	s.writeJSON(w, http.StatusAccepted, st)
}

func (s *Server) handleGetStore(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	st, err := s.store.GetStore(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "store not found")
		return
	}
	if err != nil {
		s.logger.Error("get store", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to get store")
		return
	}

	events, err := s.store.ListEvents(r.Context(), id)
	if err != nil {
		s.logger.Error("list store events", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to get store")
		return
	}
	if events == nil {
		events = []model.Event{}
	}

	s.writeJSON(w, http.StatusOK, storeDetailResponse{Store: st, Events: events})
}

func (s *Server) handleListStores(w http.ResponseWriter, r *http.Request) {
	stores, err := s.store.ListStores(r.Context())
	if err != nil {
		s.logger.Error("list stores", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to list stores")
		return
	}

	summaries := lo.Map(stores, func(st *model.Store, _ int) storeSummary {
		return storeSummary{
			ID:            st.ID,
			Name:          st.Name,
			Status:        st.Status,
			StatusMessage: st.StatusMessage,
			URL:           st.URL,
			OwnerID:       st.OwnerID,
			CreatedAt:     st.CreatedAt,
			UpdatedAt:     st.UpdatedAt,
		}
	})

	s.writeJSON(w, http.StatusOK, listStoresResponse{
		Stores: summaries,
		Total:  len(summaries),
	})
}

func (s *Server) handleDeleteStore(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	st, err := s.store.GetStore(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "store not found")
		return
	}
	if err != nil {
		s.logger.Error("get store for deletion", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to delete store")
		return
	}

	if st.Status == model.StatusDeleting || st.Status == model.StatusDeleted {
		s.writeError(w, http.StatusConflict, "store is already being deleted")
		return
	}

	applied, err := s.store.UpdateStatusFrom(r.Context(), id, st.Status, model.StatusDeleting, store.StatusUpdate{
		StatusMessage: strPtr("deletion requested"),
	})
	if err != nil {
		s.logger.Error("mark store deleting", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to delete store")
		return
	}
	if !applied {
		// Status moved between the read and the write.
		s.writeError(w, http.StatusConflict, "store is already being deleted")
		return
	}

	s.audit(r, model.ActionStoreDeleted, st)

	s.engine.Delete(id)

	updated, err := s.store.GetStore(r.Context(), id)
	if err != nil {
		s.logger.Error("get deleting store", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to delete store")
		return
	}

	s.writeJSON(w, http.StatusAccepted, updated)
}

// audit records a caller action; persistence failures are logged, never
// surfaced to the caller.
func (s *Server) audit(r *http.Request, action string, st *model.Store) {
	entry := &model.AuditEntry{
		UserID:    callerID(r),
		Action:    action,
		StoreID:   st.ID,
		StoreName: st.Name,
		IPAddress: clientIP(r),
	}
	if err := s.store.AppendAudit(r.Context(), entry); err != nil {
		s.logger.Error("append audit entry", "action", action, "store_id", st.ID, "error", err)
	}
}

// callerID resolves the caller identity from the X-User-Id header.
func callerID(r *http.Request) string {
	if id := strings.TrimSpace(r.Header.Get("X-User-Id")); id != "" {
		return id
	}
	return defaultUserID
}

// clientIP strips the port from the remote address.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// writeJSON writes a JSON response with the given status code.
func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("encode response", "error", err)
	}
}

// writeError writes a JSON error response.
func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

func strPtr(v string) *string { return &v }
