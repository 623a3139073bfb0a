package audit

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/meridian-bank/meridian-bank/internal/shared"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// Handler exposes the audit trail read side.
type Handler struct {
	logger *slog.Logger
	repo   Repository
}

// NewHandler constructs the audit handler.
func NewHandler(logger *slog.Logger, repo Repository) *Handler {
	return &Handler{logger: logger, repo: repo}
}

// MountRoutes registers audit routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/{entityType}/{entityID}", h.listByEntity)
}

type entryResponse struct {
	ID            int64     `json:"id"`
	EntityType    string    `json:"entity_type"`
	EntityID      string    `json:"entity_id"`
	Action        string    `json:"action"`
	StateBefore   string    `json:"state_before,omitempty"`
	StateAfter    string    `json:"state_after,omitempty"`
	Amount        *int64    `json:"amount,omitempty"`
	BalanceBefore *int64    `json:"balance_before,omitempty"`
	BalanceAfter  *int64    `json:"balance_after,omitempty"`
	ReferenceCode string    `json:"reference_code"`
	ActorType     string    `json:"actor_type,omitempty"`
	ActorID       string    `json:"actor_id,omitempty"`
	SourceService string    `json:"source_service"`
	CreatedAt     time.Time `json:"created_at"`
}

func (h *Handler) listByEntity(w http.ResponseWriter, r *http.Request) {
	entityType := strings.ToLower(chi.URLParam(r, "entityType"))
	if entityType != EntityAccount && entityType != EntityTransaction {
		shared.RespondError(w, http.StatusBadRequest, "unknown entity type")
		return
	}
	entityID := chi.URLParam(r, "entityID")
	if entityID == "" {
		shared.RespondError(w, http.StatusBadRequest, "entity id required")
		return
	}
	limit := defaultPageSize
	if v := strings.TrimSpace(r.URL.Query().Get("limit")); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 {
			shared.RespondError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		if parsed > maxPageSize {
			parsed = maxPageSize
		}
		limit = parsed
	}
	offset := 0
	if v := strings.TrimSpace(r.URL.Query().Get("offset")); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 0 {
			shared.RespondError(w, http.StatusBadRequest, "invalid offset")
			return
		}
		offset = parsed
	}
	entries, err := h.repo.ListByEntity(r.Context(), entityType, entityID, limit, offset)
	if err != nil {
		h.logger.Error("list audit entries", slog.Any("error", err))
		shared.RespondError(w, http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError))
		return
	}
	out := make([]entryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, entryResponse{
			ID:            e.ID,
			EntityType:    e.EntityType,
			EntityID:      e.EntityID,
			Action:        e.Action,
			StateBefore:   e.StateBefore,
			StateAfter:    e.StateAfter,
			Amount:        e.Amount,
			BalanceBefore: e.BalanceBefore,
			BalanceAfter:  e.BalanceAfter,
			ReferenceCode: e.ReferenceCode,
			ActorType:     e.ActorType,
			ActorID:       e.ActorID,
			SourceService: e.SourceService,
			CreatedAt:     e.CreatedAt,
		})
	}
	shared.RespondJSON(w, http.StatusOK, out)
}
