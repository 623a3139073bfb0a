package accounts

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/meridian-bank/meridian-bank/internal/shared"
)

// Handler wires HTTP endpoints for account operations.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers account routes on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/", h.createAccount)
	r.Get("/{id}", h.getAccount)
	r.Get("/{id}/balance", h.getBalance)
	r.Post("/{id}/deactivate", h.deactivateAccount)
	r.Get("/number/{accountNumber}", h.getByNumber)
	r.Get("/owner/{ownerID}", h.listByOwner)
}

type createAccountRequest struct {
	OwnerID       string `json:"owner_id" validate:"required,uuid"`
	AccountTypeID int64  `json:"account_type_id" validate:"required,gt=0"`
	Currency      string `json:"currency" validate:"required,len=3"`
	AccountNumber string `json:"account_number" validate:"omitempty,len=12,numeric"`
}

type accountResponse struct {
	ID            uuid.UUID `json:"id"`
	OwnerID       uuid.UUID `json:"owner_id"`
	AccountNumber string    `json:"account_number"`
	AccountTypeID int64     `json:"account_type_id"`
	Currency      string    `json:"currency"`
	Balance       int64     `json:"balance"`
	Version       int64     `json:"version"`
	IsActive      bool      `json:"is_active"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func toAccountResponse(a Account) accountResponse {
	return accountResponse{
		ID:            a.ID,
		OwnerID:       a.OwnerID,
		AccountNumber: a.AccountNumber,
		AccountTypeID: a.AccountTypeID,
		Currency:      a.Currency,
		Balance:       a.Balance,
		Version:       a.Version,
		IsActive:      a.IsActive,
		CreatedAt:     a.CreatedAt,
		UpdatedAt:     a.UpdatedAt,
	}
}

func (h *Handler) createAccount(w http.ResponseWriter, r *http.Request) {
	var req createAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.RespondError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		shared.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	ownerID, err := uuid.Parse(req.OwnerID)
	if err != nil {
		shared.RespondError(w, http.StatusBadRequest, "invalid owner id")
		return
	}
	account, err := h.service.Create(r.Context(), CreateInput{
		OwnerID:       ownerID,
		AccountTypeID: req.AccountTypeID,
		Currency:      req.Currency,
		AccountNumber: req.AccountNumber,
	})
	if err != nil {
		h.respondError(w, "create account", err)
		return
	}
	shared.RespondJSON(w, http.StatusCreated, toAccountResponse(account))
}

func (h *Handler) getAccount(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r, "id")
	if !ok {
		return
	}
	account, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.respondError(w, "get account", err)
		return
	}
	shared.RespondJSON(w, http.StatusOK, toAccountResponse(account))
}

func (h *Handler) getByNumber(w http.ResponseWriter, r *http.Request) {
	account, err := h.service.GetByNumber(r.Context(), chi.URLParam(r, "accountNumber"))
	if err != nil {
		h.respondError(w, "get account by number", err)
		return
	}
	shared.RespondJSON(w, http.StatusOK, toAccountResponse(account))
}

func (h *Handler) getBalance(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r, "id")
	if !ok {
		return
	}
	account, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.respondError(w, "get balance", err)
		return
	}
	shared.RespondJSON(w, http.StatusOK, map[string]any{
		"account_id": account.ID,
		"balance":    account.Balance,
		"currency":   account.Currency,
		"version":    account.Version,
	})
}

func (h *Handler) deactivateAccount(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r, "id")
	if !ok {
		return
	}
	account, err := h.service.Deactivate(r.Context(), id)
	if err != nil {
		h.respondError(w, "deactivate account", err)
		return
	}
	shared.RespondJSON(w, http.StatusOK, toAccountResponse(account))
}

func (h *Handler) listByOwner(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := h.parseID(w, r, "ownerID")
	if !ok {
		return
	}
	list, err := h.service.ListByOwner(r.Context(), ownerID)
	if err != nil {
		h.respondError(w, "list accounts", err)
		return
	}
	out := make([]accountResponse, 0, len(list))
	for _, a := range list {
		out = append(out, toAccountResponse(a))
	}
	shared.RespondJSON(w, http.StatusOK, out)
}

func (h *Handler) parseID(w http.ResponseWriter, r *http.Request, param string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, param))
	if err != nil {
		shared.RespondError(w, http.StatusBadRequest, "invalid "+param)
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) respondError(w http.ResponseWriter, message string, err error) {
	status := shared.StatusForError(err)
	if status == http.StatusInternalServerError {
		h.logger.Error(message, slog.Any("error", err))
		shared.RespondError(w, status, http.StatusText(status))
		return
	}
	shared.RespondError(w, status, err.Error())
}
