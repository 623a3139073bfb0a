package transfer

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/meridian-bank/meridian-bank/internal/observability"
	"github.com/meridian-bank/meridian-bank/internal/shared"
	"github.com/meridian-bank/meridian-bank/internal/transactions"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
	rateWindow      = time.Minute
)

// Handler wires HTTP endpoints for transaction operations.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
	metrics   *observability.Metrics
	rateLimit int
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, metrics *observability.Metrics, rateLimit int) *Handler {
	if rateLimit <= 0 {
		rateLimit = 30
	}
	return &Handler{
		logger:    logger,
		service:   service,
		validator: validator.New(),
		metrics:   metrics,
		rateLimit: rateLimit,
	}
}

// MountRoutes registers transaction routes. Mutating endpoints share a
// per-IP rate limit; reads are left to the global limiter.
func (h *Handler) MountRoutes(r chi.Router) {
	limiter := httprate.Limit(h.rateLimit, rateWindow,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			shared.RespondError(w, http.StatusTooManyRequests, http.StatusText(http.StatusTooManyRequests))
		}),
	)
	r.Group(func(gr chi.Router) {
		gr.Use(limiter)
		gr.Post("/transfer", h.createTransfer)
		gr.Post("/deposit", h.createDeposit)
		gr.Post("/withdraw", h.createWithdrawal)
		gr.Post("/{id}/cancel", h.cancelTransaction)
	})
	r.Get("/{id}", h.getTransaction)
	r.Get("/account/{accountID}", h.listByAccount)
	r.Get("/account/{accountID}/sent", h.listSent)
	r.Get("/account/{accountID}/received", h.listReceived)
	r.Get("/stats/{ownerID}", h.ownerStatistics)
}

type transferRequest struct {
	FromAccountID string `json:"from_account_id" validate:"required,uuid"`
	ToAccountID   string `json:"to_account_id" validate:"required,uuid"`
	Amount        int64  `json:"amount" validate:"required,gt=0"`
	Currency      string `json:"currency" validate:"required,len=3"`
	ReferenceCode string `json:"reference_code" validate:"required,max=64"`
	Description   string `json:"description" validate:"max=255"`
	ActorID       string `json:"actor_id" validate:"omitempty,uuid"`
}

type operationRequest struct {
	AccountID     string `json:"account_id" validate:"required,uuid"`
	Amount        int64  `json:"amount" validate:"required,gt=0"`
	Currency      string `json:"currency" validate:"required,len=3"`
	ReferenceCode string `json:"reference_code" validate:"required,max=64"`
	Description   string `json:"description" validate:"max=255"`
	ActorID       string `json:"actor_id" validate:"omitempty,uuid"`
}

type cancelRequest struct {
	ActorID string `json:"actor_id" validate:"omitempty,uuid"`
}

type transactionResponse struct {
	ID            uuid.UUID  `json:"id"`
	FromAccountID *uuid.UUID `json:"from_account_id,omitempty"`
	ToAccountID   *uuid.UUID `json:"to_account_id,omitempty"`
	Amount        int64      `json:"amount"`
	Currency      string     `json:"currency"`
	TypeID        int64      `json:"type_id"`
	ReferenceCode string     `json:"reference_code"`
	State         string     `json:"state"`
	Description   string     `json:"description"`
	CreatedAt     time.Time  `json:"created_at"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
}

func toTransactionResponse(t transactions.Transaction) transactionResponse {
	return transactionResponse{
		ID:            t.ID,
		FromAccountID: t.FromAccountID,
		ToAccountID:   t.ToAccountID,
		Amount:        t.Amount,
		Currency:      t.Currency,
		TypeID:        t.TypeID,
		ReferenceCode: t.ReferenceCode,
		State:         string(t.State),
		Description:   t.Description,
		CreatedAt:     t.CreatedAt,
		CompletedAt:   t.CompletedAt,
	}
}

func (h *Handler) createTransfer(w http.ResponseWriter, r *http.Request) {
	var req transferRequest
	if !h.decode(w, r, &req) {
		return
	}
	fromID, err := uuid.Parse(req.FromAccountID)
	if err != nil {
		shared.RespondError(w, http.StatusBadRequest, "invalid from_account_id")
		return
	}
	toID, err := uuid.Parse(req.ToAccountID)
	if err != nil {
		shared.RespondError(w, http.StatusBadRequest, "invalid to_account_id")
		return
	}
	record, err := h.service.Transfer(r.Context(), TransferInput{
		FromAccountID: fromID,
		ToAccountID:   toID,
		Amount:        req.Amount,
		Currency:      req.Currency,
		ReferenceCode: req.ReferenceCode,
		Description:   req.Description,
		ActorID:       h.actorID(r, req.ActorID),
	})
	h.respondOutcome(w, record, err)
}

func (h *Handler) createDeposit(w http.ResponseWriter, r *http.Request) {
	h.createOperation(w, r, DirectionDeposit)
}

func (h *Handler) createWithdrawal(w http.ResponseWriter, r *http.Request) {
	h.createOperation(w, r, DirectionWithdraw)
}

func (h *Handler) createOperation(w http.ResponseWriter, r *http.Request, direction Direction) {
	var req operationRequest
	if !h.decode(w, r, &req) {
		return
	}
	accountID, err := uuid.Parse(req.AccountID)
	if err != nil {
		shared.RespondError(w, http.StatusBadRequest, "invalid account_id")
		return
	}
	record, err := h.service.DepositOrWithdraw(r.Context(), DepositWithdrawInput{
		AccountID:     accountID,
		Amount:        req.Amount,
		Direction:     direction,
		Currency:      req.Currency,
		ReferenceCode: req.ReferenceCode,
		Description:   req.Description,
		ActorID:       h.actorID(r, req.ActorID),
	})
	h.respondOutcome(w, record, err)
}

func (h *Handler) cancelTransaction(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r, "id")
	if !ok {
		return
	}
	var req cancelRequest
	if !h.decode(w, r, &req) {
		return
	}
	actorID := h.actorID(r, req.ActorID)
	if actorID == nil {
		shared.RespondError(w, http.StatusBadRequest, "actor_id required")
		return
	}
	record, err := h.service.Cancel(r.Context(), id, *actorID)
	if err != nil {
		if errors.Is(err, ErrNotInitiator) {
			shared.RespondError(w, http.StatusForbidden, err.Error())
			return
		}
		h.respondError(w, "cancel transaction", err)
		return
	}
	h.metrics.ObserveTransfer(strings.ToLower(string(record.State)))
	shared.RespondJSON(w, http.StatusOK, toTransactionResponse(record))
}

func (h *Handler) getTransaction(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r, "id")
	if !ok {
		return
	}
	record, err := h.service.GetTransaction(r.Context(), id)
	if err != nil {
		h.respondError(w, "get transaction", err)
		return
	}
	shared.RespondJSON(w, http.StatusOK, toTransactionResponse(record))
}

func (h *Handler) listByAccount(w http.ResponseWriter, r *http.Request) {
	h.listWith(w, r, h.service.History)
}

func (h *Handler) listSent(w http.ResponseWriter, r *http.Request) {
	h.listWith(w, r, h.service.Sent)
}

func (h *Handler) listReceived(w http.ResponseWriter, r *http.Request) {
	h.listWith(w, r, h.service.Received)
}

func (h *Handler) listWith(w http.ResponseWriter, r *http.Request, load func(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]transactions.Transaction, error)) {
	accountID, ok := h.parseID(w, r, "accountID")
	if !ok {
		return
	}
	limit, offset, ok := h.parsePaging(w, r)
	if !ok {
		return
	}
	list, err := load(r.Context(), accountID, limit, offset)
	if err != nil {
		h.respondError(w, "list transactions", err)
		return
	}
	out := make([]transactionResponse, 0, len(list))
	for _, t := range list {
		out = append(out, toTransactionResponse(t))
	}
	shared.RespondJSON(w, http.StatusOK, out)
}

func (h *Handler) ownerStatistics(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := h.parseID(w, r, "ownerID")
	if !ok {
		return
	}
	stats, err := h.service.Statistics(r.Context(), ownerID)
	if err != nil {
		h.respondError(w, "owner statistics", err)
		return
	}
	shared.RespondJSON(w, http.StatusOK, map[string]any{
		"owner_id":          stats.OwnerID,
		"total_balance":     stats.TotalBalance,
		"account_count":     stats.AccountCount,
		"transaction_count": stats.TransactionCount,
	})
}

// respondOutcome maps a finished submission to a response. A terminal
// FAILED record still returns the typed error; the record itself rides
// along so callers can inspect the outcome.
func (h *Handler) respondOutcome(w http.ResponseWriter, record transactions.Transaction, err error) {
	if err != nil {
		if record.ID != uuid.Nil {
			h.metrics.ObserveTransfer("failed")
			status := shared.StatusForError(err)
			if status == http.StatusInternalServerError {
				h.logger.Error("submission failed", slog.Any("error", err), slog.String("transaction_id", record.ID.String()))
				shared.RespondError(w, status, http.StatusText(status))
				return
			}
			shared.RespondJSON(w, status, map[string]any{
				"error":       err.Error(),
				"transaction": toTransactionResponse(record),
			})
			return
		}
		h.respondError(w, "submit transaction", err)
		return
	}
	h.metrics.ObserveTransfer(strings.ToLower(string(record.State)))
	shared.RespondJSON(w, http.StatusCreated, toTransactionResponse(record))
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		shared.RespondError(w, http.StatusBadRequest, "invalid json body")
		return false
	}
	if err := h.validator.Struct(v); err != nil {
		shared.RespondError(w, http.StatusBadRequest, err.Error())
		return false
	}
	return true
}

func (h *Handler) parseID(w http.ResponseWriter, r *http.Request, param string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, param))
	if err != nil {
		shared.RespondError(w, http.StatusBadRequest, "invalid "+param)
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) parsePaging(w http.ResponseWriter, r *http.Request) (limit, offset int, ok bool) {
	limit = defaultPageSize
	if v := strings.TrimSpace(r.URL.Query().Get("limit")); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 {
			shared.RespondError(w, http.StatusBadRequest, "invalid limit")
			return 0, 0, false
		}
		if parsed > maxPageSize {
			parsed = maxPageSize
		}
		limit = parsed
	}
	if v := strings.TrimSpace(r.URL.Query().Get("offset")); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 0 {
			shared.RespondError(w, http.StatusBadRequest, "invalid offset")
			return 0, 0, false
		}
		offset = parsed
	}
	return limit, offset, true
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

// actorID resolves the acting identity: an explicit actor_id in the
// body wins, otherwise the verified actor from the request context.
func (h *Handler) actorID(r *http.Request, raw string) *uuid.UUID {
	if id := parseOptionalID(raw); id != nil {
		return id
	}
	if actor, ok := shared.ActorFromContext(r.Context()); ok {
		id := actor.ID
		return &id
	}
	return nil
}

func parseOptionalID(raw string) *uuid.UUID {
	if raw == "" {
		return nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil
	}
	return &id
}
