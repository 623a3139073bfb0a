package transfer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridian-bank/meridian-bank/internal/transactions"
)

func newTestRouter() (http.Handler, *stubAccounts, *stubTxLog) {
	svc, store, txlog, _ := newTestService()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	handler := NewHandler(logger, svc, nil, 1000)
	r := chi.NewRouter()
	r.Route("/transactions", handler.MountRoutes)
	return r, store, txlog
}

func postJSON(t *testing.T, router http.Handler, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestHandlerTransferCreated(t *testing.T) {
	router, store, _ := newTestRouter()
	owner := uuid.New()
	from := store.add(owner, 10_000, "USD")
	to := store.add(owner, 0, "USD")

	rec := postJSON(t, router, "/transactions/transfer", map[string]any{
		"from_account_id": from.String(),
		"to_account_id":   to.String(),
		"amount":          2500,
		"currency":        "USD",
		"reference_code":  "TRX-HTTP-1",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp struct {
		State         string `json:"state"`
		ReferenceCode string `json:"reference_code"`
		Amount        int64  `json:"amount"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "COMPLETED", resp.State)
	assert.Equal(t, "TRX-HTTP-1", resp.ReferenceCode)
	assert.EqualValues(t, 2500, resp.Amount)
	assert.EqualValues(t, 7_500, store.balance(from))
}

func TestHandlerTransferInsufficientFunds(t *testing.T) {
	router, store, _ := newTestRouter()
	owner := uuid.New()
	from := store.add(owner, 100, "USD")
	to := store.add(owner, 0, "USD")

	rec := postJSON(t, router, "/transactions/transfer", map[string]any{
		"from_account_id": from.String(),
		"to_account_id":   to.String(),
		"amount":          2500,
		"currency":        "USD",
		"reference_code":  "TRX-HTTP-NSF",
	})
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code, rec.Body.String())

	var resp struct {
		Error       string `json:"error"`
		Transaction struct {
			State string `json:"state"`
		} `json:"transaction"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.Error)
	assert.Equal(t, "FAILED", resp.Transaction.State)
}

func TestHandlerTransferRejectsBadBody(t *testing.T) {
	router, _, _ := newTestRouter()

	req := httptest.NewRequest(http.MethodPost, "/transactions/transfer", bytes.NewReader([]byte(`{broken`)))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = postJSON(t, router, "/transactions/transfer", map[string]any{
		"from_account_id": "not-a-uuid",
		"to_account_id":   uuid.New().String(),
		"amount":          100,
		"currency":        "USD",
		"reference_code":  "TRX-BAD",
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = postJSON(t, router, "/transactions/transfer", map[string]any{
		"from_account_id": uuid.New().String(),
		"to_account_id":   uuid.New().String(),
		"amount":          -100,
		"currency":        "USD",
		"reference_code":  "TRX-NEG",
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandlerTransferIdempotentResubmission(t *testing.T) {
	router, store, _ := newTestRouter()
	owner := uuid.New()
	from := store.add(owner, 10_000, "USD")
	to := store.add(owner, 0, "USD")

	body := map[string]any{
		"from_account_id": from.String(),
		"to_account_id":   to.String(),
		"amount":          1000,
		"currency":        "USD",
		"reference_code":  "TRX-HTTP-DUP",
	}
	first := postJSON(t, router, "/transactions/transfer", body)
	require.Equal(t, http.StatusCreated, first.Code)
	second := postJSON(t, router, "/transactions/transfer", body)
	require.Equal(t, http.StatusCreated, second.Code)

	var a, b struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(first.Body.Bytes(), &a))
	require.NoError(t, json.Unmarshal(second.Body.Bytes(), &b))
	assert.Equal(t, a.ID, b.ID)
	assert.EqualValues(t, 9_000, store.balance(from))
}

func TestHandlerDepositAndGet(t *testing.T) {
	router, store, _ := newTestRouter()
	account := store.add(uuid.New(), 0, "USD")

	rec := postJSON(t, router, "/transactions/deposit", map[string]any{
		"account_id":     account.String(),
		"amount":         500,
		"currency":       "USD",
		"reference_code": "DEP-HTTP-1",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var created struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	req := httptest.NewRequest(http.MethodGet, "/transactions/"+created.ID, nil)
	getRec := httptest.NewRecorder()
	router.ServeHTTP(getRec, req)
	require.Equal(t, http.StatusOK, getRec.Code)

	var fetched struct {
		ID    string `json:"id"`
		State string `json:"state"`
	}
	require.NoError(t, json.Unmarshal(getRec.Body.Bytes(), &fetched))
	assert.Equal(t, created.ID, fetched.ID)
	assert.Equal(t, "COMPLETED", fetched.State)
}

func TestHandlerCancelPending(t *testing.T) {
	router, store, txlog := newTestRouter()
	actor := uuid.New()
	from := store.add(actor, 1_000, "USD")

	pending, err := txlog.CreatePendingWithEvent(context.Background(), transactions.CreateInput{
		FromAccountID: &from,
		Amount:        100,
		Currency:      "USD",
		TypeID:        transactions.TypeWithdrawal,
		ReferenceCode: "WDR-HTTP-CXL",
		CreatedBy:     &actor,
	}, nil)
	require.NoError(t, err)

	rec := postJSON(t, router, fmt.Sprintf("/transactions/%s/cancel", pending.ID), map[string]any{
		"actor_id": actor.String(),
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		State string `json:"state"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "CANCELLED", resp.State)
}

func TestHandlerCancelForbiddenForNonInitiator(t *testing.T) {
	router, store, txlog := newTestRouter()
	actor := uuid.New()
	from := store.add(actor, 1_000, "USD")

	pending, err := txlog.CreatePendingWithEvent(context.Background(), transactions.CreateInput{
		FromAccountID: &from,
		Amount:        100,
		Currency:      "USD",
		TypeID:        transactions.TypeWithdrawal,
		ReferenceCode: "WDR-HTTP-403",
		CreatedBy:     &actor,
	}, nil)
	require.NoError(t, err)

	rec := postJSON(t, router, fmt.Sprintf("/transactions/%s/cancel", pending.ID), map[string]any{
		"actor_id": uuid.New().String(),
	})
	require.Equal(t, http.StatusForbidden, rec.Code)
}
