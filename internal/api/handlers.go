package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"github.com/trogers1052/crypto-portfolio/internal/models"
	"github.com/trogers1052/crypto-portfolio/internal/portfolio"
)

// Ledger is the write side of the API
type Ledger interface {
	Record(ctx context.Context, req portfolio.RecordRequest) (*portfolio.RecordResult, error)
	Remove(ctx context.Context, owner string, id int64) error
}

// Recalculator rebuilds a cached position from the ledger.
type Recalculator interface {
	Recalculate(ctx context.Context, owner, symbol string) (*models.Position, error)
}

// Valuer builds value series and overviews.
type Valuer interface {
	PositionSeries(ctx context.Context, owner, symbol string, period models.Period) (*models.ValueSeries, error)
	PortfolioSeries(ctx context.Context, owner string, period models.Period, includeQuote bool) (*portfolio.PortfolioSeries, error)
	Overview(ctx context.Context, owner string) (*portfolio.Overview, error)
}

// Reader is the read-only store surface the API lists from.
type Reader interface {
	GetPosition(ctx context.Context, owner, symbol string) (*models.Position, error)
	ListPositions(ctx context.Context, owner string) ([]*models.Position, error)
	ListTransactions(ctx context.Context, owner, symbol string) ([]*models.Transaction, error)
	ListAssets(ctx context.Context) ([]*models.Asset, error)
	GetAlertHistoryByID(ctx context.Context, id int64) (*models.AlertHistory, error)
	GetAlertHistoryByOwner(ctx context.Context, owner string, limit int) ([]*models.AlertHistory, error)
}

const (
	defaultAlertLimit = 50
	maxAlertLimit     = 500
)

// Pinger reports backing store health. Optional.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler holds dependencies for HTTP handlers
type Handler struct {
	ledger       Ledger
	recalculator Recalculator
	valuer       Valuer
	reader       Reader
	pinger       Pinger
	logger       *slog.Logger
}

// NewHandler creates a new Handler. pinger may be nil.
func NewHandler(ledger Ledger, recalculator Recalculator, valuer Valuer, reader Reader, pinger Pinger, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		ledger:       ledger,
		recalculator: recalculator,
		valuer:       valuer,
		reader:       reader,
		pinger:       pinger,
		logger:       logger,
	}
}

type recordTransactionRequest struct {
	Symbol     string          `json:"symbol"`
	Date       string          `json:"date"`
	Quantity   decimal.Decimal `json:"quantity"`
	Price      decimal.Decimal `json:"price"`
	Source     string          `json:"source"`
	ExternalID string          `json:"external_id"`
}

// RecordTransaction handles POST /owners/{owner}/transactions
func (h *Handler) RecordTransaction(w http.ResponseWriter, r *http.Request) {
	owner := mux.Vars(r)["owner"]

	var req recordTransactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondMessage(w, http.StatusBadRequest, "invalid", "invalid request body")
		return
	}

	var date time.Time
	if req.Date != "" {
		var err error
		if date, err = models.ParseDate(req.Date); err != nil {
			respondMessage(w, http.StatusBadRequest, "invalid", err.Error())
			return
		}
	}

	result, err := h.ledger.Record(r.Context(), portfolio.RecordRequest{
		Owner:      owner,
		Symbol:     req.Symbol,
		Date:       date,
		Quantity:   req.Quantity,
		Price:      req.Price,
		Source:     req.Source,
		ExternalID: req.ExternalID,
	})
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	if !result.Stored() {
		respondJSON(w, http.StatusOK, result)
		return
	}
	respondJSON(w, http.StatusCreated, result)
}

// RemoveTransaction handles DELETE /owners/{owner}/transactions/{id}
func (h *Handler) RemoveTransaction(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	id, err := strconv.ParseInt(vars["id"], 10, 64)
	if err != nil {
		respondMessage(w, http.StatusBadRequest, "invalid", "transaction id must be an integer")
		return
	}

	if err := h.ledger.Remove(r.Context(), vars["owner"], id); err != nil {
		h.respondError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ListTransactions handles GET /owners/{owner}/transactions?symbol=
func (h *Handler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	txs, err := h.reader.ListTransactions(r.Context(), mux.Vars(r)["owner"], r.URL.Query().Get("symbol"))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	if txs == nil {
		txs = []*models.Transaction{}
	}
	respondJSON(w, http.StatusOK, txs)
}

func (h *Handler) ListPositions(w http.ResponseWriter, r *http.Request) {
	positions, err := h.reader.ListPositions(r.Context(), mux.Vars(r)["owner"])
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	if positions == nil {
		positions = []*models.Position{}
	}
	respondJSON(w, http.StatusOK, positions)
}

// GetPosition handles GET /owners/{owner}/positions/{symbol}
func (h *Handler) GetPosition(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	pos, err := h.reader.GetPosition(r.Context(), vars["owner"], vars["symbol"])
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, pos)
}

// RecalculatePosition handles POST /owners/{owner}/positions/{symbol}/recalculate.
// A position with no remaining transactions is deleted and answered with 204.
func (h *Handler) RecalculatePosition(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	pos, err := h.recalculator.Recalculate(r.Context(), vars["owner"], vars["symbol"])
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	if pos == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	respondJSON(w, http.StatusOK, pos)
}

// PositionSeries handles GET /owners/{owner}/positions/{symbol}/series?period=
func (h *Handler) PositionSeries(w http.ResponseWriter, r *http.Request) {
	period, ok := periodParam(w, r)
	if !ok {
		return
	}
	vars := mux.Vars(r)
	series, err := h.valuer.PositionSeries(r.Context(), vars["owner"], vars["symbol"], period)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, series)
}

// PortfolioSeries handles GET /owners/{owner}/portfolio/series?period=&include_quote=
func (h *Handler) PortfolioSeries(w http.ResponseWriter, r *http.Request) {
	period, ok := periodParam(w, r)
	if !ok {
		return
	}
	includeQuote := false
	if v := r.URL.Query().Get("include_quote"); v != "" {
		var err error
		if includeQuote, err = strconv.ParseBool(v); err != nil {
			respondMessage(w, http.StatusBadRequest, "invalid", "include_quote must be true or false")
			return
		}
	}

	series, err := h.valuer.PortfolioSeries(r.Context(), mux.Vars(r)["owner"], period, includeQuote)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, series)
}

func (h *Handler) Overview(w http.ResponseWriter, r *http.Request) {
	ov, err := h.valuer.Overview(r.Context(), mux.Vars(r)["owner"])
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, ov)
}

// ListAssets handles GET /assets
func (h *Handler) ListAssets(w http.ResponseWriter, r *http.Request) {
	assets, err := h.reader.ListAssets(r.Context())
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, assets)
}

// HealthCheck handles GET /health
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	if h.pinger != nil {
		if err := h.pinger.Ping(r.Context()); err != nil {
			h.logger.Error("health check failed", "err", err)
			respondJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy"})
			return
		}
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// periodParam reads ?period=, defaulting to DAILY.
func periodParam(w http.ResponseWriter, r *http.Request) (models.Period, bool) {
	raw := r.URL.Query().Get("period")
	if raw == "" {
		return models.PeriodDaily, true
	}
	period, err := models.ParsePeriod(raw)
	if err != nil {
		respondMessage(w, http.StatusBadRequest, "invalid", err.Error())
		return "", false
	}
	return period, true
}

// ListAlerts handles GET /owners/{owner}/alerts?limit=
func (h *Handler) ListAlerts(w http.ResponseWriter, r *http.Request) {
	limit := defaultAlertLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxAlertLimit {
			respondMessage(w, http.StatusBadRequest, "invalid", "limit must be between 1 and 500")
			return
		}
		limit = n
	}

	alerts, err := h.reader.GetAlertHistoryByOwner(r.Context(), mux.Vars(r)["owner"], limit)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	if alerts == nil {
		alerts = []*models.AlertHistory{}
	}
	respondJSON(w, http.StatusOK, alerts)
}

// GetAlert handles GET /owners/{owner}/alerts/{id}
func (h *Handler) GetAlert(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	id, err := strconv.ParseInt(vars["id"], 10, 64)
	if err != nil {
		respondMessage(w, http.StatusBadRequest, "invalid", "alert id must be an integer")
		return
	}

	alert, err := h.reader.GetAlertHistoryByID(r.Context(), id)
	if err == nil && alert.Owner != vars["owner"] {
		err = fmt.Errorf("%w: %d", portfolio.ErrAlertNotFound, id)
	}
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, alert)
}

type errorResponse struct {
	State string `json:"state"`
	Error string `json:"error"`
}

// respondError maps ledger and valuation errors onto HTTP statuses.
func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, portfolio.ErrPositionNotFound),
		errors.Is(err, portfolio.ErrNoPositions),
		errors.Is(err, portfolio.ErrTransactionNotFound),
		errors.Is(err, portfolio.ErrAlertNotFound):
		respondMessage(w, http.StatusNotFound, "no_data", err.Error())
	case errors.Is(err, portfolio.ErrPriceDataUnavailable):
		respondMessage(w, http.StatusFailedDependency, "price_unavailable", err.Error())
	case errors.Is(err, portfolio.ErrMalformedSeries):
		respondMessage(w, http.StatusUnprocessableEntity, "malformed_series", err.Error())
	case errors.Is(err, portfolio.ErrDuplicateTransaction):
		respondMessage(w, http.StatusConflict, "duplicate", err.Error())
	case errors.Is(err, portfolio.ErrGeneratedTransaction):
		respondMessage(w, http.StatusConflict, "generated", err.Error())
	case errors.Is(err, portfolio.ErrWouldOverdraw):
		respondMessage(w, http.StatusConflict, "overdraw", err.Error())
	case errors.Is(err, portfolio.ErrInvalidTransaction),
		errors.Is(err, portfolio.ErrUnknownAsset):
		respondMessage(w, http.StatusBadRequest, "invalid", err.Error())
	default:
		h.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "err", err)
		respondMessage(w, http.StatusInternalServerError, "error", "internal error")
	}
}

func respondMessage(w http.ResponseWriter, status int, state, msg string) {
	respondJSON(w, status, errorResponse{State: state, Error: msg})
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
