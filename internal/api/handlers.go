package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"tallybook/internal/database"
	"tallybook/internal/models"
	"tallybook/internal/remote"
	"tallybook/internal/service"
	"tallybook/internal/worker"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

type handler struct {
	deps   Deps
	logger *zerolog.Logger
}

type createTransactionRequest struct {
	Amount      decimal.Decimal        `json:"amount"`
	Type        models.TransactionType `json:"type"`
	Category    string                 `json:"category"`
	Description string                 `json:"description"`
	Date        string                 `json:"date"`
	OwnerID     string                 `json:"owner_id"`
}

func (req createTransactionRequest) toTransaction() (models.Transaction, error) {
	tx := models.Transaction{
		Amount:      req.Amount,
		Type:        req.Type,
		Category:    strings.TrimSpace(req.Category),
		Description: strings.TrimSpace(req.Description),
		OwnerID:     strings.TrimSpace(req.OwnerID),
	}

	raw := strings.TrimSpace(req.Date)
	if raw == "" {
		return tx, nil
	}
	if date, err := time.Parse("2006-01-02", raw); err == nil {
		tx.Date = date
		return tx, nil
	}
	date, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return tx, fmt.Errorf("invalid date format; expected YYYY-MM-DD or RFC3339")
	}
	tx.Date = date.UTC()
	return tx, nil
}

func (h *handler) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handler) createTransaction(w http.ResponseWriter, r *http.Request) {
	var body createTransactionRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	payload, err := body.toTransaction()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := h.deps.Writer.Write(r.Context(), payload)
	if err != nil {
		h.writeWriteError(w, err)
		return
	}

	statusCode := http.StatusCreated
	if res.Persisted == models.PersistedLocal {
		statusCode = http.StatusAccepted
	}
	writeJSON(w, statusCode, res)
}

func (h *handler) writeWriteError(w http.ResponseWriter, err error) {
	var vErr *service.ValidationError
	if errors.As(err, &vErr) {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"error":  "invalid transaction",
			"fields": vErr.Fields(),
		})
		return
	}

	var apiErr *remote.APIError
	if errors.As(err, &apiErr) {
		statusCode := apiErr.StatusCode
		if statusCode < 400 || statusCode >= 500 {
			statusCode = http.StatusBadGateway
		}
		writeError(w, statusCode, apiErr.Message)
		return
	}

	h.logger.Error().Err(err).Msg("write failed")
	writeError(w, http.StatusInternalServerError, "failed to record transaction")
}

func (h *handler) listLocal(w http.ResponseWriter, r *http.Request) {
	entries, err := h.deps.Queue.ListAll(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("list entries failed")
		writeError(w, http.StatusInternalServerError, "failed to list entries")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": nonNil(entries)})
}

func (h *handler) listPending(w http.ResponseWriter, r *http.Request) {
	entries, err := h.deps.Queue.ListUnsynced(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("list pending failed")
		writeError(w, http.StatusInternalServerError, "failed to list pending entries")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"entries": nonNil(entries),
		"count":   len(entries),
	})
}

// deleteEntry removes a synced entry. Unsynced entries need discard=true.
func (h *handler) deleteEntry(w http.ResponseWriter, r *http.Request) {
	localID := chi.URLParam(r, "localID")

	var err error
	if r.URL.Query().Get("discard") == "true" {
		err = h.deps.Queue.DiscardEntry(r.Context(), localID)
	} else {
		err = h.deps.Queue.Delete(r.Context(), localID)
	}

	switch {
	case err == nil:
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, database.ErrEntryNotFound):
		writeError(w, http.StatusNotFound, "entry not found")
	case errors.Is(err, database.ErrEntryUnsynced):
		writeError(w, http.StatusConflict, "entry is not synced; pass discard=true to drop it")
	default:
		h.logger.Error().Err(err).Str("local_id", localID).Msg("delete entry failed")
		writeError(w, http.StatusInternalServerError, "failed to delete entry")
	}
}

func (h *handler) sync(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("async") == "true" {
		h.deps.Drainer.Trigger(models.TriggerManual)
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "scheduled"})
		return
	}

	res, err := h.deps.Drainer.Drain(r.Context())
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, res)
	case errors.Is(err, worker.ErrOffline):
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"error": "offline", "result": res})
	case errors.Is(err, worker.ErrLeaseHeld):
		writeError(w, http.StatusConflict, "another agent is draining the queue")
	case errors.Is(err, worker.ErrLeaseLost):
		writeJSON(w, http.StatusConflict, map[string]any{"error": "drain lease lost", "result": res})
	default:
		h.logger.Error().Err(err).Msg("manual drain failed")
		writeError(w, http.StatusInternalServerError, "drain failed")
	}
}

type statusResponse struct {
	Connectivity models.ConnectivityState `json:"connectivity"`
	Pending      int                      `json:"pending"`
	LastSync     *models.SyncSignal       `json:"last_sync"`
}

func (h *handler) status(w http.ResponseWriter, r *http.Request) {
	pending, err := h.deps.Queue.CountUnsynced(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("count pending failed")
		writeError(w, http.StatusInternalServerError, "failed to read queue")
		return
	}

	resp := statusResponse{
		Connectivity: h.deps.Conn.State(),
		Pending:      pending,
	}
	if sig, ok := h.deps.Signals.Last(); ok {
		resp.LastSync = &sig
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *handler) reportSummary(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("refresh") != "true" {
		writeJSON(w, http.StatusOK, h.deps.Reports.Summary())
		return
	}

	summary, err := h.deps.Reports.Refresh(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("report refresh failed")
		writeError(w, http.StatusInternalServerError, "failed to refresh report")
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func nonNil(entries []models.QueueEntry) []models.QueueEntry {
	if entries == nil {
		return []models.QueueEntry{}
	}
	return entries
}
