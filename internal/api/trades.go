package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/xtrntr/otcexchange/internal/models"
)

// GetAllTrades lists every trade with both orders' amounts
func (h *Handler) GetAllTrades(w http.ResponseWriter, r *http.Request) {
	trades, err := h.Exchange.ListTrades(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, trades)
}

// GetDailyStats lists stored daily stats, oldest first
func (h *Handler) GetDailyStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.Stats.DailyStats(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// GetPaginatedDailyStats lists one page of daily stats, newest first
func (h *Handler) GetPaginatedDailyStats(w http.ResponseWriter, r *http.Request) {
	page, errPage := queryInt(r, "page", 1)
	limit, errLimit := queryInt(r, "limit", 10)
	if errPage != nil || errLimit != nil {
		writeError(w, http.StatusBadRequest, "Page and limit must be valid numbers.")
		return
	}

	stats, err := h.Stats.PaginatedDailyStats(r.Context(), page, limit)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// SaveTodayStats aggregates and stores today's stats; the body is null when no BTC rate was available
func (h *Handler) SaveTodayStats(w http.ResponseWriter, r *http.Request) {
	stat, err := h.Stats.SaveTodayStats(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stat)
}

// GetTodayStats compares today's average price with yesterday's
func (h *Handler) GetTodayStats(w http.ResponseWriter, r *http.Request) {
	res, err := h.Stats.TodayStats(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// GetTodayMatch summarizes today's trades
func (h *Handler) GetTodayMatch(w http.ResponseWriter, r *http.Request) {
	res, err := h.Stats.TodayMatch(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// UploadDailyStats bulk upserts daily stats
func (h *Handler) UploadDailyStats(w http.ResponseWriter, r *http.Request) {
	var req []models.DailyStat
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := h.Stats.UploadDailyStats(r.Context(), req); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"uploaded": len(req)})
}

func queryInt(r *http.Request, key string, def int) (int, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def, nil
	}
	return strconv.Atoi(v)
}
