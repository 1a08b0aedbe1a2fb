package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/xtrntr/otcexchange/internal/auth"
	"github.com/xtrntr/otcexchange/internal/exchange"
	"github.com/xtrntr/otcexchange/internal/stats"
	"github.com/xtrntr/otcexchange/internal/switchboard"
	"go.uber.org/zap"
)

const tokenCookie = "jwt"

// Handler contains dependencies for HTTP handlers
type Handler struct {
	Exchange    *exchange.Exchange
	AuthService *auth.AuthService
	Switch      *switchboard.Switch
	Stats       *stats.Service
	logger      *zap.Logger
	validate    *validator.Validate
}

// NewHandler creates a new handler
func NewHandler(ex *exchange.Exchange, authService *auth.AuthService, sw *switchboard.Switch, st *stats.Service, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		Exchange:    ex,
		AuthService: authService,
		Switch:      sw,
		Stats:       st,
		logger:      logger,
		validate:    validator.New(),
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// fail maps a service error to its HTTP status. Store failures are logged
// and reported without detail.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	var status int
	switch {
	case errors.Is(err, exchange.ErrOrderNotFound):
		status = http.StatusNotFound
	case errors.Is(err, exchange.ErrInvalidOrderState), errors.Is(err, exchange.ErrConcurrentModification):
		status = http.StatusConflict
	case errors.Is(err, exchange.ErrPriceConstraint):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, exchange.ErrInvalidOrder), errors.Is(err, stats.ErrInvalidStat):
		status = http.StatusBadRequest
	default:
		h.logger.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	writeError(w, status, err.Error())
}

// decode reads a JSON body into v and validates it
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	if err := h.validate.Struct(v); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return false
	}
	return true
}

// Login exchanges the admin code for a JWT, returned in the body and as a cookie
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Code string `json:"code" validate:"required"`
	}
	if !h.decode(w, r, &req) {
		return
	}

	token, err := h.AuthService.Login(req.Code)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Invalid admin code")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     tokenCookie,
		Value:    token,
		Path:     "/",
		MaxAge:   int(h.AuthService.TTL().Seconds()),
		Secure:   true,
		SameSite: http.SameSiteStrictMode,
	})
	writeJSON(w, http.StatusOK, map[string]string{"message": "Login successful", "token": token})
}

// ValidateToken answers 200 for a request that passed JWTAuthMiddleware
func (h *Handler) ValidateToken(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": "Token is valid"})
}

// JWTAuthMiddleware verifies the admin JWT from the Authorization header or the jwt cookie
func (h *Handler) JWTAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenString := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if tokenString == "" {
			if c, err := r.Cookie(tokenCookie); err == nil {
				tokenString = c.Value
			}
		}
		if tokenString == "" {
			writeError(w, http.StatusUnauthorized, "Authorization required")
			return
		}

		if err := h.AuthService.ValidateToken(tokenString); err != nil {
			writeError(w, http.StatusUnauthorized, "Invalid or expired token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// TradingGate rejects requests while the trading switch is off
func (h *Handler) TradingGate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		enabled, err := h.Switch.Enabled(r.Context())
		if err != nil {
			h.fail(w, r, err)
			return
		}
		if !enabled {
			writeError(w, http.StatusForbidden, "Trading is currently disabled")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// GetSwitch returns the trading switch
func (h *Handler) GetSwitch(w http.ResponseWriter, r *http.Request) {
	enabled, err := h.Switch.Enabled(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"isActive": enabled})
}

// UpdateSwitch turns trading on or off
func (h *Handler) UpdateSwitch(w http.ResponseWriter, r *http.Request) {
	var req struct {
		IsActive *bool `json:"isActive" validate:"required"`
	}
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.Switch.SetEnabled(r.Context(), *req.IsActive); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"isActive": *req.IsActive})
}
