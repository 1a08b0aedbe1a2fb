package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/xtrntr/otcexchange/internal/exchange"
	"github.com/xtrntr/otcexchange/internal/models"
)

type createOrderRequest struct {
	Type              string          `json:"type" validate:"required,oneof=BUY SELL"`
	Amount            decimal.Decimal `json:"amount"`
	Price             decimal.Decimal `json:"price"`
	PhoneNumber       string          `json:"phoneNumber" validate:"max=32"`
	AccountNumber     string          `json:"accountNumber" validate:"max=64"`
	BlockchainAddress string          `json:"blockchainAddress" validate:"max=128"`
	BankName          string          `json:"bankName" validate:"max=64"`
	Nickname          string          `json:"nickname" validate:"max=64"`
	Username          string          `json:"username" validate:"max=64"`
}

// CreateOrder places a new order awaiting deposit
func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if !h.decode(w, r, &req) {
		return
	}

	order, err := h.Exchange.CreateOrder(r.Context(), exchange.NewOrder{
		Side:   models.Side(req.Type),
		Amount: req.Amount,
		Price:  req.Price,
		Contact: models.Contact{
			PhoneNumber:       req.PhoneNumber,
			AccountNumber:     req.AccountNumber,
			BlockchainAddress: req.BlockchainAddress,
			BankName:          req.BankName,
			Nickname:          req.Nickname,
			Username:          req.Username,
		},
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, order)
}

// GetAllOrders lists every order
func (h *Handler) GetAllOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.Exchange.ListOrders(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, orders)
}

// GetTodayOrders lists the orders created today (KST)
func (h *Handler) GetTodayOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.Exchange.ListTodayOrders(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, orders)
}

// GetOrdersByStatus lists the orders in one status
func (h *Handler) GetOrdersByStatus(w http.ResponseWriter, r *http.Request) {
	status, err := strconv.Atoi(chi.URLParam(r, "status"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid status")
		return
	}
	orders, err := h.Exchange.ListOrdersByStatus(r.Context(), models.Status(status))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, orders)
}

// GetOrder returns one order
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.Exchange.GetOrder(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

// UpdateOrderStatus applies an operator status change
func (h *Handler) UpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Status             *int             `json:"status" validate:"omitempty,min=0,max=3"`
		CancellationReason *string          `json:"cancellationReason" validate:"omitempty,max=500"`
		RemainingAmount    *decimal.Decimal `json:"remainingAmount"`
	}
	if !h.decode(w, r, &req) {
		return
	}

	upd := exchange.StatusUpdate{
		CancellationReason: req.CancellationReason,
		RemainingAmount:    req.RemainingAmount,
	}
	if req.Status != nil {
		s := models.Status(*req.Status)
		upd.Status = &s
	}
	order, err := h.Exchange.UpdateOrderStatus(r.Context(), chi.URLParam(r, "id"), upd)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

// ProcessOrder sets the processed flag that admits an order to batch matching
func (h *Handler) ProcessOrder(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Processed *bool `json:"processed" validate:"required"`
	}
	if !h.decode(w, r, &req) {
		return
	}
	order, err := h.Exchange.SetProcessed(r.Context(), chi.URLParam(r, "id"), *req.Processed)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

// MatchOrders runs one batch matching pass
func (h *Handler) MatchOrders(w http.ResponseWriter, r *http.Request) {
	if _, err := h.Exchange.RunBatchMatch(r.Context()); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Matching completed"})
}

// MatchSpecificOrders settles one named sell against one named buy
func (h *Handler) MatchSpecificOrders(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SellOrderID string `json:"sellOrderId" validate:"required"`
		BuyOrderID  string `json:"buyOrderId" validate:"required"`
	}
	if !h.decode(w, r, &req) {
		return
	}
	trade, err := h.Exchange.RunDirectedMatch(r.Context(), req.SellOrderID, req.BuyOrderID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]*models.Trade{"trade": trade})
}
