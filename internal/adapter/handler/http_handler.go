package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/openmall/order-engine/internal/core/domain"
	"github.com/openmall/order-engine/internal/core/service"
)

type HTTPHandler struct {
	orders *service.OrderService
}

func NewHTTPHandler(orders *service.OrderService) *HTTPHandler {
	return &HTTPHandler{orders: orders}
}

type PlaceOrderRequest struct {
	UserID  string         `json:"user_id"`
	Address domain.Address `json:"address"`
	Remark  string         `json:"remark"`
	Items   []struct {
		SkuID    int64 `json:"sku_id"`
		Quantity int   `json:"quantity"`
	} `json:"items"`
	CouponCode string `json:"coupon_code"`
}

type PlaceOrderResponse struct {
	Success     bool   `json:"success"`
	Message     string `json:"message"`
	OrderNo     string `json:"order_no,omitempty"`
	TotalAmount string `json:"total_amount,omitempty"`
}

func (h *HTTPHandler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req PlaceOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, PlaceOrderResponse{Message: "invalid request body"})
		return
	}
	if req.UserID == "" || len(req.Items) == 0 {
		writeJSON(w, http.StatusBadRequest, PlaceOrderResponse{Message: "missing required fields"})
		return
	}

	items := make([]service.CartItem, 0, len(req.Items))
	for _, it := range req.Items {
		items = append(items, service.CartItem{SkuID: it.SkuID, Quantity: it.Quantity})
	}

	order, err := h.orders.PlaceOrder(r.Context(), req.UserID, req.Address, req.Remark, items, req.CouponCode)
	if err != nil {
		status, message := statusFor(err)
		writeJSON(w, status, PlaceOrderResponse{Message: message})
		return
	}

	writeJSON(w, http.StatusOK, PlaceOrderResponse{
		Success:     true,
		Message:     "order placed",
		OrderNo:     order.No,
		TotalAmount: order.TotalAmount.StringFixed(2),
	})
}

type PaymentNotifyRequest struct {
	OrderNo   string    `json:"order_no"`
	Method    string    `json:"method"`
	PaymentNo string    `json:"payment_no"`
	PaidAt    time.Time `json:"paid_at"`
}

func (h *HTTPHandler) PaymentNotify(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req PaymentNotifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, statusResponse{Message: "invalid request body"})
		return
	}
	if req.OrderNo == "" || req.Method == "" || req.PaymentNo == "" {
		writeJSON(w, http.StatusBadRequest, statusResponse{Message: "missing required fields"})
		return
	}
	paidAt := req.PaidAt
	if paidAt.IsZero() {
		paidAt = time.Now()
	}

	h.respond(w, h.orders.ConfirmPayment(r.Context(), req.OrderNo, req.Method, req.PaymentNo, paidAt))
}

type DeliveryRequest struct {
	OrderNo  string         `json:"order_no"`
	ShipData map[string]any `json:"ship_data"`
}

func (h *HTTPHandler) ConfirmDelivery(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req DeliveryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, statusResponse{Message: "invalid request body"})
		return
	}
	if req.OrderNo == "" {
		writeJSON(w, http.StatusBadRequest, statusResponse{Message: "missing order_no"})
		return
	}

	h.respond(w, h.orders.ConfirmDelivery(r.Context(), req.OrderNo, req.ShipData))
}

type ReceiptRequest struct {
	UserID  string `json:"user_id"`
	OrderNo string `json:"order_no"`
}

func (h *HTTPHandler) ConfirmReceipt(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req ReceiptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, statusResponse{Message: "invalid request body"})
		return
	}
	if req.UserID == "" || req.OrderNo == "" {
		writeJSON(w, http.StatusBadRequest, statusResponse{Message: "missing required fields"})
		return
	}

	h.respond(w, h.orders.ConfirmReceipt(r.Context(), req.UserID, req.OrderNo))
}

type RefundRequest struct {
	UserID  string `json:"user_id"`
	OrderNo string `json:"order_no"`
	Reason  string `json:"reason"`
}

func (h *HTTPHandler) RequestRefund(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req RefundRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, statusResponse{Message: "invalid request body"})
		return
	}
	if req.UserID == "" || req.OrderNo == "" || req.Reason == "" {
		writeJSON(w, http.StatusBadRequest, statusResponse{Message: "missing required fields"})
		return
	}

	h.respond(w, h.orders.RequestRefund(r.Context(), req.UserID, req.OrderNo, req.Reason))
}

type AgreeRefundRequest struct {
	OrderNo string `json:"order_no"`
}

func (h *HTTPHandler) AgreeRefund(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req AgreeRefundRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, statusResponse{Message: "invalid request body"})
		return
	}
	if req.OrderNo == "" {
		writeJSON(w, http.StatusBadRequest, statusResponse{Message: "missing order_no"})
		return
	}

	h.respond(w, h.orders.AgreeRefund(r.Context(), req.OrderNo))
}

type ReviewRequest struct {
	UserID  string `json:"user_id"`
	OrderNo string `json:"order_no"`
	Reviews []struct {
		ItemID int64  `json:"item_id"`
		Rating int    `json:"rating"`
		Review string `json:"review"`
	} `json:"reviews"`
}

func (h *HTTPHandler) SubmitReview(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req ReviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, statusResponse{Message: "invalid request body"})
		return
	}
	if req.UserID == "" || req.OrderNo == "" || len(req.Reviews) == 0 {
		writeJSON(w, http.StatusBadRequest, statusResponse{Message: "missing required fields"})
		return
	}

	reviews := make([]service.ItemReview, 0, len(req.Reviews))
	for _, rv := range req.Reviews {
		reviews = append(reviews, service.ItemReview{ItemID: rv.ItemID, Rating: rv.Rating, Review: rv.Review})
	}

	h.respond(w, h.orders.SubmitReview(r.Context(), req.UserID, req.OrderNo, reviews))
}

func (h *HTTPHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	userID := r.URL.Query().Get("user_id")
	orderNo := r.URL.Query().Get("no")
	if userID == "" || orderNo == "" {
		writeJSON(w, http.StatusBadRequest, statusResponse{Message: "missing required fields"})
		return
	}

	order, err := h.orders.GetOrder(r.Context(), userID, orderNo)
	if err != nil {
		status, message := statusFor(err)
		writeJSON(w, status, statusResponse{Message: message})
		return
	}
	writeJSON(w, http.StatusOK, order)
}

func (h *HTTPHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type statusResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func (h *HTTPHandler) respond(w http.ResponseWriter, err error) {
	if err != nil {
		status, message := statusFor(err)
		writeJSON(w, status, statusResponse{Message: message})
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{Success: true, Message: "ok"})
}

func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, service.ErrInvalidInput):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, service.ErrOrderNotFound),
		errors.Is(err, service.ErrSKUNotFound),
		errors.Is(err, service.ErrItemNotFound):
		return http.StatusNotFound, err.Error()
	case errors.Is(err, service.ErrInsufficientStock):
		return http.StatusGone, "sold out"
	case errors.Is(err, domain.ErrCouponUnavailable):
		return http.StatusForbidden, err.Error()
	case errors.Is(err, service.ErrNotOwner):
		return http.StatusForbidden, "not your order"
	case errors.Is(err, service.ErrRefundAlreadyRequested),
		errors.Is(err, service.ErrAlreadyReviewed):
		return http.StatusConflict, err.Error()
	case errors.Is(err, service.ErrInvalidState):
		return http.StatusBadRequest, err.Error()
	}
	return http.StatusInternalServerError, "internal error"
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
