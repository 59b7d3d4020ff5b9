package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/socialdeskapp/socialdesk/internal/db"
	"github.com/socialdeskapp/socialdesk/internal/lifecycle"
	"github.com/socialdeskapp/socialdesk/internal/models"
	"github.com/socialdeskapp/socialdesk/internal/services"
)

func (h *Handlers) ListOrders(w http.ResponseWriter, r *http.Request) {
	filter := db.ListFilter{}
	query := r.URL.Query()

	if raw := query.Get("status"); raw != "" {
		status, err := lifecycle.ParseOrderStatus(raw)
		if err != nil {
			h.respondDomainError(w, r, err)
			return
		}
		filter.Status = status
	}
	if raw := query.Get("channel"); raw != "" {
		channel := models.Channel(raw)
		if !channel.Valid() {
			h.respondDomainError(w, r, lifecycle.NewInvalidStateError(raw))
			return
		}
		filter.Channel = channel
	}
	if raw := query.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 {
			h.respondJSON(w, r, http.StatusBadRequest, errorResponse{Error: "limit must be a positive integer", Code: "BAD_REQUEST"})
			return
		}
		filter.Limit = limit
	}

	orders, err := h.orderService.ListOrders(r.Context(), filter)
	if err != nil {
		h.respondDomainError(w, r, err)
		return
	}
	if orders == nil {
		orders = []*models.Order{}
	}

	h.respondJSON(w, r, http.StatusOK, map[string]any{"orders": orders})
}

func (h *Handlers) GetOrder(w http.ResponseWriter, r *http.Request) {
	orderID, ok := h.orderIDFromRequest(w, r)
	if !ok {
		return
	}

	detail, err := h.orderService.GetOrder(r.Context(), orderID)
	if err != nil {
		h.respondDomainError(w, r, err)
		return
	}

	h.respondJSON(w, r, http.StatusOK, detail)
}

type transitionRequest struct {
	NewStatus      string `json:"newStatus"`
	ExpectedStatus string `json:"expectedStatus"`
}

// UpdateOrderStatus applies a lifecycle transition. The client sends the
// status it last saw so a stale view cannot silently overwrite a newer one.
func (h *Handlers) UpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	orderID, ok := h.orderIDFromRequest(w, r)
	if !ok {
		return
	}

	var req transitionRequest
	if !h.decodeJSONBody(w, r, &req) {
		return
	}

	next, err := lifecycle.ParseOrderStatus(req.NewStatus)
	if err != nil {
		h.respondDomainError(w, r, err)
		return
	}
	expected, err := lifecycle.ParseOrderStatus(req.ExpectedStatus)
	if err != nil {
		h.respondDomainError(w, r, err)
		return
	}

	detail, err := h.orderService.ApplyTransition(r.Context(), services.TransitionInput{
		OrderID:        orderID,
		NewStatus:      next,
		ExpectedStatus: expected,
		Actor:          actorFromContext(r.Context()),
	})
	if err != nil {
		h.respondDomainError(w, r, err)
		return
	}

	h.respondJSON(w, r, http.StatusOK, detail)
}

type paymentRequest struct {
	PaymentStatus string `json:"paymentStatus"`
}

func (h *Handlers) UpdatePaymentStatus(w http.ResponseWriter, r *http.Request) {
	orderID, ok := h.orderIDFromRequest(w, r)
	if !ok {
		return
	}

	var req paymentRequest
	if !h.decodeJSONBody(w, r, &req) {
		return
	}

	payment, err := lifecycle.ParsePaymentStatus(req.PaymentStatus)
	if err != nil {
		h.respondDomainError(w, r, err)
		return
	}

	detail, err := h.orderService.UpdatePaymentStatus(r.Context(), orderID, payment, actorFromContext(r.Context()))
	if err != nil {
		h.respondDomainError(w, r, err)
		return
	}

	h.respondJSON(w, r, http.StatusOK, detail)
}

func (h *Handlers) RefundOrder(w http.ResponseWriter, r *http.Request) {
	orderID, ok := h.orderIDFromRequest(w, r)
	if !ok {
		return
	}

	detail, err := h.orderService.RefundOrder(r.Context(), orderID, actorFromContext(r.Context()))
	if err != nil {
		h.respondDomainError(w, r, err)
		return
	}

	h.respondJSON(w, r, http.StatusOK, detail)
}

func (h *Handlers) orderIDFromRequest(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	raw := mux.Vars(r)["id"]
	orderID, err := uuid.Parse(raw)
	if err != nil {
		h.respondJSON(w, r, http.StatusBadRequest, errorResponse{
			Error: fmt.Sprintf("invalid order id %q", raw),
			Code:  "BAD_REQUEST",
		})
		return uuid.Nil, false
	}
	return orderID, true
}

func (h *Handlers) decodeJSONBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		h.respondJSON(w, r, http.StatusBadRequest, errorResponse{Error: "invalid request body", Code: "BAD_REQUEST"})
		return false
	}
	return true
}
