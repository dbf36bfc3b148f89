package handler

import (
	"encoding/json"
	"net/http"

	"github.com/printworks/photoflow/internal/models"
)

//go:generate mockgen -source=order.go -destination=mocks/mock_order.go -package=mocks

// OrderProcessor is the part of the processing engine the HTTP layer needs
type OrderProcessor interface {
	// Basket returns the current basket order
	Basket() *models.Order
	// UpdateBasket replaces and persists the basket order
	UpdateBasket(order *models.Order) error
	// IsProcessingOrder reports whether a checkout run is active
	IsProcessingOrder() bool
	// RemainingUploads returns the number of assets still to upload
	RemainingUploads() int
	// StartProcessing begins processing the given order
	StartProcessing(order *models.Order)
	// RetryProcessing re-enters the pipeline after a recoverable failure
	RetryProcessing() bool
	// CancelProcessing cancels the active run and calls completion when done
	CancelProcessing(completion func())
}

// OrderHandler represents HTTP handler for order-related requests
type OrderHandler struct {
	proc OrderProcessor
}

// NewOrderHandler creates new OrderHandler instance
func NewOrderHandler(proc OrderProcessor) *OrderHandler {
	return &OrderHandler{proc: proc}
}

type orderStatusResponse struct {
	Processing       bool `json:"processing"`
	RemainingUploads int  `json:"remaining_uploads"`
}

// ProcessOrder checks out the current basket
// 202 — basket accepted for processing;
// 409 — another order is already being processed;
// 422 — basket is empty.
func (oh *OrderHandler) ProcessOrder() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if oh.proc.IsProcessingOrder() {
			http.Error(w, "order already in progress", http.StatusConflict)
			return
		}

		basket := oh.proc.Basket()
		if len(basket.Products) == 0 {
			http.Error(w, "basket is empty", http.StatusUnprocessableEntity)
			return
		}

		oh.proc.StartProcessing(basket)
		w.WriteHeader(http.StatusAccepted)
	}
}

// RetryOrder retries a previously failed run
// 202 — retry accepted;
// 409 — there is no order to retry.
func (oh *OrderHandler) RetryOrder() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !oh.proc.RetryProcessing() {
			http.Error(w, "no order to retry", http.StatusConflict)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	}
}

// CancelOrder cancels the active run and replies once in-flight transfers
// have been stopped
// 200 — order cancelled (or nothing to cancel).
func (oh *OrderHandler) CancelOrder() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		done := make(chan struct{})
		oh.proc.CancelProcessing(func() { close(done) })

		select {
		case <-done:
			w.WriteHeader(http.StatusOK)
		case <-r.Context().Done():
		}
	}
}

// OrderStatus reports whether an order is processing and how many uploads
// remain
// 200 — processing state returned.
func (oh *OrderHandler) OrderStatus() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		statusResp := orderStatusResponse{
			Processing:       oh.proc.IsProcessingOrder(),
			RemainingUploads: oh.proc.RemainingUploads(),
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)

		if err := json.NewEncoder(w).Encode(statusResp); err != nil {
			return
		}
	}
}
