package handler

import (
	"encoding/json"
	"net/http"

	"github.com/printworks/photoflow/internal/models"
)

// BasketHandler represents HTTP handler for basket-related requests
type BasketHandler struct {
	proc OrderProcessor
}

// NewBasketHandler creates new BasketHandler instance
func NewBasketHandler(proc OrderProcessor) *BasketHandler {
	return &BasketHandler{proc: proc}
}

// GetBasket returns the current basket order
// 200 — basket returned.
func (bh *BasketHandler) GetBasket() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		basket := bh.proc.Basket()

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)

		if err := json.NewEncoder(w).Encode(basket); err != nil {
			return
		}
	}
}

// PutBasket replaces the basket order
// 200 — basket stored;
// 400 — malformed basket payload;
// 500 — basket cannot be persisted.
func (bh *BasketHandler) PutBasket() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var basket models.Order

		if err := json.NewDecoder(r.Body).Decode(&basket); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		defer r.Body.Close()

		if err := bh.proc.UpdateBasket(&basket); err != nil {
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}

		w.WriteHeader(http.StatusOK)
	}
}
