package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/printworks/photoflow/internal/commerce"
	"github.com/printworks/photoflow/internal/models"
	"go.uber.org/zap"
)

// finishOrder enters the post-upload stages. Exactly one run is active at a
// time; a pending cancellation aborts before any work is dispatched.
func (e *Engine) finishOrder() {
	e.mu.Lock()
	if e.processing == nil || e.cancelDone != nil {
		e.mu.Unlock()
		return
	}
	if e.stage != stageUploading && e.stage != stageIdle {
		// already past uploading
		e.mu.Unlock()
		return
	}

	// the backend already accepted this order on a previous attempt;
	// submitting again would create a duplicate, so pick up polling instead
	if e.processing.OrderID != "" {
		orderID := e.processing.OrderID
		e.stage = stagePolling
		e.timesPolled = 0
		e.mu.Unlock()

		e.logger.Info("resuming status polling", zap.String("order_id", orderID))
		e.schedulePoll()
		return
	}

	e.stage = stageGenerating
	order := e.processing
	d := e.delegate
	e.mu.Unlock()

	if d != nil {
		d.OrderWillFinish()
	}
	e.logger.Info("generating artifacts", zap.Int("products", len(order.Products)))

	go e.generateArtifacts(order)
}

// generateArtifacts renders every product's artifact in parallel and joins
// on all of them; one failure fails the stage
func (e *Engine) generateArtifacts(order *models.Order) {
	urls := make([]string, len(order.Products))

	var wg sync.WaitGroup
	var mu sync.Mutex
	var firstErr error

	for i, product := range order.Products {
		if product.PDFURL != "" {
			// generated on a previous attempt
			urls[i] = product.PDFURL
			continue
		}

		wg.Add(1)
		go func(i int, product *models.Product) {
			defer wg.Done()

			pdfURL, err := e.artifacts.Generate(context.Background(), product)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if firstErr == nil {
					firstErr = err
				}
				return
			}
			urls[i] = pdfURL
		}(i, product)
	}
	wg.Wait()

	e.mu.Lock()
	if e.processing == nil || e.cancelDone != nil {
		e.mu.Unlock()
		return
	}

	if firstErr != nil {
		if !errors.Is(firstErr, models.ErrArtifactGeneration) {
			firstErr = fmt.Errorf("%w: %v", models.ErrArtifactGeneration, firstErr)
		}
		e.completeLocked(firstErr, true)
		return
	}

	for i, product := range e.processing.Products {
		product.PDFURL = urls[i]
	}
	if err := e.store.SaveProcessing(e.processing); err != nil {
		e.logger.Error("cannot persist processing order", zap.Error(err))
	}
	e.stage = stageSubmitting
	e.mu.Unlock()

	e.submitOrder()
}

// submitOrder sends the order to the commerce backend once. Validation
// failures are terminal; transport failures keep the processing order so the
// caller can retry.
func (e *Engine) submitOrder() {
	e.mu.Lock()
	if e.processing == nil || e.cancelDone != nil {
		e.mu.Unlock()
		return
	}

	req, err := commerce.BuildOrderRequest(e.processing)
	if err != nil {
		e.completeLocked(err, true)
		return
	}
	e.mu.Unlock()

	e.logger.Info("submitting order", zap.Int("products", len(req.Products)))
	orderID, err := e.commerce.SubmitOrder(context.Background(), req)

	e.mu.Lock()
	if e.processing == nil || e.cancelDone != nil {
		e.mu.Unlock()
		return
	}

	if err != nil {
		e.completeLocked(err, !models.Retryable(err))
		return
	}

	e.processing.OrderID = orderID
	if err := e.store.SaveProcessing(e.processing); err != nil {
		e.logger.Error("cannot persist processing order", zap.Error(err))
	}
	e.stage = stagePolling
	e.timesPolled = 0
	e.mu.Unlock()

	e.logger.Info("order submitted", zap.String("order_id", orderID))
	e.schedulePoll()
}

// schedulePoll arms the next status check; the next poll is scheduled only
// after the previous response has returned
func (e *Engine) schedulePoll() {
	time.AfterFunc(e.pollInterval, e.pollOnce)
}

// pollOnce performs a single status check and decides whether to finish,
// fail or poll again
func (e *Engine) pollOnce() {
	e.mu.Lock()
	if e.processing == nil || e.cancelDone != nil || e.stage != stagePolling {
		e.mu.Unlock()
		return
	}
	orderID := e.processing.OrderID
	e.timesPolled++
	polled := e.timesPolled
	e.mu.Unlock()

	res, err := e.commerce.OrderStatus(context.Background(), orderID)

	e.mu.Lock()
	if e.processing == nil || e.cancelDone != nil || e.stage != stagePolling {
		e.mu.Unlock()
		return
	}

	if err != nil {
		e.completeLocked(err, !models.Retryable(err))
		return
	}

	e.logger.Debug("order status polled",
		zap.String("order_id", orderID),
		zap.String("status", res.Status),
		zap.Int("polled", polled))

	switch {
	case res.Status == models.OrderStatusPaymentError:
		e.completeLocked(fmt.Errorf("%w: %s", models.ErrPayment, res.Message), true)
	case res.Status == models.OrderStatusCancelled || res.Status == models.OrderStatusRefused:
		e.completeLocked(fmt.Errorf("order rejected with status %q: %s", res.Status, res.Message), true)
	case models.StatusInProgress(res.Status):
		if polled >= e.pollBudget {
			e.completeLocked(models.ErrPollingExhausted, true)
			return
		}
		e.mu.Unlock()
		e.schedulePoll()
	default:
		// paid, or any other settled status
		e.resetBasketLocked()
		e.completeLocked(nil, true)
	}
}

// completeLocked finishes the current run and notifies the delegate. The
// engine lock must be held; it is released here. When clear is false the
// processing order survives for a caller-initiated retry.
func (e *Engine) completeLocked(err error, clear bool) {
	if clear {
		e.processing = nil
		e.dispatched = map[string]bool{}
		e.aborting = false
		if cerr := e.store.ClearProcessing(); cerr != nil {
			e.logger.Error("cannot clear processing order", zap.Error(cerr))
		}
	}
	e.stage = stageIdle
	d := e.delegate
	e.mu.Unlock()

	if err != nil {
		e.logger.Error("order processing finished with error",
			zap.Error(err),
			zap.Bool("retryable", models.Retryable(err)))
	} else {
		e.logger.Info("order processing completed")
	}

	if d != nil {
		d.OrderCompleted(err)
	}
}
