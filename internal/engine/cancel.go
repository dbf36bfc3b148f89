package engine

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"
)

// how long to wait for the transfer layer to acknowledge cancellation
const cancelAckTimeout = 30 * time.Second

// CancelProcessing cancels the current run. In-flight transfers are cancelled
// and acknowledged before the processing order is cleared, so a transfer
// finishing mid-cancellation cannot resurrect it. completion is invoked
// exactly once; if a cancellation is already in flight the new completion
// replaces the queued one (last request wins). With nothing to cancel the
// completion fires immediately.
func (e *Engine) CancelProcessing(completion func()) {
	if completion == nil {
		completion = func() {}
	}

	e.mu.Lock()
	if e.processing == nil && !e.store.HasProcessing() {
		e.mu.Unlock()
		completion()
		return
	}

	if e.cancelDone != nil {
		e.cancelDone = completion
		e.mu.Unlock()
		return
	}

	e.cancelDone = completion
	e.mu.Unlock()

	e.logger.Info("cancelling order processing")

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), cancelAckTimeout)
		defer cancel()

		if err := e.transfer.CancelAll(ctx); err != nil {
			e.logger.Error("transfer cancellation not acknowledged", zap.Error(err))
		}

		e.mu.Lock()
		e.processing = nil
		e.stage = stageIdle
		e.dispatched = map[string]bool{}
		e.aborting = false
		if err := e.store.ClearProcessing(); err != nil {
			e.logger.Error("cannot clear processing order", zap.Error(err))
		}
		// cancelled tasks never resolve their references, prune them
		for taskID, ref := range e.store.TaskRefs() {
			if strings.HasPrefix(ref, taskRefPrefix) {
				e.store.TakeTaskRef(taskID)
			}
		}
		done := e.cancelDone
		e.cancelDone = nil
		e.mu.Unlock()

		e.logger.Info("order processing cancelled")
		done()
	}()
}
