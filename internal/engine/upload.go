package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/printworks/photoflow/internal/imagestore"
	"github.com/printworks/photoflow/internal/models"
	"go.uber.org/zap"
)

// uploadAssets dispatches uploads for every asset still missing an upload
// URL. Already-uploaded assets are untouched and duplicated identifiers are
// uploaded once, so repeated calls after a partial run only cover the gap.
// When nothing is left to upload the pipeline advances directly.
func (e *Engine) uploadAssets() {
	e.mu.Lock()
	if e.processing == nil || e.cancelDone != nil {
		e.mu.Unlock()
		return
	}
	e.stage = stageUploading

	remaining := e.processing.RemainingAssetsToUpload()
	if len(remaining) == 0 {
		e.mu.Unlock()
		e.finishOrder()
		return
	}

	var toUpload []*models.Asset
	for _, asset := range remaining {
		if e.dispatched[asset.Identifier] {
			continue
		}
		e.dispatched[asset.Identifier] = true
		toUpload = append(toUpload, asset)
	}
	e.mu.Unlock()

	e.logger.Debug("dispatching asset uploads", zap.Int("count", len(toUpload)))

	for _, asset := range toUpload {
		go e.uploadAsset(asset)
	}
}

// uploadAsset loads the asset's image bytes, spools them to a scratch file
// and hands the file to the transfer subsystem tagged with the asset's
// semantic reference
func (e *Engine) uploadAsset(asset *models.Asset) {
	data, ext, err := e.loader.ImageData(context.Background(), asset)
	if err != nil {
		e.clearDispatched(asset.Identifier)
		e.handleUploadFailure(err)
		return
	}

	scratch := filepath.Join(e.spoolDir, asset.FileIdentifier+"."+ext)
	if err := os.WriteFile(scratch, data, 0o600); err != nil {
		e.clearDispatched(asset.Identifier)
		e.handleUploadFailure(fmt.Errorf("%w: %s", models.ErrDisk, err))
		return
	}

	// record the reference before the task runs so a completion arriving
	// after a crash can still be resolved
	taskID := e.transfer.CreateTask(scratch)
	if err := e.store.PutTaskRef(taskID, taskRefPrefix+asset.Identifier); err != nil {
		e.logger.Warn("cannot persist task reference", zap.String("task", taskID), zap.Error(err))
	}
	e.transfer.StartTask(taskID)

	e.logger.Debug("asset upload dispatched",
		zap.String("asset", asset.Identifier),
		zap.String("task", taskID))
}

func (e *Engine) clearDispatched(identifier string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.dispatched, identifier)
}

// handleUploadFinished reconciles one finished transfer task against the
// processing order. Completions arrive in no particular order, possibly
// for tasks started in a previous process lifetime.
func (e *Engine) handleUploadFinished(taskID string, result imagestore.UploadResult) {
	e.mu.Lock()

	ref, ok := e.store.TakeTaskRef(taskID)
	if !ok || !strings.HasPrefix(ref, taskRefPrefix) {
		e.mu.Unlock()
		e.logger.Debug("ignoring unknown transfer task", zap.String("task", taskID))
		return
	}
	identifier := strings.TrimPrefix(ref, taskRefPrefix)
	delete(e.dispatched, identifier)

	// cancellation wins any race with task completion
	if e.processing == nil || e.cancelDone != nil {
		e.mu.Unlock()
		return
	}

	if result.Err != nil {
		e.mu.Unlock()
		e.handleUploadFailure(result.Err)
		return
	}

	if n := e.processing.SetUploadURL(identifier, result.URL); n == 0 {
		e.mu.Unlock()
		e.handleUploadFailure(fmt.Errorf("%w: no asset for reference %s", models.ErrParsing, identifier))
		return
	}

	// persist before anything else can observe the new state, so a crash
	// here does not re-upload the asset on the next launch
	if err := e.store.SaveProcessing(e.processing); err != nil {
		e.logger.Error("cannot persist processing order", zap.Error(err))
	}

	pending := len(e.processing.RemainingAssetsToUpload())
	advance := pending == 0 && e.stage == stageUploading
	d := e.delegate
	e.mu.Unlock()

	e.logger.Debug("asset uploaded",
		zap.String("asset", identifier),
		zap.Int("remaining", pending))

	if d != nil {
		d.UploadStatusUpdated()
	}
	if advance {
		e.logger.Info("all assets uploaded")
		e.finishOrder()
	}
}

// handleUploadFailure is the shared failure policy for asset uploads:
// unreadable source assets cancel the whole order, everything else is
// reported and leaves the processing order in place for a retry.
func (e *Engine) handleUploadFailure(err error) {
	unrecoverable := errors.Is(err, models.ErrAssetLoad) ||
		errors.Is(err, models.ErrUnsupportedFormat) ||
		errors.Is(err, models.ErrParsing)

	e.mu.Lock()
	if e.processing == nil || e.cancelDone != nil {
		e.mu.Unlock()
		return
	}
	if unrecoverable {
		if e.aborting {
			// another asset already triggered the cancellation
			e.mu.Unlock()
			return
		}
		e.aborting = true
	}
	d := e.delegate
	e.mu.Unlock()

	if unrecoverable {
		e.logger.Error("unrecoverable upload failure, cancelling order", zap.Error(err))
		e.CancelProcessing(func() {
			if d != nil {
				d.OrderCompleted(models.ErrCancelled)
			}
		})
		return
	}

	e.logger.Error("asset upload failed", zap.Error(err))
	if d != nil {
		d.UploadStatusUpdated()
		d.OrderCompleted(err)
	}
}
