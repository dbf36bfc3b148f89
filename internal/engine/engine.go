package engine

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/printworks/photoflow/internal/assets"
	"github.com/printworks/photoflow/internal/commerce"
	"github.com/printworks/photoflow/internal/imagestore"
	"github.com/printworks/photoflow/internal/models"
	"go.uber.org/zap"
)

// taskRefPrefix namespaces upload task references so that completions for
// unrelated transfers can be told apart from asset uploads
const taskRefPrefix = "photoflow-asset-"

const (
	defaultPollInterval = 500 * time.Millisecond
	defaultPollBudget   = 60
)

// Store is the persistence surface the engine relies on
type Store interface {
	// LoadBasket returns the persisted basket order
	LoadBasket() (*models.Order, error)
	// SaveBasket persists the basket order
	SaveBasket(order *models.Order) error
	// LoadProcessing returns the persisted processing order
	LoadProcessing() (*models.Order, error)
	// SaveProcessing persists the processing order
	SaveProcessing(order *models.Order) error
	// ClearProcessing removes the processing order
	ClearProcessing() error
	// HasProcessing reports whether a processing order is persisted
	HasProcessing() bool
	// PutTaskRef records the semantic reference for a transfer task
	PutTaskRef(taskID, ref string) error
	// TakeTaskRef resolves and consumes the reference for a finished task
	TakeTaskRef(taskID string) (string, bool)
	// TaskRefs returns the pending task reference table
	TaskRefs() map[string]string
}

// Transfer is the background upload subsystem
type Transfer interface {
	// OnTaskFinished registers the completion callback
	OnTaskFinished(fn imagestore.CompletionFunc)
	// CreateTask registers an upload task and returns its id
	CreateTask(filePath string) string
	// StartTask begins a created task
	StartTask(taskID string)
	// Resume restarts an upload under a previously issued task id
	Resume(taskID, filePath string)
	// CancelAll cancels every pending task and waits for acknowledgement
	CancelAll(ctx context.Context) error
}

// Commerce submits orders and reports their status
type Commerce interface {
	SubmitOrder(ctx context.Context, req *commerce.OrderRequest) (string, error)
	OrderStatus(ctx context.Context, orderID string) (*commerce.StatusResult, error)
}

// ArtifactGenerator renders the print-ready artifact for one product
type ArtifactGenerator interface {
	Generate(ctx context.Context, product *models.Product) (string, error)
}

// Delegate receives progress and completion notifications. A nil error in
// OrderCompleted means success. Callbacks run outside the engine's lock and
// may call back into the engine.
type Delegate interface {
	// UploadStatusUpdated fires after every asset upload resolution
	UploadStatusUpdated()
	// OrderWillFinish fires once, when artifact generation begins
	OrderWillFinish()
	// OrderCompleted fires on every terminal or recoverable outcome
	OrderCompleted(err error)
}

// pipeline stage of the processing order
type stage int

const (
	stageIdle stage = iota
	stageUploading
	stageGenerating
	stageSubmitting
	stagePolling
)

// Config collects the engine's collaborators and tuning knobs
type Config struct {
	Store     Store
	Transfer  Transfer
	Loader    assets.Loader
	Commerce  Commerce
	Artifacts ArtifactGenerator
	// SpoolDir holds scratch copies of asset data while uploads run
	SpoolDir     string
	PollInterval time.Duration
	PollBudget   int
	Logger       *zap.Logger
}

// Engine owns the basket order and drives the single processing order
// through upload, artifact generation, submission and status polling.
// All order mutation is serialized under one lock; the engine never blocks
// its caller, results arrive through the delegate.
type Engine struct {
	store        Store
	transfer     Transfer
	loader       assets.Loader
	commerce     Commerce
	artifacts    ArtifactGenerator
	spoolDir     string
	pollInterval time.Duration
	pollBudget   int
	logger       *zap.Logger

	mu         sync.Mutex
	delegate   Delegate
	basket     *models.Order
	processing *models.Order
	stage      stage
	cancelDone func()
	// identifiers with an upload attempt in flight, at most one per call
	dispatched map[string]bool
	// set once an unrecoverable upload failure has triggered cancellation
	aborting    bool
	timesPolled int
}

// New creates new Engine instance and registers for transfer completions
func New(cfg Config) *Engine {
	e := &Engine{
		store:        cfg.Store,
		transfer:     cfg.Transfer,
		loader:       cfg.Loader,
		commerce:     cfg.Commerce,
		artifacts:    cfg.Artifacts,
		spoolDir:     cfg.SpoolDir,
		pollInterval: cfg.PollInterval,
		pollBudget:   cfg.PollBudget,
		logger:       cfg.Logger,
		dispatched:   map[string]bool{},
	}
	if e.pollInterval <= 0 {
		e.pollInterval = defaultPollInterval
	}
	if e.pollBudget <= 0 {
		e.pollBudget = defaultPollBudget
	}

	e.transfer.OnTaskFinished(e.handleUploadFinished)

	return e
}

// SetDelegate registers the delegate for progress and completion callbacks
func (e *Engine) SetDelegate(d Delegate) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.delegate = d
}

// Basket returns the basket order, loading it from disk on first use
func (e *Engine) Basket() *models.Order {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.basketLocked()
}

func (e *Engine) basketLocked() *models.Order {
	if e.basket == nil {
		order, err := e.store.LoadBasket()
		if err != nil {
			order = models.NewOrder()
		}
		e.basket = order
	}
	return e.basket
}

// UpdateBasket replaces and persists the basket order
func (e *Engine) UpdateBasket(order *models.Order) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.basket = order
	return e.store.SaveBasket(order)
}

// SaveBasket persists the basket order
func (e *Engine) SaveBasket() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.store.SaveBasket(e.basketLocked())
}

// ResetBasket replaces the basket with a fresh empty order
func (e *Engine) ResetBasket() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.resetBasketLocked()
}

func (e *Engine) resetBasketLocked() {
	e.basket = models.NewOrder()
	if err := e.store.SaveBasket(e.basket); err != nil {
		e.logger.Error("cannot persist basket order", zap.Error(err))
	}
}

// IsProcessingOrder reports whether a processing order exists in memory or
// in durable storage
func (e *Engine) IsProcessingOrder() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.processing != nil {
		return true
	}
	return e.store.HasProcessing()
}

// RemainingUploads returns the number of assets still waiting for upload
func (e *Engine) RemainingUploads() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.processing == nil {
		return 0
	}
	return len(e.processing.RemainingAssetsToUpload())
}

// StartProcessing takes a deep copy of order as the processing order,
// persists it and begins uploading. It is a no-op while another processing
// order is active.
func (e *Engine) StartProcessing(order *models.Order) {
	e.mu.Lock()
	if e.processing != nil || e.store.HasProcessing() {
		e.mu.Unlock()
		return
	}

	e.processing = order.Copy()
	e.stage = stageUploading
	e.dispatched = map[string]bool{}
	e.aborting = false
	if err := e.store.SaveProcessing(e.processing); err != nil {
		e.logger.Error("cannot persist processing order", zap.Error(err))
	}
	e.mu.Unlock()

	e.logger.Info("order processing started",
		zap.Int("products", len(order.Products)),
		zap.Int("assets", len(order.Assets())))

	e.uploadAssets()
}

// LoadProcessingOrder resumes an interrupted run after a process restart.
// Transfers that were in flight when the process died are reattached through
// the persisted task reference table; anything without a live task is
// uploaded afresh. Returns true if a processing order was recovered.
func (e *Engine) LoadProcessingOrder() bool {
	e.mu.Lock()
	if e.processing != nil {
		e.mu.Unlock()
		return true
	}

	order, err := e.store.LoadProcessing()
	if err != nil {
		e.mu.Unlock()
		return false
	}

	e.processing = order
	e.stage = stageUploading
	e.dispatched = map[string]bool{}
	e.aborting = false

	remaining := map[string]*models.Asset{}
	for _, asset := range order.RemainingAssetsToUpload() {
		remaining[asset.Identifier] = asset
	}

	type resumeTask struct {
		taskID string
		path   string
	}
	var resume []resumeTask

	for taskID, ref := range e.store.TaskRefs() {
		if !strings.HasPrefix(ref, taskRefPrefix) {
			continue
		}
		identifier := strings.TrimPrefix(ref, taskRefPrefix)

		asset, ok := remaining[identifier]
		if !ok {
			// completed before the crash or no longer part of the order
			e.store.TakeTaskRef(taskID)
			continue
		}

		scratch, err := e.findScratchFile(asset)
		if err != nil {
			// scratch data is gone, upload from source instead
			e.store.TakeTaskRef(taskID)
			continue
		}

		e.dispatched[identifier] = true
		resume = append(resume, resumeTask{taskID: taskID, path: scratch})
	}
	e.mu.Unlock()

	for _, rt := range resume {
		e.transfer.Resume(rt.taskID, rt.path)
	}

	e.logger.Info("processing order recovered",
		zap.Int("remaining_uploads", len(remaining)),
		zap.Int("reattached_tasks", len(resume)))

	e.uploadAssets()
	return true
}

// RetryProcessing re-enters the pipeline after a recoverable failure:
// missing uploads are retried first, otherwise the order is finished.
// Returns false if there is nothing to retry.
func (e *Engine) RetryProcessing() bool {
	e.mu.Lock()
	if e.processing == nil {
		e.mu.Unlock()
		return false
	}
	pending := len(e.processing.RemainingAssetsToUpload())
	e.mu.Unlock()

	if pending > 0 {
		e.uploadAssets()
	} else {
		e.finishOrder()
	}
	return true
}

// FinishOrder runs the post-upload stages. It is a no-op while uploads are
// still pending or another finish run is active.
func (e *Engine) FinishOrder() {
	e.mu.Lock()
	if e.processing == nil || len(e.processing.RemainingAssetsToUpload()) > 0 {
		e.mu.Unlock()
		return
	}
	e.mu.Unlock()

	e.finishOrder()
}

// findScratchFile locates the spooled copy of an asset's image data; the
// extension depends on the sniffed source format
func (e *Engine) findScratchFile(asset *models.Asset) (string, error) {
	matches, err := filepath.Glob(filepath.Join(e.spoolDir, asset.FileIdentifier+".*"))
	if err != nil {
		return "", err
	}
	if len(matches) == 0 {
		return "", models.ErrDataNotFound
	}
	return matches[0], nil
}
