package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/printworks/photoflow/internal/commerce"
	"github.com/printworks/photoflow/internal/imagestore"
	"github.com/printworks/photoflow/internal/models"
	"github.com/printworks/photoflow/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testTimeout = 2 * time.Second

// fakeTransfer records dispatched tasks and lets tests deliver completions
// in any order
type fakeTransfer struct {
	mu         sync.Mutex
	onDone     imagestore.CompletionFunc
	tasks      map[string]string // task id -> file path
	resumed    map[string]string
	seq        int
	cancelled  bool
	cancelGate chan struct{} // when set, CancelAll blocks until closed
}

func newFakeTransfer() *fakeTransfer {
	return &fakeTransfer{
		tasks:   map[string]string{},
		resumed: map[string]string{},
	}
}

func (f *fakeTransfer) OnTaskFinished(fn imagestore.CompletionFunc) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onDone = fn
}

func (f *fakeTransfer) CreateTask(filePath string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	taskID := fmt.Sprintf("task-%d", f.seq)
	f.tasks[taskID] = filePath
	return taskID
}

func (f *fakeTransfer) StartTask(taskID string) {}

func (f *fakeTransfer) Resume(taskID, filePath string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tasks[taskID] = filePath
	f.resumed[taskID] = filePath
}

func (f *fakeTransfer) CancelAll(ctx context.Context) error {
	f.mu.Lock()
	gate := f.cancelGate
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelled = true
	f.tasks = map[string]string{}
	return nil
}

func (f *fakeTransfer) taskCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.tasks)
}

func (f *fakeTransfer) wasCancelled() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cancelled
}

// finish delivers a completion for taskID as the transfer layer would
func (f *fakeTransfer) finish(taskID string, result imagestore.UploadResult) {
	f.mu.Lock()
	delete(f.tasks, taskID)
	onDone := f.onDone
	f.mu.Unlock()

	onDone(taskID, result)
}

// fakeLoader serves static image bytes, or a configured error
type fakeLoader struct {
	mu    sync.Mutex
	err   error
	calls []string
}

func (l *fakeLoader) ImageData(ctx context.Context, asset *models.Asset) ([]byte, string, error) {
	l.mu.Lock()
	l.calls = append(l.calls, asset.Identifier)
	err := l.err
	l.mu.Unlock()

	if err != nil {
		return nil, "", err
	}
	return []byte("image-bytes"), "jpeg", nil
}

// fakeCommerce scripts submission and polling outcomes
type fakeCommerce struct {
	mu          sync.Mutex
	submitErr   error
	submitCalls int
	orderID     string
	statusFn    func(call int) (*commerce.StatusResult, error)
	statusCalls int
}

func (c *fakeCommerce) SubmitOrder(ctx context.Context, req *commerce.OrderRequest) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.submitCalls++
	if c.submitErr != nil {
		return "", c.submitErr
	}
	if c.orderID == "" {
		c.orderID = "PS96-000000001"
	}
	return c.orderID, nil
}

func (c *fakeCommerce) OrderStatus(ctx context.Context, orderID string) (*commerce.StatusResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.statusCalls++
	if c.statusFn == nil {
		return &commerce.StatusResult{Status: models.OrderStatusPaid, OrderID: orderID}, nil
	}
	return c.statusFn(c.statusCalls)
}

func (c *fakeCommerce) submitted() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.submitCalls
}

func (c *fakeCommerce) polled() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.statusCalls
}

// fakeArtifacts renders one URL per template, or a configured error
type fakeArtifacts struct {
	mu    sync.Mutex
	err   error
	calls int
}

func (a *fakeArtifacts) Generate(ctx context.Context, product *models.Product) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls++
	if a.err != nil {
		return "", a.err
	}
	return "https://artifacts/" + product.Template + ".pdf", nil
}

func (a *fakeArtifacts) generated() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls
}

// recordingDelegate records engine callbacks
type recordingDelegate struct {
	mu            sync.Mutex
	uploadUpdates int
	willFinish    int
	completed     []error
	completedCh   chan error
}

func newRecordingDelegate() *recordingDelegate {
	return &recordingDelegate{completedCh: make(chan error, 16)}
}

func (d *recordingDelegate) UploadStatusUpdated() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.uploadUpdates++
}

func (d *recordingDelegate) OrderWillFinish() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.willFinish++
}

func (d *recordingDelegate) OrderCompleted(err error) {
	d.mu.Lock()
	d.completed = append(d.completed, err)
	d.mu.Unlock()
	d.completedCh <- err
}

func (d *recordingDelegate) willFinishCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.willFinish
}

func (d *recordingDelegate) completedCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.completed)
}

// waitCompleted blocks until the next OrderCompleted callback
func (d *recordingDelegate) waitCompleted(t *testing.T) error {
	t.Helper()
	select {
	case err := <-d.completedCh:
		return err
	case <-time.After(testTimeout):
		t.Fatal("timed out waiting for order completion")
		return nil
	}
}

type testEnv struct {
	engine    *Engine
	store     *store.Store
	transfer  *fakeTransfer
	loader    *fakeLoader
	commerce  *fakeCommerce
	artifacts *fakeArtifacts
	delegate  *recordingDelegate
	dataDir   string
	spoolDir  string
}

func buildEnv(t *testing.T, dataDir, spoolDir string, pollBudget int) *testEnv {
	t.Helper()

	st, err := store.New(dataDir, zap.NewNop())
	require.NoError(t, err)

	env := &testEnv{
		store:     st,
		transfer:  newFakeTransfer(),
		loader:    &fakeLoader{},
		commerce:  &fakeCommerce{},
		artifacts: &fakeArtifacts{},
		delegate:  newRecordingDelegate(),
		dataDir:   dataDir,
		spoolDir:  spoolDir,
	}
	env.engine = New(Config{
		Store:        st,
		Transfer:     env.transfer,
		Loader:       env.loader,
		Commerce:     env.commerce,
		Artifacts:    env.artifacts,
		SpoolDir:     spoolDir,
		PollInterval: time.Millisecond,
		PollBudget:   pollBudget,
		Logger:       zap.NewNop(),
	})
	env.engine.SetDelegate(env.delegate)

	return env
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return buildEnv(t, t.TempDir(), t.TempDir(), 60)
}

// taskForAsset finds the pending task id tagged with the asset identifier,
// waiting out the window between task creation and reference persistence
func (env *testEnv) taskForAsset(t *testing.T, identifier string) string {
	t.Helper()
	var taskID string
	require.Eventually(t, func() bool {
		for id, ref := range env.store.TaskRefs() {
			if ref == taskRefPrefix+identifier {
				taskID = id
				return true
			}
		}
		return false
	}, testTimeout, time.Millisecond, "no pending task for asset %s", identifier)
	return taskID
}

func (env *testEnv) waitTasks(t *testing.T, n int) {
	t.Helper()
	require.Eventually(t, func() bool {
		return env.transfer.taskCount() == n
	}, testTimeout, time.Millisecond)
}

// duplicatedAssetOrder is an order with 2 products and 3 asset references
// covering 2 unique identifiers: "shared" appears in both products
func duplicatedAssetOrder() *models.Order {
	order := models.NewOrder()
	order.DeliveryDetails = &models.DeliveryDetails{
		FirstName: "Ada",
		LastName:  "Lovelace",
		Line1:     "12 Analytical Row",
		City:      "London",
		Zip:       "N1 9GU",
		Country:   "GB",
		Email:     "ada@example.com",
	}
	order.PaymentMethod = "card"
	order.PaymentToken = "tok_123"
	order.Products = []*models.Product{
		{
			Template:  "hardcover_210x210",
			ItemCount: 1,
			Assets: []*models.Asset{
				{Identifier: "shared", FileIdentifier: "shared-file", FilePath: "/photos/shared.jpg"},
				{Identifier: "solo", FileIdentifier: "solo-file", FilePath: "/photos/solo.jpg"},
			},
		},
		{
			Template:  "softcover_148x148",
			ItemCount: 2,
			Assets: []*models.Asset{
				{Identifier: "shared", FileIdentifier: "shared-file", FilePath: "/photos/shared.jpg"},
			},
		},
	}
	return order
}

func TestEngine_StartProcessingUploadsOnlyMissingAssets(t *testing.T) {
	env := newTestEnv(t)

	order := duplicatedAssetOrder()
	// one identifier uploaded on a previous run
	order.SetUploadURL("solo", "https://images/solo_full.jpg")

	env.engine.StartProcessing(order)
	require.True(t, env.engine.IsProcessingOrder())

	// only the missing identifier is dispatched
	env.waitTasks(t, 1)
	env.taskForAsset(t, "shared")
	assert.Len(t, env.store.TaskRefs(), 1)
	assert.Equal(t, 2, env.engine.RemainingUploads())
}

func TestEngine_StartProcessingIsNoopWhileProcessing(t *testing.T) {
	env := newTestEnv(t)

	env.engine.StartProcessing(duplicatedAssetOrder())
	env.waitTasks(t, 2)

	env.engine.StartProcessing(duplicatedAssetOrder())
	assert.Equal(t, 2, env.transfer.taskCount())
}

func TestEngine_UploadAssetsIsIdempotent(t *testing.T) {
	env := newTestEnv(t)

	env.engine.StartProcessing(duplicatedAssetOrder())
	env.waitTasks(t, 2)

	// a second pass while both uploads are in flight must not re-dispatch
	require.True(t, env.engine.RetryProcessing())
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 2, env.transfer.taskCount())
}

func TestEngine_SharedIdentifierFanOut(t *testing.T) {
	env := newTestEnv(t)

	env.engine.StartProcessing(duplicatedAssetOrder())
	env.waitTasks(t, 2)

	// a single completion covers every asset sharing the identifier
	env.transfer.finish(env.taskForAsset(t, "shared"), imagestore.UploadResult{URL: "https://images/shared_full.jpg"})

	assert.Equal(t, 1, env.engine.RemainingUploads())

	saved, err := env.store.LoadProcessing()
	require.NoError(t, err)
	assert.Equal(t, "https://images/shared_full.jpg", saved.Products[0].Assets[0].UploadURL)
	assert.Equal(t, "https://images/shared_full.jpg", saved.Products[1].Assets[0].UploadURL)
}

func TestEngine_FullRunWithDuplicateAsset(t *testing.T) {
	env := newTestEnv(t)

	env.engine.StartProcessing(duplicatedAssetOrder())
	env.waitTasks(t, 2)

	env.transfer.finish(env.taskForAsset(t, "shared"), imagestore.UploadResult{URL: "https://images/shared_full.jpg"})
	env.transfer.finish(env.taskForAsset(t, "solo"), imagestore.UploadResult{URL: "https://images/solo_full.jpg"})

	require.NoError(t, env.delegate.waitCompleted(t))

	// one transition into artifact generation, one generation per product,
	// one submission
	assert.Equal(t, 1, env.delegate.willFinishCount())
	assert.Equal(t, 2, env.artifacts.generated())
	assert.Equal(t, 1, env.commerce.submitted())

	assert.False(t, env.engine.IsProcessingOrder())
	assert.Empty(t, env.store.TaskRefs())
}

func TestEngine_UploadTransportErrorKeepsOrder(t *testing.T) {
	env := newTestEnv(t)

	env.engine.StartProcessing(duplicatedAssetOrder())
	env.waitTasks(t, 2)

	env.transfer.finish(env.taskForAsset(t, "solo"), imagestore.UploadResult{
		Err: models.NewTransportError(500, "boom"),
	})

	err := env.delegate.waitCompleted(t)
	var te models.TransportError
	require.True(t, errors.As(err, &te))

	// the order survives for a retry and no stage transition happened
	assert.True(t, env.engine.IsProcessingOrder())
	assert.Equal(t, 0, env.delegate.willFinishCount())
}

func TestEngine_UnreadableAssetCancelsOrder(t *testing.T) {
	env := newTestEnv(t)
	env.loader.err = models.ErrUnsupportedFormat

	env.engine.StartProcessing(duplicatedAssetOrder())

	err := env.delegate.waitCompleted(t)
	assert.True(t, errors.Is(err, models.ErrCancelled))

	require.Eventually(t, func() bool {
		return !env.engine.IsProcessingOrder()
	}, testTimeout, time.Millisecond)
	assert.Equal(t, 0, env.delegate.willFinishCount())
	assert.Equal(t, 1, env.delegate.completedCount())
}

func TestEngine_ConcurrentFatalUploadFailuresCompleteOnce(t *testing.T) {
	for i := 0; i < 20; i++ {
		env := newTestEnv(t)

		env.engine.StartProcessing(duplicatedAssetOrder())
		env.waitTasks(t, 2)

		// two assets fail unrecoverably at the same time
		var wg sync.WaitGroup
		for j := 0; j < 2; j++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				env.engine.handleUploadFailure(fmt.Errorf("%w: corrupt frame", models.ErrUnsupportedFormat))
			}()
		}
		wg.Wait()

		err := env.delegate.waitCompleted(t)
		assert.True(t, errors.Is(err, models.ErrCancelled))

		require.Eventually(t, func() bool {
			return !env.engine.IsProcessingOrder()
		}, testTimeout, time.Millisecond)

		// only one cancellation ran, so only one completion was delivered
		time.Sleep(10 * time.Millisecond)
		assert.Equal(t, 1, env.delegate.completedCount())
	}
}

func TestEngine_ScratchWriteFailureKeepsOrder(t *testing.T) {
	// spool directory does not exist, every scratch write fails
	env := buildEnv(t, t.TempDir(), "/nonexistent/spool", 60)

	env.engine.StartProcessing(duplicatedAssetOrder())

	err := env.delegate.waitCompleted(t)
	assert.True(t, errors.Is(err, models.ErrDisk))
	assert.True(t, env.engine.IsProcessingOrder())
}

func TestEngine_UnknownTaskCompletionIsIgnored(t *testing.T) {
	env := newTestEnv(t)

	env.engine.StartProcessing(duplicatedAssetOrder())
	env.waitTasks(t, 2)

	env.transfer.finish("task-unrelated", imagestore.UploadResult{URL: "https://images/x.jpg"})

	assert.Equal(t, 3, env.engine.RemainingUploads())
	assert.Equal(t, 0, env.delegate.completedCount())
}
