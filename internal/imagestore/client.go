package imagestore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/printworks/photoflow/internal/models"
	"go.uber.org/zap"
)

// image uploads may run for a long time on slow links
const uploadTimeout = 10 * time.Minute

// UploadResult carries the outcome of one finished upload task
type UploadResult struct {
	// URL of the stored full-size image, empty on failure
	URL string
	Err error
}

// CompletionFunc receives finished task results keyed by task id. Results for
// tasks cancelled through CancelAll are never delivered.
type CompletionFunc func(taskID string, result UploadResult)

// uploadResponse is the image store's receipt
type uploadResponse struct {
	Full string `json:"full"`
}

// task is one pending or running upload
type task struct {
	filePath string
	cancel   context.CancelFunc // nil until started
}

// Client uploads image files to the remote image store. Each upload runs as
// an independent task identified by a client-assigned id; completion is
// delivered out of band to the registered CompletionFunc. A task is created
// first and started separately so the caller can durably record the task id
// before any bytes move.
type Client struct {
	client  *http.Client
	baseURL string
	logger  *zap.Logger

	mu        sync.Mutex
	onDone    CompletionFunc
	tasks     map[string]*task
	cancelled map[string]bool
	wg        sync.WaitGroup
}

// NewClient creates new Client instance
func NewClient(baseURL string, logger *zap.Logger) *Client {
	return &Client{
		client: &http.Client{
			Timeout: uploadTimeout,
		},
		baseURL:   baseURL,
		logger:    logger,
		tasks:     map[string]*task{},
		cancelled: map[string]bool{},
	}
}

// OnTaskFinished registers the completion callback. There is exactly one
// consumer; registering replaces any previous callback.
func (c *Client) OnTaskFinished(fn CompletionFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onDone = fn
}

// CreateTask registers an upload task for filePath and returns its id.
// The task does not run until StartTask.
func (c *Client) CreateTask(filePath string) string {
	taskID := uuid.NewString()

	c.mu.Lock()
	defer c.mu.Unlock()
	c.tasks[taskID] = &task{filePath: filePath}

	return taskID
}

// StartTask begins the upload for a created task. Unknown or cancelled task
// ids are ignored.
func (c *Client) StartTask(taskID string) {
	c.mu.Lock()
	tsk, ok := c.tasks[taskID]
	if !ok || tsk.cancel != nil {
		c.mu.Unlock()
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	tsk.cancel = cancel
	c.wg.Add(1)
	c.mu.Unlock()

	go func() {
		defer cancel()
		c.run(ctx, taskID, tsk.filePath)
	}()
}

// Resume restarts an upload under a task id issued before a process restart
func (c *Client) Resume(taskID, filePath string) {
	c.mu.Lock()
	c.tasks[taskID] = &task{filePath: filePath}
	c.mu.Unlock()

	c.StartTask(taskID)
}

// PendingCount returns the number of created or running upload tasks
func (c *Client) PendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.tasks)
}

// CancelAll cancels every pending task and returns once all running task
// goroutines have stopped. A task cancelled here delivers no completion.
func (c *Client) CancelAll(ctx context.Context) error {
	c.mu.Lock()
	for taskID, tsk := range c.tasks {
		if tsk.cancel != nil {
			c.cancelled[taskID] = true
			tsk.cancel()
		} else {
			delete(c.tasks, taskID)
		}
	}
	c.mu.Unlock()

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Client) run(ctx context.Context, taskID, filePath string) {
	defer c.wg.Done()

	result := c.upload(ctx, filePath)

	c.mu.Lock()
	delete(c.tasks, taskID)
	wasCancelled := c.cancelled[taskID]
	delete(c.cancelled, taskID)
	onDone := c.onDone
	c.mu.Unlock()

	// cancelled tasks must not resurrect a cleared processing order
	if wasCancelled {
		c.logger.Debug("upload task cancelled", zap.String("task", taskID))
		return
	}
	if onDone == nil {
		c.logger.Warn("upload finished with no completion registered", zap.String("task", taskID))
		return
	}
	onDone(taskID, result)
}

func (c *Client) upload(ctx context.Context, filePath string) UploadResult {
	body, contentType, err := multipartFileBody(filePath)
	if err != nil {
		return UploadResult{Err: fmt.Errorf("%w: %s", models.ErrDisk, err)}
	}

	// POST /upload
	uploadURL, err := url.JoinPath(c.baseURL, "upload")
	if err != nil {
		return UploadResult{Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, uploadURL, body)
	if err != nil {
		return UploadResult{Err: err}
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if resp != nil {
		defer resp.Body.Close()
	}
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return UploadResult{Err: err}
		}
		return UploadResult{Err: models.NewTransportError(0, err.Error())}
	}

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return UploadResult{Err: models.NewTransportError(resp.StatusCode, string(msg))}
	}

	upResp := uploadResponse{}
	if err := json.NewDecoder(resp.Body).Decode(&upResp); err != nil || upResp.Full == "" {
		return UploadResult{Err: fmt.Errorf("%w: bad upload receipt", models.ErrParsing)}
	}

	return UploadResult{URL: upResp.Full}
}

// multipartFileBody builds a multipart/form-data body containing the file
// under the "file" field
func multipartFileBody(filePath string) (io.Reader, string, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, "", err
	}

	buf := &bytes.Buffer{}
	writer := multipart.NewWriter(buf)
	part, err := writer.CreateFormFile("file", filepath.Base(filePath))
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(data); err != nil {
		return nil, "", err
	}
	if err := writer.Close(); err != nil {
		return nil, "", err
	}

	return buf, writer.FormDataContentType(), nil
}
