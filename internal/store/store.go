package store

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"

	"github.com/printworks/photoflow/internal/models"
	"go.uber.org/zap"
)

// serialization format version, bump on incompatible changes
const storeVersion = 1

const (
	basketOrderFile     = "basket_order.json"
	processingOrderFile = "processing_order.json"
	uploadTasksFile     = "upload_tasks.json"
)

// Store persists the basket order, the processing order and the upload task
// reference table under a single data directory. The presence of the
// processing order file signals that a submission is in flight. Corrupt or
// unreadable files are treated as absent, never as a fatal condition.
type Store struct {
	dir    string
	logger *zap.Logger

	mu       sync.Mutex
	taskRefs map[string]string
}

// New creates new Store instance rooted at dir
func New(dir string, logger *zap.Logger) (*Store, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, err
	}

	s := &Store{
		dir:    dir,
		logger: logger,
	}
	s.taskRefs = s.loadTaskRefs()

	return s, nil
}

// orderEnvelope wraps a persisted order with the format version
type orderEnvelope struct {
	Version int           `json:"version"`
	Order   *models.Order `json:"order"`
}

// taskEnvelope wraps the persisted task reference table
type taskEnvelope struct {
	Version int               `json:"version"`
	Refs    map[string]string `json:"refs"`
}

// LoadBasket returns the persisted basket order
func (s *Store) LoadBasket() (*models.Order, error) {
	return s.loadOrder(basketOrderFile)
}

// SaveBasket persists the basket order
func (s *Store) SaveBasket(order *models.Order) error {
	return s.saveOrder(order, basketOrderFile)
}

// LoadProcessing returns the persisted processing order
func (s *Store) LoadProcessing() (*models.Order, error) {
	return s.loadOrder(processingOrderFile)
}

// SaveProcessing persists the processing order
func (s *Store) SaveProcessing(order *models.Order) error {
	return s.saveOrder(order, processingOrderFile)
}

// ClearProcessing removes the processing order file
func (s *Store) ClearProcessing() error {
	err := os.Remove(filepath.Join(s.dir, processingOrderFile))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// HasProcessing reports whether a processing order file is present
func (s *Store) HasProcessing() bool {
	_, err := os.Stat(filepath.Join(s.dir, processingOrderFile))
	return err == nil
}

func (s *Store) loadOrder(file string) (*models.Order, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, file))
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			s.logger.Warn("cannot read order file", zap.String("file", file), zap.Error(err))
		}
		return nil, models.ErrDataNotFound
	}

	env := orderEnvelope{}
	if err := json.Unmarshal(data, &env); err != nil {
		// fail open: corrupt data means no saved order
		s.logger.Warn("cannot decode order file", zap.String("file", file), zap.Error(err))
		return nil, models.ErrDataNotFound
	}
	if env.Version != storeVersion || env.Order == nil {
		s.logger.Warn("unknown order file version", zap.String("file", file), zap.Int("version", env.Version))
		return nil, models.ErrDataNotFound
	}

	return env.Order, nil
}

func (s *Store) saveOrder(order *models.Order, file string) error {
	data, err := json.Marshal(orderEnvelope{Version: storeVersion, Order: order})
	if err != nil {
		return err
	}
	return s.writeFile(file, data)
}

// writeFile writes through a temp file and renames so a crash mid-write
// cannot leave a truncated slot behind
func (s *Store) writeFile(file string, data []byte) error {
	path := filepath.Join(s.dir, file)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// PutTaskRef records the semantic reference for a transfer task and persists
// the table
func (s *Store) PutTaskRef(taskID, ref string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.taskRefs[taskID] = ref
	return s.saveTaskRefsLocked()
}

// TakeTaskRef resolves and consumes the reference for a finished task.
// Entries are removed once consumed.
func (s *Store) TakeTaskRef(taskID string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ref, ok := s.taskRefs[taskID]
	if !ok {
		return "", false
	}
	delete(s.taskRefs, taskID)
	if err := s.saveTaskRefsLocked(); err != nil {
		s.logger.Warn("cannot persist task table", zap.Error(err))
	}
	return ref, true
}

// TaskRefs returns a copy of the pending task reference table
func (s *Store) TaskRefs() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()

	refs := make(map[string]string, len(s.taskRefs))
	for id, ref := range s.taskRefs {
		refs[id] = ref
	}
	return refs
}

// SaveTaskRefs flushes the task reference table to disk
func (s *Store) SaveTaskRefs() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveTaskRefsLocked()
}

func (s *Store) saveTaskRefsLocked() error {
	if len(s.taskRefs) == 0 {
		err := os.Remove(filepath.Join(s.dir, uploadTasksFile))
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
		return nil
	}

	data, err := json.Marshal(taskEnvelope{Version: storeVersion, Refs: s.taskRefs})
	if err != nil {
		return err
	}
	return s.writeFile(uploadTasksFile, data)
}

func (s *Store) loadTaskRefs() map[string]string {
	data, err := os.ReadFile(filepath.Join(s.dir, uploadTasksFile))
	if err != nil {
		return map[string]string{}
	}

	env := taskEnvelope{}
	if err := json.Unmarshal(data, &env); err != nil || env.Version != storeVersion || env.Refs == nil {
		s.logger.Warn("cannot decode task table, starting empty", zap.Error(err))
		return map[string]string{}
	}
	return env.Refs
}
