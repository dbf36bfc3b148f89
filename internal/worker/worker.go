package worker

import (
	"context"

	"go.uber.org/zap"
)

// Engine is the part of the processing engine the resumer drives
type Engine interface {
	// LoadProcessingOrder restores an interrupted run from disk
	LoadProcessingOrder() bool
}

// TaskTable persists the transfer task reference table
type TaskTable interface {
	SaveTaskRefs() error
}

// Resumer reattaches an interrupted processing run on startup and flushes
// the task reference table on shutdown
type Resumer struct {
	eng    Engine
	tasks  TaskTable
	logger *zap.Logger
}

// NewResumer creates new resumer
func NewResumer(eng Engine, tasks TaskTable, logger *zap.Logger) *Resumer {
	return &Resumer{eng: eng, tasks: tasks, logger: logger}
}

// Run blocks until ctx is cancelled
func (r *Resumer) Run(ctx context.Context) {
	if r.eng.LoadProcessingOrder() {
		r.logger.Info("resumed interrupted order processing")
	} else {
		r.logger.Debug("no interrupted order to resume")
	}

	<-ctx.Done()

	if err := r.tasks.SaveTaskRefs(); err != nil {
		r.logger.Error("cannot flush task table", zap.Error(err))
	}
	r.logger.Debug("order resumer is done")
}
