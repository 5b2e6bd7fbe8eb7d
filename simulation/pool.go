package simulation

import (
	"fmt"
	"sync"

	"github.com/hupe1980/teamsim/logging"
)

// workerPool runs background simulation tasks with bounded concurrency and
// failure isolation: a panic in one task is recovered and logged without
// affecting other runs or the process.
type workerPool struct {
	sem    chan struct{}
	wg     sync.WaitGroup
	logger logging.Logger
}

// newWorkerPool creates a pool allowing up to maxConcurrent tasks at once.
func newWorkerPool(maxConcurrent int, logger logging.Logger) *workerPool {
	if maxConcurrent <= 0 {
		maxConcurrent = 10
	}
	return &workerPool{
		sem:    make(chan struct{}, maxConcurrent),
		logger: logger,
	}
}

// Submit schedules fn for execution without blocking the caller. The name is
// used for panic reporting only.
func (p *workerPool) Submit(name string, fn func()) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.sem <- struct{}{}
		defer func() { <-p.sem }()

		defer func() {
			if r := recover(); r != nil {
				p.logger.Error("background task panicked", "task", name, "panic", fmt.Sprintf("%v", r))
			}
		}()

		fn()
	}()
}

// Wait blocks until all submitted tasks have finished. Used on shutdown and
// in tests.
func (p *workerPool) Wait() { p.wg.Wait() }
