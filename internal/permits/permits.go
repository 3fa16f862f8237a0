// Package permits bounds how many files groom holds open and how many tool
// processes it runs at once.
package permits

import (
	"context"
	"runtime"

	"golang.org/x/sync/semaphore"
)

// DefaultOpenFiles is the default file permit count.
const DefaultOpenFiles = 100

// Pool holds the file and process permit pools shared by every task in a run.
type Pool struct {
	files     *semaphore.Weighted
	processes *semaphore.Weighted

	fileCap, processCap int64
}

// New creates a pool. Non-positive sizes select the defaults: DefaultOpenFiles
// file permits and runtime.NumCPU() process permits.
func New(openFiles, processes int) *Pool {
	if openFiles <= 0 {
		openFiles = DefaultOpenFiles
	}
	if processes <= 0 {
		processes = runtime.NumCPU()
	}
	return &Pool{
		files:      semaphore.NewWeighted(int64(openFiles)),
		processes:  semaphore.NewWeighted(int64(processes)),
		fileCap:    int64(openFiles),
		processCap: int64(processes),
	}
}

// AcquireFile blocks until a file permit is free or ctx is done.
// The returned release func must be called exactly once.
func (p *Pool) AcquireFile(ctx context.Context) (release func(), err error) {
	return acquire(ctx, p.files)
}

// AcquireProcess blocks until a process permit is free or ctx is done.
func (p *Pool) AcquireProcess(ctx context.Context) (release func(), err error) {
	return acquire(ctx, p.processes)
}

// Caps reports the pool sizes.
func (p *Pool) Caps() (openFiles, processes int) {
	return int(p.fileCap), int(p.processCap)
}

func acquire(ctx context.Context, sem *semaphore.Weighted) (func(), error) {
	if err := sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	return func() { sem.Release(1) }, nil
}
