package world

import (
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"voxelworld.ai/internal/voxel"
)

var (
	ErrStopped = errors.New("world: stopped")
	// ErrBusy is returned by TrySubmit when the queue is full.
	ErrBusy = errors.New("world: request queue full")
)

const DefaultQueueSize = 1024

type RequestKind uint8

const (
	RequestChunk RequestKind = iota
	RequestSurface
	RequestLightmap
	RequestSurfaceAndLightmap
	// RequestQuit ends the worker that receives it.
	RequestQuit
)

var requestNames = [...]string{"chunk", "surface", "lightmap", "surface+lightmap", "quit"}

func (k RequestKind) String() string {
	if int(k) < len(requestNames) {
		return requestNames[k]
	}
	return fmt.Sprintf("request(%d)", k)
}

// Request asks a worker to make sure some data for Pos exists. Done, if
// set, receives the outcome.
type Request struct {
	Kind RequestKind
	Pos  voxel.ChunkPos
	Done func(error)
}

type queue struct {
	mu      sync.RWMutex
	ch      chan Request
	stop    chan struct{}
	group   *errgroup.Group
	workers int
	stopped bool
}

// Start launches workers goroutines serving Submit. Calling Start twice
// without Stop panics.
func (w *World) Start(workers int) {
	q := &w.queue
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.ch != nil {
		panic("world: already started")
	}
	if workers <= 0 {
		workers = 1
	}
	size := w.cfg.QueueSize
	if size <= 0 {
		size = DefaultQueueSize
	}
	q.ch = make(chan Request, size)
	q.stop = make(chan struct{})
	q.group = new(errgroup.Group)
	q.workers = workers
	q.stopped = false
	for i := 0; i < workers; i++ {
		ch := q.ch
		q.group.Go(func() error { return w.work(ch) })
	}
	w.logger.Printf("started %d workers", workers)
}

func (w *World) work(ch <-chan Request) error {
	for r := range ch {
		if r.Kind == RequestQuit {
			return nil
		}
		err := w.Handle(r)
		if err != nil {
			w.logger.Printf("%s %v: %v", r.Kind, r.Pos, err)
		}
		if r.Done != nil {
			r.Done(err)
		}
	}
	return nil
}

// Handle serves one request on the calling goroutine.
func (w *World) Handle(r Request) error {
	var err error
	switch r.Kind {
	case RequestChunk:
		_, err = w.GetChunk(r.Pos)
	case RequestSurface:
		_, err = w.GetSurface(r.Pos)
	case RequestLightmap:
		_, err = w.GetLightmap(r.Pos)
	case RequestSurfaceAndLightmap:
		if _, err = w.GetSurface(r.Pos); err == nil {
			_, err = w.GetLightmap(r.Pos)
		}
	default:
		err = fmt.Errorf("world: unexpected request %s", r.Kind)
	}
	return err
}

// open returns the request channel, or ErrStopped once Stop began.
func (q *queue) open() (chan Request, chan struct{}, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.ch == nil || q.stopped {
		return nil, nil, ErrStopped
	}
	return q.ch, q.stop, nil
}

// Submit queues r for the workers, blocking while the queue is full. It
// fails with ErrStopped once Stop has begun, including while blocked.
func (w *World) Submit(r Request) error {
	if r.Kind == RequestQuit {
		return fmt.Errorf("world: quit requests are internal")
	}
	ch, stop, err := w.queue.open()
	if err != nil {
		return err
	}
	select {
	case <-stop:
		return ErrStopped
	default:
	}
	select {
	case ch <- r:
		return nil
	case <-stop:
		return ErrStopped
	}
}

// TrySubmit is Submit without blocking: a full queue gives ErrBusy.
func (w *World) TrySubmit(r Request) error {
	if r.Kind == RequestQuit {
		return fmt.Errorf("world: quit requests are internal")
	}
	ch, stop, err := w.queue.open()
	if err != nil {
		return err
	}
	select {
	case <-stop:
		return ErrStopped
	default:
	}
	select {
	case ch <- r:
		return nil
	default:
		return ErrBusy
	}
}

// Stop lets the workers finish everything queued so far, then waits for
// them. Later Submits fail with ErrStopped. Requests that slipped in behind
// the quits get their Done called with ErrStopped.
func (w *World) Stop() error {
	q := &w.queue
	q.mu.Lock()
	if q.ch == nil || q.stopped {
		q.mu.Unlock()
		return nil
	}
	q.stopped = true
	close(q.stop)
	ch, workers, g := q.ch, q.workers, q.group
	q.mu.Unlock()

	// Sent without the lock so Done callbacks that Submit see ErrStopped
	// instead of blocking the workers.
	for i := 0; i < workers; i++ {
		ch <- Request{Kind: RequestQuit}
	}
	err := g.Wait()

drain:
	for {
		select {
		case r := <-ch:
			if r.Done != nil && r.Kind != RequestQuit {
				r.Done(ErrStopped)
			}
		default:
			break drain
		}
	}
	q.mu.Lock()
	q.ch = nil
	q.mu.Unlock()
	w.logger.Printf("workers stopped")
	return err
}
