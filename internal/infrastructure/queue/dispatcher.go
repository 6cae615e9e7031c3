package queue

import (
	"context"
	"errors"
	"hash/fnv"
	"sync"

	"github.com/rs/zerolog"
)

const (
	defaultWorkers = 1
	channelBuffer  = 256
)

// ErrClosed is returned when a job is submitted after Close.
var ErrClosed = errors.New("queue: serializer closed")

// Job is a unit of work executed on a serializer worker.
type Job = func(ctx context.Context) error

type request struct {
	ctx    context.Context
	job    Job
	result chan error
}

// Serializer runs jobs on a fixed set of workers, routing each job by key
// with consistent hashing. Jobs sharing a key never run concurrently and run
// in submission order. With one worker every job is serialized.
type Serializer struct {
	workers []chan request
	log     zerolog.Logger

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// NewSerializer starts numWorkers workers. If numWorkers <= 0, defaultWorkers is used.
func NewSerializer(numWorkers int, log zerolog.Logger) *Serializer {
	if numWorkers <= 0 {
		numWorkers = defaultWorkers
	}
	s := &Serializer{
		workers: make([]chan request, numWorkers),
		log:     log,
	}
	for i := range s.workers {
		s.workers[i] = make(chan request, channelBuffer)
		s.wg.Add(1)
		go s.runWorker(i, s.workers[i])
	}
	return s
}

// Do enqueues job under key and waits for its result. ctx only bounds the
// wait for a queue slot: once queued, Do reports what the worker did. A job
// whose ctx is already done when dequeued is skipped with ctx's error.
func (s *Serializer) Do(ctx context.Context, key string, job Job) error {
	req := request{ctx: ctx, job: job, result: make(chan error, 1)}

	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return ErrClosed
	}
	select {
	case s.workers[s.shardIndex(key)] <- req:
	case <-ctx.Done():
		s.mu.RUnlock()
		return ctx.Err()
	}
	s.mu.RUnlock()

	return <-req.result
}

// Close stops accepting jobs, drains queued ones and waits for workers to exit.
func (s *Serializer) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	for _, ch := range s.workers {
		close(ch)
	}
	s.mu.Unlock()
	s.wg.Wait()
}

// shardIndex maps a key deterministically to a worker index.
func (s *Serializer) shardIndex(key string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum32() % uint32(len(s.workers)))
}

func (s *Serializer) runWorker(id int, ch <-chan request) {
	defer s.wg.Done()
	for req := range ch {
		if err := req.ctx.Err(); err != nil {
			req.result <- err
			continue
		}
		err := req.job(req.ctx)
		if err != nil {
			s.log.Debug().Err(err).Int("worker_id", id).Msg("write job failed")
		}
		req.result <- err
	}
}
