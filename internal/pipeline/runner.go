package pipeline

import (
	"context"
	"errors"
	"io"
	"log"
	"sync"
	"sync/atomic"
)

const (
	defaultWorkers  = 2
	defaultQueueLen = 8
)

// ResultHandler receives the judgments for one processed frame. It runs on
// a worker goroutine and may be called concurrently for different frames.
type ResultHandler func(ctx context.Context, frame Frame, results []FaceResult)

// Runner drains a frame source through the pipeline on a bounded worker
// pool. When the workers fall behind the source, new frames are dropped
// rather than queued without limit, so latency stays bounded.
type Runner struct {
	pipeline *Pipeline
	handler  ResultHandler
	workers  int
	queueLen int

	processed atomic.Uint64
	dropped   atomic.Uint64
}

// NewRunner creates a runner with the default pool size.
func NewRunner(p *Pipeline, handler ResultHandler) *Runner {
	return &Runner{
		pipeline: p,
		handler:  handler,
		workers:  defaultWorkers,
		queueLen: defaultQueueLen,
	}
}

// Run consumes the source until it is exhausted or the context is
// cancelled. Source exhaustion (io.EOF) is a clean stop, not an error.
func (r *Runner) Run(ctx context.Context, source FrameSource) error {
	frames := make(chan Frame, r.queueLen)

	var wg sync.WaitGroup
	for i := 0; i < r.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for frame := range frames {
				results, err := r.pipeline.Process(ctx, frame)
				if err != nil {
					log.Printf("pipeline: frame %d: %v", frame.Seq, err)
					continue
				}
				r.processed.Add(1)
				if len(results) > 0 {
					r.handler(ctx, frame, results)
				}
			}
		}()
	}

	var runErr error
	for {
		frame, err := source.Next(ctx)
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, context.Canceled) {
				runErr = err
			}
			break
		}

		select {
		case frames <- frame:
		default:
			r.dropped.Add(1)
		}

		if ctx.Err() != nil {
			break
		}
	}

	close(frames)
	wg.Wait()

	if dropped := r.dropped.Load(); dropped > 0 {
		log.Printf("pipeline: dropped %d frames under load", dropped)
	}
	return runErr
}

// Processed returns the number of frames handed to the pipeline so far.
func (r *Runner) Processed() uint64 {
	return r.processed.Load()
}

// Dropped returns the number of frames discarded because the pool was busy.
func (r *Runner) Dropped() uint64 {
	return r.dropped.Load()
}
