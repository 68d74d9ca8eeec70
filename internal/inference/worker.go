package inference

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/Brownie44l1/clothing-classifier/internal/model"
)

// ErrStopped is returned for jobs submitted after the worker has stopped.
var ErrStopped = errors.New("inference worker stopped")

type job struct {
	tensor model.Tensor
	reply  chan result
}

type result struct {
	dist model.Distribution
	err  error
}

// Worker owns the classifier and runs one classification at a time on its own
// goroutine. Callers block in Classify until their job is done.
type Worker struct {
	classifier model.Classifier
	jobs       chan job
	done       chan struct{}
	stopOnce   sync.Once
	wg         sync.WaitGroup
}

func NewWorker(classifier model.Classifier, queueSize int) *Worker {
	if queueSize < 1 {
		queueSize = 1
	}
	w := &Worker{
		classifier: classifier,
		jobs:       make(chan job, queueSize),
		done:       make(chan struct{}),
	}
	w.wg.Add(1)
	go w.run()
	return w
}

func (w *Worker) run() {
	defer w.wg.Done()
	for {
		select {
		case <-w.done:
			return
		case j := <-w.jobs:
			dist, err := w.classifier.Classify(j.tensor)
			// reply is buffered so an abandoned caller never blocks the worker
			j.reply <- result{dist: dist, err: err}
		}
	}
}

// Classify queues t and waits for the distribution. ctx only bounds the wait:
// a job the worker has picked up runs to completion.
func (w *Worker) Classify(ctx context.Context, t model.Tensor) (model.Distribution, error) {
	j := job{tensor: t, reply: make(chan result, 1)}

	select {
	case <-w.done:
		return nil, ErrStopped
	default:
	}

	select {
	case w.jobs <- j:
	case <-w.done:
		return nil, ErrStopped
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case r := <-j.reply:
		return r.dist, r.err
	case <-w.done:
		return nil, ErrStopped
	case <-ctx.Done():
		log.Warn().Err(ctx.Err()).Msg("Caller gave up waiting for classification")
		return nil, ctx.Err()
	}
}

func (w *Worker) Labels() []string {
	return w.classifier.Labels()
}

// Stop ends the worker goroutine and waits for the running job, if any.
// The classifier is left open; its owner closes it.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() {
		close(w.done)
	})
	w.wg.Wait()
}
