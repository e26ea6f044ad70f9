package jobs

import (
	"errors"
	"fmt"
	"sync"

	"github.com/spaghettifunk/aquarium/engine/core"
)

// Task is one unit of work run by a worker.
type Task struct {
	Name       string
	Run        func() error
	OnComplete func()
	OnFailure  func(err error)
}

type JobSystem struct {
	numWorkers int
	jobQueue   chan Task
	wg         sync.WaitGroup

	mu     sync.Mutex
	errs   []error
	closed bool
}

var ErrNoWorkers = fmt.Errorf("attempting to create worker pool with less than 1 worker")
var ErrNegativeChannelSize = fmt.Errorf("attempting to create worker pool with a negative channel size")
var ErrShutdown = errors.New("job system is shut down")

func NewJobSystem(numWorkers int, channelSize int) (*JobSystem, error) {
	if numWorkers <= 0 {
		return nil, ErrNoWorkers
	}
	if channelSize < 0 {
		return nil, ErrNegativeChannelSize
	}

	js := &JobSystem{
		numWorkers: numWorkers,
		jobQueue:   make(chan Task, channelSize),
	}

	js.start()

	return js, nil
}

func (js *JobSystem) start() {
	for i := 0; i < js.numWorkers; i++ {
		js.wg.Add(1)
		go func() {
			defer js.wg.Done()
			for job := range js.jobQueue {
				js.run(job)
			}
		}()
	}
}

func (js *JobSystem) run(job Task) {
	if err := job.Run(); err != nil {
		if job.Name != "" {
			err = fmt.Errorf("%s: %w", job.Name, err)
		}
		core.LogError("%s", err)
		js.mu.Lock()
		js.errs = append(js.errs, err)
		js.mu.Unlock()
		if job.OnFailure != nil {
			job.OnFailure(err)
		}
		return
	}
	if job.OnComplete != nil {
		job.OnComplete()
	}
}

/**
 * @brief Submits the provided job to be queued for execution. Blocks while
 * the queue is full.
 */
func (js *JobSystem) Submit(t Task) error {
	js.mu.Lock()
	closed := js.closed
	js.mu.Unlock()
	if closed {
		return ErrShutdown
	}
	js.jobQueue <- t
	return nil
}

/**
 * @brief Shuts the job system down once every queued job ran and returns
 * the errors of the failed ones.
 */
func (js *JobSystem) Shutdown() error {
	js.mu.Lock()
	if js.closed {
		js.mu.Unlock()
		return ErrShutdown
	}
	js.closed = true
	js.mu.Unlock()

	close(js.jobQueue)
	js.wg.Wait()

	js.mu.Lock()
	defer js.mu.Unlock()
	return errors.Join(js.errs...)
}
