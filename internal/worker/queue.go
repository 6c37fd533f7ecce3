package worker

import "errors"

// ErrQueueFull is returned when a submission exceeds queue capacity.
var ErrQueueFull = errors.New("job queue is full")

// Queue is the bounded hand-off between submissions and the single
// worker. Enqueue never blocks the submitting request.
type Queue struct {
	ch chan string
}

// NewQueue creates a queue holding at most size pending job ids.
func NewQueue(size int) *Queue {
	if size <= 0 {
		size = 1
	}
	return &Queue{ch: make(chan string, size)}
}

// Enqueue accepts a job id or reports a full queue immediately.
func (q *Queue) Enqueue(jobID string) error {
	select {
	case q.ch <- jobID:
		return nil
	default:
		return ErrQueueFull
	}
}

// Pending reports how many jobs are waiting.
func (q *Queue) Pending() int {
	return len(q.ch)
}
