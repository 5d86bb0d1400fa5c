package command

import (
	"sync"
)

// Queue is the thread-safe FIFO feeding the controller: any number of
// producer goroutines (the RPC adapter, the outer-loop scheduler) call
// Push; exactly one consumer goroutine (the controller) calls Pop in a
// loop. Ordering is FIFO per producer, so commands from a single
// external producer are executed in submission order.
type Queue struct {
	mu      sync.Mutex
	cmds    []Command
	closed  bool
}

func NewQueue() *Queue {
	return &Queue{}
}

// Push enqueues a command. It is safe to call from any goroutine.
func (q *Queue) Push(c Command) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		// Shutdown in progress: fail fast rather than silently drop.
		c.Sink.AckFailed(ExecutionBlocked, "controller shutting down")
		return
	}
	q.cmds = append(q.cmds, c)
}

// Pop removes and returns the oldest command, or ok=false if empty.
func (q *Queue) Pop() (Command, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.cmds) == 0 {
		return Command{}, false
	}
	c := q.cmds[0]
	q.cmds = q.cmds[1:]
	return c, true
}

// Drain closes the queue to further pushes and returns everything still
// queued, for the shutdown path: every residual command is ack'd
// Failed(execution aborted) at shutdown.
func (q *Queue) Drain() []Command {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	out := q.cmds
	q.cmds = nil
	return out
}

// Len reports the number of commands currently queued.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.cmds)
}
