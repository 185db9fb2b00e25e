package command

import "sync"

// Queue is a fixed-capacity FIFO of commands. Push never blocks: when the
// queue is full the oldest command is dropped. Safe for concurrent use.
type Queue struct {
	mu       sync.Mutex
	buf      []Command
	head     int // next write position
	count    int
	dropped  uint64
	overflow bool // set when a command was dropped since the last Pop emptied the queue
}

// NewQueue creates a queue holding at most capacity commands.
func NewQueue(capacity int) *Queue {
	if capacity < 1 {
		capacity = 1
	}
	return &Queue{buf: make([]Command, capacity)}
}

// Push appends c and reports whether an older command was dropped to make
// room.
func (q *Queue) Push(c Command) (dropped bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	capacity := len(q.buf)
	q.buf[q.head] = c
	q.head = (q.head + 1) % capacity
	if q.count == capacity {
		// head was pointing at the oldest entry, which is now overwritten
		q.dropped++
		q.overflow = true
		return true
	}
	q.count++
	return false
}

// Pop removes the oldest command.
func (q *Queue) Pop() (Command, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.count == 0 {
		return Command{}, false
	}
	capacity := len(q.buf)
	start := (q.head - q.count + capacity) % capacity
	c := q.buf[start]
	q.buf[start] = Command{}
	q.count--
	if q.count == 0 {
		q.overflow = false
	}
	return c, true
}

// Len returns the number of queued commands.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.count
}

// Dropped returns how many commands have been discarded because the queue
// was full.
func (q *Queue) Dropped() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}

// Overflowing reports whether commands have been dropped since the queue was
// last empty.
func (q *Queue) Overflowing() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.overflow
}
