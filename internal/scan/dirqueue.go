package scan

import "sync"

// dirQueue is an unbounded work list of directories. Walkers push the
// subdirectories they find, so a bounded channel could deadlock once every
// walker blocks on a full send. pop returns false once the queue is empty
// and no directory is still being read.
type dirQueue struct {
	mu      sync.Mutex
	cond    *sync.Cond
	dirs    []string
	pending int
}

func newDirQueue() *dirQueue {
	q := &dirQueue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

func (q *dirQueue) push(dir string) {
	q.mu.Lock()
	q.dirs = append(q.dirs, dir)
	q.pending++
	q.mu.Unlock()
	q.cond.Signal()
}

func (q *dirQueue) pop() (string, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.dirs) == 0 {
		if q.pending == 0 {
			return "", false
		}
		q.cond.Wait()
	}
	n := len(q.dirs) - 1
	dir := q.dirs[n]
	q.dirs = q.dirs[:n]
	return dir, true
}

// done marks a popped directory as fully read
func (q *dirQueue) done() {
	q.mu.Lock()
	q.pending--
	finished := q.pending == 0
	q.mu.Unlock()
	if finished {
		q.cond.Broadcast()
	}
}
