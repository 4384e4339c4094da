package bot

import "sync"

// userQueues runs jobs of the same user one after another in arrival order,
// and jobs of different users in parallel. A user's drain goroutine exits
// once the user's queue is empty.
type userQueues struct {
	mu      sync.Mutex
	pending map[int64][]func()
	wg      sync.WaitGroup
}

func newUserQueues() *userQueues {
	return &userQueues{pending: make(map[int64][]func())}
}

func (q *userQueues) push(userID int64, job func()) {
	q.mu.Lock()
	jobs, running := q.pending[userID]
	q.pending[userID] = append(jobs, job)
	if !running {
		q.wg.Add(1)
	}
	q.mu.Unlock()

	if !running {
		go q.drain(userID)
	}
}

func (q *userQueues) drain(userID int64) {
	defer q.wg.Done()
	for {
		q.mu.Lock()
		jobs := q.pending[userID]
		if len(jobs) == 0 {
			delete(q.pending, userID)
			q.mu.Unlock()
			return
		}
		job := jobs[0]
		q.pending[userID] = jobs[1:]
		q.mu.Unlock()

		job()
	}
}

// wait blocks until every queued job has run.
func (q *userQueues) wait() {
	q.wg.Wait()
}
