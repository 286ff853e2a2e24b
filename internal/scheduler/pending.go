package scheduler

import (
	"container/heap"
	"time"
)

// PendingTask is a queued unit of work awaiting a concurrency slot.
type PendingTask struct {
	ID        TaskID
	Priority  TaskPriority
	Work      Work
	CreatedAt time.Time

	// seq preserves submission order within a priority tier.
	seq uint64
}

// pendingQueue is a max-heap ordered by priority descending, then
// submission sequence ascending (FIFO within a tier).
type pendingQueue []*PendingTask

func (pq pendingQueue) Len() int { return len(pq) }

func (pq pendingQueue) Less(i, j int) bool {
	if pq[i].Priority != pq[j].Priority {
		return pq[i].Priority > pq[j].Priority
	}

	return pq[i].seq < pq[j].seq
}

func (pq pendingQueue) Swap(i, j int) { pq[i], pq[j] = pq[j], pq[i] }

func (pq *pendingQueue) Push(x any) {
	task, ok := x.(*PendingTask)
	if !ok {
		return
	}

	*pq = append(*pq, task)
}

func (pq *pendingQueue) Pop() any {
	old := *pq
	n := len(old)
	task := old[n-1]
	old[n-1] = nil
	*pq = old[:n-1]

	return task
}

// push adds a task maintaining heap order.
func (pq *pendingQueue) push(task *PendingTask) {
	heap.Push(pq, task)
}

// pop removes and returns the highest-priority task, or nil when empty.
func (pq *pendingQueue) pop() *PendingTask {
	if pq.Len() == 0 {
		return nil
	}

	task, ok := heap.Pop(pq).(*PendingTask)
	if !ok {
		return nil
	}

	return task
}
