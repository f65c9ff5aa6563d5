package pool

import "container/list"

// idleQueue is the ordered set of zero-usage entries: a FIFO by release
// time, oldest-released at the head. A hash map gives O(1) lookup-by-path;
// container/list gives O(1) move-to-back and pop-front.
type idleQueue struct {
	order  *list.List
	byPath map[string]*list.Element
}

func newIdleQueue() *idleQueue {
	return &idleQueue{
		order:  list.New(),
		byPath: make(map[string]*list.Element),
	}
}

// push appends e to the tail — the newest release. An entry re-released
// after reuse moves to the tail.
func (q *idleQueue) push(e *entry) {
	if elem, ok := q.byPath[e.canonical]; ok {
		q.order.Remove(elem)
	}
	q.byPath[e.canonical] = q.order.PushBack(e)
}

// remove drops e from the queue, if present. Used when a hit on an idle
// entry re-activates it, or when the entry is about to be closed.
func (q *idleQueue) remove(canonical string) {
	if elem, ok := q.byPath[canonical]; ok {
		q.order.Remove(elem)
		delete(q.byPath, canonical)
	}
}

// oldest returns the head of the queue — the entry to reclaim next — or nil
// if the queue is empty.
func (q *idleQueue) oldest() *entry {
	front := q.order.Front()
	if front == nil {
		return nil
	}
	return front.Value.(*entry)
}

func (q *idleQueue) len() int { return q.order.Len() }
