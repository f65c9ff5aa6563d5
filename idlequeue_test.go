package pool

import "testing"

func TestIdleQueueFIFO(t *testing.T) {
	q := newIdleQueue()
	a := &entry{canonical: "a"}
	b := &entry{canonical: "b"}
	c := &entry{canonical: "c"}

	q.push(a)
	q.push(b)
	q.push(c)

	if got := q.oldest(); got != a {
		t.Fatalf("oldest = %v, want a", got.canonical)
	}

	q.remove("a")
	if got := q.oldest(); got != b {
		t.Fatalf("oldest after remove(a) = %v, want b", got.canonical)
	}
	if q.len() != 2 {
		t.Fatalf("len = %d, want 2", q.len())
	}
}

func TestIdleQueueRepushMovesToTail(t *testing.T) {
	q := newIdleQueue()
	a := &entry{canonical: "a"}
	b := &entry{canonical: "b"}

	q.push(a)
	q.push(b)
	q.push(a) // a re-released after reuse moves to the tail

	if got := q.oldest(); got != b {
		t.Fatalf("oldest = %v, want b", got.canonical)
	}
	if q.len() != 2 {
		t.Fatalf("len = %d, want 2", q.len())
	}
}

func TestIdleQueueEmpty(t *testing.T) {
	q := newIdleQueue()
	if q.oldest() != nil {
		t.Fatal("oldest of empty queue should be nil")
	}
	if q.len() != 0 {
		t.Fatalf("len = %d, want 0", q.len())
	}
}
