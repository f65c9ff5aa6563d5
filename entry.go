package pool

import (
	"time"

	"github.com/comdata/jrobin/rrd"
)

// entry wraps one open rrd.Handle with a reference count. It is a member
// of the idle queue iff usage == 0 — the pool maintains that invariant,
// not the entry itself.
type entry struct {
	canonical string
	handle    rrd.Handle
	usage     int

	// releasedAt is set each time usage drops to zero. The idle queue's
	// FIFO-by-release-time order comes from the order of its pushes, not
	// from this field.
	releasedAt time.Time
}

func newEntry(canonical string, h rrd.Handle) *entry {
	return &entry{canonical: canonical, handle: h, usage: 1}
}

func (e *entry) acquire() {
	e.usage++
}

// release decrements the usage count and reports whether the entry became
// idle as a result.
func (e *entry) release() (becameIdle bool) {
	if e.usage <= 0 {
		return false
	}
	e.usage--
	if e.usage == 0 {
		e.releasedAt = time.Now()
		return true
	}
	return false
}
