package engine

import (
	"time"

	brook "github.com/brooklang/brook"
)

// tracker enforces resource limits and accumulates usage across the
// steps of one execution. Time spent suspended between steps is not
// charged to the script.
type tracker struct {
	limits brook.Limits

	allocated uint64
	elapsed   time.Duration
	stepStart time.Time
	running   bool
	depth     int
	maxDepth  int
}

func newTracker(limits brook.Limits) *tracker {
	return &tracker{limits: limits}
}

func (t *tracker) beginStep() {
	t.stepStart = time.Now()
	t.running = true
}

func (t *tracker) endStep() {
	if t.running {
		t.elapsed += time.Since(t.stepStart)
		t.running = false
	}
}

func (t *tracker) now() time.Duration {
	d := t.elapsed
	if t.running {
		d += time.Since(t.stepStart)
	}
	return d
}

// alloc charges n bytes against the memory budget. The accounting is an
// estimate of live allocations, not a GC-accurate heap size.
func (t *tracker) alloc(n uint64) *Exception {
	t.allocated += n
	if t.limits.MaxMemoryBytes > 0 && t.allocated > t.limits.MaxMemoryBytes {
		return NewException(ExcMemoryError, "memory limit exceeded")
	}
	return nil
}

func (t *tracker) checkTime() *Exception {
	if t.limits.MaxDuration > 0 && t.now() > t.limits.MaxDuration {
		return NewException(ExcTimeoutError, "time limit exceeded")
	}
	return nil
}

func (t *tracker) enter() *Exception {
	t.depth++
	if t.depth > t.maxDepth {
		t.maxDepth = t.depth
	}
	if t.limits.MaxStackDepth > 0 && t.depth > t.limits.MaxStackDepth {
		return NewException(ExcRecursionError, "maximum recursion depth exceeded")
	}
	return nil
}

func (t *tracker) exit() {
	t.depth--
}

func (t *tracker) usage() brook.Usage {
	return brook.Usage{
		MemoryBytesUsed: t.allocated,
		TimeElapsedMS:   uint64(t.now() / time.Millisecond),
		StackDepthUsed:  t.maxDepth,
	}
}
