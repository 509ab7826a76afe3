package brook

import "time"

// Limits holds optional resource ceilings for one script execution.
// A zero field means unlimited. Limits take effect only when set before
// the first execution step; the engine snapshots them at that point.
type Limits struct {
	MaxMemoryBytes uint64
	MaxDuration    time.Duration
	MaxStackDepth  int
}

// IsZero reports whether no ceiling is set.
func (l Limits) IsZero() bool {
	return l.MaxMemoryBytes == 0 && l.MaxDuration == 0 && l.MaxStackDepth == 0
}

// Usage is the cumulative resource-usage snapshot for one handle.
// All fields are monotonic over the handle's life and are never reset.
type Usage struct {
	MemoryBytesUsed uint64 `json:"memory_bytes_used"`
	TimeElapsedMS   uint64 `json:"time_elapsed_ms"`
	StackDepthUsed  int    `json:"stack_depth_used"`
}

// Max merges two usage snapshots, keeping the larger of each counter.
// Counters from different steps of the same execution are cumulative on
// the engine side, so the later snapshot always dominates.
func (u Usage) Max(other Usage) Usage {
	out := u
	if other.MemoryBytesUsed > out.MemoryBytesUsed {
		out.MemoryBytesUsed = other.MemoryBytesUsed
	}
	if other.TimeElapsedMS > out.TimeElapsedMS {
		out.TimeElapsedMS = other.TimeElapsedMS
	}
	if other.StackDepthUsed > out.StackDepthUsed {
		out.StackDepthUsed = other.StackDepthUsed
	}
	return out
}
