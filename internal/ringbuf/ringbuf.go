// Package ringbuf provides a fixed-capacity ring buffer that keeps the most
// recent values and tracks absolute positions across evictions.
//
// A Ring is owned by a single goroutine (the trading loop) and is not safe
// for concurrent use.
package ringbuf

// Ring keeps the last Cap() values pushed. Each value has an absolute index
// equal to the number of pushes that preceded it; indices survive eviction.
type Ring[T any] struct {
	buf   []T
	head  int // slot of the oldest retained value
	n     int // retained count
	total int // values ever pushed
}

// New creates a ring holding up to capacity values. Minimum capacity is 1.
func New[T any](capacity int) *Ring[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Ring[T]{buf: make([]T, capacity)}
}

// Push appends v, evicting the oldest value when the ring is full.
// Returns true if a value was evicted.
func (r *Ring[T]) Push(v T) bool {
	r.total++
	if r.n < len(r.buf) {
		r.buf[(r.head+r.n)%len(r.buf)] = v
		r.n++
		return false
	}
	r.buf[r.head] = v
	r.head = (r.head + 1) % len(r.buf)
	return true
}

// Len returns the number of retained values.
func (r *Ring[T]) Len() int { return r.n }

// Cap returns the ring capacity.
func (r *Ring[T]) Cap() int { return len(r.buf) }

// Total returns the number of values ever pushed.
func (r *Ring[T]) Total() int { return r.total }

// Base returns the absolute index of the oldest retained value.
func (r *Ring[T]) Base() int { return r.total - r.n }

// Evicted returns how many values have been dropped.
func (r *Ring[T]) Evicted() int { return r.Base() }

// At returns a pointer to the value at absolute index i, or nil when i has
// been evicted or not yet pushed.
func (r *Ring[T]) At(i int) *T {
	off := i - r.Base()
	if off < 0 || off >= r.n {
		return nil
	}
	return &r.buf[(r.head+off)%len(r.buf)]
}

// Last returns a pointer to the newest value, or nil when empty.
func (r *Ring[T]) Last() *T {
	if r.n == 0 {
		return nil
	}
	return r.At(r.total - 1)
}

// Slice copies the retained values, oldest first.
func (r *Ring[T]) Slice() []T {
	out := make([]T, r.n)
	for i := 0; i < r.n; i++ {
		out[i] = r.buf[(r.head+i)%len(r.buf)]
	}
	return out
}
