package coldvox

import "sync/atomic"

// RingBuffer is a lock-free single-producer single-consumer queue of i16
// samples. Capacity must be a power of two; indices are monotonic counters
// masked to capacity, so wraparound never requires a modulo. The producer
// writes head and the consumer writes tail, with one exception: a Push that
// overflows under DropOldest or Block advances tail itself to discard the
// oldest samples. Neither side takes a lock; outside that overflow case the
// atomic loads/stores of head/tail give the acquire/release pairing needed
// so the consumer never observes a slot the producer hasn't finished
// writing (and vice versa).
//
// No allocation happens after construction: Push/Pop operate entirely on
// the preallocated buf.
type RingBuffer struct {
	buf  []int16
	mask uint64

	// head is the next index the producer will write to; tail is the next
	// index the consumer will read from. Both count monotonically upward
	// (never wrap) and are masked with & mask to index into buf.
	head atomic.Uint64
	tail atomic.Uint64

	policy OverflowPolicy

	dropped atomic.Uint64 // samples dropped under DropOldest/DropNewest
}

// NewRingBuffer creates a ring buffer whose capacity is rounded up to the
// next power of two (minimum 2).
func NewRingBuffer(capacity int, policy OverflowPolicy) *RingBuffer {
	size := nextPowerOfTwo(capacity)
	return &RingBuffer{
		buf:    make([]int16, size),
		mask:   uint64(size - 1),
		policy: policy,
	}
}

func nextPowerOfTwo(n int) int {
	if n < 2 {
		return 2
	}
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}

// Capacity returns the buffer's fixed capacity.
func (r *RingBuffer) Capacity() int { return len(r.buf) }

// Dropped returns the cumulative count of samples discarded to overflow.
func (r *RingBuffer) Dropped() uint64 { return r.dropped.Load() }

// len returns the number of unread samples currently buffered.
func (r *RingBuffer) len() uint64 {
	return r.head.Load() - r.tail.Load()
}

// Push writes as many samples from src as free slots allow (or, under
// DropOldest, makes room by advancing the reader's tail) and never blocks.
// It returns the number of samples actually written into the ring — under
// DropNewest this may be less than len(src); under DropOldest it is always
// len(src) unless src itself exceeds capacity, in which case only the
// trailing Capacity() samples are kept.
func (r *RingBuffer) Push(src []int16) int {
	if len(src) == 0 {
		return 0
	}

	capacity := uint64(len(r.buf))
	head := r.head.Load()
	tail := r.tail.Load()
	free := capacity - (head - tail)

	n := uint64(len(src))
	if n > capacity && r.policy != DropNewest {
		// Never overrun our own buffer: keep only the newest Capacity()
		// samples of an oversized write. DropNewest keeps the oldest ones
		// instead, through its free-space check below.
		overflow := n - capacity
		src = src[overflow:]
		n = capacity
		r.dropped.Add(overflow)
	}

	switch r.policy {
	case DropNewest:
		if n > free {
			dropped := n - free
			src = src[:free]
			n = free
			r.dropped.Add(dropped)
		}
	case DropOldest, Block:
		// Block is handled by callers that choose to spin/wait outside this
		// method (the capture thread never does); here we still must not
		// overwrite unread slots, so DropOldest semantics apply whenever we
		// don't have room, advancing tail to make space.
		if n > free {
			advance := n - free
			r.tail.Add(advance)
			r.dropped.Add(advance)
			free = n
		}
	}

	for i := uint64(0); i < n; i++ {
		r.buf[(head+i)&r.mask] = src[i]
	}
	r.head.Store(head + n)
	return int(n)
}

// Pop reads up to len(dst) samples in FIFO order and never blocks, returning
// 0 when the buffer is empty.
func (r *RingBuffer) Pop(dst []int16) int {
	if len(dst) == 0 {
		return 0
	}

	tail := r.tail.Load()
	head := r.head.Load()
	avail := head - tail

	n := uint64(len(dst))
	if n > avail {
		n = avail
	}
	for i := uint64(0); i < n; i++ {
		dst[i] = r.buf[(tail+i)&r.mask]
	}
	r.tail.Store(tail + n)
	return int(n)
}
