package coldvox

import (
	"testing"

	"pgregory.net/rapid"
)

func TestRingBuffer_PushPopFIFO(t *testing.T) {
	r := NewRingBuffer(8, DropOldest)
	in := []int16{1, 2, 3, 4, 5}
	n := r.Push(in)
	if n != 5 {
		t.Fatalf("expected to push 5, got %d", n)
	}

	out := make([]int16, 5)
	got := r.Pop(out)
	if got != 5 {
		t.Fatalf("expected to pop 5, got %d", got)
	}
	for i := range in {
		if out[i] != in[i] {
			t.Fatalf("sample %d: want %d got %d", i, in[i], out[i])
		}
	}
}

func TestRingBuffer_CapacityRoundsToPowerOfTwo(t *testing.T) {
	r := NewRingBuffer(5, DropOldest)
	if r.Capacity() != 8 {
		t.Fatalf("expected capacity 8, got %d", r.Capacity())
	}
	r = NewRingBuffer(1, DropOldest)
	if r.Capacity() != 2 {
		t.Fatalf("expected minimum capacity 2, got %d", r.Capacity())
	}
}

func TestRingBuffer_DropNewestTruncatesWrite(t *testing.T) {
	r := NewRingBuffer(4, DropNewest)
	n := r.Push([]int16{1, 2, 3, 4, 5, 6})
	if n != 4 {
		t.Fatalf("expected 4 samples written, got %d", n)
	}
	if d := r.Dropped(); d != 2 {
		t.Fatalf("expected 2 dropped, got %d", d)
	}

	out := make([]int16, 4)
	if got := r.Pop(out); got != 4 {
		t.Fatalf("expected 4 popped, got %d", got)
	}
	want := []int16{1, 2, 3, 4}
	for i := range want {
		if out[i] != want[i] {
			t.Fatalf("sample %d: want %d got %d", i, want[i], out[i])
		}
	}
}

func TestRingBuffer_DropOldestAdvancesTail(t *testing.T) {
	r := NewRingBuffer(4, DropOldest)
	r.Push([]int16{1, 2, 3, 4})
	n := r.Push([]int16{5, 6})
	if n != 2 {
		t.Fatalf("expected 2 samples written, got %d", n)
	}
	if d := r.Dropped(); d != 2 {
		t.Fatalf("expected 2 dropped, got %d", d)
	}

	out := make([]int16, 4)
	got := r.Pop(out)
	if got != 4 {
		t.Fatalf("expected 4 popped, got %d", got)
	}
	want := []int16{3, 4, 5, 6}
	for i := range want {
		if out[i] != want[i] {
			t.Fatalf("sample %d: want %d got %d", i, want[i], out[i])
		}
	}
}

func TestRingBuffer_PopOnEmptyReturnsZero(t *testing.T) {
	r := NewRingBuffer(8, DropOldest)
	out := make([]int16, 4)
	if got := r.Pop(out); got != 0 {
		t.Fatalf("expected 0 popped from empty buffer, got %d", got)
	}
}

func TestRingBuffer_OversizedWriteKeepsNewest(t *testing.T) {
	r := NewRingBuffer(4, DropOldest)
	n := r.Push([]int16{1, 2, 3, 4, 5, 6, 7, 8})
	if n != 4 {
		t.Fatalf("expected 4 written, got %d", n)
	}
	out := make([]int16, 4)
	r.Pop(out)
	want := []int16{5, 6, 7, 8}
	for i := range want {
		if out[i] != want[i] {
			t.Fatalf("sample %d: want %d got %d", i, want[i], out[i])
		}
	}
}

// TestRingBuffer_FIFOProperty checks that under DropNewest (no silent
// reordering), any sequence of pushes/pops that never overflows capacity
// round-trips exactly in order.
func TestRingBuffer_FIFOProperty(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		capacity := rapid.IntRange(1, 64).Draw(rt, "capacity")
		r := NewRingBuffer(capacity, DropNewest)

		var model []int16
		steps := rapid.IntRange(1, 30).Draw(rt, "steps")
		for i := 0; i < steps; i++ {
			if rapid.Boolean().Draw(rt, "doPush") {
				n := rapid.IntRange(0, r.Capacity()).Draw(rt, "n")
				batch := make([]int16, n)
				for j := range batch {
					batch[j] = int16(rapid.IntRange(-1000, 1000).Draw(rt, "sample"))
				}
				free := r.Capacity() - int(r.len())
				written := r.Push(batch)
				if written > free {
					rt.Fatalf("wrote %d but only %d free", written, free)
				}
				model = append(model, batch[:written]...)
			} else {
				n := rapid.IntRange(0, r.Capacity()).Draw(rt, "popn")
				dst := make([]int16, n)
				got := r.Pop(dst)
				if got > len(model) {
					rt.Fatalf("popped %d but model only has %d", got, len(model))
				}
				for j := 0; j < got; j++ {
					if dst[j] != model[j] {
						rt.Fatalf("fifo mismatch at %d: want %d got %d", j, model[j], dst[j])
					}
				}
				model = model[got:]
			}
		}
	})
}
