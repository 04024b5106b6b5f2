package ringbuf

import (
	"testing"
)

func TestRing_BasicPush(t *testing.T) {
	r := New[int](4)

	for i := 0; i < 3; i++ {
		if r.Push(i) {
			t.Fatalf("push %d should not evict", i)
		}
	}
	if r.Len() != 3 {
		t.Fatalf("expected len=3, got %d", r.Len())
	}
	if got := *r.Last(); got != 2 {
		t.Fatalf("expected last=2, got %d", got)
	}
	if r.Base() != 0 {
		t.Fatalf("expected base=0, got %d", r.Base())
	}
}

func TestRing_Eviction(t *testing.T) {
	r := New[int](2)

	r.Push(10)
	r.Push(11)
	if !r.Push(12) {
		t.Fatal("push to full ring should evict")
	}
	if r.Evicted() != 1 {
		t.Fatalf("expected evicted=1, got %d", r.Evicted())
	}
	if r.At(0) != nil {
		t.Fatal("index 0 should be evicted")
	}
	if got := *r.At(2); got != 12 {
		t.Fatalf("expected At(2)=12, got %d", got)
	}
	if r.Total() != 3 {
		t.Fatalf("expected total=3, got %d", r.Total())
	}
}

func TestRing_Wraparound(t *testing.T) {
	r := New[int](4)

	for i := 0; i < 22; i++ {
		r.Push(i)
	}
	got := r.Slice()
	want := []int{18, 19, 20, 21}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("slice[%d]: expected %d, got %d", i, want[i], got[i])
		}
	}
	for abs := 18; abs < 22; abs++ {
		if v := r.At(abs); v == nil || *v != abs {
			t.Fatalf("At(%d) mismatch: %v", abs, v)
		}
	}
	if r.At(22) != nil {
		t.Fatal("At beyond total should be nil")
	}
}

func TestRing_AtMutatesInPlace(t *testing.T) {
	r := New[int](3)
	r.Push(1)
	r.Push(2)

	*r.At(1) = 42
	if got := r.Slice()[1]; got != 42 {
		t.Fatalf("expected in-place write, got %d", got)
	}
}

func TestRing_MinCapacity(t *testing.T) {
	r := New[string](0)
	if r.Cap() != 1 {
		t.Fatalf("expected cap=1, got %d", r.Cap())
	}
	if r.Last() != nil {
		t.Fatal("empty ring Last should be nil")
	}
}
