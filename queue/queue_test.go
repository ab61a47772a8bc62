package queue

import (
	"sync"
	"testing"
)

func TestQueueFIFO(t *testing.T) {
	q := New[int]()
	if !q.IsEmpty() {
		t.Fatal("new queue should be empty")
	}
	for i := 1; i <= 3; i++ {
		q.Enqueue(i)
	}
	if v, ok := q.Peek(); !ok || v != 1 {
		t.Fatalf("Peek() = %d, %v; want 1, true", v, ok)
	}
	for want := 1; want <= 3; want++ {
		got, ok := q.Dequeue()
		if !ok || got != want {
			t.Fatalf("Dequeue() = %d, %v; want %d, true", got, ok, want)
		}
	}
	if _, ok := q.Dequeue(); ok {
		t.Fatal("Dequeue on empty queue should report false")
	}
}

func TestBoundedQueueRejectsWhenFull(t *testing.T) {
	q := NewBounded[string](2)
	if !q.Enqueue("a") || !q.Enqueue("b") {
		t.Fatal("expected first two enqueues to succeed")
	}
	if q.Enqueue("c") {
		t.Fatal("expected enqueue on full queue to fail")
	}
	q.Dequeue()
	if !q.Enqueue("c") {
		t.Fatal("expected enqueue to succeed after dequeue")
	}
	if got := q.Drain(); len(got) != 2 || got[0] != "b" || got[1] != "c" {
		t.Fatalf("Drain() = %v, want [b c]", got)
	}
	if q.Len() != 0 {
		t.Fatalf("Len() = %d after drain", q.Len())
	}
}

func TestQueueConcurrentAccess(t *testing.T) {
	q := New[int]()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			q.Enqueue(n)
		}(i)
	}
	wg.Wait()
	if q.Len() != 50 {
		t.Fatalf("Len() = %d, want 50", q.Len())
	}
}
