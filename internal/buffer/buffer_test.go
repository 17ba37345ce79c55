package buffer

import (
	"sync"
	"testing"
)

func TestBuffer_AppendDrain(t *testing.T) {
	buf := New[int](4)

	for i := 0; i < 5; i++ {
		buf.Append(i)
	}

	if buf.Len() != 5 {
		t.Errorf("Len() = %d, want 5", buf.Len())
	}

	entries := buf.DrainAll()
	if len(entries) != 5 {
		t.Fatalf("DrainAll() returned %d entries, want 5", len(entries))
	}
	for i, e := range entries {
		if e.Value != i {
			t.Errorf("entries[%d].Value = %d, want %d", i, e.Value, i)
		}
		if e.Seq != uint64(i+1) {
			t.Errorf("entries[%d].Seq = %d, want %d", i, e.Seq, i+1)
		}
	}

	if !buf.PeekEmpty() {
		t.Error("PeekEmpty() = false after DrainAll, want true")
	}
	if got := buf.DrainAll(); got != nil {
		t.Errorf("DrainAll() on empty buffer = %v, want nil", got)
	}
}

func TestBuffer_AppendAll(t *testing.T) {
	buf := New[string](0)
	buf.Append("a")
	buf.AppendAll([]string{"b", "c"})
	buf.AppendAll(nil)

	entries := buf.DrainAll()
	if len(entries) != 3 {
		t.Fatalf("DrainAll() returned %d entries, want 3", len(entries))
	}
	want := []string{"a", "b", "c"}
	for i, e := range entries {
		if e.Value != want[i] {
			t.Errorf("entries[%d].Value = %q, want %q", i, e.Value, want[i])
		}
		if e.Seq != uint64(i+1) {
			t.Errorf("entries[%d].Seq = %d, want %d", i, e.Seq, i+1)
		}
	}
}

func TestBuffer_RequeueKeepsSequence(t *testing.T) {
	buf := New[int](0)
	buf.Append(1)
	buf.Append(2)

	failed := buf.DrainAll()
	for i := range failed {
		failed[i].Attempts++
	}

	// Arrives while the failed write was in flight.
	buf.Append(3)
	buf.Requeue(failed)

	entries := buf.DrainAll()
	if len(entries) != 3 {
		t.Fatalf("DrainAll() returned %d entries, want 3", len(entries))
	}
	if entries[0].Value != 3 || entries[0].Seq != 3 {
		t.Errorf("entries[0] = %+v, want value 3 seq 3 at head", entries[0])
	}
	if entries[1].Seq != 1 || entries[1].Attempts != 1 {
		t.Errorf("entries[1] = %+v, want seq 1 attempts 1", entries[1])
	}
	if entries[2].Seq != 2 || entries[2].Attempts != 1 {
		t.Errorf("entries[2] = %+v, want seq 2 attempts 1", entries[2])
	}

	stats := buf.Stats()
	if stats.TotalRequeued != 2 {
		t.Errorf("TotalRequeued = %d, want 2", stats.TotalRequeued)
	}
}

func TestBuffer_Stats(t *testing.T) {
	buf := New[int](0)
	for i := 0; i < 10; i++ {
		buf.Append(i)
	}
	buf.DrainAll()
	buf.Append(10)

	stats := buf.Stats()
	if stats.Count != 1 {
		t.Errorf("Count = %d, want 1", stats.Count)
	}
	if stats.TotalAppended != 11 {
		t.Errorf("TotalAppended = %d, want 11", stats.TotalAppended)
	}
	if stats.TotalDrained != 10 {
		t.Errorf("TotalDrained = %d, want 10", stats.TotalDrained)
	}
	if stats.Drains != 1 {
		t.Errorf("Drains = %d, want 1", stats.Drains)
	}
	if stats.HighWater != 10 {
		t.Errorf("HighWater = %d, want 10", stats.HighWater)
	}
}

// Every appended value must end up in exactly one drained batch or in the
// buffer, with concurrent appenders and a concurrent drainer.
func TestBuffer_ConcurrentNoLoss(t *testing.T) {
	buf := New[int](16)

	const producers = 8
	const perProducer = 5000

	var producerWG sync.WaitGroup
	for p := 0; p < producers; p++ {
		producerWG.Add(1)
		go func(p int) {
			defer producerWG.Done()
			for i := 0; i < perProducer; i++ {
				buf.Append(p*perProducer + i)
			}
		}(p)
	}

	done := make(chan struct{})
	drained := make(chan []Entry[int], 1)
	go func() {
		var all []Entry[int]
		for {
			select {
			case <-done:
				drained <- all
				return
			default:
				all = append(all, buf.DrainAll()...)
			}
		}
	}()

	producerWG.Wait()
	close(done)
	all := <-drained
	all = append(all, buf.DrainAll()...)

	seen := make(map[int]int, producers*perProducer)
	seqs := make(map[uint64]bool, producers*perProducer)
	for _, e := range all {
		seen[e.Value]++
		if seqs[e.Seq] {
			t.Fatalf("sequence %d drained twice", e.Seq)
		}
		seqs[e.Seq] = true
	}

	if len(seen) != producers*perProducer {
		t.Fatalf("saw %d distinct values, want %d", len(seen), producers*perProducer)
	}
	for v, n := range seen {
		if n != 1 {
			t.Fatalf("value %d drained %d times, want 1", v, n)
		}
	}
}

func TestBuffer_PerProducerOrderPreserved(t *testing.T) {
	buf := New[[2]int](0)

	var wg sync.WaitGroup
	for p := 0; p < 4; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < 1000; i++ {
				buf.Append([2]int{p, i})
			}
		}(p)
	}
	wg.Wait()

	last := map[int]int{0: -1, 1: -1, 2: -1, 3: -1}
	for _, e := range buf.DrainAll() {
		p, i := e.Value[0], e.Value[1]
		if i <= last[p] {
			t.Fatalf("producer %d: value %d drained after %d", p, i, last[p])
		}
		last[p] = i
	}
}
