package testutil

import (
	"sync"
	"testing"
)

func TestDeterministicClockAdvances(t *testing.T) {
	c := NewDeterministicClock()

	t1 := c.Now()
	t2 := c.Now()
	if !t2.After(t1) {
		t.Fatalf("expected second timestamp after first: %v vs %v", t1, t2)
	}
}

func TestDeterministicClockResetReplays(t *testing.T) {
	c := NewDeterministicClock()

	first := c.Now()
	c.Now()
	c.Reset()

	if got := c.Now(); !got.Equal(first) {
		t.Fatalf("expected %v after reset, got %v", first, got)
	}
}

func TestDeterministicClockConcurrentUnique(t *testing.T) {
	c := NewDeterministicClock()

	const n = 50
	var wg sync.WaitGroup
	results := make([]int64, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = c.Now().Unix()
		}(i)
	}
	wg.Wait()

	seen := make(map[int64]bool, n)
	for _, ts := range results {
		if seen[ts] {
			t.Fatalf("duplicate timestamp %d", ts)
		}
		seen[ts] = true
	}
}

func TestSequenceIDGenerator(t *testing.T) {
	g := NewSequenceIDGenerator("txn")

	if got := g.NewID(); got != "txn-000001" {
		t.Fatalf("expected txn-000001, got %q", got)
	}
	if got := g.NewID(); got != "txn-000002" {
		t.Fatalf("expected txn-000002, got %q", got)
	}

	g.Reset()
	if got := g.NewID(); got != "txn-000001" {
		t.Fatalf("expected txn-000001 after reset, got %q", got)
	}
}

func TestSequenceIDGeneratorDefaultPrefix(t *testing.T) {
	g := NewSequenceIDGenerator("")
	if got := g.NewID(); got != "id-000001" {
		t.Fatalf("expected id-000001, got %q", got)
	}
}

func TestSequenceIDGeneratorConcurrentUnique(t *testing.T) {
	g := NewSequenceIDGenerator("x")

	const n = 100
	var wg sync.WaitGroup
	results := make([]string, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = g.NewID()
		}(i)
	}
	wg.Wait()

	seen := make(map[string]bool, n)
	for _, id := range results {
		if seen[id] {
			t.Fatalf("duplicate id %q", id)
		}
		seen[id] = true
	}
}
