package lru

import "testing"

func TestListGetPromotesToFront(t *testing.T) {
	l := New[string, int](0, nil)
	l.Set("a", 1)
	l.Set("b", 2)
	l.Set("c", 3)

	if v, ok := l.Get("a"); !ok || v != 1 {
		t.Fatalf("get a = %v, %v", v, ok)
	}
	k, _, _ := l.Back()
	if k != "b" {
		t.Fatalf("back = %v, want b (a was promoted)", k)
	}
}

func TestListSetOnFullEvictsBack(t *testing.T) {
	var evicted []string
	l := New[string, int](2, func(k string, v int) { evicted = append(evicted, k) })
	l.Set("a", 1)
	l.Set("b", 2)
	l.Set("c", 3)

	if l.Len() != 2 {
		t.Fatalf("len = %d, want 2", l.Len())
	}
	if l.Contains("a") {
		t.Fatalf("a should have been evicted")
	}
	if len(evicted) != 1 || evicted[0] != "a" {
		t.Fatalf("evicted = %v, want [a]", evicted)
	}
}

func TestListSetOnExistingKeyOverwritesAndPromotes(t *testing.T) {
	l := New[string, int](2, nil)
	l.Set("a", 1)
	l.Set("b", 2)
	l.Set("a", 99)

	if v, ok := l.Peek("a"); !ok || v != 99 {
		t.Fatalf("a = %v, %v, want 99", v, ok)
	}
	k, _, _ := l.Back()
	if k != "b" {
		t.Fatalf("back = %v, want b", k)
	}
}

func TestListRemoveLRU(t *testing.T) {
	l := New[string, int](0, nil)
	l.Set("a", 1)
	l.Set("b", 2)

	k, v, ok := l.RemoveLRU()
	if !ok || k != "a" || v != 1 {
		t.Fatalf("removeLRU = %v %v %v, want a 1 true", k, v, ok)
	}
	if l.Contains("a") {
		t.Fatalf("a should be gone")
	}
}
