package container

import "testing"

func TestBitsetBasic(t *testing.T) {
	b := NewBitset(70)
	b.Set(0)
	b.Set(33)
	b.Set(69)
	if !b.Test(0) || !b.Test(33) || !b.Test(69) {
		t.Fatal("expected bits set")
	}
	if b.Test(1) || b.Test(68) {
		t.Fatal("unexpected bit set")
	}
	if got := b.PopCount(); got != 3 {
		t.Fatalf("popcount = %d, want 3", got)
	}
	first := b.GetFirst()
	if first != 0 {
		t.Fatalf("GetFirst = %d, want 0", first)
	}
	next := b.GetNext(first)
	if next != 33 {
		t.Fatalf("GetNext = %d, want 33", next)
	}
}

func TestBitsetSetAllMasksTail(t *testing.T) {
	b := NewBitset(5)
	b.SetAll()
	if b.PopCount() != 5 {
		t.Fatalf("popcount = %d, want 5", b.PopCount())
	}
}

func TestBitsetUnion(t *testing.T) {
	a := NewBitset(10)
	b := NewBitset(10)
	a.Set(1)
	b.Set(2)
	out := NewBitset(10)
	out.Union(a, b)
	if !out.Test(1) || !out.Test(2) {
		t.Fatal("union missing bits")
	}
}

func TestHashInsertLookupRemove(t *testing.T) {
	h := NewHash(4)
	h.Insert("a", 1)
	h.Insert("b", 2)
	h.Insert("a", 3) // overwrite

	if v := h.Lookup("a"); v != 3 {
		t.Fatalf("a = %v, want 3", v)
	}
	if v := h.Lookup("b"); v != 2 {
		t.Fatalf("b = %v, want 2", v)
	}
	if h.NumEntries() != 2 {
		t.Fatalf("entries = %d, want 2", h.NumEntries())
	}
	h.Remove("a")
	if h.Lookup("a") != nil {
		t.Fatal("expected a to be removed")
	}
	if h.NumEntries() != 1 {
		t.Fatalf("entries after remove = %d, want 1", h.NumEntries())
	}
}

func TestHashHoldsManyEntries(t *testing.T) {
	h := NewHash(4)
	for i := 0; i < 500; i++ {
		h.Insert(string(rune(i)), i)
	}
	if h.NumEntries() != 500 {
		t.Fatalf("entries = %d, want 500", h.NumEntries())
	}
}

func TestListPushRemove(t *testing.T) {
	l := &List[string]{}
	n1 := l.PushBack("a")
	l.PushBack("b")
	n3 := l.PushFront("z")

	if l.Len() != 3 {
		t.Fatalf("len = %d, want 3", l.Len())
	}
	if l.Front().Value != "z" {
		t.Fatalf("front = %v", l.Front().Value)
	}

	l.Remove(n1)
	if l.Len() != 2 {
		t.Fatalf("len after remove = %d, want 2", l.Len())
	}
	var got []string
	l.Each(func(s string) { got = append(got, s) })
	if len(got) != 2 || got[0] != "z" || got[1] != "b" {
		t.Fatalf("unexpected order: %v", got)
	}
	l.Remove(n3)
	if l.Front() == nil || l.Front().Value != "b" {
		t.Fatalf("unexpected front after second remove")
	}
}

func TestBtreeInsertLookupDelete(t *testing.T) {
	bt := NewBtree()
	bt.Insert(5, "five")
	bt.Insert(1, "one")
	bt.Insert(100, "hundred")

	if bt.Lookup(5) != "five" {
		t.Fatal("lookup 5 failed")
	}
	if bt.Lookup(1) != "one" {
		t.Fatal("lookup 1 failed")
	}
	bt.Delete(5)
	if bt.Lookup(5) != nil {
		t.Fatal("expected 5 to be deleted")
	}
	if bt.Lookup(1) != "one" || bt.Lookup(100) != "hundred" {
		t.Fatal("delete corrupted remaining entries")
	}
}

func TestBtreeIterationOrder(t *testing.T) {
	bt := NewBtree()
	keys := []uint32{50, 10, 70, 30, 90, 20}
	for _, k := range keys {
		bt.Insert(k, k)
	}
	var got []uint32
	for it := bt.First(); it != nil; it = it.Next() {
		got = append(got, it.Data().(uint32))
	}
	if len(got) != len(keys) {
		t.Fatalf("got %d entries, want %d", len(got), len(keys))
	}
	for i := 1; i < len(got); i++ {
		if got[i-1] >= got[i] {
			t.Fatalf("iteration not sorted: %v", got)
		}
	}
}

func TestTtreeInsertLookup(t *testing.T) {
	tt := NewTtree(3)
	tt.Insert([]uint32{1, 2, 3}, "a")
	tt.Insert([]uint32{1, 2, 4}, "b")
	tt.Insert([]uint32{9, 9, 9}, "c")

	if v, ok := tt.Lookup([]uint32{1, 2, 3}); !ok || v != "a" {
		t.Fatalf("lookup {1,2,3} = %v, %v", v, ok)
	}
	if v, ok := tt.Lookup([]uint32{1, 2, 4}); !ok || v != "b" {
		t.Fatalf("lookup {1,2,4} = %v, %v", v, ok)
	}
	if v, ok := tt.Lookup([]uint32{9, 9, 9}); !ok || v != "c" {
		t.Fatalf("lookup {9,9,9} = %v, %v", v, ok)
	}
	if _, ok := tt.Lookup([]uint32{1, 2, 5}); ok {
		t.Fatal("expected missing key to miss")
	}
}
