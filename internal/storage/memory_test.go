package storage

import (
	"context"
	"testing"
	"time"
)

func TestMemoryGetSetDelete(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := NewMemory()

	if _, ok, err := s.Get(ctx, "missing"); err != nil || ok {
		t.Fatalf("Get missing = ok=%v err=%v", ok, err)
	}
	if err := s.Set(ctx, "k", []byte("v"), 0); err != nil {
		t.Fatalf("Set: %v", err)
	}
	v, ok, err := s.Get(ctx, "k")
	if err != nil || !ok || string(v) != "v" {
		t.Fatalf("Get = %q ok=%v err=%v", v, ok, err)
	}
	if err := s.Delete(ctx, "k"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := s.Delete(ctx, "k"); err != nil {
		t.Fatalf("Delete absent key: %v", err)
	}
	if _, ok, _ := s.Get(ctx, "k"); ok {
		t.Fatalf("key survived delete")
	}
}

func TestMemoryTTL(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := NewMemory()
	base := time.Date(2030, 1, 1, 8, 0, 0, 0, time.UTC)
	s.Now = func() time.Time { return base }

	if err := s.Set(ctx, "short", []byte("x"), time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := s.Set(ctx, "forever", []byte("y"), 0); err != nil {
		t.Fatalf("Set: %v", err)
	}

	s.Now = func() time.Time { return base.Add(2 * time.Minute) }
	if _, ok, _ := s.Get(ctx, "short"); ok {
		t.Fatalf("expired key still readable")
	}
	if _, ok, _ := s.Get(ctx, "forever"); !ok {
		t.Fatalf("unexpiring key vanished")
	}
	keys, _, err := s.Scan(ctx, "", "", 10)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(keys) != 1 || keys[0] != "forever" {
		t.Fatalf("Scan = %v, want [forever]", keys)
	}
}

func TestMemoryScanPagination(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := NewMemory()

	for _, k := range []string{"a:1", "a:2", "a:3", "a:4", "a:5", "b:1"} {
		if err := s.Set(ctx, k, []byte("v"), 0); err != nil {
			t.Fatalf("Set(%q): %v", k, err)
		}
	}

	var got []string
	cursor := ""
	pages := 0
	for {
		keys, next, err := s.Scan(ctx, "a:", cursor, 2)
		if err != nil {
			t.Fatalf("Scan: %v", err)
		}
		got = append(got, keys...)
		pages++
		if next == "" {
			break
		}
		cursor = next
	}
	want := []string{"a:1", "a:2", "a:3", "a:4", "a:5"}
	if len(got) != len(want) {
		t.Fatalf("scanned %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("scanned %v, want %v", got, want)
		}
	}
	if pages < 3 {
		t.Fatalf("walk took %d pages, expected at least 3 with limit 2", pages)
	}
}

func TestMemoryScanPrefixIsolation(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := NewMemory()

	if err := s.Set(ctx, "alarm:clock:1", []byte("v"), 0); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := s.Set(ctx, "alarm:other:1", []byte("v"), 0); err != nil {
		t.Fatalf("Set: %v", err)
	}

	keys, _, err := s.Scan(ctx, "alarm:clock:", "", 10)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(keys) != 1 || keys[0] != "alarm:clock:1" {
		t.Fatalf("Scan = %v", keys)
	}
}

func TestPrefixUpperBound(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want string
		ok   bool
	}{
		{"a", "b", true},
		{"alarm:", "alarm;", true},
		{"a\xff", "b", true},
		{"\xff\xff", "", false},
		{"", "", false},
	}
	for _, tc := range cases {
		got, ok := prefixUpperBound(tc.in)
		if ok != tc.ok || got != tc.want {
			t.Fatalf("prefixUpperBound(%q) = %q,%v want %q,%v", tc.in, got, ok, tc.want, tc.ok)
		}
	}
}
