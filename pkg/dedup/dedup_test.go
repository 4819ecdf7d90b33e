package dedup

import (
	"testing"
	"time"
)

func TestShouldProcess_DropsRepeatsWithinTTL(t *testing.T) {
	d := New(time.Minute, 100)
	if !d.ShouldProcess("m1") {
		t.Fatal("first sighting must be processed")
	}
	if d.ShouldProcess("m1") {
		t.Fatal("redelivery within TTL must be dropped")
	}
	if !d.ShouldProcess("m2") {
		t.Fatal("different id must be processed")
	}
}

func TestShouldProcess_ExpiresAfterTTL(t *testing.T) {
	d := New(10*time.Millisecond, 100)
	if !d.ShouldProcess("m1") {
		t.Fatal("first sighting must be processed")
	}
	time.Sleep(20 * time.Millisecond)
	if !d.ShouldProcess("m1") {
		t.Fatal("expired id must be processed again")
	}
}

func TestShouldProcess_EmptyIDAlwaysPasses(t *testing.T) {
	d := New(time.Minute, 100)
	if !d.ShouldProcess("") || !d.ShouldProcess("") {
		t.Fatal("empty id must never be deduplicated")
	}
}

func TestEviction_KeepsMapBounded(t *testing.T) {
	d := New(5*time.Millisecond, 10)
	for i := 0; i < 10; i++ {
		d.ShouldProcess(string(rune('a' + i)))
	}
	time.Sleep(10 * time.Millisecond)
	d.ShouldProcess("fresh")
	d.mu.Lock()
	n := len(d.entries)
	d.mu.Unlock()
	if n > 10 {
		t.Fatalf("entries = %d, want expired ids evicted", n)
	}
}
