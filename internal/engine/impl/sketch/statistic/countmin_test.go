package statistic

import (
	"fmt"
	"math/rand"
	"testing"
)

func TestMurmurHash3Deterministic(t *testing.T) {
	data := []byte("1.2.3.4:1234")
	if MurmurHash3(data, 42) != MurmurHash3(data, 42) {
		t.Fatal("same data and seed must hash identically")
	}
	if MurmurHash3(data, 42) == MurmurHash3(data, 43) {
		t.Error("different seeds should disagree on this input")
	}
}

func TestCountMinAccuracy(t *testing.T) {
	cm := NewCountMin(1<<14, 3, 8, 4)
	truth := make(map[string]uint32)

	rng := rand.New(rand.NewSource(7))
	keys := make([][]byte, 100)
	for i := range keys {
		keys[i] = []byte(fmt.Sprintf("%04d", i))
	}

	for i := 0; i < 20000; i++ {
		// Zipf-ish skew so a few flows dominate.
		k := keys[int(rng.ExpFloat64()*10)%len(keys)]
		cm.Insert(k, 100)
		truth[string(k)]++
	}

	// Count-min with fingerprints may undercount on eviction but the table
	// is far larger than the key set here, so estimates should be exact.
	for k, want := range truth {
		got := cm.Query([]byte(k))
		if got != want {
			t.Errorf("Query(%q) = %d, want %d", k, got, want)
		}
	}
}

func TestCountMinHeavyHittersThreshold(t *testing.T) {
	cm := NewCountMin(1<<10, 2, 50, 4)

	for i := 0; i < 100; i++ {
		cm.Insert([]byte("aaaa"), 10)
	}
	for i := 0; i < 10; i++ {
		cm.Insert([]byte("bbbb"), 10)
	}

	hitters := cm.HeavyHitters()
	if len(hitters) != 1 {
		t.Fatalf("got %d heavy hitters, want 1", len(hitters))
	}
	if string(hitters[0].Flow) != "aaaa" {
		t.Errorf("heavy hitter = %q, want %q", hitters[0].Flow, "aaaa")
	}
	if hitters[0].Packets != 100 || hitters[0].Bytes != 1000 {
		t.Errorf("heavy hitter = %d packets / %d bytes, want 100/1000", hitters[0].Packets, hitters[0].Bytes)
	}
}

func TestCountMinReset(t *testing.T) {
	cm := NewCountMin(1<<8, 2, 1, 4)
	cm.Insert([]byte("aaaa"), 10)
	cm.Reset()

	if got := cm.Query([]byte("aaaa")); got != 0 {
		t.Errorf("Query after reset = %d, want 0", got)
	}
	if hitters := cm.HeavyHitters(); len(hitters) != 0 {
		t.Errorf("heavy hitters after reset = %d, want 0", len(hitters))
	}
}
