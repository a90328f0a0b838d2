package statistic

import (
	"bytes"
	"math/rand"
	"slices"
	"sync"
)

const (
	defaultWidth     = 1 << 20
	defaultDepth     = 3
	defaultThreshold = 512
)

// HeavyRecord is one flow that crossed the reporting threshold.
type HeavyRecord struct {
	Flow    []byte
	Packets uint32
	Bytes   uint64
}

// bucket holds a candidate flow fingerprint with its packet and byte
// counters. The fingerprint is replaced majority-vote style: collisions
// decrement the packet counter and take over the bucket when it hits zero.
type bucket struct {
	fp      []byte
	packets uint32
	bytes   uint64
}

// CountMin is a fingerprinted count-min sketch estimating per-flow packet
// and byte counts in fixed memory. Insert and Query are safe for concurrent
// use.
type CountMin struct {
	mu        sync.Mutex
	w, d      uint32
	threshold uint32
	seed      []uint32
	table     [][]bucket
}

// NewCountMin creates a sketch of depth rows by width buckets. Flows whose
// estimated packet count reaches threshold appear in HeavyHitters. Zero
// arguments pick defaults. keySize is the byte length of flow keys.
func NewCountMin(width, depth, threshold, keySize uint32) *CountMin {
	if width == 0 {
		width = defaultWidth
	}
	if depth == 0 {
		depth = defaultDepth
	}
	if threshold == 0 {
		threshold = defaultThreshold
	}

	seed := make([]uint32, depth)
	for i := range seed {
		seed[i] = rand.Uint32()
	}

	table := make([][]bucket, depth)
	for i := range table {
		table[i] = make([]bucket, width)
		for j := range table[i] {
			table[i][j].fp = make([]byte, keySize)
		}
	}

	return &CountMin{
		w:         width,
		d:         depth,
		threshold: threshold,
		seed:      seed,
		table:     table,
	}
}

// Insert records one packet of the given byte size for the flow.
func (t *CountMin) Insert(flow []byte, size uint32) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for i := 0; i < int(t.d); i++ {
		index := MurmurHash3(flow, t.seed[i]) % t.w
		b := &t.table[i][index]
		switch {
		case b.packets == 0:
			copy(b.fp, flow)
			b.packets = 1
			b.bytes = uint64(size)
		case bytes.Equal(b.fp, flow):
			b.packets++
			b.bytes += uint64(size)
		default:
			b.packets--
			if b.packets == 0 {
				copy(b.fp, flow)
				b.packets = 1
				b.bytes = uint64(size)
			}
		}
	}
}

// Query estimates the packet count recorded for a flow. Flows evicted from
// every row estimate to zero.
func (t *CountMin) Query(flow []byte) uint32 {
	t.mu.Lock()
	defer t.mu.Unlock()

	est := uint32(0)
	for i := 0; i < int(t.d); i++ {
		index := MurmurHash3(flow, t.seed[i]) % t.w
		b := &t.table[i][index]
		if bytes.Equal(b.fp, flow) {
			est = max(est, b.packets)
		}
	}
	return est
}

// HeavyHitters returns every surviving flow at or above the threshold,
// sorted by estimated packet count descending.
func (t *CountMin) HeavyHitters() []HeavyRecord {
	t.mu.Lock()
	defer t.mu.Unlock()

	hh := make(map[string]HeavyRecord)
	for i := 0; i < int(t.d); i++ {
		for j := 0; j < int(t.w); j++ {
			b := &t.table[i][j]
			if b.packets == 0 {
				continue
			}
			key := string(b.fp)
			if rec, exists := hh[key]; !exists || b.packets > rec.Packets {
				hh[key] = HeavyRecord{Packets: b.packets, Bytes: b.bytes}
			}
		}
	}

	hitters := make([]HeavyRecord, 0)
	for k, rec := range hh {
		if rec.Packets < t.threshold {
			continue
		}
		rec.Flow = []byte(k)
		hitters = append(hitters, rec)
	}
	slices.SortFunc(hitters, func(a, b HeavyRecord) int {
		return int(b.Packets) - int(a.Packets)
	})
	return hitters
}

// Reset clears every bucket for a new measurement period.
func (t *CountMin) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()

	for i := range t.table {
		for j := range t.table[i] {
			b := &t.table[i][j]
			b.packets = 0
			b.bytes = 0
		}
	}
}
