package model

import "time"

// Task is one self-contained aggregation over the replayed packet stream,
// e.g. exact per-flow counting or a sketch. Implementations must tolerate
// concurrent ProcessPacket calls.
type Task interface {
	ProcessPacket(packet *PacketInfo)
	// Snapshot returns a copy of the current state; the concrete type is
	// whatever the task's writers expect.
	Snapshot() interface{}
	Reset()
	Name() string
}

// Writer persists task snapshots. The timestamp names the snapshot and is
// formatted as 2006-01-02_15-04-05.
type Writer interface {
	Write(payload interface{}, timestamp string) error

	// GetInterval returns the configured snapshot interval for this writer.
	GetInterval() time.Duration
}
