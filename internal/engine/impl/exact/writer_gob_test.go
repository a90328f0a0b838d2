package exact

import (
	"NetReplay/internal/engine/impl/exact/statistic"
	"encoding/gob"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestGobWriterWritesSnapshot(t *testing.T) {
	testFlows := make(map[string]*statistic.Flow)
	testFlows["test-key"] = &statistic.Flow{Key: "test-key", PacketCount: 2, ByteCount: 300, FlagsSeen: 0x12}

	snapshotData := statistic.SnapshotData{
		TaskName: "test_task",
		Shards: []*statistic.Shard{
			{Flows: testFlows},
			{Flows: make(map[string]*statistic.Flow)}, // An empty shard
		},
	}

	tmpDir, err := os.MkdirTemp("", "gobwriter_test")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tmpDir)

	writer := NewGobWriter(tmpDir, time.Minute)
	timestamp := "2025-01-01_00-00-00"
	if err := writer.Write(snapshotData, timestamp); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	taskDir := filepath.Join(tmpDir, timestamp, "test_task")

	shardPath := filepath.Join(taskDir, "shard_0.dat")
	if _, err := os.Stat(shardPath); os.IsNotExist(err) {
		t.Fatalf("shard_0.dat was not created")
	}

	// Empty shards produce no files.
	if _, err := os.Stat(filepath.Join(taskDir, "shard_1.dat")); !os.IsNotExist(err) {
		t.Fatalf("shard_1.dat (empty) should not have been created")
	}

	summaryBytes, err := os.ReadFile(filepath.Join(taskDir, "summary.json"))
	if err != nil {
		t.Fatalf("Failed to read summary.json: %v", err)
	}
	var summary SummaryData
	if err := json.Unmarshal(summaryBytes, &summary); err != nil {
		t.Fatalf("Failed to unmarshal summary.json: %v", err)
	}
	if summary.TaskName != "test_task" {
		t.Errorf("summary.TaskName = %q, want %q", summary.TaskName, "test_task")
	}
	if summary.TotalFlows != 1 || summary.TotalPackets != 2 || summary.TotalBytes != 300 {
		t.Errorf("summary totals = %d flows / %d packets / %d bytes, want 1/2/300",
			summary.TotalFlows, summary.TotalPackets, summary.TotalBytes)
	}

	// The shard file must decode back to the original flows.
	f, err := os.Open(shardPath)
	if err != nil {
		t.Fatalf("Failed to open shard file: %v", err)
	}
	defer f.Close()

	var decoded map[string]*statistic.Flow
	if err := gob.NewDecoder(f).Decode(&decoded); err != nil {
		t.Fatalf("Failed to decode shard gob: %v", err)
	}
	flow, ok := decoded["test-key"]
	if !ok {
		t.Fatalf("decoded shard missing flow key")
	}
	if flow.ByteCount != 300 || flow.FlagsSeen != 0x12 {
		t.Errorf("decoded flow = %+v, want ByteCount 300 FlagsSeen 0x12", flow)
	}
}

func TestGobWriterRejectsWrongPayload(t *testing.T) {
	writer := NewGobWriter(t.TempDir(), time.Minute)
	if err := writer.Write("not a snapshot", "2025-01-01_00-00-00"); err == nil {
		t.Fatal("expected error for wrong payload type")
	}
}
