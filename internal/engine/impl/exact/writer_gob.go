package exact

import (
	"NetReplay/internal/engine/impl/exact/statistic"
	"NetReplay/internal/model"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

func init() {
	// Register the concrete type of Flow for gob encoding/decoding.
	gob.Register(&statistic.Flow{})
}

// SummaryData holds the metadata for an on-disk snapshot.
type SummaryData struct {
	TaskName     string `json:"task_name"`
	TotalFlows   int    `json:"total_flows"`
	TotalBytes   uint64 `json:"total_bytes"`
	TotalPackets uint64 `json:"total_packets"`
	Shards       int    `json:"shards"`
	Timestamp    string `json:"timestamp"`
}

// GobWriter persists aggregation snapshots to disk in gob format.
// It implements the model.Writer interface.
type GobWriter struct {
	rootPath string
	interval time.Duration
}

// NewGobWriter creates a new on-disk snapshot writer rooted at rootPath.
func NewGobWriter(rootPath string, interval time.Duration) model.Writer {
	return &GobWriter{rootPath: rootPath, interval: interval}
}

// GetInterval returns the configured snapshot interval for this writer.
func (w *GobWriter) GetInterval() time.Duration {
	return w.interval
}

// Write serializes a single task snapshot to a timestamped directory on disk.
// It expects the payload to be of type statistic.SnapshotData.
func (w *GobWriter) Write(payload interface{}, timestamp string) error {
	snapshot, ok := payload.(statistic.SnapshotData)
	if !ok {
		return fmt.Errorf("invalid payload type for GobWriter: expected statistic.SnapshotData, got %T", payload)
	}

	// One subdirectory per task under the timestamped snapshot directory,
	// so concurrent tasks never collide on file names.
	taskDir := filepath.Join(w.rootPath, timestamp, snapshot.TaskName)
	if err := os.MkdirAll(taskDir, 0755); err != nil {
		return fmt.Errorf("failed to create snapshot directory: %w", err)
	}

	totalFlows := 0
	totalPackets, totalBytes := uint64(0), uint64(0)
	for i, shard := range snapshot.Shards {
		if len(shard.Flows) == 0 {
			continue
		}
		totalFlows += len(shard.Flows)
		for _, flow := range shard.Flows {
			totalPackets += flow.PacketCount
			totalBytes += flow.ByteCount
		}

		filePath := filepath.Join(taskDir, fmt.Sprintf("shard_%d.dat", i))
		file, err := os.Create(filePath)
		if err != nil {
			return fmt.Errorf("failed to create snapshot file '%s': %w", filePath, err)
		}

		encoder := gob.NewEncoder(file)
		if err := encoder.Encode(shard.Flows); err != nil {
			file.Close()
			return fmt.Errorf("failed to encode flows to gob for file '%s': %w", filePath, err)
		}
		file.Close()
	}

	if totalFlows == 0 {
		return nil
	}

	summary := SummaryData{
		TaskName:     snapshot.TaskName,
		TotalFlows:   totalFlows,
		TotalBytes:   totalBytes,
		TotalPackets: totalPackets,
		Shards:       len(snapshot.Shards),
		Timestamp:    time.Now().UTC().Format(time.RFC3339),
	}
	summaryFile, err := os.Create(filepath.Join(taskDir, "summary.json"))
	if err != nil {
		return fmt.Errorf("failed to create summary file: %w", err)
	}
	defer summaryFile.Close()

	jsonEncoder := json.NewEncoder(summaryFile)
	jsonEncoder.SetIndent("", "  ")
	if err := jsonEncoder.Encode(summary); err != nil {
		return fmt.Errorf("failed to encode summary to json: %w", err)
	}

	return nil
}
