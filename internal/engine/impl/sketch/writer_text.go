package sketch

import (
	"NetReplay/internal/model"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"
)

// TextWriter writes heavy-hitter reports to plain text files.
type TextWriter struct {
	rootPath string
	interval time.Duration
}

// NewTextWriter creates a new text writer for heavy hitters.
func NewTextWriter(rootPath string, interval time.Duration) model.Writer {
	return &TextWriter{rootPath: rootPath, interval: interval}
}

// GetInterval returns the configured snapshot interval for this writer.
func (w *TextWriter) GetInterval() time.Duration {
	return w.interval
}

// Write renders the heavy hitters of one snapshot into a text file, one flow
// per line with its packet and byte estimates.
func (w *TextWriter) Write(payload interface{}, timestamp string) error {
	snapshot, ok := payload.(SnapshotData)
	if !ok {
		return fmt.Errorf("invalid payload type for TextWriter: expected sketch.SnapshotData, got %T", payload)
	}

	taskDir := filepath.Join(w.rootPath, timestamp, snapshot.TaskName)
	if err := os.MkdirAll(taskDir, 0755); err != nil {
		return fmt.Errorf("failed to create snapshot directory: %w", err)
	}

	filePath := filepath.Join(taskDir, "heavy_hitters.txt")
	file, err := os.Create(filePath)
	if err != nil {
		return fmt.Errorf("failed to create snapshot file '%s': %w", filePath, err)
	}
	defer file.Close()

	for _, hitter := range snapshot.Hitters {
		line := fmt.Sprintf("%s %d %d\n", DecodeFlow(hitter.Flow, snapshot.FlowFields), hitter.Packets, hitter.Bytes)
		if _, err := file.WriteString(line); err != nil {
			return fmt.Errorf("failed to write heavy hitter to file: %w", err)
		}
	}

	log.Printf("Wrote %d heavy hitters to %s", len(snapshot.Hitters), filePath)
	return nil
}
