package sketch

import (
	"NetReplay/internal/config"
	"NetReplay/internal/engine/impl/sketch/statistic"
	"NetReplay/internal/factory"
	"NetReplay/internal/model"
	"encoding/binary"
	"log"
	"net"
	"strconv"
	"strings"
	"time"
)

// --- Factory Registration ---

func init() {
	factory.RegisterAggregator("sketch", func(cfg *config.Config) (*factory.TaskGroup, error) {
		sketchCfg := cfg.Aggregator.Sketch

		writers := make([]model.Writer, 0, len(sketchCfg.Writers))
		for _, writerDef := range sketchCfg.Writers {
			if !writerDef.Enabled {
				continue
			}

			interval, err := time.ParseDuration(writerDef.SnapshotInterval)
			if err != nil {
				log.Printf("Warning: invalid snapshot_interval for writer type '%s': %v, skipping.", writerDef.Type, err)
				continue
			}

			var writer model.Writer
			switch writerDef.Type {
			case "text":
				writer = NewTextWriter(writerDef.Text.RootPath, interval)
			case "clickhouse":
				writer, err = NewClickHouseWriter(writerDef.ClickHouse, interval)
				if err != nil {
					log.Printf("Warning: failed to create writer type '%s': %v, skipping.", writerDef.Type, err)
					continue
				}
			default:
				log.Printf("Warning: unknown writer type '%s' in sketch aggregator config, skipping.", writerDef.Type)
				continue
			}
			writers = append(writers, writer)
		}

		tasks := make([]model.Task, len(sketchCfg.Tasks))
		for i, taskCfg := range sketchCfg.Tasks {
			tasks[i] = New(taskCfg)
		}

		return &factory.TaskGroup{Tasks: tasks, Writers: writers}, nil
	})
}

// --- Task Implementation ---

// Byte sizes of the encoded flow key fields. IPs are encoded in 16-byte form
// so IPv4 and IPv6 keys line up.
const (
	ipByteSize    = 16
	portByteSize  = 2
	protoByteSize = 1
)

// SnapshotData carries a heavy-hitter report along with the field layout
// needed to decode the packed flow keys.
type SnapshotData struct {
	TaskName   string
	FlowFields []string
	Hitters    []statistic.HeavyRecord
}

// Task estimates per-flow traffic with a count-min sketch and reports flows
// that cross a packet threshold. Unlike the exact aggregator its memory is
// fixed regardless of flow count. It implements the model.Task interface.
type Task struct {
	name       string
	flowFields []string
	flowSize   uint32
	sketch     *statistic.CountMin
}

// New creates a sketch task from its config definition.
func New(cfg config.SketchTaskDef) model.Task {
	flowSize := uint32(0)
	for _, f := range cfg.FlowFields {
		flowSize += fieldByteSize(f)
	}
	log.Printf("Creating sketch task '%s' for flow fields %v (key bytes %d) with width %d, depth %d, threshold %d",
		cfg.Name, cfg.FlowFields, flowSize, cfg.Width, cfg.Depth, cfg.Threshold)

	return &Task{
		name:       cfg.Name,
		flowFields: cfg.FlowFields,
		flowSize:   flowSize,
		sketch:     statistic.NewCountMin(cfg.Width, cfg.Depth, cfg.Threshold, flowSize),
	}
}

// Name returns the name of the task.
func (t *Task) Name() string {
	return t.name
}

// ProcessPacket records one packet in the sketch.
func (t *Task) ProcessPacket(packetInfo *model.PacketInfo) {
	flow := make([]byte, t.flowSize)
	encodeFlow(flow, t.flowFields, &packetInfo.FiveTuple)
	t.sketch.Insert(flow, uint32(packetInfo.Length))
}

// Query estimates the packet count for an encoded flow key.
func (t *Task) Query(flow []byte) uint32 {
	return t.sketch.Query(flow)
}

// Snapshot reports the current heavy hitters.
func (t *Task) Snapshot() interface{} {
	return SnapshotData{
		TaskName:   t.name,
		FlowFields: t.flowFields,
		Hitters:    t.sketch.HeavyHitters(),
	}
}

// Reset clears the sketch for a new measurement period.
func (t *Task) Reset() {
	t.sketch.Reset()
}

// encodeFlow packs the selected five-tuple fields into buf.
func encodeFlow(buf []byte, fields []string, ft *model.FiveTuple) {
	offset := 0
	for _, f := range fields {
		switch f {
		case "SrcIP":
			copy(buf[offset:], ft.SrcIP.To16())
			offset += ipByteSize
		case "DstIP":
			copy(buf[offset:], ft.DstIP.To16())
			offset += ipByteSize
		case "SrcPort":
			binary.BigEndian.PutUint16(buf[offset:], ft.SrcPort)
			offset += portByteSize
		case "DstPort":
			binary.BigEndian.PutUint16(buf[offset:], ft.DstPort)
			offset += portByteSize
		case "Protocol":
			buf[offset] = ft.Protocol
			offset += protoByteSize
		}
	}
}

// DecodeFlow renders a packed flow key back into a readable string.
func DecodeFlow(flow []byte, fields []string) string {
	var parts []string
	offset := 0

	for _, f := range fields {
		switch f {
		case "SrcIP", "DstIP":
			ip := net.IP(flow[offset : offset+ipByteSize])
			parts = append(parts, ip.String())
			offset += ipByteSize
		case "SrcPort", "DstPort":
			port := binary.BigEndian.Uint16(flow[offset : offset+portByteSize])
			parts = append(parts, strconv.Itoa(int(port)))
			offset += portByteSize
		case "Protocol":
			parts = append(parts, strconv.Itoa(int(flow[offset])))
			offset += protoByteSize
		}
	}

	return strings.Join(parts, " ")
}

func fieldByteSize(field string) uint32 {
	switch field {
	case "SrcIP", "DstIP":
		return ipByteSize
	case "SrcPort", "DstPort":
		return portByteSize
	case "Protocol":
		return protoByteSize
	default:
		return 0
	}
}
