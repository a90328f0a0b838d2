package config

import (
	"os"
	"path/filepath"
	"testing"
)

const sampleYAML = `
replay:
  filename: "traces/day1.dump.gz"
  multipacket: true
  sample: 0.25
  zero: true
  listen_addr: ":9801"
nats:
  url: "nats://nats.internal:4222"
aggregator:
  period: "1m"
  num_workers: 8
  exact:
    tasks:
      - name: "by_five_tuple"
        num_shards: 64
        key_fields: ["SrcIP", "DstIP", "SrcPort", "DstPort", "Protocol"]
    writers:
      - type: "gob"
        enabled: true
        snapshot_interval: "30s"
        gob:
          root_path: "/var/lib/netreplay"
api:
  listen_addr: ":9800"
`

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(sampleYAML), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if cfg.Replay.Filename != "traces/day1.dump.gz" {
		t.Errorf("filename = %q", cfg.Replay.Filename)
	}
	if !cfg.Replay.Multipacket || !cfg.Replay.Zero {
		t.Error("multipacket and zero should be set")
	}
	if cfg.Replay.Sample != 0.25 {
		t.Errorf("sample = %v, want 0.25", cfg.Replay.Sample)
	}
	if cfg.NATS.URL != "nats://nats.internal:4222" {
		t.Errorf("nats url = %q", cfg.NATS.URL)
	}
	if cfg.Aggregator.NumWorkers != 8 {
		t.Errorf("num_workers = %d, want 8", cfg.Aggregator.NumWorkers)
	}
	if len(cfg.Aggregator.Exact.Tasks) != 1 || cfg.Aggregator.Exact.Tasks[0].Name != "by_five_tuple" {
		t.Errorf("unexpected tasks %+v", cfg.Aggregator.Exact.Tasks)
	}
	if len(cfg.Aggregator.Exact.Writers) != 1 || cfg.Aggregator.Exact.Writers[0].Type != "gob" {
		t.Errorf("unexpected writers %+v", cfg.Aggregator.Exact.Writers)
	}

	// Defaults survive for fields the file does not mention.
	if cfg.Replay.Proto != 6 {
		t.Errorf("default proto = %d, want 6", cfg.Replay.Proto)
	}
	if cfg.NATS.Subject != "netreplay.packets.raw" {
		t.Errorf("default subject = %q", cfg.NATS.Subject)
	}
	if cfg.Aggregator.SizeOfPacketChannel != 10000 {
		t.Errorf("default packet channel size = %d", cfg.Aggregator.SizeOfPacketChannel)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	if _, err := LoadConfig("/no/such/config.yaml"); err == nil {
		t.Error("LoadConfig of a missing file should fail")
	}
}
