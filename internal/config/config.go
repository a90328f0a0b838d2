package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ReplayConfig controls the dump replay source (nr-replay).
type ReplayConfig struct {
	// Filename is the summary dump to read; "-" reads standard input.
	Filename string `yaml:"filename"`
	// Active starts packet production enabled.
	Active bool `yaml:"active"`
	// Zero fills undeclared packet bytes with zeroes instead of garbage.
	Zero bool `yaml:"zero"`
	// Proto is the IP protocol for records without one.
	Proto uint8 `yaml:"proto"`
	// Multipacket expands count>1 records into count packets.
	Multipacket bool `yaml:"multipacket"`
	// Sample is the per-packet sampling probability (fixed-point rounded).
	Sample float64 `yaml:"sample"`
	// Seed fixes the sampling/fill random streams; 0 means time-based.
	Seed int64 `yaml:"seed"`
	// MultipacketInterval spaces sub-packet timestamps, e.g. "1ms".
	MultipacketInterval string `yaml:"multipacket_interval"`
	// DefaultContents overrides the schema assumed before any !data line.
	DefaultContents []string `yaml:"default_contents"`
	// ListenAddr serves the replay control/observability handlers.
	ListenAddr string `yaml:"listen_addr"`
	// StopAtEnd exits the process once the dump is exhausted.
	StopAtEnd bool `yaml:"stop_at_end"`
}

// NATSConfig holds the packet transport settings shared by nr-replay and
// nr-engine.
type NATSConfig struct {
	URL     string `yaml:"url"`
	Subject string `yaml:"subject"`
}

// ExactAggregationTaskDef defines a single aggregation task from the config file.
type ExactAggregationTaskDef struct {
	Name      string   `yaml:"name"`
	NumShards uint32   `yaml:"num_shards"`
	KeyFields []string `yaml:"key_fields"`
}

// SketchTaskDef defines a single count-min sketch task from the config file.
type SketchTaskDef struct {
	Name       string   `yaml:"name"`
	FlowFields []string `yaml:"flow_fields"`
	Width      uint32   `yaml:"width"`
	Depth      uint32   `yaml:"depth"`
	// Threshold is the estimated packet count a flow must reach to appear
	// in heavy-hitter reports.
	Threshold uint32 `yaml:"threshold"`
}

// GobConfig holds settings for the gob snapshot writer.
type GobConfig struct {
	RootPath string `yaml:"root_path"`
}

// TextConfig holds settings for the plain-text heavy-hitter writer.
type TextConfig struct {
	RootPath string `yaml:"root_path"`
}

// ClickHouseConfig holds connection settings for ClickHouse writers and queriers.
type ClickHouseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// WriterDef declares one snapshot writer attached to an aggregator group.
type WriterDef struct {
	Type             string           `yaml:"type"`
	Enabled          bool             `yaml:"enabled"`
	SnapshotInterval string           `yaml:"snapshot_interval"`
	Gob              GobConfig        `yaml:"gob"`
	Text             TextConfig       `yaml:"text"`
	ClickHouse       ClickHouseConfig `yaml:"clickhouse"`
}

// ExactConfig groups the exact aggregator's tasks and writers.
type ExactConfig struct {
	Tasks   []ExactAggregationTaskDef `yaml:"tasks"`
	Writers []WriterDef               `yaml:"writers"`
}

// SketchConfig groups the sketch aggregator's tasks and writers.
type SketchConfig struct {
	Tasks   []SketchTaskDef `yaml:"tasks"`
	Writers []WriterDef     `yaml:"writers"`
}

// AggregatorConfig holds the configuration for the flow aggregation engine.
type AggregatorConfig struct {
	Types               []string     `yaml:"types"`
	Period              string       `yaml:"period"`
	NumWorkers          int          `yaml:"num_workers"`
	SizeOfPacketChannel int          `yaml:"size_of_packet_channel"`
	Exact               ExactConfig  `yaml:"exact"`
	Sketch              SketchConfig `yaml:"sketch"`
}

// APIConfig holds settings for the query API server.
type APIConfig struct {
	ListenAddr string `yaml:"listen_addr"`
}

// Config is the top-level configuration struct for the entire application.
type Config struct {
	Replay     ReplayConfig     `yaml:"replay"`
	NATS       NATSConfig       `yaml:"nats"`
	Aggregator AggregatorConfig `yaml:"aggregator"`
	API        APIConfig        `yaml:"api"`
}

// LoadConfig reads the configuration from a YAML file and returns a Config
// struct. Fields absent from the file keep their defaults.
func LoadConfig(filePath string) (*Config, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := defaultConfig()
	err = yaml.Unmarshal(data, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal config YAML: %w", err)
	}

	return cfg, nil
}

func defaultConfig() *Config {
	return &Config{
		Replay: ReplayConfig{
			Filename: "-",
			Active:   true,
			Proto:    6,
			Sample:   1,
		},
		NATS: NATSConfig{
			URL:     "nats://localhost:4222",
			Subject: "netreplay.packets.raw",
		},
		Aggregator: AggregatorConfig{
			Types:               []string{"exact"},
			Period:              "5m",
			NumWorkers:          4,
			SizeOfPacketChannel: 10000,
		},
	}
}
