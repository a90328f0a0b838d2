package main

import (
	"NetReplay/internal/dump"
	"NetReplay/internal/engine/impl/exact/statistic"
	"encoding/gob"
	"fmt"
	"log"
	"os"
)

// Dumps the flows stored in one gob snapshot shard written by nr-engine.
func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: go run ./scripts/gobana/main.go <shard_N.dat>")
		os.Exit(1)
	}

	file, err := os.Open(os.Args[1])
	if err != nil {
		log.Fatalf("Unable to open file: %v", err)
	}
	defer file.Close()

	var flows map[string]*statistic.Flow
	if err := gob.NewDecoder(file).Decode(&flows); err != nil {
		log.Fatalf("Failed to decode gob data: %v", err)
	}

	fmt.Printf("%d flows:\n", len(flows))
	for key, flow := range flows {
		fmt.Printf("%s  packets=%d bytes=%d flags=%s first=%s last=%s\n",
			key, flow.PacketCount, flow.ByteCount,
			dump.UnparseTCPFlags(flow.FlagsSeen),
			flow.StartTime.Format("15:04:05.000000"),
			flow.EndTime.Format("15:04:05.000000"),
		)
	}
}
