package main

import (
	"NetReplay/internal/dump"
	"errors"
	"flag"
	"io"
	"log"
	"os"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

// Converts an IP summary dump into a pcap file of synthesized packets, so
// standard capture tools can inspect what the replay pipeline would emit.
func main() {
	inputFile := flag.String("i", "-", "Input summary dump ('-' for stdin, .gz/.bz2 supported)")
	outputFile := flag.String("o", "out.pcap", "Output pcap file path")
	zero := flag.Bool("zero", false, "Zero-fill undeclared bytes instead of garbage")
	multipacket := flag.Bool("multipacket", false, "Expand count>1 records into multiple packets")
	seed := flag.Int64("seed", 0, "Random seed for garbage fill (0 picks a time-based seed)")
	flag.Parse()

	src, err := dump.Open(*inputFile)
	if err != nil {
		log.Fatalf("Failed to open dump: %v", err)
	}
	defer src.Close()

	f, err := os.Create(*outputFile)
	if err != nil {
		log.Fatalf("Failed to create output file: %v", err)
	}
	defer f.Close()

	pcapWriter := pcapgo.NewWriter(f)
	if err := pcapWriter.WriteFileHeader(65536, layers.LinkTypeRaw); err != nil {
		log.Fatalf("Failed to write pcap header: %v", err)
	}

	engine := dump.NewEngine(src, dump.Options{
		Zero:        *zero,
		Multipacket: *multipacket,
		Seed:        *seed,
	})

	written := 0
	for {
		pkt, err := engine.NextPacket()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			log.Fatalf("Failed to read dump: %v", err)
		}

		// The wire length is what the dump declared, which can exceed the
		// bytes actually fabricated.
		ci := gopacket.CaptureInfo{
			Timestamp:     pkt.Timestamp,
			CaptureLength: len(pkt.Data),
			Length:        pkt.Length,
		}
		if err := pcapWriter.WritePacket(ci, pkt.Data); err != nil {
			log.Fatalf("Failed to write packet: %v", err)
		}
		written++
	}

	log.Printf("Wrote %d packets to %s.", written, *outputFile)
}
