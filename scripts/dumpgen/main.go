package main

import (
	"bufio"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"time"
)

var tcpFlagLetters = []string{".", "S", "SA", "A", "PA", "FA", "R"}

func main() {
	outputFile := flag.String("o", "test.dump", "Output summary dump file path")
	recordCount := flag.Int("c", 1000, "Number of records to generate")
	seed := flag.Int64("seed", 0, "Random seed (0 picks a time-based seed)")
	flag.Parse()

	if *seed == 0 {
		*seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(*seed))

	f, err := os.Create(*outputFile)
	if err != nil {
		log.Fatalf("Failed to create output file: %v", err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	defer w.Flush()

	log.Printf("Generating %d records into %s (seed %d)...", *recordCount, *outputFile, *seed)

	fmt.Fprintln(w, "!IPSummaryDump 1.3")
	fmt.Fprintln(w, "!creator dumpgen")
	fmt.Fprintln(w, "!data timestamp ip_src ip_dst ip_len ip_proto ip_id sport dport tcp_seq tcp_ack tcp_flags count")

	ts := float64(time.Now().Unix())
	for i := 0; i < *recordCount; i++ {
		ts += rng.Float64() * 0.01

		proto := 6
		if rng.Intn(4) == 0 {
			proto = 17
		}

		flags := "."
		if proto == 6 {
			flags = tcpFlagLetters[rng.Intn(len(tcpFlagLetters))]
		}

		count := 1
		if rng.Intn(10) == 0 {
			count = rng.Intn(4) + 2
		}

		fmt.Fprintf(w, "%.6f %d.%d.%d.%d %d.%d.%d.%d %d %d %d %d %d %d %d %s %d\n",
			ts,
			rng.Intn(224), rng.Intn(256), rng.Intn(256), rng.Intn(255)+1,
			rng.Intn(224), rng.Intn(256), rng.Intn(256), rng.Intn(255)+1,
			rng.Intn(1400)+40,
			proto,
			rng.Intn(65536),
			rng.Intn(65535-1024)+1024,
			rng.Intn(65535-1024)+1024,
			rng.Uint32(),
			rng.Uint32(),
			flags,
			count,
		)
	}

	log.Printf("Successfully generated %d records into %s.", *recordCount, *outputFile)
}
