package main

import (
	"NetReplay/internal/config"
	"NetReplay/internal/dump"
	"NetReplay/internal/replay"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/mux"
)

// pollInterval is how often the replay loop re-checks a paused engine.
const pollInterval = 50 * time.Millisecond

func main() {
	configPath := flag.String("config", "configs/config.yaml", "Path to the configuration file.")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	log.Println("Configuration loaded successfully.")

	src, err := dump.Open(cfg.Replay.Filename)
	if err != nil {
		log.Fatalf("Failed to open dump: %v", err)
	}
	defer src.Close()

	var interval time.Duration
	if cfg.Replay.MultipacketInterval != "" {
		interval, err = time.ParseDuration(cfg.Replay.MultipacketInterval)
		if err != nil {
			log.Fatalf("Invalid multipacket_interval: %v", err)
		}
	}

	engine := dump.NewEngine(src, dump.Options{
		DefaultProto:    cfg.Replay.Proto,
		Zero:            cfg.Replay.Zero,
		Multipacket:     cfg.Replay.Multipacket,
		Sample:          cfg.Replay.Sample,
		SampleSet:       true,
		Seed:            cfg.Replay.Seed,
		Interval:        interval,
		DefaultContents: cfg.Replay.DefaultContents,
	})
	engine.SetActive(cfg.Replay.Active)

	pub, err := replay.NewPublisher(cfg.NATS)
	if err != nil {
		log.Fatalf("Failed to connect to NATS: %v", err)
	}
	defer pub.Close()

	server := startControlServer(cfg.Replay.ListenAddr, engine)

	done := make(chan struct{})
	go func() {
		defer close(done)
		runReplay(engine, pub)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigChan:
		log.Println("Shutdown signal received, stopping replay...")
		engine.Stop()
		<-done
	case <-done:
		if !cfg.Replay.StopAtEnd {
			// Keep the control surface up so position and totals stay
			// queryable after the dump is exhausted.
			log.Println("Dump exhausted; control handlers remain available. Ctrl-C to exit.")
			<-sigChan
		}
	}

	if server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(ctx)
	}
	log.Println("Shutdown complete.")
}

// runReplay drives the engine until the dump is exhausted or the engine is
// stopped, publishing every accepted packet.
func runReplay(engine *dump.Engine, pub *replay.Publisher) {
	published := 0
	for {
		if !engine.Active() {
			if engine.Stopped() {
				break
			}
			time.Sleep(pollInterval)
			continue
		}

		pkt, err := engine.NextPacket()
		if err != nil {
			if errors.Is(err, io.EOF) {
				log.Printf("End of dump reached after %d packets (read %d bytes).", published, engine.Offset())
			} else if errors.Is(err, dump.ErrStopped) {
				log.Printf("Replay stopped after %d packets.", published)
			} else {
				log.Printf("Replay aborted: %v", err)
			}
			return
		}

		if err := pub.Publish(pkt); err != nil {
			log.Printf("Error publishing packet: %v", err)
			continue
		}
		published++
	}
}

// startControlServer exposes the replay element's handlers over HTTP. Reads
// return plain-text values; writes flip the engine's control flags.
func startControlServer(addr string, engine *dump.Engine) *http.Server {
	if addr == "" {
		return nil
	}

	r := mux.NewRouter()

	r.HandleFunc("/handlers/sampling_prob", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprintf(w, "%g\n", engine.SamplingProb())
	}).Methods("GET")

	r.HandleFunc("/handlers/filepos", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprintf(w, "%d\n", engine.Offset())
	}).Methods("GET")

	r.HandleFunc("/handlers/filesize", func(w http.ResponseWriter, _ *http.Request) {
		if size, ok := engine.TotalSize(); ok {
			fmt.Fprintf(w, "%d\n", size)
			return
		}
		http.Error(w, "file size unknown", http.StatusNotFound)
	}).Methods("GET")

	r.HandleFunc("/handlers/encap", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprintln(w, "IP")
	}).Methods("GET")

	r.HandleFunc("/handlers/active", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprintf(w, "%v\n", engine.Active())
	}).Methods("GET")

	r.HandleFunc("/handlers/active", func(w http.ResponseWriter, req *http.Request) {
		body, err := io.ReadAll(req.Body)
		if err != nil {
			http.Error(w, "failed to read request body", http.StatusBadRequest)
			return
		}
		active, err := strconv.ParseBool(strings.TrimSpace(string(body)))
		if err != nil {
			http.Error(w, "expected a boolean", http.StatusBadRequest)
			return
		}
		engine.SetActive(active)
		w.WriteHeader(http.StatusNoContent)
	}).Methods("POST")

	r.HandleFunc("/handlers/stop", func(w http.ResponseWriter, _ *http.Request) {
		engine.Stop()
		w.WriteHeader(http.StatusNoContent)
	}).Methods("POST")

	server := &http.Server{Addr: addr, Handler: r}
	go func() {
		log.Printf("Control handlers listening on %s", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Could not listen on %s: %v", addr, err)
		}
	}()
	return server
}
