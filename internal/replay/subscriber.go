package replay

import (
	"NetReplay/internal/config"
	"NetReplay/internal/engine/protocol"
	"NetReplay/internal/model"
	"log"
	"strconv"
	"time"

	"github.com/nats-io/nats.go"
)

// PacketHandler is a function that processes a received PacketInfo.
type PacketHandler func(info *model.PacketInfo)

// Subscriber consumes replayed packets from a NATS subject, re-parses the raw
// bytes, and hands the extracted metadata to a handler.
type Subscriber struct {
	nc      *nats.Conn
	sub     *nats.Subscription
	subject string
}

// NewSubscriber connects to NATS and returns a subscriber for the configured subject.
func NewSubscriber(cfg config.NATSConfig) (*Subscriber, error) {
	nc, err := nats.Connect(cfg.URL)
	if err != nil {
		return nil, err
	}
	log.Printf("Connected to NATS server at %s", cfg.URL)
	return &Subscriber{nc: nc, subject: cfg.Subject}, nil
}

// Start subscribes to the subject and processes messages with the handler.
func (s *Subscriber) Start(handler PacketHandler) error {
	sub, err := s.nc.Subscribe(s.subject, func(msg *nats.Msg) {
		info, err := protocol.ParsePacket(msg.Data)
		if err != nil {
			log.Printf("Error parsing packet: %v", err)
			return
		}

		// The headers carry the dump's declared length and timestamp, which
		// the fabricated bytes alone cannot express.
		if v := msg.Header.Get(headerTimestamp); v != "" {
			if nanos, err := strconv.ParseInt(v, 10, 64); err == nil {
				info.Timestamp = time.Unix(0, nanos)
			}
		}
		if v := msg.Header.Get(headerLength); v != "" {
			if length, err := strconv.Atoi(v); err == nil {
				info.Length = length
			}
		}

		handler(info)
	})
	if err != nil {
		return err
	}
	s.sub = sub
	log.Printf("Subscribed to '%s'. Waiting for messages...", s.subject)
	return nil
}

// Close drains the NATS connection and blocks until every in-flight handler
// callback has returned. Callers may tear down the handler's downstream only
// after Close returns.
func (s *Subscriber) Close() {
	if s.nc == nil {
		return
	}
	done := make(chan struct{})
	s.nc.SetClosedHandler(func(*nats.Conn) { close(done) })
	if err := s.nc.Drain(); err != nil {
		log.Printf("Error draining NATS connection: %v", err)
		s.nc.Close()
		return
	}
	<-done
	log.Println("NATS connection drained and closed.")
}
