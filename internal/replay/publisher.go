package replay

import (
	"NetReplay/internal/config"
	"NetReplay/internal/dump"
	"log"
	"strconv"

	"github.com/nats-io/nats.go"
)

// Message headers carried alongside the raw packet bytes. The synthesized
// bytes hold the five-tuple and protocol headers; the declared wire length
// and the dump timestamp cannot be recovered from them alone, so they ride
// in headers.
const (
	headerTimestamp = "Nr-Timestamp" // unix nanoseconds
	headerLength    = "Nr-Length"    // declared packet length in bytes
)

// Publisher publishes synthesized packets to a NATS subject.
type Publisher struct {
	nc      *nats.Conn
	subject string
}

// NewPublisher connects to NATS and returns a publisher for the configured subject.
func NewPublisher(cfg config.NATSConfig) (*Publisher, error) {
	nc, err := nats.Connect(cfg.URL)
	if err != nil {
		return nil, err
	}
	log.Printf("Connected to NATS server at %s", cfg.URL)
	return &Publisher{nc: nc, subject: cfg.Subject}, nil
}

// Publish sends one synthesized packet. The message payload is the raw IPv4
// packet bytes; timestamp and declared length travel as headers.
func (p *Publisher) Publish(pkt *dump.Packet) error {
	msg := nats.NewMsg(p.subject)
	msg.Data = pkt.Data
	msg.Header.Set(headerTimestamp, strconv.FormatInt(pkt.Timestamp.UnixNano(), 10))
	msg.Header.Set(headerLength, strconv.Itoa(pkt.Length))
	return p.nc.PublishMsg(msg)
}

// Close drains and closes the NATS connection.
func (p *Publisher) Close() {
	if p.nc != nil {
		p.nc.Drain()
		log.Println("NATS connection drained and closed.")
	}
}
