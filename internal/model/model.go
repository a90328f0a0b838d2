package model

import (
	"net"
	"time"
)

// FiveTuple represents the 5-tuple of a network packet.
type FiveTuple struct {
	SrcIP    net.IP
	DstIP    net.IP
	SrcPort  uint16
	DstPort  uint16
	Protocol uint8
}

// PacketInfo holds the metadata carried by a single packet. For packets
// replayed from a summary dump, Length is the length the dump declared,
// which may exceed the number of bytes actually fabricated.
type PacketInfo struct {
	Timestamp time.Time
	FiveTuple FiveTuple
	Length    int
	IPID      uint16
	TCPSeq    uint32
	TCPAck    uint32
	TCPFlags  uint16
}
