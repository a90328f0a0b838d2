package pcap

import (
	"NetReplay/internal/engine/protocol"
	"NetReplay/internal/model"
	"log"

	"github.com/google/gopacket"
	"github.com/google/gopacket/pcap"
)

// Reader reads packets from a pcap file.
type Reader struct {
	handle *pcap.Handle
}

// NewReader creates a new pcap reader for the given file path.
func NewReader(filePath string) (*Reader, error) {
	handle, err := pcap.OpenOffline(filePath)
	if err != nil {
		return nil, err
	}
	return &Reader{handle: handle}, nil
}

// Close closes the pcap handle.
func (r *Reader) Close() {
	r.handle.Close()
}

// ReadPackets reads all packets from the pcap file and sends the parsed
// PacketInfo to the provided channel. The capture timestamp and wire length
// take precedence over whatever the packet bytes suggest. The channel is
// closed when the file is exhausted.
func (r *Reader) ReadPackets(out chan<- *model.PacketInfo) {
	defer close(out)

	packetSource := gopacket.NewPacketSource(r.handle, r.handle.LinkType())
	for packet := range packetSource.Packets() {
		nl := packet.NetworkLayer()
		if nl == nil {
			continue
		}
		// The IP packet regardless of link type: header plus payload.
		data := append(nl.LayerContents(), nl.LayerPayload()...)
		info, err := protocol.ParsePacket(data)
		if err != nil {
			// Unsupported packet types and corrupt data are skipped.
			log.Printf("Error parsing packet: %v", err)
			continue
		}
		ci := packet.Metadata().CaptureInfo
		info.Timestamp = ci.Timestamp
		info.Length = ci.Length
		out <- info
	}
}
