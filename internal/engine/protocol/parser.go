package protocol

import (
	"NetReplay/internal/dump"
	"NetReplay/internal/model"
	"fmt"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

// ParsePacket uses gopacket to decode a raw IPv4 packet (as published by
// nr-replay) and extract key information. The returned Length is the number
// of bytes received; replayed packets usually declare a larger length in
// their transport metadata, which the caller should prefer when present.
func ParsePacket(data []byte) (*model.PacketInfo, error) {
	packet := gopacket.NewPacket(data, layers.LayerTypeIPv4, gopacket.Default)

	info := &model.PacketInfo{
		Timestamp: time.Now(), // Overwritten by transport metadata if available
		Length:    len(data),
	}

	l := packet.Layer(layers.LayerTypeIPv4)
	if l == nil {
		return nil, fmt.Errorf("not an IPv4 packet")
	}
	ip := l.(*layers.IPv4)
	info.FiveTuple.SrcIP = ip.SrcIP
	info.FiveTuple.DstIP = ip.DstIP
	info.FiveTuple.Protocol = uint8(ip.Protocol)
	info.IPID = ip.Id

	if l := packet.Layer(layers.LayerTypeTCP); l != nil {
		tcp := l.(*layers.TCP)
		info.FiveTuple.SrcPort = uint16(tcp.SrcPort)
		info.FiveTuple.DstPort = uint16(tcp.DstPort)
		info.TCPSeq = tcp.Seq
		info.TCPAck = tcp.Ack
		info.TCPFlags = tcpFlagBits(tcp)
	} else if l := packet.Layer(layers.LayerTypeUDP); l != nil {
		udp := l.(*layers.UDP)
		info.FiveTuple.SrcPort = uint16(udp.SrcPort)
		info.FiveTuple.DstPort = uint16(udp.DstPort)
	}

	return info, nil
}

// tcpFlagBits packs gopacket's flag booleans into the dump package's flag
// mask so both ends of the pipeline speak the same encoding.
func tcpFlagBits(tcp *layers.TCP) uint16 {
	var flags uint16
	if tcp.FIN {
		flags |= dump.FlagFIN
	}
	if tcp.SYN {
		flags |= dump.FlagSYN
	}
	if tcp.RST {
		flags |= dump.FlagRST
	}
	if tcp.PSH {
		flags |= dump.FlagPSH
	}
	if tcp.ACK {
		flags |= dump.FlagACK
	}
	if tcp.URG {
		flags |= dump.FlagURG
	}
	if tcp.ECE {
		flags |= dump.FlagECE
	}
	if tcp.CWR {
		flags |= dump.FlagCWR
	}
	if tcp.NS {
		flags |= dump.FlagNS
	}
	return flags
}
