package dump

import (
	"NetReplay/internal/model"
	"fmt"
	"net"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

// Packet is one synthetic packet reconstructed from a dump record. Data
// holds the fabricated bytes, starting at the IPv4 header. Length carries
// the length the dump declared, which routinely disagrees with len(Data):
// the dump describes packets it does not fully contain, and only the header
// plus any explicit payload is fabricated. The annotations are what
// downstream consumers should trust.
type Packet struct {
	Data         []byte
	Timestamp    time.Time
	Length       int // declared wire length
	HeaderLength int // fabricated IP + transport header bytes
	FiveTuple    model.FiveTuple
	IPID         uint16
	TCPSeq       uint32
	TCPAck       uint32
	TCPFlags     uint16
	Count        uint32 // packets this record stands for
}

// Info converts the packet's annotations to the pipeline's PacketInfo.
func (p *Packet) Info() *model.PacketInfo {
	return &model.PacketInfo{
		Timestamp: p.Timestamp,
		FiveTuple: p.FiveTuple,
		Length:    p.Length,
		IPID:      p.IPID,
		TCPSeq:    p.TCPSeq,
		TCPAck:    p.TCPAck,
		TCPFlags:  p.TCPFlags,
	}
}

// synthesize assembles the base synthetic packet for a decoded record.
// Packets are always IP version 4 with header length 5; header bytes the
// record does not determine are zero or pseudo-random per the fill policy.
func (e *Engine) synthesize(rec *record) (*Packet, error) {
	proto := e.defaultProto
	if rec.hasProto {
		proto = rec.proto
	}

	srcIP := net.IP(rec.src[:])
	dstIP := net.IP(rec.dst[:])

	ip := &layers.IPv4{
		Version:    4,
		IHL:        5,
		Id:         rec.ipID,
		FragOffset: rec.fragOff,
		Protocol:   layers.IPProtocol(proto),
		SrcIP:      srcIP,
		DstIP:      dstIP,
	}
	if rec.moreFrags {
		ip.Flags = layers.IPv4MoreFragments
	}
	if !e.zero {
		ip.TOS = uint8(e.fillRNG.Intn(256))
		ip.TTL = uint8(e.fillRNG.Intn(256))
	}

	// Serialize without length fixups: the IP total length field carries the
	// declared length even when no corresponding bytes exist.
	opts := gopacket.SerializeOptions{}
	buf := gopacket.NewSerializeBuffer()
	payload := gopacket.Payload(rec.payload)

	headerLen := ipHeaderSize
	var err error
	switch proto {
	case 6:
		headerLen += tcpHeaderSize
		tcp := &layers.TCP{
			SrcPort:    layers.TCPPort(rec.sport),
			DstPort:    layers.TCPPort(rec.dport),
			Seq:        rec.tcpSeq,
			Ack:        rec.tcpAck,
			DataOffset: 5,
		}
		setTCPFlagBits(tcp, rec.flags)
		if !e.zero {
			tcp.Window = uint16(e.fillRNG.Intn(65536))
		}
		ip.Length = clampLength(e.declaredLength(rec, headerLen))
		err = gopacket.SerializeLayers(buf, opts, ip, tcp, payload)
	case 17:
		headerLen += udpHeaderSize
		udp := &layers.UDP{
			SrcPort: layers.UDPPort(rec.sport),
			DstPort: layers.UDPPort(rec.dport),
			Length:  uint16(udpHeaderSize + len(rec.payload)),
		}
		ip.Length = clampLength(e.declaredLength(rec, headerLen))
		err = gopacket.SerializeLayers(buf, opts, ip, udp, payload)
	default:
		ip.Length = clampLength(e.declaredLength(rec, headerLen))
		err = gopacket.SerializeLayers(buf, opts, ip, payload)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to serialize packet: %w", err)
	}

	data := make([]byte, len(buf.Bytes()))
	copy(data, buf.Bytes())
	if !e.zero {
		// Checksum bytes are not determined by any dump field.
		e.fillRNG.Read(data[10:12])
	}

	ts := e.startTime
	if rec.hasTS {
		ts = time.Unix(int64(rec.tsSec), int64(rec.tsUsec)*1000)
	}

	return &Packet{
		Data:         data,
		Timestamp:    ts,
		Length:       e.declaredLength(rec, headerLen),
		HeaderLength: headerLen,
		FiveTuple: model.FiveTuple{
			SrcIP:    srcIP,
			DstIP:    dstIP,
			SrcPort:  rec.sport,
			DstPort:  rec.dport,
			Protocol: proto,
		},
		IPID:     rec.ipID,
		TCPSeq:   rec.tcpSeq,
		TCPAck:   rec.tcpAck,
		TCPFlags: rec.flags,
		Count:    rec.count,
	}, nil
}

const (
	ipHeaderSize  = 20
	tcpHeaderSize = 20
	udpHeaderSize = 8
)

// declaredLength picks the total length annotation for one record: an
// explicit length field wins, then a payload length plus fabricated
// headers, then the fabricated size itself.
func (e *Engine) declaredLength(rec *record, headerLen int) int {
	switch {
	case rec.hasLength:
		return int(rec.length)
	case rec.hasPayloadLen:
		return headerLen + int(rec.payloadLen)
	default:
		return headerLen + len(rec.payload)
	}
}

// clampLength narrows a declared length to the 16-bit IP header field; the
// full value lives in the Length annotation.
func clampLength(length int) uint16 {
	if length > 0xffff {
		return 0xffff
	}
	return uint16(length)
}

func setTCPFlagBits(tcp *layers.TCP, flags uint16) {
	tcp.FIN = flags&FlagFIN != 0
	tcp.SYN = flags&FlagSYN != 0
	tcp.RST = flags&FlagRST != 0
	tcp.PSH = flags&FlagPSH != 0
	tcp.ACK = flags&FlagACK != 0
	tcp.URG = flags&FlagURG != 0
	tcp.ECE = flags&FlagECE != 0
	tcp.CWR = flags&FlagCWR != 0
	tcp.NS = flags&FlagNS != 0
}
