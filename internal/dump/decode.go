package dump

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
)

// TCP flag bits as encoded by the tcp_flags column, low bit first.
const (
	FlagFIN uint16 = 1 << iota
	FlagSYN
	FlagRST
	FlagPSH
	FlagACK
	FlagURG
	FlagECE
	FlagCWR
	FlagNS
)

// tcpFlagLetters is the flag alphabet: one letter per flag bit, low bit
// first. Letters outside this set are malformed.
const tcpFlagLetters = "FSRPAUECN"

// record holds the decoded values of one data line. The has* flags
// distinguish fields the line actually carried from defaulted ones; the
// record is consumed immediately by the synthesizer.
type record struct {
	tsSec  uint32
	tsUsec uint32
	hasTS  bool

	src    [4]byte
	hasSrc bool
	dst    [4]byte
	hasDst bool

	length    uint32
	hasLength bool

	proto    uint8
	hasProto bool

	ipID   uint16
	sport  uint16
	dport  uint16
	tcpSeq uint32
	tcpAck uint32
	flags  uint16

	payloadLen    uint32
	hasPayloadLen bool
	payload       []byte
	hasPayload    bool

	count     uint32
	moreFrags bool
	fragOff   uint16

	decoded int // fields successfully decoded from this line
}

// fieldDecoder converts one token into a typed value on the record.
type fieldDecoder func(tok string, rec *record) error

// fieldDecoders dispatches a field tag to its decoder. FieldNone has no
// entry: its token is consumed but never decoded.
var fieldDecoders [fieldMax]fieldDecoder

func init() {
	fieldDecoders[FieldTimestamp] = decodeTimestamp
	fieldDecoders[FieldTimestampSec] = decodeTimestampSec
	fieldDecoders[FieldTimestampUsec] = decodeTimestampUsec
	fieldDecoders[FieldSrc] = decodeSrc
	fieldDecoders[FieldDst] = decodeDst
	fieldDecoders[FieldLength] = decodeLength
	fieldDecoders[FieldProto] = decodeProto
	fieldDecoders[FieldIPID] = decodeIPID
	fieldDecoders[FieldSPort] = decodeSPort
	fieldDecoders[FieldDPort] = decodeDPort
	fieldDecoders[FieldTCPSeq] = decodeTCPSeq
	fieldDecoders[FieldTCPAck] = decodeTCPAck
	fieldDecoders[FieldTCPFlags] = decodeTCPFlags
	fieldDecoders[FieldPayloadLength] = decodePayloadLength
	fieldDecoders[FieldCount] = decodeCount
	fieldDecoders[FieldFrag] = decodeFrag
	fieldDecoders[FieldFragOff] = decodeFragOff
	fieldDecoders[FieldPayload] = decodePayload
}

func decodeTimestamp(tok string, rec *record) error {
	sec, usec, err := parseTimestampToken(tok)
	if err != nil {
		return err
	}
	rec.tsSec, rec.tsUsec = sec, usec
	rec.hasTS = true
	return nil
}

func decodeTimestampSec(tok string, rec *record) error {
	v, err := strconv.ParseUint(tok, 10, 32)
	if err != nil {
		return fmt.Errorf("bad seconds: %v", err)
	}
	rec.tsSec = uint32(v)
	rec.hasTS = true
	return nil
}

func decodeTimestampUsec(tok string, rec *record) error {
	v, err := strconv.ParseUint(tok, 10, 32)
	if err != nil {
		return fmt.Errorf("bad microseconds: %v", err)
	}
	if v >= 1000000 {
		return fmt.Errorf("microseconds out of range: %d", v)
	}
	rec.tsUsec = uint32(v)
	rec.hasTS = true
	return nil
}

func decodeSrc(tok string, rec *record) error {
	addr, err := parseDottedQuad(tok)
	if err != nil {
		return err
	}
	rec.src = addr
	rec.hasSrc = true
	return nil
}

func decodeDst(tok string, rec *record) error {
	addr, err := parseDottedQuad(tok)
	if err != nil {
		return err
	}
	rec.dst = addr
	rec.hasDst = true
	return nil
}

func decodeLength(tok string, rec *record) error {
	v, err := strconv.ParseUint(tok, 10, 32)
	if err != nil {
		return fmt.Errorf("bad length: %v", err)
	}
	rec.length = uint32(v)
	rec.hasLength = true
	return nil
}

func decodeProto(tok string, rec *record) error {
	// Common protocols may appear by name.
	switch tok {
	case "T":
		rec.proto = 6
	case "U":
		rec.proto = 17
	case "I":
		rec.proto = 1
	default:
		v, err := strconv.ParseUint(tok, 10, 8)
		if err != nil {
			return fmt.Errorf("bad protocol: %v", err)
		}
		rec.proto = uint8(v)
	}
	rec.hasProto = true
	return nil
}

func decodeIPID(tok string, rec *record) error {
	v, err := strconv.ParseUint(tok, 10, 16)
	if err != nil {
		return fmt.Errorf("bad ip id: %v", err)
	}
	rec.ipID = uint16(v)
	return nil
}

func decodeSPort(tok string, rec *record) error {
	v, err := strconv.ParseUint(tok, 10, 16)
	if err != nil {
		return fmt.Errorf("bad source port: %v", err)
	}
	rec.sport = uint16(v)
	return nil
}

func decodeDPort(tok string, rec *record) error {
	v, err := strconv.ParseUint(tok, 10, 16)
	if err != nil {
		return fmt.Errorf("bad destination port: %v", err)
	}
	rec.dport = uint16(v)
	return nil
}

func decodeTCPSeq(tok string, rec *record) error {
	v, err := strconv.ParseUint(tok, 10, 32)
	if err != nil {
		return fmt.Errorf("bad tcp seq: %v", err)
	}
	rec.tcpSeq = uint32(v)
	return nil
}

func decodeTCPAck(tok string, rec *record) error {
	v, err := strconv.ParseUint(tok, 10, 32)
	if err != nil {
		return fmt.Errorf("bad tcp ack: %v", err)
	}
	rec.tcpAck = uint32(v)
	return nil
}

func decodeTCPFlags(tok string, rec *record) error {
	flags, err := ParseTCPFlags(tok)
	if err != nil {
		return err
	}
	rec.flags = flags
	return nil
}

func decodePayloadLength(tok string, rec *record) error {
	v, err := strconv.ParseUint(tok, 10, 32)
	if err != nil {
		return fmt.Errorf("bad payload length: %v", err)
	}
	rec.payloadLen = uint32(v)
	rec.hasPayloadLen = true
	return nil
}

func decodeCount(tok string, rec *record) error {
	v, err := strconv.ParseUint(tok, 10, 32)
	if err != nil {
		return fmt.Errorf("bad packet count: %v", err)
	}
	if v == 0 {
		v = 1
	}
	rec.count = uint32(v)
	return nil
}

// decodeFrag reads the fragment marker column: "." not a fragment, "F" a
// fragment with more to follow, "f" a later fragment of a split datagram.
func decodeFrag(tok string, rec *record) error {
	switch tok {
	case ".":
	case "F":
		rec.moreFrags = true
	case "f":
	default:
		return fmt.Errorf("bad fragment marker %q", tok)
	}
	return nil
}

// decodeFragOff reads a fragment offset, optionally suffixed with "+" when
// more fragments follow.
func decodeFragOff(tok string, rec *record) error {
	if strings.HasSuffix(tok, "+") {
		rec.moreFrags = true
		tok = tok[:len(tok)-1]
	}
	v, err := strconv.ParseUint(tok, 10, 13)
	if err != nil {
		return fmt.Errorf("bad fragment offset: %v", err)
	}
	rec.fragOff = uint16(v)
	return nil
}

// decodePayload reads the hex-encoded remainder of the line. Embedded
// whitespace between hex bytes is tolerated.
func decodePayload(tok string, rec *record) error {
	compact := strings.Map(func(r rune) rune {
		if r == ' ' || r == '\t' {
			return -1
		}
		return r
	}, tok)
	data, err := hex.DecodeString(compact)
	if err != nil {
		return fmt.Errorf("bad payload hex: %v", err)
	}
	rec.payload = data
	rec.hasPayload = true
	return nil
}

// ParseTCPFlags decodes a string of flag letters into a flag bit mask. A
// lone "." means no flags. Any letter outside the nine-letter alphabet is
// malformed.
func ParseTCPFlags(tok string) (uint16, error) {
	if tok == "." {
		return 0, nil
	}
	var flags uint16
	for i := 0; i < len(tok); i++ {
		j := strings.IndexByte(tcpFlagLetters, tok[i])
		if j < 0 {
			return 0, fmt.Errorf("bad tcp flag letter %q", tok[i])
		}
		flags |= 1 << uint(j)
	}
	return flags, nil
}

// UnparseTCPFlags is the inverse of ParseTCPFlags: it renders a flag mask
// as flag letters, or "." when no flag is set.
func UnparseTCPFlags(flags uint16) string {
	if flags == 0 {
		return "."
	}
	var sb strings.Builder
	for i := 0; i < len(tcpFlagLetters); i++ {
		if flags&(1<<uint(i)) != 0 {
			sb.WriteByte(tcpFlagLetters[i])
		}
	}
	return sb.String()
}

// parseTimestampToken reads "sec" or "sec.usec". The subsecond part is
// scaled to microseconds whatever its written precision.
func parseTimestampToken(tok string) (sec, usec uint32, err error) {
	whole, frac, hasFrac := strings.Cut(tok, ".")
	s, err := strconv.ParseUint(whole, 10, 32)
	if err != nil {
		return 0, 0, fmt.Errorf("bad timestamp: %v", err)
	}
	if hasFrac {
		if frac == "" || len(frac) > 6 {
			return 0, 0, fmt.Errorf("bad timestamp fraction %q", frac)
		}
		u, err := strconv.ParseUint(frac, 10, 32)
		if err != nil {
			return 0, 0, fmt.Errorf("bad timestamp fraction: %v", err)
		}
		for i := len(frac); i < 6; i++ {
			u *= 10
		}
		usec = uint32(u)
	}
	return uint32(s), usec, nil
}

// parseDottedQuad parses a strictly dotted-quad IPv4 address. Anything
// else, including IPv6 forms, is malformed.
func parseDottedQuad(tok string) (addr [4]byte, err error) {
	octet, val, digits := 0, 0, 0
	for i := 0; i < len(tok); i++ {
		switch c := tok[i]; {
		case c >= '0' && c <= '9':
			val = val*10 + int(c-'0')
			digits++
			if digits > 3 || val > 255 {
				return addr, fmt.Errorf("bad address %q", tok)
			}
		case c == '.':
			if digits == 0 || octet == 3 {
				return addr, fmt.Errorf("bad address %q", tok)
			}
			addr[octet] = byte(val)
			octet++
			val, digits = 0, 0
		default:
			return addr, fmt.Errorf("bad address %q", tok)
		}
	}
	if octet != 3 || digits == 0 {
		return addr, fmt.Errorf("bad address %q", tok)
	}
	addr[3] = byte(val)
	return addr, nil
}

// tokenizer splits a data line into whitespace-separated tokens, with the
// ability to hand the untokenized remainder to the payload decoder.
type tokenizer struct {
	line []byte
	pos  int
}

func (t *tokenizer) next() (string, bool) {
	for t.pos < len(t.line) && (t.line[t.pos] == ' ' || t.line[t.pos] == '\t') {
		t.pos++
	}
	if t.pos >= len(t.line) {
		return "", false
	}
	start := t.pos
	for t.pos < len(t.line) && t.line[t.pos] != ' ' && t.line[t.pos] != '\t' {
		t.pos++
	}
	return string(t.line[start:t.pos]), true
}

func (t *tokenizer) rest() (string, bool) {
	for t.pos < len(t.line) && (t.line[t.pos] == ' ' || t.line[t.pos] == '\t') {
		t.pos++
	}
	if t.pos >= len(t.line) {
		return "", false
	}
	r := string(t.line[t.pos:])
	t.pos = len(t.line)
	return r, true
}
