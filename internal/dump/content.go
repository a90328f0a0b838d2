package dump

// ContentField identifies one recognized column kind in a summary dump
// schema. The ordered list of fields declared by a !data directive (or the
// default schema) tells the engine how to decode each data line.
type ContentField int

const (
	FieldNone ContentField = iota // placeholder column, token consumed and ignored
	FieldTimestamp
	FieldTimestampSec
	FieldTimestampUsec
	FieldSrc
	FieldDst
	FieldLength
	FieldProto
	FieldIPID
	FieldSPort
	FieldDPort
	FieldTCPSeq
	FieldTCPAck
	FieldTCPFlags
	FieldPayloadLength
	FieldCount
	FieldFrag
	FieldFragOff
	FieldPayload

	fieldMax
)

// canonical dump names, indexed by ContentField.
var fieldNames = [fieldMax]string{
	FieldNone:          "none",
	FieldTimestamp:     "timestamp",
	FieldTimestampSec:  "ts_sec",
	FieldTimestampUsec: "ts_usec",
	FieldSrc:           "src",
	FieldDst:           "dst",
	FieldLength:        "len",
	FieldProto:         "proto",
	FieldIPID:          "ip_id",
	FieldSPort:         "sport",
	FieldDPort:         "dport",
	FieldTCPSeq:        "tcp_seq",
	FieldTCPAck:        "tcp_ack",
	FieldTCPFlags:      "tcp_flags",
	FieldPayloadLength: "payload_len",
	FieldCount:         "count",
	FieldFrag:          "frag",
	FieldFragOff:       "frag_off",
	FieldPayload:       "payload",
}

// fieldAliases maps every accepted schema token to its field tag. Canonical
// names plus the spellings older dump writers used.
var fieldAliases = map[string]ContentField{
	"-":              FieldNone,
	"ts":             FieldTimestamp,
	"sec":            FieldTimestampSec,
	"usec":           FieldTimestampUsec,
	"ip_src":         FieldSrc,
	"ip_dst":         FieldDst,
	"length":         FieldLength,
	"ip_len":         FieldLength,
	"ip_proto":       FieldProto,
	"id":             FieldIPID,
	"seq":            FieldTCPSeq,
	"ack":            FieldTCPAck,
	"flags":          FieldTCPFlags,
	"payload_length": FieldPayloadLength,
	"pkt_count":      FieldCount,
	"packet_count":   FieldCount,
	"fragoff":        FieldFragOff,
}

func init() {
	for f := ContentField(0); f < fieldMax; f++ {
		fieldAliases[fieldNames[f]] = f
	}
}

// ParseContent maps a schema directive token to its field tag. The second
// return value is false for names this engine does not recognize.
func ParseContent(name string) (ContentField, bool) {
	f, ok := fieldAliases[name]
	return f, ok
}

// String returns the canonical dump name of the field.
func (f ContentField) String() string {
	if f < 0 || f >= fieldMax {
		return "unknown"
	}
	return fieldNames[f]
}

// DefaultSchema returns the field order assumed for data lines seen before
// any !data directive.
func DefaultSchema() []ContentField {
	return []ContentField{
		FieldTimestamp, FieldSrc, FieldDst, FieldLength,
		FieldProto, FieldIPID, FieldSPort, FieldDPort,
	}
}
