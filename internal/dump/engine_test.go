package dump

import (
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

// countReporter records diagnostics for assertions.
type countReporter struct {
	n    int
	last string
}

func (r *countReporter) Warningf(format string, args ...interface{}) {
	r.n++
	r.last = fmt.Sprintf(format, args...)
}

func newTestEngine(input string, opts Options) *Engine {
	if opts.Seed == 0 {
		opts.Seed = 42
	}
	opts.Zero = true
	return NewEngine(strings.NewReader(input), opts)
}

func drainEngine(t *testing.T, e *Engine) []*Packet {
	t.Helper()
	var packets []*Packet
	for {
		p, err := e.NextPacket()
		if err == io.EOF {
			return packets
		}
		if err != nil {
			t.Fatalf("NextPacket failed: %v", err)
		}
		packets = append(packets, p)
	}
}

func TestEngineExampleScenario(t *testing.T) {
	input := "!data timestamp src dst proto sport dport\n" +
		"1000.0 1.2.3.4 5.6.7.8 6 80 1234\n"
	e := newTestEngine(input, Options{})

	packets := drainEngine(t, e)
	if len(packets) != 1 {
		t.Fatalf("got %d packets, want 1", len(packets))
	}

	p := packets[0]
	if p.FiveTuple.Protocol != 6 {
		t.Errorf("protocol = %d, want 6", p.FiveTuple.Protocol)
	}
	if p.FiveTuple.SrcIP.String() != "1.2.3.4" {
		t.Errorf("src = %s, want 1.2.3.4", p.FiveTuple.SrcIP)
	}
	if p.FiveTuple.DstIP.String() != "5.6.7.8" {
		t.Errorf("dst = %s, want 5.6.7.8", p.FiveTuple.DstIP)
	}
	if p.FiveTuple.SrcPort != 80 || p.FiveTuple.DstPort != 1234 {
		t.Errorf("ports = %d->%d, want 80->1234", p.FiveTuple.SrcPort, p.FiveTuple.DstPort)
	}
	if !p.Timestamp.Equal(time.Unix(1000, 0)) {
		t.Errorf("timestamp = %v, want 1000.0", p.Timestamp)
	}
}

func TestEngineFieldRoundTrip(t *testing.T) {
	// Every declared field must be extractable from the fabricated bytes.
	input := "!data src dst len proto ip_id sport dport tcp_seq tcp_ack tcp_flags\n" +
		"10.0.0.1 10.0.0.2 400 6 777 5000 443 123456 654321 SA\n"
	e := newTestEngine(input, Options{})

	packets := drainEngine(t, e)
	if len(packets) != 1 {
		t.Fatalf("got %d packets, want 1", len(packets))
	}
	p := packets[0]

	decoded := gopacket.NewPacket(p.Data, layers.LayerTypeIPv4, gopacket.Default)
	ipLayer := decoded.Layer(layers.LayerTypeIPv4)
	if ipLayer == nil {
		t.Fatal("fabricated bytes did not decode as IPv4")
	}
	ip := ipLayer.(*layers.IPv4)
	if ip.Version != 4 || ip.IHL != 5 {
		t.Errorf("header version/IHL = %d/%d, want 4/5", ip.Version, ip.IHL)
	}
	if ip.SrcIP.String() != "10.0.0.1" || ip.DstIP.String() != "10.0.0.2" {
		t.Errorf("addresses = %s -> %s", ip.SrcIP, ip.DstIP)
	}
	if ip.Id != 777 {
		t.Errorf("ip id = %d, want 777", ip.Id)
	}
	if ip.Length != 400 {
		t.Errorf("declared length in header = %d, want 400", ip.Length)
	}

	tcpLayer := decoded.Layer(layers.LayerTypeTCP)
	if tcpLayer == nil {
		t.Fatal("fabricated bytes did not decode as TCP")
	}
	tcp := tcpLayer.(*layers.TCP)
	if uint16(tcp.SrcPort) != 5000 || uint16(tcp.DstPort) != 443 {
		t.Errorf("ports = %d->%d, want 5000->443", tcp.SrcPort, tcp.DstPort)
	}
	if tcp.Seq != 123456 || tcp.Ack != 654321 {
		t.Errorf("seq/ack = %d/%d, want 123456/654321", tcp.Seq, tcp.Ack)
	}
	if !tcp.SYN || !tcp.ACK || tcp.FIN || tcp.RST {
		t.Errorf("flags SYN=%v ACK=%v FIN=%v RST=%v, want SA only", tcp.SYN, tcp.ACK, tcp.FIN, tcp.RST)
	}

	// Annotations agree with the dump even where the bytes could not.
	if p.Length != 400 {
		t.Errorf("length annotation = %d, want 400", p.Length)
	}
	if p.HeaderLength != 40 {
		t.Errorf("header length annotation = %d, want 40", p.HeaderLength)
	}
	if len(p.Data) != 40 {
		t.Errorf("fabricated %d bytes, want 40 (headers only)", len(p.Data))
	}
	if p.TCPFlags != FlagSYN|FlagACK {
		t.Errorf("flag annotation = %#x, want SYN|ACK", p.TCPFlags)
	}
}

func TestEngineDefaultSchema(t *testing.T) {
	// Data before any !data directive falls back to the default order:
	// timestamp src dst len proto ip_id sport dport.
	input := "99.5 192.168.1.1 192.168.1.2 60 17 7 53 5353\n"
	e := newTestEngine(input, Options{})

	packets := drainEngine(t, e)
	if len(packets) != 1 {
		t.Fatalf("got %d packets, want 1", len(packets))
	}
	p := packets[0]
	if p.FiveTuple.Protocol != 17 {
		t.Errorf("protocol = %d, want 17", p.FiveTuple.Protocol)
	}
	if p.Length != 60 {
		t.Errorf("length = %d, want 60", p.Length)
	}
	if p.FiveTuple.SrcPort != 53 || p.FiveTuple.DstPort != 5353 {
		t.Errorf("ports = %d->%d, want 53->5353", p.FiveTuple.SrcPort, p.FiveTuple.DstPort)
	}
}

func TestEngineSchemaReplacedMidStream(t *testing.T) {
	input := "!data src dst\n" +
		"1.1.1.1 2.2.2.2\n" +
		"!data dst src\n" +
		"1.1.1.1 2.2.2.2\n"
	e := newTestEngine(input, Options{})

	packets := drainEngine(t, e)
	if len(packets) != 2 {
		t.Fatalf("got %d packets, want 2", len(packets))
	}
	if packets[0].FiveTuple.SrcIP.String() != "1.1.1.1" {
		t.Errorf("first packet src = %s, want 1.1.1.1", packets[0].FiveTuple.SrcIP)
	}
	if packets[1].FiveTuple.SrcIP.String() != "2.2.2.2" {
		t.Errorf("second packet src = %s, want 2.2.2.2 (schema swapped)", packets[1].FiveTuple.SrcIP)
	}
}

func TestEngineUnknownFieldAndDirective(t *testing.T) {
	rep := &countReporter{}
	input := "!IPSummaryDump 1.3\n" +
		"!host example.test\n" +
		"!data src bogus_column dport\n" +
		"1.2.3.4 whatever 8080\n"
	e := newTestEngine(input, Options{Reporter: rep})

	packets := drainEngine(t, e)
	if len(packets) != 1 {
		t.Fatalf("got %d packets, want 1", len(packets))
	}
	p := packets[0]
	if p.FiveTuple.SrcIP.String() != "1.2.3.4" || p.FiveTuple.DstPort != 8080 {
		t.Errorf("unknown schema column must be skipped, got %s dport %d", p.FiveTuple.SrcIP, p.FiveTuple.DstPort)
	}
	if rep.n != 1 {
		t.Errorf("got %d diagnostics, want exactly 1 (the unknown field name)", rep.n)
	}
}

func TestEngineUnknownFieldDiagnosticOnce(t *testing.T) {
	rep := &countReporter{}
	input := "!data src mystery dst\n" +
		"1.1.1.1 x 2.2.2.2\n" +
		"!data src enigma dst\n" +
		"3.3.3.3 y 4.4.4.4\n"
	e := newTestEngine(input, Options{Reporter: rep})

	packets := drainEngine(t, e)
	if len(packets) != 2 {
		t.Fatalf("got %d packets, want 2", len(packets))
	}
	if rep.n != 1 {
		t.Errorf("got %d diagnostics for repeated unknown schema names, want exactly 1", rep.n)
	}
}

func TestEngineShortAndMalformedLines(t *testing.T) {
	rep := &countReporter{}
	input := "!data timestamp src dst proto sport dport\n" +
		"5.0 1.2.3.4\n" + // short: dst, proto, ports defaulted
		"6.0 4.3.2.1\n" + // short again: no extra diagnostic
		"7.0 bad-address 5.6.7.8 6 1 2\n" // malformed src: defaulted
	e := newTestEngine(input, Options{Reporter: rep})

	packets := drainEngine(t, e)
	if len(packets) != 3 {
		t.Fatalf("got %d packets, want 3", len(packets))
	}

	p := packets[0]
	if p.FiveTuple.SrcIP.String() != "1.2.3.4" {
		t.Errorf("present field must decode, src = %s", p.FiveTuple.SrcIP)
	}
	if p.FiveTuple.Protocol != 6 {
		t.Errorf("missing proto must default to 6, got %d", p.FiveTuple.Protocol)
	}
	if p.FiveTuple.DstIP.String() != "0.0.0.0" {
		t.Errorf("missing dst must default to zero, got %s", p.FiveTuple.DstIP)
	}

	p = packets[2]
	if p.FiveTuple.SrcIP.String() != "0.0.0.0" {
		t.Errorf("malformed src must default to zero, got %s", p.FiveTuple.SrcIP)
	}
	if p.FiveTuple.DstIP.String() != "5.6.7.8" {
		t.Errorf("later fields must still decode, dst = %s", p.FiveTuple.DstIP)
	}

	if rep.n != 1 {
		t.Errorf("got %d diagnostics, want exactly 1 for the whole dump", rep.n)
	}
}

func TestEngineLineWithNothingDecodable(t *testing.T) {
	input := "!data src dst\n" +
		"garbage tokens\n" +
		"9.9.9.9 8.8.8.8\n"
	e := newTestEngine(input, Options{Reporter: &countReporter{}})

	// The garbage line produces try-again steps, never a packet.
	packets := drainEngine(t, e)
	if len(packets) != 1 {
		t.Fatalf("got %d packets, want 1", len(packets))
	}
	if packets[0].FiveTuple.SrcIP.String() != "9.9.9.9" {
		t.Errorf("engine must advance past the dead line, src = %s", packets[0].FiveTuple.SrcIP)
	}
}

func TestEngineMultipacketExpansion(t *testing.T) {
	input := "!data timestamp src dst len proto sport dport count\n" +
		"1000.0 1.1.1.1 2.2.2.2 200 17 1 2 3\n"
	e := newTestEngine(input, Options{
		Multipacket: true,
		Interval:    time.Millisecond,
	})

	packets := drainEngine(t, e)
	if len(packets) != 3 {
		t.Fatalf("count=3 must yield 3 packets, got %d", len(packets))
	}

	// Unit size is the fabricated IP+UDP header, 28 bytes. Declared length
	// 200 leaves 200-3*28 = 116 extra: 40 on the first packet, 38 after.
	unit := len(packets[0].Data)
	if unit != 28 {
		t.Fatalf("fabricated unit = %d bytes, want 28", unit)
	}
	extraSum := 0
	for _, p := range packets {
		extraSum += p.Length - unit
	}
	if extraSum != 200-3*unit {
		t.Errorf("extra length contributions sum to %d, want %d", extraSum, 200-3*unit)
	}
	if packets[0].Length < packets[1].Length {
		t.Errorf("remainder must be front-loaded: lengths %d, %d", packets[0].Length, packets[1].Length)
	}
	if packets[1].Length != packets[2].Length {
		t.Errorf("even shares must match: lengths %d, %d", packets[1].Length, packets[2].Length)
	}

	base := time.Unix(1000, 0)
	for i, p := range packets {
		want := base.Add(time.Duration(i) * time.Millisecond)
		if !p.Timestamp.Equal(want) {
			t.Errorf("packet %d timestamp = %v, want %v", i, p.Timestamp, want)
		}
	}
}

func TestEngineMultipacketDisabled(t *testing.T) {
	input := "!data src dst count\n1.1.1.1 2.2.2.2 5\n"
	e := newTestEngine(input, Options{})

	packets := drainEngine(t, e)
	if len(packets) != 1 {
		t.Fatalf("multipacket disabled: got %d packets, want 1", len(packets))
	}
	if packets[0].Count != 5 {
		t.Errorf("count annotation = %d, want 5", packets[0].Count)
	}
}

func TestEngineSamplingExtremes(t *testing.T) {
	var lines strings.Builder
	lines.WriteString("!data src dst\n")
	for i := 0; i < 100; i++ {
		lines.WriteString("1.2.3.4 5.6.7.8\n")
	}

	e := newTestEngine(lines.String(), Options{Sample: 1, SampleSet: true})
	if got := len(drainEngine(t, e)); got != 100 {
		t.Errorf("probability 1 must accept everything, got %d of 100", got)
	}

	e = newTestEngine(lines.String(), Options{Sample: 0, SampleSet: true})
	if got := len(drainEngine(t, e)); got != 0 {
		t.Errorf("probability 0 must reject everything, got %d", got)
	}
}

func TestEngineSamplingRatio(t *testing.T) {
	const n = 20000
	var lines strings.Builder
	lines.WriteString("!data src dst\n")
	for i := 0; i < n; i++ {
		lines.WriteString("1.2.3.4 5.6.7.8\n")
	}

	e := newTestEngine(lines.String(), Options{Sample: 0.5, SampleSet: true, Seed: 7})
	got := len(drainEngine(t, e))
	if got < n*45/100 || got > n*55/100 {
		t.Errorf("sampled %d of %d at p=0.5, outside tolerance", got, n)
	}
}

func TestEngineMultipacketSampling(t *testing.T) {
	// The gate is evaluated once per emitted packet, so expansion and
	// sampling compose: every sub-packet passes or fails independently.
	const records, count = 200, 10
	var lines strings.Builder
	lines.WriteString("!data src dst len count\n")
	for i := 0; i < records; i++ {
		lines.WriteString("1.2.3.4 5.6.7.8 400 10\n")
	}

	e := newTestEngine(lines.String(), Options{Multipacket: true, Sample: 1, SampleSet: true})
	if got := len(drainEngine(t, e)); got != records*count {
		t.Errorf("p=1: got %d packets, want %d", got, records*count)
	}

	e = newTestEngine(lines.String(), Options{Multipacket: true, Sample: 0, SampleSet: true})
	if got := len(drainEngine(t, e)); got != 0 {
		t.Errorf("p=0: got %d packets, want 0", got)
	}
	// Rejected sub-packets still advance the expansion, so a fully
	// rejected stream is consumed to the end rather than wedging.
	if e.Offset() != uint64(lines.Len()) {
		t.Errorf("p=0: offset = %d, want %d (stream fully consumed)", e.Offset(), lines.Len())
	}

	const total = records * count
	e = newTestEngine(lines.String(), Options{Multipacket: true, Sample: 0.5, SampleSet: true, Seed: 7})
	got := len(drainEngine(t, e))
	if got < total*45/100 || got > total*55/100 {
		t.Errorf("sampled %d of %d sub-packets at p=0.5, outside tolerance", got, total)
	}
}

func TestEngineSamplingDeterministic(t *testing.T) {
	var lines strings.Builder
	lines.WriteString("!data src dst\n")
	for i := 0; i < 1000; i++ {
		lines.WriteString("1.2.3.4 5.6.7.8\n")
	}

	run := func() int {
		e := newTestEngine(lines.String(), Options{Sample: 0.25, SampleSet: true, Seed: 11})
		return len(drainEngine(t, e))
	}
	if a, b := run(), run(); a != b {
		t.Errorf("same seed must sample identically: %d vs %d", a, b)
	}
}

func TestEngineOffsetAndSize(t *testing.T) {
	input := "!data src dst\n1.1.1.1 2.2.2.2\n3.3.3.3 4.4.4.4"
	e := newTestEngine(input, Options{})
	drainEngine(t, e)
	if e.Offset() != uint64(len(input)) {
		t.Errorf("offset = %d, want %d", e.Offset(), len(input))
	}
}

func TestEngineStop(t *testing.T) {
	input := "!data src dst\n1.1.1.1 2.2.2.2\n1.1.1.1 2.2.2.2\n"
	e := newTestEngine(input, Options{})

	if _, err := e.NextPacket(); err != nil {
		t.Fatalf("first packet failed: %v", err)
	}
	e.Stop()
	if _, err := e.NextPacket(); err != ErrStopped {
		t.Errorf("after Stop, error = %v, want ErrStopped", err)
	}
	if e.Active() {
		t.Error("Stop must also clear the active flag")
	}
}

func TestEngineStarttimeDirective(t *testing.T) {
	input := "!starttime 500.5\n" +
		"!data src dst\n" +
		"1.1.1.1 2.2.2.2\n"
	e := newTestEngine(input, Options{})

	packets := drainEngine(t, e)
	if len(packets) != 1 {
		t.Fatalf("got %d packets, want 1", len(packets))
	}
	want := time.Unix(500, 500000000)
	if !e.StartTime().Equal(want) {
		t.Errorf("start time = %v, want %v", e.StartTime(), want)
	}
	// Records without a timestamp column inherit the base timestamp.
	if !packets[0].Timestamp.Equal(want) {
		t.Errorf("packet timestamp = %v, want base %v", packets[0].Timestamp, want)
	}
}

func TestEnginePayloadColumn(t *testing.T) {
	input := "!data src dst proto payload\n" +
		"1.1.1.1 2.2.2.2 17 6465616462656566\n"
	e := newTestEngine(input, Options{})

	packets := drainEngine(t, e)
	if len(packets) != 1 {
		t.Fatalf("got %d packets, want 1", len(packets))
	}
	p := packets[0]
	if len(p.Data) != 28+8 {
		t.Fatalf("fabricated %d bytes, want 36 (headers + 8 payload)", len(p.Data))
	}
	if string(p.Data[28:]) != "deadbeef" {
		t.Errorf("payload bytes = %q, want %q", p.Data[28:], "deadbeef")
	}
	if p.Length != 36 {
		t.Errorf("length = %d, want 36", p.Length)
	}
}
