// Package dump reconstructs synthetic packets from line-oriented IP summary
// dump text. A dump is a self-describing stream: directive lines starting
// with '!' declare the ordered field schema for subsequent data lines, each
// of which describes one packet (or, via a count column, several).
package dump

import (
	"errors"
	"fmt"
	"io"
	"log"
	"math/rand"
	"sync/atomic"
	"time"
)

// ErrStopped is returned once an external stop request has taken effect.
var ErrStopped = errors.New("dump: engine stopped")

// Reporter receives engine diagnostics. Diagnostics travel out of band from
// the packet path; the engine complains about malformed data at most once
// per dump.
type Reporter interface {
	Warningf(format string, args ...interface{})
}

type logReporter struct{}

func (logReporter) Warningf(format string, args ...interface{}) {
	log.Printf("WARNING: "+format, args...)
}

// Sizer is implemented by byte sources that know their total size.
type Sizer interface {
	TotalSize() (int64, bool)
}

// Options configure an Engine.
type Options struct {
	// DefaultProto is used for records without a protocol field. Zero means
	// TCP (6).
	DefaultProto uint8
	// Zero fills bytes not determined by the dump with zeroes instead of
	// pseudo-random garbage.
	Zero bool
	// Multipacket expands records with a count column into count packets.
	// When false such records still produce a single packet carrying the
	// count annotation.
	Multipacket bool
	// Sample is the per-packet acceptance probability, rounded to 2^-28
	// fixed point. Zero or negative values are treated as 1 only when
	// SampleSet is false.
	Sample    float64
	SampleSet bool
	// Seed seeds the sampling and garbage-fill generators. Zero picks a
	// time-based seed.
	Seed int64
	// Interval advances successive sub-packet timestamps of one
	// multipacket record. Zero leaves them identical.
	Interval time.Duration
	// DefaultContents overrides the built-in default schema used before any
	// !data directive.
	DefaultContents []string
	// Reporter receives diagnostics; nil logs via the standard logger.
	Reporter Reporter
}

// Engine is the stateful record parser and packet synthesizer. It is
// single-threaded: the owning collaborator must serialize calls. The active
// and stop flags are atomics so a control surface on another goroutine may
// flip them between packets.
type Engine struct {
	rd       *lineReader
	src      io.Reader
	schema   []ContentField
	reporter Reporter

	defaultProto uint8
	zero         bool
	multipacket  bool
	interval     time.Duration
	gate         *sampler
	fillRNG      *rand.Rand

	work      *workPacket
	startTime time.Time

	active  atomic.Bool
	stopped atomic.Bool

	complained       bool
	schemaComplained bool
}

// NewEngine wraps a byte source. The source is read incrementally; its
// lifetime (and any decompression) belongs to the caller.
func NewEngine(src io.Reader, opts Options) *Engine {
	if opts.DefaultProto == 0 {
		opts.DefaultProto = 6
	}
	if !opts.SampleSet {
		opts.Sample = 1
	}
	if opts.Seed == 0 {
		opts.Seed = time.Now().UnixNano()
	}
	if opts.Reporter == nil {
		opts.Reporter = logReporter{}
	}

	e := &Engine{
		rd:           newLineReader(src),
		src:          src,
		reporter:     opts.Reporter,
		defaultProto: opts.DefaultProto,
		zero:         opts.Zero,
		multipacket:  opts.Multipacket,
		interval:     opts.Interval,
		gate:         newSampler(opts.Sample, opts.Seed),
		fillRNG:      rand.New(rand.NewSource(opts.Seed + 1)),
	}
	e.active.Store(true)

	e.schema = DefaultSchema()
	if len(opts.DefaultContents) > 0 {
		e.setSchema(opts.DefaultContents)
	}
	return e
}

// ReadPacket performs one engine step. It returns the next packet, or
// (nil, nil) when the step consumed input without producing one (blank
// line, directive, undecodable line, sampled-out packet) and the caller
// should try again. io.EOF reports end of stream with no outstanding work;
// any other error is fatal.
func (e *Engine) ReadPacket() (*Packet, error) {
	if e.stopped.Load() {
		return nil, ErrStopped
	}

	// An expansion in progress supplies the next sub-packet without
	// touching the reader.
	if e.work != nil {
		p := e.work.next()
		if e.work.remaining == 0 {
			e.work = nil
		}
		if !e.gate.Accept() {
			return nil, nil
		}
		return p, nil
	}

	line, err := e.rd.ReadLine()
	if err != nil {
		return nil, err
	}
	if len(line) == 0 {
		return nil, nil
	}
	if e.tryDirective(line) {
		return nil, nil
	}

	rec, ok := e.decodeLine(line)
	if !ok {
		return nil, nil
	}

	base, err := e.synthesize(rec)
	if err != nil {
		return nil, err
	}

	count := rec.count
	if count == 0 {
		count = 1
	}
	if !e.multipacket || count == 1 {
		if !e.gate.Accept() {
			return nil, nil
		}
		return base, nil
	}

	e.work = newWorkPacket(base, count, e.interval)
	p := e.work.next()
	if e.work.remaining == 0 {
		e.work = nil
	}
	if !e.gate.Accept() {
		return nil, nil
	}
	return p, nil
}

// NextPacket loops ReadPacket until a packet, end of stream, or an error.
func (e *Engine) NextPacket() (*Packet, error) {
	for {
		p, err := e.ReadPacket()
		if p != nil || err != nil {
			return p, err
		}
	}
}

// decodeLine runs each declared field's decoder over the line's tokens.
// Malformed or missing fields default to zero and trigger at most one
// diagnostic per dump. A line where nothing decoded produces no record.
func (e *Engine) decodeLine(line []byte) (*record, bool) {
	rec := &record{count: 1}
	toks := tokenizer{line: line}

	for _, field := range e.schema {
		var tok string
		var ok bool
		if field == FieldPayload {
			tok, ok = toks.rest()
		} else {
			tok, ok = toks.next()
		}
		if !ok {
			e.complainOnce("data line has fewer fields than the schema declares; missing fields defaulted")
			break
		}
		dec := fieldDecoders[field]
		if dec == nil {
			continue
		}
		if err := dec(tok, rec); err != nil {
			e.complainOnce("malformed %s field: %v (defaulted; further complaints suppressed)", field, err)
			continue
		}
		rec.decoded++
	}

	if rec.decoded == 0 {
		return nil, false
	}
	return rec, true
}

func (e *Engine) complainOnce(format string, args ...interface{}) {
	if e.complained {
		return
	}
	e.complained = true
	e.reporter.Warningf(format, args...)
}

// SamplingProb reports the sampling probability actually in effect after
// fixed-point rounding.
func (e *Engine) SamplingProb() float64 {
	return fixedToProb(e.gate.prob)
}

// Offset reports the number of bytes consumed from the source.
func (e *Engine) Offset() uint64 {
	return e.rd.Offset()
}

// TotalSize reports the byte source's total size when it is known.
func (e *Engine) TotalSize() (int64, bool) {
	if s, ok := e.src.(Sizer); ok {
		return s.TotalSize()
	}
	return 0, false
}

// Active reports whether packet production is enabled. The engine itself
// does not consult the flag; the driving loop does, between packets.
func (e *Engine) Active() bool {
	return e.active.Load()
}

// SetActive toggles packet production.
func (e *Engine) SetActive(active bool) {
	e.active.Store(active)
}

// Stop requests a cooperative stop: the next ReadPacket call returns
// ErrStopped. Buffered but unconsumed bytes stay counted, so position
// reporting remains accurate.
func (e *Engine) Stop() {
	e.active.Store(false)
	e.stopped.Store(true)
}

// Stopped reports whether a stop request has been seen.
func (e *Engine) Stopped() bool {
	return e.stopped.Load()
}

// StartTime returns the base timestamp declared by a !starttime directive,
// also used for records that carry no timestamp field.
func (e *Engine) StartTime() time.Time {
	return e.startTime
}

// workPacket carries one in-progress multipacket expansion between calls.
// The engine holds at most one, and remaining decreases by one per emitted
// sub-packet.
type workPacket struct {
	base      Packet
	remaining uint32
	unitLen   int // declared length of one sub-packet before extra length
	perExtra  int
	remExtra  int // remainder of the extra split, added to the first packet
	step      time.Duration
	emitted   uint32
}

// newWorkPacket prepares a count-packet expansion. The declared length in
// excess of count fabricated-size units is the record's extra length; it is
// split evenly with the remainder front-loaded onto the first packet, so
// the per-packet shares always sum exactly to the extra length.
func newWorkPacket(base *Packet, count uint32, step time.Duration) *workPacket {
	unit := len(base.Data)
	extra := base.Length - unit*int(count)
	if extra < 0 {
		extra = 0
	}
	return &workPacket{
		base:      *base,
		remaining: count,
		unitLen:   unit,
		perExtra:  extra / int(count),
		remExtra:  extra % int(count),
		step:      step,
	}
}

// next emits one sub-packet cloned from the base fields. Fabricated bytes
// are shared across the batch; consumers treat packet data as read-only.
func (w *workPacket) next() *Packet {
	p := w.base
	p.Length = w.unitLen + w.perExtra
	if w.emitted == 0 {
		p.Length += w.remExtra
	}
	p.Timestamp = w.base.Timestamp.Add(time.Duration(w.emitted) * w.step)
	p.Count = 1
	w.emitted++
	w.remaining--
	return &p
}

// String renders the active schema, mostly for diagnostics.
func (e *Engine) String() string {
	names := make([]string, len(e.schema))
	for i, f := range e.schema {
		names[i] = f.String()
	}
	return fmt.Sprintf("dump.Engine(schema=%v)", names)
}
