package dump

import (
	"bytes"
	"errors"
	"io"
)

const (
	// bufferSize is the read-ahead buffer loaded from the byte source.
	bufferSize = 32 * 1024
	// maxLineSize caps buffer growth when a single line spans many buffer
	// loads. Longer lines abort the stream rather than exhaust memory.
	maxLineSize = 1024 * 1024
)

// ErrLineTooLong reports a line exceeding maxLineSize.
var ErrLineTooLong = errors.New("dump: line exceeds maximum length")

// lineReader splits a byte stream of unknown total length into
// newline-terminated records. A line spanning buffer refills is reassembled
// by shifting the partial tail to the front before reading more. The
// absolute stream offset counts every byte consumed, trailing newlines
// included, so position reports can be checked against the source size.
type lineReader struct {
	src    io.Reader
	buf    []byte
	pos    int // start of unconsumed bytes
	end    int // end of valid bytes
	offset uint64
	eof    bool
}

func newLineReader(src io.Reader) *lineReader {
	return &lineReader{src: src, buf: make([]byte, bufferSize)}
}

// ReadLine returns the next line with the trailing newline (and a preceding
// CR, if any) removed. A final line lacking a newline at end of stream is
// still a valid line. Returns io.EOF once the stream is exhausted. The
// returned slice is only valid until the next call.
func (r *lineReader) ReadLine() ([]byte, error) {
	for {
		if i := bytes.IndexByte(r.buf[r.pos:r.end], '\n'); i >= 0 {
			line := r.buf[r.pos : r.pos+i]
			r.pos += i + 1
			r.offset += uint64(i + 1)
			return trimCR(line), nil
		}
		if r.eof {
			if r.pos == r.end {
				return nil, io.EOF
			}
			line := r.buf[r.pos:r.end]
			r.offset += uint64(r.end - r.pos)
			r.pos = r.end
			return trimCR(line), nil
		}
		if err := r.fill(); err != nil {
			return nil, err
		}
	}
}

// Offset returns the number of bytes consumed from the source so far.
func (r *lineReader) Offset() uint64 {
	return r.offset
}

// fill shifts the unconsumed tail to the front of the buffer and reads more
// bytes from the source, growing the buffer (up to maxLineSize) when the
// pending line alone already fills it.
func (r *lineReader) fill() error {
	if r.pos > 0 {
		copy(r.buf, r.buf[r.pos:r.end])
		r.end -= r.pos
		r.pos = 0
	}
	if r.end == len(r.buf) {
		if len(r.buf) >= maxLineSize {
			return ErrLineTooLong
		}
		size := len(r.buf) * 2
		if size > maxLineSize {
			size = maxLineSize
		}
		grown := make([]byte, size)
		copy(grown, r.buf[:r.end])
		r.buf = grown
	}
	n, err := r.src.Read(r.buf[r.end:])
	r.end += n
	if err == io.EOF {
		r.eof = true
		return nil
	}
	return err
}

func trimCR(line []byte) []byte {
	if n := len(line); n > 0 && line[n-1] == '\r' {
		return line[:n-1]
	}
	return line
}
