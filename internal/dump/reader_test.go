package dump

import (
	"bytes"
	"io"
	"strings"
	"testing"
)

// chunkReader hands out at most n bytes per Read to force refills.
type chunkReader struct {
	r io.Reader
	n int
}

func (c *chunkReader) Read(p []byte) (int, error) {
	if len(p) > c.n {
		p = p[:c.n]
	}
	return c.r.Read(p)
}

func readAllLines(t *testing.T, r *lineReader) []string {
	t.Helper()
	var lines []string
	for {
		line, err := r.ReadLine()
		if err == io.EOF {
			return lines
		}
		if err != nil {
			t.Fatalf("ReadLine failed: %v", err)
		}
		lines = append(lines, string(line))
	}
}

func TestLineReaderOffsetMatchesInputSize(t *testing.T) {
	inputs := []string{
		"",
		"x",
		"a\nbb\n\nccc\n",
		"no trailing newline",
		"first\nsecond",
	}
	for _, input := range inputs {
		r := newLineReader(strings.NewReader(input))
		readAllLines(t, r)
		if r.Offset() != uint64(len(input)) {
			t.Errorf("input %q: offset = %d, want %d", input, r.Offset(), len(input))
		}
	}
}

func TestLineReaderSplitsLines(t *testing.T) {
	r := newLineReader(strings.NewReader("a\nbb\n\nccc"))
	lines := readAllLines(t, r)
	want := []string{"a", "bb", "", "ccc"}
	if len(lines) != len(want) {
		t.Fatalf("got %d lines, want %d", len(lines), len(want))
	}
	for i := range want {
		if lines[i] != want[i] {
			t.Errorf("line %d = %q, want %q", i, lines[i], want[i])
		}
	}
}

func TestLineReaderStripsCR(t *testing.T) {
	r := newLineReader(strings.NewReader("dos line\r\nplain\n"))
	lines := readAllLines(t, r)
	if lines[0] != "dos line" || lines[1] != "plain" {
		t.Errorf("unexpected lines %q", lines)
	}
	if r.Offset() != uint64(len("dos line\r\nplain\n")) {
		t.Errorf("offset must count the CR and LF bytes")
	}
}

func TestLineReaderLineSpansBufferLoads(t *testing.T) {
	// A line three buffer loads and one byte long must come back intact.
	long := strings.Repeat("x", bufferSize*3+1)
	input := long + "\nend\n"

	r := newLineReader(&chunkReader{r: strings.NewReader(input), n: 1000})
	lines := readAllLines(t, r)

	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2", len(lines))
	}
	if lines[0] != long {
		t.Errorf("long line truncated or duplicated: got %d bytes, want %d", len(lines[0]), len(long))
	}
	if lines[1] != "end" {
		t.Errorf("trailing line = %q, want %q", lines[1], "end")
	}
	if r.Offset() != uint64(len(input)) {
		t.Errorf("offset = %d, want %d", r.Offset(), len(input))
	}
}

func TestLineReaderRejectsOverlongLine(t *testing.T) {
	input := bytes.Repeat([]byte("y"), maxLineSize+1)
	r := newLineReader(bytes.NewReader(input))

	_, err := r.ReadLine()
	if err != ErrLineTooLong {
		t.Fatalf("ReadLine error = %v, want ErrLineTooLong", err)
	}
}
