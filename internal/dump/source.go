package dump

import (
	"compress/bzip2"
	"compress/gzip"
	"io"
	"os"
	"strings"
)

// Source is a byte source for the engine: a dump file, standard input, or a
// transparently decompressed file. It reports its total size when it has
// one (decompressed streams and stdin do not).
type Source struct {
	r    io.Reader
	c    io.Closer
	size int64 // -1 when unknown
}

func (s *Source) Read(p []byte) (int, error) {
	return s.r.Read(p)
}

// Close releases the underlying file, if any.
func (s *Source) Close() error {
	if s.c == nil {
		return nil
	}
	return s.c.Close()
}

// TotalSize implements Sizer.
func (s *Source) TotalSize() (int64, bool) {
	return s.size, s.size >= 0
}

// Open opens filename as a dump byte source. "-" (or an empty name) reads
// standard input. Files ending in .gz or .bz2 are decompressed on the fly.
func Open(filename string) (*Source, error) {
	if filename == "" || filename == "-" {
		return &Source{r: os.Stdin, size: -1}, nil
	}

	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}

	switch {
	case strings.HasSuffix(filename, ".gz"):
		zr, err := gzip.NewReader(f)
		if err != nil {
			f.Close()
			return nil, err
		}
		return &Source{r: zr, c: f, size: -1}, nil
	case strings.HasSuffix(filename, ".bz2"):
		return &Source{r: bzip2.NewReader(f), c: f, size: -1}, nil
	}

	size := int64(-1)
	if st, err := f.Stat(); err == nil {
		size = st.Size()
	}
	return &Source{r: f, c: f, size: size}, nil
}
