package core

// streaming.go provides the reader chain every delimited upload passes through
// before it reaches encoding/csv:
//
//   - LimitedReader: counts bytes and fails once the upload exceeds its cap
//   - BOMSkippingReader: drops the UTF-8 BOM that spreadsheet exports prepend
//   - UTF8Sanitizer: replaces invalid UTF-8 bytes with '?'
//
// WrapForParsing applies them in the right order.

import (
	"io"
	"unicode/utf8"
)

// UTF8Sanitizer replaces invalid UTF-8 bytes with '?' as data streams through.
// Multi-byte sequences split across reads are carried to the next call.
type UTF8Sanitizer struct {
	reader  io.Reader
	pending []byte
}

// NewUTF8Sanitizer creates a sanitizer reading from r.
func NewUTF8Sanitizer(r io.Reader) *UTF8Sanitizer {
	return &UTF8Sanitizer{
		reader:  r,
		pending: make([]byte, 0, utf8.UTFMax),
	}
}

// Read implements io.Reader.
func (s *UTF8Sanitizer) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}

	offset := 0
	if len(s.pending) > 0 {
		offset = copy(p, s.pending)
		s.pending = s.pending[:0]
	}

	n, err := s.reader.Read(p[offset:])
	n += offset
	if n == 0 {
		return 0, err
	}

	if asciiOnly(p[:n]) {
		return n, err
	}
	return s.sanitize(p[:n], err == io.EOF), err
}

func asciiOnly(data []byte) bool {
	for _, b := range data {
		if b >= utf8.RuneSelf {
			return false
		}
	}
	return true
}

// sanitize rewrites data in place and returns the number of bytes to hand out.
// Unless atEOF, a trailing partial sequence is held back in pending.
func (s *UTF8Sanitizer) sanitize(data []byte, atEOF bool) int {
	if utf8.Valid(data) {
		if !atEOF {
			if tail := partialTail(data); tail > 0 {
				s.pending = append(s.pending, data[len(data)-tail:]...)
				return len(data) - tail
			}
		}
		return len(data)
	}

	w := 0
	for r := 0; r < len(data); {
		ch, size := utf8.DecodeRune(data[r:])

		// An incomplete sequence at the end of the chunk may finish in the next read.
		if !atEOF && !utf8.FullRune(data[r:]) {
			s.pending = append(s.pending, data[r:]...)
			return w
		}

		if ch == utf8.RuneError && size == 1 {
			// '?' keeps the output no longer than the input.
			data[w] = '?'
			w++
			r++
			continue
		}
		copy(data[w:], data[r:r+size])
		w += size
		r += size
	}
	return w
}

// partialTail reports how many trailing bytes begin a sequence that is not
// yet complete.
func partialTail(data []byte) int {
	for i := 1; i <= 3 && i <= len(data); i++ {
		b := data[len(data)-i]
		if b >= 0xC0 {
			if i < sequenceLen(b) {
				return i
			}
			return 0
		}
		if b&0xC0 != 0x80 {
			return 0
		}
	}
	return 0
}

// sequenceLen returns the encoded length announced by a leading byte.
func sequenceLen(b byte) int {
	switch {
	case b < 0x80:
		return 1
	case b < 0xC0:
		return 0
	case b < 0xE0:
		return 2
	case b < 0xF0:
		return 3
	default:
		return 4
	}
}

// BOMSkippingReader drops a leading UTF-8 byte order mark (EF BB BF).
type BOMSkippingReader struct {
	reader  io.Reader
	checked bool
	head    []byte
}

// NewBOMSkippingReader creates a BOM-skipping reader.
func NewBOMSkippingReader(r io.Reader) *BOMSkippingReader {
	return &BOMSkippingReader{reader: r}
}

// Read implements io.Reader.
func (r *BOMSkippingReader) Read(p []byte) (int, error) {
	if !r.checked {
		r.checked = true

		var buf [3]byte
		n, err := io.ReadFull(r.reader, buf[:])
		if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
			return 0, err
		}
		if !(n == 3 && buf[0] == 0xEF && buf[1] == 0xBB && buf[2] == 0xBF) {
			r.head = append([]byte(nil), buf[:n]...)
		}
		if n < 3 {
			// The whole input fit in the probe.
			r.reader = eofReader{}
		}
	}

	if len(r.head) > 0 {
		n := copy(p, r.head)
		r.head = r.head[n:]
		return n, nil
	}
	return r.reader.Read(p)
}

type eofReader struct{}

func (eofReader) Read([]byte) (int, error) { return 0, io.EOF }

// LimitedReader tracks bytes read and fails with a *LimitError once more
// than Limit bytes have been read. A Limit of zero disables the check.
type LimitedReader struct {
	reader    io.Reader
	BytesRead int64
	Limit     int64
}

// NewLimitedReader creates a counting reader capped at limit bytes.
func NewLimitedReader(r io.Reader, limit int64) *LimitedReader {
	return &LimitedReader{reader: r, Limit: limit}
}

// Read implements io.Reader.
func (r *LimitedReader) Read(p []byte) (int, error) {
	n, err := r.reader.Read(p)
	r.BytesRead += int64(n)
	if r.Limit > 0 && r.BytesRead > r.Limit {
		return n, &LimitError{Kind: LimitFileSize, Limit: r.Limit, Actual: r.BytesRead}
	}
	return n, err
}

// WrapForParsing caps r at limit bytes, then strips a BOM and sanitises UTF-8.
// Counting happens on the raw bytes so the cap matches the uploaded size.
func WrapForParsing(r io.Reader, limit int64) io.Reader {
	return NewUTF8Sanitizer(NewBOMSkippingReader(NewLimitedReader(r, limit)))
}
