package telegram

import (
	"bytes"
	"strings"
)

// Framer accumulates transport chunks and cuts them into telegrams.
// Sticks and remotes disagree on line endings, so both '\n' and '\r'
// terminate a telegram. A Framer belongs to exactly one connection.
type Framer struct {
	buf []byte
}

func NewFramer() *Framer {
	return &Framer{}
}

// Feed appends chunk to the buffer and returns every complete telegram,
// trimmed, in arrival order. Blank lines are dropped. The unterminated
// remainder stays buffered for the next call.
func (f *Framer) Feed(chunk []byte) []string {
	if len(chunk) == 0 {
		return nil
	}
	f.buf = append(f.buf, chunk...)

	var lines []string
	for {
		pos := bytes.IndexAny(f.buf, "\r\n")
		if pos < 0 {
			break
		}
		line := strings.TrimSpace(string(f.buf[:pos]))
		f.buf = f.buf[pos+1:]
		if line != "" {
			lines = append(lines, line)
		}
	}

	// Drop the consumed prefix so the backing array does not pin old data.
	if len(f.buf) == 0 {
		f.buf = nil
	} else if cap(f.buf) > 4*len(f.buf) {
		f.buf = append([]byte(nil), f.buf...)
	}
	return lines
}

// Pending returns the buffered, unterminated remainder.
func (f *Framer) Pending() string {
	return string(f.buf)
}

// Reset discards the buffered remainder.
func (f *Framer) Reset() {
	f.buf = nil
}
