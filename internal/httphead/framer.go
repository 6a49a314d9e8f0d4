package httphead

import (
	"bytes"
	"fmt"
	"io"
)

var (
	crlfcrlf = []byte("\r\n\r\n")
	lflf     = []byte("\n\n")
)

// ReadHead reads from r in chunks of at most readSize bytes until the
// blank line terminating an HTTP request head is found. It returns the
// full accumulated buffer and the offset just past the terminator; bytes
// beyond that offset were read incidentally and belong to the request
// body, so callers must forward them rather than drop them.
//
// ReadHead fails with ErrConnectionClosedEarly if the stream ends first,
// and with ErrHeadTooLarge once maxHead bytes have accumulated without a
// terminator.
func ReadHead(r io.Reader, readSize, maxHead int) ([]byte, int, error) {
	buf := make([]byte, 0, readSize)
	chunk := make([]byte, readSize)
	scanned := 0 // buffer is re-scanned from here, terminators span chunk boundaries

	for {
		n, err := r.Read(chunk)
		if n > 0 {
			buf = append(buf, chunk[:n]...)
			if end := headEnd(buf, scanned); end > 0 {
				return buf, end, nil
			}
			if len(buf) >= maxHead {
				return buf, 0, ErrHeadTooLarge
			}
			// The terminator may start up to 3 bytes before the new chunk.
			if scanned = len(buf) - 3; scanned < 0 {
				scanned = 0
			}
		}
		if err == io.EOF {
			return buf, 0, ErrConnectionClosedEarly
		}
		if err != nil {
			return buf, 0, fmt.Errorf("read request head: %w", err)
		}
	}
}

// headEnd returns the offset just past the head terminator, or 0 when no
// terminator is present. CRLFCRLF is the proper terminator; bare LFLF is
// accepted as a lenient fallback. When both appear, the one occurring
// first in the stream wins.
func headEnd(buf []byte, from int) int {
	tail := buf[from:]
	i := bytes.Index(tail, crlfcrlf)
	j := bytes.Index(tail, lflf)

	switch {
	case i < 0 && j < 0:
		return 0
	case j < 0 || (i >= 0 && i < j):
		return from + i + len(crlfcrlf)
	default:
		return from + j + len(lflf)
	}
}
