// Package relay copies bytes bidirectionally between a client and an
// origin connection in bounded chunks until both directions are done.
package relay

import (
	"errors"
	"fmt"
	"io"
	"net"
	"time"
)

// ErrIdleTimeout is returned when a direction saw no traffic for the
// configured idle duration. It terminates the whole relay, which is the
// guard against one-sided hangs.
var ErrIdleTimeout = errors.New("relay idle timeout")

// closeWriter is the half-close surface of *net.TCPConn and friends.
type closeWriter interface {
	CloseWrite() error
}

// Result reports the number of bytes copied in each direction.
type Result struct {
	ToOrigin int64 // client → origin
	ToClient int64 // origin → client
}

type dirResult struct {
	n   int64
	err error
}

// Run relays bytes between client and origin until both directions hit
// end-of-stream, or either fails. Reads happen in chunks of at most
// chunkSize bytes, each bounded by idleTimeout (0 disables the bound).
//
// End-of-stream on one direction half-closes the peer's write side while
// the opposite direction keeps going. Any I/O error or idle timeout
// closes both connections and ends the relay; the first such error is
// returned alongside the byte counts. Run does not retry.
func Run(client, origin net.Conn, chunkSize int, idleTimeout time.Duration) (Result, error) {
	toOrigin := make(chan dirResult, 1)
	toClient := make(chan dirResult, 1)

	go func() {
		n, err := copyDirection(origin, client, chunkSize, idleTimeout)
		toOrigin <- dirResult{n, err}
	}()
	go func() {
		n, err := copyDirection(client, origin, chunkSize, idleTimeout)
		toClient <- dirResult{n, err}
	}()

	var res Result
	var first error
	for i := 0; i < 2; i++ {
		var dr dirResult
		select {
		case dr = <-toOrigin:
			res.ToOrigin = dr.n
		case dr = <-toClient:
			res.ToClient = dr.n
		}
		if dr.err != nil && first == nil {
			first = dr.err
			// Unblock the opposite direction.
			client.Close()
			origin.Close()
		}
	}
	return res, first
}

// copyDirection pumps src into dst until end-of-stream, which half-closes
// dst, or an error. Returns the byte count for the direction.
func copyDirection(dst, src net.Conn, chunkSize int, idleTimeout time.Duration) (int64, error) {
	buf := make([]byte, chunkSize)
	var total int64

	for {
		if idleTimeout > 0 {
			if err := src.SetReadDeadline(time.Now().Add(idleTimeout)); err != nil {
				return total, fmt.Errorf("set read deadline: %w", err)
			}
		}

		n, err := src.Read(buf)
		if n > 0 {
			w, werr := dst.Write(buf[:n])
			total += int64(w)
			if werr != nil {
				return total, fmt.Errorf("relay write: %w", werr)
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				halfClose(dst)
				return total, nil
			}
			// Our own socket was closed (shutdown or the other
			// direction's error path): end the whole relay, not just
			// this direction.
			if errors.Is(err, net.ErrClosed) {
				return total, err
			}
			var nerr net.Error
			if errors.As(err, &nerr) && nerr.Timeout() {
				return total, ErrIdleTimeout
			}
			return total, fmt.Errorf("relay read: %w", err)
		}
	}
}

func halfClose(c net.Conn) {
	if cw, ok := c.(closeWriter); ok {
		cw.CloseWrite()
	}
}
