// Package httphead frames and interprets HTTP/1.x request heads read
// directly off a TCP socket.
//
// It deliberately avoids net/http's request reader: that buffers past the
// end of the head, and any body bytes it swallows would be lost to the
// relay phase. Here the framer returns everything it read along with the
// head-end offset, so residual body bytes can be forwarded to the origin.
package httphead

import (
	"errors"
	"net"
	"strconv"
	"strings"
)

// Sentinel errors produced while framing and parsing a request head.
var (
	// ErrConnectionClosedEarly means the client closed the connection
	// before a complete head (terminated by a blank line) was seen.
	ErrConnectionClosedEarly = errors.New("connection closed before end of request head")

	// ErrHeadTooLarge means the head exceeded the configured size cap
	// without reaching its terminating blank line.
	ErrHeadTooLarge = errors.New("request head exceeds size limit")

	// ErrMalformedRequest means the request line or a header line could
	// not be parsed, or no destination host could be determined.
	ErrMalformedRequest = errors.New("malformed request")

	// ErrPrefixMismatch means the request path does not start with the
	// configured proxy prefix.
	ErrPrefixMismatch = errors.New("request path does not match proxy prefix")
)

// header is one parsed header line, order preserved for rewriting.
type header struct {
	name  string
	value string
}

// Request is an interpreted request head together with the rewritten
// target that will be forwarded to the origin.
type Request struct {
	Method string
	Target string // original request-target as received
	Proto  string // e.g. "HTTP/1.1"

	// ForwardTarget is the origin-form target sent upstream: the original
	// path with the proxy prefix stripped, query preserved.
	ForwardTarget string

	// Host and Port name the origin, taken from an absolute-URI target
	// or the Host header.
	Host string
	Port int

	headers     []header
	rewriteHost bool // Host header must be replaced with Host:Port
}

// Header returns the value of the first header with the given name,
// matched case-insensitively. Missing headers return "".
func (r *Request) Header(name string) string {
	for _, h := range r.headers {
		if strings.EqualFold(h.name, name) {
			return h.value
		}
	}
	return ""
}

// Addr returns the origin dial address as host:port.
func (r *Request) Addr() string {
	return net.JoinHostPort(r.Host, strconv.Itoa(r.Port))
}
