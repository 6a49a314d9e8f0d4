package proxy

import (
	"fmt"
	"net"
	"time"
)

var statusText = map[int]string{
	400: "Bad Request",
	502: "Bad Gateway",
	504: "Gateway Timeout",
}

// writeError synthesizes a minimal HTTP error response on the client
// socket. Best effort: the connection is being torn down either way.
func (s *Server) writeError(conn net.Conn, code int) {
	conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	fmt.Fprintf(conn, "HTTP/1.1 %d %s\r\nContent-Length: 0\r\nConnection: close\r\n\r\n",
		code, statusText[code])
}
