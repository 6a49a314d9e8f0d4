package httphead

import (
	"bytes"
	"fmt"
	"net"
	"strconv"
	"strings"
)

const defaultPort = 80

// Parse interprets a framed request head and resolves the forwarding
// target against the configured path prefix.
//
// The path component of the request-target must start byte-wise with
// prefix; the forwarded target is the path with that prefix removed (an
// empty remainder becomes "/"), query untouched. A remainder of the form
// "http://host[:port]/rest" names the origin itself: the destination is
// taken from the embedded URL and the Host header is rewritten to match.
// Otherwise the destination comes from an absolute-URI target or the
// Host header, split on the last colon for an explicit port, port 80 by
// default.
func Parse(head []byte, prefix string) (*Request, error) {
	lines := splitLines(head)
	if len(lines) == 0 || lines[0] == "" {
		return nil, fmt.Errorf("%w: empty request line", ErrMalformedRequest)
	}

	req, err := parseRequestLine(lines[0])
	if err != nil {
		return nil, err
	}
	if err := parseHeaders(req, lines[1:]); err != nil {
		return nil, err
	}
	if err := resolveTarget(req, prefix); err != nil {
		return nil, err
	}
	return req, nil
}

// splitLines breaks the head into lines up to the first blank line,
// tolerating bare-LF line endings.
func splitLines(head []byte) []string {
	var lines []string
	for _, raw := range bytes.Split(head, []byte("\n")) {
		line := strings.TrimSuffix(string(raw), "\r")
		if line == "" {
			break
		}
		lines = append(lines, line)
	}
	return lines
}

func parseRequestLine(line string) (*Request, error) {
	parts := strings.Fields(line)
	if len(parts) != 3 {
		return nil, fmt.Errorf("%w: request line %q", ErrMalformedRequest, line)
	}
	if !strings.HasPrefix(parts[2], "HTTP/") {
		return nil, fmt.Errorf("%w: version %q", ErrMalformedRequest, parts[2])
	}
	return &Request{Method: parts[0], Target: parts[1], Proto: parts[2]}, nil
}

func parseHeaders(req *Request, lines []string) error {
	for _, line := range lines {
		// Obsolete line folding is rejected rather than unfolded.
		if line[0] == ' ' || line[0] == '\t' {
			return fmt.Errorf("%w: continuation header line", ErrMalformedRequest)
		}
		name, value, ok := strings.Cut(line, ":")
		if !ok || name == "" || strings.ContainsAny(name, " \t") {
			return fmt.Errorf("%w: header line %q", ErrMalformedRequest, line)
		}
		req.headers = append(req.headers, header{name: name, value: strings.TrimSpace(value)})
	}
	return nil
}

// resolveTarget applies the prefix check, rewrites the forward target,
// and determines the origin host and port.
func resolveTarget(req *Request, prefix string) error {
	target := req.Target

	// Absolute-form target: destination comes from the URI authority,
	// the prefix check applies to its path component.
	if strings.HasPrefix(target, "http://") {
		host, port, rest, err := parseAbsoluteURL(target)
		if err != nil {
			return err
		}
		req.Host, req.Port, req.rewriteHost = host, port, true
		target = rest
	}

	path, query, hasQuery := strings.Cut(target, "?")
	if !strings.HasPrefix(path, prefix) {
		return fmt.Errorf("%w: path %q", ErrPrefixMismatch, path)
	}
	remainder := path[len(prefix):]

	// A remainder of the form "http://host/rest" names the origin
	// itself.
	if strings.HasPrefix(remainder, "http://") {
		host, port, rest, err := parseAbsoluteURL(remainder)
		if err != nil {
			return err
		}
		req.Host, req.Port, req.rewriteHost = host, port, true
		remainder = strings.TrimPrefix(rest, "/")
	}

	switch {
	case remainder == "":
		req.ForwardTarget = "/"
	case remainder[0] != '/':
		req.ForwardTarget = "/" + remainder
	default:
		req.ForwardTarget = remainder
	}
	if hasQuery {
		req.ForwardTarget += "?" + query
	}

	if req.Host == "" {
		host := req.Header("Host")
		if host == "" {
			return fmt.Errorf("%w: no Host header and no absolute target", ErrMalformedRequest)
		}
		var err error
		if req.Host, req.Port, err = splitHostPort(host); err != nil {
			return err
		}
	}
	return nil
}

// parseAbsoluteURL splits "http://host[:port]/rest" into its parts.
// rest keeps its leading slash and is "/" when the URL has no path.
func parseAbsoluteURL(s string) (host string, port int, rest string, err error) {
	authority, path, ok := strings.Cut(strings.TrimPrefix(s, "http://"), "/")
	if !ok {
		path = ""
	}
	if host, port, err = splitHostPort(authority); err != nil {
		return "", 0, "", err
	}
	return host, port, "/" + path, nil
}

// splitHostPort splits on the last colon for an explicit port,
// defaulting to 80. Bracketed IPv6 literals keep their colons.
func splitHostPort(hostport string) (string, int, error) {
	if hostport == "" {
		return "", 0, fmt.Errorf("%w: empty host", ErrMalformedRequest)
	}
	i := strings.LastIndexByte(hostport, ':')
	if i < 0 || i < strings.LastIndexByte(hostport, ']') {
		return strings.Trim(hostport, "[]"), defaultPort, nil
	}
	port, err := strconv.Atoi(hostport[i+1:])
	if err != nil || port < 1 || port > 65535 {
		return "", 0, fmt.Errorf("%w: port in %q", ErrMalformedRequest, hostport)
	}
	return strings.Trim(hostport[:i], "[]"), port, nil
}

// Rewritten renders the head that is forwarded to the origin: the
// request line with the rewritten target, then the original header lines
// in order. When the destination came from an absolute URL the Host
// header is replaced (or added) so the origin sees its own name.
func (r *Request) Rewritten() []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "%s %s %s\r\n", r.Method, r.ForwardTarget, r.Proto)

	sawHost := false
	for _, h := range r.headers {
		value := h.value
		if strings.EqualFold(h.name, "Host") {
			sawHost = true
			if r.rewriteHost {
				value = r.hostValue()
			}
		}
		fmt.Fprintf(&b, "%s: %s\r\n", h.name, value)
	}
	if r.rewriteHost && !sawHost {
		fmt.Fprintf(&b, "Host: %s\r\n", r.hostValue())
	}

	b.WriteString("\r\n")
	return b.Bytes()
}

func (r *Request) hostValue() string {
	if r.Port == defaultPort {
		return r.Host
	}
	return net.JoinHostPort(r.Host, strconv.Itoa(r.Port))
}
