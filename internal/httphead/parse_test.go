package httphead

import (
	"errors"
	"strings"
	"testing"
)

func head(lines ...string) []byte {
	return []byte(strings.Join(lines, "\r\n") + "\r\n\r\n")
}

func TestParse_PrefixStripping(t *testing.T) {
	tests := []struct {
		name   string
		target string
		want   string
	}{
		{"plain path", "/proxy/some/path", "/some/path"},
		{"empty remainder", "/proxy/", "/"},
		{"single segment", "/proxy/x", "/x"},
		{"query preserved", "/proxy/search?q=1&b=2", "/search?q=1&b=2"},
		{"query on empty remainder", "/proxy/?q=1", "/?q=1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := Parse(head("GET "+tt.target+" HTTP/1.1", "Host: example.com"), "/proxy/")
			if err != nil {
				t.Fatalf("Parse() error = %v", err)
			}
			if req.ForwardTarget != tt.want {
				t.Errorf("ForwardTarget = %q, want %q", req.ForwardTarget, tt.want)
			}
			if req.Host != "example.com" || req.Port != 80 {
				t.Errorf("destination = %s:%d, want example.com:80", req.Host, req.Port)
			}
		})
	}
}

func TestParse_PrefixMismatch(t *testing.T) {
	tests := []struct {
		name   string
		target string
	}{
		{"other path", "/other/path"},
		{"root", "/"},
		{"prefix without trailing slash", "/proxy"},
		{"prefix as infix", "/a/proxy/b"},
		{"case differs", "/Proxy/a"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(head("GET "+tt.target+" HTTP/1.1", "Host: x"), "/proxy/")
			if !errors.Is(err, ErrPrefixMismatch) {
				t.Errorf("Parse() error = %v, want ErrPrefixMismatch", err)
			}
		})
	}
}

func TestParse_EmbeddedOriginURL(t *testing.T) {
	tests := []struct {
		name     string
		target   string
		wantHost string
		wantPort int
		wantFwd  string
	}{
		{"host only", "/proxy/http://example.com", "example.com", 80, "/"},
		{"host and path", "/proxy/http://example.com/a/b", "example.com", 80, "/a/b"},
		{"explicit port", "/proxy/http://example.com:8080/a", "example.com", 8080, "/a"},
		{"trailing slash", "/proxy/http://example.invalid/", "example.invalid", 80, "/"},
		{"query", "/proxy/http://example.com/a?q=1", "example.com", 80, "/a?q=1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := Parse(head("GET "+tt.target+" HTTP/1.1", "Host: frontend"), "/proxy/")
			if err != nil {
				t.Fatalf("Parse() error = %v", err)
			}
			if req.Host != tt.wantHost || req.Port != tt.wantPort {
				t.Errorf("destination = %s:%d, want %s:%d", req.Host, req.Port, tt.wantHost, tt.wantPort)
			}
			if req.ForwardTarget != tt.wantFwd {
				t.Errorf("ForwardTarget = %q, want %q", req.ForwardTarget, tt.wantFwd)
			}
		})
	}
}

func TestParse_AbsoluteFormTarget(t *testing.T) {
	req, err := Parse(head("GET http://example.com:81/proxy/a HTTP/1.1"), "/proxy/")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if req.Host != "example.com" || req.Port != 81 {
		t.Errorf("destination = %s:%d, want example.com:81", req.Host, req.Port)
	}
	if req.ForwardTarget != "/a" {
		t.Errorf("ForwardTarget = %q, want %q", req.ForwardTarget, "/a")
	}
}

func TestParse_HostHeaderPort(t *testing.T) {
	tests := []struct {
		name     string
		host     string
		wantHost string
		wantPort int
	}{
		{"no port", "example.com", "example.com", 80},
		{"explicit port", "example.com:8080", "example.com", 8080},
		{"bracketed ipv6", "[::1]:9090", "::1", 9090},
		{"bracketed ipv6 no port", "[::1]", "::1", 80},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := Parse(head("GET /proxy/a HTTP/1.1", "Host: "+tt.host), "/proxy/")
			if err != nil {
				t.Fatalf("Parse() error = %v", err)
			}
			if req.Host != tt.wantHost || req.Port != tt.wantPort {
				t.Errorf("destination = %s:%d, want %s:%d", req.Host, req.Port, tt.wantHost, tt.wantPort)
			}
		})
	}
}

func TestParse_Malformed(t *testing.T) {
	tests := []struct {
		name string
		head []byte
	}{
		{"empty head", []byte("\r\n\r\n")},
		{"short request line", head("GET /proxy/a")},
		{"bad version", head("GET /proxy/a FTP/1.0", "Host: x")},
		{"header without colon", head("GET /proxy/a HTTP/1.1", "Host example.com")},
		{"missing host", head("GET /proxy/a HTTP/1.1")},
		{"empty host", head("GET /proxy/a HTTP/1.1", "Host:")},
		{"continuation line", head("GET /proxy/a HTTP/1.1", "Host: x", " folded")},
		{"bad port", head("GET /proxy/a HTTP/1.1", "Host: x:abc")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.head, "/proxy/")
			if !errors.Is(err, ErrMalformedRequest) {
				t.Errorf("Parse() error = %v, want ErrMalformedRequest", err)
			}
		})
	}
}

func TestHeader_CaseInsensitiveFirstWins(t *testing.T) {
	req, err := Parse(head(
		"GET /proxy/a HTTP/1.1",
		"Host: example.com",
		"X-Token: first",
		"x-token: second",
	), "/proxy/")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if got := req.Header("X-TOKEN"); got != "first" {
		t.Errorf("Header(X-TOKEN) = %q, want %q", got, "first")
	}
	if got := req.Header("Missing"); got != "" {
		t.Errorf("Header(Missing) = %q, want empty", got)
	}
}

func TestRewritten_PlainTarget(t *testing.T) {
	req, err := Parse(head(
		"GET /proxy/a/b?q=1 HTTP/1.1",
		"Host: example.com",
		"Accept: */*",
	), "/proxy/")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	want := "GET /a/b?q=1 HTTP/1.1\r\nHost: example.com\r\nAccept: */*\r\n\r\n"
	if got := string(req.Rewritten()); got != want {
		t.Errorf("Rewritten() = %q, want %q", got, want)
	}
}

func TestRewritten_EmbeddedURLRewritesHost(t *testing.T) {
	req, err := Parse(head(
		"GET /proxy/http://origin.example:8080/a HTTP/1.1",
		"Host: frontend.example",
	), "/proxy/")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	want := "GET /a HTTP/1.1\r\nHost: origin.example:8080\r\n\r\n"
	if got := string(req.Rewritten()); got != want {
		t.Errorf("Rewritten() = %q, want %q", got, want)
	}
}

func TestRewritten_AddsHostWhenAbsent(t *testing.T) {
	req, err := Parse(head("GET /proxy/http://origin.example/ HTTP/1.0"), "/proxy/")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	want := "GET / HTTP/1.0\r\nHost: origin.example\r\n\r\n"
	if got := string(req.Rewritten()); got != want {
		t.Errorf("Rewritten() = %q, want %q", got, want)
	}
}

func TestAddr(t *testing.T) {
	req := &Request{Host: "example.com", Port: 8080}
	if got := req.Addr(); got != "example.com:8080" {
		t.Errorf("Addr() = %q, want %q", got, "example.com:8080")
	}
	req = &Request{Host: "::1", Port: 80}
	if got := req.Addr(); got != "[::1]:80" {
		t.Errorf("Addr() = %q, want %q", got, "[::1]:80")
	}
}
