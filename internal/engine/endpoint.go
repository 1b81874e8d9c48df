package engine

import (
	"strings"
)

// DefaultSocket is used when no endpoint is configured.
const DefaultSocket = "/var/run/docker.sock"

// Scheme is the transport an endpoint resolves to.
type Scheme string

const (
	SchemeUnix    Scheme = "unix"
	SchemeNpipe   Scheme = "npipe"
	SchemeHTTP    Scheme = "http"
	SchemeHTTPS   Scheme = "https"
	SchemeUnknown Scheme = "unknown"
)

// ConnectMode says when a connection is first established.
type ConnectMode string

const (
	// Eager endpoints are opened synchronously by Connect.
	Eager ConnectMode = "eager"
	// Lazy endpoints are not contacted until the first API call.
	Lazy ConnectMode = "lazy"
)

// Endpoint is a classified engine address. It is a comparable value.
type Endpoint struct {
	Scheme Scheme
	Mode   ConnectMode
	// Address is the socket or pipe path for eager endpoints and host:port
	// for lazy ones.
	Address string
	// Raw is the string Classify was given.
	Raw string
}

// Classify parses an endpoint string without performing any I/O.
//
//	unix:///path, npipe:////./pipe/x      eager
//	tcp://host:port                        lazy, rewritten to http
//	http://host:port, https://host:port    lazy
//	\\.\pipe\x or //./pipe/x               eager named pipe, on every platform
//	/any/other/path                        eager unix socket
//	""                                     eager unix socket at DefaultSocket
//
// Any other scheme classifies as SchemeUnknown and is rejected by Connect.
func Classify(raw string) Endpoint {
	s := strings.TrimSpace(raw)
	if s == "" {
		return Endpoint{Scheme: SchemeUnix, Mode: Eager, Address: DefaultSocket, Raw: raw}
	}
	if strings.HasPrefix(s, `\\`) || strings.HasPrefix(s, "//") {
		return Endpoint{Scheme: SchemeNpipe, Mode: Eager, Address: s, Raw: raw}
	}

	scheme, rest, ok := strings.Cut(s, "://")
	if !ok {
		return Endpoint{Scheme: SchemeUnix, Mode: Eager, Address: s, Raw: raw}
	}

	switch strings.ToLower(scheme) {
	case "unix":
		return Endpoint{Scheme: SchemeUnix, Mode: Eager, Address: rest, Raw: raw}
	case "npipe":
		return Endpoint{Scheme: SchemeNpipe, Mode: Eager, Address: rest, Raw: raw}
	case "tcp", "http":
		return Endpoint{Scheme: SchemeHTTP, Mode: Lazy, Address: hostPort(rest), Raw: raw}
	case "https":
		return Endpoint{Scheme: SchemeHTTPS, Mode: Lazy, Address: hostPort(rest), Raw: raw}
	}
	return Endpoint{Scheme: SchemeUnknown, Mode: Lazy, Address: rest, Raw: raw}
}

// hostPort drops any path from a host[:port]/path remainder.
func hostPort(rest string) string {
	if i := strings.IndexByte(rest, '/'); i >= 0 {
		return rest[:i]
	}
	return rest
}

// Eager reports whether Connect opens this endpoint synchronously.
func (e Endpoint) Eager() bool { return e.Mode == Eager }

// String renders the endpoint in canonical URI form.
func (e Endpoint) String() string {
	switch e.Scheme {
	case SchemeUnix:
		return "unix://" + e.Address
	case SchemeNpipe:
		return "npipe://" + strings.ReplaceAll(e.Address, `\`, "/")
	case SchemeHTTP, SchemeHTTPS:
		return string(e.Scheme) + "://" + e.Address
	}
	return e.Raw
}
