package proxycore

import (
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/relaymesh/proxyd/internal/proxyerr"
)

// EndpointKind distinguishes the three address forms a target can take.
type EndpointKind int

const (
	// KindV4 is a literal IPv4 address.
	KindV4 EndpointKind = iota
	// KindV6 is a literal IPv6 address.
	KindV6
	// KindHost is a DNS name resolved by whichever connector handles it.
	KindHost
)

// Endpoint is a tagged union of {V4(addr,port), V6(addr,port), Host(name,port)},
// exactly as used by connectors and handlers to name a dial target.
type Endpoint struct {
	Kind EndpointKind
	IP   net.IP
	Host string
	Port uint16
}

// V4Endpoint builds a literal IPv4 endpoint.
func V4Endpoint(ip net.IP, port uint16) Endpoint {
	return Endpoint{Kind: KindV4, IP: ip.To4(), Port: port}
}

// V6Endpoint builds a literal IPv6 endpoint.
func V6Endpoint(ip net.IP, port uint16) Endpoint {
	return Endpoint{Kind: KindV6, IP: ip.To16(), Port: port}
}

// HostEndpoint builds a name-based endpoint, resolved by the connector.
func HostEndpoint(host string, port uint16) Endpoint {
	return Endpoint{Kind: KindHost, Host: host, Port: port}
}

// ParseEndpoint parses strings of the form "ADDR:PORT" into an Endpoint,
// classifying ADDR as V4, V6, or Host depending on whether it parses as a
// literal IP address.
func ParseEndpoint(s string) (Endpoint, error) {
	host, portStr, err := net.SplitHostPort(s)
	if err != nil {
		return Endpoint{}, proxyerr.Wrap("parse_endpoint", proxyerr.BadAddress, err)
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return Endpoint{}, proxyerr.Wrap("parse_endpoint", proxyerr.BadAddress, err)
	}
	if ip := net.ParseIP(host); ip != nil {
		if v4 := ip.To4(); v4 != nil {
			return V4Endpoint(v4, uint16(port)), nil
		}
		return V6Endpoint(ip, uint16(port)), nil
	}
	return HostEndpoint(host, uint16(port)), nil
}

func (e Endpoint) String() string {
	switch e.Kind {
	case KindV4, KindV6:
		return net.JoinHostPort(e.IP.String(), strconv.Itoa(int(e.Port)))
	case KindHost:
		return net.JoinHostPort(e.Host, strconv.Itoa(int(e.Port)))
	default:
		return fmt.Sprintf("<invalid endpoint kind %d>", e.Kind)
	}
}

// IsLiteral reports whether the endpoint names a literal IP address rather
// than a host name.
func (e Endpoint) IsLiteral() bool {
	return e.Kind == KindV4 || e.Kind == KindV6
}

// NetIP renders a literal endpoint's address and port as a *net.TCPAddr;
// callers must only use this for KindV4/KindV6 endpoints.
func (e Endpoint) NetIP() *net.TCPAddr {
	return &net.TCPAddr{IP: e.IP, Port: int(e.Port)}
}

// HostPort renders the endpoint the way net.Dial expects, for any kind.
func (e Endpoint) HostPort() string {
	if e.Kind == KindHost {
		return net.JoinHostPort(e.Host, strconv.Itoa(int(e.Port)))
	}
	return net.JoinHostPort(e.IP.String(), strconv.Itoa(int(e.Port)))
}

// trimZoneSuffix strips an IPv6 zone suffix ("%eth0") some resolvers emit;
// literal endpoints in this engine never carry one.
func trimZoneSuffix(host string) string {
	if i := strings.IndexByte(host, '%'); i >= 0 {
		return host[:i]
	}
	return host
}
