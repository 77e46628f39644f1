package system

import (
	"net"

	"github.com/relaymesh/proxyd/internal/proxycore"
)

// udpDatagram wraps a *net.UDPConn as a proxycore.Datagram.
type udpDatagram struct {
	conn  *net.UDPConn
	entry *proxycore.Entry
}

func newUDPDatagram(conn *net.UDPConn, timers *proxycore.TimerList) *udpDatagram {
	d := &udpDatagram{conn: conn}
	d.entry = timers.Register(func() { conn.Close() })
	return d
}

func (d *udpDatagram) ReceiveFrom(p []byte) (int, proxycore.Endpoint, error) {
	n, addr, err := d.conn.ReadFromUDP(p)
	if n > 0 {
		d.entry.Touch()
	}
	if err != nil {
		return n, proxycore.Endpoint{}, err
	}
	return n, endpointFromUDPAddr(addr), nil
}

func (d *udpDatagram) SendTo(p []byte, to proxycore.Endpoint) (int, error) {
	addr, err := udpAddrFromEndpoint(to)
	if err != nil {
		return 0, err
	}
	n, err := d.conn.WriteToUDP(p, addr)
	if n > 0 {
		d.entry.Touch()
	}
	return n, err
}

func (d *udpDatagram) Close() error {
	d.entry.Cancel()
	return d.conn.Close()
}

func endpointFromUDPAddr(addr *net.UDPAddr) proxycore.Endpoint {
	if v4 := addr.IP.To4(); v4 != nil {
		return proxycore.V4Endpoint(v4, uint16(addr.Port))
	}
	return proxycore.V6Endpoint(addr.IP, uint16(addr.Port))
}

func udpAddrFromEndpoint(ep proxycore.Endpoint) (*net.UDPAddr, error) {
	switch ep.Kind {
	case proxycore.KindV4, proxycore.KindV6:
		return &net.UDPAddr{IP: ep.IP, Port: int(ep.Port)}, nil
	default:
		addrs, err := net.LookupIP(ep.Host)
		if err != nil || len(addrs) == 0 {
			return nil, err
		}
		return &net.UDPAddr{IP: addrs[0], Port: int(ep.Port)}, nil
	}
}
