package net

import (
	"net"
	"strconv"

	"github.com/golang/glog"
)

// OutgoingIP returns the IPv4 address other machines on the LAN should use
// to reach this host. The routing table is consulted first, then the
// interfaces, and loopback is the last resort.
func OutgoingIP() net.IP {
	if conn, err := net.Dial("udp4", "8.8.8.8:80"); err == nil {
		defer conn.Close()
		if ip := conn.LocalAddr().(*net.UDPAddr).IP.To4(); ip != nil {
			return ip
		}
	}
	if ip := interfaceIPv4(); ip != nil {
		return ip
	}
	glog.Warning("[net] no LAN address, share links will use loopback")
	return net.IPv4(127, 0, 0, 1).To4()
}

func interfaceIPv4() net.IP {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil
	}
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, _ := iface.Addrs()
		for _, a := range addrs {
			if ipnet, ok := a.(*net.IPNet); ok && ipnet.IP.To4() != nil {
				return ipnet.IP.To4()
			}
		}
	}
	return nil
}

// HostLink is the share link for a room served on port of this host.
func HostLink(port int, room string) string {
	return ShareLink(net.JoinHostPort(OutgoingIP().String(), strconv.Itoa(port)), room)
}
