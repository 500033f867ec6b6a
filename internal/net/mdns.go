package net

import (
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"github.com/golang/glog"
	"github.com/hashicorp/mdns"
)

const serviceType = "_localboard._tcp"

// Service is a room found on the local network.
type Service struct {
	Name string
	Addr string
	Room string
}

// Link returns the share link that joins the service's room.
func (s Service) Link() string {
	return ShareLink(s.Addr, s.Room)
}

// Advertise announces a hosted room. The returned server must be shut down
// when the host stops.
func Advertise(room string, port int) (*mdns.Server, error) {
	host, err := os.Hostname()
	if err != nil {
		return nil, fmt.Errorf("could not get hostname: %w", err)
	}

	info := []string{"LocalBoard", "room=" + room}
	service, err := mdns.NewMDNSService(
		host,
		serviceType,
		"",
		"",
		port,
		[]net.IP{OutgoingIP()},
		info,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create mDNS service: %w", err)
	}

	server, err := mdns.NewServer(&mdns.Config{Zone: service})
	if err != nil {
		return nil, fmt.Errorf("failed to start mDNS server: %w", err)
	}
	glog.Infof("[mdns] advertising room %s on port %d", room, port)
	return server, nil
}

// Browse queries the network for timeout and reports every room found.
func Browse(timeout time.Duration, found func(Service)) error {
	entries := make(chan *mdns.ServiceEntry, 8)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for e := range entries {
			if e.AddrV4 == nil || e.Port == 0 {
				continue
			}
			svc := Service{
				Name: e.Name,
				Addr: fmt.Sprintf("%s:%d", e.AddrV4.String(), e.Port),
			}
			for _, field := range e.InfoFields {
				if room, ok := strings.CutPrefix(field, "room="); ok {
					svc.Room = room
				}
			}
			if svc.Room == "" {
				glog.V(2).Infof("[mdns] %s has no room, skipping", e.Name)
				continue
			}
			found(svc)
		}
	}()

	err := mdns.Query(&mdns.QueryParam{
		Service:     serviceType,
		Timeout:     timeout,
		Entries:     entries,
		DisableIPv6: true,
	})
	close(entries)
	<-done
	if err != nil {
		return fmt.Errorf("mdns query: %w", err)
	}
	return nil
}
