package net

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Scheme is the custom url scheme of share links.
const Scheme = "localboard"

var ErrBadLink = errors.New("bad share link")

// RoomPath is the hub route that upgrades to a room's websocket.
func RoomPath(room string) string {
	return "/rooms/" + url.PathEscape(room) + "/ws"
}

// ShareLink builds localboard://<addr>/<room>.
func ShareLink(addr, room string) string {
	return fmt.Sprintf("%s://%s/%s", Scheme, addr, url.PathEscape(room))
}

// ParseShareLink turns a share link, or a ws:// room url, into the websocket
// url to dial and the room it names.
func ParseShareLink(link string) (wsURL, room string, err error) {
	u, err := url.Parse(strings.TrimSpace(link))
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrBadLink, err)
	}
	if u.Host == "" {
		return "", "", fmt.Errorf("%w: missing host in %q", ErrBadLink, link)
	}

	switch u.Scheme {
	case Scheme:
		room = strings.Trim(u.Path, "/")
		if room == "" || strings.Contains(room, "/") {
			return "", "", fmt.Errorf("%w: expected %s://host:port/room", ErrBadLink, Scheme)
		}
		return "ws://" + u.Host + RoomPath(room), room, nil

	case "ws", "wss":
		parts := strings.Split(strings.Trim(u.Path, "/"), "/")
		if len(parts) != 3 || parts[0] != "rooms" || parts[2] != "ws" || parts[1] == "" {
			return "", "", fmt.Errorf("%w: expected /rooms/<room>/ws", ErrBadLink)
		}
		return u.String(), parts[1], nil

	default:
		return "", "", fmt.Errorf("%w: unsupported scheme %q", ErrBadLink, u.Scheme)
	}
}
