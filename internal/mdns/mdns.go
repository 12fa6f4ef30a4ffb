// Package mdns finds OpenWebRX receivers advertised over DNS-SD.
package mdns

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/grandcat/zeroconf"
)

const (
	DefaultService = "_openwebrx._tcp"
	DefaultDomain  = "local."
	DefaultTimeout = 5 * time.Second

	defaultPath = "/ws/"
)

// Host represents a discovered receiver.
type Host struct {
	Instance  string // Advertised name: "OpenWebRX on shack"
	Hostname  string // DNS hostname: "shack.local."
	Addresses []net.IP
	Port      int
	TXT       []string
}

// TXTValue returns the value of a key=value TXT record.
func (h Host) TXTValue(key string) (string, bool) {
	for _, kv := range h.TXT {
		k, v, ok := strings.Cut(kv, "=")
		if ok && strings.EqualFold(k, key) {
			return v, true
		}
	}
	return "", false
}

// WebsocketURL builds the receiver's websocket endpoint. IPv4 addresses are
// preferred over the hostname; a "path" TXT record overrides /ws/.
func (h Host) WebsocketURL() string {
	host := strings.TrimSuffix(h.Hostname, ".")
	for _, ip := range h.Addresses {
		if ip.To4() != nil {
			host = ip.String()
			break
		}
	}
	if host == "" && len(h.Addresses) > 0 {
		host = h.Addresses[0].String()
	}
	path := defaultPath
	if p, ok := h.TXTValue("path"); ok && p != "" {
		path = "/" + strings.TrimPrefix(p, "/")
	}
	u := url.URL{Scheme: "ws", Host: net.JoinHostPort(host, fmt.Sprint(h.Port)), Path: path}
	return u.String()
}

// Discover browses for service in the local domain until timeout or ctx
// ends, returning deduplicated hosts ordered by hostname and port.
func Discover(ctx context.Context, service string, timeout time.Duration) ([]Host, error) {
	if service == "" {
		service = DefaultService
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil, fmt.Errorf("resolver error: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	entries := make(chan *zeroconf.ServiceEntry)
	result := make(chan []Host, 1)
	go func() { result <- collect(ctx, entries) }()

	if err := resolver.Browse(ctx, service, DefaultDomain, entries); err != nil {
		return nil, fmt.Errorf("browse error: %w", err)
	}
	return <-result, nil
}

// collect drains entries until the channel closes or ctx ends.
func collect(ctx context.Context, entries <-chan *zeroconf.ServiceEntry) []Host {
	seen := make(map[string]Host)
	for {
		select {
		case e, ok := <-entries:
			if !ok {
				return sortedHosts(seen)
			}
			if e == nil {
				continue
			}
			h := hostFromEntry(e)
			seen[fmt.Sprintf("%s|%d", h.Hostname, h.Port)] = h
		case <-ctx.Done():
			return sortedHosts(seen)
		}
	}
}

func hostFromEntry(e *zeroconf.ServiceEntry) Host {
	addrs := make([]net.IP, 0, len(e.AddrIPv4)+len(e.AddrIPv6))
	addrs = append(addrs, e.AddrIPv4...)
	addrs = append(addrs, e.AddrIPv6...)
	return Host{
		Instance:  cleanInstance(e.Instance),
		Hostname:  e.HostName,
		Addresses: addrs,
		Port:      e.Port,
		TXT:       append([]string{}, e.Text...),
	}
}

func sortedHosts(m map[string]Host) []Host {
	out := make([]Host, 0, len(m))
	for _, h := range m {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Hostname != out[j].Hostname {
			return out[i].Hostname < out[j].Hostname
		}
		return out[i].Port < out[j].Port
	})
	return out
}

// cleanInstance removes Zeroconf escape sequences: "\ " => " "
func cleanInstance(s string) string {
	return strings.ReplaceAll(s, `\ `, " ")
}
