package mdns

import (
	"context"
	"net"
	"testing"

	"github.com/grandcat/zeroconf"
)

func entry(instance, host string, port int, v4 ...string) *zeroconf.ServiceEntry {
	e := zeroconf.NewServiceEntry(instance, DefaultService, DefaultDomain)
	e.HostName = host
	e.Port = port
	for _, a := range v4 {
		e.AddrIPv4 = append(e.AddrIPv4, net.ParseIP(a))
	}
	return e
}

func TestCollectDeduplicatesAndSorts(t *testing.T) {
	entries := make(chan *zeroconf.ServiceEntry, 4)
	entries <- entry(`OpenWebRX\ on\ shack`, "shack.local.", 8073, "192.168.1.20")
	entries <- nil
	entries <- entry("attic", "attic.local.", 8073, "192.168.1.30")
	entries <- entry(`OpenWebRX\ on\ shack`, "shack.local.", 8073, "192.168.1.21")
	close(entries)

	hosts := collect(context.Background(), entries)
	if len(hosts) != 2 {
		t.Fatalf("expected 2 hosts, got %d", len(hosts))
	}
	if hosts[0].Hostname != "attic.local." || hosts[1].Instance != "OpenWebRX on shack" {
		t.Fatalf("unexpected hosts %+v", hosts)
	}
	if got := hosts[1].Addresses[0].String(); got != "192.168.1.21" {
		t.Fatalf("expected latest entry to win, got %s", got)
	}
}

func TestCollectStopsOnContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if hosts := collect(ctx, make(chan *zeroconf.ServiceEntry)); len(hosts) != 0 {
		t.Fatalf("expected no hosts, got %+v", hosts)
	}
}

func TestWebsocketURL(t *testing.T) {
	cases := []struct {
		name string
		host Host
		want string
	}{
		{"ipv4 preferred", Host{Hostname: "shack.local.", Port: 8073, Addresses: []net.IP{net.ParseIP("fe80::1"), net.ParseIP("10.0.0.5")}}, "ws://10.0.0.5:8073/ws/"},
		{"hostname fallback", Host{Hostname: "shack.local.", Port: 8073}, "ws://shack.local:8073/ws/"},
		{"ipv6 only", Host{Port: 80, Addresses: []net.IP{net.ParseIP("fe80::1")}}, "ws://[fe80::1]:80/ws/"},
		{"txt path", Host{Hostname: "rx.local.", Port: 8080, TXT: []string{"version=1.2", "path=owrx/ws/"}}, "ws://rx.local:8080/owrx/ws/"},
	}
	for _, tc := range cases {
		if got := tc.host.WebsocketURL(); got != tc.want {
			t.Fatalf("%s: got %s want %s", tc.name, got, tc.want)
		}
	}
}

func TestTXTValue(t *testing.T) {
	h := Host{TXT: []string{"Version=1.2.0", "flag"}}
	if v, ok := h.TXTValue("version"); !ok || v != "1.2.0" {
		t.Fatalf("unexpected %q %v", v, ok)
	}
	if _, ok := h.TXTValue("flag"); ok {
		t.Fatalf("bare record should not match")
	}
}
