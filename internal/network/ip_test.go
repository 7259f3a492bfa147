package network

import (
	"net"
	"testing"
)

func TestLocalIP(t *testing.T) {
	ip := LocalIP()
	if ip == "" {
		t.Fatal("expected a non-empty IP")
	}
	if net.ParseIP(ip) == nil {
		t.Errorf("LocalIP returned %q, not a valid IP", ip)
	}
}
