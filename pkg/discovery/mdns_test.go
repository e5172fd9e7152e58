// ABOUTME: Tests for mDNS service discovery
// ABOUTME: Validates Manager lifecycle and entry conversion
package discovery

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/hashicorp/mdns"
)

func TestNewManager(t *testing.T) {
	manager := NewManager(Config{ServiceName: "test-sink", Port: 8928, Path: "/audiopipe"})
	defer manager.Stop()

	if manager.config.ServiceName != "test-sink" {
		t.Errorf("Expected ServiceName 'test-sink', got '%s'", manager.config.ServiceName)
	}
	if manager.config.Port != 8928 {
		t.Errorf("Expected Port 8928, got %d", manager.config.Port)
	}
	if manager.Sinks() == nil {
		t.Error("Sinks() returned nil channel")
	}
}

func TestManagerStop(t *testing.T) {
	manager := NewManager(Config{ServiceName: "test", Port: 8080})
	manager.Stop()

	select {
	case <-manager.ctx.Done():
	case <-time.After(100 * time.Millisecond):
		t.Error("Context should be cancelled after Stop()")
	}
}

func TestGetLocalIPs(t *testing.T) {
	ips, err := getLocalIPs()
	if err != nil {
		t.Fatalf("getLocalIPs failed: %v", err)
	}
	if ips == nil {
		t.Error("getLocalIPs returned nil slice")
	}

	for _, ip := range ips {
		if ip.To4() == nil {
			t.Errorf("getLocalIPs returned non-IPv4 address: %v", ip)
		}
		if ip.IsLoopback() {
			t.Errorf("getLocalIPs returned loopback address: %v", ip)
		}
	}
}

func TestEntryToSink(t *testing.T) {
	if entryToSink(nil) != nil {
		t.Error("nil entry should be skipped")
	}
	if entryToSink(&mdns.ServiceEntry{Name: "v6 only", Port: 1}) != nil {
		t.Error("entry without IPv4 should be skipped")
	}

	sink := entryToSink(&mdns.ServiceEntry{
		Name:   "Kitchen._audiopipe._tcp.local.",
		AddrV4: net.IPv4(192, 168, 1, 100),
		Port:   8928,
	})
	if sink == nil {
		t.Fatal("entry with IPv4 should convert")
	}
	if sink.Addr() != "192.168.1.100:8928" {
		t.Errorf("Addr() = %s", sink.Addr())
	}
}

func TestLookupCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := Lookup(ctx, time.Second); err == nil {
		t.Error("Lookup with a cancelled context should fail")
	}
}
