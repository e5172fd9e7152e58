// ABOUTME: mDNS service discovery for audiopipe network sinks
// ABOUTME: Handles both advertisement (sink) and browsing (net output driver)
package discovery

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"strconv"
	"time"

	"github.com/hashicorp/mdns"
)

// ServiceType is the DNS-SD service type sinks advertise
const ServiceType = "_audiopipe._tcp"

// DefaultBrowseTimeout bounds a single mDNS query
const DefaultBrowseTimeout = 3 * time.Second

// ErrNoSink is returned when a lookup finds nothing before it times out
var ErrNoSink = errors.New("no audiopipe sink found")

// Config holds discovery configuration
type Config struct {
	ServiceName string
	Port        int
	Path        string // advertised in TXT as path=...
}

// Manager handles mDNS operations
type Manager struct {
	config Config
	ctx    context.Context
	cancel context.CancelFunc
	sinks  chan *SinkInfo
}

// SinkInfo describes a discovered sink
type SinkInfo struct {
	Name string
	Host string
	Port int
}

// Addr returns host:port for dialing
func (s *SinkInfo) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// NewManager creates a discovery manager
func NewManager(config Config) *Manager {
	ctx, cancel := context.WithCancel(context.Background())

	return &Manager{
		config: config,
		ctx:    ctx,
		cancel: cancel,
		sinks:  make(chan *SinkInfo, 10),
	}
}

// Advertise advertises this sink via mDNS until Stop is called
func (m *Manager) Advertise() error {
	ips, err := getLocalIPs()
	if err != nil {
		return fmt.Errorf("failed to get local IPs: %w", err)
	}

	var txt []string
	if m.config.Path != "" {
		txt = append(txt, "path="+m.config.Path)
	}

	service, err := mdns.NewMDNSService(
		m.config.ServiceName,
		ServiceType,
		"",
		"",
		m.config.Port,
		ips,
		txt,
	)
	if err != nil {
		return fmt.Errorf("failed to create service: %w", err)
	}

	server, err := mdns.NewServer(&mdns.Config{Zone: service})
	if err != nil {
		return fmt.Errorf("failed to create mdns server: %w", err)
	}

	log.Printf("Advertising mDNS service: %s on port %d (type: %s)", m.config.ServiceName, m.config.Port, ServiceType)

	go func() {
		<-m.ctx.Done()
		server.Shutdown()
	}()

	return nil
}

// Browse searches for sinks until Stop is called
func (m *Manager) Browse() {
	go m.browseLoop()
}

// browseLoop repeats queries and forwards every answer
func (m *Manager) browseLoop() {
	for {
		select {
		case <-m.ctx.Done():
			return
		default:
		}

		entries := make(chan *mdns.ServiceEntry, 10)
		done := make(chan struct{})

		go func() {
			defer close(done)
			for entry := range entries {
				sink := entryToSink(entry)
				if sink == nil {
					continue
				}
				log.Printf("Discovered sink: %s at %s", sink.Name, sink.Addr())

				select {
				case m.sinks <- sink:
				case <-m.ctx.Done():
					return
				}
			}
		}()

		if err := mdns.Query(queryParams(DefaultBrowseTimeout, entries)); err != nil {
			log.Printf("mDNS query failed: %v", err)
		}
		close(entries)
		<-done
	}
}

// Sinks returns the channel of discovered sinks
func (m *Manager) Sinks() <-chan *SinkInfo {
	return m.sinks
}

// Stop stops advertising and browsing
func (m *Manager) Stop() {
	m.cancel()
}

// Lookup runs one query and returns the first sink that answers
func Lookup(ctx context.Context, timeout time.Duration) (*SinkInfo, error) {
	if timeout <= 0 {
		timeout = DefaultBrowseTimeout
	}

	entries := make(chan *mdns.ServiceEntry, 10)
	done := make(chan error, 1)
	go func() {
		done <- mdns.Query(queryParams(timeout, entries))
	}()

	for {
		select {
		case entry := <-entries:
			if sink := entryToSink(entry); sink != nil {
				return sink, nil
			}
		case err := <-done:
			if err != nil {
				return nil, fmt.Errorf("mdns query failed: %w", err)
			}
			return nil, ErrNoSink
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func queryParams(timeout time.Duration, entries chan *mdns.ServiceEntry) *mdns.QueryParam {
	return &mdns.QueryParam{
		Service:     ServiceType,
		Domain:      "local",
		Timeout:     timeout,
		Entries:     entries,
		DisableIPv6: true,
	}
}

// entryToSink converts an answer, skipping entries without an IPv4 address
func entryToSink(entry *mdns.ServiceEntry) *SinkInfo {
	if entry == nil || entry.AddrV4 == nil {
		return nil
	}
	return &SinkInfo{
		Name: entry.Name,
		Host: entry.AddrV4.String(),
		Port: entry.Port,
	}
}

// getLocalIPs returns local IP addresses
func getLocalIPs() ([]net.IP, error) {
	ips := []net.IP{}

	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}

	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}

		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}

		for _, addr := range addrs {
			if ipnet, ok := addr.(*net.IPNet); ok && !ipnet.IP.IsLoopback() {
				if ipnet.IP.To4() != nil {
					ips = append(ips, ipnet.IP)
				}
			}
		}
	}

	return ips, nil
}
