// ABOUTME: mDNS service discovery package
// ABOUTME: Advertise network sinks and find them from the net output driver
// Package discovery provides mDNS discovery for audiopipe network sinks.
//
// A sink advertises itself as _audiopipe._tcp. The net output driver looks
// one up when it is opened without an explicit device address.
//
// Example:
//
//	sink, err := discovery.Lookup(ctx, 3*time.Second)
//	if err == nil {
//	    fmt.Printf("Found: %s at %s\n", sink.Name, sink.Addr())
//	}
package discovery
