// ABOUTME: Version information for audiopipe binaries
// ABOUTME: Reported by -version flags and in sink handshakes
package version

const (
	Version      = "0.1.0"
	Product      = "audiopipe"
	Manufacturer = "Resonate"
)
