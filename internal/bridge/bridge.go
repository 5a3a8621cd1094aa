// WSL Dev Bridge - Port Bridge
// Host side: maps the peer-facing adapter address onto the browser's
// loopback-only debug listener via netsh portproxy. The guest-side relay
// lives in relay.go.

package bridge

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"
)

// Mapping forwards listen address:port to target address:port.
// The listen side must be the peer-facing address and the target side the
// browser's loopback listener. Reversed, the proxy would forward to
// itself and chew through ephemeral ports, so construction rejects it.
type Mapping struct {
	ListenAddress string
	ListenPort    int
	TargetAddress string
	TargetPort    int
}

// InvalidMappingDirectionError flags the loop-forming misconfiguration of
// listening on loopback. A programming error, caught at construction.
type InvalidMappingDirectionError struct {
	ListenAddress string
}

func (e *InvalidMappingDirectionError) Error() string {
	return fmt.Sprintf("mapping listens on loopback address %s; listen side must be the peer-facing address", e.ListenAddress)
}

// NewMapping validates the forwarding direction.
func NewMapping(listenAddr string, listenPort int, targetAddr string, targetPort int) (Mapping, error) {
	if listenPort <= 0 || listenPort > 65535 {
		return Mapping{}, fmt.Errorf("listen port %d out of range", listenPort)
	}
	if targetPort <= 0 || targetPort > 65535 {
		return Mapping{}, fmt.Errorf("target port %d out of range", targetPort)
	}
	if isLoopback(listenAddr) {
		return Mapping{}, &InvalidMappingDirectionError{ListenAddress: listenAddr}
	}
	if net.ParseIP(listenAddr) == nil {
		return Mapping{}, fmt.Errorf("listen address %q is not a valid IP", listenAddr)
	}
	if net.ParseIP(targetAddr) == nil {
		return Mapping{}, fmt.Errorf("target address %q is not a valid IP", targetAddr)
	}
	return Mapping{
		ListenAddress: listenAddr,
		ListenPort:    listenPort,
		TargetAddress: targetAddr,
		TargetPort:    targetPort,
	}, nil
}

func isLoopback(addr string) bool {
	if strings.EqualFold(strings.TrimSpace(addr), "localhost") {
		return true
	}
	ip := net.ParseIP(addr)
	return ip != nil && ip.IsLoopback()
}

// PortProxy manages netsh v4tov4 portproxy entries on the host.
type PortProxy struct {
	run func(ctx context.Context, args ...string) (string, error)
}

// NewPortProxy returns a proxy manager bound to the real netsh binary.
func NewPortProxy() *PortProxy {
	return &PortProxy{run: runNetsh}
}

// Expose publishes the mapping. Any pre-existing entry on the same listen
// address and port is deleted first so repeated runs never stack
// conflicting entries.
func (p *PortProxy) Expose(ctx context.Context, m Mapping) error {
	// Best effort removal; "does not exist" is the common case.
	_, _ = p.run(ctx,
		"interface", "portproxy", "delete", "v4tov4",
		"listenaddress="+m.ListenAddress,
		"listenport="+strconv.Itoa(m.ListenPort),
	)

	out, err := p.run(ctx,
		"interface", "portproxy", "add", "v4tov4",
		"listenaddress="+m.ListenAddress,
		"listenport="+strconv.Itoa(m.ListenPort),
		"connectaddress="+m.TargetAddress,
		"connectport="+strconv.Itoa(m.TargetPort),
	)
	if err != nil {
		return fmt.Errorf("portproxy add %s:%d -> %s:%d failed: %w (%s)",
			m.ListenAddress, m.ListenPort, m.TargetAddress, m.TargetPort, err, strings.TrimSpace(out))
	}

	log.WithFields(log.Fields{
		"listen": fmt.Sprintf("%s:%d", m.ListenAddress, m.ListenPort),
		"target": fmt.Sprintf("%s:%d", m.TargetAddress, m.TargetPort),
	}).Info("Port bridge exposed")
	return nil
}

// Retract removes the mapping. A missing entry is success.
func (p *PortProxy) Retract(ctx context.Context, m Mapping) error {
	out, err := p.run(ctx,
		"interface", "portproxy", "delete", "v4tov4",
		"listenaddress="+m.ListenAddress,
		"listenport="+strconv.Itoa(m.ListenPort),
	)
	if err != nil {
		if strings.Contains(strings.ToLower(out), "does not exist") {
			return nil
		}
		return fmt.Errorf("portproxy delete %s:%d failed: %w (%s)",
			m.ListenAddress, m.ListenPort, err, strings.TrimSpace(out))
	}
	log.WithFields(log.Fields{
		"listen": fmt.Sprintf("%s:%d", m.ListenAddress, m.ListenPort),
	}).Info("Port bridge retracted")
	return nil
}
