// WSL Dev Bridge - Environment Probe
// Determines which side of the Windows/WSL boundary the process runs on
// and discovers the peer's address for that side.

package probe

import (
	"context"
	"fmt"
	"net"
	"os"
	"runtime"
	"strings"

	log "github.com/sirupsen/logrus"
)

// Role identifies which side of the host/guest boundary we are on.
type Role int

const (
	// RoleUnknown - neither a Windows host nor a WSL guest (native Linux, macOS).
	RoleUnknown Role = iota
	// RoleHost - Windows side, owns the browser and the port bridge.
	RoleHost
	// RoleGuest - WSL side, reaches the browser through the bridge.
	RoleGuest
)

func (r Role) String() string {
	switch r {
	case RoleHost:
		return "host"
	case RoleGuest:
		return "guest"
	default:
		return "unknown"
	}
}

// Topology describes the discovered host/guest layout for one run.
// It is recomputed on every invocation and never persisted: the virtual
// adapter address changes across reboots, so a cached value is stale by
// definition.
type Topology struct {
	Role             Role
	PeerAddress      string
	PeerAddressRange string
	AdapterName      string
}

// TopologyUnresolvedError indicates the virtual network layer could not be
// found. This requires user action (start WSL at least once), so it is
// reported rather than retried.
type TopologyUnresolvedError struct {
	Reason string
}

func (e *TopologyUnresolvedError) Error() string {
	return fmt.Sprintf("topology unresolved: %s", e.Reason)
}

// Remediation returns the user-facing hint for this failure.
func (e *TopologyUnresolvedError) Remediation() string {
	return "make sure WSL is installed and has been started at least once (run `wsl.exe` once), then retry"
}

const procVersionPath = "/proc/version"

// Probe determines the current role and discovers the peer address.
func Probe(ctx context.Context) (Topology, error) {
	role := detectRole()

	log.WithField("role", role.String()).Debug("Environment role detected")

	switch role {
	case RoleHost:
		addr, adapter, err := hostAdapterAddress(ctx)
		if err != nil {
			return Topology{Role: RoleHost}, err
		}
		rng, err := DeriveRange(addr)
		if err != nil {
			return Topology{Role: RoleHost}, err
		}
		return Topology{
			Role:             RoleHost,
			PeerAddress:      addr,
			PeerAddressRange: rng,
			AdapterName:      adapter,
		}, nil
	case RoleGuest:
		addr, err := guestGatewayAddress(ctx)
		if err != nil {
			return Topology{Role: RoleGuest}, err
		}
		rng, err := DeriveRange(addr)
		if err != nil {
			return Topology{Role: RoleGuest}, err
		}
		return Topology{
			Role:             RoleGuest,
			PeerAddress:      addr,
			PeerAddressRange: rng,
		}, nil
	default:
		return Topology{Role: RoleUnknown}, nil
	}
}

// detectRole inspects OS markers rather than assuming a side. A Linux
// kernel built by Microsoft identifies WSL; anything else on Linux is a
// plain native environment with no boundary to bridge.
func detectRole() Role {
	switch runtime.GOOS {
	case "windows":
		return RoleHost
	case "linux":
		data, err := os.ReadFile(procVersionPath)
		if err != nil {
			return RoleUnknown
		}
		if isWSLKernel(string(data)) {
			return RoleGuest
		}
		return RoleUnknown
	default:
		return RoleUnknown
	}
}

func isWSLKernel(version string) bool {
	v := strings.ToLower(version)
	return strings.Contains(v, "microsoft") || strings.Contains(v, "wsl")
}

// DeriveRange maps an adapter address to the /16 used for firewall scoping.
// The WSL virtual subnet is reassigned on reboot but stays inside the same
// private /16 family; taking the first two octets is a deliberate
// approximation of the subnet, not a computed mask.
func DeriveRange(addr string) (string, error) {
	ip := net.ParseIP(addr)
	if ip == nil {
		return "", fmt.Errorf("invalid peer address %q", addr)
	}
	v4 := ip.To4()
	if v4 == nil {
		return "", fmt.Errorf("peer address %q is not IPv4", addr)
	}
	return fmt.Sprintf("%d.%d.0.0/16", v4[0], v4[1]), nil
}
