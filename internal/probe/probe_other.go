// WSL Dev Bridge - Guest-Side Host Discovery
// From inside WSL the Windows host is the DNS nameserver WSL injects into
// /etc/resolv.conf, with the default-route gateway as fallback.

//go:build !windows

package probe

import (
	"context"
	"net"
	"os"
	"os/exec"
	"strings"

	log "github.com/sirupsen/logrus"
)

const resolvConfPath = "/etc/resolv.conf"

func guestGatewayAddress(ctx context.Context) (string, error) {
	if data, err := os.ReadFile(resolvConfPath); err == nil {
		if addr, ok := parseResolvConf(string(data)); ok {
			log.WithField("address", addr).Debug("Host address from resolv.conf")
			return addr, nil
		}
	}

	// Fallback: default route gateway. WSL NAT mode routes everything
	// through the host-side virtual switch.
	out, err := exec.CommandContext(ctx, "ip", "route", "show", "default").Output()
	if err == nil {
		if addr, ok := parseDefaultRoute(string(out)); ok {
			log.WithField("address", addr).Debug("Host address from default route")
			return addr, nil
		}
	}

	return "", &TopologyUnresolvedError{Reason: "no nameserver in " + resolvConfPath + " and no default route gateway"}
}

func parseResolvConf(data string) (string, bool) {
	for _, line := range strings.Split(data, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "nameserver") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) >= 2 && net.ParseIP(fields[1]) != nil {
			return fields[1], true
		}
	}
	return "", false
}

// parseDefaultRoute extracts the gateway from "default via <IP> dev eth0".
func parseDefaultRoute(out string) (string, bool) {
	fields := strings.Fields(strings.TrimSpace(out))
	if len(fields) >= 3 && fields[0] == "default" && fields[1] == "via" && net.ParseIP(fields[2]) != nil {
		return fields[2], true
	}
	return "", false
}

// hostAdapterAddress is never reached off Windows; the role dispatch in
// Probe only calls it for RoleHost.
func hostAdapterAddress(ctx context.Context) (string, string, error) {
	return "", "", &TopologyUnresolvedError{Reason: "host discovery invoked on non-windows"}
}
