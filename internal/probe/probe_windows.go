// WSL Dev Bridge - Host-Side Adapter Discovery
// Finds the vEthernet adapter that faces the WSL guest and reads its
// IPv4 address.

//go:build windows

package probe

import (
	"context"
	"fmt"
	"net"
	"os/exec"
	"strings"

	log "github.com/sirupsen/logrus"
)

// adapterAliasPattern matches both "vEthernet (WSL)" and the newer
// "vEthernet (WSL (Hyper-V firewall))" naming. Substring match on purpose:
// the exact alias varies across Windows builds.
const adapterAliasPattern = "*WSL*"

// hostAdapterAddress discovers the WSL virtual adapter's IPv4 address via
// PowerShell. Get-NetIPAddress is the only reliable source for the alias;
// the Go net package reports the address but not the friendly adapter name.
func hostAdapterAddress(ctx context.Context) (addr, adapter string, err error) {
	script := fmt.Sprintf(
		"(Get-NetIPAddress -InterfaceAlias '%s' -AddressFamily IPv4 | Select-Object -First 1 | ForEach-Object { \"$($_.IPAddress) $($_.InterfaceAlias)\" })",
		adapterAliasPattern,
	)

	cmd := exec.CommandContext(ctx, "powershell", "-NoProfile", "-NonInteractive", "-Command", script)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return "", "", &TopologyUnresolvedError{
			Reason: fmt.Sprintf("querying WSL adapter failed: %v (%s)", err, strings.TrimSpace(string(output))),
		}
	}

	addr, adapter, ok := parseAdapterOutput(string(output))
	if !ok {
		return "", "", &TopologyUnresolvedError{Reason: "no network adapter matching " + adapterAliasPattern + " found"}
	}

	log.WithFields(log.Fields{
		"adapter": adapter,
		"address": addr,
	}).Debug("WSL adapter discovered")
	return addr, adapter, nil
}

// parseAdapterOutput extracts "<ip> <alias>" from the first non-empty
// PowerShell output line.
func parseAdapterOutput(output string) (addr, adapter string, ok bool) {
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		fields := strings.SplitN(line, " ", 2)
		if net.ParseIP(fields[0]) == nil {
			continue
		}
		addr = fields[0]
		if len(fields) == 2 {
			adapter = strings.TrimSpace(fields[1])
		}
		return addr, adapter, true
	}
	return "", "", false
}

// guestGatewayAddress is never reached on Windows; the role dispatch in
// Probe only calls it for RoleGuest.
func guestGatewayAddress(ctx context.Context) (string, error) {
	return "", &TopologyUnresolvedError{Reason: "guest discovery invoked on windows"}
}
