// WSL Dev Bridge - Firewall Platform Support (non-Windows)
// Windows Firewall is host-side state; the guest never manages it.

//go:build !windows

package firewall

import (
	"context"
	"fmt"
)

func runNetsh(ctx context.Context, args ...string) (string, error) {
	return "", fmt.Errorf("firewall rule management is only supported on windows")
}

func isElevated() bool {
	return false
}
