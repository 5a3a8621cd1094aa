// WSL Dev Bridge - Firewall Platform Support (Windows)

//go:build windows

package firewall

import (
	"context"
	"os/exec"

	"golang.org/x/sys/windows"
)

func runNetsh(ctx context.Context, args ...string) (string, error) {
	out, err := exec.CommandContext(ctx, "netsh", args...).CombinedOutput()
	return string(out), err
}

// isElevated reports whether the process token carries Administrator
// rights. Checked up front so the failure is a clear privilege error
// instead of a netsh output parse.
func isElevated() bool {
	return windows.GetCurrentProcessToken().IsElevated()
}
