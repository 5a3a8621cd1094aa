// WSL Dev Bridge - Port Bridge Platform Support (Windows)

//go:build windows

package bridge

import (
	"context"
	"os/exec"
)

func runNetsh(ctx context.Context, args ...string) (string, error) {
	out, err := exec.CommandContext(ctx, "netsh", args...).CombinedOutput()
	return string(out), err
}
