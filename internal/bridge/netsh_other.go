// WSL Dev Bridge - Port Bridge Platform Support (non-Windows)
// portproxy is host-side state; the guest uses the relay instead.

//go:build !windows

package bridge

import (
	"context"
	"fmt"
)

func runNetsh(ctx context.Context, args ...string) (string, error) {
	return "", fmt.Errorf("portproxy management is only supported on windows")
}
