// WSL Dev Bridge - Relay Socket Options (Windows)

//go:build windows

package bridge

import "syscall"

// reuseAddrControl is a no-op on Windows: winsock does not keep the
// listening port reserved after the owning process dies, and
// SO_REUSEADDR there would allow hijacking an active listener.
func reuseAddrControl(network, address string, c syscall.RawConn) error {
	return nil
}
