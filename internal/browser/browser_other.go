// WSL Dev Bridge - Browser Platform Support (Linux/macOS)

//go:build !windows

package browser

import (
	"context"
	"os/exec"
	"syscall"
)

func installPaths(k Kind) []string {
	switch k {
	case KindChrome:
		return []string{
			"/usr/bin/google-chrome",
			"/usr/bin/google-chrome-stable",
			"/usr/bin/chromium",
			"/usr/bin/chromium-browser",
			"/Applications/Google Chrome.app/Contents/MacOS/Google Chrome",
		}
	case KindFirefox:
		return []string{
			"/usr/bin/firefox",
			"/usr/bin/firefox-esr",
			"/Applications/Firefox.app/Contents/MacOS/firefox",
		}
	case KindLibrewolf:
		return []string{
			"/usr/bin/librewolf",
			"/Applications/LibreWolf.app/Contents/MacOS/librewolf",
		}
	default:
		return nil
	}
}

func pathNames(k Kind) []string {
	switch k {
	case KindChrome:
		return []string{"google-chrome", "google-chrome-stable", "chromium", "chromium-browser", "chrome"}
	case KindFirefox:
		return []string{"firefox", "firefox-esr"}
	case KindLibrewolf:
		return []string{"librewolf"}
	default:
		return nil
	}
}

func processName(k Kind) string {
	return string(k)
}

func killAll(ctx context.Context, name string) error {
	err := exec.CommandContext(ctx, "pkill", "-9", "-x", name).Run()
	if err != nil {
		// pkill exits 1 when nothing matched; that is success here.
		if exitErr, ok := err.(*exec.ExitError); ok && exitErr.ExitCode() == 1 {
			return nil
		}
		return err
	}
	return nil
}

func processRunning(ctx context.Context, name string) bool {
	return exec.CommandContext(ctx, "pgrep", "-x", name).Run() == nil
}

// detachAttr puts the launched browser in its own session so it survives
// the orchestrator exiting.
func detachAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{Setsid: true}
}
