// WSL Dev Bridge - Browser Platform Support (Windows)

//go:build windows

package browser

import (
	"context"
	"os/exec"
	"strings"
	"syscall"

	"golang.org/x/sys/windows"
)

func installPaths(k Kind) []string {
	switch k {
	case KindChrome:
		return []string{
			`${ProgramFiles}\Google\Chrome\Application\chrome.exe`,
			`${ProgramFiles(x86)}\Google\Chrome\Application\chrome.exe`,
			`${LocalAppData}\Google\Chrome\Application\chrome.exe`,
		}
	case KindFirefox:
		return []string{
			`${ProgramFiles}\Mozilla Firefox\firefox.exe`,
			`${ProgramFiles(x86)}\Mozilla Firefox\firefox.exe`,
		}
	case KindLibrewolf:
		return []string{
			`${ProgramFiles}\LibreWolf\librewolf.exe`,
		}
	default:
		return nil
	}
}

func pathNames(k Kind) []string {
	switch k {
	case KindChrome:
		return []string{"chrome", "chrome.exe"}
	case KindFirefox:
		return []string{"firefox", "firefox.exe"}
	case KindLibrewolf:
		return []string{"librewolf", "librewolf.exe"}
	default:
		return nil
	}
}

func processName(k Kind) string {
	return string(k) + ".exe"
}

func killAll(ctx context.Context, name string) error {
	// /T takes the whole process tree; Chromium spawns dozens of children.
	out, err := exec.CommandContext(ctx, "taskkill", "/F", "/IM", name, "/T").CombinedOutput()
	if err != nil {
		// "not found" means nothing matched, which is success here.
		if strings.Contains(strings.ToLower(string(out)), "not found") {
			return nil
		}
		return err
	}
	return nil
}

func processRunning(ctx context.Context, name string) bool {
	out, err := exec.CommandContext(ctx, "tasklist", "/FI", "IMAGENAME eq "+name, "/NH").Output()
	if err != nil {
		return false
	}
	return strings.Contains(strings.ToLower(string(out)), strings.ToLower(name))
}

// detachAttr detaches the launched browser from this console so it
// survives the orchestrator exiting.
func detachAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{
		CreationFlags: windows.CREATE_NEW_PROCESS_GROUP | windows.DETACHED_PROCESS,
	}
}
