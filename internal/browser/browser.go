// WSL Dev Bridge - Browser Controller
// Finds, terminates, and relaunches the debuggable browser with a clean
// profile. Platform specifics (install paths, kill commands, detach
// attributes) live in browser_windows.go / browser_other.go.

package browser

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
)

// Kind identifies a supported browser.
type Kind string

const (
	KindChrome    Kind = "chrome"
	KindFirefox   Kind = "firefox"
	KindLibrewolf Kind = "librewolf"
)

// ParseKind validates a browser name from the CLI.
func ParseKind(s string) (Kind, error) {
	switch Kind(strings.ToLower(strings.TrimSpace(s))) {
	case KindChrome:
		return KindChrome, nil
	case KindFirefox:
		return KindFirefox, nil
	case KindLibrewolf:
		return KindLibrewolf, nil
	default:
		return "", fmt.Errorf("unsupported browser %q (chrome, firefox, librewolf)", s)
	}
}

// ProcessSpec describes one browser launch. Owned by the controller for
// the duration of a session.
type ProcessSpec struct {
	ExecutablePath  string
	ProfileDir      string
	DebugPort       int
	ExtraFlags      []string
	LaunchTargetURL string
}

// ProcessHandle is the detached browser process. The caller never waits
// on it; readiness is verified through the debug endpoint instead.
type ProcessHandle struct {
	PID int
}

const (
	// killPollAttempts x killPollDelay bounds how long TerminateAll waits
	// for matching processes to disappear after the kill command.
	killPollAttempts = 10
	killPollDelay    = 300 * time.Millisecond
)

// DefaultProfileDir returns the throwaway profile location for a browser.
// The directory is wiped before every launch.
func DefaultProfileDir(k Kind) string {
	return filepath.Join(os.TempDir(), "wsldev-"+string(k)+"-profile")
}

// Find locates the browser executable: well-known install paths first,
// then PATH lookup.
func Find(k Kind) (string, error) {
	for _, p := range installPaths(k) {
		expanded := os.ExpandEnv(p)
		if info, err := os.Stat(expanded); err == nil && !info.IsDir() {
			return expanded, nil
		}
	}
	for _, name := range pathNames(k) {
		if found, err := exec.LookPath(name); err == nil {
			return found, nil
		}
	}
	return "", fmt.Errorf("%s executable not found in known locations or PATH", k)
}

// DebugArgs builds the per-browser remote debugging argument list.
// Chromium binds the DevTools listener to 127.0.0.1 no matter what
// --remote-debugging-address says; exposing it is the port bridge's job.
func DebugArgs(k Kind, port int, profileDir, target string) []string {
	switch k {
	case KindChrome:
		args := []string{
			fmt.Sprintf("--remote-debugging-port=%d", port),
			"--user-data-dir=" + profileDir,
			"--no-first-run",
			"--no-default-browser-check",
			"--disable-background-networking",
			"--disable-client-side-phishing-detection",
			"--disable-component-update",
			"--disable-default-apps",
			"--disable-hang-monitor",
			"--disable-popup-blocking",
			"--disable-prompt-on-repost",
			"--disable-sync",
			"--metrics-recording-only",
			"--password-store=basic",
			"--use-mock-keychain",
		}
		if target == "" {
			target = "about:blank"
		}
		return append(args, target)
	case KindFirefox, KindLibrewolf:
		args := []string{
			fmt.Sprintf("--start-debugger-server=127.0.0.1:%d", port),
			"--profile", profileDir,
			"--no-remote",
		}
		if target == "" {
			target = "about:blank"
		}
		return append(args, target)
	default:
		return nil
	}
}

// ClearProfile removes the whole profile directory. An interrupted launch
// can corrupt profile state well beyond the singleton lock marker, so
// partial cleanup is not enough. A missing directory is success.
func ClearProfile(path string) error {
	if strings.TrimSpace(path) == "" {
		return fmt.Errorf("refusing to clear empty profile path")
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	if err := os.RemoveAll(path); err != nil {
		return fmt.Errorf("clear profile %s: %w", path, err)
	}
	log.WithField("profile", path).Debug("Profile directory cleared")
	return nil
}

// TerminateAll force-stops every process matching the browser's executable
// name, then polls until they are actually gone. No matching processes is
// success.
func TerminateAll(ctx context.Context, k Kind) error {
	name := processName(k)

	if !processRunning(ctx, name) {
		log.WithField("process", name).Debug("No browser processes to terminate")
		return nil
	}

	if err := killAll(ctx, name); err != nil {
		return fmt.Errorf("terminate %s: %w", name, err)
	}

	for attempt := 0; attempt < killPollAttempts; attempt++ {
		if !processRunning(ctx, name) {
			log.WithFields(log.Fields{
				"process":  name,
				"attempts": attempt + 1,
			}).Debug("Browser processes terminated")
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(killPollDelay):
		}
	}
	return fmt.Errorf("%s processes still running after kill", name)
}

// Launch starts the browser detached from this process and returns without
// waiting for readiness; the orchestrator polls the debug endpoint
// separately. The debug endpoint itself is machine-readable data and is
// rejected as a navigation target.
func Launch(spec ProcessSpec) (*ProcessHandle, error) {
	if spec.ExecutablePath == "" {
		return nil, fmt.Errorf("executable path is required")
	}
	if err := validateTarget(spec.LaunchTargetURL, spec.DebugPort); err != nil {
		return nil, err
	}

	cmd := exec.Command(spec.ExecutablePath, spec.ExtraFlags...)
	cmd.Stdout = nil
	cmd.Stderr = nil
	cmd.SysProcAttr = detachAttr()

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("launch %s: %w", spec.ExecutablePath, err)
	}
	pid := cmd.Process.Pid

	// Detach fully: the browser outlives this process.
	if err := cmd.Process.Release(); err != nil {
		log.WithError(err).Warn("Releasing browser process handle failed")
	}

	log.WithFields(log.Fields{
		"path": spec.ExecutablePath,
		"pid":  pid,
		"port": spec.DebugPort,
	}).Info("Browser launched")
	return &ProcessHandle{PID: pid}, nil
}

// validateTarget rejects launch targets pointing at the debug port.
func validateTarget(target string, debugPort int) error {
	if target == "" || debugPort == 0 {
		return nil
	}
	u, err := url.Parse(target)
	if err != nil {
		return nil // not a URL the browser will resolve to the endpoint
	}
	if u.Port() == strconv.Itoa(debugPort) {
		return fmt.Errorf("launch target %q points at the debug endpoint; it is not a page", target)
	}
	return nil
}
