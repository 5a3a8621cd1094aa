// WSL Dev Bridge - Orchestrator
// Sequences probe -> firewall -> browser reset -> launch -> bridge ->
// verify into one idempotent setup pass and produces the diagnostic
// report. Strictly sequential: each step needs the previous one's output,
// and a failure halts the run with its classification intact.

package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/ndx-video/wsl-development-sucks-dogs-balls/internal/bridge"
	"github.com/ndx-video/wsl-development-sucks-dogs-balls/internal/browser"
	"github.com/ndx-video/wsl-development-sucks-dogs-balls/internal/firewall"
	"github.com/ndx-video/wsl-development-sucks-dogs-balls/internal/probe"
	"github.com/ndx-video/wsl-development-sucks-dogs-balls/internal/verify"
)

// State tracks the setup sequence.
type State int

const (
	StateIdle State = iota
	StateProbingTopology
	StateAuthorizingFirewall
	StateResettingBrowser
	StateLaunchingBrowser
	StateEstablishingBridge
	StateVerifying
	StateReady
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateProbingTopology:
		return "probing topology"
	case StateAuthorizingFirewall:
		return "authorizing firewall"
	case StateResettingBrowser:
		return "resetting browser"
	case StateLaunchingBrowser:
		return "launching browser"
	case StateEstablishingBridge:
		return "establishing bridge"
	case StateVerifying:
		return "verifying"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// DiagnosticResult is one check outcome in the report. Produced, never
// mutated.
type DiagnosticResult struct {
	CheckName   string
	Passed      bool
	Detail      string
	Remediation string
}

// Options configures one orchestration run.
type Options struct {
	Browser      browser.Kind
	DebugPort    int
	ProfileDir   string
	CheckTimeout time.Duration
	LaunchTarget string

	// Deep also dials the DevTools websocket during verification.
	Deep bool
}

// Report is the outcome of a full run.
type Report struct {
	State       State
	Topology    probe.Topology
	BrowserPath string

	// LoopbackEndpoint and BridgeEndpoint are the dual debug URLs on
	// success.
	LoopbackEndpoint string
	BridgeEndpoint   string

	// FailedStep, Err, and Remediation describe the first failure.
	FailedStep  State
	Err         error
	Remediation string
}

const (
	// defaultReadyAttempts x defaultReadyDelay bounds the post-launch
	// wait for the debug listener. Browser cold start takes a few
	// seconds.
	defaultReadyAttempts = 10
	defaultReadyDelay    = time.Second
)

// firewallManager and portProxy are the mutating collaborators, kept as
// interfaces so runs can be simulated.
type firewallManager interface {
	Reconcile(ctx context.Context, rule firewall.Rule) error
	Delete(ctx context.Context, name string) error
}

type portProxy interface {
	Expose(ctx context.Context, m bridge.Mapping) error
	Retract(ctx context.Context, m bridge.Mapping) error
}

// Orchestrator wires the components into the setup state machine.
type Orchestrator struct {
	opts Options

	firewall firewallManager
	proxy    portProxy

	probeFn     func(ctx context.Context) (probe.Topology, error)
	checkFn     func(ctx context.Context, address string, port int, timeout time.Duration) verify.Result
	devtoolsFn  func(ctx context.Context, wsURL string, timeout time.Duration) error
	findFn      func(k browser.Kind) (string, error)
	terminateFn func(ctx context.Context, k browser.Kind) error
	clearFn     func(path string) error
	launchFn    func(spec browser.ProcessSpec) (*browser.ProcessHandle, error)

	readyAttempts int
	readyDelay    time.Duration
}

// New creates an orchestrator bound to the real components.
func New(opts Options) *Orchestrator {
	if opts.DebugPort == 0 {
		opts.DebugPort = 9222
	}
	if opts.CheckTimeout <= 0 {
		opts.CheckTimeout = verify.DefaultTimeout
	}
	if opts.ProfileDir == "" {
		opts.ProfileDir = browser.DefaultProfileDir(opts.Browser)
	}
	return &Orchestrator{
		opts:        opts,
		firewall:    firewall.NewManager(),
		proxy:       bridge.NewPortProxy(),
		probeFn:     probe.Probe,
		checkFn:     verify.Check,
		devtoolsFn:  verify.CheckDevTools,
		findFn:      browser.Find,
		terminateFn: browser.TerminateAll,
		clearFn:     browser.ClearProfile,
		launchFn:    browser.Launch,

		readyAttempts: defaultReadyAttempts,
		readyDelay:    defaultReadyDelay,
	}
}

// Run executes the full setup sequence for the detected role.
func (o *Orchestrator) Run(ctx context.Context) Report {
	rep := Report{State: StateProbingTopology}
	step(1, "Probing topology")

	topo, err := o.probeFn(ctx)
	if err != nil {
		return o.fail(rep, StateProbingTopology, err)
	}
	rep.Topology = topo

	switch topo.Role {
	case probe.RoleHost:
		return o.runHost(ctx, rep)
	case probe.RoleGuest:
		return o.runGuest(ctx, rep)
	default:
		// No boundary to bridge: local-only launch (native Linux/macOS).
		return o.runLocal(ctx, rep)
	}
}

// runHost is the Windows-side sequence: authorize, reset, launch, bridge,
// verify.
func (o *Orchestrator) runHost(ctx context.Context, rep Report) Report {
	topo := rep.Topology
	port := o.opts.DebugPort

	rep.State = StateAuthorizingFirewall
	step(2, "Authorizing firewall for "+topo.PeerAddressRange)
	rule := firewall.Rule{Name: firewall.RuleName, Port: port, SourceRange: topo.PeerAddressRange}
	if err := o.firewall.Reconcile(ctx, rule); err != nil {
		return o.fail(rep, StateAuthorizingFirewall, err)
	}

	rep.State = StateResettingBrowser
	step(3, "Resetting browser")
	if err := o.resetBrowser(ctx); err != nil {
		return o.fail(rep, StateResettingBrowser, err)
	}

	rep.State = StateLaunchingBrowser
	step(4, "Launching browser")
	path, err := o.launchBrowser(ctx)
	if err != nil {
		return o.fail(rep, StateLaunchingBrowser, err)
	}
	rep.BrowserPath = path
	if _, err := o.waitReady(ctx); err != nil {
		return o.fail(rep, StateLaunchingBrowser, err)
	}

	rep.State = StateEstablishingBridge
	step(5, "Establishing port bridge")
	mapping, err := bridge.NewMapping(topo.PeerAddress, port, "127.0.0.1", port)
	if err != nil {
		return o.fail(rep, StateEstablishingBridge, err)
	}
	if err := o.proxy.Expose(ctx, mapping); err != nil {
		return o.fail(rep, StateEstablishingBridge, err)
	}

	rep.State = StateVerifying
	step(6, "Verifying endpoints")
	local := o.checkFn(ctx, "127.0.0.1", port, o.opts.CheckTimeout)
	cross := o.checkFn(ctx, topo.PeerAddress, port, o.opts.CheckTimeout)

	if local.Class != verify.ClassSuccess && cross.Class == verify.ClassSuccess {
		// The bridge forwards to loopback, so this combination cannot
		// happen with a correct verifier.
		log.WithFields(log.Fields{
			"loopback": local.Class.String(),
			"bridge":   cross.Class.String(),
		}).Error("Inconsistent verification: bridge reachable while loopback is not")
	}

	if local.Class != verify.ClassSuccess {
		return o.fail(rep, StateVerifying, checkError("loopback", local))
	}
	if cross.Class != verify.ClassSuccess {
		return o.fail(rep, StateVerifying, checkError("bridge", cross))
	}
	if o.opts.Deep {
		if err := o.devtoolsFn(ctx, local.WebSocketURL, o.opts.CheckTimeout); err != nil {
			return o.fail(rep, StateVerifying, err)
		}
	}

	rep.State = StateReady
	rep.LoopbackEndpoint = local.Endpoint
	rep.BridgeEndpoint = cross.Endpoint
	log.WithFields(log.Fields{
		"loopback": rep.LoopbackEndpoint,
		"bridge":   rep.BridgeEndpoint,
	}).Info("Setup ready")
	return rep
}

// runGuest verifies reachability of the host-side endpoint from WSL. If
// the endpoint already answers, the host setup is done and the run
// short-circuits to Ready. Triggering an elevated host-side run from here
// is the supervisor's job, not ours.
func (o *Orchestrator) runGuest(ctx context.Context, rep Report) Report {
	topo := rep.Topology
	port := o.opts.DebugPort

	rep.State = StateVerifying
	step(2, fmt.Sprintf("Checking host endpoint %s:%d", topo.PeerAddress, port))
	res := o.checkFn(ctx, topo.PeerAddress, port, o.opts.CheckTimeout)
	if res.Class != verify.ClassSuccess {
		err := checkError("host endpoint", res)
		rep = o.fail(rep, StateVerifying, err)
		rep.Remediation = "run this tool on the Windows side from an elevated prompt, then retry"
		return rep
	}

	rep.State = StateReady
	rep.BridgeEndpoint = res.Endpoint
	log.WithField("endpoint", res.Endpoint).Info("Host endpoint reachable from guest")
	return rep
}

// runLocal is the degenerate no-boundary path: clean relaunch and
// loopback verification only.
func (o *Orchestrator) runLocal(ctx context.Context, rep Report) Report {
	rep.State = StateResettingBrowser
	step(2, "Resetting browser")
	if err := o.resetBrowser(ctx); err != nil {
		return o.fail(rep, StateResettingBrowser, err)
	}

	rep.State = StateLaunchingBrowser
	step(3, "Launching browser")
	path, err := o.launchBrowser(ctx)
	if err != nil {
		return o.fail(rep, StateLaunchingBrowser, err)
	}
	rep.BrowserPath = path

	rep.State = StateVerifying
	step(4, "Verifying loopback endpoint")
	res, err := o.waitReady(ctx)
	if err != nil {
		return o.fail(rep, StateVerifying, err)
	}

	rep.State = StateReady
	rep.LoopbackEndpoint = res.Endpoint
	return rep
}

func (o *Orchestrator) resetBrowser(ctx context.Context) error {
	if err := o.terminateFn(ctx, o.opts.Browser); err != nil {
		return err
	}
	return o.clearFn(o.opts.ProfileDir)
}

func (o *Orchestrator) launchBrowser(ctx context.Context) (string, error) {
	path, err := o.findFn(o.opts.Browser)
	if err != nil {
		return "", err
	}
	spec := browser.ProcessSpec{
		ExecutablePath:  path,
		ProfileDir:      o.opts.ProfileDir,
		DebugPort:       o.opts.DebugPort,
		ExtraFlags:      browser.DebugArgs(o.opts.Browser, o.opts.DebugPort, o.opts.ProfileDir, o.opts.LaunchTarget),
		LaunchTargetURL: o.opts.LaunchTarget,
	}
	if _, err := o.launchFn(spec); err != nil {
		return "", err
	}
	return path, nil
}

// waitReady polls the loopback debug endpoint until the freshly launched
// browser answers. Bounded: a browser that never comes up is a failure,
// not a hang.
func (o *Orchestrator) waitReady(ctx context.Context) (verify.Result, error) {
	var last verify.Result
	for attempt := 1; attempt <= o.readyAttempts; attempt++ {
		last = o.checkFn(ctx, "127.0.0.1", o.opts.DebugPort, o.opts.CheckTimeout)
		if last.Class == verify.ClassSuccess {
			return last, nil
		}
		select {
		case <-ctx.Done():
			return last, ctx.Err()
		case <-time.After(o.readyDelay):
		}
	}
	return last, fmt.Errorf("browser did not start listening on port %d after %d attempts (last: %s)",
		o.opts.DebugPort, o.readyAttempts, last.Class)
}

// Cleanup tears down what a previous run set up: browser processes, the
// port bridge, and the managed firewall rule. Best effort; each missing
// piece is success.
func (o *Orchestrator) Cleanup(ctx context.Context) error {
	var errs []error

	if err := o.terminateFn(ctx, o.opts.Browser); err != nil {
		errs = append(errs, fmt.Errorf("terminate browser: %w", err))
	}

	topo, err := o.probeFn(ctx)
	if err == nil && topo.Role == probe.RoleHost {
		if mapping, merr := bridge.NewMapping(topo.PeerAddress, o.opts.DebugPort, "127.0.0.1", o.opts.DebugPort); merr == nil {
			if err := o.proxy.Retract(ctx, mapping); err != nil {
				errs = append(errs, fmt.Errorf("retract bridge: %w", err))
			}
		}
		if err := o.firewall.Delete(ctx, firewall.RuleName); err != nil {
			errs = append(errs, fmt.Errorf("delete firewall rule: %w", err))
		}
	}

	return errors.Join(errs...)
}

func (o *Orchestrator) fail(rep Report, at State, err error) Report {
	rep.State = StateFailed
	rep.FailedStep = at
	rep.Err = err
	rep.Remediation = remediationFor(err)
	log.WithError(err).WithField("step", at.String()).Error("Setup failed")
	return rep
}

// step emits the numbered progress line for the default run.
func step(n int, msg string) {
	log.Infof("[%d] %s", n, msg)
}

// checkError converts a failed verification into an error carrying its
// classification.
func checkError(what string, res verify.Result) error {
	switch res.Class {
	case verify.ClassTimeout:
		return fmt.Errorf("%s check timed out after %s: %s", what, res.Elapsed.Round(time.Millisecond), res.Detail)
	default:
		return fmt.Errorf("%s check refused: %s", what, res.Detail)
	}
}

// remediator is implemented by the typed errors that know their own fix.
type remediator interface {
	Remediation() string
}

func remediationFor(err error) string {
	var r remediator
	if errors.As(err, &r) {
		return r.Remediation()
	}
	return ""
}
