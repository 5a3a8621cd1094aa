// WSL Dev Bridge - Mode Runners
// One function per mode flag. The default full run lives in
// orchestrator.Run; these wrap the auxiliary modes around it.

package main

import (
	"context"
	"fmt"
	"net"
	"strconv"

	log "github.com/sirupsen/logrus"

	"github.com/ndx-video/wsl-development-sucks-dogs-balls/internal/bridge"
	"github.com/ndx-video/wsl-development-sucks-dogs-balls/internal/browser"
	"github.com/ndx-video/wsl-development-sucks-dogs-balls/internal/config"
	"github.com/ndx-video/wsl-development-sucks-dogs-balls/internal/orchestrator"
	"github.com/ndx-video/wsl-development-sucks-dogs-balls/internal/probe"
	"github.com/ndx-video/wsl-development-sucks-dogs-balls/internal/testpage"
)

// runDetect prints the detected topology and nothing else.
func runDetect(ctx context.Context) error {
	topo, err := probe.Probe(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("role:    %s\n", topo.Role)
	fmt.Printf("peer:    %s\n", topo.PeerAddress)
	fmt.Printf("range:   %s\n", topo.PeerAddressRange)
	if topo.AdapterName != "" {
		fmt.Printf("adapter: %s\n", topo.AdapterName)
	}
	return nil
}

// runDiagnose prints every check result. It always succeeds: the report
// itself is the product, whatever it says.
func runDiagnose(ctx context.Context, o *orchestrator.Orchestrator) {
	results := o.Diagnose(ctx)
	for _, r := range results {
		mark := "FAIL"
		if r.Passed {
			mark = "ok"
		}
		fmt.Printf("[%4s] %-24s %s\n", mark, r.CheckName, r.Detail)
		if r.Remediation != "" {
			fmt.Printf("       %-24s fix: %s\n", "", r.Remediation)
		}
	}
}

func runValidate(ctx context.Context, o *orchestrator.Orchestrator) error {
	if err := o.Validate(ctx); err != nil {
		return err
	}
	fmt.Println("debug endpoint reachable")
	return nil
}

// runServe blocks on the built-in test page server until interrupted.
func runServe(ctx context.Context, port int) error {
	srv := testpage.New(port)
	if err := srv.Start(); err != nil {
		return err
	}
	fmt.Printf("test page at %s (Ctrl-C to stop)\n", srv.URL())
	return srv.Serve(ctx)
}

// runRelay runs the guest-side loopback relay: tools inside WSL talk to
// 127.0.0.1 and the relay forwards to the host debug port. Blocks until
// interrupted.
func runRelay(ctx context.Context, port int) error {
	topo, err := probe.Probe(ctx)
	if err != nil {
		return err
	}
	if topo.Role != probe.RoleGuest {
		return fmt.Errorf("relay mode runs inside WSL, detected role %s", topo.Role)
	}

	target := net.JoinHostPort(topo.PeerAddress, strconv.Itoa(port))
	relay := bridge.NewRelay(net.JoinHostPort("127.0.0.1", strconv.Itoa(port)), target)
	if err := relay.Start(ctx); err != nil {
		return err
	}
	defer relay.Stop()

	log.WithFields(log.Fields{
		"listen": relay.Addr().String(),
		"target": target,
	}).Info("Relay running")
	<-ctx.Done()
	return nil
}

// runTest is the end-to-end smoke mode: full setup with the browser
// pointed at the built-in test page, then the page server blocks until
// interrupted.
func runTest(ctx context.Context, cfg *config.Config, kind browser.Kind) error {
	srv := testpage.New(cfg.HTTPPort)
	if err := srv.Start(); err != nil {
		return err
	}

	o := orchestrator.New(orchestrator.Options{
		Browser:      kind,
		DebugPort:    cfg.DebugPort,
		ProfileDir:   cfg.ProfileDir,
		CheckTimeout: cfg.CheckTimeout,
		LaunchTarget: srv.URL(),
		Deep:         deepCheck,
	})
	if err := printReport(o.Run(ctx)); err != nil {
		return err
	}

	fmt.Printf("test page at %s (Ctrl-C to stop)\n", srv.URL())
	return srv.Serve(ctx)
}

// printReport renders the run outcome and converts a failed run into the
// process exit error.
func printReport(rep orchestrator.Report) error {
	if rep.State == orchestrator.StateReady {
		fmt.Println("ready")
		if rep.BrowserPath != "" {
			fmt.Printf("  browser:  %s\n", rep.BrowserPath)
		}
		if rep.LoopbackEndpoint != "" {
			fmt.Printf("  loopback: %s\n", rep.LoopbackEndpoint)
		}
		if rep.BridgeEndpoint != "" {
			fmt.Printf("  bridge:   %s\n", rep.BridgeEndpoint)
		}
		return nil
	}

	if rep.Remediation != "" {
		fmt.Printf("fix: %s\n", rep.Remediation)
	}
	return fmt.Errorf("setup failed at %s: %w", rep.FailedStep, rep.Err)
}
