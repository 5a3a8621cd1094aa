// WSL Dev Bridge - Diagnostic Mode
// Runs every check regardless of earlier failures so the report shows the
// whole picture instead of the first broken step.

package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/ndx-video/wsl-development-sucks-dogs-balls/internal/probe"
	"github.com/ndx-video/wsl-development-sucks-dogs-balls/internal/verify"
)

// Diagnose collects one DiagnosticResult per check, in a fixed order.
// It never short-circuits and never returns an error: a broken setup is
// exactly what it exists to describe.
func (o *Orchestrator) Diagnose(ctx context.Context) []DiagnosticResult {
	var results []DiagnosticResult
	port := o.opts.DebugPort

	topo, probeErr := o.probeFn(ctx)
	envRes := DiagnosticResult{
		CheckName: "environment",
		Passed:    topo.Role != probe.RoleUnknown,
		Detail:    "role: " + topo.Role.String(),
	}
	if !envRes.Passed {
		envRes.Remediation = "run on a Windows host or inside WSL to use the bridge; native environments get a local-only launch"
	}
	results = append(results, envRes)

	topoRes := DiagnosticResult{CheckName: "topology", Passed: probeErr == nil}
	if probeErr != nil {
		topoRes.Detail = probeErr.Error()
		topoRes.Remediation = remediationFor(probeErr)
	} else {
		topoRes.Detail = fmt.Sprintf("peer %s (range %s)", topo.PeerAddress, topo.PeerAddressRange)
		if topo.AdapterName != "" {
			topoRes.Detail += " via " + topo.AdapterName
		}
	}
	results = append(results, topoRes)

	browserRes := DiagnosticResult{CheckName: "browser executable"}
	if path, err := o.findFn(o.opts.Browser); err != nil {
		browserRes.Detail = err.Error()
		browserRes.Remediation = fmt.Sprintf("install %s or pass a different --browser", o.opts.Browser)
	} else {
		browserRes.Passed = true
		browserRes.Detail = path
	}
	results = append(results, browserRes)

	local := o.checkFn(ctx, "127.0.0.1", port, o.opts.CheckTimeout)
	results = append(results, o.endpointResult("loopback endpoint", local,
		"launch the browser with remote debugging enabled (run this tool without --diagnose)",
		"check for another process holding the port or a local firewall dropping loopback traffic"))

	if probeErr == nil && topo.PeerAddress != "" {
		cross := o.checkFn(ctx, topo.PeerAddress, port, o.opts.CheckTimeout)
		results = append(results, o.endpointResult("cross-boundary endpoint", cross,
			"expose the debug port across the boundary (run this tool elevated on the Windows side)",
			"the firewall is dropping cross-boundary traffic; re-run setup elevated to reconcile the rule"))

		if local.Class != verify.ClassSuccess && cross.Class == verify.ClassSuccess {
			results = append(results, DiagnosticResult{
				CheckName: "verifier consistency",
				Detail:    "cross-boundary endpoint answered while loopback did not; the bridge forwards to loopback, so this indicates a verifier bug",
			})
		}
	}

	if o.opts.Deep && local.Class == verify.ClassSuccess {
		deep := DiagnosticResult{CheckName: "devtools websocket"}
		if err := o.devtoolsFn(ctx, local.WebSocketURL, o.opts.CheckTimeout); err != nil {
			deep.Detail = err.Error()
			deep.Remediation = "restart the browser; the DevTools socket is advertised but not accepting connections"
		} else {
			deep.Passed = true
			deep.Detail = local.WebSocketURL
		}
		results = append(results, deep)
	}

	return results
}

// endpointResult classifies one endpoint check into a report row.
func (o *Orchestrator) endpointResult(name string, res verify.Result, refusedHint, timeoutHint string) DiagnosticResult {
	out := DiagnosticResult{CheckName: name, Detail: fmt.Sprintf("%s: %s", res.Endpoint, res.Detail)}
	switch res.Class {
	case verify.ClassSuccess:
		out.Passed = true
	case verify.ClassRefused:
		out.Detail = fmt.Sprintf("%s: refused (%s)", res.Endpoint, res.Detail)
		out.Remediation = refusedHint
	case verify.ClassTimeout:
		out.Detail = fmt.Sprintf("%s: timeout after %s", res.Endpoint, res.Elapsed.Round(time.Millisecond))
		out.Remediation = timeoutHint
	}
	return out
}

// Validate is the quick boolean check behind --validate: is the debug
// endpoint reachable from here right now.
func (o *Orchestrator) Validate(ctx context.Context) error {
	topo, err := o.probeFn(ctx)
	if err != nil {
		return err
	}

	address := "127.0.0.1"
	if topo.Role == probe.RoleGuest {
		address = topo.PeerAddress
	}

	res := o.checkFn(ctx, address, o.opts.DebugPort, o.opts.CheckTimeout)
	if res.Class != verify.ClassSuccess {
		return checkError("validation", res)
	}
	return nil
}
