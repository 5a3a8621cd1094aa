// WSL Dev Bridge - Firewall Rule Manager
// Reconciles the scoped inbound-allow rule for the debug port against the
// current peer address range. netsh invocation and elevation detection are
// platform-specific (firewall_windows.go / firewall_other.go); the
// reconcile logic itself is shared so it can be tested anywhere.

package firewall

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"
)

const (
	// RuleName is the stable identity of the managed rule. Reconciliation
	// updates this rule in place; it is never duplicated.
	RuleName = "WSLDevBridge-DebugPort"

	// legacyRuleName is the old unscoped allow rule earlier versions
	// created. An unscoped rule is a standing exposure, so a scoped
	// replacement always supersedes it.
	legacyRuleName = "WSL Dev Kit Debug Port"
)

// Rule is an inbound allow rule scoped to a source range.
type Rule struct {
	Name        string
	Port        int
	SourceRange string
}

// InsufficientPrivilegeError indicates the OS rejected rule modification.
// Fatal for the current run; the fix is to re-run elevated, not to retry.
type InsufficientPrivilegeError struct {
	Op string
}

func (e *InsufficientPrivilegeError) Error() string {
	return fmt.Sprintf("insufficient privileges for %s", e.Op)
}

// Remediation returns the user-facing hint for this failure.
func (e *InsufficientPrivilegeError) Remediation() string {
	return "re-run from an elevated (Administrator) prompt"
}

// runFunc executes netsh with the given arguments and returns its combined
// output. Injected so tests can fake the firewall state.
type runFunc func(ctx context.Context, args ...string) (string, error)

// Manager reconciles Windows Firewall rules for the debug port.
type Manager struct {
	run      runFunc
	elevated func() bool
}

// NewManager returns a manager bound to the real netsh binary.
func NewManager() *Manager {
	return &Manager{run: runNetsh, elevated: isElevated}
}

// Reconcile converges the firewall on exactly one scoped inbound rule:
// create if absent, rewrite the source range in place if present, and drop
// the legacy unscoped rule. Idempotent.
func (m *Manager) Reconcile(ctx context.Context, rule Rule) error {
	if rule.Name == "" {
		rule.Name = RuleName
	}
	if rule.Port <= 0 {
		return fmt.Errorf("rule port %d is invalid", rule.Port)
	}
	if rule.SourceRange == "" {
		return fmt.Errorf("rule source range is required")
	}
	if !m.elevated() {
		return &InsufficientPrivilegeError{Op: "firewall rule reconciliation"}
	}

	exists, err := m.ruleExists(ctx, rule.Name)
	if err != nil {
		return err
	}

	if exists {
		out, err := m.run(ctx,
			"advfirewall", "firewall", "set", "rule",
			"name="+rule.Name,
			"new",
			"remoteip="+rule.SourceRange,
		)
		if err != nil {
			return classify("update rule", out, err)
		}
		log.WithFields(log.Fields{
			"rule":  rule.Name,
			"range": rule.SourceRange,
		}).Info("Firewall rule scope updated")
	} else {
		out, err := m.run(ctx,
			"advfirewall", "firewall", "add", "rule",
			"name="+rule.Name,
			"dir=in",
			"action=allow",
			"protocol=TCP",
			"localport="+strconv.Itoa(rule.Port),
			"remoteip="+rule.SourceRange,
		)
		if err != nil {
			return classify("add rule", out, err)
		}
		log.WithFields(log.Fields{
			"rule":  rule.Name,
			"port":  rule.Port,
			"range": rule.SourceRange,
		}).Info("Firewall rule created")
	}

	m.dropLegacyRule(ctx)
	return nil
}

// Delete removes the managed rule. Absence is success.
func (m *Manager) Delete(ctx context.Context, name string) error {
	if name == "" {
		name = RuleName
	}
	if !m.elevated() {
		return &InsufficientPrivilegeError{Op: "firewall rule deletion"}
	}
	out, err := m.run(ctx, "advfirewall", "firewall", "delete", "rule", "name="+name)
	if err != nil {
		if noRulesMatch(out) {
			return nil
		}
		return classify("delete rule", out, err)
	}
	return nil
}

func (m *Manager) ruleExists(ctx context.Context, name string) (bool, error) {
	out, err := m.run(ctx, "advfirewall", "firewall", "show", "rule", "name="+name)
	if err != nil {
		if noRulesMatch(out) {
			return false, nil
		}
		return false, classify("show rule", out, err)
	}
	return strings.Contains(out, "Rule Name:"), nil
}

// dropLegacyRule removes the old unscoped rule if it is still around.
// Best effort: its absence is the normal case.
func (m *Manager) dropLegacyRule(ctx context.Context) {
	out, err := m.run(ctx, "advfirewall", "firewall", "delete", "rule", "name="+legacyRuleName)
	if err != nil {
		if !noRulesMatch(out) {
			log.WithError(err).WithField("rule", legacyRuleName).Debug("Legacy rule cleanup failed")
		}
		return
	}
	log.WithField("rule", legacyRuleName).Info("Removed legacy unscoped firewall rule")
}

func noRulesMatch(output string) bool {
	return strings.Contains(strings.ToLower(output), "no rules match")
}

// classify maps netsh failures onto the error taxonomy. netsh reports
// missing elevation in its output rather than a distinct exit code.
func classify(op, output string, err error) error {
	lower := strings.ToLower(output)
	if strings.Contains(lower, "requires elevation") || strings.Contains(lower, "run as an administrator") {
		return &InsufficientPrivilegeError{Op: op}
	}
	return fmt.Errorf("netsh %s failed: %w (%s)", op, err, strings.TrimSpace(output))
}
