package firewall

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeNetsh models just enough of netsh advfirewall state to verify
// reconciliation semantics: rules keyed by name, each with a port and a
// remote range.
type fakeNetsh struct {
	rules map[string]fakeRule
	calls []string
}

type fakeRule struct {
	port      string
	remoteIP  string
	direction string
}

func newFakeNetsh() *fakeNetsh {
	return &fakeNetsh{rules: map[string]fakeRule{}}
}

func (f *fakeNetsh) run(_ context.Context, args ...string) (string, error) {
	f.calls = append(f.calls, strings.Join(args, " "))

	kv := map[string]string{}
	var verb string
	for _, a := range args[2:] {
		if a == "rule" || a == "new" {
			continue
		}
		if !strings.Contains(a, "=") {
			verb = a
			continue
		}
		parts := strings.SplitN(a, "=", 2)
		kv[parts[0]] = parts[1]
	}
	if verb == "" {
		verb = args[2]
	}
	name := kv["name"]

	switch verb {
	case "show":
		r, ok := f.rules[name]
		if !ok {
			return "\nNo rules match the specified criteria.\n", errors.New("exit status 1")
		}
		return fmt.Sprintf("Rule Name: %s\nEnabled: Yes\nRemoteIP: %s\nLocalPort: %s\n", name, r.remoteIP, r.port), nil
	case "add":
		f.rules[name] = fakeRule{port: kv["localport"], remoteIP: kv["remoteip"], direction: kv["dir"]}
		return "Ok.\n", nil
	case "set":
		r, ok := f.rules[name]
		if !ok {
			return "\nNo rules match the specified criteria.\n", errors.New("exit status 1")
		}
		if v, ok := kv["remoteip"]; ok {
			r.remoteIP = v
		}
		f.rules[name] = r
		return "Ok.\n", nil
	case "delete":
		if _, ok := f.rules[name]; !ok {
			return "\nNo rules match the specified criteria.\n", errors.New("exit status 1")
		}
		delete(f.rules, name)
		return "Deleted 1 rule(s).\nOk.\n", nil
	default:
		return "", fmt.Errorf("fake netsh: unknown verb %q", verb)
	}
}

func newTestManager(f *fakeNetsh) *Manager {
	return &Manager{run: f.run, elevated: func() bool { return true }}
}

func TestReconcileCreatesScopedRule(t *testing.T) {
	f := newFakeNetsh()
	m := newTestManager(f)

	err := m.Reconcile(context.Background(), Rule{Port: 9222, SourceRange: "172.21.0.0/16"})
	require.NoError(t, err)

	require.Len(t, f.rules, 1)
	r := f.rules[RuleName]
	assert.Equal(t, "9222", r.port)
	assert.Equal(t, "172.21.0.0/16", r.remoteIP)
	assert.Equal(t, "in", r.direction)
}

func TestReconcileIsIdempotent(t *testing.T) {
	f := newFakeNetsh()
	m := newTestManager(f)
	rule := Rule{Port: 9222, SourceRange: "172.21.0.0/16"}

	require.NoError(t, m.Reconcile(context.Background(), rule))
	require.NoError(t, m.Reconcile(context.Background(), rule))

	// Exactly one rule with the managed name, no duplicates.
	require.Len(t, f.rules, 1)
	assert.Equal(t, "172.21.0.0/16", f.rules[RuleName].remoteIP)
}

func TestReconcileUpdatesRangeInPlace(t *testing.T) {
	// Simulated reboot reassignment: rule exists scoped to 172.21.0.0/16,
	// topology now reports 172.22.0.0/16.
	f := newFakeNetsh()
	f.rules[RuleName] = fakeRule{port: "9222", remoteIP: "172.21.0.0/16", direction: "in"}
	m := newTestManager(f)

	err := m.Reconcile(context.Background(), Rule{Port: 9222, SourceRange: "172.22.0.0/16"})
	require.NoError(t, err)

	require.Len(t, f.rules, 1)
	assert.Equal(t, "172.22.0.0/16", f.rules[RuleName].remoteIP)

	// Must be an in-place update, never delete+re-add of the managed rule.
	for _, call := range f.calls {
		if strings.Contains(call, "delete") && strings.Contains(call, RuleName) {
			t.Errorf("managed rule was deleted instead of updated: %s", call)
		}
	}
}

func TestReconcileRemovesLegacyUnscopedRule(t *testing.T) {
	f := newFakeNetsh()
	f.rules[legacyRuleName] = fakeRule{port: "9222", remoteIP: "any", direction: "in"}
	m := newTestManager(f)

	err := m.Reconcile(context.Background(), Rule{Port: 9222, SourceRange: "172.21.0.0/16"})
	require.NoError(t, err)

	_, legacyExists := f.rules[legacyRuleName]
	assert.False(t, legacyExists, "legacy unscoped rule should be superseded")
	_, managedExists := f.rules[RuleName]
	assert.True(t, managedExists)
}

func TestReconcileWithoutElevation(t *testing.T) {
	f := newFakeNetsh()
	m := &Manager{run: f.run, elevated: func() bool { return false }}

	err := m.Reconcile(context.Background(), Rule{Port: 9222, SourceRange: "172.21.0.0/16"})

	var privErr *InsufficientPrivilegeError
	require.ErrorAs(t, err, &privErr)
	assert.Contains(t, privErr.Remediation(), "elevated")
	assert.Empty(t, f.calls, "no netsh calls should happen without elevation")
}

func TestReconcileValidatesRule(t *testing.T) {
	m := newTestManager(newFakeNetsh())

	assert.Error(t, m.Reconcile(context.Background(), Rule{Port: 0, SourceRange: "172.21.0.0/16"}))
	assert.Error(t, m.Reconcile(context.Background(), Rule{Port: 9222}))
}

func TestDeleteMissingRuleIsSuccess(t *testing.T) {
	m := newTestManager(newFakeNetsh())
	assert.NoError(t, m.Delete(context.Background(), RuleName))
}

func TestClassifyElevationOutput(t *testing.T) {
	err := classify("add rule", "The requested operation requires elevation (Run as administrator).", errors.New("exit status 1"))
	var privErr *InsufficientPrivilegeError
	assert.ErrorAs(t, err, &privErr)

	err = classify("add rule", "some other failure", errors.New("exit status 1"))
	var otherErr *InsufficientPrivilegeError
	assert.False(t, errors.As(err, &otherErr))
	assert.Contains(t, err.Error(), "some other failure")
}
