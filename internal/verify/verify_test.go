package verify

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func splitHostPort(t *testing.T, addr string) (string, int) {
	t.Helper()
	host, portStr, err := net.SplitHostPort(addr)
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)
	return host, port
}

func TestCheckSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/json/version", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"Browser":"Chrome/131.0.6778.85","Protocol-Version":"1.3","webSocketDebuggerUrl":"ws://127.0.0.1:9222/devtools/browser/abc"}`))
	}))
	defer srv.Close()

	host, port := splitHostPort(t, srv.Listener.Addr().String())
	res := Check(context.Background(), host, port, 2*time.Second)

	assert.Equal(t, ClassSuccess, res.Class)
	assert.Equal(t, "Chrome/131.0.6778.85", res.Browser)
	assert.Equal(t, "ws://127.0.0.1:9222/devtools/browser/abc", res.WebSocketURL)
}

func TestCheckNonBrowserResponseIsNotSuccess(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "json without Browser field", body: `{"service":"something-else"}`},
		{name: "empty Browser field", body: `{"Browser":""}`},
		{name: "not json at all", body: "<html>hi</html>"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			host, port := splitHostPort(t, srv.Listener.Addr().String())
			res := Check(context.Background(), host, port, 2*time.Second)

			// Non-match, not a parse error: the check reports a refusal
			// class with detail rather than failing oddly.
			assert.Equal(t, ClassRefused, res.Class)
			assert.Contains(t, res.Detail, "Browser identification")
		})
	}
}

func TestCheckRefusedReturnsFast(t *testing.T) {
	// Grab a port and close it again so nothing is listening.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	host, port := splitHostPort(t, ln.Addr().String())
	require.NoError(t, ln.Close())

	timeout := 3 * time.Second
	start := time.Now()
	res := Check(context.Background(), host, port, timeout)
	elapsed := time.Since(start)

	assert.Equal(t, ClassRefused, res.Class)
	assert.Less(t, elapsed, timeout/2, "refused must fail well under the timeout bound")
}

func TestCheckTimeoutAtBound(t *testing.T) {
	// A listener that accepts and then never answers behaves like a
	// firewall silently dropping the response path.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			defer conn.Close()
			// Hold the connection open without responding.
		}
	}()

	host, port := splitHostPort(t, ln.Addr().String())
	timeout := 500 * time.Millisecond

	start := time.Now()
	res := Check(context.Background(), host, port, timeout)
	elapsed := time.Since(start)

	assert.Equal(t, ClassTimeout, res.Class)
	assert.GreaterOrEqual(t, elapsed, timeout, "timeout must not fire early")
	assert.Less(t, elapsed, 5*timeout, "timeout must fire near the bound, never hang")
}

func TestClassificationString(t *testing.T) {
	assert.Equal(t, "success", ClassSuccess.String())
	assert.Equal(t, "timeout", ClassTimeout.String())
	assert.Equal(t, "refused", ClassRefused.String())
}

func TestCheckDevToolsNoURL(t *testing.T) {
	assert.Error(t, CheckDevTools(context.Background(), "", time.Second))
}
