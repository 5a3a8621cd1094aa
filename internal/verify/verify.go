// WSL Dev Bridge - Connectivity Verifier
// Bounded-time checks against the browser's debug endpoint, classified
// three ways so the report can tell a silent firewall drop from a browser
// that simply is not listening.

package verify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
)

// Classification is the three-way outcome of a reachability check.
// A binary pass/fail would flatten the two failure modes that need
// different remediations.
type Classification int

const (
	// ClassSuccess - valid response carrying the browser identification field.
	ClassSuccess Classification = iota
	// ClassTimeout - the bound elapsed with no answer; a firewall dropping
	// packets looks exactly like this.
	ClassTimeout
	// ClassRefused - fast failure; nothing is listening on the port, or
	// whatever is listening is not the browser.
	ClassRefused
)

func (c Classification) String() string {
	switch c {
	case ClassSuccess:
		return "success"
	case ClassTimeout:
		return "timeout"
	case ClassRefused:
		return "refused"
	default:
		return "invalid"
	}
}

// Result is one classified check against one endpoint.
type Result struct {
	Endpoint     string
	Class        Classification
	Browser      string
	WebSocketURL string
	Detail       string
	Elapsed      time.Duration
}

// DefaultTimeout caps a single check. Must be a hard bound: a dropped
// connection otherwise hangs the whole setup sequence.
const DefaultTimeout = 3 * time.Second

// versionPayload is the subset of /json/version this tool cares about.
// The Browser field is the sole liveness signal.
type versionPayload struct {
	Browser              string `json:"Browser"`
	WebSocketDebuggerURL string `json:"webSocketDebuggerUrl"`
}

// Check issues a GET against http://address:port/json/version with a hard
// deadline and classifies the outcome. The in-flight connection is torn
// down on timeout, not abandoned, so repeated diagnostic runs do not leak
// sockets.
func Check(ctx context.Context, address string, port int, timeout time.Duration) Result {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	endpoint := fmt.Sprintf("http://%s/json/version", net.JoinHostPort(address, fmt.Sprint(port)))
	res := Result{Endpoint: endpoint}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	transport := &http.Transport{
		DialContext:       (&net.Dialer{Timeout: timeout}).DialContext,
		DisableKeepAlives: true,
	}
	client := &http.Client{Transport: transport}
	defer transport.CloseIdleConnections()

	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		res.Class = ClassRefused
		res.Detail = err.Error()
		return res
	}
	req.Header.Set("User-Agent", "wsldev")

	resp, err := client.Do(req)
	res.Elapsed = time.Since(start)
	if err != nil {
		res.Class = classifyDialError(err)
		res.Detail = err.Error()
		log.WithFields(log.Fields{
			"endpoint": endpoint,
			"class":    res.Class.String(),
			"elapsed":  res.Elapsed,
		}).Debug("Debug endpoint check failed")
		return res
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		res.Class = classifyDialError(err)
		res.Detail = fmt.Sprintf("reading response: %v", err)
		return res
	}

	var payload versionPayload
	if err := json.Unmarshal(body, &payload); err != nil || payload.Browser == "" {
		// Something answered, but it is not the browser. Non-match, not a
		// parse error.
		res.Class = ClassRefused
		res.Detail = "endpoint responded without a Browser identification field"
		return res
	}

	res.Class = ClassSuccess
	res.Browser = payload.Browser
	res.WebSocketURL = payload.WebSocketDebuggerURL
	res.Detail = "Browser: " + payload.Browser
	log.WithFields(log.Fields{
		"endpoint": endpoint,
		"browser":  payload.Browser,
		"elapsed":  res.Elapsed,
	}).Debug("Debug endpoint check passed")
	return res
}

// classifyDialError separates the slow failure (drop) from the fast one
// (refusal). Anything that exhausted the deadline is a timeout; everything
// else failed fast.
func classifyDialError(err error) Classification {
	if errors.Is(err, context.DeadlineExceeded) {
		return ClassTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ClassTimeout
	}
	return ClassRefused
}

// CheckDevTools dials the advertised DevTools websocket as a deeper
// liveness probe: /json/version can answer while the CDP socket is wedged.
func CheckDevTools(ctx context.Context, wsURL string, timeout time.Duration) error {
	if wsURL == "" {
		return fmt.Errorf("no webSocketDebuggerUrl advertised")
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	dialer := websocket.Dialer{HandshakeTimeout: timeout}
	conn, resp, err := dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("devtools websocket dial %s: %w", wsURL, err)
	}
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	return conn.Close()
}
