package bridge

import (
	"context"
	"fmt"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// echoServer accepts connections and echoes everything back.
func echoServer(t *testing.T) net.Listener {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func(c net.Conn) {
				defer c.Close()
				_, _ = io.Copy(c, c)
			}(conn)
		}
	}()
	t.Cleanup(func() { _ = ln.Close() })
	return ln
}

func roundTrip(t *testing.T, addr, payload string) string {
	t.Helper()
	conn, err := net.DialTimeout("tcp", addr, 2*time.Second)
	require.NoError(t, err)
	defer conn.Close()

	_, err = fmt.Fprint(conn, payload)
	require.NoError(t, err)

	buf := make([]byte, len(payload))
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, err = io.ReadFull(conn, buf)
	require.NoError(t, err)
	return string(buf)
}

func TestRelayForwardsBytes(t *testing.T) {
	upstream := echoServer(t)

	r := NewRelay("127.0.0.1:0", upstream.Addr().String())
	require.NoError(t, r.Start(context.Background()))
	defer r.Stop()

	got := roundTrip(t, r.Addr().String(), "GET /json/version HTTP/1.0\r\n\r\n")
	require.Equal(t, "GET /json/version HTTP/1.0\r\n\r\n", got)
}

func TestRelayHandlesConcurrentConnections(t *testing.T) {
	upstream := echoServer(t)

	r := NewRelay("127.0.0.1:0", upstream.Addr().String())
	require.NoError(t, r.Start(context.Background()))
	defer r.Stop()

	addr := r.Addr().String()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			payload := fmt.Sprintf("conn-%d-payload", i)
			if got := roundTrip(t, addr, payload); got != payload {
				t.Errorf("conn %d: got %q, want %q", i, got, payload)
			}
		}(i)
	}
	wg.Wait()
}

func TestRelayStopReleasesPort(t *testing.T) {
	upstream := echoServer(t)

	first := NewRelay("127.0.0.1:0", upstream.Addr().String())
	require.NoError(t, first.Start(context.Background()))
	addr := first.Addr().String()
	first.Stop()

	// A replacement must be able to bind the same port immediately.
	second := NewRelay(addr, upstream.Addr().String())
	require.NoError(t, second.Start(context.Background()))
	defer second.Stop()

	got := roundTrip(t, addr, "after-restart")
	require.Equal(t, "after-restart", got)
}

func TestRelayDoubleStartFails(t *testing.T) {
	upstream := echoServer(t)

	r := NewRelay("127.0.0.1:0", upstream.Addr().String())
	require.NoError(t, r.Start(context.Background()))
	defer r.Stop()

	require.Error(t, r.Start(context.Background()))
}

func TestRelayStopIsIdempotent(t *testing.T) {
	upstream := echoServer(t)

	r := NewRelay("127.0.0.1:0", upstream.Addr().String())
	require.NoError(t, r.Start(context.Background()))
	r.Stop()
	r.Stop()
}
